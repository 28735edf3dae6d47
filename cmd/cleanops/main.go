package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cleanops/internal/app"
	"cleanops/internal/config"
	"cleanops/internal/domain"
	"cleanops/internal/engine"
	"cleanops/internal/engine/auth"
	"cleanops/internal/logging"
	"cleanops/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "cleanops",
	Short: "Cleanops CLI",
	Long: `Cleanops tracks citizen cleanup reports, bin requests and the worker routes that resolve them.
- Reports move open -> in_review -> dispatched -> resolved; any report can be soft deleted.
- Bin requests move requested -> approved -> in_progress -> completed, or are denied while requested.
- Routes group reports. A route completes on its own once every member report is resolved or deleted.
- A route is assigned to at most one worker; concurrent assignments have exactly one winner.
Commands act as --actor-id with --role (admin by default) against the local database.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CLEANOPS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", "cleanops.yml", "config file")
	rootCmd.PersistentFlags().String("db", "", "database path (overrides config)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-admin", "actor identifier")
	rootCmd.PersistentFlags().String("role", "admin", "actor role (citizen, worker, admin)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides config)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("role", rootCmd.PersistentFlags().Lookup("role"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(routeCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(binCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(eventsCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			if cmd.Flags().Changed("dev-login") {
				cfg.Server.DevLogin = devLogin
			}
			logger, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			authCfg := server.AuthConfig{JWTSecret: viper.GetString("jwt-secret"), DevLogin: cfg.Server.DevLogin}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("CLEANOPS_JWT_SECRET is required for bearer auth")
			}
			a, err := app.Open(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			handler, err := server.New(server.Config{Engine: a.Engine, BasePath: cfg.Server.BasePath, Auth: authCfg, Logger: logger})
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go server.NewWebhookDispatcher(a.Engine.Repo, cfg.Webhooks, logger).Run(ctx)

			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			logger.Info("serving cleanops api", "addr", cfg.Server.Addr, "base_path", cfg.Server.BasePath, "dev_login", cfg.Server.DevLogin, "webhooks", len(cfg.Webhooks))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "enable the unauthenticated dev token endpoint")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var version int
				if err := a.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version); err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"database": a.Config.Database.Path, "schema_version": version})
			})
		},
	}
}

func configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	})
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	})
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("config")
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	return cfgCmd
}

func tokenCmd() *cobra.Command {
	var subject, role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("CLEANOPS_JWT_SECRET is required to sign tokens")
			}
			if _, ok := domain.ParseRole(role); !ok {
				return fmt.Errorf("unknown role %q", role)
			}
			tok, err := server.SignToken(server.AuthConfig{JWTSecret: secret, TokenTTL: ttl}, subject, role)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "token subject (caller id)")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleCitizen), "caller role")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default 24h)")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}

func reportCmd() *cobra.Command {
	rep := &cobra.Command{Use: "report", Short: "Manage reports"}
	rep.AddCommand(reportCreateCmd())
	rep.AddCommand(reportListCmd())
	rep.AddCommand(reportGetCmd())
	rep.AddCommand(reportStatusCmd())
	rep.AddCommand(reportSeverityCmd())
	rep.AddCommand(reportAttentionCmd())
	rep.AddCommand(reportAction("resolve", "Resolve a report", engine.Engine.Resolve))
	rep.AddCommand(reportAction("delete", "Soft delete a report", engine.Engine.SoftDelete))
	return rep
}

func reportCreateCmd() *cobra.Command {
	var opts engine.ReportCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "File a report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller auth.Caller) error {
				r, err := e.CreateReport(ctx, caller, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Location.Address, "address", "", "street address")
	cmd.Flags().Float64Var(&opts.Location.Lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&opts.Location.Lon, "lon", 0, "longitude")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.ImageURL, "image-url", "", "image url")
	cmd.Flags().StringVar(&opts.Severity, "severity", "", "severity (low, medium, high)")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

func reportListCmd() *cobra.Command {
	var opts engine.ReportListOptions
	var attention string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("attention") {
				if attention != "true" && attention != "false" {
					return fmt.Errorf("--attention must be true or false")
				}
				v := attention == "true"
				opts.Attention = &v
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller auth.Caller) error {
				items, err := e.ListReports(ctx, caller, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Status", "Severity", "Attention", "Route", "Address")
				for _, r := range items {
					tw.AppendRow(table.Row{r.ID, r.Status, r.Severity, r.Attention, r.RouteID, r.Location.Address})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&attention, "attention", "", "attention filter (true or false)")
	cmd.Flags().StringVar(&opts.RouteID, "route-id", "", "route filter")
	cmd.Flags().StringVar(&opts.Scope, "scope", "", "own or all")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "page size")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "page offset")
	return cmd
}

func reportGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller auth.Caller) error {
				r, err := e.GetReport(ctx, caller, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
}

func reportStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Move a report to a new status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller auth.Caller) error {
				r, err := e.SetStatus(ctx, caller, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
}

func reportSeverityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "severity <id> <low|medium|high>",
		Short: "Change a report's severity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller auth.Caller) error {
				r, err := e.SetSeverity(ctx, caller, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
}

func reportAttentionCmd() *cobra.Command {
	var unset bool
	cmd := &cobra.Command{
		Use:   "attention <id>",
		Short: "Flag a report for attention (or clear the flag)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller auth.Caller) error {
				r, err := e.SetAttention(ctx, caller, args[0], !unset)
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	cmd.Flags().BoolVar(&unset, "clear", false, "clear the flag")
	return cmd
}

func reportAction(use, short string, action func(engine.Engine, context.Context, auth.Caller, string) (domain.Report, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller auth.Caller) error {
				r, err := action(e, ctx, caller, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
}

func routeCmd() *cobra.Command {
	rt := &cobra.Command{Use: "route", Short: "Manage routes"}
	rt.AddCommand(routeCreateCmd())
	rt.AddCommand(routeListCmd())
	rt.AddCommand(routeGetCmd())
	rt.AddCommand(routeMembersCmd())
	rt.AddCommand(routeStatusCmd())
	rt.AddCommand(routeAssignCmd())
	rt.AddCommand(routeAction("unassign", "Release a route's worker", engine.Engine.Unassign))
	rt.AddCommand(routeAction("recompute", "Re-derive a route's status from its reports", engine.Engine.RecomputeRoute))
	rt.AddCommand(routeAction("complete", "Resolve every report on a route", engine.Engine.CompleteRoute))
	return rt
}

func routeCreateCmd() *cobra.Command {
	var opts engine.RouteCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a planned route",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller auth.Caller) error {
				r, err := e.CreateRoute(ctx, caller, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "route name")
	cmd.Flags().StringVar(&opts.Zone, "zone", "", "zone")
	cmd.Flags().StringArrayVar(&opts.ReportIDs, "report", []string{}, "member report id (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func routeListCmd() *cobra.Command {
	var opts engine.RouteListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List routes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller auth.Caller) error {
				items, err := e.ListRoutes(ctx, caller, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Name", "Status", "Stops", "Worker", "Version")
				for _, r := range items {
					worker := r.WorkerName
					if worker == "" {
						worker = r.WorkerID
					}
					tw.AppendRow(table.Row{r.ID, r.Name, r.Status, r.StopCount, worker, r.Version})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&opts.WorkerID, "worker-id", "", "worker filter")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "page size")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "page offset")
	return cmd
}

func routeGetCmd() *cobra.Command {
	return routeAction("get", "Show a route", engine.Engine.GetRoute)
}

func routeMembersCmd() *cobra.Command {
	var reportIDs []string
	cmd := &cobra.Command{
		Use:   "members <id>",
		Short: "Replace a route's member reports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller auth.Caller) error {
				r, err := e.SetMembers(ctx, caller, args[0], reportIDs)
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	cmd.Flags().StringArrayVar(&reportIDs, "report", []string{}, "member report id (repeatable, none clears the route)")
	return cmd
}

func routeStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Override a route's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller auth.Caller) error {
				r, err := e.SetRouteStatus(ctx, caller, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
}

func routeAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <route-id> <worker-id>",
		Short: "Assign a route to a worker",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller auth.Caller) error {
				r, err := e.Assign(ctx, caller, args[1], args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
}

func routeAction(use, short string, action func(engine.Engine, context.Context, auth.Caller, string) (domain.Route, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller auth.Caller) error {
				r, err := action(e, ctx, caller, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
}

func workerCmd() *cobra.Command {
	wk := &cobra.Command{Use: "worker", Short: "Manage field workers"}
	wk.AddCommand(workerCreateCmd())
	wk.AddCommand(workerListCmd())
	wk.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: "Show a worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller auth.Caller) error {
				w, err := e.GetWorker(ctx, caller, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	})
	wk.AddCommand(workerActiveCmd("activate", true))
	wk.AddCommand(workerActiveCmd("deactivate", false))
	return wk
}

func workerCreateCmd() *cobra.Command {
	var opts engine.WorkerCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller auth.Caller) error {
				w, err := e.CreateWorker(ctx, caller, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&opts.IdentityRef, "identity-ref", "", "identity the worker signs in as")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Zone, "zone", "", "zone")
	_ = cmd.MarkFlagRequired("identity-ref")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func workerListCmd() *cobra.Command {
	var opts engine.WorkerListOptions
	var activeOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			if activeOnly {
				v := true
				opts.Active = &v
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller auth.Caller) error {
				items, err := e.ListWorkers(ctx, caller, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Name", "Identity", "Zone", "Active")
				for _, w := range items {
					tw.AppendRow(table.Row{w.ID, w.Name, w.IdentityRef, w.Zone, w.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only active workers")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "page size")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "page offset")
	return cmd
}

func workerActiveCmd(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller auth.Caller) error {
				w, err := e.SetWorkerActive(ctx, caller, args[0], active)
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
}

func binCmd() *cobra.Command {
	bin := &cobra.Command{Use: "bin", Short: "Manage bin requests"}
	bin.AddCommand(binCreateCmd())
	bin.AddCommand(binListCmd())
	bin.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: "Show a bin request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller auth.Caller) error {
				b, err := e.GetBinRequest(ctx, caller, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	})
	bin.AddCommand(&cobra.Command{
		Use:   "advance <id> <status>",
		Short: "Advance a bin request to its next status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller auth.Caller) error {
				b, err := e.AdvanceBinRequest(ctx, caller, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	})
	bin.AddCommand(&cobra.Command{
		Use:   "deny <id>",
		Short: "Deny a pending bin request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller auth.Caller) error {
				b, err := e.DenyBinRequest(ctx, caller, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	})
	return bin
}

func binCreateCmd() *cobra.Command {
	var loc domain.Location
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Request a bin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller auth.Caller) error {
				b, err := e.CreateBinRequest(ctx, caller, loc)
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	cmd.Flags().StringVar(&loc.Address, "address", "", "street address")
	cmd.Flags().Float64Var(&loc.Lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&loc.Lon, "lon", 0, "longitude")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

func binListCmd() *cobra.Command {
	var opts engine.BinRequestListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List bin requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller auth.Caller) error {
				items, err := e.ListBinRequests(ctx, caller, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Status", "Owner", "Address", "Updated")
				for _, b := range items {
					tw.AppendRow(table.Row{b.ID, b.Status, b.OwnerID, b.Location.Address, b.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&opts.Scope, "scope", "", "own or all")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "page size")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "page offset")
	return cmd
}

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show the operational overview",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller auth.Caller) error {
				ov, err := e.Overview(ctx, caller)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ov)
				}
				tw := newTable("Metric", "Value")
				tw.AppendRows([]table.Row{
					{"reports", ov.TotalReports},
					{"resolved reports", ov.ResolvedReports},
					{"pending reports", ov.PendingReports},
					{"needs attention", ov.AttentionReports},
					{"workers", ov.Workers},
					{"active workers", ov.ActiveWorkers},
				})
				tw.AppendSeparator()
				for _, s := range []string{domain.RoutePlanned, domain.RouteAssigned, domain.RouteInProgress, domain.RouteCompleted} {
					tw.AppendRow(table.Row{"routes " + s, ov.RoutesByStatus[s]})
				}
				tw.AppendSeparator()
				for _, s := range []string{domain.BinRequested, domain.BinApproved, domain.BinInProgress, domain.BinCompleted} {
					tw.AppendRow(table.Row{"bin requests " + s, ov.BinRequestsByStatus[s]})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func eventsCmd() *cobra.Command {
	var opts engine.EventListOptions
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Read the event log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller auth.Caller) error {
				items, err := e.ListEvents(ctx, caller, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Time", "Type", "Entity", "Actor", "Payload")
				for _, evt := range items {
					payload, _ := json.Marshal(evt.Payload)
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + "/" + evt.EntityID, evt.ActorID, string(payload)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&opts.AfterID, "after", 0, "only events with a greater id")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "number of events")
	cmd.Flags().StringVar(&opts.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&opts.EntityID, "entity-id", "", "entity id")
	return cmd
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	if dbPath := viper.GetString("db"); dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if level := viper.GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	return cfg, nil
}

func setupLogger(cfg *config.Config) (*slog.Logger, error) {
	return logging.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format)
}

func callerFromFlags() (auth.Caller, error) {
	role, ok := domain.ParseRole(viper.GetString("role"))
	if !ok {
		return auth.Caller{}, fmt.Errorf("unknown role %q", viper.GetString("role"))
	}
	return auth.Caller{ID: strings.TrimSpace(viper.GetString("actor-id")), Role: role}, nil
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, auth.Caller) error) error {
	caller, err := callerFromFlags()
	if err != nil {
		return err
	}
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		return fn(ctx, a.Engine, caller)
	})
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
