package cleanopssdk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"cleanops/internal/app"
	"cleanops/internal/config"
	"cleanops/internal/server"
)

type fixture struct {
	url  string
	auth server.AuthConfig
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "cleanops.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := app.Open(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	authCfg := server.AuthConfig{JWTSecret: "sdk-secret"}
	handler, err := server.New(server.Config{Engine: a.Engine, Auth: authCfg, Logger: logger})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return fixture{url: srv.URL, auth: authCfg}
}

func (f fixture) client(t *testing.T, id, role string) *Client {
	t.Helper()
	tok, err := server.SignToken(f.auth, id, role)
	require.NoError(t, err)
	return New(f.url+"/", tok)
}

func TestClientRouteLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	citizen := f.client(t, "citizen-1", "citizen")
	admin := f.client(t, "admin-1", "admin")

	r1, err := citizen.CreateReport(ctx, Location{Address: "1 Main St", Lat: 45.5, Lon: -73.6}, "overflowing bin", "")
	require.NoError(t, err)
	require.Equal(t, "open", r1.Status)
	require.Equal(t, "medium", r1.Severity)
	r2, err := citizen.CreateReport(ctx, Location{Address: "2 Main St", Lat: 45.5, Lon: -73.6}, "litter", "high")
	require.NoError(t, err)

	w, err := admin.CreateWorker(ctx, "worker-1", "Sam", "north")
	require.NoError(t, err)

	route, err := admin.CreateRoute(ctx, "north loop", "north", []string{r1.ID, r2.ID})
	require.NoError(t, err)
	require.Equal(t, "planned", route.Status)
	require.Equal(t, 2, route.StopCount)

	route, err = admin.AssignRoute(ctx, route.ID, w.ID)
	require.NoError(t, err)
	require.Equal(t, "assigned", route.Status)
	require.Equal(t, w.ID, route.WorkerID)

	_, err = admin.AssignRoute(ctx, route.ID, w.ID)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusConflict, apiErr.StatusCode)
	require.Equal(t, "conflict", apiErr.Code)

	worker := f.client(t, "worker-1", "worker")
	_, err = worker.ResolveReport(ctx, r1.ID)
	require.NoError(t, err)
	_, err = worker.ResolveReport(ctx, r2.ID)
	require.NoError(t, err)

	route, err = admin.GetRoute(ctx, route.ID)
	require.NoError(t, err)
	require.Equal(t, "completed", route.Status)

	page, err := admin.EventsPage(ctx, 0, 500)
	require.NoError(t, err)
	require.NotEmpty(t, page.Items)
	require.NotEmpty(t, page.NextCursor)
}

func TestClientReportScopingAndErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.client(t, "alice", "citizen")
	bob := f.client(t, "bob", "citizen")

	rep, err := alice.CreateReport(ctx, Location{Address: "Park", Lat: 1, Lon: 1}, "", "low")
	require.NoError(t, err)

	_, err = bob.GetReport(ctx, rep.ID)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusForbidden, apiErr.StatusCode)

	items, err := bob.ListReports(ctx, "", "")
	require.NoError(t, err)
	require.Empty(t, items)

	items, err = alice.ListReports(ctx, "open", "")
	require.NoError(t, err)
	require.Len(t, items, 1)

	anon := New(f.url, "")
	_, err = anon.ListReports(ctx, "", "")
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestClientBinRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	citizen := f.client(t, "citizen-1", "citizen")
	admin := f.client(t, "admin-1", "admin")

	b, err := citizen.CreateBinRequest(ctx, Location{Address: "Dock 4", Lat: 10, Lon: 20})
	require.NoError(t, err)
	require.Equal(t, "requested", b.Status)

	b, err = admin.AdvanceBinRequest(ctx, b.ID, "approved")
	require.NoError(t, err)
	require.Equal(t, "approved", b.Status)

	_, err = admin.AdvanceBinRequest(ctx, b.ID, "completed")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	require.Equal(t, "invalid_transition", apiErr.Code)
}
