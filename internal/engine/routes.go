package engine

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"cleanops/internal/apperr"
	"cleanops/internal/domain"
	"cleanops/internal/engine/auth"
	"cleanops/internal/events"
	"cleanops/internal/lifecycle"
	"cleanops/internal/repo"
)

// aggregateComplete reports whether a route with these member statuses is
// complete: at least one member, and every non-deleted member resolved.
// A membership made only of deleted reports is complete.
func aggregateComplete(statuses []string) bool {
	if len(statuses) == 0 {
		return false
	}
	for _, s := range statuses {
		if s == domain.ReportDeleted {
			continue
		}
		if s != domain.ReportResolved {
			return false
		}
	}
	return true
}

// assignmentStatus is the status a non-completed route falls back to.
func assignmentStatus(workerID string) string {
	if workerID != "" {
		return domain.RouteAssigned
	}
	return domain.RoutePlanned
}

// deriveRouteStatus computes the status a route should hold given its current
// status, bound worker and member statuses.
func deriveRouteStatus(current, workerID string, statuses []string) string {
	if aggregateComplete(statuses) {
		return domain.RouteCompleted
	}
	if current == domain.RouteCompleted {
		return assignmentStatus(workerID)
	}
	return current
}

// recomputeTx re-derives routeID's status inside tx and persists it only when
// it changed. The write is a compare-and-swap on version.
func (e Engine) recomputeTx(ctx context.Context, tx *sql.Tx, routeID, actorID string) (domain.Route, error) {
	rt, err := e.Repo.GetRoute(ctx, tx, routeID)
	if err != nil {
		return domain.Route{}, err
	}
	statuses, err := e.Repo.MemberStatuses(ctx, tx, routeID)
	if err != nil {
		return domain.Route{}, err
	}
	target := deriveRouteStatus(rt.Status, rt.WorkerID, statuses)
	if target == rt.Status {
		return rt, nil
	}
	if err := e.writeRouteTx(ctx, tx, rt, repo.Fields{"status": target}, "aggregate", actorID); err != nil {
		return domain.Route{}, err
	}
	if target == domain.RouteCompleted {
		if _, err := e.Repo.ClearMemberAttention(ctx, tx, rt.ID, e.timestamp()); err != nil {
			return domain.Route{}, err
		}
	}
	return e.Repo.GetRoute(ctx, tx, routeID)
}

// writeRouteTx applies patch to rt guarded by its version and status, bumps
// the version, and records a status change event when the status moves.
func (e Engine) writeRouteTx(ctx context.Context, tx *sql.Tx, rt domain.Route, patch repo.Fields, reason, actorID string) error {
	patch["version"] = rt.Version + 1
	patch["updated_at"] = e.timestamp()
	ok, err := e.Repo.ConditionalUpdate(ctx, tx, "routes", rt.ID,
		repo.Fields{"version": rt.Version, "status": rt.Status}, patch)
	if err != nil {
		return err
	}
	if !ok {
		return errStale
	}
	to, changed := patch["status"].(string)
	if !changed || to == rt.Status {
		return nil
	}
	e.log().Info("route status changed", "route_id", rt.ID, "from", rt.Status, "to", to, "reason", reason)
	return e.appendEvent(ctx, tx, events.RouteStatusChanged, domain.KindRoute, rt.ID, actorID,
		events.EventPayload{"from": rt.Status, "to": to, "reason": reason})
}

type RouteCreateOptions struct {
	Name      string
	Zone      string
	ReportIDs []string
}

func (e Engine) CreateRoute(ctx context.Context, caller auth.Caller, opts RouteCreateOptions) (domain.Route, error) {
	if err := auth.Authorize(caller, auth.RouteCreate, ""); err != nil {
		return domain.Route{}, err
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.Route{}, apperr.Validation("name", "is required")
	}
	ids := dedupe(opts.ReportIDs)
	now := e.timestamp()
	rt := domain.Route{
		ID:        uuid.NewString(),
		Name:      name,
		Zone:      strings.TrimSpace(opts.Zone),
		Status:    domain.RoutePlanned,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	var out domain.Route
	err := e.withRetry(ctx, "route.create", func(ctx context.Context) error {
		return e.inTx(ctx, func(tx *sql.Tx) error {
			if err := e.Repo.InsertRoute(ctx, tx, rt); err != nil {
				return fmt.Errorf("insert route: %w", err)
			}
			if err := e.appendEvent(ctx, tx, events.RouteCreated, domain.KindRoute, rt.ID, caller.ID,
				events.EventPayload{"name": rt.Name, "report_ids": ids}); err != nil {
				return err
			}
			var err error
			if len(ids) > 0 {
				out, err = e.replaceMembersTx(ctx, tx, rt, ids, caller.ID)
				return err
			}
			out, err = e.Repo.GetRoute(ctx, tx, rt.ID)
			return err
		})
	})
	return out, err
}

func (e Engine) GetRoute(ctx context.Context, caller auth.Caller, id string) (domain.Route, error) {
	if err := auth.Authorize(caller, auth.RouteRead, ""); err != nil {
		return domain.Route{}, err
	}
	var rt domain.Route
	err := e.withRetry(ctx, "route.get", func(ctx context.Context) error {
		return e.inReadTx(ctx, func(tx *sql.Tx) error {
			var err error
			rt, err = e.Repo.GetRoute(ctx, tx, id)
			return err
		})
	})
	return rt, err
}

type RouteListOptions struct {
	Status   string
	WorkerID string
	Limit    int
	Offset   int
}

func (e Engine) ListRoutes(ctx context.Context, caller auth.Caller, opts RouteListOptions) ([]domain.Route, error) {
	if err := auth.Authorize(caller, auth.RouteRead, ""); err != nil {
		return nil, err
	}
	if opts.Status != "" && !lifecycle.ValidStatus(domain.KindRoute, opts.Status) {
		return nil, apperr.Validation("status", fmt.Sprintf("unknown route status %q", opts.Status))
	}
	page, err := e.page(opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	var items []domain.Route
	err = e.withRetry(ctx, "route.list", func(ctx context.Context) error {
		var err error
		items, err = e.Repo.ListRoutes(ctx, repo.RouteFilter{Status: opts.Status, WorkerID: opts.WorkerID, Page: page})
		return err
	})
	if items == nil {
		items = []domain.Route{}
	}
	return items, err
}

// RoutePatch carries the fields of a route update. A nil Members leaves the
// membership alone; a non-nil empty slice clears it.
type RoutePatch struct {
	Members *[]string
	Status  *string
}

// UpdateRoute replaces the membership and then applies a status override, in
// one transaction. Both fields are authorized before anything is written, and
// a rejected status rolls the membership change back. The override is checked
// against the status the route holds after its membership was re-derived.
func (e Engine) UpdateRoute(ctx context.Context, caller auth.Caller, routeID string, p RoutePatch) (domain.Route, error) {
	if p.Members == nil && p.Status == nil {
		return domain.Route{}, apperr.Validation("body", "member_report_ids or status is required")
	}
	var ids []string
	if p.Members != nil {
		if err := auth.Authorize(caller, auth.RouteMembersUpdate, ""); err != nil {
			return domain.Route{}, err
		}
		ids = dedupe(*p.Members)
	}
	var status string
	if p.Status != nil {
		if err := auth.Authorize(caller, auth.RouteStatusUpdate, ""); err != nil {
			return domain.Route{}, err
		}
		status = strings.TrimSpace(*p.Status)
		if !lifecycle.ValidStatus(domain.KindRoute, status) {
			return domain.Route{}, apperr.Validation("status", fmt.Sprintf("unknown route status %q", status))
		}
	}
	var out domain.Route
	err := e.withRetry(ctx, "route.update", func(ctx context.Context) error {
		return e.inTx(ctx, func(tx *sql.Tx) error {
			rt, err := e.Repo.GetRoute(ctx, tx, routeID)
			if err != nil {
				return err
			}
			if p.Members != nil {
				if rt, err = e.replaceMembersTx(ctx, tx, rt, ids, caller.ID); err != nil {
					return err
				}
			}
			if p.Status != nil {
				if rt, err = e.overrideStatusTx(ctx, tx, rt, status, caller.ID); err != nil {
					return err
				}
			}
			out = rt
			return nil
		})
	})
	return out, err
}

// SetMembers replaces the full membership of a route and recomputes its status.
// Every report must exist and must not belong to another route.
func (e Engine) SetMembers(ctx context.Context, caller auth.Caller, routeID string, reportIDs []string) (domain.Route, error) {
	return e.UpdateRoute(ctx, caller, routeID, RoutePatch{Members: &reportIDs})
}

func (e Engine) replaceMembersTx(ctx context.Context, tx *sql.Tx, rt domain.Route, ids []string, actorID string) (domain.Route, error) {
	for _, id := range ids {
		if _, err := e.Repo.GetReport(ctx, tx, id); err != nil {
			return domain.Route{}, err
		}
	}
	claimed, err := e.Repo.ClaimedElsewhere(ctx, tx, rt.ID, ids)
	if err != nil {
		return domain.Route{}, err
	}
	if len(claimed) > 0 {
		details := map[string]any{}
		for reportID, owner := range claimed {
			details[reportID] = owner
		}
		return domain.Route{}, apperr.Conflict("report already belongs to another route", map[string]any{"claimed": details})
	}
	if !slices.Equal(rt.MemberReportIDs, ids) {
		if err := e.Repo.ReplaceMembers(ctx, tx, rt.ID, ids); err != nil {
			return domain.Route{}, err
		}
		if err := e.writeRouteTx(ctx, tx, rt, repo.Fields{}, "members", actorID); err != nil {
			return domain.Route{}, err
		}
		if err := e.appendEvent(ctx, tx, events.RouteMembersReplaced, domain.KindRoute, rt.ID, actorID,
			events.EventPayload{"report_ids": ids, "previous": rt.MemberReportIDs}); err != nil {
			return domain.Route{}, err
		}
	}
	return e.recomputeTx(ctx, tx, rt.ID, actorID)
}

// SetRouteStatus is the manual override. completed is never accepted;
// assigned and in_progress need a bound worker; planned releases the worker.
func (e Engine) SetRouteStatus(ctx context.Context, caller auth.Caller, routeID, status string) (domain.Route, error) {
	return e.UpdateRoute(ctx, caller, routeID, RoutePatch{Status: &status})
}

func (e Engine) overrideStatusTx(ctx context.Context, tx *sql.Tx, rt domain.Route, status, actorID string) (domain.Route, error) {
	if rt.Status == status {
		return rt, nil
	}
	if err := lifecycle.Check(domain.KindRoute, rt.Status, status); err != nil {
		return domain.Route{}, err
	}
	patch := repo.Fields{"status": status}
	switch status {
	case domain.RouteAssigned, domain.RouteInProgress:
		if rt.WorkerID == "" {
			return domain.Route{}, apperr.Validation("worker_id", "route has no assigned worker")
		}
	case domain.RoutePlanned:
		patch["worker_id"] = nil
	}
	if err := e.writeRouteTx(ctx, tx, rt, patch, "override", actorID); err != nil {
		return domain.Route{}, err
	}
	return e.Repo.GetRoute(ctx, tx, rt.ID)
}

// RecomputeRoute re-derives a route's status on demand.
func (e Engine) RecomputeRoute(ctx context.Context, caller auth.Caller, routeID string) (domain.Route, error) {
	if err := auth.Authorize(caller, auth.RouteStatusUpdate, ""); err != nil {
		return domain.Route{}, err
	}
	var out domain.Route
	err := e.withRetry(ctx, "route.recompute", func(ctx context.Context) error {
		return e.inTx(ctx, func(tx *sql.Tx) error {
			var err error
			out, err = e.recomputeTx(ctx, tx, routeID, caller.ID)
			return err
		})
	})
	return out, err
}

// CompleteRoute resolves every outstanding member report, which in turn
// completes the route through aggregation.
func (e Engine) CompleteRoute(ctx context.Context, caller auth.Caller, routeID string) (domain.Route, error) {
	if err := auth.Authorize(caller, auth.RouteComplete, ""); err != nil {
		return domain.Route{}, err
	}
	var out domain.Route
	err := e.withRetry(ctx, "route.complete", func(ctx context.Context) error {
		return e.inTx(ctx, func(tx *sql.Tx) error {
			rt, err := e.Repo.GetRoute(ctx, tx, routeID)
			if err != nil {
				return err
			}
			if len(rt.MemberReportIDs) == 0 {
				return apperr.Validation("member_report_ids", "route has no reports")
			}
			for _, id := range rt.MemberReportIDs {
				rep, err := e.Repo.GetReport(ctx, tx, id)
				if err != nil {
					return err
				}
				if rep.Status == domain.ReportResolved || rep.Status == domain.ReportDeleted {
					continue
				}
				if err := lifecycle.Check(domain.KindReport, rep.Status, domain.ReportResolved); err != nil {
					return err
				}
				patch := repo.Fields{"status": domain.ReportResolved, "updated_at": e.timestamp()}
				ok, err := e.Repo.ConditionalUpdate(ctx, tx, "reports", rep.ID, repo.Fields{"status": rep.Status}, patch)
				if err != nil {
					return err
				}
				if !ok {
					return errStale
				}
				if err := e.appendEvent(ctx, tx, events.ReportStatusChanged, domain.KindReport, rep.ID, caller.ID,
					events.EventPayload{"from": rep.Status, "to": domain.ReportResolved, "route_id": rt.ID}); err != nil {
					return err
				}
			}
			out, err = e.recomputeTx(ctx, tx, routeID, caller.ID)
			return err
		})
	})
	return out, err
}
