package engine

import (
	"context"
	"database/sql"
	"strings"

	"cleanops/internal/apperr"
	"cleanops/internal/domain"
	"cleanops/internal/engine/auth"
	"cleanops/internal/events"
	"cleanops/internal/repo"
)

// Assign binds a worker to a route. The read of the route status and the
// write of the binding happen in one write transaction and the write is a
// compare-and-swap on version, so of two concurrent calls only one can win.
func (e Engine) Assign(ctx context.Context, caller auth.Caller, workerID, routeID string) (domain.Route, error) {
	if err := auth.Authorize(caller, auth.RouteAssign, ""); err != nil {
		return domain.Route{}, err
	}
	workerID = strings.TrimSpace(workerID)
	if workerID == "" {
		return domain.Route{}, apperr.Validation("worker_id", "is required")
	}
	var out domain.Route
	err := e.withRetry(ctx, "route.assign", func(ctx context.Context) error {
		return e.inTx(ctx, func(tx *sql.Tx) error {
			w, err := e.Repo.GetWorker(ctx, tx, workerID)
			if err != nil {
				return err
			}
			rt, err := e.Repo.GetRoute(ctx, tx, routeID)
			if err != nil {
				return err
			}
			switch rt.Status {
			case domain.RouteAssigned, domain.RouteInProgress:
				return apperr.Conflict("route already assigned", map[string]any{"route_id": rt.ID, "worker_id": rt.WorkerID})
			case domain.RouteCompleted:
				return apperr.InvalidTransition(string(domain.KindRoute), rt.Status, domain.RouteAssigned)
			}
			if err := e.writeRouteTx(ctx, tx, rt, repo.Fields{"worker_id": w.ID, "status": domain.RouteAssigned}, "assign", caller.ID); err != nil {
				return err
			}
			if err := e.appendEvent(ctx, tx, events.RouteAssigned, domain.KindRoute, rt.ID, caller.ID,
				events.EventPayload{"worker_id": w.ID}); err != nil {
				return err
			}
			out, err = e.Repo.GetRoute(ctx, tx, routeID)
			return err
		})
	})
	return out, err
}

// Unassign releases the route's worker. The route returns to planned unless
// its members already make it complete.
func (e Engine) Unassign(ctx context.Context, caller auth.Caller, routeID string) (domain.Route, error) {
	if err := auth.Authorize(caller, auth.RouteUnassign, ""); err != nil {
		return domain.Route{}, err
	}
	var out domain.Route
	err := e.withRetry(ctx, "route.unassign", func(ctx context.Context) error {
		return e.inTx(ctx, func(tx *sql.Tx) error {
			rt, err := e.Repo.GetRoute(ctx, tx, routeID)
			if err != nil {
				return err
			}
			statuses, err := e.Repo.MemberStatuses(ctx, tx, routeID)
			if err != nil {
				return err
			}
			target := domain.RoutePlanned
			if aggregateComplete(statuses) {
				target = domain.RouteCompleted
			}
			if rt.WorkerID == "" && rt.Status == target {
				out = rt
				return nil
			}
			if err := e.writeRouteTx(ctx, tx, rt, repo.Fields{"worker_id": nil, "status": target}, "unassign", caller.ID); err != nil {
				return err
			}
			if rt.WorkerID != "" {
				if err := e.appendEvent(ctx, tx, events.RouteUnassigned, domain.KindRoute, rt.ID, caller.ID,
					events.EventPayload{"worker_id": rt.WorkerID}); err != nil {
					return err
				}
			}
			out, err = e.Repo.GetRoute(ctx, tx, routeID)
			return err
		})
	})
	return out, err
}
