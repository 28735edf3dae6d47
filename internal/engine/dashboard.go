package engine

import (
	"context"

	"cleanops/internal/domain"
	"cleanops/internal/engine/auth"
)

// Overview summarizes reports, workers, routes and bin requests.
func (e Engine) Overview(ctx context.Context, caller auth.Caller) (domain.Overview, error) {
	if err := auth.Authorize(caller, auth.DashboardRead, ""); err != nil {
		return domain.Overview{}, err
	}
	var ov domain.Overview
	err := e.withRetry(ctx, "dashboard.overview", func(ctx context.Context) error {
		counts, err := e.Repo.CountReports(ctx)
		if err != nil {
			return err
		}
		total, active, err := e.Repo.CountWorkers(ctx)
		if err != nil {
			return err
		}
		routes, err := e.Repo.CountRoutesByStatus(ctx)
		if err != nil {
			return err
		}
		bins, err := e.Repo.CountBinRequestsByStatus(ctx)
		if err != nil {
			return err
		}
		ov = domain.Overview{
			TotalReports:        counts.Total,
			ResolvedReports:     counts.Resolved,
			PendingReports:      counts.Total - counts.Resolved,
			AttentionReports:    counts.Attention,
			Workers:             total,
			ActiveWorkers:       active,
			RoutesByStatus:      routes,
			BinRequestsByStatus: bins,
		}
		return nil
	})
	return ov, err
}

type EventListOptions struct {
	AfterID    int64
	Limit      int
	EntityKind string
	EntityID   string
}

// ListEvents reads the audit log in id order.
func (e Engine) ListEvents(ctx context.Context, caller auth.Caller, opts EventListOptions) ([]domain.Event, error) {
	if err := auth.Authorize(caller, auth.EventsRead, ""); err != nil {
		return nil, err
	}
	page, err := e.page(opts.Limit, 0)
	if err != nil {
		return nil, err
	}
	var items []domain.Event
	err = e.withRetry(ctx, "events.list", func(ctx context.Context) error {
		var err error
		items, err = e.Repo.EventsAfter(ctx, opts.AfterID, page.Limit, opts.EntityKind, opts.EntityID)
		return err
	})
	if items == nil {
		items = []domain.Event{}
	}
	return items, err
}
