package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"cleanops/internal/apperr"
	"cleanops/internal/domain"
	"cleanops/internal/engine/auth"
	"cleanops/internal/events"
	"cleanops/internal/repo"
)

type WorkerCreateOptions struct {
	IdentityRef string
	Name        string
	Zone        string
}

func (e Engine) CreateWorker(ctx context.Context, caller auth.Caller, opts WorkerCreateOptions) (domain.Worker, error) {
	if err := auth.Authorize(caller, auth.WorkerManage, ""); err != nil {
		return domain.Worker{}, err
	}
	w := domain.Worker{
		ID:          uuid.NewString(),
		IdentityRef: strings.TrimSpace(opts.IdentityRef),
		Name:        strings.TrimSpace(opts.Name),
		Zone:        strings.TrimSpace(opts.Zone),
		Active:      true,
		CreatedAt:   e.timestamp(),
	}
	if w.IdentityRef == "" {
		return domain.Worker{}, apperr.Validation("identity_ref", "is required")
	}
	if w.Name == "" {
		return domain.Worker{}, apperr.Validation("name", "is required")
	}
	err := e.withRetry(ctx, "worker.create", func(ctx context.Context) error {
		return e.inTx(ctx, func(tx *sql.Tx) error {
			if err := e.Repo.InsertWorker(ctx, tx, w); err != nil {
				if isUnique(err) {
					return apperr.Conflict("worker identity already registered", map[string]any{"identity_ref": w.IdentityRef})
				}
				return fmt.Errorf("insert worker: %w", err)
			}
			return e.appendEvent(ctx, tx, events.WorkerCreated, domain.KindWorker, w.ID, caller.ID,
				events.EventPayload{"identity_ref": w.IdentityRef, "zone": w.Zone})
		})
	})
	if err != nil {
		return domain.Worker{}, err
	}
	return w, nil
}

func (e Engine) GetWorker(ctx context.Context, caller auth.Caller, id string) (domain.Worker, error) {
	if err := auth.Authorize(caller, auth.WorkerRead, ""); err != nil {
		return domain.Worker{}, err
	}
	var w domain.Worker
	err := e.withRetry(ctx, "worker.get", func(ctx context.Context) error {
		var err error
		w, err = e.Repo.GetWorker(ctx, nil, id)
		return err
	})
	return w, err
}

type WorkerListOptions struct {
	Active *bool
	Limit  int
	Offset int
}

func (e Engine) ListWorkers(ctx context.Context, caller auth.Caller, opts WorkerListOptions) ([]domain.Worker, error) {
	if err := auth.Authorize(caller, auth.WorkerRead, ""); err != nil {
		return nil, err
	}
	page, err := e.page(opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	var items []domain.Worker
	err = e.withRetry(ctx, "worker.list", func(ctx context.Context) error {
		var err error
		items, err = e.Repo.ListWorkers(ctx, opts.Active, page)
		return err
	})
	if items == nil {
		items = []domain.Worker{}
	}
	return items, err
}

// SetWorkerActive toggles a worker in or out of the active roster.
func (e Engine) SetWorkerActive(ctx context.Context, caller auth.Caller, id string, active bool) (domain.Worker, error) {
	if err := auth.Authorize(caller, auth.WorkerManage, ""); err != nil {
		return domain.Worker{}, err
	}
	var out domain.Worker
	err := e.withRetry(ctx, "worker.active", func(ctx context.Context) error {
		return e.inTx(ctx, func(tx *sql.Tx) error {
			w, err := e.Repo.GetWorker(ctx, tx, id)
			if err != nil {
				return err
			}
			if w.Active == active {
				out = w
				return nil
			}
			ok, err := e.Repo.ConditionalUpdate(ctx, tx, "workers", id, repo.Fields{"active": w.Active}, repo.Fields{"active": active})
			if err != nil {
				return err
			}
			if !ok {
				return errStale
			}
			if err := e.appendEvent(ctx, tx, events.WorkerActiveChanged, domain.KindWorker, id, caller.ID,
				events.EventPayload{"active": active}); err != nil {
				return err
			}
			w.Active = active
			out = w
			return nil
		})
	})
	return out, err
}
