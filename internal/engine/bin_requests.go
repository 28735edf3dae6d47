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
	"cleanops/internal/lifecycle"
	"cleanops/internal/repo"
)

func (e Engine) CreateBinRequest(ctx context.Context, caller auth.Caller, loc domain.Location) (domain.BinRequest, error) {
	if err := auth.Authorize(caller, auth.BinRequestCreate, ""); err != nil {
		return domain.BinRequest{}, err
	}
	loc, err := validateLocation(loc)
	if err != nil {
		return domain.BinRequest{}, err
	}
	now := e.timestamp()
	b := domain.BinRequest{
		ID:        uuid.NewString(),
		OwnerID:   caller.ID,
		Location:  loc,
		Status:    domain.BinRequested,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = e.withRetry(ctx, "bin_request.create", func(ctx context.Context) error {
		return e.inTx(ctx, func(tx *sql.Tx) error {
			if err := e.Repo.InsertBinRequest(ctx, tx, b); err != nil {
				return fmt.Errorf("insert bin request: %w", err)
			}
			return e.appendEvent(ctx, tx, events.BinRequestCreated, domain.KindBinRequest, b.ID, caller.ID,
				events.EventPayload{"address": b.Location.Address})
		})
	})
	if err != nil {
		return domain.BinRequest{}, err
	}
	return b, nil
}

func (e Engine) GetBinRequest(ctx context.Context, caller auth.Caller, id string) (domain.BinRequest, error) {
	if err := auth.Authorize(caller, auth.BinRequestRead, ""); err != nil {
		return domain.BinRequest{}, err
	}
	var b domain.BinRequest
	err := e.withRetry(ctx, "bin_request.get", func(ctx context.Context) error {
		var err error
		b, err = e.Repo.GetBinRequest(ctx, nil, id)
		return err
	})
	if err != nil {
		return domain.BinRequest{}, err
	}
	if err := auth.Authorize(caller, auth.BinRequestRead, b.OwnerID); err != nil {
		return domain.BinRequest{}, err
	}
	return b, nil
}

type BinRequestListOptions struct {
	Status string
	Scope  string
	Limit  int
	Offset int
}

// ListBinRequests lists the caller's own requests, or every request when
// Scope is "all" and the caller may see them.
func (e Engine) ListBinRequests(ctx context.Context, caller auth.Caller, opts BinRequestListOptions) ([]domain.BinRequest, error) {
	if err := auth.Authorize(caller, auth.BinRequestRead, ""); err != nil {
		return nil, err
	}
	if opts.Status != "" && !lifecycle.ValidStatus(domain.KindBinRequest, opts.Status) {
		return nil, apperr.Validation("status", fmt.Sprintf("unknown bin request status %q", opts.Status))
	}
	page, err := e.page(opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	owner := caller.ID
	if opts.Scope == ScopeAll && auth.Can(caller, auth.BinRequestListAll) {
		owner = ""
	}
	var items []domain.BinRequest
	err = e.withRetry(ctx, "bin_request.list", func(ctx context.Context) error {
		var err error
		items, err = e.Repo.ListBinRequests(ctx, owner, opts.Status, page)
		return err
	})
	if items == nil {
		items = []domain.BinRequest{}
	}
	return items, err
}

// AdvanceBinRequest moves a request one step forward. status must be the
// single next pipeline status; skipping, repeating or regressing is an
// InvalidTransition, and denial goes through DenyBinRequest.
func (e Engine) AdvanceBinRequest(ctx context.Context, caller auth.Caller, id, status string) (domain.BinRequest, error) {
	if err := auth.Authorize(caller, auth.BinRequestAdvance, ""); err != nil {
		return domain.BinRequest{}, err
	}
	status = strings.TrimSpace(status)
	if !lifecycle.ValidStatus(domain.KindBinRequest, status) {
		return domain.BinRequest{}, apperr.Validation("status", fmt.Sprintf("unknown bin request status %q", status))
	}
	var out domain.BinRequest
	err := e.withRetry(ctx, "bin_request.advance", func(ctx context.Context) error {
		return e.inTx(ctx, func(tx *sql.Tx) error {
			b, err := e.Repo.GetBinRequest(ctx, tx, id)
			if err != nil {
				return err
			}
			next, ok := lifecycle.NextInPipeline(b.Status)
			if !ok || next != status {
				return apperr.InvalidTransition(string(domain.KindBinRequest), b.Status, status)
			}
			now := e.timestamp()
			updated, err := e.Repo.ConditionalUpdate(ctx, tx, "bin_requests", id,
				repo.Fields{"status": b.Status},
				repo.Fields{"status": status, "updated_at": now})
			if err != nil {
				return err
			}
			if !updated {
				return errStale
			}
			if err := e.appendEvent(ctx, tx, events.BinRequestAdvanced, domain.KindBinRequest, id, caller.ID,
				events.EventPayload{"from": b.Status, "to": status}); err != nil {
				return err
			}
			b.Status = status
			b.UpdatedAt = now
			out = b
			return nil
		})
	})
	return out, err
}

// DenyBinRequest rejects a pending request by removing it. The returned value
// is the request as it stood, with status denied.
func (e Engine) DenyBinRequest(ctx context.Context, caller auth.Caller, id string) (domain.BinRequest, error) {
	if err := auth.Authorize(caller, auth.BinRequestDeny, ""); err != nil {
		return domain.BinRequest{}, err
	}
	var out domain.BinRequest
	err := e.withRetry(ctx, "bin_request.deny", func(ctx context.Context) error {
		return e.inTx(ctx, func(tx *sql.Tx) error {
			b, err := e.Repo.GetBinRequest(ctx, tx, id)
			if err != nil {
				return err
			}
			if err := lifecycle.Check(domain.KindBinRequest, b.Status, domain.BinDenied); err != nil {
				return err
			}
			removed, err := e.Repo.DeleteBinRequest(ctx, tx, id, b.Status)
			if err != nil {
				return err
			}
			if !removed {
				return errStale
			}
			if err := e.appendEvent(ctx, tx, events.BinRequestDenied, domain.KindBinRequest, id, caller.ID,
				events.EventPayload{"from": b.Status, "owner_id": b.OwnerID}); err != nil {
				return err
			}
			b.Status = domain.BinDenied
			b.UpdatedAt = e.timestamp()
			out = b
			return nil
		})
	})
	return out, err
}
