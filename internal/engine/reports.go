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

// ScopeAll asks for every owner's records; only roles holding the list_all
// grant get it, everyone else stays owner-scoped.
const ScopeAll = "all"

type ReportCreateOptions struct {
	Location    domain.Location
	Description string
	ImageURL    string
	Severity    string
}

func (e Engine) CreateReport(ctx context.Context, caller auth.Caller, opts ReportCreateOptions) (domain.Report, error) {
	if err := auth.Authorize(caller, auth.ReportCreate, ""); err != nil {
		return domain.Report{}, err
	}
	loc, err := validateLocation(opts.Location)
	if err != nil {
		return domain.Report{}, err
	}
	severity := strings.ToLower(strings.TrimSpace(opts.Severity))
	if severity == "" {
		severity = domain.SeverityMedium
	}
	if !lifecycle.ValidSeverity(severity) {
		return domain.Report{}, apperr.Validation("severity", "must be one of low, medium, high")
	}
	now := e.timestamp()
	rep := domain.Report{
		ID:          uuid.NewString(),
		OwnerID:     caller.ID,
		Location:    loc,
		Description: strings.TrimSpace(opts.Description),
		ImageURL:    strings.TrimSpace(opts.ImageURL),
		Severity:    severity,
		Status:      domain.ReportOpen,
		Attention:   true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = e.withRetry(ctx, "report.create", func(ctx context.Context) error {
		return e.inTx(ctx, func(tx *sql.Tx) error {
			if err := e.Repo.InsertReport(ctx, tx, rep); err != nil {
				return fmt.Errorf("insert report: %w", err)
			}
			return e.appendEvent(ctx, tx, events.ReportCreated, domain.KindReport, rep.ID, caller.ID, events.EventPayload{"severity": rep.Severity})
		})
	})
	if err != nil {
		return domain.Report{}, err
	}
	return rep, nil
}

func (e Engine) GetReport(ctx context.Context, caller auth.Caller, id string) (domain.Report, error) {
	if err := auth.Authorize(caller, auth.ReportRead, ""); err != nil {
		return domain.Report{}, err
	}
	var rep domain.Report
	err := e.withRetry(ctx, "report.get", func(ctx context.Context) error {
		var err error
		rep, err = e.Repo.GetReport(ctx, nil, id)
		return err
	})
	if err != nil {
		return domain.Report{}, err
	}
	if err := auth.Authorize(caller, auth.ReportRead, rep.OwnerID); err != nil {
		return domain.Report{}, err
	}
	return rep, nil
}

type ReportListOptions struct {
	Status    string
	Attention *bool
	RouteID   string
	Scope     string
	Limit     int
	Offset    int
}

func (e Engine) ListReports(ctx context.Context, caller auth.Caller, opts ReportListOptions) ([]domain.Report, error) {
	if err := auth.Authorize(caller, auth.ReportRead, ""); err != nil {
		return nil, err
	}
	if opts.Status != "" && !lifecycle.ValidStatus(domain.KindReport, opts.Status) {
		return nil, apperr.Validation("status", fmt.Sprintf("unknown report status %q", opts.Status))
	}
	page, err := e.page(opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	filter := repo.ReportFilter{
		OwnerID:   caller.ID,
		Status:    opts.Status,
		Attention: opts.Attention,
		RouteID:   opts.RouteID,
		Page:      page,
	}
	if opts.Scope == ScopeAll && auth.Can(caller, auth.ReportListAll) {
		filter.OwnerID = ""
	}
	var items []domain.Report
	err = e.withRetry(ctx, "report.list", func(ctx context.Context) error {
		var err error
		items, err = e.Repo.ListReports(ctx, filter)
		return err
	})
	if items == nil {
		items = []domain.Report{}
	}
	return items, err
}

// ReportPatch carries the fields of a report update. Nil fields are left alone.
type ReportPatch struct {
	Severity  *string
	Attention *bool
	Status    *string
}

func (p ReportPatch) empty() bool {
	return p.Severity == nil && p.Attention == nil && p.Status == nil
}

// UpdateReport applies every present field of p in one transaction. All
// fields are authorized and validated before anything is written, and a
// rejected field leaves the report untouched. Severity is applied first, then
// attention, then status. Setting status deleted is a soft delete.
func (e Engine) UpdateReport(ctx context.Context, caller auth.Caller, id string, p ReportPatch) (domain.Report, error) {
	if p.empty() {
		return domain.Report{}, apperr.Validation("body", "one of severity, status or attention is required")
	}
	var severity, status string
	if p.Severity != nil {
		if err := auth.Authorize(caller, auth.ReportSeverityUpdate, ""); err != nil {
			return domain.Report{}, err
		}
		severity = strings.ToLower(strings.TrimSpace(*p.Severity))
	}
	if p.Attention != nil {
		if err := auth.Authorize(caller, auth.ReportAttentionUpdate, ""); err != nil {
			return domain.Report{}, err
		}
	}
	if p.Status != nil {
		status = strings.TrimSpace(*p.Status)
		action := auth.ReportStatusUpdate
		if status == domain.ReportDeleted {
			action = auth.ReportDelete
		}
		if err := auth.Authorize(caller, action, ""); err != nil {
			return domain.Report{}, err
		}
	}
	if p.Severity != nil && !lifecycle.ValidSeverity(severity) {
		return domain.Report{}, apperr.Validation("severity", "must be one of low, medium, high")
	}
	if p.Status != nil && !lifecycle.ValidStatus(domain.KindReport, status) {
		return domain.Report{}, apperr.Validation("status", fmt.Sprintf("unknown report status %q", status))
	}
	var out domain.Report
	err := e.withRetry(ctx, "report.update", func(ctx context.Context) error {
		return e.inTx(ctx, func(tx *sql.Tx) error {
			rep, err := e.Repo.GetReport(ctx, tx, id)
			if err != nil {
				return err
			}
			live := p.Severity != nil || p.Attention != nil || status == domain.ReportDeleted
			if live && rep.Status == domain.ReportDeleted {
				return apperr.NotFound(string(domain.KindReport), id)
			}
			moveTo := ""
			if p.Status != nil && status != rep.Status {
				if status != domain.ReportDeleted {
					if err := lifecycle.Check(domain.KindReport, rep.Status, status); err != nil {
						return err
					}
				}
				moveTo = status
			}
			if p.Severity != nil && rep.Severity != severity {
				if rep, err = e.severityTx(ctx, tx, rep, severity, caller.ID); err != nil {
					return err
				}
			}
			if p.Attention != nil && rep.Attention != *p.Attention {
				if rep, err = e.attentionTx(ctx, tx, rep, *p.Attention, caller.ID); err != nil {
					return err
				}
			}
			if moveTo != "" {
				if err := e.transitionReportTx(ctx, tx, rep, moveTo, caller.ID); err != nil {
					return err
				}
			}
			out, err = e.Repo.GetReport(ctx, tx, id)
			return err
		})
	})
	return out, err
}

func (e Engine) SetSeverity(ctx context.Context, caller auth.Caller, id, severity string) (domain.Report, error) {
	return e.UpdateReport(ctx, caller, id, ReportPatch{Severity: &severity})
}

// SetStatus moves a report along its state machine. Resolving recomputes the
// owning route in the same transaction. Setting deleted is a soft delete.
func (e Engine) SetStatus(ctx context.Context, caller auth.Caller, id, status string) (domain.Report, error) {
	return e.UpdateReport(ctx, caller, id, ReportPatch{Status: &status})
}

func (e Engine) SetAttention(ctx context.Context, caller auth.Caller, id string, attention bool) (domain.Report, error) {
	return e.UpdateReport(ctx, caller, id, ReportPatch{Attention: &attention})
}

// SoftDelete marks a report deleted and clears its attention flag. A report
// that is missing or already deleted is NotFound.
func (e Engine) SoftDelete(ctx context.Context, caller auth.Caller, id string) (domain.Report, error) {
	status := domain.ReportDeleted
	return e.UpdateReport(ctx, caller, id, ReportPatch{Status: &status})
}

// Resolve marks a report resolved.
func (e Engine) Resolve(ctx context.Context, caller auth.Caller, id string) (domain.Report, error) {
	return e.SetStatus(ctx, caller, id, domain.ReportResolved)
}

func (e Engine) severityTx(ctx context.Context, tx *sql.Tx, rep domain.Report, severity, actorID string) (domain.Report, error) {
	now := e.timestamp()
	ok, err := e.Repo.ConditionalUpdate(ctx, tx, "reports", rep.ID,
		repo.Fields{"status": rep.Status, "severity": rep.Severity},
		repo.Fields{"severity": severity, "updated_at": now})
	if err != nil {
		return rep, err
	}
	if !ok {
		return rep, errStale
	}
	if err := e.appendEvent(ctx, tx, events.ReportSeverityChanged, domain.KindReport, rep.ID, actorID,
		events.EventPayload{"from": rep.Severity, "to": severity}); err != nil {
		return rep, err
	}
	rep.Severity = severity
	rep.UpdatedAt = now
	return rep, nil
}

func (e Engine) attentionTx(ctx context.Context, tx *sql.Tx, rep domain.Report, attention bool, actorID string) (domain.Report, error) {
	now := e.timestamp()
	ok, err := e.Repo.ConditionalUpdate(ctx, tx, "reports", rep.ID,
		repo.Fields{"status": rep.Status, "attention": rep.Attention},
		repo.Fields{"attention": attention, "updated_at": now})
	if err != nil {
		return rep, err
	}
	if !ok {
		return rep, errStale
	}
	if err := e.appendEvent(ctx, tx, events.ReportAttentionSet, domain.KindReport, rep.ID, actorID,
		events.EventPayload{"attention": attention}); err != nil {
		return rep, err
	}
	rep.Attention = attention
	rep.UpdatedAt = now
	return rep, nil
}

// transitionReportTx writes an already validated status change and, for
// resolved or deleted, re-derives the owning route.
func (e Engine) transitionReportTx(ctx context.Context, tx *sql.Tx, rep domain.Report, status, actorID string) error {
	patch := repo.Fields{"status": status, "updated_at": e.timestamp()}
	if status == domain.ReportDeleted {
		patch["attention"] = false
	}
	ok, err := e.Repo.ConditionalUpdate(ctx, tx, "reports", rep.ID, repo.Fields{"status": rep.Status}, patch)
	if err != nil {
		return err
	}
	if !ok {
		return errStale
	}
	evtType := events.ReportStatusChanged
	if status == domain.ReportDeleted {
		evtType = events.ReportDeleted
	}
	if err := e.appendEvent(ctx, tx, evtType, domain.KindReport, rep.ID, actorID,
		events.EventPayload{"from": rep.Status, "to": status}); err != nil {
		return err
	}
	if status != domain.ReportResolved && status != domain.ReportDeleted {
		return nil
	}
	routeID, err := e.Repo.RouteOfReport(ctx, tx, rep.ID)
	if err != nil || routeID == "" {
		return err
	}
	_, err = e.recomputeTx(ctx, tx, routeID, actorID)
	return err
}

