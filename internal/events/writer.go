package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"cleanops/internal/domain"
)

// Event types written by the engine.
const (
	ReportCreated         = "report.created"
	ReportSeverityChanged = "report.severity.changed"
	ReportStatusChanged   = "report.status.changed"
	ReportAttentionSet    = "report.attention.changed"
	ReportDeleted         = "report.deleted"
	RouteCreated          = "route.created"
	RouteMembersReplaced  = "route.members.replaced"
	RouteStatusChanged    = "route.status.changed"
	RouteAssigned         = "route.assigned"
	RouteUnassigned       = "route.unassigned"
	WorkerCreated         = "worker.created"
	WorkerActiveChanged   = "worker.active.changed"
	BinRequestCreated     = "bin_request.created"
	BinRequestAdvanced    = "bin_request.advanced"
	BinRequestDenied      = "bin_request.denied"
)

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes an event row inside tx so it commits or rolls back with the mutation.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType string, kind domain.EntityKind, entityID, actorID string, payload EventPayload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(domain.TimeLayout)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, string(kind), nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
