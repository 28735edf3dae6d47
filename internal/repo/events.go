package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"cleanops/internal/domain"
)

// EventsAfter returns up to limit events with id > afterID in id order.
// entityKind and entityID narrow the result when non-empty.
func (r Repo) EventsAfter(ctx context.Context, afterID int64, limit int, entityKind, entityID string) ([]domain.Event, error) {
	query := `SELECT id, ts, type, entity_kind, COALESCE(entity_id,''), actor_id, payload_json FROM events WHERE id>?`
	args := []any{afterID}
	if entityKind != "" {
		query += ` AND entity_kind=?`
		args = append(args, entityKind)
	}
	if entityID != "" {
		query += ` AND entity_id=?`
		args = append(args, entityID)
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		var evt domain.Event
		var payload string
		if err := rows.Scan(&evt.ID, &evt.TS, &evt.Type, &evt.EntityKind, &evt.EntityID, &evt.ActorID, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &evt.Payload); err != nil {
			return nil, fmt.Errorf("event %d payload: %w", evt.ID, err)
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

// LatestEventID returns the newest event id, or 0 when the log is empty.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id)
	return id, err
}
