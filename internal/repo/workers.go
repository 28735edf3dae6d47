package repo

import (
	"context"
	"database/sql"
	"errors"

	"cleanops/internal/apperr"
	"cleanops/internal/domain"
)

func scanWorker(row rowScanner) (domain.Worker, error) {
	var w domain.Worker
	err := row.Scan(&w.ID, &w.IdentityRef, &w.Name, &w.Zone, &w.Active, &w.CreatedAt)
	return w, err
}

const workerColumns = `id, identity_ref, name, COALESCE(zone,''), active, created_at`

func (r Repo) InsertWorker(ctx context.Context, tx *sql.Tx, w domain.Worker) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO workers(id,identity_ref,name,zone,active,created_at) VALUES (?,?,?,?,?,?)`,
		w.ID, w.IdentityRef, w.Name, nullable(w.Zone), w.Active, w.CreatedAt)
	return err
}

func (r Repo) GetWorker(ctx context.Context, tx *sql.Tx, id string) (domain.Worker, error) {
	w, err := scanWorker(r.q(tx).QueryRowContext(ctx, `SELECT `+workerColumns+` FROM workers WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Worker{}, apperr.NotFound(string(domain.KindWorker), id)
	}
	return w, err
}

func (r Repo) ListWorkers(ctx context.Context, active *bool, page Page) ([]domain.Worker, error) {
	query := `SELECT ` + workerColumns + ` FROM workers`
	var args []any
	if active != nil {
		query += ` WHERE active=?`
		args = append(args, *active)
	}
	query += ` ORDER BY name, id LIMIT ? OFFSET ?`
	args = append(args, page.Limit, page.Offset)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// CountWorkers returns the total and active worker counts.
func (r Repo) CountWorkers(ctx context.Context) (total, active int, err error) {
	err = r.DB.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(CASE WHEN active=1 THEN 1 ELSE 0 END),0) FROM workers`).Scan(&total, &active)
	return total, active, err
}
