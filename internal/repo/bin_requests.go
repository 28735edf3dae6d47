package repo

import (
	"context"
	"database/sql"
	"errors"

	"cleanops/internal/apperr"
	"cleanops/internal/domain"
)

const binRequestColumns = `id, owner_id, address, lat, lon, status, created_at, updated_at`

func scanBinRequest(row rowScanner) (domain.BinRequest, error) {
	var b domain.BinRequest
	err := row.Scan(&b.ID, &b.OwnerID, &b.Location.Address, &b.Location.Lat, &b.Location.Lon,
		&b.Status, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func (r Repo) InsertBinRequest(ctx context.Context, tx *sql.Tx, b domain.BinRequest) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO bin_requests(id,owner_id,address,lat,lon,status,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		b.ID, b.OwnerID, b.Location.Address, b.Location.Lat, b.Location.Lon, b.Status, b.CreatedAt, b.UpdatedAt)
	return err
}

func (r Repo) GetBinRequest(ctx context.Context, tx *sql.Tx, id string) (domain.BinRequest, error) {
	b, err := scanBinRequest(r.q(tx).QueryRowContext(ctx, `SELECT `+binRequestColumns+` FROM bin_requests WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BinRequest{}, apperr.NotFound(string(domain.KindBinRequest), id)
	}
	return b, err
}

// ListBinRequests lists newest first. An empty ownerID lists every owner.
func (r Repo) ListBinRequests(ctx context.Context, ownerID, status string, page Page) ([]domain.BinRequest, error) {
	query := `SELECT ` + binRequestColumns + ` FROM bin_requests WHERE 1=1`
	var args []any
	if ownerID != "" {
		query += ` AND owner_id=?`
		args = append(args, ownerID)
	}
	if status != "" {
		query += ` AND status=?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, page.Limit, page.Offset)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.BinRequest
	for rows.Next() {
		b, err := scanBinRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// DeleteBinRequest removes id only while it still has status; it reports whether a row was removed.
func (r Repo) DeleteBinRequest(ctx context.Context, tx *sql.Tx, id, status string) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM bin_requests WHERE id=? AND status=?`, id, status)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r Repo) CountBinRequestsByStatus(ctx context.Context) (map[string]int, error) {
	return r.countByStatus(ctx, `SELECT status, COUNT(*) FROM bin_requests GROUP BY status`)
}
