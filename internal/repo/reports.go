package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"cleanops/internal/apperr"
	"cleanops/internal/domain"
)

const reportColumns = `r.id, r.owner_id, r.address, r.lat, r.lon, COALESCE(r.description,''), COALESCE(r.image_url,''),
r.severity, r.status, r.attention, COALESCE(rr.route_id,''), r.created_at, r.updated_at`

const reportFrom = `FROM reports r LEFT JOIN route_reports rr ON rr.report_id = r.id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (domain.Report, error) {
	var rep domain.Report
	err := row.Scan(&rep.ID, &rep.OwnerID, &rep.Location.Address, &rep.Location.Lat, &rep.Location.Lon,
		&rep.Description, &rep.ImageURL, &rep.Severity, &rep.Status, &rep.Attention, &rep.RouteID,
		&rep.CreatedAt, &rep.UpdatedAt)
	return rep, err
}

func (r Repo) InsertReport(ctx context.Context, tx *sql.Tx, rep domain.Report) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO reports(id,owner_id,address,lat,lon,description,image_url,severity,status,attention,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		rep.ID, rep.OwnerID, rep.Location.Address, rep.Location.Lat, rep.Location.Lon,
		nullable(rep.Description), nullable(rep.ImageURL), rep.Severity, rep.Status, rep.Attention,
		rep.CreatedAt, rep.UpdatedAt)
	return err
}

func (r Repo) GetReport(ctx context.Context, tx *sql.Tx, id string) (domain.Report, error) {
	rep, err := scanReport(r.q(tx).QueryRowContext(ctx, `SELECT `+reportColumns+` `+reportFrom+` WHERE r.id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Report{}, apperr.NotFound(string(domain.KindReport), id)
	}
	return rep, err
}

// ReportFilter narrows ListReports. Deleted reports are excluded unless
// Status asks for them explicitly.
type ReportFilter struct {
	OwnerID   string
	Status    string
	Attention *bool
	RouteID   string
	Page      Page
}

func (r Repo) ListReports(ctx context.Context, f ReportFilter) ([]domain.Report, error) {
	var where []string
	var args []any
	if f.OwnerID != "" {
		where = append(where, "r.owner_id=?")
		args = append(args, f.OwnerID)
	}
	if f.Status != "" {
		where = append(where, "r.status=?")
		args = append(args, f.Status)
	} else {
		where = append(where, "r.status<>?")
		args = append(args, domain.ReportDeleted)
	}
	if f.Attention != nil {
		where = append(where, "r.attention=?")
		args = append(args, *f.Attention)
	}
	if f.RouteID != "" {
		where = append(where, "rr.route_id=?")
		args = append(args, f.RouteID)
	}
	query := `SELECT ` + reportColumns + ` ` + reportFrom + ` WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY r.created_at DESC, r.id DESC LIMIT ? OFFSET ?`
	args = append(args, f.Page.Limit, f.Page.Offset)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

// ClearMemberAttention clears the attention flag on every non-deleted member of routeID.
func (r Repo) ClearMemberAttention(ctx context.Context, tx *sql.Tx, routeID, updatedAt string) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE reports SET attention=0, updated_at=?
WHERE attention=1 AND status<>? AND id IN (SELECT report_id FROM route_reports WHERE route_id=?)`,
		updatedAt, domain.ReportDeleted, routeID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ReportCounts aggregates non-deleted reports for the dashboard.
type ReportCounts struct {
	Total     int
	Resolved  int
	Attention int
}

func (r Repo) CountReports(ctx context.Context) (ReportCounts, error) {
	var c ReportCounts
	err := r.DB.QueryRowContext(ctx, `SELECT
  COUNT(*),
  COALESCE(SUM(CASE WHEN status=? THEN 1 ELSE 0 END),0),
  COALESCE(SUM(CASE WHEN attention=1 THEN 1 ELSE 0 END),0)
FROM reports WHERE status<>?`, domain.ReportResolved, domain.ReportDeleted).Scan(&c.Total, &c.Resolved, &c.Attention)
	return c, err
}
