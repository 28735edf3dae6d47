package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"cleanops/internal/apperr"
	"cleanops/internal/domain"
)

const routeColumns = `rt.id, rt.name, COALESCE(rt.zone,''), COALESCE(rt.worker_id,''), COALESCE(w.name,''),
rt.status, rt.version, (SELECT COUNT(*) FROM route_reports m WHERE m.route_id = rt.id), rt.created_at, rt.updated_at`

const routeFrom = `FROM routes rt LEFT JOIN workers w ON w.id = rt.worker_id`

func scanRoute(row rowScanner) (domain.Route, error) {
	var rt domain.Route
	err := row.Scan(&rt.ID, &rt.Name, &rt.Zone, &rt.WorkerID, &rt.WorkerName,
		&rt.Status, &rt.Version, &rt.StopCount, &rt.CreatedAt, &rt.UpdatedAt)
	return rt, err
}

func (r Repo) InsertRoute(ctx context.Context, tx *sql.Tx, rt domain.Route) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO routes(id,name,zone,worker_id,status,version,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		rt.ID, rt.Name, nullable(rt.Zone), nullable(rt.WorkerID), rt.Status, rt.Version, rt.CreatedAt, rt.UpdatedAt)
	return err
}

// GetRoute loads a route with its ordered membership.
func (r Repo) GetRoute(ctx context.Context, tx *sql.Tx, id string) (domain.Route, error) {
	rt, err := scanRoute(r.q(tx).QueryRowContext(ctx, `SELECT `+routeColumns+` `+routeFrom+` WHERE rt.id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Route{}, apperr.NotFound(string(domain.KindRoute), id)
	}
	if err != nil {
		return domain.Route{}, err
	}
	members, err := r.MemberIDs(ctx, tx, id)
	if err != nil {
		return domain.Route{}, err
	}
	rt.MemberReportIDs = members
	return rt, nil
}

type RouteFilter struct {
	Status   string
	WorkerID string
	Page     Page
}

// ListRoutes returns routes without membership lists; StopCount carries the size.
func (r Repo) ListRoutes(ctx context.Context, f RouteFilter) ([]domain.Route, error) {
	where := []string{"1=1"}
	var args []any
	if f.Status != "" {
		where = append(where, "rt.status=?")
		args = append(args, f.Status)
	}
	if f.WorkerID != "" {
		where = append(where, "rt.worker_id=?")
		args = append(args, f.WorkerID)
	}
	args = append(args, f.Page.Limit, f.Page.Offset)
	rows, err := r.DB.QueryContext(ctx, `SELECT `+routeColumns+` `+routeFrom+` WHERE `+strings.Join(where, " AND ")+
		` ORDER BY rt.created_at DESC, rt.id DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Route
	for rows.Next() {
		rt, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

func (r Repo) MemberIDs(ctx context.Context, tx *sql.Tx, routeID string) ([]string, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT report_id FROM route_reports WHERE route_id=? ORDER BY position, report_id`, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// MemberStatuses returns the status of every member report of routeID, deleted ones included.
func (r Repo) MemberStatuses(ctx context.Context, tx *sql.Tx, routeID string) ([]string, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT rep.status FROM route_reports m JOIN reports rep ON rep.id = m.report_id WHERE m.route_id=?`, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RouteOfReport returns the route currently holding reportID, or "" if none.
func (r Repo) RouteOfReport(ctx context.Context, tx *sql.Tx, reportID string) (string, error) {
	var routeID string
	err := r.q(tx).QueryRowContext(ctx, `SELECT route_id FROM route_reports WHERE report_id=?`, reportID).Scan(&routeID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return routeID, err
}

// ClaimedElsewhere maps each of reportIDs held by a route other than routeID to that route.
func (r Repo) ClaimedElsewhere(ctx context.Context, tx *sql.Tx, routeID string, reportIDs []string) (map[string]string, error) {
	out := map[string]string{}
	if len(reportIDs) == 0 {
		return out, nil
	}
	args := []any{routeID}
	for _, id := range reportIDs {
		args = append(args, id)
	}
	rows, err := r.q(tx).QueryContext(ctx, `SELECT report_id, route_id FROM route_reports WHERE route_id<>? AND report_id IN (`+placeholders(len(reportIDs))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var reportID, owner string
		if err := rows.Scan(&reportID, &owner); err != nil {
			return nil, err
		}
		out[reportID] = owner
	}
	return out, rows.Err()
}

// ReplaceMembers removes every membership link of routeID and inserts reportIDs in order.
func (r Repo) ReplaceMembers(ctx context.Context, tx *sql.Tx, routeID string, reportIDs []string) error {
	if tx == nil {
		return errors.New("replace members requires a transaction")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM route_reports WHERE route_id=?`, routeID); err != nil {
		return err
	}
	for i, id := range reportIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO route_reports(route_id, report_id, position) VALUES (?,?,?)`, routeID, id, i); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) CountRoutesByStatus(ctx context.Context) (map[string]int, error) {
	return r.countByStatus(ctx, `SELECT status, COUNT(*) FROM routes GROUP BY status`)
}

func (r Repo) countByStatus(ctx context.Context, query string, args ...any) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}
