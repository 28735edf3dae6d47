package repo

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"cleanops/internal/apperr"
	"cleanops/internal/db"
	"cleanops/internal/domain"
	"cleanops/internal/migrate"
)

func newTestRepo(t *testing.T) (Repo, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "cleanops.db")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	_, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	return Repo{DB: conn}, ctx
}

func seedRoute(t *testing.T, r Repo, ctx context.Context, id string) {
	t.Helper()
	require.NoError(t, r.InsertRoute(ctx, nil, domain.Route{
		ID: id, Name: id, Status: domain.RoutePlanned, Version: 1,
		CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z",
	}))
}

func seedReport(t *testing.T, r Repo, ctx context.Context, id string) {
	t.Helper()
	require.NoError(t, r.InsertReport(ctx, nil, domain.Report{
		ID: id, OwnerID: "citizen-1", Location: domain.Location{Address: "1 Main St", Lat: 1, Lon: 2},
		Severity: domain.SeverityMedium, Status: domain.ReportOpen, Attention: true,
		CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z",
	}))
}

func TestConditionalUpdateMatchesPredicate(t *testing.T) {
	r, ctx := newTestRepo(t)
	seedRoute(t, r, ctx, "route-1")

	ok, err := r.ConditionalUpdate(ctx, nil, "routes", "route-1",
		Fields{"version": int64(1), "worker_id": nil},
		Fields{"status": domain.RouteInProgress, "version": int64(2)})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.ConditionalUpdate(ctx, nil, "routes", "route-1",
		Fields{"version": int64(1)},
		Fields{"status": domain.RoutePlanned, "version": int64(2)})
	require.NoError(t, err)
	require.False(t, ok, "stale version must not match")

	rt, err := r.GetRoute(ctx, nil, "route-1")
	require.NoError(t, err)
	require.Equal(t, domain.RouteInProgress, rt.Status)
	require.EqualValues(t, 2, rt.Version)
}

func TestConditionalUpdateRejectsUnknownColumns(t *testing.T) {
	r, ctx := newTestRepo(t)
	_, err := r.ConditionalUpdate(ctx, nil, "routes", "x", nil, Fields{"name": "evil"})
	require.Error(t, err)
	_, err = r.ConditionalUpdate(ctx, nil, "users", "x", nil, Fields{"status": "a"})
	require.Error(t, err)
	_, err = r.ConditionalUpdate(ctx, nil, "reports", "x", nil, Fields{})
	require.Error(t, err)
}

func TestReplaceMembersEnforcesExclusivity(t *testing.T) {
	r, ctx := newTestRepo(t)
	seedRoute(t, r, ctx, "route-a")
	seedRoute(t, r, ctx, "route-b")
	seedReport(t, r, ctx, "rep-1")
	seedReport(t, r, ctx, "rep-2")

	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, r.ReplaceMembers(ctx, tx, "route-a", []string{"rep-1", "rep-2"}))
	require.NoError(t, r.ReplaceMembers(ctx, tx, "route-a", []string{"rep-2", "rep-1"}))
	require.NoError(t, tx.Commit())

	ids, err := r.MemberIDs(ctx, nil, "route-a")
	require.NoError(t, err)
	require.Equal(t, []string{"rep-2", "rep-1"}, ids)

	claimed, err := r.ClaimedElsewhere(ctx, nil, "route-b", []string{"rep-1", "rep-3"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"rep-1": "route-a"}, claimed)

	tx, err = r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	require.Error(t, r.ReplaceMembers(ctx, tx, "route-b", []string{"rep-1"}), "unique report_id")

	owner, err := r.RouteOfReport(ctx, nil, "rep-2")
	require.NoError(t, err)
	require.Equal(t, "route-a", owner)
}

func TestGetMissingIsNotFound(t *testing.T) {
	r, ctx := newTestRepo(t)
	_, err := r.GetReport(ctx, nil, "nope")
	require.True(t, errors.Is(err, apperr.ErrNotFound))
	_, err = r.GetRoute(ctx, nil, "nope")
	require.True(t, errors.Is(err, apperr.ErrNotFound))
	_, err = r.GetWorker(ctx, nil, "nope")
	require.True(t, errors.Is(err, apperr.ErrNotFound))
	_, err = r.GetBinRequest(ctx, nil, "nope")
	require.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestListReportsHidesDeleted(t *testing.T) {
	r, ctx := newTestRepo(t)
	seedReport(t, r, ctx, "rep-1")
	seedReport(t, r, ctx, "rep-2")
	ok, err := r.ConditionalUpdate(ctx, nil, "reports", "rep-2", Fields{"status": domain.ReportOpen}, Fields{"status": domain.ReportDeleted})
	require.NoError(t, err)
	require.True(t, ok)

	items, err := r.ListReports(ctx, ReportFilter{Page: Page{Limit: 10}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "rep-1", items[0].ID)

	items, err = r.ListReports(ctx, ReportFilter{Status: domain.ReportDeleted, Page: Page{Limit: 10}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "rep-2", items[0].ID)
}
