package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"cleanops/internal/apperr"
	"cleanops/internal/domain"
)

func TestAuthorizeWithoutIdentity(t *testing.T) {
	err := Authorize(Caller{}, ReportRead, "")
	require.True(t, errors.Is(err, apperr.ErrUnauthorized))
}

func TestAuthorizeUnknownRoleIsForbidden(t *testing.T) {
	err := Authorize(Caller{ID: "u1", Role: domain.Role("superuser")}, ReportRead, "u1")
	require.True(t, errors.Is(err, apperr.ErrForbidden))

	err = Authorize(Caller{ID: "u1"}, ReportCreate, "")
	require.True(t, errors.Is(err, apperr.ErrForbidden))
}

func TestCitizenOwnScope(t *testing.T) {
	c := Caller{ID: "alice", Role: domain.RoleCitizen}
	require.NoError(t, Authorize(c, ReportCreate, ""))
	require.NoError(t, Authorize(c, ReportRead, "alice"))
	require.NoError(t, Authorize(c, BinRequestRead, "alice"))

	err := Authorize(c, ReportRead, "bob")
	require.True(t, errors.Is(err, apperr.ErrForbidden))
	require.Equal(t, string(ReportRead), err.(*apperr.Error).Details["action"])

	for _, a := range []Action{ReportStatusUpdate, ReportSeverityUpdate, RouteAssign, BinRequestAdvance, ReportListAll} {
		require.Error(t, Authorize(c, a, ""), a)
	}
	require.False(t, Can(c, ReportListAll))
}

func TestWorkerCannotEditMembershipOrRoster(t *testing.T) {
	w := Caller{ID: "w1", Role: domain.RoleWorker}
	require.NoError(t, Authorize(w, ReportStatusUpdate, "someone"))
	require.NoError(t, Authorize(w, RouteAssign, ""))
	require.NoError(t, Authorize(w, BinRequestAdvance, ""))
	require.True(t, Can(w, BinRequestListAll))

	for _, a := range []Action{RouteMembersUpdate, RouteCreate, WorkerManage, ReportDelete, BinRequestDeny, EventsRead} {
		err := Authorize(w, a, "")
		require.True(t, errors.Is(err, apperr.ErrForbidden), a)
	}
}

func TestAdminHoldsEverything(t *testing.T) {
	a := Caller{ID: "root", Role: domain.RoleAdmin}
	for _, action := range allActions {
		require.NoError(t, Authorize(a, action, "anyone"))
	}
	require.Len(t, Actions(domain.RoleAdmin), len(allActions))
	require.NotContains(t, Actions(domain.RoleWorker), WorkerManage)
}
