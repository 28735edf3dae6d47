// Package auth is the role-based gate placed in front of every engine operation.
package auth

import (
	"cleanops/internal/apperr"
	"cleanops/internal/domain"
)

// Caller is a resolved identity. Role is empty when the credential carried an unknown role.
type Caller struct {
	ID   string
	Role domain.Role
}

type Action string

const (
	ReportCreate          Action = "report.create"
	ReportRead            Action = "report.read"
	ReportListAll         Action = "report.list_all"
	ReportSeverityUpdate  Action = "report.severity.update"
	ReportStatusUpdate    Action = "report.status.update"
	ReportAttentionUpdate Action = "report.attention.update"
	ReportDelete          Action = "report.delete"

	RouteRead          Action = "route.read"
	RouteCreate        Action = "route.create"
	RouteMembersUpdate Action = "route.members.update"
	RouteStatusUpdate  Action = "route.status.update"
	RouteAssign        Action = "route.assign"
	RouteUnassign      Action = "route.unassign"
	RouteComplete      Action = "route.complete"

	WorkerRead   Action = "worker.read"
	WorkerManage Action = "worker.manage"

	BinRequestCreate  Action = "bin_request.create"
	BinRequestRead    Action = "bin_request.read"
	BinRequestListAll Action = "bin_request.list_all"
	BinRequestAdvance Action = "bin_request.advance"
	BinRequestDeny    Action = "bin_request.deny"

	DashboardRead Action = "dashboard.read"
	EventsRead    Action = "events.read"
)

type scope int

const (
	scopeAny scope = iota + 1
	scopeOwn
)

var grants = map[domain.Role]map[Action]scope{
	domain.RoleCitizen: {
		ReportCreate:     scopeOwn,
		ReportRead:       scopeOwn,
		BinRequestCreate: scopeOwn,
		BinRequestRead:   scopeOwn,
	},
	domain.RoleWorker: {
		ReportRead:            scopeAny,
		ReportListAll:         scopeAny,
		ReportSeverityUpdate:  scopeAny,
		ReportStatusUpdate:    scopeAny,
		ReportAttentionUpdate: scopeAny,
		RouteRead:             scopeAny,
		RouteStatusUpdate:     scopeAny,
		RouteAssign:           scopeAny,
		RouteUnassign:         scopeAny,
		RouteComplete:         scopeAny,
		WorkerRead:            scopeAny,
		BinRequestRead:        scopeAny,
		BinRequestListAll:     scopeAny,
		BinRequestAdvance:     scopeAny,
		DashboardRead:         scopeAny,
	},
}

// Authorize decides whether caller may perform action on a resource owned by ownerID.
// An empty ownerID means the caller acts on its own behalf (creation, own listing).
func Authorize(caller Caller, action Action, ownerID string) error {
	if caller.ID == "" {
		return apperr.Unauthorized("authentication required")
	}
	if caller.Role == domain.RoleAdmin {
		return nil
	}
	sc, ok := grants[caller.Role][action]
	if !ok {
		return apperr.Forbidden(string(action))
	}
	if sc == scopeOwn && ownerID != "" && ownerID != caller.ID {
		return apperr.Forbidden(string(action))
	}
	return nil
}

// Can reports whether caller holds action without an owner restriction.
func Can(caller Caller, action Action) bool {
	if caller.ID == "" {
		return false
	}
	if caller.Role == domain.RoleAdmin {
		return true
	}
	return grants[caller.Role][action] == scopeAny
}

// Actions lists the actions granted to role, for display.
func Actions(role domain.Role) []Action {
	if role == domain.RoleAdmin {
		return allActions
	}
	var out []Action
	for _, a := range allActions {
		if _, ok := grants[role][a]; ok {
			out = append(out, a)
		}
	}
	return out
}

var allActions = []Action{
	ReportCreate, ReportRead, ReportListAll, ReportSeverityUpdate, ReportStatusUpdate,
	ReportAttentionUpdate, ReportDelete,
	RouteRead, RouteCreate, RouteMembersUpdate, RouteStatusUpdate, RouteAssign, RouteUnassign, RouteComplete,
	WorkerRead, WorkerManage,
	BinRequestCreate, BinRequestRead, BinRequestListAll, BinRequestAdvance, BinRequestDeny,
	DashboardRead, EventsRead,
}
