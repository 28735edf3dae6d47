package domain

import "strings"

// TimeLayout is the fixed-width UTC layout used for every stored timestamp,
// so string order matches time order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// EntityKind names the entities that carry a status lifecycle.
type EntityKind string

const (
	KindReport     EntityKind = "report"
	KindRoute      EntityKind = "route"
	KindBinRequest EntityKind = "bin_request"
	KindWorker     EntityKind = "worker"
)

// Report statuses.
const (
	ReportOpen       = "open"
	ReportInReview   = "in_review"
	ReportDispatched = "dispatched"
	ReportResolved   = "resolved"
	ReportDeleted    = "deleted"
)

// Report severities.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Route statuses. RouteCompleted is only ever derived from member reports.
const (
	RoutePlanned    = "planned"
	RouteAssigned   = "assigned"
	RouteInProgress = "in_progress"
	RouteCompleted  = "completed"
)

// BinRequest statuses.
const (
	BinRequested  = "requested"
	BinApproved   = "approved"
	BinInProgress = "in_progress"
	BinCompleted  = "completed"
	BinDenied     = "denied"
)

// Role is the closed set of caller roles.
type Role string

const (
	RoleCitizen Role = "citizen"
	RoleWorker  Role = "worker"
	RoleAdmin   Role = "admin"
)

// ParseRole validates a role literal coming from a credential.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleCitizen:
		return RoleCitizen, true
	case RoleWorker:
		return RoleWorker, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

type Location struct {
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

type Report struct {
	ID          string   `json:"id"`
	OwnerID     string   `json:"owner_id"`
	Location    Location `json:"location"`
	Description string   `json:"description,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
	Severity    string   `json:"severity"`
	Status      string   `json:"status"`
	Attention   bool     `json:"attention"`
	RouteID     string   `json:"route_id,omitempty"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

type Route struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Zone            string   `json:"zone,omitempty"`
	MemberReportIDs []string `json:"member_report_ids"`
	WorkerID        string   `json:"worker_id,omitempty"`
	WorkerName      string   `json:"worker_name,omitempty"`
	Status          string   `json:"status"`
	StopCount       int      `json:"stop_count"`
	Version         int64    `json:"version"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
}

type Worker struct {
	ID          string `json:"id"`
	IdentityRef string `json:"identity_ref"`
	Name        string `json:"name"`
	Zone        string `json:"zone,omitempty"`
	Active      bool   `json:"active"`
	CreatedAt   string `json:"created_at"`
}

type BinRequest struct {
	ID        string   `json:"id"`
	OwnerID   string   `json:"owner_id"`
	Location  Location `json:"location"`
	Status    string   `json:"status"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// Overview is the dashboard summary.
type Overview struct {
	TotalReports        int            `json:"total_reports"`
	ResolvedReports     int            `json:"resolved_reports"`
	PendingReports      int            `json:"pending_reports"`
	AttentionReports    int            `json:"attention_reports"`
	Workers             int            `json:"workers"`
	ActiveWorkers       int            `json:"active_workers"`
	RoutesByStatus      map[string]int `json:"routes_by_status"`
	BinRequestsByStatus map[string]int `json:"bin_requests_by_status"`
}
