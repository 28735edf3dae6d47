package server

import (
	"strconv"

	"cleanops/internal/domain"
)

// Request payloads

type CreateReportRequest struct {
	Address     string  `json:"address"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Description string  `json:"description,omitempty"`
	ImageURL    string  `json:"image_url,omitempty"`
	Severity    string  `json:"severity,omitempty" enum:"low,medium,high"`
}

type UpdateReportRequest struct {
	Severity  *string `json:"severity,omitempty"`
	Status    *string `json:"status,omitempty"`
	Attention *bool   `json:"attention,omitempty"`
}

type CreateBinRequestRequest struct {
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

type AdvanceBinRequestRequest struct {
	Status string `json:"status"`
}

type CreateRouteRequest struct {
	Name      string   `json:"name"`
	Zone      string   `json:"zone,omitempty"`
	ReportIDs []string `json:"report_ids,omitempty"`
}

type UpdateRouteRequest struct {
	MemberReportIDs *[]string `json:"member_report_ids,omitempty"`
	Status          *string   `json:"status,omitempty"`
}

type AssignRouteRequest struct {
	WorkerID string `json:"worker_id"`
}

type CreateWorkerRequest struct {
	IdentityRef string `json:"identity_ref"`
	Name        string `json:"name"`
	Zone        string `json:"zone,omitempty"`
}

type UpdateWorkerRequest struct {
	Active bool `json:"active"`
}

type DevLoginRequest struct {
	ID   string `json:"id"`
	Role string `json:"role,omitempty"`
}

// Responses

type MeResponse struct {
	ID      string   `json:"id"`
	Role    string   `json:"role"`
	Actions []string `json:"actions"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type ReportList struct {
	Items []domain.Report `json:"items"`
}

type BinRequestList struct {
	Items []domain.BinRequest `json:"items"`
}

type RouteList struct {
	Items []domain.Route `json:"items"`
}

type WorkerList struct {
	Items []domain.Worker `json:"items"`
}

type EventList struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// ListQuery carries the paging and scope query parameters shared by list endpoints.
type ListQuery struct {
	Scope  string `query:"scope" enum:"own,all"`
	Limit  int    `query:"limit"`
	Offset int    `query:"offset"`
}

// parseBoolFilter turns an optional "true"/"false" query value into a filter.
func parseBoolFilter(raw string) (*bool, bool) {
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, false
	}
	return &v, true
}

func eventCursor(items []domain.Event) string {
	if len(items) == 0 {
		return ""
	}
	return strconv.FormatInt(items[len(items)-1].ID, 10)
}
