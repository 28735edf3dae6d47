package cleanopssdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Cleanops HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BearerToken: token,
		Timeout:     10 * time.Second,
	}
}

type Location struct {
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// Report represents a citizen report.
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

// Route represents a grouping of reports handled by one worker.
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

type BinRequest struct {
	ID        string   `json:"id"`
	OwnerID   string   `json:"owner_id"`
	Location  Location `json:"location"`
	Status    string   `json:"status"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

type Worker struct {
	ID          string `json:"id"`
	IdentityRef string `json:"identity_ref"`
	Name        string `json:"name"`
	Zone        string `json:"zone,omitempty"`
	Active      bool   `json:"active"`
	CreatedAt   string `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps event listings with the cursor for the next page.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateReport files a report at loc.
func (c *Client) CreateReport(ctx context.Context, loc Location, description, severity string) (Report, error) {
	body := map[string]any{
		"address":     loc.Address,
		"lat":         loc.Lat,
		"lon":         loc.Lon,
		"description": description,
	}
	if severity != "" {
		body["severity"] = severity
	}
	var resp Report
	err := c.do(ctx, http.MethodPost, "reports", body, &resp)
	return resp, err
}

// GetReport fetches a report by id.
func (c *Client) GetReport(ctx context.Context, id string) (Report, error) {
	var resp Report
	err := c.do(ctx, http.MethodGet, "reports/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListReports returns reports; scope is "own" or "all".
func (c *Client) ListReports(ctx context.Context, status, scope string) ([]Report, error) {
	q := url.Values{}
	setQuery(q, "status", status)
	setQuery(q, "scope", scope)
	var resp struct {
		Items []Report `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery("reports", q), nil, &resp)
	return resp.Items, err
}

// SetReportStatus moves a report to status.
func (c *Client) SetReportStatus(ctx context.Context, id, status string) (Report, error) {
	var resp Report
	err := c.do(ctx, http.MethodPatch, "reports/"+url.PathEscape(id), map[string]any{"status": status}, &resp)
	return resp, err
}

// SetReportSeverity changes a report's severity.
func (c *Client) SetReportSeverity(ctx context.Context, id, severity string) (Report, error) {
	var resp Report
	err := c.do(ctx, http.MethodPatch, "reports/"+url.PathEscape(id), map[string]any{"severity": severity}, &resp)
	return resp, err
}

func (c *Client) ResolveReport(ctx context.Context, id string) (Report, error) {
	var resp Report
	err := c.do(ctx, http.MethodPost, "reports/"+url.PathEscape(id)+"/resolve", nil, &resp)
	return resp, err
}

func (c *Client) DeleteReport(ctx context.Context, id string) (Report, error) {
	var resp Report
	err := c.do(ctx, http.MethodDelete, "reports/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// CreateRoute creates a planned route over reportIDs.
func (c *Client) CreateRoute(ctx context.Context, name, zone string, reportIDs []string) (Route, error) {
	body := map[string]any{
		"name":       name,
		"zone":       zone,
		"report_ids": reportIDs,
	}
	var resp Route
	err := c.do(ctx, http.MethodPost, "routes", body, &resp)
	return resp, err
}

func (c *Client) GetRoute(ctx context.Context, id string) (Route, error) {
	var resp Route
	err := c.do(ctx, http.MethodGet, "routes/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// SetRouteMembers replaces a route's member reports.
func (c *Client) SetRouteMembers(ctx context.Context, id string, reportIDs []string) (Route, error) {
	if reportIDs == nil {
		reportIDs = []string{}
	}
	var resp Route
	err := c.do(ctx, http.MethodPatch, "routes/"+url.PathEscape(id), map[string]any{"member_report_ids": reportIDs}, &resp)
	return resp, err
}

// AssignRoute hands a route to a worker. A concurrent assignment loses with
// a 409 APIError.
func (c *Client) AssignRoute(ctx context.Context, id, workerID string) (Route, error) {
	var resp Route
	err := c.do(ctx, http.MethodPost, "routes/"+url.PathEscape(id)+"/assign", map[string]any{"worker_id": workerID}, &resp)
	return resp, err
}

func (c *Client) UnassignRoute(ctx context.Context, id string) (Route, error) {
	var resp Route
	err := c.do(ctx, http.MethodPost, "routes/"+url.PathEscape(id)+"/unassign", nil, &resp)
	return resp, err
}

func (c *Client) CompleteRoute(ctx context.Context, id string) (Route, error) {
	var resp Route
	err := c.do(ctx, http.MethodPost, "routes/"+url.PathEscape(id)+"/complete", nil, &resp)
	return resp, err
}

// CreateBinRequest asks for a bin at loc.
func (c *Client) CreateBinRequest(ctx context.Context, loc Location) (BinRequest, error) {
	var resp BinRequest
	err := c.do(ctx, http.MethodPost, "bin-requests", loc, &resp)
	return resp, err
}

// AdvanceBinRequest moves a bin request to status. Passing "denied" denies it.
func (c *Client) AdvanceBinRequest(ctx context.Context, id, status string) (BinRequest, error) {
	var resp BinRequest
	err := c.do(ctx, http.MethodPatch, "bin-requests/"+url.PathEscape(id), map[string]any{"status": status}, &resp)
	return resp, err
}

// CreateWorker registers a field worker.
func (c *Client) CreateWorker(ctx context.Context, identityRef, name, zone string) (Worker, error) {
	body := map[string]any{
		"identity_ref": identityRef,
		"name":         name,
		"zone":         zone,
	}
	var resp Worker
	err := c.do(ctx, http.MethodPost, "workers", body, &resp)
	return resp, err
}

// EventsPage returns events with ids greater than after.
func (c *Client) EventsPage(ctx context.Context, after int64, limit int) (PaginatedEvents, error) {
	q := url.Values{}
	if after > 0 {
		q.Set("after", strconv.FormatInt(after, 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery("events", q), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/v0/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

func setQuery(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}
