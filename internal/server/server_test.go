package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"cleanops/internal/config"
	"cleanops/internal/db"
	"cleanops/internal/domain"
	"cleanops/internal/engine"
	"cleanops/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	Auth   AuthConfig
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func (s *testServer) token(t *testing.T, id, role string) map[string]string {
	t.Helper()
	tok, err := SignToken(s.Auth, id, role)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + tok}
}

func newTestServer(t *testing.T, devLogin bool) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "cleanops.db")})
	require.NoError(t, err)
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	cfg := config.Default()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := engine.New(conn, cfg)
	e.Logger = logger
	authCfg := AuthConfig{JWTSecret: testSecret, DevLogin: devLogin}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: authCfg, Logger: logger})
	require.NoError(t, err)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	s := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		Auth:   authCfg,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(s.Close)
	return s
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

type errorEnvelope struct {
	Error apiErrorBody `json:"error"`
}

func requireError(t *testing.T, res *http.Response, data []byte, status int, code string) errorEnvelope {
	t.Helper()
	require.Equal(t, status, res.StatusCode, string(data))
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	require.Equal(t, code, env.Error.Code, string(data))
	require.NotEmpty(t, env.Error.Message)
	return env
}

func decode[T any](t *testing.T, res *http.Response, data []byte, status int) T {
	t.Helper()
	require.Equal(t, status, res.StatusCode, string(data))
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestHealthIsPublicAndAPIRequiresToken(t *testing.T) {
	srv := newTestServer(t, false)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/reports", nil, nil)
	requireError(t, res, data, http.StatusUnauthorized, "unauthorized")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/reports", nil, map[string]string{"Authorization": "Bearer nope"})
	requireError(t, res, data, http.StatusUnauthorized, "unauthorized")

	other, err := SignToken(AuthConfig{JWTSecret: "other"}, "citizen-1", "citizen")
	require.NoError(t, err)
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/reports", nil, map[string]string{"Authorization": "Bearer " + other})
	requireError(t, res, data, http.StatusUnauthorized, "unauthorized")
}

func TestMeAndUnknownRole(t *testing.T) {
	srv := newTestServer(t, false)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, srv.token(t, "worker-1", "worker"))
	me := decode[MeResponse](t, res, data, http.StatusOK)
	require.Equal(t, "worker-1", me.ID)
	require.Equal(t, "worker", me.Role)
	require.Contains(t, me.Actions, "route.assign")

	mayor := srv.token(t, "mayor-1", "mayor")
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, mayor)
	me = decode[MeResponse](t, res, data, http.StatusOK)
	require.Empty(t, me.Role)
	require.Empty(t, me.Actions)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/reports", map[string]any{
		"address": "1 Main St", "lat": 1, "lon": 1,
	}, mayor)
	requireError(t, res, data, http.StatusForbidden, "forbidden")
}

func TestDevLogin(t *testing.T) {
	off := newTestServer(t, false)
	res, data := doJSON(t, off.Client(), http.MethodPost, off.URL+"/v0/auth/dev/login", map[string]any{"id": "a", "role": "admin"}, nil)
	requireError(t, res, data, http.StatusNotFound, "not_found")

	on := newTestServer(t, true)
	res, data = doJSON(t, on.Client(), http.MethodPost, on.URL+"/v0/auth/dev/login", map[string]any{"id": "admin-1", "role": "admin"}, nil)
	login := decode[DevLoginResponse](t, res, data, http.StatusOK)
	require.NotEmpty(t, login.Token)

	res, data = doJSON(t, on.Client(), http.MethodGet, on.URL+"/v0/me", nil, map[string]string{"Authorization": "Bearer " + login.Token})
	me := decode[MeResponse](t, res, data, http.StatusOK)
	require.Equal(t, "admin", me.Role)
}

func TestReportLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, false)
	client := srv.Client()
	citizen := srv.token(t, "citizen-1", "citizen")
	worker := srv.token(t, "worker-1", "worker")
	admin := srv.token(t, "admin-1", "admin")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/reports", map[string]any{
		"address": "1 Main St", "lat": 91, "lon": 1,
	}, citizen)
	requireError(t, res, data, http.StatusBadRequest, "validation_error")

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/reports", map[string]any{
		"address": "1 Main St", "lat": 45.1, "lon": 7.6, "description": "spilled bags",
	}, citizen)
	rep := decode[domain.Report](t, res, data, http.StatusCreated)
	require.Equal(t, domain.ReportOpen, rep.Status)
	require.True(t, rep.Attention)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/reports/"+rep.ID, nil, srv.token(t, "citizen-2", "citizen"))
	requireError(t, res, data, http.StatusForbidden, "forbidden")

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/reports/"+rep.ID, map[string]any{"severity": "high"}, citizen)
	requireError(t, res, data, http.StatusForbidden, "forbidden")

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/reports/"+rep.ID, map[string]any{"severity": "high", "status": "in_review"}, worker)
	rep = decode[domain.Report](t, res, data, http.StatusOK)
	require.Equal(t, domain.SeverityHigh, rep.Severity)
	require.Equal(t, domain.ReportInReview, rep.Status)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/reports/"+rep.ID+"/resolve", nil, worker)
	rep = decode[domain.Report](t, res, data, http.StatusOK)
	require.Equal(t, domain.ReportResolved, rep.Status)

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/reports/"+rep.ID, map[string]any{"status": "open"}, worker)
	env := requireError(t, res, data, http.StatusUnprocessableEntity, "invalid_transition")
	require.Equal(t, "resolved", env.Error.Details["from"])

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/reports/"+rep.ID, nil, admin)
	rep = decode[domain.Report](t, res, data, http.StatusOK)
	require.Equal(t, domain.ReportDeleted, rep.Status)

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/reports/"+rep.ID, nil, admin)
	requireError(t, res, data, http.StatusNotFound, "not_found")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/reports?scope=all", nil, worker)
	list := decode[ReportList](t, res, data, http.StatusOK)
	require.Empty(t, list.Items, "deleted reports are hidden from listings")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/reports?offset=-1", nil, worker)
	requireError(t, res, data, http.StatusBadRequest, "validation_error")
}

func TestRouteFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t, false)
	client := srv.Client()
	citizen := srv.token(t, "citizen-1", "citizen")
	worker := srv.token(t, "worker-1", "worker")
	admin := srv.token(t, "admin-1", "admin")

	var reportIDs []string
	for i := 0; i < 2; i++ {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/reports", map[string]any{
			"address": "2 Side St", "lat": 10, "lon": 10,
		}, citizen)
		reportIDs = append(reportIDs, decode[domain.Report](t, res, data, http.StatusCreated).ID)
	}

	var workerIDs []string
	for _, ref := range []string{"w-1", "w-2"} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/workers", map[string]any{
			"identity_ref": ref, "name": "Crew " + ref,
		}, admin)
		workerIDs = append(workerIDs, decode[domain.Worker](t, res, data, http.StatusCreated).ID)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/routes", map[string]any{"name": "North loop"}, worker)
	requireError(t, res, data, http.StatusForbidden, "forbidden")

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/routes", map[string]any{"name": "North loop"}, admin)
	rt := decode[domain.Route](t, res, data, http.StatusCreated)
	require.Empty(t, rt.MemberReportIDs)

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/routes/"+rt.ID, map[string]any{"member_report_ids": reportIDs}, admin)
	rt = decode[domain.Route](t, res, data, http.StatusOK)
	require.Equal(t, reportIDs, rt.MemberReportIDs)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/routes", map[string]any{"name": "Other", "report_ids": reportIDs[:1]}, admin)
	requireError(t, res, data, http.StatusConflict, "conflict")

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/routes/"+rt.ID+"/assign", map[string]any{"worker_id": workerIDs[0]}, worker)
	rt = decode[domain.Route](t, res, data, http.StatusOK)
	require.Equal(t, domain.RouteAssigned, rt.Status)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/routes/"+rt.ID+"/assign", map[string]any{"worker_id": workerIDs[1]}, worker)
	requireError(t, res, data, http.StatusConflict, "conflict")

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/routes/"+rt.ID+"/unassign", nil, worker)
	rt = decode[domain.Route](t, res, data, http.StatusOK)
	require.Equal(t, domain.RoutePlanned, rt.Status)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/routes/"+rt.ID+"/assign", map[string]any{"worker_id": workerIDs[1]}, worker)
	rt = decode[domain.Route](t, res, data, http.StatusOK)
	require.Equal(t, workerIDs[1], rt.WorkerID)

	for _, id := range reportIDs {
		res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/reports/"+id+"/resolve", nil, worker)
		require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/routes/"+rt.ID, nil, worker)
	rt = decode[domain.Route](t, res, data, http.StatusOK)
	require.Equal(t, domain.RouteCompleted, rt.Status)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?entity_kind=route&entity_id="+rt.ID, nil, admin)
	events := decode[EventList](t, res, data, http.StatusOK)
	completions := 0
	for _, evt := range events.Items {
		if evt.Type == "route.status.changed" && evt.Payload["to"] == domain.RouteCompleted {
			completions++
		}
	}
	require.Equal(t, 1, completions)
	require.NotEmpty(t, events.NextCursor)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/dashboard", nil, worker)
	ov := decode[domain.Overview](t, res, data, http.StatusOK)
	require.Equal(t, 2, ov.ResolvedReports)
	require.Equal(t, 1, ov.RoutesByStatus[domain.RouteCompleted])

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/routes/"+rt.ID, map[string]any{}, admin)
	requireError(t, res, data, http.StatusBadRequest, "validation_error")
}

func TestRejectedPatchWritesNothing(t *testing.T) {
	srv := newTestServer(t, false)
	client := srv.Client()
	citizen := srv.token(t, "citizen-1", "citizen")
	worker := srv.token(t, "worker-1", "worker")
	admin := srv.token(t, "admin-1", "admin")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/reports", map[string]any{
		"address": "3 Elm St", "lat": 1, "lon": 1,
	}, citizen)
	rep := decode[domain.Report](t, res, data, http.StatusCreated)
	require.Equal(t, domain.SeverityMedium, rep.Severity)

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/reports/"+rep.ID, map[string]any{"severity": "high", "status": "deleted"}, worker)
	requireError(t, res, data, http.StatusForbidden, "forbidden")
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/reports/"+rep.ID, nil, worker)
	got := decode[domain.Report](t, res, data, http.StatusOK)
	require.Equal(t, domain.SeverityMedium, got.Severity)
	require.Equal(t, domain.ReportOpen, got.Status)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/reports/"+rep.ID+"/resolve", nil, worker)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/reports/"+rep.ID, map[string]any{"severity": "low", "attention": false, "status": "open"}, worker)
	requireError(t, res, data, http.StatusUnprocessableEntity, "invalid_transition")
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/reports/"+rep.ID, nil, worker)
	got = decode[domain.Report](t, res, data, http.StatusOK)
	require.Equal(t, domain.SeverityMedium, got.Severity)
	require.Equal(t, domain.ReportResolved, got.Status)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/reports", map[string]any{
		"address": "4 Elm St", "lat": 1, "lon": 1,
	}, citizen)
	other := decode[domain.Report](t, res, data, http.StatusCreated)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/routes", map[string]any{"name": "Elm"}, admin)
	rt := decode[domain.Route](t, res, data, http.StatusCreated)

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/routes/"+rt.ID, map[string]any{
		"member_report_ids": []string{other.ID}, "status": "in_progress",
	}, admin)
	requireError(t, res, data, http.StatusBadRequest, "validation_error")
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/routes/"+rt.ID, nil, admin)
	rt = decode[domain.Route](t, res, data, http.StatusOK)
	require.Empty(t, rt.MemberReportIDs)
	require.EqualValues(t, 1, rt.Version)

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/routes/"+rt.ID, map[string]any{"member_report_ids": []string{other.ID}}, admin)
	rt = decode[domain.Route](t, res, data, http.StatusOK)
	require.Equal(t, []string{other.ID}, rt.MemberReportIDs)

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/routes/"+rt.ID, map[string]any{"member_report_ids": []string{}}, admin)
	rt = decode[domain.Route](t, res, data, http.StatusOK)
	require.Empty(t, rt.MemberReportIDs)
	require.Zero(t, rt.StopCount)
}

func TestConcurrentAssignOverHTTP(t *testing.T) {
	srv := newTestServer(t, false)
	client := srv.Client()
	admin := srv.token(t, "admin-1", "admin")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/routes", map[string]any{"name": "Race"}, admin)
	rt := decode[domain.Route](t, res, data, http.StatusCreated)
	var workerIDs []string
	for _, ref := range []string{"w-1", "w-2"} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/workers", map[string]any{"identity_ref": ref, "name": ref}, admin)
		workerIDs = append(workerIDs, decode[domain.Worker](t, res, data, http.StatusCreated).ID)
	}

	statuses := make([]int, len(workerIDs))
	var wg sync.WaitGroup
	for i, id := range workerIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			res, _ := doJSON(t, client, http.MethodPost, srv.URL+"/v0/routes/"+rt.ID+"/assign", map[string]any{"worker_id": id}, admin)
			statuses[i] = res.StatusCode
		}(i, id)
	}
	wg.Wait()
	require.ElementsMatch(t, []int{http.StatusOK, http.StatusConflict}, statuses)
}

func TestBinRequestsOverHTTP(t *testing.T) {
	srv := newTestServer(t, false)
	client := srv.Client()
	citizen := srv.token(t, "citizen-1", "citizen")
	worker := srv.token(t, "worker-1", "worker")
	admin := srv.token(t, "admin-1", "admin")

	create := func() domain.BinRequest {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/bin-requests", map[string]any{
			"address": "9 Elm", "lat": 90, "lon": 180,
		}, citizen)
		return decode[domain.BinRequest](t, res, data, http.StatusCreated)
	}
	b := create()
	require.Equal(t, domain.BinRequested, b.Status)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/bin-requests", map[string]any{
		"address": "9 Elm", "lat": 0, "lon": -181,
	}, citizen)
	requireError(t, res, data, http.StatusBadRequest, "validation_error")

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/bin-requests/"+b.ID, map[string]any{"status": "in_progress"}, worker)
	requireError(t, res, data, http.StatusUnprocessableEntity, "invalid_transition")

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/bin-requests/"+b.ID, map[string]any{"status": "approved"}, worker)
	b = decode[domain.BinRequest](t, res, data, http.StatusOK)
	require.Equal(t, domain.BinApproved, b.Status)

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/bin-requests/"+b.ID, nil, admin)
	requireError(t, res, data, http.StatusUnprocessableEntity, "invalid_transition")

	pending := create()
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/bin-requests/"+pending.ID, map[string]any{"status": "denied"}, admin)
	denied := decode[domain.BinRequest](t, res, data, http.StatusOK)
	require.Equal(t, domain.BinDenied, denied.Status)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/bin-requests/"+pending.ID, nil, admin)
	requireError(t, res, data, http.StatusNotFound, "not_found")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/bin-requests?scope=all", nil, citizen)
	list := decode[BinRequestList](t, res, data, http.StatusOK)
	require.Len(t, list.Items, 1)
}

func TestOpenAPIDocument(t *testing.T) {
	srv := newTestServer(t, false)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, paths, "/v0/routes/{id}/assign")

	var typed struct {
		Components struct {
			SecuritySchemes map[string]any `json:"securitySchemes"`
			Schemas         map[string]any `json:"schemas"`
		} `json:"components"`
		Paths map[string]map[string]struct {
			Security []map[string][]string `json:"security"`
		} `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(data, &typed))
	require.Contains(t, typed.Components.SecuritySchemes, "bearerAuth")
	require.Contains(t, typed.Components.Schemas, "ApiError")
	require.Empty(t, typed.Paths["/v0/health"]["get"].Security)
	require.Equal(t, []map[string][]string{{"bearerAuth": {}}}, typed.Paths["/v0/reports"]["post"].Security)
}

func TestWebhookDispatcherSignsBatches(t *testing.T) {
	srv := newTestServer(t, false)
	type delivery struct {
		signature string
		body      []byte
	}
	var mu sync.Mutex
	var got []delivery
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, delivery{signature: r.Header.Get(signatureHeader), body: body})
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	d := NewWebhookDispatcher(srv.Engine.Repo, []config.WebhookConfig{{
		URL:        hook.URL,
		Secret:     "hook-secret",
		EventTypes: []string{"report.created"},
	}}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	citizen := srv.token(t, "citizen-1", "citizen")
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/reports", map[string]any{"address": "old", "lat": 1, "lon": 1}, citizen)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	d.DispatchAll(ctx)
	mu.Lock()
	require.Empty(t, got, "events before the first run are not replayed")
	mu.Unlock()

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/reports", map[string]any{"address": "new", "lat": 1, "lon": 1}, citizen)
	rep := decode[domain.Report](t, res, data, http.StatusCreated)
	res, data = doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v0/reports/"+rep.ID, map[string]any{"severity": "low"}, srv.token(t, "w", "worker"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	d.DispatchAll(ctx)
	d.DispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	require.Equal(t, Sign("hook-secret", got[0].body), got[0].signature)
	var batch webhookBatch
	require.NoError(t, json.Unmarshal(got[0].body, &batch))
	require.Len(t, batch.Events, 1)
	require.Equal(t, "report.created", batch.Events[0].Type)
	require.Equal(t, rep.ID, batch.Events[0].EntityID)
}
