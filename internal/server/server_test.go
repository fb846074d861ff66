package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"fieldline/internal/complaints"
	"fieldline/internal/config"
	"fieldline/internal/db"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/evidence"
	"fieldline/internal/migrate"
	"fieldline/internal/notify"
	"fieldline/internal/repo"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := engine.New(conn, cfg, notify.LogNotifier{CountryCode: "254", Logger: logger}, evidence.FSBlobs{Dir: t.TempDir()}, logger)
	ctx := context.Background()
	if _, err := e.EnsureAdmin(ctx, "admin", "+254700000001"); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	if _, err := e.AddWorker(ctx, engine.WorkerCreateOptions{Username: "jdoe", PhoneNumber: "0712345678", ActorID: "admin"}); err != nil {
		t.Fatalf("seed worker: %v", err)
	}
	handler, err := New(Config{
		Engine:     e,
		Complaints: complaints.Aggregator{Repo: e.Repo, Audit: e.Audit, Evidence: e.Evidence},
		BasePath:   "/v1",
		Auth:       AuthConfig{JWTSecret: testSecret, DevLogin: true},
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func bearer(t *testing.T, username, role string) map[string]string {
	t.Helper()
	token, err := MintToken(testSecret, username, role, time.Hour)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return do(t, client, req)
}

type upload struct {
	Field       string
	Name        string
	ContentType string
	Data        []byte
}

func doMultipart(t *testing.T, client *http.Client, url string, fields map[string]string, files []upload, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, f.Name))
		h.Set("Content-Type", f.ContentType)
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		part.Write(f.Data)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return do(t, client, req)
}

func do(t *testing.T, client *http.Client, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestHealthIsPublicAndAPIRequiresAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/admin/tasks", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/admin/tasks", nil, map[string]string{"Authorization": "Bearer garbage"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d %s", res.StatusCode, string(body))
	}
}

func TestAssignAcknowledgeAndUploadEvidence(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	admin := bearer(t, "admin", domain.RoleAdmin)
	worker := bearer(t, "jdoe", domain.RoleWorker)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/admin/tasks", map[string]any{
		"title":       "Repair leak",
		"description": "Kitchen sink",
		"assigned_to": "jdoe",
	}, admin)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", res.StatusCode, string(data))
	}
	var created TaskResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if created.Status != domain.TaskPending || created.AssignedBy != "admin" {
		t.Fatalf("unexpected task: %+v", created)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/admin/tasks", map[string]any{
		"title": "Second", "assigned_to": "jdoe",
	}, admin)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/worker/tasks/"+created.ID+"/acknowledge", nil, worker)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("acknowledge: %d %s", res.StatusCode, string(data))
	}

	res, data = doMultipart(t, client, srv.URL+"/v1/worker/tasks/"+created.ID+"/evidence", nil, []upload{
		{Field: "files", Name: "notes.txt", ContentType: "text/plain", Data: []byte("hi")},
	}, worker)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-image, got %d %s", res.StatusCode, string(data))
	}

	res, data = doMultipart(t, client, srv.URL+"/v1/worker/tasks/"+created.ID+"/evidence", nil, []upload{
		{Field: "files", Name: "before.png", ContentType: "image/png", Data: []byte("png")},
		{Field: "files", Name: "after.jpg", ContentType: "image/jpeg", Data: []byte("jpg")},
	}, worker)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("upload evidence: %d %s", res.StatusCode, string(data))
	}
	var completed TaskResponse
	if err := json.Unmarshal(data, &completed); err != nil {
		t.Fatalf("unmarshal completed: %v", err)
	}
	if completed.Status != domain.TaskCompleted || len(completed.Evidence) != 2 {
		t.Fatalf("expected completed with 2 evidence, got %+v", completed)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/admin/tasks/"+created.ID+"/reset", map[string]any{}, admin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reset: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/admin/tasks/"+created.ID, nil, admin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get task: %d %s", res.StatusCode, string(data))
	}
	var reset TaskResponse
	_ = json.Unmarshal(data, &reset)
	if reset.Status != domain.TaskPending || len(reset.Evidence) != 0 {
		t.Fatalf("expected pending without evidence, got %+v", reset)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/admin/audit-logs?action=task_reset", nil, admin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("audit logs: %d %s", res.StatusCode, string(data))
	}
	var page paginatedAudit
	_ = json.Unmarshal(data, &page)
	if len(page.Items) != 1 || page.Items[0].UserID != "admin" {
		t.Fatalf("expected one task_reset entry, got %+v", page.Items)
	}
}

func TestWorkerForbiddenOnAdminRoutes(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	worker := bearer(t, "jdoe", domain.RoleWorker)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/admin/tasks", map[string]any{
		"title": "Self-assigned", "assigned_to": "jdoe",
	}, worker)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	_ = json.Unmarshal(data, &envelope)
	if envelope.Error.Details["permission"] != "task.create" {
		t.Fatalf("expected permission detail, got %s", string(data))
	}
}

func TestAcknowledgeOthersTaskForbidden(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	ctx := context.Background()
	if _, err := srv.Engine.AddWorker(ctx, engine.WorkerCreateOptions{Username: "asmith", PhoneNumber: "0722000111", ActorID: "admin"}); err != nil {
		t.Fatalf("add worker: %v", err)
	}
	task, err := srv.Engine.CreateTask(ctx, engine.TaskCreateOptions{Title: "Paint", AssignedTo: "jdoe", AssignedBy: "admin"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/worker/tasks/"+task.ID+"/acknowledge", nil, bearer(t, "asmith", domain.RoleWorker))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/worker/tasks/missing/acknowledge", nil, bearer(t, "jdoe", domain.RoleWorker))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
}

func TestComplaintsAcrossBothKinds(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	admin := bearer(t, "admin", domain.RoleAdmin)

	res, data := doMultipart(t, client, srv.URL+"/v1/complaints", map[string]string{
		"description": "Crew left debris",
		"category":    "poor_quality",
		"location":    "Kilimani",
	}, []upload{{Field: "file", Name: "debris.gif", ContentType: "image/gif", Data: []byte("gif")}}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit complaint: %d %s", res.StatusCode, string(data))
	}
	var general domain.GeneralComplaint
	_ = json.Unmarshal(data, &general)
	if general.Evidence == nil {
		t.Fatalf("expected stored evidence reference: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/worker/complaints", map[string]any{"description": "No gloves"}, bearer(t, "jdoe", domain.RoleWorker))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("employee complaint: %d %s", res.StatusCode, string(data))
	}
	var employee domain.EmployeeComplaint
	_ = json.Unmarshal(data, &employee)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/admin/complaints", nil, admin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list complaints: %d %s", res.StatusCode, string(data))
	}
	var views []domain.ComplaintView
	_ = json.Unmarshal(data, &views)
	if len(views) != 2 {
		t.Fatalf("expected 2 complaints, got %d", len(views))
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/admin/complaints/"+employee.ID+"/status", map[string]any{"status": "resolved"}, admin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set status: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/complaints/"+general.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get complaint: %d %s", res.StatusCode, string(data))
	}
	var view domain.ComplaintView
	_ = json.Unmarshal(data, &view)
	if view.Status != domain.ComplaintPending {
		t.Fatalf("general complaint should be untouched, got %s", view.Status)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/admin/complaints/7d8a3c52-0c1e-4a5e-9a51-1f0e4d2b6c11/status", map[string]any{"status": "resolved"}, admin)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
}

func TestPublicComplaintLookupHidesEmployeeComplaints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/worker/complaints", map[string]any{"description": "Supervisor harasses me"}, bearer(t, "jdoe", domain.RoleWorker))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("employee complaint: %d %s", res.StatusCode, string(data))
	}
	var employee domain.EmployeeComplaint
	_ = json.Unmarshal(data, &employee)
	if employee.ID == "" {
		t.Fatalf("expected complaint id: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/complaints/"+employee.ID, nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
	if strings.Contains(string(data), "jdoe") || strings.Contains(string(data), "harasses") {
		t.Fatalf("response leaks the employee complaint: %s", string(data))
	}
}

func TestDevLoginAndLogout(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{"username": "jdoe"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	_ = json.Unmarshal(data, &login)
	headers := map[string]string{"Authorization": "Bearer " + login.Token}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me: %d %s", res.StatusCode, string(data))
	}
	var who WhoAmIResponse
	_ = json.Unmarshal(data, &who)
	if who.Username != "jdoe" || who.Role != domain.RoleWorker {
		t.Fatalf("unexpected principal: %+v", who)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/logout", nil, headers)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("logout: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, headers)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected revoked token to fail, got %d %s", res.StatusCode, string(data))
	}
}

func TestAPIKeyAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	key := "fl_test_key"
	err := srv.Engine.Repo.InsertAPIKey(context.Background(), nil, domain.APIKey{
		ID: "key-1", Username: "admin", Name: "ci", KeyHash: repo.HashAPIKey(key), CreatedAt: "2024-01-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("insert api key: %v", err)
	}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/admin/workers", nil, map[string]string{"X-Api-Key": key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list workers: %d %s", res.StatusCode, string(data))
	}
	var workers []WorkerResponse
	_ = json.Unmarshal(data, &workers)
	if len(workers) != 1 || workers[0].Username != "jdoe" {
		t.Fatalf("unexpected workers: %s", string(data))
	}
}

func TestWebhookDispatcherForwardsNewAuditEntries(t *testing.T) {
	var (
		mu      sync.Mutex
		actions []string
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Fieldline-Secret") != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var entry domain.AuditEntry
		_ = json.NewDecoder(r.Body).Decode(&entry)
		mu.Lock()
		actions = append(actions, string(entry.Action))
		mu.Unlock()
	}))
	defer hook.Close()

	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()
	d := newWebhookDispatcher(srv.Engine.Repo, []config.WebhookConfig{{
		URL: hook.URL, Secret: "s3cret", Actions: []string{string(domain.ActionCreatedTask)},
	}}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	// entries from setup are before the cursor
	d.dispatchAll(ctx)

	if _, err := srv.Engine.CreateTask(ctx, engine.TaskCreateOptions{Title: "Paint", AssignedTo: "jdoe", AssignedBy: "admin"}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(actions) != 1 || actions[0] != string(domain.ActionCreatedTask) {
		t.Fatalf("expected one created_task delivery, got %v", actions)
	}
}
