package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"worknest/internal/db"
	"worknest/internal/directory"
	"worknest/internal/engine"
	"worknest/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, directory.Static{
		"emp-1": {ID: "emp-1", FirstName: "Ada", LastName: "Lovelace", Role: "ROLE_EMPLOYEE"},
	})
	handler, err := New(Config{Engine: e, BasePath: "/api", Auth: AuthConfig{JWTSecret: testSecret}})
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
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func signToken(t *testing.T, userID, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func asUser(t *testing.T, userID, role string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + signToken(t, userID, role)}
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

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/api/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/api/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should bypass auth, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/api/projects", nil, map[string]string{"Authorization": "Bearer garbage"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token should be 401, got %d", res.StatusCode)
	}
}

func TestProjectCRUDFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	mgr := asUser(t, "manager-1", "ROLE_MANAGER")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/projects", map[string]any{
		"name":        "Launch Plan",
		"employeeIds": []string{"emp-1"},
	}, mgr)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project: %d %s", res.StatusCode, string(data))
	}
	var created ProjectResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.Name != "launch plan" {
		t.Fatalf("name should be normalized, got %q", created.Name)
	}
	if created.CreatedBy != "manager-1" {
		t.Fatalf("createdBy should be the caller, got %q", created.CreatedBy)
	}

	// A second create with the same name in another case is a conflict.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/projects", map[string]any{"name": "LAUNCH PLAN"}, mgr)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}

	// The member employee sees the project; a stranger does not.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/projects/"+created.ID, nil, asUser(t, "emp-1", "ROLE_EMPLOYEE"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("member get: %d %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/api/projects/"+created.ID, nil, asUser(t, "emp-2", "ROLE_EMPLOYEE"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("stranger get should be 404, got %d", res.StatusCode)
	}

	// Patch, then delete.
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/api/projects/"+created.ID, map[string]any{"description": "q3"}, mgr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/api/projects/"+created.ID, map[string]any{}, mgr)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty patch should be 400, got %d %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/api/projects/"+created.ID, nil, mgr)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/api/projects/"+created.ID, nil, mgr)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted project should be gone, got %d", res.StatusCode)
	}
}

func TestListEnvelopeAndFallbacks(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	adm := asUser(t, "admin-1", "ROLE_ADMIN")

	for _, name := range []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta"} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/projects", map[string]any{"name": name}, adm)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create %s: %d %s", name, res.StatusCode, string(data))
		}
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/api/projects?limit=5&sortField=name&sortOrder=asc", nil, adm)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %s", res.StatusCode, string(data))
	}
	var envelope Paginated[ProjectResponse]
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if envelope.TotalCount != 6 || envelope.TotalPages != 2 || len(envelope.Data) != 5 {
		t.Fatalf("expected 6 total over 2 pages with 5 items, got %+v", envelope)
	}
	if envelope.Data[0].Name != "alpha" {
		t.Fatalf("sort by name asc, got %q first", envelope.Data[0].Name)
	}

	// Nonsense pagination and sort fall back silently instead of erroring.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/projects?page=bananas&limit=-2&sortField=shoeSize", nil, adm)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("fallback list: %d %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if envelope.Page != 1 || envelope.Limit != 10 {
		t.Fatalf("expected default page/limit, got %d/%d", envelope.Page, envelope.Limit)
	}

	// Substring filter.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/projects?name=ET", nil, adm)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("filter list: %d %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if envelope.TotalCount != 2 { // beta, zeta
		t.Fatalf("expected 2 matches, got %d", envelope.TotalCount)
	}
}

func TestTaskFlowWithEnrichment(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	adm := asUser(t, "admin-1", "ROLE_ADMIN")

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/projects", map[string]any{
		"name":        "board",
		"employeeIds": []string{"emp-1"},
	}, adm)
	var project ProjectResponse
	_ = json.Unmarshal(data, &project)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/stages", map[string]any{
		"projectId": project.ID, "name": "todo", "position": 0,
	}, adm)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create stage: %d %s", res.StatusCode, string(data))
	}
	var todo StageResponse
	_ = json.Unmarshal(data, &todo)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/stages", map[string]any{
		"projectId": project.ID, "name": "doing", "position": 1,
	}, adm)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create stage: %d %s", res.StatusCode, string(data))
	}
	var doing StageResponse
	_ = json.Unmarshal(data, &doing)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/tasks", map[string]any{
		"projectId": project.ID, "stageId": todo.ID, "title": "write docs", "assignedTo": "emp-1",
	}, adm)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", res.StatusCode, string(data))
	}
	var task TaskResponse
	_ = json.Unmarshal(data, &task)
	if task.Priority != "MEDIUM" {
		t.Fatalf("expected default priority, got %q", task.Priority)
	}

	// Reads resolve the assignee against the directory.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/tasks/"+task.ID, nil, adm)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get task: %d %s", res.StatusCode, string(data))
	}
	var fetched TaskResponse
	_ = json.Unmarshal(data, &fetched)
	if fetched.Assignee == nil || fetched.Assignee.FirstName != "Ada" {
		t.Fatalf("expected enriched assignee, got %+v", fetched.Assignee)
	}

	// The member employee may only move the stage.
	emp := asUser(t, "emp-1", "ROLE_EMPLOYEE")
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/api/tasks/"+task.ID, map[string]any{"stageId": doing.ID}, emp)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("employee stage move: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/api/tasks/"+task.ID, map[string]any{"title": "sneaky"}, emp)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("employee title patch should be 403, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(data, &envelope)
	if envelope.Error.Message != "Access denied: Employees can only update the task stage" {
		t.Fatalf("unexpected message %q", envelope.Error.Message)
	}
}

func TestEventsEndpointAdminOnly(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	adm := asUser(t, "admin-1", "ROLE_ADMIN")

	doJSON(t, client, http.MethodPost, srv.URL+"/api/projects", map[string]any{"name": "p"}, adm)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/api/events", nil, adm)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin events: %d %s", res.StatusCode, string(data))
	}
	var events []EventResponse
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(events) == 0 || events[0].Type != "project.created" {
		t.Fatalf("expected project.created, got %+v", events)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/api/events", nil, asUser(t, "manager-1", "ROLE_MANAGER"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("manager events should be 403, got %d", res.StatusCode)
	}
}
