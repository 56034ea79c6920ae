package engine_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"worknest/internal/authz"
	"worknest/internal/db"
	"worknest/internal/directory"
	"worknest/internal/domain"
	"worknest/internal/engine"
	"worknest/internal/migrate"
	"worknest/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

var (
	admin    = domain.User{ID: "admin-1", Role: domain.RoleAdmin}
	manager  = domain.User{ID: "manager-1", Role: domain.RoleManager}
	employee = domain.User{ID: "emp-1", Role: domain.RoleEmployee}
)

func newTestEnv(t *testing.T, dir directory.Client) testEnv {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, dir)
	eng.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error")
	}
	var ae authz.Error
	if !errors.As(err, &ae) {
		t.Fatalf("expected authz.Error, got %T: %v", err, err)
	}
	return ae.Status
}

func mustProject(t *testing.T, env testEnv, u domain.User, in engine.ProjectCreate) domain.Project {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, u, in)
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func mustStage(t *testing.T, env testEnv, u domain.User, projectID, name string, pos int) domain.Stage {
	t.Helper()
	s, err := env.Engine.CreateStage(env.Ctx, u, engine.StageCreate{ProjectID: projectID, Name: name, Position: pos})
	if err != nil {
		t.Fatalf("create stage: %v", err)
	}
	return s
}

func mustTask(t *testing.T, env testEnv, u domain.User, in engine.TaskCreate) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, u, in)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func TestProjectNameUniqueCaseInsensitive(t *testing.T) {
	env := newTestEnv(t, directory.Static{})
	mustProject(t, env, admin, engine.ProjectCreate{Name: "Website Redesign"})
	_, err := env.Engine.CreateProject(env.Ctx, admin, engine.ProjectCreate{Name: "  WEBSITE redesign "})
	if !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestProjectNameNormalized(t *testing.T) {
	env := newTestEnv(t, directory.Static{})
	p := mustProject(t, env, admin, engine.ProjectCreate{Name: "  Big Launch  "})
	if p.Name != "big launch" {
		t.Fatalf("name should be lowercased and trimmed, got %q", p.Name)
	}
}

func TestProjectCreateByEmployeeDenied(t *testing.T) {
	env := newTestEnv(t, directory.Static{})
	_, err := env.Engine.CreateProject(env.Ctx, employee, engine.ProjectCreate{Name: "nope"})
	if got := statusOf(t, err); got != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", got)
	}
}

func TestVisibilityPerRole(t *testing.T) {
	env := newTestEnv(t, directory.Static{})
	other := domain.User{ID: "manager-2", Role: domain.RoleManager}

	mustProject(t, env, manager, engine.ProjectCreate{Name: "mine"})
	mustProject(t, env, other, engine.ProjectCreate{Name: "theirs", EmployeeIDs: []string{employee.ID}})
	mustProject(t, env, other, engine.ProjectCreate{Name: "shared", EmployeeIDs: []string{manager.ID}})

	sort := repo.Sort{Column: "created_at", Direction: "desc"}
	page := repo.Page{Limit: 10}

	_, total, err := env.Engine.ListProjects(env.Ctx, admin, repo.ProjectFilters{}, sort, page)
	if err != nil || total != 3 {
		t.Fatalf("admin should see all 3, got %d (%v)", total, err)
	}
	// Creator of one, member of another.
	_, total, err = env.Engine.ListProjects(env.Ctx, manager, repo.ProjectFilters{}, sort, page)
	if err != nil || total != 2 {
		t.Fatalf("manager should see 2, got %d (%v)", total, err)
	}
	_, total, err = env.Engine.ListProjects(env.Ctx, employee, repo.ProjectFilters{}, sort, page)
	if err != nil || total != 1 {
		t.Fatalf("employee should see 1, got %d (%v)", total, err)
	}
	unknown := domain.User{ID: "ghost", Role: domain.ParseRole("ROLE_GHOST")}
	_, total, err = env.Engine.ListProjects(env.Ctx, unknown, repo.ProjectFilters{}, sort, page)
	if err != nil || total != 0 {
		t.Fatalf("unknown role should see nothing, got %d (%v)", total, err)
	}
}

func TestGetProjectScopedByMembership(t *testing.T) {
	env := newTestEnv(t, directory.Static{})
	p := mustProject(t, env, manager, engine.ProjectCreate{Name: "internal"})

	if _, err := env.Engine.GetProject(env.Ctx, employee, p.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("non-member read should be not found, got %v", err)
	}
	if err := env.Engine.AddMember(env.Ctx, manager, p.ID, employee.ID); err != nil {
		t.Fatalf("add member: %v", err)
	}
	got, err := env.Engine.GetProject(env.Ctx, employee, p.ID)
	if err != nil {
		t.Fatalf("member read: %v", err)
	}
	if got.ID != p.ID {
		t.Fatalf("wrong project %q", got.ID)
	}
}

func TestEmptyPatchRejected(t *testing.T) {
	env := newTestEnv(t, directory.Static{})
	p := mustProject(t, env, admin, engine.ProjectCreate{Name: "p"})

	_, err := env.Engine.PatchProject(env.Ctx, admin, p.ID, map[string]any{})
	var ae authz.Error
	if !errors.As(err, &ae) || ae.Status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
	if ae.Message != "No valid fields provided for update" {
		t.Fatalf("unexpected message %q", ae.Message)
	}

	// Unknown keys filter down to an empty set too.
	_, err = env.Engine.PatchProject(env.Ctx, admin, p.ID, map[string]any{"favouriteColor": "blue"})
	if !errors.As(err, &ae) || ae.Status != http.StatusBadRequest {
		t.Fatalf("unknown-only patch should be 400, got %v", err)
	}
}

func TestPatchProjectClearsManager(t *testing.T) {
	env := newTestEnv(t, directory.Static{})
	mgr := "boss-1"
	p := mustProject(t, env, admin, engine.ProjectCreate{Name: "p", ManagerID: &mgr})

	patched, err := env.Engine.PatchProject(env.Ctx, admin, p.ID, map[string]any{"managerId": nil})
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if patched.ManagerID != nil {
		t.Fatalf("managerId null should clear the field")
	}
}

func TestMissingTargetBeatsForbidden(t *testing.T) {
	env := newTestEnv(t, directory.Static{})
	_, err := env.Engine.PatchTask(env.Ctx, employee, "no-such-task", map[string]any{"stageId": "s1"})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing task should be 404 before any permission check, got %v", err)
	}
	if err := env.Engine.DeleteProject(env.Ctx, employee, "no-such-project"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing project should be 404, got %v", err)
	}
}

func TestTaskStagePatchRules(t *testing.T) {
	env := newTestEnv(t, directory.Static{})
	owner := domain.User{ID: "manager-2", Role: domain.RoleManager}
	p := mustProject(t, env, owner, engine.ProjectCreate{Name: "board", EmployeeIDs: []string{manager.ID, employee.ID}})
	s1 := mustStage(t, env, owner, p.ID, "todo", 0)
	s2 := mustStage(t, env, owner, p.ID, "doing", 1)
	task := mustTask(t, env, owner, engine.TaskCreate{ProjectID: p.ID, StageID: s1.ID, Title: "ship it"})

	// A manager who is only in employeeIds may move the stage.
	moved, err := env.Engine.PatchTask(env.Ctx, manager, task.ID, map[string]any{"stageId": s2.ID})
	if err != nil {
		t.Fatalf("member manager stage move: %v", err)
	}
	if moved.StageID != s2.ID {
		t.Fatalf("stage not updated")
	}

	// The same manager adding a second field is denied.
	_, err = env.Engine.PatchTask(env.Ctx, manager, task.ID, map[string]any{"stageId": s1.ID, "priority": "LOW"})
	if got := statusOf(t, err); got != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", got)
	}

	// Employees get the documented message for anything but a stage move.
	_, err = env.Engine.PatchTask(env.Ctx, employee, task.ID, map[string]any{"title": "x"})
	var ae authz.Error
	if !errors.As(err, &ae) || ae.Status != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
	if ae.Message != "Access denied: Employees can only update the task stage" {
		t.Fatalf("unexpected message %q", ae.Message)
	}

	// But a bare stage move is fine for a member employee.
	if _, err := env.Engine.PatchTask(env.Ctx, employee, task.ID, map[string]any{"stageId": s1.ID}); err != nil {
		t.Fatalf("employee stage move: %v", err)
	}
}

func TestTaskStageMustBelongToProject(t *testing.T) {
	env := newTestEnv(t, directory.Static{})
	p1 := mustProject(t, env, admin, engine.ProjectCreate{Name: "one"})
	p2 := mustProject(t, env, admin, engine.ProjectCreate{Name: "two"})
	s1 := mustStage(t, env, admin, p1.ID, "todo", 0)
	foreign := mustStage(t, env, admin, p2.ID, "todo", 0)
	task := mustTask(t, env, admin, engine.TaskCreate{ProjectID: p1.ID, StageID: s1.ID, Title: "t"})

	_, err := env.Engine.PatchTask(env.Ctx, admin, task.ID, map[string]any{"stageId": foreign.ID})
	if got := statusOf(t, err); got != http.StatusBadRequest {
		t.Fatalf("cross-project stage move should be 400, got %d", got)
	}
	_, err = env.Engine.PatchTask(env.Ctx, admin, task.ID, map[string]any{"stageId": "missing"})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing stage should be 404, got %v", err)
	}
}

func TestTaskTitleUniquePerProject(t *testing.T) {
	env := newTestEnv(t, directory.Static{})
	p := mustProject(t, env, admin, engine.ProjectCreate{Name: "p"})
	s := mustStage(t, env, admin, p.ID, "todo", 0)
	mustTask(t, env, admin, engine.TaskCreate{ProjectID: p.ID, StageID: s.ID, Title: "same"})

	_, err := env.Engine.CreateTask(env.Ctx, admin, engine.TaskCreate{ProjectID: p.ID, StageID: s.ID, Title: "same"})
	if !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("duplicate title should conflict, got %v", err)
	}

	// Same title in a different project is fine.
	p2 := mustProject(t, env, admin, engine.ProjectCreate{Name: "q"})
	s2 := mustStage(t, env, admin, p2.ID, "todo", 0)
	mustTask(t, env, admin, engine.TaskCreate{ProjectID: p2.ID, StageID: s2.ID, Title: "same"})
}

func TestDeleteRequiresCreator(t *testing.T) {
	env := newTestEnv(t, directory.Static{})
	mgr := "manager-2"
	p := mustProject(t, env, manager, engine.ProjectCreate{Name: "p", ManagerID: &mgr})

	// manager-2 holds manager_id: enough to update, not to delete.
	boss := domain.User{ID: mgr, Role: domain.RoleManager}
	if _, err := env.Engine.PatchProject(env.Ctx, boss, p.ID, map[string]any{"description": "d"}); err != nil {
		t.Fatalf("manager_id holder should update: %v", err)
	}
	if got := statusOf(t, env.Engine.DeleteProject(env.Ctx, boss, p.ID)); got != http.StatusForbidden {
		t.Fatalf("manager_id holder should not delete, got %d", got)
	}
	if err := env.Engine.DeleteProject(env.Ctx, manager, p.ID); err != nil {
		t.Fatalf("creator delete: %v", err)
	}
}

func TestDefaultPriority(t *testing.T) {
	env := newTestEnv(t, directory.Static{})
	p := mustProject(t, env, admin, engine.ProjectCreate{Name: "p"})
	s := mustStage(t, env, admin, p.ID, "todo", 0)
	task := mustTask(t, env, admin, engine.TaskCreate{ProjectID: p.ID, StageID: s.ID, Title: "t"})
	if task.Priority != domain.PriorityMedium {
		t.Fatalf("expected default MEDIUM, got %q", task.Priority)
	}
	_, err := env.Engine.CreateTask(env.Ctx, admin, engine.TaskCreate{ProjectID: p.ID, StageID: s.ID, Title: "u", Priority: "URGENT"})
	if got := statusOf(t, err); got != http.StatusBadRequest {
		t.Fatalf("invalid priority should be 400, got %d", got)
	}
}

type failingDirectory struct{}

func (failingDirectory) LookupUsers(context.Context, []string) (map[string]directory.User, error) {
	return nil, fmt.Errorf("directory unreachable")
}

func TestAssigneeEnrichment(t *testing.T) {
	dir := directory.Static{
		"emp-1": {ID: "emp-1", FirstName: "Ada", LastName: "Lovelace", Role: "ROLE_EMPLOYEE"},
	}
	env := newTestEnv(t, dir)
	p := mustProject(t, env, admin, engine.ProjectCreate{Name: "p"})
	s := mustStage(t, env, admin, p.ID, "todo", 0)
	assignee := "emp-1"
	task := mustTask(t, env, admin, engine.TaskCreate{ProjectID: p.ID, StageID: s.ID, Title: "t", AssignedTo: &assignee})

	v, err := env.Engine.GetTask(env.Ctx, admin, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if v.Assignee == nil || v.Assignee.FirstName != "Ada" {
		t.Fatalf("expected enriched assignee, got %+v", v.Assignee)
	}
}

func TestAssigneeEnrichmentDegrades(t *testing.T) {
	env := newTestEnv(t, failingDirectory{})
	p := mustProject(t, env, admin, engine.ProjectCreate{Name: "p"})
	s := mustStage(t, env, admin, p.ID, "todo", 0)
	assignee := "emp-1"
	task := mustTask(t, env, admin, engine.TaskCreate{ProjectID: p.ID, StageID: s.ID, Title: "t", AssignedTo: &assignee})

	v, err := env.Engine.GetTask(env.Ctx, admin, task.ID)
	if err != nil {
		t.Fatalf("directory failure must not fail the read: %v", err)
	}
	if v.Assignee != nil {
		t.Fatalf("expected no enrichment, got %+v", v.Assignee)
	}
	if v.AssignedTo == nil || *v.AssignedTo != "emp-1" {
		t.Fatalf("raw assignee id should survive")
	}
}

func TestEventsAdminOnly(t *testing.T) {
	env := newTestEnv(t, directory.Static{})
	p := mustProject(t, env, admin, engine.ProjectCreate{Name: "p"})

	events, err := env.Engine.ListEvents(env.Ctx, admin, 10, 0, p.ID, "")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) == 0 || events[0].Type != "project.created" {
		t.Fatalf("expected project.created event, got %+v", events)
	}
	_, err = env.Engine.ListEvents(env.Ctx, manager, 10, 0, "", "")
	if got := statusOf(t, err); got != http.StatusForbidden {
		t.Fatalf("non-admin should be denied, got %d", got)
	}
}
