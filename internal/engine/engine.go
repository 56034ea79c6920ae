package engine

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"sort"
	"time"

	"worknest/internal/authz"
	"worknest/internal/directory"
	"worknest/internal/domain"
	"worknest/internal/events"
	"worknest/internal/repo"
	"worknest/internal/scope"
)

// Engine is the service layer: it combines the role read scope, the mutation
// authorizer and the store into per-resource operations. Requests are
// stateless; each mutation runs in its own transaction.
type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Directory directory.Client
	Now       func() time.Time
}

func New(db *sql.DB, dir directory.Client) Engine {
	return Engine{
		DB:        db,
		Repo:      repo.Repo{DB: db},
		Events:    events.Writer{DB: db},
		Directory: dir,
		Now:       time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) scopeFor(user domain.User) scope.Scope {
	return scope.ForRole(user.Role, user.ID)
}

func badRequest(msg string) error {
	return authz.Error{Status: http.StatusBadRequest, Message: msg}
}

func projectRef(p domain.Project) authz.ProjectRef {
	return authz.ProjectRef{
		CreatedBy: p.CreatedBy,
		ManagerID: p.ManagerID,
		MemberIDs: p.EmployeeIDs,
	}
}

// effectiveFields keeps only allowed keys of a patch body. Absent keys were
// never in the map; unknown keys are dropped rather than rejected.
func effectiveFields(body map[string]any, allowed ...string) map[string]any {
	out := map[string]any{}
	for _, key := range allowed {
		if v, ok := body[key]; ok {
			out[key] = v
		}
	}
	return out
}

func fieldKeys(fields map[string]any) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asStringSlice(v any) ([]string, bool) {
	switch vv := v.(type) {
	case nil:
		return nil, true
	case []string:
		return vv, true
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func asInt(v any) (int, bool) {
	switch vv := v.(type) {
	case int:
		return vv, true
	case float64:
		if vv != float64(int(vv)) {
			return 0, false
		}
		return int(vv), true
	default:
		return 0, false
	}
}

// TaskView is a task plus its assignee's display details, when known.
type TaskView struct {
	domain.Task
	Assignee *directory.User
}

// enrichTasks resolves assignee display details in one batch call. Any
// directory failure degrades to the raw ids rather than failing the read.
func (e Engine) enrichTasks(ctx context.Context, tasks []domain.Task) []TaskView {
	views := make([]TaskView, len(tasks))
	var ids []string
	seen := map[string]bool{}
	for i, t := range tasks {
		views[i] = TaskView{Task: t}
		if t.AssignedTo != nil && !seen[*t.AssignedTo] {
			seen[*t.AssignedTo] = true
			ids = append(ids, *t.AssignedTo)
		}
	}
	if len(ids) == 0 || e.Directory == nil {
		return views
	}
	users, err := e.Directory.LookupUsers(ctx, ids)
	if err != nil {
		log.Printf("directory lookup failed, returning raw assignee ids: %v", err)
		return views
	}
	for i := range views {
		if views[i].AssignedTo == nil {
			continue
		}
		if u, ok := users[*views[i].AssignedTo]; ok {
			views[i].Assignee = &u
		}
	}
	return views
}

// ListEvents pages backwards through the audit log. Admin only.
func (e Engine) ListEvents(ctx context.Context, user domain.User, limit int, cursor int64, projectID, evtType string) ([]domain.Event, error) {
	if user.Role != domain.RoleAdmin {
		return nil, authz.Error{Status: http.StatusForbidden, Message: "Access denied: only admins can read the event log"}
	}
	if limit <= 0 {
		limit = 50
	}
	return e.Repo.LatestEventsFrom(ctx, limit, cursor, projectID, evtType, "", "")
}
