package scope

import "worknest/internal/domain"

// Path names the column that holds the owning project id for an entity.
// Stages and tasks only reference the project indirectly, so their read scope
// is expressed through this column rather than per-entity predicate copies.
type Path string

const (
	Projects Path = "projects.id"
	Stages   Path = "stages.project_id"
	Tasks    Path = "tasks.project_id"
)

// Scope is a read-scope restriction derived from the requesting user. It is a
// pure value: building one has no side effects.
type Scope struct {
	role   domain.Role
	userID string
}

// ForRole returns the read scope for a role and user id.
func ForRole(role domain.Role, userID string) Scope {
	return Scope{role: role, userID: userID}
}

// Empty reports whether the scope matches every record.
func (s Scope) Empty() bool {
	return s.role == domain.RoleAdmin
}

// Predicate returns a SQL clause restricting rows to projects reachable by
// the user, and its arguments. An empty clause means no restriction.
//
//   - ADMIN sees everything.
//   - MANAGER sees projects they manage, created, or are a member of.
//   - EMPLOYEE sees projects they are a member of.
//   - Unknown roles match nothing.
func (s Scope) Predicate(p Path) (string, []any) {
	col := string(p)
	switch s.role {
	case domain.RoleAdmin:
		return "", nil
	case domain.RoleManager:
		clause := `EXISTS (SELECT 1 FROM projects sp WHERE sp.id = ` + col +
			` AND (sp.manager_id = ? OR sp.created_by = ?` +
			` OR EXISTS (SELECT 1 FROM project_members sm WHERE sm.project_id = sp.id AND sm.user_id = ?)))`
		return clause, []any{s.userID, s.userID, s.userID}
	case domain.RoleEmployee:
		clause := `EXISTS (SELECT 1 FROM project_members sm WHERE sm.project_id = ` + col + ` AND sm.user_id = ?)`
		return clause, []any{s.userID}
	default:
		return "1=0", nil
	}
}
