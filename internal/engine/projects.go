package engine

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"worknest/internal/authz"
	"worknest/internal/domain"
	"worknest/internal/events"
	"worknest/internal/repo"
)

// ProjectCreate are the parameters for creating a project.
type ProjectCreate struct {
	Name        string
	Description string
	ManagerID   *string
	EmployeeIDs []string
}

// ProjectUpdate is a full replace of the mutable project fields.
type ProjectUpdate struct {
	Name        string
	Description string
	ManagerID   *string
	EmployeeIDs []string
}

// normalizeProjectName lowercases and trims the name so the store's UNIQUE
// constraint enforces case-insensitive uniqueness.
func normalizeProjectName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (e Engine) CreateProject(ctx context.Context, user domain.User, in ProjectCreate) (domain.Project, error) {
	if err := authz.CanCreateProject(user); err != nil {
		return domain.Project{}, err
	}
	name := normalizeProjectName(in.Name)
	if name == "" {
		return domain.Project{}, badRequest("name is required")
	}
	now := e.timestamp()
	p := domain.Project{
		ID:          uuid.New().String(),
		Name:        name,
		Description: in.Description,
		CreatedBy:   user.ID,
		ManagerID:   in.ManagerID,
		EmployeeIDs: in.EmployeeIDs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertProjectTx(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.Repo.ReplaceMembersTx(ctx, tx, p.ID, p.EmployeeIDs); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.created", p.ID, "project", p.ID, user.ID, events.Payload{"name": p.Name}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) GetProject(ctx context.Context, user domain.User, id string) (domain.Project, error) {
	return e.Repo.GetProjectScoped(ctx, e.scopeFor(user), id)
}

func (e Engine) ListProjects(ctx context.Context, user domain.User, f repo.ProjectFilters, sort repo.Sort, page repo.Page) ([]domain.Project, int, error) {
	sc := e.scopeFor(user)
	total, err := e.Repo.CountProjects(ctx, sc, f)
	if err != nil {
		return nil, 0, err
	}
	items, err := e.Repo.ListProjects(ctx, sc, f, sort, page)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (e Engine) UpdateProject(ctx context.Context, user domain.User, id string, in ProjectUpdate) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	if err := authz.CanUpdate(user, projectRef(p)); err != nil {
		return domain.Project{}, err
	}
	name := normalizeProjectName(in.Name)
	if name == "" {
		return domain.Project{}, badRequest("name is required")
	}
	p.Name = name
	p.Description = in.Description
	p.ManagerID = in.ManagerID
	p.EmployeeIDs = in.EmployeeIDs
	p.UpdatedAt = e.timestamp()
	return e.saveProject(ctx, user, p, "project.updated")
}

// PatchProject applies a partial update. body is the decoded JSON object;
// unknown keys are ignored, an empty effective set is a 400.
func (e Engine) PatchProject(ctx context.Context, user domain.User, id string, body map[string]any) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	if err := authz.CanUpdate(user, projectRef(p)); err != nil {
		return domain.Project{}, err
	}
	fields := effectiveFields(body, "name", "description", "managerId", "employeeIds")
	if len(fields) == 0 {
		return domain.Project{}, authz.ErrNoFields
	}
	if v, ok := fields["name"]; ok {
		s, ok := asString(v)
		if !ok {
			return domain.Project{}, badRequest("name must be a string")
		}
		name := normalizeProjectName(s)
		if name == "" {
			return domain.Project{}, badRequest("name is required")
		}
		p.Name = name
	}
	if v, ok := fields["description"]; ok {
		s, _ := asString(v)
		p.Description = s
	}
	if v, ok := fields["managerId"]; ok {
		if v == nil {
			p.ManagerID = nil
		} else {
			s, ok := asString(v)
			if !ok {
				return domain.Project{}, badRequest("managerId must be a string")
			}
			p.ManagerID = &s
		}
	}
	if v, ok := fields["employeeIds"]; ok {
		ids, ok := asStringSlice(v)
		if !ok {
			return domain.Project{}, badRequest("employeeIds must be an array of strings")
		}
		p.EmployeeIDs = ids
	}
	p.UpdatedAt = e.timestamp()
	return e.saveProject(ctx, user, p, "project.patched")
}

func (e Engine) saveProject(ctx context.Context, user domain.User, p domain.Project, evtType string) (domain.Project, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateProjectTx(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.Repo.ReplaceMembersTx(ctx, tx, p.ID, p.EmployeeIDs); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, evtType, p.ID, "project", p.ID, user.ID, nil); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) DeleteProject(ctx context.Context, user domain.User, id string) error {
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if err := authz.CanDelete(user, projectRef(p)); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteProjectTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "project.deleted", id, "project", id, user.ID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) AddMember(ctx context.Context, user domain.User, projectID, userID string) error {
	return e.changeMember(ctx, user, projectID, userID, true)
}

func (e Engine) RemoveMember(ctx context.Context, user domain.User, projectID, userID string) error {
	return e.changeMember(ctx, user, projectID, userID, false)
}

func (e Engine) changeMember(ctx context.Context, user domain.User, projectID, userID string, add bool) error {
	if userID == "" {
		return badRequest("user id is required")
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if err := authz.CanUpdate(user, projectRef(p)); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	evtType := "project.member_added"
	if add {
		err = e.Repo.AddMemberTx(ctx, tx, projectID, userID)
	} else {
		evtType = "project.member_removed"
		err = e.Repo.RemoveMemberTx(ctx, tx, projectID, userID)
	}
	if err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, evtType, projectID, "project", projectID, user.ID, events.Payload{"user_id": userID}); err != nil {
		return err
	}
	return tx.Commit()
}
