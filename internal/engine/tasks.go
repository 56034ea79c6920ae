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

// TaskCreate are the parameters for creating a task.
type TaskCreate struct {
	ProjectID   string
	StageID     string
	Title       string
	Description string
	Priority    string
	AssignedTo  *string
	Images      []string
}

// TaskUpdate is a full replace of the mutable task fields.
type TaskUpdate struct {
	StageID     string
	Title       string
	Description string
	Priority    string
	AssignedTo  *string
	Images      []string
}

func (e Engine) CreateTask(ctx context.Context, user domain.User, in TaskCreate) (domain.Task, error) {
	if in.ProjectID == "" {
		return domain.Task{}, badRequest("project id is required")
	}
	p, err := e.Repo.GetProject(ctx, in.ProjectID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := authz.CanCreate(user, projectRef(p)); err != nil {
		return domain.Task{}, err
	}
	if err := e.checkStage(ctx, in.StageID, in.ProjectID); err != nil {
		return domain.Task{}, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Task{}, badRequest("title is required")
	}
	priority := in.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if !domain.ValidPriority(priority) {
		return domain.Task{}, badRequest("priority must be one of LOW, MEDIUM, HIGH")
	}
	now := e.timestamp()
	t := domain.Task{
		ID:          uuid.New().String(),
		ProjectID:   in.ProjectID,
		StageID:     in.StageID,
		Title:       title,
		Description: in.Description,
		Priority:    priority,
		AssignedTo:  in.AssignedTo,
		Images:      in.Images,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTaskTx(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.created", t.ProjectID, "task", t.ID, user.ID, events.Payload{"title": t.Title}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (e Engine) GetTask(ctx context.Context, user domain.User, id string) (TaskView, error) {
	t, err := e.Repo.GetTaskScoped(ctx, e.scopeFor(user), id)
	if err != nil {
		return TaskView{}, err
	}
	views := e.enrichTasks(ctx, []domain.Task{t})
	return views[0], nil
}

func (e Engine) ListTasks(ctx context.Context, user domain.User, f repo.TaskFilters, sort repo.Sort, page repo.Page) ([]TaskView, int, error) {
	sc := e.scopeFor(user)
	total, err := e.Repo.CountTasks(ctx, sc, f)
	if err != nil {
		return nil, 0, err
	}
	items, err := e.Repo.ListTasks(ctx, sc, f, sort, page)
	if err != nil {
		return nil, 0, err
	}
	return e.enrichTasks(ctx, items), total, nil
}

func (e Engine) UpdateTask(ctx context.Context, user domain.User, id string, in TaskUpdate) (domain.Task, error) {
	t, p, err := e.taskWithProject(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if err := authz.CanUpdate(user, projectRef(p)); err != nil {
		return domain.Task{}, err
	}
	if in.StageID != t.StageID {
		if err := e.checkStage(ctx, in.StageID, t.ProjectID); err != nil {
			return domain.Task{}, err
		}
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Task{}, badRequest("title is required")
	}
	if !domain.ValidPriority(in.Priority) {
		return domain.Task{}, badRequest("priority must be one of LOW, MEDIUM, HIGH")
	}
	t.StageID = in.StageID
	t.Title = title
	t.Description = in.Description
	t.Priority = in.Priority
	t.AssignedTo = in.AssignedTo
	t.Images = in.Images
	t.UpdatedAt = e.timestamp()
	return e.saveTask(ctx, user, t, "task.updated")
}

// PatchTask applies a partial update. Which keys the caller may send depends
// on their standing in the owning project, so the key set is computed first
// and decided as a whole.
func (e Engine) PatchTask(ctx context.Context, user domain.User, id string, body map[string]any) (domain.Task, error) {
	t, p, err := e.taskWithProject(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	fields := effectiveFields(body, "title", "description", "priority", "stageId", "assignedTo", "images")
	if len(fields) == 0 {
		return domain.Task{}, authz.ErrNoFields
	}
	if err := authz.CheckTaskPatch(user, projectRef(p), fieldKeys(fields)); err != nil {
		return domain.Task{}, err
	}
	if v, ok := fields["title"]; ok {
		s, ok := asString(v)
		title := strings.TrimSpace(s)
		if !ok || title == "" {
			return domain.Task{}, badRequest("title is required")
		}
		t.Title = title
	}
	if v, ok := fields["description"]; ok {
		s, _ := asString(v)
		t.Description = s
	}
	if v, ok := fields["priority"]; ok {
		s, ok := asString(v)
		if !ok || !domain.ValidPriority(s) {
			return domain.Task{}, badRequest("priority must be one of LOW, MEDIUM, HIGH")
		}
		t.Priority = s
	}
	if v, ok := fields["stageId"]; ok {
		s, ok := asString(v)
		if !ok || s == "" {
			return domain.Task{}, badRequest("stageId must be a string")
		}
		if s != t.StageID {
			if err := e.checkStage(ctx, s, t.ProjectID); err != nil {
				return domain.Task{}, err
			}
			t.StageID = s
		}
	}
	if v, ok := fields["assignedTo"]; ok {
		if v == nil {
			t.AssignedTo = nil
		} else {
			s, ok := asString(v)
			if !ok {
				return domain.Task{}, badRequest("assignedTo must be a string")
			}
			t.AssignedTo = &s
		}
	}
	if v, ok := fields["images"]; ok {
		imgs, ok := asStringSlice(v)
		if !ok {
			return domain.Task{}, badRequest("images must be an array of strings")
		}
		t.Images = imgs
	}
	t.UpdatedAt = e.timestamp()
	return e.saveTask(ctx, user, t, "task.patched")
}

func (e Engine) saveTask(ctx context.Context, user domain.User, t domain.Task, evtType string) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTaskTx(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, evtType, t.ProjectID, "task", t.ID, user.ID, nil); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (e Engine) DeleteTask(ctx context.Context, user domain.User, id string) error {
	t, p, err := e.taskWithProject(ctx, id)
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
	if err := e.Repo.DeleteTaskTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", t.ProjectID, "task", t.ID, user.ID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) taskWithProject(ctx context.Context, id string) (domain.Task, domain.Project, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, domain.Project{}, err
	}
	p, err := e.Repo.GetProject(ctx, t.ProjectID)
	if err != nil {
		return domain.Task{}, domain.Project{}, err
	}
	return t, p, nil
}

// checkStage verifies the target stage exists and sits in the same project.
// A missing stage is a 404; a stage from another project is a 400.
func (e Engine) checkStage(ctx context.Context, stageID, projectID string) error {
	if stageID == "" {
		return badRequest("stage id is required")
	}
	s, err := e.Repo.GetStage(ctx, stageID)
	if err != nil {
		return err
	}
	if s.ProjectID != projectID {
		return badRequest("stage does not belong to project")
	}
	return nil
}
