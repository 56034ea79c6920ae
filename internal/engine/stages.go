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

// StageCreate are the parameters for creating a stage.
type StageCreate struct {
	ProjectID string
	Name      string
	Position  int
	Color     *string
}

// StageUpdate is a full replace of the mutable stage fields.
type StageUpdate struct {
	Name     string
	Position int
	Color    *string
}

func (e Engine) CreateStage(ctx context.Context, user domain.User, in StageCreate) (domain.Stage, error) {
	if in.ProjectID == "" {
		return domain.Stage{}, badRequest("project id is required")
	}
	// Existence first: a missing project is 404 for every role.
	p, err := e.Repo.GetProject(ctx, in.ProjectID)
	if err != nil {
		return domain.Stage{}, err
	}
	if err := authz.CanCreate(user, projectRef(p)); err != nil {
		return domain.Stage{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Stage{}, badRequest("name is required")
	}
	if in.Position < 0 {
		return domain.Stage{}, badRequest("position must be >= 0")
	}
	now := e.timestamp()
	s := domain.Stage{
		ID:        uuid.New().String(),
		ProjectID: in.ProjectID,
		Name:      name,
		Position:  in.Position,
		Color:     in.Color,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Stage{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertStageTx(ctx, tx, s); err != nil {
		return domain.Stage{}, err
	}
	if err := e.Events.Append(ctx, tx, "stage.created", s.ProjectID, "stage", s.ID, user.ID, events.Payload{"name": s.Name}); err != nil {
		return domain.Stage{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Stage{}, err
	}
	return s, nil
}

func (e Engine) GetStage(ctx context.Context, user domain.User, id string) (domain.Stage, error) {
	return e.Repo.GetStageScoped(ctx, e.scopeFor(user), id)
}

func (e Engine) ListStages(ctx context.Context, user domain.User, f repo.StageFilters, sort repo.Sort, page repo.Page) ([]domain.Stage, int, error) {
	sc := e.scopeFor(user)
	total, err := e.Repo.CountStages(ctx, sc, f)
	if err != nil {
		return nil, 0, err
	}
	items, err := e.Repo.ListStages(ctx, sc, f, sort, page)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (e Engine) UpdateStage(ctx context.Context, user domain.User, id string, in StageUpdate) (domain.Stage, error) {
	s, p, err := e.stageWithProject(ctx, id)
	if err != nil {
		return domain.Stage{}, err
	}
	if err := authz.CanUpdate(user, projectRef(p)); err != nil {
		return domain.Stage{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Stage{}, badRequest("name is required")
	}
	if in.Position < 0 {
		return domain.Stage{}, badRequest("position must be >= 0")
	}
	s.Name = name
	s.Position = in.Position
	s.Color = in.Color
	s.UpdatedAt = e.timestamp()
	return e.saveStage(ctx, user, s, "stage.updated")
}

// PatchStage applies a partial update. Stages have no employee-patchable
// field, so the full-update rule decides access.
func (e Engine) PatchStage(ctx context.Context, user domain.User, id string, body map[string]any) (domain.Stage, error) {
	s, p, err := e.stageWithProject(ctx, id)
	if err != nil {
		return domain.Stage{}, err
	}
	if err := authz.CanUpdate(user, projectRef(p)); err != nil {
		return domain.Stage{}, err
	}
	fields := effectiveFields(body, "name", "position", "color")
	if len(fields) == 0 {
		return domain.Stage{}, authz.ErrNoFields
	}
	if v, ok := fields["name"]; ok {
		str, ok := asString(v)
		name := strings.TrimSpace(str)
		if !ok || name == "" {
			return domain.Stage{}, badRequest("name is required")
		}
		s.Name = name
	}
	if v, ok := fields["position"]; ok {
		pos, ok := asInt(v)
		if !ok || pos < 0 {
			return domain.Stage{}, badRequest("position must be >= 0")
		}
		s.Position = pos
	}
	if v, ok := fields["color"]; ok {
		if v == nil {
			s.Color = nil
		} else {
			str, ok := asString(v)
			if !ok {
				return domain.Stage{}, badRequest("color must be a string")
			}
			s.Color = &str
		}
	}
	s.UpdatedAt = e.timestamp()
	return e.saveStage(ctx, user, s, "stage.patched")
}

func (e Engine) saveStage(ctx context.Context, user domain.User, s domain.Stage, evtType string) (domain.Stage, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Stage{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateStageTx(ctx, tx, s); err != nil {
		return domain.Stage{}, err
	}
	if err := e.Events.Append(ctx, tx, evtType, s.ProjectID, "stage", s.ID, user.ID, nil); err != nil {
		return domain.Stage{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Stage{}, err
	}
	return s, nil
}

func (e Engine) DeleteStage(ctx context.Context, user domain.User, id string) error {
	s, p, err := e.stageWithProject(ctx, id)
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
	if err := e.Repo.DeleteStageTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "stage.deleted", s.ProjectID, "stage", s.ID, user.ID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) stageWithProject(ctx context.Context, id string) (domain.Stage, domain.Project, error) {
	s, err := e.Repo.GetStage(ctx, id)
	if err != nil {
		return domain.Stage{}, domain.Project{}, err
	}
	p, err := e.Repo.GetProject(ctx, s.ProjectID)
	if err != nil {
		return domain.Stage{}, domain.Project{}, err
	}
	return s, p, nil
}
