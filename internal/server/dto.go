package server

import (
	"encoding/json"

	"worknest/internal/directory"
	"worknest/internal/domain"
	"worknest/internal/engine"
)

// Request payloads

type CreateProjectRequest struct {
	Name        string   `json:"name"`
	Description *string  `json:"description,omitempty"`
	ManagerID   *string  `json:"managerId,omitempty"`
	EmployeeIDs []string `json:"employeeIds,omitempty"`
}

type UpdateProjectRequest struct {
	Name        string   `json:"name"`
	Description *string  `json:"description,omitempty"`
	ManagerID   *string  `json:"managerId,omitempty"`
	EmployeeIDs []string `json:"employeeIds,omitempty"`
}

type CreateStageRequest struct {
	ProjectID string  `json:"projectId"`
	Name      string  `json:"name"`
	Position  int     `json:"position"`
	Color     *string `json:"color,omitempty"`
}

type UpdateStageRequest struct {
	Name     string  `json:"name"`
	Position int     `json:"position"`
	Color    *string `json:"color,omitempty"`
}

type CreateTaskRequest struct {
	ProjectID   string   `json:"projectId"`
	StageID     string   `json:"stageId"`
	Title       string   `json:"title"`
	Description *string  `json:"description,omitempty"`
	Priority    string   `json:"priority,omitempty" enum:"LOW,MEDIUM,HIGH"`
	AssignedTo  *string  `json:"assignedTo,omitempty"`
	Images      []string `json:"images,omitempty"`
}

type UpdateTaskRequest struct {
	StageID     string   `json:"stageId"`
	Title       string   `json:"title"`
	Description *string  `json:"description,omitempty"`
	Priority    string   `json:"priority" enum:"LOW,MEDIUM,HIGH"`
	AssignedTo  *string  `json:"assignedTo,omitempty"`
	Images      []string `json:"images,omitempty"`
}

type MemberRequest struct {
	UserID string `json:"userId"`
}

// Response payloads

type ProjectResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	CreatedBy   string   `json:"createdBy"`
	ManagerID   *string  `json:"managerId,omitempty"`
	EmployeeIDs []string `json:"employeeIds"`
	CreatedAt   string   `json:"createdAt" format:"date-time"`
	UpdatedAt   string   `json:"updatedAt" format:"date-time"`
}

type StageResponse struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"projectId"`
	Name      string  `json:"name"`
	Position  int     `json:"position"`
	Color     *string `json:"color,omitempty"`
	CreatedAt string  `json:"createdAt" format:"date-time"`
	UpdatedAt string  `json:"updatedAt" format:"date-time"`
}

type AssigneeResponse struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Role      string `json:"role,omitempty"`
}

type TaskResponse struct {
	ID          string            `json:"id"`
	ProjectID   string            `json:"projectId"`
	StageID     string            `json:"stageId"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Priority    string            `json:"priority" enum:"LOW,MEDIUM,HIGH"`
	AssignedTo  *string           `json:"assignedTo,omitempty"`
	Assignee    *AssigneeResponse `json:"assignee,omitempty"`
	Images      []string          `json:"images"`
	CreatedAt   string            `json:"createdAt" format:"date-time"`
	UpdatedAt   string            `json:"updatedAt" format:"date-time"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"projectId,omitempty"`
	EntityKind string         `json:"entityKind"`
	EntityID   string         `json:"entityId,omitempty"`
	ActorID    string         `json:"actorId"`
	Payload    map[string]any `json:"payload"`
}

// Conversion helpers

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		CreatedBy:   p.CreatedBy,
		ManagerID:   p.ManagerID,
		EmployeeIDs: nonNilSlice(p.EmployeeIDs),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func mapProjects(in []domain.Project) []ProjectResponse {
	out := make([]ProjectResponse, len(in))
	for i, p := range in {
		out[i] = projectResponse(p)
	}
	return out
}

func stageResponse(s domain.Stage) StageResponse {
	return StageResponse{
		ID:        s.ID,
		ProjectID: s.ProjectID,
		Name:      s.Name,
		Position:  s.Position,
		Color:     s.Color,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func mapStages(in []domain.Stage) []StageResponse {
	out := make([]StageResponse, len(in))
	for i, s := range in {
		out[i] = stageResponse(s)
	}
	return out
}

func assigneeResponse(u *directory.User) *AssigneeResponse {
	if u == nil {
		return nil
	}
	return &AssigneeResponse{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
	}
}

func taskResponse(v engine.TaskView) TaskResponse {
	return TaskResponse{
		ID:          v.ID,
		ProjectID:   v.ProjectID,
		StageID:     v.StageID,
		Title:       v.Title,
		Description: v.Description,
		Priority:    v.Priority,
		AssignedTo:  v.AssignedTo,
		Assignee:    assigneeResponse(v.Assignee),
		Images:      nonNilSlice(v.Images),
		CreatedAt:   v.CreatedAt,
		UpdatedAt:   v.UpdatedAt,
	}
}

func mapTasks(in []engine.TaskView) []TaskResponse {
	out := make([]TaskResponse, len(in))
	for i, v := range in {
		out[i] = taskResponse(v)
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	payload := map[string]any{}
	if e.Payload != "" {
		_ = json.Unmarshal([]byte(e.Payload), &payload)
	}
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    payload,
	}
}

func mapEvents(in []domain.Event) []EventResponse {
	out := make([]EventResponse, len(in))
	for i, e := range in {
		out[i] = eventResponse(e)
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func strVal(in *string) string {
	if in == nil {
		return ""
	}
	return *in
}
