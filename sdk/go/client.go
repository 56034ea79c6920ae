package worknestsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal WorkNest HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Project represents the API project model.
type Project struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	CreatedBy   string   `json:"createdBy"`
	ManagerID   *string  `json:"managerId,omitempty"`
	EmployeeIDs []string `json:"employeeIds"`
	CreatedAt   string   `json:"createdAt"`
	UpdatedAt   string   `json:"updatedAt"`
}

// Stage represents the API stage model.
type Stage struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"projectId"`
	Name      string  `json:"name"`
	Position  int     `json:"position"`
	Color     *string `json:"color,omitempty"`
	CreatedAt string  `json:"createdAt"`
	UpdatedAt string  `json:"updatedAt"`
}

// Assignee is the enriched assignee projection on tasks.
type Assignee struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Role      string `json:"role,omitempty"`
}

// Task represents the API task model.
type Task struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	StageID     string    `json:"stageId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Priority    string    `json:"priority"`
	AssignedTo  *string   `json:"assignedTo,omitempty"`
	Assignee    *Assignee `json:"assignee,omitempty"`
	Images      []string  `json:"images"`
	CreatedAt   string    `json:"createdAt"`
	UpdatedAt   string    `json:"updatedAt"`
}

// Page wraps list responses.
type Page[T any] struct {
	Data       []T `json:"data"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalCount int `json:"totalCount"`
	TotalPages int `json:"totalPages"`
}

// ListOptions are the shared list query parameters.
type ListOptions struct {
	Page      int
	Limit     int
	SortField string
	SortOrder string
	Filters   map[string]string
}

func (o ListOptions) query() string {
	values := url.Values{}
	if o.Page > 0 {
		values.Set("page", fmt.Sprintf("%d", o.Page))
	}
	if o.Limit > 0 {
		values.Set("limit", fmt.Sprintf("%d", o.Limit))
	}
	if o.SortField != "" {
		values.Set("sortField", o.SortField)
	}
	if o.SortOrder != "" {
		values.Set("sortOrder", o.SortOrder)
	}
	for k, v := range o.Filters {
		values.Set(k, v)
	}
	if len(values) == 0 {
		return ""
	}
	return "?" + values.Encode()
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, name, description string, managerID *string, employeeIDs []string) (Project, error) {
	body := map[string]any{
		"name":        name,
		"description": description,
		"employeeIds": employeeIDs,
	}
	if managerID != nil {
		body["managerId"] = *managerID
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "api/projects", body, &resp)
	return resp, err
}

// Projects returns a page of projects visible to the caller.
func (c *Client) Projects(ctx context.Context, opts ListOptions) (Page[Project], error) {
	var resp Page[Project]
	err := c.do(ctx, http.MethodGet, "api/projects"+opts.query(), nil, &resp)
	return resp, err
}

// GetProject fetches a project by id.
func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, "api/projects/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// PatchProject applies a partial project update.
func (c *Client) PatchProject(ctx context.Context, id string, fields map[string]any) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPatch, "api/projects/"+url.PathEscape(id), fields, &resp)
	return resp, err
}

// DeleteProject deletes a project.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "api/projects/"+url.PathEscape(id), nil, nil)
}

// CreateStage creates a stage inside a project.
func (c *Client) CreateStage(ctx context.Context, projectID, name string, position int) (Stage, error) {
	body := map[string]any{
		"projectId": projectID,
		"name":      name,
		"position":  position,
	}
	var resp Stage
	err := c.do(ctx, http.MethodPost, "api/stages", body, &resp)
	return resp, err
}

// Stages returns a page of stages.
func (c *Client) Stages(ctx context.Context, opts ListOptions) (Page[Stage], error) {
	var resp Page[Stage]
	err := c.do(ctx, http.MethodGet, "api/stages"+opts.query(), nil, &resp)
	return resp, err
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, projectID, stageID, title, priority string) (Task, error) {
	body := map[string]any{
		"projectId": projectID,
		"stageId":   stageID,
		"title":     title,
	}
	if priority != "" {
		body["priority"] = priority
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "api/tasks", body, &resp)
	return resp, err
}

// Tasks returns a page of tasks.
func (c *Client) Tasks(ctx context.Context, opts ListOptions) (Page[Task], error) {
	var resp Page[Task]
	err := c.do(ctx, http.MethodGet, "api/tasks"+opts.query(), nil, &resp)
	return resp, err
}

// MoveTask moves a task to another stage.
func (c *Client) MoveTask(ctx context.Context, taskID, stageID string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, "api/tasks/"+url.PathEscape(taskID), map[string]any{"stageId": stageID}, &resp)
	return resp, err
}

// PatchTask applies a partial task update.
func (c *Client) PatchTask(ctx context.Context, taskID string, fields map[string]any) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, "api/tasks/"+url.PathEscape(taskID), fields, &resp)
	return resp, err
}

// DeleteTask deletes a task.
func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodDelete, "api/tasks/"+url.PathEscape(taskID), nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
