package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"worknest/internal/authz"
	"worknest/internal/engine"
	"worknest/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"forbidden"`
	Message string         `json:"message" example:"Access denied"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the WorkNest API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("WorkNest API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerProjects(group, cfg.Engine)
	registerMembers(group, cfg.Engine)
	registerStages(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ae authz.Error
	if errors.As(err, &ae) {
		return newAPIError(ae.Status, "", ae.Message, nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", "resource not found", nil)
	}
	if errors.Is(err, repo.ErrConflict) {
		return newAPIError(http.StatusConflict, "conflict", "resource already exists", nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// decodePatchBody parses a PATCH payload into a key-value map so the field
// authorizer can see the exact key set the caller sent.
func decodePatchBody(raw []byte) (map[string]any, huma.StatusError) {
	if len(raw) == 0 {
		return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid JSON body", nil)
	}
	return body, nil
}

// listQuery are the shared list query parameters. They are declared as
// strings so malformed values fall back to defaults instead of failing
// request validation.
type listQuery struct {
	Page      string `query:"page"`
	Limit     string `query:"limit"`
	SortField string `query:"sortField"`
	SortOrder string `query:"sortOrder"`
}

var mutationErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusInternalServerError,
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		user, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProject(ctx, user, engine.ProjectCreate{
			Name:        input.Body.Name,
			Description: strVal(input.Body.Description),
			ManagerID:   input.Body.ManagerID,
			EmployeeIDs: input.Body.EmployeeIDs,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		listQuery
		Name        string `query:"name"`
		Description string `query:"description"`
		CreatedAt   string `query:"createdAt"`
	}) (*struct {
		Body Paginated[ProjectResponse] `json:"body"`
	}, error) {
		user, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		page, limit, window := parsePagination(input.Page, input.Limit)
		from, to := parseDay(input.CreatedAt)
		filters := repo.ProjectFilters{
			NameContains:        input.Name,
			DescriptionContains: input.Description,
			CreatedFrom:         from,
			CreatedTo:           to,
		}
		sort := parseSort(projectSort, input.SortField, input.SortOrder)
		items, total, err := e.ListProjects(ctx, user, filters, sort, window)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body Paginated[ProjectResponse] `json:"body"`
		}{Body: paginated(mapProjects(items), page, limit, total)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		user, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.GetProject(ctx, user, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}",
		Summary:     "Replace project",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		user, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateProject(ctx, user, input.ProjectID, engine.ProjectUpdate{
			Name:        input.Body.Name,
			Description: strVal(input.Body.Description),
			ManagerID:   input.Body.ManagerID,
			EmployeeIDs: input.Body.EmployeeIDs,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "patch-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Patch project",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		RawBody   []byte `contentType:"application/json"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		user, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		body, decodeErr := decodePatchBody(input.RawBody)
		if decodeErr != nil {
			return nil, decodeErr
		}
		p, err := e.PatchProject(ctx, user, input.ProjectID, body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-project",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}",
		Summary:       "Delete project",
		DefaultStatus: http.StatusNoContent,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct{}, error) {
		user, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteProject(ctx, user, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerMembers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-project-members",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/members",
		Summary:     "List project members",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []string `json:"body"`
	}, error) {
		user, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.GetProject(ctx, user, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []string `json:"body"`
		}{Body: nonNilSlice(p.EmployeeIDs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-project-member",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/members",
		Summary:       "Add project member",
		DefaultStatus: http.StatusNoContent,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string        `path:"project_id"`
		Body      MemberRequest `json:"body"`
	}) (*struct{}, error) {
		user, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.AddMember(ctx, user, input.ProjectID, input.Body.UserID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-project-member",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}/members/{user_id}",
		Summary:       "Remove project member",
		DefaultStatus: http.StatusNoContent,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		UserID    string `path:"user_id"`
	}) (*struct{}, error) {
		user, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveMember(ctx, user, input.ProjectID, input.UserID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerStages(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-stage",
		Method:        http.MethodPost,
		Path:          "/stages",
		Summary:       "Create stage",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateStageRequest `json:"body"`
	}) (*struct {
		Body StageResponse `json:"body"`
	}, error) {
		user, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.CreateStage(ctx, user, engine.StageCreate{
			ProjectID: input.Body.ProjectID,
			Name:      input.Body.Name,
			Position:  input.Body.Position,
			Color:     input.Body.Color,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StageResponse `json:"body"`
		}{Body: stageResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-stages",
		Method:      http.MethodGet,
		Path:        "/stages",
		Summary:     "List stages",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		listQuery
		ProjectID string `query:"projectId"`
		Name      string `query:"name"`
		Position  string `query:"position"`
		Color     string `query:"color"`
	}) (*struct {
		Body Paginated[StageResponse] `json:"body"`
	}, error) {
		user, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		page, limit, window := parsePagination(input.Page, input.Limit)
		filters := repo.StageFilters{
			ProjectID:    input.ProjectID,
			NameContains: input.Name,
			Color:        input.Color,
		}
		if n, err := strconv.Atoi(strings.TrimSpace(input.Position)); err == nil {
			filters.Position = &n
		}
		sort := parseSort(stageSort, input.SortField, input.SortOrder)
		items, total, err := e.ListStages(ctx, user, filters, sort, window)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body Paginated[StageResponse] `json:"body"`
		}{Body: paginated(mapStages(items), page, limit, total)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-stage",
		Method:      http.MethodGet,
		Path:        "/stages/{stage_id}",
		Summary:     "Get stage",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		StageID string `path:"stage_id"`
	}) (*struct {
		Body StageResponse `json:"body"`
	}, error) {
		user, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.GetStage(ctx, user, input.StageID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StageResponse `json:"body"`
		}{Body: stageResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-stage",
		Method:      http.MethodPut,
		Path:        "/stages/{stage_id}",
		Summary:     "Replace stage",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		StageID string             `path:"stage_id"`
		Body    UpdateStageRequest `json:"body"`
	}) (*struct {
		Body StageResponse `json:"body"`
	}, error) {
		user, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.UpdateStage(ctx, user, input.StageID, engine.StageUpdate{
			Name:     input.Body.Name,
			Position: input.Body.Position,
			Color:    input.Body.Color,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StageResponse `json:"body"`
		}{Body: stageResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "patch-stage",
		Method:      http.MethodPatch,
		Path:        "/stages/{stage_id}",
		Summary:     "Patch stage",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		StageID string `path:"stage_id"`
		RawBody []byte `contentType:"application/json"`
	}) (*struct {
		Body StageResponse `json:"body"`
	}, error) {
		user, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		body, decodeErr := decodePatchBody(input.RawBody)
		if decodeErr != nil {
			return nil, decodeErr
		}
		s, err := e.PatchStage(ctx, user, input.StageID, body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StageResponse `json:"body"`
		}{Body: stageResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-stage",
		Method:        http.MethodDelete,
		Path:          "/stages/{stage_id}",
		Summary:       "Delete stage",
		DefaultStatus: http.StatusNoContent,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		StageID string `path:"stage_id"`
	}) (*struct{}, error) {
		user, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteStage(ctx, user, input.StageID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		user, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTask(ctx, user, engine.TaskCreate{
			ProjectID:   input.Body.ProjectID,
			StageID:     input.Body.StageID,
			Title:       input.Body.Title,
			Description: strVal(input.Body.Description),
			Priority:    input.Body.Priority,
			AssignedTo:  input.Body.AssignedTo,
			Images:      input.Body.Images,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(engine.TaskView{Task: t})}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		listQuery
		ProjectID  string `query:"projectId"`
		StageID    string `query:"stageId"`
		Title      string `query:"title"`
		Priority   string `query:"priority"`
		AssignedTo string `query:"assignedTo"`
	}) (*struct {
		Body Paginated[TaskResponse] `json:"body"`
	}, error) {
		user, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		page, limit, window := parsePagination(input.Page, input.Limit)
		filters := repo.TaskFilters{
			ProjectID:     input.ProjectID,
			StageID:       input.StageID,
			TitleContains: input.Title,
			Priority:      input.Priority,
			AssignedTo:    input.AssignedTo,
		}
		sort := parseSort(taskSort, input.SortField, input.SortOrder)
		items, total, err := e.ListTasks(ctx, user, filters, sort, window)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body Paginated[TaskResponse] `json:"body"`
		}{Body: paginated(mapTasks(items), page, limit, total)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		user, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		v, err := e.GetTask(ctx, user, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(v)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPut,
		Path:        "/tasks/{task_id}",
		Summary:     "Replace task",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Body   UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		user, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.UpdateTask(ctx, user, input.TaskID, engine.TaskUpdate{
			StageID:     input.Body.StageID,
			Title:       input.Body.Title,
			Description: strVal(input.Body.Description),
			Priority:    input.Body.Priority,
			AssignedTo:  input.Body.AssignedTo,
			Images:      input.Body.Images,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(engine.TaskView{Task: t})}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "patch-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}",
		Summary:     "Patch task",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID  string `path:"task_id"`
		RawBody []byte `contentType:"application/json"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		user, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		body, decodeErr := decodePatchBody(input.RawBody)
		if decodeErr != nil {
			return nil, decodeErr
		}
		t, err := e.PatchTask(ctx, user, input.TaskID, body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(engine.TaskView{Task: t})}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{task_id}",
		Summary:       "Delete task",
		DefaultStatus: http.StatusNoContent,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct{}, error) {
		user, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTask(ctx, user, input.TaskID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List audit events",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Limit     string `query:"limit"`
		Cursor    string `query:"cursor"`
		ProjectID string `query:"projectId"`
		Type      string `query:"type"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		user, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit, _ := strconv.Atoi(strings.TrimSpace(input.Limit))
		var cursor int64
		if n, err := strconv.ParseInt(strings.TrimSpace(input.Cursor), 10, 64); err == nil {
			cursor = n
		}
		items, err := e.ListEvents(ctx, user, limit, cursor, input.ProjectID, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(items)}, nil
	})
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>WorkNest API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}
