package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"dayline/internal/domain"
	"dayline/internal/registry"
	"dayline/internal/repo"
	"dayline/internal/scheduler"
	"dayline/internal/template"
)

// Config for the HTTP API handler.
type Config struct {
	Scheduler *scheduler.Scheduler
	Repo      repo.Repo
	Registry  *registry.Registry
	Templates *template.Store
	BasePath  string
	Auth      AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"work unit not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Dayline API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Scheduler == nil {
		return nil, errors.New("server: scheduler required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Repo))
	hcfg := huma.DefaultConfig("Dayline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerStatus(group, cfg.Scheduler)
	registerCatalog(group, cfg.Registry, cfg.Templates)
	registerQueue(group, cfg.Scheduler)
	registerUnits(group, cfg.Scheduler, cfg.Repo)
	registerSummaries(group, cfg.Repo)
	registerBudget(group, cfg.Scheduler, cfg.Repo)
	registerControls(group, cfg.Scheduler)
	registerEvents(group, cfg.Repo)

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

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	default:
		return "internal_error"
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var nf registry.ErrNotFound
	if errors.As(err, &nf) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "not loaded"), strings.Contains(lowered, "not queued or running"):
		return newAPIError(http.StatusNotFound, "not_found", msg, nil)
	case strings.Contains(lowered, "invalid phase"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", msg, nil)
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

func registerStatus(api huma.API, s *scheduler.Scheduler) {
	huma.Register(api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Scheduler status",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body scheduler.Status `json:"body"`
	}, error) {
		st, err := s.CurrentStatus(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body scheduler.Status `json:"body"`
		}{Body: st}, nil
	})
}

func registerCatalog(api huma.API, reg *registry.Registry, tpls *template.Store) {
	huma.Register(api, huma.Operation{
		OperationID: "list-actions",
		Method:      http.MethodGet,
		Path:        "/actions",
		Summary:     "Action catalog",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.ActionDefinition `json:"body"`
	}, error) {
		return &struct {
			Body []domain.ActionDefinition `json:"body"`
		}{Body: reg.All()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-templates",
		Method:      http.MethodGet,
		Path:        "/templates",
		Summary:     "Work unit templates",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.WorkUnitTemplate `json:"body"`
	}, error) {
		return &struct {
			Body []domain.WorkUnitTemplate `json:"body"`
		}{Body: tpls.All()}, nil
	})
}

func registerQueue(api huma.API, s *scheduler.Scheduler) {
	type queuePath struct {
		Phase string `path:"phase" enum:"morning,afternoon,evening,night"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "peek-queue",
		Method:      http.MethodGet,
		Path:        "/queue/{phase}",
		Summary:     "Pending units for a phase, in dequeue order",
	}, func(ctx context.Context, input *queuePath) (*struct {
		Body []domain.WorkUnit `json:"body"`
	}, error) {
		phase := domain.Phase(input.Phase)
		if !phase.Valid() {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown phase", nil)
		}
		return &struct {
			Body []domain.WorkUnit `json:"body"`
		}{Body: s.Peek(phase)}, nil
	})
}

func registerUnits(api huma.API, s *scheduler.Scheduler, r repo.Repo) {
	type enqueueRequest struct {
		Body struct {
			TemplateID string `json:"template_id"`
			Phase      string `json:"phase" enum:"morning,afternoon,evening,night"`
			Priority   int    `json:"priority,omitempty"`
		}
	}
	huma.Register(api, huma.Operation{
		OperationID:   "enqueue-unit",
		Method:        http.MethodPost,
		Path:          "/units",
		Summary:       "Manually enqueue a template",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *enqueueRequest) (*struct {
		Body domain.WorkUnit `json:"body"`
	}, error) {
		u, err := s.Enqueue(ctx, input.Body.TemplateID, domain.Phase(input.Body.Phase), input.Body.Priority)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WorkUnit `json:"body"`
		}{Body: u}, nil
	})

	type listUnitsInput struct {
		Phase  string `query:"phase"`
		Status string `query:"status"`
		Limit  int    `query:"limit"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-units",
		Method:      http.MethodGet,
		Path:        "/units",
		Summary:     "List work units",
	}, func(ctx context.Context, input *listUnitsInput) (*struct {
		Body []domain.WorkUnit `json:"body"`
	}, error) {
		units, err := r.ListWorkUnits(ctx, repo.WorkUnitFilter{Phase: input.Phase, Status: input.Status, Limit: input.Limit})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.WorkUnit `json:"body"`
		}{Body: units}, nil
	})

	type unitPath struct {
		ID string `path:"id"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-unit",
		Method:      http.MethodGet,
		Path:        "/units/{id}",
		Summary:     "Get one work unit",
	}, func(ctx context.Context, input *unitPath) (*struct {
		Body domain.WorkUnit `json:"body"`
	}, error) {
		u, err := r.GetWorkUnit(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WorkUnit `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-unit",
		Method:      http.MethodPost,
		Path:        "/units/{id}/cancel",
		Summary:     "Cancel a queued or running unit",
	}, func(ctx context.Context, input *unitPath) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if err := s.Cancel(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "cancel_requested"}}, nil
	})
}

func registerSummaries(api huma.API, r repo.Repo) {
	type listInput struct {
		Phase   string `query:"phase"`
		Success string `query:"success" enum:",true,false"`
		Limit   int    `query:"limit"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-summaries",
		Method:      http.MethodGet,
		Path:        "/summaries",
		Summary:     "List work summaries",
	}, func(ctx context.Context, input *listInput) (*struct {
		Body []domain.WorkSummary `json:"body"`
	}, error) {
		f := repo.SummaryFilter{Phase: input.Phase, Limit: input.Limit}
		switch input.Success {
		case "true":
			v := true
			f.Success = &v
		case "false":
			v := false
			f.Success = &v
		}
		summaries, err := r.ListWorkSummaries(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.WorkSummary `json:"body"`
		}{Body: summaries}, nil
	})

	type summaryPath struct {
		WorkUnitID string `path:"work_unit_id"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-summary",
		Method:      http.MethodGet,
		Path:        "/summaries/{work_unit_id}",
		Summary:     "Get one work summary",
	}, func(ctx context.Context, input *summaryPath) (*struct {
		Body domain.WorkSummary `json:"body"`
	}, error) {
		s, err := r.GetWorkSummary(ctx, input.WorkUnitID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WorkSummary `json:"body"`
		}{Body: s}, nil
	})
}

func registerBudget(api huma.API, s *scheduler.Scheduler, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "budget",
		Method:      http.MethodGet,
		Path:        "/budget",
		Summary:     "Budget snapshot",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.BudgetSnapshot `json:"body"`
	}, error) {
		st, err := s.CurrentStatus(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.BudgetSnapshot `json:"body"`
		}{Body: st.Budget}, nil
	})

	type entriesInput struct {
		Day string `query:"day"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "budget-entries",
		Method:      http.MethodGet,
		Path:        "/budget/entries",
		Summary:     "Ledger entries for a day",
	}, func(ctx context.Context, input *entriesInput) (*struct {
		Body []domain.BudgetEntry `json:"body"`
	}, error) {
		day := input.Day
		if day == "" {
			st, err := s.CurrentStatus(ctx)
			if err != nil {
				return nil, handleError(err)
			}
			day = st.Budget.Day
		}
		entries, err := r.ListBudgetEntries(ctx, day)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.BudgetEntry `json:"body"`
		}{Body: entries}, nil
	})
}

func registerControls(api huma.API, s *scheduler.Scheduler) {
	huma.Register(api, huma.Operation{
		OperationID: "pause-scheduler",
		Method:      http.MethodPost,
		Path:        "/scheduler/pause",
		Summary:     "Pause the tick loop",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]bool `json:"body"`
	}, error) {
		s.Pause(ctx)
		return &struct {
			Body map[string]bool `json:"body"`
		}{Body: map[string]bool{"paused": true}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resume-scheduler",
		Method:      http.MethodPost,
		Path:        "/scheduler/resume",
		Summary:     "Resume the tick loop",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]bool `json:"body"`
	}, error) {
		s.Resume(ctx)
		return &struct {
			Body map[string]bool `json:"body"`
		}{Body: map[string]bool{"paused": false}}, nil
	})
}

func registerEvents(api huma.API, r repo.Repo) {
	type listInput struct {
		Type     string `query:"type"`
		EntityID string `query:"entity_id"`
		Limit    int    `query:"limit"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Event log, newest first",
	}, func(ctx context.Context, input *listInput) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		events, err := r.ListEvents(ctx, repo.EventFilter{Type: input.Type, EntityID: input.EntityID, Limit: limit})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: events}, nil
	})
}
