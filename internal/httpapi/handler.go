// Package httpapi is the REST surface. Handlers translate HTTP to the task
// and timer services and map domain errors onto the response envelope.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Anjos3/agente-seguimiento/internal/domain"
	"github.com/Anjos3/agente-seguimiento/internal/httpapi/middleware"
	"github.com/Anjos3/agente-seguimiento/internal/query"
	"github.com/Anjos3/agente-seguimiento/internal/store"
	"github.com/Anjos3/agente-seguimiento/internal/tasks"
	"github.com/Anjos3/agente-seguimiento/internal/timer"
)

const (
	maxNameLen        = 200
	maxDescriptionLen = 1000
	maxEstimated      = 1440 // one day
	maxListLimit      = 100
)

// Handler holds the service collaborators for all task routes.
type Handler struct {
	tasks   *tasks.Service
	engine  *timer.Engine
	queries *query.Service
	logger  *slog.Logger
}

func NewHandler(taskSvc *tasks.Service, engine *timer.Engine, queries *query.Service, logger *slog.Logger) *Handler {
	return &Handler{tasks: taskSvc, engine: engine, queries: queries, logger: logger}
}

// Router assembles the chi router with auth on everything under /api/v1.
func (h *Handler) Router(jwtSecret string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(h.logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1MB limit

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	r.Route("/api/v1/tasks", func(r chi.Router) {
		r.Use(middleware.Auth(jwtSecret))

		r.Post("/", h.CreateTask)
		r.Get("/", h.ListTasks)
		r.Get("/active", h.ActiveTask)
		r.Get("/today", h.TodayTasks)
		r.Get("/stats", h.Stats)
		r.Post("/complete-active", h.CompleteActive)

		r.Get("/{id}", h.GetTask)
		r.Put("/{id}", h.UpdateTask)
		r.Delete("/{id}", h.DeleteTask)

		r.Post("/{id}/start", h.StartTask)
		r.Post("/{id}/pause", h.PauseTask)
		r.Post("/{id}/complete", h.CompleteTask)
		r.Post("/{id}/cancel", h.CancelTask)
	})
	return r
}

// ── request bodies ────────────────────────────────────────────────────────

type createTaskRequest struct {
	Name             string  `json:"name"`
	Description      *string `json:"description"`
	CategoryID       *string `json:"category_id"`
	Priority         *string `json:"priority"`
	ScheduledDate    *string `json:"scheduled_date"`
	EstimatedMinutes *int    `json:"estimated_minutes"`
	StartNow         bool    `json:"start_now"`
}

type updateTaskRequest struct {
	Name             *string `json:"name"`
	Description      *string `json:"description"`
	CategoryID       *string `json:"category_id"`
	Priority         *string `json:"priority"`
	ScheduledDate    *string `json:"scheduled_date"`
	EstimatedMinutes *int    `json:"estimated_minutes"`
}

type taskWithEvents struct {
	*domain.Task
	Events []*domain.TaskEvent `json:"events"`
}

type activeTaskResponse struct {
	*domain.Task
	ElapsedMinutes int `json:"elapsed_minutes"`
}

type todayResponse struct {
	Tasks []*domain.Task `json:"tasks"`
	Stats *query.Stats   `json:"stats"`
}

// ── handlers ──────────────────────────────────────────────────────────────

// CreateTask handles POST /api/v1/tasks.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeValidationError(w, "field 'name' is required")
		return
	}
	if len(req.Name) > maxNameLen {
		writeValidationError(w, "field 'name' exceeds 200 characters")
		return
	}

	in := tasks.CreateInput{Name: req.Name, StartNow: req.StartNow}

	if req.Description != nil {
		if len(*req.Description) > maxDescriptionLen {
			writeValidationError(w, "field 'description' exceeds 1000 characters")
			return
		}
		in.Description = req.Description
	}
	in.CategoryID = req.CategoryID
	if req.Priority != nil {
		p := domain.Priority(*req.Priority)
		if !p.Valid() {
			writeValidationError(w, "field 'priority' must be low, medium or high")
			return
		}
		in.Priority = p
	}
	if req.ScheduledDate != nil {
		day, err := parseDay(*req.ScheduledDate)
		if err != nil {
			writeValidationError(w, "field 'scheduled_date' must be YYYY-MM-DD")
			return
		}
		in.ScheduledDate = &day
	}
	if req.EstimatedMinutes != nil {
		if *req.EstimatedMinutes < 1 || *req.EstimatedMinutes > maxEstimated {
			writeValidationError(w, "field 'estimated_minutes' must be between 1 and 1440")
			return
		}
		in.EstimatedMinutes = req.EstimatedMinutes
	}

	task, err := h.tasks.Create(r.Context(), middleware.OwnerID(r), in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// ListTasks handles GET /api/v1/tasks.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f store.ListFilters

	if v := q.Get("status"); v != "" {
		status := domain.Status(v)
		if !status.Valid() {
			writeValidationError(w, "unknown status filter")
			return
		}
		f.Status = &status
	}
	if v := q.Get("date"); v != "" {
		day, err := parseDay(v)
		if err != nil {
			writeValidationError(w, "query 'date' must be YYYY-MM-DD")
			return
		}
		f.Day = &day
	}
	if v := q.Get("category_id"); v != "" {
		f.CategoryID = &v
	}
	if v := q.Get("priority"); v != "" {
		p := domain.Priority(v)
		if !p.Valid() {
			writeValidationError(w, "unknown priority filter")
			return
		}
		f.Priority = &p
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			writeValidationError(w, "query 'limit' must be between 1 and 100")
			return
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeValidationError(w, "query 'offset' must be non-negative")
			return
		}
		f.Offset = n
	}

	list, err := h.queries.List(r.Context(), middleware.OwnerID(r), f)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if list == nil {
		list = []*domain.Task{}
	}
	writeJSON(w, http.StatusOK, list)
}

// ActiveTask handles GET /api/v1/tasks/active. With no running task the
// data field is null.
func (h *Handler) ActiveTask(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.OwnerID(r)
	task, err := h.queries.ActiveTask(r.Context(), ownerID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if task == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	elapsed, err := h.engine.ElapsedMinutes(r.Context(), ownerID, task.ID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, activeTaskResponse{Task: task, ElapsedMinutes: elapsed})
}

// TodayTasks handles GET /api/v1/tasks/today: the day's task list plus its
// summary stats in one response.
func (h *Handler) TodayTasks(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.OwnerID(r)
	list, err := h.queries.TodayTasks(r.Context(), ownerID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if list == nil {
		list = []*domain.Task{}
	}
	stats, err := h.queries.StatsFor(r.Context(), ownerID, time.Time{})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, todayResponse{Tasks: list, Stats: stats})
}

// Stats handles GET /api/v1/tasks/stats. Defaults to today when no date is
// given.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	var day time.Time
	if v := r.URL.Query().Get("date"); v != "" {
		parsed, err := parseDay(v)
		if err != nil {
			writeValidationError(w, "query 'date' must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	stats, err := h.queries.StatsFor(r.Context(), middleware.OwnerID(r), day)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetTask handles GET /api/v1/tasks/{id}.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, events, err := h.tasks.Get(r.Context(), middleware.OwnerID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if events == nil {
		events = []*domain.TaskEvent{}
	}
	writeJSON(w, http.StatusOK, taskWithEvents{Task: task, Events: events})
}

// UpdateTask handles PUT /api/v1/tasks/{id}.
func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "invalid request body")
		return
	}

	var in tasks.UpdateInput
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			writeValidationError(w, "field 'name' must not be empty")
			return
		}
		if len(name) > maxNameLen {
			writeValidationError(w, "field 'name' exceeds 200 characters")
			return
		}
		in.Name = &name
	}
	if req.Description != nil {
		if len(*req.Description) > maxDescriptionLen {
			writeValidationError(w, "field 'description' exceeds 1000 characters")
			return
		}
		in.Description = req.Description
	}
	in.CategoryID = req.CategoryID
	if req.Priority != nil {
		p := domain.Priority(*req.Priority)
		if !p.Valid() {
			writeValidationError(w, "field 'priority' must be low, medium or high")
			return
		}
		in.Priority = &p
	}
	if req.ScheduledDate != nil {
		day, err := parseDay(*req.ScheduledDate)
		if err != nil {
			writeValidationError(w, "field 'scheduled_date' must be YYYY-MM-DD")
			return
		}
		in.ScheduledDate = &day
	}
	if req.EstimatedMinutes != nil {
		if *req.EstimatedMinutes < 1 || *req.EstimatedMinutes > maxEstimated {
			writeValidationError(w, "field 'estimated_minutes' must be between 1 and 1440")
			return
		}
		in.EstimatedMinutes = req.EstimatedMinutes
	}

	task, err := h.tasks.Update(r.Context(), middleware.OwnerID(r), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// DeleteTask handles DELETE /api/v1/tasks/{id}.
func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.tasks.Delete(r.Context(), middleware.OwnerID(r), chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StartTask handles POST /api/v1/tasks/{id}/start.
func (h *Handler) StartTask(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.engine.Start, chi.URLParam(r, "id"))
}

// PauseTask handles POST /api/v1/tasks/{id}/pause.
func (h *Handler) PauseTask(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.engine.Pause, chi.URLParam(r, "id"))
}

// CompleteTask handles POST /api/v1/tasks/{id}/complete.
func (h *Handler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.engine.Complete, chi.URLParam(r, "id"))
}

// CompleteActive handles POST /api/v1/tasks/complete-active: completes
// whichever task is currently running.
func (h *Handler) CompleteActive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.engine.Complete, "")
}

// CancelTask handles POST /api/v1/tasks/{id}/cancel.
func (h *Handler) CancelTask(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.engine.Cancel, chi.URLParam(r, "id"))
}

func (h *Handler) transition(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, ownerID, taskID string) (*domain.Task, error),
	taskID string,
) {
	task, err := op(r.Context(), middleware.OwnerID(r), taskID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// Readyz handles GET /readyz — checks store reachability through a cheap read.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, err := h.queries.ActiveTask(ctx, "__readyz__"); err != nil {
		writeError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "store not ready")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

// ── envelope ──────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   map[string]string{"code": code, "message": msg},
	})
}

func writeValidationError(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", msg)
}

// writeDomainError maps coded domain errors to 404/400 and everything else
// to a 500 with the details kept out of the response.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	if code, ok := domain.ErrorCode(err); ok {
		status := http.StatusBadRequest
		if code == domain.CodeTaskNotFound {
			status = http.StatusNotFound
		}
		writeError(w, status, code, err.Error())
		return
	}
	h.logger.Error("request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
}

// parseDay parses a YYYY-MM-DD string into a UTC midnight time.
func parseDay(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", s, time.UTC)
}
