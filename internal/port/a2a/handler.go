package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/CourseForge/internal/domain"
	"github.com/Strob0t/CourseForge/internal/domain/advisor"
	"github.com/Strob0t/CourseForge/internal/domain/orchestration"
	"github.com/Strob0t/CourseForge/internal/domain/student"
)

const maxTaskBodySize = 1 << 20

// Scheduler runs schedule generations for A2A tasks.
type Scheduler interface {
	GenerateWithID(ctx context.Context, runID string, req student.Request) (orchestration.Outcome, error)
	Advisors() []advisor.Agent
}

// Handler serves the A2A protocol endpoints.
type Handler struct {
	baseURL   string
	version   string
	schedules Scheduler
}

// NewHandler creates an A2A handler.
func NewHandler(baseURL, version string, schedules Scheduler) *Handler {
	return &Handler{baseURL: baseURL, version: version, schedules: schedules}
}

// MountRoutes registers A2A routes on the given chi router.
// These are mounted at the root level, not under /api/v1. taskMiddleware
// wraps only task creation, which runs a full schedule generation.
func (h *Handler) MountRoutes(r chi.Router, taskMiddleware ...func(http.Handler) http.Handler) {
	r.Get("/.well-known/agent.json", h.handleAgentCard)
	r.With(taskMiddleware...).Post("/a2a/tasks", h.handleCreateTask)
}

func (h *Handler) handleAgentCard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, BuildAgentCard(h.baseURL, h.version, h.schedules.Advisors()))
}

// handleCreateTask runs the task to completion. The task id doubles as the
// run id so callers can follow /ws?run_id= while waiting.
func (h *Handler) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req TaskRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTaskBodySize)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, TaskResponse{Status: "failed", Error: "invalid request body"})
		return
	}
	if req.ID == "" {
		writeJSON(w, http.StatusBadRequest, TaskResponse{Status: "failed", Error: "id is required"})
		return
	}
	if req.Skill != "" && req.Skill != SkillGenerateSchedule {
		writeJSON(w, http.StatusBadRequest, TaskResponse{ID: req.ID, Status: "failed", Error: "unknown skill " + req.Skill})
		return
	}

	out, err := h.schedules.GenerateWithID(r.Context(), req.ID, req.Input)
	if err != nil && out.RunID == "" {
		status := http.StatusInternalServerError
		msg := "internal server error"
		if errors.Is(err, domain.ErrValidation) {
			status = http.StatusBadRequest
			msg = err.Error()
		}
		writeJSON(w, status, TaskResponse{ID: req.ID, Status: "failed", Error: msg})
		return
	}

	slog.InfoContext(r.Context(), "a2a task finished", "id", req.ID, "status", out.Status)

	resp := TaskResponse{
		ID:     req.ID,
		Status: "completed",
		Output: &TaskOutput{RunID: out.RunID},
	}
	if out.Status != orchestration.StatusTerminated {
		resp.Status = "failed"
		resp.Error = "schedule generation failed"
		resp.Output.ErrorKind = string(out.ErrorKind)
	} else {
		resp.Output.ScheduleLines = out.ScheduleLines
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
