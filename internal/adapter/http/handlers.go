package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Strob0t/CourseForge/internal/adapter/litellm"
	"github.com/Strob0t/CourseForge/internal/domain"
	"github.com/Strob0t/CourseForge/internal/domain/advisor"
	"github.com/Strob0t/CourseForge/internal/domain/course"
	"github.com/Strob0t/CourseForge/internal/domain/orchestration"
	"github.com/Strob0t/CourseForge/internal/domain/student"
	"github.com/Strob0t/CourseForge/internal/port/messagequeue"
	"github.com/Strob0t/CourseForge/internal/service"
)

const healthProbeTimeout = 2 * time.Second

// CatalogInvalidator drops cached catalog entries after the catalog changed.
type CatalogInvalidator interface {
	Invalidate(ctx context.Context, departments ...string) error
}

// Handlers holds the HTTP handler dependencies. LiteLLM and Queue are
// optional; health reports them as "disabled" when nil. A nil CatalogCache
// makes catalog refresh a no-op.
type Handlers struct {
	Schedules     *service.ScheduleService
	LiteLLM       *litellm.Client
	Queue         messagequeue.Queue
	CatalogCache  CatalogInvalidator
	CatalogSource string
	Version       string
}

type healthResponse struct {
	Status  string `json:"status"`
	LiteLLM string `json:"litellm"`
	NATS    string `json:"nats"`
	Catalog string `json:"catalog"`
}

// Health reports collaborator reachability. It always answers 200 so probes
// see the process as alive; Status is "degraded" when a dependency is down.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", LiteLLM: "disabled", NATS: "disabled", Catalog: h.CatalogSource}

	if h.LiteLLM != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
		ok, err := h.LiteLLM.Health(ctx)
		cancel()
		resp.LiteLLM = "ok"
		if !ok {
			resp.LiteLLM = "unreachable"
			resp.Status = "degraded"
			slog.WarnContext(r.Context(), "litellm health check failed", "error", err)
		}
	}
	if h.Queue != nil {
		resp.NATS = "ok"
		if !h.Queue.IsConnected() {
			resp.NATS = "disconnected"
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListDepartments handles GET /api/v1/departments.
func (h *Handlers) ListDepartments(w http.ResponseWriter, r *http.Request) {
	depts, err := h.Schedules.Departments(r.Context())
	if err != nil {
		writeDomainError(w, err, "departments not found")
		return
	}
	if depts == nil {
		depts = []course.Department{}
	}
	writeJSON(w, http.StatusOK, depts)
}

// DepartmentCourses handles GET /api/v1/departments/{name}/courses.
func (h *Handlers) DepartmentCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.Schedules.DepartmentCourses(r.Context(), urlParam(r, "name"))
	if err != nil {
		writeDomainError(w, err, "department not found")
		return
	}
	writeJSON(w, http.StatusOK, courses)
}

type recommendationResponse struct {
	Department string `json:"department"`
	course.Selection
}

// Recommend handles GET /api/v1/departments/{name}/recommendations. Each
// completed query value is one course title; limit=0 or absent uses the
// configured top-N.
func (h *Handlers) Recommend(w http.ResponseWriter, r *http.Request) {
	dept := urlParam(r, "name")
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	sel, err := h.Schedules.Recommend(r.Context(), dept, r.URL.Query()["completed"], limit)
	if err != nil {
		writeDomainError(w, err, "department not found")
		return
	}
	writeJSON(w, http.StatusOK, recommendationResponse{Department: dept, Selection: sel})
}

type advisorResponse struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Department     string   `json:"department,omitempty"`
	Tools          []string `json:"tools"`
	HandoffTargets []string `json:"handoff_targets"`
	Entry          bool     `json:"entry,omitempty"`
}

// ListAdvisors handles GET /api/v1/advisors.
func (h *Handlers) ListAdvisors(w http.ResponseWriter, _ *http.Request) {
	agents := h.Schedules.Advisors()
	out := make([]advisorResponse, 0, len(agents))
	for i := range agents {
		out = append(out, toAdvisorResponse(&agents[i], h.Schedules.RouterID()))
	}
	writeJSON(w, http.StatusOK, out)
}

func toAdvisorResponse(a *advisor.Agent, routerID string) advisorResponse {
	tools := a.Tools()
	ids := make([]string, 0, len(tools))
	for _, t := range tools {
		ids = append(ids, t.ID)
	}
	targets := a.HandoffTargets
	if targets == nil {
		targets = []string{}
	}
	return advisorResponse{
		ID:             a.ID,
		Name:           a.Name,
		Department:     a.Department,
		Tools:          ids,
		HandoffTargets: targets,
		Entry:          a.ID == routerID,
	}
}

type scheduleResponse struct {
	Status        string   `json:"status"`
	ScheduleLines []string `json:"schedule_lines"`
	RunID         string   `json:"run_id"`
}

// GenerateSchedule handles POST /api/v1/schedules/generate. The request runs
// to completion before the response is written.
func (h *Handlers) GenerateSchedule(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[student.Request](w, r)
	if !ok {
		return
	}

	out, err := h.Schedules.Generate(r.Context(), req)
	if err != nil && out.RunID == "" {
		writeDomainError(w, err, "schedule not found")
		return
	}
	if out.Status != orchestration.StatusTerminated {
		writeRunFailure(w, &out, err)
		return
	}
	writeJSON(w, http.StatusOK, scheduleResponse{
		Status:        string(out.Status),
		ScheduleLines: out.ScheduleLines,
		RunID:         out.RunID,
	})
}

type submitResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// SubmitSchedule handles POST /api/v1/schedules/async. The outcome is
// published on schedules.result and streamed over /ws?run_id=.
func (h *Handlers) SubmitSchedule(w http.ResponseWriter, r *http.Request) {
	if h.Queue == nil {
		writeError(w, http.StatusServiceUnavailable, "async generation is not enabled")
		return
	}
	req, ok := readJSON[student.Request](w, r)
	if !ok {
		return
	}

	runID, err := h.Schedules.Submit(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeDomainError(w, err, "")
			return
		}
		slog.ErrorContext(r.Context(), "schedule submit failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "schedule queue unavailable")
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{RunID: runID, Status: "queued"})
}

// VersionInfo handles GET /api/v1/version.
func (h *Handlers) VersionInfo(w http.ResponseWriter, _ *http.Request) {
	v := h.Version
	if v == "" {
		v = "dev"
	}
	writeJSON(w, http.StatusOK, map[string]string{"version": v})
}

type refreshRequest struct {
	Departments []string `json:"departments"`
}

// RefreshCatalog handles POST /api/v1/catalog/refresh, sent by the import job
// after it rewrote departments. The department list is always dropped.
func (h *Handlers) RefreshCatalog(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[refreshRequest](w, r)
	if !ok {
		return
	}
	if h.CatalogCache != nil {
		if err := h.CatalogCache.Invalidate(r.Context(), req.Departments...); err != nil {
			writeInternalError(w, err)
			return
		}
	}
	slog.InfoContext(r.Context(), "catalog cache invalidated", "departments", len(req.Departments))
	writeJSON(w, http.StatusOK, map[string]int{"invalidated": len(req.Departments)})
}
