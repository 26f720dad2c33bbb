package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/Strob0t/CourseForge/internal/domain"
	"github.com/Strob0t/CourseForge/internal/domain/advisor"
	"github.com/Strob0t/CourseForge/internal/domain/course"
	"github.com/Strob0t/CourseForge/internal/domain/orchestration"
	"github.com/Strob0t/CourseForge/internal/domain/student"
	"github.com/Strob0t/CourseForge/internal/logger"
	"github.com/Strob0t/CourseForge/internal/port/catalog"
	"github.com/Strob0t/CourseForge/internal/port/messagequeue"
)

// ScheduleService is the entry point for schedule generation and catalog
// browsing. HTTP handlers, the queue worker, MCP tools and the CLI all go
// through it.
type ScheduleService struct {
	orch     *Orchestrator
	registry *advisor.Registry
	catalog  catalog.Gateway
	queue    messagequeue.Queue
	topN     int
}

// NewScheduleService creates a ScheduleService.
func NewScheduleService(orch *Orchestrator, registry *advisor.Registry, cat catalog.Gateway, topN int) *ScheduleService {
	return &ScheduleService{orch: orch, registry: registry, catalog: cat, topN: topN}
}

// SetQueue enables asynchronous generation over the message queue.
func (s *ScheduleService) SetQueue(q messagequeue.Queue) {
	s.queue = q
}

// Generate validates req and runs a schedule generation synchronously. When
// the request names no departments, every registered advisor's department is
// offered to the router.
func (s *ScheduleService) Generate(ctx context.Context, req student.Request) (orchestration.Outcome, error) {
	return s.GenerateWithID(ctx, "", req)
}

// GenerateWithID is Generate with a caller-chosen run id.
func (s *ScheduleService) GenerateWithID(ctx context.Context, runID string, req student.Request) (orchestration.Outcome, error) {
	if err := req.Validate(); err != nil {
		return orchestration.Outcome{}, err
	}
	sc := student.New(req).WithDefaultDepartments(s.registry.Departments())
	return s.orch.Run(ctx, runID, sc)
}

// Submit queues req for asynchronous generation and returns its run id. The
// outcome is published on schedules.result.
func (s *ScheduleService) Submit(ctx context.Context, req student.Request) (string, error) {
	if s.queue == nil {
		return "", fmt.Errorf("async generation: %w: no message queue configured", domain.ErrValidation)
	}
	if err := req.Validate(); err != nil {
		return "", err
	}
	runID := uuid.NewString()
	data, err := json.Marshal(messagequeue.ScheduleRequestPayload{RunID: runID, Request: req})
	if err != nil {
		return "", fmt.Errorf("marshal schedule request: %w", err)
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectScheduleRequest, data); err != nil {
		return "", fmt.Errorf("publish schedule request: %w", err)
	}
	slog.InfoContext(logger.WithRunID(ctx, runID), "schedule request queued")
	return runID, nil
}

// StartWorker subscribes to schedules.request and answers each request on
// schedules.result. The returned function cancels the subscription.
func (s *ScheduleService) StartWorker(ctx context.Context) (func(), error) {
	if s.queue == nil {
		return func() {}, nil
	}
	cancel, err := s.queue.Subscribe(ctx, messagequeue.SubjectScheduleRequest, func(msgCtx context.Context, _ string, data []byte) error {
		var payload messagequeue.ScheduleRequestPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("unmarshal schedule request: %w", err)
		}
		return s.HandleRequest(msgCtx, &payload)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe schedule request: %w", err)
	}
	return cancel, nil
}

// HandleRequest runs one queued request and publishes its outcome. A failed
// run is reported on schedules.result, not returned, so the message is not
// redelivered.
func (s *ScheduleService) HandleRequest(ctx context.Context, payload *messagequeue.ScheduleRequestPayload) error {
	if payload.RunID == "" {
		payload.RunID = uuid.NewString()
	}
	out, err := s.GenerateWithID(ctx, payload.RunID, payload.Request)
	if err != nil && out.RunID == "" {
		// Rejected before a run started.
		out = orchestration.Outcome{
			RunID:     payload.RunID,
			Status:    orchestration.StatusFailed,
			ErrorKind: orchestration.KindInternal,
		}
		slog.WarnContext(ctx, "queued schedule request rejected", "run_id", payload.RunID, "error", err)
	}

	data, err := json.Marshal(messagequeue.ScheduleResultPayload{
		RunID:         out.RunID,
		Status:        string(out.Status),
		ScheduleLines: out.ScheduleLines,
		ErrorKind:     string(out.ErrorKind),
	})
	if err != nil {
		return fmt.Errorf("marshal schedule result: %w", err)
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectScheduleResult, data); err != nil {
		return fmt.Errorf("publish schedule result: %w", err)
	}
	return nil
}

// Departments lists the catalog's departments.
func (s *ScheduleService) Departments(ctx context.Context) ([]course.Department, error) {
	return s.catalog.ListDepartments(ctx)
}

// DepartmentCourses lists a department's courses in catalog order.
func (s *ScheduleService) DepartmentCourses(ctx context.Context, department string) ([]course.Course, error) {
	if strings.TrimSpace(department) == "" {
		return nil, fmt.Errorf("%w: department is required", domain.ErrValidation)
	}
	return s.catalog.CoursesByDepartment(ctx, department)
}

// Recommend applies the catalog filter for one department outside of a run.
// A limit of zero uses the configured top-N.
func (s *ScheduleService) Recommend(ctx context.Context, department string, completed []string, limit int) (course.Selection, error) {
	courses, err := s.DepartmentCourses(ctx, department)
	if err != nil {
		return course.Selection{}, err
	}
	if limit == 0 {
		limit = s.topN
	}
	return course.Recommend(courses, completed, limit), nil
}

// Advisors returns the registered agents in registration order.
func (s *ScheduleService) Advisors() []advisor.Agent {
	return s.registry.Agents()
}

// RouterID is the entry agent of every run.
func (s *ScheduleService) RouterID() string {
	return s.orch.RouterID()
}
