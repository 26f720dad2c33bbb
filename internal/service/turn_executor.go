package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	cfotel "github.com/Strob0t/CourseForge/internal/adapter/otel"
	"github.com/Strob0t/CourseForge/internal/config"
	"github.com/Strob0t/CourseForge/internal/domain/advisor"
	"github.com/Strob0t/CourseForge/internal/domain/conversation"
	"github.com/Strob0t/CourseForge/internal/domain/course"
	"github.com/Strob0t/CourseForge/internal/domain/orchestration"
	"github.com/Strob0t/CourseForge/internal/domain/student"
	"github.com/Strob0t/CourseForge/internal/port/catalog"
	"github.com/Strob0t/CourseForge/internal/port/generator"
	"github.com/Strob0t/CourseForge/internal/resilience"
)

var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// TurnExecutor runs one agent turn: render instructions, ask the generator,
// and interpret its reply as terminal text, a handoff, or a catalog lookup.
// It holds no per-run state and is shared by concurrent runs.
type TurnExecutor struct {
	gen         generator.Generator
	catalog     catalog.Gateway
	breaker     *resilience.Breaker
	policy      advisor.Policy
	turnTimeout time.Duration
	metrics     *cfotel.Metrics
}

// NewTurnExecutor creates a TurnExecutor. breaker may be nil.
func NewTurnExecutor(
	gen generator.Generator,
	cat catalog.Gateway,
	breaker *resilience.Breaker,
	orchCfg config.Orchestrator,
	schedCfg config.Schedule,
) *TurnExecutor {
	return &TurnExecutor{
		gen:         gen,
		catalog:     cat,
		breaker:     breaker,
		turnTimeout: orchCfg.TurnTimeout,
		policy: advisor.Policy{
			TopN:                   schedCfg.TopN,
			CourseCount:            schedCfg.CourseCount,
			PhysicalEducationAddon: schedCfg.PhysicalEducationAddon,
		},
	}
}

// SetMetrics enables metric recording.
func (e *TurnExecutor) SetMetrics(m *cfotel.Metrics) {
	e.metrics = m
}

// Policy returns the schedule policy rendered into instructions.
func (e *TurnExecutor) Policy() advisor.Policy {
	return e.policy
}

// ExecuteTurn runs a single turn for agent against conv. conv is never
// modified; the messages the turn produced are returned in the transcript.
func (e *TurnExecutor) ExecuteTurn(
	ctx context.Context,
	agent advisor.Agent,
	conv conversation.Conversation,
	sc student.Context,
) (orchestration.TurnResult, error) {
	instructions, err := agent.Render(sc, e.policy)
	if err != nil {
		return orchestration.TurnResult{}, err
	}

	resp, err := e.generate(ctx, instructions, conv.Messages(), toolSpecs(&agent))
	if err != nil {
		return orchestration.TurnResult{}, fmt.Errorf("%w: agent %s: %w", orchestration.ErrCollaborator, agent.ID, err)
	}

	msg := resp.Message
	msg.Role = conversation.RoleAssistant
	msg.AgentID = agent.ID
	if msg.ToolCall != nil && msg.ToolCall.ToolID == "" {
		return orchestration.TurnResult{}, fmt.Errorf("%w: agent %s: %w",
			orchestration.ErrCollaborator, agent.ID, generator.ErrMalformedToolCall)
	}
	if !msg.HasToolCall() {
		msg.ToolCall = nil
		return orchestration.TurnResult{Terminal: true, Message: msg, Usage: resp.Usage}, nil
	}

	call := msg.ToolCall
	if call.ID == "" {
		call.ID = "call_" + uuid.NewString()
	}

	tool, ok := agent.Tool(call.ToolID)
	if !ok {
		if target, isHandoff := orchestration.HandoffTarget(call.ToolID); isHandoff {
			return orchestration.TurnResult{}, fmt.Errorf("agent %s -> %s: %w", agent.ID, target, orchestration.ErrIllegalHandoff)
		}
		return orchestration.TurnResult{}, fmt.Errorf("%w: agent %s called %q: %w",
			orchestration.ErrCollaborator, agent.ID, call.ToolID, orchestration.ErrUnknownTool)
	}

	var output string
	next := agent.ID
	switch tool.Kind {
	case advisor.ToolKindHandoff:
		if !agent.CanHandoffTo(tool.Target) {
			return orchestration.TurnResult{}, fmt.Errorf("agent %s -> %s: %w", agent.ID, tool.Target, orchestration.ErrIllegalHandoff)
		}
		next = tool.Target
		output = "Transferred to " + tool.Target + "."
	case advisor.ToolKindData:
		output, err = e.recommend(ctx, call.ID, tool, sc)
		if err != nil {
			return orchestration.TurnResult{}, err
		}
	default:
		return orchestration.TurnResult{}, fmt.Errorf("tool %s has kind %q: %w", tool.ID, tool.Kind, orchestration.ErrUnknownTool)
	}

	return orchestration.TurnResult{
		NextAgent: next,
		Message:   msg,
		ToolCall:  call,
		Usage:     resp.Usage,
		Transcript: []conversation.Message{
			msg,
			{Role: conversation.RoleTool, Content: output, ToolCallID: call.ID, AgentID: agent.ID},
		},
	}, nil
}

func (e *TurnExecutor) generate(ctx context.Context, instructions string, msgs []conversation.Message, tools []generator.ToolSpec) (generator.Response, error) {
	callCtx := ctx
	if e.turnTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.turnTimeout)
		defer cancel()
	}

	if e.metrics != nil {
		e.metrics.GeneratorCalls.Add(ctx, 1)
	}

	var resp generator.Response
	call := func() error {
		var err error
		resp, err = e.gen.Generate(callCtx, instructions, msgs, tools)
		if err == nil && callCtx.Err() != nil {
			err = callCtx.Err()
		}
		return err
	}
	var err error
	if e.breaker != nil {
		err = e.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		return generator.Response{}, err
	}

	if e.metrics != nil {
		e.metrics.Tokens.Add(ctx, resp.Usage.InputTokens, metric.WithAttributes(attribute.String("direction", "input")))
		e.metrics.Tokens.Add(ctx, resp.Usage.OutputTokens, metric.WithAttributes(attribute.String("direction", "output")))
	}
	return resp, nil
}

func (e *TurnExecutor) recommend(ctx context.Context, callID string, tool advisor.ToolRef, sc student.Context) (string, error) {
	ctx, span := cfotel.StartToolCallSpan(ctx, callID, tool.ID, tool.Department)
	defer span.End()

	courses, err := e.catalog.CoursesByDepartment(ctx, tool.Department)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("catalog lookup %q: %w", tool.Department, err)
	}
	sel := course.Recommend(courses, sc.CompletedCourses(), e.policy.TopN)
	span.SetAttributes(
		attribute.Int("catalog.courses", len(courses)),
		attribute.Int("catalog.recommended", len(sel.Courses)),
	)
	if e.metrics != nil {
		e.metrics.ToolCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool.ID)))
	}
	slog.DebugContext(ctx, "catalog tool executed",
		"tool", tool.ID, "department", tool.Department,
		"catalog_size", len(courses), "recommended", len(sel.Courses), "no_new_courses", sel.NoNewCourses)
	return sel.Render(tool.Department), nil
}

func toolSpecs(agent *advisor.Agent) []generator.ToolSpec {
	refs := agent.Tools()
	specs := make([]generator.ToolSpec, len(refs))
	for i, t := range refs {
		specs[i] = generator.ToolSpec{
			Name:        t.ID,
			Description: t.Description,
			Parameters:  emptyObjectSchema,
		}
	}
	return specs
}
