// Package service implements the schedule orchestration on top of ports.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	cfotel "github.com/Strob0t/CourseForge/internal/adapter/otel"
	"github.com/Strob0t/CourseForge/internal/config"
	"github.com/Strob0t/CourseForge/internal/domain/advisor"
	"github.com/Strob0t/CourseForge/internal/domain/conversation"
	"github.com/Strob0t/CourseForge/internal/domain/orchestration"
	"github.com/Strob0t/CourseForge/internal/domain/student"
	"github.com/Strob0t/CourseForge/internal/logger"
	"github.com/Strob0t/CourseForge/internal/port/broadcast"
	"github.com/Strob0t/CourseForge/internal/port/messagequeue"
)

// noAdvisorsText is the final answer of a fan-out run whose department
// selection matched none of the router's advisors.
const noAdvisorsText = "No advisors serve the requested departments."

// TurnRunner executes a single agent turn.
type TurnRunner interface {
	ExecuteTurn(ctx context.Context, agent advisor.Agent, conv conversation.Conversation, sc student.Context) (orchestration.TurnResult, error)
}

// Orchestrator drives a run from the router to a terminal reply. Each call to
// Run owns its RunState; the Orchestrator itself is read-only after setup and
// safe for concurrent runs.
type Orchestrator struct {
	registry   *advisor.Registry
	turns      TurnRunner
	routerID   string
	maxTurns   int
	runTimeout time.Duration
	strategy   orchestration.Strategy

	hub     broadcast.Broadcaster
	queue   messagequeue.Queue
	metrics *cfotel.Metrics
}

// NewOrchestrator creates an Orchestrator entering runs at routerID, unless
// cfg.RouterID names a different entry agent.
func NewOrchestrator(registry *advisor.Registry, turns TurnRunner, routerID string, cfg config.Orchestrator) *Orchestrator {
	if cfg.RouterID != "" {
		routerID = cfg.RouterID
	}
	strategy := orchestration.Strategy(cfg.Strategy)
	if !strategy.Valid() {
		strategy = orchestration.StrategyHandoff
	}
	return &Orchestrator{
		registry:   registry,
		turns:      turns,
		routerID:   routerID,
		maxTurns:   cfg.MaxTurns,
		runTimeout: cfg.RunTimeout,
		strategy:   strategy,
	}
}

// SetBroadcaster enables live run events for connected clients.
func (o *Orchestrator) SetBroadcaster(hub broadcast.Broadcaster) {
	o.hub = hub
}

// SetQueue enables publishing run events to the message queue.
func (o *Orchestrator) SetQueue(q messagequeue.Queue) {
	o.queue = q
}

// SetMetrics enables metric recording.
func (o *Orchestrator) SetMetrics(m *cfotel.Metrics) {
	o.metrics = m
}

// RouterID returns the entry agent of every run.
func (o *Orchestrator) RouterID() string {
	return o.routerID
}

// Strategy returns the configured dispatch strategy.
func (o *Orchestrator) Strategy() orchestration.Strategy {
	return o.strategy
}

// Run executes one schedule run. A runID of "" gets a fresh UUID. The returned
// outcome is always populated; err is the cause of a failed run.
func (o *Orchestrator) Run(ctx context.Context, runID string, sc student.Context) (orchestration.Outcome, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx = logger.WithRunID(ctx, runID)
	if o.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.runTimeout)
		defer cancel()
	}
	ctx, span := cfotel.StartRunSpan(ctx, runID, string(o.strategy))
	defer span.End()

	start := time.Now()
	st := orchestration.NewRunState(runID, o.routerID, sc)
	if o.metrics != nil {
		o.metrics.RunsStarted.Add(ctx, 1)
	}
	slog.InfoContext(ctx, "schedule run started",
		"strategy", o.strategy, "entry_agent", o.routerID, "departments", sc.DepartmentNames())
	o.emit(ctx, messagequeue.SubjectRunStarted, messagequeue.RunStartedPayload{
		RunID:       runID,
		EntryAgent:  o.routerID,
		Strategy:    string(o.strategy),
		Departments: sc.DepartmentNames(),
	})

	var err error
	switch o.strategy {
	case orchestration.StrategyFanOutSequential:
		err = o.fanOut(ctx, st)
	default:
		_, err = o.drive(ctx, st, "")
	}
	if err != nil {
		_ = st.Fail(err)
	}

	out := st.Outcome()
	span.SetAttributes(
		attribute.String("run.status", string(out.Status)),
		attribute.Int("run.turns", out.TurnsTaken),
	)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("run.error_kind", string(out.ErrorKind)))
		slog.ErrorContext(ctx, "schedule run failed",
			"error", err, "error_kind", out.ErrorKind, "turns", out.TurnsTaken, "active_agent", st.ActiveAgent)
	} else {
		slog.InfoContext(ctx, "schedule run terminated",
			"turns", out.TurnsTaken, "lines", len(out.ScheduleLines), "final_agent", st.Final.AgentID,
			"input_tokens", out.Usage.InputTokens, "output_tokens", out.Usage.OutputTokens)
	}
	o.recordFinish(ctx, out, time.Since(start))
	o.emit(ctx, messagequeue.SubjectRunFinished, messagequeue.RunFinishedPayload{
		RunID:        runID,
		Status:       string(out.Status),
		ErrorKind:    string(out.ErrorKind),
		TurnsTaken:   out.TurnsTaken,
		InputTokens:  out.Usage.InputTokens,
		OutputTokens: out.Usage.OutputTokens,
	})
	return out, err
}

// drive runs turns from st.ActiveAgent. With returnTo == "" it runs until a
// terminal reply and terminates the run. With returnTo set it runs one
// fan-out segment: the run stays open and the segment ends on a terminal
// reply or a handoff to returnTo, yielding the segment's text.
func (o *Orchestrator) drive(ctx context.Context, st *orchestration.RunState, returnTo string) (string, error) {
	var lastToolOutput string
	for {
		if st.TurnsTaken >= o.maxTurns {
			return "", fmt.Errorf("run %s stopped after %d turns: %w", st.RunID, st.TurnsTaken, orchestration.ErrTurnLimitExceeded)
		}
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: run %s: %w", orchestration.ErrCollaborator, st.RunID, err)
		}

		agent, err := o.registry.Resolve(st.ActiveAgent)
		if err != nil {
			return "", err
		}

		res, err := o.turn(ctx, st, agent)
		if err != nil {
			return "", err
		}

		if res.Terminal {
			if returnTo == "" {
				return res.Message.Content, st.Terminate(res)
			}
			res.Transcript = []conversation.Message{res.Message}
			return res.Message.Content, st.Advance(res)
		}

		from := st.ActiveAgent
		turn := st.TurnsTaken
		if err := st.Advance(res); err != nil {
			return "", err
		}

		if res.IsHandoff(from) {
			o.recordHandoff(ctx, st.RunID, from, res.NextAgent, turn)
			if returnTo != "" && res.NextAgent == returnTo {
				return lastToolOutput, nil
			}
			continue
		}
		if res.ToolCall != nil && len(res.Transcript) > 1 {
			lastToolOutput = res.Transcript[len(res.Transcript)-1].Content
			o.emit(ctx, messagequeue.SubjectRunToolCall, messagequeue.RunToolCallPayload{
				RunID:   st.RunID,
				AgentID: from,
				CallID:  res.ToolCall.ID,
				Tool:    res.ToolCall.ToolID,
				Output:  lastToolOutput,
				Turn:    turn,
			})
		}
	}
}

// turn executes one generator turn inside its own span.
func (o *Orchestrator) turn(ctx context.Context, st *orchestration.RunState, agent advisor.Agent) (orchestration.TurnResult, error) {
	ctx, span := cfotel.StartTurnSpan(ctx, agent.ID, st.TurnsTaken)
	defer span.End()

	res, err := o.turns.ExecuteTurn(ctx, agent, st.Conversation, st.Context)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	span.SetAttributes(
		attribute.Bool("turn.terminal", res.Terminal),
		attribute.String("turn.next_agent", res.NextAgent),
	)
	return res, nil
}

// fanOut consults every router target whose department the student selected,
// in handoff declaration order, and joins the segment texts.
func (o *Orchestrator) fanOut(ctx context.Context, st *orchestration.RunState) error {
	router, err := o.registry.Resolve(o.routerID)
	if err != nil {
		return err
	}

	wanted := make(map[string]bool, len(st.Context.DepartmentNames()))
	for _, d := range st.Context.DepartmentNames() {
		wanted[d] = true
	}

	var segments []string
	for _, target := range router.HandoffTargets {
		adv, err := o.registry.Resolve(target)
		if err != nil {
			return err
		}
		if len(wanted) > 0 && !wanted[adv.Department] {
			continue
		}
		if err := st.BeginSegment(adv.ID); err != nil {
			return err
		}
		o.recordHandoff(ctx, st.RunID, o.routerID, adv.ID, st.TurnsTaken)

		text, err := o.drive(ctx, st, o.routerID)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) != "" {
			segments = append(segments, text)
		}
	}

	final := strings.Join(segments, "\n\n")
	if len(segments) == 0 {
		final = noAdvisorsText
	}
	return st.Finish(conversation.Message{
		Role:    conversation.RoleAssistant,
		Content: final,
		AgentID: o.routerID,
	})
}

func (o *Orchestrator) recordHandoff(ctx context.Context, runID, from, to string, turn int) {
	ev := orchestration.HandoffEvent{RunID: runID, SourceAgentID: from, TargetAgentID: to, Turn: turn}
	if err := ev.Validate(); err != nil {
		slog.WarnContext(ctx, "invalid handoff event", "error", err)
		return
	}
	slog.InfoContext(ctx, "handoff", "from", from, "to", to, "turn", turn)
	if o.metrics != nil {
		o.metrics.Handoffs.Add(ctx, 1, metric.WithAttributes(
			attribute.String("from", from), attribute.String("to", to)))
	}
	o.emit(ctx, messagequeue.SubjectRunHandoff, messagequeue.RunHandoffPayload{
		RunID:         runID,
		SourceAgentID: from,
		TargetAgentID: to,
		Turn:          turn,
	})
}

func (o *Orchestrator) recordFinish(ctx context.Context, out orchestration.Outcome, elapsed time.Duration) {
	if o.metrics == nil {
		return
	}
	o.metrics.RunDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("status", string(out.Status))))
	o.metrics.RunTurns.Record(ctx, int64(out.TurnsTaken))
	if out.Status == orchestration.StatusFailed {
		o.metrics.RunsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("error_kind", string(out.ErrorKind))))
		return
	}
	o.metrics.RunsCompleted.Add(ctx, 1)
}

// emit publishes a run event to the queue and to live clients. Both are best
// effort: an event that cannot be delivered never fails the run.
func (o *Orchestrator) emit(ctx context.Context, subject string, payload any) {
	if o.hub != nil {
		o.hub.BroadcastEvent(ctx, subject, payload)
	}
	if o.queue == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.WarnContext(ctx, "marshal run event", "subject", subject, "error", err)
		return
	}
	if err := o.queue.Publish(context.WithoutCancel(ctx), subject, data); err != nil {
		slog.WarnContext(ctx, "publish run event", "subject", subject, "error", err)
	}
}
