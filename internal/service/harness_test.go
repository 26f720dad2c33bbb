package service_test

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Strob0t/CourseForge/internal/config"
	"github.com/Strob0t/CourseForge/internal/domain/advisor"
	"github.com/Strob0t/CourseForge/internal/domain/conversation"
	"github.com/Strob0t/CourseForge/internal/domain/course"
	"github.com/Strob0t/CourseForge/internal/domain/orchestration"
	"github.com/Strob0t/CourseForge/internal/port/generator"
	"github.com/Strob0t/CourseForge/internal/port/messagequeue"
	"github.com/Strob0t/CourseForge/internal/service"
)

const (
	deptCS   = "Computer Science Department"
	deptMath = "Mathematical Sciences Department"
)

// --- catalog ---

type memCatalog struct {
	mu      sync.Mutex
	courses map[string][]course.Course
	lookups []string
	err     error
}

func newMemCatalog() *memCatalog {
	return &memCatalog{courses: map[string][]course.Course{
		deptCS:   titled(deptCS, "CS 1101", "CS 2102", "CS 3013"),
		deptMath: titled(deptMath, "MA 1021", "MA 1022"),
	}}
}

func titled(dept string, titles ...string) []course.Course {
	out := make([]course.Course, len(titles))
	for i, t := range titles {
		out[i] = course.Course{Title: t, Department: dept}
	}
	return out
}

func (m *memCatalog) CoursesByDepartment(_ context.Context, dept string) ([]course.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups = append(m.lookups, dept)
	if m.err != nil {
		return nil, m.err
	}
	return slices.Clone(m.courses[dept]), nil
}

func (m *memCatalog) ListDepartments(_ context.Context) ([]course.Department, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []course.Department
	for name := range m.courses {
		out = append(out, course.Department{Name: name})
	}
	slices.SortFunc(out, func(a, b course.Department) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (m *memCatalog) Lookups() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.lookups)
}

// --- broadcaster / queue ---

type recordedEvent struct {
	Type    string
	Payload any
}

type recBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (b *recBroadcaster) BroadcastEvent(_ context.Context, eventType string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{Type: eventType, Payload: payload})
}

func (b *recBroadcaster) Types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	for i, e := range b.events {
		out[i] = e.Type
	}
	return out
}

func (b *recBroadcaster) Events() []recordedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.events)
}

type recQueue struct {
	mu        sync.Mutex
	published map[string][][]byte
	handlers  map[string]messagequeue.Handler
}

func newRecQueue() *recQueue {
	return &recQueue{published: map[string][][]byte{}, handlers: map[string]messagequeue.Handler{}}
}

func (q *recQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published[subject] = append(q.published[subject], slices.Clone(data))
	return nil
}

func (q *recQueue) Subscribe(_ context.Context, subject string, h messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[subject] = h
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.handlers, subject)
	}, nil
}

func (q *recQueue) Deliver(ctx context.Context, subject string, data []byte) error {
	q.mu.Lock()
	h := q.handlers[subject]
	q.mu.Unlock()
	if h == nil {
		return nil
	}
	return h(ctx, subject, data)
}

func (q *recQueue) Published(subject string) [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.published[subject])
}

func (q *recQueue) Drain() error      { return nil }
func (q *recQueue) Close() error      { return nil }
func (q *recQueue) IsConnected() bool { return true }

// --- agents ---

// testRegistry registers a router and two advisors. Instruction templates
// start with "<agent id>|" so scripted generators can tell who is speaking.
func testRegistry(t *testing.T) *advisor.Registry {
	t.Helper()
	reg := advisor.NewRegistry()
	agents := []advisor.Agent{
		{
			ID:                  "router",
			Name:                "Schedule Router",
			InstructionTemplate: `router|{{join .CompletedCourses ","}}|{{join .DepartmentNames ","}}`,
			HandoffTargets:      []string{"cs", "math"},
		},
		{
			ID:                  "cs",
			Name:                "Computer Science Advisor",
			Department:          deptCS,
			InstructionTemplate: `cs|{{join .CompletedCourses ","}}`,
			DataTools:           []advisor.ToolRef{{ID: "fetch_cs_courses", Description: "CS courses"}},
			HandoffTargets:      []string{"router"},
		},
		{
			ID:                  "math",
			Name:                "Mathematics Advisor",
			Department:          deptMath,
			InstructionTemplate: `math|{{join .CompletedCourses ","}}`,
			DataTools:           []advisor.ToolRef{{ID: "fetch_math_courses", Description: "Math courses"}},
			HandoffTargets:      []string{"router"},
		},
	}
	for _, a := range agents {
		if err := reg.Register(a); err != nil {
			t.Fatalf("register %s: %v", a.ID, err)
		}
	}
	if err := reg.ValidateHandoffGraph(); err != nil {
		t.Fatalf("handoff graph: %v", err)
	}
	return reg
}

func orchConfig(maxTurns int, strategy orchestration.Strategy) config.Orchestrator {
	return config.Orchestrator{
		MaxTurns:    maxTurns,
		TurnTimeout: time.Second,
		RunTimeout:  5 * time.Second,
		Strategy:    string(strategy),
	}
}

// --- generators ---

func speaker(instructions string) string {
	id, _, _ := strings.Cut(instructions, "|")
	return id
}

func text(content string) generator.Response {
	return generator.Response{
		Message: conversation.Message{Role: conversation.RoleAssistant, Content: content},
		Usage:   orchestration.Usage{InputTokens: 10, OutputTokens: 2},
	}
}

func call(toolID string) generator.Response {
	return generator.Response{
		Message: conversation.Message{
			Role:     conversation.RoleAssistant,
			ToolCall: &conversation.ToolInvocation{ToolID: toolID, Arguments: json.RawMessage(`{}`)},
		},
		Usage: orchestration.Usage{InputTokens: 10, OutputTokens: 2},
	}
}

// catalogOutputs returns the data-tool outputs in msgs, skipping transfer
// acknowledgements.
func catalogOutputs(msgs []conversation.Message, agentID string) []string {
	var out []string
	for _, m := range msgs {
		if m.Role != conversation.RoleTool || strings.HasPrefix(m.Content, "Transferred to ") {
			continue
		}
		if agentID == "" || m.AgentID == agentID {
			out = append(out, m.Content)
		}
	}
	return out
}

// finalSchedule turns advisor recommendations into the router's answer.
func finalSchedule(outputs []string) string {
	lines := []string{"Final schedule:"}
	for _, o := range outputs {
		rows := strings.Split(o, "\n")
		if !strings.HasPrefix(rows[0], "Recommended ") {
			continue
		}
		lines = append(lines, rows[1:]...)
	}
	return strings.Join(lines, "\n")
}

// swarm mimics a cooperative model. The router hands off to route, an
// advisor fetches its courses once and transfers back, and the router then
// answers with the recommended titles.
type swarm struct {
	route string
	calls atomic.Int64

	mu   sync.Mutex
	seen []string // speaker of every call, in order
}

func (s *swarm) Generate(_ context.Context, instructions string, msgs []conversation.Message, _ []generator.ToolSpec) (generator.Response, error) {
	s.calls.Add(1)
	who := speaker(instructions)
	s.mu.Lock()
	s.seen = append(s.seen, who)
	s.mu.Unlock()

	if who == "router" {
		if outs := catalogOutputs(msgs, ""); len(outs) > 0 {
			return text(finalSchedule(outs)), nil
		}
		return call(orchestration.HandoffToolID(s.route)), nil
	}
	if len(catalogOutputs(msgs, who)) > 0 {
		return call(orchestration.HandoffToolID("router")), nil
	}
	return call("fetch_" + who + "_courses"), nil
}

func (s *swarm) Speakers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.seen)
}

// countingGen wraps a generator.Func with a call counter.
type countingGen struct {
	fn    generator.Func
	calls atomic.Int64
}

func (c *countingGen) Generate(ctx context.Context, instructions string, msgs []conversation.Message, tools []generator.ToolSpec) (generator.Response, error) {
	c.calls.Add(1)
	return c.fn(ctx, instructions, msgs, tools)
}

func newOrchestrator(t *testing.T, gen generator.Generator, cat *memCatalog, cfg config.Orchestrator, sched config.Schedule) (*service.Orchestrator, *recBroadcaster) {
	t.Helper()
	exec := service.NewTurnExecutor(gen, cat, nil, cfg, sched)
	orch := service.NewOrchestrator(testRegistry(t), exec, "router", cfg)
	hub := &recBroadcaster{}
	orch.SetBroadcaster(hub)
	return orch, hub
}
