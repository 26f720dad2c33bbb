package orchestration

import (
	"fmt"
	"strings"

	"github.com/Strob0t/CourseForge/internal/domain/conversation"
	"github.com/Strob0t/CourseForge/internal/domain/student"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning    Status = "running"
	StatusTerminated Status = "terminated"
	StatusFailed     Status = "failed"
)

// Strategy selects how the orchestrator dispatches work to advisors.
type Strategy string

const (
	// StrategyHandoff lets agents pass control to each other via transfer tools.
	StrategyHandoff Strategy = "handoff"
	// StrategyFanOutSequential has the router consult each advisor in turn.
	StrategyFanOutSequential Strategy = "fan_out_sequential"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	return s == StrategyHandoff || s == StrategyFanOutSequential
}

// InitialPrompt seeds every run's conversation.
const InitialPrompt = "Generate a schedule for me."

// RunState is owned by exactly one orchestrator invocation and discarded when
// it returns. It is not safe for concurrent use.
type RunState struct {
	RunID        string
	Status       Status
	ActiveAgent  string
	Conversation conversation.Conversation
	TurnsTaken   int
	Context      student.Context
	Usage        Usage
	Final        conversation.Message
	Err          error
}

// NewRunState returns a running state positioned at the entry agent with the
// seed user message.
func NewRunState(runID, entryAgent string, ctx student.Context) *RunState {
	return &RunState{
		RunID:       runID,
		Status:      StatusRunning,
		ActiveAgent: entryAgent,
		Conversation: conversation.New(conversation.Message{
			Role:    conversation.RoleUser,
			Content: InitialPrompt,
		}),
		Context: ctx,
	}
}

// Finished reports whether the run reached a final state.
func (s *RunState) Finished() bool {
	return s.Status != StatusRunning
}

// Advance applies a non-terminal turn: the transcript is appended, the turn
// counter incremented and the next agent activated.
func (s *RunState) Advance(res TurnResult) error {
	if s.Finished() {
		return fmt.Errorf("advance run %s: %w", s.RunID, ErrRunFinished)
	}
	s.Conversation = s.Conversation.Append(res.Transcript...)
	s.TurnsTaken++
	s.Usage.Add(res.Usage)
	if res.NextAgent != "" {
		s.ActiveAgent = res.NextAgent
	}
	return nil
}

// Terminate applies a terminal turn.
func (s *RunState) Terminate(res TurnResult) error {
	if s.Finished() {
		return fmt.Errorf("terminate run %s: %w", s.RunID, ErrRunFinished)
	}
	s.Conversation = s.Conversation.Append(res.Message)
	s.TurnsTaken++
	s.Usage.Add(res.Usage)
	s.Final = res.Message
	s.Status = StatusTerminated
	return nil
}

// Finish terminates the run with a message assembled by the orchestrator
// rather than produced by a generator call, so no turn is counted.
func (s *RunState) Finish(msg conversation.Message) error {
	if s.Finished() {
		return fmt.Errorf("finish run %s: %w", s.RunID, ErrRunFinished)
	}
	s.Conversation = s.Conversation.Append(msg)
	s.Final = msg
	s.Status = StatusTerminated
	return nil
}

// BeginSegment activates agentID with a fresh seeded conversation. Turns
// already taken still count against the run's budget.
func (s *RunState) BeginSegment(agentID string) error {
	if s.Finished() {
		return fmt.Errorf("begin segment on run %s: %w", s.RunID, ErrRunFinished)
	}
	s.ActiveAgent = agentID
	s.Conversation = conversation.New(conversation.Message{
		Role:    conversation.RoleUser,
		Content: InitialPrompt,
	})
	return nil
}

// Fail moves the run to the failed state. The error is stored unchanged.
func (s *RunState) Fail(err error) error {
	if s.Finished() {
		return fmt.Errorf("fail run %s: %w", s.RunID, ErrRunFinished)
	}
	s.Status = StatusFailed
	s.Err = err
	return nil
}

// Outcome is what a caller receives at the end of a run. A failed outcome never
// carries schedule lines.
type Outcome struct {
	RunID         string    `json:"run_id"`
	Status        Status    `json:"status"`
	ScheduleLines []string  `json:"schedule_lines,omitempty"`
	ErrorKind     ErrorKind `json:"error_kind,omitempty"`
	TurnsTaken    int       `json:"turns_taken"`
	Usage         Usage     `json:"usage"`
}

// Outcome derives the caller-facing result from a finished state.
func (s *RunState) Outcome() Outcome {
	out := Outcome{
		RunID:      s.RunID,
		Status:     s.Status,
		TurnsTaken: s.TurnsTaken,
		Usage:      s.Usage,
	}
	switch s.Status {
	case StatusTerminated:
		out.ScheduleLines = SplitLines(s.Final.Content)
	case StatusFailed:
		out.ErrorKind = Classify(s.Err)
	}
	return out
}

// SplitLines splits the terminal message on "\n" verbatim. Blank lines and
// surrounding whitespace are preserved.
func SplitLines(text string) []string {
	return strings.Split(text, "\n")
}
