// AG-UI (Agent-User Interaction) protocol event types. Run events are
// translated into these for frontends that speak AG-UI.

package ws

import (
	"github.com/Strob0t/CourseForge/internal/domain/orchestration"
	"github.com/Strob0t/CourseForge/internal/port/messagequeue"
)

// AG-UI event type constants.
const (
	AGUIRunStarted   = "agui.run_started"
	AGUIRunFinished  = "agui.run_finished"
	AGUIToolCall     = "agui.tool_call"
	AGUIToolResult   = "agui.tool_result"
	AGUIStepStarted  = "agui.step_started"
	AGUIStepFinished = "agui.step_finished"
)

// AGUIRunStartedEvent signals that an agent run has begun.
type AGUIRunStartedEvent struct {
	RunID     string `json:"run_id"`
	AgentName string `json:"agent_name,omitempty"`
}

// AGUIRunFinishedEvent signals that an agent run has completed.
type AGUIRunFinishedEvent struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"` // "completed", "failed"
}

// AGUIToolCallEvent signals a tool invocation by the agent.
type AGUIToolCallEvent struct {
	RunID  string `json:"run_id"`
	CallID string `json:"call_id"`
	Name   string `json:"name"`
}

// AGUIToolResultEvent carries the result of a tool invocation.
type AGUIToolResultEvent struct {
	RunID  string `json:"run_id"`
	CallID string `json:"call_id"`
	Result string `json:"result"`
}

// AGUIStepStartedEvent signals that an agent took over the run.
type AGUIStepStartedEvent struct {
	RunID  string `json:"run_id"`
	StepID string `json:"step_id"`
	Name   string `json:"name"`
}

// AGUIStepFinishedEvent signals that an agent handed the run on.
type AGUIStepFinishedEvent struct {
	RunID  string `json:"run_id"`
	StepID string `json:"step_id"`
	Status string `json:"status"`
}

type aguiEvent struct {
	typ     string
	payload any
}

// toAGUI maps a run event onto zero or more AG-UI events.
func toAGUI(payload any) []aguiEvent {
	switch p := payload.(type) {
	case messagequeue.RunStartedPayload:
		return []aguiEvent{
			{AGUIRunStarted, AGUIRunStartedEvent{RunID: p.RunID, AgentName: p.EntryAgent}},
			{AGUIStepStarted, AGUIStepStartedEvent{RunID: p.RunID, StepID: p.EntryAgent, Name: p.EntryAgent}},
		}
	case messagequeue.RunHandoffPayload:
		return []aguiEvent{
			{AGUIStepFinished, AGUIStepFinishedEvent{RunID: p.RunID, StepID: p.SourceAgentID, Status: "completed"}},
			{AGUIStepStarted, AGUIStepStartedEvent{RunID: p.RunID, StepID: p.TargetAgentID, Name: p.TargetAgentID}},
		}
	case messagequeue.RunToolCallPayload:
		return []aguiEvent{
			{AGUIToolCall, AGUIToolCallEvent{RunID: p.RunID, CallID: p.CallID, Name: p.Tool}},
			{AGUIToolResult, AGUIToolResultEvent{RunID: p.RunID, CallID: p.CallID, Result: p.Output}},
		}
	case messagequeue.RunFinishedPayload:
		status := "completed"
		if p.Status != string(orchestration.StatusTerminated) {
			status = "failed"
		}
		return []aguiEvent{{AGUIRunFinished, AGUIRunFinishedEvent{RunID: p.RunID, Status: status}}}
	}
	return nil
}
