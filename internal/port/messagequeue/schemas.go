package messagequeue

import "github.com/Strob0t/CourseForge/internal/domain/student"

// ScheduleRequestPayload is the schema for schedules.request messages.
type ScheduleRequestPayload struct {
	RunID   string          `json:"run_id"`
	Request student.Request `json:"request"`
}

// ScheduleResultPayload is the schema for schedules.result messages.
type ScheduleResultPayload struct {
	RunID         string   `json:"run_id"`
	Status        string   `json:"status"`
	ScheduleLines []string `json:"schedule_lines,omitempty"`
	ErrorKind     string   `json:"error_kind,omitempty"`
}

// RunStartedPayload is the schema for schedule.run.started messages.
type RunStartedPayload struct {
	RunID       string   `json:"run_id"`
	EntryAgent  string   `json:"entry_agent"`
	Strategy    string   `json:"strategy"`
	Departments []string `json:"departments"`
}

// RunHandoffPayload is the schema for schedule.run.handoff messages.
type RunHandoffPayload struct {
	RunID         string `json:"run_id"`
	SourceAgentID string `json:"source_agent_id"`
	TargetAgentID string `json:"target_agent_id"`
	Turn          int    `json:"turn"`
}

// RunToolCallPayload is the schema for schedule.run.toolcall messages.
type RunToolCallPayload struct {
	RunID   string `json:"run_id"`
	AgentID string `json:"agent_id"`
	CallID  string `json:"call_id"`
	Tool    string `json:"tool"`
	Output  string `json:"output"`
	Turn    int    `json:"turn"`
}

// RunFinishedPayload is the schema for schedule.run.finished messages.
type RunFinishedPayload struct {
	RunID        string `json:"run_id"`
	Status       string `json:"status"`
	ErrorKind    string `json:"error_kind,omitempty"`
	TurnsTaken   int    `json:"turns_taken"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}
