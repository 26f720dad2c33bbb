// Package a2a serves the agent-to-agent discovery card and task endpoint.
package a2a

import "github.com/Strob0t/CourseForge/internal/domain/student"

// AgentCard describes an agent's capabilities per the A2A protocol.
type AgentCard struct {
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	URL          string  `json:"url"`
	Version      string  `json:"version"`
	Skills       []Skill `json:"skills"`
	Capabilities struct {
		Streaming bool `json:"streaming"`
	} `json:"capabilities"`
}

// Skill describes a single capability of the agent.
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	InputModes  []string `json:"inputModes"`
	OutputModes []string `json:"outputModes"`
}

// TaskRequest is an incoming A2A task. Input carries the student request.
type TaskRequest struct {
	ID    string          `json:"id"`
	Skill string          `json:"skill"`
	Input student.Request `json:"input"`
}

// TaskResponse is the completed task. Tasks are answered synchronously and
// not retained.
type TaskResponse struct {
	ID     string      `json:"id"`
	Status string      `json:"status"` // "completed" or "failed"
	Output *TaskOutput `json:"output,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// TaskOutput is the schedule of a completed task.
type TaskOutput struct {
	RunID         string   `json:"run_id"`
	ScheduleLines []string `json:"schedule_lines,omitempty"`
	ErrorKind     string   `json:"error_kind,omitempty"`
}
