package orchestration

import "github.com/Strob0t/CourseForge/internal/domain/conversation"

// Usage is the token accounting reported by the generator for one call.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Add accumulates u2 into u.
func (u *Usage) Add(u2 Usage) {
	u.InputTokens += u2.InputTokens
	u.OutputTokens += u2.OutputTokens
}

// TurnResult is the tagged outcome of one agent turn.
//
//	NextAgent != ""          handoff, or self re-invocation after a data tool
//	Terminal && NextAgent == "" run ends, Message is the final answer
type TurnResult struct {
	NextAgent  string
	Message    conversation.Message
	Terminal   bool
	Transcript []conversation.Message
	ToolCall   *conversation.ToolInvocation
	Usage      Usage
}

// IsHandoff reports whether control moves to a different agent.
func (r *TurnResult) IsHandoff(current string) bool {
	return !r.Terminal && r.NextAgent != "" && r.NextAgent != current
}
