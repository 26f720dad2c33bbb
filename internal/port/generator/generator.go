// Package generator defines the port to the generative-text collaborator that
// drives each agent turn.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Strob0t/CourseForge/internal/domain/conversation"
	"github.com/Strob0t/CourseForge/internal/domain/orchestration"
)

// ToolSpec describes one tool offered to the generator for a turn.
type ToolSpec struct {
	Name        string
	Description string
	// Parameters is a JSON Schema object. Nil means the tool takes no input.
	Parameters json.RawMessage
}

// ErrMalformedToolCall reports a tool call without a name or with arguments
// that are not JSON.
var ErrMalformedToolCall = errors.New("malformed tool call")

// CheckToolCall validates a tool call as returned by a generator backend.
// Empty arguments are allowed.
func CheckToolCall(id, name string, args []byte) error {
	if name == "" {
		return fmt.Errorf("%w: call %q has no tool name", ErrMalformedToolCall, id)
	}
	if len(args) > 0 && !json.Valid(args) {
		return fmt.Errorf("%w: call %q to %s: arguments are not JSON", ErrMalformedToolCall, id, name)
	}
	return nil
}

// Response is one generator reply. At most one tool call is honored per turn.
type Response struct {
	Message conversation.Message
	Usage   orchestration.Usage
}

// Generator produces the next assistant message for an agent. Implementations
// must be safe for concurrent use by independent runs.
type Generator interface {
	Generate(ctx context.Context, instructions string, msgs []conversation.Message, tools []ToolSpec) (Response, error)
}

// Func adapts an ordinary function to the Generator interface.
type Func func(ctx context.Context, instructions string, msgs []conversation.Message, tools []ToolSpec) (Response, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, instructions string, msgs []conversation.Message, tools []ToolSpec) (Response, error) {
	return f(ctx, instructions, msgs, tools)
}
