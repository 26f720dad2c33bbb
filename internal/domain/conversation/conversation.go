// Package conversation models the append-only message log of one
// schedule-generation run.
package conversation

import (
	"encoding/json"
	"slices"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolInvocation is a tool call emitted by the generator inside an assistant
// message.
type ToolInvocation struct {
	ID        string          `json:"id"`
	ToolID    string          `json:"tool_id"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Message is one entry in a conversation.
type Message struct {
	Role       Role            `json:"role"`
	Content    string          `json:"content"`
	ToolCall   *ToolInvocation `json:"tool_call,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"` // set on RoleTool replies
	AgentID    string          `json:"agent_id,omitempty"`     // agent active when the message was produced
}

// HasToolCall reports whether the message carries a tool invocation.
func (m *Message) HasToolCall() bool {
	return m.ToolCall != nil && m.ToolCall.ToolID != ""
}

func (m Message) clone() Message {
	if m.ToolCall != nil {
		tc := *m.ToolCall
		tc.Arguments = slices.Clone(tc.Arguments)
		m.ToolCall = &tc
	}
	return m
}

// Conversation is an immutable, ordered message log. Append returns a new
// value and never touches the receiver's backing storage, so a conversation
// handed to a collaborator cannot be altered behind the owner's back.
type Conversation struct {
	messages []Message
}

// New returns a conversation seeded with msgs.
func New(msgs ...Message) Conversation {
	return Conversation{}.Append(msgs...)
}

// Append returns a copy of c with msgs added at the end.
func (c Conversation) Append(msgs ...Message) Conversation {
	out := make([]Message, 0, len(c.messages)+len(msgs))
	out = append(out, c.messages...)
	for _, m := range msgs {
		out = append(out, m.clone())
	}
	return Conversation{messages: out}
}

// Messages returns a deep copy of the log in append order.
func (c Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.clone()
	}
	return out
}

// Len returns the number of messages.
func (c Conversation) Len() int { return len(c.messages) }

// Last returns the most recent message.
func (c Conversation) Last() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1].clone(), true
}
