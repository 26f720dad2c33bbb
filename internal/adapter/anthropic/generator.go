// Package anthropic implements the generator port on the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Strob0t/CourseForge/internal/config"
	"github.com/Strob0t/CourseForge/internal/domain/conversation"
	"github.com/Strob0t/CourseForge/internal/domain/orchestration"
	"github.com/Strob0t/CourseForge/internal/port/generator"
)

const defaultMaxTokens = 1024

// Generator implements generator.Generator with Messages.New.
type Generator struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewGenerator creates a generator. A zero MaxTokens uses 1024; the API
// requires a bound.
func NewGenerator(cfg config.Anthropic, gen config.Generator, httpClient *http.Client) *Generator {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	maxTokens := gen.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Generator{
		client:      anthropic.NewClient(opts...),
		model:       gen.Model,
		maxTokens:   maxTokens,
		temperature: gen.Temperature,
	}
}

// Generate requests the next assistant message. Text blocks are concatenated;
// only the first tool_use block is kept.
func (g *Generator) Generate(ctx context.Context, instructions string, msgs []conversation.Message, tools []generator.ToolSpec) (generator.Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: g.maxTokens,
		Messages:  toMessages(msgs),
	}
	if instructions != "" {
		params.System = []anthropic.TextBlockParam{{Text: instructions}}
	}
	if g.temperature > 0 {
		params.Temperature = anthropic.Float(g.temperature)
	}
	if len(tools) > 0 {
		ts, err := toTools(tools)
		if err != nil {
			return generator.Response{}, err
		}
		params.Tools = ts
	}

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return generator.Response{}, fmt.Errorf("anthropic messages: %w", err)
	}

	var text strings.Builder
	msg := conversation.Message{Role: conversation.RoleAssistant}
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			if msg.ToolCall != nil {
				continue
			}
			if err := generator.CheckToolCall(b.ID, b.Name, b.Input); err != nil {
				return generator.Response{}, fmt.Errorf("anthropic message %s: %w", resp.ID, err)
			}
			var args json.RawMessage
			if len(b.Input) > 0 {
				args = b.Input
			}
			msg.ToolCall = &conversation.ToolInvocation{ID: b.ID, ToolID: b.Name, Arguments: args}
		}
	}
	msg.Content = text.String()

	return generator.Response{
		Message: msg,
		Usage: orchestration.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}, nil
}

// toMessages maps the transcript onto alternating user/assistant turns. Tool
// replies travel as tool_result blocks on a user turn; consecutive user-side
// blocks are merged because the API rejects two user turns in a row.
func toMessages(msgs []conversation.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	push := func(role anthropic.MessageParamRole, block anthropic.ContentBlockParamUnion) {
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, block)
			return
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: []anthropic.ContentBlockParamUnion{block}})
	}

	for i := range msgs {
		m := &msgs[i]
		switch m.Role {
		case conversation.RoleUser:
			push(anthropic.MessageParamRoleUser, anthropic.NewTextBlock(m.Content))
		case conversation.RoleTool:
			push(anthropic.MessageParamRoleUser, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))
		case conversation.RoleAssistant:
			if m.Content != "" {
				push(anthropic.MessageParamRoleAssistant, anthropic.NewTextBlock(m.Content))
			}
			if m.HasToolCall() {
				var input any = map[string]any{}
				if len(m.ToolCall.Arguments) > 0 {
					input = m.ToolCall.Arguments
				}
				push(anthropic.MessageParamRoleAssistant, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    m.ToolCall.ID,
						Name:  m.ToolCall.ToolID,
						Input: input,
					},
				})
			}
		}
	}
	return out
}

func toTools(tools []generator.ToolSpec) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := anthropic.ToolInputSchemaParam{Properties: map[string]any{}}
		if len(t.Parameters) > 0 {
			var raw struct {
				Properties any      `json:"properties"`
				Required   []string `json:"required"`
			}
			if err := json.Unmarshal(t.Parameters, &raw); err != nil {
				return nil, fmt.Errorf("tool %s schema: %w", t.Name, err)
			}
			if raw.Properties != nil {
				schema.Properties = raw.Properties
			}
			schema.Required = raw.Required
		}
		tp := &anthropic.ToolParam{Name: t.Name, InputSchema: schema}
		if t.Description != "" {
			tp.Description = anthropic.String(t.Description)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: tp})
	}
	return out, nil
}
