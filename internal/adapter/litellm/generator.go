package litellm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/Strob0t/CourseForge/internal/config"
	"github.com/Strob0t/CourseForge/internal/domain/conversation"
	"github.com/Strob0t/CourseForge/internal/domain/orchestration"
	"github.com/Strob0t/CourseForge/internal/port/generator"
)

// Generator implements generator.Generator with Chat Completions against the
// proxy's OpenAI-compatible endpoint.
type Generator struct {
	client      openai.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewGenerator creates a generator for the proxy at cfg.URL. Retries are left
// to the caller's circuit breaker.
func NewGenerator(cfg config.LiteLLM, gen config.Generator, httpClient *http.Client) *Generator {
	opts := []option.RequestOption{
		option.WithBaseURL(strings.TrimRight(cfg.URL, "/") + "/v1/"),
		option.WithMaxRetries(0),
	}
	// The SDK insists on a key; an open proxy ignores it.
	key := cfg.MasterKey
	if key == "" {
		key = "sk-none"
	}
	opts = append(opts, option.WithAPIKey(key))
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &Generator{
		client:      openai.NewClient(opts...),
		model:       gen.Model,
		maxTokens:   gen.MaxTokens,
		temperature: gen.Temperature,
	}
}

// Generate requests the next assistant message. Only the first tool call of a
// reply is kept.
func (g *Generator) Generate(ctx context.Context, instructions string, msgs []conversation.Message, tools []generator.ToolSpec) (generator.Response, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(g.model),
		Messages: toChatMessages(instructions, msgs),
	}
	if g.maxTokens > 0 {
		params.MaxTokens = openai.Int(g.maxTokens)
	}
	if g.temperature > 0 {
		params.Temperature = openai.Float(g.temperature)
	}
	if len(tools) > 0 {
		ct, err := toChatTools(tools)
		if err != nil {
			return generator.Response{}, err
		}
		params.Tools = ct
	}

	completion, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return generator.Response{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return generator.Response{}, fmt.Errorf("chat completion %s: no choices", completion.ID)
	}

	choice := completion.Choices[0].Message
	msg := conversation.Message{Role: conversation.RoleAssistant, Content: choice.Content}
	if len(choice.ToolCalls) > 0 {
		tc := choice.ToolCalls[0]
		if err := generator.CheckToolCall(tc.ID, tc.Function.Name, []byte(tc.Function.Arguments)); err != nil {
			return generator.Response{}, fmt.Errorf("chat completion %s: %w", completion.ID, err)
		}
		msg.ToolCall = &conversation.ToolInvocation{
			ID:        tc.ID,
			ToolID:    tc.Function.Name,
			Arguments: rawArgs(tc.Function.Arguments),
		}
	}
	return generator.Response{
		Message: msg,
		Usage: orchestration.Usage{
			InputTokens:  completion.Usage.PromptTokens,
			OutputTokens: completion.Usage.CompletionTokens,
		},
	}, nil
}

func toChatMessages(instructions string, msgs []conversation.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)+1)
	if instructions != "" {
		out = append(out, openai.SystemMessage(instructions))
	}
	for i := range msgs {
		m := &msgs[i]
		switch m.Role {
		case conversation.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case conversation.RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		case conversation.RoleAssistant:
			if !m.HasToolCall() {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			asst := openai.ChatCompletionAssistantMessageParam{
				ToolCalls: []openai.ChatCompletionMessageToolCallParam{{
					ID: m.ToolCall.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      m.ToolCall.ToolID,
						Arguments: argString(m.ToolCall.Arguments),
					},
				}},
			}
			if m.Content != "" {
				asst.Content.OfString = openai.String(m.Content)
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		}
	}
	return out
}

func toChatTools(tools []generator.ToolSpec) ([]openai.ChatCompletionToolParam, error) {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		params := shared.FunctionParameters{"type": "object", "properties": map[string]any{}}
		if len(t.Parameters) > 0 {
			params = shared.FunctionParameters{}
			if err := json.Unmarshal(t.Parameters, &params); err != nil {
				return nil, fmt.Errorf("tool %s schema: %w", t.Name, err)
			}
		}
		fn := shared.FunctionDefinitionParam{Name: t.Name, Parameters: params}
		if t.Description != "" {
			fn.Description = openai.String(t.Description)
		}
		out = append(out, openai.ChatCompletionToolParam{Function: fn})
	}
	return out, nil
}

func argString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

// rawArgs converts already validated arguments; empty stays nil.
func rawArgs(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	return json.RawMessage(s)
}
