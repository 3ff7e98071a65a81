package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultMaxTokens int64 = 4096

// AnthropicClient is the concrete Client implementation backed by the
// real Anthropic Messages API. It owns auth, retries (delegated to the
// SDK's own retry policy), and translates between the block-content
// Message model of §3 and the SDK's wire types.
type AnthropicClient struct {
	sdk       anthropic.Client
	model     string
	maxTokens int64
	logger    *slog.Logger
}

// AnthropicConfig configures AnthropicClient construction.
type AnthropicConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewAnthropicClient builds a Client against the real Anthropic SDK.
func NewAnthropicClient(cfg AnthropicConfig, logger *slog.Logger) *AnthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(cfg.APIKey))}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_5)
	}

	return &AnthropicClient{
		sdk:       anthropic.NewClient(opts...),
		model:     model,
		maxTokens: defaultMaxTokens,
		logger:    logger,
	}
}

// Chat implements Client.
func (c *AnthropicClient) Chat(ctx context.Context, req Request) (Response, error) {
	converted, err := adaptMessages(req.Messages)
	if err != nil {
		return Response{}, err
	}
	toolDefs, err := adaptTools(req.Tools)
	if err != nil {
		return Response{}, err
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  converted,
		MaxTokens: c.maxTokens,
	}
	if strings.TrimSpace(req.SystemPrompt) != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if len(toolDefs) > 0 {
		params.Tools = toolDefs
	}

	start := time.Now()
	resp, err := c.sdk.Messages.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		if c.logger != nil {
			c.logger.Error("anthropic chat failed", "model", model, "duration", dur, "error", err)
		}
		return Response{}, fmt.Errorf("anthropic chat: %w", err)
	}

	out := responseFromMessage(resp)
	if c.logger != nil {
		c.logger.Debug("anthropic chat ok",
			"model", model,
			"duration", dur,
			"input_tokens", out.Usage.InputTokens,
			"output_tokens", out.Usage.OutputTokens,
			"stop_reason", out.StopReason,
		)
	}
	return out, nil
}

func adaptTools(tools []ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, fmt.Errorf("llmclient: tool name required")
		}
		var schemaFields map[string]any
		if len(t.InputSchema) > 0 {
			if err := json.Unmarshal(t.InputSchema, &schemaFields); err != nil {
				return nil, fmt.Errorf("llmclient: tool %q input_schema: %w", name, err)
			}
		}
		schema := anthropic.ToolInputSchemaParam{}
		if props, ok := schemaFields["properties"]; ok {
			schema.Properties = props
		}
		if req, ok := schemaFields["required"].([]any); ok {
			for _, item := range req {
				if s, ok := item.(string); ok {
					schema.Required = append(schema.Required, s)
				}
			}
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        name,
				Description: anthropic.String(t.Description),
				InputSchema: schema,
			},
		})
	}
	return out, nil
}

func adaptMessages(msgs []Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		blocks, err := adaptContentBlocks(m)
		if err != nil {
			return nil, err
		}
		if len(blocks) == 0 {
			continue
		}
		switch m.Role {
		case RoleUser:
			out = append(out, anthropic.NewUserMessage(blocks...))
		case RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		default:
			return nil, fmt.Errorf("llmclient: unsupported role %q", m.Role)
		}
	}
	return out, nil
}

func adaptContentBlocks(m Message) ([]anthropic.ContentBlockParamUnion, error) {
	if !m.IsBlocks() {
		if strings.TrimSpace(m.Text) == "" {
			return nil, nil
		}
		return []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(m.Text)}, nil
	}

	out := make([]anthropic.ContentBlockParamUnion, 0, len(m.Blocks))
	for _, b := range m.Blocks {
		switch b.Type {
		case BlockText:
			out = append(out, anthropic.NewTextBlock(b.Text))
		case BlockToolUse:
			var input any
			if len(b.Input) > 0 {
				if err := json.Unmarshal(b.Input, &input); err != nil {
					return nil, fmt.Errorf("llmclient: tool_use %q input: %w", b.Name, err)
				}
			}
			out = append(out, anthropic.NewToolUseBlock(b.ID, input, b.Name))
		case BlockToolResult:
			out = append(out, anthropic.NewToolResultBlock(b.ToolUseID, b.Content, false))
		case BlockImage:
			out = append(out, anthropic.NewImageBlockBase64(b.MediaType, b.Data))
		default:
			return nil, fmt.Errorf("llmclient: unsupported block type %q", b.Type)
		}
	}
	return out, nil
}

func responseFromMessage(resp *anthropic.Message) Response {
	if resp == nil {
		return Response{}
	}
	var sb strings.Builder
	var calls []ToolCall

	for _, block := range resp.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			sb.WriteString(v.Text)
		case anthropic.ToolUseBlock:
			input := v.Input
			if len(input) == 0 {
				input = json.RawMessage("{}")
			}
			calls = append(calls, ToolCall{ID: v.ID, Name: v.Name, Input: input})
		}
	}

	return Response{
		Text:       sb.String(),
		ToolCalls:  calls,
		StopReason: stopReasonFrom(string(resp.StopReason)),
		Usage: Usage{
			InputTokens:              int(resp.Usage.InputTokens),
			OutputTokens:             int(resp.Usage.OutputTokens),
			CacheCreationInputTokens: int(resp.Usage.CacheCreationInputTokens),
			CacheReadInputTokens:     int(resp.Usage.CacheReadInputTokens),
		},
	}
}

func stopReasonFrom(s string) StopReason {
	switch s {
	case "end_turn", "stop_sequence":
		return StopEndTurn
	case "tool_use":
		return StopToolUse
	case "max_tokens":
		return StopMaxTokens
	default:
		return StopOther
	}
}
