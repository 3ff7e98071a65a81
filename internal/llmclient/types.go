// Package llmclient defines the LLM client contract the agent core
// programs against and a concrete implementation backed by the
// Anthropic Messages API.
package llmclient

import (
	"context"
	"encoding/json"
)

// Role distinguishes the two message roles the core ever produces or
// consumes. System instructions are carried separately (Request.SystemPrompt).
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType enumerates the content block variants of §3's data model.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
	BlockImage      BlockType = "image"
)

// Block is one element of a message's ordered content-block list.
// Which fields are meaningful depends on Type.
type Block struct {
	Type BlockType `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`

	// image (ingress only; never persisted)
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
}

// TextBlock builds a text content block.
func TextBlock(text string) Block { return Block{Type: BlockText, Text: text} }

// ToolUseBlock builds a tool_use content block.
func ToolUseBlock(id, name string, input json.RawMessage) Block {
	return Block{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

// ToolResultBlock builds a tool_result content block.
func ToolResultBlock(toolUseID, content string) Block {
	return Block{Type: BlockToolResult, ToolUseID: toolUseID, Content: content}
}

// ImageBlock builds an ingress-only image content block.
func ImageBlock(mediaType, data string) Block {
	return Block{Type: BlockImage, MediaType: mediaType, Data: data}
}

// Message is a tagged record whose content is either a bare string or
// an ordered list of blocks — never both. Use NewTextMessage or
// NewBlockMessage to construct one; zero-value Message{} is invalid.
type Message struct {
	Role Role `json:"role"`

	// Text holds the content when it is a plain string. Exactly one of
	// Text and Blocks is meaningful; IsBlocks reports which.
	Text string `json:"text,omitempty"`

	// Blocks holds the content when it is an ordered block list. A
	// non-nil (even if empty after filtering) Blocks takes precedence
	// over Text for serialisation purposes; construct via
	// NewBlockMessage to avoid ambiguity.
	Blocks []Block `json:"blocks,omitempty"`

	hasBlocks bool
}

// NewTextMessage builds a plain-string message.
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Text: text}
}

// NewBlockMessage builds a block-content message.
func NewBlockMessage(role Role, blocks []Block) Message {
	return Message{Role: role, Blocks: blocks, hasBlocks: true}
}

// IsBlocks reports whether the message's content is a block list
// rather than a bare string.
func (m Message) IsBlocks() bool {
	return m.hasBlocks || m.Blocks != nil
}

// ToolDefinition describes a tool the model may call.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// Usage reports token accounting for one LLM call, including the
// Anthropic-specific prompt-cache fields. The agent loop's budget
// checks read only InputTokens and OutputTokens.
type Usage struct {
	InputTokens              int `json:"inputTokens"`
	OutputTokens             int `json:"outputTokens"`
	CacheCreationInputTokens int `json:"cacheCreationInputTokens"`
	CacheReadInputTokens     int `json:"cacheReadInputTokens"`
}

// Total returns every token counted against the context window for
// this call: input + output + cache creation + cache read.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens
}

// Request is the input half of the LLM client contract.
type Request struct {
	Messages     []Message
	Tools        []ToolDefinition
	SystemPrompt string
	Model        string // optional override of the client's default model
}

// StopReason mirrors the provider's stop_reason values the loop needs
// to distinguish.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
	StopOther     StopReason = "other"
)

// Response is the output half of the LLM client contract.
type Response struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason StopReason
	Usage      Usage
}

// Client is the LLM client contract consumed by the agent core. The
// client owns provider-specific auth, retries, and stream aggregation;
// the core treats it as opaque.
type Client interface {
	Chat(ctx context.Context, req Request) (Response, error)
}
