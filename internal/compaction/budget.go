// Package compaction implements the token-budget bookkeeping and the
// LLM-assisted summarisation that rewrites a session's working set
// once the prompt budget is exhausted.
package compaction

import (
	"encoding/json"
	"math"

	"github.com/eddmann/jeeves/internal/llmclient"
)

// Fixed token budget constants. ContextWindow mirrors the provider's
// effective context window; Reserve is headroom kept free for the
// model's own response; SoftBuffer is the earlier warning margin that
// triggers a flush before compaction becomes mandatory.
const (
	ContextWindow = 200_000
	Reserve       = 8_192
	SoftBuffer    = 4_000
)

// ShouldFlush reports whether the loop should warn the model, once per
// turn, to serialise important context to disk before compaction
// becomes necessary.
func ShouldFlush(total int) bool {
	return total >= ContextWindow-Reserve-SoftBuffer
}

// ShouldCompact reports whether the engine must rewrite the working
// set now. shouldCompact and ShouldFlush are independent thresholds:
// ShouldCompact implies ShouldFlush but not vice versa.
func ShouldCompact(total int) bool {
	return total > ContextWindow-Reserve
}

// EstimateTokens estimates the token cost of a single message for
// sizing intermediate summarisation batches: characters / 4, times a
// 1.2 safety margin, rounded up. String content counts its length;
// block content sums per-block lengths (tool_use counts the
// JSON-encoded input length plus the name; tool_result counts the
// stringified output; image blocks contribute nothing, matching how
// they are reduced to indexable text elsewhere in the core).
func EstimateTokens(m llmclient.Message) int {
	return charsToTokens(messageChars(m))
}

// EstimateTotal sums EstimateTokens across every message.
func EstimateTotal(msgs []llmclient.Message) int {
	total := 0
	for _, m := range msgs {
		total += EstimateTokens(m)
	}
	return total
}

func charsToTokens(chars int) int {
	return int(math.Ceil(float64(chars) / 4.0 * 1.2))
}

func messageChars(m llmclient.Message) int {
	if !m.IsBlocks() {
		return len(m.Text)
	}
	chars := 0
	for _, b := range m.Blocks {
		switch b.Type {
		case llmclient.BlockText:
			chars += len(b.Text)
		case llmclient.BlockToolUse:
			chars += len(b.Name)
			if len(b.Input) > 0 {
				chars += len(b.Input)
			} else {
				chars += len(json.RawMessage("{}"))
			}
		case llmclient.BlockToolResult:
			chars += len(b.Content)
		case llmclient.BlockImage:
			// Images are ingress-only and never persisted; they
			// contribute nothing to a message's durable token cost.
		}
	}
	return chars
}
