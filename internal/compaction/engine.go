package compaction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eddmann/jeeves/internal/llmclient"
)

// Summarizer produces natural-language summaries of message chunks and
// can merge several chunk summaries into one. Implementations are free
// to call an LLM; the Engine tolerates their failure by falling back
// to a deterministic stub (see Compact).
type Summarizer interface {
	// SummarizeChunk summarises one LLM-sized batch of dropped
	// messages, emphasising decisions, action items, open questions,
	// facts, preferences, and ongoing tasks.
	SummarizeChunk(ctx context.Context, messages []llmclient.Message) (string, error)
	// MergeSummaries combines more than one chunk summary into a
	// single coherent summary.
	MergeSummaries(ctx context.Context, summaries []string) (string, error)
}

// Engine rewrites a session's working set once the token budget is
// exhausted: it admits a tail suffix under a retained-budget target,
// repairs orphaned tool-results in that suffix, and replaces the
// dropped prefix with an LLM-produced (or, on failure, deterministic)
// summary.
type Engine struct {
	summarizer Summarizer
	logger     *slog.Logger
}

// New returns an Engine that delegates summarisation to summarizer.
func New(summarizer Summarizer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{summarizer: summarizer, logger: logger}
}

// Compact rewrites messages per §4.3's algorithm. It never returns an
// error: a misbehaving summariser degrades to a deterministic stub
// summary rather than aborting the turn.
func (e *Engine) Compact(ctx context.Context, messages []llmclient.Message) []llmclient.Message {
	splitIdx := splitIndex(messages)
	dropped := messages[:splitIdx]
	kept := repairOrphans(messages[splitIdx:])

	if len(dropped) == 0 {
		return kept
	}

	summary := e.summarizeDropped(ctx, dropped)
	head := llmclient.NewTextMessage(llmclient.RoleUser, "[Previous conversation summary]\n\n"+summary)

	out := make([]llmclient.Message, 0, len(kept)+1)
	out = append(out, head)
	out = append(out, kept...)
	return out
}

// splitIndex walks messages from the tail, admitting each into the
// kept suffix until the next admission would exceed a retained budget
// of ContextWindow/2 tokens, and returns the index where the kept
// suffix begins. If the walk would keep nothing, at least the second
// half of the log is kept.
func splitIndex(messages []llmclient.Message) int {
	if len(messages) == 0 {
		return 0
	}
	budget := ContextWindow / 2
	total := 0
	idx := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		cost := EstimateTokens(messages[i])
		if total+cost > budget {
			break
		}
		total += cost
		idx = i
	}
	if idx == len(messages) {
		idx = len(messages) / 2
	}
	return idx
}

// repairOrphans drops tool_result blocks in kept whose matching
// tool_use id does not also appear in kept, and drops any message
// whose block list becomes empty as a result. String-content messages
// pass through unchanged.
func repairOrphans(kept []llmclient.Message) []llmclient.Message {
	toolUseIDs := make(map[string]bool)
	for _, m := range kept {
		if !m.IsBlocks() {
			continue
		}
		for _, b := range m.Blocks {
			if b.Type == llmclient.BlockToolUse {
				toolUseIDs[b.ID] = true
			}
		}
	}

	out := make([]llmclient.Message, 0, len(kept))
	for _, m := range kept {
		if !m.IsBlocks() {
			out = append(out, m)
			continue
		}
		var filtered []llmclient.Block
		for _, b := range m.Blocks {
			if b.Type == llmclient.BlockToolResult && !toolUseIDs[b.ToolUseID] {
				continue
			}
			filtered = append(filtered, b)
		}
		if len(filtered) == 0 {
			continue
		}
		out = append(out, llmclient.NewBlockMessage(m.Role, filtered))
	}
	return out
}

// chunkBudget picks the adaptive per-chunk token budget based on the
// average message size in the dropped prefix: smaller chunks for
// denser conversations so each summarisation call stays well inside
// the model's own context window.
func chunkBudget(dropped []llmclient.Message) int {
	if len(dropped) == 0 {
		return int(0.4 * ContextWindow)
	}
	avg := EstimateTotal(dropped) / len(dropped)
	switch {
	case avg > 2000:
		return int(0.25 * ContextWindow)
	case avg > 1000:
		return int(0.3 * ContextWindow)
	default:
		return int(0.4 * ContextWindow)
	}
}

// chunkMessages splits dropped into LLM-sized batches under budget.
func chunkMessages(dropped []llmclient.Message, budget int) [][]llmclient.Message {
	var chunks [][]llmclient.Message
	var current []llmclient.Message
	total := 0
	for _, m := range dropped {
		cost := EstimateTokens(m)
		if len(current) > 0 && total+cost > budget {
			chunks = append(chunks, current)
			current = nil
			total = 0
		}
		current = append(current, m)
		total += cost
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// summarizeDropped implements the chunk-then-merge summarisation of
// §4.3 step 3, falling back to a deterministic stub on any LLM error.
func (e *Engine) summarizeDropped(ctx context.Context, dropped []llmclient.Message) string {
	budget := chunkBudget(dropped)
	chunks := chunkMessages(dropped, budget)

	summaries := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		s, err := e.summarizer.SummarizeChunk(ctx, chunk)
		if err != nil {
			e.logger.Warn("compaction: chunk summarisation failed, falling back to stub summary", "error", err)
			return fallbackSummary(dropped)
		}
		summaries = append(summaries, s)
	}

	if len(summaries) == 0 {
		return fallbackSummary(dropped)
	}
	if len(summaries) == 1 {
		return summaries[0]
	}

	merged, err := e.summarizer.MergeSummaries(ctx, summaries)
	if err != nil {
		e.logger.Warn("compaction: merge of chunk summaries failed, falling back to stub summary", "error", err)
		return fallbackSummary(dropped)
	}
	return merged
}

// fallbackSummary builds the deterministic "N user / M assistant / K
// tool calls" stub used whenever the LLM-assisted path fails.
func fallbackSummary(dropped []llmclient.Message) string {
	var users, assistants, toolCalls int
	for _, m := range dropped {
		switch m.Role {
		case llmclient.RoleUser:
			users++
		case llmclient.RoleAssistant:
			assistants++
		}
		if m.IsBlocks() {
			for _, b := range m.Blocks {
				if b.Type == llmclient.BlockToolUse {
					toolCalls++
				}
			}
		}
	}
	return fmt.Sprintf(
		"[Conversation summary: %d messages (%d user, %d assistant), %d tool calls. Details were compacted to save context.]",
		len(dropped), users, assistants, toolCalls,
	)
}

// summarizationSystemPrompt is the fixed instruction used for both
// per-chunk summarisation and the merge pass.
const summarizationSystemPrompt = `Summarize this conversation excerpt concisely. Focus on:
1. Key topics discussed
2. Decisions made or preferences expressed
3. Actions taken (tool calls, state changes)
4. Any open items, facts, or ongoing tasks to remember

Keep the summary under 500 words. Use bullet points.`

// LLMSummarizer is the production Summarizer, backed by an
// llmclient.Client.
type LLMSummarizer struct {
	client llmclient.Client
	model  string
}

// NewLLMSummarizer returns a Summarizer that delegates to client.
func NewLLMSummarizer(client llmclient.Client, model string) *LLMSummarizer {
	return &LLMSummarizer{client: client, model: model}
}

// SummarizeChunk implements Summarizer.
func (s *LLMSummarizer) SummarizeChunk(ctx context.Context, messages []llmclient.Message) (string, error) {
	resp, err := s.client.Chat(ctx, llmclient.Request{
		Messages:     messages,
		SystemPrompt: summarizationSystemPrompt,
		Model:        s.model,
	})
	if err != nil {
		return "", fmt.Errorf("compaction: summarize chunk: %w", err)
	}
	return resp.Text, nil
}

// MergeSummaries implements Summarizer.
func (s *LLMSummarizer) MergeSummaries(ctx context.Context, summaries []string) (string, error) {
	parts := make([]llmclient.Message, 0, len(summaries))
	for i, sm := range summaries {
		parts = append(parts, llmclient.NewTextMessage(llmclient.RoleUser, fmt.Sprintf("Summary %d:\n%s", i+1, sm)))
	}
	resp, err := s.client.Chat(ctx, llmclient.Request{
		Messages:     parts,
		SystemPrompt: "Merge the following conversation summaries into one coherent summary, preserving every decision, action item, open question, fact, and preference. Keep it under 500 words. Use bullet points.",
		Model:        s.model,
	})
	if err != nil {
		return "", fmt.Errorf("compaction: merge summaries: %w", err)
	}
	return resp.Text, nil
}
