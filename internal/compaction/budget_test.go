package compaction

import (
	"encoding/json"
	"testing"

	"github.com/eddmann/jeeves/internal/llmclient"
)

func TestShouldFlush_ShouldCompact_Thresholds(t *testing.T) {
	flushAt := ContextWindow - Reserve - SoftBuffer
	compactAt := ContextWindow - Reserve

	if ShouldFlush(flushAt - 1) {
		t.Error("should not flush just below threshold")
	}
	if !ShouldFlush(flushAt) {
		t.Error("should flush at threshold")
	}
	if ShouldCompact(compactAt) {
		t.Error("should not compact at the boundary (strictly greater)")
	}
	if !ShouldCompact(compactAt + 1) {
		t.Error("should compact just above threshold")
	}
}

func TestShouldFlush_Monotone(t *testing.T) {
	for t1 := 0; t1 < ContextWindow; t1 += 997 {
		if ShouldFlush(t1) && !ShouldFlush(t1+1) {
			panic("monotonicity violated")
		}
		if ShouldCompact(t1) && !ShouldCompact(t1+1) {
			panic("monotonicity violated")
		}
	}
}

func TestEstimateTokens_StringContent(t *testing.T) {
	m := llmclient.NewTextMessage(llmclient.RoleUser, "abcdefgh") // 8 chars
	got := EstimateTokens(m)
	want := charsToTokens(8)
	if got != want {
		t.Errorf("EstimateTokens = %d, want %d", got, want)
	}
}

func TestEstimateTokens_Blocks(t *testing.T) {
	input, _ := json.Marshal(map[string]string{"command": "ls"})
	m := llmclient.NewBlockMessage(llmclient.RoleAssistant, []llmclient.Block{
		llmclient.TextBlock("hello"),
		llmclient.ToolUseBlock("t1", "bash", input),
		llmclient.ToolResultBlock("t1", "a.txt"),
	})
	got := EstimateTokens(m)
	wantChars := len("hello") + len("bash") + len(input) + len("a.txt")
	want := charsToTokens(wantChars)
	if got != want {
		t.Errorf("EstimateTokens = %d, want %d", got, want)
	}
}

func TestEstimateTokens_ImageContributesNothing(t *testing.T) {
	m := llmclient.NewBlockMessage(llmclient.RoleUser, []llmclient.Block{
		llmclient.ImageBlock("image/png", "base64=="),
	})
	if got := EstimateTokens(m); got != 0 {
		t.Errorf("image-only message should estimate to 0 tokens, got %d", got)
	}
}
