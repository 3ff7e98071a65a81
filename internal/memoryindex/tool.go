package memoryindex

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// SearchTool exposes Search as an agent tool so the model can recall
// curated notes and historical conversation context mid-turn.
type SearchTool struct {
	index *Index
}

// NewSearchTool returns a tool bound to index.
func NewSearchTool(index *Index) *SearchTool {
	return &SearchTool{index: index}
}

// Name implements the agent tool contract.
func (t *SearchTool) Name() string { return "memory_search" }

// Description implements the agent tool contract.
func (t *SearchTool) Description() string {
	return "Search curated memory notes and historical conversation transcripts for relevant prior context."
}

// InputSchema implements the agent tool contract.
func (t *SearchTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "What to search memory for"},
			"max_results": {"type": "integer", "description": "Maximum number of results to return"}
		},
		"required": ["query"]
	}`)
}

type searchToolInput struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// Execute implements the agent tool contract.
func (t *SearchTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var args searchToolInput
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("memory_search: invalid input: %w", err)
	}
	if strings.TrimSpace(args.Query) == "" {
		return "", fmt.Errorf("memory_search: query is required")
	}

	results, err := t.index.Search(ctx, args.Query, args.MaxResults)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "No relevant memory found.", nil
	}

	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s (lines %d-%d, score %.2f)\n%s\n\n", i+1, r.FilePath, r.StartLine, r.EndLine, r.Score, r.Text)
	}
	return strings.TrimSpace(sb.String()), nil
}
