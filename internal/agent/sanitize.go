package agent

import "github.com/eddmann/jeeves/internal/llmclient"

// sanitizeForPersistence replaces every image block with a text
// placeholder so the Session Store never carries image payloads to
// disk. The caller keeps the original, unsanitised message for the
// in-memory working set sent to the LLM this turn.
func sanitizeForPersistence(m llmclient.Message) llmclient.Message {
	if !m.IsBlocks() {
		return m
	}
	blocks := make([]llmclient.Block, len(m.Blocks))
	for i, b := range m.Blocks {
		if b.Type == llmclient.BlockImage {
			blocks[i] = llmclient.TextBlock("[Image]")
			continue
		}
		blocks[i] = b
	}
	return llmclient.NewBlockMessage(m.Role, blocks)
}
