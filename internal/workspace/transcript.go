package workspace

import (
	"fmt"
	"strings"

	"github.com/eddmann/jeeves/internal/llmclient"
)

// RenderTranscriptMarkdown renders a session's messages as a
// human-readable markdown document, for operator debugging via the
// sessions CLI subcommand. Tool calls and results are rendered as
// fenced blocks; image blocks render as a placeholder since their
// data is never persisted in readable form.
func RenderTranscriptMarkdown(sessionKey string, messages []llmclient.Message) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Session: %s\n\n", sessionKey)

	for i, m := range messages {
		fmt.Fprintf(&sb, "## %d. %s\n\n", i+1, capitalize(string(m.Role)))
		if !m.IsBlocks() {
			sb.WriteString(m.Text)
			sb.WriteString("\n\n")
			continue
		}
		for _, b := range m.Blocks {
			switch b.Type {
			case llmclient.BlockText:
				sb.WriteString(b.Text)
				sb.WriteString("\n\n")
			case llmclient.BlockToolUse:
				fmt.Fprintf(&sb, "**Tool call:** `%s`\n\n```json\n%s\n```\n\n", b.Name, string(b.Input))
			case llmclient.BlockToolResult:
				fmt.Fprintf(&sb, "**Tool result:**\n\n```\n%s\n```\n\n", b.Content)
			case llmclient.BlockImage:
				sb.WriteString("**[Image]**\n\n")
			}
		}
	}
	return sb.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
