package agent

import (
	"strings"

	"github.com/eddmann/jeeves/internal/workspace"
)

// defaultPersona is used when the workspace carries no PERSONA.md.
const defaultPersona = "You are a helpful personal assistant. Be concise, direct, and proactive."

// buildSystemPrompt assembles the system prompt from the workspace's
// convention files and the skills catalogue, prefixed with a
// provider-identity preamble when running in OAuth mode.
func (l *Loop) buildSystemPrompt() string {
	var sb strings.Builder

	if l.oauthPreamble != "" {
		sb.WriteString(l.oauthPreamble)
		sb.WriteString("\n\n")
	}

	files := workspace.ReadConventionFiles(l.workspaceDir)
	hasPersona := false
	for _, f := range files {
		if f.Name == "PERSONA.md" {
			hasPersona = true
		}
	}
	if !hasPersona {
		sb.WriteString(defaultPersona)
	}

	for _, f := range files {
		sb.WriteString("\n\n## ")
		sb.WriteString(f.Name)
		sb.WriteString("\n\n")
		sb.WriteString(f.Content)
	}

	if l.skillsCatalogue != "" {
		sb.WriteString("\n\n## Available Skills\n\n")
		sb.WriteString(l.skillsCatalogue)
	}

	return sb.String()
}
