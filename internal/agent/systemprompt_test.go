package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildSystemPrompt_UsesDefaultPersonaWhenMissing(t *testing.T) {
	dir := t.TempDir()
	loop, _ := newTestLoop(t, &scriptedLLM{}, nil)
	loop.workspaceDir = dir

	prompt := loop.buildSystemPrompt()
	if !strings.Contains(prompt, defaultPersona) {
		t.Errorf("expected default persona fallback, got %q", prompt)
	}
}

func TestBuildSystemPrompt_OmitsDefaultPersonaWhenProvided(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "PERSONA.md"), []byte("You are Jeeves."), 0o644); err != nil {
		t.Fatal(err)
	}
	loop, _ := newTestLoop(t, &scriptedLLM{}, nil)
	loop.workspaceDir = dir

	prompt := loop.buildSystemPrompt()
	if strings.Contains(prompt, defaultPersona) {
		t.Error("expected default persona to be omitted when PERSONA.md is present")
	}
	if !strings.Contains(prompt, "You are Jeeves.") {
		t.Errorf("expected custom persona content present, got %q", prompt)
	}
}

func TestBuildSystemPrompt_PreservesConventionFileOrder(t *testing.T) {
	dir := t.TempDir()
	// Write files out of their canonical order; ConventionFileNames
	// still dictates the order they appear in the assembled prompt.
	mustWrite(t, dir, "NOTES.md", "note body")
	mustWrite(t, dir, "AGENTS.md", "agents body")
	mustWrite(t, dir, "SKILLS.md", "skills body")

	loop, _ := newTestLoop(t, &scriptedLLM{}, nil)
	loop.workspaceDir = dir

	prompt := loop.buildSystemPrompt()
	agentsIdx := strings.Index(prompt, "## AGENTS.md")
	skillsIdx := strings.Index(prompt, "## SKILLS.md")
	notesIdx := strings.Index(prompt, "## NOTES.md")
	if agentsIdx == -1 || skillsIdx == -1 || notesIdx == -1 {
		t.Fatalf("expected all three convention sections present, got %q", prompt)
	}
	if !(agentsIdx < skillsIdx && skillsIdx < notesIdx) {
		t.Errorf("expected AGENTS.md < SKILLS.md < NOTES.md ordering, got indices %d %d %d", agentsIdx, skillsIdx, notesIdx)
	}
}

func TestBuildSystemPrompt_AppendsSkillsCatalogue(t *testing.T) {
	loop, _ := newTestLoop(t, &scriptedLLM{}, nil)
	loop.SetSkillsCatalogue("- do the thing")

	prompt := loop.buildSystemPrompt()
	if !strings.Contains(prompt, "## Available Skills") || !strings.Contains(prompt, "- do the thing") {
		t.Errorf("expected skills catalogue section, got %q", prompt)
	}
}

func TestBuildSystemPrompt_PrependsOAuthPreamble(t *testing.T) {
	loop, _ := newTestLoop(t, &scriptedLLM{}, nil)
	loop.SetOAuthPreamble("Acting on behalf of the account owner.")

	prompt := loop.buildSystemPrompt()
	if !strings.HasPrefix(prompt, "Acting on behalf of the account owner.") {
		t.Errorf("expected oauth preamble to lead the prompt, got %q", prompt)
	}
}

func mustWrite(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
