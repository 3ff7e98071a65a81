package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadConventionFiles_SkipsMissing(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "PERSONA.md"), []byte("be helpful"), 0o644)

	files := ReadConventionFiles(dir)
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}
	if files[0].Name != "PERSONA.md" || files[0].Content != "be helpful" {
		t.Errorf("unexpected file: %+v", files[0])
	}
}

func TestReadConventionFiles_PreservesOrder(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "NOTES.md"), []byte("notes"), 0o644)
	os.WriteFile(filepath.Join(dir, "AGENTS.md"), []byte("agents"), 0o644)

	files := ReadConventionFiles(dir)
	if len(files) != 2 || files[0].Name != "AGENTS.md" || files[1].Name != "NOTES.md" {
		t.Errorf("expected AGENTS.md before NOTES.md regardless of write order, got %+v", files)
	}
}

func TestTruncateHeadTail_LeavesSmallTextUntouched(t *testing.T) {
	if got := truncateHeadTail("short", 100); got != "short" {
		t.Errorf("got %q, want unchanged", got)
	}
}

func TestTruncateHeadTail_SplitsHeadAndTail(t *testing.T) {
	text := strings.Repeat("a", 50) + strings.Repeat("b", 50) + strings.Repeat("c", 50)
	out := truncateHeadTail(text, 60)
	if !strings.Contains(out, "[... content elided ...]") {
		t.Errorf("expected an elision marker, got %q", out)
	}
	if !strings.HasPrefix(out, strings.Repeat("a", 10)) {
		t.Errorf("expected output to start with head content, got %q", out[:20])
	}
	if !strings.HasSuffix(out, strings.Repeat("c", 10)) {
		t.Errorf("expected output to end with tail content, got %q", out[len(out)-20:])
	}
}

func TestReadHeartbeatFile_MissingReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	if _, ok := ReadHeartbeatFile(dir); ok {
		t.Error("expected ok=false for a missing HEARTBEAT.md")
	}
}

func TestReadHeartbeatFile_StripsCommentOnlyBlock(t *testing.T) {
	dir := t.TempDir()
	content := "Check on the garden.\n\n<!-- this is just an authoring note -->\n\nWater the plants if dry.\n"
	os.WriteFile(filepath.Join(dir, "HEARTBEAT.md"), []byte(content), 0o644)

	out, ok := ReadHeartbeatFile(dir)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if strings.Contains(out, "authoring note") {
		t.Errorf("expected comment-only block to be stripped, got %q", out)
	}
	if !strings.Contains(out, "Water the plants") {
		t.Errorf("expected instructional text to survive, got %q", out)
	}
}

func TestReadHeartbeatFile_AllCommentsReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "HEARTBEAT.md"), []byte("<!-- nothing but a note -->"), 0o644)

	if _, ok := ReadHeartbeatFile(dir); ok {
		t.Error("a heartbeat file containing only comments should yield ok=false")
	}
}

func TestReadHeartbeatFile_StripsHashCommentLines(t *testing.T) {
	dir := t.TempDir()
	content := "# Authoring notes go here\nWater the plants if dry.\n# another note\n"
	os.WriteFile(filepath.Join(dir, "HEARTBEAT.md"), []byte(content), 0o644)

	out, ok := ReadHeartbeatFile(dir)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if strings.Contains(out, "Authoring notes") || strings.Contains(out, "another note") {
		t.Errorf("expected #-prefixed lines to be stripped, got %q", out)
	}
	if !strings.Contains(out, "Water the plants") {
		t.Errorf("expected instructional text to survive, got %q", out)
	}
}

func TestReadHeartbeatFile_AllHashCommentsReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	content := "# nothing but notes\n  # indented note too\n"
	os.WriteFile(filepath.Join(dir, "HEARTBEAT.md"), []byte(content), 0o644)

	if _, ok := ReadHeartbeatFile(dir); ok {
		t.Error("a heartbeat file containing only #-prefixed lines should yield ok=false")
	}
}
