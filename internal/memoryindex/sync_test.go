package memoryindex

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eddmann/jeeves/internal/llmclient"
)

func writeSegment(t *testing.T, dir, name string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	var data string
	for _, l := range lines {
		data += l + "\n"
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func msgLine(t *testing.T, m llmclient.Message) string {
	t.Helper()
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestSyncMemoryFiles_IndexesAndPrunes(t *testing.T) {
	idx := newTestIndex(t, NoopEmbedder{})
	ctx := context.Background()
	workspace := t.TempDir()

	if err := os.WriteFile(filepath.Join(workspace, "MEMORY.md"), []byte("remember the meeting is at noon"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := idx.Sync(ctx, SyncOptions{WorkspaceDir: workspace}); err != nil {
		t.Fatal(err)
	}

	var count int
	idx.db.QueryRow(`SELECT count(*) FROM files WHERE kind = ?`, kindMemory).Scan(&count)
	if count != 1 {
		t.Fatalf("expected 1 indexed memory file, got %d", count)
	}

	if err := os.Remove(filepath.Join(workspace, "MEMORY.md")); err != nil {
		t.Fatal(err)
	}
	if err := idx.Sync(ctx, SyncOptions{WorkspaceDir: workspace}); err != nil {
		t.Fatal(err)
	}
	idx.db.QueryRow(`SELECT count(*) FROM files WHERE kind = ?`, kindMemory).Scan(&count)
	if count != 0 {
		t.Errorf("expected deleted memory file to be pruned from the index, got %d rows", count)
	}
}

func TestSyncSessionFiles_ArchivedSegmentIndexedInFull(t *testing.T) {
	idx := newTestIndex(t, NoopEmbedder{})
	ctx := context.Background()
	sessionsDir := t.TempDir()

	writeSegment(t, sessionsDir, "alice.jsonl", []string{
		msgLine(t, llmclient.NewTextMessage(llmclient.RoleUser, "what's the capital of france")),
		msgLine(t, llmclient.NewTextMessage(llmclient.RoleAssistant, "paris")),
	})
	writeSegment(t, sessionsDir, "alice.1.jsonl", []string{
		msgLine(t, llmclient.NewTextMessage(llmclient.RoleUser, "thanks")),
	})

	if err := idx.Sync(ctx, SyncOptions{SessionsDir: sessionsDir}); err != nil {
		t.Fatal(err)
	}

	var count int
	idx.db.QueryRow(`SELECT count(*) FROM files WHERE kind = ?`, kindSession).Scan(&count)
	if count != 1 {
		t.Fatalf("expected only the archived segment (alice.jsonl) to be indexed, got %d", count)
	}
}

func TestSyncSessionFiles_ActiveSegmentNoMarkerSkipped(t *testing.T) {
	idx := newTestIndex(t, NoopEmbedder{})
	ctx := context.Background()
	sessionsDir := t.TempDir()

	writeSegment(t, sessionsDir, "bob.jsonl", []string{
		msgLine(t, llmclient.NewTextMessage(llmclient.RoleUser, "hello")),
	})

	if err := idx.Sync(ctx, SyncOptions{SessionsDir: sessionsDir}); err != nil {
		t.Fatal(err)
	}

	var count int
	idx.db.QueryRow(`SELECT count(*) FROM files`).Scan(&count)
	if count != 0 {
		t.Errorf("active segment with no compaction marker should contribute nothing, got %d indexed files", count)
	}
}

func TestSyncSessionFiles_ActiveSegmentIndexesOnlyPreMarker(t *testing.T) {
	idx := newTestIndex(t, NoopEmbedder{})
	ctx := context.Background()
	sessionsDir := t.TempDir()

	writeSegment(t, sessionsDir, "carol.jsonl", []string{
		msgLine(t, llmclient.NewTextMessage(llmclient.RoleUser, "old topic discussion")),
		`{"@@compaction":true}`,
		msgLine(t, llmclient.NewTextMessage(llmclient.RoleUser, "current topic")),
	})

	if err := idx.Sync(ctx, SyncOptions{SessionsDir: sessionsDir}); err != nil {
		t.Fatal(err)
	}

	var text string
	err := idx.db.QueryRow(`SELECT text FROM chunks WHERE file_path LIKE '%carol.jsonl'`).Scan(&text)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "old topic") {
		t.Errorf("expected indexed text to contain the pre-marker content, got %q", text)
	}
	if strings.Contains(text, "current topic") {
		t.Errorf("post-marker content must not be indexed, got %q", text)
	}
}
