package memoryindex

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eddmann/jeeves/internal/llmclient"
	"github.com/eddmann/jeeves/internal/session"
)

const kindMemory = "memory"
const kindSession = "session"

// SyncOptions names the two roots the memory index tracks.
type SyncOptions struct {
	// WorkspaceDir is scanned for MEMORY.md and any memory/*.md files.
	WorkspaceDir string
	// SessionsDir is the Session Store's root directory.
	SessionsDir string
}

// Sync brings the index up to date with both memory notes and session
// transcripts, re-chunking and re-embedding only what changed.
func (idx *Index) Sync(ctx context.Context, opts SyncOptions) error {
	if err := idx.syncMemoryFiles(ctx, opts.WorkspaceDir); err != nil {
		return fmt.Errorf("memoryindex: sync memory files: %w", err)
	}
	if err := idx.syncSessionFiles(ctx, opts.SessionsDir); err != nil {
		return fmt.Errorf("memoryindex: sync session files: %w", err)
	}
	return nil
}

func (idx *Index) syncMemoryFiles(ctx context.Context, workspaceDir string) error {
	if workspaceDir == "" {
		return nil
	}

	var candidates []string
	if p := filepath.Join(workspaceDir, "MEMORY.md"); fileExists(p) {
		candidates = append(candidates, p)
	}
	if matches, err := filepath.Glob(filepath.Join(workspaceDir, "memory", "*.md")); err == nil {
		candidates = append(candidates, matches...)
	}

	current := make(map[string]bool, len(candidates))
	for _, path := range candidates {
		current[path] = true
		if err := idx.syncOneFile(ctx, path, kindMemory); err != nil {
			return err
		}
	}

	return idx.pruneVanished(ctx, kindMemory, current)
}

// syncOneFile reindexes a memory file from its raw on-disk content if
// it is new, changed, or was only partially embedded last time.
func (idx *Index) syncOneFile(ctx context.Context, path, kind string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	return idx.syncText(ctx, path, kind, string(data), info.ModTime().UnixMilli())
}

// syncText reindexes path using precomputed text (which, for session
// segments, is the rendered historical portion rather than the raw
// file bytes) if it is new, changed, or was only partially embedded
// last time.
func (idx *Index) syncText(ctx context.Context, path, kind, text string, mtimeMs int64) error {
	hash := hashString(text)
	existingHash, found, err := idx.fileRow(path)
	if err != nil {
		return err
	}
	if found && existingHash == hash {
		incomplete, err := idx.isIncomplete(path)
		if err != nil {
			return err
		}
		if !incomplete {
			return nil
		}
	}
	return idx.reindexFile(ctx, path, kind, hash, text, mtimeMs)
}

func (idx *Index) pruneVanished(ctx context.Context, kind string, current map[string]bool) error {
	rows, err := idx.db.QueryContext(ctx, `SELECT path FROM files WHERE kind = ?`, kind)
	if err != nil {
		return fmt.Errorf("list indexed %s files: %w", kind, err)
	}
	var stale []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			continue
		}
		if !current[path] {
			stale = append(stale, path)
		}
	}
	rows.Close()

	for _, path := range stale {
		if err := idx.removeFile(path); err != nil {
			return err
		}
	}
	return nil
}

func (idx *Index) syncSessionFiles(ctx context.Context, sessionsDir string) error {
	if sessionsDir == "" {
		return nil
	}
	groups, err := session.ListGroups(sessionsDir)
	if err != nil {
		return fmt.Errorf("list session groups: %w", err)
	}

	current := make(map[string]bool)
	for _, paths := range groups {
		for i, path := range paths {
			active := i == len(paths)-1
			text, ok, err := sessionIndexableText(path, active)
			if err != nil {
				return fmt.Errorf("render %s: %w", path, err)
			}
			if !ok {
				continue // active segment with no (or leading) marker: nothing historical to index
			}
			current[path] = true

			mtimeMs := int64(0)
			if info, err := os.Stat(path); err == nil {
				mtimeMs = info.ModTime().UnixMilli()
			}
			if err := idx.syncText(ctx, path, kindSession, text, mtimeMs); err != nil {
				return err
			}
		}
	}

	return idx.pruneVanished(ctx, kindSession, current)
}

// sessionIndexableText renders a segment file's message content as
// one line per message (role-prefixed; non-text blocks contribute
// nothing). For the active segment, only the portion before its last
// compaction marker is indexed — ok is false if there is no such
// portion. Archived segments are rendered in full.
func sessionIndexableText(path string, active bool) (text string, ok bool, err error) {
	lines, err := readRawLines(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}

	scope := lines
	if active {
		lastMarker := -1
		for i, line := range lines {
			if isMarkerLine(line) {
				lastMarker = i
			}
		}
		if lastMarker <= 0 {
			return "", false, nil
		}
		scope = lines[:lastMarker]
	}

	var rendered []string
	for _, line := range scope {
		if isMarkerLine(line) {
			continue
		}
		var m llmclient.Message
		if err := json.Unmarshal(line, &m); err != nil {
			continue
		}
		if r := renderMessageLine(m); r != "" {
			rendered = append(rendered, r)
		}
	}
	if len(rendered) == 0 {
		return "", false, nil
	}
	return strings.Join(rendered, "\n"), true, nil
}

func renderMessageLine(m llmclient.Message) string {
	var body string
	if m.IsBlocks() {
		var parts []string
		for _, b := range m.Blocks {
			if b.Type == llmclient.BlockText && strings.TrimSpace(b.Text) != "" {
				parts = append(parts, strings.ReplaceAll(b.Text, "\n", " "))
			}
		}
		body = strings.TrimSpace(strings.Join(parts, " "))
	} else {
		body = strings.TrimSpace(strings.ReplaceAll(m.Text, "\n", " "))
	}
	if body == "" {
		return ""
	}
	return fmt.Sprintf("%s: %s", m.Role, body)
}

func readRawLines(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		out = append(out, append([]byte(nil), line...))
	}
	return out, scanner.Err()
}

func isMarkerLine(line []byte) bool {
	var probe struct {
		Compaction bool `json:"@@compaction"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		return false
	}
	return probe.Compaction
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
