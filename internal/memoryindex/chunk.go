// Package memoryindex implements the hybrid lexical/vector memory
// index over curated memory notes and historical session transcripts,
// backed by modernc.org/sqlite with an FTS5 virtual table where
// available.
package memoryindex

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// IndexedFile tracks one source file's last-indexed content hash so
// Sync can detect unchanged files without re-chunking them.
type IndexedFile struct {
	Path        string
	Kind        string // "memory" or "session"
	ContentHash string
	MtimeMs     int64
}

// Chunk is one overlapping line-range slice of an indexed file, with
// its embedding vector once computed.
type Chunk struct {
	ID        string
	FilePath  string
	StartLine int // 1-indexed, inclusive
	EndLine   int // 1-indexed, inclusive
	Text      string
	ChunkHash string
	Embedding []float32 // nil until embedded
}

const (
	chunkTargetChars  = 1600
	chunkOverlapChars = 320
)

// chunkText splits text into line-oriented, overlapping chunks of
// roughly chunkTargetChars characters, with chunkOverlapChars worth of
// trailing lines repeated at the start of the next chunk. Blank-only
// chunks are dropped.
func chunkText(filePath, text string) []Chunk {
	lines := strings.Split(text, "\n")
	var chunks []Chunk

	start := 0
	for start < len(lines) {
		end := start
		chars := 0
		for end < len(lines) && (chars < chunkTargetChars || end == start) {
			chars += len(lines[end]) + 1
			end++
		}

		body := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(body) != "" {
			chunks = append(chunks, Chunk{
				FilePath:  filePath,
				StartLine: start + 1,
				EndLine:   end,
				Text:      body,
				ChunkHash: hashString(body),
			})
		}

		if end >= len(lines) {
			break
		}

		// Back up from end by chunkOverlapChars worth of lines so the
		// next chunk repeats recent context.
		newStart := end
		overlap := 0
		for newStart > start && overlap < chunkOverlapChars {
			newStart--
			overlap += len(lines[newStart]) + 1
		}
		if newStart <= start {
			newStart = start + 1 // guarantee forward progress
		}
		start = newStart
	}

	return chunks
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
