package memoryindex

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// MinScore is the floor below which a merged search result is
// discarded.
const MinScore = 0.35

// DefaultMaxResults is used when Search's caller asks for no specific
// limit.
const DefaultMaxResults = 6

// Index is the hybrid memory index: a sqlite database of indexed
// files and their chunk-level text and embeddings, with an FTS5
// virtual table when the linked sqlite build supports it.
type Index struct {
	db         *sql.DB
	embedder   Embedder
	logger     *slog.Logger
	ftsEnabled bool
}

// Open opens (creating if necessary) the sqlite database at path and
// prepares its schema. A nil embedder degrades to NoopEmbedder.
func Open(path string, embedder Embedder, logger *slog.Logger) (*Index, error) {
	if embedder == nil {
		embedder = NoopEmbedder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("memoryindex: create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("memoryindex: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers on one handle

	idx := &Index{db: db, embedder: embedder, logger: logger}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	idx.ftsEnabled = idx.tryEnableFTS()
	return idx, nil
}

// Close releases the underlying database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

func (idx *Index) migrate() error {
	_, err := idx.db.Exec(`
CREATE TABLE IF NOT EXISTS files (
	path TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	mtime_ms INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	file_path TEXT NOT NULL,
	start_line INTEGER NOT NULL,
	end_line INTEGER NOT NULL,
	text TEXT NOT NULL,
	chunk_hash TEXT NOT NULL,
	embedding BLOB
);
CREATE INDEX IF NOT EXISTS idx_chunks_file_path ON chunks(file_path);
`)
	if err != nil {
		return fmt.Errorf("memoryindex: migrate schema: %w", err)
	}
	return nil
}

// tryEnableFTS creates the chunks_fts virtual table and its
// maintenance triggers, returning false if the linked sqlite build
// lacks FTS5 support — in which case Search degrades to a LIKE-based
// lexical fallback.
func (idx *Index) tryEnableFTS() bool {
	_, err := idx.db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(text, content=chunks, content_rowid=rowid);`)
	if err != nil {
		idx.logger.Warn("memoryindex: FTS5 unavailable, lexical search will use a LIKE-based fallback", "error", err)
		return false
	}
	_, err = idx.db.Exec(`
CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
	INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
END;
CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
	INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES('delete', old.rowid, old.text);
END;
CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
	INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES('delete', old.rowid, old.text);
	INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
END;
`)
	if err != nil {
		idx.logger.Warn("memoryindex: FTS5 triggers failed, lexical search will use a LIKE-based fallback", "error", err)
		return false
	}
	return true
}

// fileRow looks up the tracked hash for path. found is false if path
// has never been indexed.
func (idx *Index) fileRow(path string) (hash string, found bool, err error) {
	row := idx.db.QueryRow(`SELECT content_hash FROM files WHERE path = ?`, path)
	if err := row.Scan(&hash); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("memoryindex: query file row: %w", err)
	}
	return hash, true, nil
}

// isIncomplete reports whether path has any chunk with no embedding,
// which happens when it was first indexed while no embedder (or the
// NoopEmbedder) was configured. Callers use this to force a re-index
// once a real embedder becomes available.
func (idx *Index) isIncomplete(path string) (bool, error) {
	var count int
	row := idx.db.QueryRow(`SELECT COUNT(*) FROM chunks WHERE file_path = ? AND embedding IS NULL`, path)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("memoryindex: check incomplete embeddings: %w", err)
	}
	return count > 0, nil
}

// removeFile deletes path's file row and every chunk belonging to it.
func (idx *Index) removeFile(path string) error {
	if _, err := idx.db.Exec(`DELETE FROM chunks WHERE file_path = ?`, path); err != nil {
		return fmt.Errorf("memoryindex: delete chunks: %w", err)
	}
	if _, err := idx.db.Exec(`DELETE FROM files WHERE path = ?`, path); err != nil {
		return fmt.Errorf("memoryindex: delete file row: %w", err)
	}
	return nil
}

// reindexFile replaces path's chunks with fresh ones derived from
// text, embedding them (best-effort: embedder failure logs and leaves
// embeddings null rather than aborting the sync) and recording the
// file's content hash.
func (idx *Index) reindexFile(ctx context.Context, path, kind, contentHash string, text string, mtimeMs int64) error {
	if _, err := idx.db.Exec(`DELETE FROM chunks WHERE file_path = ?`, path); err != nil {
		return fmt.Errorf("memoryindex: clear existing chunks: %w", err)
	}

	chunks := chunkText(path, text)
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vectors, err := idx.embedder.Embed(ctx, texts)
		if err != nil {
			idx.logger.Warn("memoryindex: embedding failed, indexing lexically only", "path", path, "error", err)
			vectors = nil
		}

		tx, err := idx.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("memoryindex: begin tx: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (id, file_path, start_line, end_line, text, chunk_hash, embedding) VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("memoryindex: prepare chunk insert: %w", err)
		}
		for i, c := range chunks {
			var blob []byte
			if i < len(vectors) && len(vectors[i]) > 0 {
				blob = encodeEmbedding(vectors[i])
			}
			if _, err := stmt.ExecContext(ctx, uuid.NewString(), c.FilePath, c.StartLine, c.EndLine, c.Text, c.ChunkHash, blob); err != nil {
				stmt.Close()
				tx.Rollback()
				return fmt.Errorf("memoryindex: insert chunk: %w", err)
			}
		}
		stmt.Close()
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("memoryindex: commit chunk insert: %w", err)
		}
	}

	_, err := idx.db.ExecContext(ctx, `
INSERT INTO files (path, kind, content_hash, mtime_ms) VALUES (?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET kind = excluded.kind, content_hash = excluded.content_hash, mtime_ms = excluded.mtime_ms
`, path, kind, contentHash, mtimeMs)
	if err != nil {
		return fmt.Errorf("memoryindex: upsert file row: %w", err)
	}
	return nil
}
