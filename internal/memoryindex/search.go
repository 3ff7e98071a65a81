package memoryindex

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// SearchResult is one scored chunk returned by Search.
type SearchResult struct {
	ChunkID   string
	FilePath  string
	StartLine int
	EndLine   int
	Text      string
	Score     float64
}

var tokenPattern = regexp.MustCompile(`[A-Za-z0-9]+`)

// Search runs the lexical and vector branches (whichever are
// available), normalises and merges their scores, filters out
// anything below MinScore, and returns at most maxResults results in
// descending score order. maxResults <= 0 uses DefaultMaxResults.
func (idx *Index) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	candidateLimit := 4 * maxResults

	lexical, lexOK, err := idx.lexicalSearch(ctx, query, candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("memoryindex: lexical search: %w", err)
	}
	vector, vecOK := idx.vectorSearch(ctx, query, candidateLimit)

	merged := mergeResults(lexical, lexOK, vector, vecOK)

	var out []SearchResult
	for _, r := range merged {
		if r.Score >= MinScore {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}

// lexicalSearch tokenises query into lowercase alphanumeric terms of
// at least two characters and runs an FTS5 MATCH (or, if FTS5 is
// unavailable, a conjunctive LIKE scan) over chunk text. ok is false
// when the query yields no usable terms.
func (idx *Index) lexicalSearch(ctx context.Context, query string, limit int) ([]SearchResult, bool, error) {
	terms := tokenPattern.FindAllString(strings.ToLower(query), -1)
	var kept []string
	for _, t := range terms {
		if len(t) >= 2 {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		return nil, false, nil
	}

	if idx.ftsEnabled {
		return idx.lexicalSearchFTS(ctx, kept, limit)
	}
	return idx.lexicalSearchLike(ctx, kept, limit)
}

func (idx *Index) lexicalSearchFTS(ctx context.Context, terms []string, limit int) ([]SearchResult, bool, error) {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, ``) + `"`
	}
	matchQuery := strings.Join(quoted, " AND ")

	rows, err := idx.db.QueryContext(ctx, `
SELECT c.id, c.file_path, c.start_line, c.end_line, c.text, chunks_fts.rank
FROM chunks_fts
JOIN chunks c ON c.rowid = chunks_fts.rowid
WHERE chunks_fts MATCH ?
ORDER BY chunks_fts.rank
LIMIT ?
`, matchQuery, limit)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var rank float64
		if err := rows.Scan(&r.ChunkID, &r.FilePath, &r.StartLine, &r.EndLine, &r.Text, &rank); err != nil {
			continue
		}
		r.Score = 1.0 / (1.0 + maxFloat(0, rank))
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, false, nil
	}
	return out, true, nil
}

func (idx *Index) lexicalSearchLike(ctx context.Context, terms []string, limit int) ([]SearchResult, bool, error) {
	var clauses []string
	var args []any
	for _, t := range terms {
		clauses = append(clauses, "text LIKE ?")
		args = append(args, "%"+t+"%")
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
SELECT id, file_path, start_line, end_line, text
FROM chunks
WHERE %s
ORDER BY rowid DESC
LIMIT ?
`, strings.Join(clauses, " AND "))

	rows, err := idx.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ChunkID, &r.FilePath, &r.StartLine, &r.EndLine, &r.Text); err != nil {
			continue
		}
		r.Score = 1.0
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, false, nil
	}
	return out, true, nil
}

// vectorSearch embeds query and brute-force scores it against every
// embedded chunk by cosine similarity. ok is false if no embedder is
// configured, the embed call fails, or no chunk has an embedding yet.
func (idx *Index) vectorSearch(ctx context.Context, query string, limit int) ([]SearchResult, bool) {
	vecs, err := idx.embedder.Embed(ctx, []string{query})
	if err != nil || len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, false
	}
	qvec := vecs[0]

	rows, err := idx.db.QueryContext(ctx, `SELECT id, file_path, start_line, end_line, text, embedding FROM chunks WHERE embedding IS NOT NULL`)
	if err != nil {
		idx.logger.Warn("memoryindex: vector search query failed", "error", err)
		return nil, false
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var blob []byte
		if err := rows.Scan(&r.ChunkID, &r.FilePath, &r.StartLine, &r.EndLine, &r.Text, &blob); err != nil {
			continue
		}
		r.Score = cosineSimilarity(qvec, decodeEmbedding(blob))
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, false
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, true
}

// mergeResults normalises each available branch's scores against its
// own top result, weights lexical 0.3 / vector 0.7 when both branches
// produced results (or gives the sole branch full weight), and sums
// contributions per chunk id.
func mergeResults(lexical []SearchResult, lexOK bool, vector []SearchResult, vecOK bool) []SearchResult {
	if !lexOK && !vecOK {
		return nil
	}

	var lexWeight, vecWeight float64
	switch {
	case lexOK && vecOK:
		lexWeight, vecWeight = 0.3, 0.7
	case lexOK:
		lexWeight = 1.0
	case vecOK:
		vecWeight = 1.0
	}

	lexical = normalizeScores(lexical)
	vector = normalizeScores(vector)

	scores := make(map[string]float64)
	meta := make(map[string]SearchResult)
	for _, r := range lexical {
		scores[r.ChunkID] += r.Score * lexWeight
		meta[r.ChunkID] = r
	}
	for _, r := range vector {
		scores[r.ChunkID] += r.Score * vecWeight
		meta[r.ChunkID] = r
	}

	out := make([]SearchResult, 0, len(scores))
	for id, score := range scores {
		r := meta[id]
		r.Score = score
		out = append(out, r)
	}
	return out
}

// normalizeScores divides every score by the branch's top score so
// the best result in that branch scores exactly 1.0. Assumes results
// are sorted in descending score order.
func normalizeScores(results []SearchResult) []SearchResult {
	if len(results) == 0 {
		return results
	}
	top := results[0].Score
	if top <= 0 {
		for i := range results {
			results[i].Score = 0
		}
		return results
	}
	out := make([]SearchResult, len(results))
	for i, r := range results {
		r.Score = r.Score / top
		out[i] = r
	}
	return out
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
