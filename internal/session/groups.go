package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ListGroups groups every segment file directly inside dir by its
// sanitized key stem, returning each group's segment paths sorted
// ascending by segment number (the highest is the active segment). It
// is exported for the Memory Index's session-file sync flow, which
// needs to walk the same on-disk layout the Store itself owns.
func ListGroups(dir string) (map[string][]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("session: read store dir: %w", err)
	}

	type found struct {
		num  int
		path string
	}
	groups := make(map[string][]found)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		stem, num, ok := parseSegmentName(e.Name())
		if !ok {
			continue
		}
		groups[stem] = append(groups[stem], found{num: num, path: filepath.Join(dir, e.Name())})
	}

	out := make(map[string][]string, len(groups))
	for stem, fs := range groups {
		sort.Slice(fs, func(i, j int) bool { return fs[i].num < fs[j].num })
		paths := make([]string, len(fs))
		for i, f := range fs {
			paths[i] = f.path
		}
		out[stem] = paths
	}
	return out, nil
}

// parseSegmentName splits a segment filename into its key stem and
// segment number: "key.jsonl" -> ("key", 0), "key.3.jsonl" -> ("key", 3).
func parseSegmentName(name string) (stem string, num int, ok bool) {
	if !strings.HasSuffix(name, ".jsonl") {
		return "", 0, false
	}
	base := strings.TrimSuffix(name, ".jsonl")
	if idx := strings.LastIndex(base, "."); idx >= 0 {
		if n, err := strconv.Atoi(base[idx+1:]); err == nil {
			return base[:idx], n, true
		}
	}
	return base, 0, true
}
