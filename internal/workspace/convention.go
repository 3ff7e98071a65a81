// Package workspace reads the small set of well-known files a
// workspace directory may contain: convention files that feed system
// prompt construction and the heartbeat's own instructions file.
package workspace

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ConventionFileNames lists, in the order they are assembled into the
// system prompt, the well-known files a workspace root may contain.
// The set is deliberately small and fixed: this core does not
// discover or bootstrap workspace content (that is an external
// collaborator's job), it only reads what's already there.
var ConventionFileNames = []string{
	"AGENTS.md",
	"PERSONA.md",
	"PREFERENCES.md",
	"SKILLS.md",
	"TOOLS.md",
	"MEMORY.md",
	"NOTES.md",
}

// maxConventionBytes bounds each convention file's contribution to the
// system prompt.
const maxConventionBytes = 20_000

// headFraction / tailFraction split the retained budget when a file
// exceeds maxConventionBytes: mostly head, a little tail, with an
// explicit marker between so the model knows content was elided.
const headFraction = 0.7
const tailFraction = 0.2

// ConventionFile is one read workspace convention file.
type ConventionFile struct {
	Name    string
	Content string
}

// ReadConventionFiles reads every present file named in
// ConventionFileNames from dir, truncating oversized ones, and
// returns them in ConventionFileNames order. Missing files are
// silently skipped.
func ReadConventionFiles(dir string) []ConventionFile {
	var out []ConventionFile
	for _, name := range ConventionFileNames {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		out = append(out, ConventionFile{Name: name, Content: truncateHeadTail(string(data), maxConventionBytes)})
	}
	return out
}

// truncateHeadTail returns text unchanged if it already fits within
// limit. Otherwise it keeps headFraction of limit from the start and
// tailFraction of limit from the end, joined by an explicit elision
// marker, so the combined length is at most limit plus the marker.
func truncateHeadTail(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	headLen := int(float64(limit) * headFraction)
	tailLen := int(float64(limit) * tailFraction)
	if headLen+tailLen > len(text) {
		return text
	}
	head := text[:headLen]
	tail := text[len(text)-tailLen:]
	return head + "\n\n[... content elided ...]\n\n" + tail
}

// ReadHeartbeatFile reads HEARTBEAT.md from dir and strips any
// comment-only content — markdown HTML comment blocks and whole lines
// starting with `#` — returning the remaining instructional text. If
// nothing but whitespace remains, the file is treated as absent and
// this returns ("", false).
func ReadHeartbeatFile(dir string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(dir, "HEARTBEAT.md"))
	if err != nil {
		return "", false
	}
	stripped := stripHashCommentLines(stripCommentOnlyBlocks(data))
	if strings.TrimSpace(stripped) == "" {
		return "", false
	}
	return stripped, true
}

// stripHashCommentLines drops every line whose first non-whitespace
// character is `#`, leaving blank lines in place so surrounding
// content's line numbers aren't disturbed.
func stripHashCommentLines(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			lines[i] = ""
		}
	}
	return strings.Join(lines, "\n")
}

// stripCommentOnlyBlocks walks the markdown AST and drops any HTML
// block whose content is entirely an HTML comment, returning the
// remaining source text with those byte ranges removed.
func stripCommentOnlyBlocks(source []byte) string {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(source))

	var drop [][2]int
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if htmlBlock, ok := n.(*ast.HTMLBlock); ok {
			seg := htmlBlock.BaseBlock.Lines()
			if seg.Len() == 0 {
				return ast.WalkContinue, nil
			}
			var buf strings.Builder
			for i := 0; i < seg.Len(); i++ {
				s := seg.At(i)
				buf.Write(s.Value(source))
			}
			body := strings.TrimSpace(buf.String())
			if strings.HasPrefix(body, "<!--") && strings.HasSuffix(body, "-->") {
				s := seg.At(0)
				e := seg.At(seg.Len() - 1)
				drop = append(drop, [2]int{s.Start, e.Stop})
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil || len(drop) == 0 {
		return string(source)
	}

	var out strings.Builder
	cursor := 0
	for _, d := range drop {
		if d[0] < cursor {
			continue
		}
		out.Write(source[cursor:d[0]])
		cursor = d[1]
	}
	out.Write(source[cursor:])
	return out.String()
}
