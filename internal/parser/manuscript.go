// Package parser turns Markdown manuscripts into chapters and prose
// segments for bulk import into the memory store.
package parser

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lorekeep/lorekeep/internal/models"
)

// Manuscript is a parsed Markdown manuscript.
type Manuscript struct {
	// Frontmatter metadata (from YAML)
	Frontmatter map[string]any

	// Title from frontmatter or the first h1
	Title string

	Chapters []Chapter
}

// Chapter is one top-level heading and the prose under it.
type Chapter struct {
	Number  int    // 1-based, or the number parsed from the heading
	Title   string // heading text without the chapter prefix
	Content string
	Start   int // line number where the chapter starts
	End     int
}

var (
	headingRegex = regexp.MustCompile(`^(#{1,2})\s+(.+)$`)
	chapterRegex = regexp.MustCompile(`(?i)^chapter\s+(\d+)\s*[:.-]?\s*(.*)$`)
)

// ParseManuscript parses a Markdown manuscript. Chapters split on h1/h2
// headings; "Chapter N" headings keep their own numbering, everything else
// is numbered in document order. Prose before the first heading becomes
// chapter 1.
func ParseManuscript(content string) (*Manuscript, error) {
	m := &Manuscript{
		Frontmatter: make(map[string]any),
	}

	remaining := content
	if strings.HasPrefix(content, "---\n") {
		endIdx := strings.Index(content[4:], "\n---")
		if endIdx > 0 {
			frontmatterYAML := content[4 : 4+endIdx]
			remaining = strings.TrimPrefix(content[4+endIdx+4:], "\n")

			if err := yaml.Unmarshal([]byte(frontmatterYAML), &m.Frontmatter); err != nil {
				// Ignore YAML errors, just use empty frontmatter
				m.Frontmatter = make(map[string]any)
			}
		}
	}

	m.Title = extractTitle(m.Frontmatter, remaining)
	m.Chapters = parseChapters(remaining)
	return m, nil
}

// extractTitle gets the title from frontmatter or the first h1.
func extractTitle(fm map[string]any, content string) string {
	if title, ok := fm["title"].(string); ok && title != "" {
		return title
	}

	h1Regex := regexp.MustCompile(`(?m)^#\s+(.+)$`)
	if match := h1Regex.FindStringSubmatch(content); len(match) > 1 {
		return strings.TrimSpace(match[1])
	}
	return ""
}

// parseChapters splits content into chapters at h1/h2 boundaries.
func parseChapters(content string) []Chapter {
	var chapters []Chapter
	nextNumber := 1

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	lineNum := 0

	var current *Chapter
	var body strings.Builder

	flush := func(endLine int) {
		if current == nil {
			return
		}
		current.Content = strings.TrimSpace(body.String())
		current.End = endLine
		if current.Content != "" || current.Title != "" {
			chapters = append(chapters, *current)
		}
		body.Reset()
	}

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		match := headingRegex.FindStringSubmatch(line)
		if match == nil {
			if current == nil {
				if strings.TrimSpace(line) == "" {
					continue
				}
				// Prose before any heading gets an implicit chapter.
				current = &Chapter{Number: nextNumber, Start: lineNum}
				nextNumber++
			}
			body.WriteString(line)
			body.WriteString("\n")
			continue
		}

		flush(lineNum - 1)
		heading := strings.TrimSpace(match[2])
		number := nextNumber
		title := heading
		if cm := chapterRegex.FindStringSubmatch(heading); cm != nil {
			if n, err := strconv.Atoi(cm[1]); err == nil {
				number = n
			}
			title = strings.TrimSpace(cm[2])
		}
		if number >= nextNumber {
			nextNumber = number + 1
		}
		current = &Chapter{Number: number, Title: title, Start: lineNum}
	}
	flush(lineNum)

	return chapters
}

var entityRefRegex = regexp.MustCompile(`\[\[([^\]]+)\]\]`)

// ExtractEntityRefs finds [[type:key]] entity references in prose and
// returns them deduplicated in order of first appearance. References with
// an unknown type prefix are skipped.
func ExtractEntityRefs(content string) []string {
	matches := entityRefRegex.FindAllStringSubmatch(content, -1)

	refs := make([]string, 0, len(matches))
	seen := make(map[string]bool)
	for _, match := range matches {
		ref := strings.TrimSpace(match[1])
		typ, _, found := strings.Cut(ref, ":")
		if !found || !models.ValidNodeType(models.NodeType(typ)) {
			continue
		}
		if !seen[ref] {
			refs = append(refs, ref)
			seen[ref] = true
		}
	}
	return refs
}

// StripEntityRefs replaces [[type:key]] markers with the bare key so the
// stored prose reads naturally.
func StripEntityRefs(content string) string {
	return entityRefRegex.ReplaceAllStringFunc(content, func(m string) string {
		inner := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(m, "[["), "]]"))
		if _, key, found := strings.Cut(inner, ":"); found {
			return key
		}
		return inner
	})
}
