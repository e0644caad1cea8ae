package parser

import (
	"strings"
	"unicode"
)

// Segment is one stored unit of chapter prose.
type Segment struct {
	Text     string
	Position int
}

// SegmentConfig defines segmentation parameters, all in characters.
type SegmentConfig struct {
	// Threshold: only segment if the chapter exceeds this length
	Threshold int
	// TargetSize: ideal segment size when splitting oversized paragraphs
	TargetSize int
	// MinSize: smaller segments merge with their predecessor
	MinSize int
	// MaxSize: larger accumulations split at sentence boundaries
	MaxSize int
}

// DefaultSegmentConfig returns sensible defaults.
func DefaultSegmentConfig() SegmentConfig {
	return SegmentConfig{
		Threshold:  1500,
		TargetSize: 750,
		MinSize:    200,
		MaxSize:    1000,
	}
}

// SegmentProse splits chapter prose into segments. Paragraph boundaries
// are preferred; a paragraph longer than MaxSize splits at sentence
// boundaries. Segments never break mid-sentence.
func SegmentProse(content string, cfg SegmentConfig) []Segment {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if len(content) <= cfg.Threshold {
		return []Segment{{Text: content}}
	}

	var segments []Segment
	var current strings.Builder

	flush := func() {
		text := strings.TrimSpace(current.String())
		current.Reset()
		if text == "" {
			return
		}
		// Merge undersized tails into the previous segment.
		if len(text) < cfg.MinSize && len(segments) > 0 {
			segments[len(segments)-1].Text += "\n\n" + text
			return
		}
		segments = append(segments, Segment{Text: text, Position: len(segments)})
	}

	for _, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if current.Len() > 0 && current.Len()+len(para) > cfg.MaxSize {
			flush()
		}

		if len(para) > cfg.MaxSize {
			flush()
			for _, piece := range splitAtSentences(para, cfg.TargetSize) {
				current.WriteString(piece)
				flush()
			}
			continue
		}

		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return segments
}

// splitAtSentences packs sentences into pieces of roughly targetSize.
func splitAtSentences(text string, targetSize int) []string {
	sentences := splitSentences(text)

	var pieces []string
	var current strings.Builder

	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}

		if current.Len() > 0 && current.Len()+len(sentence) > targetSize {
			pieces = append(pieces, strings.TrimSpace(current.String()))
			current.Reset()
		}

		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}

	if current.Len() > 0 {
		pieces = append(pieces, strings.TrimSpace(current.String()))
	}
	return pieces
}

// splitSentences splits text into sentences.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		current.WriteRune(r)

		if r == '.' || r == '!' || r == '?' {
			// Look ahead for space or end
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				// Not an abbreviation (simple heuristic)
				if i > 1 && unicode.IsUpper(runes[i-1]) {
					continue // Likely abbreviation like "Dr."
				}
				sentences = append(sentences, current.String())
				current.Reset()
			}
		}
	}

	if current.Len() > 0 {
		sentences = append(sentences, current.String())
	}

	return sentences
}
