package assembler

import (
	"context"
	"fmt"
	"sync"
)

// maxCompressionPasses bounds recursive re-summarization when a rolling
// summary refuses to shrink under the target.
const maxCompressionPasses = 3

// Segment is one generated unit of prose in the sliding window.
type Segment struct {
	Seq  int
	Text string
}

// window holds the most recent verbatim segments for one project plus the
// rolling summary of everything evicted before them. segments and summary
// are guarded by the assembler mutex; foldMu serializes summarization of
// evicted segments so concurrent pushes cannot lose a fold.
type window struct {
	foldMu   sync.Mutex
	segments []Segment
	summary  string
}

// push appends a segment and returns the segments evicted to stay within
// capacity, oldest first.
func (w *window) push(seg Segment, capacity int) []Segment {
	w.segments = append(w.segments, seg)
	if len(w.segments) <= capacity {
		return nil
	}
	n := len(w.segments) - capacity
	evicted := make([]Segment, n)
	copy(evicted, w.segments[:n])
	w.segments = append(w.segments[:0], w.segments[n:]...)
	return evicted
}

// fold absorbs evicted segments into the rolling summary and returns the
// updated summary; the window itself is untouched so the caller controls
// when the result becomes visible. When the summarizer cannot bring the
// summary under the token target within maxCompressionPasses, the summary
// is cut at the target as a last resort.
func (a *Assembler) fold(ctx context.Context, summary string, evicted []Segment) (string, error) {
	for _, seg := range evicted {
		updated, err := a.summarizer.Summarize(ctx, summary, seg.Text, a.cfg.SummaryTokens)
		if err != nil {
			return "", fmt.Errorf("summarize evicted segment %d: %w", seg.Seq, err)
		}
		summary = updated
	}

	for pass := 0; pass < maxCompressionPasses && a.counter.Count(summary) > a.cfg.SummaryTokens; pass++ {
		compressed, err := a.summarizer.Summarize(ctx, "", summary, a.cfg.SummaryTokens)
		if err != nil {
			return "", fmt.Errorf("compress rolling summary: %w", err)
		}
		summary = compressed
	}
	if a.counter.Count(summary) > a.cfg.SummaryTokens {
		a.logger.Warn("rolling summary still over target after compression, truncating",
			"tokens", a.counter.Count(summary), "target", a.cfg.SummaryTokens)
		summary = a.counter.Truncate(summary, a.cfg.SummaryTokens)
	}
	return summary, nil
}
