// Package assembler builds token-budgeted generation contexts from the
// memory store, the knowledge graph, and a per-project sliding window of
// recent prose.
package assembler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/lorekeep/lorekeep/internal/db"
	"github.com/lorekeep/lorekeep/internal/memory"
	"github.com/lorekeep/lorekeep/internal/models"
)

// Summarizer folds prose into a rolling summary of bounded size.
type Summarizer interface {
	Summarize(ctx context.Context, previousSummary, segment string, targetTokens int) (string, error)
}

// MemoryAccess is the slice of the memory store the assembler uses.
type MemoryAccess interface {
	Add(ctx context.Context, in models.MemoryInput) (string, error)
	Query(ctx context.Context, project, text string, opts memory.QueryOptions) ([]models.MemoryEntry, error)
}

var _ MemoryAccess = (*memory.Store)(nil)

// Config sizes the assembler.
type Config struct {
	// TokenBudget caps the assembled context.
	TokenBudget int
	// WindowSegments is the number of verbatim segments kept per project.
	WindowSegments int
	// SummaryTokens caps the rolling summary.
	SummaryTokens int
	// TopK is the default retrieval width.
	TopK int
}

// Request describes one context assembly.
type Request struct {
	Project string
	// Query drives semantic retrieval, usually the scene instruction.
	Query string
	// Pinned entries are included ahead of everything else.
	Pinned []string
	// Outline is the plan for the segment being generated.
	Outline string
	// Kinds optionally narrows retrieval; empty means all kinds.
	Kinds []models.MemoryKind
	TopK  int
}

// Context is an assembled, budget-respecting prompt context.
type Context struct {
	Text   string
	Tokens int
	// Dropped counts blocks that did not fit the budget.
	Dropped int
}

// Assembler assembles contexts and maintains per-project sliding windows.
// All methods are safe for concurrent use; only the summarizer call during
// eviction runs outside the window lock.
type Assembler struct {
	memory     MemoryAccess
	summarizer Summarizer
	counter    Counter
	cfg        Config
	logger     *slog.Logger

	mu      sync.Mutex
	windows map[string]*window
}

// New creates an assembler.
func New(m MemoryAccess, s Summarizer, counter Counter, cfg Config, logger *slog.Logger) *Assembler {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		memory:     m,
		summarizer: s,
		counter:    counter,
		cfg:        cfg,
		logger:     logger,
		windows:    map[string]*window{},
	}
}

// PushSegment records a newly accepted segment in the project's window.
// Segments evicted by capacity are folded into the rolling summary, and the
// updated summary is persisted as a memory entry.
func (a *Assembler) PushSegment(ctx context.Context, project string, seq int, text string) error {
	a.mu.Lock()
	w := a.window(project)
	evicted := w.push(Segment{Seq: seq, Text: text}, a.cfg.WindowSegments)
	a.mu.Unlock()

	if len(evicted) == 0 {
		return nil
	}

	// foldMu serializes folds for this project so a concurrent push cannot
	// base its fold on a summary this one is about to replace. The window
	// lock is held only to read and publish the summary, keeping the slow
	// summarizer call out of BuildContext's way.
	w.foldMu.Lock()
	defer w.foldMu.Unlock()
	a.mu.Lock()
	prev := w.summary
	a.mu.Unlock()

	updated, err := a.fold(ctx, prev, evicted)
	if err != nil {
		return err
	}
	a.mu.Lock()
	w.summary = updated
	a.mu.Unlock()

	_, err = a.memory.Add(ctx, models.MemoryInput{
		Project: project,
		Kind:    models.KindSummary,
		Content: updated,
		Metadata: map[string]any{
			"rolling":     true,
			"through_seq": evicted[len(evicted)-1].Seq,
		},
	})
	if err != nil {
		return fmt.Errorf("persist rolling summary: %w", err)
	}
	return nil
}

// WindowTail returns the verbatim segments currently in the window, oldest
// first, plus the rolling summary of what precedes them.
func (a *Assembler) WindowTail(project string) (summary string, segments []Segment) {
	a.mu.Lock()
	defer a.mu.Unlock()
	w := a.window(project)
	return w.summary, append([]Segment(nil), w.segments...)
}

func (a *Assembler) window(project string) *window {
	w, ok := a.windows[project]
	if !ok {
		w = &window{}
		a.windows[project] = w
	}
	return w
}

// BuildContext assembles a context within the token budget. Inclusion
// priority is pinned entries, then retrieved memories, then the outline,
// then the rolling summary and window tail. Content is only ever dropped at
// block boundaries, never mid-block; window segments are dropped oldest
// first so the tail stays contiguous.
func (a *Assembler) BuildContext(ctx context.Context, req Request) (*Context, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = a.cfg.TopK
	}

	var retrieved []models.MemoryEntry
	if req.Query != "" {
		var err error
		retrieved, err = a.memory.Query(ctx, req.Project, req.Query, memory.QueryOptions{
			TopK:   topK,
			Filter: db.MemoryFilter{Kinds: req.Kinds},
		})
		if err != nil {
			return nil, fmt.Errorf("retrieve memories: %w", err)
		}
	}

	summary, tail := a.WindowTail(req.Project)

	budget := a.cfg.TokenBudget
	used := 0
	dropped := 0
	sep := a.counter.Count("\n\n")
	started := false
	// A block's cost includes the joiners render inserts around it and its
	// section header the first time the section is used, so the rendered
	// text stays within budget. Only the first section overall skips the
	// leading joiner; the count of inter-section joiners is the same
	// whichever section renders first.
	take := func(text, header string, sectionStarted bool) bool {
		cost := a.counter.Count(text) + sep
		if !sectionStarted {
			cost += a.counter.Count(header)
			if started {
				cost += sep
			}
		}
		if used+cost > budget {
			dropped++
			return false
		}
		used += cost
		started = true
		return true
	}

	var canon, memories []string
	for _, p := range req.Pinned {
		if take(p, headerCanon, len(canon) > 0) {
			canon = append(canon, p)
		}
	}
	for _, e := range retrieved {
		if take(e.Content, headerMemories, len(memories) > 0) {
			memories = append(memories, e.Content)
		}
	}
	outline := ""
	if req.Outline != "" && take(req.Outline, headerOutline, false) {
		outline = req.Outline
	}
	if summary != "" && !take(summary, headerSummary, false) {
		summary = ""
	}
	// Newest segments first against the remaining budget, stopping at the
	// first segment that does not fit.
	var kept []Segment
	for i := len(tail) - 1; i >= 0; i-- {
		if !take(tail[i].Text, headerRecent, len(kept) > 0) {
			dropped += i
			break
		}
		kept = append([]Segment{tail[i]}, kept...)
	}

	text := render(canon, summary, kept, memories, outline)
	out := &Context{Text: text, Tokens: a.counter.Count(text), Dropped: dropped}
	a.logger.Debug("context assembled",
		"project", req.Project, "tokens", out.Tokens, "budget", budget,
		"pinned", len(canon), "retrieved", len(memories), "window", len(kept), "dropped", dropped)
	return out, nil
}

const (
	headerCanon    = "# Established canon"
	headerSummary  = "# The story so far"
	headerRecent   = "# Recent passages"
	headerMemories = "# Relevant memories"
	headerOutline  = "# Outline for this segment"
)

func render(canon []string, summary string, tail []Segment, memories []string, outline string) string {
	var b strings.Builder
	section := func(header string, blocks []string) {
		if len(blocks) == 0 {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(header)
		for _, block := range blocks {
			b.WriteString("\n\n")
			b.WriteString(block)
		}
	}

	section(headerCanon, canon)
	if summary != "" {
		section(headerSummary, []string{summary})
	}
	if len(tail) > 0 {
		blocks := make([]string, len(tail))
		for i, seg := range tail {
			blocks[i] = seg.Text
		}
		section(headerRecent, blocks)
	}
	section(headerMemories, memories)
	if outline != "" {
		section(headerOutline, []string{outline})
	}
	return b.String()
}
