package assembler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorekeep/lorekeep/internal/memory"
	"github.com/lorekeep/lorekeep/internal/models"
)

// wordCounter approximates tokens as whitespace-separated words so tests do
// not depend on BPE data files.
type wordCounter struct{}

func (wordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

func (wordCounter) Truncate(text string, maxTokens int) string {
	words := strings.Fields(text)
	if len(words) <= maxTokens {
		return text
	}
	return strings.Join(words[:maxTokens], " ")
}

type fakeSummarizer struct {
	calls int
	fixed string
}

func (f *fakeSummarizer) Summarize(_ context.Context, prev, segment string, _ int) (string, error) {
	f.calls++
	if f.fixed != "" {
		return f.fixed, nil
	}
	if prev == "" {
		return "summary of: " + firstWords(segment, 3), nil
	}
	return prev + " | " + firstWords(segment, 3), nil
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

type fakeMemory struct {
	added   []models.MemoryInput
	results []models.MemoryEntry
}

func (f *fakeMemory) Add(_ context.Context, in models.MemoryInput) (string, error) {
	f.added = append(f.added, in)
	return fmt.Sprintf("entry-%d", len(f.added)), nil
}

func (f *fakeMemory) Query(_ context.Context, _, _ string, _ memory.QueryOptions) ([]models.MemoryEntry, error) {
	return f.results, nil
}

func newTestAssembler(mem *fakeMemory, sum Summarizer, budget int) *Assembler {
	return New(mem, sum, wordCounter{}, Config{
		TokenBudget:    budget,
		WindowSegments: 3,
		SummaryTokens:  20,
		TopK:           5,
	}, nil)
}

func TestPushSegmentEvictsAndSummarizes(t *testing.T) {
	mem := &fakeMemory{}
	sum := &fakeSummarizer{}
	a := newTestAssembler(mem, sum, 1000)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, a.PushSegment(ctx, "novel", i, fmt.Sprintf("segment %d text", i)))
	}
	assert.Zero(t, sum.calls)
	assert.Empty(t, mem.added)

	require.NoError(t, a.PushSegment(ctx, "novel", 4, "segment 4 text"))
	assert.Equal(t, 1, sum.calls)
	require.Len(t, mem.added, 1)
	assert.Equal(t, models.KindSummary, mem.added[0].Kind)
	assert.Equal(t, 1, mem.added[0].Metadata["through_seq"])

	summary, tail := a.WindowTail("novel")
	assert.NotEmpty(t, summary)
	require.Len(t, tail, 3)
	assert.Equal(t, 2, tail[0].Seq)
	assert.Equal(t, 4, tail[2].Seq)
}

func TestFoldTruncatesWhenCompressionStalls(t *testing.T) {
	// Summarizer that always returns an over-budget summary forces the
	// truncation fallback after bounded re-compression.
	long := strings.Repeat("word ", 50)
	sum := &fakeSummarizer{fixed: strings.TrimSpace(long)}
	mem := &fakeMemory{}
	a := newTestAssembler(mem, sum, 1000)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		require.NoError(t, a.PushSegment(ctx, "novel", i, fmt.Sprintf("segment %d", i)))
	}

	summary, _ := a.WindowTail("novel")
	assert.LessOrEqual(t, wordCounter{}.Count(summary), 20)
	// 1 fold call + maxCompressionPasses retries.
	assert.Equal(t, 1+maxCompressionPasses, sum.calls)
}

func TestBuildContextPriorityOrder(t *testing.T) {
	mem := &fakeMemory{results: []models.MemoryEntry{
		{Content: "Mira fears deep water.", Similarity: 0.9},
	}}
	a := newTestAssembler(mem, &fakeSummarizer{}, 1000)
	ctx := context.Background()

	require.NoError(t, a.PushSegment(ctx, "novel", 1, "The harbor lay silent."))

	got, err := a.BuildContext(ctx, Request{
		Project: "novel",
		Query:   "mira at the harbor",
		Pinned:  []string{"Magic always has a price."},
		Outline: "Mira confronts the tide.",
	})
	require.NoError(t, err)
	assert.Zero(t, got.Dropped)
	assert.Contains(t, got.Text, "# Established canon")
	assert.Contains(t, got.Text, "Magic always has a price.")
	assert.Contains(t, got.Text, "# Recent passages")
	assert.Contains(t, got.Text, "# Relevant memories")
	assert.Contains(t, got.Text, "# Outline for this segment")
	assert.Greater(t, got.Tokens, 0)
}

func TestBuildContextBudgetDropsLowPriority(t *testing.T) {
	mem := &fakeMemory{results: []models.MemoryEntry{
		{Content: "one two three four five six seven eight", Similarity: 0.9},
	}}
	a := newTestAssembler(mem, &fakeSummarizer{}, 16)
	ctx := context.Background()

	require.NoError(t, a.PushSegment(ctx, "novel", 1, "a very long passage that cannot possibly fit in the remaining budget at all"))

	got, err := a.BuildContext(ctx, Request{
		Project: "novel",
		Query:   "anything",
		Pinned:  []string{"canon fact"},
		Outline: "outline here now",
	})
	require.NoError(t, err)

	// Pinned and retrieved fit with their headers; outline and window drop.
	assert.Contains(t, got.Text, "canon fact")
	assert.Contains(t, got.Text, "one two three")
	assert.NotContains(t, got.Text, "outline here now")
	assert.NotContains(t, got.Text, "# Recent passages")
	assert.GreaterOrEqual(t, got.Dropped, 2)
}

func TestBuildContextWindowDropsOldestFirst(t *testing.T) {
	a := newTestAssembler(&fakeMemory{}, &fakeSummarizer{}, 8)
	ctx := context.Background()

	require.NoError(t, a.PushSegment(ctx, "novel", 1, "oldest passage that runs well past the remaining window budget"))
	require.NoError(t, a.PushSegment(ctx, "novel", 2, "newest one"))

	got, err := a.BuildContext(ctx, Request{Project: "novel"})
	require.NoError(t, err)

	// Only the newest segment fits alongside the section header budget.
	assert.Contains(t, got.Text, "newest one")
	assert.NotContains(t, got.Text, "oldest passage")
}

// runeCounter charges every rune, including the joiners between rendered
// blocks, unlike wordCounter which treats whitespace as free.
type runeCounter struct{}

func (runeCounter) Count(text string) int { return len([]rune(text)) }

func (runeCounter) Truncate(text string, maxTokens int) string {
	r := []rune(text)
	if len(r) <= maxTokens {
		return text
	}
	return string(r[:maxTokens])
}

func TestBuildContextBudgetCoversRenderedText(t *testing.T) {
	// Budget fits the canon header plus one block but not two once the
	// joiners are counted: 19 (header) + 2 + 10 + 2 + 10 = 43.
	a := New(&fakeMemory{}, &fakeSummarizer{}, runeCounter{}, Config{
		TokenBudget:    39,
		WindowSegments: 3,
		SummaryTokens:  20,
	}, nil)

	got, err := a.BuildContext(context.Background(), Request{
		Project: "novel",
		Pinned:  []string{strings.Repeat("a", 10), strings.Repeat("b", 10)},
	})
	require.NoError(t, err)

	assert.LessOrEqual(t, got.Tokens, 39)
	assert.Equal(t, 1, got.Dropped)
	assert.Contains(t, got.Text, strings.Repeat("a", 10))
	assert.NotContains(t, got.Text, strings.Repeat("b", 10))
}

func TestPushSegmentConcurrentWithWindowTail(t *testing.T) {
	mem := &fakeMemory{}
	a := newTestAssembler(mem, &fakeSummarizer{}, 1000)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= 40; i++ {
			if err := a.PushSegment(ctx, "novel", i, fmt.Sprintf("segment %d text", i)); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			a.WindowTail("novel")
		}
	}()
	wg.Wait()

	summary, tail := a.WindowTail("novel")
	assert.NotEmpty(t, summary)
	assert.Len(t, tail, 3)
}

func TestBuildContextEmptyQuerySkipsRetrieval(t *testing.T) {
	mem := &fakeMemory{results: []models.MemoryEntry{{Content: "should not appear"}}}
	a := newTestAssembler(mem, &fakeSummarizer{}, 100)

	got, err := a.BuildContext(context.Background(), Request{Project: "novel"})
	require.NoError(t, err)
	assert.NotContains(t, got.Text, "should not appear")
}
