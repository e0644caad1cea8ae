package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorekeep/lorekeep/internal/assembler"
	"github.com/lorekeep/lorekeep/internal/consistency"
	"github.com/lorekeep/lorekeep/internal/db"
	"github.com/lorekeep/lorekeep/internal/errs"
	"github.com/lorekeep/lorekeep/internal/models"
)

type fakeBuilder struct {
	pushed []string
	mu     sync.Mutex
}

func (f *fakeBuilder) BuildContext(_ context.Context, req assembler.Request) (*assembler.Context, error) {
	return &assembler.Context{Text: "context for " + req.Project, Tokens: 10}, nil
}

func (f *fakeBuilder) PushSegment(_ context.Context, _ string, _ int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, text)
	return nil
}

type fakeGenerator struct {
	mu           sync.Mutex
	instructions []string
	failures     int
	block        bool
	text         string
}

func (f *fakeGenerator) Generate(ctx context.Context, _, instruction string) (string, error) {
	f.mu.Lock()
	f.instructions = append(f.instructions, instruction)
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if fail {
		return "", errors.New("provider hiccup")
	}
	if f.text != "" {
		return f.text, nil
	}
	return "generated prose", nil
}

type fakeExtractor struct {
	facts []models.Fact
}

func (f *fakeExtractor) Extract(_ context.Context, _ string, _ int) ([]models.Fact, error) {
	return f.facts, nil
}

type fakeGraph struct{}

func (fakeGraph) View(_ context.Context, project string) (*models.GraphSnapshot, error) {
	return models.NewGraphSnapshot("snap", project, 1, time.Now(), nil, nil), nil
}

type fakeChecker struct {
	mu       sync.Mutex
	calls    int
	blocking int // number of initial calls that return a blocking finding
}

func (f *fakeChecker) Check(ref string, _ *models.GraphSnapshot, _ []models.Fact) *consistency.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.blocking {
		return &consistency.Result{Findings: []models.ConsistencyFinding{{
			ContentRef:  ref,
			Kind:        models.FindingContradiction,
			Severity:    models.SeverityBlocking,
			Description: "the dead do not speak",
		}}}
	}
	return &consistency.Result{
		Nodes: []db.NodeUpsert{{Type: models.NodeCharacter, Key: "mira"}},
	}
}

type fakeCommitter struct {
	mu        sync.Mutex
	commits   []db.CommitParams
	version   int
	conflicts int
	inFlight  atomic.Int32
	overlap   atomic.Bool
}

func (f *fakeCommitter) CommitGeneration(_ context.Context, p db.CommitParams) (int, error) {
	if f.inFlight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.inFlight.Add(-1)
	time.Sleep(time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflicts > 0 {
		f.conflicts--
		return 0, db.ErrTransactionConflict
	}
	f.commits = append(f.commits, p)
	f.version++
	return f.version, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (f *fakeCache) Get(_ context.Context, _, _ string) ([]models.MemoryEntry, bool) {
	return nil, false
}
func (f *fakeCache) Set(_ context.Context, _, _ string, _ []models.MemoryEntry) {}
func (f *fakeCache) Invalidate(_ context.Context, project string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, project)
}

type testRig struct {
	builder   *fakeBuilder
	generator *fakeGenerator
	checker   *fakeChecker
	committer *fakeCommitter
	cache     *fakeCache
	orch      *Orchestrator
}

func newRig(cfg Config) *testRig {
	r := &testRig{
		builder:   &fakeBuilder{},
		generator: &fakeGenerator{},
		checker:   &fakeChecker{},
		committer: &fakeCommitter{},
		cache:     &fakeCache{},
	}
	r.orch = New(Deps{
		Builder:   r.builder,
		Generator: r.generator,
		Extractor: &fakeExtractor{},
		Graph:     fakeGraph{},
		Checker:   r.checker,
		Committer: r.committer,
		Embedder:  fakeEmbedder{},
		Cache:     r.cache,
	}, cfg, nil)
	return r
}

func TestRunCommitsAcceptedGeneration(t *testing.T) {
	r := newRig(Config{ConsistencyRetries: 2})

	res, err := r.orch.Run(context.Background(), Request{
		Project:     "novel",
		Instruction: "write the storm scene",
		Seq:         4,
	})
	require.NoError(t, err)

	assert.Equal(t, StateCommitted, res.State)
	assert.Equal(t, "generated prose", res.Text)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, res.GraphVersion)
	assert.NotEmpty(t, res.EntryID)

	require.Len(t, r.committer.commits, 1)
	commit := r.committer.commits[0]
	assert.Equal(t, models.KindEvent, commit.Entry.Kind)
	assert.Equal(t, 4, commit.Entry.Metadata["seq"])
	assert.Len(t, commit.Nodes, 1)

	assert.Equal(t, []string{"generated prose"}, r.builder.pushed)
	assert.Equal(t, []string{"novel"}, r.cache.invalidated)
}

func TestRunValidation(t *testing.T) {
	r := newRig(Config{})
	res, err := r.orch.Run(context.Background(), Request{Project: "novel"})
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Equal(t, StateFailed, res.State)
}

func TestRunConsistencyRetrySucceeds(t *testing.T) {
	r := newRig(Config{ConsistencyRetries: 2})
	r.checker.blocking = 1

	res, err := r.orch.Run(context.Background(), Request{
		Project:     "novel",
		Instruction: "write the scene",
	})
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, res.State)
	assert.Equal(t, 2, res.Attempts)

	// The second attempt carries the corrective instruction.
	require.Len(t, r.generator.instructions, 2)
	assert.Equal(t, "write the scene", r.generator.instructions[0])
	assert.Contains(t, r.generator.instructions[1], "the dead do not speak")
}

func TestRunBlockedAfterRetryBudget(t *testing.T) {
	r := newRig(Config{ConsistencyRetries: 2})
	r.checker.blocking = 100

	res, err := r.orch.Run(context.Background(), Request{
		Project:     "novel",
		Instruction: "write the scene",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrConsistencyBlocking)

	var blocking *consistency.BlockingError
	require.ErrorAs(t, err, &blocking)
	assert.NotEmpty(t, blocking.Findings)

	assert.Equal(t, StateBlocked, res.State)
	assert.Equal(t, 3, res.Attempts) // initial + 2 consistency retries
	assert.NotEmpty(t, res.Findings)
	assert.Empty(t, r.committer.commits)
	assert.Empty(t, r.builder.pushed)
}

func TestRunRetriesTransientGenerationFailure(t *testing.T) {
	r := newRig(Config{ProviderRetries: 3})
	r.generator.failures = 2

	res, err := r.orch.Run(context.Background(), Request{
		Project:     "novel",
		Instruction: "write the scene",
	})
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, res.State)
	assert.Len(t, r.generator.instructions, 3)
}

func TestRunFailsWhenProviderBudgetExhausted(t *testing.T) {
	r := newRig(Config{ProviderRetries: 2})
	r.generator.failures = 10

	res, err := r.orch.Run(context.Background(), Request{
		Project:     "novel",
		Instruction: "write the scene",
	})
	require.Error(t, err)
	assert.Equal(t, StateFailed, res.State)
	assert.Empty(t, r.committer.commits)
}

func TestRunGenerationTimeout(t *testing.T) {
	r := newRig(Config{GenerationTimeout: 10 * time.Millisecond, ProviderRetries: 2})
	r.generator.block = true

	res, err := r.orch.Run(context.Background(), Request{
		Project:     "novel",
		Instruction: "write the scene",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrGenerationTimeout)
	assert.Equal(t, StateFailed, res.State)
	assert.Empty(t, r.committer.commits)
}

func TestRunCancellationAbortsWithoutCommit(t *testing.T) {
	r := newRig(Config{GenerationTimeout: time.Minute})
	r.generator.block = true

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res, err := r.orch.Run(ctx, Request{
		Project:     "novel",
		Instruction: "write the scene",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, res.State)
	assert.Empty(t, r.committer.commits)
}

func TestRunCommitRetriesTransactionConflict(t *testing.T) {
	r := newRig(Config{ProviderRetries: 3})
	r.committer.conflicts = 1

	res, err := r.orch.Run(context.Background(), Request{
		Project:     "novel",
		Instruction: "write the scene",
	})
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, res.State)
	require.Len(t, r.committer.commits, 1)
}

func TestRunConcurrentCommitsSerializedPerProject(t *testing.T) {
	r := newRig(Config{})
	const n = 8

	var wg sync.WaitGroup
	errsCh := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.orch.Run(context.Background(), Request{
				Project:     "novel",
				Instruction: fmt.Sprintf("write scene %d", i),
				Seq:         i,
			})
			errsCh <- err
		}(i)
	}
	wg.Wait()
	close(errsCh)

	for err := range errsCh {
		require.NoError(t, err)
	}
	assert.Len(t, r.committer.commits, n)
	assert.False(t, r.committer.overlap.Load(), "commits for one project must not overlap")
	assert.Equal(t, n, r.committer.version)
}
