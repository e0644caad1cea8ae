// Package orchestrator drives the generation pipeline: context assembly,
// provider generation, fact extraction, consistency checking, and the
// atomic commit of accepted content.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/lorekeep/lorekeep/internal/assembler"
	"github.com/lorekeep/lorekeep/internal/cache"
	"github.com/lorekeep/lorekeep/internal/consistency"
	"github.com/lorekeep/lorekeep/internal/db"
	"github.com/lorekeep/lorekeep/internal/errs"
	"github.com/lorekeep/lorekeep/internal/metrics"
	"github.com/lorekeep/lorekeep/internal/models"
)

// State is one position in the per-request lifecycle.
type State string

const (
	StatePending      State = "PENDING"
	StateContextBuilt State = "CONTEXT_BUILT"
	StateGenerated    State = "GENERATED"
	StateChecked      State = "CHECKED"
	StateAccepted     State = "ACCEPTED"
	StateRetrying     State = "RETRYING"
	StateBlocked      State = "BLOCKED"
	StateCommitted    State = "COMMITTED"
	StateFailed       State = "FAILED"
)

// ContextBuilder assembles prompts and owns the sliding window.
type ContextBuilder interface {
	BuildContext(ctx context.Context, req assembler.Request) (*assembler.Context, error)
	PushSegment(ctx context.Context, project string, seq int, text string) error
}

// Generator produces prose from a context and an instruction.
type Generator interface {
	Generate(ctx context.Context, contextStr, instruction string) (string, error)
}

// Extractor turns generated text into candidate facts.
type Extractor interface {
	Extract(ctx context.Context, text string, seq int) ([]models.Fact, error)
}

// Snapshotter captures the graph state at request start.
type Snapshotter interface {
	View(ctx context.Context, project string) (*models.GraphSnapshot, error)
}

// Checker validates facts against a snapshot.
type Checker interface {
	Check(contentRef string, snap *models.GraphSnapshot, facts []models.Fact) *consistency.Result
}

// Committer applies an accepted generation atomically.
type Committer interface {
	CommitGeneration(ctx context.Context, p db.CommitParams) (int, error)
}

// Embedder embeds the accepted text for its memory entry.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config tunes timeouts and retry budgets.
type Config struct {
	// GenerationTimeout bounds one provider call.
	GenerationTimeout time.Duration
	// ProviderRetries is the attempt budget for transient provider and
	// storage failures.
	ProviderRetries int
	// ConsistencyRetries is the regeneration budget when blocking
	// findings are found. Independent of ProviderRetries.
	ConsistencyRetries int
}

// Request is one generation job.
type Request struct {
	// ID is assigned when empty.
	ID          string
	Project     string
	Instruction string
	Outline     string
	// Pinned facts are always included in the context.
	Pinned []string
	// Seq is the narrative position of the segment being generated.
	Seq int
	// Kinds optionally narrows memory retrieval.
	Kinds []models.MemoryKind
}

// Result reports the terminal state of a request.
type Result struct {
	RequestID    string
	State        State
	Text         string
	EntryID      string
	GraphVersion int
	// Attempts counts generation attempts, including consistency retries.
	Attempts int
	Findings []models.ConsistencyFinding
}

// Orchestrator coordinates the pipeline. Requests run concurrently; only
// the commit phase is serialized per project.
type Orchestrator struct {
	builder   ContextBuilder
	generator Generator
	extractor Extractor
	graph     Snapshotter
	checker   Checker
	committer Committer
	embedder  Embedder
	cache     cache.RetrievalCache
	collector *metrics.Collector
	breaker   *gobreaker.CircuitBreaker
	cfg       Config
	logger    *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Deps bundles the orchestrator's collaborators. Cache and Collector are
// optional.
type Deps struct {
	Builder   ContextBuilder
	Generator Generator
	Extractor Extractor
	Graph     Snapshotter
	Checker   Checker
	Committer Committer
	Embedder  Embedder
	Cache     cache.RetrievalCache
	Collector *metrics.Collector
}

// New creates an orchestrator. The generation circuit breaker opens after
// repeated consecutive provider failures and recovers on its own.
func New(deps Deps, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = 2 * time.Minute
	}
	if cfg.ProviderRetries <= 0 {
		cfg.ProviderRetries = 3
	}
	if cfg.ConsistencyRetries < 0 {
		cfg.ConsistencyRetries = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "generation",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		Timeout: 30 * time.Second,
	})
	return &Orchestrator{
		builder:   deps.Builder,
		generator: deps.Generator,
		extractor: deps.Extractor,
		graph:     deps.Graph,
		checker:   deps.Checker,
		committer: deps.Committer,
		embedder:  deps.Embedder,
		cache:     deps.Cache,
		collector: deps.Collector,
		breaker:   breaker,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run executes one generation request to a terminal state. A returned
// error always accompanies a result whose State explains the failure; no
// partial memory or graph write survives a non-COMMITTED outcome.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	res := &Result{RequestID: req.ID, State: StatePending}
	if req.Project == "" || req.Instruction == "" {
		res.State = StateFailed
		return res, errs.Validationf("project and instruction are required")
	}
	logger := o.logger.With("request", req.ID, "project", req.Project)

	snap, err := o.graph.View(ctx, req.Project)
	if err != nil {
		res.State = StateFailed
		return res, fmt.Errorf("snapshot graph: %w", err)
	}

	prompt, err := o.builder.BuildContext(ctx, assembler.Request{
		Project: req.Project,
		Query:   req.Instruction,
		Pinned:  req.Pinned,
		Outline: req.Outline,
		Kinds:   req.Kinds,
	})
	if err != nil {
		res.State = StateFailed
		return res, fmt.Errorf("build context: %w", err)
	}
	res.State = StateContextBuilt
	logger.Debug("context built", "tokens", prompt.Tokens)

	instruction := req.Instruction
	var (
		text    string
		checked *consistency.Result
	)
	for attempt := 0; ; attempt++ {
		res.Attempts = attempt + 1

		text, err = o.generate(ctx, prompt.Text, instruction)
		if err != nil {
			res.State = StateFailed
			return res, err
		}
		res.State = StateGenerated

		facts, err := o.extract(ctx, text, req.Seq)
		if err != nil {
			res.State = StateFailed
			return res, err
		}

		start := time.Now()
		checked = o.checker.Check(req.ID, snap, facts)
		o.record(metrics.OpConsistencyCheck, start)
		res.State = StateChecked
		res.Findings = checked.Findings

		if !checked.Blocked() {
			res.State = StateAccepted
			break
		}
		if attempt >= o.cfg.ConsistencyRetries {
			res.State = StateBlocked
			logger.Warn("generation blocked by consistency findings",
				"attempts", res.Attempts, "findings", len(checked.Findings))
			return res, &consistency.BlockingError{Findings: checked.Findings}
		}
		res.State = StateRetrying
		instruction = correctiveInstruction(req.Instruction, checked.Findings)
		logger.Info("retrying generation after blocking findings", "attempt", res.Attempts)
	}

	version, entryID, err := o.commit(ctx, req, text, checked)
	if err != nil {
		res.State = StateFailed
		return res, err
	}
	res.State = StateCommitted
	res.Text = text
	res.EntryID = entryID
	res.GraphVersion = version

	if err := o.builder.PushSegment(ctx, req.Project, req.Seq, text); err != nil {
		// The commit is durable; a window bookkeeping failure only
		// degrades future context quality.
		logger.Warn("failed to push segment into window", "error", err)
	}
	logger.Info("generation committed",
		"entry", entryID, "graph_version", version, "attempts", res.Attempts)
	return res, nil
}

// generate calls the provider through the circuit breaker with a per-call
// timeout and bounded backoff on transient failures.
func (o *Orchestrator) generate(ctx context.Context, prompt, instruction string) (string, error) {
	var text string
	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.GenerationTimeout)
		defer cancel()

		start := time.Now()
		out, err := o.breaker.Execute(func() (any, error) {
			return o.generator.Generate(callCtx, prompt, instruction)
		})
		o.record(metrics.OpGenerate, start)
		if err != nil {
			if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
				return fmt.Errorf("%w after %s", errs.ErrGenerationTimeout, o.cfg.GenerationTimeout)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if !errs.Transient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		text = out.(string)
		return nil
	}
	err := backoff.Retry(op, o.policy(ctx))
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}
	return text, nil
}

func (o *Orchestrator) extract(ctx context.Context, text string, seq int) ([]models.Fact, error) {
	var facts []models.Fact
	op := func() error {
		start := time.Now()
		out, err := o.extractor.Extract(ctx, text, seq)
		o.record(metrics.OpExtract, start)
		if err != nil {
			if !errs.Transient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		facts = out
		return nil
	}
	if err := backoff.Retry(op, o.policy(ctx)); err != nil {
		return nil, fmt.Errorf("fact extraction failed: %w", err)
	}
	return facts, nil
}

// commit embeds the accepted text and applies the memory entry plus staged
// graph writes in one transaction, serialized per project. Storage-level
// transaction conflicts retry within the provider budget.
func (o *Orchestrator) commit(ctx context.Context, req Request, text string, checked *consistency.Result) (int, string, error) {
	embedStart := time.Now()
	embedding, err := o.embedder.Embed(ctx, text)
	o.record(metrics.OpEmbedding, embedStart)
	if err != nil {
		return 0, "", fmt.Errorf("embed generated text: %w", err)
	}

	lock := o.projectLock(req.Project)
	lock.Lock()
	defer lock.Unlock()

	entryID := uuid.NewString()
	params := db.CommitParams{
		Project: req.Project,
		EntryID: entryID,
		Entry: models.MemoryInput{
			Project: req.Project,
			Kind:    models.KindEvent,
			Content: text,
			Metadata: map[string]any{
				"request": req.ID,
				"seq":     req.Seq,
			},
		},
		Embedding: embedding,
		Nodes:     checked.Nodes,
		Edges:     checked.Edges,
	}

	var version int
	op := func() error {
		start := time.Now()
		v, err := o.committer.CommitGeneration(ctx, params)
		o.record(metrics.OpCommit, start)
		if err != nil {
			if errors.Is(err, db.ErrTransactionConflict) {
				return err
			}
			if !errs.Transient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		version = v
		return nil
	}
	if err := backoff.Retry(op, o.policy(ctx)); err != nil {
		return 0, "", fmt.Errorf("commit failed: %w", err)
	}

	if o.cache != nil {
		o.cache.Invalidate(ctx, req.Project)
	}
	return version, entryID, nil
}

// policy is the shared bounded-backoff policy for external calls.
func (o *Orchestrator) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(o.cfg.ProviderRetries-1)), ctx)
}

func (o *Orchestrator) projectLock(project string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.locks == nil {
		o.locks = map[string]*sync.Mutex{}
	}
	lock, ok := o.locks[project]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[project] = lock
	}
	return lock
}

func (o *Orchestrator) record(op string, start time.Time) {
	if o.collector != nil {
		o.collector.RecordTiming(op, time.Since(start))
	}
}

// correctiveInstruction folds blocking findings into a revised instruction
// for the next attempt.
func correctiveInstruction(original string, findings []models.ConsistencyFinding) string {
	var b strings.Builder
	b.WriteString(original)
	b.WriteString("\n\nThe previous draft contradicted established facts. Rewrite it so that:\n")
	for _, f := range findings {
		if f.Severity != models.SeverityBlocking {
			continue
		}
		b.WriteString("- ")
		b.WriteString(f.Description)
		b.WriteString("\n")
	}
	return b.String()
}
