package cli

import (
	"context"
	"fmt"

	"github.com/lorekeep/lorekeep/internal/assembler"
	"github.com/lorekeep/lorekeep/internal/cache"
	"github.com/lorekeep/lorekeep/internal/consistency"
	"github.com/lorekeep/lorekeep/internal/graph"
	"github.com/lorekeep/lorekeep/internal/llm"
	"github.com/lorekeep/lorekeep/internal/memory"
	"github.com/lorekeep/lorekeep/internal/metrics"
	"github.com/lorekeep/lorekeep/internal/orchestrator"
)

// engine bundles the wired services behind the commands. LLM components
// are only initialized for commands that need them.
type engine struct {
	store     *memory.Store
	model     *llm.Model
	graph     *graph.Service
	assembler *assembler.Assembler
	orch      *orchestrator.Orchestrator
	collector *metrics.Collector
	cache     cache.RetrievalCache
}

// getEngine wires services on top of the already-connected db client.
// requireLLM commands get providers, the assembler, and the orchestrator;
// others only get storage-backed services.
func getEngine(ctx context.Context, requireLLM bool) (*engine, error) {
	e := &engine{
		graph:     graph.NewService(dbClient, logger),
		collector: metrics.NewCollector(),
	}

	switch cfg.CacheBackend {
	case "redis":
		rc, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.CacheTTL, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		e.cache = rc
	default:
		e.cache = cache.NewMemoryCache(cfg.CacheTTL)
	}

	if !requireLLM {
		e.store = nil
		return e, nil
	}

	embedder, err := llm.NewEmbedder(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	model, err := llm.NewModel(cfg)
	if err != nil {
		return nil, fmt.Errorf("init model: %w", err)
	}
	e.model = model

	policy := memory.RefPolicy(cfg.ReferencePolicy)
	e.store = memory.NewStore(dbClient, embedder, e.cache, policy, logger)

	counter, err := assembler.NewTiktokenCounter()
	if err != nil {
		return nil, fmt.Errorf("init token counter: %w", err)
	}
	e.assembler = assembler.New(e.store, model, counter, assembler.Config{
		TokenBudget:    cfg.TokenBudget,
		WindowSegments: cfg.WindowSegments,
		SummaryTokens:  cfg.SummaryTokens,
	}, logger)

	e.orch = orchestrator.New(orchestrator.Deps{
		Builder:   e.assembler,
		Generator: model,
		Extractor: llm.NewExtractor(model),
		Graph:     e.graph,
		Checker:   consistency.NewChecker(logger),
		Committer: dbClient,
		Embedder:  embedder,
		Cache:     e.cache,
		Collector: e.collector,
	}, orchestrator.Config{
		GenerationTimeout:  cfg.GenerationTimeout,
		ProviderRetries:    cfg.ProviderRetries,
		ConsistencyRetries: cfg.ConsistencyRetries,
	}, logger)

	return e, nil
}
