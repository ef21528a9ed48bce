// ABOUTME: Wires the full application: stores, memory tiers, LLM, service clients,
// ABOUTME: stage registry, engine, and progress logging under one data directory.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/2389-research/prospect/agents"
	"github.com/2389-research/prospect/llm"
	"github.com/2389-research/prospect/memory"
	"github.com/2389-research/prospect/pipeline"
	"github.com/2389-research/prospect/services"
)

// app bundles the wired components for one CLI invocation.
type app struct {
	dataDir  string
	store    *pipeline.Store
	state    *pipeline.StateManager
	memStore *memory.SQLiteStore
	memory   *memory.Manager
	registry *pipeline.Registry
	progress *pipeline.ProgressLogger
	engine   *pipeline.Engine
}

// buildApp wires every component under the resolved data directory. The
// extra sink (TUI bridge or verbose printer) is fanned out alongside the
// progress logger; pass nil for none.
func buildApp(cfg config, fc fileConfig, extra pipeline.Sink) (*app, error) {
	dataDir, err := resolveDataDir(cfg.dataDir, fc.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	store, err := pipeline.NewStore(filepath.Join(dataDir, "runs"))
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	state := pipeline.NewStateManager(store)

	memStore, err := memory.OpenSQLite(filepath.Join(dataDir, "memory.db"))
	if err != nil {
		return nil, fmt.Errorf("open memory store: %w", err)
	}
	mem := memory.NewManager(memStore)

	if fc.OpenAIKey == "" {
		memStore.Close()
		return nil, fmt.Errorf("no LLM API key found; set OPENAI_API_KEY")
	}
	model := cfg.model
	if model == "" {
		model = fc.Model
	}
	client := llm.NewOpenAI(fc.OpenAIKey, model)

	deps := agents.Deps{LLM: client, Memory: mem}
	if fc.SerpAPIKey != "" {
		deps.Search = services.NewWebSearch(fc.SerpAPIKey)
		deps.People = services.NewPeopleSearch(fc.SerpAPIKey)
	} else if cfg.verbose {
		fmt.Fprintln(os.Stderr, "[setup] SERPAPI_API_KEY not set; running without web search")
	}
	if fc.ApolloKey != "" {
		deps.Enrich = services.NewEnricher(fc.ApolloKey)
	} else if cfg.verbose {
		fmt.Fprintln(os.Stderr, "[setup] APOLLO_API_KEY not set; enrichment stage will be skipped")
	}

	registry, err := agents.BuildRegistry(deps)
	if err != nil {
		memStore.Close()
		return nil, err
	}

	progress, err := pipeline.NewProgressLogger(filepath.Join(dataDir, "progress"))
	if err != nil {
		memStore.Close()
		return nil, fmt.Errorf("open progress log: %w", err)
	}

	budget := cfg.budget
	if budget <= 0 {
		budget = fc.ContextBudget
	}

	sinks := []pipeline.Sink{progress.HandleEvent}
	if extra != nil {
		sinks = append(sinks, extra)
	}

	engine, err := pipeline.NewEngine(pipeline.EngineConfig{
		State:    state,
		Registry: registry,
		Context:  memory.NewContextBuilder(mem, budget),
		Recorder: mem,
		Sink:     pipeline.MultiSink(sinks...),
	})
	if err != nil {
		progress.Close()
		memStore.Close()
		return nil, err
	}

	return &app{
		dataDir:  dataDir,
		store:    store,
		state:    state,
		memStore: memStore,
		memory:   mem,
		registry: registry,
		progress: progress,
		engine:   engine,
	}, nil
}

// buildReadOnlyApp wires only the stores and memory, for commands that never
// run the engine (history, forget, export). No LLM key required.
func buildReadOnlyApp(cfg config, fc fileConfig) (*app, error) {
	dataDir, err := resolveDataDir(cfg.dataDir, fc.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}

	store, err := pipeline.NewStore(filepath.Join(dataDir, "runs"))
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}

	memStore, err := memory.OpenSQLite(filepath.Join(dataDir, "memory.db"))
	if err != nil {
		return nil, fmt.Errorf("open memory store: %w", err)
	}

	return &app{
		dataDir:  dataDir,
		store:    store,
		state:    pipeline.NewStateManager(store),
		memStore: memStore,
		memory:   memory.NewManager(memStore),
	}, nil
}

// Close releases the app's file and database handles.
func (a *app) Close() {
	if a.progress != nil {
		a.progress.Close()
	}
	if a.memStore != nil {
		a.memStore.Close()
	}
}

// verboseSink prints every engine event to stderr.
func verboseSink(evt pipeline.Event) {
	if evt.Stage != "" {
		fmt.Fprintf(os.Stderr, "[event] %s %s\n", evt.Type, evt.Stage)
		return
	}
	fmt.Fprintf(os.Stderr, "[event] %s\n", evt.Type)
}
