package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"dossier/internal/agents"
	"dossier/internal/config"
	"dossier/internal/embedding"
	"dossier/internal/history"
	"dossier/internal/llm"
	"dossier/internal/orchestrator"
	"dossier/internal/store"
	"dossier/internal/trace"
)

// pipeline is everything a run needs, plus the handles to close afterwards.
type pipeline struct {
	orch    *orchestrator.Orchestrator
	client  *llm.TracingClient
	index   *store.Index
	history *history.Store
}

func (p *pipeline) Close() {
	if p.index != nil {
		p.index.Close()
	}
	if p.history != nil {
		p.history.Close()
	}
}

// openIndex opens the retrieval index. When mustExist is set a missing
// database file is an error rather than a fresh empty index.
func openIndex(ctx context.Context, c *config.Config, mustExist bool) (*store.Index, embedding.Engine, error) {
	if mustExist {
		if _, err := os.Stat(c.Retrieval.DatabasePath); errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("no index at %s; run `dossier ingest <dir>` first", c.Retrieval.DatabasePath)
		}
	}
	engine, err := embedding.NewEngine(ctx, c.Embedding)
	if err != nil {
		return nil, nil, err
	}
	idx, err := store.Open(c.Retrieval.DatabasePath, engine, store.Options{RequireVec: c.Retrieval.RequireVec})
	if err != nil {
		return nil, nil, err
	}
	return idx, engine, nil
}

// buildPipeline validates the config and wires client, index, history and
// orchestrator. Configuration problems surface here, before any run.
func buildPipeline(ctx context.Context, c *config.Config, useHistory bool, opts ...orchestrator.Option) (*pipeline, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	client, err := llm.NewFromConfig(ctx, c)
	if err != nil {
		return nil, err
	}
	idx, _, err := openIndex(ctx, c, true)
	if err != nil {
		return nil, err
	}
	p := &pipeline{client: client, index: idx}

	if useHistory && c.History.Enabled {
		h, err := history.Open(c.History.DatabasePath)
		if err != nil {
			logger.Warn("run history disabled", zap.Error(err))
		} else {
			p.history = h
			opts = append(opts, orchestrator.WithSink(h))
		}
	}

	p.orch, err = orchestrator.New(orchestrator.Deps{
		Client:    client,
		Retriever: idx,
		Settings:  agents.SettingsFrom(c),
	}, opts...)
	if err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// spanLogger mirrors finished spans into the command logger.
func spanLogger() trace.Observer {
	return trace.ObserverFunc(func(s trace.Span) {
		if s.Status == trace.StatusStarted {
			return
		}
		fields := []zap.Field{
			zap.String("stage", s.Name),
			zap.String("status", string(s.Status)),
			zap.Float64("seconds", s.DurationSeconds),
			zap.Int("tokens", s.UsageUnits),
		}
		if s.Error != "" {
			logger.Warn("stage failed", append(fields, zap.String("error", s.Error))...)
			return
		}
		logger.Debug("stage finished", fields...)
	})
}
