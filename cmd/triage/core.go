package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MikeSquared-Agency/triage/internal/config"
	"github.com/MikeSquared-Agency/triage/internal/dialogue"
	"github.com/MikeSquared-Agency/triage/internal/engine"
	"github.com/MikeSquared-Agency/triage/internal/extract"
	"github.com/MikeSquared-Agency/triage/internal/lexicon"
	"github.com/MikeSquared-Agency/triage/internal/responses"
	"github.com/MikeSquared-Agency/triage/internal/store"
	"github.com/MikeSquared-Agency/triage/internal/transcript"
)

// core is the pure decision stack shared by every subcommand.
type core struct {
	catalog *responses.Catalog
	engine  *engine.Engine
	context *dialogue.Reconstructor
}

func buildCore(cfg config.Config) (*core, error) {
	lx, err := lexicon.Load(cfg.LexiconPath)
	if err != nil {
		return nil, fmt.Errorf("load lexicon: %w", err)
	}
	catalog, err := responses.Load(cfg.ResponsesPath)
	if err != nil {
		return nil, fmt.Errorf("load responses: %w", err)
	}
	ex := extract.New(lx)
	return &core{
		catalog: catalog,
		engine:  engine.New(ex, catalog),
		context: dialogue.New(dialogue.Options{ScanTurns: cfg.ScanTurns, Extractor: ex}),
	}, nil
}

// openStore returns the configured transcript backend and its closer.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (transcript.Store, func(), error) {
	switch cfg.TranscriptBackend {
	case config.BackendPostgres:
		db, err := store.New(ctx, cfg.DatabaseURL, cfg.MaxTurns)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("transcript store ready", "backend", "postgres")
		return db, db.Close, nil
	case config.BackendSQLite:
		db, err := store.OpenSQLite(cfg.SQLitePath, cfg.MaxTurns)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("transcript store ready", "backend", "sqlite", "path", cfg.SQLitePath)
		return db, func() { _ = db.Close() }, nil
	default:
		logger.Info("transcript store ready", "backend", "memory")
		return transcript.NewMemoryStore(cfg.MaxTurns), func() {}, nil
	}
}
