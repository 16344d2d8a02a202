package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/triage/internal/anthropic"
	"github.com/MikeSquared-Agency/triage/internal/api"
	"github.com/MikeSquared-Agency/triage/internal/config"
	"github.com/MikeSquared-Agency/triage/internal/generation"
	"github.com/MikeSquared-Agency/triage/internal/hermes"
	"github.com/MikeSquared-Agency/triage/internal/metrics"
	"github.com/MikeSquared-Agency/triage/internal/processor"
	"github.com/MikeSquared-Agency/triage/internal/slack"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service",
	Long: `Starts the HTTP API configured from the environment. NATS, Slack and
generation are enabled when their settings are present.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := slog.Default()
	logger.Info("triage starting", "port", cfg.Port, "version", version)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := buildCore(cfg)
	if err != nil {
		return err
	}

	ts, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open transcript store: %w", err)
	}
	defer closeStore()

	rec := metrics.New()
	pcfg := processor.Config{
		Store:             ts,
		Engine:            c.engine,
		Context:           c.context,
		Catalog:           c.catalog,
		Metrics:           rec,
		DefaultSessionID:  cfg.DefaultSessionID,
		GenerationTimeout: cfg.GenerationTimeout,
	}

	if cfg.GenerationEnabled() {
		llm := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, anthropic.WithTimeout(cfg.GenerationTimeout))
		pcfg.Generator = generation.New(llm, logger)
		logger.Info("generation ready", "model", llm.Model())
	} else {
		logger.Warn("ANTHROPIC_API_KEY not set, deferred turns get the holding reply")
	}

	if cfg.SlackEnabled() {
		pcfg.Alerter = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, logger)
		logger.Info("slack poster ready", "channel", cfg.SlackChannel)
	} else {
		logger.Warn("slack not configured, escalations are not posted")
	}

	var bus *hermes.Client
	if cfg.NatsURL != "" {
		bus, err = hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, logger)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer bus.Close()
		pcfg.Publisher = bus
		logger.Info("NATS connected", "url", cfg.NatsURL)
	}

	proc := processor.New(pcfg, logger)

	if bus != nil {
		if err := bus.Subscribe(hermes.SubjectSessionReset, proc.HandleReset); err != nil {
			return fmt.Errorf("subscribe to session resets: %w", err)
		}
	}

	opts := api.Options{
		Port:           cfg.Port,
		APIToken:       cfg.APIToken,
		AllowedOrigins: cfg.AllowedOrigins,
		ErrorText:      c.catalog.ErrorText(),
		Metrics:        rec.Handler(),
		Logger:         logger,
	}
	if bus != nil {
		opts.Bus = bus
	}
	srv := api.NewServer(proc, opts)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	logger.Info("triage ready", "port", cfg.Port, "backend", cfg.TranscriptBackend)
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("triage stopped")
	return nil
}
