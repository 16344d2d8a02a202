package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MikeSquared-Agency/triage/internal/config"
	"github.com/MikeSquared-Agency/triage/internal/processor"
	"github.com/MikeSquared-Agency/triage/internal/transcript"
)

var replayFlags struct {
	file string
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Play a scripted conversation against an in-memory session",
	Long: `Replays the user turns of a YAML script through the full turn pipeline
and prints each decision. Turns with an "expect" label fail the run when the
decision differs.`,
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVarP(&replayFlags.file, "file", "f", "", "Script path (required)")
	_ = replayCmd.MarkFlagRequired("file")
}

// Script is a scripted conversation.
type Script struct {
	Session string       `yaml:"session"`
	Turns   []ScriptTurn `yaml:"turns"`
}

type ScriptTurn struct {
	Message  string `yaml:"message"`
	External string `yaml:"external"`
	Expect   string `yaml:"expect"`
}

func loadScript(path string) (Script, error) {
	var s Script
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read script: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse script %s: %w", path, err)
	}
	if len(s.Turns) == 0 {
		return s, fmt.Errorf("script %s has no turns", path)
	}
	return s, nil
}

func runReplay(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	c, err := buildCore(cfg)
	if err != nil {
		return err
	}
	script, err := loadScript(replayFlags.file)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return replay(cmd.Context(), cmd.OutOrStdout(), c, cfg.MaxTurns, script, logger)
}

func replay(ctx context.Context, out io.Writer, c *core, maxTurns int, script Script, logger *slog.Logger) error {
	proc := processor.New(processor.Config{
		Store:   transcript.NewMemoryStore(maxTurns),
		Engine:  c.engine,
		Context: c.context,
		Catalog: c.catalog,
	}, logger)

	failed := 0
	for i, t := range script.Turns {
		res, err := proc.Process(ctx, processor.Request{SessionID: script.Session, Message: t.Message, External: t.External})
		if err != nil {
			return fmt.Errorf("turn %d: %w", i+1, err)
		}
		mark := " "
		if t.Expect != "" && t.Expect != string(res.Label) {
			mark = "✗"
			failed++
		}
		fmt.Fprintf(out, "%s %2d > %s\n", mark, i+1, t.Message)
		fmt.Fprintf(out, "     %s [%s/%s]", res.Label, res.Rule, res.Source)
		if res.EscalationRequired {
			fmt.Fprintf(out, " escalate:%s", res.EscalationType)
		}
		if res.AwaitingFlagSet != transcript.AwaitingNone {
			fmt.Fprintf(out, " awaiting:%s", res.AwaitingFlagSet)
		}
		if t.Expect != "" && t.Expect != string(res.Label) {
			fmt.Fprintf(out, " (expected %s)", t.Expect)
		}
		fmt.Fprintf(out, "\n     < %s\n", res.FinalText)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d turns did not match", failed, len(script.Turns))
	}
	return nil
}
