package responses

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MikeSquared-Agency/triage/internal/dialogue"
	"github.com/MikeSquared-Agency/triage/internal/engine"
	"github.com/MikeSquared-Agency/triage/internal/transcript"
)

func TestDefaultCatalog_CoversEveryLabel(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if missing := c.Missing(); len(missing) != 0 {
		t.Fatalf("missing labels: %v", missing)
	}
	for _, l := range engine.CannedLabels() {
		if strings.TrimSpace(c.Text(l)) == "" {
			t.Errorf("empty text for %s", l)
		}
	}
	if !strings.HasPrefix(c.Holding(true), "Salut") {
		t.Errorf("greeting holding = %q", c.Holding(true))
	}
	if strings.HasPrefix(c.Holding(false), "Salut") {
		t.Error("plain holding should not greet")
	}
	if !strings.Contains(c.ErrorText(), "problème technique") {
		t.Errorf("error text = %q", c.ErrorText())
	}
}

func TestText_UnknownLabelFallsBackToHolding(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Text(engine.Label("NOPE")); got != c.Holding(false) {
		t.Errorf("Text(NOPE) = %q", got)
	}
}

// Canned questions must be recognizable from their text alone so state
// survives transcripts written without metadata.
func TestCannedQuestionsAreRecognizable(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		label engine.Label
		want  transcript.Awaiting
	}{
		{engine.LabelCPFDelayFiltering, transcript.AwaitingCPFConfirmation},
		{engine.LabelPaymentAskInfo, transcript.AwaitingFinancingType},
		{engine.LabelPaymentAskFinancing, transcript.AwaitingFinancingType},
		{engine.LabelPaymentAskDelay, transcript.AwaitingTimingInfo},
		{engine.LabelAmbassadorPitch, transcript.AwaitingAmbassadorConfirmation},
	}
	for _, tt := range tests {
		t.Run(string(tt.label), func(t *testing.T) {
			turns := []transcript.Turn{transcript.UserTurn("…"), transcript.AgentTurn(c.Text(tt.label), nil)}
			ctx := dialogue.Reconstruct(turns, "ok", dialogue.Options{})
			if ctx.Awaiting != tt.want {
				t.Errorf("awaiting = %q, want %q", ctx.Awaiting, tt.want)
			}
		})
	}
}

func TestLoad_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "responses.yaml")
	if err := os.WriteFile(path, []byte("holding: attends\nlabels: {}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "missing text") {
		t.Errorf("expected missing text error, got %v", err)
	}
	if _, err := Parse([]byte("labels: {}")); err == nil {
		t.Error("expected error without holding text")
	}
}
