// Package transcripttest checks transcript.Store implementations against the
// shared contract.
package transcripttest

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/MikeSquared-Agency/triage/internal/transcript"
)

// Run exercises s, which must be empty and bounded to maxTurns.
func Run(t *testing.T, s transcript.Store, maxTurns int) {
	t.Helper()
	ctx := context.Background()

	t.Run("empty session", func(t *testing.T) {
		turns, err := s.Read(ctx, "missing", 0)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if len(turns) != 0 {
			t.Errorf("expected no turns, got %d", len(turns))
		}
	})

	t.Run("append and read in order", func(t *testing.T) {
		months := 3.0
		marker := &transcript.Marker{
			Label:       "PAIEMENT_DEMANDE_INFOS",
			Topic:       "payment",
			Awaiting:    transcript.AwaitingFinancingType,
			DelayMonths: &months,
		}
		user := transcript.UserTurn("ça fait 3 mois")
		agent := transcript.AgentTurn("Comment ta formation a été financée ?", marker)
		if err := s.Append(ctx, "order", user, agent); err != nil {
			t.Fatalf("Append: %v", err)
		}

		got, err := s.Read(ctx, "order", 0)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 turns, got %d", len(got))
		}
		if got[0].Role != transcript.RoleUser || got[1].Role != transcript.RoleAgent {
			t.Errorf("roles out of order: %s, %s", got[0].Role, got[1].Role)
		}
		if got[0].Sequence >= got[1].Sequence {
			t.Errorf("sequences not increasing: %d, %d", got[0].Sequence, got[1].Sequence)
		}
		if got[0].Marker != nil {
			t.Error("user turn should carry no marker")
		}
		if diff := cmp.Diff(marker, got[1].Marker); diff != "" {
			t.Errorf("marker mismatch (-want +got):\n%s", diff)
		}
		if got[1].ID != agent.ID || got[1].Text != agent.Text {
			t.Errorf("agent turn mismatch: %+v", got[1])
		}
	})

	t.Run("bounded to most recent", func(t *testing.T) {
		for i := 0; i < maxTurns+5; i++ {
			if err := s.Append(ctx, "bound", transcript.UserTurn(fmt.Sprintf("msg %d", i))); err != nil {
				t.Fatalf("Append %d: %v", i, err)
			}
		}
		got, err := s.Read(ctx, "bound", 0)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if len(got) != maxTurns {
			t.Fatalf("expected %d turns, got %d", maxTurns, len(got))
		}
		if got[0].Text != "msg 5" || got[len(got)-1].Text != fmt.Sprintf("msg %d", maxTurns+4) {
			t.Errorf("unexpected window: first %q last %q", got[0].Text, got[len(got)-1].Text)
		}
		for i := 1; i < len(got); i++ {
			if got[i].Sequence <= got[i-1].Sequence {
				t.Fatalf("sequence not increasing at %d", i)
			}
		}

		limited, err := s.Read(ctx, "bound", 3)
		if err != nil {
			t.Fatalf("Read limit: %v", err)
		}
		want := got[len(got)-3:]
		if diff := cmp.Diff(want, limited, cmpopts.EquateApproxTime(0)); diff != "" {
			t.Errorf("limited read mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("clear", func(t *testing.T) {
		if err := s.Append(ctx, "a", transcript.UserTurn("x")); err != nil {
			t.Fatal(err)
		}
		if err := s.Append(ctx, "b", transcript.UserTurn("y")); err != nil {
			t.Fatal(err)
		}
		if err := s.Clear(ctx, "a"); err != nil {
			t.Fatalf("Clear: %v", err)
		}
		if got, _ := s.Read(ctx, "a", 0); len(got) != 0 {
			t.Errorf("expected a cleared, got %d turns", len(got))
		}
		if got, _ := s.Read(ctx, "b", 0); len(got) != 1 {
			t.Errorf("expected b intact, got %d turns", len(got))
		}

		if err := s.ClearAll(ctx); err != nil {
			t.Fatalf("ClearAll: %v", err)
		}
		if got, _ := s.Read(ctx, "b", 0); len(got) != 0 {
			t.Errorf("expected b cleared, got %d turns", len(got))
		}
		if c, ok := s.(transcript.SessionCounter); ok {
			n, err := c.Sessions(ctx)
			if err != nil {
				t.Fatalf("Sessions: %v", err)
			}
			if n != 0 {
				t.Errorf("Sessions = %d after ClearAll, want 0", n)
			}
		}
	})
}
