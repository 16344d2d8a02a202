package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/MikeSquared-Agency/triage/internal/transcript"
	"github.com/MikeSquared-Agency/triage/internal/transcript/transcripttest"
)

func openTestSQLite(t *testing.T, maxTurns int) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "triage.db"), maxTurns)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_Contract(t *testing.T) {
	transcripttest.Run(t, openTestSQLite(t, transcript.DefaultMaxTurns), transcript.DefaultMaxTurns)
}

func TestSQLite_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triage.db")
	ctx := context.Background()

	s, err := OpenSQLite(path, 5)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Append(ctx, "wa-1", transcript.UserTurn("bonjour")); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = OpenSQLite(path, 5)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	turns, err := s.Read(ctx, "wa-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 1 || turns[0].Text != "bonjour" || turns[0].Sequence != 1 {
		t.Errorf("unexpected turns after reopen: %+v", turns)
	}
}

func TestSQLite_ConcurrentAppends(t *testing.T) {
	s := openTestSQLite(t, 10)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Append(ctx, "busy", transcript.UserTurn("q"), transcript.AgentTurn("r", nil)); err != nil {
				t.Errorf("Append: %v", err)
			}
		}()
	}
	wg.Wait()

	turns, err := s.Read(ctx, "busy", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 10 {
		t.Fatalf("retained %d turns, want 10", len(turns))
	}
	if last := turns[len(turns)-1].Sequence; last != 40 {
		t.Errorf("last sequence = %d, want 40", last)
	}
}
