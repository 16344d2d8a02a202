package processor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/MikeSquared-Agency/triage/internal/dialogue"
	"github.com/MikeSquared-Agency/triage/internal/engine"
	"github.com/MikeSquared-Agency/triage/internal/generation"
	"github.com/MikeSquared-Agency/triage/internal/hermes"
	"github.com/MikeSquared-Agency/triage/internal/metrics"
	"github.com/MikeSquared-Agency/triage/internal/responses"
	"github.com/MikeSquared-Agency/triage/internal/slack"
	"github.com/MikeSquared-Agency/triage/internal/transcript"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
	reqs  []generation.Request
}

func (g *stubGenerator) Compose(_ context.Context, req generation.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reqs = append(g.reqs, req)
	return g.reply, g.err
}

type published struct {
	subject string
	data    any
}

type stubPublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *stubPublisher) Publish(subject string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{subject, data})
	return nil
}

func (p *stubPublisher) subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, m := range p.msgs {
		out = append(out, m.subject)
	}
	return out
}

type stubAlerter struct {
	alerts []slack.Escalation
	err    error
}

func (a *stubAlerter) PostEscalation(_ context.Context, e slack.Escalation) (string, error) {
	a.alerts = append(a.alerts, e)
	return "1.0", a.err
}

// failingStore fails every read and append.
type failingStore struct{ transcript.Store }

func (failingStore) Read(context.Context, string, int) ([]transcript.Turn, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Append(context.Context, string, ...transcript.Turn) error {
	return errors.New("connection refused")
}

func newTestProcessor(t *testing.T, mod func(*Config)) (*Processor, *transcript.MemoryStore) {
	t.Helper()
	catalog, err := responses.Load("")
	if err != nil {
		t.Fatalf("load responses: %v", err)
	}
	store := transcript.NewMemoryStore(transcript.DefaultMaxTurns)
	cfg := Config{
		Store:   store,
		Engine:  engine.New(nil, catalog),
		Context: dialogue.New(dialogue.Options{}),
		Catalog: catalog,
		Metrics: metrics.New(),
	}
	if mod != nil {
		mod(&cfg)
	}
	return New(cfg, discardLogger()), store
}

func TestProcess_EmptyMessage(t *testing.T) {
	p, _ := newTestProcessor(t, nil)
	for _, msg := range []string{"", "   ", "\n\t"} {
		if _, err := p.Process(context.Background(), Request{Message: msg}); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("Process(%q) err = %v, want ErrEmptyMessage", msg, err)
		}
	}
}

func TestProcess_DeferredWithoutGenerator(t *testing.T) {
	p, store := newTestProcessor(t, nil)
	catalog, _ := responses.Load("")

	res, err := p.Process(context.Background(), Request{Message: "bonjour"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.SessionID != DefaultSessionID {
		t.Errorf("SessionID = %q, want %q", res.SessionID, DefaultSessionID)
	}
	if !res.Deferred || res.ReplyText != nil {
		t.Errorf("expected deferred turn without reply text, got %+v", res)
	}
	if res.Source != SourceHolding || res.FinalText != catalog.Holding(true) {
		t.Errorf("expected greeting holding reply, got %s %q", res.Source, res.FinalText)
	}
	if !res.NeedsGreeting || res.TurnCount != 0 {
		t.Errorf("NeedsGreeting = %v, TurnCount = %d", res.NeedsGreeting, res.TurnCount)
	}

	turns, _ := store.Read(context.Background(), DefaultSessionID, 0)
	if len(turns) != 2 || turns[1].Marker == nil || turns[1].Marker.Label != string(engine.LabelFallback) {
		t.Fatalf("unexpected stored turns %+v", turns)
	}
	want := transcript.Summary{Total: 2, User: 1, Agent: 1, Chars: transcript.Summarize(turns).Chars}
	if diff := cmp.Diff(want, res.Memory); diff != "" {
		t.Errorf("memory summary mismatch (-want +got):\n%s", diff)
	}
}

func TestProcess_Generation(t *testing.T) {
	gen := &stubGenerator{reply: "Salut ! Comment puis-je t'aider ?"}
	p, _ := newTestProcessor(t, func(c *Config) { c.Generator = gen })

	res, err := p.Process(context.Background(), Request{SessionID: "wa-1", Message: "bonjour"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Source != SourceGeneration || res.FinalText != gen.reply {
		t.Errorf("got %s %q", res.Source, res.FinalText)
	}
	if len(gen.reqs) != 1 {
		t.Fatalf("expected one generation request, got %d", len(gen.reqs))
	}
	req := gen.reqs[0]
	if req.SessionID != "wa-1" || req.Label != string(engine.LabelFallback) || !req.NeedsGreeting {
		t.Errorf("unexpected request %+v", req)
	}
	if !p.GenerationEnabled() {
		t.Error("GenerationEnabled() = false")
	}
}

func TestProcess_GenerationFailureSendsHolding(t *testing.T) {
	gen := &stubGenerator{err: errors.New("overloaded")}
	p, _ := newTestProcessor(t, func(c *Config) { c.Generator = gen })
	catalog, _ := responses.Load("")
	ctx := context.Background()

	if _, err := p.Process(ctx, Request{SessionID: "wa-2", Message: "bonjour"}); err != nil {
		t.Fatal(err)
	}
	res, err := p.Process(ctx, Request{SessionID: "wa-2", Message: "pourquoi ?"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != SourceHolding || res.FinalText != catalog.Holding(false) {
		t.Errorf("expected plain holding reply, got %s %q", res.Source, res.FinalText)
	}
	if res.TurnCount != 2 || !res.IsFollowUp {
		t.Errorf("TurnCount = %d, IsFollowUp = %v", res.TurnCount, res.IsFollowUp)
	}
	if len(gen.reqs[1].History) != 2 {
		t.Errorf("expected prior turns as history, got %d", len(gen.reqs[1].History))
	}
}

func TestProcess_EscalationSideEffects(t *testing.T) {
	pub := &stubPublisher{}
	alert := &stubAlerter{}
	p, _ := newTestProcessor(t, func(c *Config) {
		c.Publisher = pub
		c.Alerter = alert
	})

	msg := "ça fait 3 mois que j'attends mon virement OPCO"
	res, err := p.Process(context.Background(), Request{SessionID: "wa-3", Message: msg})
	if err != nil {
		t.Fatal(err)
	}
	if res.Label != engine.LabelOPCODelayExceeded || !res.EscalationRequired || res.EscalationType != engine.EscalationAdmin {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.ReplyText == nil || *res.ReplyText != res.FinalText || res.Source != SourceEngine {
		t.Errorf("expected canned reply, got %+v", res)
	}

	if diff := cmp.Diff([]string{hermes.SubjectDecision, hermes.SubjectEscalation}, pub.subjects()); diff != "" {
		t.Errorf("subjects mismatch (-want +got):\n%s", diff)
	}
	evt, ok := pub.msgs[1].data.(hermes.EscalationEvent)
	if !ok || evt.Message != msg || evt.Type != "admin" || evt.Reply != res.FinalText {
		t.Errorf("unexpected escalation event %+v", pub.msgs[1].data)
	}

	if len(alert.alerts) != 1 || alert.alerts[0].Label != string(engine.LabelOPCODelayExceeded) {
		t.Errorf("unexpected alerts %+v", alert.alerts)
	}
}

func TestProcess_NoEscalationPublishesDecisionOnly(t *testing.T) {
	pub := &stubPublisher{}
	alert := &stubAlerter{}
	p, _ := newTestProcessor(t, func(c *Config) {
		c.Publisher = pub
		c.Alerter = alert
	})

	if _, err := p.Process(context.Background(), Request{Message: "tu es nul"}); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{hermes.SubjectDecision}, pub.subjects()); diff != "" {
		t.Errorf("subjects mismatch (-want +got):\n%s", diff)
	}
	if len(alert.alerts) != 0 {
		t.Errorf("unexpected alerts %+v", alert.alerts)
	}
}

func TestProcess_AlertFailureDoesNotFailTurn(t *testing.T) {
	alert := &stubAlerter{err: errors.New("channel_not_found")}
	p, _ := newTestProcessor(t, func(c *Config) { c.Alerter = alert })

	res, err := p.Process(context.Background(), Request{Message: "je vais porter plainte"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Label != engine.LabelEscalateAdmin {
		t.Errorf("label = %s", res.Label)
	}
}

func TestProcess_ExternalCandidate(t *testing.T) {
	p, _ := newTestProcessor(t, nil)
	candidate := "Nous sommes ouverts de 9h à 17h."

	res, err := p.Process(context.Background(), Request{Message: "c'est quoi vos horaires", External: candidate})
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != SourceExternal || res.FinalText != candidate {
		t.Errorf("got %s %q", res.Source, res.FinalText)
	}
}

func TestProcess_StoreFailureDegrades(t *testing.T) {
	p, _ := newTestProcessor(t, func(c *Config) { c.Store = failingStore{} })

	res, err := p.Process(context.Background(), Request{SessionID: "wa-4", Message: "je n'ai toujours pas été payé"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Label != engine.LabelPaymentAskInfo || res.TurnCount != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Memory.Total != 2 {
		t.Errorf("memory total = %d, want 2", res.Memory.Total)
	}
}

func TestProcess_MultiTurnFinancing(t *testing.T) {
	p, _ := newTestProcessor(t, nil)
	ctx := context.Background()

	steps := []struct {
		msg      string
		label    engine.Label
		awaiting transcript.Awaiting
	}{
		{"je n'ai toujours pas été payé", engine.LabelPaymentAskInfo, transcript.AwaitingFinancingType},
		{"c'est un opco", engine.LabelPaymentAskDelay, transcript.AwaitingTimingInfo},
		{"3 mois", engine.LabelOPCODelayExceeded, transcript.AwaitingNone},
	}
	for _, s := range steps {
		res, err := p.Process(ctx, Request{SessionID: "wa-5", Message: s.msg})
		if err != nil {
			t.Fatalf("Process(%q): %v", s.msg, err)
		}
		if res.Label != s.label || res.AwaitingFlagSet != s.awaiting {
			t.Fatalf("Process(%q) = %s awaiting %q, want %s awaiting %q", s.msg, res.Label, res.AwaitingFlagSet, s.label, s.awaiting)
		}
	}
}

func TestProcess_ConcurrentSameSession(t *testing.T) {
	p, store := newTestProcessor(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Process(ctx, Request{SessionID: "busy", Message: "bonjour"}); err != nil {
				t.Errorf("Process: %v", err)
			}
		}()
	}
	wg.Wait()

	turns, err := store.Read(ctx, "busy", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != transcript.DefaultMaxTurns {
		t.Errorf("retained %d turns, want %d", len(turns), transcript.DefaultMaxTurns)
	}
	seen := make(map[int64]bool)
	for i, turn := range turns {
		if seen[turn.Sequence] {
			t.Errorf("duplicate sequence %d", turn.Sequence)
		}
		seen[turn.Sequence] = true
		if i > 0 && turn.Sequence <= turns[i-1].Sequence {
			t.Errorf("sequences out of order at %d", i)
		}
	}
	// Turns are appended in user/agent pairs, so roles alternate.
	for i := 1; i < len(turns); i++ {
		if turns[i].Role == turns[i-1].Role {
			t.Errorf("interleaved turns at %d: %s after %s", i, turns[i].Role, turns[i-1].Role)
		}
	}
	if n := p.locks.len(); n != 0 {
		t.Errorf("%d session locks leaked", n)
	}
}

func TestResetAndTranscript(t *testing.T) {
	p, _ := newTestProcessor(t, nil)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if _, err := p.Process(ctx, Request{SessionID: id, Message: "bonjour"}); err != nil {
			t.Fatal(err)
		}
	}
	if n, ok := p.ActiveSessions(ctx); !ok || n != 2 {
		t.Fatalf("ActiveSessions = %d, %v", n, ok)
	}

	p.HandleReset(hermes.SubjectSessionReset, []byte(`{"session_id":"a"}`))
	turns, sum, err := p.Transcript(ctx, "a")
	if err != nil || len(turns) != 0 || sum.Total != 0 {
		t.Errorf("session a not cleared: %d turns, %v", len(turns), err)
	}
	if _, sum, _ := p.Transcript(ctx, "b"); sum.Total != 2 {
		t.Errorf("session b total = %d, want 2", sum.Total)
	}

	p.HandleReset(hermes.SubjectSessionReset, nil)
	if n, _ := p.ActiveSessions(ctx); n != 0 {
		t.Errorf("ActiveSessions after reset all = %d", n)
	}

	// Malformed payloads are ignored.
	p.HandleReset(hermes.SubjectSessionReset, []byte(`{`))
}

func TestSessionLocks_Serializes(t *testing.T) {
	locks := newSessionLocks()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("s")
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxSeen)
	}
	if locks.len() != 0 {
		t.Error("locks not released")
	}
}
