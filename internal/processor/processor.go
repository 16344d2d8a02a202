package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/triage/internal/dialogue"
	"github.com/MikeSquared-Agency/triage/internal/engine"
	"github.com/MikeSquared-Agency/triage/internal/generation"
	"github.com/MikeSquared-Agency/triage/internal/hermes"
	"github.com/MikeSquared-Agency/triage/internal/metrics"
	"github.com/MikeSquared-Agency/triage/internal/responses"
	"github.com/MikeSquared-Agency/triage/internal/slack"
	"github.com/MikeSquared-Agency/triage/internal/textnorm"
	"github.com/MikeSquared-Agency/triage/internal/transcript"
)

// ErrEmptyMessage is returned when a turn carries no message text.
var ErrEmptyMessage = errors.New("message is required")

const (
	DefaultSessionID         = "default_wa_id"
	DefaultGenerationTimeout = 20 * time.Second
)

// Reply sources.
const (
	SourceEngine     = "engine"
	SourceExternal   = "external"
	SourceGeneration = "generation"
	SourceHolding    = "holding"
)

// Generator composes replies for deferred decisions.
type Generator interface {
	Compose(ctx context.Context, req generation.Request) (string, error)
}

// Publisher emits events to the bus.
type Publisher interface {
	Publish(subject string, data any) error
}

// Alerter notifies the support team of escalations.
type Alerter interface {
	PostEscalation(ctx context.Context, e slack.Escalation) (string, error)
}

// Config wires a Processor. Generator, Publisher, Alerter and Metrics are
// optional.
type Config struct {
	Store             transcript.Store
	Engine            *engine.Engine
	Context           *dialogue.Reconstructor
	Catalog           *responses.Catalog
	Generator         Generator
	Publisher         Publisher
	Alerter           Alerter
	Metrics           *metrics.Recorder
	DefaultSessionID  string
	GenerationTimeout time.Duration
}

// Processor runs one conversational turn end to end.
type Processor struct {
	store      transcript.Store
	engine     *engine.Engine
	context    *dialogue.Reconstructor
	catalog    *responses.Catalog
	generator  Generator
	publisher  Publisher
	alerter    Alerter
	metrics    *metrics.Recorder
	defaultID  string
	genTimeout time.Duration
	locks      *sessionLocks
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Processor {
	p := &Processor{
		store:      cfg.Store,
		engine:     cfg.Engine,
		context:    cfg.Context,
		catalog:    cfg.Catalog,
		generator:  cfg.Generator,
		publisher:  cfg.Publisher,
		alerter:    cfg.Alerter,
		metrics:    cfg.Metrics,
		defaultID:  cfg.DefaultSessionID,
		genTimeout: cfg.GenerationTimeout,
		locks:      newSessionLocks(),
		logger:     logger,
	}
	if p.defaultID == "" {
		p.defaultID = DefaultSessionID
	}
	if p.genTimeout <= 0 {
		p.genTimeout = DefaultGenerationTimeout
	}
	if p.context == nil {
		p.context = dialogue.New(dialogue.Options{})
	}
	return p
}

// Request is one inbound user message.
type Request struct {
	SessionID string
	Message   string
	// External is an optional candidate reply produced upstream.
	External string
}

// Result is the outcome of a turn.
type Result struct {
	SessionID          string
	Label              engine.Label
	Rule               string
	ReplyText          *string
	FinalText          string
	Source             string
	Deferred           bool
	EscalationRequired bool
	EscalationType     engine.Escalation
	AwaitingFlagSet    transcript.Awaiting
	TurnCount          int
	IsFollowUp         bool
	NeedsGreeting      bool
	Memory             transcript.Summary
}

// Process routes req, resolves the reply text and records both turns.
// Only an empty message is an error; downstream failures degrade the turn.
func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Message) == "" {
		return Result{}, ErrEmptyMessage
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = p.defaultID
	}

	start := time.Now()
	res, d := p.turn(ctx, sessionID, req)

	p.announce(ctx, req, res, d)
	if p.metrics != nil {
		p.metrics.Decision(string(res.Label), res.Source, string(res.EscalationType), time.Since(start))
	}
	p.logger.Info("turn processed",
		"session_id", sessionID,
		"label", res.Label,
		"rule", res.Rule,
		"source", res.Source,
		"escalation", res.EscalationType,
		"awaiting", res.AwaitingFlagSet,
	)
	return res, nil
}

// turn runs under the session lock.
func (p *Processor) turn(ctx context.Context, sessionID string, req Request) (Result, engine.Decision) {
	unlock := p.locks.lock(sessionID)
	defer unlock()

	history, err := p.store.Read(ctx, sessionID, 0)
	if err != nil {
		p.failure("store_read")
		p.logger.Warn("read transcript failed, continuing without context", "session_id", sessionID, "error", err)
		history = nil
	}

	dctx := p.context.Reconstruct(history, textnorm.New(req.Message))
	d := p.engine.Route(req.Message, req.External, dctx)

	res := Result{
		SessionID:          sessionID,
		Label:              d.Label,
		Rule:               d.Rule,
		Deferred:           d.Deferred(),
		EscalationRequired: d.Escalate(),
		EscalationType:     d.EscalationType(),
		AwaitingFlagSet:    d.AwaitingFlagToSet(),
		TurnCount:          dctx.TurnCount,
		IsFollowUp:         dctx.IsFollowUp,
		NeedsGreeting:      dctx.NeedsGreeting,
	}

	if text, ok := d.ReplyText(); ok {
		res.ReplyText = &text
		res.FinalText = text
		res.Source = SourceEngine
		if d.UseExternalReply() {
			res.Source = SourceExternal
		}
	} else {
		res.FinalText, res.Source = p.compose(ctx, sessionID, req.Message, history, d, dctx)
	}

	marker := d.Marker
	turns := []transcript.Turn{
		transcript.UserTurn(req.Message),
		transcript.AgentTurn(res.FinalText, &marker),
	}
	if err := p.store.Append(ctx, sessionID, turns...); err != nil {
		p.failure("store_append")
		p.logger.Error("append transcript failed", "session_id", sessionID, "error", err)
		res.Memory = transcript.Summarize(append(history, turns...))
		return res, d
	}

	stored, err := p.store.Read(ctx, sessionID, 0)
	if err != nil {
		stored = append(history, turns...)
	}
	res.Memory = transcript.Summarize(stored)
	return res, d
}

// compose asks the generator for a reply and falls back to the holding
// text when none is configured or it fails.
func (p *Processor) compose(ctx context.Context, sessionID, message string, history []transcript.Turn, d engine.Decision, dctx dialogue.Context) (string, string) {
	if p.generator != nil {
		gctx, cancel := context.WithTimeout(ctx, p.genTimeout)
		defer cancel()
		text, err := p.generator.Compose(gctx, generation.Request{
			SessionID:     sessionID,
			Message:       message,
			History:       history,
			Label:         string(d.Label),
			NeedsGreeting: dctx.NeedsGreeting,
			IsFollowUp:    dctx.IsFollowUp,
		})
		if err == nil {
			return text, SourceGeneration
		}
		p.failure("generation")
		p.logger.Warn("generation failed, sending holding reply", "session_id", sessionID, "label", d.Label, "error", err)
	}
	return p.catalog.Holding(dctx.NeedsGreeting), SourceHolding
}

// announce publishes the decision and, on escalation, alerts humans.
func (p *Processor) announce(ctx context.Context, req Request, res Result, d engine.Decision) {
	if p.publisher != nil {
		evt := hermes.DecisionEvent{
			SessionID:  res.SessionID,
			Label:      string(res.Label),
			Rule:       res.Rule,
			Source:     res.Source,
			Awaiting:   string(res.AwaitingFlagSet),
			Escalation: string(res.EscalationType),
			Deferred:   res.Deferred,
			TurnCount:  res.TurnCount,
		}
		if err := p.publisher.Publish(hermes.SubjectDecision, evt); err != nil {
			p.failure("nats")
			p.logger.Error("publish decision failed", "session_id", res.SessionID, "error", err)
		}
	}
	if !d.Escalate() {
		return
	}

	if p.publisher != nil {
		evt := hermes.NewEscalationEvent(res.SessionID, string(res.Label), string(res.EscalationType), req.Message, res.FinalText)
		if err := p.publisher.Publish(hermes.SubjectEscalation, evt); err != nil {
			p.failure("nats")
			p.logger.Error("publish escalation failed", "session_id", res.SessionID, "error", err)
		}
	}
	if p.alerter != nil {
		_, err := p.alerter.PostEscalation(ctx, slack.Escalation{
			SessionID: res.SessionID,
			Label:     string(res.Label),
			Type:      string(res.EscalationType),
			Message:   req.Message,
			Reply:     res.FinalText,
		})
		if err != nil {
			p.failure("slack")
			p.logger.Error("escalation alert failed", "session_id", res.SessionID, "error", err)
		}
	}
}

func (p *Processor) failure(component string) {
	if p.metrics != nil {
		p.metrics.Failure(component)
	}
}

// Transcript returns the retained turns of a session.
func (p *Processor) Transcript(ctx context.Context, sessionID string) ([]transcript.Turn, transcript.Summary, error) {
	turns, err := p.store.Read(ctx, sessionID, 0)
	if err != nil {
		return nil, transcript.Summary{}, fmt.Errorf("read transcript: %w", err)
	}
	return turns, transcript.Summarize(turns), nil
}

// Reset clears one session.
func (p *Processor) Reset(ctx context.Context, sessionID string) error {
	unlock := p.locks.lock(sessionID)
	defer unlock()
	if err := p.store.Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("clear session %s: %w", sessionID, err)
	}
	p.logger.Info("session reset", "session_id", sessionID)
	return nil
}

// ResetAll clears every session.
func (p *Processor) ResetAll(ctx context.Context) error {
	if err := p.store.ClearAll(ctx); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}
	p.logger.Info("all sessions reset")
	return nil
}

// ActiveSessions counts stored sessions when the store supports it.
func (p *Processor) ActiveSessions(ctx context.Context) (int, bool) {
	sc, ok := p.store.(transcript.SessionCounter)
	if !ok {
		return 0, false
	}
	n, err := sc.Sessions(ctx)
	if err != nil {
		p.logger.Warn("count sessions failed", "error", err)
		return 0, false
	}
	return n, true
}

// GenerationEnabled reports whether deferred turns can be composed.
func (p *Processor) GenerationEnabled() bool {
	return p.generator != nil
}

// HandleReset is the NATS handler for swarm.triage.session.reset.
func (p *Processor) HandleReset(subject string, data []byte) {
	ctx := context.Background()

	req, err := hermes.ParseReset(data)
	if err != nil {
		p.logger.Error("failed to parse reset request", "subject", subject, "error", err)
		return
	}
	if req.SessionID == "" {
		err = p.ResetAll(ctx)
	} else {
		err = p.Reset(ctx, req.SessionID)
	}
	if err != nil {
		p.failure("store_clear")
		p.logger.Error("reset failed", "session_id", req.SessionID, "error", err)
	}
}
