// Package engine decides what the agent says next. Rules are evaluated in a
// fixed priority order and the first one that accepts a message produces the
// only decision for that turn.
package engine

import (
	"github.com/MikeSquared-Agency/triage/internal/dialogue"
	"github.com/MikeSquared-Agency/triage/internal/extract"
	"github.com/MikeSquared-Agency/triage/internal/textnorm"
	"github.com/MikeSquared-Agency/triage/internal/transcript"
)

// Texts supplies canned reply text per label.
type Texts interface {
	Text(label Label) string
}

// Engine is stateless between calls and safe for concurrent use.
type Engine struct {
	ex    *extract.Extractor
	texts Texts
	rules []rule
}

// New builds an Engine over ex and texts.
func New(ex *extract.Extractor, texts Texts) *Engine {
	if ex == nil {
		ex = extract.Default()
	}
	e := &Engine{ex: ex, texts: texts}
	e.rules = e.ladder()
	return e
}

// RuleNames lists the rules in evaluation order.
func (e *Engine) RuleNames() []string {
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.name
	}
	return names
}

// Route decides the reply to message given an optional external candidate
// and the reconstructed context.
func (e *Engine) Route(message, external string, ctx dialogue.Context) Decision {
	in := &input{
		ex:       e.ex,
		msg:      textnorm.New(message),
		external: textnorm.New(external),
		ctx:      ctx,
	}
	for _, r := range e.rules {
		if r.when != nil && !r.when(in) {
			continue
		}
		if d, ok := r.then(in); ok {
			d.Rule = r.name
			d.Marker.Label = string(d.Label)
			if d.Marker.Topic == "" {
				d.Marker.Topic = d.Label.Topic()
			}
			return d
		}
	}
	// The ladder ends with an unconditional fallback.
	return Decision{Label: LabelFallback, Rule: "fallback", Outcome: Defer{}, Marker: transcript.Marker{Label: string(LabelFallback)}}
}

// input holds one message and memoizes the facts rules extract from it.
type input struct {
	ex       *extract.Extractor
	msg      textnorm.Text
	external textnorm.Text
	ctx      dialogue.Context

	financing *extract.FinancingType
	delay     *extract.Delay
	delayDone bool
}

func (in *input) financingType() extract.FinancingType {
	if in.financing == nil {
		f := in.ex.Financing(in.msg.Key)
		in.financing = &f
	}
	return *in.financing
}

func (in *input) findDelay() (extract.Delay, bool) {
	if !in.delayDone {
		in.delayDone = true
		if d, ok := in.ex.FindDelay(in.msg.Key); ok {
			in.delay = &d
		}
	}
	if in.delay == nil {
		return extract.Delay{}, false
	}
	return *in.delay, true
}

func (in *input) hasExternal() bool {
	return !in.external.Empty()
}

func (in *input) externalIsGeneric() bool {
	return in.ex.Lexicon().GenericReplies.Any(in.external.Key)
}

func (in *input) mentionsPayment() bool {
	return in.ex.HasPayment(in.msg.Key) || in.financingType().Known()
}
