// Package dialogue recovers the conversational state the decision rules need
// (open questions, topic, facts already gathered) from a transcript alone.
package dialogue

import (
	"github.com/MikeSquared-Agency/triage/internal/extract"
	"github.com/MikeSquared-Agency/triage/internal/textnorm"
	"github.com/MikeSquared-Agency/triage/internal/transcript"
)

// Topic is the subject the conversation was last about.
type Topic string

const (
	TopicNone       Topic = ""
	TopicAmbassador Topic = "ambassador"
	TopicCPF        Topic = "cpf"
	TopicPayment    Topic = "payment"
)

// Scan window bounds, in turns.
const (
	DefaultScanTurns = 8
	MinScanTurns     = 6
	MaxScanTurns     = 10
)

// Context is the state derived for one incoming message.
type Context struct {
	TurnCount     int
	IsFollowUp    bool
	NeedsGreeting bool
	PreviousTopic Topic

	// Awaiting is the open question, if any. The boolean flags mirror it;
	// at most one is set.
	Awaiting                       transcript.Awaiting
	AwaitingCPFConfirmation        bool
	AwaitingFinancingType          bool
	AwaitingTimingInfo             bool
	AwaitingAmbassadorConfirmation bool

	PaymentContextDetected bool
	FinancingQuestionAsked bool
	TimingQuestionAsked    bool
	AmbassadorExplained    bool
	LastAgentMessage       string

	// Pending holds the facts gathered so far for an open financing or
	// timing question.
	Pending transcript.Marker
}

// AnyAwaiting reports whether a question is open.
func (c Context) AnyAwaiting() bool {
	return c.Awaiting != transcript.AwaitingNone
}

// Reconstructor derives Context from transcripts.
type Reconstructor struct {
	ex   *extract.Extractor
	scan int
}

// Options configure a Reconstructor.
type Options struct {
	// ScanTurns is how many recent turns are inspected; clamped to
	// [MinScanTurns, MaxScanTurns]. Zero means DefaultScanTurns.
	ScanTurns int
	Extractor *extract.Extractor
}

// New returns a Reconstructor for opts.
func New(opts Options) *Reconstructor {
	ex := opts.Extractor
	if ex == nil {
		ex = extract.Default()
	}
	return &Reconstructor{ex: ex, scan: clampScan(opts.ScanTurns)}
}

func clampScan(n int) int {
	switch {
	case n == 0:
		return DefaultScanTurns
	case n < MinScanTurns:
		return MinScanTurns
	case n > MaxScanTurns:
		return MaxScanTurns
	}
	return n
}

// Reconstruct is a convenience over New(opts).Reconstruct.
func Reconstruct(turns []transcript.Turn, message string, opts Options) Context {
	return New(opts).Reconstruct(turns, textnorm.New(message))
}

// Reconstruct inspects turns (oldest first, not yet including message)
// newest first. The newest agent turn carrying a Marker decides the open
// question; agent turns without one are checked for the phrases those
// questions are asked with, and the first hit wins. Topic is tracked only
// while no question is open.
func (r *Reconstructor) Reconstruct(turns []transcript.Turn, message textnorm.Text) Context {
	ctx := Context{
		TurnCount:     len(turns),
		NeedsGreeting: len(turns) == 0,
		IsFollowUp:    r.ex.IsFollowUp(message.Key),
	}
	if len(turns) == 0 {
		return ctx
	}

	lx := r.ex.Lexicon()
	window := transcript.Tail(turns, r.scan)
	resolved := false
	seenAgent := false

	for i := len(window) - 1; i >= 0; i-- {
		t := window[i]
		key := textnorm.Key(t.Text)

		if t.Role == transcript.RoleAgent {
			if !seenAgent {
				seenAgent = true
				ctx.LastAgentMessage = t.Text
			}

			if lx.FinancingQuestionMarker.Any(key) || (t.Marker != nil && t.Marker.Awaiting == transcript.AwaitingFinancingType) {
				ctx.FinancingQuestionAsked = true
			}
			if lx.TimingQuestionMarker.Any(key) || (t.Marker != nil && t.Marker.Awaiting == transcript.AwaitingTimingInfo) {
				ctx.TimingQuestionAsked = true
			}
			if lx.AmbassadorExplainedMarker.Any(key) {
				ctx.AmbassadorExplained = true
			}

			if !resolved {
				switch {
				case t.Marker != nil:
					resolved = true
					if t.Marker.Awaiting.Valid() {
						ctx.setAwaiting(t.Marker.Awaiting)
					}
					if ctx.AnyAwaiting() {
						ctx.Pending = *t.Marker
					}
				default:
					if a := r.sniffAwaiting(key); a != transcript.AwaitingNone {
						resolved = true
						ctx.setAwaiting(a)
						ctx.Pending = r.factsBefore(window[:i])
						ctx.Pending.Awaiting = a
					}
				}
			}
		}

		if !ctx.AnyAwaiting() && ctx.PreviousTopic == TopicNone {
			ctx.PreviousTopic = r.topicOf(t, key)
		}
	}

	if ctx.AnyAwaiting() {
		ctx.PreviousTopic = topicFor(ctx.Awaiting)
	}
	ctx.PaymentContextDetected = ctx.PreviousTopic == TopicPayment ||
		ctx.PreviousTopic == TopicCPF ||
		ctx.AwaitingFinancingType || ctx.AwaitingTimingInfo
	return ctx
}

func (c *Context) setAwaiting(a transcript.Awaiting) {
	c.Awaiting = a
	c.AwaitingCPFConfirmation = a == transcript.AwaitingCPFConfirmation
	c.AwaitingFinancingType = a == transcript.AwaitingFinancingType
	c.AwaitingTimingInfo = a == transcript.AwaitingTimingInfo
	c.AwaitingAmbassadorConfirmation = a == transcript.AwaitingAmbassadorConfirmation
}

func (r *Reconstructor) sniffAwaiting(key string) transcript.Awaiting {
	lx := r.ex.Lexicon()
	switch {
	case lx.CPFConfirmationMarker.Any(key):
		return transcript.AwaitingCPFConfirmation
	case lx.FinancingQuestionMarker.Any(key):
		return transcript.AwaitingFinancingType
	case lx.TimingQuestionMarker.Any(key):
		return transcript.AwaitingTimingInfo
	case lx.AmbassadorConfirmationMarker.Any(key):
		return transcript.AwaitingAmbassadorConfirmation
	}
	return transcript.AwaitingNone
}

// factsBefore recovers financing facts from the user turns that prompted a
// question asked without a Marker.
func (r *Reconstructor) factsBefore(turns []transcript.Turn) transcript.Marker {
	var m transcript.Marker
	for i := len(turns) - 1; i >= 0 && turns[i].Role == transcript.RoleUser; i-- {
		key := textnorm.Key(turns[i].Text)
		if m.Financing == "" {
			if f := r.ex.Financing(key); f.Known() {
				m.Financing = string(f)
			}
		}
		if m.DelayMonths == nil {
			if d, ok := r.ex.FindDelay(key); ok {
				months, days := d.Months(), d.Days()
				m.DelayMonths, m.DelayDays = &months, &days
			}
		}
	}
	return m
}

func (r *Reconstructor) topicOf(t transcript.Turn, key string) Topic {
	if t.Marker != nil && t.Marker.Topic != "" {
		return Topic(t.Marker.Topic)
	}
	lx := r.ex.Lexicon()
	switch {
	case lx.AmbassadorTopic.Any(key):
		return TopicAmbassador
	case lx.CPFTopic.Any(key):
		return TopicCPF
	case lx.PaymentTopic.Any(key):
		return TopicPayment
	}
	return TopicNone
}

func topicFor(a transcript.Awaiting) Topic {
	switch a {
	case transcript.AwaitingCPFConfirmation:
		return TopicCPF
	case transcript.AwaitingFinancingType, transcript.AwaitingTimingInfo:
		return TopicPayment
	case transcript.AwaitingAmbassadorConfirmation:
		return TopicAmbassador
	}
	return TopicNone
}
