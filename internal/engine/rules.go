package engine

import (
	"github.com/MikeSquared-Agency/triage/internal/extract"
	"github.com/MikeSquared-Agency/triage/internal/transcript"
)

// rule is one step of the ladder. then may decline, in which case
// evaluation continues with the next rule.
type rule struct {
	name string
	when func(*input) bool
	then func(*input) (Decision, bool)
}

// Delay thresholds.
const (
	cpfMaxMonths  = 2
	opcoMaxMonths = 2
	directMaxDays = 7
)

func (e *Engine) ladder() []rule {
	return []rule{
		{
			name: "open_question",
			when: func(in *input) bool { return in.ctx.AnyAwaiting() },
			then: e.resolveOpenQuestion,
		},
		{
			name: "financing_delay",
			when: func(in *input) bool {
				_, ok := in.findDelay()
				return ok && in.financingType().Known()
			},
			then: func(in *input) (Decision, bool) {
				d, _ := in.findDelay()
				return e.classifyDelay(in.financingType(), d), true
			},
		},
		{
			name: "ambassador_steps",
			when: func(in *input) bool {
				lx := in.ex.Lexicon()
				if !lx.AmbassadorHowTo.Any(in.msg.Key) {
					return false
				}
				return in.ctx.PreviousTopic == "ambassador" || lx.Ambassador.Any(in.msg.Key)
			},
			then: func(in *input) (Decision, bool) {
				return e.reply(LabelAmbassadorSteps), true
			},
		},
		{
			name: "external_reply",
			when: func(in *input) bool {
				return in.hasExternal() &&
					!in.externalIsGeneric() &&
					!in.ctx.AnyAwaiting() &&
					!in.ctx.PaymentContextDetected &&
					!in.mentionsPayment()
			},
			then: func(in *input) (Decision, bool) {
				return Decision{Label: LabelExternal, Outcome: External{Text: in.external.Raw}}, true
			},
		},
		{
			name: "aggressiveness",
			when: func(in *input) bool { return in.ex.IsAggressive(in.msg.Key) },
			then: func(in *input) (Decision, bool) {
				return e.reply(LabelAggressive), true
			},
		},
		{
			name: "payment_complaint",
			when: func(in *input) bool { return in.ex.HasPayment(in.msg.Key) },
			then: e.paymentComplaint,
		},
		{
			name: "ambassador_presentation",
			when: func(in *input) bool {
				return !in.ctx.AmbassadorExplained && in.ex.Lexicon().Ambassador.Any(in.msg.Key)
			},
			then: func(in *input) (Decision, bool) {
				d := e.reply(LabelAmbassadorPitch)
				d.Marker.Awaiting = transcript.AwaitingAmbassadorConfirmation
				return d, true
			},
		},
		{
			name: "follow_up",
			when: func(in *input) bool { return in.ctx.IsFollowUp && in.ctx.TurnCount > 0 },
			then: func(in *input) (Decision, bool) {
				return Decision{Label: LabelFollowUp, Outcome: Defer{}}, true
			},
		},
		{
			name: "escalation_keywords",
			then: func(in *input) (Decision, bool) {
				lx := in.ex.Lexicon()
				switch {
				case lx.EscalationAdmin.Any(in.msg.Key):
					d := e.reply(LabelEscalateAdmin)
					d.Escalation = EscalationAdmin
					return d, true
				case lx.EscalationTechnical.Any(in.msg.Key):
					d := e.reply(LabelEscalateTechnical)
					d.Escalation = EscalationTechnical
					return d, true
				}
				return Decision{}, false
			},
		},
		{
			name: "external_fallback",
			when: func(in *input) bool { return in.hasExternal() },
			then: func(in *input) (Decision, bool) {
				return Decision{Label: LabelExternalFallback, Outcome: External{Text: in.external.Raw}}, true
			},
		},
		{
			name: "fallback",
			then: func(in *input) (Decision, bool) {
				return Decision{Label: LabelFallback, Outcome: Defer{}}, true
			},
		},
	}
}

func (e *Engine) reply(label Label) Decision {
	var text string
	if e.texts != nil {
		text = e.texts.Text(label)
	}
	return Decision{Label: label, Outcome: Reply{Text: text}}
}

// classifyDelay applies the per-financing thresholds.
func (e *Engine) classifyDelay(f extract.FinancingType, d extract.Delay) Decision {
	var out Decision
	switch f {
	case extract.FinancingCPF:
		if d.Months() >= cpfMaxMonths {
			out = e.reply(LabelCPFDelayFiltering)
			out.Marker.Awaiting = transcript.AwaitingCPFConfirmation
		} else {
			out = e.reply(LabelCPFDelayNormal)
		}
	case extract.FinancingOPCO:
		if d.Months() >= opcoMaxMonths {
			out = e.reply(LabelOPCODelayExceeded)
			out.Escalation = EscalationAdmin
		} else {
			out = e.reply(LabelOPCODelayNormal)
		}
	default:
		if d.Days() > directMaxDays {
			out = e.reply(LabelDirectDelayExceeded)
			out.Escalation = EscalationAdmin
		} else {
			out = e.reply(LabelDirectDelayNormal)
		}
	}
	withFacts(&out.Marker, f, &d)
	return out
}

func withFacts(m *transcript.Marker, f extract.FinancingType, d *extract.Delay) {
	if f.Known() {
		m.Financing = string(f)
	}
	if d != nil {
		months, days := d.Months(), d.Days()
		m.DelayMonths, m.DelayDays = &months, &days
	}
}

// resolveOpenQuestion answers the question left open by the previous agent
// turn. It declines when the message does not answer it.
func (e *Engine) resolveOpenQuestion(in *input) (Decision, bool) {
	lx := in.ex.Lexicon()
	switch in.ctx.Awaiting {
	case transcript.AwaitingFinancingType, transcript.AwaitingTimingInfo:
		return e.completeFinancing(in)

	case transcript.AwaitingCPFConfirmation:
		switch {
		case lx.No.Any(in.msg.Key):
			d := e.reply(LabelCPFBlockedEscalate)
			d.Escalation = EscalationAdmin
			return d, true
		case lx.Yes.Any(in.msg.Key):
			return e.reply(LabelCPFBlockedInformed), true
		}

	case transcript.AwaitingAmbassadorConfirmation:
		switch {
		case lx.No.Any(in.msg.Key):
			return e.reply(LabelAmbassadorDeclined), true
		case lx.Yes.Any(in.msg.Key):
			return e.reply(LabelAmbassadorSteps), true
		}
	}
	return Decision{}, false
}

// completeFinancing merges the message's facts over those gathered earlier
// and either classifies or asks for what is still missing.
func (e *Engine) completeFinancing(in *input) (Decision, bool) {
	f := in.financingType()
	d, hasDelay := in.findDelay()
	if !f.Known() && !hasDelay {
		return Decision{}, false
	}

	pending := in.ctx.Pending
	if !f.Known() {
		f = extract.ParseFinancing(pending.Financing)
	}
	var delay *extract.Delay
	switch {
	case hasDelay:
		delay = &d
	case pending.DelayMonths != nil:
		delay = pendingDelay(pending)
	}

	switch {
	case f.Known() && delay != nil:
		return e.classifyDelay(f, *delay), true
	case f.Known():
		out := e.reply(LabelPaymentAskDelay)
		out.Marker.Awaiting = transcript.AwaitingTimingInfo
		withFacts(&out.Marker, f, nil)
		return out, true
	default:
		out := e.reply(LabelPaymentAskFinancing)
		out.Marker.Awaiting = transcript.AwaitingFinancingType
		withFacts(&out.Marker, f, delay)
		return out, true
	}
}

// pendingDelay rebuilds a delay from stored facts, preferring days so the
// DIRECT threshold sees the original precision.
func pendingDelay(m transcript.Marker) *extract.Delay {
	if m.DelayDays != nil {
		return &extract.Delay{Amount: float64(*m.DelayDays), Unit: extract.UnitDays}
	}
	return &extract.Delay{Amount: *m.DelayMonths, Unit: extract.UnitMonths}
}

func (e *Engine) paymentComplaint(in *input) (Decision, bool) {
	if in.ctx.IsFollowUp && in.ctx.TurnCount > 0 {
		return Decision{Label: LabelPaymentFollowUp, Outcome: Defer{}}, true
	}
	if in.hasExternal() && !in.externalIsGeneric() {
		return Decision{Label: LabelPaymentExternal, Outcome: External{Text: in.external.Raw}}, true
	}

	f := in.financingType()
	d, hasDelay := in.findDelay()
	var out Decision
	switch {
	case f.Known():
		out = e.reply(LabelPaymentAskDelay)
		out.Marker.Awaiting = transcript.AwaitingTimingInfo
		withFacts(&out.Marker, f, nil)
	case hasDelay:
		out = e.reply(LabelPaymentAskFinancing)
		out.Marker.Awaiting = transcript.AwaitingFinancingType
		withFacts(&out.Marker, f, &d)
	default:
		out = e.reply(LabelPaymentAskInfo)
		out.Marker.Awaiting = transcript.AwaitingFinancingType
	}
	return out, true
}
