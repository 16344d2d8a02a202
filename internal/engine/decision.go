package engine

import "github.com/MikeSquared-Agency/triage/internal/transcript"

// Label names the situation a decision was made for.
type Label string

const (
	LabelCPFBlockedInformed  Label = "CPF_BLOQUE_INFORME"
	LabelCPFBlockedEscalate  Label = "CPF_BLOQUE_ESCALADE"
	LabelCPFDelayFiltering   Label = "CPF_DELAI_DEPASSE_FILTRAGE"
	LabelCPFDelayNormal      Label = "CPF_DELAI_NORMAL"
	LabelOPCODelayExceeded   Label = "OPCO_DELAI_DEPASSE"
	LabelOPCODelayNormal     Label = "OPCO_DELAI_NORMAL"
	LabelDirectDelayExceeded Label = "DIRECT_DELAI_DEPASSE"
	LabelDirectDelayNormal   Label = "DIRECT_DELAI_NORMAL"
	LabelAmbassadorSteps     Label = "AMBASSADEUR_ETAPES"
	LabelAmbassadorDeclined  Label = "AMBASSADEUR_REFUS"
	LabelAmbassadorPitch     Label = "AMBASSADEUR_PRESENTATION"
	LabelExternal            Label = "BLOC_EXTERNE"
	LabelAggressive          Label = "AGRESSIVITE"
	LabelPaymentFollowUp     Label = "PAIEMENT_SUIVI"
	LabelPaymentExternal     Label = "PAIEMENT_BLOC_EXTERNE"
	LabelPaymentAskInfo      Label = "PAIEMENT_DEMANDE_INFOS"
	LabelPaymentAskDelay     Label = "PAIEMENT_DEMANDE_DELAI"
	LabelPaymentAskFinancing Label = "PAIEMENT_DEMANDE_FINANCEMENT"
	LabelFollowUp            Label = "SUIVI_CONVERSATION"
	LabelEscalateAdmin       Label = "ESCALADE_ADMIN"
	LabelEscalateTechnical   Label = "ESCALADE_TECHNIQUE"
	LabelExternalFallback    Label = "BLOC_EXTERNE_FALLBACK"
	LabelFallback            Label = "FALLBACK_GENERAL"
)

// Labels lists every label the engine can produce.
func Labels() []Label {
	return []Label{
		LabelCPFBlockedInformed, LabelCPFBlockedEscalate, LabelCPFDelayFiltering, LabelCPFDelayNormal,
		LabelOPCODelayExceeded, LabelOPCODelayNormal, LabelDirectDelayExceeded, LabelDirectDelayNormal,
		LabelAmbassadorSteps, LabelAmbassadorDeclined, LabelAmbassadorPitch,
		LabelExternal, LabelAggressive,
		LabelPaymentFollowUp, LabelPaymentExternal, LabelPaymentAskInfo, LabelPaymentAskDelay, LabelPaymentAskFinancing,
		LabelFollowUp, LabelEscalateAdmin, LabelEscalateTechnical, LabelExternalFallback, LabelFallback,
	}
}

// CannedLabels lists the labels answered with catalog text.
func CannedLabels() []Label {
	var out []Label
	for _, l := range Labels() {
		switch l {
		case LabelExternal, LabelPaymentExternal, LabelExternalFallback,
			LabelPaymentFollowUp, LabelFollowUp, LabelFallback:
			continue
		}
		out = append(out, l)
	}
	return out
}

// Topic returns the conversation topic a label belongs to.
func (l Label) Topic() string {
	switch l {
	case LabelCPFBlockedInformed, LabelCPFBlockedEscalate, LabelCPFDelayFiltering, LabelCPFDelayNormal:
		return "cpf"
	case LabelOPCODelayExceeded, LabelOPCODelayNormal, LabelDirectDelayExceeded, LabelDirectDelayNormal,
		LabelPaymentFollowUp, LabelPaymentExternal, LabelPaymentAskInfo, LabelPaymentAskDelay, LabelPaymentAskFinancing:
		return "payment"
	case LabelAmbassadorSteps, LabelAmbassadorDeclined, LabelAmbassadorPitch:
		return "ambassador"
	}
	return ""
}

// Escalation is the team a conversation is handed to.
type Escalation string

const (
	EscalationNone      Escalation = ""
	EscalationAdmin     Escalation = "admin"
	EscalationTechnical Escalation = "technical"
)

// Outcome is how the reply text is obtained. It is one of Reply, External
// or Defer.
type Outcome interface {
	outcome()
}

// Reply answers with canned text.
type Reply struct{ Text string }

// External answers with the externally supplied candidate verbatim.
type External struct{ Text string }

// Defer leaves the reply to generation.
type Defer struct{}

func (Reply) outcome()    {}
func (External) outcome() {}
func (Defer) outcome()    {}

// Decision is the single result of routing one message.
type Decision struct {
	Label      Label
	Rule       string
	Outcome    Outcome
	Marker     transcript.Marker
	Escalation Escalation
}

// UseExternalReply reports whether the candidate reply is used as-is.
func (d Decision) UseExternalReply() bool {
	_, ok := d.Outcome.(External)
	return ok
}

// ReplyText returns the decided text, or false when generation must
// compose it.
func (d Decision) ReplyText() (string, bool) {
	switch o := d.Outcome.(type) {
	case Reply:
		return o.Text, true
	case External:
		return o.Text, true
	}
	return "", false
}

// Deferred reports whether generation must compose the reply.
func (d Decision) Deferred() bool {
	_, ok := d.Outcome.(Defer)
	return ok
}

// AwaitingFlagToSet is the question this reply leaves open.
func (d Decision) AwaitingFlagToSet() transcript.Awaiting {
	return d.Marker.Awaiting
}

// Escalate reports whether a human must take over.
func (d Decision) Escalate() bool {
	return d.Escalation != EscalationNone
}

// EscalationType is the team to hand over to, if any.
func (d Decision) EscalationType() Escalation {
	return d.Escalation
}
