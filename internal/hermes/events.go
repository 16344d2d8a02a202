package hermes

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Subjects used by the triage service.
const (
	SubjectEscalation   = "swarm.triage.escalation"
	SubjectDecision     = "swarm.triage.decision"
	SubjectSessionReset = "swarm.triage.session.reset"
)

// EscalationEvent announces that a conversation needs a human.
type EscalationEvent struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Label     string    `json:"label"`
	Type      string    `json:"escalation_type"`
	Message   string    `json:"message"`
	Reply     string    `json:"reply"`
	CreatedAt time.Time `json:"created_at"`
}

// NewEscalationEvent stamps an event with a fresh ID and time.
func NewEscalationEvent(sessionID, label, escalationType, message, reply string) EscalationEvent {
	return EscalationEvent{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Label:     label,
		Type:      escalationType,
		Message:   message,
		Reply:     reply,
		CreatedAt: time.Now().UTC(),
	}
}

// DecisionEvent is published for every processed turn.
type DecisionEvent struct {
	SessionID  string `json:"session_id"`
	Label      string `json:"label"`
	Rule       string `json:"rule"`
	Source     string `json:"source"`
	Awaiting   string `json:"awaiting,omitempty"`
	Escalation string `json:"escalation_type,omitempty"`
	Deferred   bool   `json:"deferred"`
	TurnCount  int    `json:"turn_count"`
}

// ResetRequest clears one session, or every session when SessionID is
// empty.
type ResetRequest struct {
	SessionID string `json:"session_id"`
}

// ParseReset decodes a reset request. An empty payload resets everything.
func ParseReset(data []byte) (ResetRequest, error) {
	var req ResetRequest
	if len(data) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("parse reset request: %w", err)
	}
	return req, nil
}
