// Package transcript defines conversation turns, the metadata agent turns
// carry, and the store contract the processor persists them through.
package transcript

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Role identifies who wrote a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Awaiting names the question an agent turn left open.
type Awaiting string

const (
	AwaitingNone                   Awaiting = ""
	AwaitingCPFConfirmation        Awaiting = "cpf_confirmation"
	AwaitingFinancingType          Awaiting = "financing_type"
	AwaitingTimingInfo             Awaiting = "timing_info"
	AwaitingAmbassadorConfirmation Awaiting = "ambassador_confirmation"
)

// Valid reports whether a is one of the known values.
func (a Awaiting) Valid() bool {
	switch a {
	case AwaitingNone, AwaitingCPFConfirmation, AwaitingFinancingType, AwaitingTimingInfo, AwaitingAmbassadorConfirmation:
		return true
	}
	return false
}

// Marker is the decision state recorded on an agent turn. When present it
// is authoritative for what the next user message is answering.
type Marker struct {
	Label       string   `json:"label"`
	Topic       string   `json:"topic,omitempty"`
	Awaiting    Awaiting `json:"awaiting,omitempty"`
	Financing   string   `json:"financing,omitempty"`
	DelayMonths *float64 `json:"delay_months,omitempty"`
	DelayDays   *int     `json:"delay_days,omitempty"`
}

// Turn is one message in a session. Turns are immutable once appended.
type Turn struct {
	ID        uuid.UUID `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Sequence  int64     `json:"sequence"`
	Marker    *Marker   `json:"marker,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// UserTurn builds an unsaved user turn.
func UserTurn(text string) Turn {
	return Turn{ID: uuid.New(), Role: RoleUser, Text: text, CreatedAt: time.Now().UTC()}
}

// AgentTurn builds an unsaved agent turn carrying m.
func AgentTurn(text string, m *Marker) Turn {
	return Turn{ID: uuid.New(), Role: RoleAgent, Text: text, Marker: m, CreatedAt: time.Now().UTC()}
}

// Store persists bounded, append-only transcripts keyed by session.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append stores turns in order, assigning increasing sequence numbers,
	// then trims the session to the store's bound.
	Append(ctx context.Context, sessionID string, turns ...Turn) error
	// Read returns the most recent limit turns oldest first. limit <= 0
	// returns every retained turn.
	Read(ctx context.Context, sessionID string, limit int) ([]Turn, error)
	Clear(ctx context.Context, sessionID string) error
	ClearAll(ctx context.Context) error
}

// SessionCounter is implemented by stores that can count live sessions.
type SessionCounter interface {
	Sessions(ctx context.Context) (int, error)
}

// DefaultMaxTurns is the retained transcript length per session.
const DefaultMaxTurns = 15

// Summary describes a transcript's size.
type Summary struct {
	Total int `json:"total_messages"`
	User  int `json:"user_messages"`
	Agent int `json:"ai_messages"`
	Chars int `json:"memory_size_chars"`
}

// Summarize counts turns by role and total characters.
func Summarize(turns []Turn) Summary {
	s := Summary{Total: len(turns)}
	for _, t := range turns {
		switch t.Role {
		case RoleUser:
			s.User++
		case RoleAgent:
			s.Agent++
		}
		s.Chars += utf8.RuneCountInString(t.Text)
	}
	return s
}

// Tail returns the last n turns of turns, or all of them when n <= 0.
func Tail(turns []Turn, n int) []Turn {
	if n <= 0 || len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}
