// Package extract pulls the facts the decision rules need out of a single
// message: financing type, elapsed delay, hostility and follow-up cues.
//
// Methods on Extractor take the key form of a message (see textnorm.Key).
// The package-level helpers accept raw text and use the embedded lexicon.
package extract

import (
	"github.com/MikeSquared-Agency/triage/internal/lexicon"
	"github.com/MikeSquared-Agency/triage/internal/textnorm"
)

// Extractor matches messages against one lexicon.
type Extractor struct {
	lx    *lexicon.Lexicon
	delay *delayMatcher
}

// New compiles an Extractor for lx.
func New(lx *lexicon.Lexicon) *Extractor {
	return &Extractor{lx: lx, delay: newDelayMatcher(lx.Delay)}
}

// Lexicon returns the tables the extractor was built from.
func (e *Extractor) Lexicon() *lexicon.Lexicon {
	return e.lx
}

var std = New(lexicon.Default())

// Default returns the extractor over the embedded lexicon.
func Default() *Extractor {
	return std
}

// HasPayment reports whether key mentions payment or a missing transfer.
func (e *Extractor) HasPayment(key string) bool {
	return e.lx.Payment.Any(key)
}

// followUpMaxTokens bounds how long a message may be for a single cue word
// ("et", "ok") to mark it as a follow-up. Multi-word cues match anywhere.
const followUpMaxTokens = 6

// IsFollowUp reports whether key reads as a continuation of the previous
// exchange rather than a new request.
func (e *Extractor) IsFollowUp(key string) bool {
	tokens := textnorm.Tokens(key)
	if len(tokens) == 0 {
		return false
	}
	short := len(tokens) <= followUpMaxTokens
	for _, p := range e.lx.FollowUp {
		if !p.In(key) {
			continue
		}
		if isPhrase(p.Text) || short {
			return true
		}
	}
	return false
}

func isPhrase(s string) bool {
	for _, r := range s {
		if !lexicon.IsWordRune(r) {
			return true
		}
	}
	return false
}

// Financing classifies raw text with the embedded lexicon.
func Financing(raw string) FinancingType {
	return std.Financing(textnorm.Key(raw))
}

// FindDelay extracts a delay from raw text with the embedded lexicon.
func FindDelay(raw string) (Delay, bool) {
	return std.FindDelay(textnorm.Key(raw))
}

// DelayMonths returns the delay in raw text expressed in months.
func DelayMonths(raw string) (float64, bool) {
	d, ok := FindDelay(raw)
	if !ok {
		return 0, false
	}
	return d.Months(), true
}

// DelayDays returns the delay in raw text expressed in whole days.
func DelayDays(raw string) (int, bool) {
	d, ok := FindDelay(raw)
	if !ok {
		return 0, false
	}
	return d.Days(), true
}

// IsAggressive reports whether raw text contains hostile language.
func IsAggressive(raw string) bool {
	return std.IsAggressive(textnorm.Key(raw))
}

// IsFollowUp reports whether raw text reads as a follow-up.
func IsFollowUp(raw string) bool {
	return std.IsFollowUp(textnorm.Key(raw))
}
