package extract

import "github.com/MikeSquared-Agency/triage/internal/lexicon"

// IsAggressive reports whether key contains a hostile term. Plain terms are
// vetoed by a co-occurring exclusion. Isolated terms must stand alone as a
// word and are vetoed when a benign phrase containing them is present.
func (e *Extractor) IsAggressive(key string) bool {
	if key == "" {
		return false
	}
	for _, h := range e.lx.Aggression {
		if h.Isolated {
			word := lexicon.Pattern{Text: h.Term.Text, Left: true, Right: true}
			if word.In(key) && !h.Benign.Any(key) {
				return true
			}
			continue
		}
		if h.Term.In(key) && !h.Exclude.Any(key) {
			return true
		}
	}
	return false
}
