package extract

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/MikeSquared-Agency/triage/internal/lexicon"
)

// Unit is the time unit a delay was stated in.
type Unit int

const (
	UnitDays Unit = iota + 1
	UnitWeeks
	UnitMonths
)

func (u Unit) String() string {
	switch u {
	case UnitDays:
		return "days"
	case UnitWeeks:
		return "weeks"
	case UnitMonths:
		return "months"
	}
	return "unknown"
}

const (
	weeksPerMonth = 4.33
	daysPerMonth  = 30
	daysPerWeek   = 7
)

// Delay is an elapsed duration as the user stated it.
type Delay struct {
	Amount float64
	Unit   Unit
}

// Months converts the delay to months without flooring.
func (d Delay) Months() float64 {
	switch d.Unit {
	case UnitWeeks:
		return d.Amount / weeksPerMonth
	case UnitDays:
		return d.Amount / daysPerMonth
	}
	return d.Amount
}

// Days converts the delay to whole days from the original unit.
func (d Delay) Days() int {
	switch d.Unit {
	case UnitWeeks:
		return int(math.Round(d.Amount * daysPerWeek))
	case UnitMonths:
		return int(math.Round(d.Amount * daysPerMonth))
	}
	return int(math.Round(d.Amount))
}

const (
	leftBound  = `(?:^|[^\p{L}\p{N}])`
	rightBound = `(?:$|[^\p{L}\p{N}])`
	digits     = `\d+(?:[.,]\d+)?`

	// unitBound also refuses an apostrophe so the elided "j'" is not days.
	unitBound = `(?:$|[^\p{L}\p{N}'])`
)

type delayMatcher struct {
	prefixed *regexp.Regexp
	suffixed *regexp.Regexp
	bare     *regexp.Regexp
	relative *regexp.Regexp

	units     map[string]Unit
	words     map[string]int
	followers map[string]bool
	elisions  []string
	max       float64
}

func newDelayMatcher(d lexicon.Delay) *delayMatcher {
	m := &delayMatcher{
		units:     make(map[string]Unit),
		words:     d.NumberWords,
		followers: make(map[string]bool, len(d.Followers)),
		max:       float64(d.BareNumberMax),
	}
	var units []string
	for _, set := range []struct {
		words []string
		unit  Unit
	}{{d.Months, UnitMonths}, {d.Weeks, UnitWeeks}, {d.Days, UnitDays}} {
		for _, w := range set.words {
			if _, dup := m.units[w]; !dup {
				m.units[w] = set.unit
				units = append(units, w)
			}
		}
	}
	for _, w := range d.Followers {
		if strings.HasSuffix(w, "'") {
			m.elisions = append(m.elisions, w)
			continue
		}
		m.followers[w] = true
	}

	numberWords := make([]string, 0, len(d.NumberWords))
	for w := range d.NumberWords {
		numberWords = append(numberWords, w)
	}

	num := `(` + digits
	if len(numberWords) > 0 {
		num += `|` + alternation(numberWords)
	}
	num += `)`
	unit := `(` + alternation(units) + `)`
	prefix := `(?:` + alternation(d.Prefixes) + `)`

	m.prefixed = regexp.MustCompile(leftBound + prefix + `\s+` + num + `\s*` + unit + unitBound)
	if len(d.Suffixes) > 0 {
		m.suffixed = regexp.MustCompile(leftBound + num + `\s*` + unit + `\s+(?:` + alternation(d.Suffixes) + `)` + rightBound)
	}
	m.bare = regexp.MustCompile(leftBound + num + `\s*` + unit + unitBound)
	m.relative = regexp.MustCompile(leftBound + prefix + `\s+(` + digits + `)(?:\s*([\p{L}\p{N}']+))?`)
	return m
}

// alternation quotes words and joins them longest first so the leftmost
// match prefers the longest phrase.
func alternation(words []string) string {
	sorted := append([]string(nil), words...)
	sort.Slice(sorted, func(i, j int) bool {
		if len(sorted[i]) != len(sorted[j]) {
			return len(sorted[i]) > len(sorted[j])
		}
		return sorted[i] < sorted[j]
	})
	quoted := make([]string, 0, len(sorted))
	for _, w := range sorted {
		if w != "" {
			quoted = append(quoted, regexp.QuoteMeta(w))
		}
	}
	if len(quoted) == 0 {
		return `\x00`
	}
	return strings.Join(quoted, "|")
}

// FindDelay extracts the first stated delay from key. Patterns are tried in
// order: prefixed ("depuis 3 mois"), suffixed ("2 semaines de retard"),
// bare ("10 jours"), then a time-relative prefix with a bare number read as
// months ("ça fait 3 que j'attends"). The bare number must end the text, be
// followed by punctuation, or be followed by a function word; "il y a 3
// erreurs" is not a delay.
func (e *Extractor) FindDelay(key string) (Delay, bool) {
	if key == "" {
		return Delay{}, false
	}
	m := e.delay
	for _, re := range []*regexp.Regexp{m.prefixed, m.suffixed, m.bare} {
		if re == nil {
			continue
		}
		for _, sub := range re.FindAllStringSubmatch(key, -1) {
			amount, ok := m.amount(sub[1])
			if !ok {
				continue
			}
			return Delay{Amount: amount, Unit: m.units[sub[2]]}, true
		}
	}
	for _, sub := range m.relative.FindAllStringSubmatch(key, -1) {
		if !m.follows(sub[2]) {
			continue
		}
		amount, ok := m.amount(sub[1])
		if !ok || amount > m.max {
			continue
		}
		return Delay{Amount: amount, Unit: UnitMonths}, true
	}
	return Delay{}, false
}

func (m *delayMatcher) amount(s string) (float64, bool) {
	if n, ok := m.words[s]; ok {
		return float64(n), n >= 0
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return f, true
}

// follows reports whether word may follow a bare number read as months.
// An empty word means the number ended the text or met punctuation.
func (m *delayMatcher) follows(word string) bool {
	if word == "" || m.followers[word] {
		return true
	}
	for _, e := range m.elisions {
		if strings.HasPrefix(word, e) {
			return true
		}
	}
	return false
}
