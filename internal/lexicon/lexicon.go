// Package lexicon loads the keyword and phrase tables the extractors and the
// decision rules match against.
package lexicon

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/MikeSquared-Agency/triage/internal/textnorm"
)

//go:embed lexicon.yaml
var defaultYAML []byte

// Pattern is one compiled table entry. Text is in key form (normalized and
// accent-folded). Left and Right require a word boundary on that side.
type Pattern struct {
	Text  string
	Left  bool
	Right bool
}

// Compile parses the entry syntax: "foo" is bounded on both sides, "foo*"
// is a word prefix and "*foo*" a raw substring.
func Compile(entry string) Pattern {
	p := Pattern{
		Left:  !strings.HasPrefix(entry, "*"),
		Right: !strings.HasSuffix(entry, "*"),
	}
	p.Text = textnorm.Key(strings.Trim(entry, "*"))
	return p
}

// In reports whether the pattern occurs in key.
func (p Pattern) In(key string) bool {
	if p.Text == "" {
		return false
	}
	for i := 0; i <= len(key); {
		j := strings.Index(key[i:], p.Text)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(p.Text)
		if (!p.Left || boundaryBefore(key, start)) && (!p.Right || boundaryAfter(key, end)) {
			return true
		}
		_, size := utf8.DecodeRuneInString(key[start:])
		i = start + size
	}
	return false
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !IsWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !IsWordRune(r)
}

// IsWordRune reports whether r is part of a word for boundary purposes.
func IsWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Terms is an ordered list of patterns.
type Terms []Pattern

func compileAll(entries []string) Terms {
	out := make(Terms, 0, len(entries))
	for _, e := range entries {
		p := Compile(e)
		if p.Text != "" {
			out = append(out, p)
		}
	}
	return out
}

// Match returns the first pattern found in key.
func (t Terms) Match(key string) (string, bool) {
	for _, p := range t {
		if p.In(key) {
			return p.Text, true
		}
	}
	return "", false
}

// Any reports whether any pattern occurs in key.
func (t Terms) Any(key string) bool {
	_, ok := t.Match(key)
	return ok
}

// HostileTerm is one aggressiveness entry.
type HostileTerm struct {
	Term     Pattern
	Exclude  Terms
	Isolated bool
	Benign   Terms
}

// Delay holds the vocabulary the delay extractor builds its patterns from.
// Followers are the words allowed after a bare number in the time-relative
// pattern; entries ending in an apostrophe match elisions.
type Delay struct {
	Prefixes      []string
	Suffixes      []string
	Months        []string
	Weeks         []string
	Days          []string
	Followers     []string
	NumberWords   map[string]int
	BareNumberMax int
}

// Lexicon is the compiled table set.
type Lexicon struct {
	CPF            Terms
	OPCO           Terms
	Direct         Terms
	PaymentVerbs   Terms
	SelfReferences Terms

	Delay Delay

	Aggression []HostileTerm
	Payment    Terms
	FollowUp   Terms

	EscalationAdmin     Terms
	EscalationTechnical Terms
	GenericReplies      Terms

	Yes Terms
	No  Terms

	Ambassador      Terms
	AmbassadorHowTo Terms

	CPFConfirmationMarker        Terms
	FinancingQuestionMarker      Terms
	TimingQuestionMarker         Terms
	AmbassadorConfirmationMarker Terms
	AmbassadorExplainedMarker    Terms

	AmbassadorTopic Terms
	CPFTopic        Terms
	PaymentTopic    Terms
}

type rawFile struct {
	Financing struct {
		CPF      []string `yaml:"cpf"`
		OPCO     []string `yaml:"opco"`
		Direct   []string `yaml:"direct"`
		Fallback struct {
			PaymentVerbs   []string `yaml:"payment_verbs"`
			SelfReferences []string `yaml:"self_references"`
		} `yaml:"fallback"`
	} `yaml:"financing"`
	Delay struct {
		Prefixes []string `yaml:"prefixes"`
		Suffixes []string `yaml:"suffixes"`
		Units    struct {
			Months []string `yaml:"months"`
			Weeks  []string `yaml:"weeks"`
			Days   []string `yaml:"days"`
		} `yaml:"units"`
		Followers     []string       `yaml:"relative_followers"`
		BareNumberMax int            `yaml:"bare_number_max"`
		NumberWords   map[string]int `yaml:"number_words"`
	} `yaml:"delay"`
	Aggression []struct {
		Term     string   `yaml:"term"`
		Exclude  []string `yaml:"exclude"`
		Isolated bool     `yaml:"isolated"`
		Benign   []string `yaml:"benign"`
	} `yaml:"aggression"`
	Payment    []string `yaml:"payment"`
	FollowUp   []string `yaml:"follow_up"`
	Escalation struct {
		Admin     []string `yaml:"admin"`
		Technical []string `yaml:"technical"`
	} `yaml:"escalation"`
	GenericReplies []string `yaml:"generic_replies"`
	Confirmation   struct {
		Yes []string `yaml:"yes"`
		No  []string `yaml:"no"`
	} `yaml:"confirmation"`
	Ambassador struct {
		Keywords []string `yaml:"keywords"`
		HowTo    []string `yaml:"how_to"`
	} `yaml:"ambassador"`
	Markers struct {
		CPFConfirmation        []string `yaml:"cpf_confirmation"`
		FinancingQuestion      []string `yaml:"financing_question"`
		TimingQuestion         []string `yaml:"timing_question"`
		AmbassadorConfirmation []string `yaml:"ambassador_confirmation"`
		AmbassadorExplained    []string `yaml:"ambassador_explained"`
		Topics                 struct {
			Ambassador []string `yaml:"ambassador"`
			CPF        []string `yaml:"cpf"`
			Payment    []string `yaml:"payment"`
		} `yaml:"topics"`
	} `yaml:"markers"`
}

// Parse compiles a lexicon from YAML.
func Parse(data []byte) (*Lexicon, error) {
	var raw rawFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w", err)
	}
	if len(raw.Financing.CPF) == 0 || len(raw.Delay.Units.Months) == 0 {
		return nil, fmt.Errorf("parse lexicon: financing and delay sections are required")
	}

	lx := &Lexicon{
		CPF:            compileAll(raw.Financing.CPF),
		OPCO:           compileAll(raw.Financing.OPCO),
		Direct:         compileAll(raw.Financing.Direct),
		PaymentVerbs:   compileAll(raw.Financing.Fallback.PaymentVerbs),
		SelfReferences: compileAll(raw.Financing.Fallback.SelfReferences),

		Delay: Delay{
			Prefixes:      keys(raw.Delay.Prefixes),
			Suffixes:      keys(raw.Delay.Suffixes),
			Months:        keys(raw.Delay.Units.Months),
			Weeks:         keys(raw.Delay.Units.Weeks),
			Days:          keys(raw.Delay.Units.Days),
			Followers:     keys(raw.Delay.Followers),
			NumberWords:   make(map[string]int, len(raw.Delay.NumberWords)),
			BareNumberMax: raw.Delay.BareNumberMax,
		},

		Payment:             compileAll(raw.Payment),
		FollowUp:            compileAll(raw.FollowUp),
		EscalationAdmin:     compileAll(raw.Escalation.Admin),
		EscalationTechnical: compileAll(raw.Escalation.Technical),
		GenericReplies:      compileAll(raw.GenericReplies),
		Yes:                 compileAll(raw.Confirmation.Yes),
		No:                  compileAll(raw.Confirmation.No),
		Ambassador:          compileAll(raw.Ambassador.Keywords),
		AmbassadorHowTo:     compileAll(raw.Ambassador.HowTo),

		CPFConfirmationMarker:        compileAll(raw.Markers.CPFConfirmation),
		FinancingQuestionMarker:      compileAll(raw.Markers.FinancingQuestion),
		TimingQuestionMarker:         compileAll(raw.Markers.TimingQuestion),
		AmbassadorConfirmationMarker: compileAll(raw.Markers.AmbassadorConfirmation),
		AmbassadorExplainedMarker:    compileAll(raw.Markers.AmbassadorExplained),

		AmbassadorTopic: compileAll(raw.Markers.Topics.Ambassador),
		CPFTopic:        compileAll(raw.Markers.Topics.CPF),
		PaymentTopic:    compileAll(raw.Markers.Topics.Payment),
	}
	if lx.Delay.BareNumberMax <= 0 {
		lx.Delay.BareNumberMax = 60
	}
	for w, n := range raw.Delay.NumberWords {
		lx.Delay.NumberWords[textnorm.Key(w)] = n
	}

	for _, a := range raw.Aggression {
		term := Compile(a.Term)
		if term.Text == "" {
			continue
		}
		lx.Aggression = append(lx.Aggression, HostileTerm{
			Term:     term,
			Exclude:  compileAll(a.Exclude),
			Isolated: a.Isolated,
			Benign:   compileAll(a.Benign),
		})
	}
	return lx, nil
}

// keys folds entries and orders them longest first so regexp alternations
// prefer the longest phrase.
func keys(entries []string) []string {
	out := make([]string, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		k := textnorm.Key(e)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

// Load returns the lexicon at path, or the embedded default when path is
// empty.
func Load(path string) (*Lexicon, error) {
	if path == "" {
		return Parse(defaultYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon %s: %w", path, err)
	}
	return Parse(data)
}

var embedded = mustParse(defaultYAML)

func mustParse(data []byte) *Lexicon {
	lx, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return lx
}

// Default returns the embedded lexicon.
func Default() *Lexicon {
	return embedded
}
