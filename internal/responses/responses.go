// Package responses holds the canned reply text for each decision label.
package responses

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MikeSquared-Agency/triage/internal/engine"
)

//go:embed responses.yaml
var defaultYAML []byte

// Catalog maps labels to reply text.
type Catalog struct {
	labels          map[engine.Label]string
	holding         string
	holdingGreeting string
	errorText       string
}

type rawCatalog struct {
	Holding         string            `yaml:"holding"`
	HoldingGreeting string            `yaml:"holding_greeting"`
	Error           string            `yaml:"error"`
	Labels          map[string]string `yaml:"labels"`
}

// Parse builds a catalog from YAML. Every label that needs canned text must
// be present.
func Parse(data []byte) (*Catalog, error) {
	var raw rawCatalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse responses: %w", err)
	}
	c := &Catalog{
		labels:          make(map[engine.Label]string, len(raw.Labels)),
		holding:         strings.TrimSpace(raw.Holding),
		holdingGreeting: strings.TrimSpace(raw.HoldingGreeting),
		errorText:       strings.TrimSpace(raw.Error),
	}
	for k, v := range raw.Labels {
		c.labels[engine.Label(k)] = strings.TrimSpace(v)
	}
	if c.holding == "" {
		return nil, fmt.Errorf("parse responses: holding text is required")
	}
	if c.holdingGreeting == "" {
		c.holdingGreeting = c.holding
	}
	if c.errorText == "" {
		c.errorText = c.holdingGreeting
	}
	if missing := c.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("parse responses: missing text for %v", missing)
	}
	return c, nil
}

// Load reads the catalog at path, or the embedded default when path is
// empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Parse(defaultYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read responses %s: %w", path, err)
	}
	return Parse(data)
}

// Missing lists canned labels without text.
func (c *Catalog) Missing() []engine.Label {
	var out []engine.Label
	for _, l := range engine.CannedLabels() {
		if c.labels[l] == "" {
			out = append(out, l)
		}
	}
	return out
}

// Text returns the reply for label, falling back to the holding reply.
func (c *Catalog) Text(label engine.Label) string {
	if t, ok := c.labels[label]; ok && t != "" {
		return t
	}
	return c.holding
}

// Holding is sent when no other text is available. The greeting variant
// opens a new conversation.
func (c *Catalog) Holding(greeting bool) string {
	if greeting {
		return c.holdingGreeting
	}
	return c.holding
}

// ErrorText is sent when a turn fails unexpectedly.
func (c *Catalog) ErrorText() string {
	return c.errorText
}
