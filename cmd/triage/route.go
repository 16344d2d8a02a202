package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/triage/internal/config"
	"github.com/MikeSquared-Agency/triage/internal/engine"
	"github.com/MikeSquared-Agency/triage/internal/textnorm"
)

var routeFlags struct {
	external string
}

var routeCmd = &cobra.Command{
	Use:   "route <message>",
	Short: "Print the decision for a single message on an empty conversation",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRoute,
}

func init() {
	routeCmd.Flags().StringVar(&routeFlags.external, "external", "", "Candidate reply produced upstream")
}

func runRoute(cmd *cobra.Command, args []string) error {
	c, err := buildCore(config.Load())
	if err != nil {
		return err
	}
	return route(cmd.OutOrStdout(), c, strings.Join(args, " "), routeFlags.external)
}

type routeOutput struct {
	Label      engine.Label `json:"label"`
	Rule       string       `json:"rule"`
	Reply      *string      `json:"reply"`
	Deferred   bool         `json:"deferred"`
	Escalation string       `json:"escalation,omitempty"`
	Awaiting   string       `json:"awaiting,omitempty"`
	Financing  string       `json:"financing,omitempty"`
	Months     *float64     `json:"delay_months,omitempty"`
}

func route(out io.Writer, c *core, message, external string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("message is required")
	}
	dctx := c.context.Reconstruct(nil, textnorm.New(message))
	d := c.engine.Route(message, external, dctx)

	o := routeOutput{
		Label:      d.Label,
		Rule:       d.Rule,
		Deferred:   d.Deferred(),
		Escalation: string(d.EscalationType()),
		Awaiting:   string(d.AwaitingFlagToSet()),
		Financing:  d.Marker.Financing,
		Months:     d.Marker.DelayMonths,
	}
	if text, ok := d.ReplyText(); ok {
		o.Reply = &text
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(o)
}
