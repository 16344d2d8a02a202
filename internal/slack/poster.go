package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

// maxQuoted bounds how much of a user message is quoted in an alert.
const maxQuoted = 500

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// Escalation is what the support team needs to pick a conversation up.
type Escalation struct {
	SessionID string
	Label     string
	Type      string
	Message   string
	Reply     string
}

// PostEscalation alerts the escalation channel and returns the message ts.
func (p *Poster) PostEscalation(ctx context.Context, e Escalation) (string, error) {
	text := formatEscalation(e)
	ts, err := p.post(ctx, map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{"type": "mrkdwn", "text": text},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{"type": "mrkdwn", "text": fmt.Sprintf("Session `%s` | label `%s`", e.SessionID, e.Label)},
				},
			},
		},
	})
	if err != nil {
		return "", err
	}
	p.logger.Info("posted escalation to slack", "ts", ts, "session_id", e.SessionID, "label", e.Label)
	return ts, nil
}

func (p *Poster) post(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}
	return slackResp.TS, nil
}

func formatEscalation(e Escalation) string {
	var sb strings.Builder

	team := "admin"
	if e.Type == "technical" {
		team = "technique"
	}
	fmt.Fprintf(&sb, ":rotating_light: *Escalade %s* (%s)\n", team, e.Label)
	fmt.Fprintf(&sb, "*Session:* %s\n\n", e.SessionID)

	msg := []rune(strings.TrimSpace(e.Message))
	if len(msg) > maxQuoted {
		msg = append(msg[:maxQuoted], '…')
	}
	fmt.Fprintf(&sb, "*Message:*\n> %s\n", strings.ReplaceAll(string(msg), "\n", "\n> "))
	if e.Reply != "" {
		fmt.Fprintf(&sb, "\n*Réponse envoyée:*\n> %s", strings.ReplaceAll(strings.TrimSpace(e.Reply), "\n", "\n> "))
	}
	return sb.String()
}
