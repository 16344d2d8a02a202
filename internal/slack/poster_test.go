package slack

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFormatEscalation(t *testing.T) {
	msg := formatEscalation(Escalation{
		SessionID: "33612345678",
		Label:     "OPCO_DELAI_DEPASSE",
		Type:      "admin",
		Message:   "ça fait 3 mois\nque j'attends",
		Reply:     "Je transmets ta demande",
	})

	checks := []string{
		"Escalade admin",
		"OPCO_DELAI_DEPASSE",
		"33612345678",
		"> ça fait 3 mois\n> que j'attends",
		"Je transmets ta demande",
	}
	for _, check := range checks {
		if !strings.Contains(msg, check) {
			t.Errorf("expected message to contain %q, got:\n%s", check, msg)
		}
	}
}

func TestFormatEscalation_TechnicalAndTruncated(t *testing.T) {
	msg := formatEscalation(Escalation{Type: "technical", Message: strings.Repeat("é", maxQuoted+10)})
	if !strings.Contains(msg, "Escalade technique") {
		t.Errorf("expected technical team, got %q", msg)
	}
	if !strings.Contains(msg, "…") || strings.Count(msg, "é") != maxQuoted {
		t.Error("expected message truncated on a rune boundary")
	}
	if strings.Contains(msg, "Réponse envoyée") {
		t.Error("reply section should be omitted when empty")
	}
}

func TestPostEscalation_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer xoxb-test" {
			t.Errorf("expected Bearer xoxb-test, got %q", r.Header.Get("Authorization"))
		}

		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		json.Unmarshal(body, &payload)

		if payload["channel"] != "C123" {
			t.Errorf("expected channel C123, got %v", payload["channel"])
		}
		if blocks, ok := payload["blocks"].([]any); !ok || len(blocks) != 2 {
			t.Errorf("expected 2 blocks, got %v", payload["blocks"])
		}

		json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"ts": "1234567890.123456",
		})
	}))
	defer server.Close()

	p := NewPoster("xoxb-test", "C123", discardLogger())
	p.apiURL = server.URL

	ts, err := p.PostEscalation(context.Background(), Escalation{SessionID: "s", Label: "ESCALADE_ADMIN", Type: "admin", Message: "plainte"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts != "1234567890.123456" {
		t.Errorf("expected ts 1234567890.123456, got %q", ts)
	}
}

func TestPostEscalation_SlackError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"ok":    false,
			"error": "channel_not_found",
		})
	}))
	defer server.Close()

	p := NewPoster("xoxb-test", "C123", discardLogger())
	p.apiURL = server.URL

	_, err := p.PostEscalation(context.Background(), Escalation{SessionID: "s"})
	if err == nil || !strings.Contains(err.Error(), "channel_not_found") {
		t.Fatalf("expected slack error, got %v", err)
	}
}
