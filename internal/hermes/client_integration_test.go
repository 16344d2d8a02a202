//go:build integration

package hermes

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"
)

func skipWithoutNATS(t *testing.T) string {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set, skipping integration test")
	}
	return url
}

func TestIntegration_EscalationRoundTrip(t *testing.T) {
	natsURL := skipWithoutNATS(t)
	ctx := context.Background()

	client, err := NewClient(ctx, natsURL, os.Getenv("NATS_TOKEN"), slog.Default())
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer client.Close()

	received := make(chan EscalationEvent, 1)
	err = client.Subscribe(SubjectEscalation, func(subject string, data []byte) {
		var evt EscalationEvent
		if err := json.Unmarshal(data, &evt); err == nil {
			received <- evt
		}
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if err := client.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	sent := NewEscalationEvent("integration", "ESCALADE_ADMIN", "admin", "je vais porter plainte", "Je transmets")
	if err := client.Publish(SubjectEscalation, sent); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case evt := <-received:
		if evt.ID != sent.ID || evt.Type != "admin" {
			t.Errorf("unexpected event %+v", evt)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for escalation")
	}
}
