package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestComplete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("expected x-api-key test-key, got %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("expected anthropic-version 2023-06-01, got %q", r.Header.Get("anthropic-version"))
		}

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("expected model test-model, got %q", req.Model)
		}
		if req.System != "tu es un assistant" {
			t.Errorf("expected system prompt, got %q", req.System)
		}
		if len(req.Messages) != 2 || req.Messages[1].Content != "où en est mon paiement ?" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		if req.MaxTokens != 300 {
			t.Errorf("expected max_tokens 300, got %d", req.MaxTokens)
		}

		json.NewEncoder(w).Encode(response{
			Content: []contentBlock{
				{Type: "text", Text: "Salut, "},
				{Type: "tool_use"},
				{Type: "text", Text: "je regarde ça."},
			},
			StopReason: "end_turn",
		})
	}))
	defer server.Close()

	c := NewClient("test-key", "test-model", WithURL(server.URL))
	msgs := []Message{
		{Role: "assistant", Content: "Salut 👋"},
		{Role: "user", Content: "où en est mon paiement ?"},
	}
	result, err := c.Complete(context.Background(), "tu es un assistant", msgs, 300)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "Salut, je regarde ça." {
		t.Errorf("unexpected result %q", result)
	}
	if c.Model() != "test-model" {
		t.Errorf("Model() = %q", c.Model())
	}
}

func TestComplete_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"type":    "invalid_request_error",
				"message": "max_tokens is too large",
			},
		})
	}))
	defer server.Close()

	c := NewClient("test-key", "test-model", WithURL(server.URL))
	_, err := c.Complete(context.Background(), "", []Message{{Role: "user", Content: "hi"}}, 100)
	if err == nil {
		t.Fatal("expected error for API error response")
	}
	if !strings.Contains(err.Error(), "invalid_request_error") {
		t.Errorf("error should carry the API error type: %v", err)
	}
}

func TestComplete_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(response{StopReason: "end_turn"})
	}))
	defer server.Close()

	c := NewClient("test-key", "test-model", WithURL(server.URL))
	_, err := c.Complete(context.Background(), "", []Message{{Role: "user", Content: "hi"}}, 100)
	if !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
}

func TestComplete_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewClient("test-key", "test-model", WithURL(server.URL))
	if _, err := c.Complete(ctx, "", []Message{{Role: "user", Content: "hi"}}, 100); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
