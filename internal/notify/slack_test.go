package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSlack_Send(t *testing.T) {
	var received map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	slack := NewSlackWithClient(server.URL, server.Client())
	if err := slack.Send(context.Background(), callAction()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text, _ := received["text"].(string)
	if !strings.Contains(text, ":rotating_light:") || !strings.Contains(text, "Calling Mom") {
		t.Errorf("unexpected text: %q", text)
	}

	blocks, ok := received["blocks"].([]any)
	if !ok || len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %v", received["blocks"])
	}
	ctxBlock := blocks[1].(map[string]any)
	elements := ctxBlock["elements"].([]any)
	if len(elements) != 4 {
		t.Errorf("expected 4 context fields including phone, got %d", len(elements))
	}
}

func TestSlack_SendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	if err := NewSlack(server.URL).Send(context.Background(), messageAction()); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestSlack_Name(t *testing.T) {
	if NewSlack("http://x").Name() != "slack" {
		t.Error("expected 'slack'")
	}
}
