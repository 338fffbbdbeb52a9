package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestWebhookSink_PostsEmbed(t *testing.T) {
	var mu sync.Mutex
	var received webhookPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %s, want application/json", ct)
		}
		mu.Lock()
		defer mu.Unlock()
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sink, err := NewWebhookSink(WebhookSinkConfig{URL: server.URL})
	if err != nil {
		t.Fatalf("NewWebhookSink failed: %v", err)
	}

	event := Event{
		Kind:       KindBudgetExceeded,
		ScopeID:    "tenant-a",
		Summary:    "Period budget exhausted",
		Fields:     map[string]string{"spent": "10.0000", "limit": "10.0000"},
		OccurredAt: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
	}
	if err := sink.Send(context.Background(), event); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received.Embeds) != 1 {
		t.Fatalf("got %d embeds, want 1", len(received.Embeds))
	}
	embed := received.Embeds[0]
	if embed.Title != "Period budget exhausted" {
		t.Errorf("Title = %q", embed.Title)
	}
	if embed.Color != embedColors[KindBudgetExceeded] {
		t.Errorf("Color = %d, want the budget-exceeded color", embed.Color)
	}
	if embed.Timestamp != "2026-08-24T12:00:00Z" {
		t.Errorf("Timestamp = %q", embed.Timestamp)
	}

	fields := map[string]string{}
	for _, f := range embed.Fields {
		fields[f.Name] = f.Value
	}
	if fields["scope"] != "tenant-a" {
		t.Errorf("scope field = %q, want tenant-a", fields["scope"])
	}
	if fields["spent"] != "10.0000" || fields["limit"] != "10.0000" {
		t.Error("event fields must be carried as embed fields")
	}
}

func TestWebhookSink_Non2xxIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	sink, err := NewWebhookSink(WebhookSinkConfig{URL: server.URL})
	if err != nil {
		t.Fatalf("NewWebhookSink failed: %v", err)
	}
	if err := sink.Send(context.Background(), Event{Kind: KindBudgetWarning}); err == nil {
		t.Fatal("non-2xx response must be an error")
	}
}

func TestWebhookSink_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var mu sync.Mutex
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	sink, err := NewWebhookSink(WebhookSinkConfig{URL: server.URL})
	if err != nil {
		t.Fatalf("NewWebhookSink failed: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if err := sink.Send(ctx, Event{Kind: KindChainAlert}); err == nil {
			t.Fatalf("Send %d unexpectedly succeeded", i)
		}
	}

	// The breaker opens after five consecutive failures; later sends
	// fail fast without reaching the endpoint.
	mu.Lock()
	defer mu.Unlock()
	if requests != 5 {
		t.Errorf("endpoint saw %d requests, want 5 before the breaker opens", requests)
	}
}

func TestNewWebhookSink_RequiresURL(t *testing.T) {
	if _, err := NewWebhookSink(WebhookSinkConfig{}); err == nil {
		t.Fatal("empty URL must be rejected")
	}
}
