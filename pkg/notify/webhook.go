package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// Embed colors per event kind, decimal-encoded for the webhook payload.
var embedColors = map[Kind]int{
	KindApprovalProposed: 0x5865F2, // blurple
	KindApprovalApproved: 0x57F287, // green
	KindApprovalRejected: 0xED4245, // red
	KindApprovalExpired:  0xFEE75C, // yellow
	KindBudgetWarning:    0xFEE75C, // yellow
	KindBudgetExceeded:   0xED4245, // red
	KindChainAlert:       0x9B59B6, // purple
	KindToggleChanged:    0x5865F2, // blurple
}

// WebhookSink posts events as Discord-compatible embeds.
type WebhookSink struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// WebhookSinkConfig configures the webhook sink.
type WebhookSinkConfig struct {
	// URL is the webhook endpoint.
	URL string

	// Timeout bounds each HTTP post.
	// Default: 10 seconds
	Timeout time.Duration
}

// NewWebhookSink creates a webhook sink with a circuit breaker around
// deliveries. After five consecutive failures the breaker opens and
// events fail fast until the endpoint recovers.
func NewWebhookSink(cfg WebhookSinkConfig) (*WebhookSink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook url cannot be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notify-webhook",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &WebhookSink{
		url:     cfg.URL,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
	}, nil
}

// webhookPayload is the wire format: a single embed per event.
type webhookPayload struct {
	Embeds []webhookEmbed `json:"embeds"`
}

type webhookEmbed struct {
	Title     string         `json:"title"`
	Color     int            `json:"color"`
	Timestamp string         `json:"timestamp"`
	Fields    []webhookField `json:"fields,omitempty"`
}

type webhookField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Send implements Sink.
func (s *WebhookSink) Send(ctx context.Context, event Event) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.post(ctx, event)
	})
	return err
}

func (s *WebhookSink) post(ctx context.Context, event Event) error {
	color, ok := embedColors[event.Kind]
	if !ok {
		color = 0x99AAB5 // greyple for unknown kinds
	}

	embed := webhookEmbed{
		Title:     event.Summary,
		Color:     color,
		Timestamp: event.OccurredAt.UTC().Format(time.RFC3339),
	}
	if event.ScopeID != "" {
		embed.Fields = append(embed.Fields, webhookField{Name: "scope", Value: event.ScopeID, Inline: true})
	}
	for name, value := range event.Fields {
		embed.Fields = append(embed.Fields, webhookField{Name: name, Value: value, Inline: true})
	}

	body, err := json.Marshal(webhookPayload{Embeds: []webhookEmbed{embed}})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
