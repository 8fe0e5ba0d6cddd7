// Package notifier sends out-of-band delivery messages. Everything here is
// best effort: a purchase is final once its transaction commits, regardless
// of whether the buyer could be reached.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"storefront-service/internal/util"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Notifier delivers a message to a destination. Implementations must not
// panic and should treat failures as their own problem to report.
type Notifier interface {
	NotifyBestEffort(ctx context.Context, destination, message string) error
}

// Message is the JSON body posted to the delivery endpoint
type Message struct {
	Destination string `json:"destination"`
	Text        string `json:"text"`
}

// WebhookNotifier posts messages to a delivery gateway (e.g. a bot relay).
// The HTTP client retries transient failures on its own.
type WebhookNotifier struct {
	endpoint string
	client   *retryablehttp.Client
	logger   *zap.Logger
}

// NewWebhookNotifier creates a notifier posting to endpoint
func NewWebhookNotifier(endpoint string) *WebhookNotifier {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = 10 * time.Second
	client.Logger = nil

	return &WebhookNotifier{
		endpoint: endpoint,
		client:   client,
		logger:   util.GetLogger(),
	}
}

// NotifyBestEffort posts the message to the configured endpoint
func (n *WebhookNotifier) NotifyBestEffort(ctx context.Context, destination, message string) error {
	body, err := json.Marshal(Message{Destination: destination, Text: message})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("delivery endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// LogNotifier records notifications in the log. Used when no delivery
// endpoint is configured, so local runs still show what would have been sent.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: util.GetLogger()}
}

// NotifyBestEffort logs the notification instead of sending it
func (n *LogNotifier) NotifyBestEffort(_ context.Context, destination, message string) error {
	n.logger.Info("Delivery notification (log only)",
		zap.String("destination", destination),
		zap.Int("message_len", len(message)))
	return nil
}
