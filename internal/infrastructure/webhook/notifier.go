package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"MDMWatch/internal/domain"
	"MDMWatch/internal/ports"
	"MDMWatch/internal/report"
)

// Config describes a JSON webhook target such as a Teams or apprise relay.
type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// Notifier posts the alert as JSON.
type Notifier struct {
	url        string
	token      string
	httpClient *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier builds a client from configuration.
func NewNotifier(cfg Config) *Notifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Notifier{
		url:        cfg.URL,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Notify sends the alert payload; any status >= 400 is a failure.
func (n *Notifier) Notify(ctx context.Context, alert domain.Alert) error {
	if n == nil {
		return errors.New("webhook notifier is nil")
	}
	if n.url == "" {
		return errors.New("webhook notifier misconfigured")
	}

	body, err := json.Marshal(report.NewMessage(alert))
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	return nil
}
