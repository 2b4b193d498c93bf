package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"MDMWatch/internal/domain"
	"MDMWatch/internal/ports"
	"MDMWatch/internal/report"
)

// DefaultSubject prefixes the channel name of each published alert.
const DefaultSubject = "mdmwatch.alerts"

// Publisher emits alerts as JSON on "<subject>.<channel>".
type Publisher struct {
	conn         *nats.Conn
	subject      string
	flushTimeout time.Duration
}

var _ ports.Notifier = (*Publisher)(nil)

// NewPublisher connects to NATS with automatic reconnection.
func NewPublisher(url, subject string, opts ...nats.Option) (*Publisher, error) {
	defaults := []nats.Option{
		nats.Name("mdmwatch"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{conn: nc, subject: subject, flushTimeout: 5 * time.Second}, nil
}

// Subject returns the subject an alert for channel is published on.
func (p *Publisher) Subject(channel string) string {
	return p.subject + "." + channel
}

// Notify publishes and waits for the server to acknowledge the flush, so a
// lost connection surfaces as a dispatch failure.
func (p *Publisher) Notify(ctx context.Context, alert domain.Alert) error {
	if !validToken(alert.Channel) {
		return fmt.Errorf("channel %q is not a single subject token", alert.Channel)
	}
	data, err := json.Marshal(report.NewMessage(alert))
	if err != nil {
		return fmt.Errorf("marshaling alert: %w", err)
	}
	if err := p.conn.Publish(p.Subject(alert.Channel), data); err != nil {
		return fmt.Errorf("publishing alert: %w", err)
	}

	flushCtx, cancel := context.WithTimeout(ctx, p.flushTimeout)
	defer cancel()
	if err := p.conn.FlushWithContext(flushCtx); err != nil {
		return fmt.Errorf("flushing alert: %w", err)
	}
	return nil
}

// validToken reports whether channel is exactly one literal subject token.
func validToken(channel string) bool {
	return channel != "" && !strings.ContainsAny(channel, ".*> \t\r\n")
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() error {
	return p.conn.Drain()
}
