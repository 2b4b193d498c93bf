package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"MDMWatch/internal/domain"
	"MDMWatch/internal/ports"
	"MDMWatch/internal/report"
)

// Mailer sends alert reports through the Graph sendMail action.
type Mailer struct {
	baseURL    string
	sender     string
	recipients []string
	http       *http.Client
}

var _ ports.Notifier = (*Mailer)(nil)

// NewMailer reuses an authenticated client from NewHTTPClient.
func NewMailer(client *http.Client, baseURL, sender string, recipients []string) *Mailer {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Mailer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		sender:     sender,
		recipients: recipients,
		http:       client,
	}
}

type emailAddress struct {
	Address string `json:"address"`
}

type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type itemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type message struct {
	Subject      string      `json:"subject"`
	Body         itemBody    `json:"body"`
	ToRecipients []recipient `json:"toRecipients"`
	Importance   string      `json:"importance"`
}

type sendMailRequest struct {
	Message         message `json:"message"`
	SaveToSentItems bool    `json:"saveToSentItems"`
}

// Notify renders the HTML report and posts it as mail from the sender mailbox.
func (m *Mailer) Notify(ctx context.Context, alert domain.Alert) error {
	if m.http == nil || m.sender == "" || len(m.recipients) == 0 {
		return errors.New("graph mailer misconfigured")
	}

	html, err := report.HTML(alert)
	if err != nil {
		return err
	}

	msg := message{
		Subject:    report.Subject(alert),
		Body:       itemBody{ContentType: "HTML", Content: html},
		Importance: "normal",
	}
	if alert.Decision.Urgent {
		msg.Importance = "high"
	}
	for _, addr := range m.recipients {
		msg.ToRecipients = append(msg.ToRecipients, recipient{EmailAddress: emailAddress{Address: addr}})
	}

	return m.post(ctx, "/users/"+url.PathEscape(m.sender)+"/sendMail", sendMailRequest{Message: msg})
}

func (m *Mailer) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("send mail: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}
	return nil
}
