package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dukex/autoflow/pkg/models"
)

// EmailSender delivers an email and returns the provider's message id.
type EmailSender interface {
	SendEmail(ctx context.Context, email models.Email) (string, error)
}

// SmsSender delivers a text message and returns the provider's message id.
type SmsSender interface {
	SendSMS(ctx context.Context, sms models.SMS) (string, error)
}

// NotificationStore persists in-app notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, notification *models.Notification) error
}

// JobStore creates jobs and moves them between statuses.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	UpdateJobStatus(ctx context.Context, tenantID, jobID, status string) error
}

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// UnconfiguredSMSSender is the SMS provider used until a real one is wired. It
// always fails so live SMS actions never report false success.
type UnconfiguredSMSSender struct{}

func (UnconfiguredSMSSender) SendSMS(context.Context, models.SMS) (string, error) {
	return "", fmt.Errorf("SMS %w", ErrProviderNotConfigured)
}

// HTTPEmailSender posts emails as JSON to a transactional email API.
type HTTPEmailSender struct {
	client HTTPDoer
	apiURL string
	apiKey string
	from   string
}

func NewHTTPEmailSender(client HTTPDoer, apiURL, apiKey, from string) *HTTPEmailSender {
	return &HTTPEmailSender{client: client, apiURL: apiURL, apiKey: apiKey, from: from}
}

type emailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

// SendEmail delivers the email. The request is bounded by ctx.
func (s *HTTPEmailSender) SendEmail(ctx context.Context, email models.Email) (string, error) {
	from := email.From
	if from == "" {
		from = s.from
	}

	payload := emailRequest{From: from, To: []string{email.To}, Subject: email.Subject}
	if email.HTML {
		payload.HTML = email.Body
	} else {
		payload.Text = email.Body
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create email request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &ProviderError{Provider: "email", Err: err}
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &ProviderError{Provider: "email", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &ProviderError{Provider: "email", StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", bytes.TrimSpace(respBody))}
	}

	var result struct {
		ID string `json:"id"`
	}

	_ = json.Unmarshal(respBody, &result)

	return result.ID, nil
}
