package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/template"
)

const (
	// DefaultTimeout bounds every outbound call made by an action.
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 1 << 20
	excerptLength    = 100
	simulatedID      = "simulated"
)

// Mode selects whether actions perform their side effects.
type Mode int

const (
	Live Mode = iota
	Simulate
)

func (m Mode) String() string {
	if m == Simulate {
		return "simulate"
	}

	return "live"
}

// Result is the outcome of one dispatched action.
type Result struct {
	Success     bool           `json:"success"`
	Output      map[string]any `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	Simulated   bool           `json:"simulated,omitempty"`
	Description string         `json:"description,omitempty"`
}

// Scope identifies who an action runs for.
type Scope struct {
	TenantID string
	FlowID   string
	BlockID  string
}

// Collaborators are the live side-effect providers. Nil members make the matching
// live actions fail with ErrProviderNotConfigured.
type Collaborators struct {
	Email         EmailSender
	SMS           SmsSender
	Notifications NotificationStore
	Jobs          JobStore
	HTTP          HTTPDoer
}

// Dispatcher executes parsed actions.
type Dispatcher struct {
	logger  *slog.Logger
	deps    Collaborators
	timeout time.Duration
}

func NewDispatcher(logger *slog.Logger, deps Collaborators, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if deps.HTTP == nil {
		deps.HTTP = &http.Client{Timeout: timeout}
	}

	return &Dispatcher{
		logger:  logger.With("module", "actions"),
		deps:    deps,
		timeout: timeout,
	}
}

// Dispatch runs action against data. Templates resolve identically in both modes;
// only Live performs I/O.
func (d *Dispatcher) Dispatch(ctx context.Context, action Action, scope Scope, data map[string]any, mode Mode) Result {
	var result Result

	switch a := action.(type) {
	case *SendEmail:
		result = d.sendEmail(ctx, a, data, mode)
	case *SendSMS:
		result = d.sendSMS(ctx, a, data, mode)
	case *SendNotification:
		result = d.sendNotification(ctx, a, scope, data, mode)
	case *UpdateJobStatus:
		result = d.updateJobStatus(ctx, a, scope, data, mode)
	case *CreateJob:
		result = d.createJob(ctx, a, scope, data, mode)
	case *Webhook:
		result = d.webhook(ctx, a, data, mode)
	default:
		result = failure(fmt.Errorf("%w: unsupported action %T", ErrInvalidConfig, action))
	}

	result.Simulated = mode == Simulate && result.Success

	if !result.Success {
		d.logger.WarnContext(ctx, "action failed",
			"action", action.Kind(), "mode", mode.String(), "flow_id", scope.FlowID, "block_id", scope.BlockID, "error", result.Error)
	} else {
		d.logger.DebugContext(ctx, "action dispatched",
			"action", action.Kind(), "mode", mode.String(), "flow_id", scope.FlowID, "block_id", scope.BlockID)
	}

	return result
}

func (d *Dispatcher) sendEmail(ctx context.Context, a *SendEmail, data map[string]any, mode Mode) Result {
	email := models.Email{
		To:      strings.TrimSpace(template.Interpolate(a.To, data)),
		Subject: template.Interpolate(a.Subject, data),
		Body:    template.Interpolate(a.Body, data),
		HTML:    a.HTML,
	}

	if email.To == "" {
		return failure(fmt.Errorf("send_email: %w", ErrMissingRecipient))
	}

	if mode == Simulate {
		return Result{
			Success:     true,
			Description: fmt.Sprintf("Would send email to %s with subject %q: %s", email.To, email.Subject, excerpt(email.Body)),
			Output:      map[string]any{"email_sent_to": email.To, "email_message_id": simulatedID},
		}
	}

	if d.deps.Email == nil {
		return failure(fmt.Errorf("email %w", ErrProviderNotConfigured))
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	messageID, err := d.deps.Email.SendEmail(ctx, email)
	if err != nil {
		return failure(timeoutAware(ctx, "send_email", err))
	}

	return Result{
		Success:     true,
		Description: "Sent email to " + email.To,
		Output:      map[string]any{"email_sent_to": email.To, "email_message_id": messageID},
	}
}

func (d *Dispatcher) sendSMS(ctx context.Context, a *SendSMS, data map[string]any, mode Mode) Result {
	sms := models.SMS{
		To:   strings.TrimSpace(template.Interpolate(a.To, data)),
		Body: template.Interpolate(a.Body, data),
	}

	if sms.To == "" {
		return failure(fmt.Errorf("send_sms: %w", ErrMissingRecipient))
	}

	if mode == Simulate {
		return Result{
			Success:     true,
			Description: fmt.Sprintf("Would send SMS to %s: %s", sms.To, excerpt(sms.Body)),
			Output:      map[string]any{"sms_sent_to": sms.To},
		}
	}

	if d.deps.SMS == nil {
		return failure(fmt.Errorf("SMS %w", ErrProviderNotConfigured))
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	_, err := d.deps.SMS.SendSMS(ctx, sms)
	if err != nil {
		return failure(timeoutAware(ctx, "send_sms", err))
	}

	return Result{
		Success:     true,
		Description: "Sent SMS to " + sms.To,
		Output:      map[string]any{"sms_sent_to": sms.To},
	}
}

func (d *Dispatcher) sendNotification(ctx context.Context, a *SendNotification, scope Scope, data map[string]any, mode Mode) Result {
	notification := &models.Notification{
		TenantID: scope.TenantID,
		UserID:   template.Interpolate(a.UserID, data),
		Title:    template.Interpolate(a.Title, data),
		Message:  template.Interpolate(a.Message, data),
		Link:     template.Interpolate(a.Link, data),
		Data:     map[string]any{"flow_id": scope.FlowID},
	}

	if mode == Simulate {
		return Result{
			Success:     true,
			Description: fmt.Sprintf("Would create notification %q: %s", notification.Title, excerpt(notification.Message)),
			Output:      map[string]any{"notification_id": simulatedID},
		}
	}

	if d.deps.Notifications == nil {
		return failure(fmt.Errorf("notification %w", ErrProviderNotConfigured))
	}

	err := d.deps.Notifications.CreateNotification(ctx, notification)
	if err != nil {
		return failure(fmt.Errorf("send_notification: %w", err))
	}

	return Result{
		Success:     true,
		Description: fmt.Sprintf("Created notification %q", notification.Title),
		Output:      map[string]any{"notification_id": notification.ID},
	}
}

func (d *Dispatcher) updateJobStatus(ctx context.Context, a *UpdateJobStatus, scope Scope, data map[string]any, mode Mode) Result {
	jobID := strings.TrimSpace(template.Interpolate(a.JobID, data))
	status := template.Interpolate(a.Status, data)

	if jobID == "" {
		return failure(fmt.Errorf("%w: update_job_status resolved an empty job_id", ErrInvalidConfig))
	}

	output := map[string]any{"job_id": jobID, "job_status": status}

	if mode == Simulate {
		return Result{
			Success:     true,
			Description: fmt.Sprintf("Would move job %s to status %q", jobID, status),
			Output:      output,
		}
	}

	if d.deps.Jobs == nil {
		return failure(fmt.Errorf("job %w", ErrProviderNotConfigured))
	}

	err := d.deps.Jobs.UpdateJobStatus(ctx, scope.TenantID, jobID, status)
	if err != nil {
		return failure(fmt.Errorf("update_job_status: %w", err))
	}

	return Result{
		Success:     true,
		Description: fmt.Sprintf("Moved job %s to status %q", jobID, status),
		Output:      output,
	}
}

func (d *Dispatcher) createJob(ctx context.Context, a *CreateJob, scope Scope, data map[string]any, mode Mode) Result {
	job := &models.Job{
		TenantID: scope.TenantID,
		Title:    template.Interpolate(a.Title, data),
		Status:   template.Interpolate(a.Status, data),
		ClientID: template.Interpolate(a.ClientID, data),
	}

	if a.Data != nil {
		job.Data, _ = template.InterpolateValue(a.Data, data).(map[string]any)
	}

	if mode == Simulate {
		return Result{
			Success:     true,
			Description: fmt.Sprintf("Would create job %q with status %q", job.Title, job.Status),
			Output:      map[string]any{"job_id": simulatedID, "job_status": job.Status},
		}
	}

	if d.deps.Jobs == nil {
		return failure(fmt.Errorf("job %w", ErrProviderNotConfigured))
	}

	err := d.deps.Jobs.CreateJob(ctx, job)
	if err != nil {
		return failure(fmt.Errorf("create_job: %w", err))
	}

	return Result{
		Success:     true,
		Description: fmt.Sprintf("Created job %q", job.Title),
		Output:      map[string]any{"job_id": job.ID, "job_status": job.Status},
	}
}

func (d *Dispatcher) webhook(ctx context.Context, a *Webhook, data map[string]any, mode Mode) Result {
	url := strings.TrimSpace(template.Interpolate(a.URL, data))
	if url == "" {
		return failure(fmt.Errorf("%w: webhook resolved an empty url", ErrInvalidConfig))
	}

	body, err := webhookBody(a.Body, data)
	if err != nil {
		return failure(err)
	}

	headers := make(map[string]string, len(a.Headers))
	for key, value := range a.Headers {
		headers[key] = template.Interpolate(value, data)
	}

	if mode == Simulate {
		return Result{
			Success:     true,
			Description: fmt.Sprintf("Would call %s %s with %d byte payload", a.Method, url, len(body)),
			Output:      map[string]any{"webhook_url": url},
		}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, a.Method, url, bytes.NewReader(body))
	if err != nil {
		return failure(fmt.Errorf("webhook: failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := d.deps.HTTP.Do(req)
	if err != nil {
		return failure(timeoutAware(ctx, "webhook", &ProviderError{Provider: "webhook", Err: err}))
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	response := readResponse(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return failure(&ProviderError{
			Provider:   "webhook",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s %s", a.Method, url),
		})
	}

	return Result{
		Success:     true,
		Description: fmt.Sprintf("Called %s %s (%d)", a.Method, url, resp.StatusCode),
		Output:      map[string]any{"webhook_status": resp.StatusCode, "webhook_response": response},
	}
}

func webhookBody(configured any, data map[string]any) ([]byte, error) {
	if configured == nil {
		return marshalBody(data)
	}

	if s, ok := configured.(string); ok {
		return []byte(template.Interpolate(s, data)), nil
	}

	return marshalBody(template.InterpolateValue(configured, data))
}

func marshalBody(value any) ([]byte, error) {
	body, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("webhook: failed to marshal body: %w", err)
	}

	return body, nil
}

// readResponse decodes a JSON response and falls back to the raw text.
func readResponse(r io.Reader) any {
	raw, err := io.ReadAll(io.LimitReader(r, maxResponseBytes))
	if err != nil || len(raw) == 0 {
		return nil
	}

	var decoded any

	err = json.Unmarshal(raw, &decoded)
	if err != nil {
		return string(raw)
	}

	return decoded
}

func timeoutAware(ctx context.Context, action string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: timed out: %w", action, err)
	}

	return fmt.Errorf("%s: %w", action, err)
}

func failure(err error) Result {
	return Result{Success: false, Error: err.Error()}
}

func excerpt(s string) string {
	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) <= excerptLength {
		return s
	}

	return string(runes[:excerptLength]) + "..."
}
