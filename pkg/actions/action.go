// Package actions implements the side effects a flow can perform. Every action is parsed
// once into a typed variant and dispatched in either live or simulate mode.
package actions

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/dukex/autoflow/pkg/datapath"
	"github.com/dukex/autoflow/pkg/models"
)

// Kind names an action variant.
type Kind string

const (
	KindSendEmail        Kind = "send_email"
	KindSendSMS          Kind = "send_sms"
	KindSendNotification Kind = "send_notification"
	KindUpdateJobStatus  Kind = "update_job_status"
	KindCreateJob        Kind = "create_job"
	KindWebhook          Kind = "webhook"
)

// Action is one parsed action block. Implementations are the variant structs below.
type Action interface {
	Kind() Kind
}

// SendEmail sends an email. To, Subject and Body are templates.
type SendEmail struct {
	To      string
	Subject string
	Body    string
	HTML    bool
}

// SendSMS sends a text message through the configured SMS provider.
type SendSMS struct {
	To   string
	Body string
}

// SendNotification creates an in-app notification for the tenant.
type SendNotification struct {
	UserID  string
	Title   string
	Message string
	Link    string
}

// UpdateJobStatus moves an existing job to Status.
type UpdateJobStatus struct {
	JobID  string
	Status string
}

// CreateJob creates a job; its id is exposed to later blocks as job_id.
type CreateJob struct {
	Title    string
	Status   string
	ClientID string
	Data     map[string]any
}

// Webhook calls an external HTTP endpoint. A nil Body sends the whole context.
type Webhook struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    any
}

func (*SendEmail) Kind() Kind        { return KindSendEmail }
func (*SendSMS) Kind() Kind          { return KindSendSMS }
func (*SendNotification) Kind() Kind { return KindSendNotification }
func (*UpdateJobStatus) Kind() Kind  { return KindUpdateJobStatus }
func (*CreateJob) Kind() Kind        { return KindCreateJob }
func (*Webhook) Kind() Kind          { return KindWebhook }

type parser func(config map[string]any) (Action, error)

var parsers = map[string]parser{
	"send_email":          parseSendEmail,
	"send_sms":            parseSendSMS,
	"send_notification":   parseSendNotification,
	"create_notification": parseSendNotification,
	"update_job_status":   parseUpdateJobStatus,
	"create_job":          parseCreateJob,
	"webhook":             parseWebhook,
}

// IsAction reports whether name is a known action variant, so blocks may use it as
// their type directly.
func IsAction(name string) bool {
	_, ok := parsers[name]

	return ok
}

// Parse builds the variant named by config.action, falling back to the block type.
func Parse(block models.Block) (Action, error) {
	name := stringField(block.Config, "action")
	if name == "" {
		name = string(block.Type)
	}

	parse, ok := parsers[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidConfig, name)
	}

	config := block.Config
	if config == nil {
		config = map[string]any{}
	}

	return parse(config)
}

func parseSendEmail(config map[string]any) (Action, error) {
	html, _ := config["html"].(bool)

	return &SendEmail{
		To:      stringField(config, "to", "recipient", "email"),
		Subject: stringField(config, "subject"),
		Body:    stringField(config, "body", "message"),
		HTML:    html,
	}, nil
}

func parseSendSMS(config map[string]any) (Action, error) {
	return &SendSMS{
		To:   stringField(config, "to", "recipient", "phone"),
		Body: stringField(config, "message", "body"),
	}, nil
}

func parseSendNotification(config map[string]any) (Action, error) {
	action := &SendNotification{
		UserID:  stringField(config, "user_id", "recipient"),
		Title:   stringField(config, "title", "subject"),
		Message: stringField(config, "message", "body"),
		Link:    stringField(config, "link"),
	}

	if action.Title == "" && action.Message == "" {
		return nil, fmt.Errorf("%w: notification needs a title or a message", ErrInvalidConfig)
	}

	return action, nil
}

func parseUpdateJobStatus(config map[string]any) (Action, error) {
	action := &UpdateJobStatus{
		JobID:  stringField(config, "job_id"),
		Status: stringField(config, "status", "new_status"),
	}

	if action.JobID == "" {
		action.JobID = "{{trigger.job_id}}"
	}

	if action.Status == "" {
		return nil, fmt.Errorf("%w: update_job_status needs a status", ErrInvalidConfig)
	}

	return action, nil
}

func parseCreateJob(config map[string]any) (Action, error) {
	data, _ := config["data"].(map[string]any)

	action := &CreateJob{
		Title:    stringField(config, "title"),
		Status:   stringField(config, "status"),
		ClientID: stringField(config, "client_id"),
		Data:     data,
	}

	if action.Title == "" {
		return nil, fmt.Errorf("%w: create_job needs a title", ErrInvalidConfig)
	}

	if action.Status == "" {
		action.Status = "pending"
	}

	if action.ClientID == "" {
		action.ClientID = "{{trigger.client_id}}"
	}

	return action, nil
}

func parseWebhook(config map[string]any) (Action, error) {
	action := &Webhook{
		URL:     stringField(config, "url"),
		Method:  strings.ToUpper(stringField(config, "method")),
		Headers: map[string]string{},
		Body:    config["body"],
	}

	if action.URL == "" {
		return nil, fmt.Errorf("%w: webhook needs a url", ErrInvalidConfig)
	}

	if action.Method == "" {
		action.Method = http.MethodPost
	}

	if headers, ok := config["headers"].(map[string]any); ok {
		for key, value := range headers {
			action.Headers[key] = datapath.Stringify(value)
		}
	}

	return action, nil
}

// stringField returns the first non-empty value among keys.
func stringField(config map[string]any, keys ...string) string {
	for _, key := range keys {
		value, ok := config[key]
		if !ok || value == nil {
			continue
		}

		if s := datapath.Stringify(value); s != "" {
			return s
		}
	}

	return ""
}
