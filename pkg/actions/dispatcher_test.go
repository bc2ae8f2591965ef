package actions_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/autoflow/pkg/actions"
	"github.com/dukex/autoflow/pkg/mocks"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var scope = actions.Scope{TenantID: "tenant-1", FlowID: "flow-1", BlockID: "b1"}

func testContext() map[string]any {
	return map[string]any{
		"trigger": map[string]any{
			"client_name":  "Acme",
			"client_email": "billing@acme.test",
			"total":        600.0,
			"job_id":       "job-42",
		},
		"tenant_id": "tenant-1",
	}
}

func mustParse(t *testing.T, blockType models.BlockType, config map[string]any) actions.Action {
	t.Helper()

	action, err := actions.Parse(models.Block{ID: "b1", Type: blockType, Config: config})
	require.NoError(t, err)

	return action
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		block     models.Block
		wantKind  actions.Kind
		wantError bool
	}{
		{"action from config", models.Block{Type: models.BlockTypeAction, Config: map[string]any{"action": "send_email", "to": "a@b"}}, actions.KindSendEmail, false},
		{"action from block type", models.Block{Type: "send_sms", Config: map[string]any{"to": "+1"}}, actions.KindSendSMS, false},
		{"create_notification alias", models.Block{Type: models.BlockTypeAction, Config: map[string]any{"action": "create_notification", "title": "Hi"}}, actions.KindSendNotification, false},
		{"create job defaults", models.Block{Type: models.BlockTypeAction, Config: map[string]any{"action": "create_job", "title": "Visit"}}, actions.KindCreateJob, false},
		{"unknown action", models.Block{Type: models.BlockTypeAction, Config: map[string]any{"action": "launch_rocket"}}, "", true},
		{"action block without name", models.Block{Type: models.BlockTypeAction}, "", true},
		{"webhook without url", models.Block{Type: models.BlockTypeAction, Config: map[string]any{"action": "webhook"}}, "", true},
		{"job status without status", models.Block{Type: models.BlockTypeAction, Config: map[string]any{"action": "update_job_status"}}, "", true},
		{"empty notification", models.Block{Type: models.BlockTypeAction, Config: map[string]any{"action": "send_notification"}}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			action, err := actions.Parse(tt.block)
			if tt.wantError {
				require.Error(t, err)
				assert.ErrorIs(t, err, actions.ErrInvalidConfig)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, action.Kind())
		})
	}
}

func TestParse_WebhookDefaults(t *testing.T) {
	t.Parallel()

	action := mustParse(t, models.BlockTypeAction, map[string]any{
		"action":  "webhook",
		"url":     "https://hooks.test/{{trigger.job_id}}",
		"headers": map[string]any{"X-Tenant": "{{tenant_id}}"},
	})

	webhook, ok := action.(*actions.Webhook)
	require.True(t, ok)
	assert.Equal(t, http.MethodPost, webhook.Method)
	assert.Equal(t, "{{tenant_id}}", webhook.Headers["X-Tenant"])
}

func TestDispatch_SendEmailSimulateDescribesWithoutSending(t *testing.T) {
	t.Parallel()

	sender := &mocks.MockEmailSender{}
	dispatcher := actions.NewDispatcher(slog.Default(), actions.Collaborators{Email: sender}, time.Second)

	action := mustParse(t, models.BlockTypeAction, map[string]any{
		"action":  "send_email",
		"to":      "{{trigger.client_email}}",
		"subject": "Invoice for {{trigger.client_name}}",
		"body":    "Hello {{trigger.client_name}}, your total is {{trigger.total}}.",
	})

	result := dispatcher.Dispatch(context.Background(), action, scope, testContext(), actions.Simulate)

	assert.True(t, result.Success)
	assert.True(t, result.Simulated)
	assert.Contains(t, result.Description, "billing@acme.test")
	assert.Contains(t, result.Description, "Invoice for Acme")
	assert.Contains(t, result.Description, "your total is 600")
	assert.Equal(t, "billing@acme.test", result.Output["email_sent_to"])
	sender.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
}

func TestDispatch_SendEmailMissingRecipient(t *testing.T) {
	t.Parallel()

	dispatcher := actions.NewDispatcher(slog.Default(), actions.Collaborators{Email: &mocks.MockEmailSender{}}, time.Second)
	action := mustParse(t, models.BlockTypeAction, map[string]any{"action": "send_email", "to": "{{trigger.nobody}}"})

	for _, mode := range []actions.Mode{actions.Live, actions.Simulate} {
		result := dispatcher.Dispatch(context.Background(), action, scope, testContext(), mode)

		assert.False(t, result.Success, mode.String())
		assert.False(t, result.Simulated, mode.String())
		assert.Contains(t, result.Error, "missing recipient", mode.String())
	}
}

func TestDispatch_SendEmailLive(t *testing.T) {
	t.Parallel()

	sender := &mocks.MockEmailSender{}
	sender.On("SendEmail", mock.Anything, models.Email{
		To:      "billing@acme.test",
		Subject: "Invoice for Acme",
		Body:    "Total 600",
	}).Return("msg-1", nil)

	dispatcher := actions.NewDispatcher(slog.Default(), actions.Collaborators{Email: sender}, time.Second)
	action := mustParse(t, models.BlockTypeAction, map[string]any{
		"action":    "send_email",
		"recipient": "{{trigger.client_email}}",
		"subject":   "Invoice for {{trigger.client_name}}",
		"message":   "Total {{trigger.total}}",
	})

	result := dispatcher.Dispatch(context.Background(), action, scope, testContext(), actions.Live)

	require.True(t, result.Success, result.Error)
	assert.False(t, result.Simulated)
	assert.Equal(t, "msg-1", result.Output["email_message_id"])
	sender.AssertExpectations(t)
}

func TestDispatch_SendEmailTimeoutIsAFailure(t *testing.T) {
	t.Parallel()

	sender := &mocks.MockEmailSender{}
	sender.On("SendEmail", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx, _ := args.Get(0).(context.Context)
			<-ctx.Done()
		}).
		Return("", context.DeadlineExceeded)

	dispatcher := actions.NewDispatcher(slog.Default(), actions.Collaborators{Email: sender}, 20*time.Millisecond)
	action := mustParse(t, models.BlockTypeAction, map[string]any{"action": "send_email", "to": "a@b.test"})

	result := dispatcher.Dispatch(context.Background(), action, scope, testContext(), actions.Live)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "timed out")
}

func TestDispatch_SendSMSWithoutProvider(t *testing.T) {
	t.Parallel()

	action := mustParse(t, "send_sms", map[string]any{"to": "+15550100", "message": "Hi {{trigger.client_name}}"})

	unwired := actions.NewDispatcher(slog.Default(), actions.Collaborators{}, time.Second)
	result := unwired.Dispatch(context.Background(), action, scope, testContext(), actions.Live)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "SMS provider not configured")

	stubbed := actions.NewDispatcher(slog.Default(), actions.Collaborators{SMS: actions.UnconfiguredSMSSender{}}, time.Second)
	result = stubbed.Dispatch(context.Background(), action, scope, testContext(), actions.Live)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "SMS provider not configured")

	result = unwired.Dispatch(context.Background(), action, scope, testContext(), actions.Simulate)
	assert.True(t, result.Success)
	assert.Contains(t, result.Description, "Hi Acme")
}

func TestDispatch_CreateJobExposesID(t *testing.T) {
	t.Parallel()

	jobs := &mocks.MockJobStore{}
	jobs.On("CreateJob", mock.Anything, mock.MatchedBy(func(job *models.Job) bool {
		return job.TenantID == "tenant-1" && job.Title == "Follow up Acme" && job.Status == "pending"
	})).
		Run(func(args mock.Arguments) {
			job, _ := args.Get(1).(*models.Job)
			job.ID = "job-new"
		}).
		Return(nil)

	dispatcher := actions.NewDispatcher(slog.Default(), actions.Collaborators{Jobs: jobs}, time.Second)
	action := mustParse(t, models.BlockTypeAction, map[string]any{"action": "create_job", "title": "Follow up {{trigger.client_name}}"})

	result := dispatcher.Dispatch(context.Background(), action, scope, testContext(), actions.Live)

	require.True(t, result.Success, result.Error)
	assert.Equal(t, "job-new", result.Output["job_id"])
	jobs.AssertExpectations(t)
}

func TestDispatch_UpdateJobStatus(t *testing.T) {
	t.Parallel()

	jobs := &mocks.MockJobStore{}
	jobs.On("UpdateJobStatus", mock.Anything, "tenant-1", "job-42", "completed").Return(nil)

	dispatcher := actions.NewDispatcher(slog.Default(), actions.Collaborators{Jobs: jobs}, time.Second)
	action := mustParse(t, models.BlockTypeAction, map[string]any{"action": "update_job_status", "status": "completed"})

	simulated := dispatcher.Dispatch(context.Background(), action, scope, testContext(), actions.Simulate)
	assert.True(t, simulated.Simulated)
	jobs.AssertNotCalled(t, "UpdateJobStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	live := dispatcher.Dispatch(context.Background(), action, scope, testContext(), actions.Live)
	require.True(t, live.Success, live.Error)
	assert.Equal(t, simulated.Output, live.Output)
	jobs.AssertExpectations(t)
}

func TestDispatch_NotificationStoreError(t *testing.T) {
	t.Parallel()

	notifications := &mocks.MockNotificationStore{}
	notifications.On("CreateNotification", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	dispatcher := actions.NewDispatcher(slog.Default(), actions.Collaborators{Notifications: notifications}, time.Second)
	action := mustParse(t, models.BlockTypeAction, map[string]any{"action": "send_notification", "title": "Paid"})

	result := dispatcher.Dispatch(context.Background(), action, scope, testContext(), actions.Live)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "disk full")
}

func TestDispatch_Webhook(t *testing.T) {
	t.Parallel()

	var received map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tenant-1", r.Header.Get("X-Tenant"))

		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)

		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	dispatcher := actions.NewDispatcher(slog.Default(), actions.Collaborators{HTTP: server.Client()}, time.Second)

	ok := mustParse(t, models.BlockTypeAction, map[string]any{
		"action":  "webhook",
		"url":     server.URL + "/ok",
		"headers": map[string]any{"X-Tenant": "{{tenant_id}}"},
	})

	result := dispatcher.Dispatch(context.Background(), ok, scope, testContext(), actions.Live)
	require.True(t, result.Success, result.Error)
	assert.Equal(t, http.StatusOK, result.Output["webhook_status"])
	assert.Equal(t, map[string]any{"ok": true}, result.Output["webhook_response"])
	assert.Equal(t, "tenant-1", received["tenant_id"])

	fail := mustParse(t, models.BlockTypeAction, map[string]any{
		"action":  "webhook",
		"url":     server.URL + "/fail",
		"headers": map[string]any{"X-Tenant": "{{tenant_id}}"},
		"body":    map[string]any{"client": "{{trigger.client_name}}"},
	})

	result = dispatcher.Dispatch(context.Background(), fail, scope, testContext(), actions.Live)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "502")
	assert.Equal(t, "Acme", received["client"])
}

func TestHTTPEmailSender(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))

		var payload map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "noreply@autoflow.test", payload["from"])

		if payload["subject"] == "reject" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte("bad address"))

			return
		}

		_, _ = w.Write([]byte(`{"id":"em_123"}`))
	}))
	defer server.Close()

	sender := actions.NewHTTPEmailSender(server.Client(), server.URL, "key-1", "noreply@autoflow.test")

	id, err := sender.SendEmail(context.Background(), models.Email{To: "a@b.test", Subject: "hello", Body: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "em_123", id)

	_, err = sender.SendEmail(context.Background(), models.Email{To: "a@b.test", Subject: "reject"})
	require.Error(t, err)
	assert.True(t, actions.IsProviderError(err))
	assert.Contains(t, err.Error(), "422")
}
