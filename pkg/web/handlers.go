package web

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/autoflow/pkg/auth"
	"github.com/dukex/autoflow/pkg/dryrun"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/worker"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// BatchRunner drains one batch of the execution queue.
type BatchRunner interface {
	RunBatch(ctx context.Context) worker.Stats
}

// FlowReader loads the flow named by a dry-run request.
type FlowReader interface {
	FlowByID(ctx context.Context, id string) (*models.Flow, error)
}

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type Handlers struct {
	logger     *slog.Logger
	runner     BatchRunner
	tracer     *dryrun.Tracer
	flows      FlowReader
	authorizer *auth.Authorizer
	validator  *validator.Validate
	health     HealthChecker
}

func NewHandlers(
	logger *slog.Logger,
	runner BatchRunner,
	tracer *dryrun.Tracer,
	flows FlowReader,
	authorizer *auth.Authorizer,
	validator *validator.Validate,
	health HealthChecker,
) *Handlers {
	return &Handlers{
		logger:     logger.With("module", "web"),
		runner:     runner,
		tracer:     tracer,
		flows:      flows,
		authorizer: authorizer,
		validator:  validator,
		health:     health,
	}
}

// Run handles POST /run. Without the dry-run header it drains one batch of the queue
// for the scheduler; with it, it previews one flow for a tenant member.
func (h *Handlers) Run(c fiber.Ctx) error {
	if dryRun, _ := strconv.ParseBool(c.Get(DryRunHeader)); dryRun {
		return h.dryRun(c)
	}

	if err := h.authorizer.AuthorizeService(c.Get(fiber.HeaderAuthorization)); err != nil {
		return handleError(c, err)
	}

	stats := h.runner.RunBatch(c.Context())

	h.logger.InfoContext(c.Context(), "batch invocation finished",
		"processed", stats.Processed, "succeeded", stats.Succeeded, "failed", stats.Failed, "skipped", stats.Skipped)

	return c.JSON(BatchResponse{Success: true, Stats: stats})
}

func (h *Handlers) dryRun(c fiber.Ctx) error {
	var req DryRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	ctx := c.Context()

	// Authenticate before loading the flow so anonymous callers cannot probe flow ids.
	userID, err := h.authorizer.AuthenticateUser(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return handleError(c, err)
	}

	flow, err := h.flows.FlowByID(ctx, req.FlowID)
	if err != nil {
		return handleError(c, err)
	}

	if err := h.authorizer.RequireMember(ctx, userID, flow.TenantID); err != nil {
		return handleError(c, err)
	}

	payload := req.MockPayload
	if payload == nil {
		payload = map[string]any{}
	}

	response, err := h.tracer.TraceFlow(ctx, flow, payload)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(response)
}

// HealthCheck handles GET /health.
func (h *Handlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK
	storeCheck := "ok"

	if err := h.health.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
		storeCheck = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"store": storeCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
