// Package web serves the operations API: health probes, event ingest and
// read-only views over automations, executions and action logs.
package web

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dripline/dripline/pkg/eventbus"
	"github.com/dripline/dripline/pkg/events"
	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/persistence"
	"github.com/dripline/dripline/pkg/registry"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

type APIHandlers struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	validator   *validator.Validate
	registry    *registry.Registry
	now         func() time.Time
}

// NewAPIHandlers builds the handlers. publisher may be nil, in which case
// POST /events answers 503.
func NewAPIHandlers(
	persistence persistence.Persistence,
	publisher eventbus.EventPublisher,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		persistence: persistence,
		publisher:   publisher,
		validator:   validator,
		registry:    registry,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// NewValidator returns a validator that also understands the domain_event tag.
func NewValidator() (*validator.Validate, error) {
	v := validator.New(validator.WithRequiredStructEnabled())

	err := v.RegisterValidation("domain_event", func(fl validator.FieldLevel) bool {
		return events.IsDomainEvent(events.EventType(fl.Field().String()))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register domain_event validation: %w", err)
	}

	return v, nil
}

func RegisterRoutes(app *fiber.App, h *APIHandlers) {
	app.Get("/livez", h.Livez)
	app.Get("/health", h.HealthCheck)
	app.Get("/node-types", h.GetNodeTypes)
	app.Post("/events", h.PublishEvent)

	a := app.Group("/automations")
	a.Get("/", h.GetAutomations)
	a.Get("/:id", h.GetAutomation)
	a.Get("/:id/executions", h.GetExecutions)
	a.Get("/:id/executions/:subscriberId", h.GetExecution)
	a.Get("/:id/logs", h.GetActionLogs)
}

func (h *APIHandlers) Livez(c fiber.Ctx) error {
	return c.SendString("ok")
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK
	repository := "ok"

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
		repository = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"repository": repository,
			"node_types": len(h.registry.Types()),
		},
		"timestamp": h.now(),
	})
}

func (h *APIHandlers) GetNodeTypes(c fiber.Ctx) error {
	types := h.registry.Types()
	response := make([]NodeTypeResponse, 0, len(types))

	for _, t := range types {
		handler, err := h.registry.Handler(t)
		if err != nil {
			continue
		}

		response = append(response, NodeTypeResponse{
			Type:        t,
			Name:        handler.Name(),
			Description: handler.Description(),
			Schema:      handler.Schema(),
		})
	}

	return c.JSON(response)
}

func (h *APIHandlers) PublishEvent(c fiber.Ctx) error {
	if h.publisher == nil {
		return unavailable(c, "event bus is not configured")
	}

	var req PublishEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	event := events.NewDomainEvent(events.EventType(req.Type), events.Payload{
		SubscriberID: req.SubscriberID,
		UserID:       req.UserID,
		Lists:        req.Lists,
		Data:         req.Data,
	})

	if err := h.publisher.Publish(c.Context(), req.SubscriberID, event); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(PublishEventResponse{
		ID:   event.ID,
		Type: req.Type,
	})
}

func (h *APIHandlers) GetAutomations(c fiber.Ctx) error {
	automations, err := h.persistence.AutomationRepository().List(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	response := make([]AutomationSummary, 0, len(automations))
	for _, a := range automations {
		response = append(response, SummarizeAutomation(a))
	}

	return c.JSON(fiber.Map{
		"automations": response,
		"total_count": len(response),
	})
}

func (h *APIHandlers) GetAutomation(c fiber.Ctx) error {
	automation, err := h.persistence.AutomationRepository().ByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(automation)
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	id := c.Params("id")

	executions, err := h.persistence.ExecutionRepository().ListByAutomation(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	if status := c.Query("status"); status != "" {
		executions = filterByStatus(executions, models.ExecutionStatus(status))
	}

	if executions == nil {
		executions = []*models.AutomationExecution{}
	}

	return c.JSON(fiber.Map{
		"executions":  executions,
		"total_count": len(executions),
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.persistence.ExecutionRepository().ByKey(c.Context(), c.Params("id"), c.Params("subscriberId"))
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetActionLogs(c fiber.Ctx) error {
	limit := defaultLogLimit

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 || parsed > maxLogLimit {
			return badRequest(c, "limit must be between 1 and "+strconv.Itoa(maxLogLimit))
		}

		limit = parsed
	}

	logs, err := h.persistence.ActionLogRepository().ListByAutomation(c.Context(), c.Params("id"), limit)
	if err != nil {
		return internalError(c, err)
	}

	if logs == nil {
		logs = []*models.ActionLog{}
	}

	return c.JSON(fiber.Map{
		"logs":  logs,
		"limit": limit,
	})
}

func filterByStatus(executions []*models.AutomationExecution, status models.ExecutionStatus) []*models.AutomationExecution {
	filtered := make([]*models.AutomationExecution, 0, len(executions))

	for _, e := range executions {
		if e.Status == status {
			filtered = append(filtered, e)
		}
	}

	return filtered
}
