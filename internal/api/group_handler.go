package api

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"signalcraft-go/internal/domain"
	"signalcraft-go/internal/grouping"
	"signalcraft-go/internal/store"
)

// GroupHandler handles HTTP requests for alert group operations.
type GroupHandler struct {
	service *grouping.Service
	events  store.EventRepository
	logger  *slog.Logger
}

// NewGroupHandler creates a new alert group handler.
func NewGroupHandler(service *grouping.Service, events store.EventRepository, logger *slog.Logger) *GroupHandler {
	return &GroupHandler{
		service: service,
		events:  events,
		logger:  logger,
	}
}

// List handles GET /v1/workspaces/:workspaceID/alert-groups
// Returns groups matching the optional status/project/environment filters.
func (h *GroupHandler) List(c *fiber.Ctx) error {
	workspaceID := c.Params("workspaceID")

	filter := domain.GroupFilter{
		WorkspaceID: workspaceID,
		Project:     c.Query("project"),
		Environment: c.Query("environment"),
		Limit:       c.QueryInt("limit", 50),
		Offset:      c.QueryInt("offset", 0),
	}
	if status := c.Query("status"); status != "" {
		filter.Status = domain.GroupStatus(status)
		if !filter.Status.IsValid() {
			return BadRequest(c, "invalid status filter")
		}
	}

	groups, err := h.service.List(c.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list alert groups", "workspace_id", workspaceID, "error", err)
		return InternalError(c, "failed to list alert groups")
	}

	return Success(c, groups)
}

// GetByID handles GET /v1/workspaces/:workspaceID/alert-groups/:id
func (h *GroupHandler) GetByID(c *fiber.Ctx) error {
	workspaceID := c.Params("workspaceID")
	id := c.Params("id")

	group, err := h.service.Get(c.Context(), workspaceID, id)
	if err != nil {
		if errors.Is(err, domain.ErrGroupNotFound) {
			return NotFound(c, "alert group not found")
		}
		h.logger.Error("failed to get alert group", "group_id", id, "error", err)
		return InternalError(c, "failed to get alert group")
	}

	return Success(c, group)
}

// ListEvents handles GET /v1/workspaces/:workspaceID/alert-groups/:id/events
// Returns the occurrences folded into a group, newest first.
func (h *GroupHandler) ListEvents(c *fiber.Ctx) error {
	workspaceID := c.Params("workspaceID")
	id := c.Params("id")
	limit := c.QueryInt("limit", 50)

	events, err := h.events.ListByGroup(c.Context(), workspaceID, id, limit)
	if err != nil {
		h.logger.Error("failed to list group events", "group_id", id, "error", err)
		return InternalError(c, "failed to list group events")
	}

	return Success(c, events)
}

type acknowledgeRequest struct {
	UserID string `json:"user_id"`
}

// Acknowledge handles POST /v1/workspaces/:workspaceID/alert-groups/:id/ack
func (h *GroupHandler) Acknowledge(c *fiber.Ctx) error {
	workspaceID := c.Params("workspaceID")
	id := c.Params("id")

	var req acknowledgeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return BadRequest(c, "invalid request body")
		}
	}

	group, err := h.service.Acknowledge(c.Context(), workspaceID, id, req.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrGroupNotFound) {
			return NotFound(c, "alert group not found")
		}
		h.logger.Error("failed to acknowledge alert group", "group_id", id, "error", err)
		return InternalError(c, "failed to acknowledge alert group")
	}

	return Success(c, group)
}

type resolveRequest struct {
	Notes      string `json:"notes"`
	ResolvedBy string `json:"resolved_by"`
}

// Resolve handles POST /v1/workspaces/:workspaceID/alert-groups/:id/resolve
func (h *GroupHandler) Resolve(c *fiber.Ctx) error {
	workspaceID := c.Params("workspaceID")
	id := c.Params("id")

	var req resolveRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return BadRequest(c, "invalid request body")
		}
	}

	group, err := h.service.Resolve(c.Context(), workspaceID, id, req.Notes, req.ResolvedBy)
	if err != nil {
		if errors.Is(err, domain.ErrGroupNotFound) {
			return NotFound(c, "alert group not found")
		}
		h.logger.Error("failed to resolve alert group", "group_id", id, "error", err)
		return InternalError(c, "failed to resolve alert group")
	}

	return Success(c, group)
}

type snoozeRequest struct {
	DurationMinutes int `json:"duration_minutes"`
}

// Snooze handles POST /v1/workspaces/:workspaceID/alert-groups/:id/snooze
func (h *GroupHandler) Snooze(c *fiber.Ctx) error {
	workspaceID := c.Params("workspaceID")
	id := c.Params("id")

	var req snoozeRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequest(c, "invalid request body")
	}

	group, err := h.service.Snooze(c.Context(), workspaceID, id, time.Duration(req.DurationMinutes)*time.Minute)
	if err != nil {
		if errors.Is(err, domain.ErrGroupNotFound) {
			return NotFound(c, "alert group not found")
		}
		if domain.IsValidation(err) {
			return ValidationError(c, err.Error())
		}
		h.logger.Error("failed to snooze alert group", "group_id", id, "error", err)
		return InternalError(c, "failed to snooze alert group")
	}

	return Success(c, group)
}
