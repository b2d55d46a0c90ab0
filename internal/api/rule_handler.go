package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"signalcraft-go/internal/domain"
	"signalcraft-go/internal/rules"
	"signalcraft-go/internal/store"
)

// RuleHandler handles HTTP requests for routing rule operations.
type RuleHandler struct {
	repo   store.RuleRepository
	engine *rules.Engine
	logger *slog.Logger
}

// NewRuleHandler creates a new routing rule handler.
func NewRuleHandler(repo store.RuleRepository, engine *rules.Engine, logger *slog.Logger) *RuleHandler {
	return &RuleHandler{
		repo:   repo,
		engine: engine,
		logger: logger,
	}
}

// Create handles POST /v1/workspaces/:workspaceID/routing-rules
func (h *RuleHandler) Create(c *fiber.Ctx) error {
	workspaceID := c.Params("workspaceID")

	var rule domain.RoutingRule
	if err := c.BodyParser(&rule); err != nil {
		h.logger.Debug("failed to parse request body", "error", err)
		return BadRequest(c, "invalid request body")
	}
	rule.WorkspaceID = workspaceID
	rule.ID = ""

	if err := rule.Validate(); err != nil {
		h.logger.Debug("rule validation failed", "error", err)
		return ValidationError(c, err.Error())
	}

	if err := h.repo.Create(c.Context(), &rule); err != nil {
		h.logger.Error("failed to create routing rule", "error", err)
		return InternalError(c, "failed to create routing rule")
	}

	h.engine.InvalidateCache(workspaceID)
	h.logger.Info("created routing rule", "workspace_id", workspaceID, "rule_id", rule.ID, "name", rule.Name)
	return Created(c, rule)
}

// List handles GET /v1/workspaces/:workspaceID/routing-rules
func (h *RuleHandler) List(c *fiber.Ctx) error {
	workspaceID := c.Params("workspaceID")

	list, err := h.repo.List(c.Context(), workspaceID)
	if err != nil {
		h.logger.Error("failed to list routing rules", "workspace_id", workspaceID, "error", err)
		return InternalError(c, "failed to list routing rules")
	}

	return Success(c, list)
}

// GetByID handles GET /v1/workspaces/:workspaceID/routing-rules/:id
func (h *RuleHandler) GetByID(c *fiber.Ctx) error {
	workspaceID := c.Params("workspaceID")
	id := c.Params("id")

	rule, err := h.repo.GetByID(c.Context(), workspaceID, id)
	if err != nil {
		if errors.Is(err, domain.ErrRuleNotFound) {
			return NotFound(c, "routing rule not found")
		}
		h.logger.Error("failed to get routing rule", "rule_id", id, "error", err)
		return InternalError(c, "failed to get routing rule")
	}

	return Success(c, rule)
}

// Update handles PUT /v1/workspaces/:workspaceID/routing-rules/:id
func (h *RuleHandler) Update(c *fiber.Ctx) error {
	workspaceID := c.Params("workspaceID")
	id := c.Params("id")

	existing, err := h.repo.GetByID(c.Context(), workspaceID, id)
	if err != nil {
		if errors.Is(err, domain.ErrRuleNotFound) {
			return NotFound(c, "routing rule not found")
		}
		h.logger.Error("failed to get routing rule", "rule_id", id, "error", err)
		return InternalError(c, "failed to get routing rule")
	}

	var rule domain.RoutingRule
	if err := c.BodyParser(&rule); err != nil {
		h.logger.Debug("failed to parse request body", "error", err)
		return BadRequest(c, "invalid request body")
	}
	rule.ID = existing.ID
	rule.WorkspaceID = workspaceID
	rule.CreatedAt = existing.CreatedAt

	if err := rule.Validate(); err != nil {
		h.logger.Debug("rule validation failed", "error", err)
		return ValidationError(c, err.Error())
	}

	if err := h.repo.Update(c.Context(), &rule); err != nil {
		h.logger.Error("failed to update routing rule", "rule_id", id, "error", err)
		return InternalError(c, "failed to update routing rule")
	}

	h.engine.InvalidateCache(workspaceID)
	h.logger.Info("updated routing rule", "workspace_id", workspaceID, "rule_id", id)
	return Success(c, rule)
}

// Delete handles DELETE /v1/workspaces/:workspaceID/routing-rules/:id
func (h *RuleHandler) Delete(c *fiber.Ctx) error {
	workspaceID := c.Params("workspaceID")
	id := c.Params("id")

	if err := h.repo.Delete(c.Context(), workspaceID, id); err != nil {
		if errors.Is(err, domain.ErrRuleNotFound) {
			return NotFound(c, "routing rule not found")
		}
		h.logger.Error("failed to delete routing rule", "rule_id", id, "error", err)
		return InternalError(c, "failed to delete routing rule")
	}

	h.engine.InvalidateCache(workspaceID)
	h.logger.Info("deleted routing rule", "workspace_id", workspaceID, "rule_id", id)
	return NoContent(c)
}

type testRuleRequest struct {
	Conditions domain.ConditionGroup      `json:"conditions"`
	Alert      *domain.AlertForEvaluation `json:"alert"`
}

type testRuleResponse struct {
	Matched bool                     `json:"matched"`
	Details []domain.ConditionDetail `json:"details"`
}

// Test handles POST /v1/workspaces/:workspaceID/routing-rules/test
// Dry-runs a condition set against a sample alert without persisting
// anything. The per-condition details explain the verdict.
func (h *RuleHandler) Test(c *fiber.Ctx) error {
	var req testRuleRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Debug("failed to parse request body", "error", err)
		return BadRequest(c, "invalid request body")
	}
	if req.Alert == nil {
		return ValidationError(c, "alert is required")
	}
	if req.Conditions.Empty() {
		return ValidationError(c, "conditions are required")
	}

	matched, details := h.engine.TestRule(req.Conditions, req.Alert)
	return Success(c, testRuleResponse{Matched: matched, Details: details})
}
