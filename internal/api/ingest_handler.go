package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"signalcraft-go/internal/domain"
	"signalcraft-go/internal/pipeline"
)

// IngestHandler handles HTTP requests for webhook ingestion.
type IngestHandler struct {
	pipeline *pipeline.Service
	logger   *slog.Logger
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(p *pipeline.Service, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{
		pipeline: p,
		logger:   logger,
	}
}

// Ingest handles POST /v1/workspaces/:workspaceID/ingest/:source
// Accepts a raw webhook payload and runs it through the pipeline.
func (h *IngestHandler) Ingest(c *fiber.Ctx) error {
	workspaceID := c.Params("workspaceID")
	source := c.Params("source")
	if workspaceID == "" || source == "" {
		return BadRequest(c, "workspace and source are required")
	}

	body := c.Body()
	if len(body) == 0 {
		return BadRequest(c, "request body is empty")
	}

	result, err := h.pipeline.Process(c.Context(), workspaceID, source, body)
	if err != nil {
		if domain.IsValidation(err) {
			h.logger.Debug("payload rejected", "workspace_id", workspaceID, "source", source, "error", err)
			return ValidationError(c, err.Error())
		}
		var notConfigured *domain.NotConfiguredError
		if errors.As(err, &notConfigured) {
			return NotConfigured(c, notConfigured.Error())
		}
		h.logger.Error("failed to process alert", "workspace_id", workspaceID, "source", source, "error", err)
		return InternalError(c, "failed to process alert")
	}

	return Accepted(c, result)
}
