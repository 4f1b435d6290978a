package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/transcribe-worker/internal/storage"
)

// Capabilities reports what the loaded model bundle can do
type Capabilities interface {
	DiarizationEnabled() bool
	AlignLanguages() []string
}

// Catalog lists models this worker has loaded
type Catalog interface {
	ListModels(ctx context.Context, limit int) ([]storage.ModelRecord, error)
}

// StatusHandler serves health and model catalog endpoints
type StatusHandler struct {
	models    Capabilities
	catalog   Catalog
	modelName string
	started   time.Time
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(models Capabilities, catalog Catalog, modelName string) *StatusHandler {
	return &StatusHandler{
		models:    models,
		catalog:   catalog,
		modelName: modelName,
		started:   time.Now(),
	}
}

// Health reports liveness and the bundle's capability flags
func (h *StatusHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":              "healthy",
		"model":               h.modelName,
		"diarization_enabled": h.models.DiarizationEnabled(),
		"align_languages":     h.models.AlignLanguages(),
		"uptime_seconds":      int64(time.Since(h.started).Seconds()),
	})
}

// Models lists the model catalog
func (h *StatusHandler) Models(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	models, err := h.catalog.ListModels(c.UserContext(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
			"code":  "ERR_CATALOG",
		})
	}
	return c.JSON(fiber.Map{"models": models})
}
