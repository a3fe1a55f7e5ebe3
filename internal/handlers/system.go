package handlers

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/yt-audio-converter/internal/logging"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/storage"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/types"
)

// Version is reported by /health.
const Version = "1.0.0"

// HistoryLister lists finished conversions.
type HistoryLister interface {
	List(ctx context.Context, limit int) ([]storage.HistoryRecord, error)
}

// LogSource returns the in-memory log tail.
type LogSource interface {
	Lines() []string
}

// ClientSettings is advertised at /config/client.
type ClientSettings struct {
	PollIntervalMs int             `json:"pollIntervalMs"`
	PreviewSeconds int             `json:"previewSeconds"`
	Qualities      []types.Quality `json:"qualities"`
	DefaultQuality types.Quality   `json:"defaultQuality"`
}

// SystemHandler serves health, logs, history and client settings.
type SystemHandler struct {
	service Service
	history HistoryLister
	logs    LogSource
	client  ClientSettings
	logger  *slog.Logger
}

// NewSystemHandler creates a new system handler. history and logs may be nil.
func NewSystemHandler(service Service, history HistoryLister, logs LogSource, client ClientSettings, logger *slog.Logger) *SystemHandler {
	if len(client.Qualities) == 0 {
		client.Qualities = types.Qualities()
	}
	if client.DefaultQuality == "" {
		client.DefaultQuality = types.DefaultQuality
	}
	return &SystemHandler{
		service: service,
		history: history,
		logs:    logs,
		client:  client,
		logger:  logging.Component(logger, "http"),
	}
}

// Health processes GET /health.
func (h *SystemHandler) Health(c *fiber.Ctx) error {
	counts := make(map[string]int)
	for status, n := range h.service.JobCounts() {
		counts[string(status)] = n
	}
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"version": Version,
		"queue":   h.service.QueueStats(),
		"jobs":    counts,
	})
}

// Logs processes GET /logs.
func (h *SystemHandler) Logs(c *fiber.Ctx) error {
	lines := []string{}
	if h.logs != nil {
		lines = h.logs.Lines()
	}
	return c.JSON(fiber.Map{"logs": lines})
}

// ClientConfig processes GET /config/client.
func (h *SystemHandler) ClientConfig(c *fiber.Ctx) error {
	return c.JSON(h.client)
}

// History processes GET /history?limit=N.
func (h *SystemHandler) History(c *fiber.Ctx) error {
	if h.history == nil {
		return respondError(c, fiber.StatusNotFound, "Conversion history is disabled", CodeHistoryDisabled)
	}
	limit := c.QueryInt("limit", storage.DefaultHistoryLimit)
	records, err := h.history.List(c.UserContext(), limit)
	if err != nil {
		h.logger.Error("history listing failed", logging.Error(err))
		return respondError(c, fiber.StatusInternalServerError, "Failed to list conversions", CodeInternal)
	}
	return c.JSON(fiber.Map{"conversions": records})
}
