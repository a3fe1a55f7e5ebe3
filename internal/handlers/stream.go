package handlers

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/codebuildervaibhav/yt-audio-converter/internal/jobs"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/logging"
)

// DefaultStreamInterval is how often a watched job is re-read.
const DefaultStreamInterval = time.Second

// StreamHandler pushes job snapshots over a WebSocket until the job settles.
type StreamHandler struct {
	service  Service
	interval time.Duration
	logger   *slog.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(service Service, interval time.Duration, logger *slog.Logger) *StreamHandler {
	if interval <= 0 {
		interval = DefaultStreamInterval
	}
	return &StreamHandler{
		service:  service,
		interval: interval,
		logger:   logging.Component(logger, "ws"),
	}
}

// Upgrade rejects plain HTTP requests on WebSocket routes.
func (h *StreamHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Handle processes WebSocket connections on /ws/convert/:id. A snapshot is
// sent whenever the job changes; the socket closes after Ready or Error, once
// the job is gone, or when the client goes away.
func (h *StreamHandler) Handle(c *websocket.Conn) {
	id := c.Params("id")
	logger := h.logger.With(logging.String("job_id", id))
	logger.Debug("watch connection established")

	// Client frames are discarded; a read error means the peer is gone.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()
	// The conn goes back to its pool once Handle returns, so the reader must
	// be finished by then.
	defer func() {
		c.Close()
		<-gone
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var lastUpdate time.Time
	for {
		job, err := h.service.Get(id)
		if errors.Is(err, jobs.ErrNotFound) {
			_ = c.WriteJSON(ErrorResponse{Error: "Conversion job not found", Code: CodeJobNotFound})
			return
		}
		if err != nil {
			_ = c.WriteJSON(ErrorResponse{Error: "Internal server error", Code: CodeInternal})
			return
		}

		if !job.UpdatedAt.Equal(lastUpdate) {
			lastUpdate = job.UpdatedAt
			if err := c.WriteJSON(job); err != nil {
				logger.Debug("watch write failed", logging.Error(err))
				return
			}
		}
		if job.Status.Terminal() {
			_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(job.Status)))
			return
		}

		select {
		case <-ticker.C:
		case <-gone:
			logger.Debug("watcher disconnected")
			return
		}
	}
}
