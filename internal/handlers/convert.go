package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/yt-audio-converter/internal/convert"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/jobs"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/logging"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/queue"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/source"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/types"
)

// Service is what the handlers need from the conversion service.
type Service interface {
	Submit(ctx context.Context, rawURL, rawQuality string) (convert.Submission, error)
	Get(id string) (jobs.Job, error)
	QueueStats() queue.Stats
	JobCounts() map[types.Status]int
}

// ConvertHandler handles submissions and status polling.
type ConvertHandler struct {
	service Service
	logger  *slog.Logger
}

// NewConvertHandler creates a new convert handler.
func NewConvertHandler(service Service, logger *slog.Logger) *ConvertHandler {
	return &ConvertHandler{
		service: service,
		logger:  logging.Component(logger, "http"),
	}
}

// ConvertRequest represents the request body. youtubeUrl and url are accepted
// as aliases of sourceUrl.
type ConvertRequest struct {
	SourceURL  string `json:"sourceUrl"`
	YoutubeURL string `json:"youtubeUrl"`
	URL        string `json:"url"`
	Quality    string `json:"quality"`
}

func (r ConvertRequest) source() string {
	for _, candidate := range []string{r.SourceURL, r.YoutubeURL, r.URL} {
		if s := strings.TrimSpace(candidate); s != "" {
			return s
		}
	}
	return ""
}

// SubmitResponse is returned by POST /convert.
type SubmitResponse struct {
	ID            string       `json:"id"`
	Status        types.Status `json:"status"`
	Progress      int          `json:"progress"`
	QueuePosition int          `json:"queuePosition,omitempty"`
	EstimatedWait string       `json:"estimatedWait,omitempty"`
	Cached        bool         `json:"cached,omitempty"`
	Title         string       `json:"title,omitempty"`
	Duration      string       `json:"duration,omitempty"`
	FileName      string       `json:"fileName,omitempty"`
	FileSize      string       `json:"fileSize,omitempty"`
}

// Submit processes POST /convert.
func (h *ConvertHandler) Submit(c *fiber.Ctx) error {
	var req ConvertRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, "Invalid request body", CodeInvalidBody)
	}

	rawURL := req.source()
	if rawURL == "" {
		return respondError(c, fiber.StatusBadRequest, "URL is required", CodeNoURL)
	}

	sub, err := h.service.Submit(c.UserContext(), rawURL, req.Quality)
	switch {
	case errors.Is(err, types.ErrUnknownQuality):
		return respondError(c, fiber.StatusBadRequest, "Unsupported quality. Choose 128, 192 or 320.", CodeInvalidQuality)
	case errors.Is(err, source.ErrNoContentKey):
		return respondError(c, fiber.StatusBadRequest, "Could not extract video ID from URL", CodeNoVideoID)
	case errors.Is(err, source.ErrInvalidURL):
		return respondError(c, fiber.StatusBadRequest, "Invalid YouTube URL", CodeInvalidURL)
	case err != nil:
		h.logger.Error("submit failed", logging.Error(err))
		return respondError(c, fiber.StatusInternalServerError, "Internal server error", CodeInternal)
	}

	job := sub.Job
	resp := SubmitResponse{
		ID:            job.ID,
		Status:        job.Status,
		Progress:      job.Progress,
		QueuePosition: job.QueuePosition,
		EstimatedWait: job.EstimatedWait,
		Cached:        sub.Cached,
	}
	if sub.Cached {
		resp.Title = job.Title
		resp.Duration = job.Duration
		resp.FileName = job.FileName
		resp.FileSize = job.FileSize
	}
	return c.JSON(resp)
}

// Status processes GET /convert/:id.
func (h *ConvertHandler) Status(c *fiber.Ctx) error {
	job, err := h.service.Get(c.Params("id"))
	if errors.Is(err, jobs.ErrNotFound) {
		return respondError(c, fiber.StatusNotFound, "Conversion job not found", CodeJobNotFound)
	}
	if err != nil {
		return respondError(c, fiber.StatusInternalServerError, "Internal server error", CodeInternal)
	}
	return c.JSON(job)
}
