package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/yt-audio-converter/internal/jobs"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/logging"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/media"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/preview"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/types"
)

const audioContentType = "audio/mpeg"

// DownloadHandler serves finished artifacts and their preview prefix.
type DownloadHandler struct {
	service Service
	slicer  preview.Slicer
	logger  *slog.Logger
}

// NewDownloadHandler creates a new download handler.
func NewDownloadHandler(service Service, slicer preview.Slicer, logger *slog.Logger) *DownloadHandler {
	return &DownloadHandler{
		service: service,
		slicer:  slicer,
		logger:  logging.Component(logger, "http"),
	}
}

// Download processes GET /download/:id.
func (h *DownloadHandler) Download(c *fiber.Ctx) error {
	job, file, size, err := h.openArtifact(c)
	if err != nil || file == nil {
		return err
	}

	name := job.FileName
	if name == "" {
		name = media.DefaultFileName
	}
	c.Set(fiber.HeaderContentType, audioContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", name, url.PathEscape(name)))
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.SendStream(file, int(size))
}

// Preview processes GET /preview/:id. Only the first Budget(size) bytes are
// ever read; a Range header selects a window inside that prefix.
func (h *DownloadHandler) Preview(c *fiber.Ctx) error {
	_, file, size, err := h.openArtifact(c)
	if err != nil || file == nil {
		return err
	}

	budget := h.slicer.Budget(size)
	window := preview.Full(budget)
	status := fiber.StatusOK

	if header := c.Get(fiber.HeaderRange); header != "" {
		r, rangeErr := c.Range(int(budget))
		switch {
		case errors.Is(rangeErr, fiber.ErrRangeUnsatisfiable) && preview.StartsPastBudget(header, budget):
			file.Close()
			c.Set(fiber.HeaderContentRange, preview.UnsatisfiedRange(budget))
			return respondError(c, fiber.StatusRequestedRangeNotSatisfiable, "Requested range not satisfiable", CodeRangeNotAllowed)
		case rangeErr != nil || r.Type != "bytes":
			// Invalid, malformed or foreign units: serve the whole preview.
		default:
			clipped, clipErr := preview.Clip(int64(r.Ranges[0].Start), int64(r.Ranges[0].End), budget)
			if clipErr != nil {
				file.Close()
				c.Set(fiber.HeaderContentRange, preview.UnsatisfiedRange(budget))
				return respondError(c, fiber.StatusRequestedRangeNotSatisfiable, "Requested range not satisfiable", CodeRangeNotAllowed)
			}
			window = clipped
			status = fiber.StatusPartialContent
			c.Set(fiber.HeaderContentRange, window.ContentRange(budget))
		}
	}

	c.Status(status)
	c.Set(fiber.HeaderContentType, audioContentType)
	c.Set(fiber.HeaderAcceptRanges, "bytes")
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Set("X-Preview-Seconds", strconv.Itoa(h.slicer.Seconds()))
	return c.SendStream(&sectionFile{
		SectionReader: io.NewSectionReader(file, window.Start, window.Length()),
		file:          file,
	}, int(window.Length()))
}

// openArtifact resolves a ready job and opens its file. When it returns a nil
// file the error response has already been written (or err is set).
func (h *DownloadHandler) openArtifact(c *fiber.Ctx) (jobs.Job, *os.File, int64, error) {
	job, err := h.service.Get(c.Params("id"))
	if errors.Is(err, jobs.ErrNotFound) {
		return job, nil, 0, respondError(c, fiber.StatusNotFound, "Conversion job not found", CodeJobNotFound)
	}
	if err != nil {
		return job, nil, 0, respondError(c, fiber.StatusInternalServerError, "Internal server error", CodeInternal)
	}
	if job.Status != types.StatusReady {
		return job, nil, 0, respondError(c, fiber.StatusBadRequest, "File is not ready for download", CodeNotReady)
	}

	file, err := os.Open(job.ArtifactPath)
	if err != nil {
		if !os.IsNotExist(err) {
			h.logger.Warn("failed to open artifact", logging.String("job_id", job.ID), logging.Error(err))
		}
		return job, nil, 0, respondError(c, fiber.StatusNotFound, "File not found. It may have expired.", CodeFileExpired)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return job, nil, 0, respondError(c, fiber.StatusNotFound, "File not found. It may have expired.", CodeFileExpired)
	}
	return job, file, info.Size(), nil
}

// sectionFile closes the underlying file once the response body is written.
type sectionFile struct {
	*io.SectionReader
	file *os.File
}

func (s *sectionFile) Close() error {
	return s.file.Close()
}
