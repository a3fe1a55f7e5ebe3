package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// Error codes returned in the "code" field of error bodies.
const (
	CodeInvalidBody     = "ERR_INVALID_BODY"
	CodeNoURL           = "ERR_NO_URL"
	CodeInvalidURL      = "ERR_INVALID_URL"
	CodeNoVideoID       = "ERR_NO_VIDEO_ID"
	CodeInvalidQuality  = "ERR_INVALID_QUALITY"
	CodeJobNotFound     = "ERR_JOB_NOT_FOUND"
	CodeNotReady        = "ERR_NOT_READY"
	CodeFileExpired     = "ERR_FILE_EXPIRED"
	CodeRangeNotAllowed = "ERR_RANGE_NOT_SATISFIABLE"
	CodeHistoryDisabled = "ERR_HISTORY_DISABLED"
	CodeInternal        = "ERR_INTERNAL"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondError(c *fiber.Ctx, status int, message, code string) error {
	return c.Status(status).JSON(ErrorResponse{Error: message, Code: code})
}

// ErrorHandler renders errors that escape a handler (including recovered
// panics and fiber routing errors) in the same JSON shape.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "Internal server error"
	code := CodeInternal
	if fe, ok := err.(*fiber.Error); ok {
		status = fe.Code
		message = fe.Message
		if status == fiber.StatusNotFound {
			code = "ERR_NOT_FOUND"
		}
	}
	return respondError(c, status, message, code)
}
