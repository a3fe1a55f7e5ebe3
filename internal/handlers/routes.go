package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/codebuildervaibhav/yt-audio-converter/internal/preview"
)

// AppOptions wires the HTTP surface.
type AppOptions struct {
	Service        Service
	Slicer         preview.Slicer
	History        HistoryLister
	Logs           LogSource
	Metrics        http.Handler
	Client         ClientSettings
	StreamInterval time.Duration
	// AccessLog receives one line per request; nil disables access logging.
	AccessLog io.Writer
	Logger    *slog.Logger
}

// NewApp builds the fiber app with middleware and every route mounted both
// under /api and at the root.
func NewApp(opts AppOptions) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "yt-audio-converter",
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler,
		BodyLimit:             64 * 1024,
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	if opts.AccessLog != nil {
		app.Use(logger.New(logger.Config{Output: opts.AccessLog}))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Range",
		ExposeHeaders: "Content-Range, Content-Length, Content-Disposition, Accept-Ranges",
	}))

	if opts.Slicer.Seconds() == 0 {
		opts.Slicer = preview.New(preview.DefaultSeconds, preview.DefaultBitrateKbps)
	}
	convertHandler := NewConvertHandler(opts.Service, opts.Logger)
	downloadHandler := NewDownloadHandler(opts.Service, opts.Slicer, opts.Logger)
	streamHandler := NewStreamHandler(opts.Service, opts.StreamInterval, opts.Logger)
	opts.Client.PreviewSeconds = opts.Slicer.Seconds()
	systemHandler := NewSystemHandler(opts.Service, opts.History, opts.Logs, opts.Client, opts.Logger)

	for _, r := range []fiber.Router{app.Group("/api"), app} {
		r.Post("/convert", convertHandler.Submit)
		r.Get("/convert/:id", convertHandler.Status)
		r.Get("/download/:id", downloadHandler.Download)
		r.Get("/preview/:id", downloadHandler.Preview)
		r.Get("/history", systemHandler.History)
		r.Get("/health", systemHandler.Health)
		r.Get("/logs", systemHandler.Logs)
		r.Get("/config/client", systemHandler.ClientConfig)
		r.Get("/ws/convert/:id", streamHandler.Upgrade, websocket.New(streamHandler.Handle))
		if opts.Metrics != nil {
			r.Get("/metrics", adaptor.HTTPHandler(opts.Metrics))
		}
	}

	return app
}
