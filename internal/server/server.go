// Package server exposes the operational HTTP surface: health probes and
// Prometheus metrics. Domain operations are called in-process.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"threadline/internal/bootstrap"
	"threadline/internal/config"
	"threadline/internal/handlers"
	"threadline/internal/models"
	"threadline/internal/observability"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
)

const serviceName = "threadline"

// Version is reported by the readiness probe.
var Version = "dev"

// Server owns the fiber app and the runtime it reports on.
type Server struct {
	config  *config.Config
	runtime *bootstrap.Runtime
	app     *fiber.App
	prom    *fiberprometheus.FiberPrometheus
}

// New builds the app. registerer receives the HTTP metrics; nil uses the
// default Prometheus registry.
func New(cfg *config.Config, rt *bootstrap.Runtime, registerer prometheus.Registerer) *Server {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	s := &Server{
		config:  cfg,
		runtime: rt,
		prom:    fiberprometheus.NewWithRegistry(registerer, serviceName, "http", "", nil),
	}

	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			observability.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, models.HTTPStatus(err), err)
		},
	})
	s.app = app
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) setupMiddleware() {
	s.app.Use(recover.New())
	s.app.Use(requestid.New())
	s.app.Use(contextMiddleware())
	s.app.Use(s.prom.Middleware)
}

func (s *Server) setupRoutes() {
	h := &handlers.Handlers{Version: Version}
	if s.runtime != nil {
		h.Store = s.runtime.Store
		if s.runtime.Sessions != nil {
			h.Sessions = s.runtime.Sessions
		}
	}
	s.app.Get("/health/live", h.Live)
	s.app.Get("/healthz", h.Ready)
	s.prom.RegisterAt(s.app, "/metrics")
}

// contextMiddleware moves the request id into the user context for logging.
func contextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rid, ok := c.Locals("requestid").(string); ok {
			c.SetUserContext(observability.WithRequestID(c.UserContext(), rid))
		}
		return c.Next()
	}
}

// Run loads configuration, starts the runtime and serves until SIGINT or SIGTERM.
func Run() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	return RunWithQuit(quit)
}

// RunWithQuit behaves like Run but stops when quit receives.
func RunWithQuit(quit <-chan os.Signal) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	observability.InitLogger(cfg.Env, cfg.LogLevel)

	shutdownTracing, err := observability.InitTracing(context.Background(), observability.TracingConfig{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSamplerRatio,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	rt, err := bootstrap.InitRuntime(context.Background(), cfg)
	if err != nil {
		_ = shutdownTracing(context.Background())
		return err
	}

	s := New(cfg, rt, nil)
	errCh := make(chan error, 1)
	go func() {
		observability.Logger.Info("server starting", slog.String("port", cfg.Port))
		errCh <- s.app.Listen(":" + cfg.Port)
	}()

	var serveErr error
	select {
	case <-quit:
		observability.Logger.Info("shutting down server")
	case serveErr = <-errCh:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		observability.Logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	if err := rt.Close(); err != nil {
		observability.Logger.Error("runtime close error", slog.String("error", err.Error()))
	}
	if err := shutdownTracing(ctx); err != nil {
		observability.Logger.Error("tracing shutdown error", slog.String("error", err.Error()))
	}
	observability.Logger.Info("server shutdown complete")
	return serveErr
}
