package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/spec-kit/official-relay/internal/api/http/handlers"
	"github.com/spec-kit/official-relay/internal/auth"
	"github.com/spec-kit/official-relay/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Callback       *handlers.CallbackHandler
	Official       *handlers.OfficialHandler
	Binding        *handlers.BindingHandler
	AuthMiddleware *auth.AuthMiddleware
	Gatherer       prometheus.Gatherer
}

// AppConfig describes the fiber application.
type AppConfig struct {
	Name           string
	RequestTimeout time.Duration
	Logger         *zap.Logger
	Metrics        *observability.Metrics
}

// NewApp builds the fiber application with middlewares and routes attached.
func NewApp(cfg AppConfig, routes RouteConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               cfg.Name,
		DisableStartupMessage: true,
	})
	RegisterMiddlewares(app, cfg.Logger, cfg.Metrics, cfg.RequestTimeout)
	RegisterRoutes(app, routes)
	return app
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	if cfg.Health != nil {
		app.Get("/health/live", cfg.Health.Live)
		app.Get("/health/ready", cfg.Health.Ready)
	}
	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	app.Get("/wx/callback", cfg.Callback.Verify)
	app.Post("/wx/callback", cfg.Callback.Receive)

	api := app.Group("/api/official", cfg.AuthMiddleware.Handle)
	api.Get("/token", cfg.Official.AccessToken)
	api.Post("/qrcode/create", cfg.Official.CreateQRCode)
	api.Post("/template/send", cfg.Official.SendTemplateMessage)
	api.Get("/user/get", cfg.Official.ListFollowers)
	api.Post("/user/batchget", cfg.Official.BatchGetUserInfo)

	api.Post("/bind/codes", cfg.Binding.IssueCode)
	api.Get("/bind/status", cfg.Binding.Status)
}
