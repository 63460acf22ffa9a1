package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ninebudget/ninebudget/internal/config"
	"github.com/ninebudget/ninebudget/internal/http/features/account"
	"github.com/ninebudget/ninebudget/internal/http/features/users"
	"github.com/ninebudget/ninebudget/internal/http/middleware"
	"github.com/ninebudget/ninebudget/internal/httputil"
	"github.com/ninebudget/ninebudget/internal/notification"
	"github.com/ninebudget/ninebudget/pkg/lifecycle"
)

// maxRequestBodySize caps request bodies; lifecycle payloads are tiny.
const maxRequestBodySize = 1 << 20

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger          *slog.Logger
	Lifecycle       *lifecycle.Service
	EmailService    *notification.EmailService
	AppBaseURL      string
	RateLimitConfig config.RateLimitConfig
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.RequestSizeLimit(maxRequestBodySize))
	r.Use(middleware.RequesterAccount)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Create rate limiters for different endpoint types
	rateLimiters := middleware.CreateRateLimiters(cfg.RateLimitConfig, cfg.Logger)

	accountHandler := account.NewHandler(
		cfg.Logger,
		cfg.Lifecycle,
		cfg.EmailService,
		cfg.AppBaseURL,
	)
	r.Group(func(r chi.Router) {
		r.Use(rateLimiters["auth"])
		r.Post("/v1/account/register", accountHandler.Register)
		r.Post("/v1/account/login", accountHandler.Login)
	})
	r.Get("/v1/account/activate", accountHandler.Activate)
	r.Group(func(r chi.Router) {
		r.Use(rateLimiters["reset"])
		r.Post("/v1/account/reset-password/init", accountHandler.RequestPasswordReset)
		r.Post("/v1/account/reset-password/finish", accountHandler.FinishPasswordReset)
	})

	usersHandler := users.NewHandler(cfg.Logger, cfg.Lifecycle)
	r.Delete("/v1/users/{id}", usersHandler.Delete)

	return r
}
