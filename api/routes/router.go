package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/labstock-backend/api/controllers"
	"github.com/angelmondragon/labstock-backend/api/middleware"
	"github.com/angelmondragon/labstock-backend/internal/auth"
	"github.com/angelmondragon/labstock-backend/internal/ledger"
	"github.com/angelmondragon/labstock-backend/internal/reports"
	"github.com/angelmondragon/labstock-backend/pkg/auth/session"
	"github.com/angelmondragon/labstock-backend/pkg/config"
	"github.com/angelmondragon/labstock-backend/pkg/db"
	"github.com/angelmondragon/labstock-backend/pkg/logger"
	"github.com/angelmondragon/labstock-backend/pkg/metrics"
	"github.com/angelmondragon/labstock-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	sessionManager session.AccessSessionChecker,
	authService auth.Service,
	ledgerService ledger.Service,
	reportsService reports.Service,
	httpMetrics *metrics.HTTPMetrics,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(httpMetrics),
		middleware.CORS(cfg.HTTP.AllowedOrigins),
		middleware.BodyLimit(cfg.HTTP.MaxBodyBytes),
	)

	// A nil *redis.Client must not reach the middleware as a non-nil interface.
	var (
		limiter     redis.RateLimiter
		idempotency redis.IdempotencyStore
	)
	checks := map[string]controllers.Pinger{"db": dbP}
	if redisClient != nil {
		limiter = redisClient
		idempotency = redisClient
		checks["redis"] = redisClient
	}

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginUsernameLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, checks, logg))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, limiter, logg)).Post("/login", controllers.AuthLogin(authService, logg))
		r.Post("/logout", controllers.AuthLogout(authService, logg))
		r.Post("/refresh", controllers.AuthRefresh(authService, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessionManager, logg))

		r.Put("/admin/credentials", controllers.AdminChangeCredentials(authService, logg))

		r.Route("/components", func(r chi.Router) {
			r.Get("/", controllers.ListComponents(ledgerService, logg))
			r.Post("/", controllers.RestockComponent(ledgerService, logg))
			r.Patch("/{id}/quantity", controllers.ResizeComponent(ledgerService, logg))
			r.Patch("/{id}/name", controllers.RenameComponent(ledgerService, logg))
			r.Delete("/{id}", controllers.DeleteComponent(ledgerService, logg))
			r.Get("/{id}/movements", controllers.ComponentMovements(ledgerService, logg))
		})

		r.With(middleware.Idempotency(idempotency, cfg.HTTP.IdempotencyTTL, logg)).
			Post("/issues", controllers.CreateIssue(ledgerService, logg))
		r.Post("/issues/{id}/return-all", controllers.ReturnAllItems(ledgerService, logg))
		r.Post("/issue-items/{id}/return", controllers.ReturnIssueItem(ledgerService, logg))

		r.Get("/transactions", controllers.ListTransactions(reportsService, logg))
		r.Get("/students/{usn}/history", controllers.StudentHistory(reportsService, logg))
		r.Get("/dashboard/summary", controllers.DashboardSummary(reportsService, logg))
	})

	return r
}
