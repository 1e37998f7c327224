package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/labstock-backend/api/routes"
	"github.com/angelmondragon/labstock-backend/internal/admins"
	"github.com/angelmondragon/labstock-backend/internal/auth"
	"github.com/angelmondragon/labstock-backend/internal/ledger"
	"github.com/angelmondragon/labstock-backend/internal/reports"
	"github.com/angelmondragon/labstock-backend/internal/students"
	"github.com/angelmondragon/labstock-backend/pkg/auth/session"
	"github.com/angelmondragon/labstock-backend/pkg/config"
	"github.com/angelmondragon/labstock-backend/pkg/db"
	"github.com/angelmondragon/labstock-backend/pkg/instance"
	"github.com/angelmondragon/labstock-backend/pkg/logger"
	"github.com/angelmondragon/labstock-backend/pkg/metrics"
	"github.com/angelmondragon/labstock-backend/pkg/migrate"
	"github.com/angelmondragon/labstock-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return multierr.Append(err, dbClient.Close())
	}
	defer func() {
		err = multierr.Combine(err, redisClient.Close(), dbClient.Close())
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	authService, err := auth.NewService(auth.ServiceParams{
		Admins:         admins.NewRepository(dbClient.DB()),
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		AdminConfig:    cfg.Admin,
		Logger:         logg,
	})
	if err != nil {
		return err
	}
	if _, err := authService.EnsureDefaultAdmin(ctx); err != nil {
		return err
	}

	studentsRepo := students.NewRepository(dbClient.DB())
	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		Repo:     ledger.NewRepository(dbClient.DB()),
		Students: studentsRepo,
		Tx:       dbClient,
		Logger:   logg,
		Metrics:  metrics.NewLedgerMetrics(registry),
	})
	if err != nil {
		return err
	}

	reportsService, err := reports.NewService(reports.NewRepository(dbClient.DB()), studentsRepo)
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"driver":   dbClient.Driver(),
		"instance": instance.GetID("local"),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			sessionManager,
			authService,
			ledgerService,
			reportsService,
			metrics.NewHTTPMetrics(registry),
			metrics.Handler(registry),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(logCtx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownGrace)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
