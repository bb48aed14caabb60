package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/sumire/notifysettings/internal/config"
	"github.com/sumire/notifysettings/internal/handler"
	"github.com/sumire/notifysettings/internal/metrics"
	"github.com/sumire/notifysettings/internal/notifications"
	"github.com/sumire/notifysettings/internal/repository"
	"github.com/sumire/notifysettings/internal/service"
)

var shutdownTimeout time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "Grace period for in-flight requests")
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Logger.SetLevel(cfg.LogLevel)

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	collector := metrics.NewCollector(serviceName)

	txManager := repository.NewTxManager(db)
	settingsRepo := repository.NewSettingsRepository(db)
	optionRepo := repository.NewUserOptionRepository(db)
	userRepo := repository.NewUserRepository(db)
	accessRepo := repository.NewAccessRepository(db)

	manager := notifications.NewManager(settingsRepo, optionRepo, txManager,
		notifications.WithLogger(logger.WithField("component", "notifications")),
		notifications.WithMetrics(collector),
		notifications.WithCacheTTL(cfg.SettingsCacheTTL),
	)

	authSvc := service.NewAuthService(cfg.JWTSecret)
	notificationSvc := service.NewNotificationService(manager, optionRepo, accessRepo, userRepo, txManager,
		logger.WithField("component", "fine_tuning"))

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewAppValidator()
	e.HTTPErrorHandler = handler.NewHTTPErrorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(handler.RequestID())
	e.Use(collector.Middleware())
	e.Use(handler.RequestLogger(logger))

	e.GET("/health", func(c echo.Context) error {
		if err := db.PingContext(c.Request().Context()); err != nil {
			return handler.JSON(c, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
		return handler.JSON(c, http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(collector.Handler()))

	api := e.Group("/api/v1", handler.JWTAuth(authSvc))
	handler.NewNotificationHandler(notificationSvc).Register(api)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("port", cfg.Port).Info("server starting")
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.WithField("signal", sig.String()).Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), durationOr(shutdownTimeout, 30*time.Second))
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
