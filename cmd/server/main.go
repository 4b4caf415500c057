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

	"github.com/gin-gonic/gin"
	"github.com/rongwang/leave-roster-server/internal/api"
	"github.com/rongwang/leave-roster-server/internal/config"
	"github.com/rongwang/leave-roster-server/internal/i18n"
	"github.com/rongwang/leave-roster-server/internal/repository"
	"github.com/rongwang/leave-roster-server/internal/service"
	"github.com/rongwang/leave-roster-server/internal/utils"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Server.LogLevel)
	if err := run(cfg, logger); err != nil {
		logger.Error(context.Background(), "server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *utils.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Set up the document store
	repo, closeRepo, err := repository.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to set up %s store: %w", cfg.Database.Store, err)
	}
	defer closeRepo()

	// Create service
	locale := i18n.ParseTag(cfg.Roster.Locale, i18n.English)
	svc := service.NewDefaultService(repo, service.Options{
		Logger:      logger,
		Locale:      locale,
		WriteFanOut: cfg.Roster.WriteFanOut,
	})

	if cfg.Admin.BootstrapKey != "" {
		if err := svc.SetAdminKey(ctx, cfg.Admin.BootstrapKey); err != nil {
			return fmt.Errorf("failed to provision admin key: %w", err)
		}
		logger.Info(ctx, "admin key provisioned from environment")
	}

	// Set up Gin router
	if cfg.Server.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), api.LoggingMiddleware(logger))

	handler := api.NewHandler(svc, logger, locale)
	handler.SetupRoutes(router)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "starting server", "addr", server.Addr, "store", cfg.Database.Store, "locale", locale.String())
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info(shutdownCtx, "shutting down")
	return server.Shutdown(shutdownCtx)
}
