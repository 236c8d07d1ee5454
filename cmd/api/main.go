package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nexconsult/goc-sync/internal/api"
	"github.com/nexconsult/goc-sync/internal/config"
	"github.com/nexconsult/goc-sync/internal/logger"
	"github.com/nexconsult/goc-sync/internal/scheduler"
	"github.com/nexconsult/goc-sync/internal/services"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	// Import docs for Swagger
	_ "github.com/nexconsult/goc-sync/docs"
)

// @title GOC Sync API
// @version 1.0
// @description Sincronização automatizada com o portal da clínica: cadastros, agenda, estoque e pacientes

// @contact.name API Support
// @contact.url http://www.nexconsult.com/support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logger.New(cfg.Log)
	logger.Info("Starting GOC Sync server...")

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("Server stopped with error")
	}
	logger.Info("Server exited")
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serviceContainer, err := services.NewContainer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer serviceContainer.Close()
	serviceContainer.Cache.StartCleanupRoutine(ctx, 5*time.Minute)

	server := api.NewServer(cfg, logger, serviceContainer)
	defer server.Close()
	httpServer := server.HTTPServer(fmt.Sprintf(":%d", cfg.Server.Port))

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(cfg.Scheduler, serviceContainer.SyncService, logger)
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithFields(logrus.Fields{
			"port":        cfg.Server.Port,
			"environment": cfg.Server.Environment,
		}).Info("Server starting...")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})

	if sched != nil {
		sched.Start()
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		var errs []error
		if sched != nil {
			if err := sched.Stop(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("scheduler forced to stop: %w", err))
			}
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
