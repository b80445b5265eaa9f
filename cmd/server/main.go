package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"neighborvendors_backend/internal/config"
	"neighborvendors_backend/internal/platform/database"
	"neighborvendors_backend/internal/platform/logger"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	if cfg.DBMigrateOnStart {
		appLogger, err := logger.New(cfg)
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize logger for migration: %v", err)
		}
		if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
			appLogger.Fatal("FATAL: Database migration failed", zap.Error(err))
		}
		appLogger.Info("Database schema is up to date.")
	}

	server, cleanup, err := initializeServer(cfg)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize server: %v", err)
	}
	defer cleanup()

	go func() {
		if err := server.Start(); err != nil && err.Error() != "http: Server closed" {
			log.Fatalf("FATAL: Server failed to start or crashed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("INFO: Received signal '%s'. Shutting down server...", sig)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ServerTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: Server forced to shutdown due to error: %v", err)
	} else {
		log.Println("INFO: Server shutdown complete.")
	}
	log.Println("INFO: Application exiting.")
}
