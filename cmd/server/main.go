// Package main implements the entry point for the quizsmith API server,
// which turns submitted text into ten-question multiple-choice quizzes
// behind an asynchronous, pollable task protocol.
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
	"github.com/quizsmith/quizsmith-api/internal/api"
	"github.com/quizsmith/quizsmith-api/internal/config"
	"github.com/quizsmith/quizsmith-api/internal/engine"
	"github.com/quizsmith/quizsmith-api/internal/generation"
	"github.com/quizsmith/quizsmith-api/internal/platform/gemini"
	"github.com/quizsmith/quizsmith-api/internal/platform/logger"
	"github.com/quizsmith/quizsmith-api/internal/platform/postgres"
	"github.com/quizsmith/quizsmith-api/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("server exited with error: %v", err)
	}
}

// run wires the application together and blocks until shutdown.
func run() error {
	// Load .env if present; real environments set variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger := logger.Setup(cfg.Server.LogLevel)
	appLogger.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"store_driver", cfg.Store.Driver,
		"model", cfg.LLM.ModelName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Task store: in-memory by default, postgres when configured.
	var taskStore store.TaskStore
	switch cfg.Store.Driver {
	case "postgres":
		db, err := setupDatabase(cfg.Store.URL, appLogger)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := db.Close(); cerr != nil {
				appLogger.Error("failed to close database", "error", cerr)
			}
		}()

		if err := runMigrations(db, appLogger); err != nil {
			return err
		}
		taskStore = postgres.NewPostgresTaskStore(db, appLogger)
	default:
		taskStore = store.NewMemoryTaskStore()
	}

	// Text-completion collaborator and synthesizer.
	completer, err := gemini.NewClient(ctx, gemini.Config{
		APIKey: cfg.LLM.GeminiAPIKey,
		Model:  cfg.LLM.ModelName,
	}, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create Gemini client: %w", err)
	}

	synthesizer, err := generation.NewSynthesizer(completer, generation.Config{
		MaxRetries:       cfg.LLM.MaxRetries,
		RetryBaseDelay:   cfg.LLM.RetryBaseDelay,
		SynthesisTimeout: cfg.LLM.SynthesisTimeout,
		RepairBudget:     cfg.Engine.RepairBudget,
	}, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create synthesizer: %w", err)
	}

	// Lifecycle engine.
	eng, err := engine.New(taskStore, synthesizer, engine.Config{
		MaxInputBytes: cfg.Engine.MaxInputBytes,
		WorkerCount:   cfg.Engine.WorkerCount,
		QueueSize:     cfg.Engine.QueueSize,
	}, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	defer eng.Stop()

	// HTTP server.
	rpcHandler := api.NewRPCHandler(eng, appLogger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           newRouter(rpcHandler, appLogger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		appLogger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	appLogger.Info("server stopped")
	return nil
}
