// Package cli holds the start-up steps shared by cmd/fintrack and
// cmd/fintrack-worker.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fintrack/internal/config"
	"fintrack/internal/log"
)

// SetupLogger builds the process logger from the configured level and
// format and installs it as the slog default.
func SetupLogger(level, format string) *log.Logger {
	logger := log.New(log.Config{
		Level:  log.ParseLevel(level),
		Format: format,
		Output: os.Stdout,
	})
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile(files ...string) {
	_ = godotenv.Load(files...)
}

// LoadAndValidateConfig loads configuration from the environment and the
// optional file, then validates it.
func LoadAndValidateConfig(configFile string) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. cleanup
// runs once after the signal, bounded by timeout.
func GracefulShutdown(parent context.Context, logger *log.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-parent.Done():
		}
		cancel()

		if cleanup == nil {
			return
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		finished := make(chan struct{})
		go func() {
			cleanup(shutdownCtx)
			close(finished)
		}()
		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		}
	}()

	return ctx, done
}

// Fatal logs err and exits with status 1.
func Fatal(logger *log.Logger, msg string, err error) {
	logger.Error(msg, log.FieldError, err)
	fmt.Fprintln(os.Stderr, msg+":", err)
	os.Exit(1)
}
