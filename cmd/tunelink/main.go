package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/ancware/tunelink/cli"
)

func main() {
	// Initialize logger
	logger := setupLogger()

	// Create context with logger; interrupt cancels it so the long-running
	// commands (monitor, capture) stop cleanly
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = cli.WithLogger(ctx, logger)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info().Str("cmd", "main").Msg("Interrupt received")
		cancel()
	}()

	// Log application start
	logger.Info().Str("cmd", "main").Msg("Starting tunelink CLI")

	// Execute CLI with context
	if err := cli.ExecuteWithContext(ctx); err != nil {
		logger.Error().Str("cmd", "main").Err(err).Msg("CLI execution failed")
		os.Exit(1)
	}

	logger.Info().Str("cmd", "main").Msg("tunelink CLI completed successfully")
}

// setupLogger initializes zerolog with file output. The terminal belongs to
// the display layer and the interactive shell, so logs never go there.
func setupLogger() zerolog.Logger {
	logFile := getLogFilePath()

	// Create log directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
		os.Exit(1)
	}

	// Open log file for appending
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}

	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(file).With().
		Timestamp().
		Str("app", "tunelink").
		Logger()

	return logger
}

// getLogFilePath determines the log file path
func getLogFilePath() string {
	cwd, err := os.Getwd()
	if err != nil {
		// Last resort: use temp directory
		return filepath.Join(os.TempDir(), "tunelink.log")
	}

	return filepath.Join(cwd, "tunelink.log")
}
