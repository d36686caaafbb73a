package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ancware/tunelink/bench"
	"github.com/ancware/tunelink/bench/config"
)

func main() {
	// Load bench configuration
	cfg, err := config.LoadConfig("tunelink-bench.yml")
	usingDefaults := false
	if err != nil {
		// Try default config if file not found
		cfg = config.LoadDefaultConfig()
		usingDefaults = true
	}

	// Initialize logger from the config's log section
	logger, err := config.SetupLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	if usingDefaults {
		logger.Info().Msg("Using default configuration")
	}

	// Create bench instance
	b, err := bench.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create bench")
		os.Exit(1)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info().Msg("Shutting down tunelink bench...")
		cancel()
	}()

	// Start bench
	logger.Info().Msg("Starting tunelink bench...")
	if err := b.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Bench failed")
		os.Exit(1)
	}

	// Wait for shutdown signal
	<-ctx.Done()

	// Graceful shutdown
	if err := b.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
	}

	logger.Info().Msg("Bench stopped gracefully")
}
