// Package main provides the entry point for the mnemosyne-brain daemon:
// the periodic enrichment loop described in spec section 4.1.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mnemosyne/brain/internal/config"
	"github.com/mnemosyne/brain/internal/logging"
	"github.com/mnemosyne/brain/internal/orchestrator"
)

var (
	version     = flag.Bool("version", false, "Print version and exit")
	logPretty   = flag.Bool("log-pretty", false, "Use human-readable console logging")
	shutdownTTL = flag.Duration("shutdown-timeout", 30*time.Second, "Graceful shutdown timeout")
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("mnemosyne-brain %s (%s)\n", Version, BuildTime)
		os.Exit(0)
	}

	cfg := config.Load()

	logging.Init(logging.Config{
		Level:      logging.ParseLevel(cfg.LogLevel),
		Output:     os.Stderr,
		Pretty:     *logPretty,
		TimeFormat: time.RFC3339,
	})
	defer logging.Close()

	logging.Info().Str("version", Version).Str("db_path", cfg.DBPath).Bool("stream_mode", cfg.StreamMode()).
		Msg("mnemosyne-brain: starting")

	ctx := context.Background()
	o, err := orchestrator.New(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("mnemosyne-brain: failed to initialize orchestrator")
	}

	runCtx, cancel := context.WithCancel(ctx)
	go o.Run(runCtx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("mnemosyne-brain: shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), *shutdownTTL)
	defer shutdownCancel()
	o.Shutdown(shutdownCtx)

	logging.Info().Msg("mnemosyne-brain: stopped")
}
