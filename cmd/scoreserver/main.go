// Command scoreserver serves a logistic storm model over HTTP so that the
// permutation command can score through SCORER_URL.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storm-importance/internal/scoring"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		modelPath    = flag.String("model", "model.json", "Path to logistic model (JSON or YAML)")
		port         = flag.Int("port", 8500, "Listen port")
		scoreTimeout = flag.Duration("timeout", 30*time.Second, "Per-request scoring timeout")
		logLevel     = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}
	if env := os.Getenv("MODEL_PATH"); env != "" && !isFlagSet("model") {
		*modelPath = env
	}

	model, err := scoring.LoadLogisticModel(*modelPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load model")
	}

	server := scoring.NewServer(model, *port, *scoreTimeout)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("scoring server failed")
		}
	}()

	waitForShutdown(server)
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// waitForShutdown waits for shutdown signals and handles graceful shutdown
func waitForShutdown(server *scoring.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Info().Msg("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("shutdown timeout, forcing exit")
		return
	}
	log.Info().Msg("scoring server stopped")
}
