// Package main provides the entry point for the civicpulse worker service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/civicpulse/internal/cluster"
	"github.com/thebtf/civicpulse/internal/config"
	"github.com/thebtf/civicpulse/internal/embedding"
	"github.com/thebtf/civicpulse/internal/generation"
	"github.com/thebtf/civicpulse/internal/ingest"
	"github.com/thebtf/civicpulse/internal/search"
	"github.com/thebtf/civicpulse/internal/store"
	"github.com/thebtf/civicpulse/internal/worker"
)

var Version = "dev"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	log.Info().
		Str("version", Version).
		Msg("Starting civicpulse worker")

	cfg := config.Get()

	db, err := store.NewStore(store.Config{
		DSN:      config.GetDSN(),
		MaxConns: cfg.MaxConns,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	events := store.NewEventStore(db)
	if err := events.SeedTopics(context.Background(), config.DefaultTopics); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed topics")
	}

	embedder, err := embedding.NewClient()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create embedding client")
	}
	generator, err := generation.NewClient()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create generation client")
	}

	enricher := cluster.NewEnricher(generator, embedder, log.Logger)
	engine := cluster.NewEngine(events, embedder, enricher, log.Logger)
	ingestor := ingest.NewIngestor(generator, engine, events, log.Logger)

	var searcher worker.Searcher
	if addr := config.GetElasticsearchAddr(); addr != "" {
		client, err := search.New(addr, config.GetElasticsearchIndex(), log.Logger)
		if err != nil {
			log.Warn().Err(err).Msg("Search index unavailable, search endpoint disabled")
		} else {
			searcher = client
		}
	}

	svc := worker.NewService(Version, events, ingestor, searcher, log.Logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Start(config.GetWorkerPort())
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	case <-quit:
		log.Info().Msg("Received shutdown signal")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := svc.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}

	log.Info().Msg("Worker shutdown complete")
}
