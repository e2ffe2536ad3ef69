// Package main provides the batch CSV ingestion tool. It loads one or more
// snapshot CSV files, runs every row through enrichment and assignment, and
// prints a per-file report.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/civicpulse/internal/cluster"
	"github.com/thebtf/civicpulse/internal/config"
	"github.com/thebtf/civicpulse/internal/embedding"
	"github.com/thebtf/civicpulse/internal/generation"
	"github.com/thebtf/civicpulse/internal/ingest"
	"github.com/thebtf/civicpulse/internal/store"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	flag.Parse()
	files := flag.Args()
	if len(files) == 0 {
		log.Fatal().Msg("Usage: ingest <snapshot.csv> [snapshot.csv ...]")
	}

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
	ctx := context.Background()
	if err := events.SeedTopics(ctx, config.DefaultTopics); err != nil {
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

	var total ingest.Report
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("Cannot open file, skipping")
			continue
		}
		report, err := ingestor.IngestCSV(ctx, f)
		f.Close()
		if err != nil {
			log.Fatal().Err(err).Str("file", path).Msg("Ingestion aborted")
		}
		log.Info().
			Str("file", path).
			Int("ingested", report.Ingested).
			Int("skipped", report.Skipped).
			Int("events_created", report.Created).
			Int("posts_assigned", report.Assigned).
			Msg("File processed")
		total.Ingested += report.Ingested
		total.Skipped += report.Skipped
		total.Created += report.Created
		total.Assigned += report.Assigned
	}

	log.Info().
		Int("ingested", total.Ingested).
		Int("skipped", total.Skipped).
		Int("events_created", total.Created).
		Int("posts_assigned", total.Assigned).
		Msg("Ingestion complete")
}
