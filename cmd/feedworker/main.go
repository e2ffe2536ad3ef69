// Package main provides the Kafka feed consumer. It drains the post topic,
// runs each message through ingestion and assignment, and parks failures on
// a dead-letter topic so the stream keeps moving.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/thebtf/civicpulse/internal/cluster"
	"github.com/thebtf/civicpulse/internal/config"
	"github.com/thebtf/civicpulse/internal/embedding"
	"github.com/thebtf/civicpulse/internal/generation"
	"github.com/thebtf/civicpulse/internal/ingest"
	"github.com/thebtf/civicpulse/internal/search"
	"github.com/thebtf/civicpulse/internal/store"
	"github.com/thebtf/civicpulse/pkg/models"
)

const dlqMaxAttempts = 5

type rawPost struct {
	Link    string `json:"link"`
	Message string `json:"message"`
	Date    string `json:"date"`
	Source  string `json:"source"`
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

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

	var indexer *search.Client
	if addr := config.GetElasticsearchAddr(); addr != "" {
		indexer, err = search.New(addr, config.GetElasticsearchIndex(), log.Logger)
		if err != nil {
			log.Warn().Err(err).Msg("Search index unavailable, indexing disabled")
			indexer = nil
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	topic := config.GetKafkaTopic()
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        config.GetKafkaBrokers(),
		Topic:          topic,
		GroupID:        config.GetKafkaGroup(),
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit only
	})
	defer reader.Close()

	dlqWriter := &kafka.Writer{
		Addr:        kafka.TCP(config.GetKafkaBrokers()...),
		Topic:       topic + "_dlq",
		MaxAttempts: 3,
	}
	defer dlqWriter.Close()

	log.Info().
		Str("topic", topic).
		Str("group", config.GetKafkaGroup()).
		Str("dlq_topic", topic+"_dlq").
		Msg("Feedworker started")

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info().Msg("Context canceled, stopping")
				return
			}
			log.Error().Err(err).Msg("Fetch message failed")
			continue
		}

		if err := processMessage(ctx, ingestor, indexer, msg); err != nil {
			log.Warn().Err(err).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("Message processing failed, sending to DLQ")

			if !writeToDLQ(ctx, dlqWriter, msg, err) {
				// Leave the offset uncommitted so the message is retried
				// after restart.
				continue
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error().Err(err).Msg("Commit failed")
		}
	}
}

func processMessage(ctx context.Context, ingestor *ingest.Ingestor, indexer *search.Client, msg kafka.Message) error {
	var payload rawPost
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if strings.TrimSpace(payload.Message) == "" {
		return errors.New("empty message")
	}

	post := &models.Post{
		Link:    strings.TrimSpace(payload.Link),
		Content: payload.Message,
		Source:  strings.TrimSpace(payload.Source),
	}
	if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(payload.Date)); err == nil {
		post.Date = ts
	}

	event, _, err := ingestor.IngestPost(ctx, post)
	if err != nil {
		return err
	}
	if event == nil {
		return nil // duplicate
	}

	if indexer != nil {
		if err := indexer.IndexPost(ctx, post, event.ID); err != nil {
			log.Warn().Err(err).Str("link", post.Link).Msg("Post indexing failed")
		}
	}
	return nil
}

// writeToDLQ parks a failed message on the dead-letter topic with error
// context, retrying with exponential backoff. Returns false when retries
// are exhausted or the context is canceled.
func writeToDLQ(ctx context.Context, w *kafka.Writer, msg kafka.Message, cause error) bool {
	dlqMsg := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
			kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		),
	}

	for attempt := 0; attempt < dlqMaxAttempts; attempt++ {
		if err := w.WriteMessages(ctx, dlqMsg); err == nil {
			log.Info().
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Int("attempt", attempt+1).
				Msg("Message sent to DLQ")
			return true
		} else {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			log.Warn().Err(err).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("DLQ write failed, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return false
			}
		}
	}
	log.Error().
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Msg("DLQ write exhausted retries")
	return false
}
