// Package ingest turns raw social media posts into enriched, topic-tagged
// posts and feeds them to the assignment engine. Enrichment is best-effort:
// a post that cannot be scored or described still flows through with neutral
// defaults, only topic resolution and assignment failures stop it.
package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/thebtf/civicpulse/internal/generation"
	"github.com/thebtf/civicpulse/internal/metrics"
	"github.com/thebtf/civicpulse/pkg/models"
)

// NeutralSentiment is the satisfaction rating used when scoring fails.
const NeutralSentiment = 50

// Generator produces text completions for sentiment, subject description,
// and topic resolution.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Assigner routes an enriched post into an event.
type Assigner interface {
	AssignPost(ctx context.Context, post *models.Post) (*models.Event, bool, error)
}

// TopicStore provides the topic catalogue and post deduplication.
type TopicStore interface {
	ListTopics(ctx context.Context) ([]*models.Topic, error)
	GetTopicByName(ctx context.Context, name string) (*models.Topic, error)
	GetPostByLink(ctx context.Context, link string) (*models.Post, error)
}

// Ingestor enriches incoming posts and hands them to the assignment engine.
type Ingestor struct {
	generator Generator
	assigner  Assigner
	store     TopicStore
	logger    zerolog.Logger

	now func() time.Time
}

// NewIngestor creates an ingestor with the given collaborators.
func NewIngestor(generator Generator, assigner Assigner, store TopicStore, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		generator: generator,
		assigner:  assigner,
		store:     store,
		logger:    logger.With().Str("component", "ingest").Logger(),
		now:       time.Now,
	}
}

// IngestPost enriches one post and assigns it to an event. Posts whose link
// is already known are skipped and return a nil event. The second return
// reports whether the post seeded a new event.
func (in *Ingestor) IngestPost(ctx context.Context, post *models.Post) (*models.Event, bool, error) {
	if post.Link != "" {
		existing, err := in.store.GetPostByLink(ctx, post.Link)
		if err != nil {
			return nil, false, fmt.Errorf("dedupe post: %w", err)
		}
		if existing != nil {
			metrics.PostsSkipped.WithLabelValues("duplicate").Inc()
			in.logger.Debug().Str("link", post.Link).Msg("Post already ingested, skipping")
			return nil, false, nil
		}
	}

	if post.Source == "" {
		post.Source = SourceFromLink(post.Link)
	}
	if post.Date.IsZero() {
		post.Date = in.now()
	}

	post.SatisfactionRating = in.scoreSentiment(ctx, post.Content)
	post.SubjectDescription = in.describeSubject(ctx, post.Content)

	topic, err := in.resolveTopic(ctx, post)
	if err != nil {
		return nil, false, err
	}
	post.TopicID = topic.ID

	start := time.Now()
	event, created, err := in.assigner.AssignPost(ctx, post)
	if err != nil {
		return nil, false, err
	}
	metrics.AssignmentDuration.Observe(time.Since(start).Seconds())
	if created {
		metrics.EventsCreated.Inc()
	} else {
		metrics.PostsAssigned.Inc()
	}
	metrics.PostsIngested.WithLabelValues(post.Source).Inc()
	return event, created, nil
}

// scoreSentiment asks the LLM for a 0-100 satisfaction score. Any failure,
// including unparseable output, yields the neutral score.
func (in *Ingestor) scoreSentiment(ctx context.Context, content string) int {
	raw, err := in.generator.Generate(ctx, generation.SentimentPrompt(content))
	if err != nil {
		metrics.UpstreamFailures.WithLabelValues("sentiment").Inc()
		in.logger.Warn().Err(err).Msg("Sentiment scoring failed, using neutral score")
		return NeutralSentiment
	}
	score, err := strconv.Atoi(generation.Sanitize(raw))
	if err != nil {
		in.logger.Warn().Str("response", raw).Msg("Unparseable sentiment score, using neutral score")
		return NeutralSentiment
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// describeSubject produces the one-line subject description used for
// matching. On failure the description stays empty and matching falls back
// to the raw content.
func (in *Ingestor) describeSubject(ctx context.Context, content string) string {
	raw, err := in.generator.Generate(ctx, generation.SubjectDescriptionPrompt(content))
	if err != nil {
		metrics.UpstreamFailures.WithLabelValues("subject_description").Inc()
		in.logger.Warn().Err(err).Msg("Subject description failed, matching on raw content")
		return ""
	}
	return generation.Sanitize(raw)
}

// resolveTopic picks the best topic for a post via the LLM, matching the
// response against the catalogue first exactly, then case-insensitively.
// Anything else lands in the fallback topic.
func (in *Ingestor) resolveTopic(ctx context.Context, post *models.Post) (*models.Topic, error) {
	topics, err := in.store.ListTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("resolve topic: no topics configured")
	}

	var list strings.Builder
	for _, t := range topics {
		list.WriteString("- ")
		list.WriteString(t.Name)
		if t.Icon != "" {
			list.WriteString(": ")
			list.WriteString(t.Icon)
		}
		list.WriteString("\n")
	}

	raw, err := in.generator.Generate(ctx, generation.FindTopicPrompt(post.MatchingText(), list.String()))
	if err != nil {
		metrics.UpstreamFailures.WithLabelValues("topic").Inc()
		in.logger.Warn().Err(err).Msg("Topic resolution failed, using fallback topic")
		return in.fallbackTopic(ctx)
	}
	name := generation.Sanitize(raw)

	for _, t := range topics {
		if t.Name == name {
			return t, nil
		}
	}
	for _, t := range topics {
		if strings.EqualFold(t.Name, name) {
			in.logger.Debug().Str("response", name).Str("topic", t.Name).Msg("Topic matched case-insensitively")
			return t, nil
		}
	}

	in.logger.Warn().Str("response", name).Msg("No topic matched, using fallback topic")
	return in.fallbackTopic(ctx)
}

func (in *Ingestor) fallbackTopic(ctx context.Context) (*models.Topic, error) {
	topic, err := in.store.GetTopicByName(ctx, models.FallbackTopicName)
	if err != nil {
		return nil, fmt.Errorf("get fallback topic: %w", err)
	}
	if topic == nil {
		return nil, fmt.Errorf("fallback topic %q not seeded", models.FallbackTopicName)
	}
	return topic, nil
}

// SourceFromLink maps a post link to its publication name.
func SourceFromLink(link string) string {
	switch {
	case strings.Contains(link, "feelgoodradio"):
		return "Feelgood Radio - Nieuws"
	case strings.Contains(link, "inrijswijk.com"):
		return "InRijswijk.com"
	case strings.Contains(link, "ad.nl"):
		return "AD - Algemeen Dagblad"
	default:
		return "Unknown Source"
	}
}
