package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/thebtf/civicpulse/pkg/models"
	"github.com/thebtf/civicpulse/pkg/similarity"
)

// EventStore is the persistence collaborator the engine depends on. The store
// is injected here and into the enricher; nothing in this package reaches for
// ambient state.
type EventStore interface {
	// GetTopicByID resolves a topic reference. A nil topic with nil error
	// means the topic does not exist.
	GetTopicByID(ctx context.Context, id int64) (*models.Topic, error)
	// GetEventsByTopicSince returns events belonging to the topic whose
	// date falls on or after the cutoff.
	GetEventsByTopicSince(ctx context.Context, topicID int64, cutoff time.Time) ([]*models.Event, error)
	// AddEvent persists a new event, assigns its id, and registers it in
	// its topic's event list.
	AddEvent(ctx context.Context, event *models.Event) error
	// UpdateEvent persists an event's posts and derived fields.
	UpdateEvent(ctx context.Context, event *models.Event) error
}

// Engine decides, for each incoming post, whether it extends an existing
// recent event or seeds a new one. Greedy and online: one pass over the
// candidate set, best match wins, at most one assignment per post. The engine
// performs no internal locking; single-writer-per-topic discipline is the
// caller's responsibility, and two concurrent calls may both create
// near-duplicate events — accepted, not prevented.
type Engine struct {
	store    EventStore
	embedder Embedder
	enricher *Enricher
	logger   zerolog.Logger
	now      func() time.Time
}

// NewEngine creates an assignment engine with explicit collaborators.
func NewEngine(store EventStore, embedder Embedder, enricher *Enricher, logger zerolog.Logger) *Engine {
	return &Engine{
		store:    store,
		embedder: embedder,
		enricher: enricher,
		logger:   logger.With().Str("component", "assignment").Logger(),
		now:      time.Now,
	}
}

// AssignPost places the post into the best-matching recent event of its
// topic, or creates a new single-post event when no candidate clears the
// similarity threshold. Returns the owning event and whether it was created.
// The call either fully succeeds or returns an error with nothing recorded.
func (e *Engine) AssignPost(ctx context.Context, post *models.Post) (*models.Event, bool, error) {
	topic, err := e.store.GetTopicByID(ctx, post.TopicID)
	if err != nil {
		return nil, false, fmt.Errorf("resolve topic %d: %w", post.TopicID, err)
	}
	if topic == nil {
		return nil, false, fmt.Errorf("%w: topic id %d", ErrUnresolvedTopic, post.TopicID)
	}

	// Candidates are read once at call start; the window is evaluated now,
	// not at post-creation time. No consistency guarantee beyond that.
	candidates, err := e.store.GetEventsByTopicSince(ctx, topic.ID, e.now().Add(-CandidateWindow))
	if err != nil {
		return nil, false, fmt.Errorf("load candidate events for topic %q: %w", topic.Name, err)
	}

	postEmbedding, err := e.embedder.Embed(ctx, post.MatchingText())
	if err != nil {
		return nil, false, upstreamErr("embed post matching text", err)
	}

	best, bestScore, err := e.bestMatch(ctx, postEmbedding, candidates)
	if err != nil {
		return nil, false, err
	}

	if best != nil {
		if err := e.enricher.AddPost(ctx, best, post, candidates); err != nil {
			return nil, false, err
		}
		if err := e.store.UpdateEvent(ctx, best); err != nil {
			return nil, false, fmt.Errorf("update event %d: %w", best.ID, err)
		}
		e.logger.Info().
			Str("post", post.Link).
			Int64("event_id", best.ID).
			Str("event", best.Name).
			Float64("similarity", bestScore).
			Msg("Post assigned to existing event")
		return best, false, nil
	}

	event, err := e.enricher.CreateEvent(ctx, topic.ID, []*models.Post{post}, candidates)
	if err != nil {
		return nil, false, err
	}
	if err := e.store.AddEvent(ctx, event); err != nil {
		return nil, false, fmt.Errorf("persist new event for topic %q: %w", topic.Name, err)
	}
	e.logger.Info().
		Str("post", post.Link).
		Int64("event_id", event.ID).
		Str("event", event.Name).
		Int("candidates_checked", len(candidates)).
		Msg("Post seeded a new event")
	return event, true, nil
}

// bestMatch scans candidates once and returns the highest-similarity event
// above the threshold, or nil when none clears it. Ties keep the candidate
// that appeared first (strictly-greater comparison during the scan).
// Candidates without matching text are skipped.
func (e *Engine) bestMatch(ctx context.Context, postEmbedding []float32, candidates []*models.Event) (*models.Event, float64, error) {
	var best *models.Event
	var bestScore float64

	for _, candidate := range candidates {
		text := candidate.MatchingText()
		if text == "" {
			continue
		}

		candidateEmbedding, err := e.embedder.Embed(ctx, text)
		if err != nil {
			return nil, 0, upstreamErr("embed candidate event text", err)
		}

		score, err := similarity.Cosine(postEmbedding, candidateEmbedding)
		if err != nil {
			return nil, 0, err
		}
		if score <= SimilarityThreshold {
			continue
		}
		if best == nil || score > bestScore {
			best = candidate
			bestScore = score
		}
	}

	return best, bestScore, nil
}
