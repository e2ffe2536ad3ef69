package cluster

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/civicpulse/internal/generation"
	"github.com/thebtf/civicpulse/pkg/models"
)

// keywordEmbedConcurrency caps concurrent per-keyword embedding calls.
// The calls are data-independent, so fanning them out is safe; results are
// joined back in keyword order.
const keywordEmbedConcurrency = 8

// Embedder maps text to a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces plain text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Enricher regenerates an event's derived fields (name, summaries, case
// description, keywords, similar events, date) from its full post list.
// Derived fields always reflect the complete current membership: every
// mutation triggers a full recompute, never an incremental patch. Swapping in
// an incremental strategy means replacing Recompute, not the engine.
type Enricher struct {
	generator Generator
	embedder  Embedder
	logger    zerolog.Logger
	now       func() time.Time
}

// NewEnricher creates an event enricher.
func NewEnricher(gen Generator, emb Embedder, logger zerolog.Logger) *Enricher {
	return &Enricher{
		generator: gen,
		embedder:  emb,
		logger:    logger.With().Str("component", "enricher").Logger(),
		now:       time.Now,
	}
}

// CreateEvent builds a new unpersisted event from member posts, runs the full
// enrichment flow, and computes similar events against the supplied candidate
// pool. The caller persists the result; until then the event has no id.
func (e *Enricher) CreateEvent(ctx context.Context, topicID int64, posts []*models.Post, pool []*models.Event) (*models.Event, error) {
	event := &models.Event{
		TopicID: topicID,
		Posts:   posts,
	}
	if err := e.Recompute(ctx, event, pool); err != nil {
		return nil, err
	}
	return event, nil
}

// AddPost appends the post to the event and recomputes every derived field
// from scratch. Posts are only ever appended; a post never moves between
// events.
func (e *Enricher) AddPost(ctx context.Context, event *models.Event, post *models.Post, pool []*models.Event) error {
	event.Posts = append(event.Posts, post)
	return e.Recompute(ctx, event, pool)
}

// Recompute regenerates keywords, both summaries, the case description, the
// similar-events index, and the event date from the full post list. Any
// provider failure aborts the recompute with an upstream error.
func (e *Enricher) Recompute(ctx context.Context, event *models.Event, pool []*models.Event) error {
	content := event.CombinedContent()

	name, err := e.generate(ctx, generation.EventNamePrompt(content))
	if err != nil {
		return upstreamErr("generate event name", err)
	}
	event.Name = name

	smallSummary, err := e.generate(ctx, generation.EventSmallSummaryPrompt(content))
	if err != nil {
		return upstreamErr("generate small summary", err)
	}
	event.SmallSummary = smallSummary

	bigSummary, err := e.generate(ctx, generation.EventBigSummaryPrompt(content))
	if err != nil {
		return upstreamErr("generate big summary", err)
	}
	event.BigSummary = bigSummary

	caseDescription, err := e.generate(ctx, generation.EventCaseDescriptionPrompt(content))
	if err != nil {
		return upstreamErr("generate case description", err)
	}
	event.CaseDescription = caseDescription

	keywords, err := e.extractKeywords(ctx, content)
	if err != nil {
		return err
	}
	event.Keywords = keywords

	similar, err := FindSimilarEvents(event, pool)
	if err != nil {
		return err
	}
	event.SimilarEvents = similar

	event.RecomputeDate(e.now())

	e.logger.Debug().
		Str("event", event.Name).
		Int("posts", len(event.Posts)).
		Int("keywords", len(event.Keywords)).
		Int("similar_events", len(event.SimilarEvents)).
		Msg("Event recomputed")

	return nil
}

func (e *Enricher) generate(ctx context.Context, prompt string) (string, error) {
	response, err := e.generator.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	return generation.Sanitize(response), nil
}

// extractKeywords asks the generation provider for a comma-separated keyword
// list (nominally 15, not enforced) and embeds each keyword. The per-keyword
// embedding calls fan out concurrently and join in keyword order.
func (e *Enricher) extractKeywords(ctx context.Context, content string) ([]models.Keyword, error) {
	response, err := e.generator.Generate(ctx, generation.EventKeywordsPrompt(content))
	if err != nil {
		return nil, upstreamErr("generate keywords", err)
	}

	terms := generation.SplitList(response)
	if len(terms) == 0 {
		return nil, nil
	}

	keywords := make([]models.Keyword, len(terms))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(keywordEmbedConcurrency)
	for i, term := range terms {
		i, term := i, term
		g.Go(func() error {
			emb, err := e.embedder.Embed(gctx, term)
			if err != nil {
				return upstreamErr("embed keyword "+term, err)
			}
			keywords[i] = models.Keyword{Text: term, Embedding: emb}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return keywords, nil
}
