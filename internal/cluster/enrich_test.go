package cluster

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/civicpulse/pkg/models"
)

// fakeGenerator routes prompts to canned responses by recognising the
// instruction each template carries.
type fakeGenerator struct {
	name            string
	smallSummary    string
	bigSummary      string
	caseDescription string
	keywords        string
	failOn          string // substring of the prompt that should fail
	calls           int
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.calls++
	if g.failOn != "" && strings.Contains(prompt, g.failOn) {
		return "", errors.New("generation backend unavailable")
	}
	switch {
	case strings.Contains(prompt, "short name"):
		return g.name, nil
	case strings.Contains(prompt, "broad narrative"):
		return g.bigSummary, nil
	case strings.Contains(prompt, "roughly 50 words covering"):
		return g.smallSummary, nil
	case strings.Contains(prompt, "subject matter itself"):
		return g.caseDescription, nil
	case strings.Contains(prompt, "comma-separated list"):
		return g.keywords, nil
	}
	return "", fmt.Errorf("unexpected prompt: %.60s", prompt)
}

// fakeEmbedder returns fixed vectors per text, erroring on unknown inputs.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	failOn  string
	calls   int
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.failOn != "" && text == e.failOn {
		return nil, errors.New("embedding backend unavailable")
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("no fake embedding for %q", text)
}

func defaultGenerator() *fakeGenerator {
	return &fakeGenerator{
		name:            "Traffic safety at the station crossing",
		smallSummary:    "Residents report dangerous crossings near the station.",
		bigSummary:      "A growing discussion about crossing safety near the station.",
		caseDescription: "Concerns about pedestrian safety at a crossing.",
		keywords:        "traffic, safety",
	}
}

func testEnricher(gen Generator, emb Embedder) *Enricher {
	e := NewEnricher(gen, emb, zerolog.Nop())
	e.now = func() time.Time { return time.Date(2025, 11, 10, 12, 0, 0, 0, time.UTC) }
	return e
}

func TestCreateEvent_EnrichesAllDerivedFields(t *testing.T) {
	gen := defaultGenerator()
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"traffic": {1, 0},
		"safety":  {0, 1},
	}}
	enricher := testEnricher(gen, emb)

	post := &models.Post{
		Link:    "https://example.com/p/1",
		Content: "Almost got hit by a car at the crossing again.",
		Date:    time.Date(2025, 11, 8, 14, 30, 0, 0, time.UTC),
	}

	event, err := enricher.CreateEvent(context.Background(), 3, []*models.Post{post}, nil)
	require.NoError(t, err)

	assert.Zero(t, event.ID) // unpersisted until the store assigns an id
	assert.Equal(t, int64(3), event.TopicID)
	assert.Equal(t, gen.name, event.Name)
	assert.Equal(t, gen.smallSummary, event.SmallSummary)
	assert.Equal(t, gen.bigSummary, event.BigSummary)
	assert.Equal(t, gen.caseDescription, event.CaseDescription)
	require.Len(t, event.Keywords, 2)
	assert.Equal(t, "traffic", event.Keywords[0].Text)
	assert.Equal(t, []float32{1, 0}, event.Keywords[0].Embedding)
	assert.Equal(t, "safety", event.Keywords[1].Text)
	assert.Equal(t, post.Date, event.Date)
	assert.Empty(t, event.SimilarEvents)
}

func TestCreateEvent_SimilarEventsComputedAgainstPool(t *testing.T) {
	gen := defaultGenerator()
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"traffic": {1, 0},
		"safety":  {0, 1},
	}}
	enricher := testEnricher(gen, emb)

	overlapping := &models.Event{ID: 9, Keywords: []models.Keyword{
		{Text: "traffic", Embedding: []float32{1, 0}},
		{Text: "safety", Embedding: []float32{0, 1}},
	}}
	unrelated := &models.Event{ID: 10, Keywords: []models.Keyword{
		{Text: "festival", Embedding: []float32{-1, 0}},
	}}

	post := &models.Post{Content: "crossing", Date: time.Now()}
	event, err := enricher.CreateEvent(context.Background(), 1, []*models.Post{post}, []*models.Event{overlapping, unrelated})
	require.NoError(t, err)

	require.Len(t, event.SimilarEvents, 1)
	assert.Same(t, overlapping, event.SimilarEvents[0])
	// Directional: the pool member's own index is not updated.
	assert.Nil(t, overlapping.SimilarEvents)
}

func TestAddPost_AppendsAndFullyRecomputes(t *testing.T) {
	gen := defaultGenerator()
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"traffic": {1, 0},
		"safety":  {0, 1},
	}}
	enricher := testEnricher(gen, emb)

	older := &models.Post{Content: "old report", Date: time.Date(2025, 11, 7, 9, 0, 0, 0, time.UTC)}
	event := &models.Event{
		ID:           5,
		Name:         "Stale name",
		SmallSummary: "Stale summary",
		Posts:        []*models.Post{older},
		Date:         older.Date,
	}

	newest := &models.Post{Content: "new report", Date: time.Date(2025, 11, 9, 9, 0, 0, 0, time.UTC)}
	require.NoError(t, enricher.AddPost(context.Background(), event, newest, nil))

	require.Len(t, event.Posts, 2)
	assert.Same(t, newest, event.Posts[1])
	// Derived fields are regenerated, not patched.
	assert.Equal(t, gen.name, event.Name)
	assert.Equal(t, gen.smallSummary, event.SmallSummary)
	assert.Len(t, event.Keywords, 2)
	// Date is the max post date, which is the new post's.
	assert.Equal(t, newest.Date, event.Date)
}

func TestRecompute_GenerationFailureIsUpstreamAndFatal(t *testing.T) {
	gen := defaultGenerator()
	gen.failOn = "broad narrative"
	emb := &fakeEmbedder{vectors: map[string][]float32{}}
	enricher := testEnricher(gen, emb)

	event := &models.Event{Posts: []*models.Post{{Content: "text", Date: time.Now()}}}
	err := enricher.Recompute(context.Background(), event, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestRecompute_KeywordEmbeddingFailureIsUpstream(t *testing.T) {
	gen := defaultGenerator()
	emb := &fakeEmbedder{
		vectors: map[string][]float32{"traffic": {1, 0}},
		failOn:  "safety",
	}
	enricher := testEnricher(gen, emb)

	event := &models.Event{Posts: []*models.Post{{Content: "text", Date: time.Now()}}}
	err := enricher.Recompute(context.Background(), event, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestRecompute_EmptyPostListFallsBackToNow(t *testing.T) {
	gen := defaultGenerator()
	gen.keywords = ""
	emb := &fakeEmbedder{vectors: map[string][]float32{}}
	enricher := testEnricher(gen, emb)

	event := &models.Event{}
	require.NoError(t, enricher.Recompute(context.Background(), event, nil))
	assert.Equal(t, enricher.now(), event.Date)
}

func TestExtractKeywords_JoinsInKeywordOrder(t *testing.T) {
	gen := defaultGenerator()
	gen.keywords = "alpha, beta, gamma, delta"
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"alpha": {1, 0}, "beta": {0, 1}, "gamma": {-1, 0}, "delta": {0, -1},
	}}
	enricher := testEnricher(gen, emb)

	keywords, err := enricher.extractKeywords(context.Background(), "anything")
	require.NoError(t, err)
	require.Len(t, keywords, 4)
	assert.Equal(t, "alpha", keywords[0].Text)
	assert.Equal(t, "beta", keywords[1].Text)
	assert.Equal(t, "gamma", keywords[2].Text)
	assert.Equal(t, "delta", keywords[3].Text)
	assert.Equal(t, []float32{-1, 0}, keywords[2].Embedding)
}
