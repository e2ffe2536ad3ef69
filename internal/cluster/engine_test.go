package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/thebtf/civicpulse/pkg/models"
)

// fakeStore is an in-memory EventStore tracking calls.
type fakeStore struct {
	topics       map[int64]*models.Topic
	events       []*models.Event
	nextEventID  int64
	addCalls     int
	updateCalls  int
	windowCalls  int
	lastCutoff   time.Time
	failGetTopic error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		topics:      map[int64]*models.Topic{},
		nextEventID: 100,
	}
}

func (s *fakeStore) GetTopicByID(_ context.Context, id int64) (*models.Topic, error) {
	if s.failGetTopic != nil {
		return nil, s.failGetTopic
	}
	return s.topics[id], nil
}

func (s *fakeStore) GetEventsByTopicSince(_ context.Context, topicID int64, cutoff time.Time) ([]*models.Event, error) {
	s.windowCalls++
	s.lastCutoff = cutoff
	var out []*models.Event
	for _, ev := range s.events {
		if ev.TopicID == topicID && !ev.Date.Before(cutoff) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *fakeStore) AddEvent(_ context.Context, event *models.Event) error {
	s.addCalls++
	s.nextEventID++
	event.ID = s.nextEventID
	s.events = append(s.events, event)
	if topic := s.topics[event.TopicID]; topic != nil {
		topic.Events = append(topic.Events, event)
	}
	return nil
}

func (s *fakeStore) UpdateEvent(_ context.Context, _ *models.Event) error {
	s.updateCalls++
	return nil
}

type EngineSuite struct {
	suite.Suite
	store    *fakeStore
	embedder *fakeEmbedder
	gen      *fakeGenerator
	engine   *Engine
	now      time.Time
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.now = time.Date(2025, 11, 10, 12, 0, 0, 0, time.UTC)
	nowFn := func() time.Time { return s.now }

	s.store = newFakeStore()
	s.store.topics[1] = &models.Topic{ID: 1, Name: "Traffic"}

	s.gen = defaultGenerator()
	s.embedder = &fakeEmbedder{vectors: map[string][]float32{
		"traffic": {1, 0},
		"safety":  {0, 1},
	}}

	enricher := testEnricher(s.gen, s.embedder)
	s.engine = NewEngine(s.store, s.embedder, enricher, zerolog.Nop())
	s.engine.now = nowFn
}

// addCandidate registers a persisted event in the fake store with a case
// description resolving to the given embedding.
func (s *EngineSuite) addCandidate(id int64, caseDescription string, emb []float32, date time.Time) *models.Event {
	event := &models.Event{
		ID:              id,
		TopicID:         1,
		Name:            caseDescription,
		CaseDescription: caseDescription,
		Posts:           []*models.Post{{Content: "seed", Date: date}},
		Date:            date,
	}
	s.store.events = append(s.store.events, event)
	s.embedder.vectors[caseDescription] = emb
	return event
}

func (s *EngineSuite) newPost(link, matchingText string, emb []float32) *models.Post {
	s.embedder.vectors[matchingText] = emb
	return &models.Post{
		Link:               link,
		Content:            matchingText,
		Date:               s.now.Add(-time.Hour),
		TopicID:            1,
		SatisfactionRating: 50,
	}
}

func (s *EngineSuite) TestHighestSimilarityWins() {
	// cos to A ≈ 0.951, to B = 0.8; both above 0.7, A must win.
	eventA := s.addCandidate(1, "station crossing safety", []float32{0.951, 0.309}, s.now.Add(-2*time.Hour))
	eventB := s.addCandidate(2, "parking shortage downtown", []float32{0.8, 0.6}, s.now.Add(-time.Hour))

	post := s.newPost("https://x.test/1", "near miss at the crossing", []float32{1, 0})
	event, created, err := s.engine.AssignPost(context.Background(), post)
	s.Require().NoError(err)

	s.False(created)
	s.Same(eventA, event)
	s.Len(eventA.Posts, 2)
	s.Len(eventB.Posts, 1)
	s.Equal(1, s.store.updateCalls)
	s.Equal(0, s.store.addCalls)
}

func (s *EngineSuite) TestNoMatchCreatesSinglePostEvent() {
	s.addCandidate(1, "summer festival lineup", []float32{0, 1}, s.now.Add(-time.Hour))

	post := s.newPost("https://x.test/2", "bike lane flooding", []float32{1, 0})
	event, created, err := s.engine.AssignPost(context.Background(), post)
	s.Require().NoError(err)

	s.True(created)
	s.NotZero(event.ID)
	s.Require().Len(event.Posts, 1)
	s.Same(post, event.Posts[0])
	s.Equal(1, s.store.addCalls)
	// Registered in the topic's event list exactly once.
	topic := s.store.topics[1]
	count := 0
	for _, ev := range topic.Events {
		if ev == event {
			count++
		}
	}
	s.Equal(1, count)
}

func (s *EngineSuite) TestAssignmentRecomputesEventDate() {
	event := s.addCandidate(1, "station crossing safety", []float32{1, 0}, s.now.Add(-3*time.Hour))

	post := s.newPost("https://x.test/3", "crossing still dangerous", []float32{1, 0})
	post.Date = s.now.Add(-10 * time.Minute) // newest post in the event

	_, created, err := s.engine.AssignPost(context.Background(), post)
	s.Require().NoError(err)
	s.False(created)
	s.Equal(post.Date, event.Date)
}

func (s *EngineSuite) TestCandidatesOutsideWindowAreIgnored() {
	stale := s.addCandidate(1, "station crossing safety", []float32{1, 0}, s.now.Add(-25*time.Hour))

	post := s.newPost("https://x.test/4", "crossing trouble again", []float32{1, 0})
	event, created, err := s.engine.AssignPost(context.Background(), post)
	s.Require().NoError(err)

	s.True(created)
	s.NotSame(stale, event)
	// The cutoff is derived from the engine's clock, not the store's.
	s.Equal(s.now.Add(-CandidateWindow), s.store.lastCutoff)
}

func (s *EngineSuite) TestCandidateWithoutMatchingTextIsSkipped() {
	blank := s.addCandidate(1, "", nil, s.now.Add(-time.Hour))

	post := s.newPost("https://x.test/5", "crossing trouble", []float32{1, 0})
	event, created, err := s.engine.AssignPost(context.Background(), post)
	s.Require().NoError(err)

	s.True(created)
	s.NotSame(blank, event)
}

func (s *EngineSuite) TestSubjectDescriptionPreferredOverContent() {
	s.addCandidate(1, "station crossing safety", []float32{1, 0}, s.now.Add(-time.Hour))

	post := s.newPost("https://x.test/6", "unused content text", []float32{0, 1})
	post.SubjectDescription = "crossing safety concern"
	s.embedder.vectors["crossing safety concern"] = []float32{1, 0}

	_, created, err := s.engine.AssignPost(context.Background(), post)
	s.Require().NoError(err)
	s.False(created)
}

func (s *EngineSuite) TestUnresolvedTopicIsFatal() {
	post := s.newPost("https://x.test/7", "anything", []float32{1, 0})
	post.TopicID = 999

	_, _, err := s.engine.AssignPost(context.Background(), post)
	s.Require().Error(err)
	s.ErrorIs(err, ErrUnresolvedTopic)
	s.Equal(0, s.store.addCalls)
}

func (s *EngineSuite) TestEmbeddingFailureAbortsAssignment() {
	s.addCandidate(1, "station crossing safety", []float32{1, 0}, s.now.Add(-time.Hour))

	post := s.newPost("https://x.test/8", "boom", []float32{1, 0})
	s.embedder.failOn = "boom"

	_, _, err := s.engine.AssignPost(context.Background(), post)
	s.Require().Error(err)
	s.ErrorIs(err, ErrUpstream)
	s.Equal(0, s.store.addCalls)
	s.Equal(0, s.store.updateCalls)
}

func (s *EngineSuite) TestTwoDissimilarPostsYieldTwoEvents() {
	first := s.newPost("https://x.test/9", "roadworks on the A4", []float32{1, 0})
	eventOne, created, err := s.engine.AssignPost(context.Background(), first)
	s.Require().NoError(err)
	s.True(created)

	// The second post is dissimilar to the first event's derived case
	// description, so it seeds its own event.
	s.embedder.vectors[eventOne.MatchingText()] = []float32{1, 0}
	second := s.newPost("https://x.test/10", "library opening hours", []float32{0, 1})
	eventTwo, created, err := s.engine.AssignPost(context.Background(), second)
	s.Require().NoError(err)
	s.True(created)

	s.NotSame(eventOne, eventTwo)
	s.Len(eventOne.Posts, 1)
	s.Len(eventTwo.Posts, 1)
	s.Equal(2, s.store.addCalls)
}

func TestBestMatch_TieKeepsFirstCandidate(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"first":  {1, 0},
		"second": {1, 0},
	}}
	engine := NewEngine(nil, embedder, nil, zerolog.Nop())

	first := &models.Event{ID: 1, CaseDescription: "first"}
	second := &models.Event{ID: 2, CaseDescription: "second"}

	best, score, err := engine.bestMatch(context.Background(), []float32{1, 0}, []*models.Event{first, second})
	require.NoError(t, err)
	assert.Same(t, first, best)
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestBestMatch_IsDeterministic(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"a": {0.951, 0.309},
		"b": {0.8, 0.6},
		"c": {0.5, 0.866},
	}}
	engine := NewEngine(nil, embedder, nil, zerolog.Nop())

	candidates := []*models.Event{
		{ID: 1, CaseDescription: "a"},
		{ID: 2, CaseDescription: "b"},
		{ID: 3, CaseDescription: "c"}, // below threshold
	}

	firstBest, firstScore, err := engine.bestMatch(context.Background(), []float32{1, 0}, candidates)
	require.NoError(t, err)
	secondBest, secondScore, err := engine.bestMatch(context.Background(), []float32{1, 0}, candidates)
	require.NoError(t, err)

	assert.Same(t, firstBest, secondBest)
	assert.Equal(t, firstScore, secondScore)
	assert.Equal(t, int64(1), firstBest.ID)
}
