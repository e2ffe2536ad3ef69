package worker

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/thebtf/civicpulse/internal/search"
	"github.com/thebtf/civicpulse/pkg/models"
)

func (s *Service) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Service) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"version":        s.version,
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}

// Response shapes. Events embed their posts and keyword texts; similar
// events are reduced to id and name to keep payloads flat.

type topicResponse struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Icon       string `json:"icon,omitempty"`
	EventCount int    `json:"event_count"`
}

type eventStubResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type postResponse struct {
	ID                 int64     `json:"id"`
	Link               string    `json:"link"`
	Content            string    `json:"content"`
	SubjectDescription string    `json:"subject_description,omitempty"`
	Date               time.Time `json:"date"`
	Source             string    `json:"source"`
	SatisfactionRating int       `json:"satisfaction_rating"`
	TopicID            int64     `json:"topic_id"`
}

type eventResponse struct {
	ID              int64               `json:"id"`
	TopicID         int64               `json:"topic_id"`
	Name            string              `json:"name"`
	SmallSummary    string              `json:"small_summary"`
	BigSummary      string              `json:"big_summary"`
	CaseDescription string              `json:"case_description"`
	Date            time.Time           `json:"date"`
	Keywords        []string            `json:"keywords"`
	SimilarEvents   []eventStubResponse `json:"similar_events"`
	Posts           []postResponse      `json:"posts"`
}

func postToResponse(p *models.Post) postResponse {
	return postResponse{
		ID:                 p.ID,
		Link:               p.Link,
		Content:            p.Content,
		SubjectDescription: p.SubjectDescription,
		Date:               p.Date,
		Source:             p.Source,
		SatisfactionRating: p.SatisfactionRating,
		TopicID:            p.TopicID,
	}
}

func eventToResponse(e *models.Event) eventResponse {
	resp := eventResponse{
		ID:              e.ID,
		TopicID:         e.TopicID,
		Name:            e.Name,
		SmallSummary:    e.SmallSummary,
		BigSummary:      e.BigSummary,
		CaseDescription: e.CaseDescription,
		Date:            e.Date,
		Keywords:        make([]string, 0, len(e.Keywords)),
		SimilarEvents:   make([]eventStubResponse, 0, len(e.SimilarEvents)),
		Posts:           make([]postResponse, 0, len(e.Posts)),
	}
	for _, k := range e.Keywords {
		resp.Keywords = append(resp.Keywords, k.Text)
	}
	for _, sim := range e.SimilarEvents {
		resp.SimilarEvents = append(resp.SimilarEvents, eventStubResponse{ID: sim.ID, Name: sim.Name})
	}
	for _, p := range e.Posts {
		resp.Posts = append(resp.Posts, postToResponse(p))
	}
	return resp
}

func (s *Service) handleListTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := s.store.ListTopics(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("List topics failed")
		s.writeError(w, http.StatusInternalServerError, "list topics failed")
		return
	}
	resp := make([]topicResponse, 0, len(topics))
	for _, t := range topics {
		resp = append(resp, topicResponse{ID: t.ID, Name: t.Name, Icon: t.Icon, EventCount: len(t.Events)})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// sentimentPoint is one event's average satisfaction for the sentiment
// timeline of a topic.
type sentimentPoint struct {
	EventID   int64   `json:"event_id"`
	EventName string  `json:"event_name"`
	Sentiment float64 `json:"sentiment"`
	Date      string  `json:"date"`
	Timestamp int64   `json:"timestamp"`
	PostCount int     `json:"post_count"`
}

type sentimentReport struct {
	Topic    string           `json:"topic"`
	Data     []sentimentPoint `json:"data"`
	Metadata struct {
		TotalEvents  int     `json:"total_events"`
		AvgSentiment float64 `json:"avg_sentiment"`
		DateRange    struct {
			Start *string `json:"start"`
			End   *string `json:"end"`
		} `json:"date_range"`
	} `json:"metadata"`
}

func (s *Service) handleTopicSentiment(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	topic, err := s.store.GetTopicByName(r.Context(), name)
	if err != nil {
		s.logger.Error().Err(err).Str("topic", name).Msg("Topic lookup failed")
		s.writeError(w, http.StatusInternalServerError, "topic lookup failed")
		return
	}
	if topic == nil {
		s.writeError(w, http.StatusNotFound, "topic not found")
		return
	}

	events, err := s.store.EventsByTopic(r.Context(), topic.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("topic", name).Msg("Topic events lookup failed")
		s.writeError(w, http.StatusInternalServerError, "topic events lookup failed")
		return
	}

	report := sentimentReport{Topic: topic.Name, Data: make([]sentimentPoint, 0, len(events))}
	var total float64
	for _, event := range events {
		if len(event.Posts) == 0 {
			continue
		}
		var sum int
		for _, p := range event.Posts {
			sum += p.SatisfactionRating
		}
		avg := float64(sum) / float64(len(event.Posts))
		report.Data = append(report.Data, sentimentPoint{
			EventID:   event.ID,
			EventName: event.Name,
			Sentiment: roundTo(avg, 2),
			Date:      event.Date.Format(time.RFC3339),
			Timestamp: event.Date.Unix(),
			PostCount: len(event.Posts),
		})
		total += avg
	}

	// Oldest first, so the data plots as a timeline.
	sort.Slice(report.Data, func(i, j int) bool {
		return report.Data[i].Timestamp < report.Data[j].Timestamp
	})

	report.Metadata.TotalEvents = len(report.Data)
	if len(report.Data) > 0 {
		report.Metadata.AvgSentiment = roundTo(total/float64(len(report.Data)), 2)
		report.Metadata.DateRange.Start = &report.Data[0].Date
		report.Metadata.DateRange.End = &report.Data[len(report.Data)-1].Date
	}
	s.writeJSON(w, http.StatusOK, report)
}

func roundTo(v float64, places int) float64 {
	shift := 1.0
	for i := 0; i < places; i++ {
		shift *= 10
	}
	return float64(int64(v*shift+0.5)) / shift
}

func (s *Service) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.ListEvents(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("List events failed")
		s.writeError(w, http.StatusInternalServerError, "list events failed")
		return
	}
	resp := make([]eventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, eventToResponse(e))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}
	event, err := s.store.GetEventByID(r.Context(), id)
	if err != nil {
		s.logger.Error().Err(err).Int64("event_id", id).Msg("Event lookup failed")
		s.writeError(w, http.StatusInternalServerError, "event lookup failed")
		return
	}
	if event == nil {
		s.writeError(w, http.StatusNotFound, "event not found")
		return
	}
	s.writeJSON(w, http.StatusOK, eventToResponse(event))
}

func (s *Service) handleListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.store.ListPosts(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("List posts failed")
		s.writeError(w, http.StatusInternalServerError, "list posts failed")
		return
	}
	resp := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		resp = append(resp, postToResponse(p))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type ingestPostRequest struct {
	Link    string    `json:"link"`
	Content string    `json:"content"`
	Date    time.Time `json:"date"`
	Source  string    `json:"source"`
}

type ingestPostResponse struct {
	Skipped bool           `json:"skipped"`
	Created bool           `json:"created"`
	Event   *eventResponse `json:"event,omitempty"`
}

func (s *Service) handleIngestPost(w http.ResponseWriter, r *http.Request) {
	var req ingestPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		s.writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	post := &models.Post{
		Link:    req.Link,
		Content: req.Content,
		Date:    req.Date,
		Source:  req.Source,
	}
	event, created, err := s.ingestor.IngestPost(r.Context(), post)
	if err != nil {
		s.logger.Error().Err(err).Str("link", req.Link).Msg("Post ingestion failed")
		s.writeError(w, http.StatusBadGateway, "post ingestion failed")
		return
	}
	if event == nil {
		s.writeJSON(w, http.StatusOK, ingestPostResponse{Skipped: true})
		return
	}
	resp := eventToResponse(event)
	s.writeJSON(w, http.StatusCreated, ingestPostResponse{Created: created, Event: &resp})
}

func (s *Service) handleIngestCSV(w http.ResponseWriter, r *http.Request) {
	report, err := s.ingestor.IngestCSV(r.Context(), r.Body)
	if err != nil {
		s.logger.Error().Err(err).Msg("CSV ingestion failed")
		s.writeError(w, http.StatusBadGateway, "csv ingestion failed")
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Service) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.searcher == nil {
		s.writeError(w, http.StatusServiceUnavailable, "search index not configured")
		return
	}

	params := search.Params{
		Query:  r.URL.Query().Get("q"),
		Source: r.URL.Query().Get("source"),
	}
	if v := r.URL.Query().Get("topic_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid topic_id")
			return
		}
		params.TopicID = id
	}
	if v := r.URL.Query().Get("from"); v != "" {
		params.From, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("size"); v != "" {
		params.Size, _ = strconv.Atoi(v)
	}

	result, err := s.searcher.SearchPosts(r.Context(), params)
	if err != nil {
		s.logger.Error().Err(err).Msg("Search failed")
		s.writeError(w, http.StatusBadGateway, "search failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"total": result.Total,
		"items": result.Items,
	})
}
