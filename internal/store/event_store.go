package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	pgvec "github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/civicpulse/pkg/models"
)

// EventStore provides topic, event, and post persistence. It implements the
// assignment engine's store contract plus the read operations the HTTP API
// and ingestion layers need. No transactional semantics are exposed to
// callers beyond per-call atomicity of writes.
type EventStore struct {
	db *gorm.DB
}

// NewEventStore creates an event store on an open connection.
func NewEventStore(s *Store) *EventStore {
	return &EventStore{db: s.DB}
}

// SeedTopics inserts the given topic names, skipping ones that already exist.
func (s *EventStore) SeedTopics(ctx context.Context, names []string) error {
	rows := make([]TopicRow, 0, len(names))
	for _, name := range names {
		rows = append(rows, TopicRow{Name: name})
	}
	if len(rows) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("seed topics: %w", err)
	}
	return nil
}

// GetTopicByID resolves a topic by id. Returns (nil, nil) when absent.
func (s *EventStore) GetTopicByID(ctx context.Context, id int64) (*models.Topic, error) {
	var row TopicRow
	err := s.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get topic %d: %w", id, err)
	}
	return topicFromRow(&row), nil
}

// GetTopicByName resolves a topic by name. Returns (nil, nil) when absent.
func (s *EventStore) GetTopicByName(ctx context.Context, name string) (*models.Topic, error) {
	var row TopicRow
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get topic %q: %w", name, err)
	}
	return topicFromRow(&row), nil
}

// ListTopics returns all topics with their events hydrated.
func (s *EventStore) ListTopics(ctx context.Context) ([]*models.Topic, error) {
	var rows []TopicRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}

	topics := make([]*models.Topic, 0, len(rows))
	for i := range rows {
		topic := topicFromRow(&rows[i])
		events, err := s.EventsByTopic(ctx, topic.ID)
		if err != nil {
			return nil, err
		}
		topic.Events = events
		topics = append(topics, topic)
	}
	return topics, nil
}

// GetEventsByTopicSince returns the topic's events whose derived date falls
// on or after the cutoff, fully hydrated for matching.
func (s *EventStore) GetEventsByTopicSince(ctx context.Context, topicID int64, cutoff time.Time) ([]*models.Event, error) {
	var rows []EventRow
	err := s.db.WithContext(ctx).
		Where("topic_id = ? AND date >= ?", topicID, cutoff).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("events by topic %d since cutoff: %w", topicID, err)
	}
	return s.hydrateEvents(ctx, rows)
}

// GetEventByID returns one fully hydrated event, or (nil, nil) when absent.
func (s *EventStore) GetEventByID(ctx context.Context, id int64) (*models.Event, error) {
	var row EventRow
	err := s.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event %d: %w", id, err)
	}
	events, err := s.hydrateEvents(ctx, []EventRow{row})
	if err != nil {
		return nil, err
	}
	return events[0], nil
}

// ListEvents returns all events, newest first, fully hydrated.
func (s *EventStore) ListEvents(ctx context.Context) ([]*models.Event, error) {
	var rows []EventRow
	if err := s.db.WithContext(ctx).Order("date DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return s.hydrateEvents(ctx, rows)
}

// AddEvent persists a new event with its posts, keywords, and similar-event
// links, and assigns its id. The event is registered under its topic via the
// topic_id column; a post row is created (or claimed) for every member post.
func (s *EventStore) AddEvent(ctx context.Context, event *models.Event) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := eventToRow(event)
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		event.ID = row.ID

		if err := s.savePosts(tx, event); err != nil {
			return err
		}
		if err := s.replaceKeywords(tx, event); err != nil {
			return err
		}
		return s.replaceSimilarLinks(tx, event)
	})
}

// UpdateEvent rewrites an event's derived fields, posts, keywords, and
// similar-event links after a recompute.
func (s *EventStore) UpdateEvent(ctx context.Context, event *models.Event) error {
	if event.ID == 0 {
		return fmt.Errorf("update event: event has no id")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := eventToRow(event)
		if err := tx.Model(&EventRow{}).Where("id = ?", event.ID).Updates(map[string]interface{}{
			"name":             row.Name,
			"small_summary":    row.SmallSummary,
			"big_summary":      row.BigSummary,
			"case_description": row.CaseDescription,
			"date":             row.Date,
		}).Error; err != nil {
			return fmt.Errorf("update event %d: %w", event.ID, err)
		}

		if err := s.savePosts(tx, event); err != nil {
			return err
		}
		if err := s.replaceKeywords(tx, event); err != nil {
			return err
		}
		return s.replaceSimilarLinks(tx, event)
	})
}

// GetPostByLink returns a post by its unique link, or (nil, nil) when absent.
func (s *EventStore) GetPostByLink(ctx context.Context, link string) (*models.Post, error) {
	var row PostRow
	err := s.db.WithContext(ctx).Where("link = ?", link).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get post by link: %w", err)
	}
	return s.postFromRow(ctx, &row)
}

// ListPosts returns all posts, newest first.
func (s *EventStore) ListPosts(ctx context.Context) ([]*models.Post, error) {
	var rows []PostRow
	if err := s.db.WithContext(ctx).Order("date DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	posts := make([]*models.Post, 0, len(rows))
	for i := range rows {
		post, err := s.postFromRow(ctx, &rows[i])
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, nil
}

// savePosts creates or claims a post row for every member post, preserving
// assignment order via the position column.
func (s *EventStore) savePosts(tx *gorm.DB, event *models.Event) error {
	for i, post := range event.Posts {
		row := postToRow(post)
		row.EventID = sql.NullInt64{Int64: event.ID, Valid: true}
		row.Position = i

		if post.ID != 0 {
			row.ID = post.ID
			if err := tx.Save(row).Error; err != nil {
				return fmt.Errorf("save post %q: %w", post.Link, err)
			}
			continue
		}

		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("insert post %q: %w", post.Link, err)
		}
		post.ID = row.ID

		for j := range post.Actionables {
			a := &post.Actionables[j]
			arow := ActionableRow{
				PostID:           row.ID,
				BaseLink:         a.BaseLink,
				Content:          a.Content,
				IsQuestion:       a.IsQuestion,
				ProposedResponse: a.ProposedResponse,
			}
			if err := tx.Create(&arow).Error; err != nil {
				return fmt.Errorf("insert actionable for post %q: %w", post.Link, err)
			}
			a.ID = arow.ID
		}
	}
	return nil
}

// replaceKeywords swaps the event's keyword set wholesale. Keywords are fully
// regenerated on every recompute, so replace-all matches the write pattern.
func (s *EventStore) replaceKeywords(tx *gorm.DB, event *models.Event) error {
	if err := tx.Where("event_id = ?", event.ID).Delete(&KeywordRow{}).Error; err != nil {
		return fmt.Errorf("clear keywords for event %d: %w", event.ID, err)
	}
	if len(event.Keywords) == 0 {
		return nil
	}
	rows := make([]KeywordRow, 0, len(event.Keywords))
	for i, k := range event.Keywords {
		rows = append(rows, KeywordRow{
			EventID:   event.ID,
			Text:      k.Text,
			Embedding: pgvec.NewVector(k.Embedding),
			Position:  i,
		})
	}
	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("insert keywords for event %d: %w", event.ID, err)
	}
	return nil
}

// replaceSimilarLinks rewrites the event's directional similar-event links.
// Only this event's outgoing links are touched.
func (s *EventStore) replaceSimilarLinks(tx *gorm.DB, event *models.Event) error {
	if err := tx.Where("event_id = ?", event.ID).Delete(&EventSimilarityRow{}).Error; err != nil {
		return fmt.Errorf("clear similar links for event %d: %w", event.ID, err)
	}
	if len(event.SimilarEvents) == 0 {
		return nil
	}
	rows := make([]EventSimilarityRow, 0, len(event.SimilarEvents))
	for _, other := range event.SimilarEvents {
		if other.ID == 0 || other.ID == event.ID {
			continue
		}
		rows = append(rows, EventSimilarityRow{EventID: event.ID, SimilarEventID: other.ID})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("insert similar links for event %d: %w", event.ID, err)
	}
	return nil
}

// EventsByTopic returns all of a topic's events hydrated, newest first.
func (s *EventStore) EventsByTopic(ctx context.Context, topicID int64) ([]*models.Event, error) {
	var rows []EventRow
	err := s.db.WithContext(ctx).Where("topic_id = ?", topicID).Order("date DESC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("events by topic %d: %w", topicID, err)
	}
	return s.hydrateEvents(ctx, rows)
}

// hydrateEvents loads posts, keywords, and shallow similar-event references
// for the given event rows. Similar events are hydrated as stubs (id, name,
// topic) to keep the derived index from dragging in whole post lists.
func (s *EventStore) hydrateEvents(ctx context.Context, rows []EventRow) ([]*models.Event, error) {
	events := make([]*models.Event, 0, len(rows))
	for i := range rows {
		event := eventFromRow(&rows[i])

		var postRows []PostRow
		err := s.db.WithContext(ctx).
			Where("event_id = ?", event.ID).
			Order("position").
			Find(&postRows).Error
		if err != nil {
			return nil, fmt.Errorf("posts for event %d: %w", event.ID, err)
		}
		for j := range postRows {
			post, err := s.postFromRow(ctx, &postRows[j])
			if err != nil {
				return nil, err
			}
			event.Posts = append(event.Posts, post)
		}

		var keywordRows []KeywordRow
		err = s.db.WithContext(ctx).
			Where("event_id = ?", event.ID).
			Order("position").
			Find(&keywordRows).Error
		if err != nil {
			return nil, fmt.Errorf("keywords for event %d: %w", event.ID, err)
		}
		for _, k := range keywordRows {
			event.Keywords = append(event.Keywords, models.Keyword{
				Text:      k.Text,
				Embedding: k.Embedding.Slice(),
			})
		}

		similar, err := s.similarStubs(ctx, event.ID)
		if err != nil {
			return nil, err
		}
		event.SimilarEvents = similar

		events = append(events, event)
	}
	return events, nil
}

func (s *EventStore) similarStubs(ctx context.Context, eventID int64) ([]*models.Event, error) {
	var links []EventSimilarityRow
	err := s.db.WithContext(ctx).Where("event_id = ?", eventID).Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("similar links for event %d: %w", eventID, err)
	}
	if len(links) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.SimilarEventID)
	}
	var rows []EventRow
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("similar events for event %d: %w", eventID, err)
	}
	stubs := make([]*models.Event, 0, len(rows))
	for i := range rows {
		stubs = append(stubs, eventFromRow(&rows[i]))
	}
	return stubs, nil
}

func (s *EventStore) postFromRow(ctx context.Context, row *PostRow) (*models.Post, error) {
	post := &models.Post{
		ID:                 row.ID,
		Link:               row.Link,
		Content:            row.Content,
		SubjectDescription: row.SubjectDescription,
		Date:               row.Date,
		Source:             row.Source,
		SatisfactionRating: row.SatisfactionRating,
		TopicID:            row.TopicID,
	}
	var arows []ActionableRow
	if err := s.db.WithContext(ctx).Where("post_id = ?", row.ID).Find(&arows).Error; err != nil {
		return nil, fmt.Errorf("actionables for post %d: %w", row.ID, err)
	}
	for _, a := range arows {
		post.Actionables = append(post.Actionables, models.Actionable{
			ID:               a.ID,
			BaseLink:         a.BaseLink,
			Content:          a.Content,
			IsQuestion:       a.IsQuestion,
			ProposedResponse: a.ProposedResponse,
		})
	}
	return post, nil
}

func topicFromRow(row *TopicRow) *models.Topic {
	return &models.Topic{ID: row.ID, Name: row.Name, Icon: row.Icon}
}

func eventFromRow(row *EventRow) *models.Event {
	return &models.Event{
		ID:              row.ID,
		TopicID:         row.TopicID,
		Name:            row.Name,
		SmallSummary:    row.SmallSummary,
		BigSummary:      row.BigSummary,
		CaseDescription: row.CaseDescription,
		Date:            row.Date,
	}
}

func eventToRow(event *models.Event) *EventRow {
	return &EventRow{
		ID:              event.ID,
		TopicID:         event.TopicID,
		Name:            event.Name,
		SmallSummary:    event.SmallSummary,
		BigSummary:      event.BigSummary,
		CaseDescription: event.CaseDescription,
		Date:            event.Date,
	}
}

func postToRow(post *models.Post) *PostRow {
	return &PostRow{
		ID:                 post.ID,
		Link:               post.Link,
		Content:            post.Content,
		SubjectDescription: post.SubjectDescription,
		Date:               post.Date,
		Source:             post.Source,
		SatisfactionRating: post.SatisfactionRating,
		TopicID:            post.TopicID,
	}
}
