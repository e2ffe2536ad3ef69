// Package store provides GORM-based persistence for topics, events, and posts.
package store

import (
	"database/sql"
	"time"

	pgvec "github.com/pgvector/pgvector-go"
)

// GORM rows. Domain models live in pkg/models; the store maps between the two.

// TopicRow is a topic bucket.
type TopicRow struct {
	ID   int64  `gorm:"primaryKey;autoIncrement"`
	Name string `gorm:"uniqueIndex;not null"`
	Icon string
}

func (TopicRow) TableName() string { return "topics" }

// EventRow is an event cluster. Date is derived from member posts and
// rewritten on every mutation; it is indexed for the trailing-window query.
type EventRow struct {
	ID              int64     `gorm:"primaryKey;autoIncrement"`
	TopicID         int64     `gorm:"index:idx_events_topic_date,priority:1;not null"`
	Name            string    `gorm:"type:text"`
	SmallSummary    string    `gorm:"type:text"`
	BigSummary      string    `gorm:"type:text"`
	CaseDescription string    `gorm:"type:text"`
	Date            time.Time `gorm:"index:idx_events_topic_date,priority:2,sort:desc;not null"`
}

func (EventRow) TableName() string { return "events" }

// PostRow is an ingested post. EventID is null until the assignment engine
// places the post; Position preserves assignment order within an event.
type PostRow struct {
	ID                 int64     `gorm:"primaryKey;autoIncrement"`
	Link               string    `gorm:"uniqueIndex;not null"`
	Content            string    `gorm:"type:text"`
	SubjectDescription string    `gorm:"type:text"`
	Date               time.Time `gorm:"index"`
	Source             string
	SatisfactionRating int
	TopicID            int64         `gorm:"index;not null"`
	EventID            sql.NullInt64 `gorm:"index"`
	Position           int           `gorm:"default:0"`
}

func (PostRow) TableName() string { return "posts" }

// ActionableRow is a follow-up item extracted from a post at ingestion.
type ActionableRow struct {
	ID               int64 `gorm:"primaryKey;autoIncrement"`
	PostID           int64 `gorm:"index;not null"`
	BaseLink         string
	Content          string `gorm:"type:text"`
	IsQuestion       bool
	ProposedResponse string `gorm:"type:text"`
}

func (ActionableRow) TableName() string { return "actionables" }

// KeywordRow is an event keyword with its embedding, stored via pgvector.
// Keyword sets are replaced wholesale on every event recompute.
type KeywordRow struct {
	ID        int64        `gorm:"primaryKey;autoIncrement"`
	EventID   int64        `gorm:"index;not null"`
	Text      string       `gorm:"not null"`
	Embedding pgvec.Vector `gorm:"type:vector"`
	Position  int          `gorm:"default:0"`
}

func (KeywordRow) TableName() string { return "keywords" }

// EventSimilarityRow is one directional similar-event link. The index is
// derived, not a bidirectional graph edge: (a,b) existing says nothing about
// (b,a).
type EventSimilarityRow struct {
	ID             int64 `gorm:"primaryKey;autoIncrement"`
	EventID        int64 `gorm:"uniqueIndex:idx_event_similar,priority:1;not null"`
	SimilarEventID int64 `gorm:"uniqueIndex:idx_event_similar,priority:2;not null"`
}

func (EventSimilarityRow) TableName() string { return "event_similarities" }
