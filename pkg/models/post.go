// Package models contains domain models for civicpulse.
package models

import (
	"strings"
	"time"
)

// Post is a single social-media post or news item about the municipality.
// Posts are created once at ingestion and never reassigned: once the
// assignment engine places a post into an event it stays there.
type Post struct {
	// Link is the canonical URL of the post and its unique identifier.
	Link string `json:"link"`
	// Content is the raw post text.
	Content string `json:"content"`
	// SubjectDescription is a short LLM-derived proposition describing what
	// the post is about. Preferred over Content for embedding-based matching.
	SubjectDescription string    `json:"subject_description,omitempty"`
	Date               time.Time `json:"date"`
	Source             string    `json:"source"`
	// SatisfactionRating is a 0-100 sentiment score (50 = neutral).
	SatisfactionRating int `json:"satisfaction_rating"`
	// TopicID is the stable id of the topic this post belongs to, resolved
	// exactly once at post-creation time.
	TopicID int64 `json:"topic_id"`
	// Actionables are follow-up items extracted at ingestion. Not used by
	// the assignment engine.
	Actionables []Actionable `json:"actionables,omitempty"`

	ID int64 `json:"id"`
}

// MatchingText returns the text used for embedding-based comparison:
// the subject description when present, otherwise the raw content.
func (p *Post) MatchingText() string {
	if s := strings.TrimSpace(p.SubjectDescription); s != "" {
		return s
	}
	return strings.TrimSpace(p.Content)
}

// Actionable is a question or request extracted from a post that the
// municipality may want to respond to.
type Actionable struct {
	ID               int64  `json:"id"`
	BaseLink         string `json:"base_link"`
	Content          string `json:"content"`
	IsQuestion       bool   `json:"is_question"`
	ProposedResponse string `json:"proposed_response,omitempty"`
}
