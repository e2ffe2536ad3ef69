package models

import (
	"strings"
	"time"
)

// Keyword is a keyword extracted from an event's posts together with its
// embedding vector. Two keywords describe the same concept when the cosine
// similarity of their embeddings exceeds the shared similarity threshold.
type Keyword struct {
	Text      string    `json:"keyword"`
	Embedding []float32 `json:"-"`
}

// Event is a cluster of posts believed to concern the same real-world
// happening. All derived fields (name, summaries, keywords, similar events,
// date) are regenerated from the full post list on every mutation.
type Event struct {
	// ID is assigned by the store on insert. Zero means unpersisted.
	ID int64 `json:"id"`
	// Name is a short LLM-generated label (at most ten words).
	Name string `json:"name"`
	// SmallSummary and BigSummary are LLM-generated at different granularity.
	SmallSummary string `json:"small_summary"`
	BigSummary   string `json:"big_summary"`
	// CaseDescription describes the broad subject of the event in neutral
	// terms, free of posting-specific detail. This is the text preferred for
	// post-to-event matching.
	CaseDescription string `json:"case_description"`
	// Keywords are regenerated from the full post list on every mutation.
	Keywords []Keyword `json:"keywords,omitempty"`
	// SimilarEvents is a derived, directional index: it lists events this
	// event was found similar to at its last recompute. Computing it does
	// not update the listed events' own indexes.
	SimilarEvents []*Event `json:"-"`
	// Posts this event owns, in assignment order. A post belongs to at most
	// one event.
	Posts []*Post `json:"posts,omitempty"`
	// TopicID is the topic this event belongs to.
	TopicID int64 `json:"topic_id"`
	// Date is always max(post.Date) over member posts; see RecomputeDate.
	Date time.Time `json:"date"`
}

// MatchingText returns the text used for embedding-based comparison:
// the case description when present, otherwise the small summary.
// Empty means the event cannot be matched against.
func (e *Event) MatchingText() string {
	if s := strings.TrimSpace(e.CaseDescription); s != "" {
		return s
	}
	return strings.TrimSpace(e.SmallSummary)
}

// RecomputeDate sets Date to the maximum date among member posts.
// An event with no posts falls back to now; that drift is accepted because
// such an event is never a valid persisted state.
func (e *Event) RecomputeDate(now time.Time) {
	if len(e.Posts) == 0 {
		e.Date = now
		return
	}
	maxDate := e.Posts[0].Date
	for _, p := range e.Posts[1:] {
		if p.Date.After(maxDate) {
			maxDate = p.Date
		}
	}
	e.Date = maxDate
}

// CombinedContent concatenates the content of all member posts, separated by
// single spaces. This is the context handed to the generation provider.
func (e *Event) CombinedContent() string {
	parts := make([]string, 0, len(e.Posts))
	for _, p := range e.Posts {
		if c := strings.TrimSpace(p.Content); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, " ")
}
