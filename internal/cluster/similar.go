// Package cluster implements the incremental post-to-event clustering engine:
// assignment of incoming posts to recent events, event enrichment via the
// generation provider, and keyword-overlap similarity between events.
package cluster

import (
	"time"

	"github.com/thebtf/civicpulse/pkg/models"
	"github.com/thebtf/civicpulse/pkg/similarity"
)

const (
	// SimilarityThreshold is the cosine-similarity cutoff shared by
	// post-to-event matching and keyword-concept overlap. One constant,
	// not two independent tunables.
	SimilarityThreshold = 0.7

	// MinKeywordOverlap is the minimum number of in-common keyword pairs
	// for two events to count as similar.
	MinKeywordOverlap = 2

	// CandidateWindow is the trailing recency window for candidate events,
	// evaluated at decision time.
	CandidateWindow = 24 * time.Hour
)

// EventsAreSimilar reports whether two events share at least
// MinKeywordOverlap keyword concepts. An event is never similar to itself
// (compared by identity, not content), and an event without keywords is not
// similar to anything. A dimension mismatch between keyword embeddings is a
// programming-contract violation and surfaces as an error.
func EventsAreSimilar(a, b *models.Event) (bool, error) {
	if a == b {
		return false, nil
	}
	if a.ID != 0 && a.ID == b.ID {
		return false, nil
	}
	if len(a.Keywords) == 0 || len(b.Keywords) == 0 {
		return false, nil
	}

	inCommon := 0
	for i := range a.Keywords {
		for j := range b.Keywords {
			sim, err := similarity.Cosine(a.Keywords[i].Embedding, b.Keywords[j].Embedding)
			if err != nil {
				return false, err
			}
			if sim > SimilarityThreshold {
				inCommon++
				if inCommon >= MinKeywordOverlap {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

// FindSimilarEvents returns the subset of pool similar to event. The result
// is a directional index: computing it for event against pool does not update
// the SimilarEvents lists of any pool member.
func FindSimilarEvents(event *models.Event, pool []*models.Event) ([]*models.Event, error) {
	var similar []*models.Event
	for _, other := range pool {
		ok, err := EventsAreSimilar(event, other)
		if err != nil {
			return nil, err
		}
		if ok {
			similar = append(similar, other)
		}
	}
	return similar, nil
}
