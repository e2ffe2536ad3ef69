package cluster

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstream marks a failed embedding or generation provider call.
	// Always fatal to the current assignment or enrichment call; the engine
	// never substitutes placeholder content for a failed provider response.
	ErrUpstream = errors.New("upstream dependency failure")

	// ErrUnresolvedTopic means a post references a topic the store does not
	// have. The engine never silently assigns a post to "no topic".
	ErrUnresolvedTopic = errors.New("unresolved topic")
)

// upstreamErr wraps a provider error so callers can match it with
// errors.Is(err, ErrUpstream) while keeping the original chain.
func upstreamErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUpstream, err)
}
