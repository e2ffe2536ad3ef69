package models

// Topic is a coarse category (for example "Traffic") owning a set of events.
// An event belongs to exactly one topic; cross-topic similar-event links may
// still exist.
type Topic struct {
	ID     int64    `json:"id"`
	Name   string   `json:"name"`
	Icon   string   `json:"icon,omitempty"`
	Events []*Event `json:"events,omitempty"`
}

// FallbackTopicName is the topic posts land in when no configured topic
// matches the generation provider's answer.
const FallbackTopicName = "Other"
