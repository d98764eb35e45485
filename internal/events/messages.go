// Package events carries record mutation notifications between processes
// so every query cache can drop data another process made stale.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType represents the kind of mutation
type EventType string

const (
	// EventCreated is published after a record is created
	EventCreated EventType = "created"
	// EventUpdated is published after a record is updated
	EventUpdated EventType = "updated"
	// EventDeleted is published after a record is deleted
	EventDeleted EventType = "deleted"
)

// DefaultSubjectPrefix is prepended to the resource name to form a subject
const DefaultSubjectPrefix = "pinch.mutations"

// MutationEvent announces a successful write against a resource
type MutationEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Resource  string    `json:"resource"`
	RecordID  string    `json:"record_id,omitempty"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	// Keys lists query-cache keys to invalidate. Empty means everything.
	Keys [][]string `json:"keys,omitempty"`
}

// NewMutationEvent creates an event with a fresh ID and timestamp
func NewMutationEvent(eventType EventType, resource, recordID string) *MutationEvent {
	return &MutationEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Resource:  resource,
		RecordID:  recordID,
		Timestamp: time.Now().UTC(),
	}
}

// WithKeys sets the query keys to invalidate
func (e *MutationEvent) WithKeys(keys ...[]string) *MutationEvent {
	e.Keys = keys
	return e
}

// Marshal serializes the event
func (e *MutationEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalMutationEvent deserializes an event
func UnmarshalMutationEvent(data []byte) (*MutationEvent, error) {
	var e MutationEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
