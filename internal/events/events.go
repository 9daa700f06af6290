// Package events publishes note activity to an outbound stream.
package events

import (
	"context"
	"time"
)

const NoteActivityTopic = "note.activity"

type Type string

const (
	NoteCreated  Type = "NOTE_CREATED"
	NoteUpdated  Type = "NOTE_UPDATED"
	NoteDeleted  Type = "NOTE_DELETED"
	NoteCopied   Type = "NOTE_COPIED"
	NoteShared   Type = "NOTE_SHARED"
	NoteUnshared Type = "NOTE_UNSHARED"
)

// Event is one activity record. TargetID is the affected user for share
// events and the source note for copies.
type Event struct {
	Type      Type      `json:"eventType"`
	NoteID    string    `json:"noteId"`
	ActorID   string    `json:"actorId"`
	TargetID  string    `json:"targetId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
