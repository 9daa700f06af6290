// Package store holds the two note collections (notes and memberships) and
// the user directory, with a PostgreSQL implementation and an in-process one.
package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// NoteStore is the document store: shared note content keyed by note id.
type NoteStore interface {
	InsertNote(ctx context.Context, note Note) error
	GetNote(ctx context.Context, noteID string) (Note, error)
	GetNotes(ctx context.Context, noteIDs []string) ([]Note, error)
	UpdateNote(ctx context.Context, noteID string, patch NotePatch) (Note, error)
	// DeleteNote removes the note and every membership referencing it.
	DeleteNote(ctx context.Context, noteID string) error
}

// MembershipStore keys rows by (note, user) and rejects duplicates with ErrDuplicate.
// Inserting a membership for a missing note fails with ErrNotFound.
type MembershipStore interface {
	InsertMembership(ctx context.Context, m Membership) error
	GetMembership(ctx context.Context, noteID, userID string) (Membership, error)
	ListMembershipsByUser(ctx context.Context, userID string) ([]Membership, error)
	// ListMembershipsByNote orders the owner first, then by creation time.
	ListMembershipsByNote(ctx context.Context, noteID string) ([]Membership, error)
	UpdateMembership(ctx context.Context, noteID, userID string, patch MembershipPatch) (Membership, error)
	DeleteMembership(ctx context.Context, noteID, userID string) error
	MembershipExists(ctx context.Context, noteID, userID string) (bool, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user User) error
	GetUserByID(ctx context.Context, userID string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUsersByIDs(ctx context.Context, userIDs []string) ([]User, error)
}

// Store is everything the API needs from a persistence backend.
type Store interface {
	NoteStore
	MembershipStore
	UserStore
	Ping(ctx context.Context) error
}
