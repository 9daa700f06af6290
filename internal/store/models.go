package store

import (
	"time"

	"scribe/api/internal/rbac"
)

const (
	DefaultNoteTitle = "Untitled Note"
	DefaultNoteColor = "#2d3748"
)

// Note is the shared, content-bearing half of a note. It carries no
// per-user state; ownership lives on Membership.
type Note struct {
	ID        string
	Title     string
	Content   string
	Color     string
	Labels    []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewNote returns a note with the default title, color and an empty label set.
func NewNote(id string, now time.Time) Note {
	return Note{
		ID:        id,
		Title:     DefaultNoteTitle,
		Content:   "",
		Color:     DefaultNoteColor,
		Labels:    []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Membership is one (note, user) access row with that user's view flags.
type Membership struct {
	ID          string
	NoteID      string
	UserID      string
	Role        rbac.Role
	IsArchived  bool
	IsFavorited bool
	IsBinned    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type User struct {
	ID           string
	Name         string
	Email        string
	Avatar       string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NotePatch sets content-layer fields. Nil fields are left untouched.
type NotePatch struct {
	Title   *string
	Content *string
	Color   *string
	Labels  *[]string
}

func (p NotePatch) Empty() bool {
	return p.Title == nil && p.Content == nil && p.Color == nil && p.Labels == nil
}

func (p NotePatch) apply(note *Note) {
	if p.Title != nil {
		note.Title = *p.Title
	}
	if p.Content != nil {
		note.Content = *p.Content
	}
	if p.Color != nil {
		note.Color = *p.Color
	}
	if p.Labels != nil {
		note.Labels = cloneLabels(*p.Labels)
	}
}

// MembershipPatch sets per-user view flags. Nil fields are left untouched.
type MembershipPatch struct {
	IsArchived  *bool
	IsFavorited *bool
	IsBinned    *bool
}

func (p MembershipPatch) Empty() bool {
	return p.IsArchived == nil && p.IsFavorited == nil && p.IsBinned == nil
}

func (p MembershipPatch) apply(m *Membership) {
	if p.IsArchived != nil {
		m.IsArchived = *p.IsArchived
	}
	if p.IsFavorited != nil {
		m.IsFavorited = *p.IsFavorited
	}
	if p.IsBinned != nil {
		m.IsBinned = *p.IsBinned
	}
}

func cloneLabels(labels []string) []string {
	out := make([]string, len(labels))
	copy(out, labels)
	return out
}
