package app

import (
	"context"
	"sort"
	"strings"
	"time"

	"scribe/api/internal/rbac"
	"scribe/api/internal/store"
)

// ProjectedNote is a note as one member sees it: shared content plus that
// member's flags and role.
type ProjectedNote struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Color       string    `json:"color"`
	Labels      []string  `json:"labels"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	IsArchived  bool      `json:"isArchived"`
	IsFavorited bool      `json:"isFavorited"`
	IsBinned    bool      `json:"isBinned"`
	Role        rbac.Role `json:"role"`
}

func Project(note store.Note, membership store.Membership) ProjectedNote {
	labels := make([]string, len(note.Labels))
	copy(labels, note.Labels)
	return ProjectedNote{
		ID:          note.ID,
		Title:       note.Title,
		Content:     note.Content,
		Color:       note.Color,
		Labels:      labels,
		CreatedAt:   note.CreatedAt,
		UpdatedAt:   note.UpdatedAt,
		IsArchived:  membership.IsArchived,
		IsFavorited: membership.IsFavorited,
		IsBinned:    membership.IsBinned,
		Role:        membership.Role,
	}
}

type ListFilter struct {
	Bin       bool
	Archived  *bool
	Favorited *bool
	Search    string
}

// keep reports whether a membership belongs in the listing.
func (f ListFilter) keep(m store.Membership) bool {
	if f.Bin {
		return m.IsBinned
	}
	if m.IsBinned {
		return false
	}
	switch {
	case f.Archived != nil:
		return m.IsArchived == *f.Archived
	case f.Favorited != nil:
		return m.IsFavorited == *f.Favorited
	default:
		return !m.IsArchived
	}
}

func (s *Service) ListNotes(ctx context.Context, uid string, filter ListFilter) ([]ProjectedNote, error) {
	if uid == "" {
		return nil, unauthenticated()
	}
	memberships, err := s.memberships.ListMembershipsByUser(ctx, uid)
	if err != nil {
		return nil, persistence("list memberships", err)
	}

	kept := memberships[:0:0]
	for _, m := range memberships {
		if filter.keep(m) {
			kept = append(kept, m)
		}
	}

	projected, err := s.projectAll(ctx, kept)
	if err != nil {
		return nil, err
	}
	if filter.Search != "" {
		projected = matchText(projected, filter.Search)
	}
	sortByRecency(projected)
	return projected, nil
}

// SearchNotes ranks the caller's non-binned notes by the search index when
// one answers, and falls back to a substring match otherwise. Membership is
// always taken from the store.
func (s *Service) SearchNotes(ctx context.Context, uid, query string) ([]ProjectedNote, error) {
	if uid == "" {
		return nil, unauthenticated()
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []ProjectedNote{}, nil
	}

	memberships, err := s.memberships.ListMembershipsByUser(ctx, uid)
	if err != nil {
		return nil, persistence("list memberships", err)
	}
	live := memberships[:0:0]
	for _, m := range memberships {
		if !m.IsBinned {
			live = append(live, m)
		}
	}

	var (
		candidates []string
		ok         bool
	)
	if s.indexer != nil {
		candidates, ok = s.indexer.Candidates(ctx, uid, query)
	}
	if !ok {
		projected, err := s.projectAll(ctx, live)
		if err != nil {
			return nil, err
		}
		projected = matchText(projected, query)
		sortByRecency(projected)
		return projected, nil
	}

	byNote := make(map[string]store.Membership, len(live))
	for _, m := range live {
		byNote[m.NoteID] = m
	}
	ranked := make([]store.Membership, 0, len(candidates))
	for _, id := range candidates {
		if m, member := byNote[id]; member {
			ranked = append(ranked, m)
			delete(byNote, id)
		}
	}
	return s.projectAll(ctx, ranked)
}

// projectAll loads the notes behind memberships, preserving their order.
// Memberships whose note is gone are skipped.
func (s *Service) projectAll(ctx context.Context, memberships []store.Membership) ([]ProjectedNote, error) {
	out := make([]ProjectedNote, 0, len(memberships))
	if len(memberships) == 0 {
		return out, nil
	}
	ids := make([]string, 0, len(memberships))
	for _, m := range memberships {
		ids = append(ids, m.NoteID)
	}
	notes, err := s.notes.GetNotes(ctx, ids)
	if err != nil {
		return nil, persistence("get notes", err)
	}
	byID := make(map[string]store.Note, len(notes))
	for _, n := range notes {
		byID[n.ID] = n
	}
	for _, m := range memberships {
		note, ok := byID[m.NoteID]
		if !ok {
			continue
		}
		out = append(out, Project(note, m))
	}
	return out, nil
}

func matchText(notes []ProjectedNote, query string) []ProjectedNote {
	q := strings.ToLower(query)
	out := notes[:0]
	for _, n := range notes {
		if strings.Contains(strings.ToLower(n.Title), q) || strings.Contains(strings.ToLower(n.Content), q) {
			out = append(out, n)
		}
	}
	return out
}

func sortByRecency(notes []ProjectedNote) {
	sort.SliceStable(notes, func(i, j int) bool {
		if !notes[i].UpdatedAt.Equal(notes[j].UpdatedAt) {
			return notes[i].UpdatedAt.After(notes[j].UpdatedAt)
		}
		return notes[i].ID < notes[j].ID
	})
}
