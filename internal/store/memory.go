package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"scribe/api/internal/rbac"
)

type membershipKey struct {
	noteID string
	userID string
}

// MemoryStore keeps everything in process. A single lock guards all three
// collections so DeleteNote removes a note and its memberships atomically.
type MemoryStore struct {
	mu          sync.RWMutex
	notes       map[string]Note
	memberships map[membershipKey]Membership
	users       map[string]User
	emails      map[string]string
	now         func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		notes:       map[string]Note{},
		memberships: map[membershipKey]Membership{},
		users:       map[string]User{},
		emails:      map[string]string{},
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the timestamp source used for UpdatedAt on patches.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) InsertNote(_ context.Context, note Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notes[note.ID]; ok {
		return ErrDuplicate
	}
	note.Labels = cloneLabels(note.Labels)
	s.notes[note.ID] = note
	return nil
}

func (s *MemoryStore) GetNote(_ context.Context, noteID string) (Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	note, ok := s.notes[noteID]
	if !ok {
		return Note{}, ErrNotFound
	}
	note.Labels = cloneLabels(note.Labels)
	return note, nil
}

func (s *MemoryStore) GetNotes(_ context.Context, noteIDs []string) ([]Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Note, 0, len(noteIDs))
	for _, id := range noteIDs {
		note, ok := s.notes[id]
		if !ok {
			continue
		}
		note.Labels = cloneLabels(note.Labels)
		out = append(out, note)
	}
	return out, nil
}

func (s *MemoryStore) UpdateNote(_ context.Context, noteID string, patch NotePatch) (Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	note, ok := s.notes[noteID]
	if !ok {
		return Note{}, ErrNotFound
	}
	if !patch.Empty() {
		patch.apply(&note)
		note.UpdatedAt = s.now()
		s.notes[noteID] = note
	}
	note.Labels = cloneLabels(note.Labels)
	return note, nil
}

func (s *MemoryStore) DeleteNote(_ context.Context, noteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notes[noteID]; !ok {
		return ErrNotFound
	}
	for key := range s.memberships {
		if key.noteID == noteID {
			delete(s.memberships, key)
		}
	}
	delete(s.notes, noteID)
	return nil
}

func (s *MemoryStore) InsertMembership(_ context.Context, m Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notes[m.NoteID]; !ok {
		return ErrNotFound
	}
	key := membershipKey{noteID: m.NoteID, userID: m.UserID}
	if _, ok := s.memberships[key]; ok {
		return ErrDuplicate
	}
	s.memberships[key] = m
	return nil
}

func (s *MemoryStore) GetMembership(_ context.Context, noteID, userID string) (Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memberships[membershipKey{noteID: noteID, userID: userID}]
	if !ok {
		return Membership{}, ErrNotFound
	}
	return m, nil
}

func (s *MemoryStore) ListMembershipsByUser(_ context.Context, userID string) ([]Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Membership, 0)
	for key, m := range s.memberships {
		if key.userID == userID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) ListMembershipsByNote(_ context.Context, noteID string) ([]Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Membership, 0)
	for key, m := range s.memberships {
		if key.noteID == noteID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		oi, oj := out[i].Role == rbac.RoleOwner, out[j].Role == rbac.RoleOwner
		if oi != oj {
			return oi
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) UpdateMembership(_ context.Context, noteID, userID string, patch MembershipPatch) (Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := membershipKey{noteID: noteID, userID: userID}
	m, ok := s.memberships[key]
	if !ok {
		return Membership{}, ErrNotFound
	}
	if !patch.Empty() {
		patch.apply(&m)
		m.UpdatedAt = s.now()
		s.memberships[key] = m
	}
	return m, nil
}

func (s *MemoryStore) DeleteMembership(_ context.Context, noteID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := membershipKey{noteID: noteID, userID: userID}
	if _, ok := s.memberships[key]; !ok {
		return ErrNotFound
	}
	delete(s.memberships, key)
	return nil
}

func (s *MemoryStore) MembershipExists(_ context.Context, noteID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.memberships[membershipKey{noteID: noteID, userID: userID}]
	return ok, nil
}

func (s *MemoryStore) CreateUser(_ context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(user.Email)
	if _, ok := s.emails[email]; ok {
		return ErrDuplicate
	}
	if _, ok := s.users[user.ID]; ok {
		return ErrDuplicate
	}
	s.users[user.ID] = user
	s.emails[email] = user.ID
	return nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, userID string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return User{}, ErrNotFound
	}
	return s.users[id], nil
}

func (s *MemoryStore) GetUsersByIDs(_ context.Context, userIDs []string) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(userIDs))
	for _, id := range userIDs {
		if user, ok := s.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
