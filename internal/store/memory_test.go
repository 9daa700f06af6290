package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribe/api/internal/rbac"
)

func seedNote(t *testing.T, s *MemoryStore, noteID, ownerID string, at time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.InsertNote(ctx, NewNote(noteID, at)))
	require.NoError(t, s.InsertMembership(ctx, Membership{
		ID: "m-" + noteID + "-" + ownerID, NoteID: noteID, UserID: ownerID,
		Role: rbac.RoleOwner, CreatedAt: at, UpdatedAt: at,
	}))
}

func TestMemoryStore_InsertMembershipRejectsDuplicatePair(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now().UTC()
	seedNote(t, s, "n1", "u1", now)

	err := s.InsertMembership(context.Background(), Membership{ID: "other", NoteID: "n1", UserID: "u1", Role: rbac.RoleCollaborator})
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestMemoryStore_InsertMembershipRequiresNote(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.InsertMembership(ctx, Membership{ID: "m1", NoteID: "gone", UserID: "u2", Role: rbac.RoleCollaborator})
	require.ErrorIs(t, err, ErrNotFound)

	rows, err := s.ListMembershipsByUser(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMemoryStore_ConcurrentShareKeepsOneRow(t *testing.T) {
	s := NewMemoryStore()
	seedNote(t, s, "n1", "u1", time.Now().UTC())

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.InsertMembership(context.Background(), Membership{NoteID: "n1", UserID: "u2", Role: rbac.RoleCollaborator})
		}()
	}
	wg.Wait()
	close(results)

	ok := 0
	for err := range results {
		if err == nil {
			ok++
		} else {
			require.ErrorIs(t, err, ErrDuplicate)
		}
	}
	assert.Equal(t, 1, ok)
}

func TestMemoryStore_DeleteNoteCascadesMemberships(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()
	seedNote(t, s, "n1", "u1", now)
	seedNote(t, s, "n2", "u1", now)
	require.NoError(t, s.InsertMembership(ctx, Membership{ID: "m2", NoteID: "n1", UserID: "u2", Role: rbac.RoleCollaborator}))

	require.NoError(t, s.DeleteNote(ctx, "n1"))

	_, err := s.GetNote(ctx, "n1")
	require.ErrorIs(t, err, ErrNotFound)
	rows, err := s.ListMembershipsByNote(ctx, "n1")
	require.NoError(t, err)
	assert.Empty(t, rows)

	left, err := s.ListMembershipsByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "n2", left[0].NoteID)

	require.ErrorIs(t, s.DeleteNote(ctx, "n1"), ErrNotFound)
}

func TestMemoryStore_UpdateNoteStampsUpdatedAt(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	later := created.Add(time.Hour)
	s := NewMemoryStore().WithClock(func() time.Time { return later })
	seedNote(t, s, "n1", "u1", created)

	labels := []string{"a"}
	note, err := s.UpdateNote(context.Background(), "n1", NotePatch{Labels: &labels})
	require.NoError(t, err)
	assert.Equal(t, later, note.UpdatedAt)
	assert.Equal(t, []string{"a"}, note.Labels)
	assert.Equal(t, DefaultNoteTitle, note.Title)

	labels[0] = "mutated"
	stored, err := s.GetNote(context.Background(), "n1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, stored.Labels, "store must not alias caller slices")
}

func TestMemoryStore_EmptyPatchesAreNoops(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore().WithClock(func() time.Time { return created.Add(time.Hour) })
	seedNote(t, s, "n1", "u1", created)

	note, err := s.UpdateNote(context.Background(), "n1", NotePatch{})
	require.NoError(t, err)
	assert.Equal(t, created, note.UpdatedAt)

	m, err := s.UpdateMembership(context.Background(), "n1", "u1", MembershipPatch{})
	require.NoError(t, err)
	assert.Equal(t, created, m.UpdatedAt)
}

func TestMemoryStore_UpdateMembershipFlags(t *testing.T) {
	s := NewMemoryStore()
	seedNote(t, s, "n1", "u1", time.Now().UTC())
	yes := true

	m, err := s.UpdateMembership(context.Background(), "n1", "u1", MembershipPatch{IsFavorited: &yes})
	require.NoError(t, err)
	assert.True(t, m.IsFavorited)
	assert.False(t, m.IsArchived)

	_, err = s.UpdateMembership(context.Background(), "n1", "ghost", MembershipPatch{IsFavorited: &yes})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ListMembershipsByNoteOwnerFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.InsertNote(ctx, NewNote("n1", base)))
	require.NoError(t, s.InsertMembership(ctx, Membership{ID: "a", NoteID: "n1", UserID: "u2", Role: rbac.RoleCollaborator, CreatedAt: base}))
	require.NoError(t, s.InsertMembership(ctx, Membership{ID: "b", NoteID: "n1", UserID: "u1", Role: rbac.RoleOwner, CreatedAt: base.Add(time.Minute)}))

	rows, err := s.ListMembershipsByNote(ctx, "n1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "u1", rows[0].UserID)
	assert.Equal(t, "u2", rows[1].UserID)
}

func TestMemoryStore_GetNotesSkipsMissing(t *testing.T) {
	s := NewMemoryStore()
	seedNote(t, s, "n1", "u1", time.Now().UTC())

	notes, err := s.GetNotes(context.Background(), []string{"ghost", "n1"})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "n1", notes[0].ID)
}

func TestMemoryStore_UsersByEmailIgnoreCase(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, User{ID: "u1", Name: "Ada", Email: "Ada@Example.com"}))
	require.ErrorIs(t, s.CreateUser(ctx, User{ID: "u2", Email: "ada@example.com"}), ErrDuplicate)

	user, err := s.GetUserByEmail(ctx, "ADA@example.COM")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)

	users, err := s.GetUsersByIDs(ctx, []string{"u1", "nope"})
	require.NoError(t, err)
	assert.Len(t, users, 1)

	_, err = s.GetUserByID(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)
}
