package app

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"scribe/api/internal/authpw"
	"scribe/api/internal/blob"
	"scribe/api/internal/events"
	"scribe/api/internal/search"
	"scribe/api/internal/store"
)

const (
	alice = "u-alice"
	bob   = "u-bob"
	carol = "u-carol"
)

// stepClock advances one second per reading so every write gets a distinct
// timestamp.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeIndex struct {
	mu         sync.Mutex
	candidates []string
	ok         bool
	indexed    map[string]search.NoteRecord
	deleted    []string
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{indexed: map[string]search.NoteRecord{}}
}

func (f *fakeIndex) Candidates(context.Context, string, string) ([]string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.candidates...), f.ok
}

func (f *fakeIndex) IndexNote(record search.NoteRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed[record.ID] = record
}

func (f *fakeIndex) DeleteNote(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	delete(f.indexed, id)
}

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeBlobs) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	f.types[key] = contentType
	return nil
}

func (f *fakeBlobs) List(_ context.Context, prefix string) ([]blob.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []blob.Object
	for key, data := range f.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, blob.Object{Key: key, Size: int64(len(data)), ContentType: f.types[key]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (f *fakeBlobs) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://blobs.test/" + key + "?sig=1", nil
}

func (f *fakeBlobs) RemovePrefix(_ context.Context, prefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			delete(f.objects, key)
		}
	}
	return nil
}

// failingMemberships fails membership inserts when insertErr is set.
type failingMemberships struct {
	*store.MemoryStore
	insertErr error
}

func (f *failingMemberships) InsertMembership(ctx context.Context, m store.Membership) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	return f.MemoryStore.InsertMembership(ctx, m)
}

// deletingMemberships deletes the note right before a membership insert
// reaches the store, as a concurrent DeleteNote would.
type deletingMemberships struct {
	*store.MemoryStore
}

func (d *deletingMemberships) InsertMembership(ctx context.Context, m store.Membership) error {
	_ = d.MemoryStore.DeleteNote(ctx, m.NoteID)
	return d.MemoryStore.InsertMembership(ctx, m)
}

// hiddenNotes reports one note id as absent while its memberships remain.
type hiddenNotes struct {
	*store.MemoryStore
	hidden string
}

func (h *hiddenNotes) GetNote(ctx context.Context, noteID string) (store.Note, error) {
	if noteID == h.hidden {
		return store.Note{}, store.ErrNotFound
	}
	return h.MemoryStore.GetNote(ctx, noteID)
}

func (h *hiddenNotes) GetNotes(ctx context.Context, noteIDs []string) ([]store.Note, error) {
	notes, err := h.MemoryStore.GetNotes(ctx, noteIDs)
	if err != nil {
		return nil, err
	}
	out := notes[:0]
	for _, n := range notes {
		if n.ID != h.hidden {
			out = append(out, n)
		}
	}
	return out, nil
}

type testEnv struct {
	svc       *Service
	mem       *store.MemoryStore
	index     *fakeIndex
	blobs     *fakeBlobs
	published *recordingPublisher
	logs      *bytes.Buffer
}

type envOption func(*Deps)

func withoutIndex() envOption {
	return func(d *Deps) { d.Indexer = nil }
}

func withoutAttachments() envOption {
	return func(d *Deps) { d.Attachments = nil }
}

func newTestEnv(t testing.TB, opts ...envOption) *testEnv {
	t.Helper()
	clock := newStepClock()
	mem := store.NewMemoryStore().WithClock(clock.Now)
	env := &testEnv{
		mem:       mem,
		index:     newFakeIndex(),
		blobs:     newFakeBlobs(),
		published: &recordingPublisher{},
		logs:      &bytes.Buffer{},
	}
	deps := Deps{
		Notes:       mem,
		Memberships: mem,
		Users:       mem,
		Indexer:     env.index,
		Events:      env.published,
		Attachments: env.blobs,
		Health:      mem,
		Logger:      zerolog.New(env.logs),
		JWTSecret:   "test-secret",
		Now:         clock.Now,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	env.svc = New(deps).WithPasswordService(authpw.NewService(mem).WithCost(bcrypt.MinCost))

	for _, u := range []store.User{
		{ID: alice, Name: "Alice", Email: "alice@example.com"},
		{ID: bob, Name: "Bob", Email: "bob@example.com"},
		{ID: carol, Name: "Carol", Email: "carol@example.com"},
	} {
		require.NoError(t, mem.CreateUser(context.Background(), u))
	}
	return env
}

func (e *testEnv) createTitled(t testing.TB, uid, title string) ProjectedNote {
	t.Helper()
	ctx := context.Background()
	note, err := e.svc.CreateNote(ctx, uid)
	require.NoError(t, err)
	note, err = e.svc.UpdateNote(ctx, uid, note.ID, NoteUpdate{Title: &title})
	require.NoError(t, err)
	return note
}

func ptr[T any](v T) *T {
	return &v
}

func noteIDs(notes []ProjectedNote) []string {
	out := make([]string, 0, len(notes))
	for _, n := range notes {
		out = append(out, n.ID)
	}
	return out
}
