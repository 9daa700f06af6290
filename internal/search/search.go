package search

import "context"

// NoteRecord is what gets indexed for a note. MemberIDs lists every user
// holding a membership so queries can be scoped per user.
type NoteRecord struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	MemberIDs []string `json:"memberIds"`
}

// Searcher returns note ids visible to userID that match text, best first.
type Searcher interface {
	Candidates(ctx context.Context, userID, text string, limit int) ([]string, error)
	Healthy() bool
}

// Indexer pushes notes into a search index.
type Indexer interface {
	IndexNotes(records []NoteRecord) error
	DeleteNote(id string) error
}

// RecordSource loads every note with its members for a full reindex.
type RecordSource interface {
	LoadAllRecords(ctx context.Context) ([]NoteRecord, error)
}

const defaultLimit = 50
