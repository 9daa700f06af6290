package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgSearch answers Candidates straight from Postgres when Meilisearch is
// down, and feeds full reindexes.
type PgSearch struct {
	db *sql.DB
}

func NewPgSearch(db *sql.DB) *PgSearch {
	return &PgSearch{db: db}
}

// Healthy always returns true; without Postgres the API is down anyway.
func (p *PgSearch) Healthy() bool {
	return true
}

// Candidates matches case-insensitive substrings of title or content among
// the user's non-binned notes, newest first.
func (p *PgSearch) Candidates(ctx context.Context, userID, text string, limit int) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{}, nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT n.id
		FROM notes n
		JOIN memberships m ON m.note_id = n.id
		WHERE m.user_id = $1
		  AND m.is_binned = FALSE
		  AND (strpos(lower(n.title), lower($2)) > 0 OR strpos(lower(n.content), lower($2)) > 0)
		ORDER BY n.updated_at DESC, n.id ASC
		LIMIT $3
	`, userID, text, limit)
	if err != nil {
		return nil, fmt.Errorf("search notes: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan note id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate note ids: %w", err)
	}
	return ids, nil
}

func (p *PgSearch) LoadAllRecords(ctx context.Context) ([]NoteRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT n.id, n.title, n.content, COALESCE(string_agg(m.user_id, ',' ORDER BY m.user_id), '')
		FROM notes n
		LEFT JOIN memberships m ON m.note_id = n.id
		GROUP BY n.id, n.title, n.content
	`)
	if err != nil {
		return nil, fmt.Errorf("load notes: %w", err)
	}
	defer rows.Close()

	records := make([]NoteRecord, 0)
	for rows.Next() {
		var r NoteRecord
		var members string
		if err := rows.Scan(&r.ID, &r.Title, &r.Content, &members); err != nil {
			return nil, fmt.Errorf("scan note record: %w", err)
		}
		r.MemberIDs = splitMembers(members)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate note records: %w", err)
	}
	return records, nil
}

func splitMembers(joined string) []string {
	out := []string{}
	for _, id := range strings.Split(joined, ",") {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
