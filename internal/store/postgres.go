package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"scribe/api/internal/dbx"
	"scribe/api/internal/rbac"
)

type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}
	return nil
}

const noteColumns = `id, title, content, color, labels, created_at, updated_at`

func (s *PostgresStore) InsertNote(ctx context.Context, note Note) error {
	labels, err := encodeLabels(note.Labels)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notes (id, title, content, color, labels, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)
	`, note.ID, note.Title, note.Content, note.Color, labels, note.CreatedAt, note.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetNote(ctx context.Context, noteID string) (Note, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id=$1`, noteID)
	note, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Note{}, ErrNotFound
	}
	if err != nil {
		return Note{}, fmt.Errorf("get note: %w", err)
	}
	return note, nil
}

// GetNotes silently skips ids with no matching row.
func (s *PostgresStore) GetNotes(ctx context.Context, noteIDs []string) ([]Note, error) {
	if len(noteIDs) == 0 {
		return []Note{}, nil
	}
	placeholders, args := inList(noteIDs)
	rows, err := s.db.QueryContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get notes: %w", err)
	}
	defer rows.Close()

	notes := make([]Note, 0, len(noteIDs))
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return notes, nil
}

func (s *PostgresStore) UpdateNote(ctx context.Context, noteID string, patch NotePatch) (Note, error) {
	if patch.Empty() {
		return s.GetNote(ctx, noteID)
	}
	var labels *string
	if patch.Labels != nil {
		encoded, err := encodeLabels(*patch.Labels)
		if err != nil {
			return Note{}, err
		}
		labels = &encoded
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE notes SET
			title = COALESCE($2, title),
			content = COALESCE($3, content),
			color = COALESCE($4, color),
			labels = COALESCE($5::jsonb, labels),
			updated_at = $6
		WHERE id=$1
		RETURNING `+noteColumns,
		noteID, patch.Title, patch.Content, patch.Color, labels, s.now())
	note, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Note{}, ErrNotFound
	}
	if err != nil {
		return Note{}, fmt.Errorf("update note: %w", err)
	}
	return note, nil
}

func (s *PostgresStore) DeleteNote(ctx context.Context, noteID string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM memberships WHERE note_id=$1`, noteID); err != nil {
			return fmt.Errorf("delete memberships: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id=$1`, noteID)
		if err != nil {
			return fmt.Errorf("delete note: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

const membershipColumns = `id, note_id, user_id, role, is_archived, is_favorited, is_binned, created_at, updated_at`

func (s *PostgresStore) InsertMembership(ctx context.Context, m Membership) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memberships (id, note_id, user_id, role, is_archived, is_favorited, is_binned, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, m.ID, m.NoteID, m.UserID, string(m.Role), m.IsArchived, m.IsFavorited, m.IsBinned, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		// the note was deleted concurrently
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMembership(ctx context.Context, noteID, userID string) (Membership, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+membershipColumns+` FROM memberships WHERE note_id=$1 AND user_id=$2`, noteID, userID)
	m, err := scanMembership(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Membership{}, ErrNotFound
	}
	if err != nil {
		return Membership{}, fmt.Errorf("get membership: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) ListMembershipsByUser(ctx context.Context, userID string) ([]Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+membershipColumns+`
		FROM memberships
		WHERE user_id=$1
		ORDER BY created_at ASC, id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list memberships by user: %w", err)
	}
	return collectMemberships(rows)
}

func (s *PostgresStore) ListMembershipsByNote(ctx context.Context, noteID string) ([]Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+membershipColumns+`
		FROM memberships
		WHERE note_id=$1
		ORDER BY (role = 'owner') DESC, created_at ASC, id ASC
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("list memberships by note: %w", err)
	}
	return collectMemberships(rows)
}

func (s *PostgresStore) UpdateMembership(ctx context.Context, noteID, userID string, patch MembershipPatch) (Membership, error) {
	if patch.Empty() {
		return s.GetMembership(ctx, noteID, userID)
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE memberships SET
			is_archived = COALESCE($3, is_archived),
			is_favorited = COALESCE($4, is_favorited),
			is_binned = COALESCE($5, is_binned),
			updated_at = $6
		WHERE note_id=$1 AND user_id=$2
		RETURNING `+membershipColumns,
		noteID, userID, patch.IsArchived, patch.IsFavorited, patch.IsBinned, s.now())
	m, err := scanMembership(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Membership{}, ErrNotFound
	}
	if err != nil {
		return Membership{}, fmt.Errorf("update membership: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) DeleteMembership(ctx context.Context, noteID, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memberships WHERE note_id=$1 AND user_id=$2`, noteID, userID)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MembershipExists(ctx context.Context, noteID, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM memberships WHERE note_id=$1 AND user_id=$2)`, noteID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

const userColumns = `id, name, email, avatar, password_hash, created_at, updated_at`

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, avatar, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.ID, user.Name, user.Email, user.Avatar, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email)=LOWER($1)`, email)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUsersByIDs(ctx context.Context, userIDs []string) ([]User, error) {
	if len(userIDs) == 0 {
		return []User{}, nil
	}
	placeholders, args := inList(userIDs)
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0, len(userIDs))
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (Note, error) {
	var note Note
	var labelsRaw []byte
	if err := row.Scan(&note.ID, &note.Title, &note.Content, &note.Color, &labelsRaw, &note.CreatedAt, &note.UpdatedAt); err != nil {
		return Note{}, err
	}
	note.Labels = []string{}
	if len(labelsRaw) > 0 {
		if err := json.Unmarshal(labelsRaw, &note.Labels); err != nil {
			return Note{}, fmt.Errorf("decode labels: %w", err)
		}
	}
	return note, nil
}

func scanMembership(row rowScanner) (Membership, error) {
	var m Membership
	var role string
	if err := row.Scan(&m.ID, &m.NoteID, &m.UserID, &role, &m.IsArchived, &m.IsFavorited, &m.IsBinned, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return Membership{}, err
	}
	m.Role = rbac.Normalize(role)
	return m, nil
}

func collectMemberships(rows *sql.Rows) ([]Membership, error) {
	defer rows.Close()
	items := make([]Membership, 0)
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memberships: %w", err)
	}
	return items, nil
}

func scanUser(row rowScanner) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.Avatar, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}

func encodeLabels(labels []string) (string, error) {
	if labels == nil {
		labels = []string{}
	}
	encoded, err := json.Marshal(labels)
	if err != nil {
		return "", fmt.Errorf("marshal labels: %w", err)
	}
	return string(encoded), nil
}

func inList(ids []string) (string, []any) {
	parts := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		parts[i] = "$" + strconv.Itoa(i+1)
		args[i] = id
	}
	return strings.Join(parts, ", "), args
}
