package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"scribe/api/internal/rbac"
)

func newStoreWithMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	s := NewPostgresStore(db)
	s.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s, mock
}

var (
	noteCols       = []string{"id", "title", "content", "color", "labels", "created_at", "updated_at"}
	membershipCols = []string{"id", "note_id", "user_id", "role", "is_archived", "is_favorited", "is_binned", "created_at", "updated_at"}
)

func TestInsertNote_EncodesLabels(t *testing.T) {
	s, mock := newStoreWithMock(t)
	now := time.Now().UTC()
	note := NewNote("n1", now)

	mock.ExpectExec(`INSERT INTO notes`).
		WithArgs("n1", DefaultNoteTitle, "", DefaultNoteColor, "[]", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.InsertNote(context.Background(), note); err != nil {
		t.Fatalf("InsertNote: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetNote_NoRowsMapsToNotFound(t *testing.T) {
	s, mock := newStoreWithMock(t)
	mock.ExpectQuery(`SELECT .* FROM notes WHERE id=\$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetNote(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestGetNote_DecodesLabels(t *testing.T) {
	s, mock := newStoreWithMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .* FROM notes WHERE id=\$1`).
		WithArgs("n1").
		WillReturnRows(sqlmock.NewRows(noteCols).
			AddRow("n1", "Groceries", "milk", "#2F855A", []byte(`["home","todo"]`), now, now))

	note, err := s.GetNote(context.Background(), "n1")
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if note.Title != "Groceries" || len(note.Labels) != 2 || note.Labels[1] != "todo" {
		t.Fatalf("unexpected note: %+v", note)
	}
}

func TestGetNotes_BuildsInList(t *testing.T) {
	s, mock := newStoreWithMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`FROM notes WHERE id IN \(\$1, \$2\)`).
		WithArgs("n1", "n2").
		WillReturnRows(sqlmock.NewRows(noteCols).
			AddRow("n1", "a", "", DefaultNoteColor, []byte(`[]`), now, now))

	notes, err := s.GetNotes(context.Background(), []string{"n1", "n2"})
	if err != nil {
		t.Fatalf("GetNotes: %v", err)
	}
	if len(notes) != 1 || notes[0].ID != "n1" {
		t.Fatalf("expected only the existing note, got %+v", notes)
	}
}

func TestGetNotes_EmptyInputSkipsQuery(t *testing.T) {
	s, mock := newStoreWithMock(t)
	notes, err := s.GetNotes(context.Background(), nil)
	if err != nil || len(notes) != 0 {
		t.Fatalf("GetNotes(nil) = %v, %v", notes, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected query: %v", err)
	}
}

func TestUpdateNote_PatchesOnlyProvidedFields(t *testing.T) {
	s, mock := newStoreWithMock(t)
	now := time.Now().UTC()
	title := "Renamed"

	mock.ExpectQuery(`UPDATE notes SET .* RETURNING`).
		WithArgs("n1", "Renamed", nil, nil, nil, s.now()).
		WillReturnRows(sqlmock.NewRows(noteCols).
			AddRow("n1", "Renamed", "body", DefaultNoteColor, []byte(`[]`), now, s.now()))

	note, err := s.UpdateNote(context.Background(), "n1", NotePatch{Title: &title})
	if err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}
	if note.Title != "Renamed" || note.Content != "body" {
		t.Fatalf("unexpected note: %+v", note)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteNote_RemovesMembershipsInTransaction(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM memberships WHERE note_id=\$1`).WithArgs("n1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM notes WHERE id=\$1`).WithArgs("n1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.DeleteNote(context.Background(), "n1"); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteNote_MissingNoteRollsBack(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM memberships WHERE note_id=\$1`).WithArgs("n1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM notes WHERE id=\$1`).WithArgs("n1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	if err := s.DeleteNote(context.Background(), "n1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertMembership_UniqueViolationMapsToDuplicate(t *testing.T) {
	s, mock := newStoreWithMock(t)
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO memberships`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	err := s.InsertMembership(context.Background(), Membership{
		ID: "m1", NoteID: "n1", UserID: "u2", Role: rbac.RoleCollaborator, CreatedAt: now, UpdatedAt: now,
	})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("want ErrDuplicate, got %v", err)
	}
}

func TestInsertMembership_MissingNoteMapsToNotFound(t *testing.T) {
	s, mock := newStoreWithMock(t)
	mock.ExpectExec(`INSERT INTO memberships`).
		WillReturnError(&pgconn.PgError{Code: "23503", Message: "violates foreign key constraint"})

	err := s.InsertMembership(context.Background(), Membership{ID: "m1", NoteID: "gone", UserID: "u2", Role: rbac.RoleCollaborator})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestInsertMembership_OtherErrorsAreWrapped(t *testing.T) {
	s, mock := newStoreWithMock(t)
	boom := errors.New("connection reset")
	mock.ExpectExec(`INSERT INTO memberships`).WillReturnError(boom)

	err := s.InsertMembership(context.Background(), Membership{ID: "m1", NoteID: "n1", UserID: "u1", Role: rbac.RoleOwner})
	if !errors.Is(err, boom) || errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected wrapped driver error, got %v", err)
	}
}

func TestListMembershipsByNote_OwnerFirstAndRoleNormalized(t *testing.T) {
	s, mock := newStoreWithMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM memberships\s+WHERE note_id=\$1\s+ORDER BY \(role = 'owner'\) DESC`).
		WithArgs("n1").
		WillReturnRows(sqlmock.NewRows(membershipCols).
			AddRow("m1", "n1", "u1", "owner", false, false, false, now, now).
			AddRow("m2", "n1", "u2", "legacy", false, true, false, now, now))

	items, err := s.ListMembershipsByNote(context.Background(), "n1")
	if err != nil {
		t.Fatalf("ListMembershipsByNote: %v", err)
	}
	if len(items) != 2 || items[0].Role != rbac.RoleOwner || items[1].Role != rbac.RoleCollaborator {
		t.Fatalf("unexpected memberships: %+v", items)
	}
	if !items[1].IsFavorited {
		t.Fatal("expected favorite flag to be scanned")
	}
}

func TestUpdateMembership_MissingRow(t *testing.T) {
	s, mock := newStoreWithMock(t)
	archived := true
	mock.ExpectQuery(`UPDATE memberships SET`).
		WithArgs("n1", "u1", true, nil, nil, s.now()).
		WillReturnError(sql.ErrNoRows)

	_, err := s.UpdateMembership(context.Background(), "n1", "u1", MembershipPatch{IsArchived: &archived})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestDeleteMembership_ZeroRowsIsNotFound(t *testing.T) {
	s, mock := newStoreWithMock(t)
	mock.ExpectExec(`DELETE FROM memberships WHERE note_id=\$1 AND user_id=\$2`).
		WithArgs("n1", "u2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.DeleteMembership(context.Background(), "n1", "u2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMembershipExists(t *testing.T) {
	s, mock := newStoreWithMock(t)
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("n1", "u2").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := s.MembershipExists(context.Background(), "n1", "u2")
	if err != nil || !ok {
		t.Fatalf("MembershipExists = %v, %v", ok, err)
	}
}

func TestGetUserByEmail_CaseInsensitive(t *testing.T) {
	s, mock := newStoreWithMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`FROM users WHERE LOWER\(email\)=LOWER\(\$1\)`).
		WithArgs("Ada@Example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "avatar", "password_hash", "created_at", "updated_at"}).
			AddRow("u1", "Ada", "ada@example.com", "", "hash", now, now))

	user, err := s.GetUserByEmail(context.Background(), "Ada@Example.com")
	if err != nil || user.ID != "u1" {
		t.Fatalf("GetUserByEmail = %+v, %v", user, err)
	}
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	s, mock := newStoreWithMock(t)
	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := s.CreateUser(context.Background(), User{ID: "u1", Name: "Ada", Email: "ada@example.com"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("want ErrDuplicate, got %v", err)
	}
}

func TestPostgresStore_DBExposesHandleForSearch(t *testing.T) {
	s, _ := newStoreWithMock(t)

	if err := s.DB().PingContext(context.Background()); err != nil {
		t.Fatalf("ping through DB(): %v", err)
	}
}
