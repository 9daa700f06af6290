package app

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"scribe/api/internal/blob"
	"scribe/api/internal/events"
	"scribe/api/internal/rbac"
	"scribe/api/internal/store"
)

const copyTitlePrefix = "[Copy of] "

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// NoteUpdate is a partial update. Content fields go to the shared note,
// flag fields to the caller's membership. Nil means untouched.
type NoteUpdate struct {
	Title       *string   `json:"title"`
	Content     *string   `json:"content"`
	Color       *string   `json:"color"`
	Labels      *[]string `json:"labels"`
	IsArchived  *bool     `json:"isArchived"`
	IsFavorited *bool     `json:"isFavorited"`
	IsBinned    *bool     `json:"isBinned"`
}

func (u NoteUpdate) notePatch() store.NotePatch {
	color := u.Color
	if color != nil && *color == "" {
		color = nil
	}
	return store.NotePatch{Title: u.Title, Content: u.Content, Color: color, Labels: u.Labels}
}

func (u NoteUpdate) membershipPatch() store.MembershipPatch {
	return store.MembershipPatch{IsArchived: u.IsArchived, IsFavorited: u.IsFavorited, IsBinned: u.IsBinned}
}

// authorize is the single access check: note first (NotFound), then the
// caller's membership (Unauthorized), then the role table (Unauthorized).
func (s *Service) authorize(ctx context.Context, uid, noteID string, action rbac.Action) (store.Note, store.Membership, error) {
	if uid == "" {
		return store.Note{}, store.Membership{}, unauthenticated()
	}
	note, err := s.notes.GetNote(ctx, noteID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Note{}, store.Membership{}, notFound("Note not found")
	}
	if err != nil {
		return store.Note{}, store.Membership{}, persistence("get note", err)
	}

	membership, err := s.memberships.GetMembership(ctx, noteID, uid)
	if errors.Is(err, store.ErrNotFound) {
		return store.Note{}, store.Membership{}, unauthorized("Not authorized")
	}
	if err != nil {
		return store.Note{}, store.Membership{}, persistence("get membership", err)
	}
	if !rbac.Can(membership.Role, action) {
		return store.Note{}, store.Membership{}, unauthorized(deniedMessage(action))
	}
	return note, membership, nil
}

func deniedMessage(action rbac.Action) string {
	switch action {
	case rbac.ActionDelete:
		return "Only the owner can delete this note"
	case rbac.ActionShare:
		return "Only the owner can share this note"
	case rbac.ActionUnshare:
		return "Only the owner can remove collaborators"
	case rbac.ActionBin:
		return "Only the owner can move this note to the bin"
	default:
		return "Not authorized"
	}
}

func (s *Service) CreateNote(ctx context.Context, uid string) (ProjectedNote, error) {
	if uid == "" {
		return ProjectedNote{}, unauthenticated()
	}
	note := store.NewNote(newID(), s.now())
	membership, err := s.insertOwnedNote(ctx, uid, note)
	if err != nil {
		return ProjectedNote{}, err
	}

	s.log.Info().Str("note_id", note.ID).Str("user_id", uid).Msg("note created")
	s.reindex(ctx, note)
	s.publish(ctx, events.NoteCreated, note.ID, uid, "")
	return Project(note, membership), nil
}

// insertOwnedNote writes the note, then the owner membership. If the second
// write fails the note is deleted again; an orphan left behind by a failed
// compensation has no membership and so is unreachable.
func (s *Service) insertOwnedNote(ctx context.Context, uid string, note store.Note) (store.Membership, error) {
	if err := s.notes.InsertNote(ctx, note); err != nil {
		return store.Membership{}, persistence("insert note", err)
	}

	membership := store.Membership{
		ID:        newID(),
		NoteID:    note.ID,
		UserID:    uid,
		Role:      rbac.RoleOwner,
		CreatedAt: note.CreatedAt,
		UpdatedAt: note.CreatedAt,
	}
	if err := s.memberships.InsertMembership(ctx, membership); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Membership{}, notFound("Note not found")
		}
		if delErr := s.notes.DeleteNote(context.WithoutCancel(ctx), note.ID); delErr != nil {
			s.log.Error().Err(delErr).Str("note_id", note.ID).Msg("compensating delete failed, orphan note left behind")
		}
		return store.Membership{}, persistence("insert owner membership", err)
	}
	return membership, nil
}

func (s *Service) GetNote(ctx context.Context, uid, noteID string) (ProjectedNote, error) {
	note, membership, err := s.authorize(ctx, uid, noteID, rbac.ActionRead)
	if err != nil {
		return ProjectedNote{}, err
	}
	return Project(note, membership), nil
}

func (s *Service) UpdateNote(ctx context.Context, uid, noteID string, update NoteUpdate) (ProjectedNote, error) {
	notePatch := update.notePatch()
	membershipPatch := update.membershipPatch()
	if err := validateNotePatch(notePatch); err != nil {
		return ProjectedNote{}, err
	}

	note, membership, err := s.authorize(ctx, uid, noteID, rbac.ActionRead)
	if err != nil {
		return ProjectedNote{}, err
	}
	if !notePatch.Empty() && !rbac.Can(membership.Role, rbac.ActionEdit) {
		return ProjectedNote{}, unauthorized(deniedMessage(rbac.ActionEdit))
	}
	if !membershipPatch.Empty() && !rbac.Can(membership.Role, rbac.ActionOrganize) {
		return ProjectedNote{}, unauthorized(deniedMessage(rbac.ActionOrganize))
	}
	if update.IsBinned != nil && *update.IsBinned && !rbac.Can(membership.Role, rbac.ActionBin) {
		return ProjectedNote{}, unauthorized(deniedMessage(rbac.ActionBin))
	}

	if !notePatch.Empty() {
		note, err = s.notes.UpdateNote(ctx, noteID, notePatch)
		if errors.Is(err, store.ErrNotFound) {
			return ProjectedNote{}, notFound("Note not found")
		}
		if err != nil {
			return ProjectedNote{}, persistence("update note", err)
		}
		s.reindex(ctx, note)
	}
	if !membershipPatch.Empty() {
		membership, err = s.memberships.UpdateMembership(ctx, noteID, uid, membershipPatch)
		if errors.Is(err, store.ErrNotFound) {
			return ProjectedNote{}, unauthorized("Not authorized")
		}
		if err != nil {
			return ProjectedNote{}, persistence("update membership", err)
		}
	}

	if !notePatch.Empty() || !membershipPatch.Empty() {
		s.publish(ctx, events.NoteUpdated, noteID, uid, "")
	}
	return Project(note, membership), nil
}

func validateNotePatch(patch store.NotePatch) error {
	if patch.Color != nil && !colorPattern.MatchString(*patch.Color) {
		return validation("color must be a #RRGGBB hex value", map[string]any{"field": "color"})
	}
	if patch.Labels != nil {
		for _, label := range *patch.Labels {
			if strings.TrimSpace(label) == "" {
				return validation("labels must not be blank", map[string]any{"field": "labels"})
			}
		}
	}
	return nil
}

// DeleteNote removes the note for everyone. Index and attachment cleanup
// run after the store delete and never fail the call.
func (s *Service) DeleteNote(ctx context.Context, uid, noteID string) error {
	if _, _, err := s.authorize(ctx, uid, noteID, rbac.ActionDelete); err != nil {
		return err
	}
	if err := s.notes.DeleteNote(ctx, noteID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("Note not found")
		}
		return persistence("delete note", err)
	}

	s.log.Info().Str("note_id", noteID).Str("user_id", uid).Msg("note deleted")
	if s.indexer != nil {
		s.indexer.DeleteNote(noteID)
	}
	if s.attachments != nil {
		if err := s.attachments.RemovePrefix(context.WithoutCancel(ctx), blob.NotePrefix(noteID)); err != nil {
			s.log.Warn().Err(err).Str("note_id", noteID).Msg("remove attachments")
		}
	}
	s.publish(ctx, events.NoteDeleted, noteID, uid, "")
	return nil
}

func (s *Service) CopyNote(ctx context.Context, uid, noteID string) (ProjectedNote, error) {
	source, _, err := s.authorize(ctx, uid, noteID, rbac.ActionCopy)
	if err != nil {
		return ProjectedNote{}, err
	}

	note := store.NewNote(newID(), s.now())
	note.Title = copyTitlePrefix + source.Title
	note.Content = source.Content
	note.Color = source.Color
	note.Labels = append([]string{}, source.Labels...)

	membership, err := s.insertOwnedNote(ctx, uid, note)
	if err != nil {
		return ProjectedNote{}, err
	}

	s.reindex(ctx, note)
	s.publish(ctx, events.NoteCopied, note.ID, uid, source.ID)
	return Project(note, membership), nil
}
