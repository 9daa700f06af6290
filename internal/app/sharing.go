package app

import (
	"context"
	"errors"
	"strings"

	"scribe/api/internal/events"
	"scribe/api/internal/rbac"
	"scribe/api/internal/store"
)

type ShareResult struct {
	Message string `json:"message"`
}

type User struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

type Collaborator struct {
	User User      `json:"user"`
	Role rbac.Role `json:"role"`
}

func (s *Service) ShareNote(ctx context.Context, uid, noteID, email string) (ShareResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return ShareResult{}, validation("email is required", map[string]any{"field": "email"})
	}
	note, _, err := s.authorize(ctx, uid, noteID, rbac.ActionShare)
	if err != nil {
		return ShareResult{}, err
	}

	target, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return ShareResult{}, notFound("User not found")
	}
	if err != nil {
		return ShareResult{}, persistence("get user by email", err)
	}

	exists, err := s.memberships.MembershipExists(ctx, noteID, target.ID)
	if err != nil {
		return ShareResult{}, persistence("check membership", err)
	}
	if exists {
		return ShareResult{}, conflict("Note already shared with this user")
	}

	now := s.now()
	err = s.memberships.InsertMembership(ctx, store.Membership{
		ID:        newID(),
		NoteID:    noteID,
		UserID:    target.ID,
		Role:      rbac.RoleCollaborator,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if errors.Is(err, store.ErrDuplicate) {
		return ShareResult{}, conflict("Note already shared with this user")
	}
	if errors.Is(err, store.ErrNotFound) {
		return ShareResult{}, notFound("Note not found")
	}
	if err != nil {
		return ShareResult{}, persistence("insert membership", err)
	}

	s.log.Info().Str("note_id", noteID).Str("user_id", uid).Str("target_id", target.ID).Msg("note shared")
	s.reindex(ctx, note)
	s.publish(ctx, events.NoteShared, noteID, uid, target.ID)
	return ShareResult{Message: "Note shared with " + email}, nil
}

func (s *Service) RemoveCollaborator(ctx context.Context, uid, noteID, targetUID string) error {
	if uid == "" {
		return unauthenticated()
	}
	if targetUID == uid {
		return invalidOperation("Cannot remove yourself from the note")
	}
	note, _, err := s.authorize(ctx, uid, noteID, rbac.ActionUnshare)
	if err != nil {
		return err
	}

	target, err := s.memberships.GetMembership(ctx, noteID, targetUID)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("Collaborator not found")
	}
	if err != nil {
		return persistence("get membership", err)
	}
	if target.Role == rbac.RoleOwner {
		return invalidOperation("Cannot remove the owner")
	}

	if err := s.memberships.DeleteMembership(ctx, noteID, targetUID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("Collaborator not found")
		}
		return persistence("delete membership", err)
	}

	s.log.Info().Str("note_id", noteID).Str("user_id", uid).Str("target_id", targetUID).Msg("collaborator removed")
	s.reindex(ctx, note)
	s.publish(ctx, events.NoteUnshared, noteID, uid, targetUID)
	return nil
}

func (s *Service) ListCollaborators(ctx context.Context, uid, noteID string) ([]Collaborator, error) {
	if _, _, err := s.authorize(ctx, uid, noteID, rbac.ActionRead); err != nil {
		return nil, err
	}

	rows, err := s.memberships.ListMembershipsByNote(ctx, noteID)
	if err != nil {
		return nil, persistence("list memberships", err)
	}
	ids := make([]string, 0, len(rows))
	for _, m := range rows {
		ids = append(ids, m.UserID)
	}
	users, err := s.users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, persistence("get users", err)
	}
	byID := make(map[string]store.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	out := make([]Collaborator, 0, len(rows))
	for _, m := range rows {
		user := User{ID: m.UserID}
		if u, ok := byID[m.UserID]; ok {
			user.Name = u.Name
			user.Email = u.Email
			user.Avatar = u.Avatar
		}
		out = append(out, Collaborator{User: user, Role: m.Role})
	}
	return out, nil
}
