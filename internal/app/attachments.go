package app

import (
	"context"
	"io"
	"strings"
	"time"

	"scribe/api/internal/blob"
	"scribe/api/internal/rbac"
)

const attachmentURLTTL = 15 * time.Minute

type Attachment struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType,omitempty"`
	URL         string `json:"url"`
}

func (s *Service) UploadAttachment(ctx context.Context, uid, noteID, name, contentType string, r io.Reader, size int64) (Attachment, error) {
	if s.attachments == nil {
		return Attachment{}, invalidOperation("attachments are not configured")
	}
	if strings.TrimSpace(name) == "" {
		return Attachment{}, validation("file name is required", map[string]any{"field": "file"})
	}
	if size <= 0 || size > blob.MaxUploadBytes {
		return Attachment{}, validation("file size out of range", map[string]any{"field": "file", "max": blob.MaxUploadBytes})
	}
	if _, _, err := s.authorize(ctx, uid, noteID, rbac.ActionAttach); err != nil {
		return Attachment{}, err
	}

	key := blob.ObjectKey(noteID, name)
	if err := s.attachments.Put(ctx, key, r, size, contentType); err != nil {
		return Attachment{}, persistence("put attachment", err)
	}
	url, err := s.attachments.PresignGet(ctx, key, attachmentURLTTL)
	if err != nil {
		return Attachment{}, persistence("presign attachment", err)
	}

	s.log.Info().Str("note_id", noteID).Str("user_id", uid).Str("key", key).Int64("size", size).Msg("attachment uploaded")
	return Attachment{
		Key:         key,
		Name:        blob.DisplayName(key),
		Size:        size,
		ContentType: contentType,
		URL:         url,
	}, nil
}

func (s *Service) ListAttachments(ctx context.Context, uid, noteID string) ([]Attachment, error) {
	if s.attachments == nil {
		return nil, invalidOperation("attachments are not configured")
	}
	if _, _, err := s.authorize(ctx, uid, noteID, rbac.ActionAttach); err != nil {
		return nil, err
	}

	objects, err := s.attachments.List(ctx, blob.NotePrefix(noteID))
	if err != nil {
		return nil, persistence("list attachments", err)
	}
	out := make([]Attachment, 0, len(objects))
	for _, obj := range objects {
		url, err := s.attachments.PresignGet(ctx, obj.Key, attachmentURLTTL)
		if err != nil {
			return nil, persistence("presign attachment", err)
		}
		out = append(out, Attachment{
			Key:         obj.Key,
			Name:        blob.DisplayName(obj.Key),
			Size:        obj.Size,
			ContentType: obj.ContentType,
			URL:         url,
		})
	}
	return out, nil
}
