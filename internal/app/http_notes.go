package app

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"scribe/api/internal/blob"
)

func (s *HTTPServer) handleNotesCollection(w http.ResponseWriter, r *http.Request, session Session) {
	switch r.Method {
	case http.MethodGet:
		filter, err := parseListFilter(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		notes, err := s.service.ListNotes(r.Context(), session.UserID, filter)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, notes)
	case http.MethodPost:
		note, err := s.service.CreateNote(r.Context(), session.UserID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, note)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleNote(w http.ResponseWriter, r *http.Request, session Session, noteID string, rest []string) {
	ctx := r.Context()
	uid := session.UserID

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			note, err := s.service.GetNote(ctx, uid, noteID)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, note)
		case http.MethodPut:
			var body NoteUpdate
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			note, err := s.service.UpdateNote(ctx, uid, noteID, body)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, note)
		case http.MethodDelete:
			if err := s.service.DeleteNote(ctx, uid, noteID); err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"message": "Note removed"})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	switch {
	case len(rest) == 1 && rest[0] == "copy" && r.Method == http.MethodPost:
		note, err := s.service.CopyNote(ctx, uid, noteID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, note)

	case len(rest) == 1 && rest[0] == "share" && r.Method == http.MethodPost:
		var body struct {
			Email string `json:"email"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.ShareNote(ctx, uid, noteID, body.Email)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case len(rest) == 1 && rest[0] == "collaborators" && r.Method == http.MethodGet:
		collaborators, err := s.service.ListCollaborators(ctx, uid, noteID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, collaborators)

	case len(rest) == 2 && rest[0] == "collaborators" && r.Method == http.MethodDelete:
		if err := s.service.RemoveCollaborator(ctx, uid, noteID, rest[1]); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Collaborator removed"})

	case len(rest) == 1 && rest[0] == "attachments" && r.Method == http.MethodGet:
		attachments, err := s.service.ListAttachments(ctx, uid, noteID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, attachments)

	case len(rest) == 1 && rest[0] == "attachments" && r.Method == http.MethodPost:
		s.handleUpload(w, r, uid, noteID)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request, uid, noteID string) {
	r.Body = http.MaxBytesReader(w, r.Body, blob.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "TOO_LARGE", "Attachment too large", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid multipart body", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "file is required", nil)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	attachment, err := s.service.UploadAttachment(r.Context(), uid, noteID, header.Filename, contentType, file, header.Size)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, attachment)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, session Session) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	notes, err := s.service.SearchNotes(r.Context(), session.UserID, r.URL.Query().Get("q"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

// parseListFilter reads bin, archived, favorited and search. Unparsable
// booleans are a validation error rather than being ignored.
func parseListFilter(r *http.Request) (ListFilter, error) {
	query := r.URL.Query()
	filter := ListFilter{Search: query.Get("search")}

	bin, err := queryBool(query.Get("bin"), "bin")
	if err != nil {
		return ListFilter{}, err
	}
	filter.Bin = bin != nil && *bin

	if filter.Archived, err = queryBool(query.Get("archived"), "archived"); err != nil {
		return ListFilter{}, err
	}
	if filter.Favorited, err = queryBool(query.Get("favorited"), "favorited"); err != nil {
		return ListFilter{}, err
	}
	return filter, nil
}

func queryBool(raw, field string) (*bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, validation(field+" must be true or false", map[string]any{"field": field})
	}
	return &value, nil
}
