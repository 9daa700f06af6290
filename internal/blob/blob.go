// Package blob stores note attachments in an S3-compatible object store.
package blob

import (
	"context"
	"io"
	"path"
	"strings"
	"time"
	"unicode"

	"scribe/api/internal/util"
)

// MaxUploadBytes bounds a single attachment.
const MaxUploadBytes = 10 << 20

type Object struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	List(ctx context.Context, prefix string) ([]Object, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	RemovePrefix(ctx context.Context, prefix string) error
}

// NotePrefix is the key prefix owning every attachment of a note.
func NotePrefix(noteID string) string {
	return "notes/" + noteID + "/"
}

// ObjectKey builds notes/<noteID>/<uuid>-<name>.
func ObjectKey(noteID, name string) string {
	return NotePrefix(noteID) + util.NewID("") + "-" + SanitizeName(name)
}

// DisplayName recovers the client file name from an object key.
func DisplayName(key string) string {
	base := path.Base(key)
	// uuid is 36 chars followed by '-'
	if len(base) > 37 && base[36] == '-' {
		return base[37:]
	}
	return base
}

// SanitizeName keeps letters, digits, dot, dash and underscore; everything
// else becomes '_'. Empty results fall back to "file".
func SanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "file"
	}
	if len(out) > 128 {
		out = out[len(out)-128:]
	}
	return out
}
