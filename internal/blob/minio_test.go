package blob

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stuckLister emits one failure and then keeps its producer goroutine alive
// until the caller's context is cancelled, like the minio client does.
type stuckLister struct {
	stopped chan struct{}
}

func newStuckLister() *stuckLister {
	return &stuckLister{stopped: make(chan struct{}, 2)}
}

func (l *stuckLister) ListObjects(ctx context.Context, _ string, _ minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	ch := make(chan minio.ObjectInfo)
	go func() {
		defer close(ch)
		defer func() { l.stopped <- struct{}{} }()
		select {
		case ch <- minio.ObjectInfo{Err: errors.New("access denied")}:
		case <-ctx.Done():
			return
		}
		select {
		case ch <- minio.ObjectInfo{Key: "notes/n1/late"}:
		case <-ctx.Done():
		}
	}()
	return ch
}

func (l *stuckLister) RemoveObjects(ctx context.Context, _ string, _ <-chan minio.ObjectInfo, _ minio.RemoveObjectsOptions) <-chan minio.RemoveObjectError {
	ch := make(chan minio.RemoveObjectError)
	go func() {
		defer close(ch)
		defer func() { l.stopped <- struct{}{} }()
		select {
		case ch <- minio.RemoveObjectError{ObjectName: "notes/n1/a", Err: errors.New("access denied")}:
		case <-ctx.Done():
			return
		}
		select {
		case ch <- minio.RemoveObjectError{ObjectName: "notes/n1/b"}:
		case <-ctx.Done():
		}
	}()
	return ch
}

func waitStopped(t *testing.T, l *stuckLister) {
	t.Helper()
	select {
	case <-l.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("producer goroutine still running after the call returned")
	}
}

func TestMinioListStopsProducerOnError(t *testing.T) {
	lister := newStuckLister()
	s := &MinioStore{objects: lister, bucket: "scribe-attachments"}

	_, err := s.List(context.WithoutCancel(context.Background()), "notes/n1/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	waitStopped(t, lister)
}

func TestMinioRemovePrefixStopsProducersOnError(t *testing.T) {
	lister := newStuckLister()
	s := &MinioStore{objects: lister, bucket: "scribe-attachments"}

	err := s.RemovePrefix(context.WithoutCancel(context.Background()), "notes/n1/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notes/n1/a")
	waitStopped(t, lister)
	waitStopped(t, lister)
}
