package s3blob

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upload struct {
	path      string
	body      string
	multipart bool
}

type fakeWriter struct {
	mu      sync.Mutex
	uploads []upload
}

func (w *fakeWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.uploads = append(w.uploads, upload{path: path, body: string(b)})
	return nil
}

func (w *fakeWriter) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.uploads = append(w.uploads, upload{path: path, body: string(b), multipart: true})
	return nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.uploads)
}

func TestArchiverKey(t *testing.T) {
	a := NewJournalArchiver(&fakeWriter{}, "journal", "x", "20261018_090507_a1b2c3", slog.New(slog.DiscardHandler))
	assert.Equal(t, "journal/2026/10/18/trades_20261018_090507_a1b2c3.jsonl", a.Key())

	a = NewJournalArchiver(&fakeWriter{}, "journal", "x", "odd", slog.New(slog.DiscardHandler))
	a.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	assert.Equal(t, "journal/2026/01/02/trades_odd.jsonl", a.Key())
}

func TestArchiveUploadsFile(t *testing.T) {
	local := filepath.Join(t.TempDir(), "trades.jsonl")
	require.NoError(t, os.WriteFile(local, []byte("{\"a\":1}\n"), 0o644))

	w := &fakeWriter{}
	a := NewJournalArchiver(w, "j", local, "20261018_090507_a1b2c3", slog.New(slog.DiscardHandler))
	require.NoError(t, a.Archive(context.Background()))

	require.Len(t, w.uploads, 1)
	assert.Equal(t, "j/2026/10/18/trades_20261018_090507_a1b2c3.jsonl", w.uploads[0].path)
	assert.Equal(t, "{\"a\":1}\n", w.uploads[0].body)
	assert.False(t, w.uploads[0].multipart)
}

func TestArchiveMissingFile(t *testing.T) {
	w := &fakeWriter{}
	a := NewJournalArchiver(w, "j", filepath.Join(t.TempDir(), "none.jsonl"), "s", slog.New(slog.DiscardHandler))
	require.NoError(t, a.Archive(context.Background()))
	assert.Empty(t, w.uploads)
}

func TestRunUploadsOnShutdown(t *testing.T) {
	local := filepath.Join(t.TempDir(), "trades.jsonl")
	require.NoError(t, os.WriteFile(local, []byte("{}\n"), 0o644))

	w := &fakeWriter{}
	a := NewJournalArchiver(w, "j", local, "s", slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, time.Hour) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, 1, w.count())
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "http://localhost:9000", normaliseEndpoint("http://localhost:9000", true))
}
