package s3blob

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

const (
	jsonlContentType = "application/x-ndjson"
	// multipartThreshold is the file size above which uploads go multipart.
	multipartThreshold int64 = 8 * 1024 * 1024
	finalUploadTimeout       = 30 * time.Second
)

// JournalArchiver copies the local journal file to object storage. Each
// session overwrites its own object, so the latest upload always holds the
// whole file as of that moment.
type JournalArchiver struct {
	writer    domain.BlobWriter
	prefix    string
	localPath string
	sessionID string
	logger    *slog.Logger
	now       func() time.Time
}

// NewJournalArchiver archives localPath under prefix for sessionID.
func NewJournalArchiver(w domain.BlobWriter, prefix, localPath, sessionID string, logger *slog.Logger) *JournalArchiver {
	return &JournalArchiver{
		writer:    w,
		prefix:    prefix,
		localPath: localPath,
		sessionID: sessionID,
		logger:    logger.With(slog.String("component", "archiver")),
		now:       time.Now,
	}
}

// Key is the object key uploads go to:
// {prefix}/YYYY/MM/DD/trades_{session}.jsonl, dated by the session start.
func (a *JournalArchiver) Key() string {
	day := a.now().UTC()
	if t, err := time.Parse("20060102_150405", sessionStamp(a.sessionID)); err == nil {
		day = t
	}
	return path.Join(a.prefix, day.Format("2006/01/02"), "trades_"+a.sessionID+".jsonl")
}

// Archive uploads the journal file once. A missing file is not an error.
func (a *JournalArchiver) Archive(ctx context.Context) error {
	f, err := os.Open(a.localPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("s3blob: open journal: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("s3blob: stat journal: %w", err)
	}

	key := a.Key()
	if info.Size() > multipartThreshold {
		err = a.writer.PutMultipart(ctx, key, f, minPartSize)
	} else {
		err = a.writer.Put(ctx, key, f, jsonlContentType)
	}
	if err != nil {
		return err
	}
	a.logger.DebugContext(ctx, "journal archived", slog.String("key", key), slog.Int64("bytes", info.Size()))
	return nil
}

// Run archives every interval until ctx ends, then makes one final upload
// on a fresh deadline.
func (a *JournalArchiver) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalUploadTimeout)
			defer cancel()
			if err := a.Archive(fctx); err != nil {
				a.logger.Error("final journal archive failed", slog.String("error", err.Error()))
			}
			return nil
		case <-ticker.C:
			if err := a.Archive(ctx); err != nil {
				a.logger.WarnContext(ctx, "journal archive failed", slog.String("error", err.Error()))
			}
		}
	}
}

// sessionStamp returns the YYYYMMDD_HHMMSS part of a session id.
func sessionStamp(sessionID string) string {
	const n = len("20060102_150405")
	if len(sessionID) < n {
		return ""
	}
	return sessionID[:n]
}
