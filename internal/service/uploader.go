package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/clipflow/clipflow/internal/infrastructure/logger"
	"github.com/clipflow/clipflow/internal/port"
)

var ErrInvalidKey = errors.New("invalid object key")

const (
	uploadMaxRetries  = 3
	uploadBackoffBase = 500 * time.Millisecond
)

// Uploader wraps a single put-object call with bounded exponential-backoff
// retry. Retries cover operation-level storage failures only; a malformed key
// is rejected before the first attempt. After exhaustion the original storage
// error is returned unchanged so callers can tell recovered from failed.
type Uploader struct {
	objects port.ObjectStore
	retries uint64
	base    time.Duration
}

func NewUploader(objects port.ObjectStore) *Uploader {
	return &Uploader{
		objects: objects,
		retries: uploadMaxRetries,
		base:    uploadBackoffBase,
	}
}

// Upload puts body at bucket/key. The body must be re-readable across
// attempts, hence the ReadSeeker.
func (u *Uploader) Upload(ctx context.Context, bucket, key string, body io.ReadSeeker, size int64, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	attempt := 0
	backoff := retry.WithMaxRetries(u.retries, retry.NewExponential(u.base))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if _, err := body.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind body: %w", err)
		}
		err := u.objects.Put(ctx, bucket, key, body, size, contentType)
		if err == nil {
			return nil
		}
		if attempt <= int(u.retries) {
			delay := u.base << (attempt - 1)
			logger.Warn.Printf("upload %s failed (attempt %d/%d), retrying in %s: %v",
				logger.SanitizeForLog(key), attempt, u.retries+1, delay, err)
		}
		return retry.RetryableError(err)
	})
}

// UploadFile uploads a local file, choosing nothing on the caller's behalf
// beyond opening and sizing it.
func (u *Uploader) UploadFile(ctx context.Context, bucket, key, localPath, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", localPath, err)
	}
	return u.Upload(ctx, bucket, key, f, info.Size(), contentType)
}

func validateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	case strings.HasPrefix(key, "/"):
		return fmt.Errorf("%w: leading slash in %q", ErrInvalidKey, key)
	case strings.Contains(key, ".."):
		return fmt.Errorf("%w: parent traversal in %q", ErrInvalidKey, key)
	}
	return nil
}
