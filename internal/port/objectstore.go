package port

import (
	"context"
	"io"
)

// ObjectStore abstracts the bucket holding originals and generated renditions.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error
	FetchToFile(ctx context.Context, bucket, key, localPath string) error
	ListKeys(ctx context.Context, bucket, prefix string) ([]string, error)
	RemoveAll(ctx context.Context, bucket string, keys []string) error
}
