package port

import (
	"context"

	"github.com/clipflow/clipflow/internal/domain"
)

// ProgressFunc receives phase-boundary progress updates. The queue, not the
// transcoder, is the authority for persisted cumulative progress.
type ProgressFunc func(step string, percent int)

// TranscodeResult carries the keys produced by a successful run. ThumbnailKey
// is empty when thumbnail generation failed (best effort).
type TranscodeResult struct {
	MasterKey    string
	ThumbnailKey string
}

// Transcoder turns one source media file into an HLS package plus thumbnail.
type Transcoder interface {
	Process(ctx context.Context, job domain.TranscodeJob, report ProgressFunc) (*TranscodeResult, error)
}
