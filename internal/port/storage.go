package port

import (
	"time"

	"github.com/clipflow/clipflow/internal/domain"
)

// MediaStore is the metadata store backing the pipeline. The processing
// fields are written only by the transcode queue; lifecycle fields belong to
// the approval workflow.
type MediaStore interface {
	Save(m *domain.MediaItem) error
	Get(id string) (*domain.MediaItem, error)
	Delete(id string) error

	UpdateProcessing(id string, status domain.ProcessingStatus, progress int, step string) error
	SetSourceLocator(id string, src domain.SourceLocator) error
	MarkCompleted(id string, masterKey string) error
	SetThumbnailKey(id string, key string) error
	MarkPosted(id string, at time.Time) error

	// ListStuck returns items left queued or processing by a previous run
	// (hls_ready still false), oldest upload first.
	ListStuck() ([]*domain.MediaItem, error)

	// ListStalePosted returns active-version posted items whose posted_at is
	// before the cutoff.
	ListStalePosted(cutoff time.Time) ([]*domain.MediaItem, error)

	AddFeedback(mediaID, body string, at time.Time) error
	HasFeedbackSince(mediaID string, since time.Time) (bool, error)

	// RecordPostedStat appends to the historical stats table; rows there
	// survive deletion of the live media row.
	RecordPostedStat(mediaID string, postedAt time.Time) error
	CountPostedStats() (int64, error)
}
