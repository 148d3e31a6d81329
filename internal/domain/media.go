package domain

import (
	"time"
)

// LifecycleStatus is the business status of a media item. It is owned by the
// approval workflow; the pipeline only reads it (the reclaimer cares about
// Posted items).
type LifecycleStatus string

const (
	LifecycleDraft         LifecycleStatus = "draft"
	LifecyclePending       LifecycleStatus = "pending"
	LifecycleUnderReview   LifecycleStatus = "under_review"
	LifecycleApproved      LifecycleStatus = "approved"
	LifecycleChangesNeeded LifecycleStatus = "changes_needed"
	LifecycleRejected      LifecycleStatus = "rejected"
	LifecyclePosted        LifecycleStatus = "posted"
)

// ProcessingStatus is owned exclusively by the transcode queue. The empty
// string means the item was never enqueued.
type ProcessingStatus string

const (
	ProcessingNone      ProcessingStatus = ""
	ProcessingQueued    ProcessingStatus = "queued"
	ProcessingActive    ProcessingStatus = "processing"
	ProcessingCompleted ProcessingStatus = "completed"
	ProcessingFailed    ProcessingStatus = "failed"
)

// SourceKind tags a SourceLocator.
type SourceKind string

const (
	SourceLocal  SourceKind = "local"
	SourceRemote SourceKind = "remote"
)

// SourceLocator says where the raw upload lives: a local temp file written by
// the upload handler, or an object-storage key. After a restart only the
// remote form survives, so the locator is persisted at enqueue time and
// recovery never has to guess.
type SourceLocator struct {
	Kind SourceKind
	Path string // local filesystem path, set when Kind == SourceLocal
	Key  string // object-storage key, set when Kind == SourceRemote
}

func LocalSource(path string) SourceLocator {
	return SourceLocator{Kind: SourceLocal, Path: path}
}

func RemoteSource(key string) SourceLocator {
	return SourceLocator{Kind: SourceRemote, Key: key}
}

func (s SourceLocator) IsZero() bool {
	return s.Kind == ""
}

type MediaItem struct {
	ID            string           `json:"id"`
	Filename      string           `json:"filename"`
	Bucket        string           `json:"bucket"`
	ObjectKey     string           `json:"object_key"`
	Source        SourceLocator    `json:"-"`
	Lifecycle     LifecycleStatus  `json:"lifecycle_status"`
	Processing    ProcessingStatus `json:"processing_status"`
	Progress      int              `json:"processing_progress"`
	Step          string           `json:"processing_step"`
	HLSReady      bool             `json:"hls_ready"`
	HLSMasterKey  string           `json:"hls_master_key"`
	ThumbnailKey  string           `json:"thumbnail_key"`
	ActiveVersion bool             `json:"active_version"`
	PostedAt      time.Time        `json:"posted_at"`
	UploadedAt    time.Time        `json:"uploaded_at"`
}

func NewMediaItem(id, filename, bucket, objectKey string) *MediaItem {
	return &MediaItem{
		ID:            id,
		Filename:      filename,
		Bucket:        bucket,
		ObjectKey:     objectKey,
		Source:        RemoteSource(objectKey),
		Lifecycle:     LifecycleDraft,
		ActiveVersion: true,
		UploadedAt:    time.Now(),
	}
}

// HLSPrefix is the object-storage prefix holding every generated rendition
// playlist and segment for this item.
func (m *MediaItem) HLSPrefix() string {
	return m.ID + "/hls/"
}

// MasterKey is where the master playlist lands on success.
func (m *MediaItem) MasterKey() string {
	return m.HLSPrefix() + "master.m3u8"
}

// ThumbKey is where the generated thumbnail lands.
func (m *MediaItem) ThumbKey() string {
	return m.ID + "/thumb.jpg"
}

// StalePosted reports whether the item is a posted active version older than
// the cutoff, making it a reclamation candidate pending a feedback check.
func (m *MediaItem) StalePosted(cutoff time.Time) bool {
	return m.Lifecycle == LifecyclePosted &&
		m.ActiveVersion &&
		!m.PostedAt.IsZero() &&
		m.PostedAt.Before(cutoff)
}

// TranscodeJob is the ephemeral unit of work handed to the queue. It is never
// persisted beyond the processing fields on the media row.
type TranscodeJob struct {
	MediaID  string
	Source   SourceLocator
	Bucket   string
	Filename string
}
