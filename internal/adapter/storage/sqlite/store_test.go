package sqlite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipflow/clipflow/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleItem(id string) *domain.MediaItem {
	return domain.NewMediaItem(id, "clip.mp4", "media", id+"/original.mp4")
}

func TestStore_SaveAndGetRoundTrip(t *testing.T) {
	store := newTestStore(t)

	item := sampleItem("a1")
	item.Source = domain.LocalSource("/data/uploads/a1.mp4")
	require.NoError(t, store.Save(item))

	got, err := store.Get("a1")
	require.NoError(t, err)

	assert.Equal(t, "a1", got.ID)
	assert.Equal(t, "clip.mp4", got.Filename)
	assert.Equal(t, "media", got.Bucket)
	assert.Equal(t, "a1/original.mp4", got.ObjectKey)
	assert.Equal(t, domain.SourceLocal, got.Source.Kind)
	assert.Equal(t, "/data/uploads/a1.mp4", got.Source.Path)
	assert.Equal(t, domain.LifecycleDraft, got.Lifecycle)
	assert.Equal(t, domain.ProcessingNone, got.Processing)
	assert.True(t, got.ActiveVersion)
	assert.True(t, got.PostedAt.IsZero())
	assert.WithinDuration(t, item.UploadedAt, got.UploadedAt, time.Second)
}

func TestStore_GetMissingReturnsNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get("nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_UpsertKeepsProcessingFields(t *testing.T) {
	store := newTestStore(t)

	item := sampleItem("a1")
	require.NoError(t, store.Save(item))
	require.NoError(t, store.UpdateProcessing("a1", domain.ProcessingActive, 42, "encoding 720p"))

	// A metadata re-save must not clobber what the queue wrote
	item.Filename = "renamed.mp4"
	require.NoError(t, store.Save(item))

	got, err := store.Get("a1")
	require.NoError(t, err)
	assert.Equal(t, "renamed.mp4", got.Filename)
	assert.Equal(t, domain.ProcessingActive, got.Processing)
	assert.Equal(t, 42, got.Progress)
	assert.Equal(t, "encoding 720p", got.Step)
}

func TestStore_UpdateProcessingMissingRow(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateProcessing("ghost", domain.ProcessingQueued, 0, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_SetSourceLocator(t *testing.T) {
	store := newTestStore(t)

	item := sampleItem("a1")
	item.Source = domain.LocalSource("/data/uploads/a1.mp4")
	require.NoError(t, store.Save(item))

	require.NoError(t, store.SetSourceLocator("a1", domain.RemoteSource("a1/original.mp4")))

	got, err := store.Get("a1")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceRemote, got.Source.Kind)
	assert.Equal(t, "a1/original.mp4", got.Source.Key)
	assert.Empty(t, got.Source.Path)
}

func TestStore_MarkCompleted(t *testing.T) {
	store := newTestStore(t)

	item := sampleItem("a1")
	require.NoError(t, store.Save(item))
	require.NoError(t, store.UpdateProcessing("a1", domain.ProcessingActive, 60, "encoding 1080p"))

	require.NoError(t, store.MarkCompleted("a1", "a1/hls/master.m3u8"))

	got, err := store.Get("a1")
	require.NoError(t, err)
	assert.Equal(t, domain.ProcessingCompleted, got.Processing)
	assert.Equal(t, 100, got.Progress)
	assert.Empty(t, got.Step)
	assert.True(t, got.HLSReady)
	assert.Equal(t, "a1/hls/master.m3u8", got.HLSMasterKey)
}

func TestStore_MarkPosted(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(sampleItem("a1")))
	postedAt := time.Now().Add(-time.Hour)
	require.NoError(t, store.MarkPosted("a1", postedAt))

	got, err := store.Get("a1")
	require.NoError(t, err)
	assert.Equal(t, domain.LifecyclePosted, got.Lifecycle)
	assert.WithinDuration(t, postedAt, got.PostedAt, time.Second)

	assert.ErrorIs(t, store.MarkPosted("ghost", postedAt), domain.ErrNotFound)
}

func TestStore_ListStuckFiltersAndOrders(t *testing.T) {
	store := newTestStore(t)
	base := time.Now().Add(-time.Hour)

	seed := func(id string, status domain.ProcessingStatus, uploadedAt time.Time) {
		m := sampleItem(id)
		m.UploadedAt = uploadedAt
		require.NoError(t, store.Save(m))
		if status != domain.ProcessingNone {
			require.NoError(t, store.UpdateProcessing(id, status, 0, ""))
		}
	}

	seed("later-queued", domain.ProcessingQueued, base.Add(2*time.Minute))
	seed("mid-flight", domain.ProcessingActive, base.Add(time.Minute))
	seed("never-enqueued", domain.ProcessingNone, base)
	seed("failed", domain.ProcessingFailed, base)

	seed("done", domain.ProcessingActive, base)
	require.NoError(t, store.MarkCompleted("done", "done/hls/master.m3u8"))

	stuck, err := store.ListStuck()
	require.NoError(t, err)
	require.Len(t, stuck, 2)
	assert.Equal(t, "mid-flight", stuck[0].ID, "oldest upload recovers first")
	assert.Equal(t, "later-queued", stuck[1].ID)
}

func TestStore_ListStalePosted(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	seedPosted := func(id string, postedAt time.Time, active bool) {
		m := sampleItem(id)
		m.ActiveVersion = active
		require.NoError(t, store.Save(m))
		require.NoError(t, store.MarkPosted(id, postedAt))
	}

	seedPosted("old", now.Add(-10*24*time.Hour), true)
	seedPosted("fresh", now.Add(-time.Hour), true)
	seedPosted("old-inactive", now.Add(-10*24*time.Hour), false)
	require.NoError(t, store.Save(sampleItem("never-posted")))

	stale, err := store.ListStalePosted(now.Add(-5 * 24 * time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "old", stale[0].ID)
}

func TestStore_FeedbackSince(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(sampleItem("a1")))

	postedAt := time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.AddFeedback("a1", "tighten the intro", postedAt.Add(-time.Hour)))

	has, err := store.HasFeedbackSince("a1", postedAt)
	require.NoError(t, err)
	assert.False(t, has, "feedback before the mark does not count")

	require.NoError(t, store.AddFeedback("a1", "ship it", postedAt.Add(time.Hour)))
	has, err = store.HasFeedbackSince("a1", postedAt)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = store.HasFeedbackSince("other", postedAt)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestStore_StatsSurviveDelete(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(sampleItem("a1")))
	postedAt := time.Now()
	require.NoError(t, store.MarkPosted("a1", postedAt))
	require.NoError(t, store.RecordPostedStat("a1", postedAt))

	require.NoError(t, store.Delete("a1"))
	_, err := store.Get("a1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	count, err := store.CountPostedStats()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
