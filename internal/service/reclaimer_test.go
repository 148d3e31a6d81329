package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipflow/clipflow/internal/domain"
)

func postedItem(id string, postedAt time.Time) *domain.MediaItem {
	m := domain.NewMediaItem(id, id+".mp4", "media", id+"/original.mp4")
	m.Lifecycle = domain.LifecyclePosted
	m.Processing = domain.ProcessingCompleted
	m.HLSReady = true
	m.HLSMasterKey = m.MasterKey()
	m.ThumbnailKey = m.ThumbKey()
	m.PostedAt = postedAt
	return m
}

func seedObjects(objects *fakeObjects, m *domain.MediaItem) {
	objects.keys[m.ObjectKey] = true
	objects.keys[m.ThumbnailKey] = true
	objects.keys[m.HLSPrefix()+"master.m3u8"] = true
	objects.keys[m.HLSPrefix()+"360p/360p.m3u8"] = true
	objects.keys[m.HLSPrefix()+"360p/360p_000.ts"] = true
}

func TestReclaimer_RemovesStalePostedMedia(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()

	stale := postedItem("stale", time.Now().Add(-10*24*time.Hour))
	store.add(stale)
	seedObjects(objects, stale)
	require.NoError(t, store.RecordPostedStat("stale", stale.PostedAt))

	r := NewReclaimer(store, objects, "media", time.Hour, 5*24*time.Hour)
	require.NoError(t, r.Sweep(context.Background()))

	_, err := store.Get("stale")
	assert.ErrorIs(t, err, domain.ErrNotFound, "live row must be gone")
	assert.Empty(t, objects.keys, "original, thumbnail and every HLS object must be gone")

	count, err := store.CountPostedStats()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count, "historical stats survive reclamation")
}

func TestReclaimer_KeepsRecentlyPostedMedia(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()

	fresh := postedItem("fresh", time.Now().Add(-time.Hour))
	store.add(fresh)
	seedObjects(objects, fresh)

	r := NewReclaimer(store, objects, "media", time.Hour, 5*24*time.Hour)
	require.NoError(t, r.Sweep(context.Background()))

	_, err := store.Get("fresh")
	assert.NoError(t, err)
	assert.Empty(t, objects.removed)
}

func TestReclaimer_FeedbackAfterPostingKeepsMediaAlive(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()

	stale := postedItem("discussed", time.Now().Add(-10*24*time.Hour))
	store.add(stale)
	seedObjects(objects, stale)
	require.NoError(t, store.AddFeedback("discussed", "love this cut", stale.PostedAt.Add(time.Hour)))

	r := NewReclaimer(store, objects, "media", time.Hour, 5*24*time.Hour)
	require.NoError(t, r.Sweep(context.Background()))

	_, err := store.Get("discussed")
	assert.NoError(t, err, "feedback since posting keeps the item")
	assert.Empty(t, objects.removed)
}

func TestReclaimer_FeedbackBeforePostingDoesNotProtect(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()

	stale := postedItem("old-thread", time.Now().Add(-10*24*time.Hour))
	store.add(stale)
	seedObjects(objects, stale)
	require.NoError(t, store.AddFeedback("old-thread", "pre-post review", stale.PostedAt.Add(-time.Hour)))

	r := NewReclaimer(store, objects, "media", time.Hour, 5*24*time.Hour)
	require.NoError(t, r.Sweep(context.Background()))

	_, err := store.Get("old-thread")
	assert.ErrorIs(t, err, domain.ErrNotFound, "only feedback after posting counts")
}

func TestReclaimer_StorageFailureKeepsRow(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	objects.remErr = errors.New("storage unreachable")

	stale := postedItem("stuck", time.Now().Add(-10*24*time.Hour))
	store.add(stale)
	seedObjects(objects, stale)

	r := NewReclaimer(store, objects, "media", time.Hour, 5*24*time.Hour)
	require.NoError(t, r.Sweep(context.Background()))

	_, err := store.Get("stuck")
	assert.NoError(t, err, "row must survive when object deletion fails")

	// Next sweep retries the same candidate once storage is back
	objects.remErr = nil
	require.NoError(t, r.Sweep(context.Background()))
	_, err = store.Get("stuck")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReclaimer_NonActiveVersionIsNotReclaimed(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()

	superseded := postedItem("superseded", time.Now().Add(-10*24*time.Hour))
	superseded.ActiveVersion = false
	store.add(superseded)
	seedObjects(objects, superseded)

	r := NewReclaimer(store, objects, "media", time.Hour, 5*24*time.Hour)
	require.NoError(t, r.Sweep(context.Background()))

	_, err := store.Get("superseded")
	assert.NoError(t, err)
}
