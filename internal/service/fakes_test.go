package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/clipflow/clipflow/internal/domain"
	"github.com/clipflow/clipflow/internal/port"
)

// fakeStore is an in-memory port.MediaStore shared by the queue, uploader and
// reclaimer tests.
type fakeStore struct {
	mu       sync.Mutex
	items    map[string]*domain.MediaItem
	feedback map[string][]time.Time
	stats    []string

	locatorErr map[string]error
	updateErr  map[string]error
	stuck      []*domain.MediaItem
	stuckErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		items:      make(map[string]*domain.MediaItem),
		feedback:   make(map[string][]time.Time),
		locatorErr: make(map[string]error),
		updateErr:  make(map[string]error),
	}
}

func (f *fakeStore) add(m *domain.MediaItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *m
	f.items[m.ID] = &cp
}

func (f *fakeStore) snapshot(id string) domain.MediaItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.items[id]; ok {
		return *m
	}
	return domain.MediaItem{}
}

func (f *fakeStore) Save(m *domain.MediaItem) error {
	f.add(m)
	return nil
}

func (f *fakeStore) Get(id string) (*domain.MediaItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeStore) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

func (f *fakeStore) UpdateProcessing(id string, status domain.ProcessingStatus, progress int, step string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.updateErr[id]; err != nil {
		return err
	}
	m, ok := f.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.Processing = status
	m.Progress = progress
	m.Step = step
	return nil
}

func (f *fakeStore) SetSourceLocator(id string, src domain.SourceLocator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.locatorErr[id]; err != nil {
		return err
	}
	m, ok := f.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.Source = src
	return nil
}

func (f *fakeStore) MarkCompleted(id string, masterKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.Processing = domain.ProcessingCompleted
	m.Progress = 100
	m.Step = ""
	m.HLSReady = true
	m.HLSMasterKey = masterKey
	return nil
}

func (f *fakeStore) SetThumbnailKey(id string, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.ThumbnailKey = key
	return nil
}

func (f *fakeStore) MarkPosted(id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.Lifecycle = domain.LifecyclePosted
	m.PostedAt = at
	return nil
}

func (f *fakeStore) ListStuck() ([]*domain.MediaItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stuck, f.stuckErr
}

func (f *fakeStore) ListStalePosted(cutoff time.Time) ([]*domain.MediaItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*domain.MediaItem
	for _, m := range f.items {
		if m.StalePosted(cutoff) {
			cp := *m
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (f *fakeStore) AddFeedback(mediaID, body string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedback[mediaID] = append(f.feedback[mediaID], at)
	return nil
}

func (f *fakeStore) HasFeedbackSince(mediaID string, since time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, at := range f.feedback[mediaID] {
		if at.After(since) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) RecordPostedStat(mediaID string, postedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats = append(f.stats, mediaID)
	return nil
}

func (f *fakeStore) CountPostedStats() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.stats)), nil
}

var _ port.MediaStore = (*fakeStore)(nil)

// fakeObjects is an in-memory port.ObjectStore. putErrs are consumed one per
// Put call; a nil entry means that call succeeds.
type fakeObjects struct {
	mu       sync.Mutex
	putCalls []time.Time
	putKeys  []string
	putErrs  []error
	keys     map[string]bool
	removed  []string
	listErr  error
	remErr   error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{keys: make(map[string]bool)}
}

func (f *fakeObjects) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalls = append(f.putCalls, time.Now())
	f.putKeys = append(f.putKeys, key)
	if len(f.putErrs) > 0 {
		err := f.putErrs[0]
		f.putErrs = f.putErrs[1:]
		if err != nil {
			return err
		}
	}
	f.keys[key] = true
	return nil
}

func (f *fakeObjects) FetchToFile(ctx context.Context, bucket, key, localPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.keys[key] {
		return fmt.Errorf("object %s not found", key)
	}
	return nil
}

func (f *fakeObjects) ListKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var result []string
	for k := range f.keys {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			result = append(result, k)
		}
	}
	return result, nil
}

func (f *fakeObjects) RemoveAll(ctx context.Context, bucket string, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remErr != nil {
		return f.remErr
	}
	for _, k := range keys {
		delete(f.keys, k)
		f.removed = append(f.removed, k)
	}
	return nil
}

var _ port.ObjectStore = (*fakeObjects)(nil)

// fakeTranscoder delegates to a per-test function and records every
// invocation in order.
type fakeTranscoder struct {
	mu      sync.Mutex
	calls   []string
	active  int
	maxSeen int
	process func(ctx context.Context, job domain.TranscodeJob, report port.ProgressFunc) (*port.TranscodeResult, error)
}

func (f *fakeTranscoder) Process(ctx context.Context, job domain.TranscodeJob, report port.ProgressFunc) (*port.TranscodeResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, job.MediaID)
	f.active++
	if f.active > f.maxSeen {
		f.maxSeen = f.active
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.process != nil {
		return f.process(ctx, job, report)
	}
	item := domain.MediaItem{ID: job.MediaID}
	return &port.TranscodeResult{MasterKey: item.MasterKey()}, nil
}

func (f *fakeTranscoder) callOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

var _ port.Transcoder = (*fakeTranscoder)(nil)
