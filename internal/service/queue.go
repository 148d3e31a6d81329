package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/clipflow/clipflow/internal/domain"
	"github.com/clipflow/clipflow/internal/infrastructure/logger"
	"github.com/clipflow/clipflow/internal/port"
)

const (
	// DefaultJobTimeout bounds a single transcode run wall-clock.
	DefaultJobTimeout = 45 * time.Minute

	// jobYield is the pause between jobs so one long queue cannot starve
	// other work sharing the process.
	jobYield = 100 * time.Millisecond

	// crashRestartDelay is how long the supervisor waits before restarting a
	// crashed worker loop.
	crashRestartDelay = 2 * time.Second

	// errStepLimit truncates failure messages persisted into the step field.
	errStepLimit = 200
)

// TranscodeQueue serializes transcode jobs: one encode runs at a time no
// matter how many jobs are waiting. Enqueue, Dequeue and the status reads are
// safe for concurrent use from request handlers; only the worker goroutine
// touches the current-job marker.
type TranscodeQueue struct {
	store        port.MediaStore
	transcoder   port.Transcoder
	events       EventPublisher
	timeout      time.Duration
	restartDelay time.Duration

	mu      sync.Mutex
	waiting []*domain.TranscodeJob
	pending map[string]bool // enqueues mid-flight between dup check and append
	current string

	wake chan struct{}
}

type EventPublisher interface {
	Publish(mediaID string, event Event)
}

// ProcessingInfo is the composite status handed to polling UI code.
type ProcessingInfo struct {
	Status        domain.ProcessingStatus `json:"processing_status"`
	Progress      int                     `json:"processing_progress"`
	Step          string                  `json:"processing_step"`
	HLSReady      bool                    `json:"hls_ready"`
	QueuePosition int                     `json:"queue_position"`
	QueueTotal    int                     `json:"queue_total"`
}

func NewTranscodeQueue(store port.MediaStore, transcoder port.Transcoder, events EventPublisher, timeout time.Duration) *TranscodeQueue {
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	return &TranscodeQueue{
		store:        store,
		transcoder:   transcoder,
		events:       events,
		timeout:      timeout,
		restartDelay: crashRestartDelay,
		pending:      make(map[string]bool),
		wake:         make(chan struct{}, 1),
	}
}

// Start launches the supervised worker goroutine. It returns immediately.
func (q *TranscodeQueue) Start(ctx context.Context) {
	go q.supervise(ctx)
}

// Enqueue appends a job to the FIFO and persists the queued status. A media
// id already waiting or currently processing is a logged no-op. The call
// never blocks on encoding.
func (q *TranscodeQueue) Enqueue(job domain.TranscodeJob) error {
	q.mu.Lock()
	if q.trackedLocked(job.MediaID) {
		q.mu.Unlock()
		logger.Warn.Printf("enqueue ignored, media %s already tracked", logger.SanitizeForLog(job.MediaID))
		return nil
	}
	q.pending[job.MediaID] = true
	q.mu.Unlock()

	release := func() {
		q.mu.Lock()
		delete(q.pending, job.MediaID)
		q.mu.Unlock()
	}

	// Persist the definitive source locator so a post-crash recovery never
	// has to guess where the raw upload lives.
	if err := q.store.SetSourceLocator(job.MediaID, job.Source); err != nil {
		release()
		return fmt.Errorf("persist source locator: %w", err)
	}
	if err := q.store.UpdateProcessing(job.MediaID, domain.ProcessingQueued, 0, ""); err != nil {
		release()
		return fmt.Errorf("persist queued status: %w", err)
	}

	q.mu.Lock()
	delete(q.pending, job.MediaID)
	q.waiting = append(q.waiting, &job)
	q.mu.Unlock()

	q.publish(job.MediaID, string(domain.ProcessingQueued), "", 0)
	q.wakeWorker()
	return nil
}

// Dequeue removes a job that has not started yet and releases its local temp
// file. It reports whether anything was removed; a running or unknown job
// yields false.
func (q *TranscodeQueue) Dequeue(mediaID string) bool {
	q.mu.Lock()
	var removed *domain.TranscodeJob
	for i, job := range q.waiting {
		if job.MediaID == mediaID {
			removed = job
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			break
		}
	}
	q.mu.Unlock()

	if removed == nil {
		return false
	}
	releaseLocalSource(removed)
	logger.Info.Printf("dequeued media %s before processing", logger.SanitizeForLog(mediaID))
	return true
}

// Position returns 0 for the currently-processing job, 1..N for a queued job,
// and -1 when the id is not tracked.
func (q *TranscodeQueue) Position(mediaID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current == mediaID {
		return 0
	}
	for i, job := range q.waiting {
		if job.MediaID == mediaID {
			return i + 1
		}
	}
	return -1
}

// Total is the queued count plus one if a job is actively processing.
func (q *TranscodeQueue) Total() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	total := len(q.waiting)
	if q.current != "" {
		total++
	}
	return total
}

// Info composes the persisted processing fields with the live queue position.
func (q *TranscodeQueue) Info(mediaID string) (*ProcessingInfo, error) {
	m, err := q.store.Get(mediaID)
	if err != nil {
		return nil, err
	}
	return &ProcessingInfo{
		Status:        m.Processing,
		Progress:      m.Progress,
		Step:          m.Step,
		HLSReady:      m.HLSReady,
		QueuePosition: q.Position(mediaID),
		QueueTotal:    q.Total(),
	}, nil
}

// RecoverStuck re-enqueues items a previous process left queued or
// processing. Local temp files are gone after a restart, so recovery always
// reads from the persisted object key. An item that cannot be re-enqueued is
// marked failed rather than left stuck.
func (q *TranscodeQueue) RecoverStuck() error {
	items, err := q.store.ListStuck()
	if err != nil {
		return fmt.Errorf("list stuck media: %w", err)
	}

	for _, m := range items {
		job := domain.TranscodeJob{
			MediaID:  m.ID,
			Source:   domain.RemoteSource(m.ObjectKey),
			Bucket:   m.Bucket,
			Filename: m.Filename,
		}
		if err := q.Enqueue(job); err != nil {
			logger.Error.Printf("recovery enqueue failed for media %s: %v", logger.SanitizeForLog(m.ID), err)
			_ = q.store.UpdateProcessing(m.ID, domain.ProcessingFailed, 0, "error: re-enqueue after restart failed")
		}
	}

	if len(items) > 0 {
		logger.Info.Printf("recovered %d interrupted transcode job(s)", len(items))
	}
	return nil
}

func (q *TranscodeQueue) supervise(ctx context.Context) {
	for {
		err := q.runLoop(ctx)
		if err == nil {
			return
		}
		logger.Error.Printf("worker loop crashed: %v, restarting", err)
		q.failInFlight("error: worker crashed")

		select {
		case <-ctx.Done():
			return
		case <-time.After(q.restartDelay):
		}
	}
}

// runLoop is the single worker. It returns nil on context cancellation and an
// error only when it panicked, in which case the supervisor restarts it.
func (q *TranscodeQueue) runLoop(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	for {
		job := q.pop()
		if job == nil {
			select {
			case <-ctx.Done():
				return nil
			case <-q.wake:
			}
			continue
		}

		q.runJob(ctx, job)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(jobYield):
		}
	}
}

func (q *TranscodeQueue) pop() *domain.TranscodeJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.waiting) == 0 {
		return nil
	}
	job := q.waiting[0]
	q.waiting = q.waiting[1:]
	q.current = job.MediaID
	return job
}

func (q *TranscodeQueue) runJob(ctx context.Context, job *domain.TranscodeJob) {
	defer func() {
		q.mu.Lock()
		q.current = ""
		q.mu.Unlock()
		releaseLocalSource(job)
	}()

	if err := q.store.UpdateProcessing(job.MediaID, domain.ProcessingActive, 0, ""); err != nil {
		// Row gone (deleted between enqueue and start) or store down; either
		// way there is nothing to transcode for.
		logger.Error.Printf("cannot mark media %s processing: %v", logger.SanitizeForLog(job.MediaID), err)
		return
	}
	q.publish(job.MediaID, string(domain.ProcessingActive), "", 0)
	logger.Info.Printf("transcoding media %s (%s)", logger.SanitizeForLog(job.MediaID), logger.SanitizeForLog(job.Filename))

	jobCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	res, err := q.transcoder.Process(jobCtx, *job, q.progressFunc(job.MediaID))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("transcode exceeded %s budget", q.timeout)
		}
		q.failJob(job.MediaID, err)
		return
	}

	if res.ThumbnailKey != "" {
		if terr := q.store.SetThumbnailKey(job.MediaID, res.ThumbnailKey); terr != nil {
			logger.Warn.Printf("persist thumbnail key for %s: %v", logger.SanitizeForLog(job.MediaID), terr)
		}
	}
	if err := q.store.MarkCompleted(job.MediaID, res.MasterKey); err != nil {
		q.failJob(job.MediaID, fmt.Errorf("persist completion: %w", err))
		return
	}

	q.publish(job.MediaID, string(domain.ProcessingCompleted), "", 100)
	logger.Info.Printf("media %s transcoded, master playlist at %s", logger.SanitizeForLog(job.MediaID), res.MasterKey)
}

func (q *TranscodeQueue) failJob(mediaID string, cause error) {
	step := "error: " + truncate(cause.Error(), errStepLimit)
	if err := q.store.UpdateProcessing(mediaID, domain.ProcessingFailed, 0, step); err != nil {
		logger.Error.Printf("cannot mark media %s failed: %v", logger.SanitizeForLog(mediaID), err)
	}
	q.publish(mediaID, string(domain.ProcessingFailed), step, 0)
	logger.Error.Printf("transcode failed for media %s: %v", logger.SanitizeForLog(mediaID), cause)
}

// failInFlight force-fails whatever job the crashed loop was holding so the
// restarted loop starts clean.
func (q *TranscodeQueue) failInFlight(step string) {
	q.mu.Lock()
	id := q.current
	q.current = ""
	q.mu.Unlock()

	if id == "" {
		return
	}
	if err := q.store.UpdateProcessing(id, domain.ProcessingFailed, 0, step); err != nil {
		logger.Error.Printf("cannot mark crashed job %s failed: %v", logger.SanitizeForLog(id), err)
	}
	q.publish(id, string(domain.ProcessingFailed), step, 0)
}

// progressFunc persists cumulative progress for one job. Progress is clamped
// monotonic within the run; the transcoder only reports phase boundaries.
func (q *TranscodeQueue) progressFunc(mediaID string) port.ProgressFunc {
	var last int
	return func(step string, percent int) {
		if percent < last {
			percent = last
		}
		if percent > 100 {
			percent = 100
		}
		last = percent

		if err := q.store.UpdateProcessing(mediaID, domain.ProcessingActive, percent, step); err != nil {
			logger.Warn.Printf("persist progress for %s: %v", logger.SanitizeForLog(mediaID), err)
		}
		q.publish(mediaID, string(domain.ProcessingActive), step, percent)
	}
}

func (q *TranscodeQueue) trackedLocked(mediaID string) bool {
	if q.current == mediaID || q.pending[mediaID] {
		return true
	}
	for _, job := range q.waiting {
		if job.MediaID == mediaID {
			return true
		}
	}
	return false
}

func (q *TranscodeQueue) wakeWorker() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *TranscodeQueue) publish(mediaID, status, step string, progress int) {
	if q.events == nil {
		return
	}
	q.events.Publish(mediaID, Event{
		Type:     "status",
		Status:   status,
		Step:     step,
		Progress: progress,
	})
}

func releaseLocalSource(job *domain.TranscodeJob) {
	if job.Source.Kind == domain.SourceLocal && job.Source.Path != "" {
		if err := os.Remove(job.Source.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn.Printf("remove temp upload %s: %v", job.Source.Path, err)
		}
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
