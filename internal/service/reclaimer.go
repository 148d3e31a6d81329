package service

import (
	"context"
	"time"

	"github.com/clipflow/clipflow/internal/infrastructure/logger"
	"github.com/clipflow/clipflow/internal/port"
)

const (
	DefaultReclaimInterval = 6 * time.Hour
	DefaultReclaimGrace    = 5 * 24 * time.Hour

	// reclaimStartupDelay gives the store and object storage time to settle
	// before the first sweep after boot.
	reclaimStartupDelay = time.Minute
)

// Reclaimer bounds storage growth: posted items past the grace period with no
// feedback since posting lose their storage objects and live metadata row.
// Historical stats rows are untouched, so "total ever posted" counters keep
// working after reclamation.
type Reclaimer struct {
	store    port.MediaStore
	objects  port.ObjectStore
	bucket   string
	interval time.Duration
	grace    time.Duration
}

func NewReclaimer(store port.MediaStore, objects port.ObjectStore, bucket string, interval, grace time.Duration) *Reclaimer {
	if interval <= 0 {
		interval = DefaultReclaimInterval
	}
	if grace <= 0 {
		grace = DefaultReclaimGrace
	}
	return &Reclaimer{
		store:    store,
		objects:  objects,
		bucket:   bucket,
		interval: interval,
		grace:    grace,
	}
}

// Run sweeps shortly after startup and then on every interval tick until the
// context is cancelled.
func (r *Reclaimer) Run(ctx context.Context) {
	startup := time.NewTimer(reclaimStartupDelay)
	defer startup.Stop()

	select {
	case <-ctx.Done():
		return
	case <-startup.C:
		r.sweep(ctx)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// Sweep runs one reclamation pass. A failure on one candidate never aborts
// the rest of the pass.
func (r *Reclaimer) Sweep(ctx context.Context) error {
	return r.sweep(ctx)
}

func (r *Reclaimer) sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-r.grace)
	items, err := r.store.ListStalePosted(cutoff)
	if err != nil {
		logger.Error.Printf("reclaimer: list stale posted media: %v", err)
		return err
	}

	reclaimed := 0
	for _, m := range items {
		hasFeedback, err := r.store.HasFeedbackSince(m.ID, m.PostedAt)
		if err != nil {
			logger.Error.Printf("reclaimer: feedback check for %s: %v", logger.SanitizeForLog(m.ID), err)
			continue
		}
		if hasFeedback {
			// Still live, somebody reacted after posting.
			continue
		}

		keys := []string{m.ObjectKey}
		if m.ThumbnailKey != "" {
			keys = append(keys, m.ThumbnailKey)
		}
		hlsKeys, err := r.objects.ListKeys(ctx, r.bucket, m.HLSPrefix())
		if err != nil {
			logger.Error.Printf("reclaimer: list HLS objects for %s: %v", logger.SanitizeForLog(m.ID), err)
			continue
		}
		keys = append(keys, hlsKeys...)

		if err := r.objects.RemoveAll(ctx, r.bucket, keys); err != nil {
			logger.Error.Printf("reclaimer: delete storage for %s: %v", logger.SanitizeForLog(m.ID), err)
			continue
		}
		if err := r.store.Delete(m.ID); err != nil {
			logger.Error.Printf("reclaimer: delete media row %s: %v", logger.SanitizeForLog(m.ID), err)
			continue
		}

		reclaimed++
		logger.Info.Printf("reclaimed stale posted media %s (%d object(s))", logger.SanitizeForLog(m.ID), len(keys))
	}

	if reclaimed > 0 {
		logger.Info.Printf("reclaimer sweep finished, %d item(s) reclaimed", reclaimed)
	}
	return nil
}
