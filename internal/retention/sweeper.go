package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stayverify/stayverify/internal/model"
	"github.com/stayverify/stayverify/internal/store"
)

// DefaultRetention is how long guest ID documents are kept after checkout.
const DefaultRetention = 60 * 24 * time.Hour

const sweepInterval = 1 * time.Hour

// DocumentRemover deletes stored document objects. Removal is best effort;
// the database purge proceeds even when the object store is unreachable.
type DocumentRemover interface {
	Remove(ctx context.Context, key string) error
}

// Sweeper purges guest ID documents once a booking's checkout date has
// fallen outside the retention window. Purging clears the document
// reference and replaces the verification text with a sentinel, while the
// guest's decision and all booking metadata stay intact.
type Sweeper struct {
	mu        sync.RWMutex
	subs      *store.SubmissionStore
	docs      DocumentRemover
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
	sweeping  atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewSweeper(subs *store.SubmissionStore, docs DocumentRemover, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		subs:      subs,
		docs:      docs,
		retention: DefaultRetention,
		logger:    logger.With("component", "retention"),
		now:       time.Now,
	}
}

// Start begins the periodic sweep loop. One sweep runs immediately so a
// restarted server does not wait a full interval to catch up.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		s.runSweep(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runSweep(ctx)
			}
		}
	}()
}

// Stop gracefully stops the sweep loop.
func (s *Sweeper) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Sweeper) runSweep(ctx context.Context) {
	n, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error("retention sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("retention sweep purged submissions", "count", n)
	}
}

// Sweep purges every eligible submission and returns how many were purged.
// It is idempotent: a purged guest no longer holds a document, so a second
// pass finds nothing to do.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	// The ticker loop and the manual cleanup endpoint share this method;
	// a run already in flight makes a second one a no-op.
	if !s.sweeping.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer s.sweeping.Store(false)

	cutoff := s.now().Add(-s.retention)
	eligible, err := s.subs.ListPurgeEligible(cutoff)
	if err != nil {
		return 0, fmt.Errorf("list purge eligible: %w", err)
	}

	purged := 0
	for i := range eligible {
		if ctx.Err() != nil {
			return purged, ctx.Err()
		}
		if err := s.purgeSubmission(ctx, eligible[i].ID); err != nil {
			s.logger.Error("failed to purge submission", "submission_id", eligible[i].ID, "error", err)
			continue
		}
		purged++
	}
	return purged, nil
}

// purgeSubmission clears documents on one submission under the version
// guard, re-reading and retrying if a reviewer wrote concurrently.
func (s *Sweeper) purgeSubmission(ctx context.Context, id int64) error {
	for attempt := 1; ; attempt++ {
		sub, err := s.subs.GetByID(id)
		if err != nil {
			return err
		}
		if sub == nil {
			return nil
		}

		changed := false
		for i := range sub.Guests {
			g := &sub.Guests[i]
			if !g.HasDocument() {
				continue
			}
			s.removeDocument(ctx, g.IDDocumentURL)
			g.IDDocumentURL = ""
			g.VerificationSummary = model.PurgedSentinel
			g.VerificationIssues = model.PurgedSentinel
			changed = true
		}
		if !changed {
			return nil
		}

		// Status and the DocumentReceived latch are deliberately untouched:
		// purge removes evidence, not history.
		_, err = s.subs.UpdateGuests(sub.ID, sub.Version, sub.Guests, sub.Status, sub.DocumentReceived)
		if errors.Is(err, store.ErrStale) && attempt < 3 {
			continue
		}
		return err
	}
}

func (s *Sweeper) removeDocument(ctx context.Context, key string) {
	if s.docs == nil {
		return
	}
	if err := s.docs.Remove(ctx, key); err != nil {
		s.logger.Warn("failed to remove stored document", "key", key, "error", err)
	}
}
