// Package sweeper reconciles tracked object-store writes against the
// ledger and reclaims storage for writes that never got confirmed.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mvail/threadledger/internal/storage"
	"github.com/mvail/threadledger/pkg/ledger"
	"github.com/mvail/threadledger/pkg/types"
)

// ErrSweepInProgress is returned by RunOnce when a sweep is already
// running. Timer ticks that hit a running sweep are skipped.
var ErrSweepInProgress = errors.New("sweep already in progress")

// TrackStore is the slice of the tracking store the sweeper needs.
type TrackStore interface {
	StaleEntries(ctx context.Context, maxAge time.Duration) ([]types.TrackedWrite, error)
	OrphanedEntries(ctx context.Context) ([]types.TrackedWrite, error)
	Confirm(ctx context.Context, objectID string) error
	MarkOrphaned(ctx context.Context, objectID string) error
	MarkUnpinned(ctx context.Context, objectID string) error
}

// Config holds sweeper configuration.
type Config struct {
	// Interval between sweeps. Default: 5m
	Interval time.Duration

	// GraceWindow is the minimum age a pending write must reach before
	// it is eligible for orphan classification. Default: 15m
	GraceWindow time.Duration

	// DryRun classifies writes but skips reclamation.
	DryRun bool

	// MaxConcurrent bounds parallel ledger queries. Default: 4
	MaxConcurrent int

	// Logger for structured logging. Default: slog.Default()
	Logger *slog.Logger
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Interval == 0 {
		c.Interval = 5 * time.Minute
	}
	if c.GraceWindow == 0 {
		c.GraceWindow = 15 * time.Minute
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = 4
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Checked   int `json:"checked"`   // Stale pending writes examined
	Confirmed int `json:"confirmed"` // Promoted to confirmed
	Orphaned  int `json:"orphaned"`  // Demoted to orphaned
	Unpinned  int `json:"unpinned"`  // Orphaned objects reclaimed
	Errors    int `json:"errors"`    // Per-entry failures (entry left for the next sweep)
}

// Sweeper runs the periodic reconciliation task. A single background
// loop; sweeps never overlap themselves.
type Sweeper struct {
	cfg     Config
	store   TrackStore
	ledger  ledger.Reader
	objects storage.ObjectStore
	logger  *slog.Logger

	mu      sync.Mutex
	running bool

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func New(cfg Config, store TrackStore, ledgerReader ledger.Reader, objects storage.ObjectStore) *Sweeper {
	cfg.ApplyDefaults()
	return &Sweeper{
		cfg:     cfg,
		store:   store,
		ledger:  ledgerReader,
		objects: objects,
		logger:  cfg.Logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start launches the periodic loop. It returns immediately; Stop (or
// ctx cancellation) ends the loop.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.doneCh)

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				result, err := s.RunOnce(ctx)
				if errors.Is(err, ErrSweepInProgress) {
					s.logger.Debug("sweep still running, skipping tick")
					continue
				}
				if err != nil {
					s.logger.Error("sweep failed", "error", err)
					continue
				}
				if result.Checked > 0 || result.Unpinned > 0 {
					s.logger.Info("sweep complete",
						"checked", result.Checked,
						"confirmed", result.Confirmed,
						"orphaned", result.Orphaned,
						"unpinned", result.Unpinned,
						"errors", result.Errors)
				}
			}
		}
	}()
}

// Stop ends the periodic loop and waits for it to exit. A sweep in
// flight finishes first.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

// RunOnce performs a single sweep: classify every stale pending write
// against the ledger, then reclaim objects that were already orphaned
// when the sweep began. All confirmation checks complete before any
// deletion starts, so a write confirmed in this sweep is never deleted
// by it. Per-entry failures are counted and logged, never abort the
// batch.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return SweepResult{}, ErrSweepInProgress
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	// Snapshot the reclamation queue before classification: only writes
	// orphaned by a previous sweep get unpinned in this one.
	orphaned, err := s.store.OrphanedEntries(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("fetch orphaned entries: %w", err)
	}

	var result SweepResult

	classified, err := s.classify(ctx, &result)
	if err != nil {
		return result, err
	}
	result.Checked = classified

	if s.cfg.DryRun {
		s.logger.Debug("dry run: skipping reclamation", "orphaned", len(orphaned))
		return result, nil
	}

	s.reclaim(ctx, orphaned, &result)

	return result, nil
}

// classify promotes or demotes every stale pending write based on a
// fresh ledger query. Returns the number of entries examined.
func (s *Sweeper) classify(ctx context.Context, result *SweepResult) (int, error) {
	stale, err := s.store.StaleEntries(ctx, s.cfg.GraceWindow)
	if err != nil {
		return 0, fmt.Errorf("fetch stale entries: %w", err)
	}

	var confirmed, orphaned, failures atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrent)

	for _, w := range stale {
		g.Go(func() error {
			count, err := s.ledger.ConfirmedCount(gctx, w.ThreadID, w.Sender)
			if err != nil {
				failures.Add(1)
				s.logger.Warn("ledger query failed, entry left pending",
					"objectID", w.ObjectID, "threadID", w.ThreadID, "error", err)
				return nil
			}

			if count > w.MessageIndex {
				if err := s.store.Confirm(gctx, w.ObjectID); err != nil {
					failures.Add(1)
					s.logger.Warn("failed to confirm write", "objectID", w.ObjectID, "error", err)
					return nil
				}
				confirmed.Add(1)
				return nil
			}

			if err := s.store.MarkOrphaned(gctx, w.ObjectID); err != nil {
				failures.Add(1)
				s.logger.Warn("failed to mark write orphaned", "objectID", w.ObjectID, "error", err)
				return nil
			}
			orphaned.Add(1)
			s.logger.Info("write orphaned",
				"objectID", w.ObjectID,
				"threadID", w.ThreadID,
				"index", w.MessageIndex,
				"age", time.Since(w.CreatedAt).Round(time.Second))
			return nil
		})
	}

	// Workers never return errors; per-entry failures are isolated.
	_ = g.Wait()

	result.Confirmed += int(confirmed.Load())
	result.Orphaned += int(orphaned.Load())
	result.Errors += int(failures.Load())

	return len(stale), nil
}

// reclaim unpins the backing object for each orphaned write. A missing
// object counts as reclaimed.
func (s *Sweeper) reclaim(ctx context.Context, orphaned []types.TrackedWrite, result *SweepResult) {
	for _, w := range orphaned {
		if err := ctx.Err(); err != nil {
			return
		}

		if err := s.objects.Unpin(ctx, w.ObjectID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			result.Errors++
			s.logger.Warn("failed to unpin object", "objectID", w.ObjectID, "error", err)
			continue
		}

		if err := s.store.MarkUnpinned(ctx, w.ObjectID); err != nil {
			result.Errors++
			s.logger.Warn("failed to mark write unpinned", "objectID", w.ObjectID, "error", err)
			continue
		}

		result.Unpinned++
		s.logger.Info("object reclaimed", "objectID", w.ObjectID, "threadID", w.ThreadID)
	}
}
