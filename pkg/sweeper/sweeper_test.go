package sweeper_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvail/threadledger/internal/storage"
	"github.com/mvail/threadledger/internal/storage/memory"
	"github.com/mvail/threadledger/internal/storage/sqlite"
	"github.com/mvail/threadledger/pkg/ledger"
	"github.com/mvail/threadledger/pkg/sweeper"
	"github.com/mvail/threadledger/pkg/types"
)

type fixture struct {
	store   *sqlite.TrackStore
	reader  *ledger.StaticReader
	objects *memory.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return &fixture{
		store:   store,
		reader:  ledger.NewStaticReader(),
		objects: memory.New(),
	}
}

// newSweeper builds a sweeper whose grace window makes every pending row
// immediately stale.
func (f *fixture) newSweeper(cfg sweeper.Config) *sweeper.Sweeper {
	if cfg.GraceWindow == 0 {
		cfg.GraceWindow = -time.Minute
	}
	return sweeper.New(cfg, f.store, f.reader, f.objects)
}

// putTracked stores an object and tracks it as pending.
func (f *fixture) putTracked(t *testing.T, key, threadID string, index uint64, payload []byte) string {
	t.Helper()

	contentID, err := f.objects.Put(context.Background(), key, payload, nil)
	require.NoError(t, err)
	require.NoError(t, f.store.Track(context.Background(), contentID, threadID, index, "0xalice"))
	return contentID
}

func (f *fixture) status(t *testing.T, objectID string) types.WriteStatus {
	t.Helper()

	w, err := f.store.Get(context.Background(), objectID)
	require.NoError(t, err)
	return w.Status
}

func TestSweeper_ConfirmsWhenLedgerCaughtUp(t *testing.T) {
	f := newFixture(t)
	s := f.newSweeper(sweeper.Config{})

	objectID := f.putTracked(t, "threads/a", "thread-a", 0, []byte("log"))
	f.reader.SetCount("thread-a", 1)

	result, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Checked)
	assert.Equal(t, 1, result.Confirmed)
	assert.Equal(t, 0, result.Orphaned)
	assert.Equal(t, types.StatusConfirmed, f.status(t, objectID))

	// A confirmed write's object is never reclaimed.
	_, err = f.objects.Get(context.Background(), "threads/a")
	assert.NoError(t, err)
}

func TestSweeper_OrphansThenReclaims(t *testing.T) {
	f := newFixture(t)
	s := f.newSweeper(sweeper.Config{})

	objectID := f.putTracked(t, "threads/a", "thread-a", 0, []byte("log"))
	// Ledger still confirms nothing.

	// First sweep: classification only. The write becomes orphaned but
	// is not reclaimed in the same sweep it was classified.
	result, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Orphaned)
	assert.Equal(t, 0, result.Unpinned)
	assert.Equal(t, types.StatusOrphaned, f.status(t, objectID))

	// Second sweep: reclamation.
	result, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Unpinned)
	assert.Equal(t, types.StatusUnpinned, f.status(t, objectID))

	_, err = f.objects.Get(context.Background(), "threads/a")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSweeper_GraceWindowShieldsFreshWrites(t *testing.T) {
	f := newFixture(t)
	s := sweeper.New(sweeper.Config{GraceWindow: 15 * time.Minute}, f.store, f.reader, f.objects)

	objectID := f.putTracked(t, "threads/a", "thread-a", 0, []byte("log"))

	result, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Checked)
	assert.Equal(t, types.StatusPending, f.status(t, objectID))
}

func TestSweeper_DryRunSkipsReclamation(t *testing.T) {
	f := newFixture(t)
	s := f.newSweeper(sweeper.Config{DryRun: true})

	objectID := f.putTracked(t, "threads/a", "thread-a", 0, []byte("log"))

	// Two dry sweeps: the write is classified orphaned but the object
	// survives.
	_, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	result, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, result.Unpinned)
	assert.Equal(t, types.StatusOrphaned, f.status(t, objectID))
	_, err = f.objects.Get(context.Background(), "threads/a")
	assert.NoError(t, err)
}

func TestSweeper_ConfirmedInSameSweepNeverDeleted(t *testing.T) {
	f := newFixture(t)
	s := f.newSweeper(sweeper.Config{})

	confirmedID := f.putTracked(t, "threads/a", "thread-a", 0, []byte("confirmed"))
	orphanID := f.putTracked(t, "threads/b", "thread-b", 0, []byte("orphan"))
	f.reader.SetCount("thread-a", 1)

	// Sweep 1 classifies both; sweep 2 reclaims only the orphan.
	_, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	result, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Unpinned)
	assert.Equal(t, types.StatusConfirmed, f.status(t, confirmedID))
	assert.Equal(t, types.StatusUnpinned, f.status(t, orphanID))

	_, err = f.objects.Get(context.Background(), "threads/a")
	assert.NoError(t, err, "confirmed object must survive")
}

// failingReader fails ledger queries for one thread.
type failingReader struct {
	inner      *ledger.StaticReader
	failThread string
}

func (r *failingReader) ConfirmedCount(ctx context.Context, threadID, participant string) (uint64, error) {
	if threadID == r.failThread {
		return 0, errors.New("ledger unreachable")
	}
	return r.inner.ConfirmedCount(ctx, threadID, participant)
}

func TestSweeper_PerEntryErrorsAreIsolated(t *testing.T) {
	f := newFixture(t)
	reader := &failingReader{inner: f.reader, failThread: "thread-bad"}
	s := sweeper.New(sweeper.Config{GraceWindow: -time.Minute}, f.store, reader, f.objects)

	badID := f.putTracked(t, "threads/bad", "thread-bad", 0, []byte("bad"))
	goodID := f.putTracked(t, "threads/good", "thread-good", 0, []byte("good"))
	f.reader.SetCount("thread-good", 1)

	result, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Checked)
	assert.Equal(t, 1, result.Confirmed)
	assert.Equal(t, 1, result.Errors)

	// The failing entry stays pending for the next sweep.
	assert.Equal(t, types.StatusPending, f.status(t, badID))
	assert.Equal(t, types.StatusConfirmed, f.status(t, goodID))
}

// blockingReader blocks ConfirmedCount until released.
type blockingReader struct {
	started chan struct{}
	release chan struct{}
}

func (r *blockingReader) ConfirmedCount(ctx context.Context, threadID, participant string) (uint64, error) {
	close(r.started)
	<-r.release
	return 1, nil
}

func TestSweeper_OverlappingRunsAreRejected(t *testing.T) {
	f := newFixture(t)
	reader := &blockingReader{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	s := sweeper.New(sweeper.Config{GraceWindow: -time.Minute}, f.store, reader, f.objects)

	f.putTracked(t, "threads/a", "thread-a", 0, []byte("log"))

	done := make(chan error, 1)
	go func() {
		_, err := s.RunOnce(context.Background())
		done <- err
	}()

	<-reader.started
	_, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, sweeper.ErrSweepInProgress)

	close(reader.release)
	require.NoError(t, <-done)
}

func TestSweeper_StartStop(t *testing.T) {
	f := newFixture(t)
	s := f.newSweeper(sweeper.Config{Interval: 10 * time.Millisecond})

	objectID := f.putTracked(t, "threads/a", "thread-a", 0, []byte("log"))
	f.reader.SetCount("thread-a", 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)

	require.Eventually(t, func() bool {
		return f.status(t, objectID) == types.StatusConfirmed
	}, 2*time.Second, 10*time.Millisecond)

	s.Stop()
}
