package thread

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mvail/threadledger/internal/storage"
	"github.com/mvail/threadledger/pkg/ledger"
	"github.com/mvail/threadledger/pkg/types"
	"github.com/mvail/threadledger/pkg/wallet"
)

// Tracker registers object-store writes for later reconciliation.
type Tracker interface {
	Track(ctx context.Context, objectID, threadID string, index uint64, sender string) error
}

// Engine implements the ledger-brokered append protocol. The ledger's
// confirmed count is the serialization point: every append re-reads it,
// appends at exactly that position, and leaves losing concurrent writes
// for the sweeper to reclaim. The engine never writes to the ledger;
// committing the new state on-chain is the caller's responsibility.
type Engine struct {
	objects  storage.ObjectStore
	ledger   ledger.Reader
	tracker  Tracker
	verifier wallet.Verifier
	logger   *slog.Logger
	now      func() time.Time
}

// Config holds the engine's collaborators.
type Config struct {
	Objects  storage.ObjectStore
	Ledger   ledger.Reader
	Tracker  Tracker
	Verifier wallet.Verifier

	// Logger for structured logging. Default: slog.Default()
	Logger *slog.Logger

	// Now is the clock used for LastUpdated. Default: time.Now
	Now func() time.Time
}

func NewEngine(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Verifier == nil {
		cfg.Verifier = wallet.Ed25519Verifier{}
	}
	return &Engine{
		objects:  cfg.Objects,
		ledger:   cfg.Ledger,
		tracker:  cfg.Tracker,
		verifier: cfg.Verifier,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
}

// ThreadKey returns the object-store key for a thread's log.
func ThreadKey(threadID string) string {
	return "threads/" + threadID
}

// AppendResult is the outcome of a successful append.
type AppendResult struct {
	ObjectID       string
	Log            *types.ThreadLog
	ConfirmedCount uint64
}

// Append validates and appends one signed entry to a thread log.
//
// The entry's index and prev_hash are caller-supplied claims and are
// validated, never trusted: the entry must land at exactly the
// ledger-confirmed position and must link to the hash of the last
// confirmed entry. Local entries beyond the confirmed count are remnants
// of prior unconfirmed attempts and are truncated before validation.
//
// One object-store write and one tracking insert per call, no implicit
// retry. A crash between the two leaves the write untracked and outside
// the sweeper's reach; this is an accepted operational gap.
func (e *Engine) Append(ctx context.Context, threadID string, participants []string, entry types.MessageEntry) (*AppendResult, error) {
	if got := EntryHash(entry); got != entry.Hash {
		return nil, fmt.Errorf("%w: computed %s, entry claims %s", ErrHashMismatch, got, entry.Hash)
	}
	if err := e.verifier.Verify(entry.Sender, SigningContent(threadID, entry), entry.Signature); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	confirmed, err := e.ledger.ConfirmedCount(ctx, threadID, entry.Sender)
	if err != nil {
		return nil, fmt.Errorf("query confirmed count for thread %s: %w", threadID, err)
	}

	log, err := e.loadForAppend(ctx, threadID, participants, confirmed)
	if err != nil {
		return nil, err
	}

	if entry.Index != confirmed {
		return nil, fmt.Errorf("%w: expected index %d, got %d", ErrIndexMismatch, confirmed, entry.Index)
	}

	if confirmed == 0 {
		if entry.PrevHash != ZeroHash {
			return nil, fmt.Errorf("%w: first entry must link to the zero hash, got %s", ErrChainBroken, entry.PrevHash)
		}
	} else {
		want := EntryHash(log.Messages[confirmed-1])
		if entry.PrevHash != want {
			return nil, fmt.Errorf("%w: expected prev hash %s, got %s", ErrChainBroken, want, entry.PrevHash)
		}
	}

	log.Messages = append(log.Messages, entry)
	log.Version++
	log.LastUpdated = e.now().UTC()

	data, err := EncodeThreadLog(log)
	if err != nil {
		return nil, err
	}

	key := ThreadKey(threadID)
	objectID, err := e.objects.Put(ctx, key, data, storage.Metadata{
		"thread-id":     threadID,
		"message-index": strconv.FormatUint(entry.Index, 10),
		"sender":        entry.Sender,
	})
	if err != nil {
		return nil, fmt.Errorf("persist thread %s: %w", threadID, err)
	}

	if err := e.tracker.Track(ctx, objectID, threadID, entry.Index, entry.Sender); err != nil {
		return nil, fmt.Errorf("track write %s: %w", objectID, err)
	}

	e.logger.Info("appended entry",
		"threadID", threadID,
		"index", entry.Index,
		"sender", entry.Sender,
		"objectID", objectID,
		"version", log.Version)

	return &AppendResult{
		ObjectID:       objectID,
		Log:            log,
		ConfirmedCount: confirmed,
	}, nil
}

// loadForAppend reconciles the persisted log against the ledger-confirmed
// count and returns the in-memory log the new entry will be validated
// against.
func (e *Engine) loadForAppend(ctx context.Context, threadID string, participants []string, confirmed uint64) (*types.ThreadLog, error) {
	if confirmed == 0 {
		// Fresh thread as far as the ledger is concerned. Anything at
		// the key is by definition unconfirmed and disposable; the
		// tracked write for it will be reclaimed by the sweeper.
		if err := e.objects.Delete(ctx, ThreadKey(threadID)); err != nil && !errors.Is(err, storage.ErrNotFound) {
			e.logger.Warn("failed to discard unconfirmed thread content", "threadID", threadID, "error", err)
		}
		return &types.ThreadLog{
			ThreadID:     threadID,
			Participants: CanonicalParticipants(participants),
		}, nil
	}

	data, err := e.objects.Get(ctx, ThreadKey(threadID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("thread %s: ledger confirms %d entries but no log is stored: %w", threadID, confirmed, err)
		}
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	}

	log, err := DecodeThreadLog(data)
	if err != nil {
		return nil, fmt.Errorf("thread %s: %w", threadID, err)
	}

	// Entries past the confirmed count are unconfirmed writes from a
	// prior, possibly-crashed attempt. They must not be trusted as the
	// chain tail.
	if uint64(len(log.Messages)) > confirmed {
		e.logger.Info("truncating unconfirmed entries",
			"threadID", threadID,
			"localLength", len(log.Messages),
			"confirmedCount", confirmed)
		log.Messages = log.Messages[:confirmed]
	}
	if uint64(len(log.Messages)) < confirmed {
		return nil, fmt.Errorf("thread %s: ledger confirms %d entries but log holds %d", threadID, confirmed, len(log.Messages))
	}

	return log, nil
}

// Load fetches and decodes the persisted log for a thread.
func (e *Engine) Load(ctx context.Context, threadID string) (*types.ThreadLog, error) {
	data, err := e.objects.Get(ctx, ThreadKey(threadID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	}
	return DecodeThreadLog(data)
}
