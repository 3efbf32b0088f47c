package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/fieldline/fieldgraph/internal/logger"
	"github.com/fieldline/fieldgraph/internal/models"
	"github.com/fieldline/fieldgraph/internal/types"
)

// IdempotencyLedger records which write requests have already executed and
// what they returned, keyed by the caller-supplied idempotency key. The
// unique key constraint is what makes "exactly one execution" hold under
// concurrent callers: every write inserts its ledger row inside its own
// transaction, and all but one of the racers roll back on the duplicate key.
type IdempotencyLedger struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIdempotencyLedger(db *gorm.DB, baseLog *logger.Logger) *IdempotencyLedger {
	return &IdempotencyLedger{db: db, log: baseLog.With("store", "ledger")}
}

func (l *IdempotencyLedger) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return l.db
}

// Lookup returns the committed record for key, or nil when the key is unseen.
func (l *IdempotencyLedger) Lookup(ctx context.Context, tx *gorm.DB, key string) (*models.IdempotencyRecord, error) {
	var rec models.IdempotencyRecord
	err := l.handle(tx).WithContext(ctx).Where("idempotency_key = ?", key).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, types.Storage(err)
	}
	return &rec, nil
}

// Record persists the result of an executed write under key, inside the
// write's own transaction. A duplicate key surfaces as gorm.ErrDuplicatedKey
// for the caller to resolve as a replay.
func (l *IdempotencyLedger) Record(ctx context.Context, tx *gorm.DB, key, fingerprint string, result UpsertResult) error {
	payload, err := models.JSONFrom(result)
	if err != nil {
		return types.Storage(err)
	}
	rec := models.IdempotencyRecord{
		Key:         key,
		Fingerprint: fingerprint,
		Result:      payload,
	}
	return l.handle(tx).WithContext(ctx).Create(&rec).Error
}

// Replay decodes the stored result for a key seen before, rejecting a replay
// whose payload differs from the original.
func (l *IdempotencyLedger) Replay(rec *models.IdempotencyRecord, fingerprint string) (UpsertResult, error) {
	if rec.Fingerprint != fingerprint {
		return UpsertResult{}, types.Conflictf("idempotency key %q was recorded with a different payload", rec.Key)
	}
	var result UpsertResult
	if err := json.Unmarshal(rec.Result.JSON, &result); err != nil {
		return UpsertResult{}, types.Storage(err)
	}
	return result, nil
}

// RecordAndCheck executes compute at most once for key. A previously
// recorded key returns the stored result without invoking compute; a
// concurrent racer on an unseen key either blocks on the winner's row lock
// until the winner commits or observes its committed record; it never runs a
// second independent execution.
func (l *IdempotencyLedger) RecordAndCheck(ctx context.Context, key, fingerprint string, compute func(tx *gorm.DB) (UpsertResult, error)) (UpsertResult, bool, error) {
	// Fast path: a committed record answers without opening a transaction.
	if rec, err := l.Lookup(ctx, nil, key); err != nil {
		return UpsertResult{}, false, err
	} else if rec != nil {
		result, err := l.Replay(rec, fingerprint)
		return result, true, err
	}

	var result UpsertResult
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if result, err = compute(tx); err != nil {
			return err
		}
		return l.Record(ctx, tx, key, fingerprint, result)
	})
	if err == nil {
		return result, false, nil
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Lost the race: our whole transaction rolled back, the winner's
		// record answers for us.
		l.log.Debug("idempotency replay after losing insert race", "key", key)
		return l.awaitWinner(ctx, key, fingerprint)
	}

	var ge *types.GraphError
	if errors.As(err, &ge) {
		return UpsertResult{}, false, err
	}
	return UpsertResult{}, false, types.Storage(err)
}

// awaitWinner re-reads the record committed by the racer that won the key.
// The duplicate-key error already implies the winner committed on engines
// with blocking unique checks; the brief poll covers the rest.
func (l *IdempotencyLedger) awaitWinner(ctx context.Context, key, fingerprint string) (UpsertResult, bool, error) {
	for attempt := 0; attempt < 50; attempt++ {
		rec, err := l.Lookup(ctx, nil, key)
		if err != nil {
			return UpsertResult{}, false, err
		}
		if rec != nil {
			result, err := l.Replay(rec, fingerprint)
			return result, true, err
		}
		select {
		case <-ctx.Done():
			return UpsertResult{}, false, types.Storage(ctx.Err())
		case <-time.After(20 * time.Millisecond):
		}
	}
	return UpsertResult{}, false, types.Storage(errors.New("idempotency record not visible after losing insert race"))
}
