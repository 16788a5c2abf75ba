package genstore

import (
	"errors"
	"fmt"

	"github.com/jward/genstore/internal/kv"
)

var (
	// ErrClosed is returned by operations that need an open store.
	ErrClosed = errors.New("genstore: store is not open")
	// ErrVersion matches every *VersionError.
	ErrVersion = errors.New("genstore: unsupported schema version")
	// ErrUpgradeDeclined is returned by Open when the upgrade confirmation
	// hook refuses an upgrade. The store is left closed and untouched.
	ErrUpgradeDeclined = errors.New("genstore: upgrade declined")
	// ErrNoTransaction is returned by mutations called with a nil *Txn.
	ErrNoTransaction = errors.New("genstore: no transaction")
	// ErrTxnFinished is returned when a committed or aborted transaction is
	// used again.
	ErrTxnFinished = errors.New("genstore: transaction already finished")
	// ErrAbortNotPossible is returned by Abort for batch transactions.
	ErrAbortNotPossible = errors.New("genstore: batch transactions cannot be aborted")
	// ErrBatchActive is returned by Begin while a batch transaction is open.
	ErrBatchActive = errors.New("genstore: a batch transaction is already open")
	// ErrIndexSuspended is returned by queries that need an index a batch
	// transaction has suspended.
	ErrIndexSuspended = kv.ErrIndexSuspended
)

// VersionError reports an on-disk schema version this build cannot open.
type VersionError struct {
	Found int
	Min   int
	Max   int
	// Reason is set when the version is in range but cannot be used, e.g.
	// an upgrade is needed and the store was opened read-only.
	Reason string
}

func (e *VersionError) Error() string {
	msg := fmt.Sprintf("genstore: schema version %d is outside the supported range [%d, %d]", e.Found, e.Min, e.Max)
	if e.Reason != "" {
		msg = fmt.Sprintf("genstore: schema version %d: %s", e.Found, e.Reason)
	}
	return msg
}

func (e *VersionError) Is(target error) bool {
	return target == ErrVersion
}

// StoreError wraps a storage engine failure seen at the store boundary. Use
// errors.Is with the kv conditions (kv.ErrRecoveryRequired, kv.ErrAccess,
// kv.ErrNotFound, kv.ErrInvalid) to classify it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("genstore: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// storeErr wraps err for the caller and, when the engine asks for recovery,
// leaves a marker so the next Open checks the store first.
func (db *DB) storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	var ee *kv.EngineError
	if !errors.As(err, &ee) {
		return fmt.Errorf("genstore: %s: %w", op, err)
	}
	db.log.Errorw("storage engine error", "op", op, "error", err)
	if errors.Is(err, kv.ErrRecoveryRequired) {
		if merr := writeRecoveryMarker(db.dir); merr != nil {
			db.log.Warnw("could not write recovery marker", "dir", db.dir, "error", merr)
		}
	}
	return &StoreError{Op: op, Err: err}
}
