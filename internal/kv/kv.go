// Package kv is the storage environment beneath the object store: named
// byte-keyed tables on a pluggable backend, plus secondary indices that are
// kept in step with their primary table inside every write transaction.
package kv

import (
	"errors"
	"fmt"
	"regexp"
)

// Conditions reported by backends. Every backend failure is returned as an
// *EngineError that matches one of these with errors.Is.
var (
	ErrStorage          = errors.New("kv: storage engine error")
	ErrRecoveryRequired = errors.New("kv: recovery required")
	ErrAccess           = errors.New("kv: access denied")
	ErrNotFound         = errors.New("kv: table or page not found")
	ErrInvalid          = errors.New("kv: invalid argument")
)

// ErrIndexSuspended is returned when a suspended secondary index is queried.
var ErrIndexSuspended = errors.New("kv: index suspended")

// ErrReadOnly is returned by write operations on a read-only environment.
var ErrReadOnly = errors.New("kv: environment is read-only")

// EngineError is a classified backend failure.
type EngineError struct {
	Op   string
	Cond error
	Err  error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("kv: %s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() []error {
	return []error{ErrStorage, e.Cond, e.Err}
}

func engineErr(op string, cond, err error) error {
	if err == nil {
		return nil
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		return err
	}
	return &EngineError{Op: op, Cond: cond, Err: err}
}

// Pair is one row of a table.
type Pair struct {
	Key   []byte
	Value []byte
}

// Backend is a storage engine holding named tables.
type Backend interface {
	// Begin starts a transaction. Read transactions see a consistent view
	// and must be ended with Rollback.
	Begin(writable bool) (Tx, error)
	CreateTable(name string) error
	DropTable(name string) error
	TableExists(name string) (bool, error)
	// Check verifies on-disk integrity and is used after an unclean
	// shutdown left a recovery marker behind.
	Check() error
	Close() error
}

// Tx is a backend transaction.
type Tx interface {
	// Get returns nil, nil when the key is absent.
	Get(table string, key []byte) ([]byte, error)
	Put(table string, key, value []byte) error
	// Delete of an absent key is not an error.
	Delete(table string, key []byte) error
	// Page returns up to limit rows whose key starts with prefix and sorts
	// strictly after the given key (nil for the first page), in key order.
	Page(table string, prefix, after []byte, limit int) ([]Pair, error)
	Commit() error
	Rollback() error
}

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Options configures a backend.
type Options struct {
	ReadOnly bool
	// InMemory keeps the data out of the filesystem. Only badger supports it.
	InMemory bool
	Logger   Logger
}

// Logger receives backend diagnostics.
type Logger interface {
	Debugf(template string, args ...any)
	Infof(template string, args ...any)
	Warnf(template string, args ...any)
	Errorf(template string, args ...any)
}

// OpenBackend opens the named backend rooted at dir.
func OpenBackend(name, dir string, opts Options) (Backend, error) {
	switch name {
	case "", BackendSQLite:
		return OpenSQLite(dir, opts)
	case BackendBadger:
		return OpenBadger(dir, opts)
	}
	return nil, &EngineError{Op: "open", Cond: ErrInvalid, Err: fmt.Errorf("unknown backend %q", name)}
}

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func validateTable(name string) error {
	if !tableNamePattern.MatchString(name) {
		return &EngineError{Op: "table " + name, Cond: ErrInvalid, Err: fmt.Errorf("invalid table name %q", name)}
	}
	return nil
}

// prefixEnd returns the smallest key greater than every key with the given
// prefix, or nil if there is none.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
