package genstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/jward/genstore/internal/kv"
	"github.com/jward/genstore/internal/model"
	"github.com/jward/genstore/internal/signals"
	"github.com/jward/genstore/internal/undo"
)

// State is the lifecycle state of a DB.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ProgressFunc receives progress of long scans. done never decreases.
type ProgressFunc func(done, total int)

// DB is an open genealogical store. It is designed for a single writer: the
// transaction and undo state it keeps is not safe for concurrent mutation.
type DB struct {
	dir   string
	log   *zap.SugaredLogger
	env   *kv.Env
	state State

	backend        string
	readOnly       bool
	inMemory       bool
	undoCapacity   int
	lang           language.Tag
	idFormats      map[model.Kind]string
	upgrades       []Upgrade
	confirmUpgrade func(from, to int) bool
	upgradeProg    ProgressFunc
	now            func() time.Time

	history       *undo.History
	bus           *signals.Bus
	batch         *Txn
	abortPossible bool

	idMu       sync.Mutex
	idCounters map[model.Kind]int

	collMu   sync.Mutex
	collator *collate.Collator

	metaMu        sync.Mutex
	genderStats   *model.GenderStats
	vocab         map[Vocabulary]map[string]struct{}
	surnames      []string
	bookmarks     map[model.Kind][]model.Handle
	defaultPerson model.Handle
}

// Option configures a DB.
type Option func(*DB)

// WithBackend selects the storage engine: "sqlite" (default) or "badger".
func WithBackend(name string) Option {
	return func(db *DB) {
		db.backend = name
	}
}

// ReadOnly opens the store without write access. Every mutation becomes a
// silent no-op.
func ReadOnly() Option {
	return func(db *DB) {
		db.readOnly = true
	}
}

// InMemory keeps the store out of the filesystem. It requires the badger
// backend and is meant for tests and scratch work.
func InMemory() Option {
	return func(db *DB) {
		db.inMemory = true
		db.backend = kv.BackendBadger
	}
}

// WithUndoCapacity bounds the number of transactions kept for undo.
func WithUndoCapacity(n int) Option {
	return func(db *DB) {
		db.undoCapacity = n
	}
}

// WithLanguage sets the BCP 47 language used to collate sorted handle lists
// and the surname list. Unparseable tags fall back to English.
func WithLanguage(tag string) Option {
	return func(db *DB) {
		t, err := language.Parse(tag)
		if err != nil {
			t = language.English
		}
		db.lang = t
	}
}

// WithLogger routes store diagnostics to l.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(db *DB) {
		if l != nil {
			db.log = l
		}
	}
}

// WithIDFormat sets the printf template used to generate Gramps IDs for a
// kind, e.g. "I%04d".
func WithIDFormat(k model.Kind, format string) Option {
	return func(db *DB) {
		db.idFormats[k] = format
	}
}

// WithUpgrades replaces the upgrade chain run when an older store is opened.
func WithUpgrades(chain ...Upgrade) Option {
	return func(db *DB) {
		db.upgrades = chain
	}
}

// WithUpgradeConfirm installs a hook asked before an upgrade runs. Returning
// false makes Open fail with ErrUpgradeDeclined.
func WithUpgradeConfirm(fn func(from, to int) bool) Option {
	return func(db *DB) {
		db.confirmUpgrade = fn
	}
}

// WithUpgradeProgress receives progress while upgrades run.
func WithUpgradeProgress(fn ProgressFunc) Option {
	return func(db *DB) {
		db.upgradeProg = fn
	}
}

func withClock(now func() time.Time) Option {
	return func(db *DB) {
		db.now = now
	}
}

// Open loads the store in dir, creating it when the directory holds none.
// Steps run in order: backend, metadata, version check, primary tables,
// secondary indices, pending upgrades, undo history, lock file and cached
// metadata. Any failure leaves the store closed.
func Open(dir string, opts ...Option) (*DB, error) {
	db := &DB{
		dir:          dir,
		log:          zap.NewNop().Sugar(),
		backend:      kv.BackendSQLite,
		undoCapacity: undo.DefaultCapacity,
		lang:         language.English,
		idFormats:    make(map[model.Kind]string),
		upgrades:     DefaultUpgrades(),
		now:          time.Now,
		bus:          signals.NewBus(),
		idCounters:   make(map[model.Kind]int),
	}
	for _, opt := range opts {
		opt(db)
	}
	db.collator = collate.New(db.lang)

	if err := db.load(); err != nil {
		return nil, err
	}
	return db, nil
}

func (db *DB) load() (err error) {
	db.state = StateOpening
	log := db.log.With("dir", db.dir, "backend", db.backend)

	if !db.readOnly && !db.inMemory && hasRecoveryMarker(db.dir) {
		log.Warn("recovery marker found, checking store")
	}

	backend, err := kv.OpenBackend(db.backend, db.dir, kv.Options{
		ReadOnly: db.readOnly,
		InMemory: db.inMemory,
		Logger:   db.log,
	})
	if err != nil {
		db.state = StateClosed
		return db.storeErr("open environment", err)
	}
	db.env = kv.NewEnv(backend, db.readOnly, db.log)
	defer func() {
		if err != nil {
			db.env.Release()
			backend.Close()
			db.env = nil
			db.state = StateClosed
		}
	}()

	if !db.readOnly && !db.inMemory && hasRecoveryMarker(db.dir) {
		if err := backend.Check(); err != nil {
			return db.storeErr("recovery check", err)
		}
		if err := removeRecoveryMarker(db.dir); err != nil {
			log.Warnw("could not remove recovery marker", "error", err)
		}
		log.Info("store checked, recovery marker cleared")
	}

	if err := db.env.OpenTable(tableMetadata); err != nil {
		return db.storeErr("open metadata", err)
	}

	version, upgrade, err := db.checkVersion()
	if err != nil {
		return err
	}

	for _, name := range primaryTables() {
		if err := db.env.OpenTable(name); err != nil {
			return db.storeErr("open table "+name, err)
		}
	}
	if err := db.connectSecondary(); err != nil {
		return db.storeErr("connect secondary indices", err)
	}

	if upgrade {
		if err := db.runUpgrades(context.Background(), version); err != nil {
			return err
		}
	}
	if !db.readOnly {
		pending, err := db.reindexPending()
		if err != nil {
			return err
		}
		if pending {
			log.Warn("reference map rebuild was interrupted, running it again")
			if err := db.ReindexReferenceMap(context.Background(), nil); err != nil {
				return err
			}
		}
	}

	db.history = undo.NewHistory(db.undoCapacity)
	db.abortPossible = true

	if !db.readOnly && !db.inMemory {
		if err := writeLock(db.dir); err != nil {
			log.Warnw("could not write lock file", "error", err)
		}
	}

	if err := db.loadMetadata(); err != nil {
		return err
	}

	db.state = StateOpen
	log.Infow("store opened", "version", SchemaVersion, "read_only", db.readOnly)
	return nil
}

// Close persists metadata and releases the store. Secondary indices are
// released before the primary tables and the environment. Closing a closed
// store is a no-op.
func (db *DB) Close() error {
	if db.state != StateOpen {
		return nil
	}
	db.state = StateClosing

	var err error
	if db.batch != nil {
		db.log.Warnw("closing with an open batch transaction", "msg", db.batch.Msg())
		err = multierr.Append(err, db.finishBatch(db.batch))
	}
	if !db.readOnly {
		err = multierr.Append(err, db.saveMetadata())
	}
	db.env.Release()
	if cerr := db.env.Backend().Close(); cerr != nil {
		err = multierr.Append(err, db.storeErr("close environment", cerr))
	}
	if !db.readOnly && !db.inMemory {
		if lerr := removeLock(db.dir); lerr != nil {
			db.log.Warnw("could not remove lock file", "error", lerr)
		}
	}

	db.env = nil
	db.state = StateClosed
	db.log.Infow("store closed", "dir", db.dir)
	return err
}

// State returns the lifecycle state.
func (db *DB) State() State {
	return db.state
}

// IsOpen reports whether the store is open.
func (db *DB) IsOpen() bool {
	return db.state == StateOpen
}

// IsReadOnly reports whether the store was opened read-only.
func (db *DB) IsReadOnly() bool {
	return db.readOnly
}

// Dir returns the store directory.
func (db *DB) Dir() string {
	return db.dir
}

// Subscribe registers fn for every change notification. Call the returned
// func to unsubscribe.
func (db *DB) Subscribe(fn func(Change)) (unsubscribe func()) {
	return db.bus.Subscribe(fn)
}

// SubscribeKind registers fn for change notifications about one kind.
func (db *DB) SubscribeKind(k model.Kind, fn func(Change)) (unsubscribe func()) {
	return db.bus.SubscribeKind(k, fn)
}

// BlockSignals holds change notifications until UnblockSignals.
func (db *DB) BlockSignals() {
	db.bus.Block()
}

// UnblockSignals releases BlockSignals and delivers the held notifications,
// or drops them when discard is set.
func (db *DB) UnblockSignals(discard bool) {
	db.bus.Unblock(discard)
}

func (db *DB) checkOpen() error {
	if db.state != StateOpen {
		return ErrClosed
	}
	return nil
}

// Stats counts the objects of every kind.
func (db *DB) Stats() (map[model.Kind]int, error) {
	out := make(map[model.Kind]int, len(model.Kinds()))
	for _, k := range model.Kinds() {
		n, err := db.Count(k)
		if err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, nil
}

// Count returns the number of stored objects of kind k.
func (db *DB) Count(k model.Kind) (int, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	c := db.env.Cursor(k.Table(), nil)
	defer c.Close()
	n := 0
	for c.Next() {
		n++
	}
	if err := c.Err(); err != nil {
		return 0, db.storeErr("count "+k.Table(), err)
	}
	return n, nil
}

func (db *DB) nowUnix() int64 {
	return db.now().Unix()
}
