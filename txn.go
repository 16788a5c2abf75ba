package genstore

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/jward/genstore/internal/kv"
	"github.com/jward/genstore/internal/model"
	"github.com/jward/genstore/internal/signals"
	"github.com/jward/genstore/internal/undo"
)

// Txn is a logical transaction. Interactive transactions queue their
// changes and apply them atomically in CommitTransaction, after which they
// can be undone. Batch transactions write every change immediately, cannot
// be aborted or undone, and disable undo for the rest of the session.
type Txn struct {
	db      *DB
	log     *undo.Transaction
	batch   bool
	noMagic bool
	done    bool

	// pending holds rows written by this transaction and not yet applied,
	// keyed by table and key. A nil value is a pending delete.
	pending map[string][]byte
	ids     map[model.Kind]map[string]struct{}
	changes changeSet
	people  bool
	// applied runs once the queued records are stored: gender statistics,
	// vocabularies, surnames and the home person follow committed rows only.
	applied []func()
}

// TxnOption configures Begin.
type TxnOption func(*Txn)

// Batch makes the transaction a batch transaction.
func Batch() TxnOption {
	return func(t *Txn) {
		t.batch = true
	}
}

// NoMagic keeps every index active during a batch transaction.
func NoMagic() TxnOption {
	return func(t *Txn) {
		t.noMagic = true
	}
}

// Msg returns the transaction description.
func (t *Txn) Msg() string {
	return t.log.Msg
}

// IsBatch reports whether t is a batch transaction.
func (t *Txn) IsBatch() bool {
	return t.batch
}

// Len returns the number of queued records.
func (t *Txn) Len() int {
	return t.log.Len()
}

// Begin starts a transaction described by msg.
func (db *DB) Begin(msg string, opts ...TxnOption) (*Txn, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	t := &Txn{
		db:      db,
		pending: make(map[string][]byte),
		ids:     make(map[model.Kind]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = undo.NewTransaction(msg, t.batch)

	if !t.batch || db.readOnly {
		return t, nil
	}
	if db.batch != nil {
		return nil, ErrBatchActive
	}
	if !t.noMagic {
		if err := db.suspendBatchIndices(); err != nil {
			return nil, err
		}
	}
	db.history.Disable()
	db.abortPossible = false
	db.batch = t
	db.log.Debugw("batch transaction started", "msg", msg, "no_magic", t.noMagic)
	return t, nil
}

// CommitTransaction finishes t. An interactive transaction applies all of
// its queued records in one storage transaction, is pushed onto the undo
// history and then notifies subscribers: adds, then updates, then deletes.
// A batch transaction resumes suspended indices, rebuilds the surname list
// and notifies subscribers with a rebuild event per touched kind.
func (db *DB) CommitTransaction(t *Txn) error {
	if t == nil {
		return ErrNoTransaction
	}
	if t.done {
		return ErrTxnFinished
	}
	if err := db.checkOpen(); err != nil {
		return err
	}
	if db.readOnly {
		t.done = true
		return nil
	}
	if t.batch {
		return db.finishBatch(t)
	}

	t.done = true
	if t.log.Len() == 0 {
		return nil
	}
	if err := db.env.Update(func(tx *kv.Txn) error {
		return applyRecords(tx, t.log.Records(), true)
	}); err != nil {
		return db.storeErr("commit transaction", err)
	}
	t.runApplied()
	db.history.Push(t.log)
	if t.people {
		if err := db.rebuildSurnameList(); err != nil {
			return err
		}
	}
	t.changes.emit(db.bus)
	db.log.Debugw("transaction committed", "msg", t.log.Msg, "records", t.log.Len())
	return nil
}

func (db *DB) finishBatch(t *Txn) error {
	t.done = true
	db.batch = nil
	var err error
	if !t.noMagic {
		err = db.resumeBatchIndices()
	}
	err = multierr.Append(err, db.rebuildSurnameList())
	for _, k := range model.Kinds() {
		if t.changes.touched(k) {
			db.bus.Emit(signals.Event{Kind: k, Action: signals.Rebuild})
		}
	}
	db.log.Debugw("batch transaction committed", "msg", t.log.Msg)
	return err
}

// Abort discards the queued records of an interactive transaction. Batch
// transactions have already written their changes and cannot be aborted.
func (db *DB) Abort(t *Txn) error {
	if t == nil {
		return ErrNoTransaction
	}
	if t.done {
		return ErrTxnFinished
	}
	if t.batch && !db.readOnly {
		return ErrAbortNotPossible
	}
	t.done = true
	t.log.Reset()
	t.pending = nil
	t.applied = nil
	return nil
}

// AbortPossible reports whether Abort can still be used in this session. It
// turns false once a batch transaction has started.
func (db *DB) AbortPossible() bool {
	return db.abortPossible
}

// WithTransaction runs fn inside a transaction and commits it. When fn
// fails an interactive transaction is aborted; a batch transaction is still
// committed so that suspended indices are restored, and fn's error is
// returned.
func (db *DB) WithTransaction(msg string, fn func(*Txn) error, opts ...TxnOption) error {
	t, err := db.Begin(msg, opts...)
	if err != nil {
		return err
	}
	if ferr := fn(t); ferr != nil {
		if t.batch && !db.readOnly {
			return multierr.Append(ferr, db.CommitTransaction(t))
		}
		if aerr := db.Abort(t); aerr != nil && !errors.Is(aerr, ErrTxnFinished) {
			return multierr.Append(ferr, aerr)
		}
		return ferr
	}
	return db.CommitTransaction(t)
}

func (db *DB) checkTxn(t *Txn) error {
	if t == nil {
		return ErrNoTransaction
	}
	if t.done {
		return ErrTxnFinished
	}
	if t.db != db {
		return fmt.Errorf("genstore: transaction belongs to another store")
	}
	return db.checkOpen()
}

func pendingKey(table string, key []byte) string {
	return table + "\x00" + string(key)
}

// lookup returns the row as this transaction sees it: the queued value when
// there is one, else the stored value.
func (t *Txn) lookup(table string, key []byte) ([]byte, error) {
	if v, ok := t.pending[pendingKey(table, key)]; ok {
		return v, nil
	}
	var value []byte
	err := t.db.env.View(func(tx *kv.Txn) error {
		var err error
		value, err = tx.Get(table, key)
		return err
	})
	return value, err
}

// onApply runs fn when this transaction's writes reach storage: right away
// in a batch, at CommitTransaction otherwise.
func (t *Txn) onApply(fn func()) {
	if t.batch {
		fn()
		return
	}
	t.applied = append(t.applied, fn)
}

func (t *Txn) runApplied() {
	for _, fn := range t.applied {
		fn()
	}
	t.applied = nil
}

// queue records a row change for CommitTransaction.
func (t *Txn) queue(rec undo.Record) {
	t.log.Add(rec)
	t.pending[pendingKey(rec.Table, rec.Key)] = rec.New
}

func (t *Txn) reserveID(k model.Kind, id string) {
	if id == "" {
		return
	}
	if t.ids[k] == nil {
		t.ids[k] = make(map[string]struct{})
	}
	t.ids[k][id] = struct{}{}
}

func (t *Txn) hasID(k model.Kind, id string) bool {
	_, ok := t.ids[k][id]
	return ok
}

// applyRecords writes records to storage, forward (new values, in order) or
// backward (old values, in reverse order).
func applyRecords(tx *kv.Txn, recs []undo.Record, forward bool) error {
	for i := range recs {
		rec := recs[i]
		value := rec.New
		if !forward {
			rec = recs[len(recs)-1-i]
			value = rec.Old
		}
		var err error
		if value == nil {
			err = tx.Delete(rec.Table, rec.Key)
		} else {
			err = tx.Put(rec.Table, rec.Key, value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// changeSet collects the handles touched by a transaction or replay so that
// subscribers hear about each object once.
type changeSet struct {
	added   map[model.Kind][]model.Handle
	updated map[model.Kind][]model.Handle
	deleted map[model.Kind][]model.Handle
}

func (c *changeSet) init() {
	if c.added == nil {
		c.added = make(map[model.Kind][]model.Handle)
		c.updated = make(map[model.Kind][]model.Handle)
		c.deleted = make(map[model.Kind][]model.Handle)
	}
}

// note records a row change; existed and exists describe the row before and
// after it.
func (c *changeSet) note(k model.Kind, h model.Handle, existed, exists bool) {
	c.init()
	switch {
	case exists && !existed:
		if i := indexOf(c.deleted[k], h); i >= 0 {
			c.deleted[k] = remove(c.deleted[k], i)
			c.updated[k] = appendOnce(c.updated[k], h)
			return
		}
		c.added[k] = appendOnce(c.added[k], h)
	case exists && existed:
		if indexOf(c.added[k], h) >= 0 {
			return
		}
		c.updated[k] = appendOnce(c.updated[k], h)
	case !exists && existed:
		if i := indexOf(c.added[k], h); i >= 0 {
			c.added[k] = remove(c.added[k], i)
			return
		}
		if i := indexOf(c.updated[k], h); i >= 0 {
			c.updated[k] = remove(c.updated[k], i)
		}
		c.deleted[k] = appendOnce(c.deleted[k], h)
	}
}

func (c *changeSet) touched(k model.Kind) bool {
	return len(c.added[k])+len(c.updated[k])+len(c.deleted[k]) > 0
}

func (c *changeSet) emit(bus *signals.Bus) {
	for _, step := range []struct {
		action signals.Action
		byKind map[model.Kind][]model.Handle
	}{
		{signals.Add, c.added},
		{signals.Update, c.updated},
		{signals.Delete, c.deleted},
	} {
		for _, k := range model.Kinds() {
			if hs := step.byKind[k]; len(hs) > 0 {
				bus.Emit(signals.Event{Kind: k, Action: step.action, Handles: hs})
			}
		}
	}
}

func indexOf(hs []model.Handle, h model.Handle) int {
	for i, other := range hs {
		if other == h {
			return i
		}
	}
	return -1
}

func appendOnce(hs []model.Handle, h model.Handle) []model.Handle {
	if indexOf(hs, h) >= 0 {
		return hs
	}
	return append(hs, h)
}

func remove(hs []model.Handle, i int) []model.Handle {
	return append(hs[:i:i], hs[i+1:]...)
}
