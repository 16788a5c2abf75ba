package kv

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
)

// DefaultPageSize is the number of rows a cursor fetches per read
// transaction.
const DefaultPageSize = 256

// KeyFunc derives the secondary keys of a primary row. Returning no keys
// leaves the row out of the index.
type KeyFunc func(key, value []byte) ([][]byte, error)

// IndexState tells whether a secondary index is being maintained.
type IndexState int

const (
	// IndexActive indices exist on disk and follow every primary write.
	IndexActive IndexState = iota
	// IndexSuspended indices have been dropped and must not be read until
	// they are resumed.
	IndexSuspended
)

func (s IndexState) String() string {
	switch s {
	case IndexActive:
		return "active"
	case IndexSuspended:
		return "suspended"
	}
	return fmt.Sprintf("IndexState(%d)", int(s))
}

// Index is a secondary index associated with a primary table. Its rows are
// keyed "<secondary key> 0x00 <primary key>" and hold the primary key.
type Index struct {
	Name    string
	Primary string
	keys    KeyFunc
	state   IndexState
}

// Env is an open storage environment: a backend plus the registry of
// associated indices.
type Env struct {
	backend  Backend
	readOnly bool
	log      Logger
	pageSize int

	mu        sync.RWMutex
	indices   map[string]*Index
	byPrimary map[string][]*Index
}

// NewEnv wraps an open backend.
func NewEnv(b Backend, readOnly bool, log Logger) *Env {
	return &Env{
		backend:   b,
		readOnly:  readOnly,
		log:       log,
		pageSize:  DefaultPageSize,
		indices:   make(map[string]*Index),
		byPrimary: make(map[string][]*Index),
	}
}

// Backend returns the underlying storage engine.
func (e *Env) Backend() Backend {
	return e.backend
}

// ReadOnly reports whether the environment rejects writes.
func (e *Env) ReadOnly() bool {
	return e.readOnly
}

// OpenTable makes sure a table exists. On a read-only environment a missing
// table is an ErrNotFound condition.
func (e *Env) OpenTable(name string) error {
	ok, err := e.backend.TableExists(name)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if e.readOnly {
		return &EngineError{Op: "open table " + name, Cond: ErrNotFound, Err: fmt.Errorf("table %s does not exist", name)}
	}
	return e.backend.CreateTable(name)
}

// DropTable removes a table and everything in it.
func (e *Env) DropTable(name string) error {
	return e.backend.DropTable(name)
}

// Associate registers name as a secondary index over primary. The index
// table is created and populated from the primary rows when it does not
// exist yet.
func (e *Env) Associate(primary, name string, fn KeyFunc) error {
	idx := &Index{Name: name, Primary: primary, keys: fn, state: IndexActive}

	ok, err := e.backend.TableExists(name)
	if err != nil {
		return err
	}
	if !ok {
		if e.readOnly {
			return &EngineError{Op: "associate " + name, Cond: ErrNotFound, Err: fmt.Errorf("index %s does not exist", name)}
		}
		if err := e.backend.CreateTable(name); err != nil {
			return err
		}
		if err := e.populate(idx); err != nil {
			return err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if old, ok := e.indices[name]; ok {
		e.unlink(old)
	}
	e.indices[name] = idx
	e.byPrimary[primary] = append(e.byPrimary[primary], idx)
	return nil
}

// Disassociate stops maintaining the index and drops its table.
func (e *Env) Disassociate(name string) error {
	e.mu.Lock()
	if idx, ok := e.indices[name]; ok {
		e.unlink(idx)
		delete(e.indices, name)
	}
	e.mu.Unlock()
	return e.backend.DropTable(name)
}

// Release forgets every association without touching the disk. It is
// called before the backend is closed.
func (e *Env) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.indices = make(map[string]*Index)
	e.byPrimary = make(map[string][]*Index)
}

func (e *Env) unlink(idx *Index) {
	list := e.byPrimary[idx.Primary]
	for i, other := range list {
		if other == idx {
			e.byPrimary[idx.Primary] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Suspend drops the index from disk and stops maintaining it until Resume.
func (e *Env) Suspend(name string) error {
	e.mu.Lock()
	idx, ok := e.indices[name]
	if !ok {
		e.mu.Unlock()
		return &EngineError{Op: "suspend " + name, Cond: ErrNotFound, Err: fmt.Errorf("index %s is not associated", name)}
	}
	if idx.state == IndexSuspended {
		e.mu.Unlock()
		return nil
	}
	idx.state = IndexSuspended
	e.mu.Unlock()
	return e.backend.DropTable(name)
}

// Resume recreates a suspended index and repopulates it from its primary
// table.
func (e *Env) Resume(name string) error {
	e.mu.RLock()
	idx, ok := e.indices[name]
	e.mu.RUnlock()
	if !ok {
		return &EngineError{Op: "resume " + name, Cond: ErrNotFound, Err: fmt.Errorf("index %s is not associated", name)}
	}
	if e.State(name) == IndexActive {
		return nil
	}
	if err := e.backend.DropTable(name); err != nil {
		return err
	}
	if err := e.backend.CreateTable(name); err != nil {
		return err
	}
	if err := e.populate(idx); err != nil {
		return err
	}
	e.mu.Lock()
	idx.state = IndexActive
	e.mu.Unlock()
	return nil
}

// State returns the state of a registered index. Unknown indices report
// IndexSuspended.
func (e *Env) State(name string) IndexState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	idx, ok := e.indices[name]
	if !ok {
		return IndexSuspended
	}
	return idx.state
}

func (e *Env) activeIndices(primary string) []*Index {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []*Index
	for _, idx := range e.byPrimary[primary] {
		if idx.state == IndexActive {
			out = append(out, idx)
		}
	}
	return out
}

func (e *Env) checkIndex(name string) error {
	if e.State(name) != IndexActive {
		return fmt.Errorf("%w: %s", ErrIndexSuspended, name)
	}
	return nil
}

// populate fills an empty index from its primary table, one page per write
// transaction.
func (e *Env) populate(idx *Index) error {
	var after []byte
	for {
		tx, err := e.backend.Begin(true)
		if err != nil {
			return err
		}
		pairs, err := tx.Page(idx.Primary, nil, after, e.pageSize)
		if err != nil {
			tx.Rollback()
			return err
		}
		for _, p := range pairs {
			keys, err := idx.keys(p.Key, p.Value)
			if err != nil {
				tx.Rollback()
				return fmt.Errorf("kv: populating %s: %w", idx.Name, err)
			}
			for _, k := range keys {
				if err := tx.Put(idx.Name, indexRowKey(k, p.Key), p.Key); err != nil {
					tx.Rollback()
					return err
				}
			}
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		if len(pairs) < e.pageSize {
			return nil
		}
		after = pairs[len(pairs)-1].Key
	}
}

// Begin starts a transaction whose writes keep the associated indices in
// step with their primary tables.
func (e *Env) Begin(writable bool) (*Txn, error) {
	if writable && e.readOnly {
		return nil, engineErr("begin", ErrAccess, ErrReadOnly)
	}
	tx, err := e.backend.Begin(writable)
	if err != nil {
		return nil, err
	}
	return &Txn{env: e, tx: tx}, nil
}

// View runs fn in a read transaction.
func (e *Env) View(fn func(*Txn) error) error {
	txn, err := e.Begin(false)
	if err != nil {
		return err
	}
	defer txn.Rollback()
	return fn(txn)
}

// Update runs fn in a write transaction and commits when fn succeeds.
func (e *Env) Update(fn func(*Txn) error) error {
	txn, err := e.Begin(true)
	if err != nil {
		return err
	}
	defer txn.Rollback()
	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// Txn is an environment transaction.
type Txn struct {
	env  *Env
	tx   Tx
	done bool
}

// Get returns nil, nil when the key is absent.
func (t *Txn) Get(table string, key []byte) ([]byte, error) {
	return t.tx.Get(table, key)
}

// Put writes a primary row and updates the indices associated with table.
func (t *Txn) Put(table string, key, value []byte) error {
	idxs := t.env.activeIndices(table)
	if len(idxs) > 0 {
		old, err := t.tx.Get(table, key)
		if err != nil {
			return err
		}
		for _, idx := range idxs {
			if err := t.reindexRow(idx, key, old, value); err != nil {
				return err
			}
		}
	}
	return t.tx.Put(table, key, value)
}

// Delete removes a primary row and its index rows. Deleting an absent key
// is not an error.
func (t *Txn) Delete(table string, key []byte) error {
	idxs := t.env.activeIndices(table)
	if len(idxs) > 0 {
		old, err := t.tx.Get(table, key)
		if err != nil {
			return err
		}
		if old == nil {
			return nil
		}
		for _, idx := range idxs {
			if err := t.reindexRow(idx, key, old, nil); err != nil {
				return err
			}
		}
	}
	return t.tx.Delete(table, key)
}

func (t *Txn) reindexRow(idx *Index, key, oldValue, newValue []byte) error {
	var oldKeys, newKeys [][]byte
	var err error
	if oldValue != nil {
		if oldKeys, err = idx.keys(key, oldValue); err != nil {
			return fmt.Errorf("kv: index %s: %w", idx.Name, err)
		}
	}
	if newValue != nil {
		if newKeys, err = idx.keys(key, newValue); err != nil {
			return fmt.Errorf("kv: index %s: %w", idx.Name, err)
		}
	}
	for _, k := range oldKeys {
		if containsKey(newKeys, k) {
			continue
		}
		if err := t.tx.Delete(idx.Name, indexRowKey(k, key)); err != nil {
			return err
		}
	}
	for _, k := range newKeys {
		if containsKey(oldKeys, k) {
			continue
		}
		if err := t.tx.Put(idx.Name, indexRowKey(k, key), key); err != nil {
			return err
		}
	}
	return nil
}

// Scan visits every row of table whose key starts with prefix, in key order,
// until fn returns false.
func (t *Txn) Scan(table string, prefix []byte, fn func(key, value []byte) (bool, error)) error {
	var after []byte
	for {
		pairs, err := t.tx.Page(table, prefix, after, t.env.pageSize)
		if err != nil {
			return err
		}
		for _, p := range pairs {
			more, err := fn(p.Key, p.Value)
			if err != nil || !more {
				return err
			}
		}
		if len(pairs) < t.env.pageSize {
			return nil
		}
		after = pairs[len(pairs)-1].Key
	}
}

// Lookup returns the first primary key filed under ikey in the index, or
// nil when there is none.
func (t *Txn) Lookup(index string, ikey []byte) ([]byte, error) {
	if err := t.env.checkIndex(index); err != nil {
		return nil, err
	}
	pairs, err := t.tx.Page(index, indexPrefix(ikey), nil, 1)
	if err != nil || len(pairs) == 0 {
		return nil, err
	}
	return pairs[0].Value, nil
}

// IndexScan visits the primary keys filed under ikey until fn returns false.
func (t *Txn) IndexScan(index string, ikey []byte, fn func(pkey []byte) (bool, error)) error {
	if err := t.env.checkIndex(index); err != nil {
		return err
	}
	return t.Scan(index, indexPrefix(ikey), func(_, v []byte) (bool, error) {
		return fn(v)
	})
}

// Commit applies the transaction. Committing twice is an error.
func (t *Txn) Commit() error {
	if t.done {
		return engineErr("commit", ErrInvalid, errors.New("transaction already finished"))
	}
	t.done = true
	return t.tx.Commit()
}

// Rollback discards the transaction. It is safe to call after Commit.
func (t *Txn) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}

// Cursor is a forward-only, single-pass iteration over a table. Rows are
// fetched a page at a time in short read transactions, so an open cursor
// holds no backend resources between calls to Next.
type Cursor struct {
	env    *Env
	table  string
	prefix []byte
	index  string

	page      []Pair
	pos       int
	after     []byte
	exhausted bool
	closed    bool
	err       error
}

// Cursor opens a cursor over the rows of table whose key starts with prefix.
func (e *Env) Cursor(table string, prefix []byte) *Cursor {
	return &Cursor{env: e, table: table, prefix: prefix, pos: -1}
}

// IndexCursor opens a cursor over the entries filed under ikey in an index.
// Value returns the primary key of each entry.
func (e *Env) IndexCursor(index string, ikey []byte) (*Cursor, error) {
	if err := e.checkIndex(index); err != nil {
		return nil, err
	}
	return &Cursor{env: e, table: index, prefix: indexPrefix(ikey), index: index, pos: -1}, nil
}

// Next advances to the next row.
func (c *Cursor) Next() bool {
	if c.closed || c.err != nil {
		return false
	}
	c.pos++
	if c.pos < len(c.page) {
		return true
	}
	if c.exhausted {
		return false
	}
	if c.index != "" {
		if err := c.env.checkIndex(c.index); err != nil {
			c.err = err
			return false
		}
	}

	tx, err := c.env.backend.Begin(false)
	if err != nil {
		c.err = err
		return false
	}
	pairs, err := tx.Page(c.table, c.prefix, c.after, c.env.pageSize)
	tx.Rollback()
	if err != nil {
		c.err = err
		return false
	}
	if len(pairs) < c.env.pageSize {
		c.exhausted = true
	}
	if len(pairs) == 0 {
		c.page = nil
		return false
	}
	c.page = pairs
	c.pos = 0
	c.after = pairs[len(pairs)-1].Key
	return true
}

// Key returns the current row key.
func (c *Cursor) Key() []byte {
	return c.page[c.pos].Key
}

// Value returns the current row value.
func (c *Cursor) Value() []byte {
	return c.page[c.pos].Value
}

// Err returns the error that stopped iteration, if any.
func (c *Cursor) Err() error {
	return c.err
}

// Close releases the cursor. Further calls to Next return false.
func (c *Cursor) Close() error {
	c.closed = true
	c.page = nil
	return nil
}

func indexPrefix(ikey []byte) []byte {
	out := make([]byte, 0, len(ikey)+1)
	out = append(out, bytes.ReplaceAll(ikey, []byte{0}, nil)...)
	return append(out, 0)
}

func indexRowKey(ikey, pkey []byte) []byte {
	return append(indexPrefix(ikey), pkey...)
}

func containsKey(keys [][]byte, k []byte) bool {
	for _, other := range keys {
		if bytes.Equal(other, k) {
			return true
		}
	}
	return false
}
