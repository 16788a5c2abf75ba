package genstore

import (
	"time"

	"github.com/jward/genstore/internal/codec"
	"github.com/jward/genstore/internal/kv"
	"github.com/jward/genstore/internal/model"
	"github.com/jward/genstore/internal/undo"
)

// CommitOption adjusts a single commit.
type CommitOption func(*commitOptions)

type commitOptions struct {
	at *time.Time
}

// At stamps the committed object with t instead of the current time.
func At(t time.Time) CommitOption {
	return func(o *commitOptions) {
		o.at = &t
	}
}

// Get loads the object of kind k stored under h. It returns nil, nil when
// there is no such object or the store is not open.
func (db *DB) Get(k model.Kind, h model.Handle) (model.Object, error) {
	if db.state != StateOpen || h == "" {
		return nil, nil
	}
	data, err := db.getRaw(k, h)
	if err != nil || data == nil {
		return nil, err
	}
	return codec.Decode(k, data)
}

// GetRaw returns the stored blob for h, or nil when absent.
func (db *DB) GetRaw(k model.Kind, h model.Handle) ([]byte, error) {
	if db.state != StateOpen || h == "" {
		return nil, nil
	}
	return db.getRaw(k, h)
}

func (db *DB) getRaw(k model.Kind, h model.Handle) ([]byte, error) {
	return db.getTableRow(k.Table(), []byte(h))
}

func (db *DB) getTableRow(table string, key []byte) ([]byte, error) {
	var data []byte
	err := db.env.View(func(tx *kv.Txn) error {
		var err error
		data, err = tx.Get(table, key)
		return err
	})
	if err != nil {
		return nil, db.storeErr("get "+table, err)
	}
	return data, nil
}

// Has reports whether an object of kind k is stored under h.
func (db *DB) Has(k model.Kind, h model.Handle) (bool, error) {
	data, err := db.GetRaw(k, h)
	return data != nil, err
}

// GetByGrampsID loads the object of kind k with the given Gramps ID through
// the ID index. It returns nil, nil when there is none.
func (db *DB) GetByGrampsID(k model.Kind, id string) (model.Object, error) {
	h, err := db.HandleForGrampsID(k, id)
	if err != nil || h == "" {
		return nil, err
	}
	return db.Get(k, h)
}

// HandleForGrampsID resolves a Gramps ID to a handle, or "" when unused.
func (db *DB) HandleForGrampsID(k model.Kind, id string) (model.Handle, error) {
	if db.state != StateOpen || id == "" {
		return "", nil
	}
	var pkey []byte
	err := db.env.View(func(tx *kv.Txn) error {
		var err error
		pkey, err = tx.Lookup(idIndex(k), []byte(id))
		return err
	})
	if err != nil {
		return "", db.storeErr("lookup "+idIndex(k), err)
	}
	return model.Handle(pkey), nil
}

// HasGrampsID reports whether a Gramps ID is in use for kind k.
func (db *DB) HasGrampsID(k model.Kind, id string) (bool, error) {
	h, err := db.HandleForGrampsID(k, id)
	return h != "", err
}

// Add stores a new object. A missing handle or Gramps ID is assigned first.
// It returns the object's handle.
func (db *DB) Add(obj model.Object, t *Txn, opts ...CommitOption) (model.Handle, error) {
	if db.readOnly {
		db.log.Debugw("ignoring add on read-only store", "kind", obj.Kind())
		return obj.GetHandle(), nil
	}
	if err := db.checkTxn(t); err != nil {
		return "", err
	}
	if obj.GetHandle() == "" {
		obj.SetHandle(CreateID())
	}
	if obj.GetGrampsID() == "" {
		id, err := db.FindNextGrampsID(obj.Kind(), t)
		if err != nil {
			return "", err
		}
		obj.SetGrampsID(id)
	}
	if err := db.Commit(obj, t, opts...); err != nil {
		return "", err
	}
	return obj.GetHandle(), nil
}

// Commit stores obj, replacing any previous version. The object's change
// time is set, its reference-map rows are brought up to date and the
// session aggregates (gender statistics, custom vocabularies, surname list)
// follow the new version. On a read-only store, or for an object without a
// handle, Commit does nothing.
func (db *DB) Commit(obj model.Object, t *Txn, opts ...CommitOption) error {
	if db.readOnly || obj.GetHandle() == "" {
		db.log.Debugw("ignoring commit", "kind", obj.Kind(), "read_only", db.readOnly)
		return nil
	}
	if err := db.checkTxn(t); err != nil {
		return err
	}

	var o commitOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.at != nil {
		obj.SetChange(o.at.Unix())
	} else {
		obj.SetChange(db.nowUnix())
	}

	k := obj.Kind()
	h := obj.GetHandle()
	data, err := codec.Encode(obj)
	if err != nil {
		return err
	}

	var old []byte
	if t.batch {
		err = db.env.Update(func(tx *kv.Txn) error {
			var err error
			if old, err = tx.Get(k.Table(), []byte(h)); err != nil {
				return err
			}
			if err := (refWriter{db: db, t: t, tx: tx}).updateReferenceMap(obj); err != nil {
				return err
			}
			return tx.Put(k.Table(), []byte(h), data)
		})
	} else {
		if old, err = t.lookup(k.Table(), []byte(h)); err == nil {
			if err = (refWriter{db: db, t: t}).updateReferenceMap(obj); err == nil {
				t.queue(undo.Record{Table: k.Table(), Kind: k, Key: []byte(h), Old: old, New: data})
			}
		}
	}
	if err != nil {
		return db.storeErr("commit "+k.Table(), err)
	}

	t.changes.note(k, h, old != nil, true)
	t.reserveID(k, obj.GetGrampsID())
	if k == model.KindPerson {
		t.people = true
	}
	t.onApply(func() { db.afterCommit(obj, old) })
	return nil
}

// Remove deletes the object of kind k stored under h together with every
// reference-map row it owns. Removing an absent object does nothing.
func (db *DB) Remove(k model.Kind, h model.Handle, t *Txn) error {
	if db.readOnly || h == "" {
		db.log.Debugw("ignoring remove", "kind", k, "read_only", db.readOnly)
		return nil
	}
	if err := db.checkTxn(t); err != nil {
		return err
	}

	old, err := t.lookup(k.Table(), []byte(h))
	if err != nil {
		return db.storeErr("remove "+k.Table(), err)
	}
	if old == nil {
		return nil
	}

	if t.batch {
		err = db.env.Update(func(tx *kv.Txn) error {
			if err := (refWriter{db: db, t: t, tx: tx}).deletePrimaryFromReferenceMap(h); err != nil {
				return err
			}
			return tx.Delete(k.Table(), []byte(h))
		})
	} else {
		if err = (refWriter{db: db, t: t}).deletePrimaryFromReferenceMap(h); err == nil {
			t.queue(undo.Record{Table: k.Table(), Kind: k, Key: []byte(h), Old: old})
		}
	}
	if err != nil {
		return db.storeErr("remove "+k.Table(), err)
	}

	t.changes.note(k, h, true, false)
	if k == model.KindPerson {
		t.people = true
	}
	t.onApply(func() { db.afterRemove(k, h, old) })
	return nil
}

// afterCommit updates the session aggregates for a committed object once its
// row is stored. old is the previous blob, or nil for a new object.
func (db *DB) afterCommit(obj model.Object, old []byte) {
	db.metaMu.Lock()
	defer db.metaMu.Unlock()

	if p, ok := obj.(*model.Person); ok {
		var prev *model.Person
		if old != nil {
			if o, err := codec.Decode(model.KindPerson, old); err == nil {
				prev = o.(*model.Person)
			}
		}
		switch {
		case prev == nil:
			db.genderStats.CountPerson(p)
		case prev.Gender != p.Gender || prev.PrimaryName.FirstName != p.PrimaryName.FirstName:
			db.genderStats.UncountPerson(prev)
			db.genderStats.CountPerson(p)
		}
		db.addSurnameLocked(p.PrimaryName.Surname)
	}
	db.collectVocabulary(obj)
}

func (db *DB) afterRemove(k model.Kind, h model.Handle, old []byte) {
	if k != model.KindPerson {
		return
	}
	if o, err := codec.Decode(model.KindPerson, old); err == nil {
		db.metaMu.Lock()
		db.genderStats.UncountPerson(o.(*model.Person))
		db.metaMu.Unlock()
	}
	if db.DefaultPersonHandle() == h {
		if err := db.SetDefaultPerson(""); err != nil {
			db.log.Warnw("could not clear home person", "handle", h, "error", err)
		}
	}
}
