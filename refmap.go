package genstore

import (
	"bytes"
	"context"

	"github.com/jward/genstore/internal/codec"
	"github.com/jward/genstore/internal/kv"
	"github.com/jward/genstore/internal/model"
	"github.com/jward/genstore/internal/undo"
)

// refKey is the reference-map key for "primary refers to referenced".
func refKey(primary, referenced model.Handle) []byte {
	key := make([]byte, 0, len(primary)+1+len(referenced))
	key = append(key, primary...)
	key = append(key, 0)
	return append(key, referenced...)
}

func splitRefKey(key []byte) (primary, referenced model.Handle) {
	p, r, _ := bytes.Cut(key, []byte{0})
	return model.Handle(p), model.Handle(r)
}

// refWriter applies reference-map edits for one object write. In a batch
// transaction edits go straight to the storage transaction tx; otherwise
// they are queued on the logical transaction.
type refWriter struct {
	db *DB
	t  *Txn
	tx *kv.Txn
}

// existing returns the referenced handles of every reference-map row whose
// primary side is h, as seen by the transaction.
func (w refWriter) existing(h model.Handle) (map[model.Handle]struct{}, error) {
	out := make(map[model.Handle]struct{})
	collect := func(tx *kv.Txn) error {
		return tx.IndexScan(indexRefPrimary, []byte(h), func(pkey []byte) (bool, error) {
			_, ref := splitRefKey(pkey)
			out[ref] = struct{}{}
			return true, nil
		})
	}
	var err error
	if w.tx != nil {
		err = collect(w.tx)
	} else {
		err = w.db.env.View(collect)
	}
	if err != nil {
		return nil, err
	}
	if w.tx == nil {
		prefix := pendingKey(tableReferenceMap, refKey(h, ""))
		for k, v := range w.t.pending {
			if len(k) <= len(prefix) || k[:len(prefix)] != prefix {
				continue
			}
			ref := model.Handle(k[len(prefix):])
			if v == nil {
				delete(out, ref)
			} else {
				out[ref] = struct{}{}
			}
		}
	}
	return out, nil
}

func (w refWriter) put(primary model.Ref, referenced model.Ref) error {
	key := refKey(primary.Handle, referenced.Handle)
	value, err := codec.EncodeRef(codec.RefEntry{Primary: primary, Referenced: referenced})
	if err != nil {
		return err
	}
	if w.tx != nil {
		return w.tx.Put(tableReferenceMap, key, value)
	}
	old, err := w.t.lookup(tableReferenceMap, key)
	if err != nil {
		return err
	}
	w.t.queue(undo.Record{Table: tableReferenceMap, RefMap: true, Key: key, Old: old, New: value})
	return nil
}

// del removes a reference-map row. A missing row is not an error.
func (w refWriter) del(primary, referenced model.Handle) error {
	key := refKey(primary, referenced)
	if w.tx != nil {
		return w.tx.Delete(tableReferenceMap, key)
	}
	old, err := w.t.lookup(tableReferenceMap, key)
	if err != nil || old == nil {
		return err
	}
	w.t.queue(undo.Record{Table: tableReferenceMap, RefMap: true, Key: key, Old: old})
	return nil
}

// updateReferenceMap brings the reference-map rows of obj in line with the
// references it holds now. An object with no rows yet has all of its
// references inserted; otherwise only the difference is written.
func (w refWriter) updateReferenceMap(obj model.Object) error {
	h := obj.GetHandle()
	self := model.Ref{Kind: obj.Kind(), Handle: h}
	current := obj.ReferencedHandles()

	existing, err := w.existing(h)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		for _, ref := range current {
			if err := w.put(self, ref); err != nil {
				return err
			}
		}
		return nil
	}

	wanted := make(map[model.Handle]struct{}, len(current))
	for _, ref := range current {
		wanted[ref.Handle] = struct{}{}
		if _, ok := existing[ref.Handle]; ok {
			continue
		}
		if err := w.put(self, ref); err != nil {
			return err
		}
	}
	for ref := range existing {
		if _, ok := wanted[ref]; ok {
			continue
		}
		if err := w.del(h, ref); err != nil {
			return err
		}
	}
	return nil
}

// deletePrimaryFromReferenceMap removes every row whose primary side is h.
func (w refWriter) deletePrimaryFromReferenceMap(h model.Handle) error {
	existing, err := w.existing(h)
	if err != nil {
		return err
	}
	for ref := range existing {
		if err := w.del(h, ref); err != nil {
			return err
		}
	}
	return nil
}

// ReindexReferenceMap drops the reference map and both of its indices,
// recreates them empty and rebuilds every row from the primary tables.
// Like a batch transaction it bypasses the undo log, so undo is disabled
// for the rest of the session. Rows are written one object at a time: if
// ctx is cancelled or a write fails the map is left partly rebuilt, and the
// store records that so the next Open runs the reindex again.
func (db *DB) ReindexReferenceMap(ctx context.Context, progress ProgressFunc) error {
	if err := db.checkOpen(); err != nil && db.state != StateOpening {
		return err
	}
	if db.readOnly {
		return nil
	}
	if db.batch != nil {
		return ErrBatchActive
	}
	if db.history != nil {
		db.history.Disable()
	}
	db.abortPossible = false

	if err := db.markReindexPending(true); err != nil {
		return err
	}
	for _, name := range []string{indexRefPrimary, indexRefReferenced} {
		if err := db.env.Disassociate(name); err != nil {
			return db.storeErr("drop index "+name, err)
		}
	}
	if err := db.env.DropTable(tableReferenceMap); err != nil {
		return db.storeErr("drop reference map", err)
	}
	if err := db.env.OpenTable(tableReferenceMap); err != nil {
		return db.storeErr("create reference map", err)
	}
	for _, idx := range secondaryIndices() {
		if idx.primary != tableReferenceMap {
			continue
		}
		if err := db.env.Associate(idx.primary, idx.name, idx.keys); err != nil {
			return db.storeErr("create index "+idx.name, err)
		}
	}

	total := 0
	for _, k := range model.Kinds() {
		n, err := db.countRows(k)
		if err != nil {
			return err
		}
		total += n
	}

	done := 0
	for _, k := range model.Kinds() {
		c := db.env.Cursor(k.Table(), nil)
		for c.Next() {
			if err := ctx.Err(); err != nil {
				c.Close()
				return err
			}
			obj, err := codec.Decode(k, c.Value())
			if err != nil {
				c.Close()
				return err
			}
			if err := db.env.Update(func(tx *kv.Txn) error {
				w := refWriter{db: db, tx: tx}
				self := model.Ref{Kind: k, Handle: obj.GetHandle()}
				for _, ref := range obj.ReferencedHandles() {
					if err := w.put(self, ref); err != nil {
						return err
					}
				}
				return nil
			}); err != nil {
				c.Close()
				return db.storeErr("reindex reference map", err)
			}
			done++
			if progress != nil {
				progress(done, total)
			}
		}
		err := c.Err()
		c.Close()
		if err != nil {
			return db.storeErr("reindex reference map", err)
		}
	}
	if err := db.markReindexPending(false); err != nil {
		return err
	}
	db.log.Infow("reference map reindexed", "objects", done)
	return nil
}

// markReindexPending records whether the reference map is mid-rebuild. It
// writes through the environment directly since it also runs while the
// store is still opening.
func (db *DB) markReindexPending(pending bool) error {
	return db.storeErr("write metadata "+metaReindexPending, db.env.Update(func(tx *kv.Txn) error {
		return putMeta(tx, metaReindexPending, pending)
	}))
}

// reindexPending reports whether an earlier reindex did not finish.
func (db *DB) reindexPending() (bool, error) {
	var pending bool
	err := db.env.View(func(tx *kv.Txn) error {
		return getMeta(tx, metaReindexPending, &pending)
	})
	return pending, db.storeErr("read metadata "+metaReindexPending, err)
}

// countRows counts rows without requiring the open state, for use during
// upgrades.
func (db *DB) countRows(k model.Kind) (int, error) {
	c := db.env.Cursor(k.Table(), nil)
	defer c.Close()
	n := 0
	for c.Next() {
		n++
	}
	return n, db.storeErr("count "+k.Table(), c.Err())
}
