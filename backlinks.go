package genstore

import (
	"iter"
	"slices"

	"github.com/jward/genstore/internal/codec"
	"github.com/jward/genstore/internal/model"
)

// Backlink names an object that refers to the queried handle.
type Backlink struct {
	Kind   model.Kind
	Handle model.Handle
}

// FindBacklinkHandles yields every object whose reference-map rows point at
// h, optionally restricted to the given kinds. Rows whose referring object
// no longer exists are skipped. The sequence is lazy and single-pass; during
// a batch transaction it yields ErrIndexSuspended.
func (db *DB) FindBacklinkHandles(h model.Handle, include ...model.Kind) iter.Seq2[Backlink, error] {
	return func(yield func(Backlink, error) bool) {
		if err := db.checkOpen(); err != nil {
			yield(Backlink{}, err)
			return
		}
		c, err := db.env.IndexCursor(indexRefReferenced, []byte(h))
		if err != nil {
			yield(Backlink{}, err)
			return
		}
		defer c.Close()
		for c.Next() {
			row, err := db.refRow(c.Value())
			if err != nil {
				yield(Backlink{}, err)
				return
			}
			if row == nil {
				continue
			}
			p := row.Primary
			if len(include) > 0 && !slices.Contains(include, p.Kind) {
				continue
			}
			if ok, err := db.Has(p.Kind, p.Handle); err != nil {
				yield(Backlink{}, err)
				return
			} else if !ok {
				db.log.Debugw("skipping dangling reference", "from", p, "to", h)
				continue
			}
			if !yield(Backlink{Kind: p.Kind, Handle: p.Handle}, nil) {
				return
			}
		}
		if err := c.Err(); err != nil {
			yield(Backlink{}, db.storeErr("backlinks", err))
		}
	}
}

// refRow loads the reference-map row stored under key, or nil when it is
// gone.
func (db *DB) refRow(key []byte) (*codec.RefEntry, error) {
	data, err := db.getTableRow(tableReferenceMap, key)
	if err != nil || data == nil {
		return nil, err
	}
	e, err := codec.DecodeRef(data)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
