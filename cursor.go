package genstore

import (
	"bytes"
	"iter"
	"slices"
	"strings"

	"golang.org/x/text/collate"

	"github.com/jward/genstore/internal/codec"
	"github.com/jward/genstore/internal/kv"
	"github.com/jward/genstore/internal/model"
)

// Cursor walks the stored objects of one kind in handle order. It is
// forward-only and single-pass; Close it when done. A Cursor holds no
// storage resources between calls to Next.
type Cursor struct {
	kind model.Kind
	c    *kv.Cursor
	obj  model.Object
	err  error
}

// Cursor opens a cursor over every object of kind k.
func (db *DB) Cursor(k model.Kind) (*Cursor, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return &Cursor{kind: k, c: db.env.Cursor(k.Table(), nil)}, nil
}

// Next advances to the next object.
func (c *Cursor) Next() bool {
	c.obj = nil
	if c.err != nil {
		return false
	}
	return c.c.Next()
}

// Handle returns the current handle.
func (c *Cursor) Handle() model.Handle {
	return model.Handle(c.c.Key())
}

// Data returns the current encoded object.
func (c *Cursor) Data() []byte {
	return c.c.Value()
}

// Object decodes the current object. A decoding failure stops the cursor.
func (c *Cursor) Object() model.Object {
	if c.obj != nil {
		return c.obj
	}
	obj, err := codec.Decode(c.kind, c.c.Value())
	if err != nil {
		c.err = err
		return nil
	}
	c.obj = obj
	return obj
}

// Err returns the error that stopped iteration, if any.
func (c *Cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.c.Err()
}

// Close releases the cursor.
func (c *Cursor) Close() error {
	return c.c.Close()
}

// Scan calls fn for every object of kind k until fn returns false or an
// error. The cursor is released on every path.
func (db *DB) Scan(k model.Kind, fn func(model.Object) (bool, error)) error {
	c, err := db.Cursor(k)
	if err != nil {
		return err
	}
	defer c.Close()
	for c.Next() {
		obj := c.Object()
		if obj == nil {
			break
		}
		more, err := fn(obj)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return db.storeErr("scan "+k.Table(), c.Err())
}

// All yields every object of kind k. Iteration stops at the first error,
// which is yielded with a nil object.
func (db *DB) All(k model.Kind) iter.Seq2[model.Object, error] {
	return func(yield func(model.Object, error) bool) {
		var stopped bool
		err := db.Scan(k, func(obj model.Object) (bool, error) {
			if !yield(obj, nil) {
				stopped = true
				return false, nil
			}
			return true, nil
		})
		if err != nil && !stopped {
			yield(nil, err)
		}
	}
}

// Handles returns the handles of every object of kind k. With sorted set
// they are ordered by the kind's natural key using the store's collation:
// people by surname then given name, places and sources by title, media by
// description, repositories by name and the rest by Gramps ID.
func (db *DB) Handles(k model.Kind, sorted bool) ([]model.Handle, error) {
	if !sorted {
		c, err := db.Cursor(k)
		if err != nil {
			return nil, err
		}
		defer c.Close()
		var hs []model.Handle
		for c.Next() {
			hs = append(hs, c.Handle())
		}
		return hs, db.storeErr("handles "+k.Table(), c.Err())
	}

	type entry struct {
		h    model.Handle
		keys [][]byte
	}
	var entries []entry
	db.collMu.Lock()
	defer db.collMu.Unlock()
	var buf collate.Buffer
	err := db.Scan(k, func(obj model.Object) (bool, error) {
		fields := sortKey(obj)
		keys := make([][]byte, len(fields))
		for i, f := range fields {
			keys[i] = db.collator.KeyFromString(&buf, f)
		}
		entries = append(entries, entry{h: obj.GetHandle(), keys: keys})
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(entries, func(a, b entry) int {
		for i := range a.keys {
			if c := bytes.Compare(a.keys[i], b.keys[i]); c != 0 {
				return c
			}
		}
		return strings.Compare(string(a.h), string(b.h))
	})
	hs := make([]model.Handle, len(entries))
	for i, e := range entries {
		hs[i] = e.h
	}
	return hs, nil
}

// sortKey returns the fields an object of each kind is ordered by.
func sortKey(obj model.Object) []string {
	switch o := obj.(type) {
	case *model.Person:
		return []string{o.PrimaryName.Surname, o.PrimaryName.FirstName}
	case *model.Place:
		return []string{o.Title}
	case *model.Source:
		return []string{o.Title}
	case *model.Media:
		return []string{o.Description}
	case *model.Repository:
		return []string{o.Name}
	}
	return []string{obj.GetGrampsID()}
}

// sortStrings orders names with the store's collation.
func (db *DB) sortStrings(names []string) {
	db.collMu.Lock()
	defer db.collMu.Unlock()
	db.collator.SortStrings(names)
}
