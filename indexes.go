package genstore

import (
	"context"

	"go.uber.org/multierr"

	"github.com/jward/genstore/internal/codec"
	"github.com/jward/genstore/internal/kv"
	"github.com/jward/genstore/internal/model"
)

// Table names outside the eight primary object tables.
const (
	tableMetadata     = "metadata"
	tableReferenceMap = "reference_map"
	tableNameGroup    = "name_group"
)

// Secondary index names.
const (
	indexSurnames        = "surnames"
	indexEventTypes      = "event_types"
	indexRepositoryTypes = "repository_types"
	indexRefPrimary      = "reference_map_primary_map"
	indexRefReferenced   = "reference_map_referenced_map"
)

func idIndex(k model.Kind) string {
	return k.Table() + "_id"
}

func primaryTables() []string {
	names := make([]string, 0, len(model.Kinds())+2)
	for _, k := range model.Kinds() {
		names = append(names, k.Table())
	}
	return append(names, tableReferenceMap, tableNameGroup)
}

type secondaryIndex struct {
	name    string
	primary string
	keys    kv.KeyFunc
	// suspendInBatch marks the indices dropped for the duration of a batch
	// transaction.
	suspendInBatch bool
}

func secondaryIndices() []secondaryIndex {
	var out []secondaryIndex
	for _, k := range model.Kinds() {
		out = append(out, secondaryIndex{
			name:    idIndex(k),
			primary: k.Table(),
			keys: objectKeys(k, func(obj model.Object) []string {
				return []string{obj.GetGrampsID()}
			}),
		})
	}
	return append(out,
		secondaryIndex{
			name:    indexSurnames,
			primary: model.KindPerson.Table(),
			keys: objectKeys(model.KindPerson, func(obj model.Object) []string {
				return []string{obj.(*model.Person).PrimaryName.Surname}
			}),
			suspendInBatch: true,
		},
		secondaryIndex{
			name:    indexEventTypes,
			primary: model.KindEvent.Table(),
			keys: objectKeys(model.KindEvent, func(obj model.Object) []string {
				return []string{obj.(*model.Event).Type.String()}
			}),
		},
		secondaryIndex{
			name:    indexRepositoryTypes,
			primary: model.KindRepository.Table(),
			keys: objectKeys(model.KindRepository, func(obj model.Object) []string {
				return []string{obj.(*model.Repository).Type.String()}
			}),
		},
		secondaryIndex{
			name:    indexRefPrimary,
			primary: tableReferenceMap,
			keys: refKeys(func(e codec.RefEntry) model.Handle {
				return e.Primary.Handle
			}),
		},
		secondaryIndex{
			name:    indexRefReferenced,
			primary: tableReferenceMap,
			keys: refKeys(func(e codec.RefEntry) model.Handle {
				return e.Referenced.Handle
			}),
			suspendInBatch: true,
		},
	)
}

// objectKeys adapts a key function over decoded objects to the raw rows the
// environment hands out. Empty keys are not indexed.
func objectKeys(k model.Kind, fn func(model.Object) []string) kv.KeyFunc {
	return func(_, value []byte) ([][]byte, error) {
		obj, err := codec.Decode(k, value)
		if err != nil {
			return nil, err
		}
		var keys [][]byte
		for _, s := range fn(obj) {
			if s != "" {
				keys = append(keys, []byte(s))
			}
		}
		return keys, nil
	}
}

func refKeys(fn func(codec.RefEntry) model.Handle) kv.KeyFunc {
	return func(_, value []byte) ([][]byte, error) {
		e, err := codec.DecodeRef(value)
		if err != nil {
			return nil, err
		}
		return [][]byte{[]byte(fn(e))}, nil
	}
}

// connectSecondary opens or creates every secondary index and associates it
// with its primary table. Indices created here are populated from the
// existing rows.
func (db *DB) connectSecondary() error {
	for _, idx := range secondaryIndices() {
		if err := db.env.Associate(idx.primary, idx.name, idx.keys); err != nil {
			return err
		}
	}
	return nil
}

// RebuildSecondary drops every secondary index and recreates it from the
// primary tables. It is needed after a change to what an index key function
// extracts. A read-only store is left alone.
func (db *DB) RebuildSecondary(ctx context.Context, progress ProgressFunc) error {
	if err := db.checkOpen(); err != nil && db.state != StateOpening {
		return err
	}
	if db.readOnly {
		return nil
	}
	if db.batch != nil {
		return ErrBatchActive
	}
	indices := secondaryIndices()
	total := len(indices)
	for _, idx := range indices {
		if err := db.env.Disassociate(idx.name); err != nil {
			return db.storeErr("drop index "+idx.name, err)
		}
	}
	for i, idx := range indices {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := db.env.Associate(idx.primary, idx.name, idx.keys); err != nil {
			return db.storeErr("create index "+idx.name, err)
		}
		if progress != nil {
			progress(i+1, total)
		}
	}
	db.log.Infow("secondary indices rebuilt", "count", total)
	return db.rebuildSurnameList()
}

// IndexState reports whether the named secondary index is active or
// suspended by a batch transaction.
func (db *DB) IndexState(name string) kv.IndexState {
	if db.env == nil {
		return kv.IndexSuspended
	}
	return db.env.State(name)
}

// suspendBatchIndices drops the indices that are too costly to maintain
// during bulk writes. When one cannot be suspended the ones already dropped
// are resumed, so a failed Begin leaves every index active.
func (db *DB) suspendBatchIndices() error {
	var suspended []string
	for _, idx := range secondaryIndices() {
		if !idx.suspendInBatch {
			continue
		}
		if err := db.env.Suspend(idx.name); err != nil {
			err = db.storeErr("suspend index "+idx.name, err)
			for _, name := range suspended {
				err = multierr.Append(err, db.storeErr("resume index "+name, db.env.Resume(name)))
			}
			return err
		}
		suspended = append(suspended, idx.name)
	}
	return nil
}

func (db *DB) resumeBatchIndices() error {
	for _, idx := range secondaryIndices() {
		if !idx.suspendInBatch {
			continue
		}
		if err := db.env.Resume(idx.name); err != nil {
			return db.storeErr("resume index "+idx.name, err)
		}
	}
	return nil
}
