package kv

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
)

// BadgerDir is the badger data directory inside the store directory.
const BadgerDir = "badger"

// Badger stores every table in one badger keyspace; a table's rows share
// the key prefix "<table>/".
type Badger struct {
	db       *badger.DB
	readOnly bool
}

var _ Backend = (*Badger)(nil)

var tableMarker = []byte("\x00table\x00")

// OpenBadger opens the badger keyspace under dir.
func OpenBadger(dir string, opts Options) (*Badger, error) {
	path := filepath.Join(dir, BadgerDir)
	bopts := badger.DefaultOptions(path)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else if opts.ReadOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, engineErr("open", ErrNotFound, err)
		}
	}
	bopts = bopts.WithReadOnly(opts.ReadOnly && !opts.InMemory)
	if opts.Logger != nil {
		bopts = bopts.WithLogger(badgerLogger{opts.Logger}).WithLoggingLevel(badger.WARNING)
	} else {
		bopts = bopts.WithLogger(nil)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, mapBadgerError("open", err)
	}
	return &Badger{db: db, readOnly: opts.ReadOnly}, nil
}

func (b *Badger) Begin(writable bool) (Tx, error) {
	if writable && b.readOnly {
		return nil, engineErr("begin", ErrAccess, ErrReadOnly)
	}
	return &badgerTx{txn: b.db.NewTransaction(writable), writable: writable}, nil
}

func (b *Badger) CreateTable(name string) error {
	if err := validateTable(name); err != nil {
		return err
	}
	if b.readOnly {
		return engineErr("create table "+name, ErrAccess, ErrReadOnly)
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(tableKey(name), nil)
	})
	return mapBadgerError("create table "+name, err)
}

func (b *Badger) DropTable(name string) error {
	if err := validateTable(name); err != nil {
		return err
	}
	if b.readOnly {
		return engineErr("drop table "+name, ErrAccess, ErrReadOnly)
	}
	if err := b.db.DropPrefix(rowPrefix(name, nil)); err != nil {
		return mapBadgerError("drop table "+name, err)
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(tableKey(name))
	})
	return mapBadgerError("drop table "+name, err)
}

func (b *Badger) TableExists(name string) (bool, error) {
	if err := validateTable(name); err != nil {
		return false, err
	}
	var found bool
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(tableKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, mapBadgerError("table exists "+name, err)
}

func (b *Badger) Check() error {
	return mapBadgerError("verify checksum", b.db.VerifyChecksum())
}

func (b *Badger) Close() error {
	return mapBadgerError("close", b.db.Close())
}

type badgerTx struct {
	txn      *badger.Txn
	writable bool
}

func (t *badgerTx) Get(table string, key []byte) ([]byte, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}
	item, err := t.txn.Get(rowPrefix(table, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, mapBadgerError("get "+table, err)
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, mapBadgerError("get "+table, err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

func (t *badgerTx) Put(table string, key, value []byte) error {
	if err := validateTable(table); err != nil {
		return err
	}
	return mapBadgerError("put "+table, t.txn.Set(rowPrefix(table, key), value))
}

func (t *badgerTx) Delete(table string, key []byte) error {
	if err := validateTable(table); err != nil {
		return err
	}
	return mapBadgerError("delete "+table, t.txn.Delete(rowPrefix(table, key)))
}

func (t *badgerTx) Page(table string, prefix, after []byte, limit int) ([]Pair, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}
	tp := rowPrefix(table, nil)
	full := rowPrefix(table, prefix)
	start := full
	if after != nil {
		start = rowPrefix(table, after)
	}

	it := t.txn.NewIterator(badger.IteratorOptions{
		PrefetchValues: true,
		PrefetchSize:   limit,
		Prefix:         full,
	})
	defer it.Close()

	var pairs []Pair
	for it.Seek(start); it.ValidForPrefix(full) && len(pairs) < limit; it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)[len(tp):]
		if after != nil && bytes.Equal(key, after) {
			continue
		}
		value, err := item.ValueCopy(nil)
		if err != nil {
			return nil, mapBadgerError("scan "+table, err)
		}
		pairs = append(pairs, Pair{Key: key, Value: value})
	}
	return pairs, nil
}

func (t *badgerTx) Commit() error {
	if !t.writable {
		t.txn.Discard()
		return nil
	}
	return mapBadgerError("commit", t.txn.Commit())
}

func (t *badgerTx) Rollback() error {
	t.txn.Discard()
	return nil
}

func tableKey(name string) []byte {
	return append(append([]byte(nil), tableMarker...), name...)
}

func rowPrefix(table string, key []byte) []byte {
	out := make([]byte, 0, len(table)+1+len(key))
	out = append(out, table...)
	out = append(out, '/')
	return append(out, key...)
}

func mapBadgerError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrTruncateNeeded), errors.Is(err, badger.ErrEncryptionKeyMismatch):
		return engineErr(op, ErrRecoveryRequired, err)
	case errors.Is(err, badger.ErrReadOnlyTxn), errors.Is(err, badger.ErrBlockedWrites),
		errors.Is(err, badger.ErrDBClosed), errors.Is(err, os.ErrPermission):
		return engineErr(op, ErrAccess, err)
	case errors.Is(err, badger.ErrEmptyKey), errors.Is(err, badger.ErrInvalidKey),
		errors.Is(err, badger.ErrTxnTooBig), errors.Is(err, badger.ErrInvalidRequest),
		errors.Is(err, badger.ErrDiscardedTxn):
		return engineErr(op, ErrInvalid, err)
	}
	return engineErr(op, ErrStorage, err)
}

type badgerLogger struct {
	l Logger
}

func (b badgerLogger) Errorf(f string, args ...any)   { b.l.Errorf("badger: "+f, args...) }
func (b badgerLogger) Warningf(f string, args ...any) { b.l.Warnf("badger: "+f, args...) }
func (b badgerLogger) Infof(f string, args ...any)    { b.l.Infof("badger: "+f, args...) }
func (b badgerLogger) Debugf(f string, args ...any)   { b.l.Debugf("badger: "+f, args...) }
