package kv

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// SQLiteFile is the database file name inside the store directory.
const SQLiteFile = "genstore.db"

// SQLite stores each table as a key/value table in one SQLite database.
type SQLite struct {
	db       *sql.DB
	path     string
	readOnly bool
	log      Logger
}

var _ Backend = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the SQLite database in dir. The
// database runs in WAL mode so short read transactions can proceed while a
// write transaction is open.
func OpenSQLite(dir string, opts Options) (*SQLite, error) {
	if opts.InMemory {
		return nil, &EngineError{Op: "open", Cond: ErrInvalid, Err: errors.New("sqlite backend does not support in-memory stores")}
	}
	path := filepath.Join(dir, SQLiteFile)

	dsn := path + "?_journal_mode=WAL&_busy_timeout=30000"
	if opts.ReadOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, engineErr("open", ErrNotFound, err)
		}
		dsn = path + "?_busy_timeout=30000&_query_only=true"
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, engineErr("open", ErrAccess, err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, mapSQLiteError("open database", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, mapSQLiteError("ping database", err)
	}
	return &SQLite{db: db, path: path, readOnly: opts.ReadOnly, log: opts.Logger}, nil
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.path
}

func (s *SQLite) Begin(writable bool) (Tx, error) {
	if writable && s.readOnly {
		return nil, engineErr("begin", ErrAccess, ErrReadOnly)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return nil, mapSQLiteError("begin transaction", err)
	}
	return &sqliteTx{tx: tx, writable: writable}, nil
}

func (s *SQLite) CreateTable(name string) error {
	if err := validateTable(name); err != nil {
		return err
	}
	if s.readOnly {
		return engineErr("create table "+name, ErrAccess, ErrReadOnly)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (key BLOB PRIMARY KEY, value BLOB NOT NULL) WITHOUT ROWID`, name)
	if _, err := s.db.Exec(ddl); err != nil {
		return mapSQLiteError("create table "+name, err)
	}
	return nil
}

func (s *SQLite) DropTable(name string) error {
	if err := validateTable(name); err != nil {
		return err
	}
	if s.readOnly {
		return engineErr("drop table "+name, ErrAccess, ErrReadOnly)
	}
	if _, err := s.db.Exec("DROP TABLE IF EXISTS " + name); err != nil {
		return mapSQLiteError("drop table "+name, err)
	}
	return nil
}

func (s *SQLite) TableExists(name string) (bool, error) {
	if err := validateTable(name); err != nil {
		return false, err
	}
	var one int
	err := s.db.QueryRow("SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, mapSQLiteError("table exists "+name, err)
	}
	return true, nil
}

func (s *SQLite) Check() error {
	rows, err := s.db.Query("PRAGMA integrity_check")
	if err != nil {
		return mapSQLiteError("integrity check", err)
	}
	defer rows.Close()

	var problems []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return mapSQLiteError("integrity check", err)
		}
		if line != "ok" {
			problems = append(problems, line)
		}
	}
	if err := rows.Err(); err != nil {
		return mapSQLiteError("integrity check", err)
	}
	if len(problems) > 0 {
		return &EngineError{Op: "integrity check", Cond: ErrRecoveryRequired, Err: errors.New(strings.Join(problems, "; "))}
	}
	return nil
}

func (s *SQLite) Close() error {
	if !s.readOnly {
		if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil && s.log != nil {
			s.log.Warnf("sqlite: checkpoint on close: %v", err)
		}
	}
	if err := s.db.Close(); err != nil {
		return mapSQLiteError("close database", err)
	}
	return nil
}

type sqliteTx struct {
	tx       *sql.Tx
	writable bool
}

func (t *sqliteTx) Get(table string, key []byte) ([]byte, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}
	var value []byte
	err := t.tx.QueryRow("SELECT value FROM "+table+" WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapSQLiteError("get "+table, err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

func (t *sqliteTx) Put(table string, key, value []byte) error {
	if err := validateTable(table); err != nil {
		return err
	}
	if !t.writable {
		return engineErr("put "+table, ErrInvalid, ErrReadOnly)
	}
	if value == nil {
		value = []byte{}
	}
	if _, err := t.tx.Exec("INSERT OR REPLACE INTO "+table+" (key, value) VALUES (?, ?)", key, value); err != nil {
		return mapSQLiteError("put "+table, err)
	}
	return nil
}

func (t *sqliteTx) Delete(table string, key []byte) error {
	if err := validateTable(table); err != nil {
		return err
	}
	if !t.writable {
		return engineErr("delete "+table, ErrInvalid, ErrReadOnly)
	}
	if _, err := t.tx.Exec("DELETE FROM "+table+" WHERE key = ?", key); err != nil {
		return mapSQLiteError("delete "+table, err)
	}
	return nil
}

func (t *sqliteTx) Page(table string, prefix, after []byte, limit int) ([]Pair, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}
	var (
		conds []string
		args  []any
	)
	if len(prefix) > 0 {
		conds = append(conds, "key >= ?")
		args = append(args, prefix)
		if end := prefixEnd(prefix); end != nil {
			conds = append(conds, "key < ?")
			args = append(args, end)
		}
	}
	if after != nil {
		conds = append(conds, "key > ?")
		args = append(args, after)
	}
	query := "SELECT key, value FROM " + table
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY key LIMIT ?"
	args = append(args, limit)

	rows, err := t.tx.Query(query, args...)
	if err != nil {
		return nil, mapSQLiteError("scan "+table, err)
	}
	defer rows.Close()

	var pairs []Pair
	for rows.Next() {
		var p Pair
		if err := rows.Scan(&p.Key, &p.Value); err != nil {
			return nil, mapSQLiteError("scan "+table, err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapSQLiteError("scan "+table, err)
	}
	return pairs, nil
}

func (t *sqliteTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return mapSQLiteError("commit", err)
	}
	return nil
}

func (t *sqliteTx) Rollback() error {
	err := t.tx.Rollback()
	if err == nil || errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return mapSQLiteError("rollback", err)
}

// mapSQLiteError classifies a SQLite failure into one of the package
// conditions.
func mapSQLiteError(op string, err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrCorrupt, sqlite3.ErrNotADB, sqlite3.ErrIoErr, sqlite3.ErrFormat:
			return engineErr(op, ErrRecoveryRequired, err)
		case sqlite3.ErrPerm, sqlite3.ErrReadonly, sqlite3.ErrCantOpen, sqlite3.ErrAuth:
			return engineErr(op, ErrAccess, err)
		case sqlite3.ErrNotFound:
			return engineErr(op, ErrNotFound, err)
		case sqlite3.ErrConstraint, sqlite3.ErrMismatch, sqlite3.ErrRange, sqlite3.ErrMisuse, sqlite3.ErrTooBig:
			return engineErr(op, ErrInvalid, err)
		case sqlite3.ErrError:
			if strings.Contains(sqliteErr.Error(), "no such table") {
				return engineErr(op, ErrNotFound, err)
			}
		}
	}
	return engineErr(op, ErrStorage, err)
}
