package genstore

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/genstore/internal/kv"
	"github.com/jward/genstore/internal/model"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()
	return openTestDB(t, t.TempDir(), opts...)
}

func openTestDB(t *testing.T, dir string, opts ...Option) *DB {
	t.Helper()
	opts = append([]Option{withClock(func() time.Time { return testNow })}, opts...)
	db, err := Open(dir, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// forEachBackend runs fn against a SQLite store on disk and an in-memory
// Badger store.
func forEachBackend(t *testing.T, fn func(t *testing.T, db *DB)) {
	t.Run("sqlite", func(t *testing.T) {
		fn(t, newTestDB(t))
	})
	t.Run("badger", func(t *testing.T) {
		fn(t, openTestDB(t, "", InMemory()))
	})
}

// dump copies every table the store writes during transactions.
func dump(t require.TestingT, db *DB) map[string]map[string]string {
	tables := append(primaryTables(), tableReferenceMap)
	for _, idx := range secondaryIndices() {
		tables = append(tables, idx.name)
	}
	out := make(map[string]map[string]string)
	for _, name := range tables {
		rows := make(map[string]string)
		c := db.env.Cursor(name, nil)
		for c.Next() {
			rows[string(c.Key())] = string(c.Value())
		}
		require.NoError(t, c.Err())
		c.Close()
		out[name] = rows
	}
	return out
}

func person(first, surname string, g model.Gender) *Person {
	return &Person{
		Gender:      g,
		PrimaryName: Name{FirstName: first, Surname: surname},
	}
}

func addPerson(t *testing.T, db *DB, p *Person) Handle {
	t.Helper()
	var h Handle
	require.NoError(t, db.WithTransaction("add person", func(tx *Txn) error {
		var err error
		h, err = db.AddPerson(p, tx)
		return err
	}))
	return h
}

func TestOpen_CreatesStore(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *DB) {
		assert.Equal(t, StateOpen, db.State())
		assert.True(t, db.IsOpen())
		assert.False(t, db.IsReadOnly())

		v, err := db.Version()
		require.NoError(t, err)
		assert.Equal(t, SchemaVersion, v)

		stats, err := db.Stats()
		require.NoError(t, err)
		for _, k := range model.Kinds() {
			assert.Zero(t, stats[k], k.String())
		}
		for _, idx := range secondaryIndices() {
			assert.Equal(t, kv.IndexActive, db.IndexState(idx.name), idx.name)
		}
	})
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(t.TempDir(), WithBackend("bolt"))
	require.Error(t, err)
}

func TestClose_Idempotent(t *testing.T) {
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())
	assert.Equal(t, StateClosed, db.State())
}

func TestClosedStore(t *testing.T) {
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	p, err := db.GetPerson("abc")
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = db.Begin("late")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = db.Count(KindPerson)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLockFile(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)

	owner, err := LockOwner(dir)
	require.NoError(t, err)
	assert.Contains(t, owner, "@")

	require.NoError(t, db.Close())
	owner, err = LockOwner(dir)
	require.NoError(t, err)
	assert.Empty(t, owner)
}

func TestBreakLock(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, LockFile), []byte("someone@elsewhere"), 0o644))

	owner, err := LockOwner(dir)
	require.NoError(t, err)
	assert.Equal(t, "someone@elsewhere", owner)

	require.NoError(t, BreakLock(dir))
	require.NoError(t, BreakLock(dir))
	owner, err = LockOwner(dir)
	require.NoError(t, err)
	assert.Empty(t, owner)
}

func TestOpen_ClearsRecoveryMarker(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	addPerson(t, db, person("Ann", "Smith", model.Female))
	require.NoError(t, db.Close())

	require.NoError(t, writeRecoveryMarker(dir))
	require.True(t, hasRecoveryMarker(dir))

	db = openTestDB(t, dir)
	assert.False(t, hasRecoveryMarker(dir))
	n, err := db.Count(KindPerson)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStoreErr_WritesRecoveryMarker(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)

	err := db.storeErr("write", &kv.EngineError{Op: "put", Cond: kv.ErrRecoveryRequired, Err: errors.New("disk image is malformed")})
	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "write", se.Op)
	assert.ErrorIs(t, err, kv.ErrRecoveryRequired)
	assert.ErrorIs(t, err, kv.ErrStorage)
	assert.True(t, hasRecoveryMarker(dir))

	err = db.storeErr("read", &kv.EngineError{Op: "get", Cond: kv.ErrAccess, Err: errors.New("permission denied")})
	assert.ErrorIs(t, err, kv.ErrAccess)
	assert.NoError(t, db.storeErr("noop", nil))
}

func TestReadOnly_IgnoresMutations(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	h := addPerson(t, db, person("Ann", "Smith", model.Female))
	require.NoError(t, db.Close())
	before := dumpDir(t, dir)

	ro := openTestDB(t, dir, ReadOnly())
	assert.True(t, ro.IsReadOnly())
	owner, err := LockOwner(dir)
	require.NoError(t, err)
	assert.Empty(t, owner, "read-only open must not lock")

	p, err := ro.GetPerson(h)
	require.NoError(t, err)
	require.NotNil(t, p)

	require.NoError(t, ro.WithTransaction("edit", func(tx *Txn) error {
		p.PrimaryName.FirstName = "Anne"
		if err := ro.CommitPerson(p, tx); err != nil {
			return err
		}
		if _, err := ro.AddPerson(person("Bob", "Jones", model.Male), tx); err != nil {
			return err
		}
		return ro.RemovePerson(h, tx)
	}))
	require.NoError(t, ro.SetDefaultPerson(h))
	require.NoError(t, ro.SetBookmarks(KindPerson, []Handle{h}))

	ok, err := ro.Undo()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, ro.CanUndo())

	require.NoError(t, ro.Close())
	assert.Equal(t, before, dumpDir(t, dir))
}

// dumpDir reopens the store in dir read-only and dumps it.
func dumpDir(t *testing.T, dir string) map[string]map[string]string {
	t.Helper()
	db, err := Open(dir, ReadOnly())
	require.NoError(t, err)
	defer db.Close()
	out := dump(t, db)
	meta := make(map[string]string)
	c := db.env.Cursor(tableMetadata, nil)
	for c.Next() {
		meta[string(c.Key())] = string(c.Value())
	}
	require.NoError(t, c.Err())
	c.Close()
	out[tableMetadata] = meta
	return out
}

func TestVersion_TooNew(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	require.NoError(t, db.setVersion(SchemaVersion+1))
	require.NoError(t, db.Close())

	_, err := Open(dir)
	require.ErrorIs(t, err, ErrVersion)
	var ve *VersionError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, SchemaVersion+1, ve.Found)
	assert.Equal(t, MinSupportedVersion, ve.Min)
	assert.Equal(t, SchemaVersion, ve.Max)
}

func TestVersion_TooOld(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	require.NoError(t, db.setVersion(MinSupportedVersion-1))
	require.NoError(t, db.Close())

	// A store with no version at all is new; version 0 reads the same way.
	db = openTestDB(t, dir)
	v, err := db.Version()
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, v)

	require.NoError(t, db.setVersion(-1))
	require.NoError(t, db.Close())
	_, err = Open(dir)
	assert.ErrorIs(t, err, ErrVersion)
}

func TestUpgrade_RunsChain(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	father := addPerson(t, db, person("John", "Smith", model.Male))
	var fam Handle
	require.NoError(t, db.WithTransaction("add family", func(tx *Txn) error {
		var err error
		fam, err = db.AddFamily(&Family{Father: father}, tx)
		return err
	}))
	// Simulate a version 1 store whose reference map was never built.
	require.NoError(t, db.env.DropTable(tableReferenceMap))
	require.NoError(t, db.setVersion(1))
	require.NoError(t, db.Close())

	var asked [2]int
	var progress []int
	db = openTestDB(t, dir,
		WithUpgradeConfirm(func(from, to int) bool {
			asked = [2]int{from, to}
			return true
		}),
		WithUpgradeProgress(func(done, total int) {
			progress = append(progress, done)
		}),
	)
	assert.Equal(t, [2]int{1, SchemaVersion}, asked)
	assert.NotEmpty(t, progress)

	v, err := db.Version()
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, v)

	links := collectBacklinks(t, db, father)
	assert.Equal(t, []Backlink{{Kind: KindFamily, Handle: fam}}, links)
	assert.False(t, db.CanUndo())
}

func TestUpgrade_Declined(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	require.NoError(t, db.setVersion(2))
	require.NoError(t, db.Close())

	_, err := Open(dir, WithUpgradeConfirm(func(from, to int) bool { return false }))
	require.ErrorIs(t, err, ErrUpgradeDeclined)

	_, err = Open(dir, ReadOnly())
	require.ErrorIs(t, err, ErrVersion)
	var ve *VersionError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, 2, ve.Found)
	assert.NotEmpty(t, ve.Reason)
}

func TestUpgrade_MissingStep(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	require.NoError(t, db.setVersion(1))
	require.NoError(t, db.Close())

	_, err := Open(dir, WithUpgrades(DefaultUpgrades()[1]))
	require.ErrorIs(t, err, ErrVersion)
	assert.True(t, strings.Contains(err.Error(), "no upgrade from version 1"))
}
