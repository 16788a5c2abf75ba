package kv

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backendCase struct {
	name string
	open func(t *testing.T, dir string, readOnly bool) Backend
}

func backends() []backendCase {
	return []backendCase{
		{BackendSQLite, func(t *testing.T, dir string, readOnly bool) Backend {
			b, err := OpenSQLite(dir, Options{ReadOnly: readOnly})
			require.NoError(t, err)
			return b
		}},
		{BackendBadger, func(t *testing.T, dir string, readOnly bool) Backend {
			b, err := OpenBadger(dir, Options{ReadOnly: readOnly})
			require.NoError(t, err)
			return b
		}},
	}
}

func newTestEnv(t *testing.T, bc backendCase) *Env {
	t.Helper()
	b := bc.open(t, t.TempDir(), false)
	t.Cleanup(func() { b.Close() })
	env := NewEnv(b, false, nil)
	env.pageSize = 2
	return env
}

// firstWord indexes a row by the first space-separated word of its value.
func firstWord(_, value []byte) ([][]byte, error) {
	if len(value) == 0 {
		return nil, nil
	}
	word, _, _ := bytes.Cut(value, []byte(" "))
	return [][]byte{word}, nil
}

func put(t *testing.T, env *Env, table, key, value string) {
	t.Helper()
	require.NoError(t, env.Update(func(tx *Txn) error {
		return tx.Put(table, []byte(key), []byte(value))
	}))
}

func collect(t *testing.T, c *Cursor) []string {
	t.Helper()
	defer c.Close()
	var out []string
	for c.Next() {
		out = append(out, string(c.Key())+"="+string(c.Value()))
	}
	require.NoError(t, c.Err())
	return out
}

func indexValues(t *testing.T, env *Env, index, ikey string) []string {
	t.Helper()
	c, err := env.IndexCursor(index, []byte(ikey))
	require.NoError(t, err)
	defer c.Close()
	var out []string
	for c.Next() {
		out = append(out, string(c.Value()))
	}
	require.NoError(t, c.Err())
	return out
}

// ============================================================================
// Tables and transactions
// ============================================================================

func TestBackend_GetPutDelete(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			env := newTestEnv(t, bc)
			require.NoError(t, env.OpenTable("person"))

			put(t, env, "person", "h1", "Ann Smith")

			require.NoError(t, env.View(func(tx *Txn) error {
				v, err := tx.Get("person", []byte("h1"))
				require.NoError(t, err)
				assert.Equal(t, "Ann Smith", string(v))

				missing, err := tx.Get("person", []byte("nope"))
				require.NoError(t, err)
				assert.Nil(t, missing)
				return nil
			}))

			require.NoError(t, env.Update(func(tx *Txn) error {
				require.NoError(t, tx.Delete("person", []byte("h1")))
				return tx.Delete("person", []byte("never-there"))
			}))
			require.NoError(t, env.View(func(tx *Txn) error {
				v, err := tx.Get("person", []byte("h1"))
				assert.Nil(t, v)
				return err
			}))
		})
	}
}

func TestBackend_RollbackDiscards(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			env := newTestEnv(t, bc)
			require.NoError(t, env.OpenTable("note"))

			boom := errors.New("boom")
			err := env.Update(func(tx *Txn) error {
				require.NoError(t, tx.Put("note", []byte("n1"), []byte("x")))
				return boom
			})
			assert.ErrorIs(t, err, boom)
			assert.Empty(t, collect(t, env.Cursor("note", nil)))
		})
	}
}

func TestBackend_TablesCreateDrop(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			env := newTestEnv(t, bc)
			ok, err := env.Backend().TableExists("family")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, env.OpenTable("family"))
			put(t, env, "family", "f1", "x")
			ok, err = env.Backend().TableExists("family")
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, env.DropTable("family"))
			ok, err = env.Backend().TableExists("family")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, env.OpenTable("family"))
			assert.Empty(t, collect(t, env.Cursor("family", nil)))
		})
	}
}

func TestBackend_InvalidTableName(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			env := newTestEnv(t, bc)
			err := env.OpenTable("person; DROP TABLE x")
			assert.ErrorIs(t, err, ErrInvalid)

			var ee *EngineError
			assert.ErrorAs(t, err, &ee)
		})
	}
}

func TestBackend_Check(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			env := newTestEnv(t, bc)
			require.NoError(t, env.OpenTable("person"))
			put(t, env, "person", "h", "v")
			assert.NoError(t, env.Backend().Check())
		})
	}
}

func TestSQLite_MissingTableIsNotFound(t *testing.T) {
	b, err := OpenSQLite(t.TempDir(), Options{})
	require.NoError(t, err)
	defer b.Close()

	tx, err := b.Begin(false)
	require.NoError(t, err)
	defer tx.Rollback()
	_, err = tx.Get("media", []byte("x"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenBackend_Unknown(t *testing.T) {
	_, err := OpenBackend("bdb", t.TempDir(), Options{})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestBackend_ReadOnly(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			dir := t.TempDir()
			b := bc.open(t, dir, false)
			env := NewEnv(b, false, nil)
			require.NoError(t, env.OpenTable("person"))
			put(t, env, "person", "h1", "Ann")
			require.NoError(t, b.Close())

			ro := bc.open(t, dir, true)
			defer ro.Close()
			roEnv := NewEnv(ro, true, nil)

			require.NoError(t, roEnv.OpenTable("person"))
			assert.ErrorIs(t, roEnv.OpenTable("event"), ErrNotFound)
			_, err := roEnv.Begin(true)
			assert.ErrorIs(t, err, ErrReadOnly)
			assert.Equal(t, []string{"h1=Ann"}, collect(t, roEnv.Cursor("person", nil)))
		})
	}
}

// ============================================================================
// Cursors
// ============================================================================

func TestCursor_PagesInKeyOrder(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			env := newTestEnv(t, bc)
			require.NoError(t, env.OpenTable("event"))
			for _, k := range []string{"e", "a", "d", "b", "c"} {
				put(t, env, "event", k, "v"+k)
			}

			assert.Equal(t, []string{"a=va", "b=vb", "c=vc", "d=vd", "e=ve"}, collect(t, env.Cursor("event", nil)))
		})
	}
}

func TestCursor_Prefix(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			env := newTestEnv(t, bc)
			require.NoError(t, env.OpenTable("reference_map"))
			put(t, env, "reference_map", "p1\x00a", "1")
			put(t, env, "reference_map", "p1\x00b", "2")
			put(t, env, "reference_map", "p1\x00c", "3")
			put(t, env, "reference_map", "p10\x00a", "4")
			put(t, env, "reference_map", "p2\x00a", "5")

			got := collect(t, env.Cursor("reference_map", []byte("p1\x00")))
			assert.Equal(t, []string{"p1\x00a=1", "p1\x00b=2", "p1\x00c=3"}, got)
		})
	}
}

func TestCursor_CloseStopsIteration(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			env := newTestEnv(t, bc)
			require.NoError(t, env.OpenTable("place"))
			put(t, env, "place", "a", "1")
			put(t, env, "place", "b", "2")

			c := env.Cursor("place", nil)
			require.True(t, c.Next())
			require.NoError(t, c.Close())
			assert.False(t, c.Next())
		})
	}
}

func TestTxn_ScanStopsEarly(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			env := newTestEnv(t, bc)
			require.NoError(t, env.OpenTable("source"))
			for _, k := range []string{"a", "b", "c", "d", "e"} {
				put(t, env, "source", k, k)
			}

			var seen []string
			require.NoError(t, env.View(func(tx *Txn) error {
				return tx.Scan("source", nil, func(k, _ []byte) (bool, error) {
					seen = append(seen, string(k))
					return len(seen) < 3, nil
				})
			}))
			assert.Equal(t, []string{"a", "b", "c"}, seen)
		})
	}
}

// ============================================================================
// Associated indices
// ============================================================================

func TestAssociate_MaintainsIndex(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			env := newTestEnv(t, bc)
			require.NoError(t, env.OpenTable("person"))
			require.NoError(t, env.Associate("person", "surnames", firstWord))

			put(t, env, "person", "h1", "Smith Ann")
			put(t, env, "person", "h2", "Smith Bob")
			put(t, env, "person", "h3", "Jones Cat")
			assert.Equal(t, []string{"h1", "h2"}, indexValues(t, env, "surnames", "Smith"))

			put(t, env, "person", "h2", "Jones Bob")
			assert.Equal(t, []string{"h1"}, indexValues(t, env, "surnames", "Smith"))
			assert.Equal(t, []string{"h2", "h3"}, indexValues(t, env, "surnames", "Jones"))

			require.NoError(t, env.Update(func(tx *Txn) error {
				return tx.Delete("person", []byte("h3"))
			}))
			assert.Equal(t, []string{"h2"}, indexValues(t, env, "surnames", "Jones"))

			require.NoError(t, env.View(func(tx *Txn) error {
				pkey, err := tx.Lookup("surnames", []byte("Smith"))
				require.NoError(t, err)
				assert.Equal(t, "h1", string(pkey))

				pkey, err = tx.Lookup("surnames", []byte("Brown"))
				require.NoError(t, err)
				assert.Nil(t, pkey)
				return nil
			}))
		})
	}
}

func TestAssociate_PopulatesExistingRows(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			env := newTestEnv(t, bc)
			require.NoError(t, env.OpenTable("person"))
			for i, v := range []string{"Smith A", "Smith B", "Smith C", "Jones D", "Smith E"} {
				put(t, env, "person", string(rune('a'+i)), v)
			}

			require.NoError(t, env.Associate("person", "surnames", firstWord))
			assert.Equal(t, []string{"a", "b", "c", "e"}, indexValues(t, env, "surnames", "Smith"))
		})
	}
}

func TestSuspendResume(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			env := newTestEnv(t, bc)
			require.NoError(t, env.OpenTable("person"))
			require.NoError(t, env.Associate("person", "surnames", firstWord))
			put(t, env, "person", "h1", "Smith Ann")

			require.NoError(t, env.Suspend("surnames"))
			assert.Equal(t, IndexSuspended, env.State("surnames"))
			ok, err := env.Backend().TableExists("surnames")
			require.NoError(t, err)
			assert.False(t, ok)

			_, err = env.IndexCursor("surnames", []byte("Smith"))
			assert.ErrorIs(t, err, ErrIndexSuspended)
			assert.ErrorIs(t, env.View(func(tx *Txn) error {
				_, err := tx.Lookup("surnames", []byte("Smith"))
				return err
			}), ErrIndexSuspended)

			put(t, env, "person", "h2", "Smith Bob")
			put(t, env, "person", "h1", "Jones Ann")

			require.NoError(t, env.Resume("surnames"))
			assert.Equal(t, IndexActive, env.State("surnames"))
			assert.Equal(t, []string{"h2"}, indexValues(t, env, "surnames", "Smith"))
			assert.Equal(t, []string{"h1"}, indexValues(t, env, "surnames", "Jones"))
		})
	}
}

func TestIndexCursor_SuspendedMidIteration(t *testing.T) {
	env := newTestEnv(t, backends()[0])
	require.NoError(t, env.OpenTable("person"))
	require.NoError(t, env.Associate("person", "surnames", firstWord))
	for _, k := range []string{"a", "b", "c", "d"} {
		put(t, env, "person", k, "Smith "+k)
	}

	c, err := env.IndexCursor("surnames", []byte("Smith"))
	require.NoError(t, err)
	defer c.Close()
	require.True(t, c.Next())
	require.True(t, c.Next())
	require.NoError(t, env.Suspend("surnames"))
	assert.False(t, c.Next())
	assert.ErrorIs(t, c.Err(), ErrIndexSuspended)
}

func TestDisassociate(t *testing.T) {
	env := newTestEnv(t, backends()[0])
	require.NoError(t, env.OpenTable("person"))
	require.NoError(t, env.Associate("person", "surnames", firstWord))
	require.NoError(t, env.Disassociate("surnames"))

	put(t, env, "person", "h1", "Smith Ann")
	assert.Equal(t, IndexSuspended, env.State("surnames"))
	ok, err := env.Backend().TableExists("surnames")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte("ab"), prefixEnd([]byte("aa")))
	assert.Equal(t, []byte{0x01}, prefixEnd([]byte{0x00, 0xff}))
	assert.Nil(t, prefixEnd([]byte{0xff, 0xff}))
}
