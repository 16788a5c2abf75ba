package genstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/genstore/internal/model"
)

func TestAddPerson_RoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *DB) {
		p := person("Ann", "Smith", model.Female)
		p.AttributeList = []Attribute{{Type: model.AttributeType{Value: model.TypeCustom, Custom: "Eye colour"}, Value: "green"}}
		h := addPerson(t, db, p)

		assert.Len(t, string(h), 32)
		assert.Equal(t, "I0000", p.GrampsID)
		assert.Equal(t, testNow.Unix(), p.Change)

		got, err := db.GetPerson(h)
		require.NoError(t, err)
		assert.Equal(t, p, got)

		byID, err := db.GetPersonByID("I0000")
		require.NoError(t, err)
		assert.Equal(t, p, byID)

		ok, err := db.HasPerson(h)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = db.HasGrampsID(KindPerson, "I0000")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestGet_Missing(t *testing.T) {
	db := newTestDB(t)

	p, err := db.GetPerson("missing")
	require.NoError(t, err)
	assert.Nil(t, p)

	n, err := db.GetNoteByID("N9999")
	require.NoError(t, err)
	assert.Nil(t, n)

	ok, err := db.HasFamily("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	obj, err := db.Get(KindEvent, "")
	require.NoError(t, err)
	assert.Nil(t, obj)
}

func TestCommit_AtOption(t *testing.T) {
	db := newTestDB(t)
	when := time.Date(1999, 12, 31, 23, 59, 0, 0, time.UTC)
	n := &Note{Text: "census transcription"}
	require.NoError(t, db.WithTransaction("note", func(tx *Txn) error {
		_, err := db.AddNote(n, tx, At(when))
		return err
	}))
	got, err := db.GetNote(n.Handle)
	require.NoError(t, err)
	assert.Equal(t, when.Unix(), got.Change)
}

func TestCommit_WithoutHandleIsIgnored(t *testing.T) {
	db := newTestDB(t)
	tx, err := db.Begin("nothing")
	require.NoError(t, err)
	require.NoError(t, db.CommitNote(&Note{Text: "orphan"}, tx))
	assert.Zero(t, tx.Len())
	require.NoError(t, db.CommitTransaction(tx))

	n, err := db.Count(KindNote)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRemove(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *DB) {
		h := addPerson(t, db, person("Ann", "Smith", model.Female))
		require.NoError(t, db.WithTransaction("remove", func(tx *Txn) error {
			return db.RemovePerson(h, tx)
		}))

		p, err := db.GetPerson(h)
		require.NoError(t, err)
		assert.Nil(t, p)
		ok, err := db.HasGrampsID(KindPerson, "I0000")
		require.NoError(t, err)
		assert.False(t, ok)

		// Removing again is a no-op.
		require.NoError(t, db.WithTransaction("remove again", func(tx *Txn) error {
			return db.RemovePerson(h, tx)
		}))
	})
}

func TestGrampsIDAllocation(t *testing.T) {
	db := newTestDB(t)

	manual := person("Manual", "Id", model.Male)
	manual.GrampsID = "I0001"
	addPerson(t, db, manual)

	var ids []string
	require.NoError(t, db.WithTransaction("add two", func(tx *Txn) error {
		for _, first := range []string{"Ann", "Bob"} {
			p := person(first, "Smith", model.UnknownGender)
			if _, err := db.AddPerson(p, tx); err != nil {
				return err
			}
			ids = append(ids, p.GrampsID)
		}
		return nil
	}))
	assert.Equal(t, []string{"I0000", "I0002"}, ids)

	got, err := db.GetPersonByID("I0001")
	require.NoError(t, err)
	assert.Equal(t, manual.Handle, got.Handle)
}

func TestGrampsIDAllocation_CustomFormat(t *testing.T) {
	db := newTestDB(t, WithIDFormat(KindEvent, "EV-%d"))
	e := &Event{Type: model.EventType{Value: model.EventBirth}}
	require.NoError(t, db.WithTransaction("event", func(tx *Txn) error {
		_, err := db.AddEvent(e, tx)
		return err
	}))
	assert.Equal(t, "EV-0", e.GrampsID)
	assert.Equal(t, "F%04d", db.IDFormat(KindFamily))
}

func TestCreateID_Unique(t *testing.T) {
	seen := make(map[Handle]bool)
	for range 1000 {
		h := CreateID()
		require.Len(t, string(h), 32)
		require.False(t, seen[h])
		seen[h] = true
	}
}

func TestGenderStats_FollowCommits(t *testing.T) {
	db := newTestDB(t)
	p := person("Ann Marie", "Smith", model.Female)
	h := addPerson(t, db, p)

	stats := db.GenderStats()
	assert.Equal(t, model.GenderCount{Female: 1}, stats.Count("Ann"))

	p.PrimaryName.FirstName = "Anne"
	require.NoError(t, db.WithTransaction("rename", func(tx *Txn) error {
		return db.CommitPerson(p, tx)
	}))
	stats = db.GenderStats()
	assert.Zero(t, stats.Count("Ann"))
	assert.Equal(t, model.GenderCount{Female: 1}, stats.Count("Anne"))
	assert.Equal(t, model.Female, stats.Guess("Anne"))

	require.NoError(t, db.WithTransaction("remove", func(tx *Txn) error {
		return db.RemovePerson(h, tx)
	}))
	assert.Empty(t, db.GenderStats().Names)
}

func TestVocabulary_CollectsCustomTypes(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.WithTransaction("customs", func(tx *Txn) error {
		if _, err := db.AddEvent(&Event{Type: model.EventType{Value: model.TypeCustom, Custom: "Graduation"}}, tx); err != nil {
			return err
		}
		if _, err := db.AddEvent(&Event{Type: model.EventType{Value: model.EventBirth}}, tx); err != nil {
			return err
		}
		_, err := db.AddRepository(&Repository{Type: model.RepositoryType{Value: model.TypeCustom, Custom: "Parish chest"}}, tx)
		return err
	}))
	assert.Equal(t, []string{"Graduation"}, db.Vocabulary(VocabEventNames))
	assert.Equal(t, []string{"Parish chest"}, db.Vocabulary(VocabRepositoryTypes))
	assert.Empty(t, db.Vocabulary(VocabNoteTypes))
}

func TestHandles_Sorted(t *testing.T) {
	db := newTestDB(t)
	zoe := addPerson(t, db, person("Zoe", "Smith", model.Female))
	bob := addPerson(t, db, person("Bob", "adams", model.Male))
	anna := addPerson(t, db, person("Anna", "Smith", model.Female))

	hs, err := db.PersonHandles(true)
	require.NoError(t, err)
	assert.Equal(t, []Handle{bob, anna, zoe}, hs)

	unsorted, err := db.PersonHandles(false)
	require.NoError(t, err)
	assert.ElementsMatch(t, hs, unsorted)
}

func TestHandles_SortedByTitle(t *testing.T) {
	db := newTestDB(t)
	var hs []Handle
	require.NoError(t, db.WithTransaction("places", func(tx *Txn) error {
		for _, title := range []string{"Zürich", "Aberdeen", "Édimbourg"} {
			h, err := db.AddPlace(&Place{Title: title}, tx)
			if err != nil {
				return err
			}
			hs = append(hs, h)
		}
		return nil
	}))
	sorted, err := db.PlaceHandles(true)
	require.NoError(t, err)
	assert.Equal(t, []Handle{hs[1], hs[2], hs[0]}, sorted)
}

func TestQueryByIndex(t *testing.T) {
	db := newTestDB(t)
	smith := addPerson(t, db, person("Ann", "Smith", model.Female))
	addPerson(t, db, person("Bob", "Jones", model.Male))

	var birth Handle
	require.NoError(t, db.WithTransaction("events", func(tx *Txn) error {
		var err error
		birth, err = db.AddEvent(&Event{Type: model.EventType{Value: model.EventBirth}}, tx)
		if err != nil {
			return err
		}
		_, err = db.AddEvent(&Event{Type: model.EventType{Value: model.EventDeath}}, tx)
		return err
	}))

	hs, err := db.PersonHandlesBySurname("Smith")
	require.NoError(t, err)
	assert.Equal(t, []Handle{smith}, hs)

	hs, err = db.EventHandlesByType("Birth")
	require.NoError(t, err)
	assert.Equal(t, []Handle{birth}, hs)

	hs, err = db.RepositoryHandlesByType("Library")
	require.NoError(t, err)
	assert.Empty(t, hs)

	assert.Equal(t, []string{"Jones", "Smith"}, db.SurnameList())
}

func TestScanAndAll(t *testing.T) {
	db := newTestDB(t)
	for _, first := range []string{"A", "B", "C"} {
		addPerson(t, db, person(first, "Smith", model.UnknownGender))
	}

	visited := 0
	require.NoError(t, db.Scan(KindPerson, func(obj Object) (bool, error) {
		visited++
		return visited < 2, nil
	}))
	assert.Equal(t, 2, visited)

	var names []string
	for obj, err := range db.All(KindPerson) {
		require.NoError(t, err)
		names = append(names, obj.(*Person).PrimaryName.FirstName)
	}
	assert.ElementsMatch(t, []string{"A", "B", "C"}, names)

	c, err := db.Cursor(KindPerson)
	require.NoError(t, err)
	require.True(t, c.Next())
	assert.NotEmpty(t, c.Handle())
	assert.NotEmpty(t, c.Data())
	require.NoError(t, c.Close())
	assert.False(t, c.Next())
}
