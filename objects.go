package genstore

import (
	"github.com/jward/genstore/internal/kv"
	"github.com/jward/genstore/internal/model"
)

func getAs[T model.Object](db *DB, k model.Kind, h model.Handle) (T, error) {
	var zero T
	obj, err := db.Get(k, h)
	if err != nil || obj == nil {
		return zero, err
	}
	return obj.(T), nil
}

func getByIDAs[T model.Object](db *DB, k model.Kind, id string) (T, error) {
	var zero T
	obj, err := db.GetByGrampsID(k, id)
	if err != nil || obj == nil {
		return zero, err
	}
	return obj.(T), nil
}

// GetPerson returns the person stored under h, or nil.
func (db *DB) GetPerson(h model.Handle) (*model.Person, error) {
	return getAs[*model.Person](db, model.KindPerson, h)
}

// GetPersonByID returns the person with the given Gramps ID, or nil.
func (db *DB) GetPersonByID(id string) (*model.Person, error) {
	return getByIDAs[*model.Person](db, model.KindPerson, id)
}

func (db *DB) HasPerson(h model.Handle) (bool, error) {
	return db.Has(model.KindPerson, h)
}

func (db *DB) AddPerson(p *model.Person, t *Txn, opts ...CommitOption) (model.Handle, error) {
	return db.Add(p, t, opts...)
}

func (db *DB) CommitPerson(p *model.Person, t *Txn, opts ...CommitOption) error {
	return db.Commit(p, t, opts...)
}

func (db *DB) RemovePerson(h model.Handle, t *Txn) error {
	return db.Remove(model.KindPerson, h, t)
}

// PersonHandles lists the people, optionally in display order.
func (db *DB) PersonHandles(sorted bool) ([]model.Handle, error) {
	return db.Handles(model.KindPerson, sorted)
}

// GetFamily returns the family stored under h, or nil.
func (db *DB) GetFamily(h model.Handle) (*model.Family, error) {
	return getAs[*model.Family](db, model.KindFamily, h)
}

// GetFamilyByID returns the family with the given Gramps ID, or nil.
func (db *DB) GetFamilyByID(id string) (*model.Family, error) {
	return getByIDAs[*model.Family](db, model.KindFamily, id)
}

func (db *DB) HasFamily(h model.Handle) (bool, error) {
	return db.Has(model.KindFamily, h)
}

func (db *DB) AddFamily(f *model.Family, t *Txn, opts ...CommitOption) (model.Handle, error) {
	return db.Add(f, t, opts...)
}

func (db *DB) CommitFamily(f *model.Family, t *Txn, opts ...CommitOption) error {
	return db.Commit(f, t, opts...)
}

func (db *DB) RemoveFamily(h model.Handle, t *Txn) error {
	return db.Remove(model.KindFamily, h, t)
}

// FamilyHandles lists the families, optionally in display order.
func (db *DB) FamilyHandles(sorted bool) ([]model.Handle, error) {
	return db.Handles(model.KindFamily, sorted)
}

// GetSource returns the source stored under h, or nil.
func (db *DB) GetSource(h model.Handle) (*model.Source, error) {
	return getAs[*model.Source](db, model.KindSource, h)
}

// GetSourceByID returns the source with the given Gramps ID, or nil.
func (db *DB) GetSourceByID(id string) (*model.Source, error) {
	return getByIDAs[*model.Source](db, model.KindSource, id)
}

func (db *DB) HasSource(h model.Handle) (bool, error) {
	return db.Has(model.KindSource, h)
}

func (db *DB) AddSource(s *model.Source, t *Txn, opts ...CommitOption) (model.Handle, error) {
	return db.Add(s, t, opts...)
}

func (db *DB) CommitSource(s *model.Source, t *Txn, opts ...CommitOption) error {
	return db.Commit(s, t, opts...)
}

func (db *DB) RemoveSource(h model.Handle, t *Txn) error {
	return db.Remove(model.KindSource, h, t)
}

// SourceHandles lists the sources, optionally in display order.
func (db *DB) SourceHandles(sorted bool) ([]model.Handle, error) {
	return db.Handles(model.KindSource, sorted)
}

// GetEvent returns the event stored under h, or nil.
func (db *DB) GetEvent(h model.Handle) (*model.Event, error) {
	return getAs[*model.Event](db, model.KindEvent, h)
}

// GetEventByID returns the event with the given Gramps ID, or nil.
func (db *DB) GetEventByID(id string) (*model.Event, error) {
	return getByIDAs[*model.Event](db, model.KindEvent, id)
}

func (db *DB) HasEvent(h model.Handle) (bool, error) {
	return db.Has(model.KindEvent, h)
}

func (db *DB) AddEvent(e *model.Event, t *Txn, opts ...CommitOption) (model.Handle, error) {
	return db.Add(e, t, opts...)
}

func (db *DB) CommitEvent(e *model.Event, t *Txn, opts ...CommitOption) error {
	return db.Commit(e, t, opts...)
}

func (db *DB) RemoveEvent(h model.Handle, t *Txn) error {
	return db.Remove(model.KindEvent, h, t)
}

// EventHandles lists the events, optionally in display order.
func (db *DB) EventHandles(sorted bool) ([]model.Handle, error) {
	return db.Handles(model.KindEvent, sorted)
}

// GetMedia returns the media stored under h, or nil.
func (db *DB) GetMedia(h model.Handle) (*model.Media, error) {
	return getAs[*model.Media](db, model.KindMedia, h)
}

// GetMediaByID returns the media with the given Gramps ID, or nil.
func (db *DB) GetMediaByID(id string) (*model.Media, error) {
	return getByIDAs[*model.Media](db, model.KindMedia, id)
}

func (db *DB) HasMedia(h model.Handle) (bool, error) {
	return db.Has(model.KindMedia, h)
}

func (db *DB) AddMedia(m *model.Media, t *Txn, opts ...CommitOption) (model.Handle, error) {
	return db.Add(m, t, opts...)
}

func (db *DB) CommitMedia(m *model.Media, t *Txn, opts ...CommitOption) error {
	return db.Commit(m, t, opts...)
}

func (db *DB) RemoveMedia(h model.Handle, t *Txn) error {
	return db.Remove(model.KindMedia, h, t)
}

// MediaHandles lists the media objects, optionally in display order.
func (db *DB) MediaHandles(sorted bool) ([]model.Handle, error) {
	return db.Handles(model.KindMedia, sorted)
}

// GetPlace returns the place stored under h, or nil.
func (db *DB) GetPlace(h model.Handle) (*model.Place, error) {
	return getAs[*model.Place](db, model.KindPlace, h)
}

// GetPlaceByID returns the place with the given Gramps ID, or nil.
func (db *DB) GetPlaceByID(id string) (*model.Place, error) {
	return getByIDAs[*model.Place](db, model.KindPlace, id)
}

func (db *DB) HasPlace(h model.Handle) (bool, error) {
	return db.Has(model.KindPlace, h)
}

func (db *DB) AddPlace(p *model.Place, t *Txn, opts ...CommitOption) (model.Handle, error) {
	return db.Add(p, t, opts...)
}

func (db *DB) CommitPlace(p *model.Place, t *Txn, opts ...CommitOption) error {
	return db.Commit(p, t, opts...)
}

func (db *DB) RemovePlace(h model.Handle, t *Txn) error {
	return db.Remove(model.KindPlace, h, t)
}

// PlaceHandles lists the places, optionally in display order.
func (db *DB) PlaceHandles(sorted bool) ([]model.Handle, error) {
	return db.Handles(model.KindPlace, sorted)
}

// GetRepository returns the repository stored under h, or nil.
func (db *DB) GetRepository(h model.Handle) (*model.Repository, error) {
	return getAs[*model.Repository](db, model.KindRepository, h)
}

// GetRepositoryByID returns the repository with the given Gramps ID, or nil.
func (db *DB) GetRepositoryByID(id string) (*model.Repository, error) {
	return getByIDAs[*model.Repository](db, model.KindRepository, id)
}

func (db *DB) HasRepository(h model.Handle) (bool, error) {
	return db.Has(model.KindRepository, h)
}

func (db *DB) AddRepository(r *model.Repository, t *Txn, opts ...CommitOption) (model.Handle, error) {
	return db.Add(r, t, opts...)
}

func (db *DB) CommitRepository(r *model.Repository, t *Txn, opts ...CommitOption) error {
	return db.Commit(r, t, opts...)
}

func (db *DB) RemoveRepository(h model.Handle, t *Txn) error {
	return db.Remove(model.KindRepository, h, t)
}

// RepositoryHandles lists the repositories, optionally in display order.
func (db *DB) RepositoryHandles(sorted bool) ([]model.Handle, error) {
	return db.Handles(model.KindRepository, sorted)
}

// GetNote returns the note stored under h, or nil.
func (db *DB) GetNote(h model.Handle) (*model.Note, error) {
	return getAs[*model.Note](db, model.KindNote, h)
}

// GetNoteByID returns the note with the given Gramps ID, or nil.
func (db *DB) GetNoteByID(id string) (*model.Note, error) {
	return getByIDAs[*model.Note](db, model.KindNote, id)
}

func (db *DB) HasNote(h model.Handle) (bool, error) {
	return db.Has(model.KindNote, h)
}

func (db *DB) AddNote(n *model.Note, t *Txn, opts ...CommitOption) (model.Handle, error) {
	return db.Add(n, t, opts...)
}

func (db *DB) CommitNote(n *model.Note, t *Txn, opts ...CommitOption) error {
	return db.Commit(n, t, opts...)
}

func (db *DB) RemoveNote(h model.Handle, t *Txn) error {
	return db.Remove(model.KindNote, h, t)
}

// NoteHandles lists the notes, optionally in display order.
func (db *DB) NoteHandles(sorted bool) ([]model.Handle, error) {
	return db.Handles(model.KindNote, sorted)
}

// PersonHandlesBySurname returns the people whose primary surname is
// surname. It fails with ErrIndexSuspended during a batch transaction.
func (db *DB) PersonHandlesBySurname(surname string) ([]model.Handle, error) {
	return db.indexHandles(indexSurnames, surname)
}

// EventHandlesByType returns the events whose type is named typ, e.g.
// "Birth" or a custom name.
func (db *DB) EventHandlesByType(typ string) ([]model.Handle, error) {
	return db.indexHandles(indexEventTypes, typ)
}

// RepositoryHandlesByType returns the repositories whose type is named typ.
func (db *DB) RepositoryHandlesByType(typ string) ([]model.Handle, error) {
	return db.indexHandles(indexRepositoryTypes, typ)
}

func (db *DB) indexHandles(index, key string) ([]model.Handle, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	var hs []model.Handle
	err := db.env.View(func(tx *kv.Txn) error {
		return tx.IndexScan(index, []byte(key), func(pkey []byte) (bool, error) {
			hs = append(hs, model.Handle(pkey))
			return true, nil
		})
	})
	if err != nil {
		return nil, db.storeErr("query "+index, err)
	}
	return hs, nil
}
