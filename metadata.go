package genstore

import (
	"bytes"
	"slices"

	"github.com/jward/genstore/internal/codec"
	"github.com/jward/genstore/internal/kv"
	"github.com/jward/genstore/internal/model"
	"github.com/jward/genstore/internal/signals"
)

// Metadata keys.
const (
	metaVersion       = "version"
	metaGenderStats   = "gender_stats"
	metaSurnameList   = "surname_list"
	metaDefaultPerson = "default_person"
	metaBookmarks     = "bookmarks_"
	metaVocabulary    = "vocab_"
	metaColumns       = "columns_"

	metaReindexPending = "reindex_pending"
)

// Vocabulary names a set of custom type names collected from committed
// objects, used to offer earlier entries again.
type Vocabulary uint8

const (
	VocabEventNames Vocabulary = iota
	VocabAttributeNames
	VocabFamilyRelTypes
	VocabChildRefTypes
	VocabEventRoles
	VocabNameTypes
	VocabRepositoryTypes
	VocabNoteTypes
	VocabMediaAttributes
	VocabSourceMediaTypes
)

// Vocabularies returns every vocabulary.
func Vocabularies() []Vocabulary {
	return []Vocabulary{
		VocabEventNames, VocabAttributeNames, VocabFamilyRelTypes,
		VocabChildRefTypes, VocabEventRoles, VocabNameTypes,
		VocabRepositoryTypes, VocabNoteTypes, VocabMediaAttributes,
		VocabSourceMediaTypes,
	}
}

func (v Vocabulary) String() string {
	switch v {
	case VocabEventNames:
		return "event_names"
	case VocabAttributeNames:
		return "attribute_names"
	case VocabFamilyRelTypes:
		return "family_rel_types"
	case VocabChildRefTypes:
		return "child_ref_types"
	case VocabEventRoles:
		return "event_roles"
	case VocabNameTypes:
		return "name_types"
	case VocabRepositoryTypes:
		return "repository_types"
	case VocabNoteTypes:
		return "note_types"
	case VocabMediaAttributes:
		return "media_attributes"
	case VocabSourceMediaTypes:
		return "source_media_types"
	}
	return "unknown"
}

// loadMetadata reads the cached aggregates. Missing keys leave defaults.
func (db *DB) loadMetadata() error {
	db.metaMu.Lock()
	defer db.metaMu.Unlock()

	db.genderStats = model.NewGenderStats()
	db.vocab = make(map[Vocabulary]map[string]struct{})
	db.bookmarks = make(map[model.Kind][]model.Handle)
	db.surnames = nil
	db.defaultPerson = ""

	return db.storeErr("load metadata", db.env.View(func(tx *kv.Txn) error {
		if data, err := tx.Get(tableMetadata, []byte(metaGenderStats)); err != nil {
			return err
		} else if data != nil {
			gs, err := codec.DecodeMeta[*model.GenderStats](data)
			if err != nil {
				return err
			}
			if gs != nil && gs.Names != nil {
				db.genderStats = gs
			}
		}
		if err := getMeta(tx, metaSurnameList, &db.surnames); err != nil {
			return err
		}
		var home string
		if err := getMeta(tx, metaDefaultPerson, &home); err != nil {
			return err
		}
		db.defaultPerson = model.Handle(home)
		for _, k := range model.Kinds() {
			var hs []model.Handle
			if err := getMeta(tx, metaBookmarks+k.Table(), &hs); err != nil {
				return err
			}
			if len(hs) > 0 {
				db.bookmarks[k] = hs
			}
		}
		for _, v := range Vocabularies() {
			var names []string
			if err := getMeta(tx, metaVocabulary+v.String(), &names); err != nil {
				return err
			}
			for _, n := range names {
				db.addVocabLocked(v, n)
			}
		}
		return nil
	}))
}

// saveMetadata persists the aggregates kept in memory during the session.
func (db *DB) saveMetadata() error {
	db.metaMu.Lock()
	defer db.metaMu.Unlock()

	return db.storeErr("save metadata", db.env.Update(func(tx *kv.Txn) error {
		if err := putMeta(tx, metaGenderStats, db.genderStats); err != nil {
			return err
		}
		if err := putMeta(tx, metaSurnameList, db.surnames); err != nil {
			return err
		}
		for _, v := range Vocabularies() {
			if err := putMeta(tx, metaVocabulary+v.String(), sortedSet(db.vocab[v])); err != nil {
				return err
			}
		}
		return nil
	}))
}

func getMeta[T any](tx *kv.Txn, key string, out *T) error {
	data, err := tx.Get(tableMetadata, []byte(key))
	if err != nil || data == nil {
		return err
	}
	v, err := codec.DecodeMeta[T](data)
	if err != nil {
		return err
	}
	*out = v
	return nil
}

func putMeta[T any](tx *kv.Txn, key string, v T) error {
	data, err := codec.EncodeMeta(v)
	if err != nil {
		return err
	}
	return tx.Put(tableMetadata, []byte(key), data)
}

// writeMeta stores a single metadata value right away. It does nothing on a
// read-only store.
func (db *DB) writeMeta(key string, v any) error {
	if db.readOnly {
		return nil
	}
	if err := db.checkOpen(); err != nil {
		return err
	}
	return db.storeErr("write metadata "+key, db.env.Update(func(tx *kv.Txn) error {
		return putMeta(tx, key, v)
	}))
}

// GenderStats returns a copy of the given-name gender statistics.
func (db *DB) GenderStats() *model.GenderStats {
	db.metaMu.Lock()
	defer db.metaMu.Unlock()
	out := model.NewGenderStats()
	if db.genderStats != nil {
		for k, v := range db.genderStats.Names {
			out.Names[k] = v
		}
	}
	return out
}

// DefaultPersonHandle returns the home person, or "" when none is set.
func (db *DB) DefaultPersonHandle() model.Handle {
	db.metaMu.Lock()
	defer db.metaMu.Unlock()
	return db.defaultPerson
}

// SetDefaultPerson makes h the home person. An empty handle clears it.
// Subscribers receive a HomePersonChanged event.
func (db *DB) SetDefaultPerson(h model.Handle) error {
	if db.readOnly {
		return nil
	}
	if err := db.writeMeta(metaDefaultPerson, string(h)); err != nil {
		return err
	}
	db.metaMu.Lock()
	db.defaultPerson = h
	db.metaMu.Unlock()

	e := signals.Event{Kind: model.KindPerson, Action: signals.HomePersonChanged}
	if h != "" {
		e.Handles = []model.Handle{h}
	}
	db.bus.Emit(e)
	return nil
}

// Bookmarks returns the bookmarked handles of kind k in the order added.
func (db *DB) Bookmarks(k model.Kind) []model.Handle {
	db.metaMu.Lock()
	defer db.metaMu.Unlock()
	return slices.Clone(db.bookmarks[k])
}

// SetBookmarks replaces the bookmarks of kind k.
func (db *DB) SetBookmarks(k model.Kind, hs []model.Handle) error {
	if db.readOnly {
		return nil
	}
	hs = slices.Clone(hs)
	if err := db.writeMeta(metaBookmarks+k.Table(), hs); err != nil {
		return err
	}
	db.metaMu.Lock()
	db.bookmarks[k] = hs
	db.metaMu.Unlock()
	return nil
}

// ColumnOrder returns the saved column layout for a view, or nil.
func (db *DB) ColumnOrder(view string) ([]string, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	var cols []string
	err := db.env.View(func(tx *kv.Txn) error {
		return getMeta(tx, metaColumns+view, &cols)
	})
	return cols, db.storeErr("column order", err)
}

// SetColumnOrder saves the column layout for a view.
func (db *DB) SetColumnOrder(view string, cols []string) error {
	return db.writeMeta(metaColumns+view, cols)
}

// Vocabulary returns the custom names collected for v, sorted.
func (db *DB) Vocabulary(v Vocabulary) []string {
	db.metaMu.Lock()
	defer db.metaMu.Unlock()
	return sortedSet(db.vocab[v])
}

func (db *DB) addVocabLocked(v Vocabulary, name string) {
	if name == "" {
		return
	}
	set := db.vocab[v]
	if set == nil {
		set = make(map[string]struct{})
		db.vocab[v] = set
	}
	set[name] = struct{}{}
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// collectVocabulary records the custom type names used by obj. Callers hold
// metaMu.
func (db *DB) collectVocabulary(obj model.Object) {
	custom := func(v Vocabulary, isCustom bool, name string) {
		if isCustom {
			db.addVocabLocked(v, name)
		}
	}
	attrs := func(v Vocabulary, list []model.Attribute) {
		for _, a := range list {
			custom(v, a.Type.IsCustom(), a.Type.String())
		}
	}
	media := func(list []model.MediaRef) {
		for _, m := range list {
			attrs(VocabMediaAttributes, m.AttributeList)
		}
	}
	eventRefs := func(list []model.EventRef) {
		for _, er := range list {
			custom(VocabEventRoles, er.Role.IsCustom(), er.Role.String())
			attrs(VocabAttributeNames, er.AttributeList)
		}
	}

	switch o := obj.(type) {
	case *model.Person:
		for _, n := range append([]model.Name{o.PrimaryName}, o.AlternateNames...) {
			custom(VocabNameTypes, n.Type.IsCustom(), n.Type.String())
		}
		eventRefs(o.EventRefs)
		attrs(VocabAttributeNames, o.AttributeList)
		media(o.MediaList)
	case *model.Family:
		custom(VocabFamilyRelTypes, o.Type.IsCustom(), o.Type.String())
		for _, cr := range o.ChildRefs {
			custom(VocabChildRefTypes, cr.FatherRel.IsCustom(), cr.FatherRel.String())
			custom(VocabChildRefTypes, cr.MotherRel.IsCustom(), cr.MotherRel.String())
		}
		eventRefs(o.EventRefs)
		attrs(VocabAttributeNames, o.AttributeList)
		media(o.MediaList)
	case *model.Event:
		custom(VocabEventNames, o.Type.IsCustom(), o.Type.String())
		attrs(VocabAttributeNames, o.AttributeList)
		media(o.MediaList)
	case *model.Source:
		for _, rr := range o.RepoRefs {
			custom(VocabSourceMediaTypes, rr.MediaType.IsCustom(), rr.MediaType.String())
		}
		media(o.MediaList)
	case *model.Media:
		attrs(VocabMediaAttributes, o.AttributeList)
	case *model.Place:
		media(o.MediaList)
	case *model.Repository:
		custom(VocabRepositoryTypes, o.Type.IsCustom(), o.Type.String())
	case *model.Note:
		custom(VocabNoteTypes, o.Type.IsCustom(), o.Type.String())
	}
}

// SurnameList returns the distinct primary surnames of every person, in
// collation order.
func (db *DB) SurnameList() []string {
	db.metaMu.Lock()
	defer db.metaMu.Unlock()
	return slices.Clone(db.surnames)
}

// addSurnameLocked inserts name into the cached list. Callers hold metaMu.
func (db *DB) addSurnameLocked(name string) {
	if name == "" || slices.Contains(db.surnames, name) {
		return
	}
	db.surnames = append(db.surnames, name)
	db.sortStrings(db.surnames)
}

// rebuildSurnameList recomputes the cached list from the surname index.
// While a batch has the index suspended the incrementally kept list stands.
func (db *DB) rebuildSurnameList() error {
	if db.IndexState(indexSurnames) != kv.IndexActive {
		return nil
	}
	var names []string
	c := db.env.Cursor(indexSurnames, nil)
	defer c.Close()
	for c.Next() {
		name, _, _ := bytes.Cut(c.Key(), []byte{0})
		if n := len(names); n > 0 && names[n-1] == string(name) {
			continue
		}
		names = append(names, string(name))
	}
	if err := c.Err(); err != nil {
		return db.storeErr("rebuild surname list", err)
	}
	db.sortStrings(names)

	db.metaMu.Lock()
	db.surnames = names
	db.metaMu.Unlock()
	return nil
}

// NameGroupMapping returns the group a surname is filed under, or the
// surname itself when it has no mapping.
func (db *DB) NameGroupMapping(surname string) (string, error) {
	group, err := db.nameGroup(surname)
	if err != nil || group == nil {
		return surname, err
	}
	return string(group), nil
}

// HasNameGroupKey reports whether surname has a group mapping.
func (db *DB) HasNameGroupKey(surname string) (bool, error) {
	group, err := db.nameGroup(surname)
	return group != nil, err
}

func (db *DB) nameGroup(surname string) ([]byte, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	var group []byte
	err := db.env.View(func(tx *kv.Txn) error {
		var err error
		group, err = tx.Get(tableNameGroup, []byte(surname))
		return err
	})
	return group, db.storeErr("name group", err)
}

// SetNameGroupMapping files surname under group. An empty group removes
// the mapping.
func (db *DB) SetNameGroupMapping(surname, group string) error {
	if db.readOnly {
		return nil
	}
	if err := db.checkOpen(); err != nil {
		return err
	}
	return db.storeErr("set name group", db.env.Update(func(tx *kv.Txn) error {
		if group == "" {
			return tx.Delete(tableNameGroup, []byte(surname))
		}
		return tx.Put(tableNameGroup, []byte(surname), []byte(group))
	}))
}

// NameGroupKeys returns every surname that has a group mapping.
func (db *DB) NameGroupKeys() ([]string, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	var keys []string
	c := db.env.Cursor(tableNameGroup, nil)
	defer c.Close()
	for c.Next() {
		keys = append(keys, string(c.Key()))
	}
	return keys, db.storeErr("name group keys", c.Err())
}
