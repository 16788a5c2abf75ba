package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/genstore/internal/model"
)

func fullObjects() []model.Object {
	cite := []model.SourceRef{{Ref: "src1", Page: "p. 12", Confidence: 3, Date: model.Date{Text: "1900", SortValue: 2415021}, NoteList: []model.Handle{"note1"}}}
	attrs := []model.Attribute{{Type: model.AttributeType{Value: model.TypeCustom, Custom: "Eye colour"}, Value: "blue", SourceList: cite}}
	media := []model.MediaRef{{Ref: "med1", Rect: [4]int{0, 0, 50, 50}, AttributeList: attrs}}

	return []model.Object{
		&model.Person{
			Primary: model.Primary{Handle: "per1", GrampsID: "I0001", Change: 1700000000, Private: true},
			Gender:  model.Female,
			PrimaryName: model.Name{
				FirstName: "Ann", Surname: "Smith", Title: "Dr",
				Type:       model.NameType{Value: model.NameBirth},
				SourceList: cite,
			},
			AlternateNames:   []model.Name{{FirstName: "Annie", Surname: "Jones"}},
			EventRefs:        []model.EventRef{{Ref: "ev1", Role: model.EventRoleType{Value: model.RolePrimary}}},
			BirthRefIndex:    0,
			DeathRefIndex:    -1,
			FamilyList:       []model.Handle{"fam1"},
			ParentFamilyList: []model.Handle{"fam0"},
			MediaList:        media,
			AddressList:      []model.Address{{Location: model.Location{City: "Leeds", Country: "UK"}}},
			AttributeList:    attrs,
			URLs:             []model.URL{{Path: "https://example.org", Description: "home"}},
			SourceList:       cite,
			NoteList:         []model.Handle{"note1"},
			PersonRefs:       []model.PersonRef{{Ref: "per2", Relation: "Godfather"}},
		},
		&model.Family{
			Primary:   model.Primary{Handle: "fam1", GrampsID: "F0001"},
			Father:    "per2",
			Mother:    "per1",
			ChildRefs: []model.ChildRef{{Ref: "per3", FatherRel: model.ChildRefType{Value: model.ChildBirth}, MotherRel: model.ChildRefType{Value: model.ChildAdopted}}},
			Type:      model.FamilyRelType{Value: model.FamilyMarried},
		},
		&model.Event{
			Primary:     model.Primary{Handle: "ev1", GrampsID: "E0001"},
			Type:        model.EventType{Value: model.EventBirth},
			Date:        model.Date{Text: "1 Jan 1900"},
			Description: "Birth of Ann",
			Place:       "pl1",
		},
		&model.Place{
			Primary:      model.Primary{Handle: "pl1", GrampsID: "P0001"},
			Title:        "Leeds, Yorkshire",
			Latitude:     "53.8",
			Longitude:    "-1.55",
			MainLocation: model.Location{City: "Leeds", County: "Yorkshire"},
			AltLocations: []model.Location{{City: "Ledes"}},
		},
		&model.Source{
			Primary:  model.Primary{Handle: "src1", GrampsID: "S0001"},
			Title:    "Parish register",
			Author:   "Church of England",
			DataMap:  map[string]string{"film": "123"},
			RepoRefs: []model.RepoRef{{Ref: "rep1", CallNumber: "A/1", MediaType: model.SourceMediaType{Value: model.SourceMediaBook}}},
		},
		&model.Media{
			Primary:     model.Primary{Handle: "med1", GrampsID: "O0001"},
			Path:        "photos/ann.jpg",
			MimeType:    "image/jpeg",
			Description: "Ann, 1920",
		},
		&model.Repository{
			Primary: model.Primary{Handle: "rep1", GrampsID: "R0001"},
			Type:    model.RepositoryType{Value: model.RepositoryArchive},
			Name:    "West Yorkshire Archive",
		},
		&model.Note{
			Primary: model.Primary{Handle: "note1", GrampsID: "N0001"},
			Text:    "Baptised privately.",
			Type:    model.NoteType{Value: model.NoteResearch},
		},
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	for _, obj := range fullObjects() {
		t.Run(obj.Kind().String(), func(t *testing.T) {
			data, err := Encode(obj)
			require.NoError(t, err)

			got, err := Decode(obj.Kind(), data)
			require.NoError(t, err)
			assert.Equal(t, obj, got)

			again, err := Encode(got)
			require.NoError(t, err)
			assert.Equal(t, data, again)
		})
	}
}

func TestEncodeDecode_EmptyObjects(t *testing.T) {
	for _, k := range model.Kinds() {
		t.Run(k.String(), func(t *testing.T) {
			obj, err := model.New(k)
			require.NoError(t, err)

			data, err := Encode(obj)
			require.NoError(t, err)

			got, err := Decode(k, data)
			require.NoError(t, err)
			assert.Equal(t, obj, got)
		})
	}
}

func TestDecode_Garbage(t *testing.T) {
	_, err := Decode(model.KindPerson, []byte{1, 2, 3})
	assert.Error(t, err)

	_, err = DecodeRef([]byte("nope"))
	assert.Error(t, err)
}

func TestRefEntry_RoundTrip(t *testing.T) {
	e := RefEntry{
		Primary:    model.Ref{Kind: model.KindFamily, Handle: "fam1"},
		Referenced: model.Ref{Kind: model.KindPerson, Handle: "per1"},
	}
	data, err := EncodeRef(e)
	require.NoError(t, err)

	got, err := DecodeRef(data)
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestMeta_RoundTrip(t *testing.T) {
	data, err := EncodeMeta([]string{"b", "a"})
	require.NoError(t, err)
	list, err := DecodeMeta[[]string](data)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, list)

	data, err = EncodeMeta(3)
	require.NoError(t, err)
	n, err := DecodeMeta[int](data)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	stats := model.NewGenderStats()
	stats.CountPerson(&model.Person{Gender: model.Male, PrimaryName: model.Name{FirstName: "Tom"}})
	data, err = EncodeMeta(stats)
	require.NoError(t, err)
	gotStats, err := DecodeMeta[*model.GenderStats](data)
	require.NoError(t, err)
	assert.Equal(t, stats, gotStats)
}
