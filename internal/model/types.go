package model

import "strconv"

// Values shared by every vocabulary. A Custom value carries its text in the
// Custom field; everything else is a predefined code.
const (
	TypeUnknown = -1
	TypeCustom  = 0
)

// Type is the common shape of the vocabulary types below.
type Type struct {
	Value  int    `bson:"value"`
	Custom string `bson:"custom,omitempty"`
}

func typeString(t Type, names map[int]string) string {
	if t.Value == TypeCustom {
		return t.Custom
	}
	if t.Value == TypeUnknown {
		return "Unknown"
	}
	if n, ok := names[t.Value]; ok {
		return n
	}
	return strconv.Itoa(t.Value)
}

// EventType classifies an Event.
type EventType Type

const (
	EventMarriage   = 1
	EventBirth      = 12
	EventDeath      = 13
	EventBaptism    = 15
	EventBurial     = 19
	EventCensus     = 21
	EventOccupation = 40
	EventResidence  = 42
)

var eventTypeNames = map[int]string{
	EventMarriage:   "Marriage",
	EventBirth:      "Birth",
	EventDeath:      "Death",
	EventBurial:     "Burial",
	EventBaptism:    "Baptism",
	EventCensus:     "Census",
	EventResidence:  "Residence",
	EventOccupation: "Occupation",
}

func (t EventType) String() string { return typeString(Type(t), eventTypeNames) }
func (t EventType) IsCustom() bool { return t.Value == TypeCustom && t.Custom != "" }

// AttributeType classifies an Attribute.
type AttributeType Type

const (
	AttributeCaste       = 1
	AttributeDescription = 2
	AttributeNickname    = 7
	AttributeOccupation  = 11
)

var attributeTypeNames = map[int]string{
	AttributeCaste:       "Caste",
	AttributeDescription: "Description",
	AttributeNickname:    "Nickname",
	AttributeOccupation:  "Occupation",
}

func (t AttributeType) String() string { return typeString(Type(t), attributeTypeNames) }
func (t AttributeType) IsCustom() bool { return t.Value == TypeCustom && t.Custom != "" }

// FamilyRelType is the relationship between the two parents of a Family.
type FamilyRelType Type

const (
	FamilyMarried   = 1
	FamilyUnmarried = 2
	FamilyCivil     = 3
)

var familyRelTypeNames = map[int]string{
	FamilyMarried:   "Married",
	FamilyUnmarried: "Unmarried",
	FamilyCivil:     "Civil Union",
}

func (t FamilyRelType) String() string { return typeString(Type(t), familyRelTypeNames) }
func (t FamilyRelType) IsCustom() bool { return t.Value == TypeCustom && t.Custom != "" }

// ChildRefType is the relationship of a child to one of its parents.
type ChildRefType Type

const (
	ChildBirth   = 1
	ChildAdopted = 2
	ChildStep    = 3
	ChildFoster  = 6
)

var childRefTypeNames = map[int]string{
	ChildBirth:   "Birth",
	ChildAdopted: "Adopted",
	ChildStep:    "Stepchild",
	ChildFoster:  "Foster",
}

func (t ChildRefType) String() string { return typeString(Type(t), childRefTypeNames) }
func (t ChildRefType) IsCustom() bool { return t.Value == TypeCustom && t.Custom != "" }

// EventRoleType is the role a participant plays in an Event.
type EventRoleType Type

const (
	RolePrimary = 1
	RoleWitness = 5
	RoleFamily  = 7
)

var eventRoleTypeNames = map[int]string{
	RolePrimary: "Primary",
	RoleWitness: "Witness",
	RoleFamily:  "Family",
}

func (t EventRoleType) String() string { return typeString(Type(t), eventRoleTypeNames) }
func (t EventRoleType) IsCustom() bool { return t.Value == TypeCustom && t.Custom != "" }

// NameType classifies a Name.
type NameType Type

const (
	NameAKA     = 1
	NameBirth   = 2
	NameMarried = 3
)

var nameTypeNames = map[int]string{
	NameAKA:     "Also Known As",
	NameBirth:   "Birth Name",
	NameMarried: "Married Name",
}

func (t NameType) String() string { return typeString(Type(t), nameTypeNames) }
func (t NameType) IsCustom() bool { return t.Value == TypeCustom && t.Custom != "" }

// RepositoryType classifies a Repository.
type RepositoryType Type

const (
	RepositoryLibrary  = 1
	RepositoryCemetery = 2
	RepositoryChurch   = 3
	RepositoryArchive  = 4
	RepositoryWebsite  = 8
)

var repositoryTypeNames = map[int]string{
	RepositoryLibrary:  "Library",
	RepositoryCemetery: "Cemetery",
	RepositoryChurch:   "Church",
	RepositoryArchive:  "Archive",
	RepositoryWebsite:  "Web site",
}

func (t RepositoryType) String() string { return typeString(Type(t), repositoryTypeNames) }
func (t RepositoryType) IsCustom() bool { return t.Value == TypeCustom && t.Custom != "" }

// SourceMediaType is the medium in which a repository holds a source.
type SourceMediaType Type

const (
	SourceMediaBook       = 2
	SourceMediaCard       = 3
	SourceMediaElectronic = 4
	SourceMediaMicrofilm  = 6
)

var sourceMediaTypeNames = map[int]string{
	SourceMediaBook:       "Book",
	SourceMediaCard:       "Card",
	SourceMediaElectronic: "Electronic",
	SourceMediaMicrofilm:  "Microfilm",
}

func (t SourceMediaType) String() string { return typeString(Type(t), sourceMediaTypeNames) }
func (t SourceMediaType) IsCustom() bool { return t.Value == TypeCustom && t.Custom != "" }

// NoteType classifies a Note.
type NoteType Type

const (
	NoteGeneral    = 1
	NoteResearch   = 2
	NoteTranscript = 3
)

var noteTypeNames = map[int]string{
	NoteGeneral:    "General",
	NoteResearch:   "Research",
	NoteTranscript: "Transcript",
}

func (t NoteType) String() string { return typeString(Type(t), noteTypeNames) }
func (t NoteType) IsCustom() bool { return t.Value == TypeCustom && t.Custom != "" }

// Gender of a Person.
type Gender int

const (
	Female Gender = iota
	Male
	UnknownGender
)

func (g Gender) String() string {
	switch g {
	case Female:
		return "female"
	case Male:
		return "male"
	}
	return "unknown"
}

// Date is carried as an opaque value; the store never interprets it beyond
// copying it through the codec.
type Date struct {
	Text      string `bson:"text,omitempty"`
	SortValue int64  `bson:"sortval,omitempty"`
}
