// Package model defines the genealogical record types persisted by the store:
// the eight primary object kinds, their embedded secondary objects, and the
// vocabularies attached to them.
package model

import (
	"fmt"
	"strings"
)

// Kind identifies one of the eight primary object types. It is a closed set;
// every switch over Kind in this module is exhaustive.
type Kind uint8

const (
	KindPerson Kind = iota
	KindFamily
	KindSource
	KindEvent
	KindMedia
	KindPlace
	KindRepository
	KindNote
)

// Kinds returns every primary kind in storage order.
func Kinds() []Kind {
	return []Kind{
		KindPerson, KindFamily, KindSource, KindEvent,
		KindMedia, KindPlace, KindRepository, KindNote,
	}
}

// String returns the class name used in backlink results ("Person", "Family", ...).
func (k Kind) String() string {
	switch k {
	case KindPerson:
		return "Person"
	case KindFamily:
		return "Family"
	case KindSource:
		return "Source"
	case KindEvent:
		return "Event"
	case KindMedia:
		return "Media"
	case KindPlace:
		return "Place"
	case KindRepository:
		return "Repository"
	case KindNote:
		return "Note"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Table returns the primary table name for the kind. It doubles as the
// prefix of signal names and metadata keys.
func (k Kind) Table() string {
	switch k {
	case KindPerson:
		return "person"
	case KindFamily:
		return "family"
	case KindSource:
		return "source"
	case KindEvent:
		return "event"
	case KindMedia:
		return "media"
	case KindPlace:
		return "place"
	case KindRepository:
		return "repository"
	case KindNote:
		return "note"
	}
	return ""
}

// Valid reports whether k is one of the eight primary kinds.
func (k Kind) Valid() bool {
	return k <= KindNote
}

// ParseKind accepts either the class name ("Person") or the table name
// ("person"), case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "person", "people":
		return KindPerson, nil
	case "family", "families":
		return KindFamily, nil
	case "source", "sources":
		return KindSource, nil
	case "event", "events":
		return KindEvent, nil
	case "media", "mediaobject":
		return KindMedia, nil
	case "place", "places":
		return KindPlace, nil
	case "repository", "repositories":
		return KindRepository, nil
	case "note", "notes":
		return KindNote, nil
	}
	return 0, fmt.Errorf("model: unknown object kind %q", s)
}

// Handle is the opaque primary key of a stored object.
type Handle string

// Ref names a referenced object by kind and handle.
type Ref struct {
	Kind   Kind   `bson:"kind"`
	Handle Handle `bson:"handle"`
}

func (r Ref) String() string {
	return r.Kind.String() + ":" + string(r.Handle)
}

// New returns an empty object of the given kind.
func New(k Kind) (Object, error) {
	switch k {
	case KindPerson:
		return &Person{}, nil
	case KindFamily:
		return &Family{}, nil
	case KindSource:
		return &Source{}, nil
	case KindEvent:
		return &Event{}, nil
	case KindMedia:
		return &Media{}, nil
	case KindPlace:
		return &Place{}, nil
	case KindRepository:
		return &Repository{}, nil
	case KindNote:
		return &Note{}, nil
	}
	return nil, fmt.Errorf("model: unknown object kind %d", uint8(k))
}
