package genstore

import (
	"github.com/jward/genstore/internal/model"
	"github.com/jward/genstore/internal/signals"
)

// Public aliases for the record model and the change notifications.
// External callers use these names; no conversion is needed.

type Kind = model.Kind
type Handle = model.Handle
type Ref = model.Ref
type Object = model.Object

type Person = model.Person
type Family = model.Family
type Source = model.Source
type Event = model.Event
type Media = model.Media
type Place = model.Place
type Repository = model.Repository
type Note = model.Note

type Name = model.Name
type EventRef = model.EventRef
type ChildRef = model.ChildRef
type SourceRef = model.SourceRef
type MediaRef = model.MediaRef
type RepoRef = model.RepoRef
type PersonRef = model.PersonRef
type Attribute = model.Attribute
type Address = model.Address
type Location = model.Location
type URL = model.URL
type Date = model.Date
type Gender = model.Gender
type GenderStats = model.GenderStats

type Change = signals.Event
type Action = signals.Action

const (
	KindPerson     = model.KindPerson
	KindFamily     = model.KindFamily
	KindSource     = model.KindSource
	KindEvent      = model.KindEvent
	KindMedia      = model.KindMedia
	KindPlace      = model.KindPlace
	KindRepository = model.KindRepository
	KindNote       = model.KindNote
)

const (
	ActionAdd               = signals.Add
	ActionUpdate            = signals.Update
	ActionDelete            = signals.Delete
	ActionRebuild           = signals.Rebuild
	ActionHomePersonChanged = signals.HomePersonChanged
)
