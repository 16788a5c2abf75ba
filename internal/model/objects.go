package model

// Object is implemented by every primary object type.
type Object interface {
	Kind() Kind
	GetHandle() Handle
	SetHandle(Handle)
	GetGrampsID() string
	SetGrampsID(string)
	GetChange() int64
	SetChange(int64)
	// ReferencedHandles reports every primary object this object points to,
	// including references held by embedded secondary objects. Each target
	// appears once, in first-encounter order.
	ReferencedHandles() []Ref
}

// Primary holds the fields shared by all primary objects.
type Primary struct {
	Handle   Handle `bson:"handle"`
	GrampsID string `bson:"gramps_id"`
	Change   int64  `bson:"change"`
	Private  bool   `bson:"private,omitempty"`
}

func (p *Primary) GetHandle() Handle      { return p.Handle }
func (p *Primary) SetHandle(h Handle)     { p.Handle = h }
func (p *Primary) GetGrampsID() string    { return p.GrampsID }
func (p *Primary) SetGrampsID(id string)  { p.GrampsID = id }
func (p *Primary) GetChange() int64       { return p.Change }
func (p *Primary) SetChange(change int64) { p.Change = change }

// ---------------------------------------------------------------------------
// Embedded secondary objects
// ---------------------------------------------------------------------------

// SourceRef cites a Source.
type SourceRef struct {
	Ref        Handle   `bson:"ref"`
	Page       string   `bson:"page,omitempty"`
	Confidence int      `bson:"confidence,omitempty"`
	Date       Date     `bson:"date"`
	NoteList   []Handle `bson:"notes"`
}

// MediaRef attaches a Media object, optionally restricted to a region.
type MediaRef struct {
	Ref           Handle      `bson:"ref"`
	Rect          [4]int      `bson:"rect"`
	AttributeList []Attribute `bson:"attributes"`
	SourceList    []SourceRef `bson:"sources"`
	NoteList      []Handle    `bson:"notes"`
}

// Attribute is a typed key/value fact.
type Attribute struct {
	Type       AttributeType `bson:"type"`
	Value      string        `bson:"value"`
	SourceList []SourceRef   `bson:"sources"`
	NoteList   []Handle      `bson:"notes"`
}

// Name is one of a person's names.
type Name struct {
	FirstName  string      `bson:"first_name"`
	Surname    string      `bson:"surname"`
	Suffix     string      `bson:"suffix,omitempty"`
	Title      string      `bson:"title,omitempty"`
	Type       NameType    `bson:"type"`
	GroupAs    string      `bson:"group_as,omitempty"`
	SortAs     int         `bson:"sort_as,omitempty"`
	Date       Date        `bson:"date"`
	SourceList []SourceRef `bson:"sources"`
	NoteList   []Handle    `bson:"notes"`
}

// EventRef links a Person or Family to an Event in a given role.
type EventRef struct {
	Ref           Handle        `bson:"ref"`
	Role          EventRoleType `bson:"role"`
	AttributeList []Attribute   `bson:"attributes"`
	NoteList      []Handle      `bson:"notes"`
}

// ChildRef links a Family to a child.
type ChildRef struct {
	Ref        Handle       `bson:"ref"`
	FatherRel  ChildRefType `bson:"father_rel"`
	MotherRel  ChildRefType `bson:"mother_rel"`
	SourceList []SourceRef  `bson:"sources"`
	NoteList   []Handle     `bson:"notes"`
}

// PersonRef is an association between two people (godfather, friend, ...).
type PersonRef struct {
	Ref        Handle      `bson:"ref"`
	Relation   string      `bson:"relation"`
	SourceList []SourceRef `bson:"sources"`
	NoteList   []Handle    `bson:"notes"`
}

// RepoRef places a Source in a Repository.
type RepoRef struct {
	Ref        Handle          `bson:"ref"`
	CallNumber string          `bson:"call_number,omitempty"`
	MediaType  SourceMediaType `bson:"media_type"`
	NoteList   []Handle        `bson:"notes"`
}

// Location is a structured address or place location.
type Location struct {
	Street     string `bson:"street,omitempty"`
	City       string `bson:"city,omitempty"`
	County     string `bson:"county,omitempty"`
	State      string `bson:"state,omitempty"`
	Country    string `bson:"country,omitempty"`
	PostalCode string `bson:"postal,omitempty"`
	Phone      string `bson:"phone,omitempty"`
}

// Address is a dated Location with citations.
type Address struct {
	Location   Location    `bson:"location"`
	Date       Date        `bson:"date"`
	SourceList []SourceRef `bson:"sources"`
	NoteList   []Handle    `bson:"notes"`
}

// URL is a web link held by a Person, Place or Repository.
type URL struct {
	Path        string `bson:"path"`
	Description string `bson:"desc,omitempty"`
}

// ---------------------------------------------------------------------------
// Primary objects
// ---------------------------------------------------------------------------

// Person is an individual.
type Person struct {
	Primary          `bson:",inline"`
	Gender           Gender      `bson:"gender"`
	PrimaryName      Name        `bson:"primary_name"`
	AlternateNames   []Name      `bson:"alternate_names"`
	EventRefs        []EventRef  `bson:"event_refs"`
	BirthRefIndex    int         `bson:"birth_ref_index"`
	DeathRefIndex    int         `bson:"death_ref_index"`
	FamilyList       []Handle    `bson:"families"`
	ParentFamilyList []Handle    `bson:"parent_families"`
	MediaList        []MediaRef  `bson:"media"`
	AddressList      []Address   `bson:"addresses"`
	AttributeList    []Attribute `bson:"attributes"`
	URLs             []URL       `bson:"urls"`
	SourceList       []SourceRef `bson:"sources"`
	NoteList         []Handle    `bson:"notes"`
	PersonRefs       []PersonRef `bson:"person_refs"`
}

func (*Person) Kind() Kind { return KindPerson }

func (p *Person) ReferencedHandles() []Ref {
	var s refSet
	s.name(p.PrimaryName)
	for _, n := range p.AlternateNames {
		s.name(n)
	}
	for _, er := range p.EventRefs {
		s.eventRef(er)
	}
	s.handles(KindFamily, p.FamilyList)
	s.handles(KindFamily, p.ParentFamilyList)
	s.media(p.MediaList)
	for _, a := range p.AddressList {
		s.sources(a.SourceList)
		s.handles(KindNote, a.NoteList)
	}
	s.attributes(p.AttributeList)
	s.sources(p.SourceList)
	s.handles(KindNote, p.NoteList)
	for _, pr := range p.PersonRefs {
		s.add(KindPerson, pr.Ref)
		s.sources(pr.SourceList)
		s.handles(KindNote, pr.NoteList)
	}
	return s.refs
}

// Family groups two parents and their children.
type Family struct {
	Primary       `bson:",inline"`
	Father        Handle        `bson:"father"`
	Mother        Handle        `bson:"mother"`
	ChildRefs     []ChildRef    `bson:"child_refs"`
	Type          FamilyRelType `bson:"type"`
	EventRefs     []EventRef    `bson:"event_refs"`
	MediaList     []MediaRef    `bson:"media"`
	AttributeList []Attribute   `bson:"attributes"`
	SourceList    []SourceRef   `bson:"sources"`
	NoteList      []Handle      `bson:"notes"`
}

func (*Family) Kind() Kind { return KindFamily }

func (f *Family) ReferencedHandles() []Ref {
	var s refSet
	s.add(KindPerson, f.Father)
	s.add(KindPerson, f.Mother)
	for _, cr := range f.ChildRefs {
		s.add(KindPerson, cr.Ref)
		s.sources(cr.SourceList)
		s.handles(KindNote, cr.NoteList)
	}
	for _, er := range f.EventRefs {
		s.eventRef(er)
	}
	s.media(f.MediaList)
	s.attributes(f.AttributeList)
	s.sources(f.SourceList)
	s.handles(KindNote, f.NoteList)
	return s.refs
}

// Event is something that happened at a date and place.
type Event struct {
	Primary       `bson:",inline"`
	Type          EventType   `bson:"type"`
	Date          Date        `bson:"date"`
	Description   string      `bson:"description"`
	Place         Handle      `bson:"place"`
	AttributeList []Attribute `bson:"attributes"`
	MediaList     []MediaRef  `bson:"media"`
	SourceList    []SourceRef `bson:"sources"`
	NoteList      []Handle    `bson:"notes"`
}

func (*Event) Kind() Kind { return KindEvent }

func (e *Event) ReferencedHandles() []Ref {
	var s refSet
	s.add(KindPlace, e.Place)
	s.attributes(e.AttributeList)
	s.media(e.MediaList)
	s.sources(e.SourceList)
	s.handles(KindNote, e.NoteList)
	return s.refs
}

// Place is a geographic location.
type Place struct {
	Primary      `bson:",inline"`
	Title        string      `bson:"title"`
	Latitude     string      `bson:"lat,omitempty"`
	Longitude    string      `bson:"long,omitempty"`
	MainLocation Location    `bson:"main_location"`
	AltLocations []Location  `bson:"alt_locations"`
	URLs         []URL       `bson:"urls"`
	MediaList    []MediaRef  `bson:"media"`
	SourceList   []SourceRef `bson:"sources"`
	NoteList     []Handle    `bson:"notes"`
}

func (*Place) Kind() Kind { return KindPlace }

func (p *Place) ReferencedHandles() []Ref {
	var s refSet
	s.media(p.MediaList)
	s.sources(p.SourceList)
	s.handles(KindNote, p.NoteList)
	return s.refs
}

// Source is a document or record that evidence is drawn from.
type Source struct {
	Primary      `bson:",inline"`
	Title        string            `bson:"title"`
	Author       string            `bson:"author,omitempty"`
	PubInfo      string            `bson:"pubinfo,omitempty"`
	Abbreviation string            `bson:"abbrev,omitempty"`
	DataMap      map[string]string `bson:"data"`
	RepoRefs     []RepoRef         `bson:"repo_refs"`
	MediaList    []MediaRef        `bson:"media"`
	NoteList     []Handle          `bson:"notes"`
}

func (*Source) Kind() Kind { return KindSource }

func (src *Source) ReferencedHandles() []Ref {
	var s refSet
	for _, rr := range src.RepoRefs {
		s.add(KindRepository, rr.Ref)
		s.handles(KindNote, rr.NoteList)
	}
	s.media(src.MediaList)
	s.handles(KindNote, src.NoteList)
	return s.refs
}

// Media is an external file such as a photo or scanned document.
type Media struct {
	Primary       `bson:",inline"`
	Path          string      `bson:"path"`
	MimeType      string      `bson:"mime"`
	Description   string      `bson:"desc"`
	Date          Date        `bson:"date"`
	AttributeList []Attribute `bson:"attributes"`
	SourceList    []SourceRef `bson:"sources"`
	NoteList      []Handle    `bson:"notes"`
}

func (*Media) Kind() Kind { return KindMedia }

func (m *Media) ReferencedHandles() []Ref {
	var s refSet
	s.attributes(m.AttributeList)
	s.sources(m.SourceList)
	s.handles(KindNote, m.NoteList)
	return s.refs
}

// Repository is an archive, library or other holder of sources.
type Repository struct {
	Primary     `bson:",inline"`
	Type        RepositoryType `bson:"type"`
	Name        string         `bson:"name"`
	AddressList []Address      `bson:"addresses"`
	URLs        []URL          `bson:"urls"`
	NoteList    []Handle       `bson:"notes"`
}

func (*Repository) Kind() Kind { return KindRepository }

func (r *Repository) ReferencedHandles() []Ref {
	var s refSet
	for _, a := range r.AddressList {
		s.sources(a.SourceList)
		s.handles(KindNote, a.NoteList)
	}
	s.handles(KindNote, r.NoteList)
	return s.refs
}

// Note is free text attached to other objects.
type Note struct {
	Primary `bson:",inline"`
	Text    string   `bson:"text"`
	Format  int      `bson:"format"`
	Type    NoteType `bson:"type"`
}

func (*Note) Kind() Kind { return KindNote }

func (*Note) ReferencedHandles() []Ref { return nil }

// ---------------------------------------------------------------------------
// Reference collection
// ---------------------------------------------------------------------------

type refSet struct {
	seen map[Ref]struct{}
	refs []Ref
}

func (s *refSet) add(k Kind, h Handle) {
	if h == "" {
		return
	}
	r := Ref{Kind: k, Handle: h}
	if s.seen == nil {
		s.seen = make(map[Ref]struct{})
	}
	if _, ok := s.seen[r]; ok {
		return
	}
	s.seen[r] = struct{}{}
	s.refs = append(s.refs, r)
}

func (s *refSet) handles(k Kind, hs []Handle) {
	for _, h := range hs {
		s.add(k, h)
	}
}

func (s *refSet) sources(refs []SourceRef) {
	for _, sr := range refs {
		s.add(KindSource, sr.Ref)
		s.handles(KindNote, sr.NoteList)
	}
}

func (s *refSet) attributes(attrs []Attribute) {
	for _, a := range attrs {
		s.sources(a.SourceList)
		s.handles(KindNote, a.NoteList)
	}
}

func (s *refSet) media(refs []MediaRef) {
	for _, mr := range refs {
		s.add(KindMedia, mr.Ref)
		s.attributes(mr.AttributeList)
		s.sources(mr.SourceList)
		s.handles(KindNote, mr.NoteList)
	}
}

func (s *refSet) name(n Name) {
	s.sources(n.SourceList)
	s.handles(KindNote, n.NoteList)
}

func (s *refSet) eventRef(er EventRef) {
	s.add(KindEvent, er.Ref)
	s.attributes(er.AttributeList)
	s.handles(KindNote, er.NoteList)
}
