package model

import "strings"

// GenderCount tallies how often a given name was seen with each gender.
type GenderCount struct {
	Male    int `bson:"male"`
	Female  int `bson:"female"`
	Unknown int `bson:"unknown"`
}

// GenderStats associates given names with genders so that new people can be
// given a likely default.
type GenderStats struct {
	Names map[string]GenderCount `bson:"names"`
}

// NewGenderStats returns an empty aggregate.
func NewGenderStats() *GenderStats {
	return &GenderStats{Names: make(map[string]GenderCount)}
}

// GenderKey returns the stats key for a given name: its first word with
// question marks stripped.
func GenderKey(firstName string) string {
	fields := strings.Fields(firstName)
	if len(fields) == 0 {
		return ""
	}
	return strings.ReplaceAll(fields[0], "?", "")
}

// CountPerson adds p's primary given name and gender to the aggregate.
func (g *GenderStats) CountPerson(p *Person) {
	g.adjust(p, 1)
}

// UncountPerson removes a previous CountPerson contribution.
func (g *GenderStats) UncountPerson(p *Person) {
	g.adjust(p, -1)
}

func (g *GenderStats) adjust(p *Person, delta int) {
	key := GenderKey(p.PrimaryName.FirstName)
	if key == "" {
		return
	}
	if g.Names == nil {
		g.Names = make(map[string]GenderCount)
	}
	c := g.Names[key]
	switch p.Gender {
	case Male:
		c.Male = max(c.Male+delta, 0)
	case Female:
		c.Female = max(c.Female+delta, 0)
	default:
		c.Unknown = max(c.Unknown+delta, 0)
	}
	if c == (GenderCount{}) {
		delete(g.Names, key)
		return
	}
	g.Names[key] = c
}

// Count returns the tally for a given name.
func (g *GenderStats) Count(firstName string) GenderCount {
	return g.Names[GenderKey(firstName)]
}

// Guess returns the gender most often seen with firstName. Ties and unseen
// names are UnknownGender.
func (g *GenderStats) Guess(firstName string) Gender {
	c := g.Count(firstName)
	switch {
	case c.Male > c.Female+c.Unknown:
		return Male
	case c.Female > c.Male+c.Unknown:
		return Female
	}
	return UnknownGender
}
