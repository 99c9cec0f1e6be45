// Package favorite holds the favorites data model and the in-memory Favorite
// Store shared by every favorite button of the current session.
package favorite

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Common errors.
var (
	ErrInvalidEntityType = errors.New("invalid entity type")
	ErrInvalidTarget     = errors.New("invalid favorite target")
	ErrInvalidRecord     = errors.New("favorite must reference exactly one of artist or concert")
)

// EntityType discriminates what a favorite points at.
type EntityType string

const (
	EntityArtist  EntityType = "artist"
	EntityConcert EntityType = "concert"
)

// EntityTypes returns all entity types in display order.
func EntityTypes() []EntityType {
	return []EntityType{EntityArtist, EntityConcert}
}

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	return t == EntityArtist || t == EntityConcert
}

// Plural returns the sub-collection name ("artists", "concerts").
func (t EntityType) Plural() string {
	return string(t) + "s"
}

func (t EntityType) String() string {
	return string(t)
}

// ParseEntityType parses "artist", "concert" or their plurals, case-insensitively.
func ParseEntityType(s string) (EntityType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "artist", "artists":
		return EntityArtist, nil
	case "concert", "concerts":
		return EntityConcert, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEntityType, s)
}

// Target identifies a favoritable entity.
type Target struct {
	Type EntityType `json:"type"`
	ID   int64      `json:"id"`
}

// ArtistTarget returns the target for an artist.
func ArtistTarget(id int64) Target {
	return Target{Type: EntityArtist, ID: id}
}

// ConcertTarget returns the target for a concert.
func ConcertTarget(id int64) Target {
	return Target{Type: EntityConcert, ID: id}
}

// Valid reports whether the target has a known type and a positive id.
func (t Target) Valid() bool {
	return t.Type.Valid() && t.ID > 0
}

// String renders the target as "artist/42".
func (t Target) String() string {
	return fmt.Sprintf("%s/%d", t.Type, t.ID)
}

// ParseTarget parses "artist/42" or "concert/9".
func ParseTarget(s string) (Target, error) {
	typ, id, ok := strings.Cut(s, "/")
	if !ok {
		return Target{}, fmt.Errorf("%w: %q", ErrInvalidTarget, s)
	}
	return NewTarget(typ, id)
}

// NewTarget builds a target from separate type and id strings.
func NewTarget(typ, id string) (Target, error) {
	et, err := ParseEntityType(typ)
	if err != nil {
		return Target{}, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || n <= 0 {
		return Target{}, fmt.Errorf("%w: id %q", ErrInvalidTarget, id)
	}
	return Target{Type: et, ID: n}, nil
}

// Record is one favorite as returned by the favorites API.
// Exactly one of ArtistID and ConcertID is set.
type Record struct {
	FavoriteID int64     `json:"favoriteId"`
	ArtistID   *int64    `json:"artistId"`
	ConcertID  *int64    `json:"concertId"`
	CreatedAt  time.Time `json:"createdAt,omitzero"`
}

// NewArtistRecord returns a record favoriting an artist.
func NewArtistRecord(favoriteID, artistID int64) Record {
	return Record{FavoriteID: favoriteID, ArtistID: &artistID}
}

// NewConcertRecord returns a record favoriting a concert.
func NewConcertRecord(favoriteID, concertID int64) Record {
	return Record{FavoriteID: favoriteID, ConcertID: &concertID}
}

// NewRecord returns a record for the given target.
func NewRecord(t Target, favoriteID int64) Record {
	if t.Type == EntityConcert {
		return NewConcertRecord(favoriteID, t.ID)
	}
	return NewArtistRecord(favoriteID, t.ID)
}

// Validate checks the artist/concert exclusivity invariant.
func (r Record) Validate() error {
	if (r.ArtistID == nil) == (r.ConcertID == nil) {
		return ErrInvalidRecord
	}
	return nil
}

// Type returns the sub-collection the record belongs to, or "" if invalid.
func (r Record) Type() EntityType {
	switch {
	case r.Validate() != nil:
		return ""
	case r.ArtistID != nil:
		return EntityArtist
	default:
		return EntityConcert
	}
}

// Target returns the favorited entity. Invalid records yield the zero Target.
func (r Record) Target() Target {
	switch r.Type() {
	case EntityArtist:
		return ArtistTarget(*r.ArtistID)
	case EntityConcert:
		return ConcertTarget(*r.ConcertID)
	}
	return Target{}
}

// Clone returns a deep copy so callers never share id pointers with the store.
func (r Record) Clone() Record {
	c := r
	if r.ArtistID != nil {
		id := *r.ArtistID
		c.ArtistID = &id
	}
	if r.ConcertID != nil {
		id := *r.ConcertID
		c.ConcertID = &id
	}
	return c
}

// RemoveCriteria selects records to remove by artist or concert id.
type RemoveCriteria struct {
	ArtistID  *int64
	ConcertID *int64
}

// CriteriaFor returns the removal criteria matching a target.
func CriteriaFor(t Target) RemoveCriteria {
	id := t.ID
	if t.Type == EntityConcert {
		return RemoveCriteria{ConcertID: &id}
	}
	return RemoveCriteria{ArtistID: &id}
}

// Snapshot is a point-in-time copy of the whole collection.
type Snapshot struct {
	Artists  []Record `json:"artists"`
	Concerts []Record `json:"concerts"`
}

// Len returns the total number of records.
func (s Snapshot) Len() int {
	return len(s.Artists) + len(s.Concerts)
}
