package model

import (
	"bytes"
	"cmp"
	"fmt"

	"github.com/google/uuid"
)

// ObjectID identifies an entity within a store.
type ObjectID uuid.UUID

// UserID identifies a connected user.
type UserID uuid.UUID

// EventID identifies an undo event.
type EventID uuid.UUID

// QueryID correlates a read query with its Read response.
type QueryID uuid.UUID

// Nil identifiers.
var (
	NilObject ObjectID
	NilUser   UserID
	NilEvent  EventID
	NilQuery  QueryID
)

// newUUID returns a time-sortable UUIDv7.
// Panics if generation fails (should never happen in practice).
func newUUID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewObjectID generates a fresh ObjectID.
func NewObjectID() ObjectID { return ObjectID(newUUID()) }

// NewUserID generates a fresh UserID.
func NewUserID() UserID { return UserID(newUUID()) }

// NewEventID generates a fresh EventID.
func NewEventID() EventID { return EventID(newUUID()) }

// NewQueryID generates a fresh QueryID.
func NewQueryID() QueryID { return QueryID(newUUID()) }

// ParseObjectID parses the canonical text form of an ObjectID.
func ParseObjectID(s string) (ObjectID, error) {
	u, err := parse("object", s)
	return ObjectID(u), err
}

// ParseUserID parses the canonical text form of a UserID.
func ParseUserID(s string) (UserID, error) {
	u, err := parse("user", s)
	return UserID(u), err
}

// ParseEventID parses the canonical text form of an EventID.
func ParseEventID(s string) (EventID, error) {
	u, err := parse("event", s)
	return EventID(u), err
}

// ParseQueryID parses the canonical text form of a QueryID.
func ParseQueryID(s string) (QueryID, error) {
	u, err := parse("query", s)
	return QueryID(u), err
}

func parse(what, s string) (uuid.UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse %s id %q: %w", what, s, err)
	}
	return u, nil
}

func (id ObjectID) String() string { return uuid.UUID(id).String() }
func (id UserID) String() string   { return uuid.UUID(id).String() }
func (id EventID) String() string  { return uuid.UUID(id).String() }
func (id QueryID) String() string  { return uuid.UUID(id).String() }

// IsNil reports whether id is the nil ObjectID.
func (id ObjectID) IsNil() bool { return id == NilObject }

// IsNil reports whether id is the nil UserID.
func (id UserID) IsNil() bool { return id == NilUser }

// IsNil reports whether id is the nil EventID.
func (id EventID) IsNil() bool { return id == NilEvent }

func (id ObjectID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id UserID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id EventID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id QueryID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }

func (id *ObjectID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *UserID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *EventID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *QueryID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }

// Compare orders object ids by their bytes. UUIDv7 ids therefore sort by
// creation time.
func (id ObjectID) Compare(other ObjectID) int { return bytes.Compare(id[:], other[:]) }

// FeatureID addresses one geometric feature of an entity.
type FeatureID struct {
	Object ObjectID `json:"object"`
	Index  int      `json:"index"`
}

// IsNil reports whether the feature belongs to no object.
func (f FeatureID) IsNil() bool { return f.Object.IsNil() }

func (f FeatureID) String() string {
	return fmt.Sprintf("%s#%d", f.Object, f.Index)
}

// Compare orders features by object, then index.
func (f FeatureID) Compare(other FeatureID) int {
	if c := f.Object.Compare(other.Object); c != 0 {
		return c
	}
	return cmp.Compare(f.Index, other.Index)
}

// Features returns the feature ids 0..n-1 of an object.
func Features(id ObjectID, n int) []FeatureID {
	out := make([]FeatureID, n)
	for i := range out {
		out[i] = FeatureID{Object: id, Index: i}
	}
	return out
}
