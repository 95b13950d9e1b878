package testutil

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/roach88/cadstore/internal/model"
)

// seqUUID returns a valid version-7 UUID whose low bytes encode n, so ids
// sort by n and read as 0000...000n in failure output.
func seqUUID(n uint64) uuid.UUID {
	var u uuid.UUID
	binary.BigEndian.PutUint64(u[8:], n)
	u[6] = 0x70
	u[8] = u[8]&0x3f | 0x80
	return u
}

// ObjectID returns the n-th deterministic object id.
func ObjectID(n uint64) model.ObjectID { return model.ObjectID(seqUUID(n)) }

// UserID returns the n-th deterministic user id.
func UserID(n uint64) model.UserID { return model.UserID(seqUUID(n)) }

// EventID returns the n-th deterministic event id.
func EventID(n uint64) model.EventID { return model.EventID(seqUUID(n)) }

// QueryID returns the n-th deterministic query id.
func QueryID(n uint64) model.QueryID { return model.QueryID(seqUUID(n)) }

// ObjectIDs returns ObjectID(from) .. ObjectID(from+count-1).
func ObjectIDs(from, count uint64) []model.ObjectID {
	out := make([]model.ObjectID, count)
	for i := range out {
		out[i] = ObjectID(from + uint64(i))
	}
	return out
}
