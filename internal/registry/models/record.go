package models

import (
	"bytes"
	"strconv"

	id "poe/pkg/domain"
	dErrors "poe/pkg/domain-errors"
)

// MaxFieldLength bounds the identifier and name byte sequences of a record
// accepted from a client request. The registry itself hashes content of any size.
const MaxFieldLength = 1024

// Record is the content whose existence and ownership the registry tracks.
//
// Invariants:
//   - Records are immutable values; two records are equal iff all three
//     fields are equal.
//   - Any field change, including Age, yields an unrelated record identity.
//     There is no in-place edit.
type Record struct {
	ID   []byte
	Name []byte
	Age  uint8
}

// NewRecord validates field bounds and returns a record holding private
// copies of the given slices.
func NewRecord(recordID, name []byte, age uint8) (Record, error) {
	if len(recordID) > MaxFieldLength {
		return Record{}, dErrors.New(dErrors.CodeValidation, "record id exceeds "+strconv.Itoa(MaxFieldLength)+" bytes")
	}
	if len(name) > MaxFieldLength {
		return Record{}, dErrors.New(dErrors.CodeValidation, "record name exceeds "+strconv.Itoa(MaxFieldLength)+" bytes")
	}
	return Record{
		ID:   bytes.Clone(recordID),
		Name: bytes.Clone(name),
		Age:  age,
	}, nil
}

// Equal reports field-wise equality. A nil and an empty slice are equal.
func (r Record) Equal(other Record) bool {
	return bytes.Equal(r.ID, other.ID) && bytes.Equal(r.Name, other.Name) && r.Age == other.Age
}

// Identity returns the record's content identity.
func (r Record) Identity() RecordID {
	return IdentityOf(r)
}

// Ownership is the registry entry stored per content identity: the current
// owner and the height at which ownership was established (creation or the
// most recent transfer).
type Ownership struct {
	Owner  id.AccountID   `json:"owner"`
	Height id.BlockNumber `json:"height"`
}

// IsOwnedBy reports whether account currently owns the entry.
func (o Ownership) IsOwnedBy(account id.AccountID) bool {
	return o.Owner == account
}

// Entry is an ownership entry together with the identity it is keyed by.
type Entry struct {
	RecordID RecordID `json:"record_id"`
	Ownership
}
