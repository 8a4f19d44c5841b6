package models

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"

	dErrors "poe/pkg/domain-errors"
)

// RecordIDSize is the digest size of a content identity in bytes.
const RecordIDSize = blake2b.Size256

// RecordID is the content identity of a Record and the registry's primary key.
type RecordID [RecordIDSize]byte

// IdentityOf derives the content identity of r.
//
// The encoding is uvarint(len(ID)) ‖ ID ‖ uvarint(len(Name)) ‖ Name ‖ Age,
// hashed with Blake2b-256. Length prefixes keep the encoding injective, so
// ("ab","c") and ("a","bc") never share a preimage. The encoding is part of
// the persisted key space and must not change.
func IdentityOf(r Record) RecordID {
	return blake2b.Sum256(encodeRecord(r))
}

func encodeRecord(r Record) []byte {
	buf := make([]byte, 0, 2*binary.MaxVarintLen64+len(r.ID)+len(r.Name)+1)
	buf = binary.AppendUvarint(buf, uint64(len(r.ID)))
	buf = append(buf, r.ID...)
	buf = binary.AppendUvarint(buf, uint64(len(r.Name)))
	buf = append(buf, r.Name...)
	buf = append(buf, r.Age)
	return buf
}

// ParseRecordID decodes a hex-encoded content identity.
func ParseRecordID(s string) (RecordID, error) {
	var rid RecordID
	if len(s) != hex.EncodedLen(RecordIDSize) {
		return rid, dErrors.New(dErrors.CodeInvalidInput, "record id must be 64 hex characters")
	}
	if _, err := hex.Decode(rid[:], []byte(s)); err != nil {
		return RecordID{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "record id is not valid hex")
	}
	return rid, nil
}

// RecordIDFromBytes copies a raw 32-byte digest into a RecordID.
func RecordIDFromBytes(b []byte) (RecordID, error) {
	var rid RecordID
	if len(b) != RecordIDSize {
		return rid, dErrors.New(dErrors.CodeInvalidInput, "record id must be 32 bytes")
	}
	copy(rid[:], b)
	return rid, nil
}

func (r RecordID) String() string { return hex.EncodeToString(r[:]) }

// Bytes returns a copy of the raw digest.
func (r RecordID) Bytes() []byte {
	out := make([]byte, RecordIDSize)
	copy(out, r[:])
	return out
}

// IsZero reports whether r is the zero digest.
func (r RecordID) IsZero() bool { return r == RecordID{} }

func (r RecordID) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *RecordID) UnmarshalText(text []byte) error {
	parsed, err := ParseRecordID(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
