package models

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "poe/pkg/domain"
	dErrors "poe/pkg/domain-errors"
	"poe/pkg/platform/sentinel"
)

var fixedTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestAssertAbsent(t *testing.T) {
	require.NoError(t, AssertAbsent(false))

	err := AssertAbsent(true)
	assert.ErrorIs(t, err, ErrRecordAlreadyExists)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestGuardMessagesDoNotRepeatKind(t *testing.T) {
	_, notFound := AssertPresent(nil, nil)
	errs := []error{
		AssertAbsent(true),
		notFound,
		AssertOwner(Ownership{Owner: "alice"}, "bob"),
		AssertDistinct("alice", "alice"),
	}
	for _, err := range errs {
		var de *dErrors.Error
		require.ErrorAs(t, err, &de)
		require.NotNil(t, de.Err)
		assert.NotEqual(t, de.Err.Error(), de.Message)
		assert.NotContains(t, de.Message, de.Err.Error())
	}
	assert.Equal(t, "identity is already registered: record already exists", errs[0].Error())
}

func TestAssertPresent(t *testing.T) {
	t.Run("returns entry", func(t *testing.T) {
		entry, err := AssertPresent(&Ownership{Owner: "alice", Height: 3}, nil)
		require.NoError(t, err)
		assert.Equal(t, Ownership{Owner: "alice", Height: 3}, entry)
	})

	t.Run("store not found becomes record not found", func(t *testing.T) {
		_, err := AssertPresent(nil, fmt.Errorf("lookup: %w", sentinel.ErrNotFound))
		assert.ErrorIs(t, err, ErrRecordNotFound)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("nil entry without error is absence", func(t *testing.T) {
		_, err := AssertPresent(nil, nil)
		assert.ErrorIs(t, err, ErrRecordNotFound)
	})

	t.Run("other store failures pass through", func(t *testing.T) {
		boom := errors.New("connection reset")
		_, err := AssertPresent(nil, boom)
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrRecordNotFound)
	})
}

func TestAssertOwner(t *testing.T) {
	entry := Ownership{Owner: "alice", Height: 1}
	require.NoError(t, AssertOwner(entry, "alice"))

	err := AssertOwner(entry, "bob")
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestAssertDistinct(t *testing.T) {
	require.NoError(t, AssertDistinct("alice", "bob"))

	err := AssertDistinct("alice", "alice")
	assert.ErrorIs(t, err, ErrTransferToSelf)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestNewRecord(t *testing.T) {
	t.Run("copies input slices", func(t *testing.T) {
		rawID := []byte("S-001")
		r, err := NewRecord(rawID, []byte("Alice"), 20)
		require.NoError(t, err)

		rawID[0] = 'X'
		assert.Equal(t, []byte("S-001"), r.ID)
	})

	t.Run("rejects oversized fields", func(t *testing.T) {
		big := []byte(strings.Repeat("a", MaxFieldLength+1))

		_, err := NewRecord(big, nil, 0)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = NewRecord(nil, big, 0)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("accepts fields at the bound", func(t *testing.T) {
		edge := []byte(strings.Repeat("a", MaxFieldLength))
		_, err := NewRecord(edge, edge, 255)
		require.NoError(t, err)
	})
}

func TestOwnershipIsOwnedBy(t *testing.T) {
	o := Ownership{Owner: id.AccountID("alice")}
	assert.True(t, o.IsOwnedBy("alice"))
	assert.False(t, o.IsOwnedBy("bob"))
}

func TestEventConstructors(t *testing.T) {
	rid := IdentityOf(Record{ID: []byte("S-001")})

	created := NewCreatedEvent("alice", rid, 5, fixedTime)
	assert.Equal(t, EventRecordCreated, created.Kind)
	assert.True(t, created.Recipient.IsNil())

	transferred := NewTransferredEvent("alice", "bob", rid, 6, fixedTime)
	assert.Equal(t, EventRecordTransferred, transferred.Kind)
	assert.Equal(t, id.AccountID("bob"), transferred.Recipient)
	assert.True(t, transferred.Kind.IsValid())
	assert.False(t, EventKind("record_edited").IsValid())
}
