package models

import (
	"errors"

	id "poe/pkg/domain"
	dErrors "poe/pkg/domain-errors"
	"poe/pkg/platform/sentinel"
)

// Ownership guards. Each is a pure predicate over state already read from the
// store; none of them mutates anything, so running all of them before the
// first write is what makes an operation all-or-nothing.

// AssertAbsent fails with ErrRecordAlreadyExists when the identity is present.
func AssertAbsent(exists bool) error {
	if exists {
		return dErrors.Wrap(ErrRecordAlreadyExists, dErrors.CodeConflict, "identity is already registered")
	}
	return nil
}

// AssertPresent turns a store lookup result into the entry, failing with
// ErrRecordNotFound when the store reported absence. Other store failures are
// returned unchanged for the caller to classify.
func AssertPresent(entry *Ownership, err error) (Ownership, error) {
	if errors.Is(err, sentinel.ErrNotFound) || (err == nil && entry == nil) {
		return Ownership{}, dErrors.Wrap(ErrRecordNotFound, dErrors.CodeNotFound, "no entry for identity")
	}
	if err != nil {
		return Ownership{}, err
	}
	return *entry, nil
}

// AssertOwner fails with ErrNotOwner unless caller owns entry.
func AssertOwner(entry Ownership, caller id.AccountID) error {
	if !entry.IsOwnedBy(caller) {
		return dErrors.Wrap(ErrNotOwner, dErrors.CodeForbidden, "change rejected")
	}
	return nil
}

// AssertDistinct fails with ErrTransferToSelf when from and to are the same account.
func AssertDistinct(from, to id.AccountID) error {
	if from == to {
		return dErrors.Wrap(ErrTransferToSelf, dErrors.CodeBadRequest, "transfer rejected")
	}
	return nil
}
