package models

import "errors"

// Rejection kinds. Every kind is caller-input dependent and never retryable;
// services wrap them in coded domain errors, so match with errors.Is.
var (
	ErrRecordAlreadyExists = errors.New("record already exists")
	ErrRecordNotFound      = errors.New("record not found")
	ErrNotOwner            = errors.New("caller is not the record owner")
	ErrTransferToSelf      = errors.New("cannot transfer record to its current owner")
)
