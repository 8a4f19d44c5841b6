package service

import (
	"context"

	"poe/internal/registry/models"
)

// Lookup returns the ownership entry for record's content.
func (s *Service) Lookup(ctx context.Context, record models.Record) (*models.Entry, error) {
	return s.LookupByID(ctx, models.IdentityOf(record))
}

// LookupByID returns the ownership entry keyed by rid. Existence of an entry
// is the proof that content with this identity was registered.
func (s *Service) LookupByID(ctx context.Context, rid models.RecordID) (_ *models.Entry, err error) {
	ctx, span, start := s.startSpan(ctx, opLookup)
	defer func() { s.finish(ctx, span, opLookup, start, err) }()

	ownership, err := models.AssertPresent(s.records.Get(ctx, rid))
	if err != nil {
		return nil, internal(err, "failed to load record")
	}
	return &models.Entry{RecordID: rid, Ownership: ownership}, nil
}
