package service

import (
	"context"

	"poe/internal/registry/models"
	id "poe/pkg/domain"
	dErrors "poe/pkg/domain-errors"
	"poe/pkg/requestcontext"
)

// CreateRecord claims ownership of record for caller at the current height.
// Fails with ErrRecordAlreadyExists when the record is already registered.
func (s *Service) CreateRecord(ctx context.Context, record models.Record, caller id.AccountID) (_ *models.Entry, err error) {
	ctx, span, start := s.startSpan(ctx, opCreate)
	defer func() { s.finish(ctx, span, opCreate, start, err) }()

	if err := validateAccount(caller, "caller"); err != nil {
		return nil, err
	}

	rid := models.IdentityOf(record)
	var entry models.Entry
	err = s.tx.RunInTx(ctx, func(ctx context.Context, store Store) error {
		exists, err := store.Contains(ctx, rid)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check record")
		}
		if err := models.AssertAbsent(exists); err != nil {
			return err
		}

		height, err := s.height(ctx)
		if err != nil {
			return err
		}
		ownership := models.Ownership{Owner: caller, Height: height}
		if err := store.Insert(ctx, rid, ownership); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to insert record")
		}
		if err := s.emit(ctx, models.NewCreatedEvent(caller, rid, height, requestcontext.Now(ctx))); err != nil {
			return err
		}
		entry = models.Entry{RecordID: rid, Ownership: ownership}
		return nil
	})
	if err != nil {
		return nil, internal(err, "failed to create record")
	}

	s.logAudit(ctx, models.EventRecordCreated,
		"record_id", rid.String(),
		"caller", caller.String(),
		"height", entry.Height,
	)
	return &entry, nil
}

// DeleteRecord removes the entry for record. Only the current owner may
// delete; afterwards the same content can be created again by anyone.
func (s *Service) DeleteRecord(ctx context.Context, record models.Record, caller id.AccountID) (_ models.RecordID, err error) {
	ctx, span, start := s.startSpan(ctx, opDelete)
	defer func() { s.finish(ctx, span, opDelete, start, err) }()

	if err := validateAccount(caller, "caller"); err != nil {
		return models.RecordID{}, err
	}

	rid := models.IdentityOf(record)
	err = s.tx.RunInTx(ctx, func(ctx context.Context, store Store) error {
		entry, err := models.AssertPresent(store.Get(ctx, rid))
		if err != nil {
			return internal(err, "failed to load record")
		}
		if err := models.AssertOwner(entry, caller); err != nil {
			return err
		}

		height, err := s.height(ctx)
		if err != nil {
			return err
		}
		if err := store.Remove(ctx, rid); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove record")
		}
		return s.emit(ctx, models.NewDeletedEvent(caller, rid, height, requestcontext.Now(ctx)))
	})
	if err != nil {
		return models.RecordID{}, internal(err, "failed to delete record")
	}

	s.logAudit(ctx, models.EventRecordDeleted,
		"record_id", rid.String(),
		"caller", caller.String(),
	)
	return rid, nil
}

// TransferRecord hands ownership of record from caller to recipient and
// refreshes the ownership height. Checks run in order: the record must exist,
// caller must own it, and recipient must differ from caller.
func (s *Service) TransferRecord(ctx context.Context, record models.Record, caller, recipient id.AccountID) (_ *models.Entry, err error) {
	ctx, span, start := s.startSpan(ctx, opTransfer)
	defer func() { s.finish(ctx, span, opTransfer, start, err) }()

	if err := validateAccount(caller, "caller"); err != nil {
		return nil, err
	}
	if err := validateAccount(recipient, "recipient"); err != nil {
		return nil, err
	}

	rid := models.IdentityOf(record)
	var entry models.Entry
	err = s.tx.RunInTx(ctx, func(ctx context.Context, store Store) error {
		current, err := models.AssertPresent(store.Get(ctx, rid))
		if err != nil {
			return internal(err, "failed to load record")
		}
		if err := models.AssertOwner(current, caller); err != nil {
			return err
		}
		if err := models.AssertDistinct(caller, recipient); err != nil {
			return err
		}

		height, err := s.height(ctx)
		if err != nil {
			return err
		}
		ownership := models.Ownership{Owner: recipient, Height: height}
		if err := store.Insert(ctx, rid, ownership); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update record")
		}
		if err := s.emit(ctx, models.NewTransferredEvent(caller, recipient, rid, height, requestcontext.Now(ctx))); err != nil {
			return err
		}
		entry = models.Entry{RecordID: rid, Ownership: ownership}
		return nil
	})
	if err != nil {
		return nil, internal(err, "failed to transfer record")
	}

	s.logAudit(ctx, models.EventRecordTransferred,
		"record_id", rid.String(),
		"caller", caller.String(),
		"recipient", recipient.String(),
		"height", entry.Height,
	)
	return &entry, nil
}
