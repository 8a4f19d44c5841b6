package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks -exclude_interfaces=StoreTx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"poe/internal/registry/models"
	"poe/internal/registry/service/mocks"
	id "poe/pkg/domain"
	dErrors "poe/pkg/domain-errors"
	"poe/pkg/platform/sentinel"
	"poe/pkg/requestcontext"
)

// directTx runs the callback against the mock store without staging, so
// expectations observe exactly which writes the service attempts.
type directTx struct {
	store Store
}

func (d directTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	return fn(ctx, d.store)
}

type ServiceSuite struct {
	suite.Suite
	ctrl        *gomock.Controller
	mockStore   *mocks.MockStore
	mockHeights *mocks.MockHeightSource
	mockSink    *mocks.MockEventSink
	service     *Service
	ctx         context.Context
	now         time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockStore = mocks.NewMockStore(s.ctrl)
	s.mockHeights = mocks.NewMockHeightSource(s.ctrl)
	s.mockSink = mocks.NewMockEventSink(s.ctrl)
	s.service = New(s.mockStore, directTx{store: s.mockStore}, s.mockHeights, s.mockSink)
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithRequestID(requestcontext.WithTime(context.Background(), s.now), "req-123")
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func student() models.Record {
	return models.Record{ID: []byte("S-001"), Name: []byte("Alice"), Age: 20}
}

func (s *ServiceSuite) TestCreateRecord() {
	record := student()
	rid := models.IdentityOf(record)

	s.Run("inserts caller at current height and emits created", func() {
		s.mockStore.EXPECT().Contains(gomock.Any(), rid).Return(false, nil)
		s.mockHeights.EXPECT().Height(gomock.Any()).Return(id.BlockNumber(42), nil)
		s.mockStore.EXPECT().Insert(gomock.Any(), rid, models.Ownership{Owner: "alice", Height: 42}).Return(nil)
		s.mockSink.EXPECT().Append(gomock.Any(), models.Event{
			Kind:      models.EventRecordCreated,
			RecordID:  rid,
			Actor:     "alice",
			Height:    42,
			Timestamp: s.now,
			RequestID: "req-123",
		}).Return(nil)

		entry, err := s.service.CreateRecord(s.ctx, record, "alice")
		s.Require().NoError(err)
		s.Equal(rid, entry.RecordID)
		s.Equal(id.AccountID("alice"), entry.Owner)
		s.Equal(id.BlockNumber(42), entry.Height)
	})

	s.Run("existing record is rejected before any write", func() {
		s.mockStore.EXPECT().Contains(gomock.Any(), rid).Return(true, nil)

		_, err := s.service.CreateRecord(s.ctx, record, "alice")
		s.Require().Error(err)
		s.ErrorIs(err, models.ErrRecordAlreadyExists)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("store failure is internal", func() {
		s.mockStore.EXPECT().Contains(gomock.Any(), rid).Return(false, errors.New("connection refused"))

		_, err := s.service.CreateRecord(s.ctx, record, "alice")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("height failure aborts before insert", func() {
		s.mockStore.EXPECT().Contains(gomock.Any(), rid).Return(false, nil)
		s.mockHeights.EXPECT().Height(gomock.Any()).Return(id.BlockNumber(0), errors.New("height unavailable"))

		_, err := s.service.CreateRecord(s.ctx, record, "alice")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("sink failure fails the operation", func() {
		s.mockStore.EXPECT().Contains(gomock.Any(), rid).Return(false, nil)
		s.mockHeights.EXPECT().Height(gomock.Any()).Return(id.BlockNumber(1), nil)
		s.mockStore.EXPECT().Insert(gomock.Any(), rid, gomock.Any()).Return(nil)
		s.mockSink.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("outbox full"))

		_, err := s.service.CreateRecord(s.ctx, record, "alice")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestInputValidation() {
	s.Run("empty caller", func() {
		_, err := s.service.CreateRecord(s.ctx, student(), "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("malformed recipient", func() {
		_, err := s.service.TransferRecord(s.ctx, student(), "alice", "bob smith")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestDeleteRecord() {
	record := student()
	rid := models.IdentityOf(record)

	s.Run("owner deletes and emits deleted", func() {
		s.mockStore.EXPECT().Get(gomock.Any(), rid).Return(&models.Ownership{Owner: "alice", Height: 3}, nil)
		s.mockHeights.EXPECT().Height(gomock.Any()).Return(id.BlockNumber(9), nil)
		s.mockStore.EXPECT().Remove(gomock.Any(), rid).Return(nil)
		s.mockSink.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, event models.Event) error {
				s.Equal(models.EventRecordDeleted, event.Kind)
				s.Equal(id.AccountID("alice"), event.Actor)
				s.Equal(id.BlockNumber(9), event.Height)
				return nil
			})

		got, err := s.service.DeleteRecord(s.ctx, record, "alice")
		s.Require().NoError(err)
		s.Equal(rid, got)
	})

	s.Run("absent record is not found", func() {
		s.mockStore.EXPECT().Get(gomock.Any(), rid).Return(nil, sentinel.ErrNotFound)

		_, err := s.service.DeleteRecord(s.ctx, record, "alice")
		s.ErrorIs(err, models.ErrRecordNotFound)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("non-owner is rejected without removal", func() {
		s.mockStore.EXPECT().Get(gomock.Any(), rid).Return(&models.Ownership{Owner: "alice", Height: 3}, nil)

		_, err := s.service.DeleteRecord(s.ctx, record, "mallory")
		s.ErrorIs(err, models.ErrNotOwner)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("store read failure is internal", func() {
		s.mockStore.EXPECT().Get(gomock.Any(), rid).Return(nil, sentinel.ErrUnavailable)

		_, err := s.service.DeleteRecord(s.ctx, record, "alice")
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
		s.ErrorIs(err, sentinel.ErrUnavailable)
	})
}

func (s *ServiceSuite) TestTransferRecord() {
	record := student()
	rid := models.IdentityOf(record)

	s.Run("owner transfers and height is refreshed", func() {
		s.mockStore.EXPECT().Get(gomock.Any(), rid).Return(&models.Ownership{Owner: "alice", Height: 3}, nil)
		s.mockHeights.EXPECT().Height(gomock.Any()).Return(id.BlockNumber(11), nil)
		s.mockStore.EXPECT().Insert(gomock.Any(), rid, models.Ownership{Owner: "bob", Height: 11}).Return(nil)
		s.mockSink.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, event models.Event) error {
				s.Equal(models.EventRecordTransferred, event.Kind)
				s.Equal(id.AccountID("alice"), event.Actor)
				s.Equal(id.AccountID("bob"), event.Recipient)
				return nil
			})

		entry, err := s.service.TransferRecord(s.ctx, record, "alice", "bob")
		s.Require().NoError(err)
		s.Equal(id.AccountID("bob"), entry.Owner)
		s.Equal(id.BlockNumber(11), entry.Height)
	})

	s.Run("not found is checked before ownership", func() {
		s.mockStore.EXPECT().Get(gomock.Any(), rid).Return(nil, sentinel.ErrNotFound)

		_, err := s.service.TransferRecord(s.ctx, record, "mallory", "mallory")
		s.ErrorIs(err, models.ErrRecordNotFound)
	})

	s.Run("ownership is checked before self transfer", func() {
		s.mockStore.EXPECT().Get(gomock.Any(), rid).Return(&models.Ownership{Owner: "alice"}, nil)

		_, err := s.service.TransferRecord(s.ctx, record, "mallory", "mallory")
		s.ErrorIs(err, models.ErrNotOwner)
	})

	s.Run("self transfer is rejected without write", func() {
		s.mockStore.EXPECT().Get(gomock.Any(), rid).Return(&models.Ownership{Owner: "alice"}, nil)

		_, err := s.service.TransferRecord(s.ctx, record, "alice", "alice")
		s.ErrorIs(err, models.ErrTransferToSelf)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *ServiceSuite) TestLookupByID() {
	rid := models.IdentityOf(student())

	s.Run("returns entry", func() {
		s.mockStore.EXPECT().Get(gomock.Any(), rid).Return(&models.Ownership{Owner: "alice", Height: 2}, nil)

		entry, err := s.service.LookupByID(s.ctx, rid)
		s.Require().NoError(err)
		s.Equal(models.Entry{RecordID: rid, Ownership: models.Ownership{Owner: "alice", Height: 2}}, *entry)
	})

	s.Run("absent is not found", func() {
		s.mockStore.EXPECT().Get(gomock.Any(), rid).Return(nil, sentinel.ErrNotFound)

		_, err := s.service.LookupByID(s.ctx, rid)
		s.ErrorIs(err, models.ErrRecordNotFound)
	})
}
