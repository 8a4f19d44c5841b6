package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"poe/internal/platform/middleware"
	"poe/internal/registry/handler/mocks"
	"poe/internal/registry/models"
	id "poe/pkg/domain"
	dErrors "poe/pkg/domain-errors"
	"poe/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks

type tokenValidator map[string]id.AccountID

func (v tokenValidator) ValidateToken(token string) (*middleware.JWTClaims, error) {
	caller, ok := v[token]
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	return &middleware.JWTClaims{Caller: caller, JTI: "jti-" + token}, nil
}

type HandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
	record  models.Record
	rid     models.RecordID
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.T().Cleanup(ctrl.Finish)
	s.service = mocks.NewMockService(ctrl)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(s.service, logger, nil, tokenValidator{"alice-token": "alice"}, 0)
	s.router = chi.NewRouter()
	h.Register(s.router)

	s.record = models.Record{ID: []byte("S-001"), Name: []byte("Alice"), Age: 20}
	s.rid = models.IdentityOf(s.record)
}

func (s *HandlerSuite) body() models.RecordRequest {
	return models.RecordRequest{ID: "S-001", Name: "Alice", Age: 20}
}

func (s *HandlerSuite) authed(req *http.Request) *http.Request {
	return testutil.WithBearer(req, "alice-token")
}

func (s *HandlerSuite) TestCreate() {
	s.Run("created returns entry", func() {
		s.service.EXPECT().CreateRecord(gomock.Any(), s.record, id.AccountID("alice")).
			Return(&models.Entry{RecordID: s.rid, Ownership: models.Ownership{Owner: "alice", Height: 4}}, nil)

		rr := testutil.DoRequest(s.router, s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/records", s.body())))

		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		resp := testutil.UnmarshalResponse[models.Entry](s.T(), rr)
		s.Equal(s.rid, resp.RecordID)
		s.Equal(id.AccountID("alice"), resp.Owner)
		s.Equal(id.BlockNumber(4), resp.Height)
	})

	s.Run("duplicate maps to conflict", func() {
		s.service.EXPECT().CreateRecord(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.Wrap(models.ErrRecordAlreadyExists, dErrors.CodeConflict, "record already exists"))

		rr := testutil.DoRequest(s.router, s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/records", s.body())))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "conflict")
	})

	s.Run("missing token never reaches the service", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/records", s.body()))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	})

	s.Run("unknown token is unauthorized", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/records", s.body())
		req.Header.Set("Authorization", "Bearer mallory-token")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	})

	s.Run("malformed body", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/v1/records", `{"id":`)
		rr := testutil.DoRequest(s.router, s.authed(req))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("unknown field", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/v1/records", `{"id":"a","owner":"bob"}`)
		rr := testutil.DoRequest(s.router, s.authed(req))
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})

	s.Run("age out of range", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/v1/records", `{"id":"a","name":"b","age":256}`)
		rr := testutil.DoRequest(s.router, s.authed(req))
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})

	s.Run("bad encoding", func() {
		body := s.body()
		body.Encoding = "hex"
		rr := testutil.DoRequest(s.router, s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/records", body)))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("wrong content type", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/v1/records", `{}`)
		req.Header.Set("Content-Type", "text/plain")
		rr := testutil.DoRequest(s.router, s.authed(req))
		testutil.AssertStatus(s.T(), rr, http.StatusUnsupportedMediaType)
	})
}

func (s *HandlerSuite) TestDelete() {
	s.Run("owner delete is no content", func() {
		s.service.EXPECT().DeleteRecord(gomock.Any(), s.record, id.AccountID("alice")).Return(s.rid, nil)

		rr := testutil.DoRequest(s.router, s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/records/delete", s.body())))
		testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
	})

	s.Run("non owner is forbidden", func() {
		s.service.EXPECT().DeleteRecord(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(models.RecordID{}, dErrors.Wrap(models.ErrNotOwner, dErrors.CodeForbidden, "caller does not own record"))

		rr := testutil.DoRequest(s.router, s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/records/delete", s.body())))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
	})

	s.Run("absent is not found", func() {
		s.service.EXPECT().DeleteRecord(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(models.RecordID{}, dErrors.Wrap(models.ErrRecordNotFound, dErrors.CodeNotFound, "record not found"))

		rr := testutil.DoRequest(s.router, s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/records/delete", s.body())))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})
}

func (s *HandlerSuite) TestTransfer() {
	s.Run("transfer returns new owner", func() {
		s.service.EXPECT().TransferRecord(gomock.Any(), s.record, id.AccountID("alice"), id.AccountID("bob")).
			Return(&models.Entry{RecordID: s.rid, Ownership: models.Ownership{Owner: "bob", Height: 9}}, nil)

		body := models.TransferRequest{RecordRequest: s.body(), To: "bob"}
		rr := testutil.DoRequest(s.router, s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/records/transfer", body)))

		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[models.Entry](s.T(), rr)
		s.Equal(id.AccountID("bob"), resp.Owner)
	})

	s.Run("self transfer is bad request", func() {
		s.service.EXPECT().TransferRecord(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.Wrap(models.ErrTransferToSelf, dErrors.CodeBadRequest, "cannot transfer to self"))

		body := models.TransferRequest{RecordRequest: s.body(), To: "alice"}
		rr := testutil.DoRequest(s.router, s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/records/transfer", body)))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("missing recipient is rejected before the service", func() {
		body := models.TransferRequest{RecordRequest: s.body()}
		rr := testutil.DoRequest(s.router, s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/records/transfer", body)))
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})
}

func (s *HandlerSuite) TestLookup() {
	s.Run("lookup by content is public", func() {
		s.service.EXPECT().Lookup(gomock.Any(), s.record).
			Return(&models.Entry{RecordID: s.rid, Ownership: models.Ownership{Owner: "alice", Height: 1}}, nil)

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/records/lookup", s.body()))
		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "owner", "alice")
	})

	s.Run("lookup by id", func() {
		s.service.EXPECT().LookupByID(gomock.Any(), s.rid).
			Return(&models.Entry{RecordID: s.rid, Ownership: models.Ownership{Owner: "alice", Height: 1}}, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/records/"+s.rid.String()))
		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "record_id", s.rid.String())
	})

	s.Run("malformed id", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/records/not-hex"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})

	s.Run("internal errors hide detail", func() {
		s.service.EXPECT().LookupByID(gomock.Any(), s.rid).
			Return(nil, dErrors.New(dErrors.CodeInternal, "connection refused"))

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/records/"+s.rid.String()))
		testutil.AssertStatus(s.T(), rr, http.StatusInternalServerError)
		s.NotContains(rr.Body.String(), "connection refused")
	})
}

func (s *HandlerSuite) TestResponsesCarryRequestID() {
	s.service.EXPECT().LookupByID(gomock.Any(), s.rid).Return(nil, dErrors.Wrap(models.ErrRecordNotFound, dErrors.CodeNotFound, "record not found"))

	req := testutil.NewRequest(s.T(), http.MethodGet, "/v1/records/"+s.rid.String())
	req.Header.Set(middleware.RequestIDHeader, "req-7")
	rr := testutil.DoRequest(s.router, req)

	s.Equal("req-7", rr.Header().Get(middleware.RequestIDHeader))
}

func (s *HandlerSuite) TestHandlersReadCallerFromContext() {
	h := New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, tokenValidator{}, 0)

	s.Run("bound caller is used", func() {
		s.service.EXPECT().DeleteRecord(gomock.Any(), s.record, id.AccountID("carol")).Return(s.rid, nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/records/delete", s.body())
		req = testutil.WithRequestID(testutil.WithCaller(req, "carol"), "req-direct")
		rr := testutil.DoRequest(http.HandlerFunc(h.handleDelete), req)
		testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
	})

	s.Run("missing caller is an internal error", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/records", s.body())
		rr := testutil.DoRequest(http.HandlerFunc(h.handleCreate), req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusInternalServerError, "internal_error")
	})
}
