package testutil

import (
	"net/http"

	id "poe/pkg/domain"
	"poe/pkg/requestcontext"
)

// WithCaller binds an authenticated account to the request context.
// This simulates what the auth middleware would do for authenticated requests.
// Malformed account ids are not added.
func WithCaller(req *http.Request, caller string) *http.Request {
	account, err := id.ParseAccountID(caller)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithCaller(req.Context(), account))
}

// WithRequestID adds a request ID to the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
