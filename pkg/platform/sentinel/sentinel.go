package sentinel

import "errors"

// Infrastructure facts returned (optionally wrapped) by stores and adapters.
// Services translate them into domain errors; they never reach transports as-is.
//
//   - ErrNotFound: key absent from the backing store
//   - ErrConflict: a concurrent writer won the race for the same key
//   - ErrUnavailable: backend temporarily unreachable
//   - ErrRegression: an external counter moved backwards
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
	ErrRegression  = errors.New("regression")
)
