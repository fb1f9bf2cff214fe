package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so callers can branch with errors.Is.
//
//   - ErrNotFound: record does not exist in store
//   - ErrConflict: record already exists
//   - ErrInvalidState: record in wrong state for requested operation
//   - ErrUnavailable: dependency temporarily unavailable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
