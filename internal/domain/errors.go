package domain

import "errors"

// ErrNotFound is returned by repo and service functions when the requested
// resource does not exist in the database. It also signals an unbound
// external id during candidate resolution, which the sync engine treats as
// a creation, not a failure. Handlers should map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned by service functions when input fails business
// rule validation (e.g. missing required field, malformed date).
// Handlers should map this to HTTP 422 Unprocessable Entity.
var ErrValidation = errors.New("validation error")

// ErrSyncTokenExpired is returned by the calendar client when the remote
// reports the stored incremental sync token as expired or gone. The caller
// clears the token and surfaces "requires full resync"; it must never crash
// the webhook.
var ErrSyncTokenExpired = errors.New("sync token expired")
