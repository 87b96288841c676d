package repository

import "errors"

// ErrNotFound reports that the requested record does not exist in the backing
// store. Repositories return it in place of driver-specific no-rows errors so
// callers can branch without importing drivers.
var ErrNotFound = errors.New("repository: not found")
