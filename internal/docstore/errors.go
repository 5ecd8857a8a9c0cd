package docstore

import "rosterd/pkg/errcode"

// Sentinel-style constructors keep store errors consistent across engine
// implementations.

// ErrNotFound builds the coded error for an absent document.
func ErrNotFound(collection, id string) error {
	return errcode.Newf(errcode.CodeNotFound, "document %s/%s not found", collection, id)
}

// ErrConflict builds the coded error for a transaction that exhausted its
// retry budget.
func ErrConflict(detail string) error {
	return errcode.Newf(errcode.CodeConflict, "transaction aborted: %s", detail)
}

// ErrUnavailable wraps a transient backend failure.
func ErrUnavailable(cause error) error {
	return errcode.Wrap(cause, errcode.CodeUnavailable, "store unavailable")
}

// IsNotFound reports whether err is an absent-document failure.
func IsNotFound(err error) bool { return errcode.IsCode(err, errcode.CodeNotFound) }
