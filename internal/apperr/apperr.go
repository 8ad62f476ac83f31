// Package apperr defines the error taxonomy shared across the relay: the
// kinds of failure a component can produce and how they propagate to a
// wire-level outcome (a JSON error body, a close code, or a buffered retry).
package apperr

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Components wrap these with context via fmt.Errorf("%w: ...")
// rather than constructing ad-hoc error strings, so callers can recover the
// kind with errors.Is.
var (
	// ErrTransientStore covers connection, timeout, and deadlock failures
	// from the database pool. Recovered by buffering and a later flush.
	ErrTransientStore = errors.New("transient store error")

	// ErrDuplicateFingerprint is a normal outcome, not a failure: a message
	// with this fingerprint already exists and was silently dropped.
	ErrDuplicateFingerprint = errors.New("duplicate fingerprint")

	// ErrMalformedUpstream marks an unparsable frame from the capture
	// service. The event is dropped and the connection stays open.
	ErrMalformedUpstream = errors.New("malformed upstream frame")

	// ErrAuthFailure covers rejected keys at the admin surface or the
	// subscriber surface.
	ErrAuthFailure = errors.New("authentication failed")

	// ErrTimeout covers subscriber auth timeout, backfill HTTP timeout, and
	// pool connect timeout.
	ErrTimeout = errors.New("operation timed out")

	// ErrConfig marks missing or invalid required configuration. Fatal at
	// boot; never caught and buffered.
	ErrConfig = errors.New("configuration error")

	// ErrNotFound marks a lookup that found no row, distinct from a store
	// failure.
	ErrNotFound = errors.New("not found")
)

// Wrap attaches context to a sentinel error while keeping it matchable with
// errors.Is(err, sentinel).
func Wrap(sentinel error, context string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", context, sentinel)
	}
	return fmt.Errorf("%s: %w: %v", context, sentinel, cause)
}

// IsTransientStore reports whether err is, or wraps, ErrTransientStore.
func IsTransientStore(err error) bool { return errors.Is(err, ErrTransientStore) }

// IsDuplicate reports whether err is, or wraps, ErrDuplicateFingerprint.
func IsDuplicate(err error) bool { return errors.Is(err, ErrDuplicateFingerprint) }

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
