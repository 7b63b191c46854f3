// Package common defines shared constants and sentinel errors used across
// client and server layers of FileVault. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrIngest marks a failure while reading the upload stream or writing
	// scratch storage. Any partial scratch artifact is discarded before this
	// is returned.
	ErrIngest = errors.New("ingest error")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)
