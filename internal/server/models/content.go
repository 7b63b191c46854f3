package models

import "time"

// Content is the physical blob record: one row per distinct byte sequence
// ever uploaded, keyed by its SHA-256 digest. For a given digest there is at
// most one row and at most one blob at StoragePath.
type Content struct {
	ID int64
	// SHA256 is the lowercase hex digest of the blob bytes (globally unique).
	SHA256 string
	// StoragePath is the canonical blob location (filesystem path or object key).
	StoragePath string
	SizeBytes   int64
	// MimeType is the declared media-type hint; empty when none was supplied.
	MimeType  string
	CreatedAt time.Time
}
