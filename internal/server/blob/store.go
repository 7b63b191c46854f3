// Package blob implements content-addressed blob storage. Blobs are staged
// in a scratch area isolated from the published namespace, then published
// idempotently under their content hash.
package blob

import (
	"context"
	"io"
	"time"
)

// Store is a content-addressed blob store.
//
// Publish must be idempotent and race-safe for concurrent publishers of the
// same hash: after it returns, exactly one blob exists at the canonical
// location and no partial blob is ever visible to readers.
type Store interface {
	// StageNew allocates a uniquely-named scratch artifact for an in-progress
	// upload. The caller streams bytes into it and either publishes or
	// discards it.
	StageNew() (*Scratch, error)

	// CanonicalPath returns the deterministic location a blob with the given
	// lowercase hex digest is (or will be) published under.
	CanonicalPath(sha256Hex string) string

	// Publish finalizes scratch under the canonical location for sha256Hex.
	// When a blob already exists there, the scratch artifact is discarded and
	// the call succeeds. Returns the canonical location.
	Publish(ctx context.Context, scratch *Scratch, sha256Hex string) (string, error)

	// Open opens a published blob for reading. Returns common.ErrNotFound
	// (wrapped) when no blob exists at path.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// Sweeper is implemented by stores that stage scratch artifacts locally and
// can clean up artifacts abandoned by disconnected clients.
type Sweeper interface {
	// SweepScratch removes scratch artifacts older than olderThan and returns
	// how many were removed.
	SweepScratch(olderThan time.Duration) (int, error)
}
