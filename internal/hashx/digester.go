// Package hashx implements streaming content hashing for uploads.
package hashx

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// CopyBufferSize is the chunk size used when streaming an upload through a
// Digester. Bounds memory use per in-flight upload.
const CopyBufferSize = 1 << 20 // 1 MiB

// HexDigestLength is the length of a lowercase hex SHA-256 digest.
const HexDigestLength = 64

// Digester is an io.Writer that forwards every chunk to a sink while
// maintaining a running SHA-256 digest and a total byte count. The payload is
// never buffered: each chunk is hashed and written through.
//
// Only bytes accepted by the sink are counted and hashed, so a short write
// leaves the digest consistent with what actually reached the sink.
type Digester struct {
	sink io.Writer
	h    hash.Hash
	size int64
}

// NewDigester returns a Digester writing through to sink.
func NewDigester(sink io.Writer) *Digester {
	return &Digester{sink: sink, h: sha256.New()}
}

func (d *Digester) Write(p []byte) (int, error) {
	n, err := d.sink.Write(p)
	if n > 0 {
		d.h.Write(p[:n])
		d.size += int64(n)
	}
	return n, err
}

// SumHex returns the lowercase hex SHA-256 digest of everything written so far.
func (d *Digester) SumHex() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

// Size returns the total number of bytes written through to the sink.
func (d *Digester) Size() int64 {
	return d.size
}
