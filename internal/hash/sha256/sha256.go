// Package sha256 computes the content digests recorded in export manifests.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// Hasher produces hex SHA-256 digests.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Reader wraps r so that everything read through it is counted and hashed.
func (h *Hasher) Reader(r io.Reader) *DigestReader {
	d := sha256.New()
	return &DigestReader{r: io.TeeReader(r, d), h: d}
}

// DigestReader hashes the bytes that pass through it.
type DigestReader struct {
	r io.Reader
	h hash.Hash
	n int64
}

func (d *DigestReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	d.n += int64(n)
	return n, err //nolint:wrapcheck // io.Reader contract
}

// Sum returns the hex digest and byte count of what has been read so far.
func (d *DigestReader) Sum() (string, int64) {
	return hex.EncodeToString(d.h.Sum(nil)), d.n
}

// File drains r and returns its digest and size.
func (h *Hasher) File(r io.Reader) (string, int64, error) {
	d := h.Reader(r)
	if _, err := io.Copy(io.Discard, d); err != nil {
		return "", 0, fmt.Errorf("hash content: %w", err)
	}
	sum, n := d.Sum()
	return sum, n, nil
}
