// Package hashing computes the content digests that bind jobs, artifacts
// and ledger entries together. Digests are sha256 over the literal payload
// bytes, lowercase hex encoded; no normalization happens between submission
// and verification.
package hashing

import (
	"errors"
	"io"

	"github.com/opencontainers/go-digest"
)

// ErrEmptyInput is returned when asked to hash a nil or empty payload.
var ErrEmptyInput = errors.New("hashing: empty input")

// SumBytes returns the lowercase hex sha256 digest of b.
func SumBytes(b []byte) (string, error) {
	if len(b) == 0 {
		return "", ErrEmptyInput
	}
	return digest.SHA256.FromBytes(b).Encoded(), nil
}

// SumText returns the digest of the literal UTF-8 bytes of s.
func SumText(s string) (string, error) {
	if s == "" {
		return "", ErrEmptyInput
	}
	return digest.SHA256.FromString(s).Encoded(), nil
}

// SumReader digests everything readable from r.
func SumReader(r io.Reader) (string, error) {
	d, err := digest.SHA256.FromReader(r)
	if err != nil {
		return "", err
	}
	return d.Encoded(), nil
}

// ContentAddress returns the full algorithm-qualified digest for b, used as
// the content address anchored on the ledger (e.g. "sha256:ab12...").
func ContentAddress(b []byte) (string, error) {
	if len(b) == 0 {
		return "", ErrEmptyInput
	}
	return digest.SHA256.FromBytes(b).String(), nil
}
