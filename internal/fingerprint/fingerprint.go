// Package fingerprint computes content fingerprints used to decide whether
// a file's bytes changed between runs.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Algorithm names the hash behind Fingerprint. It is recorded in persisted
// state so a different build can refuse state it cannot compare against.
const Algorithm = "sha256"

// Size is the length of a Fingerprint in bytes.
const Size = sha256.Size

// Fingerprint is an opaque fixed-size content hash.
type Fingerprint [Size]byte

// File hashes the full contents of the file at path.
func File(path string) (Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, err
	}
	defer func() {
		_ = f.Close()
	}()

	return Reader(f)
}

// Reader hashes everything readable from r.
func Reader(r io.Reader) (Fingerprint, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return Fingerprint{}, err
	}

	var fp Fingerprint
	copy(fp[:], h.Sum(nil))
	return fp, nil
}

// Parse decodes a hex encoded fingerprint.
func Parse(s string) (Fingerprint, error) {
	var fp Fingerprint
	if err := fp.UnmarshalText([]byte(s)); err != nil {
		return Fingerprint{}, err
	}
	return fp, nil
}

// FromBytes copies b into a Fingerprint, rejecting the wrong length.
func FromBytes(b []byte) (Fingerprint, error) {
	var fp Fingerprint
	if len(b) != Size {
		return fp, fmt.Errorf("fingerprint must be %d bytes, got %d", Size, len(b))
	}
	copy(fp[:], b)
	return fp, nil
}

// IsZero reports whether fp is the zero value.
func (fp Fingerprint) IsZero() bool {
	return fp == Fingerprint{}
}

func (fp Fingerprint) String() string {
	return hex.EncodeToString(fp[:])
}

// MarshalText implements encoding.TextMarshaler.
func (fp Fingerprint) MarshalText() ([]byte, error) {
	return []byte(fp.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (fp *Fingerprint) UnmarshalText(text []byte) error {
	if len(text) != hex.EncodedLen(Size) {
		return fmt.Errorf("fingerprint must be %d hex characters, got %d", hex.EncodedLen(Size), len(text))
	}
	if _, err := hex.Decode(fp[:], text); err != nil {
		return fmt.Errorf("decode fingerprint: %w", err)
	}
	return nil
}
