// Package hash computes content fingerprints for indexed files.
//
// A fingerprint is a hex digest over the raw file bytes. Two algorithms are
// available: sha256 (default) and xxhash (faster, non-cryptographic).
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
)

// Algorithm names accepted by New.
const (
	AlgorithmSHA256 = "sha256"
	AlgorithmXXHash = "xxhash"
)

// Hasher fingerprints file content.
type Hasher interface {
	// HashFile returns the fingerprint of the file at path.
	HashFile(path string) (string, error)

	// HashBytes returns the fingerprint of data.
	HashBytes(data []byte) string

	// Algorithm returns the algorithm name.
	Algorithm() string
}

// New returns a Hasher for the named algorithm. Empty means sha256.
func New(algorithm string) (Hasher, error) {
	switch strings.ToLower(algorithm) {
	case "", AlgorithmSHA256:
		return SHA256{}, nil
	case AlgorithmXXHash:
		return XXHash{}, nil
	default:
		return nil, fmt.Errorf("unknown hash algorithm %q (use sha256 or xxhash)", algorithm)
	}
}

// SHA256 fingerprints with crypto/sha256.
type SHA256 struct{}

// HashFile streams the file through sha256.
func (SHA256) HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", readError(path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", readError(path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes hashes data in memory.
func (SHA256) HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Algorithm returns "sha256".
func (SHA256) Algorithm() string { return AlgorithmSHA256 }

// XXHash fingerprints with xxhash64.
type XXHash struct{}

// HashFile streams the file through xxhash.
func (XXHash) HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", readError(path, err)
	}
	defer func() { _ = f.Close() }()

	d := xxhash.New()
	if _, err := io.Copy(d, f); err != nil {
		return "", readError(path, err)
	}
	return formatSum(d.Sum64()), nil
}

// HashBytes hashes data in memory.
func (XXHash) HashBytes(data []byte) string {
	return formatSum(xxhash.Sum64(data))
}

// Algorithm returns "xxhash".
func (XXHash) Algorithm() string { return AlgorithmXXHash }

// formatSum renders a 64-bit sum as fixed-width hex.
func formatSum(sum uint64) string {
	s := strconv.FormatUint(sum, 16)
	if len(s) < 16 {
		s = strings.Repeat("0", 16-len(s)) + s
	}
	return s
}

func readError(path string, err error) error {
	return amerrors.IOError(fmt.Sprintf("cannot read %s: %v", path, err), err).WithDetail("path", path)
}
