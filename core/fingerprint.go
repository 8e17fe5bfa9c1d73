package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/go-crypt/x/blake2b"
)

// HashAlgorithm names a fingerprint digest.
type HashAlgorithm string

const (
	// HashSHA256 is the default 256-bit SHA-2 digest.
	HashSHA256 HashAlgorithm = "sha256"
	// HashBLAKE2b is a 256-bit BLAKE2b digest.
	HashBLAKE2b HashAlgorithm = "blake2b"
	// HashXXHash is a 64-bit non-cryptographic digest. It detects edits but
	// offers no resistance to crafted collisions.
	HashXXHash HashAlgorithm = "xxhash"
)

// DefaultHashAlgorithm is used when no algorithm is configured.
const DefaultHashAlgorithm = HashSHA256

// Cryptographic reports whether the algorithm is a 128-bit+ cryptographic digest.
func (a HashAlgorithm) Cryptographic() bool {
	return a == HashSHA256 || a == HashBLAKE2b
}

// ParseHashAlgorithm parses a configured algorithm name. An empty name yields
// DefaultHashAlgorithm.
func ParseHashAlgorithm(name string) (HashAlgorithm, error) {
	switch alg := HashAlgorithm(strings.ToLower(strings.TrimSpace(name))); alg {
	case "":
		return DefaultHashAlgorithm, nil
	case HashSHA256, HashBLAKE2b, HashXXHash:
		return alg, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownHashAlgorithm, name)
	}
}

// Fingerprinter computes content fingerprints of the form "<algorithm>:<hex>".
// The algorithm prefix means that switching algorithms marks every document
// as changed on the next run.
type Fingerprinter struct {
	alg HashAlgorithm
}

// NewFingerprinter returns a Fingerprinter for alg. Non-cryptographic
// algorithms are refused unless allowWeak is set.
func NewFingerprinter(alg HashAlgorithm, allowWeak bool) (*Fingerprinter, error) {
	if alg == "" {
		alg = DefaultHashAlgorithm
	}
	if _, err := ParseHashAlgorithm(string(alg)); err != nil {
		return nil, err
	}
	if !alg.Cryptographic() && !allowWeak {
		return nil, fmt.Errorf("%w: %s", ErrWeakHashAlgorithm, alg)
	}
	return &Fingerprinter{alg: alg}, nil
}

// DefaultFingerprinter returns a SHA-256 fingerprinter.
func DefaultFingerprinter() *Fingerprinter {
	return &Fingerprinter{alg: DefaultHashAlgorithm}
}

// Algorithm returns the configured algorithm.
func (f *Fingerprinter) Algorithm() HashAlgorithm {
	return f.alg
}

// Fingerprint hashes content.
func (f *Fingerprinter) Fingerprint(content []byte) string {
	h := f.newHash()
	h.Write(content)
	return string(f.alg) + ":" + hex.EncodeToString(h.Sum(nil))
}

// FingerprintString hashes the UTF-8 bytes of s.
func (f *Fingerprinter) FingerprintString(s string) string {
	return f.Fingerprint([]byte(s))
}

func (f *Fingerprinter) newHash() hash.Hash {
	switch f.alg {
	case HashBLAKE2b:
		h, _ := blake2b.New(32, nil) // 32 bytes = 256 bits
		return h
	case HashXXHash:
		return xxhash.New()
	default:
		return sha256.New()
	}
}
