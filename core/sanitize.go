package core

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultMaxIDLength is the default upper bound for vector ids.
const DefaultMaxIDLength = 200

// MaxVectorIDLength is the longest id any supported vector store accepts.
const MaxVectorIDLength = 512

// MinVectorIDLength is the smallest maxLength that holds one base character
// plus the suffix of any non-negative int sequence ("-" and 19 digits).
const MinVectorIDLength = 21

// fallbackIDLength is the number of hex characters used when a name has no
// ASCII residue.
const fallbackIDLength = 12

// SanitizeID converts an arbitrary name into a deterministic ASCII token made
// of [A-Za-z0-9._-], no longer than maxLength. A maxLength <= 0 selects
// DefaultMaxIDLength.
//
// The name is decomposed (NFKD), non-ASCII bytes are dropped and every run of
// remaining characters outside the allowed set becomes a single '-'. Leading
// and trailing '-' are trimmed. Names that leave nothing behind are replaced by
// the first 12 hex characters of the SHA-1 of their UTF-8 bytes.
//
// Distinct names that reduce to the same ASCII residue collide.
func SanitizeID(name string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultMaxIDLength
	}
	base := sanitizeBase(name)
	if len(base) > maxLength {
		base = base[:maxLength]
	}
	return base
}

// VectorID derives the id of the vector holding chunk sequence of identity.
// The "-{sequence}" suffix is never truncated; the base name is shortened so
// that the whole id fits maxLength. For maxLength >= MinVectorIDLength the id
// never exceeds maxLength. Smaller limits that cannot hold the suffix and one
// base character are raised to len(suffix)+1; callers reject them upfront.
func VectorID(identity string, sequence int, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultMaxIDLength
	}
	suffix := "-" + strconv.Itoa(sequence)
	if maxLength < len(suffix)+1 {
		maxLength = len(suffix) + 1
	}
	base := sanitizeBase(identity)
	if limit := maxLength - len(suffix); len(base) > limit {
		base = base[:limit]
	}
	return base + suffix
}

func sanitizeBase(name string) string {
	decomposed := norm.NFKD.String(name)

	var b strings.Builder
	b.Grow(len(decomposed))
	inRun := false
	for i := 0; i < len(decomposed); i++ {
		c := decomposed[i]
		if c >= 0x80 {
			// non-ASCII bytes are dropped outright, they do not start a run
			continue
		}
		if isIDByte(c) {
			b.WriteByte(c)
			inRun = false
			continue
		}
		if !inRun {
			b.WriteByte('-')
			inRun = true
		}
	}

	out := strings.Trim(b.String(), "-")
	if out == "" {
		sum := sha1.Sum([]byte(name))
		out = hex.EncodeToString(sum[:])[:fallbackIDLength]
	}
	return out
}

func isIDByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '.', c == '_', c == '-':
		return true
	}
	return false
}
