// Package chunk splits transcript text into bounded, ordered word windows
// suitable for an embedding provider's input limits.
package chunk

import (
	"errors"
	"iter"
	"strings"
)

// DefaultMaxUnitSize is the default number of words per chunk.
const DefaultMaxUnitSize = 1500

// ErrInvalidUnitSize indicates a non-positive maximum unit size.
var ErrInvalidUnitSize = errors.New("max unit size must be positive")

// Chunker splits text on whitespace into windows of at most maxUnitSize
// words. With a positive overlap every window after the first repeats the
// last overlap words of the previous window.
type Chunker struct {
	maxUnitSize int
	overlap     int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithOverlap sets the number of words repeated between consecutive chunks.
// Negative values are ignored.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a Chunker. Overlap is clamped below maxUnitSize so that every
// window advances by at least one word.
func New(maxUnitSize int, opts ...Option) (*Chunker, error) {
	if maxUnitSize <= 0 {
		return nil, ErrInvalidUnitSize
	}
	c := &Chunker{maxUnitSize: maxUnitSize}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.maxUnitSize {
		c.overlap = c.maxUnitSize - 1
	}
	return c, nil
}

// MaxUnitSize returns the configured word limit.
func (c *Chunker) MaxUnitSize() int {
	return c.maxUnitSize
}

// Overlap returns the effective overlap.
func (c *Chunker) Overlap() int {
	return c.overlap
}

// Split returns the chunks of text in sequence order. Empty or
// whitespace-only text yields no chunks.
func (c *Chunker) Split(text string) []string {
	var chunks []string
	for _, chunk := range c.All(text) {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// All yields (sequence, chunk) pairs in order. Each call re-tokenizes text.
func (c *Chunker) All(text string) iter.Seq2[int, string] {
	return func(yield func(int, string) bool) {
		words := strings.Fields(text)
		if len(words) == 0 {
			return
		}
		step := c.maxUnitSize - c.overlap
		for seq, start := 0, 0; ; seq++ {
			end := min(start+c.maxUnitSize, len(words))
			if !yield(seq, strings.Join(words[start:end], " ")) {
				return
			}
			if end == len(words) {
				return
			}
			start += step
		}
	}
}

// Count returns the number of chunks Split would produce for text.
func (c *Chunker) Count(text string) int {
	n := len(strings.Fields(text))
	if n == 0 {
		return 0
	}
	if n <= c.maxUnitSize {
		return 1
	}
	step := c.maxUnitSize - c.overlap
	return 1 + (n-c.maxUnitSize+step-1)/step
}

// WordCount returns the number of whitespace-separated words in text.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
