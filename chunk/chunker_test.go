package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "w"
	}
	return strings.Join(parts, " ")
}

func TestNew_InvalidUnitSize(t *testing.T) {
	_, err := New(0)
	assert.ErrorIs(t, err, ErrInvalidUnitSize)

	_, err = New(-5)
	assert.ErrorIs(t, err, ErrInvalidUnitSize)
}

func TestSplit_EmptyInput(t *testing.T) {
	c, err := New(10)
	require.NoError(t, err)

	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split("   "))
	assert.Empty(t, c.Split("\n\t  \r\n"))
	assert.Equal(t, 0, c.Count("  "))
}

func TestSplit_ScenarioSizes(t *testing.T) {
	c, err := New(4000)
	require.NoError(t, err)

	a := c.Split(words(100))
	require.Len(t, a, 1)
	assert.Equal(t, 100, WordCount(a[0]))

	b := c.Split(words(9000))
	require.Len(t, b, 3)
	assert.Equal(t, 4000, WordCount(b[0]))
	assert.Equal(t, 4000, WordCount(b[1]))
	assert.Equal(t, 1000, WordCount(b[2]))
	assert.Equal(t, 3, c.Count(words(9000)))

	assert.Empty(t, c.Split(""))
}

func TestSplit_Reconstruction(t *testing.T) {
	text := "  the quick\tbrown fox\n\njumps over   the lazy dog  "
	for _, size := range []int{1, 2, 3, 4, 100} {
		c, err := New(size)
		require.NoError(t, err)

		chunks := c.Split(text)
		for _, chunk := range chunks {
			assert.LessOrEqual(t, WordCount(chunk), size)
		}
		assert.Equal(t, strings.Join(strings.Fields(text), " "), strings.Join(chunks, " "), "size %d", size)
		assert.Equal(t, len(chunks), c.Count(text))
	}
}

func TestSplit_Overlap(t *testing.T) {
	c, err := New(4, WithOverlap(1))
	require.NoError(t, err)

	chunks := c.Split("a b c d e f g h i j")
	assert.Equal(t, []string{"a b c d", "d e f g", "g h i j"}, chunks)
	assert.Equal(t, 3, c.Count("a b c d e f g h i j"))
}

func TestNew_OverlapClamped(t *testing.T) {
	c, err := New(3, WithOverlap(10))
	require.NoError(t, err)
	assert.Equal(t, 2, c.Overlap())

	// Still terminates and advances one word at a time.
	chunks := c.Split("a b c d")
	assert.Equal(t, []string{"a b c", "b c d"}, chunks)
}

func TestSplit_Deterministic(t *testing.T) {
	c, err := New(5, WithOverlap(2))
	require.NoError(t, err)

	text := words(37)
	assert.Equal(t, c.Split(text), c.Split(text))
}

func TestAll_StopsEarly(t *testing.T) {
	c, err := New(1)
	require.NoError(t, err)

	var seen []int
	for seq := range c.All("a b c d") {
		seen = append(seen, seq)
		if seq == 1 {
			break
		}
	}
	assert.Equal(t, []int{0, 1}, seen)
}
