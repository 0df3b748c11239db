package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNoiseTableRejectsBadSizes(t *testing.T) {
	for _, count := range []int{-1, 0, MaxNoiseSamples + 1} {
		_, err := NewNoiseTable(1, count)
		assert.Error(t, err, "count %d", count)
	}
}

func TestNoiseTableDeterministic(t *testing.T) {
	a, err := NewNoiseTable(42, 1000)
	require.NoError(t, err)
	b, err := NewNoiseTable(42, 1000)
	require.NoError(t, err)
	c, err := NewNoiseTable(43, 1000)
	require.NoError(t, err)

	same := true
	differs := false
	for i := 0; i < a.Len(); i++ {
		same = same && a.At(i) == b.At(i)
		differs = differs || a.At(i) != c.At(i)
	}
	assert.True(t, same, "same seed must give the same table")
	assert.True(t, differs, "different seeds should give different tables")
}

func TestNoiseTableCyclic(t *testing.T) {
	const n = 17
	table, err := NewNoiseTable(7, n)
	require.NoError(t, err)

	// First read is index 0
	assert.Equal(t, table.At(0), table.Next())
	for i := 1; i < n; i++ {
		table.Next()
	}

	// After N reads the cursor is back at the start
	for k := 0; k < 2*n; k++ {
		assert.Equal(t, table.At(k%n), table.Next(), "read %d", n+k)
	}
}

func TestNoiseTableRoughlyStandardNormal(t *testing.T) {
	table, err := NewNoiseTable(99, 200000)
	require.NoError(t, err)

	var sum, sumSq float64
	for i := 0; i < table.Len(); i++ {
		v := table.At(i)
		sum += v
		sumSq += v * v
	}
	mean := sum / float64(table.Len())
	variance := sumSq/float64(table.Len()) - mean*mean

	assert.InDelta(t, 0, mean, 0.02)
	assert.InDelta(t, 1, variance, 0.03)
}

func TestNoiseOffsetTruncates(t *testing.T) {
	table := &NoiseTable{samples: []float32{1.5, -1.5, 0.99, -0.99}}

	assert.Equal(t, 15, table.Offset(10))
	assert.Equal(t, -15, table.Offset(10))
	assert.Equal(t, 0, table.Offset(1))
	assert.Equal(t, 0, table.Offset(1))
}
