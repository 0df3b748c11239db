package internal

import (
	"fmt"
	"math/rand/v2"
)

// MaxNoiseSamples bounds the noise table so a bad config cannot exhaust memory
const MaxNoiseSamples = 64 << 20

// NoiseTable is a precomputed table of standard normal samples read through a
// wrapping cursor. The samples never change after generation.
type NoiseTable struct {
	samples []float32
	cursor  int
}

// NewNoiseTable fills a table of count samples from a generator seeded with seed
func NewNoiseTable(seed uint64, count int) (*NoiseTable, error) {
	if count <= 0 || count > MaxNoiseSamples {
		return nil, fmt.Errorf("noise table size %d out of range (1..%d)", count, MaxNoiseSamples)
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	samples := make([]float32, count)
	for i := range samples {
		samples[i] = float32(rng.NormFloat64())
	}

	Debug("Generated noise table: %d samples, seed=%d", count, seed)
	return &NoiseTable{samples: samples}, nil
}

// Next returns the sample under the cursor and advances it
func (n *NoiseTable) Next() float64 {
	v := n.samples[n.cursor]
	n.cursor++
	if n.cursor == len(n.samples) {
		n.cursor = 0
	}
	return float64(v)
}

// Offset returns a normally distributed integer with the given standard deviation,
// truncated toward zero.
func (n *NoiseTable) Offset(stddev float64) int {
	return int(n.Next() * stddev)
}

// Len returns the number of samples in the table
func (n *NoiseTable) Len() int {
	return len(n.samples)
}

// At returns sample i without moving the cursor
func (n *NoiseTable) At(i int) float64 {
	return float64(n.samples[i])
}
