package internal

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// zeroNoise yields offsets of 0 for every draw
func zeroNoise() *NoiseTable {
	return &NoiseTable{samples: []float32{0}}
}

// patternBuffer fills a buffer with distinct, position-dependent pixels
func patternBuffer(t *testing.T, w, h int) *Buffer {
	t.Helper()
	buf, err := NewBuffer(w, h)
	require.NoError(t, err)
	for i := range buf.Pix {
		buf.Pix[i] = byte(i*7 + i/4*13)
	}
	return buf
}

func cloneBuffer(b *Buffer) *Buffer {
	return &Buffer{Width: b.Width, Height: b.Height, Pix: append([]byte(nil), b.Pix...)}
}

func TestWrap(t *testing.T) {
	for _, b := range []int{1, 2, 7, 640} {
		for x := -3 * b; x < 3*b; x++ {
			got := Wrap(x, b)
			require.GreaterOrEqual(t, got, 0, "Wrap(%d, %d)", x, b)
			require.Less(t, got, b, "Wrap(%d, %d)", x, b)
			require.Zero(t, (x-got)%b, "Wrap(%d, %d) = %d not congruent", x, b, got)
		}
	}
}

func TestWrapFastPathValues(t *testing.T) {
	tests := []struct {
		x, b, want int
	}{
		{x: 0, b: 10, want: 0},
		{x: 9, b: 10, want: 9},
		{x: 10, b: 10, want: 0},
		{x: 19, b: 10, want: 9},
		{x: -1, b: 10, want: 9},
		{x: -10, b: 10, want: 0},
		{x: 25, b: 10, want: 5},
		{x: -25, b: 10, want: 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Wrap(tt.x, tt.b), "Wrap(%d, %d)", tt.x, tt.b)
	}
}

func TestBrighten(t *testing.T) {
	for add := 0; add < 256; add++ {
		prev := -1
		for r := 0; r < 256; r++ {
			got := int(Brighten(uint8(r), uint8(add)))
			require.GreaterOrEqual(t, got, r, "Brighten(%d, %d)", r, add)
			require.LessOrEqual(t, got, 255, "Brighten(%d, %d)", r, add)
			require.GreaterOrEqual(t, got, prev, "Brighten not monotonic at r=%d add=%d", r, add)
			prev = got
		}
	}

	for r := 0; r < 256; r++ {
		for add := 0; add < 255; add++ {
			lo := Brighten(uint8(r), uint8(add))
			hi := Brighten(uint8(r), uint8(add+1))
			require.GreaterOrEqual(t, hi, lo, "Brighten not monotonic in add at r=%d add=%d", r, add)
		}
	}

	assert.Equal(t, uint8(37), Brighten(0, 37))
	assert.Equal(t, uint8(255), Brighten(255, 37))
	assert.Equal(t, uint8(100), Brighten(100, 0))
}

func TestNewBufferRejectsBadSizes(t *testing.T) {
	for _, size := range [][2]int{{0, 1}, {1, 0}, {-1, 5}, {20000, 20000}} {
		_, err := NewBuffer(size[0], size[1])
		assert.ErrorIs(t, err, ErrBufferSize, "size %v", size)
	}
}

func TestCorruptRejectsMalformedBuffer(t *testing.T) {
	c := NewCorrupter(DefaultCorruptionParams(), zeroNoise(), 1)

	assert.ErrorIs(t, c.Corrupt(nil), ErrBufferSize)
	assert.ErrorIs(t, c.Corrupt(&Buffer{Width: 4, Height: 4, Pix: make([]byte, 10)}), ErrBufferSize)
}

func TestCorruptDeterministic(t *testing.T) {
	render := func() *Buffer {
		noise, err := NewNoiseTable(1234, 4096)
		require.NoError(t, err)
		buf := patternBuffer(t, 48, 32)
		require.NoError(t, NewCorrupter(DefaultCorruptionParams(), noise, 1234).Corrupt(buf))
		return buf
	}

	first := render()
	second := render()
	assert.Equal(t, first.Pix, second.Pix)

	original := patternBuffer(t, 48, 32)
	assert.NotEqual(t, original.Pix, first.Pix, "corruption should change the image")
}

func TestDisplaceBlocksWithoutNoiseIsIdentity(t *testing.T) {
	src := patternBuffer(t, 20, 10)
	dst, err := NewBuffer(20, 10)
	require.NoError(t, err)

	c := NewCorrupter(DefaultCorruptionParams(), zeroNoise(), 5)
	c.displaceBlocks(dst, src)

	assert.Equal(t, src.Pix, dst.Pix)
}

func TestLagChannelsWithoutLagOnlyBrightens(t *testing.T) {
	params := DefaultCorruptionParams()
	params.LagRed, params.LagGreen, params.LagBlue = 0, 0, 0

	src := patternBuffer(t, 20, 10)
	dst, err := NewBuffer(20, 10)
	require.NoError(t, err)

	NewCorrupter(params, zeroNoise(), 5).lagChannels(dst, src)

	for i := 0; i < len(src.Pix); i += 4 {
		assert.Equal(t, Brighten(src.Pix[i+chanBlue], params.Brightness), dst.Pix[i+chanBlue])
		assert.Equal(t, Brighten(src.Pix[i+chanGreen], params.Brightness), dst.Pix[i+chanGreen])
		assert.Equal(t, Brighten(src.Pix[i+chanRed], params.Brightness), dst.Pix[i+chanRed])
		assert.Equal(t, src.Pix[i+chanAlpha], dst.Pix[i+chanAlpha])
	}
}

func TestLagChannelsKeepsAlphaInPlace(t *testing.T) {
	noise, err := NewNoiseTable(8, 512)
	require.NoError(t, err)

	src := patternBuffer(t, 30, 6)
	dst, err := NewBuffer(30, 6)
	require.NoError(t, err)

	NewCorrupter(DefaultCorruptionParams(), noise, 8).lagChannels(dst, src)

	for i := 0; i < len(src.Pix); i += 4 {
		require.Equal(t, src.Pix[i+chanAlpha], dst.Pix[i+chanAlpha], "pixel %d", i/4)
	}
}

func TestAberrateInPlaceLeavesTrails(t *testing.T) {
	params := DefaultCorruptionParams()
	src := patternBuffer(t, 32, 4)

	inPlace := cloneBuffer(src)
	NewCorrupter(params, zeroNoise(), 1).aberrate(inPlace, inPlace)

	separate, err := NewBuffer(32, 4)
	require.NoError(t, err)
	NewCorrupter(params, zeroNoise(), 1).aberrate(separate, cloneBuffer(src))

	assert.False(t, bytes.Equal(inPlace.Pix, separate.Pix),
		"reading already written pixels must differ from a double-buffered pass")

	// Green and alpha never move
	for i := 0; i < len(src.Pix); i += 4 {
		assert.Equal(t, src.Pix[i+chanGreen], inPlace.Pix[i+chanGreen])
		assert.Equal(t, src.Pix[i+chanAlpha], inPlace.Pix[i+chanAlpha])
	}

	// Blue at x comes from x-offx; once x >= offx that pixel was already rewritten
	w := src.Width
	off := params.MeanAberration
	x := off + 1
	assert.Equal(t, inPlace.Pix[4*(x-off)+chanBlue], inPlace.Pix[4*x+chanBlue])
	assert.Equal(t, src.Pix[4*Wrap(x+off, w)+chanRed], inPlace.Pix[4*x+chanRed])
}
