package internal

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// maxBufferPixels caps a single pixel buffer (16k x 16k)
const maxBufferPixels = 16384 * 16384

// ErrBufferSize is returned when a pixel buffer cannot be allocated
var ErrBufferSize = errors.New("invalid pixel buffer size")

// Byte offsets of each channel inside a pixel (X11 ZPixmap, LSB first)
const (
	chanBlue  = 0
	chanGreen = 1
	chanRed   = 2
	chanAlpha = 3
)

// CorruptionParams tunes the three glitch passes
type CorruptionParams struct {
	Magnitude       float64 `mapstructure:"magnitude"`        // per-pixel jitter std. dev.
	BlockHeight     int     `mapstructure:"block_height"`     // average lines per distortion block
	BlockOffset     float64 `mapstructure:"block_offset"`     // block line offset std. dev.
	StrideMagnitude float64 `mapstructure:"stride_magnitude"` // block skew scale
	Lag             float64 `mapstructure:"lag"`              // channel random-walk step
	LagRed          float64 `mapstructure:"lag_red"`          // initial red lag
	LagGreen        float64 `mapstructure:"lag_green"`        // initial green lag
	LagBlue         float64 `mapstructure:"lag_blue"`         // initial blue lag
	StdOffset       float64 `mapstructure:"std_offset"`       // red/blue border smoothing
	Brightness      uint8   `mapstructure:"brightness"`       // brighten add constant
	MeanAberration  int     `mapstructure:"mean_aberration"`  // chromatic aberration mean
	StdAberration   float64 `mapstructure:"std_aberration"`   // chromatic aberration std. dev.
}

// DefaultCorruptionParams returns the stock glitch look
func DefaultCorruptionParams() CorruptionParams {
	return CorruptionParams{
		Magnitude:       7.0,
		BlockHeight:     10,
		BlockOffset:     30.0,
		StrideMagnitude: 0.1,
		Lag:             0.005,
		LagRed:          -7.0,
		LagGreen:        0.0,
		LagBlue:         3.0,
		StdOffset:       10.0,
		Brightness:      37,
		MeanAberration:  10,
		StdAberration:   10.0,
	}
}

// NewBuffer allocates a zeroed width x height pixel buffer
func NewBuffer(width, height int) (*Buffer, error) {
	if width <= 0 || height <= 0 || width*height > maxBufferPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrBufferSize, width, height)
	}
	return &Buffer{Width: width, Height: height, Pix: make([]byte, 4*width*height)}, nil
}

// Wrap folds x into [0, b). Values in [-b, 2b) take a single add or subtract.
func Wrap(x, b int) int {
	if x < 0 {
		x += b
	} else if x >= b {
		x -= b
	}
	if x < 0 || x >= b {
		x %= b
		if x < 0 {
			x += b
		}
	}
	return x
}

// Brighten raises brightness while reducing contrast. The result stays in [r, 255].
func Brighten(r, add uint8) uint8 {
	r32 := uint32(r)
	add32 := uint32(add)
	return uint8(r32 - r32*add32/255 + add32)
}

// Corrupter turns a desktop capture into the glitched backdrop
type Corrupter struct {
	params CorruptionParams
	noise  *NoiseTable
	rng    *rand.Rand
}

// NewCorrupter creates a corrupter drawing gaussian offsets from noise and block
// starts from a uniform generator seeded with seed.
func NewCorrupter(params CorruptionParams, noise *NoiseTable, seed uint64) *Corrupter {
	return &Corrupter{
		params: params,
		noise:  noise,
		rng:    rand.New(rand.NewPCG(seed, ^seed)),
	}
}

// Corrupt rewrites buf in place with the three glitch passes
func (c *Corrupter) Corrupt(buf *Buffer) error {
	if buf == nil || buf.Width <= 0 || buf.Height <= 0 || len(buf.Pix) != 4*buf.Width*buf.Height {
		return ErrBufferSize
	}

	Debug("Corrupting %dx%d capture", buf.Width, buf.Height)

	stage1, err := NewBuffer(buf.Width, buf.Height)
	if err != nil {
		return fmt.Errorf("failed to allocate first pass buffer: %w", err)
	}
	stage2, err := NewBuffer(buf.Width, buf.Height)
	if err != nil {
		return fmt.Errorf("failed to allocate second pass buffer: %w", err)
	}

	c.displaceBlocks(stage1, buf)
	c.lagChannels(stage2, stage1)

	// The last pass reads what it has already written; hand it one buffer.
	copy(buf.Pix, stage2.Pix)
	c.aberrate(buf, buf)

	return nil
}

// displaceBlocks copies each pixel from a jittered source position. Every
// BlockHeight lines on average a new block begins with its own line offset and skew.
func (c *Corrupter) displaceBlocks(dst, src *Buffer) {
	w, h := src.Width, src.Height
	stride := 4 * w
	p := c.params

	blockChance := p.BlockHeight * w
	if blockChance < 1 {
		blockChance = 1
	}

	lineOff := 0
	skew := 0.0
	yset := 0

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if c.rng.IntN(blockChance) == 0 {
				lineOff = c.noise.Offset(p.BlockOffset)
				skew = p.StrideMagnitude * c.noise.Next()
				yset = y
			}
			// no skew on the line where the block begins
			skewOff := int(skew * float64(y-yset))

			offx := c.noise.Offset(p.Magnitude) + lineOff + skewOff
			offy := c.noise.Offset(p.Magnitude)

			srcIdx := stride*Wrap(y+offy, h) + 4*Wrap(x+offx, w)
			dstIdx := stride*y + 4*x
			copy(dst.Pix[dstIdx:dstIdx+4], src.Pix[srcIdx:srcIdx+4])
		}
	}
}

// lagChannels samples each color channel at its own drifting horizontal offset
// and brightens the result.
func (c *Corrupter) lagChannels(dst, src *Buffer) {
	w, h := src.Width, src.Height
	stride := 4 * w
	p := c.params

	lr, lg, lb := p.LagRed, p.LagGreen, p.LagBlue

	for y := 0; y < h; y++ {
		row := stride * y
		for x := 0; x < w; x++ {
			lr += p.Lag * c.noise.Next()
			lg += p.Lag * c.noise.Next()
			lb += p.Lag * c.noise.Next()
			offx := c.noise.Offset(p.StdOffset)

			// red/blue border is smoothed by offx
			rIdx := row + 4*Wrap(x+int(lr)-offx, w)
			gIdx := row + 4*Wrap(x+int(lg), w)
			bIdx := row + 4*Wrap(x+int(lb)+offx, w)
			dstIdx := row + 4*x

			dst.Pix[dstIdx+chanBlue] = Brighten(src.Pix[bIdx+chanBlue], p.Brightness)
			dst.Pix[dstIdx+chanGreen] = Brighten(src.Pix[gIdx+chanGreen], p.Brightness)
			dst.Pix[dstIdx+chanRed] = Brighten(src.Pix[rIdx+chanRed], p.Brightness)
			dst.Pix[dstIdx+chanAlpha] = src.Pix[dstIdx+chanAlpha]
		}
	}
}

// aberrate shifts red right and blue left by a noisy amount. When dst and src are
// the same buffer, pixels written earlier in the scan feed later reads, which
// leaves colored trails.
func (c *Corrupter) aberrate(dst, src *Buffer) {
	w, h := src.Width, src.Height
	stride := 4 * w
	p := c.params

	for y := 0; y < h; y++ {
		row := stride * y
		for x := 0; x < w; x++ {
			offx := p.MeanAberration + c.noise.Offset(p.StdAberration)

			rIdx := row + 4*Wrap(x+offx, w)
			bIdx := row + 4*Wrap(x-offx, w)
			idx := row + 4*x

			b := src.Pix[bIdx+chanBlue]
			g := src.Pix[idx+chanGreen]
			r := src.Pix[rIdx+chanRed]
			a := src.Pix[idx+chanAlpha]

			dst.Pix[idx+chanBlue] = b
			dst.Pix[idx+chanGreen] = g
			dst.Pix[idx+chanRed] = r
			dst.Pix[idx+chanAlpha] = a
		}
	}
}
