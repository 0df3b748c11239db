package internal

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	panelMaxWidth = 1000
	panelHeight   = 400
	lineMaxWidth  = 800

	// dimMask darkens each color channel of the panel backdrop
	dimMask = 0xdb
)

var (
	textColor   = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	failedColor = color.RGBA{R: 0xff, G: 0x45, B: 0x00, A: 0xff} // orange red
)

// Layout is the fixed geometry of the lock panel in display coordinates
type Layout struct {
	Panel     image.Rectangle // dimmed backdrop behind the text
	BaseX     int             // horizontal center of the output
	BaseY     int             // y of the separator line
	LineLeft  int
	LineRight int
}

// NewLayout centers the panel and the separator on the chosen output
func NewLayout(info WindowPositionInfo) Layout {
	baseX := info.OutputX + info.OutputWidth/2
	baseY := info.OutputY + info.OutputHeight/2

	panelW := min(info.OutputWidth/4, panelMaxWidth)
	panelX := baseX - panelW/2
	panelY := baseY - panelHeight/2

	lineW := min(info.OutputWidth/4, lineMaxWidth)

	return Layout{
		Panel:     image.Rect(panelX, panelY, panelX+panelW, panelY+panelHeight),
		BaseX:     baseX,
		BaseY:     baseY,
		LineLeft:  baseX - lineW/2,
		LineRight: baseX + lineW/2,
	}
}

// LoadFace opens a TrueType/OpenType font file at size points (72 DPI). An
// empty path uses the bundled Go Regular face.
func LoadFace(path string, size float64) (font.Face, error) {
	data := goregular.TTF
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read font %s: %w", path, err)
		}
	}

	ttf, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	face, err := opentype.NewFace(ttf, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	return face, nil
}

// DimBackdrop cuts the panel area out of the corrupted capture and darkens it.
// origin is the display position of the capture's top-left pixel; panel pixels
// outside the capture stay black.
func DimBackdrop(capture *Buffer, origin image.Point, panel image.Rectangle) (*Buffer, error) {
	dst, err := NewBuffer(panel.Dx(), panel.Dy())
	if err != nil {
		return nil, fmt.Errorf("failed to allocate panel backdrop: %w", err)
	}

	captured := image.Rect(origin.X, origin.Y, origin.X+capture.Width, origin.Y+capture.Height)
	area := panel.Intersect(captured)

	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			si := 4 * ((y-origin.Y)*capture.Width + (x - origin.X))
			di := 4 * ((y-panel.Min.Y)*dst.Width + (x - panel.Min.X))
			dst.Pix[di+chanBlue] = capture.Pix[si+chanBlue] & dimMask
			dst.Pix[di+chanGreen] = capture.Pix[si+chanGreen] & dimMask
			dst.Pix[di+chanRed] = capture.Pix[si+chanRed] & dimMask
			dst.Pix[di+chanAlpha] = 0
		}
	}
	return dst, nil
}

// Renderer composes frames into a panel-sized buffer
type Renderer struct {
	face     font.Face
	layout   Layout
	backdrop *Buffer
	canvas   *Buffer
	ascent   int
}

// NewRenderer creates a renderer drawing over the given dimmed backdrop
func NewRenderer(face font.Face, layout Layout, backdrop *Buffer) (*Renderer, error) {
	if backdrop.Width != layout.Panel.Dx() || backdrop.Height != layout.Panel.Dy() {
		return nil, fmt.Errorf("backdrop is %dx%d, panel is %dx%d",
			backdrop.Width, backdrop.Height, layout.Panel.Dx(), layout.Panel.Dy())
	}
	canvas, err := NewBuffer(backdrop.Width, backdrop.Height)
	if err != nil {
		return nil, err
	}
	return &Renderer{
		face:     face,
		layout:   layout,
		backdrop: backdrop,
		canvas:   canvas,
		ascent:   face.Metrics().Ascent.Ceil(),
	}, nil
}

// Layout returns the panel geometry
func (r *Renderer) Layout() Layout {
	return r.layout
}

// Render draws frame and returns the panel pixels. The result is reused by the
// next call.
func (r *Renderer) Render(frame Frame) *Buffer {
	copy(r.canvas.Pix, r.backdrop.Pix)
	img := &bgraImage{buf: r.canvas, origin: r.layout.Panel.Min}

	l := r.layout
	r.drawCentered(img, frame.Username, l.BaseY-10, textColor)
	for x := l.LineLeft; x <= l.LineRight; x++ {
		img.Set(x, l.BaseY, textColor)
	}

	if frame.Failed {
		r.drawCentered(img, frame.Message, l.BaseY+r.ascent+20, failedColor)
	} else {
		r.drawCentered(img, frame.Indicator, l.BaseY+r.ascent+20, textColor)
	}
	return r.canvas
}

// drawCentered draws s with its baseline at y, centered on the output
func (r *Renderer) drawCentered(dst draw.Image, s string, y int, c color.Color) {
	if s == "" {
		return
	}
	width := font.MeasureString(r.face, s).Round()
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: r.face,
		Dot:  fixed.P(r.layout.BaseX-width/2, y),
	}
	d.DrawString(s)
}

// bgraImage exposes a Buffer as a draw.Image placed at origin
type bgraImage struct {
	buf    *Buffer
	origin image.Point
}

func (b *bgraImage) ColorModel() color.Model {
	return color.RGBAModel
}

func (b *bgraImage) Bounds() image.Rectangle {
	return image.Rect(b.origin.X, b.origin.Y, b.origin.X+b.buf.Width, b.origin.Y+b.buf.Height)
}

func (b *bgraImage) offset(x, y int) (int, bool) {
	if !(image.Point{X: x, Y: y}).In(b.Bounds()) {
		return 0, false
	}
	return 4 * ((y-b.origin.Y)*b.buf.Width + (x - b.origin.X)), true
}

func (b *bgraImage) At(x, y int) color.Color {
	i, ok := b.offset(x, y)
	if !ok {
		return color.RGBA{}
	}
	p := b.buf.Pix
	return color.RGBA{R: p[i+chanRed], G: p[i+chanGreen], B: p[i+chanBlue], A: 0xff}
}

func (b *bgraImage) Set(x, y int, c color.Color) {
	i, ok := b.offset(x, y)
	if !ok {
		return
	}
	rgba := color.RGBAModel.Convert(c).(color.RGBA)
	p := b.buf.Pix
	p[i+chanBlue] = rgba.B
	p[i+chanGreen] = rgba.G
	p[i+chanRed] = rgba.R
	p[i+chanAlpha] = rgba.A
}
