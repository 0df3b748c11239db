package internal

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xfixes"
	"github.com/BurntSushi/xgb/xproto"
)

const (
	// eventQueueSize bounds the events buffered between the X reader and the session
	eventQueueSize = 256

	// putImageHeader is the fixed part of a PutImage request in bytes
	putImageHeader = 24

	windowName = "glitchlock"
)

// ErrDisplayClosed is returned by NextEvent once the X connection is gone
var ErrDisplayClosed = errors.New("X connection closed")

// X11Display owns the X connection, the lock window and the input grabs
type X11Display struct {
	conn     *xgb.Conn
	screen   *xproto.ScreenInfo
	window   xproto.Window
	back     xproto.Pixmap // off-screen target for the panel
	gc       xproto.Gcontext
	cursor   xproto.Cursor
	keymap   *Keymap
	renderer *Renderer

	events    chan Event
	done      chan struct{}
	pumpOnce  sync.Once
	closeOnce sync.Once
}

// ConnectX11 opens the X connection named by $DISPLAY
func ConnectX11() (*X11Display, error) {
	Info("Attempting to connect to X server")
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}
	Info("Successfully connected to X server")

	d := &X11Display{
		conn:   conn,
		screen: xproto.Setup(conn).DefaultScreen(conn),
		events: make(chan Event, eventQueueSize),
		done:   make(chan struct{}),
	}
	Info("Screen dimensions: %dx%d", d.screen.WidthInPixels, d.screen.HeightInPixels)

	d.keymap, err = LoadKeymap(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to load keyboard mapping: %w", err)
	}
	return d, nil
}

// Conn returns the underlying connection, shared with the power manager
func (d *X11Display) Conn() *xgb.Conn {
	return d.conn
}

// ResolveGeometry finds the output the panel is centered on: the RandR primary
// output, else the first connected one, else the whole screen.
func (d *X11Display) ResolveGeometry() WindowPositionInfo {
	width := int(d.screen.WidthInPixels)
	height := int(d.screen.HeightInPixels)

	monitors, err := randrMonitors(d.conn, d.screen.Root)
	if err != nil {
		Warn("RandR output detection failed: %v", err)
		monitors, err = xrandrMonitors()
		if err != nil {
			Warn("Failed to detect monitors: %v", err)
			Info("Falling back to single monitor with dimensions %dx%d", width, height)
		}
	}

	info := resolveGeometry(width, height, monitors)
	Info("Using output %dx%d+%d+%d on a %dx%d display",
		info.OutputWidth, info.OutputHeight, info.OutputX, info.OutputY, info.DisplayWidth, info.DisplayHeight)
	return info
}

// Capture reads rect of the root window as 32-bit pixels
func (d *X11Display) Capture(rect image.Rectangle) (*Buffer, error) {
	rect = rect.Intersect(image.Rect(0, 0, int(d.screen.WidthInPixels), int(d.screen.HeightInPixels)))
	if rect.Empty() {
		return nil, fmt.Errorf("%w: empty capture area", ErrBufferSize)
	}

	Info("Capturing %dx%d at (%d,%d)", rect.Dx(), rect.Dy(), rect.Min.X, rect.Min.Y)
	buf, err := NewBuffer(rect.Dx(), rect.Dy())
	if err != nil {
		return nil, err
	}

	reply, err := xproto.GetImage(
		d.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(d.screen.Root),
		int16(rect.Min.X), int16(rect.Min.Y),
		uint16(rect.Dx()), uint16(rect.Dy()),
		0xffffffff,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to capture screen: %w", err)
	}
	if len(reply.Data) != len(buf.Pix) {
		return nil, fmt.Errorf("unsupported capture format: depth %d, %d bytes for %dx%d",
			reply.Depth, len(reply.Data), rect.Dx(), rect.Dy())
	}

	copy(buf.Pix, reply.Data)
	return buf, nil
}

// CreateWindow maps a full-screen override-redirect window whose background is
// the corrupted capture placed at origin over black. Frames from renderer are
// drawn over the panel area.
func (d *X11Display) CreateWindow(backdrop *Buffer, origin image.Point, renderer *Renderer) error {
	d.renderer = renderer
	width := d.screen.WidthInPixels
	height := d.screen.HeightInPixels
	depth := d.screen.RootDepth
	root := xproto.Drawable(d.screen.Root)

	var err error
	if d.gc, err = xproto.NewGcontextId(d.conn); err != nil {
		return fmt.Errorf("failed to allocate graphics context ID: %w", err)
	}
	err = xproto.CreateGCChecked(d.conn, d.gc, root,
		xproto.GcForeground|xproto.GcBackground|xproto.GcGraphicsExposures,
		[]uint32{d.screen.BlackPixel, d.screen.BlackPixel, 0},
	).Check()
	if err != nil {
		return fmt.Errorf("failed to create graphics context: %w", err)
	}

	// Background: black desktop with the glitched capture on top
	Info("Creating %dx%d background pixmap", width, height)
	bg, err := xproto.NewPixmapId(d.conn)
	if err != nil {
		return fmt.Errorf("failed to allocate pixmap ID: %w", err)
	}
	if err := xproto.CreatePixmapChecked(d.conn, depth, bg, root, width, height).Check(); err != nil {
		return fmt.Errorf("failed to create background pixmap: %w", err)
	}
	defer xproto.FreePixmap(d.conn, bg)

	err = xproto.PolyFillRectangleChecked(d.conn, xproto.Drawable(bg), d.gc,
		[]xproto.Rectangle{{X: 0, Y: 0, Width: width, Height: height}}).Check()
	if err != nil {
		return fmt.Errorf("failed to clear background pixmap: %w", err)
	}
	if err := d.putImage(xproto.Drawable(bg), backdrop, origin.X, origin.Y); err != nil {
		return fmt.Errorf("failed to upload backdrop: %w", err)
	}

	panel := renderer.Layout().Panel
	if d.back, err = xproto.NewPixmapId(d.conn); err != nil {
		return fmt.Errorf("failed to allocate pixmap ID: %w", err)
	}
	err = xproto.CreatePixmapChecked(d.conn, depth, d.back, root, uint16(panel.Dx()), uint16(panel.Dy())).Check()
	if err != nil {
		return fmt.Errorf("failed to create panel pixmap: %w", err)
	}

	if d.window, err = xproto.NewWindowId(d.conn); err != nil {
		return fmt.Errorf("failed to allocate window ID: %w", err)
	}
	Info("Window ID allocated: %d", d.window)

	err = xproto.CreateWindowChecked(
		d.conn,
		depth,
		d.window,
		d.screen.Root,
		0, 0, width, height,
		0,
		xproto.WindowClassInputOutput,
		d.screen.RootVisual,
		xproto.CwBackPixmap|xproto.CwOverrideRedirect|xproto.CwEventMask,
		[]uint32{
			uint32(bg),
			1, // Override redirect
			uint32(xproto.EventMaskKeyPress |
				xproto.EventMaskPointerMotion |
				xproto.EventMaskExposure),
		},
	).Check()
	if err != nil {
		return fmt.Errorf("failed to create window: %w", err)
	}

	xproto.ChangeProperty(d.conn, xproto.PropModeReplace, d.window,
		xproto.AtomWmName, xproto.AtomString, 8, uint32(len(windowName)), []byte(windowName))

	if err := d.hideCursor(); err != nil {
		Warn("Failed to hide cursor: %v", err)
	}

	Info("Mapping window")
	if err := xproto.MapWindowChecked(d.conn, d.window).Check(); err != nil {
		return fmt.Errorf("failed to map window: %w", err)
	}
	err = xproto.ConfigureWindowChecked(d.conn, d.window,
		xproto.ConfigWindowStackMode, []uint32{xproto.StackModeAbove}).Check()
	if err != nil {
		return fmt.Errorf("failed to raise window: %w", err)
	}

	Info("Lock window ready")
	return nil
}

// hideCursor installs an empty cursor on the lock window and hides the
// system cursor through XFixes
func (d *X11Display) hideCursor() error {
	Info("Hiding mouse cursor")
	cursor, err := xproto.NewCursorId(d.conn)
	if err != nil {
		return fmt.Errorf("failed to allocate cursor ID: %w", err)
	}

	pixmap, err := xproto.NewPixmapId(d.conn)
	if err != nil {
		return fmt.Errorf("failed to allocate pixmap ID: %w", err)
	}

	// 1x1 bitmap used as both source and mask
	err = xproto.CreatePixmapChecked(d.conn, 1, pixmap, xproto.Drawable(d.screen.Root), 1, 1).Check()
	if err != nil {
		return fmt.Errorf("failed to create pixmap: %w", err)
	}
	defer xproto.FreePixmap(d.conn, pixmap)

	err = xproto.CreateCursorChecked(d.conn, cursor, pixmap, pixmap,
		0, 0, 0,
		0, 0, 0,
		0, 0,
	).Check()
	if err != nil {
		return fmt.Errorf("failed to create cursor: %w", err)
	}
	d.cursor = cursor

	err = xproto.ChangeWindowAttributesChecked(d.conn, d.window,
		xproto.CwCursor, []uint32{uint32(cursor)}).Check()
	if err != nil {
		return fmt.Errorf("failed to set invisible cursor: %w", err)
	}

	Debug("Using XFixes to hide system cursor")
	if err := xfixes.Init(d.conn); err != nil {
		Debug("XFixes unavailable: %v", err)
		return nil
	}
	// The server rejects XFixes requests until the client announces its version
	if _, err := xfixes.QueryVersion(d.conn, 4, 0).Reply(); err != nil {
		Debug("XFixes version query failed: %v", err)
		return nil
	}
	xfixes.HideCursor(d.conn, d.screen.Root)
	return nil
}

// GrabInput grabs the pointer and the keyboard, retrying each up to attempts
// times with backoff between tries, then starts delivering events.
func (d *X11Display) GrabInput(attempts int, backoff time.Duration) error {
	Info("Grabbing pointer")
	err := retry(attempts, backoff, func() error {
		reply, err := xproto.GrabPointer(
			d.conn,
			false,
			d.window,
			xproto.EventMaskButtonPress|xproto.EventMaskButtonRelease|xproto.EventMaskPointerMotion,
			xproto.GrabModeAsync,
			xproto.GrabModeAsync,
			xproto.WindowNone,
			d.cursor,
			xproto.TimeCurrentTime,
		).Reply()
		if err != nil {
			return err
		}
		if reply.Status != xproto.GrabStatusSuccess {
			return fmt.Errorf("status %d", reply.Status)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cannot grab pointer: %w", err)
	}

	Info("Grabbing keyboard")
	err = retry(attempts, backoff, func() error {
		reply, err := xproto.GrabKeyboard(
			d.conn,
			true,
			d.window,
			xproto.TimeCurrentTime,
			xproto.GrabModeAsync,
			xproto.GrabModeAsync,
		).Reply()
		if err != nil {
			return err
		}
		if reply.Status != xproto.GrabStatusSuccess {
			return fmt.Errorf("status %d", reply.Status)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cannot grab keyboard: %w", err)
	}

	Info("Input grabbed")
	d.pumpOnce.Do(func() { go d.pump() })
	return nil
}

// retry calls fn until it succeeds or attempts run out, sleeping backoff between tries
func retry(attempts int, backoff time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i+1 < attempts {
			time.Sleep(backoff)
		}
	}
	if err == nil {
		err = errors.New("no attempts made")
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
}

// pump reads X events and forwards the ones the session cares about
func (d *X11Display) pump() {
	defer close(d.events)

	for {
		ev, err := d.conn.WaitForEvent()
		if ev == nil && err == nil {
			Debug("X connection closed, stopping event reader")
			return
		}
		if err != nil {
			Debug("X error: %v", err)
			continue
		}

		var out Event
		switch e := ev.(type) {
		case xproto.KeyPressEvent:
			sym, ch := d.keymap.Lookup(e.Detail, e.State)
			out = Event{Kind: EventKeyPress, Keysym: sym, Char: ch}
		case xproto.MotionNotifyEvent:
			out = Event{Kind: EventMotion}
		case xproto.ExposeEvent:
			if e.Count > 0 {
				continue
			}
			out = Event{Kind: EventExpose}
		case xproto.MappingNotifyEvent:
			Info("Keyboard mapping changed")
			if km, err := LoadKeymap(d.conn); err == nil {
				d.keymap = km
			} else {
				Error("Failed to reload keyboard mapping: %v", err)
			}
			continue
		default:
			continue
		}

		select {
		case d.events <- out:
		case <-d.done:
			return
		}
	}
}

// NextEvent blocks until an input event arrives or ctx is done
func (d *X11Display) NextEvent(ctx context.Context) (Event, error) {
	select {
	case <-ctx.Done():
		return Event{}, ctx.Err()
	case ev, ok := <-d.events:
		if !ok {
			return Event{}, ErrDisplayClosed
		}
		return ev, nil
	}
}

// Pending reports whether more events are already queued
func (d *X11Display) Pending() bool {
	return len(d.events) > 0
}

// Present renders frame into the off-screen pixmap and copies it to the window
// in one request, so the panel never shows a partial frame.
func (d *X11Display) Present(frame Frame) error {
	if d.renderer == nil {
		return errors.New("no lock window")
	}
	panel := d.renderer.Layout().Panel
	img := d.renderer.Render(frame)

	if err := d.putImage(xproto.Drawable(d.back), img, 0, 0); err != nil {
		return err
	}
	return xproto.CopyAreaChecked(d.conn,
		xproto.Drawable(d.back), xproto.Drawable(d.window), d.gc,
		0, 0,
		int16(panel.Min.X), int16(panel.Min.Y),
		uint16(panel.Dx()), uint16(panel.Dy()),
	).Check()
}

// putImage uploads buf to dst at (x, y), split into row bands that fit the
// server's maximum request length
func (d *X11Display) putImage(dst xproto.Drawable, buf *Buffer, x, y int) error {
	rowBytes := 4 * buf.Width
	maxBytes := int(xproto.Setup(d.conn).MaximumRequestLength)*4 - putImageHeader
	rows := max(1, maxBytes/rowBytes)

	for top := 0; top < buf.Height; top += rows {
		n := min(rows, buf.Height-top)
		err := xproto.PutImageChecked(
			d.conn,
			xproto.ImageFormatZPixmap,
			dst,
			d.gc,
			uint16(buf.Width), uint16(n),
			int16(x), int16(y+top),
			0,
			d.screen.RootDepth,
			buf.Pix[top*rowBytes:(top+n)*rowBytes],
		).Check()
		if err != nil {
			return fmt.Errorf("failed to put image rows %d..%d: %w", top, top+n, err)
		}
	}
	return nil
}

// Close releases the grabs, the window and the connection
func (d *X11Display) Close() {
	d.closeOnce.Do(func() {
		Info("Cleaning up X11 resources")
		close(d.done)

		xproto.UngrabKeyboard(d.conn, xproto.TimeCurrentTime)
		xproto.UngrabPointer(d.conn, xproto.TimeCurrentTime)
		if d.window != 0 {
			xproto.DestroyWindow(d.conn, d.window)
		}
		if d.back != 0 {
			xproto.FreePixmap(d.conn, d.back)
		}
		if d.cursor != 0 {
			xproto.FreeCursor(d.conn, d.cursor)
		}
		if d.gc != 0 {
			xproto.FreeGC(d.conn, d.gc)
		}
		d.conn.Sync()
		d.conn.Close()
	})
}
