package internal

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
)

// randrMonitors lists connected outputs that drive a CRTC, flagging the primary one
func randrMonitors(conn *xgb.Conn, root xproto.Window) ([]Monitor, error) {
	if err := randr.Init(conn); err != nil {
		return nil, fmt.Errorf("failed to initialize RandR extension: %w", err)
	}

	resources, err := randr.GetScreenResourcesCurrent(conn, root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}

	var primary randr.Output
	if reply, err := randr.GetOutputPrimary(conn, root).Reply(); err == nil {
		primary = reply.Output
	} else {
		Debug("Failed to query primary output: %v", err)
	}

	var monitors []Monitor
	for _, output := range resources.Outputs {
		info, err := randr.GetOutputInfo(conn, output, resources.ConfigTimestamp).Reply()
		if err != nil {
			Debug("Failed to get info for output %d: %v", output, err)
			continue
		}
		if info.Connection != randr.ConnectionConnected || info.Crtc == 0 {
			continue
		}

		crtc, err := randr.GetCrtcInfo(conn, info.Crtc, resources.ConfigTimestamp).Reply()
		if err != nil {
			Debug("Failed to get CRTC %d for output %s: %v", info.Crtc, string(info.Name), err)
			continue
		}

		m := Monitor{
			X:       int(crtc.X),
			Y:       int(crtc.Y),
			Width:   int(crtc.Width),
			Height:  int(crtc.Height),
			Primary: output == primary,
		}
		Debug("RandR output %s: %dx%d+%d+%d primary=%v", string(info.Name), m.Width, m.Height, m.X, m.Y, m.Primary)
		monitors = append(monitors, m)
	}

	if len(monitors) == 0 {
		return nil, errors.New("no connected outputs")
	}
	return monitors, nil
}

// xrandrMonitors asks the xrandr tool for the current layout
func xrandrMonitors() ([]Monitor, error) {
	Info("Attempting to detect monitors using xrandr")
	output, err := exec.Command("xrandr", "--current").CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("failed to run xrandr: %w", err)
	}

	monitors := parseXrandrMonitors(string(output))
	if len(monitors) == 0 {
		return nil, errors.New("xrandr reported no connected monitors")
	}
	return monitors, nil
}

// parseXrandrMonitors extracts connected monitors from `xrandr --current` output
func parseXrandrMonitors(output string) []Monitor {
	var monitors []Monitor
	for _, line := range strings.Split(output, "\n") {
		idx := strings.Index(line, " connected")
		if idx < 0 {
			continue
		}

		fields := strings.Fields(line[idx+len(" connected"):])
		primary := false
		if len(fields) > 0 && fields[0] == "primary" {
			primary = true
			fields = fields[1:]
		}
		if len(fields) == 0 {
			// connected but disabled
			continue
		}

		// Geometry looks like 1920x1080+0+0
		parts := strings.Split(fields[0], "+")
		if len(parts) < 3 {
			Debug("Not enough parts after splitting by '+': %v", parts)
			continue
		}
		resolution := strings.Split(parts[0], "x")
		if len(resolution) != 2 {
			Debug("Failed to parse resolution part: %s", parts[0])
			continue
		}

		width, errW := strconv.Atoi(resolution[0])
		height, errH := strconv.Atoi(resolution[1])
		x, errX := strconv.Atoi(parts[1])
		y, errY := strconv.Atoi(parts[2])
		if errW != nil || errH != nil || errX != nil || errY != nil {
			Debug("Failed to parse geometry: %s", fields[0])
			continue
		}

		monitors = append(monitors, Monitor{X: x, Y: y, Width: width, Height: height, Primary: primary})
	}
	return monitors
}

// choosePrimary returns the primary monitor, or the first one when none is flagged
func choosePrimary(monitors []Monitor) (Monitor, bool) {
	for _, m := range monitors {
		if m.Primary {
			return m, true
		}
	}
	if len(monitors) > 0 {
		return monitors[0], true
	}
	return Monitor{}, false
}

// resolveGeometry builds the session geometry from the desktop size and the
// detected outputs. Without outputs the whole desktop is used.
func resolveGeometry(displayWidth, displayHeight int, monitors []Monitor) WindowPositionInfo {
	info := WindowPositionInfo{
		DisplayWidth:  displayWidth,
		DisplayHeight: displayHeight,
		OutputWidth:   displayWidth,
		OutputHeight:  displayHeight,
	}
	if m, ok := choosePrimary(monitors); ok {
		info.OutputX = m.X
		info.OutputY = m.Y
		info.OutputWidth = m.Width
		info.OutputHeight = m.Height
	}
	return info
}
