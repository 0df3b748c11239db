package internal

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/dpms"
)

// ErrDPMSUnavailable is returned when the server cannot do power management
var ErrDPMSUnavailable = errors.New("DPMS not available")

// X11Power drives display power management through the DPMS extension
type X11Power struct {
	conn *xgb.Conn
}

// NewX11Power initializes DPMS on conn and checks that the server is capable
func NewX11Power(conn *xgb.Conn) (*X11Power, error) {
	Info("Initializing DPMS extension")
	if err := dpms.Init(conn); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDPMSUnavailable, err)
	}

	capable, err := dpms.Capable(conn).Reply()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDPMSUnavailable, err)
	}
	if !capable.Capable {
		return nil, ErrDPMSUnavailable
	}
	return &X11Power{conn: conn}, nil
}

// Timeouts returns the current timeouts and whether DPMS is enabled
func (p *X11Power) Timeouts() (Timeouts, bool, error) {
	t, err := dpms.GetTimeouts(p.conn).Reply()
	if err != nil {
		return Timeouts{}, false, fmt.Errorf("failed to get DPMS timeouts: %w", err)
	}
	info, err := dpms.Info(p.conn).Reply()
	if err != nil {
		return Timeouts{}, false, fmt.Errorf("failed to get DPMS info: %w", err)
	}
	return Timeouts{Standby: t.StandbyTimeout, Suspend: t.SuspendTimeout, Off: t.OffTimeout}, info.State, nil
}

// SetTimeouts sets the standby, suspend and off timeouts
func (p *X11Power) SetTimeouts(t Timeouts) error {
	return dpms.SetTimeoutsChecked(p.conn, t.Standby, t.Suspend, t.Off).Check()
}

// Enable turns DPMS on
func (p *X11Power) Enable() error {
	return dpms.EnableChecked(p.conn).Check()
}

// Disable turns DPMS off
func (p *X11Power) Disable() error {
	return dpms.DisableChecked(p.conn).Check()
}

// ForceOff powers the display down until the next input
func (p *X11Power) ForceOff() error {
	return dpms.ForceLevelChecked(p.conn, dpms.DPMSModeOff).Check()
}

// PowerGuard applies the session power settings and puts the original ones
// back on Restore.
type PowerGuard struct {
	power    PowerManager
	saved    Timeouts
	enabled  bool
	restored bool
}

// ApplySessionPower saves the current settings, sets all three timeouts to
// timeout seconds and forces DPMS on.
func ApplySessionPower(power PowerManager, timeout uint16) (*PowerGuard, error) {
	saved, enabled, err := power.Timeouts()
	if err != nil {
		return nil, err
	}
	Debug("Saved DPMS settings: standby=%d suspend=%d off=%d enabled=%v",
		saved.Standby, saved.Suspend, saved.Off, enabled)

	g := &PowerGuard{power: power, saved: saved, enabled: enabled}

	if err := power.SetTimeouts(Timeouts{Standby: timeout, Suspend: timeout, Off: timeout}); err != nil {
		return nil, fmt.Errorf("failed to set DPMS timeouts: %w", err)
	}
	if err := power.Enable(); err != nil {
		g.Restore()
		return nil, fmt.Errorf("failed to enable DPMS: %w", err)
	}

	Info("DPMS timeout set to %d seconds", timeout)
	return g, nil
}

// Restore puts the saved timeouts back and disables DPMS if it was disabled.
// Calling it again does nothing.
func (g *PowerGuard) Restore() {
	if g == nil || g.restored {
		return
	}
	g.restored = true

	if err := g.power.SetTimeouts(g.saved); err != nil {
		Error("Failed to restore DPMS timeouts: %v", err)
	}
	if !g.enabled {
		if err := g.power.Disable(); err != nil {
			Error("Failed to disable DPMS: %v", err)
		}
	}
	Debug("DPMS settings restored")
}
