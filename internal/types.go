package internal

import (
	"context"
	"image"
	"time"
)

// Monitor represents a physical display
type Monitor struct {
	X       int
	Y       int
	Width   int
	Height  int
	Primary bool
}

// WindowPositionInfo describes the desktop and the output the lock panel is
// centered on. It is resolved once per session.
type WindowPositionInfo struct {
	DisplayWidth  int
	DisplayHeight int
	OutputX       int
	OutputY       int
	OutputWidth   int
	OutputHeight  int
}

// OutputRect returns the chosen output as a rectangle in display coordinates
func (w WindowPositionInfo) OutputRect() image.Rectangle {
	return image.Rect(w.OutputX, w.OutputY, w.OutputX+w.OutputWidth, w.OutputY+w.OutputHeight)
}

// CaptureRect returns the area captured for the backdrop
func (w WindowPositionInfo) CaptureRect(primaryOnly bool) image.Rectangle {
	if primaryOnly {
		return w.OutputRect()
	}
	return image.Rect(0, 0, w.DisplayWidth, w.DisplayHeight)
}

// Buffer is a row-major grid of 4-byte pixels (blue, green, red, alpha) with a
// stride of 4*Width. A buffer has exactly one owner at a time.
type Buffer struct {
	Width  int
	Height int
	Pix    []byte
}

// State is the lock session state
type State int

const (
	// StateIdle is the blanked, power-saving state entered on cancel
	StateIdle State = iota
	// StateTyping accepts password input
	StateTyping
	// StateVerifying is held while the authenticator runs
	StateVerifying
	// StateFailed shows the failure indicator until the next input
	StateFailed
	// StateUnlocked is terminal
	StateUnlocked
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTyping:
		return "typing"
	case StateVerifying:
		return "verifying"
	case StateFailed:
		return "failed"
	case StateUnlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// EventKind distinguishes input events delivered to the session
type EventKind int

const (
	// EventKeyPress is a key press with its keysym and literal character
	EventKeyPress EventKind = iota
	// EventMotion is pointer motion
	EventMotion
	// EventExpose asks for a redraw without counting as input
	EventExpose
)

// Event is one input event from the display
type Event struct {
	Kind   EventKind
	Keysym uint32
	Char   byte // 0 when the key has no printable character
}

// Frame is everything drawn in one redraw
type Frame struct {
	Username  string
	Indicator string // obfuscated password, empty when Failed
	Failed    bool
	Message   string // failure text shown instead of the indicator
}

// Display is the display/input collaborator the session drives
type Display interface {
	// NextEvent blocks until an input event arrives or ctx is done
	NextEvent(ctx context.Context) (Event, error)

	// Pending reports whether more input events are already queued
	Pending() bool

	// Present draws a full frame and commits it with a single swap
	Present(frame Frame) error
}

// Timeouts holds DPMS timeouts in seconds
type Timeouts struct {
	Standby uint16
	Suspend uint16
	Off     uint16
}

// PowerManager is the power-management collaborator
type PowerManager interface {
	Timeouts() (Timeouts, bool, error) // timeouts and whether DPMS is enabled
	SetTimeouts(t Timeouts) error
	Enable() error
	Disable() error
	ForceOff() error
}

// Authenticator checks the credential currently typed into the session
type Authenticator interface {
	Authenticate(cred *Credential) AuthResult
}

// AuthResult represents the result of an authentication attempt
type AuthResult struct {
	Success bool
	Message string
}

// Configuration holds the application settings
type Configuration struct {
	// Path to a TrueType/OpenType font; empty uses the built-in face
	Font string `mapstructure:"font"`

	// Font size in points at 72 DPI
	FontSize float64 `mapstructure:"font_size"`

	// User name shown above the password line; PAM always uses the real user
	Username string `mapstructure:"username"`

	// Characters repeated to obfuscate the password
	PassChar string `mapstructure:"passchar"`

	// Derange the password length indicator
	HideLength bool `mapstructure:"hide_length"`

	// Only capture and corrupt the primary output
	PrimaryOnly bool `mapstructure:"primary"`

	// PAM service name to use for authentication
	PamService string `mapstructure:"pam_service"`

	// Log level name (debug, info, warn, error, none)
	LogLevel string `mapstructure:"log_level"`

	// Human readable log output with caller info
	Debug bool `mapstructure:"debug"`

	// DPMS timeout in seconds while locked
	DPMSTimeout uint16 `mapstructure:"dpms_timeout"`

	// Input grab attempts and the pause between them
	GrabAttempts int           `mapstructure:"grab_attempts"`
	GrabBackoff  time.Duration `mapstructure:"grab_backoff"`

	// Extra attempts for a failed frame swap before the session aborts
	SwapRetries int `mapstructure:"swap_retries"`

	// Capacity of the locked password buffer in bytes
	CredentialCapacity int `mapstructure:"credential_capacity"`

	// Size of the precomputed noise table
	NoiseSamples int `mapstructure:"noise_samples"`

	// Noise seed; 0 seeds from the wall clock
	Seed uint64 `mapstructure:"seed"`

	// Glitch parameters
	Corruption CorruptionParams `mapstructure:"corruption"`

	// Failed attempts before a lockout, 0 disables lockouts
	MaxAttempts int `mapstructure:"max_attempts"`

	// First lockout duration
	LockoutDuration time.Duration `mapstructure:"lockout_duration"`

	// Idle timeout in seconds before auto-locking (idle command)
	IdleTimeout int `mapstructure:"idle_timeout"`

	// Command to run before locking the screen
	PreLockCommand string `mapstructure:"pre_lock_command"`

	// Command to run after unlocking the screen
	PostLockCommand string `mapstructure:"post_lock_command"`

	// Pause MPRIS players when locking
	LockPauseMedia bool `mapstructure:"lock_pause_media"`

	// Resume MPRIS players paused by the lock
	UnlockUnpauseMedia bool `mapstructure:"unlock_unpause_media"`

	// Report the lock to systemd-logind
	LockedHint bool `mapstructure:"locked_hint"`

	// Lock file used to keep a single instance
	LockFile string `mapstructure:"lock_file"`
}
