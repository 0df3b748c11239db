package internal

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strings"

	"golang.org/x/sys/unix"
)

// CurrentUsername returns $USER, falling back to the passwd entry
func CurrentUsername() (string, error) {
	if name := os.Getenv("USER"); name != "" {
		return name, nil
	}
	u, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("USER environment variable not set and user lookup failed: %w", err)
	}
	return u.Username, nil
}

// LockHelper handles the work around a lock session that is not drawing or input
type LockHelper struct {
	config    Configuration
	mediaCtrl *MediaController
	lockFile  *os.File
}

// NewLockHelper creates a new helper instance with the given configuration
func NewLockHelper(config Configuration) *LockHelper {
	var mediaCtrl *MediaController
	if config.LockPauseMedia || config.UnlockUnpauseMedia || config.LockedHint {
		Debug("Session bus features enabled, initializing media controller")
		var err error
		mediaCtrl, err = NewMediaController()
		if err != nil {
			// Log error but continue without media control
			Error("Failed to initialize media controller: %v", err)
		}
	}

	return &LockHelper{
		config:    config,
		mediaCtrl: mediaCtrl,
	}
}

// RunPreLockCommand runs the configured pre-lock command (if any)
func (h *LockHelper) RunPreLockCommand() error {
	if h.config.PreLockCommand == "" {
		return nil
	}
	Debug("Running pre-lock command: %s", h.config.PreLockCommand)
	return runShellCommand(h.config.PreLockCommand)
}

// RunPostLockCommand runs the configured post-lock command (if any)
func (h *LockHelper) RunPostLockCommand() error {
	if h.config.PostLockCommand == "" {
		return nil
	}
	Debug("Running post-lock command: %s", h.config.PostLockCommand)
	return runShellCommand(h.config.PostLockCommand)
}

// CheckUserPermissions verifies that the user has the necessary permissions
func (h *LockHelper) CheckUserPermissions() error {
	if unix.Geteuid() == 0 {
		return errors.New("glitchlock should not be run as root for security reasons")
	}
	return nil
}

// EnsureSingleInstance takes an exclusive lock on the configured lock file and
// holds it until Close.
func (h *LockHelper) EnsureSingleInstance() error {
	file, err := os.OpenFile(h.config.LockFile, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		return errors.New("another instance of glitchlock is already running")
	}

	h.lockFile = file
	return nil
}

// SessionLocked pauses media and reports the lock to logind, as configured
func (h *LockHelper) SessionLocked() {
	if h.mediaCtrl == nil {
		return
	}
	if h.config.LockPauseMedia {
		Debug("Pausing all media players")
		if err := h.mediaCtrl.PauseAllMedia(); err != nil {
			Warn("Failed to pause media: %v", err)
		}
	}
	if h.config.LockedHint {
		if err := h.mediaCtrl.SetLockedHint(true); err != nil {
			Warn("Failed to set logind locked hint: %v", err)
		}
	}
}

// SessionUnlocked undoes SessionLocked
func (h *LockHelper) SessionUnlocked() {
	if h.mediaCtrl == nil {
		return
	}
	if h.config.LockedHint {
		if err := h.mediaCtrl.SetLockedHint(false); err != nil {
			Warn("Failed to clear logind locked hint: %v", err)
		}
	}
	if h.config.UnlockUnpauseMedia {
		Debug("Unpausing media players paused by the lock")
		if err := h.mediaCtrl.UnpauseAllMedia(); err != nil {
			Warn("Failed to unpause media: %v", err)
		}
	}
}

// Close releases the instance lock and the bus connection
func (h *LockHelper) Close() {
	if h.mediaCtrl != nil {
		h.mediaCtrl.Close()
	}
	if h.lockFile != nil {
		unix.Flock(int(h.lockFile.Fd()), unix.LOCK_UN)
		h.lockFile.Close()
		h.lockFile = nil
	}
}

// runShellCommand executes a shell command string
func runShellCommand(cmd string) error {
	return exec.Command("sh", "-c", strings.TrimSpace(cmd)).Run()
}
