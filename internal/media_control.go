package internal

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	mprisPrefix     = "org.mpris.MediaPlayer2"
	mprisPath       = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	mprisPlayer     = "org.mpris.MediaPlayer2.Player"
	logindDest      = "org.freedesktop.login1"
	logindSelfPath  = dbus.ObjectPath("/org/freedesktop/login1/session/auto")
	logindSessIface = "org.freedesktop.login1.Session"
)

// MediaController pauses MPRIS players for the duration of a lock and reports the
// lock state to systemd-logind.
type MediaController struct {
	conn   *dbus.Conn
	system *dbus.Conn
	paused []string // players paused by us, resumed on unlock
}

// NewMediaController creates a new MediaController on the session bus
func NewMediaController() (*MediaController, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, err
	}
	return &MediaController{conn: conn}, nil
}

// Close closes the D-Bus connections
func (mc *MediaController) Close() {
	if mc.conn != nil {
		mc.conn.Close()
	}
	if mc.system != nil {
		mc.system.Close()
	}
}

// PauseAllMedia pauses every MPRIS player that is currently playing
func (mc *MediaController) PauseAllMedia() error {
	players, err := mc.players()
	if err != nil {
		return err
	}

	mc.paused = mc.paused[:0]
	for _, name := range players {
		status, err := mc.playbackStatus(name)
		if err != nil {
			Debug("Failed to get playback status for %s: %v", name, err)
			continue
		}
		if status != "Playing" {
			Debug("Player %s is not playing (status: %s), skipping pause", name, status)
			continue
		}

		call := mc.conn.Object(name, mprisPath).Call(mprisPlayer+".Pause", 0)
		if call.Err != nil {
			Error("Failed to pause %s: %v", name, call.Err)
			continue
		}
		mc.paused = append(mc.paused, name)
	}

	Debug("Paused %d media players", len(mc.paused))
	return nil
}

// UnpauseAllMedia resumes the players PauseAllMedia paused, if they are still paused
func (mc *MediaController) UnpauseAllMedia() error {
	resumed := 0
	for _, name := range mc.paused {
		status, err := mc.playbackStatus(name)
		if err != nil || status != "Paused" {
			Debug("Player %s no longer paused, skipping resume", name)
			continue
		}

		call := mc.conn.Object(name, mprisPath).Call(mprisPlayer+".Play", 0)
		if call.Err != nil {
			Error("Failed to unpause %s: %v", name, call.Err)
			continue
		}
		resumed++
	}

	Debug("Resumed %d of %d media players", resumed, len(mc.paused))
	mc.paused = nil
	return nil
}

// SetLockedHint tells logind whether this session is locked
func (mc *MediaController) SetLockedHint(locked bool) error {
	if mc.system == nil {
		conn, err := dbus.ConnectSystemBus()
		if err != nil {
			return fmt.Errorf("failed to connect to system bus: %w", err)
		}
		mc.system = conn
	}

	call := mc.system.Object(logindDest, logindSelfPath).Call(logindSessIface+".SetLockedHint", 0, locked)
	if call.Err != nil {
		return fmt.Errorf("SetLockedHint(%v): %w", locked, call.Err)
	}
	Debug("logind locked hint set to %v", locked)
	return nil
}

// players lists bus names that belong to MPRIS players
func (mc *MediaController) players() ([]string, error) {
	var names []string
	err := mc.conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names)
	if err != nil {
		return nil, fmt.Errorf("failed to list D-Bus names: %w", err)
	}
	return filterMprisPlayers(names), nil
}

func filterMprisPlayers(names []string) []string {
	var players []string
	for _, name := range names {
		// Skip unique connection names
		if strings.HasPrefix(name, ":") {
			continue
		}
		if strings.HasPrefix(name, mprisPrefix+".") {
			players = append(players, name)
		}
	}
	return players
}

func (mc *MediaController) playbackStatus(name string) (string, error) {
	var status string
	err := mc.conn.Object(name, mprisPath).
		Call("org.freedesktop.DBus.Properties.Get", 0, mprisPlayer, "PlaybackStatus").
		Store(&status)
	return status, err
}
