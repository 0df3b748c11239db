package internal

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/screensaver"
	"github.com/BurntSushi/xgb/xproto"
)

// IdleWatcher locks the screen after a period without user input
type IdleWatcher struct {
	conn     *xgb.Conn
	timeout  time.Duration
	interval time.Duration
	idle     func() (time.Duration, error)
	lock     func(ctx context.Context) error
}

// NewIdleWatcher connects to the X server and prepares the screensaver
// extension. lock runs each time the timeout is reached and blocks until unlock.
func NewIdleWatcher(timeout time.Duration, lock func(ctx context.Context) error) (*IdleWatcher, error) {
	Info("Creating new X connection for idle monitor")
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	if err := screensaver.Init(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize screensaver extension: %w", err)
	}

	root := xproto.Setup(conn).DefaultScreen(conn).Root
	w := &IdleWatcher{
		conn:     conn,
		timeout:  timeout,
		interval: time.Second,
		lock:     lock,
	}
	w.idle = func() (time.Duration, error) {
		info, err := screensaver.QueryInfo(conn, xproto.Drawable(root)).Reply()
		if err != nil {
			return 0, err
		}
		return time.Duration(info.MsSinceUserInput) * time.Millisecond, nil
	}
	return w, nil
}

// Watch polls the idle time until ctx is done. After a lock the watcher waits
// for fresh input before it can fire again.
func (w *IdleWatcher) Watch(ctx context.Context) error {
	Info("Idle watcher started, timeout: %v", w.timeout)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	armed := true
	for {
		select {
		case <-ctx.Done():
			Info("Idle watcher received stop signal")
			return ctx.Err()
		case <-ticker.C:
		}

		idle, err := w.idle()
		if err != nil {
			Error("Error querying idle time: %v", err)
			continue
		}
		Debug("Current idle time: %v", idle)

		if idle < w.timeout {
			armed = true
			continue
		}
		if !armed {
			continue
		}

		Info("Idle timeout reached (%v), locking screen", idle)
		armed = false
		if err := w.lock(ctx); err != nil {
			Error("Lock failed: %v", err)
		}
	}
}

// Close closes the watcher's X connection
func (w *IdleWatcher) Close() {
	if w.conn != nil {
		w.conn.Close()
	}
}

// RelaunchLock returns a lock function that runs this executable's lock
// command with args and waits for it to exit. The lock process is not tied to
// ctx: stopping the watcher must never unlock the screen.
func RelaunchLock(args ...string) func(ctx context.Context) error {
	return func(context.Context) error {
		exe, err := os.Executable()
		if err != nil {
			exe = os.Args[0]
		}
		Debug("Starting lock command in separate process")
		cmd := exec.Command(exe, append([]string{"lock"}, args...)...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return cmd.Run()
	}
}
