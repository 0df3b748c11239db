package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/tuxx/glitchlock/internal"
)

var idleCmd = &cobra.Command{
	Use:   "idle",
	Short: "Lock the screen after a period of inactivity",
	Long: `Watch the X screensaver idle counter and start a lock session once the
user has been inactive for the configured timeout. Runs until interrupted.`,
	Example: `  # Lock after five minutes without input
  glitchlock idle --timeout 300`,
	RunE: runIdle,
}

func init() {
	idleCmd.Flags().Int("timeout", 0, "idle seconds before locking (default 300)")
	rootCmd.AddCommand(idleCmd)
}

func runIdle(cmd *cobra.Command, args []string) error {
	if cfg.IdleTimeout <= 0 {
		return errors.New("idle timeout must be positive")
	}

	watcher, err := internal.NewIdleWatcher(
		time.Duration(cfg.IdleTimeout)*time.Second,
		internal.RelaunchLock(forwardedFlags(cmd)...),
	)
	if err != nil {
		return err
	}
	defer watcher.Close()

	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGHUP, unix.SIGTERM)
	defer stop()

	internal.Info("Idle monitor started (timeout: %d seconds)", cfg.IdleTimeout)
	if err := watcher.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// forwardedFlags returns the lock flags given on the command line so the
// relaunched lock sees the same settings
func forwardedFlags(cmd *cobra.Command) []string {
	var out []string
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if f.Name == "timeout" {
			return
		}
		out = append(out, fmt.Sprintf("--%s=%s", f.Name, f.Value.String()))
	})
	return out
}
