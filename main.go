package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"

	"github.com/tuxx/glitchlock/internal"
)

// Version is set at build time
var Version = "0.1.0"

var (
	cfgFile string
	v       *viper.Viper
	cfg     internal.Configuration

	rootCmd = &cobra.Command{
		Use:   "glitchlock",
		Short: "glitchlock - X11 screen locker over a glitched screenshot",
		Long: `glitchlock grabs the keyboard and pointer, shows a corrupted copy of the
desktop with a password field and unlocks once PAM accepts the password.

Run without a subcommand to lock immediately.`,
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLock(cfg)
		},
	}

	lockCmd = &cobra.Command{
		Use:   "lock",
		Short: "Lock the screen now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLock(cfg)
		},
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default is $XDG_CONFIG_HOME/glitchlock/config.yaml)")
	flags.BoolP("primary", "1", false, "only capture and corrupt the primary output")
	flags.StringP("font", "f", "", "TrueType/OpenType font file for the password panel")
	flags.Float64("font-size", 0, "font size in points")
	flags.StringP("username", "u", "", "user name to show (default is $USER)")
	flags.StringP("passchar", "p", "", "characters used to obfuscate the password")
	flags.BoolP("hidelength", "l", false, "derange the password length indicator")
	flags.String("log-level", "", "log level (debug, info, warn, error, none)")
	flags.Bool("debug", false, "human readable logs with caller info")
	flags.Uint64("seed", 0, "corruption seed (default is the current time)")

	rootCmd.AddCommand(lockCmd)
}

// flagKeys maps persistent flags to config keys
var flagKeys = map[string]string{
	"primary":    "primary",
	"font":       "font",
	"font-size":  "font_size",
	"username":   "username",
	"passchar":   "passchar",
	"hidelength": "hide_length",
	"log-level":  "log_level",
	"debug":      "debug",
	"seed":       "seed",
}

// loadConfig merges defaults, the config file, the environment and flags
func loadConfig(cmd *cobra.Command, args []string) error {
	v = internal.NewViper(cfgFile)
	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", flag, err)
		}
	}
	if f := cmd.Flags().Lookup("timeout"); f != nil {
		if err := v.BindPFlag("idle_timeout", f); err != nil {
			return fmt.Errorf("failed to bind flag timeout: %w", err)
		}
	}

	// Log config loading at the requested level already
	internal.InitLogger(internal.ParseLogLevel(v.GetString("log_level")), v.GetBool("debug"))

	var err error
	cfg, err = internal.LoadConfig(v)
	if err != nil {
		return err
	}
	internal.InitLogger(internal.ParseLogLevel(cfg.LogLevel), cfg.Debug)
	internal.Debug("Debug logging enabled")
	return nil
}

// errSignalled ends a lock session that was interrupted by a signal
var errSignalled = errors.New("terminated by signal")

// runLock runs one complete lock session
func runLock(config internal.Configuration) error {
	internal.Info("Starting lock procedure")

	// Signals end the session through ctx so teardown always runs
	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGHUP, unix.SIGTERM)
	defer stop()

	helper := internal.NewLockHelper(config)
	defer helper.Close()

	if err := helper.CheckUserPermissions(); err != nil {
		return err
	}
	if err := helper.EnsureSingleInstance(); err != nil {
		return err
	}

	pamUser, err := internal.CurrentUsername()
	if err != nil {
		return err
	}
	if config.Username == "" {
		config.Username = pamUser
	}

	cred, err := internal.NewCredential(config.CredentialCapacity)
	if err != nil {
		return err
	}
	defer cred.Destroy()

	seed := config.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	noise, err := internal.NewNoiseTable(seed, config.NoiseSamples)
	if err != nil {
		return err
	}

	face, err := internal.LoadFace(config.Font, config.FontSize)
	if err != nil {
		return err
	}
	defer face.Close()

	if err := helper.RunPreLockCommand(); err != nil {
		// Lock anyway
		internal.Warn("Pre-lock command error: %v", err)
	}

	display, err := internal.ConnectX11()
	if err != nil {
		return err
	}
	defer display.Close()

	info := display.ResolveGeometry()
	captureRect := info.CaptureRect(config.PrimaryOnly)
	capture, err := display.Capture(captureRect)
	if err != nil {
		return err
	}

	if err := internal.NewCorrupter(config.Corruption, noise, seed).Corrupt(capture); err != nil {
		return fmt.Errorf("failed to corrupt capture: %w", err)
	}

	layout := internal.NewLayout(info)
	backdrop, err := internal.DimBackdrop(capture, captureRect.Min, layout.Panel)
	if err != nil {
		return err
	}
	renderer, err := internal.NewRenderer(face, layout, backdrop)
	if err != nil {
		return err
	}

	if err := display.CreateWindow(capture, captureRect.Min, renderer); err != nil {
		return err
	}
	if err := display.GrabInput(config.GrabAttempts, config.GrabBackoff); err != nil {
		return err
	}

	auth, err := internal.NewPamAuthenticator(config.PamService, pamUser)
	if err != nil {
		return err
	}

	var power internal.PowerManager
	var guard *internal.PowerGuard
	if p, err := internal.NewX11Power(display.Conn()); err != nil {
		internal.Warn("Power management disabled: %v", err)
	} else if guard, err = internal.ApplySessionPower(p, config.DPMSTimeout); err != nil {
		internal.Warn("Power management disabled: %v", err)
	} else {
		power = p
	}

	helper.SessionLocked()

	session := internal.NewSession(config, display, power, auth, cred)
	runErr := session.Run(ctx)

	session.Teardown(guard)
	helper.SessionUnlocked()

	if runErr != nil {
		if ctx.Err() != nil {
			internal.Info("Lock session interrupted")
			return errSignalled
		}
		return runErr
	}

	internal.Info("Screen unlocked")
	if err := helper.RunPostLockCommand(); err != nil {
		internal.Warn("Post-lock command error: %v", err)
	}
	return nil
}

func main() {
	err := rootCmd.Execute()
	memguard.Purge()
	if err != nil {
		if errors.Is(err, errSignalled) {
			os.Exit(1)
		}
		internal.Fatal("%v", err)
	}
}
