package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	appName   = "glitchlock"
	envPrefix = "GLITCHLOCK"
)

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Configuration {
	pamService := "system-auth"
	if _, err := os.Stat(filepath.Join("/etc/pam.d", appName)); err == nil {
		pamService = appName
	}

	return Configuration{
		FontSize:           16,
		PassChar:           "*",
		PamService:         pamService,
		LogLevel:           "error",
		DPMSTimeout:        10,
		GrabAttempts:       1000,
		GrabBackoff:        50 * time.Microsecond,
		SwapRetries:        2,
		CredentialCapacity: DefaultCredentialCapacity,
		NoiseSamples:       15_000_000,
		Corruption:         DefaultCorruptionParams(),
		MaxAttempts:        0, // Lockouts disabled by default
		LockoutDuration:    30 * time.Second,
		IdleTimeout:        300,
		LockFile:           defaultLockFile(),
	}
}

// ConfigDir returns the directory searched for config files
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "/tmp"
	}
	return filepath.Join(homeDir, ".config", appName)
}

func defaultLockFile() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%d.lock", appName, os.Getuid()))
}

// NewViper returns a viper instance seeded with the defaults. An empty path
// searches the config directory for config.{yaml,json,toml}.
func NewViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(ConfigDir())
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// setDefaults registers every key so env lookups and WriteConfig see them
func setDefaults(v *viper.Viper, c Configuration) {
	v.SetDefault("font", c.Font)
	v.SetDefault("font_size", c.FontSize)
	v.SetDefault("username", c.Username)
	v.SetDefault("passchar", c.PassChar)
	v.SetDefault("hide_length", c.HideLength)
	v.SetDefault("primary", c.PrimaryOnly)
	v.SetDefault("pam_service", c.PamService)
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("debug", c.Debug)
	v.SetDefault("dpms_timeout", c.DPMSTimeout)
	v.SetDefault("grab_attempts", c.GrabAttempts)
	v.SetDefault("grab_backoff", c.GrabBackoff)
	v.SetDefault("swap_retries", c.SwapRetries)
	v.SetDefault("credential_capacity", c.CredentialCapacity)
	v.SetDefault("noise_samples", c.NoiseSamples)
	v.SetDefault("seed", c.Seed)
	v.SetDefault("max_attempts", c.MaxAttempts)
	v.SetDefault("lockout_duration", c.LockoutDuration)
	v.SetDefault("idle_timeout", c.IdleTimeout)
	v.SetDefault("pre_lock_command", c.PreLockCommand)
	v.SetDefault("post_lock_command", c.PostLockCommand)
	v.SetDefault("lock_pause_media", c.LockPauseMedia)
	v.SetDefault("unlock_unpause_media", c.UnlockUnpauseMedia)
	v.SetDefault("locked_hint", c.LockedHint)
	v.SetDefault("lock_file", c.LockFile)

	p := c.Corruption
	v.SetDefault("corruption.magnitude", p.Magnitude)
	v.SetDefault("corruption.block_height", p.BlockHeight)
	v.SetDefault("corruption.block_offset", p.BlockOffset)
	v.SetDefault("corruption.stride_magnitude", p.StrideMagnitude)
	v.SetDefault("corruption.lag", p.Lag)
	v.SetDefault("corruption.lag_red", p.LagRed)
	v.SetDefault("corruption.lag_green", p.LagGreen)
	v.SetDefault("corruption.lag_blue", p.LagBlue)
	v.SetDefault("corruption.std_offset", p.StdOffset)
	v.SetDefault("corruption.brightness", p.Brightness)
	v.SetDefault("corruption.mean_aberration", p.MeanAberration)
	v.SetDefault("corruption.std_aberration", p.StdAberration)
}

// LoadConfig reads the config file (if any), the environment and bound flags
func LoadConfig(v *viper.Viper) (Configuration, error) {
	var config Configuration

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("failed to read config file: %w", err)
		}
		Debug("No config file found in %s, using defaults", ConfigDir())
	} else {
		Info("Using config file: %s", v.ConfigFileUsed())
	}

	if err := v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return config, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to path; the extension picks the format
func SaveConfig(path string, config Configuration) error {
	if err := validateConfig(&config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	v := viper.New()
	setDefaults(v, config)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefaultConfigFile creates a default config file if none exists and
// returns its path.
func GenerateDefaultConfigFile() (string, error) {
	configDir := ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	}

	if err := SaveConfig(configPath, DefaultConfig()); err != nil {
		return "", fmt.Errorf("failed to save default config: %w", err)
	}
	return configPath, nil
}

// validateConfig checks if the configuration is valid
func validateConfig(config *Configuration) error {
	if config.FontSize <= 0 {
		return fmt.Errorf("font size must be positive, got %v", config.FontSize)
	}
	if config.PassChar == "" {
		return errors.New("passchar must not be empty")
	}
	for i := 0; i < len(config.PassChar); i++ {
		// The indicator slices the pattern bytewise
		if c := config.PassChar[i]; c < 0x20 || c > 0x7e {
			return fmt.Errorf("passchar must be printable ASCII, got %q", config.PassChar)
		}
	}
	switch strings.ToLower(config.LogLevel) {
	case "debug", "info", "warn", "warning", "error", "none", "off":
	default:
		return fmt.Errorf("unknown log level %q", config.LogLevel)
	}
	if config.DPMSTimeout == 0 {
		return errors.New("dpms timeout must be positive")
	}
	if config.GrabAttempts < 1 {
		return fmt.Errorf("grab attempts must be at least 1, got %d", config.GrabAttempts)
	}
	if config.GrabBackoff < 0 {
		return errors.New("grab backoff must not be negative")
	}
	if config.SwapRetries < 0 {
		return errors.New("swap retries must not be negative")
	}
	if config.CredentialCapacity < 2 {
		return fmt.Errorf("credential capacity must be at least 2, got %d", config.CredentialCapacity)
	}
	if config.NoiseSamples <= 0 || config.NoiseSamples > MaxNoiseSamples {
		return fmt.Errorf("noise samples must be in 1..%d, got %d", MaxNoiseSamples, config.NoiseSamples)
	}
	if config.Corruption.BlockHeight < 1 {
		return fmt.Errorf("corruption block height must be at least 1, got %d", config.Corruption.BlockHeight)
	}
	if config.MaxAttempts < 0 {
		return errors.New("max attempts must not be negative")
	}
	if config.LockoutDuration < 0 {
		return errors.New("lockout duration must not be negative")
	}
	if config.IdleTimeout < 0 {
		return errors.New("idle timeout must not be negative")
	}
	if config.LockFile == "" {
		return errors.New("lock file path must not be empty")
	}
	return nil
}
