package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	config := DefaultConfig()
	require.NoError(t, validateConfig(&config))

	assert.Equal(t, "*", config.PassChar)
	assert.Equal(t, uint16(10), config.DPMSTimeout)
	assert.Equal(t, DefaultCredentialCapacity, config.CredentialCapacity)
	assert.Equal(t, 0, config.MaxAttempts)
	assert.NotEmpty(t, config.LockFile)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Configuration)
	}{
		{"zero font size", func(c *Configuration) { c.FontSize = 0 }},
		{"empty passchar", func(c *Configuration) { c.PassChar = "" }},
		{"multi-byte passchar", func(c *Configuration) { c.PassChar = "•" }},
		{"control passchar", func(c *Configuration) { c.PassChar = "*\t" }},
		{"unknown log level", func(c *Configuration) { c.LogLevel = "verbose" }},
		{"zero dpms timeout", func(c *Configuration) { c.DPMSTimeout = 0 }},
		{"no grab attempts", func(c *Configuration) { c.GrabAttempts = 0 }},
		{"negative grab backoff", func(c *Configuration) { c.GrabBackoff = -time.Millisecond }},
		{"negative swap retries", func(c *Configuration) { c.SwapRetries = -1 }},
		{"tiny credential", func(c *Configuration) { c.CredentialCapacity = 1 }},
		{"no noise", func(c *Configuration) { c.NoiseSamples = 0 }},
		{"too much noise", func(c *Configuration) { c.NoiseSamples = MaxNoiseSamples + 1 }},
		{"zero block height", func(c *Configuration) { c.Corruption.BlockHeight = 0 }},
		{"negative max attempts", func(c *Configuration) { c.MaxAttempts = -1 }},
		{"negative lockout", func(c *Configuration) { c.LockoutDuration = -time.Second }},
		{"negative idle timeout", func(c *Configuration) { c.IdleTimeout = -1 }},
		{"no lock file", func(c *Configuration) { c.LockFile = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(&config)
			assert.Error(t, validateConfig(&config))
		})
	}
}

func TestLoadConfigWithoutFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	config, err := LoadConfig(NewViper(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().PassChar, config.PassChar)
	assert.Equal(t, DefaultCorruptionParams(), config.Corruption)
}

func TestValidateConfigAcceptsASCIIPassChar(t *testing.T) {
	config := DefaultConfig()
	config.PassChar = "#@ ~"
	assert.NoError(t, validateConfig(&config))
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `passchar: "#"
hide_length: true
font_size: 24
lockout_duration: 45s
max_attempts: 3
corruption:
  block_height: 8
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))

	config, err := LoadConfig(NewViper(path))
	require.NoError(t, err)

	assert.Equal(t, "#", config.PassChar)
	assert.True(t, config.HideLength)
	assert.Equal(t, 24.0, config.FontSize)
	assert.Equal(t, 45*time.Second, config.LockoutDuration)
	assert.Equal(t, 3, config.MaxAttempts)
	assert.Equal(t, 8, config.Corruption.BlockHeight)
	// Untouched keys keep their defaults
	assert.Equal(t, DefaultCorruptionParams().Magnitude, config.Corruption.Magnitude)
	assert.Equal(t, 2, config.SwapRetries)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("passchar: \"#\"\n"), 0600))

	t.Setenv("GLITCHLOCK_PASSCHAR", "@")
	t.Setenv("GLITCHLOCK_CORRUPTION_BLOCK_HEIGHT", "12")

	config, err := LoadConfig(NewViper(path))
	require.NoError(t, err)
	assert.Equal(t, "@", config.PassChar)
	assert.Equal(t, 12, config.Corruption.BlockHeight)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("grab_attempts: 0\n"), 0600))

	_, err := LoadConfig(NewViper(path))
	assert.ErrorContains(t, err, "grab attempts")
}

func TestLoadConfigMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("passchar: [unterminated\n"), 0600))

	_, err := LoadConfig(NewViper(path))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")

	config := DefaultConfig()
	config.Username = "guest"
	config.MaxAttempts = 5
	config.LockoutDuration = 2 * time.Minute
	config.Corruption.Magnitude = 2.5
	require.NoError(t, SaveConfig(path, config))

	loaded, err := LoadConfig(NewViper(path))
	require.NoError(t, err)
	assert.Equal(t, "guest", loaded.Username)
	assert.Equal(t, 5, loaded.MaxAttempts)
	assert.Equal(t, 2*time.Minute, loaded.LockoutDuration)
	assert.InDelta(t, 2.5, loaded.Corruption.Magnitude, 1e-9)
}

func TestSaveConfigRejectsInvalid(t *testing.T) {
	config := DefaultConfig()
	config.PassChar = ""
	assert.Error(t, SaveConfig(filepath.Join(t.TempDir(), "bad.yaml"), config))
}

func TestGenerateDefaultConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path, err := GenerateDefaultConfigFile()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, appName, "config.yaml"), path)
	assert.FileExists(t, path)

	// An existing file is left alone
	require.NoError(t, os.WriteFile(path, []byte("passchar: \"%\"\n"), 0600))
	again, err := GenerateDefaultConfigFile()
	require.NoError(t, err)
	assert.Equal(t, path, again)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "passchar: \"%\"\n", string(data))
}
