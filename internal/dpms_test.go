package internal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingPower logs each call in order
type recordingPower struct {
	current   Timeouts
	enabled   bool
	calls     []string
	enableErr error
}

func (p *recordingPower) Timeouts() (Timeouts, bool, error) {
	p.calls = append(p.calls, "timeouts")
	return p.current, p.enabled, nil
}

func (p *recordingPower) SetTimeouts(t Timeouts) error {
	p.calls = append(p.calls, "set")
	p.current = t
	return nil
}

func (p *recordingPower) Enable() error {
	p.calls = append(p.calls, "enable")
	if p.enableErr != nil {
		return p.enableErr
	}
	p.enabled = true
	return nil
}

func (p *recordingPower) Disable() error {
	p.calls = append(p.calls, "disable")
	p.enabled = false
	return nil
}

func (p *recordingPower) ForceOff() error {
	p.calls = append(p.calls, "off")
	return nil
}

func TestApplySessionPowerRestoresDisabled(t *testing.T) {
	original := Timeouts{Standby: 600, Suspend: 900, Off: 1200}
	power := &recordingPower{current: original, enabled: false}

	guard, err := ApplySessionPower(power, 10)
	require.NoError(t, err)
	assert.Equal(t, Timeouts{Standby: 10, Suspend: 10, Off: 10}, power.current)
	assert.True(t, power.enabled)

	guard.Restore()
	assert.Equal(t, original, power.current)
	assert.False(t, power.enabled, "DPMS was off before the session")
	assert.Equal(t, []string{"timeouts", "set", "enable", "set", "disable"}, power.calls)

	// Second restore is a no-op
	guard.Restore()
	assert.Len(t, power.calls, 5)
}

func TestApplySessionPowerKeepsEnabled(t *testing.T) {
	power := &recordingPower{current: Timeouts{Off: 300}, enabled: true}

	guard, err := ApplySessionPower(power, 10)
	require.NoError(t, err)
	guard.Restore()

	assert.True(t, power.enabled)
	assert.Equal(t, Timeouts{Off: 300}, power.current)
	assert.NotContains(t, power.calls, "disable")
}

func TestApplySessionPowerEnableFailure(t *testing.T) {
	original := Timeouts{Standby: 1, Suspend: 2, Off: 3}
	power := &recordingPower{current: original, enableErr: errors.New("boom")}

	guard, err := ApplySessionPower(power, 10)
	assert.Error(t, err)
	assert.Nil(t, guard)
	assert.Equal(t, original, power.current, "settings restored after a failed enable")
}

func TestPowerGuardNilRestore(t *testing.T) {
	var guard *PowerGuard
	assert.NotPanics(t, guard.Restore)
}
