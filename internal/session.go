package internal

import (
	"context"
	"fmt"
)

// Keysyms the session reacts to
const (
	keysymBackSpace = 0xff08
	keysymReturn    = 0xff0d
	keysymEscape    = 0xff1b
	keysymKPEnter   = 0xff8d
)

const (
	// passdispSize is the length of the obfuscation pattern
	passdispSize = 256

	authFailedMessage = "authentication failed"
)

// Session is the lock-session state machine. It owns the credential buffer and
// runs on a single goroutine; nothing else touches its state.
type Session struct {
	display     Display
	power       PowerManager // nil when DPMS is unavailable
	auth        Authenticator
	cred        *Credential
	lockout     *LockoutManager
	username    string
	passdisp    [passdispSize]byte
	hideLength  bool
	swapRetries int
	state       State
	message     string // failure text while in StateFailed
}

// NewSession wires the state machine to its collaborators
func NewSession(config Configuration, display Display, power PowerManager, auth Authenticator, cred *Credential) *Session {
	s := &Session{
		display:     display,
		power:       power,
		auth:        auth,
		cred:        cred,
		lockout:     NewLockoutManager(config),
		username:    config.Username,
		hideLength:  config.HideLength,
		swapRetries: config.SwapRetries,
		state:       StateTyping,
	}

	passchar := config.PassChar
	if passchar == "" {
		passchar = "*"
	}
	for i := range s.passdisp {
		s.passdisp[i] = passchar[i%len(passchar)]
	}
	return s
}

// State returns the current session state
func (s *Session) State() State {
	return s.state
}

// Run processes input until the session unlocks, the display fails or ctx is
// cancelled. A display failure wipes the credential before returning; on
// cancellation the wipe is left to Teardown so power settings go back first.
func (s *Session) Run(ctx context.Context) (err error) {
	defer func() {
		if err != nil && ctx.Err() == nil {
			s.cred.Wipe()
		}
	}()

	Info("Entering main event loop")
	if err := s.redraw(); err != nil {
		return err
	}

	for s.state != StateUnlocked {
		if err := ctx.Err(); err != nil {
			return err
		}

		ev, err := s.display.NextEvent(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("waiting for input: %w", err)
		}

		s.handleEvent(ev)
		if s.state == StateUnlocked {
			break
		}

		// Only draw once the queue has drained
		if !s.display.Pending() {
			if err := s.redraw(); err != nil {
				return err
			}
		}
	}

	Info("Session unlocked")
	return nil
}

// handleEvent applies one input event to the state machine
func (s *Session) handleEvent(ev Event) {
	if ev.Kind == EventExpose {
		// Keep the display dark while blanked
		if s.state == StateIdle {
			s.forceOff()
		}
		return
	}

	if s.state == StateIdle || s.state == StateFailed {
		Debug("Input while %s, resuming password entry", s.state)
		s.state = StateTyping
		s.message = ""
	}

	if ev.Kind != EventKeyPress {
		return
	}

	switch ev.Keysym {
	case keysymReturn, keysymKPEnter:
		s.submit()
	case keysymEscape:
		s.cancel()
	case keysymBackSpace:
		s.cred.Backspace()
	default:
		if isPrintable(ev.Char) && !s.cred.Append(ev.Char) {
			Debug("Password buffer full, dropping input")
		}
	}
}

// submit verifies the typed password. It blocks until the authenticator answers.
func (s *Session) submit() {
	if s.cred.Len() == 0 {
		return
	}

	if s.lockout.IsLockedOut() {
		Info("Submission refused, locked out for another %s", s.lockout.FormatRemainingTime())
		s.cred.Wipe()
		s.fail(authFailedMessage)
		return
	}

	s.state = StateVerifying
	result := s.auth.Authenticate(s.cred)
	s.cred.Wipe()

	if result.Success {
		s.lockout.ResetLockout()
		s.state = StateUnlocked
		return
	}

	Info("Authentication result: %s", result.Message)
	s.lockout.HandleFailedAttempt()
	s.fail(authFailedMessage)
}

// cancel clears the password and blanks the screen until the next input
func (s *Session) cancel() {
	Debug("Escape pressed, clearing password and blanking")
	s.cred.Wipe()
	s.state = StateIdle
	s.message = ""
	s.forceOff()
}

func (s *Session) forceOff() {
	if s.power == nil {
		return
	}
	if err := s.power.ForceOff(); err != nil {
		Warn("Failed to force display off: %v", err)
	}
}

// Teardown restores the saved power settings, then wipes the credential. It
// runs after Run returns, whatever the reason.
func (s *Session) Teardown(guard *PowerGuard) {
	guard.Restore()
	s.cred.Wipe()
}

func (s *Session) fail(message string) {
	s.state = StateFailed
	s.message = message
}

// frame describes what the next redraw shows
func (s *Session) frame() Frame {
	f := Frame{Username: s.username}
	if s.state == StateFailed {
		f.Failed = true
		f.Message = s.message
		if s.lockout.IsLockedOut() {
			f.Message = fmt.Sprintf("locked out, try again in %s", s.lockout.FormatRemainingTime())
		}
		return f
	}
	f.Indicator = s.indicator()
	return f
}

// indicator returns the placeholder string for the typed password. With
// hideLength the count is perturbed by the pattern byte at the current length.
func (s *Session) indicator() string {
	n := s.cred.Len()
	lendisp := n
	if s.hideLength && n > 0 {
		lendisp += int(s.passdisp[n%passdispSize]) * n % 5
	}
	return string(s.passdisp[:lendisp%passdispSize])
}

// redraw presents the current frame, retrying a failed swap a bounded number of times
func (s *Session) redraw() error {
	frame := s.frame()

	var err error
	for attempt := 0; attempt <= s.swapRetries; attempt++ {
		if err = s.display.Present(frame); err == nil {
			return nil
		}
		Warn("Frame swap failed (attempt %d/%d): %v", attempt+1, s.swapRetries+1, err)
	}
	return fmt.Errorf("swap buffers failed: %w", err)
}

func isPrintable(c byte) bool {
	return c >= 0x20 && c <= 0x7e
}
