package internal

import (
	"errors"
	"fmt"

	"github.com/msteinert/pam"
)

// ErrConversationBuffer is returned to PAM when no credential can be handed over
var ErrConversationBuffer = errors.New("conversation buffer unavailable")

// PromptStyle is the kind of message a PAM module sends
type PromptStyle int

const (
	// PromptEchoOff asks for a secret
	PromptEchoOff PromptStyle = iota
	// PromptEchoOn asks for visible input
	PromptEchoOn
	// PromptErrorMsg carries an error message
	PromptErrorMsg
	// PromptTextInfo carries an informational message
	PromptTextInfo
	// PromptUnknown is any other style
	PromptUnknown
)

// Prompt is one message of a conversation round
type Prompt struct {
	Style   PromptStyle
	Message string
}

// Conversation answers PAM prompts with the credential bound for the current
// authentication attempt.
type Conversation struct {
	cred *Credential
}

// Bind attaches cred for one authentication attempt; nil detaches it
func (c *Conversation) Bind(cred *Credential) {
	c.cred = cred
}

// Respond answers a round of prompts. The result maps prompt index to response
// and only has entries for echo/no-echo prompts; other messages get no response.
func (c *Conversation) Respond(prompts []Prompt) (map[int]string, error) {
	responses := make(map[int]string, len(prompts))
	for i, p := range prompts {
		switch p.Style {
		case PromptEchoOff, PromptEchoOn:
			view := c.cred.Snapshot()
			if view == nil {
				Error("PAM prompt %d has no credential to answer with", i)
				return nil, ErrConversationBuffer
			}
			// drop the terminator; PAM copies into its own C string
			responses[i] = string(view[:len(view)-1])
		case PromptErrorMsg:
			Info("PAM error: %s", p.Message)
		case PromptTextInfo:
			Info("PAM info: %s", p.Message)
		default:
			Debug("Ignoring PAM message of unknown style %d", p.Style)
		}
	}
	return responses, nil
}

// handle adapts Respond to the per-message callback of the PAM binding
func (c *Conversation) handle(style pam.Style, msg string) (string, error) {
	responses, err := c.Respond([]Prompt{{Style: promptStyle(style), Message: msg}})
	if err != nil {
		return "", err
	}
	return responses[0], nil
}

func promptStyle(style pam.Style) PromptStyle {
	switch style {
	case pam.PromptEchoOff:
		return PromptEchoOff
	case pam.PromptEchoOn:
		return PromptEchoOn
	case pam.ErrorMsg:
		return PromptErrorMsg
	case pam.TextInfo:
		return PromptTextInfo
	default:
		return PromptUnknown
	}
}

// PamAuthenticator handles PAM-based user authentication
type PamAuthenticator struct {
	serviceName string
	username    string
	conv        *Conversation
	tx          *pam.Transaction
}

// NewPamAuthenticator starts the PAM transaction used for the whole session
func NewPamAuthenticator(serviceName, username string) (*PamAuthenticator, error) {
	conv := &Conversation{}
	tx, err := pam.StartFunc(serviceName, username, conv.handle)
	if err != nil {
		return nil, fmt.Errorf("failed to start PAM transaction: %w", err)
	}

	Info("PAM transaction started (service=%s, user=%s)", serviceName, username)
	return &PamAuthenticator{
		serviceName: serviceName,
		username:    username,
		conv:        conv,
		tx:          tx,
	}, nil
}

// Authenticate verifies the typed credential
func (a *PamAuthenticator) Authenticate(cred *Credential) AuthResult {
	a.conv.Bind(cred)
	defer a.conv.Bind(nil)

	Info("Attempting authentication with password of length: %d", cred.Len())

	if err := a.tx.Authenticate(0); err != nil {
		return AuthResult{
			Success: false,
			Message: fmt.Sprintf("Authentication failed: %v", err),
		}
	}

	if err := a.tx.AcctMgmt(0); err != nil {
		return AuthResult{
			Success: false,
			Message: fmt.Sprintf("Account validation failed: %v", err),
		}
	}

	return AuthResult{
		Success: true,
		Message: "Authentication successful",
	}
}
