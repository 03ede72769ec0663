// Package vault implements the vault core behind the chat transport:
// master-password authentication, the session lifecycle, the field codec
// that is the only component allowed to cross the plaintext/ciphertext
// boundary, and the conversational capture engine driving the flows.
package vault

import "errors"

var (
	// ErrAuthenticationFailed covers both a wrong password and an unknown
	// user. The two cases are deliberately indistinguishable to callers.
	ErrAuthenticationFailed = errors.New("vault: authentication failed")

	// ErrSessionLocked means the action needs an unlocked, fresh session.
	ErrSessionLocked = errors.New("vault: session locked")

	// ErrFlowInProgress means a capture flow is already active for the
	// user; it must be cancelled before a new one starts.
	ErrFlowInProgress = errors.New("vault: a capture flow is already in progress")

	// ErrNoActiveFlow means input arrived with no capture flow running.
	ErrNoActiveFlow = errors.New("vault: no active flow")
)
