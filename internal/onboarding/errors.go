package onboarding

import (
	"errors"
	"fmt"

	"neighborvendors_backend/internal/common"
)

// Kind is the machine-readable classification of an onboarding flow outcome.
type Kind string

const (
	// KindProviderRejected: the authentication handshake itself failed.
	// Recoverable by retrying the authentication step.
	KindProviderRejected Kind = "PROVIDER_REJECTED"
	// KindNotOrphanConflict: signup for an email that already has a complete
	// profile. Not an error to the user; routed to sign-in.
	KindNotOrphanConflict Kind = "NOT_ORPHAN_CONFLICT"
	// KindOrphanUnrepairable: neither fast-path deletion nor fix-in-place
	// succeeded. Terminal for this attempt.
	KindOrphanUnrepairable Kind = "ORPHAN_UNREPAIRABLE"
	// KindNoAccountForSignIn: a sign-in produced a session with no backing
	// profile. The session is actively discarded.
	KindNoAccountForSignIn Kind = "NO_ACCOUNT_FOR_SIGNIN"
	// KindAccountDisabled: profile exists but is administratively
	// de-verified. Session is discarded.
	KindAccountDisabled Kind = "ACCOUNT_DISABLED"
	// KindCommunityMismatch: resolved community differs from the return
	// path's embedded community. Informational, not fatal.
	KindCommunityMismatch Kind = "COMMUNITY_MISMATCH"
	// KindTransientStoreError: an underlying store call timed out or
	// errored. Retryable; the attempt aborts without partial mutation.
	KindTransientStoreError Kind = "TRANSIENT_STORE_ERROR"
)

// FlowError carries the onboarding error taxonomy. Terminal kinds also end
// the authenticated session so the visitor cannot silently keep operating in
// an inconsistent state.
type FlowError struct {
	Kind     Kind
	Message  string
	Terminal bool
	cause    error
}

func (e *FlowError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *FlowError) Unwrap() error { return e.cause }

// NewFlowError builds a non-terminal flow error.
func NewFlowError(kind Kind, message string) *FlowError {
	return &FlowError{Kind: kind, Message: message}
}

// NewTerminalFlowError builds a terminal flow error.
func NewTerminalFlowError(kind Kind, message string) *FlowError {
	return &FlowError{Kind: kind, Message: message, Terminal: true}
}

// TransientStoreError wraps an unexpected store failure.
func TransientStoreError(cause error) *FlowError {
	return &FlowError{
		Kind:    KindTransientStoreError,
		Message: "A temporary error occurred. Please try again.",
		cause:   cause,
	}
}

// AsFlowError unwraps err into a FlowError when possible.
func AsFlowError(err error) (*FlowError, bool) {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// ToAPIError maps a flow error onto the HTTP error surface.
func (e *FlowError) ToAPIError() *common.APIError {
	switch e.Kind {
	case KindProviderRejected:
		return common.NewAPIError(401, string(e.Kind), e.Message)
	case KindNotOrphanConflict:
		return common.NewAPIError(409, string(e.Kind), e.Message)
	case KindOrphanUnrepairable, KindAccountDisabled:
		return common.NewAPIError(403, string(e.Kind), e.Message)
	case KindNoAccountForSignIn:
		return common.NewAPIError(404, string(e.Kind), e.Message)
	case KindTransientStoreError:
		return common.NewAPIError(503, string(e.Kind), e.Message)
	default:
		return common.NewAPIError(500, string(e.Kind), e.Message)
	}
}
