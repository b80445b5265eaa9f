package shared

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProviderKind identifies how an authentication-provider session was established.
type ProviderKind string

const (
	// ProviderPasswordOTP covers magic-link / one-time-code sessions.
	ProviderPasswordOTP ProviderKind = "password-otp"
	// ProviderGoogle covers Google OAuth sessions.
	ProviderGoogle ProviderKind = "oauth:google"
)

// Session is the single source of truth for the authenticated state of a
// request. It is built once from a verified provider ID token and passed by
// value to every consumer; the application never persists it.
type Session struct {
	Subject       string
	Email         string
	Provider      ProviderKind
	EmailVerified bool
	IssuedAt      time.Time
}

// Intent distinguishes a sign-in attempt from a signup attempt at the
// provider callback. A sign-in with no backing profile must not create one.
type Intent string

const (
	IntentSignup Intent = "signup"
	IntentSignin Intent = "signin"
)

// EmailStatus is the Email-Status Oracle classification.
type EmailStatus string

const (
	EmailUnregistered  EmailStatus = "unregistered"
	EmailPendingReview EmailStatus = "pending-review"
	EmailApproved      EmailStatus = "approved"
)

// SignupSourceKind tags how a profile entered the system.
type SignupSourceKind string

const (
	SourceDirect    SignupSourceKind = "direct"
	SourceCommunity SignupSourceKind = "community"
	SourceInvite    SignupSourceKind = "invite"
)

// SignupSource is the tagged union stored as a composite string column
// ("community:<name>", "invite:<code>", "direct"). It is parsed exactly once
// at the store boundary; call sites never re-parse the raw string.
type SignupSource struct {
	Kind       SignupSourceKind
	Community  string
	InviteCode string
}

// ParseSignupSource decodes the raw column value.
func ParseSignupSource(raw string) SignupSource {
	switch {
	case strings.HasPrefix(raw, "community:"):
		return SignupSource{Kind: SourceCommunity, Community: strings.TrimPrefix(raw, "community:")}
	case strings.HasPrefix(raw, "invite:"):
		return SignupSource{Kind: SourceInvite, InviteCode: strings.TrimPrefix(raw, "invite:")}
	default:
		return SignupSource{Kind: SourceDirect}
	}
}

// String encodes the union back into its column form.
func (s SignupSource) String() string {
	switch s.Kind {
	case SourceCommunity:
		return "community:" + s.Community
	case SourceInvite:
		return "invite:" + s.InviteCode
	default:
		return string(SourceDirect)
	}
}

// User is the cross-feature profile DTO.
type User struct {
	ID                uuid.UUID
	Subject           *string
	Email             *string
	DisplayName       *string
	Address           *string
	NormalizedAddress *string
	SignupSource      SignupSource
	Verified          *bool
	TermsAcceptedAt   *time.Time
	PointsBalance     int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsApproved reports whether the profile passed review.
func (u *User) IsApproved() bool {
	return u.Verified != nil && *u.Verified
}

// IsDisabled reports whether the profile was administratively de-verified.
// A nil flag means pending review, not disabled.
func (u *User) IsDisabled() bool {
	return u.Verified != nil && !*u.Verified
}

// CreateProfileRequest carries candidate profile data into the store.
type CreateProfileRequest struct {
	Email        string
	DisplayName  string
	Address      string
	SignupSource SignupSource
	// Subject binds the profile to an existing provider identity
	// (fix-in-place repair and OAuth profile completion). Nil for a plain
	// signup where the provider identity is created afterwards.
	Subject *string
}

// Service defines the profile-store operations consumed by the onboarding core.
type Service interface {
	ClassifyEmail(ctx context.Context, email string) (EmailStatus, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetBySubject(ctx context.Context, subject string) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	CreateProfile(ctx context.Context, req CreateProfileRequest) (*User, error)
	LinkSubject(ctx context.Context, id uuid.UUID, subject string) error
	SetTermsAccepted(ctx context.Context, id uuid.UUID, at time.Time) error
	AddPoints(ctx context.Context, id uuid.UUID, delta int64) error
}

// Identity is a provider-side account as seen through the admin API. It may
// exist without any corresponding UserProfile (an orphan).
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	CreatedAt     time.Time
	// SignInProviders lists the provider-side sign-in methods attached to
	// the identity, e.g. "google.com" or "password".
	SignInProviders []string
}

// OAuthTagged reports whether the identity came from an OAuth handshake,
// which marks it eligible for fast-path deletion while recent.
func (i *Identity) OAuthTagged() bool {
	for _, p := range i.SignInProviders {
		if p != "password" {
			return true
		}
	}
	return false
}

// AuthProvider abstracts the external authentication provider's admin surface.
type AuthProvider interface {
	VerifySessionToken(ctx context.Context, idToken string) (*Session, error)
	LookupIdentity(ctx context.Context, email string) (*Identity, error)
	// CreateIdentity provisions a password-less provider account for a
	// signup. Returns common.ErrConflict-shaped errors when the email
	// already has an identity; orphan repair keys off that signal.
	CreateIdentity(ctx context.Context, email, displayName string) (*Identity, error)
	DeleteIdentity(ctx context.Context, subject string) error
	MagicLink(ctx context.Context, email string) (string, error)
	RevokeSessions(ctx context.Context, subject string) error
}
