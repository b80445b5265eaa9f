package notification

import "github.com/google/uuid"

// Routing keys on the onboarding topic exchange.
const (
	KeySignupReceived  = "onboarding.signup.received"
	KeyMagicLinkIssued = "onboarding.magiclink.issued"
	KeyOrphanFlagged   = "onboarding.orphan.flagged"
)

// SignupReceived tells admins a new resident signed up and awaits review.
type SignupReceived struct {
	UserID      uuid.UUID `json:"user_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	Community   string    `json:"community,omitempty"`
}

// MagicLinkIssued asks the mailer to deliver a one-time sign-in link.
type MagicLinkIssued struct {
	Email string `json:"email"`
	Link  string `json:"link"`
}

// OrphanFlagged reports a provider identity with no profile found by the
// sweep job.
type OrphanFlagged struct {
	Subject string `json:"subject"`
	Email   string `json:"email,omitempty"`
	AgeDays int    `json:"age_days"`
}
