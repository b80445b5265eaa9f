package onboarding

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"neighborvendors_backend/internal/shared"
)

// ConsentGate records terms acceptance. RecordConsent is idempotent: the
// stored timestamp is the FIRST acceptance and never moves on replays, so
// double-submitted consent forms are harmless.
type ConsentGate struct {
	users  shared.Service
	logger *zap.Logger
}

// NewConsentGate creates the consent gate.
func NewConsentGate(users shared.Service, logger *zap.Logger) *ConsentGate {
	return &ConsentGate{users: users, logger: logger.Named("ConsentGate")}
}

// NeedsConsent reports whether the profile still has to accept the terms.
func (g *ConsentGate) NeedsConsent(ctx context.Context, userID uuid.UUID) (bool, error) {
	profile, err := g.users.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return profile.TermsAcceptedAt == nil, nil
}

// RecordConsent stores the acceptance timestamp if none exists yet.
func (g *ConsentGate) RecordConsent(ctx context.Context, userID uuid.UUID) error {
	if err := g.users.SetTermsAccepted(ctx, userID, time.Now()); err != nil {
		g.logger.Error("Failed to record consent", zap.Error(err), zap.String("userID", userID.String()))
		return TransientStoreError(err)
	}
	return nil
}
