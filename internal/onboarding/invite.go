package onboarding

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"neighborvendors_backend/internal/config"
	"neighborvendors_backend/internal/shared"
)

// InviteConsumer awards referral points when a signup carries an invite code.
// Rewards are a courtesy: failures here are logged and never fail onboarding.
type InviteConsumer struct {
	users  shared.Service
	cfg    *config.Config
	logger *zap.Logger
}

// NewInviteConsumer creates the invite consumer.
func NewInviteConsumer(users shared.Service, cfg *config.Config, logger *zap.Logger) *InviteConsumer {
	return &InviteConsumer{users: users, cfg: cfg, logger: logger.Named("InviteConsumer")}
}

// Consume credits the inviter and the new member. inviterID may be empty when
// the continuation token carried only the code.
func (c *InviteConsumer) Consume(ctx context.Context, inviteeID uuid.UUID, inviterID string) {
	award := c.cfg.InvitePointsAward
	if award <= 0 {
		return
	}

	if err := c.users.AddPoints(ctx, inviteeID, award); err != nil {
		c.logger.Warn("Failed to award invitee points", zap.Error(err), zap.String("userID", inviteeID.String()))
	}

	if inviterID == "" {
		return
	}
	id, err := uuid.Parse(inviterID)
	if err != nil {
		c.logger.Warn("Invite carries malformed inviter id", zap.String("inviterID", inviterID))
		return
	}
	if err := c.users.AddPoints(ctx, id, award); err != nil {
		c.logger.Warn("Failed to award inviter points", zap.Error(err), zap.String("inviterID", inviterID))
	}
}
