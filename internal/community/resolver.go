package community

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"neighborvendors_backend/internal/common"
	"neighborvendors_backend/internal/config"
	"neighborvendors_backend/internal/shared"
)

// Resolver derives the target community for a user. Precedence, first match
// wins:
//
//  1. explicit community in the current request context — a deliberate user
//     choice that must never be overridden by stored data
//  2. the profile's signup-source tag when it names a community
//  3. the newest household mapping for the profile's normalized address
//  4. recorded community membership
//  5. the configured default community
//
// Address mapping sits low because it is the least reliable signal: shared
// households and multi-community users legitimately diverge from it.
type Resolver struct {
	users  shared.Service
	repo   Repository
	cfg    *config.Config
	logger *zap.Logger
}

// NewResolver creates a community resolver.
func NewResolver(users shared.Service, repo Repository, cfg *config.Config, logger *zap.Logger) *Resolver {
	return &Resolver{users: users, repo: repo, cfg: cfg, logger: logger.Named("CommunityResolver")}
}

// Resolve returns the community for userID. explicit is the community
// parameter from the current request/URL context, empty when absent.
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	profile, err := r.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}

	if profile.SignupSource.Kind == shared.SourceCommunity && profile.SignupSource.Community != "" {
		return profile.SignupSource.Community, nil
	}

	if profile.NormalizedAddress != nil && *profile.NormalizedAddress != "" {
		mapping, err := r.repo.FindLatestMappingByAddress(ctx, *profile.NormalizedAddress)
		if err == nil {
			return mapping.Community, nil
		}
		if !errors.Is(err, common.ErrNotFound) {
			return "", err
		}
	}

	membership, err := r.repo.FindMembership(ctx, userID)
	if err == nil {
		return membership.Community, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return "", err
	}

	r.logger.Debug("Falling back to default community", zap.String("userID", userID.String()))
	return r.cfg.DefaultCommunity, nil
}
