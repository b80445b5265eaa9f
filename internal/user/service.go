package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"neighborvendors_backend/internal/common"
	"neighborvendors_backend/internal/community"
	"neighborvendors_backend/internal/config"
	"neighborvendors_backend/internal/shared"
)

// ServiceImplementation implements the shared.Service profile-store interface.
type ServiceImplementation struct {
	repo   Repository
	cfg    *config.Config
	logger *zap.Logger
}

var _ shared.Service = (*ServiceImplementation)(nil)

// NewService creates a new profile service.
func NewService(repo Repository, cfg *config.Config, logger *zap.Logger) *ServiceImplementation {
	return &ServiceImplementation{repo: repo, cfg: cfg, logger: logger}
}

// ClassifyEmail is the Email-Status Oracle: approved when a verified profile
// exists, pending-review when a profile exists but has not been approved,
// unregistered when there is no profile at all.
func (s *ServiceImplementation) ClassifyEmail(ctx context.Context, email string) (shared.EmailStatus, error) {
	profile, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return shared.EmailUnregistered, nil
		}
		s.logger.Error("Email classification failed", zap.Error(err), zap.String("email", email))
		return "", err
	}
	if profile.Verified != nil && *profile.Verified {
		return shared.EmailApproved, nil
	}
	return shared.EmailPendingReview, nil
}

// GetByEmail retrieves a profile DTO by email.
func (s *ServiceImplementation) GetByEmail(ctx context.Context, email string) (*shared.User, error) {
	profile, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return profile.ToShared(), nil
}

// GetBySubject retrieves a profile DTO by its linked provider subject.
func (s *ServiceImplementation) GetBySubject(ctx context.Context, subject string) (*shared.User, error) {
	profile, err := s.repo.FindBySubject(ctx, subject)
	if err != nil {
		return nil, err
	}
	return profile.ToShared(), nil
}

// GetByID retrieves a profile DTO by ID.
func (s *ServiceImplementation) GetByID(ctx context.Context, id uuid.UUID) (*shared.User, error) {
	profile, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return profile.ToShared(), nil
}

// CreateProfile inserts a new profile from candidate signup data. The email
// unique index guarantees at most one profile per email; callers rely on the
// conflict signal surfacing unchanged.
func (s *ServiceImplementation) CreateProfile(ctx context.Context, req shared.CreateProfileRequest) (*shared.User, error) {
	profile := &User{}

	email := req.Email
	profile.Email = &email
	if req.DisplayName != "" {
		name := req.DisplayName
		profile.DisplayName = &name
	}
	if req.Address != "" {
		addr := req.Address
		profile.Address = &addr
		normalized := community.NormalizeAddress(req.Address)
		profile.NormalizedAddress = &normalized
	}
	source := req.SignupSource.String()
	profile.SignupSource = &source
	profile.Subject = req.Subject

	if err := s.repo.Create(ctx, profile); err != nil {
		if apiErr, ok := common.IsAPIError(err); ok {
			return nil, apiErr
		}
		s.logger.Error("Failed to create profile", zap.Error(err), zap.String("email", req.Email))
		return nil, err
	}

	s.logger.Info("Profile created", zap.String("userID", profile.ID.String()), zap.String("source", source))
	return profile.ToShared(), nil
}

// LinkSubject binds an existing profile to a provider subject.
func (s *ServiceImplementation) LinkSubject(ctx context.Context, id uuid.UUID, subject string) error {
	profile, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if profile.Subject != nil && *profile.Subject == subject {
		return nil
	}
	profile.Subject = &subject
	profile.UpdatedAt = time.Now()
	return s.repo.Update(ctx, profile)
}

// SetTermsAccepted records consent. Idempotent: a second call for an
// already-consented profile is a no-op success.
func (s *ServiceImplementation) SetTermsAccepted(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.repo.SetTermsAccepted(ctx, id, at)
}

// AddPoints adjusts the points balance (invite rewards).
func (s *ServiceImplementation) AddPoints(ctx context.Context, id uuid.UUID, delta int64) error {
	return s.repo.AddPoints(ctx, id, delta)
}
