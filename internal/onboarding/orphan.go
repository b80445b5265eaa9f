package onboarding

import (
	"context"
	"time"

	"go.uber.org/zap"

	"neighborvendors_backend/internal/common"
	"neighborvendors_backend/internal/config"
	"neighborvendors_backend/internal/notification"
	"neighborvendors_backend/internal/shared"
)

// SignupOutcome reports how a signup attempt concluded.
type SignupOutcome string

const (
	// OutcomeCreated: clean signup, new identity and profile.
	OutcomeCreated SignupOutcome = "created"
	// OutcomeRepairedFastPath: a dangling identity was deleted and recreated.
	OutcomeRepairedFastPath SignupOutcome = "repaired-fast-path"
	// OutcomeRepairedInPlace: a profile was built around the existing
	// identity; a magic link was issued so the visitor can sign into it.
	OutcomeRepairedInPlace SignupOutcome = "repaired-in-place"
)

// SignupResult is the successful return of SignupOrRepair.
type SignupResult struct {
	User    *shared.User
	Outcome SignupOutcome
	// MagicLinkSent is true for in-place repairs where sign-in continues
	// over the emailed link rather than the current form.
	MagicLinkSent bool
}

// OrphanRepairer owns the signup write path. An orphan is a provider identity
// with no backing profile, left behind by an interrupted signup; the repairer
// detects them from the identity-creation conflict and repairs without ever
// touching an email that has a complete profile.
type OrphanRepairer struct {
	users    shared.Service
	provider shared.AuthProvider
	notify   *notification.Service
	cfg      *config.Config
	logger   *zap.Logger
}

// NewOrphanRepairer creates the repairer.
func NewOrphanRepairer(users shared.Service, provider shared.AuthProvider, notify *notification.Service, cfg *config.Config, logger *zap.Logger) *OrphanRepairer {
	return &OrphanRepairer{
		users:    users,
		provider: provider,
		notify:   notify,
		cfg:      cfg,
		logger:   logger.Named("OrphanRepairer"),
	}
}

// SignupOrRepair runs a signup attempt for req. The happy path creates the
// provider identity and the profile. When the provider reports the email as
// taken, the repairer classifies the situation:
//
//   - a profile already exists: not an orphan, the caller routes to sign-in
//   - identity but no profile: an orphan; repaired either by deleting and
//     recreating the identity (recent, OAuth-tagged) or by building the
//     profile around it and issuing a magic link
func (r *OrphanRepairer) SignupOrRepair(ctx context.Context, req shared.CreateProfileRequest) (*SignupResult, error) {
	identity, err := r.provider.CreateIdentity(ctx, req.Email, req.DisplayName)
	if err == nil {
		subject := identity.Subject
		req.Subject = &subject
		profile, err := r.createProfile(ctx, req)
		if err != nil {
			return nil, err
		}
		return &SignupResult{User: profile, Outcome: OutcomeCreated}, nil
	}

	if !common.IsConflict(err) {
		r.logger.Error("Provider rejected identity creation", zap.Error(err), zap.String("email", req.Email))
		return nil, NewFlowError(KindProviderRejected, "The sign-up could not be completed with the authentication provider.")
	}

	// The email has a provider identity. Whether that is a conflict or an
	// orphan depends on the profile store.
	_, profileErr := r.users.GetByEmail(ctx, req.Email)
	if profileErr == nil {
		return nil, NewFlowError(KindNotOrphanConflict, "An account with this email already exists. Please sign in instead.")
	}
	if !isNotFound(profileErr) {
		return nil, TransientStoreError(profileErr)
	}

	identity, err = r.provider.LookupIdentity(ctx, req.Email)
	if err != nil {
		if isNotFound(err) {
			// The identity vanished between the conflict and the lookup.
			// Nothing left to repair; the visitor can simply retry.
			return nil, NewFlowError(KindProviderRejected, "The sign-up raced with another change. Please try again.")
		}
		return nil, TransientStoreError(err)
	}

	return r.repair(ctx, req, identity)
}

func (r *OrphanRepairer) repair(ctx context.Context, req shared.CreateProfileRequest, identity *shared.Identity) (*SignupResult, error) {
	age := time.Since(identity.CreatedAt)
	r.logger.Info("Orphaned provider identity detected",
		zap.String("email", req.Email),
		zap.String("subject", identity.Subject),
		zap.Duration("age", age))

	if identity.OAuthTagged() && age <= r.cfg.OrphanFastPathMaxAge {
		result, deleted, err := r.fastPath(ctx, req, identity)
		if err == nil {
			orphanRepairs.WithLabelValues("fast-path").Inc()
			return result, nil
		}
		if fe, ok := AsFlowError(err); ok && fe.Kind == KindNotOrphanConflict {
			return nil, err
		}
		if deleted {
			// The stale identity is gone but its replacement never
			// materialized. Binding a profile to the deleted subject would
			// hand out a dead account, so the attempt fails retryably: the
			// next submission finds no identity and runs the clean path.
			r.logger.Error("Fast-path repair failed after identity deletion",
				zap.Error(err), zap.String("email", req.Email))
			return nil, NewFlowError(KindProviderRejected,
				"The sign-up could not be completed with the authentication provider. Please try again.")
		}
		r.logger.Warn("Fast-path repair failed before deletion, falling back to fix-in-place",
			zap.Error(err), zap.String("email", req.Email))
	}

	result, err := r.fixInPlace(ctx, req, identity)
	if err != nil {
		if fe, ok := AsFlowError(err); ok && fe.Kind == KindNotOrphanConflict {
			// A concurrent signup completed the account first; that is a
			// sign-in situation, not a repair failure.
			return nil, err
		}
		r.logger.Error("Orphan repair exhausted", zap.Error(err), zap.String("email", req.Email))
		return nil, NewTerminalFlowError(KindOrphanUnrepairable,
			"Your earlier sign-up could not be completed automatically. Please contact the community administrators.")
	}
	orphanRepairs.WithLabelValues("fix-in-place").Inc()
	return result, nil
}

// fastPath deletes the dangling identity and restarts the clean signup.
// Safe only while the identity is provably an abandoned handshake: recent and
// OAuth-tagged, so no password or sign-in history can be lost. The deleted
// return reports whether the old identity was destroyed; once it is, falling
// back to fix-in-place is no longer an option for the caller.
func (r *OrphanRepairer) fastPath(ctx context.Context, req shared.CreateProfileRequest, identity *shared.Identity) (*SignupResult, bool, error) {
	if err := r.provider.DeleteIdentity(ctx, identity.Subject); err != nil {
		return nil, false, err
	}

	var fresh *shared.Identity
	err := retryWithBackoff(ctx, r.logger, req.Email, 3, func() error {
		created, err := r.provider.CreateIdentity(ctx, req.Email, req.DisplayName)
		if err != nil {
			if common.IsConflict(err) {
				// Someone recreated the identity in the gap. Not retryable.
				return permanent(err)
			}
			return err
		}
		fresh = created
		return nil
	})
	if err != nil {
		return nil, true, err
	}

	subject := fresh.Subject
	req.Subject = &subject
	profile, err := r.createProfile(ctx, req)
	if err != nil {
		return nil, true, err
	}
	return &SignupResult{User: profile, Outcome: OutcomeRepairedFastPath}, true, nil
}

// fixInPlace keeps the existing identity and builds the profile around it.
// The visitor cannot authenticate as that identity from the current form, so
// a magic link is issued for them to claim it.
func (r *OrphanRepairer) fixInPlace(ctx context.Context, req shared.CreateProfileRequest, identity *shared.Identity) (*SignupResult, error) {
	subject := identity.Subject
	req.Subject = &subject
	profile, err := r.createProfile(ctx, req)
	if err != nil {
		return nil, err
	}

	sent := false
	link, err := r.provider.MagicLink(ctx, req.Email)
	if err != nil {
		r.logger.Warn("Magic link generation failed after in-place repair",
			zap.Error(err), zap.String("email", req.Email))
	} else {
		r.notify.Emit(ctx, notification.KeyMagicLinkIssued, notification.MagicLinkIssued{
			Email: req.Email,
			Link:  link,
		})
		sent = true
	}

	return &SignupResult{User: profile, Outcome: OutcomeRepairedInPlace, MagicLinkSent: sent}, nil
}

func (r *OrphanRepairer) createProfile(ctx context.Context, req shared.CreateProfileRequest) (*shared.User, error) {
	profile, err := r.users.CreateProfile(ctx, req)
	if err != nil {
		if common.IsConflict(err) {
			// A concurrent signup won the profile insert.
			return nil, NewFlowError(KindNotOrphanConflict, "An account with this email already exists. Please sign in instead.")
		}
		return nil, TransientStoreError(err)
	}

	r.notify.Emit(ctx, notification.KeySignupReceived, notification.SignupReceived{
		UserID:      profile.ID,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Community:   req.SignupSource.Community,
	})
	return profile, nil
}

func isNotFound(err error) bool {
	if apiErr, ok := common.IsAPIError(err); ok {
		return apiErr.Code == common.ErrNotFound.Code
	}
	return false
}
