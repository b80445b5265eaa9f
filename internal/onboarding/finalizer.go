package onboarding

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"neighborvendors_backend/internal/community"
	"neighborvendors_backend/internal/config"
	"neighborvendors_backend/internal/shared"
)

// DecisionKind classifies the finalize outcome.
type DecisionKind string

const (
	// DecisionResolved: onboarding is complete and Target is where the
	// client should navigate.
	DecisionResolved DecisionKind = "resolved"
	// DecisionNeedsConsent: the profile must accept the terms first.
	DecisionNeedsConsent DecisionKind = "needs-consent"
	// DecisionNeedsProfileCompletion: an OAuth signup authenticated before
	// any profile existed; the client collects profile data next.
	DecisionNeedsProfileCompletion DecisionKind = "needs-profile-completion"
)

// Decision is the sole externally observable output of a finalize call.
type Decision struct {
	Kind   DecisionKind `json:"kind"`
	Target string       `json:"target,omitempty"`
	// Notice carries the community-mismatch explanation when a stored
	// return path was discarded.
	Notice string `json:"notice,omitempty"`
	// Welcome marks a freshly created profile so the client can greet it.
	Welcome bool `json:"welcome,omitempty"`
	// Replayed marks a decision served from the idempotency guard.
	Replayed bool `json:"replayed,omitempty"`
}

const welcomeWindow = 15 * time.Minute

// Finalizer runs the post-authentication state machine that turns a verified
// provider session into a navigable application state. Re-entrant by
// construction: concurrent triggers for one session collapse through a
// single-flight group, and a rapid second trigger replays the first decision
// from the guard instead of recomputing it.
type Finalizer struct {
	users       shared.Service
	provider    shared.AuthProvider
	resolver    *community.Resolver
	communities community.Repository
	router      *ReturnPathRouter
	invites     *InviteConsumer
	guard       SingleUseStore
	group       singleflight.Group
	cfg         *config.Config
	logger      *zap.Logger
}

// NewFinalizer creates the finalizer.
func NewFinalizer(
	users shared.Service,
	provider shared.AuthProvider,
	resolver *community.Resolver,
	communities community.Repository,
	router *ReturnPathRouter,
	invites *InviteConsumer,
	guard SingleUseStore,
	cfg *config.Config,
	logger *zap.Logger,
) *Finalizer {
	return &Finalizer{
		users:       users,
		provider:    provider,
		resolver:    resolver,
		communities: communities,
		router:      router,
		invites:     invites,
		guard:       guard,
		cfg:         cfg,
		logger:      logger.Named("Finalizer"),
	}
}

// Finalize resolves the session into a Decision, or a FlowError when the
// session must be discarded.
func (f *Finalizer) Finalize(ctx context.Context, session *shared.Session, intent shared.Intent, continuationToken string) (*Decision, error) {
	key := fmt.Sprintf("%s:%d", session.Subject, session.IssuedAt.Unix())

	result, err, _ := f.group.Do(key, func() (interface{}, error) {
		return f.finalize(ctx, session, intent, continuationToken, key)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Decision), nil
}

func (f *Finalizer) finalize(ctx context.Context, session *shared.Session, intent shared.Intent, continuationToken, key string) (*Decision, error) {
	guardKey := "onboarding:finalize:" + key
	if raw, ok, err := f.guard.Get(ctx, guardKey); err != nil {
		return nil, TransientStoreError(err)
	} else if ok {
		var decision Decision
		if err := json.Unmarshal([]byte(raw), &decision); err == nil {
			decision.Replayed = true
			f.logger.Info("Replaying finalize decision", zap.String("subject", session.Subject))
			finalizeDecisions.WithLabelValues("replayed").Inc()
			return &decision, nil
		}
		f.logger.Warn("Discarding undecodable finalize guard entry", zap.String("key", guardKey))
	}

	profile, err := f.lookupProfile(ctx, session, intent)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		// OAuth signup authenticated before a profile exists.
		finalizeDecisions.WithLabelValues(string(DecisionNeedsProfileCompletion)).Inc()
		return &Decision{Kind: DecisionNeedsProfileCompletion, Target: "/onboarding/profile"}, nil
	}

	if profile.IsDisabled() {
		f.discardSession(ctx, session.Subject)
		return nil, NewTerminalFlowError(KindAccountDisabled,
			"This account has been disabled. Please contact the community administrators.")
	}

	if profile.TermsAcceptedAt == nil {
		finalizeDecisions.WithLabelValues(string(DecisionNeedsConsent)).Inc()
		return &Decision{Kind: DecisionNeedsConsent, Target: "/onboarding/consent"}, nil
	}

	decision, err := f.resolve(ctx, profile, continuationToken)
	if err != nil {
		return nil, err
	}

	// Only fully resolved decisions are guarded: intermediate states must
	// recompute once the visitor completes the missing step.
	if raw, err := json.Marshal(decision); err == nil {
		if _, _, err := f.guard.PutIfAbsent(ctx, guardKey, string(raw), f.cfg.FinalizeGuardTTL); err != nil {
			f.logger.Warn("Failed to store finalize guard; duplicates will recompute",
				zap.Error(err), zap.String("subject", session.Subject))
		}
	}

	finalizeDecisions.WithLabelValues(string(DecisionResolved)).Inc()
	return decision, nil
}

// lookupProfile finds the profile behind the session, linking the provider
// subject to a profile matched by verified email on first OAuth sign-in.
// Returns (nil, nil) only for a signup intent with no profile yet.
func (f *Finalizer) lookupProfile(ctx context.Context, session *shared.Session, intent shared.Intent) (*shared.User, error) {
	profile, err := f.users.GetBySubject(ctx, session.Subject)
	if err == nil {
		return profile, nil
	}
	if !isNotFound(err) {
		return nil, TransientStoreError(err)
	}

	if session.Email != "" && session.EmailVerified {
		profile, err = f.users.GetByEmail(ctx, session.Email)
		if err == nil {
			if err := f.users.LinkSubject(ctx, profile.ID, session.Subject); err != nil {
				return nil, TransientStoreError(err)
			}
			f.logger.Info("Linked provider subject to existing profile",
				zap.String("subject", session.Subject), zap.String("userID", profile.ID.String()))
			return profile, nil
		}
		if !isNotFound(err) {
			return nil, TransientStoreError(err)
		}
	}

	if intent == shared.IntentSignup {
		return nil, nil
	}

	f.discardSession(ctx, session.Subject)
	return nil, NewTerminalFlowError(KindNoAccountForSignIn,
		"No account exists for this sign-in. Please sign up first.")
}

// resolve computes the landing target from the resolver and the stored
// return path, consuming the continuation token exactly once.
func (f *Finalizer) resolve(ctx context.Context, profile *shared.User, continuationToken string) (*Decision, error) {
	state, err := f.router.Consume(ctx, continuationToken)
	if err != nil {
		return nil, TransientStoreError(err)
	}
	if state == nil {
		state = &ReturnState{}
	}

	resolved, err := f.resolver.Resolve(ctx, profile.ID, state.Community)
	if err != nil {
		return nil, TransientStoreError(err)
	}

	f.recordCommunityFacts(ctx, profile, resolved)

	// Invite rewards flow only through the continuation token: its jti is
	// consumed above, so the award happens at most once no matter how many
	// sessions the profile opens later. The durable signup-source tag is a
	// provenance record, not a pending reward.
	if state.InviteCode != "" {
		f.invites.Consume(ctx, profile.ID, state.InviterID)
	}

	decision := &Decision{Kind: DecisionResolved}
	home := "/communities/" + resolved

	switch {
	case state.Path == "":
		decision.Target = home
	default:
		pathCommunity := f.router.CommunityFromPath(state.Path)
		if pathCommunity == "" || pathCommunity == resolved {
			decision.Target = state.Path
		} else {
			decision.Target = home
			decision.Notice = fmt.Sprintf(
				"You were headed to the %s community, but your account belongs to %s.",
				pathCommunity, resolved)
		}
	}

	decision.Welcome = time.Since(profile.CreatedAt) < welcomeWindow
	return decision, nil
}

// recordCommunityFacts persists the address mapping and membership implied by
// a successful resolution. Best-effort: both writes are idempotent and a
// failure must not undo an otherwise complete onboarding.
func (f *Finalizer) recordCommunityFacts(ctx context.Context, profile *shared.User, resolved string) {
	if profile.NormalizedAddress != nil && *profile.NormalizedAddress != "" {
		userID := profile.ID
		mapping := &community.HouseholdCommunityMapping{
			NormalizedAddress: *profile.NormalizedAddress,
			Community:         resolved,
			CreatedBy:         &userID,
			Provenance:        community.ProvenanceOnboarding,
		}
		if profile.Address != nil {
			mapping.Address = *profile.Address
		}
		if _, err := f.communities.CreateOrGetMapping(ctx, mapping); err != nil {
			f.logger.Warn("Failed to record household mapping",
				zap.Error(err), zap.String("userID", profile.ID.String()))
		}
	}

	if err := f.communities.AddMembership(ctx, profile.ID, resolved); err != nil {
		f.logger.Warn("Failed to record community membership",
			zap.Error(err), zap.String("userID", profile.ID.String()))
	}
}

func (f *Finalizer) discardSession(ctx context.Context, subject string) {
	if err := f.provider.RevokeSessions(ctx, subject); err != nil {
		f.logger.Warn("Failed to revoke provider sessions", zap.Error(err), zap.String("subject", subject))
	}
}
