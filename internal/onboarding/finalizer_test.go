package onboarding

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"neighborvendors_backend/internal/common"
	"neighborvendors_backend/internal/community"
	"neighborvendors_backend/internal/config"
	"neighborvendors_backend/internal/shared"
)

type fakeCommunities struct {
	mu          sync.Mutex
	mappings    []*community.HouseholdCommunityMapping
	memberships map[uuid.UUID]string
}

func newFakeCommunities() *fakeCommunities {
	return &fakeCommunities{memberships: make(map[uuid.UUID]string)}
}

func (f *fakeCommunities) CreateOrGetMapping(_ context.Context, m *community.HouseholdCommunityMapping) (*community.HouseholdCommunityMapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.mappings {
		if existing.NormalizedAddress == m.NormalizedAddress && existing.Community == m.Community {
			return existing, nil
		}
	}
	f.mappings = append(f.mappings, m)
	return m, nil
}

func (f *fakeCommunities) FindLatestMappingByAddress(_ context.Context, addr string) (*community.HouseholdCommunityMapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.mappings) - 1; i >= 0; i-- {
		if f.mappings[i].NormalizedAddress == addr {
			return f.mappings[i], nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeCommunities) FindMembership(_ context.Context, userID uuid.UUID) (*community.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.memberships[userID]; ok {
		return &community.Membership{UserID: userID, Community: c}, nil
	}
	return nil, common.ErrNotFound
}

func (f *fakeCommunities) AddMembership(_ context.Context, userID uuid.UUID, c string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.memberships[userID]; !ok {
		f.memberships[userID] = c
	}
	return nil
}

var _ community.Repository = (*fakeCommunities)(nil)

type finalizerFixture struct {
	users       *fakeUsers
	provider    *fakeProvider
	communities *fakeCommunities
	router      *ReturnPathRouter
	finalizer   *Finalizer
	cfg         *config.Config
}

func newFinalizerFixture(t *testing.T) *finalizerFixture {
	t.Helper()
	cfg := &config.Config{
		DefaultCommunity:   "general",
		ContinuationSecret: "test-secret",
		ContinuationTTL:    30 * time.Minute,
		FinalizeGuardTTL:   10 * time.Minute,
		InvitePointsAward:  50,
	}
	users := newFakeUsers()
	provider := newFakeProvider()
	communities := newFakeCommunities()
	logger := zap.NewNop()

	store := NewMemoryStore()
	router := NewReturnPathRouter(store, cfg, logger)
	resolver := community.NewResolver(users, communities, cfg, logger)
	invites := NewInviteConsumer(users, cfg, logger)
	finalizer := NewFinalizer(users, provider, resolver, communities, router, invites, store, cfg, logger)

	return &finalizerFixture{
		users:       users,
		provider:    provider,
		communities: communities,
		router:      router,
		finalizer:   finalizer,
		cfg:         cfg,
	}
}

// consentedProfile plants a linked, terms-accepted profile and returns it with
// a matching session.
func (fx *finalizerFixture) consentedProfile(t *testing.T, email string, source shared.SignupSource) (*shared.User, *shared.Session) {
	t.Helper()
	subject := uuid.NewString()
	profile, err := fx.users.CreateProfile(context.Background(), shared.CreateProfileRequest{
		Email:        email,
		SignupSource: source,
		Subject:      &subject,
	})
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, fx.users.SetTermsAccepted(context.Background(), profile.ID, now))

	session := &shared.Session{
		Subject:       subject,
		Email:         email,
		Provider:      shared.ProviderPasswordOTP,
		EmailVerified: true,
		IssuedAt:      now,
	}
	return profile, session
}

func TestFinalizeSignInWithoutAccountDiscardsSession(t *testing.T) {
	fx := newFinalizerFixture(t)
	session := &shared.Session{Subject: "ghost-uid", Email: "ghost@example.com", EmailVerified: true, IssuedAt: time.Now()}

	_, err := fx.finalizer.Finalize(context.Background(), session, shared.IntentSignin, "")
	fe, ok := AsFlowError(err)
	require.True(t, ok)
	assert.Equal(t, KindNoAccountForSignIn, fe.Kind)
	assert.True(t, fe.Terminal)
	assert.Contains(t, fx.provider.revoked, "ghost-uid", "the dangling session is actively revoked")
}

func TestFinalizeDisabledAccountDiscardsSession(t *testing.T) {
	fx := newFinalizerFixture(t)
	profile, session := fx.consentedProfile(t, "disabled@example.com", shared.SignupSource{Kind: shared.SourceDirect})
	disabled := false
	profile.Verified = &disabled

	_, err := fx.finalizer.Finalize(context.Background(), session, shared.IntentSignin, "")
	fe, ok := AsFlowError(err)
	require.True(t, ok)
	assert.Equal(t, KindAccountDisabled, fe.Kind)
	assert.True(t, fe.Terminal)
	assert.Contains(t, fx.provider.revoked, session.Subject)
}

func TestFinalizeSignupWithoutProfileNeedsCompletion(t *testing.T) {
	fx := newFinalizerFixture(t)
	session := &shared.Session{Subject: "fresh-oauth-uid", Email: "oauth@example.com", EmailVerified: true, IssuedAt: time.Now()}

	decision, err := fx.finalizer.Finalize(context.Background(), session, shared.IntentSignup, "")
	require.NoError(t, err)
	assert.Equal(t, DecisionNeedsProfileCompletion, decision.Kind)
	assert.Empty(t, fx.provider.revoked)
}

func TestFinalizeRequiresConsentFirst(t *testing.T) {
	fx := newFinalizerFixture(t)
	subject := uuid.NewString()
	_, err := fx.users.CreateProfile(context.Background(), shared.CreateProfileRequest{
		Email:        "unconsented@example.com",
		SignupSource: shared.SignupSource{Kind: shared.SourceDirect},
		Subject:      &subject,
	})
	require.NoError(t, err)
	session := &shared.Session{Subject: subject, IssuedAt: time.Now()}

	decision, err := fx.finalizer.Finalize(context.Background(), session, shared.IntentSignin, "")
	require.NoError(t, err)
	assert.Equal(t, DecisionNeedsConsent, decision.Kind)
}

func TestFinalizeResolvedLandsOnCommunityHome(t *testing.T) {
	fx := newFinalizerFixture(t)
	profile, session := fx.consentedProfile(t, "home@example.com",
		shared.SignupSource{Kind: shared.SourceCommunity, Community: "maple-grove"})

	decision, err := fx.finalizer.Finalize(context.Background(), session, shared.IntentSignin, "")
	require.NoError(t, err)

	assert.Equal(t, DecisionResolved, decision.Kind)
	assert.Equal(t, "/communities/maple-grove", decision.Target)
	assert.Empty(t, decision.Notice)
	assert.True(t, decision.Welcome, "a just-created profile gets the welcome flag")
	assert.False(t, decision.Replayed)
	assert.Equal(t, "maple-grove", fx.communities.memberships[profile.ID], "membership is recorded")
}

func TestFinalizeReplaysFirstDecision(t *testing.T) {
	fx := newFinalizerFixture(t)
	_, session := fx.consentedProfile(t, "replay@example.com",
		shared.SignupSource{Kind: shared.SourceCommunity, Community: "maple-grove"})

	first, err := fx.finalizer.Finalize(context.Background(), session, shared.IntentSignin, "")
	require.NoError(t, err)
	require.False(t, first.Replayed)

	second, err := fx.finalizer.Finalize(context.Background(), session, shared.IntentSignin, "")
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Target, second.Target)
	assert.Equal(t, first.Kind, second.Kind)
}

func TestFinalizeResumesStoredReturnPath(t *testing.T) {
	fx := newFinalizerFixture(t)
	ctx := context.Background()
	_, session := fx.consentedProfile(t, "resume@example.com",
		shared.SignupSource{Kind: shared.SourceCommunity, Community: "maple-grove"})

	token, err := fx.router.Store(ctx, ReturnState{Path: "/communities/maple-grove/costs?vendor=7"})
	require.NoError(t, err)

	decision, err := fx.finalizer.Finalize(ctx, session, shared.IntentSignin, token)
	require.NoError(t, err)
	assert.Equal(t, "/communities/maple-grove/costs?vendor=7", decision.Target)
	assert.Empty(t, decision.Notice)
}

func TestFinalizeDiscardsMismatchedReturnPath(t *testing.T) {
	fx := newFinalizerFixture(t)
	ctx := context.Background()
	_, session := fx.consentedProfile(t, "mismatch@example.com",
		shared.SignupSource{Kind: shared.SourceCommunity, Community: "maple-grove"})

	token, err := fx.router.Store(ctx, ReturnState{Path: "/communities/other-grove/vendors"})
	require.NoError(t, err)

	decision, err := fx.finalizer.Finalize(ctx, session, shared.IntentSignin, token)
	require.NoError(t, err)
	assert.Equal(t, "/communities/maple-grove", decision.Target, "mismatched path is discarded for the resolved home")
	assert.NotEmpty(t, decision.Notice)
	assert.Contains(t, decision.Notice, "other-grove")
	assert.Contains(t, decision.Notice, "maple-grove")
}

func TestFinalizeExplicitCommunityOverridesStoredData(t *testing.T) {
	fx := newFinalizerFixture(t)
	ctx := context.Background()
	_, session := fx.consentedProfile(t, "explicit@example.com",
		shared.SignupSource{Kind: shared.SourceCommunity, Community: "maple-grove"})

	token, err := fx.router.Store(ctx, ReturnState{Community: "chosen-grove"})
	require.NoError(t, err)

	decision, err := fx.finalizer.Finalize(ctx, session, shared.IntentSignin, token)
	require.NoError(t, err)
	assert.Equal(t, "/communities/chosen-grove", decision.Target)
}

func TestFinalizeAwardsInvitePointsOnce(t *testing.T) {
	fx := newFinalizerFixture(t)
	ctx := context.Background()

	inviter, err := fx.users.CreateProfile(ctx, shared.CreateProfileRequest{
		Email:        "inviter@example.com",
		SignupSource: shared.SignupSource{Kind: shared.SourceDirect},
	})
	require.NoError(t, err)

	invitee, session := fx.consentedProfile(t, "invitee@example.com",
		shared.SignupSource{Kind: shared.SourceInvite, InviteCode: "inv-42"})

	token, err := fx.router.Store(ctx, ReturnState{InviteCode: "inv-42", InviterID: inviter.ID.String()})
	require.NoError(t, err)

	_, err = fx.finalizer.Finalize(ctx, session, shared.IntentSignin, token)
	require.NoError(t, err)

	inviterAfter, _ := fx.users.GetByID(ctx, inviter.ID)
	inviteeAfter, _ := fx.users.GetByID(ctx, invitee.ID)
	assert.Equal(t, int64(50), inviterAfter.PointsBalance)
	assert.Equal(t, int64(50), inviteeAfter.PointsBalance)

	// The replay serves the cached decision; no second award.
	_, err = fx.finalizer.Finalize(ctx, session, shared.IntentSignin, token)
	require.NoError(t, err)
	inviterAfter, _ = fx.users.GetByID(ctx, inviter.ID)
	assert.Equal(t, int64(50), inviterAfter.PointsBalance)
}

func TestFinalizeLaterSignInDoesNotReawardInvitePoints(t *testing.T) {
	fx := newFinalizerFixture(t)
	ctx := context.Background()

	inviter, err := fx.users.CreateProfile(ctx, shared.CreateProfileRequest{
		Email:        "inviter2@example.com",
		SignupSource: shared.SignupSource{Kind: shared.SourceDirect},
	})
	require.NoError(t, err)

	invitee, session := fx.consentedProfile(t, "returning@example.com",
		shared.SignupSource{Kind: shared.SourceInvite, InviteCode: "inv-99"})

	token, err := fx.router.Store(ctx, ReturnState{InviteCode: "inv-99", InviterID: inviter.ID.String()})
	require.NoError(t, err)

	_, err = fx.finalizer.Finalize(ctx, session, shared.IntentSignin, token)
	require.NoError(t, err)

	// A fresh sign-in a day later: new session, no continuation token. The
	// invite tag on the profile is history, not a pending reward.
	later := &shared.Session{
		Subject:       session.Subject,
		Email:         session.Email,
		Provider:      session.Provider,
		EmailVerified: true,
		IssuedAt:      session.IssuedAt.Add(24 * time.Hour),
	}
	decision, err := fx.finalizer.Finalize(ctx, later, shared.IntentSignin, "")
	require.NoError(t, err)
	assert.False(t, decision.Replayed, "a later session is a fresh computation, not a replay")

	inviterAfter, _ := fx.users.GetByID(ctx, inviter.ID)
	inviteeAfter, _ := fx.users.GetByID(ctx, invitee.ID)
	assert.Equal(t, int64(50), inviterAfter.PointsBalance)
	assert.Equal(t, int64(50), inviteeAfter.PointsBalance)
}

func TestFinalizeLinksVerifiedEmailToExistingProfile(t *testing.T) {
	fx := newFinalizerFixture(t)
	ctx := context.Background()

	// Profile created without a provider subject (fix-in-place repair left
	// it waiting for the magic-link sign-in).
	profile, err := fx.users.CreateProfile(ctx, shared.CreateProfileRequest{
		Email:        "linkme@example.com",
		SignupSource: shared.SignupSource{Kind: shared.SourceDirect},
	})
	require.NoError(t, err)
	require.NoError(t, fx.users.SetTermsAccepted(ctx, profile.ID, time.Now()))

	session := &shared.Session{
		Subject:       "magic-link-uid",
		Email:         "linkme@example.com",
		EmailVerified: true,
		IssuedAt:      time.Now(),
	}

	decision, err := fx.finalizer.Finalize(ctx, session, shared.IntentSignin, "")
	require.NoError(t, err)
	assert.Equal(t, DecisionResolved, decision.Kind)

	linked, err := fx.users.GetBySubject(ctx, "magic-link-uid")
	require.NoError(t, err)
	assert.Equal(t, profile.ID, linked.ID)
}

func TestFinalizeRecordsHouseholdMapping(t *testing.T) {
	fx := newFinalizerFixture(t)
	ctx := context.Background()

	subject := uuid.NewString()
	profile, err := fx.users.CreateProfile(ctx, shared.CreateProfileRequest{
		Email:        "household@example.com",
		Address:      "123 Oak Street",
		SignupSource: shared.SignupSource{Kind: shared.SourceCommunity, Community: "maple-grove"},
		Subject:      &subject,
	})
	require.NoError(t, err)
	require.NoError(t, fx.users.SetTermsAccepted(ctx, profile.ID, time.Now()))
	session := &shared.Session{Subject: subject, IssuedAt: time.Now()}

	_, err = fx.finalizer.Finalize(ctx, session, shared.IntentSignin, "")
	require.NoError(t, err)

	require.Len(t, fx.communities.mappings, 1)
	mapping := fx.communities.mappings[0]
	assert.Equal(t, *profile.NormalizedAddress, mapping.NormalizedAddress)
	assert.Equal(t, "maple-grove", mapping.Community)
	assert.Equal(t, community.ProvenanceOnboarding, mapping.Provenance)
}
