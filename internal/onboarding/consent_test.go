package onboarding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"neighborvendors_backend/internal/shared"
)

func TestConsentGate(t *testing.T) {
	users := newFakeUsers()
	gate := NewConsentGate(users, zap.NewNop())
	ctx := context.Background()

	profile, err := users.CreateProfile(ctx, shared.CreateProfileRequest{
		Email:        "consent@example.com",
		SignupSource: shared.SignupSource{Kind: shared.SourceDirect},
	})
	require.NoError(t, err)

	needs, err := gate.NeedsConsent(ctx, profile.ID)
	require.NoError(t, err)
	assert.True(t, needs)

	require.NoError(t, gate.RecordConsent(ctx, profile.ID))

	needs, err = gate.NeedsConsent(ctx, profile.ID)
	require.NoError(t, err)
	assert.False(t, needs)

	// Replaying the consent form is a no-op success.
	stored, err := users.GetByID(ctx, profile.ID)
	require.NoError(t, err)
	first := *stored.TermsAcceptedAt

	require.NoError(t, gate.RecordConsent(ctx, profile.ID))
	stored, err = users.GetByID(ctx, profile.ID)
	require.NoError(t, err)
	assert.True(t, stored.TermsAcceptedAt.Equal(first))
}
