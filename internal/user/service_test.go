package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"neighborvendors_backend/internal/config"
	"neighborvendors_backend/internal/shared"
)

func newTestService(t *testing.T) (*ServiceImplementation, Repository) {
	t.Helper()
	repo := NewGORMRepository(newTestDB(t))
	cfg := &config.Config{DefaultCommunity: "general"}
	return NewService(repo, cfg, zap.NewNop()), repo
}

func boolPtr(b bool) *bool { return &b }

func TestClassifyEmail(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &User{
		Email:    strPtr("approved@example.com"),
		Verified: boolPtr(true),
	}))
	require.NoError(t, repo.Create(ctx, &User{
		Email: strPtr("pending@example.com"),
	}))
	require.NoError(t, repo.Create(ctx, &User{
		Email:    strPtr("disabled@example.com"),
		Verified: boolPtr(false),
	}))

	tests := []struct {
		name  string
		email string
		want  shared.EmailStatus
	}{
		{"unknown email is unregistered", "nobody@example.com", shared.EmailUnregistered},
		{"verified profile is approved", "approved@example.com", shared.EmailApproved},
		{"unreviewed profile is pending", "pending@example.com", shared.EmailPendingReview},
		// A de-verified account still has a profile row; it must never
		// report as unregistered or the signup path would try to recreate it.
		{"disabled profile is pending", "disabled@example.com", shared.EmailPendingReview},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.ClassifyEmail(ctx, tc.email)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCreateProfileEncodesSignupSourceAndAddress(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateProfile(ctx, shared.CreateProfileRequest{
		Email:        "new@example.com",
		DisplayName:  "New Resident",
		Address:      "123 Maple Street, Apt 4B",
		SignupSource: shared.SignupSource{Kind: shared.SourceCommunity, Community: "maple-grove"},
	})
	require.NoError(t, err)

	assert.Equal(t, shared.SourceCommunity, created.SignupSource.Kind)
	assert.Equal(t, "maple-grove", created.SignupSource.Community)
	require.NotNil(t, created.NormalizedAddress)
	assert.NotEmpty(t, *created.NormalizedAddress)
	assert.Nil(t, created.Verified, "new profiles start in pending review")
	assert.Nil(t, created.TermsAcceptedAt)
}

func TestLinkSubjectIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateProfile(ctx, shared.CreateProfileRequest{
		Email:        "link@example.com",
		SignupSource: shared.SignupSource{Kind: shared.SourceDirect},
	})
	require.NoError(t, err)

	require.NoError(t, svc.LinkSubject(ctx, created.ID, "firebase-uid-9"))
	require.NoError(t, svc.LinkSubject(ctx, created.ID, "firebase-uid-9"))

	stored, err := svc.GetBySubject(ctx, "firebase-uid-9")
	require.NoError(t, err)
	assert.Equal(t, created.ID, stored.ID)
}
