package community

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"neighborvendors_backend/internal/common"
	"neighborvendors_backend/internal/config"
	"neighborvendors_backend/internal/shared"
)

type stubUsers struct {
	shared.Service
	profiles map[uuid.UUID]*shared.User
}

func (s *stubUsers) GetByID(_ context.Context, id uuid.UUID) (*shared.User, error) {
	if p, ok := s.profiles[id]; ok {
		return p, nil
	}
	return nil, common.ErrNotFound
}

type stubRepo struct {
	Repository
	mappings    map[string]*HouseholdCommunityMapping
	memberships map[uuid.UUID]*Membership
}

func (s *stubRepo) FindLatestMappingByAddress(_ context.Context, addr string) (*HouseholdCommunityMapping, error) {
	if m, ok := s.mappings[addr]; ok {
		return m, nil
	}
	return nil, common.ErrNotFound
}

func (s *stubRepo) FindMembership(_ context.Context, userID uuid.UUID) (*Membership, error) {
	if m, ok := s.memberships[userID]; ok {
		return m, nil
	}
	return nil, common.ErrNotFound
}

func newTestResolver(users *stubUsers, repo *stubRepo) *Resolver {
	cfg := &config.Config{DefaultCommunity: "general"}
	return NewResolver(users, repo, cfg, zap.NewNop())
}

func TestResolvePrecedence(t *testing.T) {
	userID := uuid.New()
	addr := "123-oak-st"

	fullProfile := &shared.User{
		ID:                userID,
		NormalizedAddress: &addr,
		SignupSource:      shared.SignupSource{Kind: shared.SourceCommunity, Community: "from-source"},
		CreatedAt:         time.Now(),
	}

	tests := []struct {
		name       string
		explicit   string
		profile    *shared.User
		mapping    string
		membership string
		want       string
	}{
		{
			name:     "explicit request community wins over everything",
			explicit: "from-url",
			profile:  fullProfile,
			mapping:  "from-mapping", membership: "from-membership",
			want: "from-url",
		},
		{
			name:    "signup source beats address mapping",
			profile: fullProfile,
			mapping: "from-mapping", membership: "from-membership",
			want: "from-source",
		},
		{
			name: "address mapping beats membership",
			profile: &shared.User{
				ID:                userID,
				NormalizedAddress: &addr,
				SignupSource:      shared.SignupSource{Kind: shared.SourceDirect},
			},
			mapping: "from-mapping", membership: "from-membership",
			want: "from-mapping",
		},
		{
			name: "membership is consulted when mapping misses",
			profile: &shared.User{
				ID:           userID,
				SignupSource: shared.SignupSource{Kind: shared.SourceDirect},
			},
			membership: "from-membership",
			want:       "from-membership",
		},
		{
			name: "default community is the last resort",
			profile: &shared.User{
				ID:           userID,
				SignupSource: shared.SignupSource{Kind: shared.SourceInvite, InviteCode: "abc"},
			},
			want: "general",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			users := &stubUsers{profiles: map[uuid.UUID]*shared.User{userID: tc.profile}}
			repo := &stubRepo{
				mappings:    map[string]*HouseholdCommunityMapping{},
				memberships: map[uuid.UUID]*Membership{},
			}
			if tc.mapping != "" {
				repo.mappings[addr] = &HouseholdCommunityMapping{Community: tc.mapping}
			}
			if tc.membership != "" {
				repo.memberships[userID] = &Membership{Community: tc.membership}
			}

			got, err := newTestResolver(users, repo).Resolve(context.Background(), userID, tc.explicit)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolveUnknownUser(t *testing.T) {
	users := &stubUsers{profiles: map[uuid.UUID]*shared.User{}}
	repo := &stubRepo{}
	_, err := newTestResolver(users, repo).Resolve(context.Background(), uuid.New(), "")
	require.Error(t, err)
}
