package onboarding

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"neighborvendors_backend/internal/common"
	"neighborvendors_backend/internal/shared"
)

// fakeUsers is an in-memory shared.Service with the same conflict and
// not-found signalling as the GORM-backed implementation.
type fakeUsers struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*shared.User

	createErr error
	getErr    error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{profiles: make(map[uuid.UUID]*shared.User)}
}

func (f *fakeUsers) ClassifyEmail(ctx context.Context, email string) (shared.EmailStatus, error) {
	profile, err := f.GetByEmail(ctx, email)
	if err != nil {
		if apiErr, ok := common.IsAPIError(err); ok && apiErr.StatusCode == 404 {
			return shared.EmailUnregistered, nil
		}
		return "", err
	}
	if profile.IsApproved() {
		return shared.EmailApproved, nil
	}
	return shared.EmailPendingReview, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*shared.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	needle := strings.ToLower(strings.TrimSpace(email))
	for _, p := range f.profiles {
		if p.Email != nil && *p.Email == needle {
			return p, nil
		}
	}
	return nil, common.ErrNotFound.WithDetails("No profile found for this email.")
}

func (f *fakeUsers) GetBySubject(_ context.Context, subject string) (*shared.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, p := range f.profiles {
		if p.Subject != nil && *p.Subject == subject {
			return p, nil
		}
	}
	return nil, common.ErrNotFound.WithDetails("No profile found for this subject.")
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*shared.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.profiles[id]; ok {
		return p, nil
	}
	return nil, common.ErrNotFound.WithDetails("No profile found for this ID.")
}

func (f *fakeUsers) CreateProfile(_ context.Context, req shared.CreateProfileRequest) (*shared.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	for _, p := range f.profiles {
		if p.Email != nil && *p.Email == email {
			return nil, common.ErrConflict.WithDetails("A profile with this email already exists.")
		}
	}
	profile := &shared.User{
		ID:           uuid.New(),
		Email:        &email,
		Subject:      req.Subject,
		SignupSource: req.SignupSource,
		CreatedAt:    time.Now(),
	}
	if req.DisplayName != "" {
		name := req.DisplayName
		profile.DisplayName = &name
	}
	if req.Address != "" {
		addr := req.Address
		profile.Address = &addr
		normalized := strings.ToLower(strings.ReplaceAll(addr, " ", "-"))
		profile.NormalizedAddress = &normalized
	}
	f.profiles[profile.ID] = profile
	return profile, nil
}

func (f *fakeUsers) LinkSubject(_ context.Context, id uuid.UUID, subject string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return common.ErrNotFound
	}
	p.Subject = &subject
	return nil
}

func (f *fakeUsers) SetTermsAccepted(_ context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return common.ErrNotFound
	}
	if p.TermsAcceptedAt == nil {
		p.TermsAcceptedAt = &at
	}
	return nil
}

func (f *fakeUsers) AddPoints(_ context.Context, id uuid.UUID, delta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return common.ErrNotFound
	}
	p.PointsBalance += delta
	return nil
}

var _ shared.Service = (*fakeUsers)(nil)

// fakeProvider is an in-memory shared.AuthProvider that records the calls the
// flows under test are expected to make.
type fakeProvider struct {
	mu         sync.Mutex
	identities map[string]*shared.Identity // keyed by email

	createCalls  int
	createFails  int // fail this many creations with a non-conflict error
	deleted      []string
	revoked      []string
	magicLinks   []string
	magicLinkErr error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{identities: make(map[string]*shared.Identity)}
}

func (f *fakeProvider) VerifySessionToken(_ context.Context, idToken string) (*shared.Session, error) {
	return nil, common.ErrUnauthorized
}

func (f *fakeProvider) LookupIdentity(_ context.Context, email string) (*shared.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.identities[email]; ok {
		return id, nil
	}
	return nil, common.ErrNotFound.WithDetails("No provider identity for this email.")
}

func (f *fakeProvider) CreateIdentity(_ context.Context, email, displayName string) (*shared.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if _, ok := f.identities[email]; ok {
		return nil, common.ErrConflict.WithDetails("A provider identity with this email already exists.")
	}
	if f.createFails > 0 {
		f.createFails--
		return nil, common.ErrServiceUnavailable.WithDetails("provider unavailable")
	}
	identity := &shared.Identity{
		Subject:         uuid.NewString(),
		Email:           email,
		CreatedAt:       time.Now(),
		SignInProviders: []string{"password"},
	}
	f.identities[email] = identity
	return identity, nil
}

func (f *fakeProvider) DeleteIdentity(_ context.Context, subject string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, subject)
	for email, id := range f.identities {
		if id.Subject == subject {
			delete(f.identities, email)
			return nil
		}
	}
	return common.ErrNotFound
}

func (f *fakeProvider) MagicLink(_ context.Context, email string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.magicLinkErr != nil {
		return "", f.magicLinkErr
	}
	f.magicLinks = append(f.magicLinks, email)
	return "https://auth.example.com/link?email=" + email, nil
}

func (f *fakeProvider) RevokeSessions(_ context.Context, subject string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, subject)
	return nil
}

var _ shared.AuthProvider = (*fakeProvider)(nil)

// seedIdentity plants a provider identity directly, as if a previous signup
// attempt had been interrupted after the handshake.
func (f *fakeProvider) seedIdentity(email string, age time.Duration, oauth bool) *shared.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	providers := []string{"password"}
	if oauth {
		providers = []string{"google.com"}
	}
	identity := &shared.Identity{
		Subject:         uuid.NewString(),
		Email:           email,
		CreatedAt:       time.Now().Add(-age),
		SignInProviders: providers,
	}
	f.identities[email] = identity
	return identity
}
