package firebase

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"neighborvendors_backend/internal/common"
	"neighborvendors_backend/internal/config"
	"neighborvendors_backend/internal/shared"
)

// Service adapts the Firebase Admin SDK to the shared.AuthProvider interface.
// Firebase owns sessions and identities; the application only reads and
// reconciles them.
type Service struct {
	authClient *auth.Client
	cfg        *config.Config
	logger     *zap.Logger
}

var _ shared.AuthProvider = (*Service)(nil)

// NewService initializes the Firebase Admin SDK.
func NewService(cfg *config.Config, logger *zap.Logger) (*Service, error) {
	if cfg.FirebaseServiceAccountKeyPath == "" {
		return nil, fmt.Errorf("firebase service account key path is required")
	}

	opt := option.WithCredentialsFile(filepath.Clean(cfg.FirebaseServiceAccountKeyPath))

	var app *firebase.App
	var err error
	if cfg.FirebaseProjectID != "" {
		app, err = firebase.NewApp(context.Background(), &firebase.Config{ProjectID: cfg.FirebaseProjectID}, opt)
	} else {
		app, err = firebase.NewApp(context.Background(), nil, opt)
	}
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	authClient, err := app.Auth(context.Background())
	if err != nil {
		return nil, fmt.Errorf("error getting Firebase Auth client: %w", err)
	}

	logger.Info("Firebase Admin SDK initialized successfully.")
	return &Service{authClient: authClient, cfg: cfg, logger: logger}, nil
}

// VerifySessionToken verifies a provider ID token and folds it into the
// application's session value object.
func (s *Service) VerifySessionToken(ctx context.Context, idToken string) (*shared.Session, error) {
	if idToken == "" {
		return nil, common.ErrUnauthorized.WithDetails("ID token must not be empty.")
	}

	token, err := s.authClient.VerifyIDToken(ctx, idToken)
	if err != nil {
		s.logger.Warn("Firebase ID token verification failed", zap.Error(err))
		return nil, common.ErrUnauthorized.WithDetails("Session token verification failed.")
	}

	session := &shared.Session{
		Subject:  token.UID,
		Provider: providerKind(token.Firebase.SignInProvider),
		IssuedAt: time.Unix(token.IssuedAt, 0),
	}
	if email, ok := token.Claims["email"].(string); ok {
		session.Email = email
	}
	if verified, ok := token.Claims["email_verified"].(bool); ok {
		session.EmailVerified = verified
	}

	s.logger.Debug("Provider session verified", zap.String("subject", session.Subject))
	return session, nil
}

// LookupIdentity fetches the provider-side account for an email, if any.
func (s *Service) LookupIdentity(ctx context.Context, email string) (*shared.Identity, error) {
	record, err := s.authClient.GetUserByEmail(ctx, email)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return nil, common.ErrNotFound.WithDetails("No provider identity for this email.")
		}
		s.logger.Error("Provider identity lookup failed", zap.Error(err), zap.String("email", email))
		return nil, fmt.Errorf("provider identity lookup: %w", err)
	}

	identity := &shared.Identity{
		Subject:       record.UID,
		Email:         record.Email,
		EmailVerified: record.EmailVerified,
	}
	if record.UserMetadata != nil {
		identity.CreatedAt = time.UnixMilli(record.UserMetadata.CreationTimestamp)
	}
	for _, info := range record.ProviderUserInfo {
		identity.SignInProviders = append(identity.SignInProviders, info.ProviderID)
	}
	return identity, nil
}

// CreateIdentity provisions a password-less provider account for a signup.
// An already-registered email surfaces as common.ErrConflict, the signal the
// orphan detector branches on.
func (s *Service) CreateIdentity(ctx context.Context, email, displayName string) (*shared.Identity, error) {
	params := (&auth.UserToCreate{}).Email(email)
	if displayName != "" {
		params = params.DisplayName(displayName)
	}

	record, err := s.authClient.CreateUser(ctx, params)
	if err != nil {
		if auth.IsEmailAlreadyExists(err) {
			return nil, common.ErrConflict.WithDetails("A provider identity with this email already exists.")
		}
		s.logger.Error("Failed to create provider identity", zap.Error(err), zap.String("email", email))
		return nil, fmt.Errorf("create provider identity: %w", err)
	}

	s.logger.Info("Provider identity created", zap.String("subject", record.UID))
	identity := &shared.Identity{
		Subject:         record.UID,
		Email:           record.Email,
		EmailVerified:   record.EmailVerified,
		SignInProviders: []string{"password"},
	}
	if record.UserMetadata != nil {
		identity.CreatedAt = time.UnixMilli(record.UserMetadata.CreationTimestamp)
	}
	return identity, nil
}

// DeleteIdentity removes a dangling provider account (fast-path orphan deletion).
func (s *Service) DeleteIdentity(ctx context.Context, subject string) error {
	if err := s.authClient.DeleteUser(ctx, subject); err != nil {
		s.logger.Error("Failed to delete provider identity", zap.Error(err), zap.String("subject", subject))
		return fmt.Errorf("delete provider identity: %w", err)
	}
	s.logger.Info("Deleted dangling provider identity", zap.String("subject", subject))
	return nil
}

// MagicLink generates a one-time email sign-in link for the given address.
// Delivery happens over the notification side-channel.
func (s *Service) MagicLink(ctx context.Context, email string) (string, error) {
	settings := &auth.ActionCodeSettings{
		URL:             s.cfg.AppBaseURL + s.cfg.MagicLinkRedirectPath,
		HandleCodeInApp: true,
	}
	link, err := s.authClient.EmailSignInLink(ctx, email, settings)
	if err != nil {
		s.logger.Error("Failed to generate magic link", zap.Error(err), zap.String("email", email))
		return "", fmt.Errorf("generate magic link: %w", err)
	}
	return link, nil
}

// RevokeSessions invalidates all refresh tokens for a subject. Used to
// actively discard sessions for sign-in-without-account and disabled-account
// outcomes rather than leaving them dangling.
func (s *Service) RevokeSessions(ctx context.Context, subject string) error {
	if err := s.authClient.RevokeRefreshTokens(ctx, subject); err != nil {
		s.logger.Error("Failed to revoke provider sessions", zap.Error(err), zap.String("subject", subject))
		return fmt.Errorf("revoke provider sessions: %w", err)
	}
	s.logger.Info("Revoked provider sessions", zap.String("subject", subject))
	return nil
}

// Identities pages through provider accounts for the orphan sweep job.
func (s *Service) Identities(ctx context.Context, visit func(*shared.Identity) bool) error {
	iter := s.authClient.Users(ctx, "")
	for {
		record, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return fmt.Errorf("iterate provider identities: %w", err)
		}
		identity := &shared.Identity{
			Subject:       record.UID,
			Email:         record.Email,
			EmailVerified: record.EmailVerified,
		}
		if record.UserMetadata != nil {
			identity.CreatedAt = time.UnixMilli(record.UserMetadata.CreationTimestamp)
		}
		for _, info := range record.ProviderUserInfo {
			identity.SignInProviders = append(identity.SignInProviders, info.ProviderID)
		}
		if !visit(identity) {
			return nil
		}
	}
}

func providerKind(signInProvider string) shared.ProviderKind {
	switch signInProvider {
	case "google.com":
		return shared.ProviderGoogle
	default:
		return shared.ProviderPasswordOTP
	}
}
