package onboarding

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"neighborvendors_backend/internal/config"
)

// Route prefixes that count as the application's own navigation namespace.
// Anything else is rejected to keep the return path from becoming an open
// redirect.
var allowedPathPrefixes = []string{
	"/communities",
	"/vendors",
	"/costs",
	"/profile",
	"/points",
	"/invites",
}

// ReturnState is everything carried across the authentication redirect:
// the page the visitor was on, the community context they arrived through,
// and any pending invite.
type ReturnState struct {
	Path           string `json:"path,omitempty"`
	Community      string `json:"community,omitempty"`
	InviteCode     string `json:"invite_code,omitempty"`
	InviterID      string `json:"inviter_id,omitempty"`
	PrefillAddress string `json:"prefill_address,omitempty"`
}

type continuationClaims struct {
	jwt.RegisteredClaims
	ReturnPath     string `json:"rp,omitempty"`
	Community      string `json:"cm,omitempty"`
	InviteCode     string `json:"iv,omitempty"`
	InviterID      string `json:"ivr,omitempty"`
	PrefillAddress string `json:"pa,omitempty"`
}

// ReturnPathRouter issues and consumes signed continuation tokens. The token
// replaces client-held local storage: its signature makes the state
// tamper-proof across the redirect chain, and the jti recorded in the
// single-use store makes consumption at-most-once even when the finalizer is
// triggered twice.
type ReturnPathRouter struct {
	store  SingleUseStore
	cfg    *config.Config
	logger *zap.Logger
}

// NewReturnPathRouter creates the router.
func NewReturnPathRouter(store SingleUseStore, cfg *config.Config, logger *zap.Logger) *ReturnPathRouter {
	return &ReturnPathRouter{store: store, cfg: cfg, logger: logger.Named("ReturnPath")}
}

// Store captures pre-authentication state and returns the continuation token
// to thread through the redirect. Called only for unauthenticated visitors
// being sent away from a protected page.
func (r *ReturnPathRouter) Store(ctx context.Context, state ReturnState) (string, error) {
	if state.Path != "" && !r.IsValidPath(state.Path) {
		return "", fmt.Errorf("return path %q is outside the application namespace", state.Path)
	}

	now := time.Now()
	jti := uuid.NewString()
	claims := continuationClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(r.cfg.ContinuationTTL)),
			Issuer:    "neighborvendors_onboarding",
		},
		ReturnPath:     state.Path,
		Community:      state.Community,
		InviteCode:     state.InviteCode,
		InviterID:      state.InviterID,
		PrefillAddress: state.PrefillAddress,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(r.cfg.ContinuationSecret))
	if err != nil {
		return "", fmt.Errorf("sign continuation token: %w", err)
	}

	if err := r.store.Put(ctx, continuationKey(jti), "1", r.cfg.ContinuationTTL); err != nil {
		return "", fmt.Errorf("register continuation token: %w", err)
	}
	return token, nil
}

// Consume validates the token and claims its jti. Returns (nil, nil) when
// the token is absent, expired, invalid, or already consumed: a missing
// return path is an expected state, not an error.
func (r *ReturnPathRouter) Consume(ctx context.Context, token string) (*ReturnState, error) {
	if token == "" {
		return nil, nil
	}

	claims := &continuationClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(r.cfg.ContinuationSecret), nil
	})
	if err != nil || !parsed.Valid {
		r.logger.Warn("Discarding invalid continuation token", zap.Error(err))
		return nil, nil
	}

	_, ok, err := r.store.Take(ctx, continuationKey(claims.ID))
	if err != nil {
		return nil, err
	}
	if !ok {
		r.logger.Debug("Continuation token already consumed", zap.String("jti", claims.ID))
		return nil, nil
	}

	return &ReturnState{
		Path:           claims.ReturnPath,
		Community:      claims.Community,
		InviteCode:     claims.InviteCode,
		InviterID:      claims.InviterID,
		PrefillAddress: claims.PrefillAddress,
	}, nil
}

// IsValidPath rejects anything outside the application's own routing
// namespace: absolute URLs, protocol-relative URLs, and unknown prefixes.
func (r *ReturnPathRouter) IsValidPath(path string) bool {
	if path == "" || !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") {
		return false
	}
	if strings.ContainsAny(path, "\\\r\n") {
		return false
	}
	parsed, err := url.Parse(path)
	if err != nil || parsed.Scheme != "" || parsed.Host != "" {
		return false
	}
	for _, prefix := range allowedPathPrefixes {
		if parsed.Path == prefix || strings.HasPrefix(parsed.Path, prefix+"/") {
			return true
		}
	}
	return false
}

// CommunityFromPath extracts the community segment from a
// /communities/<name>... path, or "" when the path carries no community.
func (r *ReturnPathRouter) CommunityFromPath(path string) string {
	parsed, err := url.Parse(path)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) >= 2 && segments[0] == "communities" && segments[1] != "" {
		return segments[1]
	}
	return ""
}

func continuationKey(jti string) string {
	return "onboarding:continuation:" + jti
}
