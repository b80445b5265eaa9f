package onboarding

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"neighborvendors_backend/internal/common"
	"neighborvendors_backend/internal/shared"
)

// SessionObserver turns the Authorization header into the session value
// object. Verification happens at most once per request; the result is cached
// in the gin context so every downstream consumer sees the same session.
type SessionObserver struct {
	provider shared.AuthProvider
	logger   *zap.Logger
}

// NewSessionObserver creates the observer.
func NewSessionObserver(provider shared.AuthProvider, logger *zap.Logger) *SessionObserver {
	return &SessionObserver{provider: provider, logger: logger.Named("SessionObserver")}
}

// Observe extracts and verifies the bearer token from the request. Returns
// the cached session when the request was already observed.
func (o *SessionObserver) Observe(c *gin.Context) (*shared.Session, error) {
	if cached, exists := c.Get(common.SessionKey); exists {
		if session, ok := cached.(*shared.Session); ok {
			return session, nil
		}
	}

	authHeader := c.GetHeader(common.AuthorizationHeader)
	if authHeader == "" {
		return nil, common.ErrUnauthorized.WithDetails("Authorization header is required.")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], common.AuthorizationTypeBearer) {
		return nil, common.ErrUnauthorized.WithDetails("Authorization header format must be 'Bearer <token>'.")
	}

	session, err := o.provider.VerifySessionToken(c.Request.Context(), parts[1])
	if err != nil {
		return nil, err
	}

	c.Set(common.SessionKey, session)
	return session, nil
}

// SessionFromContext returns the session cached by a prior Observe, or nil.
func SessionFromContext(c *gin.Context) *shared.Session {
	val, exists := c.Get(common.SessionKey)
	if !exists {
		return nil
	}
	session, ok := val.(*shared.Session)
	if !ok {
		return nil
	}
	return session
}
