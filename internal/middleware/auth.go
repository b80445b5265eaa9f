package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"neighborvendors_backend/internal/common"
	"neighborvendors_backend/internal/onboarding"
)

// AuthMiddleware verifies the provider bearer token through the session
// observer and caches the resulting session in the request context.
func AuthMiddleware(observer *onboarding.SessionObserver, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := observer.Observe(c)
		if err != nil {
			logger.Debug("Request authentication failed", zap.Error(err))
			common.RespondWithError(c, err)
			return
		}

		logger.Debug("Session observed",
			zap.String("subject", session.Subject),
			zap.String("provider", string(session.Provider)),
		)
		c.Next()
	}
}
