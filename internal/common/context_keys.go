package common

const (
	// AuthorizationHeader is the header name for the provider ID token.
	AuthorizationHeader = "Authorization"
	// AuthorizationTypeBearer is the prefix for Bearer tokens.
	AuthorizationTypeBearer = "Bearer"
	// SessionKey is the gin context key holding the shared.Session value.
	SessionKey = "session"
	// UserIDKey is the gin context key for the resolved profile ID.
	UserIDKey = "userID"
)
