package onboarding

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"neighborvendors_backend/internal/common"
	"neighborvendors_backend/internal/notification"
	"neighborvendors_backend/internal/shared"
)

type handlerFixture struct {
	*finalizerFixture
	engine *gin.Engine
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fx := newFinalizerFixture(t)
	fx.cfg.OrphanFastPathMaxAge = 48 * time.Hour
	logger := zap.NewNop()
	notify := notification.NewService(notification.NewNoop(), logger)
	repairer := NewOrphanRepairer(fx.users, fx.provider, notify, fx.cfg, logger)
	consent := NewConsentGate(fx.users, logger)
	observer := NewSessionObserver(fx.provider, logger)
	handler := NewHandler(fx.users, fx.provider, repairer, fx.router, fx.finalizer, consent, observer, notify, fx.cfg, logger)

	engine := gin.New()
	group := engine.Group("/api/v1")
	handler.RegisterRoutes(group, func(c *gin.Context) { c.Next() })

	return &handlerFixture{finalizerFixture: fx, engine: engine}
}

func (fx *handlerFixture) postSignup(t *testing.T, body gin.H) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/onboarding/signup", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	fx.engine.ServeHTTP(rec, req)

	var envelope common.SuccessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	data, _ := envelope.Data.(map[string]interface{})
	return rec, data
}

func TestSignupHandlerApprovedEmailDegradesToSignInLink(t *testing.T) {
	fx := newHandlerFixture(t)

	profile, _ := fx.consentedProfile(t, "member@example.com", shared.SignupSource{Kind: shared.SourceDirect})
	approved := true
	profile.Verified = &approved

	rec, data := fx.postSignup(t, gin.H{"email": "member@example.com"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sign-in-link-sent", data["outcome"])
	assert.Equal(t, true, data["magic_link_sent"])
	assert.Contains(t, fx.provider.magicLinks, "member@example.com")
	assert.Zero(t, fx.provider.createCalls, "an approved email must never reach the creation path")
}

func TestSignupHandlerPendingEmailShortCircuits(t *testing.T) {
	fx := newHandlerFixture(t)

	// Profile exists but review has not concluded: Verified is still nil.
	_, _ = fx.consentedProfile(t, "waiting@example.com", shared.SignupSource{Kind: shared.SourceDirect})

	rec, data := fx.postSignup(t, gin.H{"email": "waiting@example.com"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "already-pending", data["outcome"])
	assert.Empty(t, fx.provider.magicLinks, "a pending email gets no sign-in link")
	assert.Zero(t, fx.provider.createCalls)
}

func TestSignupHandlerClassificationFailureFallsThroughToSignup(t *testing.T) {
	fx := newHandlerFixture(t)

	// The classification lookup is down; the creation path's own conflict
	// signal still protects registered emails, so the signup proceeds.
	fx.users.getErr = common.ErrServiceUnavailable.WithDetails("store down")

	rec, data := fx.postSignup(t, gin.H{"email": "fresh@example.com", "display_name": "Fresh Resident"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, string(OutcomeCreated), data["outcome"])
	_, err := fx.provider.LookupIdentity(context.Background(), "fresh@example.com")
	assert.NoError(t, err, "the provider identity was created")
}
