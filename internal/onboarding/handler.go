package onboarding

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"neighborvendors_backend/internal/common"
	"neighborvendors_backend/internal/config"
	"neighborvendors_backend/internal/notification"
	"neighborvendors_backend/internal/shared"
	"neighborvendors_backend/internal/user"
)

// Handler exposes the onboarding flow over HTTP.
type Handler struct {
	users     shared.Service
	provider  shared.AuthProvider
	repairer  *OrphanRepairer
	router    *ReturnPathRouter
	finalizer *Finalizer
	consent   *ConsentGate
	observer  *SessionObserver
	notify    *notification.Service
	cfg       *config.Config
	logger    *zap.Logger
}

// NewHandler creates the onboarding handler.
func NewHandler(
	users shared.Service,
	provider shared.AuthProvider,
	repairer *OrphanRepairer,
	router *ReturnPathRouter,
	finalizer *Finalizer,
	consent *ConsentGate,
	observer *SessionObserver,
	notify *notification.Service,
	cfg *config.Config,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		users:     users,
		provider:  provider,
		repairer:  repairer,
		router:    router,
		finalizer: finalizer,
		consent:   consent,
		observer:  observer,
		notify:    notify,
		cfg:       cfg,
		logger:    logger.Named("OnboardingHandler"),
	}
}

// RegisterRoutes sets up the routes for onboarding operations.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup, authMW gin.HandlerFunc) {
	onboarding := router.Group("/onboarding")
	{
		onboarding.GET("/email-status", h.emailStatus)
		onboarding.POST("/signup", h.signup)
		onboarding.POST("/return-path", h.storeReturnPath)
		onboarding.POST("/finalize", authMW, h.finalize)
		onboarding.POST("/consent", authMW, h.recordConsent)
	}
	router.GET("/me", authMW, h.me)
}

type emailStatusResponse struct {
	Email  string `json:"email"`
	Status string `json:"status"`
}

func (h *Handler) emailStatus(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		common.RespondWithError(c, common.ErrBadRequest.WithDetails("The email query parameter is required."))
		return
	}

	status, err := h.users.ClassifyEmail(c.Request.Context(), email)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}
	emailClassifications.WithLabelValues(string(status)).Inc()
	common.RespondOK(c, "Email classified.", emailStatusResponse{Email: email, Status: string(status)})
}

// SignupRequest carries candidate profile data for a new resident.
type SignupRequest struct {
	Email       string `json:"email" binding:"required,email"`
	DisplayName string `json:"display_name" binding:"omitempty,max=100"`
	Address     string `json:"address" binding:"omitempty,max=255"`
	Community   string `json:"community" binding:"omitempty,max=100"`
	InviteCode  string `json:"invite_code" binding:"omitempty,max=64"`
	InviterID   string `json:"inviter_id" binding:"omitempty,uuid"`
}

type signupResponse struct {
	Outcome       string         `json:"outcome"`
	MagicLinkSent bool           `json:"magic_link_sent,omitempty"`
	User          *user.Response `json:"user,omitempty"`
}

func (h *Handler) signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Signup: Invalid request body", zap.Error(err))
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			common.RespondWithError(c, common.NewValidationAPIError(common.FormatValidationErrors(ve)))
			return
		}
		common.RespondWithError(c, common.ErrBadRequest.WithDetails(err.Error()))
		return
	}

	ctx := c.Request.Context()

	// Classification first: known emails never reach the creation path.
	// A classification failure is logged and ignored; the conflict signal
	// on the creation path catches what the shortcut would have.
	status, err := h.users.ClassifyEmail(ctx, req.Email)
	if err != nil {
		h.logger.Warn("Email classification failed, proceeding to signup", zap.Error(err), zap.String("email", req.Email))
	} else {
		emailClassifications.WithLabelValues(string(status)).Inc()
		switch status {
		case shared.EmailApproved:
			h.sendSignInLink(c, req.Email)
			return
		case shared.EmailPendingReview:
			common.RespondOK(c, "This email is already registered and awaiting review. You will be notified when it is approved.",
				signupResponse{Outcome: "already-pending"})
			return
		}
	}

	result, err := h.repairer.SignupOrRepair(ctx, shared.CreateProfileRequest{
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		Address:      req.Address,
		SignupSource: signupSource(req),
	})
	if err != nil {
		h.respondFlowError(c, err)
		return
	}

	resp := user.ToResponse(result.User)
	common.RespondCreated(c, "Sign-up received. Your account is awaiting review.", signupResponse{
		Outcome:       string(result.Outcome),
		MagicLinkSent: result.MagicLinkSent,
		User:          &resp,
	})
}

// sendSignInLink handles the approved-email shortcut: the visitor already has
// an account, so signup degrades gracefully into sign-in.
func (h *Handler) sendSignInLink(c *gin.Context, email string) {
	link, err := h.provider.MagicLink(c.Request.Context(), email)
	if err != nil {
		common.RespondWithError(c, common.ErrInternalServer.WithDetails("Could not issue a sign-in link. Please try again."))
		return
	}
	h.notify.Emit(c.Request.Context(), notification.KeyMagicLinkIssued, notification.MagicLinkIssued{
		Email: email,
		Link:  link,
	})
	common.RespondOK(c, "This email already has an approved account. A sign-in link has been sent.",
		signupResponse{Outcome: "sign-in-link-sent", MagicLinkSent: true})
}

func signupSource(req SignupRequest) shared.SignupSource {
	switch {
	case req.Community != "":
		return shared.SignupSource{Kind: shared.SourceCommunity, Community: req.Community}
	case req.InviteCode != "":
		return shared.SignupSource{Kind: shared.SourceInvite, InviteCode: req.InviteCode}
	default:
		return shared.SignupSource{Kind: shared.SourceDirect}
	}
}

// ReturnPathRequest captures pre-authentication navigation state.
type ReturnPathRequest struct {
	Path           string `json:"path" binding:"omitempty,max=2048"`
	Community      string `json:"community" binding:"omitempty,max=100"`
	InviteCode     string `json:"invite_code" binding:"omitempty,max=64"`
	InviterID      string `json:"inviter_id" binding:"omitempty,uuid"`
	PrefillAddress string `json:"prefill_address" binding:"omitempty,max=255"`
}

func (h *Handler) storeReturnPath(c *gin.Context) {
	var req ReturnPathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			common.RespondWithError(c, common.NewValidationAPIError(common.FormatValidationErrors(ve)))
			return
		}
		common.RespondWithError(c, common.ErrBadRequest.WithDetails(err.Error()))
		return
	}

	token, err := h.router.Store(c.Request.Context(), ReturnState{
		Path:           req.Path,
		Community:      req.Community,
		InviteCode:     req.InviteCode,
		InviterID:      req.InviterID,
		PrefillAddress: req.PrefillAddress,
	})
	if err != nil {
		common.RespondWithError(c, common.ErrBadRequest.WithDetails(err.Error()))
		return
	}
	common.RespondOK(c, "Continuation token issued.", gin.H{"continuation_token": token})
}

// FinalizeRequest completes onboarding after a provider authentication.
type FinalizeRequest struct {
	Intent            string `json:"intent" binding:"required,oneof=signup signin"`
	ContinuationToken string `json:"continuation_token" binding:"omitempty"`
}

func (h *Handler) finalize(c *gin.Context) {
	var req FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			common.RespondWithError(c, common.NewValidationAPIError(common.FormatValidationErrors(ve)))
			return
		}
		common.RespondWithError(c, common.ErrBadRequest.WithDetails(err.Error()))
		return
	}

	session := SessionFromContext(c)
	if session == nil {
		common.RespondWithError(c, common.ErrUnauthorized)
		return
	}

	decision, err := h.finalizer.Finalize(c.Request.Context(), session, shared.Intent(req.Intent), req.ContinuationToken)
	if err != nil {
		h.respondFlowError(c, err)
		return
	}
	common.RespondOK(c, "Onboarding finalized.", decision)
}

func (h *Handler) recordConsent(c *gin.Context) {
	session := SessionFromContext(c)
	if session == nil {
		common.RespondWithError(c, common.ErrUnauthorized)
		return
	}

	profile, err := h.users.GetBySubject(c.Request.Context(), session.Subject)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}
	if err := h.consent.RecordConsent(c.Request.Context(), profile.ID); err != nil {
		h.respondFlowError(c, err)
		return
	}
	common.RespondOK(c, "Terms accepted.", nil)
}

func (h *Handler) me(c *gin.Context) {
	session := SessionFromContext(c)
	if session == nil {
		common.RespondWithError(c, common.ErrUnauthorized)
		return
	}
	profile, err := h.users.GetBySubject(c.Request.Context(), session.Subject)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}
	common.RespondOK(c, "Profile retrieved.", user.ToResponse(profile))
}

func (h *Handler) respondFlowError(c *gin.Context, err error) {
	if fe, ok := AsFlowError(err); ok {
		h.logger.Info("Onboarding flow ended with a taxonomy outcome",
			zap.String("kind", string(fe.Kind)), zap.Bool("terminal", fe.Terminal))
		common.RespondWithError(c, fe.ToAPIError())
		return
	}
	common.RespondWithError(c, err)
}
