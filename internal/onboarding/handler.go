// AngelaMos | 2026
// handler.go

package onboarding

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/kyora-app/kyora-backend/internal/core"
)

const confirmSecretHeader = "X-Kyora-Payment-Secret"

type Handler struct {
	service       *Service
	validator     *validator.Validate
	confirmSecret string
}

func NewHandler(service *Service, confirmSecret string) *Handler {
	return &Handler{
		service:       service,
		validator:     validator.New(validator.WithRequiredStructEnabled()),
		confirmSecret: confirmSecret,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/onboarding", func(r chi.Router) {
		r.Post("/start", h.Start)
		r.Post("/otp/request", h.RequestOTP)
		r.Post("/otp/verify", h.VerifyOTP)
		r.Post("/oauth/exchange", h.OAuthExchange)
		r.Post("/business", h.SetBusiness)
		r.Post("/payment/start", h.StartPayment)
		r.Post("/payment/confirm", h.ConfirmPayment)
		r.Post("/complete", h.Complete)
		r.Post("/cancel", h.Cancel)
		r.Get("/session", h.GetSession)
	})
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	res, err := h.service.Start(r.Context(), req.PlanDescriptor, req.Email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			core.NotFound(w, "plan")
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.Created(w, StartResponse{Token: res.Token, Stage: res.Stage})
}

func (h *Handler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeToken(w, r)
	if !ok {
		return
	}

	res, err := h.service.Advance(r.Context(), req.Token, RequestOTP{})
	if err != nil {
		h.writeAdvanceError(w, err)
		return
	}

	core.OK(w, RequestOTPResponse{
		RetryAfterSeconds: int(math.Ceil(res.RetryAfter.Seconds())),
	})
}

func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	res, err := h.service.Advance(r.Context(), req.Token, VerifyOTP{Code: req.Code})
	if err != nil {
		h.writeAdvanceError(w, err)
		return
	}

	core.OK(w, StageResponse{Stage: res.Stage})
}

func (h *Handler) OAuthExchange(w http.ResponseWriter, r *http.Request) {
	var req OAuthExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	res, err := h.service.Advance(
		r.Context(),
		req.Token,
		OAuthExchange{Code: req.Code},
	)
	if err != nil {
		h.writeAdvanceError(w, err)
		return
	}

	core.OK(w, StageResponse{Stage: res.Stage})
}

func (h *Handler) SetBusiness(w http.ResponseWriter, r *http.Request) {
	var req SetBusinessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	res, err := h.service.Advance(r.Context(), req.Token, SetBusiness{
		Draft: BusinessDraft{
			Name:       req.Name,
			Descriptor: req.Descriptor,
			Country:    req.Country,
			Currency:   req.Currency,
		},
	})
	if err != nil {
		h.writeAdvanceError(w, err)
		return
	}

	core.OK(w, StageResponse{Stage: res.Stage})
}

func (h *Handler) StartPayment(w http.ResponseWriter, r *http.Request) {
	var req StartPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	res, err := h.service.Advance(r.Context(), req.Token, StartPayment{
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		h.writeAdvanceError(w, err)
		return
	}

	core.OK(w, StartPaymentResponse{
		Stage:       res.Stage,
		CheckoutURL: res.CheckoutURL,
	})
}

// ConfirmPayment is the trusted server-to-server callback. A success
// redirect seen by the browser is only a UI hint; without the shared
// secret this endpoint rejects the call and the session stays at
// payment_pending until the provider confirms.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	if h.confirmSecret == "" ||
		!core.CompareSecret(r.Header.Get(confirmSecretHeader), h.confirmSecret) {
		core.Forbidden(w, "payment confirmation requires provider credentials")
		return
	}

	req, ok := h.decodeToken(w, r)
	if !ok {
		return
	}

	res, err := h.service.Advance(r.Context(), req.Token, ConfirmPayment{})
	if err != nil {
		h.writeAdvanceError(w, err)
		return
	}

	core.OK(w, StageResponse{Stage: res.Stage})
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeToken(w, r)
	if !ok {
		return
	}

	res, err := h.service.Advance(r.Context(), req.Token, Complete{})
	if err != nil {
		h.writeAdvanceError(w, err)
		return
	}

	core.OK(w, CompleteResponse{
		Stage:        res.Stage,
		UserID:       res.UserID,
		WorkspaceID:  res.WorkspaceID,
		AuthToken:    res.AccessToken,
		RefreshToken: res.RefreshToken,
	})
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeToken(w, r)
	if !ok {
		return
	}

	res, err := h.service.Advance(r.Context(), req.Token, Cancel{})
	if err != nil {
		h.writeAdvanceError(w, err)
		return
	}

	core.OK(w, StageResponse{Stage: res.Stage})
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		core.BadRequest(w, "token is required")
		return
	}

	session, err := h.service.Get(r.Context(), token)
	if err != nil {
		h.writeAdvanceError(w, err)
		return
	}

	core.OK(w, newSessionSnapshot(session))
}

func (h *Handler) decodeToken(
	w http.ResponseWriter,
	r *http.Request,
) (TokenRequest, bool) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return req, false
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return req, false
	}

	return req, true
}

//nolint:cyclop // exhaustive error mapping is clearer flat
func (h *Handler) writeAdvanceError(w http.ResponseWriter, err error) {
	var rateLimited *RateLimitedError
	if errors.As(err, &rateLimited) {
		core.TooManyRequests(
			w,
			int(math.Ceil(rateLimited.RetryAfter.Seconds())),
			"please wait before requesting another code",
		)
		return
	}

	switch {
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "session")

	case errors.Is(err, ErrExpired):
		core.JSONError(w, core.NewAppError(
			ErrExpired,
			"session expired, please start over",
			http.StatusGone,
			"SESSION_EXPIRED",
		))

	case errors.Is(err, ErrSessionCompleted):
		// The account exists; the client can treat this as success.
		core.JSONError(w, core.NewAppError(
			ErrSessionCompleted,
			"onboarding already completed",
			http.StatusConflict,
			"SESSION_ALREADY_COMPLETED",
		))

	case errors.Is(err, ErrChallengeVoided):
		core.JSONError(w, core.NewAppError(
			ErrChallengeVoided,
			"too many incorrect codes, request a new one",
			http.StatusConflict,
			"CHALLENGE_VOIDED",
		))

	case errors.Is(err, ErrCodeMismatch):
		core.JSONError(w, core.NewAppError(
			ErrCodeMismatch,
			"incorrect verification code",
			http.StatusBadRequest,
			"CODE_MISMATCH",
		))

	case errors.Is(err, ErrCodeExpired):
		core.JSONError(w, core.NewAppError(
			ErrCodeExpired,
			"verification code expired, request a new one",
			http.StatusBadRequest,
			"CODE_EXPIRED",
		))

	case errors.Is(err, ErrDescriptorTaken):
		core.JSONError(w, core.DuplicateError("business descriptor"))

	case errors.Is(err, ErrEmailMismatch):
		core.JSONError(w, core.NewAppError(
			ErrEmailMismatch,
			"this sign-in does not match the email on your session",
			http.StatusConflict,
			"EMAIL_MISMATCH",
		))

	case errors.Is(err, ErrInvalidTransition):
		core.JSONError(w, core.NewAppError(
			ErrInvalidTransition,
			"this step is not available right now, please restart it",
			http.StatusConflict,
			"INVALID_TRANSITION",
		))

	case errors.Is(err, ErrVersionConflict):
		core.JSONError(w, core.NewAppError(
			ErrVersionConflict,
			"your session was updated by another request, please retry",
			http.StatusConflict,
			"CONCURRENT_UPDATE",
		))

	case errors.Is(err, ErrOAuth):
		core.JSONError(w, core.NewAppError(
			ErrOAuth,
			"sign-in could not be verified, please try again",
			http.StatusBadGateway,
			"OAUTH_ERROR",
		))

	default:
		var adapterErr *AdapterError
		if errors.As(err, &adapterErr) {
			core.JSONError(w, core.NewAppError(
				adapterErr,
				"a service we depend on failed, please retry",
				http.StatusBadGateway,
				"UPSTREAM_ERROR",
			))
			return
		}
		core.InternalServerError(w, err)
	}
}
