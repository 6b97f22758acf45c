package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sproutmarket/guard/internal/models"
	"github.com/sproutmarket/guard/internal/otp"
	"github.com/sproutmarket/guard/internal/ratelimit"
	"github.com/sproutmarket/guard/internal/services"
	pkghttp "github.com/sproutmarket/guard/pkg/http"
)

// OtpServiceInterface defines the interface for passcode business logic
type OtpServiceInterface interface {
	Send(ctx context.Context, target string, purpose models.OtpPurpose, ip string) (*otp.IssueResult, error)
	Verify(ctx context.Context, verificationKey, code, ip string) (*services.AuthResponse, error)
}

// OtpHandler handles one-time passcode HTTP requests
type OtpHandler struct {
	service  OtpServiceInterface
	limiter  *ratelimit.Limiter
	ipConfig *pkghttp.IPConfig
}

// NewOtpHandler creates a new OtpHandler
func NewOtpHandler(service OtpServiceInterface, limiter *ratelimit.Limiter, ipConfig *pkghttp.IPConfig) *OtpHandler {
	return &OtpHandler{
		service:  service,
		limiter:  limiter,
		ipConfig: ipConfig,
	}
}

// SendCodeRequest represents the request body for issuing a passcode
type SendCodeRequest struct {
	Target  string `json:"target" validate:"required,min=3,max=254"`
	Purpose string `json:"purpose" validate:"required,oneof=login registration"`
}

// SendCodeResponse represents the response after issuing a passcode. The
// code itself travels out-of-band only.
type SendCodeResponse struct {
	VerificationKey string    `json:"verification_key"`
	ExpiresAt       time.Time `json:"expires_at"`
	Delivered       bool      `json:"delivered"`
}

// VerifyCodeRequest represents the request body for verifying a passcode
type VerifyCodeRequest struct {
	VerificationKey string `json:"verification_key" validate:"required,uuid4"`
	Code            string `json:"code" validate:"required,numeric,min=4,max=6"`
}

// VerifyCodeResponse represents the response after verifying a passcode.
// Auth carries the session token pair when the challenge was a login
// challenge; registration verifications only confirm the target.
type VerifyCodeResponse struct {
	Verified bool                   `json:"verified"`
	Auth     *services.AuthResponse `json:"auth,omitempty"`
}

// SendCode issues a fresh passcode and delivers it out-of-band
func (h *OtpHandler) SendCode(w http.ResponseWriter, r *http.Request) {
	var req SendCodeRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Target = strings.ToLower(strings.TrimSpace(req.Target))
	ip := pkghttp.ExtractClientIP(r, h.ipConfig)

	result, err := h.service.Send(r.Context(), req.Target, models.OtpPurpose(req.Purpose), ip)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrDeliveryFailed):
			// The challenge was created; the client may retry delivery or the
			// message may still arrive late.
			pkghttp.WriteJSON(w, http.StatusAccepted, SendCodeResponse{
				VerificationKey: result.VerificationKey,
				ExpiresAt:       result.ExpiresAt,
				Delivered:       false,
			})
		case errors.Is(err, models.ErrRateLimited):
			pkghttp.WriteTooManyRequests(w, "Too many codes requested. Please try again later.",
				h.limiter.RetryAfter("otp_send:"+req.Target))
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid code request")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, SendCodeResponse{
		VerificationKey: result.VerificationKey,
		ExpiresAt:       result.ExpiresAt,
		Delivered:       true,
	})
}

// VerifyCode checks a submitted passcode against its challenge
func (h *OtpHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyCodeRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)

	authResp, err := h.service.Verify(r.Context(), req.VerificationKey, req.Code, ip)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrOtpExpired):
			pkghttp.WriteError(w, http.StatusUnauthorized, "code_expired", "Code expired. Please request a new one.")
		case errors.Is(err, models.ErrOtpAlreadyConsumed):
			pkghttp.WriteError(w, http.StatusUnauthorized, "code_already_used", "Code already used. Please request a new one.")
		case errors.Is(err, models.ErrOtpMismatch):
			pkghttp.WriteError(w, http.StatusUnauthorized, "code_mismatch", "Incorrect code")
		case errors.Is(err, models.ErrInvalidCredentials):
			// The code was right but no enabled account owns the target; the
			// wording matches the password path.
			pkghttp.WriteUnauthorized(w, "Authentication failed")
		case errors.Is(err, models.ErrRateLimited):
			pkghttp.WriteTooManyRequests(w, "Too many attempts for this code. Please request a new one.",
				h.limiter.RetryAfter("otp_verify:"+req.VerificationKey))
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, VerifyCodeResponse{Verified: true, Auth: authResp})
}
