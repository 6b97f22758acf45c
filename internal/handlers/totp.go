package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	internalauth "github.com/sproutmarket/guard/internal/auth"
	"github.com/sproutmarket/guard/internal/models"
	pkghttp "github.com/sproutmarket/guard/pkg/http"
)

// TotpServiceInterface defines the interface for authenticator enrollment logic
type TotpServiceInterface interface {
	Enroll(ctx context.Context, accountID, accountName string) (*internalauth.Enrollment, error)
	Verify(ctx context.Context, accountID, code string) error
	Revoke(ctx context.Context, accountID string) error
}

// TotpHandler handles authenticator-app HTTP requests. All routes sit behind
// the session middleware; the acting account comes from the token claims.
type TotpHandler struct {
	service TotpServiceInterface
}

// NewTotpHandler creates a new TotpHandler
func NewTotpHandler(service TotpServiceInterface) *TotpHandler {
	return &TotpHandler{service: service}
}

// EnrollResponse carries the one-time enrollment material
type EnrollResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
	QRCodeDataURL   string `json:"qr_code_data_url"`
}

// VerifyTotpRequest represents the request body for verifying an authenticator code
type VerifyTotpRequest struct {
	Code string `json:"code" validate:"required,numeric,len=6"`
}

// Enroll starts authenticator enrollment for the authenticated account
func (h *TotpHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	claims := internalauth.ClaimsFromRequest(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	enrollment, err := h.service.Enroll(r.Context(), claims.AccountID, claims.Email)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			pkghttp.WriteConflict(w, "An authenticator is already set up. Remove it before adding a new one.")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, EnrollResponse{
		Secret:          enrollment.Secret,
		ProvisioningURI: enrollment.ProvisioningURI,
		QRCodeDataURL:   enrollment.QRCodeDataURL,
	})
}

// Verify checks an authenticator code for the authenticated account
func (h *TotpHandler) Verify(w http.ResponseWriter, r *http.Request) {
	claims := internalauth.ClaimsFromRequest(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req VerifyTotpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.service.Verify(r.Context(), claims.AccountID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrTotpNotEnrolled):
			pkghttp.WriteError(w, http.StatusBadRequest, "not_enrolled", "No authenticator is set up for this account")
		case errors.Is(err, models.ErrTotpMismatch):
			pkghttp.WriteError(w, http.StatusUnauthorized, "code_mismatch", "Incorrect code")
		case errors.Is(err, models.ErrRateLimited):
			pkghttp.WriteTooManyRequests(w, "Too many attempts. Please try again later.", 0)
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

// Revoke removes the authenticator enrollment for the authenticated account
func (h *TotpHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	claims := internalauth.ClaimsFromRequest(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	if err := h.service.Revoke(r.Context(), claims.AccountID); err != nil {
		if errors.Is(err, models.ErrTotpNotEnrolled) {
			pkghttp.WriteError(w, http.StatusBadRequest, "not_enrolled", "No authenticator is set up for this account")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
