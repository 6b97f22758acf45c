package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	internalauth "github.com/sproutmarket/guard/internal/auth"
	"github.com/sproutmarket/guard/internal/guard"
	"github.com/sproutmarket/guard/internal/models"
	pkghttp "github.com/sproutmarket/guard/pkg/http"
)

// CheckoutHandler gates checkout behind the child-safety guard. Adult
// accounts pass straight through; child accounts are checked against their
// parent-configured time window, category list, and daily spend ceiling
// before the order pipeline runs.
type CheckoutHandler struct {
	guard *guard.ChildSafetyGuard
}

// NewCheckoutHandler creates a new CheckoutHandler
func NewCheckoutHandler(g *guard.ChildSafetyGuard) *CheckoutHandler {
	return &CheckoutHandler{guard: g}
}

// CheckoutRequest represents the request body for a checkout attempt
type CheckoutRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"required,gt=0"`
	Category    string `json:"category" validate:"omitempty,min=1,max=64"`
}

// CheckoutResponse reports whether the purchase may proceed
type CheckoutResponse struct {
	Allowed bool `json:"allowed"`
}

// Checkout evaluates a purchase attempt
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	claims := internalauth.ClaimsFromRequest(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if claims.Role == models.RoleChild {
		err := h.guard.Evaluate(r.Context(), guard.Action{
			ChildID:     claims.AccountID,
			AmountCents: req.AmountCents,
			Category:    req.Category,
		})
		if err != nil {
			switch {
			case errors.Is(err, models.ErrOutsideAllowedHours):
				pkghttp.WriteForbidden(w, "outside_allowed_hours", "Purchases are not allowed at this time of day")
			case errors.Is(err, models.ErrSpendLimitExceeded):
				pkghttp.WriteForbidden(w, "spend_limit_exceeded", "This purchase would exceed today's spending limit")
			case errors.Is(err, models.ErrCategoryNotAllowed):
				pkghttp.WriteForbidden(w, "category_not_allowed", "This category is not allowed for your account")
			default:
				pkghttp.WriteInternalError(w, "Internal server error")
			}
			return
		}
	}

	pkghttp.WriteJSON(w, http.StatusOK, CheckoutResponse{Allowed: true})
}
