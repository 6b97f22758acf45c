package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/sproutmarket/guard/internal/auth"
	"github.com/sproutmarket/guard/internal/handlers"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	otpHandler *handlers.OtpHandler,
	totpHandler *handlers.TotpHandler,
	checkoutHandler *handlers.CheckoutHandler,
	tokenManager *auth.TokenManager,
) {
	// Public routes - no session required. Abuse limits are enforced inside
	// the services, keyed per IP, target, or challenge.
	router.Post("/auth/login", authHandler.Login)
	router.Post("/auth/refresh", authHandler.RefreshToken)
	router.Post("/auth/otp/send", otpHandler.SendCode)
	router.Post("/auth/otp/verify", otpHandler.VerifyCode)

	// Protected routes - session required
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokenManager))

		r.Post("/auth/totp/enroll", totpHandler.Enroll)
		r.Post("/auth/totp/verify", totpHandler.Verify)
		r.Delete("/auth/totp", totpHandler.Revoke)

		r.Post("/market/checkout", checkoutHandler.Checkout)
	})
}
