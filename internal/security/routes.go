package security

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the security routes with the Chi router.
// Password reset and login challenge completion are public; session and log
// management require authentication, and session cleanup is operator-only.
func RegisterRoutes(r chi.Router, handler *Handler, authMiddleware, operatorMiddleware func(next http.Handler) http.Handler) {
	r.Route("/security", func(r chi.Router) {
		// Public routes (no authentication required)
		r.Post("/forgot-password", handler.ForgotPassword)
		r.Post("/reset-password", handler.ResetPassword)
		r.Post("/verify-2fa", handler.VerifyTwoFactor)
		r.Post("/use-backup-code", handler.UseBackupCode)

		// Protected routes (authentication required)
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Post("/setup-2fa", handler.SetupTwoFactor)
			r.Post("/enable-2fa", handler.EnableTwoFactor)
			r.Post("/disable-2fa", handler.DisableTwoFactor)
			r.Get("/sessions", handler.Sessions)
			r.Delete("/sessions/{sessionId}", handler.RevokeSession)
			r.Get("/logs", handler.Logs)

			// Operator-only maintenance
			r.Group(func(r chi.Router) {
				r.Use(operatorMiddleware)
				r.Post("/clean-sessions", handler.CleanSessions)
			})
		})
	})
}
