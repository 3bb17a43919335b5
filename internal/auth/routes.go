package auth

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the authentication routes with the chi router.
// All three endpoints are public: they are the entry points into the
// authentication flow.
func RegisterRoutes(r chi.Router, handler *Handler) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/admin/login", handler.AdminLogin)
		r.Post("/student/login", handler.StudentLogin)
		r.Post("/register", handler.Register)
	})
}
