package notice

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the notice routes with the Chi router.
// Reads require authentication; writes are operator-only.
func RegisterRoutes(r chi.Router, handler *Handler, authMiddleware, operatorMiddleware func(next http.Handler) http.Handler) {
	r.Route("/notices", func(r chi.Router) {
		r.Use(authMiddleware)

		r.Get("/", handler.List)
		r.Get("/{id}", handler.Get)

		r.Group(func(r chi.Router) {
			r.Use(operatorMiddleware)
			r.Post("/", handler.Create)
			r.Delete("/{id}", handler.Deactivate)
		})
	})
}
