package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/api"
)

// Handler handles HTTP requests for authentication endpoints
type Handler struct {
	service *Service
}

// NewHandler creates a new auth Handler instance
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// StudentLogin handles student authentication
// POST /auth/student/login
func (h *Handler) StudentLogin(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r, h.service.StudentLogin)
}

// AdminLogin handles operator authentication
// POST /auth/admin/login
func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r, h.service.OperatorLogin)
}

type loginFunc func(ctx context.Context, req LoginRequest, ipAddress, userAgent string) (*LoginResult, error)

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request, login loginFunc) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body", nil)
		return
	}

	result, err := login(r.Context(), req, api.ClientIP(r), r.UserAgent())
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	if result.RequiresTwoFactor {
		api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
			"requires_2fa": true,
			"message":      "Two-factor authentication required",
		})
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"token":      result.Token,
		"role":       result.Role,
		"session_id": result.SessionID,
	})
}

// Register handles student registration
// POST /auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body", nil)
		return
	}

	validationErrors, err := h.service.Register(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrPRNExists) {
			api.WriteError(w, http.StatusBadRequest, CodePRNExists, "Student with this PRN already exists", nil)
			return
		}
		api.WriteError(w, http.StatusInternalServerError, CodeInternalError, "An unexpected error occurred", nil)
		return
	}

	if len(validationErrors) > 0 {
		details := make(map[string][]string)
		for _, ve := range validationErrors {
			details[ve.Field] = append(details[ve.Field], ve.Message)
		}
		api.WriteError(w, http.StatusBadRequest, CodeValidationError, "Request validation failed", details)
		return
	}

	api.WriteSuccess(w, http.StatusCreated, map[string]string{
		"message": "Student registered successfully",
	})
}

func (h *Handler) writeLoginError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		api.WriteError(w, http.StatusBadRequest, CodeValidationError, "Username and password are required", nil)
	case errors.Is(err, ErrAccountLocked):
		api.WriteError(w, http.StatusForbidden, CodeAccountLocked, "Account temporarily locked. Try again later.", nil)
	case errors.Is(err, ErrInvalidCredentials):
		api.WriteError(w, http.StatusUnauthorized, CodeInvalidCredentials, "Invalid credentials", nil)
	default:
		api.WriteError(w, http.StatusInternalServerError, CodeInternalError, "An unexpected error occurred", nil)
	}
}
