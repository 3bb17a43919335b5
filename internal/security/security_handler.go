package security

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/api"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/auth"
	appcontext "github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/context"
)

// Error codes returned by security endpoints
const (
	CodeValidationError   = "VALIDATION_ERROR"
	CodeUserNotFound      = "USER_NOT_FOUND"
	CodeInvalidResetToken = "INVALID_RESET_TOKEN"
	CodeTwoFactorState    = "TWO_FACTOR_STATE"
	CodeInvalidCode       = "INVALID_CODE"
	CodeSessionNotFound   = "SESSION_NOT_FOUND"
	CodeForbidden         = "FORBIDDEN"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeInternalError     = "INTERNAL_ERROR"
)

// ForgotPasswordRequest asks for a reset token by username
type ForgotPasswordRequest struct {
	Username string `json:"username" validate:"required"`
}

// ResetPasswordRequest redeems a reset token for a new password
type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

// TwoFactorCodeRequest carries a TOTP code for an authenticated 2FA state change
type TwoFactorCodeRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// Handler exposes the security endpoints over HTTP
type Handler struct {
	service  *Service
	authSvc  *auth.Service
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler creates a new security Handler instance
func NewHandler(service *Service, authSvc *auth.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service:  service,
		authSvc:  authSvc,
		validate: validator.New(),
		logger:   logger,
	}
}

// ForgotPassword handles POST /security/forgot-password
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.WriteError(w, http.StatusBadRequest, CodeValidationError, "Username is required", nil)
		return
	}

	emailSent, err := h.service.ForgotPassword(r.Context(), req.Username, api.ClientIP(r), r.UserAgent())
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			api.WriteError(w, http.StatusNotFound, CodeUserNotFound, "User not found", nil)
			return
		}
		h.logger.Error("forgot password failed", "error", err)
		api.WriteError(w, http.StatusInternalServerError, CodeInternalError, "Failed to process request", nil)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"message":   "Password reset token generated",
		"emailSent": emailSent,
	})
}

// ResetPassword handles POST /security/reset-password
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.WriteError(w, http.StatusBadRequest, CodeValidationError, "Token and new password are required", nil)
		return
	}

	validationErrors, err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword, api.ClientIP(r), r.UserAgent())
	if err != nil {
		if errors.Is(err, ErrInvalidResetToken) {
			api.WriteError(w, http.StatusBadRequest, CodeInvalidResetToken, "Invalid or expired reset token", nil)
			return
		}
		h.logger.Error("reset password failed", "error", err)
		api.WriteError(w, http.StatusInternalServerError, CodeInternalError, "Failed to reset password", nil)
		return
	}
	if len(validationErrors) > 0 {
		details := map[string][]string{}
		for _, ve := range validationErrors {
			details[ve.Field] = append(details[ve.Field], ve.Message)
		}
		api.WriteError(w, http.StatusBadRequest, CodeValidationError, "Password does not meet requirements", details)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"message": "Password has been reset",
	})
}

// SetupTwoFactor handles POST /security/setup-2fa
func (h *Handler) SetupTwoFactor(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	setup, err := h.service.SetupTwoFactor(r.Context(), userID, api.ClientIP(r), r.UserAgent())
	if err != nil {
		switch {
		case errors.Is(err, ErrTwoFactorAlreadySetup):
			api.WriteError(w, http.StatusConflict, CodeTwoFactorState, "Two-factor authentication is already enabled", nil)
		case errors.Is(err, ErrUserNotFound):
			api.WriteError(w, http.StatusNotFound, CodeUserNotFound, "User not found", nil)
		default:
			h.logger.Error("2fa setup failed", "error", err)
			api.WriteError(w, http.StatusInternalServerError, CodeInternalError, "Failed to set up two-factor authentication", nil)
		}
		return
	}

	api.WriteSuccess(w, http.StatusOK, setup)
}

// EnableTwoFactor handles POST /security/enable-2fa
func (h *Handler) EnableTwoFactor(w http.ResponseWriter, r *http.Request) {
	h.twoFactorStateChange(w, r, h.service.EnableTwoFactor, "Two-factor authentication enabled")
}

// DisableTwoFactor handles POST /security/disable-2fa
func (h *Handler) DisableTwoFactor(w http.ResponseWriter, r *http.Request) {
	h.twoFactorStateChange(w, r, h.service.DisableTwoFactor, "Two-factor authentication disabled")
}

type stateChangeFunc func(ctx context.Context, userID uuid.UUID, code, ipAddress, userAgent string) error

func (h *Handler) twoFactorStateChange(w http.ResponseWriter, r *http.Request, change stateChangeFunc, message string) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req TwoFactorCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.WriteError(w, http.StatusBadRequest, CodeValidationError, "A 6-digit code is required", nil)
		return
	}

	if err := change(r.Context(), userID, req.Code, api.ClientIP(r), r.UserAgent()); err != nil {
		switch {
		case errors.Is(err, ErrInvalidTwoFactorCode):
			api.WriteError(w, http.StatusBadRequest, CodeInvalidCode, "Invalid 2FA code", nil)
		case errors.Is(err, ErrTwoFactorNotSetup), errors.Is(err, ErrTwoFactorNotEnabled):
			api.WriteError(w, http.StatusConflict, CodeTwoFactorState, "Two-factor authentication is not in the required state", nil)
		case errors.Is(err, ErrUserNotFound):
			api.WriteError(w, http.StatusNotFound, CodeUserNotFound, "User not found", nil)
		default:
			h.logger.Error("2fa state change failed", "error", err)
			api.WriteError(w, http.StatusInternalServerError, CodeInternalError, "Failed to update two-factor authentication", nil)
		}
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"message": message,
	})
}

// VerifyTwoFactor handles POST /security/verify-2fa, completing a pending
// login challenge with a TOTP code.
func (h *Handler) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req auth.TwoFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body", nil)
		return
	}

	result, err := h.authSvc.VerifyTwoFactor(r.Context(), req, api.ClientIP(r), r.UserAgent())
	if err != nil {
		h.writeChallengeError(w, err)
		return
	}

	api.WriteSuccess(w, http.StatusOK, result)
}

// UseBackupCode handles POST /security/use-backup-code, completing a pending
// login challenge with a single-use backup code.
func (h *Handler) UseBackupCode(w http.ResponseWriter, r *http.Request) {
	var req auth.BackupCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body", nil)
		return
	}

	result, err := h.authSvc.UseBackupCode(r.Context(), req, api.ClientIP(r), r.UserAgent())
	if err != nil {
		h.writeChallengeError(w, err)
		return
	}

	api.WriteSuccess(w, http.StatusOK, result)
}

func (h *Handler) writeChallengeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrValidation):
		api.WriteError(w, http.StatusBadRequest, CodeValidationError, "Request validation failed", nil)
	case errors.Is(err, auth.ErrAccountLocked):
		api.WriteError(w, http.StatusForbidden, auth.CodeAccountLocked, "Account is temporarily locked", nil)
	case errors.Is(err, auth.ErrTwoFactorNotEnabled):
		api.WriteError(w, http.StatusConflict, CodeTwoFactorState, "Two-factor authentication is not enabled", nil)
	case errors.Is(err, auth.ErrInvalidTwoFactorCode):
		api.WriteError(w, http.StatusBadRequest, CodeInvalidCode, "Invalid 2FA code", nil)
	case errors.Is(err, auth.ErrInvalidBackupCode):
		api.WriteError(w, http.StatusBadRequest, CodeInvalidCode, "Invalid backup code", nil)
	case errors.Is(err, auth.ErrInvalidCredentials):
		api.WriteError(w, http.StatusUnauthorized, auth.CodeInvalidCredentials, "Invalid credentials", nil)
	default:
		h.logger.Error("2fa challenge failed", "error", err)
		api.WriteError(w, http.StatusInternalServerError, CodeInternalError, "Failed to verify code", nil)
	}
}

// Sessions handles GET /security/sessions
func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	sessions, err := h.service.Sessions(r.Context(), userID)
	if err != nil {
		h.logger.Error("session listing failed", "error", err)
		api.WriteError(w, http.StatusInternalServerError, CodeInternalError, "Failed to list sessions", nil)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
	})
}

// RevokeSession handles DELETE /security/sessions/{sessionId}
func (h *Handler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	role, _ := appcontext.ExtractRole(r.Context())

	sessionID := chi.URLParam(r, "sessionId")
	if sessionID == "" {
		api.WriteError(w, http.StatusBadRequest, CodeValidationError, "Session ID is required", nil)
		return
	}

	err := h.service.RevokeSession(r.Context(), userID, role, sessionID, api.ClientIP(r), r.UserAgent())
	if err != nil {
		switch {
		case errors.Is(err, ErrSessionNotFound):
			api.WriteError(w, http.StatusNotFound, CodeSessionNotFound, "Session not found", nil)
		case errors.Is(err, ErrSessionNotOwned):
			api.WriteError(w, http.StatusForbidden, CodeForbidden, "Cannot revoke another user's session", nil)
		default:
			h.logger.Error("session revocation failed", "error", err)
			api.WriteError(w, http.StatusInternalServerError, CodeInternalError, "Failed to revoke session", nil)
		}
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"message": "Session revoked",
	})
}

// Logs handles GET /security/logs
func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)

	logs, err := h.service.Logs(r.Context(), userID, page, limit)
	if err != nil {
		h.logger.Error("audit log listing failed", "error", err)
		api.WriteError(w, http.StatusInternalServerError, CodeInternalError, "Failed to list security logs", nil)
		return
	}

	api.WriteSuccess(w, http.StatusOK, logs)
}

// CleanSessions handles POST /security/clean-sessions
func (h *Handler) CleanSessions(w http.ResponseWriter, r *http.Request) {
	removed, err := h.service.CleanSessions(r.Context())
	if err != nil {
		h.logger.Error("session cleanup failed", "error", err)
		api.WriteError(w, http.StatusInternalServerError, CodeInternalError, "Failed to clean sessions", nil)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"removed": removed,
	})
}

// callerID pulls the authenticated user's ID out of the request context.
// Writes a 401 and returns false if the context is missing or malformed.
func callerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw, ok := appcontext.ExtractUserID(r.Context())
	if !ok {
		api.WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "Authentication required", nil)
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		api.WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "Authentication required", nil)
		return uuid.Nil, false
	}
	return userID, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
