package notice

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/api"
	appcontext "github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/context"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/repository"
)

// Error codes returned by notice endpoints
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNoticeNotFound  = "NOTICE_NOT_FOUND"
	CodeInternalError   = "INTERNAL_ERROR"
)

// noticeView is the JSON shape of a notice
type noticeView struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Content        string     `json:"content"`
	Category       string     `json:"category"`
	Priority       string     `json:"priority"`
	TargetAudience string     `json:"targetAudience"`
	CreatedBy      string     `json:"createdBy"`
	CreatedAt      time.Time  `json:"createdAt"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
}

func toView(n *repository.Notice) noticeView {
	return noticeView{
		ID:             n.ID.String(),
		Title:          n.Title,
		Content:        n.Content,
		Category:       n.Category,
		Priority:       n.Priority,
		TargetAudience: n.TargetAudience,
		CreatedBy:      n.CreatedBy,
		CreatedAt:      n.CreatedAt,
		ExpiresAt:      n.ExpiresAt,
	}
}

// Handler exposes the notice endpoints over HTTP
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a new notice Handler instance
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Create handles POST /notices
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body", nil)
		return
	}

	createdBy, _ := appcontext.ExtractUsername(r.Context())

	notice, err := h.service.Create(r.Context(), req, createdBy)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			api.WriteError(w, http.StatusBadRequest, CodeValidationError, "Request validation failed", nil)
			return
		}
		h.logger.Error("notice creation failed", "error", err)
		api.WriteError(w, http.StatusInternalServerError, CodeInternalError, "Failed to create notice", nil)
		return
	}

	api.WriteSuccess(w, http.StatusCreated, toView(notice))
}

// List handles GET /notices
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	role, _ := appcontext.ExtractRole(r.Context())

	limit := queryInt(r, "limit", 20)
	page := queryInt(r, "page", 1)
	offset := (page - 1) * limit

	notices, err := h.service.ListForRole(r.Context(), role, limit, offset)
	if err != nil {
		h.logger.Error("notice listing failed", "error", err)
		api.WriteError(w, http.StatusInternalServerError, CodeInternalError, "Failed to list notices", nil)
		return
	}

	views := make([]noticeView, 0, len(notices))
	for i := range notices {
		views = append(views, toView(&notices[i]))
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"notices": views,
		"page":    page,
		"limit":   limit,
	})
}

// Get handles GET /notices/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, CodeValidationError, "Invalid notice ID", nil)
		return
	}

	notice, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNoticeNotFound) {
			api.WriteError(w, http.StatusNotFound, CodeNoticeNotFound, "Notice not found", nil)
			return
		}
		h.logger.Error("notice lookup failed", "error", err)
		api.WriteError(w, http.StatusInternalServerError, CodeInternalError, "Failed to fetch notice", nil)
		return
	}

	api.WriteSuccess(w, http.StatusOK, toView(notice))
}

// Deactivate handles DELETE /notices/{id}
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, CodeValidationError, "Invalid notice ID", nil)
		return
	}

	if err := h.service.Deactivate(r.Context(), id); err != nil {
		if errors.Is(err, ErrNoticeNotFound) {
			api.WriteError(w, http.StatusNotFound, CodeNoticeNotFound, "Notice not found", nil)
			return
		}
		h.logger.Error("notice deactivation failed", "error", err)
		api.WriteError(w, http.StatusInternalServerError, CodeInternalError, "Failed to deactivate notice", nil)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"message": "Notice deactivated",
	})
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
