package scheme

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/numera-app/numera/internal/auth"
	"github.com/numera-app/numera/internal/platform/httpx"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/active", h.ListActive)
	r.Get("/preview", h.Preview)
	r.Get("/{id}", h.Show)
	r.Post("/{id}/archive", h.Archive)
}

func sellerIDQuery(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("seller_id")
	if raw == "" {
		return 0, fmt.Errorf("seller_id query parameter is required")
	}
	return strconv.ParseInt(raw, 10, 64)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	sellerID, err := sellerIDQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "seller_id must be a valid integer")
		return
	}
	list, err := h.service.List(r.Context(), sellerID)
	if err != nil {
		h.logger.Error("list schemes failed", slog.Any("error", err), slog.Int64("seller_id", sellerID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"schemes": list})
}

func (h *Handler) ListActive(w http.ResponseWriter, r *http.Request) {
	sellerID, err := sellerIDQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "seller_id must be a valid integer")
		return
	}
	list, err := h.service.ListActive(r.Context(), sellerID)
	if err != nil {
		h.logger.Error("list active schemes failed", slog.Any("error", err), slog.Int64("seller_id", sellerID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"schemes": list})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid scheme id")
		return
	}
	scheme, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.RespondError(w, fmt.Errorf("%w: scheme %d", httpx.ErrNotFound, id))
			return
		}
		h.logger.Error("get scheme failed", slog.Any("error", err), slog.Int64("scheme_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, scheme)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSchemeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	scheme, err := h.service.Create(r.Context(), auth.RoleFromContext(r.Context()), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRequest):
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		case errors.Is(err, ErrSellerUnknown):
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err))
		case errors.Is(err, ErrConflict):
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrConflict, err))
		default:
			h.logger.Error("create scheme failed", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, scheme)
}

func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid scheme id")
		return
	}
	if err := h.service.Archive(r.Context(), auth.RoleFromContext(r.Context()), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.RespondError(w, fmt.Errorf("%w: scheme %d", httpx.ErrNotFound, id))
			return
		}
		h.logger.Error("archive scheme failed", slog.Any("error", err), slog.Int64("scheme_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "archived"})
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	template := r.URL.Query().Get("template")
	preview, err := h.service.Preview(template)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	httpx.JSON(w, http.StatusOK, preview)
}
