package invoicing

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

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
	r.Post("/", h.Issue)
	r.Get("/", h.List)
	r.Get("/next-number", h.NextNumber)
	r.Get("/{reference}", h.Show)
}

func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	var req IssueInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}

	invoice, err := h.service.Issue(r.Context(), auth.RoleFromContext(r.Context()), r.Header.Get("Idempotency-Key"), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrNoScheme):
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		case errors.Is(err, ErrSellerUnknown):
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err))
		case errors.Is(err, ErrSellerInactive), errors.Is(err, ErrDuplicateRequest):
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrConflict, err))
		default:
			h.logger.Error("issue invoice failed", slog.Any("error", err), slog.Int64("seller_id", req.SellerID))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, invoice)
}

func (h *Handler) NextNumber(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sellerID, err := strconv.ParseInt(q.Get("seller_id"), 10, 64)
	if err != nil || sellerID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "seller_id must be a positive integer")
		return
	}
	issueDate := time.Now().UTC()
	if raw := q.Get("issue_date"); raw != "" {
		issueDate, err = time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "issue_date must be YYYY-MM-DD")
			return
		}
	}
	var deptCode, deptName *string
	if v := q.Get("department_code"); v != "" {
		deptCode = &v
	}
	if v := q.Get("department_name"); v != "" {
		deptName = &v
	}

	preview, err := h.service.NextNumber(r.Context(), sellerID, issueDate, deptCode, deptName)
	if err != nil {
		switch {
		case errors.Is(err, ErrSellerUnknown):
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err))
		case errors.Is(err, ErrSellerInactive):
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrConflict, err))
		case errors.Is(err, ErrNoScheme):
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		default:
			h.logger.Error("next number preview failed", slog.Any("error", err), slog.Int64("seller_id", sellerID))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusOK, preview)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	reference, err := uuid.Parse(chi.URLParam(r, "reference"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice reference")
		return
	}
	invoice, err := h.service.GetByReference(r.Context(), reference)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.RespondError(w, fmt.Errorf("%w: invoice %s", httpx.ErrNotFound, reference))
			return
		}
		h.logger.Error("get invoice failed", slog.Any("error", err), slog.String("reference", reference.String()))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sellerID, err := strconv.ParseInt(q.Get("seller_id"), 10, 64)
	if err != nil || sellerID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "seller_id must be a positive integer")
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	list, err := h.service.ListBySeller(r.Context(), sellerID, limit)
	if err != nil {
		h.logger.Error("list invoices failed", slog.Any("error", err), slog.Int64("seller_id", sellerID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": list})
}
