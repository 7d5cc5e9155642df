package counter

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
	r.Get("/", h.Audit)
	r.Post("/reconcile", h.Reconcile)
}

// Audit serves the drift report for one seller.
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("seller_id")
	sellerID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || sellerID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "seller_id must be a positive integer")
		return
	}

	report, err := h.service.AuditCounters(r.Context(), sellerID)
	if err != nil {
		if errors.Is(err, ErrSellerUnknown) {
			httpx.RespondError(w, fmt.Errorf("%w: seller %d", httpx.ErrNotFound, sellerID))
			return
		}
		h.logger.Error("counter audit failed", slog.Any("error", err), slog.Int64("seller_id", sellerID))
		httpx.RespondError(w, err)
		return
	}

	h.logger.Info("counter audit served",
		slog.Int64("seller_id", sellerID),
		slog.String("actor", auth.RoleFromContext(r.Context())),
		slog.Int("counters", len(report.Counters)))
	httpx.JSON(w, http.StatusOK, report)
}

type reconcileRequest struct {
	SellerID  int64  `json:"seller_id"`
	PeriodKey string `json:"period_key"`
}

// Reconcile lifts one drifted counter to its expected value.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if req.SellerID <= 0 || req.PeriodKey == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "seller_id and period_key are required")
		return
	}

	row, err := h.service.Reconcile(r.Context(), auth.RoleFromContext(r.Context()), req.SellerID, req.PeriodKey)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidPeriodKey):
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		case errors.Is(err, ErrNotFound):
			httpx.RespondError(w, fmt.Errorf("%w: counter %d/%s", httpx.ErrNotFound, req.SellerID, req.PeriodKey))
		default:
			h.logger.Error("counter reconcile failed", slog.Any("error", err),
				slog.Int64("seller_id", req.SellerID), slog.String("period_key", req.PeriodKey))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusOK, row)
}
