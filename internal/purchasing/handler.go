package purchasing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tindahan-erp/tindahan-erp/internal/ledger"
	"github.com/tindahan-erp/tindahan-erp/internal/platform/httpx"
)

// Handler manages purchase order lifecycle endpoints. Receiving is mounted
// separately by the postings handler.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers purchasing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Post("/", h.handleCreate)
	r.Post("/{id}/submit", h.handleTransition(func(s *Service) transitionFunc { return s.Submit }))
	r.Post("/{id}/approve", h.handleTransition(func(s *Service) transitionFunc { return s.Approve }))
	r.Post("/{id}/send", h.handleTransition(func(s *Service) transitionFunc { return s.Send }))
	r.Post("/{id}/cancel", h.handleTransition(func(s *Service) transitionFunc { return s.Cancel }))
}

type createItemRequest struct {
	ProductID       int64 `json:"product_id" validate:"required,gt=0"`
	QuantityOrdered int64 `json:"quantity_ordered" validate:"required,gt=0"`
	UnitCost        int64 `json:"unit_cost" validate:"gte=0"`
}

type createRequest struct {
	Number     string              `json:"number" validate:"omitempty,max=50"`
	SupplierID int64               `json:"supplier_id" validate:"required,gt=0"`
	Note       string              `json:"note" validate:"max=500"`
	Items      []createItemRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	input := CreateInput{Number: req.Number, SupplierID: req.SupplierID, Note: req.Note}
	for _, item := range req.Items {
		input.Items = append(input.Items, CreateItemInput{
			ProductID:       item.ProductID,
			QuantityOrdered: item.QuantityOrdered,
			UnitCost:        ledger.Centavos(item.UnitCost),
		})
	}
	po, err := h.service.Create(r.Context(), input)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("create purchase order", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	supplierID, _ := strconv.ParseInt(r.URL.Query().Get("supplier_id"), 10, 64)
	orders, err := h.service.List(r.Context(), ListFilters{
		Status:     Status(r.URL.Query().Get("status")),
		SupplierID: supplierID,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		h.logger.Error("list purchase orders", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"purchase_orders": orders})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid purchase order id")
		return
	}
	po, err := h.service.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "purchase order not found")
		return
	}
	if err != nil {
		h.logger.Error("get purchase order", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

type transitionFunc func(ctx context.Context, poID int64) error

func (h *Handler) handleTransition(pick func(*Service) transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid purchase order id")
			return
		}
		err = pick(h.service)(r.Context(), id)
		switch {
		case errors.Is(err, ErrNotFound):
			httpx.Problem(w, http.StatusNotFound, "Not Found", "purchase order not found")
		case errors.Is(err, ErrInvalidTransition):
			httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
		case err != nil:
			h.logger.Error("transition purchase order", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		default:
			httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
		}
	}
}
