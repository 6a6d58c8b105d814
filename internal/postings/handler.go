package postings

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tindahan-erp/tindahan-erp/internal/inventory"
	"github.com/tindahan-erp/tindahan-erp/internal/ledger/journal"
	"github.com/tindahan-erp/tindahan-erp/internal/platform/httpx"
	"github.com/tindahan-erp/tindahan-erp/internal/purchasing"
	"github.com/tindahan-erp/tindahan-erp/internal/sales"
	"github.com/tindahan-erp/tindahan-erp/internal/shared"
)

// Handler exposes the coordinated writes over HTTP. The receive route is
// mounted under the purchase-orders subtree by the router.
type Handler struct {
	service  *Service
	reads    *Repository
	validate *validator.Validate
}

func NewHandler(service *Service, reads *Repository) *Handler {
	return &Handler{service: service, reads: reads, validate: validator.New()}
}

// MountSales registers the sale routes.
func (h *Handler) MountSales(r chi.Router) {
	r.Post("/", h.completeSale)
	r.Get("/", h.listSales)
	r.Get("/{id}", h.getSale)
}

func (h *Handler) completeSale(w http.ResponseWriter, r *http.Request) {
	var in SaleInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid payload", err.Error())
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation failed", err.Error())
		return
	}
	result, err := h.service.CompleteSale(r.Context(), in)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	if h.reads == nil {
		httpx.Problem(w, http.StatusNotImplemented, "Unavailable", "sales reads not configured")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.reads.ListSales(r.Context(), limit)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sales": list})
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	if h.reads == nil {
		httpx.Problem(w, http.StatusNotImplemented, "Unavailable", "sales reads not configured")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid sale id", "id must be a positive integer")
		return
	}
	sale, err := h.reads.GetSale(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

// Receive handles POST /purchase-orders/{id}/receive.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	poID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || poID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid purchase order id", "id must be a positive integer")
		return
	}
	var in ReceiveInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid payload", err.Error())
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation failed", err.Error())
		return
	}
	result, err := h.service.ReceivePurchaseOrder(r.Context(), poID, in)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

// Adjust handles POST /stock-adjustments.
func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	var in AdjustmentInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid payload", err.Error())
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation failed", err.Error())
		return
	}
	result, err := h.service.AdjustStock(r.Context(), in)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSaleNotFound), errors.Is(err, inventory.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not found", err.Error())
	case errors.Is(err, ErrDuplicateRequest), errors.Is(err, journal.ErrSourceAlreadyLinked):
		httpx.Problem(w, http.StatusConflict, "Duplicate request", err.Error())
	case errors.Is(err, ErrValidation),
		errors.Is(err, purchasing.ErrOverReceipt),
		errors.Is(err, purchasing.ErrInvalidQuantity),
		errors.Is(err, purchasing.ErrUnknownItem),
		errors.Is(err, inventory.ErrNegativeStock),
		errors.Is(err, sales.ErrNoItems),
		errors.Is(err, sales.ErrInvalidQuantity),
		errors.Is(err, sales.ErrInvalidPayment):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation failed", err.Error())
	case errors.Is(err, purchasing.ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid state", err.Error())
	case errors.Is(err, shared.ErrLockNotAcquired):
		httpx.Problem(w, http.StatusConflict, "Busy", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
