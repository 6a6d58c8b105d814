package journal

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tindahan-erp/tindahan-erp/internal/platform/httpx"
)

// Handler exposes the journal over HTTP.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.post)
	r.Get("/balances", h.balances)
	r.Get("/{id}", h.get)
	r.Post("/{id}/reverse", h.reverse)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filters := ListFilters{
		Status:     Status(r.URL.Query().Get("status")),
		SourceType: r.URL.Query().Get("source_type"),
	}
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid filter", "from must be YYYY-MM-DD")
			return
		}
		filters.From = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid filter", "to must be YYYY-MM-DD")
			return
		}
		filters.To = t
	}
	filters.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	var in PostingInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid payload", err.Error())
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation failed", err.Error())
		return
	}
	entry, err := h.service.Post(r.Context(), in)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		Memo string `json:"memo"`
	}
	// Body is optional; a missing memo gets a generated one.
	_ = httpx.DecodeJSON(r, &body)

	entry, err := h.service.Reverse(r.Context(), id, body.Memo)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) balances(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.VerifyBalances(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid entry id", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Entry not found", err.Error())
	case errors.Is(err, ErrSourceAlreadyLinked), errors.Is(err, ErrAlreadyVoid):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrUnbalanced), errors.Is(err, ErrTooFewLines),
		errors.Is(err, ErrTwoSidedLine), errors.Is(err, ErrEmptyLine):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation failed", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
