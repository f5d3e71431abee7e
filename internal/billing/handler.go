package billing

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/oakhaven-brewing/invoicer/internal/books"
	"github.com/oakhaven-brewing/invoicer/internal/observability"
	"github.com/oakhaven-brewing/invoicer/internal/platform/httpx"
)

// Handler exposes the invoicing JSON API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	directory *books.Directory
	metrics   *observability.Metrics
	validate  *validator.Validate
}

// NewHandler constructs the billing handler. Metrics may be nil.
func NewHandler(logger *slog.Logger, service *Service, directory *books.Directory, metrics *observability.Metrics) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		directory: directory,
		metrics:   metrics,
		validate:  validator.New(),
	}
}

// Routes mounts the billing endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/contacts/completions", h.ContactCompletions)
	r.Get("/items/completions", h.ItemCompletions)
	r.Get("/items/details", h.ItemDetails)
	r.Post("/invoices/preview", h.PreviewInvoice)
	r.Post("/invoices", h.SendInvoice)
}

// ContactCompletions searches the upstream contact directory by name
// fragment, for the invoice form's autocomplete.
func (h *Handler) ContactCompletions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "q parameter is required")
		return
	}
	refs, err := h.directory.Search(r.Context(), q, true)
	if err != nil {
		h.logger.Error("contact search failed", slog.Any("error", err))
		httpx.RespondError(w, wrapUpstream(err))
		return
	}
	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		names = append(names, ref.Name)
	}
	httpx.JSON(w, http.StatusOK, names)
}

// ItemCompletions parses a partial item description loosely.
func (h *Handler) ItemCompletions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "q parameter is required")
		return
	}
	bill := r.URL.Query().Get("bill") == "true"
	suggestions, err := h.service.Completions(r.Context(), q, bill)
	if err != nil {
		h.logger.Error("item completion failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, suggestions)
}

// ItemDetails prices one fully-specified line for live display on the
// invoice form.
func (h *Handler) ItemDetails(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	bandID, err := strconv.ParseInt(r.URL.Query().Get("band"), 10, 64)
	if q == "" || err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "q and band parameters are required")
		return
	}
	bill := r.URL.Query().Get("bill") == "true"
	priced, err := h.service.ItemDetails(r.Context(), bandID, q, bill)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pricedLineDTO(priced))
}

// PreviewInvoice resolves and prices the submitted lines without sending
// anything upstream.
func (h *Handler) PreviewInvoice(w http.ResponseWriter, r *http.Request) {
	var form PreviewForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	contact, err := h.service.Contact(r.Context(), form.ContactID, form.BandID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	preview, err := h.service.Preview(r.Context(), form.BandID, form.Bill, &contact, form.Lines)
	if err != nil {
		h.logger.Error("invoice preview failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, previewDTO(preview))
}

// SendInvoice assembles and submits an invoice or bill.
func (h *Handler) SendInvoice(w http.ResponseWriter, r *http.Request) {
	var form SendForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	req := SendRequest{
		ContactExternalID: form.ContactID,
		BandID:            form.BandID,
		Bill:              form.Bill,
		Reference:         form.Reference,
		Lines:             form.Lines,
	}
	if form.Date != "" {
		date, err := time.Parse("2006-01-02", form.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed",
				fmt.Sprintf("date %q is not YYYY-MM-DD", form.Date))
			return
		}
		req.Date = date
	}

	result, err := h.service.Send(r.Context(), req)
	if err != nil {
		if errors.Is(err, httpx.ErrUpstream) {
			h.metrics.UpstreamError()
		}
		h.logger.Error("invoice send failed",
			slog.String("contact", form.ContactID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	kind := "invoice"
	if form.Bill {
		kind = "bill"
	}
	h.metrics.InvoiceSent(kind)
	httpx.JSON(w, http.StatusOK, result)
}
