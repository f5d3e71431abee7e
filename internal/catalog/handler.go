package catalog

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/oakhaven-brewing/invoicer/internal/platform/httpx"
)

// Handler exposes the catalog JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the catalog handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

// Routes mounts the catalog endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/product-types", func(r chi.Router) {
		r.Get("/", h.ListProductTypes)
		r.Post("/", h.CreateProductType)
		r.Delete("/{id}", h.DeleteProductType)
	})
	r.Route("/units", func(r chi.Router) {
		r.Get("/", h.ListUnits)
		r.Post("/", h.CreateUnit)
		r.Delete("/{id}", h.DeleteUnit)
	})
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Post("/", h.CreateProduct)
		r.Get("/check-code", h.CheckProductCode)
		r.Get("/{id}", h.GetProduct)
		r.Put("/{id}", h.UpdateProduct)
		r.Delete("/{id}", h.DeleteProduct)
	})
	r.Route("/bands", func(r chi.Router) {
		r.Get("/", h.ListPriceBands)
		r.Post("/", h.CreatePriceBand)
		r.Delete("/{id}", h.DeletePriceBand)
		r.Post("/{id}/grid", h.ImportPriceGrid)
	})
	r.Route("/program-rules", func(r chi.Router) {
		r.Get("/", h.ListProgramRules)
		r.Post("/", h.CreateProgramRule)
		r.Delete("/{id}", h.DeleteProgramRule)
	})
	r.Route("/rules", func(r chi.Router) {
		r.Get("/", h.ListPriceRules)
		r.Post("/", h.CreatePriceRule)
		r.Put("/{id}", h.UpdatePriceRule)
		r.Delete("/{id}", h.DeletePriceRule)
	})
}

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, form interface{}) bool {
	if err := httpx.DecodeJSON(r, form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) ListProductTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.service.ListProductTypes(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, types)
}

func (h *Handler) CreateProductType(w http.ResponseWriter, r *http.Request) {
	var form NameForm
	if !h.decode(w, r, &form) {
		return
	}
	ptype, err := h.service.CreateProductType(r.Context(), form.Name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ptype)
}

func (h *Handler) DeleteProductType(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	if err := h.service.DeleteProductType(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListUnits(w http.ResponseWriter, r *http.Request) {
	units, err := h.service.Units(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, units)
}

func (h *Handler) CreateUnit(w http.ResponseWriter, r *http.Request) {
	var form UnitForm
	if !h.decode(w, r, &form) {
		return
	}
	unit, err := h.service.CreateUnit(r.Context(), Unit{
		Name:   form.Name,
		Size:   form.Size,
		TypeID: form.TypeID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, unit)
}

func (h *Handler) DeleteUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	if err := h.service.DeleteUnit(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	var filters ProductFilters
	filters.Search = r.URL.Query().Get("q")
	if raw := r.URL.Query().Get("type"); raw != "" {
		typeID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid type parameter")
			return
		}
		filters.TypeID = &typeID
	}
	if raw := r.URL.Query().Get("sent"); raw != "" {
		sent := raw == "true"
		filters.Sent = &sent
	}
	products, err := h.service.ListProducts(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, products)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var form ProductForm
	if !h.decode(w, r, &form) {
		return
	}
	product, err := h.service.CreateProduct(r.Context(), form.model())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	var form ProductForm
	if !h.decode(w, r, &form) {
		return
	}
	resent, err := h.service.UpdateProduct(r.Context(), id, form.model())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"resend": resent})
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CheckProductCode reports code availability for the product form's inline
// validation. Pass exclude=<id> when editing so the product's own code counts
// as available.
func (h *Handler) CheckProductCode(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "code parameter is required")
		return
	}
	var excludeID int64
	if raw := r.URL.Query().Get("exclude"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid exclude parameter")
			return
		}
		excludeID = id
	}
	check, err := h.service.CheckProductCode(r.Context(), code, excludeID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, check)
}

func (h *Handler) ListPriceBands(w http.ResponseWriter, r *http.Request) {
	bands, err := h.service.ListPriceBands(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bands)
}

func (h *Handler) CreatePriceBand(w http.ResponseWriter, r *http.Request) {
	var form NameForm
	if !h.decode(w, r, &form) {
		return
	}
	band, err := h.service.CreatePriceBand(r.Context(), form.Name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, band)
}

func (h *Handler) DeletePriceBand(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	if err := h.service.DeletePriceBand(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ImportPriceGrid accepts a CSV price grid as the request body and replaces
// the band's imported rules with it.
func (h *Handler) ImportPriceGrid(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	report, err := h.service.ImportPriceGrid(r.Context(), id, r.Body)
	if err != nil {
		h.logger.Error("price grid import failed", slog.Int64("band", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) ListProgramRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.service.ListProgramRules(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rules)
}

func (h *Handler) CreateProgramRule(w http.ResponseWriter, r *http.Request) {
	var form ProgramRuleForm
	if !h.decode(w, r, &form) {
		return
	}
	rule, err := h.service.CreateProgramRule(r.Context(), ProgramRule{Name: form.Name, Code: form.Code})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rule)
}

func (h *Handler) DeleteProgramRule(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	if err := h.service.DeleteProgramRule(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListPriceRules(w http.ResponseWriter, r *http.Request) {
	var filters RuleFilters
	if raw := r.URL.Query().Get("band"); raw != "" {
		bandID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid band parameter")
			return
		}
		filters.BandID = &bandID
	}
	rules, err := h.service.ListPriceRules(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rules)
}

func (h *Handler) CreatePriceRule(w http.ResponseWriter, r *http.Request) {
	var form PriceRuleForm
	if !h.decode(w, r, &form) {
		return
	}
	rule, err := h.service.CreatePriceRule(r.Context(), form.model())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rule)
}

func (h *Handler) UpdatePriceRule(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	var form PriceRuleForm
	if !h.decode(w, r, &form) {
		return
	}
	if err := h.service.UpdatePriceRule(r.Context(), id, form.model()); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeletePriceRule(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	if err := h.service.DeletePriceRule(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
