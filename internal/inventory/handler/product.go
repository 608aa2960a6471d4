package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/service"
	"github.com/pharmaflow/pharmaflow-backend/pkg/actor"
	"github.com/pharmaflow/pharmaflow-backend/pkg/httputil"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

func parsePagination(r *http.Request) (page, perPage int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

// currentActor resolves the acting user, falling back to the system actor
// for unauthenticated internal calls.
func currentActor(r *http.Request) *actor.Actor {
	if act := actor.FromContext(r.Context()); act != nil {
		return act
	}
	return actor.SystemActor()
}

// ProductHandler handles product HTTP requests
type ProductHandler struct {
	service *service.InventoryService
	logger  *logger.Logger
}

// NewProductHandler creates a new product handler
func NewProductHandler(svc *service.InventoryService, log *logger.Logger) *ProductHandler {
	return &ProductHandler{
		service: svc,
		logger:  log.WithComponent("product-handler"),
	}
}

// Create handles POST /products
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input service.CreateProductInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(input); err != nil {
		httputil.Error(w, err)
		return
	}

	product, err := h.service.CreateProduct(r.Context(), input)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, product)
}

// Get handles GET /products/{productID}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.GetProduct(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, product)
}

// List handles GET /products
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := parsePagination(r)

	products, total, err := h.service.ListProducts(r.Context(), page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSONWithMeta(w, http.StatusOK, products, &httputil.Meta{
		Page:    page,
		PerPage: perPage,
		Total:   total,
	})
}

// Update handles PUT /products/{productID}
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	var input service.UpdateProductInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(input); err != nil {
		httputil.Error(w, err)
		return
	}

	product, err := h.service.UpdateProduct(r.Context(), chi.URLParam(r, "productID"), input)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, product)
}

// Delete handles DELETE /products/{productID}
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteProduct(r.Context(), chi.URLParam(r, "productID")); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}

// Reconcile handles POST /products/{productID}/reconcile
func (h *ProductHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ReconcileStock(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}
