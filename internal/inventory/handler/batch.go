package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/service"
	"github.com/pharmaflow/pharmaflow-backend/pkg/httputil"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
)

// BatchHandler handles batch HTTP requests
type BatchHandler struct {
	service *service.InventoryService
	logger  *logger.Logger
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(svc *service.InventoryService, log *logger.Logger) *BatchHandler {
	return &BatchHandler{
		service: svc,
		logger:  log.WithComponent("batch-handler"),
	}
}

// Create handles POST /products/{productID}/batches
func (h *BatchHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input service.CreateBatchInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(input); err != nil {
		httputil.Error(w, err)
		return
	}

	act := currentActor(r)
	batch, err := h.service.CreateBatch(r.Context(), chi.URLParam(r, "productID"), act.ID, input)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, batch)
}

// Get handles GET /batches/{batchID}
func (h *BatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	batch, err := h.service.GetBatch(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, batch)
}

// ListByProduct handles GET /products/{productID}/batches
func (h *BatchHandler) ListByProduct(w http.ResponseWriter, r *http.Request) {
	page, perPage := parsePagination(r)

	batches, total, err := h.service.ListBatches(r.Context(), chi.URLParam(r, "productID"), page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSONWithMeta(w, http.StatusOK, batches, &httputil.Meta{
		Page:    page,
		PerPage: perPage,
		Total:   total,
	})
}

// Update handles PUT /batches/{batchID}
func (h *BatchHandler) Update(w http.ResponseWriter, r *http.Request) {
	var input service.UpdateBatchInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(input); err != nil {
		httputil.Error(w, err)
		return
	}

	batch, err := h.service.UpdateBatch(r.Context(), chi.URLParam(r, "batchID"), input)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, batch)
}

// Delete handles DELETE /batches/{batchID}
func (h *BatchHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteBatch(r.Context(), chi.URLParam(r, "batchID")); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}

type blockBatchRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// Block handles POST /batches/{batchID}/block
func (h *BatchHandler) Block(w http.ResponseWriter, r *http.Request) {
	var req blockBatchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	act := currentActor(r)
	batch, err := h.service.BlockBatch(r.Context(), chi.URLParam(r, "batchID"), req.Reason, act.ID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, batch)
}

// Unblock handles POST /batches/{batchID}/unblock
func (h *BatchHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	act := currentActor(r)
	batch, err := h.service.UnblockBatch(r.Context(), chi.URLParam(r, "batchID"), act.ID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, batch)
}
