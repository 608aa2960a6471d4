package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/repository"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/service"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
	"github.com/pharmaflow/pharmaflow-backend/pkg/httputil"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
)

// AllocationHandler handles FIFO allocation HTTP requests
type AllocationHandler struct {
	service *service.InventoryService
	logger  *logger.Logger
}

// NewAllocationHandler creates a new allocation handler
func NewAllocationHandler(svc *service.InventoryService, log *logger.Logger) *AllocationHandler {
	return &AllocationHandler{
		service: svc,
		logger:  log.WithComponent("allocation-handler"),
	}
}

// Preview handles GET /products/{productID}/allocations/fifo?quantity=n. Read-only:
// shows which batches would fulfill the quantity without consuming anything.
func (h *AllocationHandler) Preview(w http.ResponseWriter, r *http.Request) {
	quantity, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil {
		httputil.Error(w, errors.BadRequest("quantity must be a positive integer"))
		return
	}

	allocations, err := h.service.SelectBatchesFIFO(r.Context(), chi.URLParam(r, "productID"), quantity)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, allocations)
}

type consumeRequest struct {
	Quantity     int                     `json:"quantity" validate:"required,gt=0"`
	MovementType repository.MovementType `json:"movement_type,omitempty"`
	Reason       *string                 `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// Consume handles POST /products/{productID}/consume
func (h *AllocationHandler) Consume(w http.ResponseWriter, r *http.Request) {
	var req consumeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	act := currentActor(r)
	allocations, err := h.service.ConsumeFIFO(r.Context(), chi.URLParam(r, "productID"), req.Quantity, req.MovementType, act.ID, req.Reason)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, allocations)
}

type commitRequest struct {
	Allocations  []service.Allocation    `json:"allocations" validate:"required,min=1"`
	MovementType repository.MovementType `json:"movement_type,omitempty"`
	Reason       *string                 `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// Commit handles POST /products/{productID}/commit. Consumes a previously
// previewed plan; fails with a conflict if any batch changed in between.
func (h *AllocationHandler) Commit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	act := currentActor(r)
	if err := h.service.CommitAllocations(r.Context(), chi.URLParam(r, "productID"), req.Allocations, req.MovementType, act.ID, req.Reason); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}
