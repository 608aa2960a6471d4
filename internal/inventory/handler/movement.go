package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/service"
	"github.com/pharmaflow/pharmaflow-backend/pkg/httputil"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
)

// MovementHandler handles inventory ledger HTTP requests
type MovementHandler struct {
	service *service.InventoryService
	logger  *logger.Logger
}

// NewMovementHandler creates a new movement handler
func NewMovementHandler(svc *service.InventoryService, log *logger.Logger) *MovementHandler {
	return &MovementHandler{
		service: svc,
		logger:  log.WithComponent("movement-handler"),
	}
}

// Record handles POST /products/{productID}/movements
func (h *MovementHandler) Record(w http.ResponseWriter, r *http.Request) {
	var input service.RecordMovementInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(input); err != nil {
		httputil.Error(w, err)
		return
	}

	act := currentActor(r)
	movement, err := h.service.RecordMovement(r.Context(), chi.URLParam(r, "productID"), act.ID, input)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, movement)
}

// Get handles GET /movements/{movementID}
func (h *MovementHandler) Get(w http.ResponseWriter, r *http.Request) {
	movement, err := h.service.GetMovement(r.Context(), chi.URLParam(r, "movementID"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, movement)
}

// ListByProduct handles GET /products/{productID}/movements
func (h *MovementHandler) ListByProduct(w http.ResponseWriter, r *http.Request) {
	page, perPage := parsePagination(r)

	movements, total, err := h.service.ListMovements(r.Context(), chi.URLParam(r, "productID"), page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSONWithMeta(w, http.StatusOK, movements, &httputil.Meta{
		Page:    page,
		PerPage: perPage,
		Total:   total,
	})
}

// ListPending handles GET /movements/pending
func (h *MovementHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	movements, err := h.service.ListPendingMovements(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, movements)
}

// Approve handles POST /movements/{movementID}/approve
func (h *MovementHandler) Approve(w http.ResponseWriter, r *http.Request) {
	act := currentActor(r)
	movement, err := h.service.ApproveMovement(r.Context(), chi.URLParam(r, "movementID"), act.ID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, movement)
}

// Delete handles DELETE /movements/{movementID}
func (h *MovementHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteMovement(r.Context(), chi.URLParam(r, "movementID")); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}
