package handler

import (
	"net/http"

	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/service"
	"github.com/pharmaflow/pharmaflow-backend/pkg/httputil"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
)

// AlertHandler handles alert HTTP requests
type AlertHandler struct {
	service *service.InventoryService
	logger  *logger.Logger
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(svc *service.InventoryService, log *logger.Logger) *AlertHandler {
	return &AlertHandler{
		service: svc,
		logger:  log.WithComponent("alert-handler"),
	}
}

// Summary handles GET /alerts/summary. Always 200; a partially failed
// report carries partial=true with the per-section errors listed.
func (h *AlertHandler) Summary(w http.ResponseWriter, r *http.Request) {
	bundle, err := h.service.GetAlertsSummary(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, bundle)
}
