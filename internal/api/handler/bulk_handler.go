package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	apimw "github.com/notifyhub/dispatch/internal/api/middleware"
	"github.com/notifyhub/dispatch/internal/domain"
	"github.com/notifyhub/dispatch/internal/service"
)

// BulkHandler handles fan-out endpoints.
type BulkHandler struct {
	svc    *service.AdmissionService
	logger *zap.Logger
}

func NewBulkHandler(svc *service.AdmissionService, logger *zap.Logger) *BulkHandler {
	return &BulkHandler{svc: svc, logger: logger}
}

// SubmitBulk handles POST /api/v1/notifications/bulk
//
// @Summary  Submit one notification per user, up to 1000 users
// @Tags     bulk
// @Accept   json
// @Produce  json
// @Param    body  body      domain.BulkSubmitRequest  true  "Bulk payload"
// @Success  201   {object}  Envelope
// @Failure  422   {object}  Envelope
// @Router   /api/v1/notifications/bulk [post]
func (h *BulkHandler) SubmitBulk(w http.ResponseWriter, r *http.Request) {
	var req domain.BulkSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	correlationID := apimw.GetCorrelationID(r.Context())
	accepted, failures, err := h.svc.SubmitBulk(r.Context(), &req, correlationID)
	if err != nil {
		h.logger.Warn("bulk submit failed",
			zap.String("correlation_id", correlationID),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}

	respondData(w, http.StatusCreated, "Bulk notifications queued", map[string]any{
		"accepted": accepted,
		"failed":   failures,
		"total":    len(accepted) + len(failures),
	})
}
