package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/notifyhub/dispatch/internal/api/middleware"
	"github.com/notifyhub/dispatch/internal/domain"
	"github.com/notifyhub/dispatch/internal/service"
)

// NotificationHandler handles single-notification intake and query endpoints.
type NotificationHandler struct {
	svc    *service.AdmissionService
	logger *zap.Logger
}

func NewNotificationHandler(svc *service.AdmissionService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{svc: svc, logger: logger}
}

// Submit handles POST /api/v1/notifications
//
// @Summary     Submit a notification for delivery
// @Tags        notifications
// @Accept      json
// @Produce     json
// @Param       X-Correlation-ID  header    string                false  "Trace identifier, generated if absent"
// @Param       body              body      domain.SubmitRequest  true   "Notification payload with client-supplied request_id"
// @Success     201               {object}  Envelope
// @Success     200               {object}  Envelope  "Idempotent replay: existing record returned"
// @Failure     422               {object}  Envelope
// @Failure     429               {object}  Envelope
// @Failure     503               {object}  Envelope
// @Router      /api/v1/notifications [post]
func (h *NotificationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req domain.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	correlationID := apimw.GetCorrelationID(r.Context())
	n, isDuplicate, err := h.svc.Submit(r.Context(), &req, correlationID)
	if err != nil {
		h.logger.Warn("submit failed",
			zap.String("correlation_id", correlationID),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}

	if isDuplicate {
		respondData(w, http.StatusOK, "Notification already processed (idempotent request)", n)
		return
	}
	respondData(w, http.StatusCreated, "Notification queued successfully", n)
}

// GetByID handles GET /api/v1/notifications/{id}
//
// @Summary  Get a notification by ID
// @Tags     notifications
// @Produce  json
// @Param    id   path      int  true  "Notification ID"
// @Success  200  {object}  Envelope
// @Failure  404  {object}  Envelope
// @Router   /api/v1/notifications/{id} [get]
func (h *NotificationHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid notification id")
		return
	}
	n, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}
	respondData(w, http.StatusOK, "Notification retrieved successfully", n)
}

// GetByRequestID handles GET /api/v1/notifications/request/{request_id}
//
// @Summary  Get a notification by its idempotency key
// @Tags     notifications
// @Produce  json
// @Param    request_id  path      string  true  "Client-supplied request id"
// @Success  200         {object}  Envelope
// @Failure  404         {object}  Envelope
// @Router   /api/v1/notifications/request/{request_id} [get]
func (h *NotificationHandler) GetByRequestID(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.GetByRequestID(r.Context(), chi.URLParam(r, "request_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondData(w, http.StatusOK, "Notification retrieved successfully", n)
}

// ListByUser handles GET /api/v1/notifications/user/{user_id}
//
// @Summary  List a user's notifications with filtering and pagination
// @Tags     notifications
// @Produce  json
// @Param    user_id  path      string  true   "User id"
// @Param    channel  query     string  false  "Filter by channel"
// @Param    status   query     string  false  "Filter by status"
// @Param    skip     query     int     false  "Offset (default 0)"
// @Param    limit    query     int     false  "Page size (default 100, max 1000)"
// @Success  200      {object}  Envelope
// @Router   /api/v1/notifications/user/{user_id} [get]
func (h *NotificationHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	filter := parseListFilter(r)
	notifications, total, err := h.svc.ListByUser(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}

	totalPages := (total + filter.Limit - 1) / filter.Limit
	page := filter.Skip/filter.Limit + 1
	respondPage(w, "Notifications retrieved successfully", notifications, &PaginationMeta{
		Total:       total,
		Limit:       filter.Limit,
		Page:        page,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrevious: page > 1,
	})
}

// UpdateStatus handles POST /api/v1/notifications/{channel}/status
// It is the status sink used by delivery workers.
//
// @Summary  Apply a worker-reported terminal status
// @Tags     notifications
// @Accept   json
// @Produce  json
// @Param    channel  path      string               true  "Channel that processed the task"
// @Param    body     body      domain.StatusUpdate  true  "Terminal status report"
// @Success  200      {object}  Envelope
// @Failure  404      {object}  Envelope
// @Failure  409      {object}  Envelope
// @Router   /api/v1/notifications/{channel}/status [post]
func (h *NotificationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	channel := domain.Channel(chi.URLParam(r, "channel"))
	if !channel.IsValid() {
		mapError(w, domain.ErrInvalidChannel)
		return
	}

	var update domain.StatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	n, err := h.svc.ApplyStatus(r.Context(), &update)
	if err != nil {
		h.logger.Warn("status update failed",
			zap.Int64("notification_id", update.NotificationID),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondData(w, http.StatusOK, "Notification status updated successfully", n)
}

func parseListFilter(r *http.Request) domain.ListFilter {
	q := r.URL.Query()
	filter := domain.ListFilter{
		UserID: chi.URLParam(r, "user_id"),
		Skip:   0,
		Limit:  100,
	}

	if s, err := strconv.Atoi(q.Get("skip")); err == nil && s >= 0 {
		filter.Skip = s
	}
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 && l <= 1000 {
		filter.Limit = l
	}
	if ch := q.Get("channel"); ch != "" {
		c := domain.Channel(ch)
		filter.Channel = &c
	}
	if s := q.Get("status"); s != "" {
		st := domain.Status(s)
		filter.Status = &st
	}
	return filter
}
