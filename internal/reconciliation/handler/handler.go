package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"outreach_backend/internal/reconciliation/domain"
	"outreach_backend/internal/reconciliation/service"
	"outreach_backend/internal/reconciliation/transport"
	"outreach_backend/internal/scheduler"
	"outreach_backend/platform/httpkit"
	"outreach_backend/platform/logger"
	"outreach_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Reconciler is the slice of the reconciliation service the handler needs.
type Reconciler interface {
	Run(ctx context.Context) (domain.RunSummary, error)
	CampaignHealth(ctx context.Context, campaignID uuid.UUID) (service.CampaignHealth, error)
}

// Handler handles HTTP requests for inbox reconciliation.
type Handler struct {
	svc      Reconciler
	enqueuer scheduler.RunEnqueuer
	val      *validator.Validator
	log      *logger.Logger
}

const (
	msgInvalidRequest    = "invalid request"
	msgValidationFailed  = "validation failed"
	msgInvalidCampaignID = "invalid campaign ID"
	msgQueueUnavailable  = "background queue not configured"
	msgRunAlreadyQueued  = "a reconciliation run is already queued"
)

// New creates a reconciliation handler. enqueuer may be nil when no queue is configured.
func New(svc Reconciler, enqueuer scheduler.RunEnqueuer, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{svc: svc, enqueuer: enqueuer, val: val, log: log}
}

// TriggerRun executes one reconciliation run synchronously and returns its summary.
// GET|POST /api/v1/cron/reconcile-inbox
func (h *Handler) TriggerRun(c *gin.Context) {
	summary, err := h.svc.Run(c.Request.Context())
	if err != nil {
		h.log.WithContext(c.Request.Context()).Error("reconciliation trigger failed", "error", err)
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, summary)
}

// GetCampaignHealth returns the bounce-rate snapshot for a campaign.
// GET /api/v1/admin/campaigns/:id/health
func (h *Handler) GetCampaignHealth(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidCampaignID, nil)
		return
	}

	health, err := h.svc.CampaignHealth(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.CampaignHealthResponse{
		CampaignID:     health.CampaignID,
		Status:         string(health.Status),
		Sent:           health.Sent,
		Bounced:        health.Bounced,
		BounceRate:     health.BounceRate,
		Threshold:      health.Threshold,
		WindowStart:    health.WindowStart,
		WindowEnd:      health.WindowEnd,
		WouldAutoPause: health.Tripped,
	})
}

// EnqueueRun queues an asynchronous run on the background worker.
// POST /api/v1/admin/reconciliation/runs
func (h *Handler) EnqueueRun(c *gin.Context) {
	var req transport.EnqueueRunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	if h.enqueuer == nil {
		httpkit.Error(c, http.StatusServiceUnavailable, msgQueueUnavailable, nil)
		return
	}

	taskID, err := h.enqueuer.EnqueueReconcileRun(c.Request.Context(), scheduler.ReconcileInboxPayload{
		Trigger:     scheduler.TriggerManual,
		RequestedBy: identity.UserID().String(),
		Reason:      req.Reason,
	})
	if errors.Is(err, scheduler.ErrRunAlreadyQueued) {
		httpkit.Error(c, http.StatusConflict, msgRunAlreadyQueued, nil)
		return
	}
	if err != nil {
		h.log.WithContext(c.Request.Context()).Error("failed to enqueue reconciliation run", "error", err)
		httpkit.Error(c, http.StatusServiceUnavailable, msgQueueUnavailable, nil)
		return
	}

	httpkit.Accepted(c, transport.EnqueueRunResponse{TaskID: taskID, Status: "queued"})
}
