// Package api exposes the core's operations over HTTP, per §6's exposed
// contracts: triggerScheduleNow, triggerAllActiveInstagramScrapes,
// getJobStatuses, and cancelJobs.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/northcloud/eventorch/internal/cancellation"
	"github.com/northcloud/eventorch/internal/dispatcher"
	"github.com/northcloud/eventorch/internal/domain"
	"github.com/northcloud/eventorch/internal/logger"
)

// Handler implements the §6 exposed operations as gin handlers.
type Handler struct {
	dispatcher     *dispatcher.Dispatcher
	instagram      *dispatcher.InstagramCoordinator
	cancelServices map[string]*cancellation.Service
	log            logger.Logger
}

// NewHandler builds a Handler. cancelServices is keyed by queue name
// ("schedule-queue", "scrape-queue", "instagram-scrape-queue") since a job
// id only ever lives on the queue it was enqueued to.
func NewHandler(d *dispatcher.Dispatcher, instagram *dispatcher.InstagramCoordinator, cancelServices map[string]*cancellation.Service, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{dispatcher: d, instagram: instagram, cancelServices: cancelServices, log: log}
}

type triggerScheduleNowRequest struct {
	ScheduleID          string              `json:"scheduleId" binding:"required"`
	ScheduleType        domain.ScheduleType `json:"type" binding:"required"`
	SourceID            *string             `json:"sourceId"`
	WordPressSettingsID *string             `json:"wordpressSettingsId"`
	Config              domain.JSONBMap     `json:"config"`
}

// TriggerScheduleNow handles POST /schedules/trigger-now.
func (h *Handler) TriggerScheduleNow(c *gin.Context) {
	var req triggerScheduleNowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.dispatcher.TriggerNow(c.Request.Context(), dispatcher.TriggerNowRequest{
		ScheduleID:          req.ScheduleID,
		ScheduleType:        req.ScheduleType,
		SourceID:            req.SourceID,
		WordPressSettingsID: req.WordPressSettingsID,
		Config:              req.Config,
	})
	if err != nil {
		h.log.Error("api: trigger schedule now failed", "scheduleId", req.ScheduleID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"scheduleId": req.ScheduleID, "status": "triggered"})
}

type triggerInstagramRequest struct {
	PostLimit    int `json:"postLimit"`
	AccountLimit int `json:"accountLimit"`
	BatchSize    int `json:"batchSize"`
}

// TriggerAllActiveInstagramScrapes handles POST /instagram/trigger-all.
func (h *Handler) TriggerAllActiveInstagramScrapes(c *gin.Context) {
	var req triggerInstagramRequest
	// An empty body is valid: every field is optional (§6).
	_ = c.ShouldBindJSON(&req)

	options := map[string]any{
		"postLimit":    req.PostLimit,
		"accountLimit": req.AccountLimit,
		"batchSize":    req.BatchSize,
	}

	result, err := h.instagram.TriggerBatch(c.Request.Context(), options)
	if err != nil {
		if errors.Is(err, dispatcher.ErrNoActiveInstagramAccounts) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.log.Error("api: trigger instagram batch failed", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, result)
}

type jobBatchRequest struct {
	Queue  string   `json:"queue" binding:"required"`
	JobIDs []string `json:"jobIds" binding:"required"`
}

func (h *Handler) resolveQueue(c *gin.Context, queue string) (*cancellation.Service, bool) {
	svc, ok := h.cancelServices[queue]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown queue: " + queue})
		return nil, false
	}
	return svc, true
}

// GetJobStatuses handles POST /jobs/statuses.
func (h *Handler) GetJobStatuses(c *gin.Context) {
	var req jobBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	svc, ok := h.resolveQueue(c, req.Queue)
	if !ok {
		return
	}

	statuses := svc.GetJobStatuses(c.Request.Context(), req.JobIDs)
	c.JSON(http.StatusOK, gin.H{"statuses": statuses})
}

// CancelJobs handles POST /jobs/cancel.
func (h *Handler) CancelJobs(c *gin.Context) {
	var req jobBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	svc, ok := h.resolveQueue(c, req.Queue)
	if !ok {
		return
	}

	results := svc.CancelJobs(c.Request.Context(), req.JobIDs)
	c.JSON(http.StatusOK, gin.H{"results": results})
}
