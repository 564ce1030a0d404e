package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fissura/inspection-be/internal/api/dto"
	"github.com/fissura/inspection-be/internal/events"
	"github.com/fissura/inspection-be/internal/notify"
	"github.com/fissura/inspection-be/internal/queue"
	"github.com/gin-gonic/gin"
)

// ListJobs handles GET /api/jobs
// Returns every job in the queue store, in store order.
func (h *JobHandler) ListJobs(c *gin.Context) {
	jobs, err := h.jobs.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	c.JSON(http.StatusOK, jobs)
}

// GetJob handles GET /api/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	job, err := h.jobs.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, job)
}

// CreateJob handles POST /api/jobs
// Accepts a partial job spec and fills defaults (pending status, fresh
// id, timestamps).
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if req.Status != "" && !queue.ValidStatus(req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid job status",
		})
		return
	}

	job, err := h.jobs.Create(c.Request.Context(), queue.CreateSpec{
		Type:      req.Type,
		Files:     req.Files,
		Result:    req.Result,
		UserID:    req.UserID,
		ProjectID: req.ProjectID,
		Status:    req.Status,
	})
	if err != nil {
		h.logger.Error("Failed to create job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	h.publishEvent(c, events.JobCreated, job)

	c.JSON(http.StatusCreated, job)
}

// UpdateJob handles PUT /api/jobs/:job_id
// Merges the given patch onto the stored record.
func (h *JobHandler) UpdateJob(c *gin.Context) {
	jobID := c.Param("job_id")

	var req dto.UpdateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if req.Status != "" && !queue.ValidStatus(req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid job status",
		})
		return
	}

	job, err := h.jobs.Update(c.Request.Context(), jobID, queue.UpdatePatch{
		Type:      req.Type,
		Files:     req.Files,
		Result:    req.Result,
		UserID:    req.UserID,
		ProjectID: req.ProjectID,
		Status:    req.Status,
	})
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		if errors.Is(err, queue.ErrInvalidTransition) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid status transition",
			})
			return
		}
		h.logger.Error("Failed to update job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to update job",
		})
		return
	}

	c.JSON(http.StatusOK, job)
}

// DeleteJob handles DELETE /api/jobs/:job_id
func (h *JobHandler) DeleteJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if err := h.jobs.Delete(c.Request.Context(), jobID); err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to delete job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete job",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Job deleted",
	})
}

// EnqueueJob handles POST /api/enqueue
// Producer-facing: creates a pending analysis job for the given files
// and acknowledges the user with a notification.
func (h *JobHandler) EnqueueJob(c *gin.Context) {
	var req dto.EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid enqueue request", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	files, err := json.Marshal(req.Files)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid files list",
		})
		return
	}

	job, err := h.jobs.Create(c.Request.Context(), queue.CreateSpec{
		Type:      req.Type,
		Files:     string(files),
		UserID:    req.UserID,
		ProjectID: req.ProjectID,
	})
	if err != nil {
		h.logger.Error("Failed to enqueue job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enqueue job",
		})
		return
	}

	// Acknowledge the user; delivery failures never fail the enqueue
	if err := h.notifier.Send(c.Request.Context(), notify.Notification{
		UserID:  req.UserID,
		Title:   notify.TitleAnalysisReceived,
		Message: notify.MsgAnalysisReceived,
		Type:    "info",
	}); err != nil {
		h.logger.Error("Failed to send enqueue notification",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}

	h.publishEvent(c, events.JobCreated, job)

	c.JSON(http.StatusOK, dto.EnqueueResponse{
		Success: true,
		JobID:   job.ID,
	})
}

func (h *JobHandler) publishEvent(c *gin.Context, event string, job *queue.Job) {
	if err := h.events.Publish(c.Request.Context(), event, job); err != nil {
		h.logger.Error("Failed to publish job event",
			slog.String("job_id", job.ID),
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
