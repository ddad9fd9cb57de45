// internal/handlers/jobs.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"esplit/internal/jobs"
	"esplit/internal/logger"
	"esplit/internal/middleware"
	"esplit/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// URLSigner issues fresh retrieval URLs for stored objects. Job records keep
// the URL minted at upload time, which may have expired.
type URLSigner interface {
	GetPresignedURL(ctx context.Context, objectName string) (string, error)
}

func refreshURL(ctx context.Context, signer URLSigner, job *models.Job) {
	if signer == nil || job.StoragePath == "" {
		return
	}
	url, err := signer.GetPresignedURL(ctx, job.StoragePath)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("job_id", job.JobID).Msg("failed to refresh download url")
		return
	}
	job.DownloadURL = url
}

func GetHistory(store jobs.Store, signer URLSigner) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint(middleware.ContextUserID)
		ctx := c.Request.Context()

		limit := jobs.DefaultHistoryLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > jobs.DefaultHistoryLimit {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
				return
			}
			limit = n
		}

		list, err := store.ListByUser(ctx, userID, limit)
		if err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to list jobs")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch history"})
			return
		}

		for _, job := range list {
			refreshURL(ctx, signer, job)
		}

		c.JSON(http.StatusOK, list)
	}
}

func loadJob(c *gin.Context, store jobs.Store) *models.Job {
	jobID := c.Param("id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return nil
	}

	job, err := store.Get(c.Request.Context(), c.GetUint(middleware.ContextUserID), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return nil
		}
		logger.Ctx(c.Request.Context()).Error().Err(err).Str("job_id", jobID).Msg("failed to load job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch job"})
		return nil
	}
	return job
}

func GetJob(store jobs.Store, signer URLSigner) gin.HandlerFunc {
	return func(c *gin.Context) {
		job := loadJob(c, store)
		if job == nil {
			return
		}
		refreshURL(c.Request.Context(), signer, job)
		c.JSON(http.StatusOK, job)
	}
}

// DownloadJob redirects to a fresh retrieval URL of the uploaded audio.
func DownloadJob(store jobs.Store, signer URLSigner) gin.HandlerFunc {
	return func(c *gin.Context) {
		job := loadJob(c, store)
		if job == nil {
			return
		}
		refreshURL(c.Request.Context(), signer, job)
		if job.DownloadURL == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not available"})
			return
		}
		c.Redirect(http.StatusFound, job.DownloadURL)
	}
}
