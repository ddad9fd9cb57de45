// internal/handlers/uploads.go
package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"esplit/internal/logger"
	"esplit/internal/middleware"
	"esplit/internal/upload"

	"github.com/gin-gonic/gin"
)

// AudioField is the multipart form field carrying the candidate file.
const AudioField = "audio"

type UploadConfig struct {
	StagingDir string
	MaxBytes   int64
}

func errorBody(err error) gin.H {
	return gin.H{"error": upload.Message(err), "reason": upload.ReasonCode(err)}
}

func uploadErrorStatus(err error) int {
	switch {
	case errors.Is(err, upload.ErrInvalidType):
		return http.StatusBadRequest
	case errors.Is(err, upload.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, upload.ErrBusy), errors.Is(err, upload.ErrNotCancellable):
		return http.StatusConflict
	case errors.Is(err, upload.ErrNotReady):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func workspace(c *gin.Context, reg *upload.Registry) *upload.Workspace {
	w := reg.Get(c.GetUint(middleware.ContextUserID))
	if w == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service is shutting down"})
	}
	return w
}

// firstAudioPart returns the first file part of the audio field. Parts
// before it are skipped; anything after it is never read. The returned part
// is not closed by callers, since closing drains it.
func firstAudioPart(c *gin.Context) (*multipart.Part, error) {
	mr, err := c.Request.MultipartReader()
	if err != nil {
		return nil, err
	}
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == AudioField && part.FileName() != "" {
			return part, nil
		}
		part.Close()
	}
}

// SelectCandidate validates the posted file and stages it as the caller's
// candidate. Only the first file of the audio field is considered.
func SelectCandidate(reg *upload.Registry, cfg UploadConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.Ctx(c.Request.Context())

		part, err := firstAudioPart(c)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Err(err).Msg("unreadable multipart body")
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "No audio file provided"})
			return
		}

		w := workspace(c, reg)
		if w == nil {
			return
		}

		// A declared non-audio type is rejected before any bytes are staged.
		contentType := part.Header.Get("Content-Type")
		if !upload.IsAudioType(contentType) {
			err := w.Select(&upload.Candidate{Name: part.FileName(), ContentType: contentType})
			c.JSON(uploadErrorStatus(err), errorBody(err))
			return
		}

		candidate, err := upload.Stage(cfg.StagingDir, part.FileName(), contentType, part, cfg.MaxBytes)
		if err != nil {
			log.Error().Err(err).Msg("failed to stage candidate")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
			return
		}

		if err := w.Select(candidate); err != nil {
			c.JSON(uploadErrorStatus(err), errorBody(err))
			return
		}

		c.JSON(http.StatusOK, w.Snapshot())
	}
}

// StartUpload begins transferring the current candidate and returns at once;
// progress is observed through UploadStatus or UploadEvents.
func StartUpload(reg *upload.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		w := workspace(c, reg)
		if w == nil {
			return
		}

		snap, err := w.Start(c.Request.Context())
		if err != nil {
			c.JSON(uploadErrorStatus(err), errorBody(err))
			return
		}

		c.JSON(http.StatusAccepted, snap)
	}
}

func UploadStatus(reg *upload.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		w := workspace(c, reg)
		if w == nil {
			return
		}
		c.JSON(http.StatusOK, w.Snapshot())
	}
}

// UploadEvents streams snapshots as server-sent events. The stream ends
// after the first terminal snapshot, or when the client goes away.
func UploadEvents(reg *upload.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		w := workspace(c, reg)
		if w == nil {
			return
		}

		updates, unsubscribe := w.Subscribe()
		defer unsubscribe()

		c.Header("Cache-Control", "no-cache")
		c.Header("X-Accel-Buffering", "no")

		c.Stream(func(_ io.Writer) bool {
			select {
			case snap, ok := <-updates:
				if !ok {
					return false
				}
				c.SSEvent("snapshot", snap)
				return !snap.Terminal()
			case <-c.Request.Context().Done():
				return false
			}
		})
	}
}

func CancelUpload(reg *upload.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		w := workspace(c, reg)
		if w == nil {
			return
		}

		if err := w.Cancel(); err != nil {
			c.JSON(uploadErrorStatus(err), errorBody(err))
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"message": "Cancelling upload"})
	}
}
