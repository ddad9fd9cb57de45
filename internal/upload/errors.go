// internal/upload/errors.go
package upload

import "errors"

var (
	ErrInvalidType         = errors.New("invalid type")
	ErrTooLarge            = errors.New("file too large")
	ErrNotReady            = errors.New("not ready")
	ErrBusy                = errors.New("upload already in progress")
	ErrUploadFailed        = errors.New("upload failed")
	ErrUploadCancelled     = errors.New("upload cancelled")
	ErrNotCancellable      = errors.New("no transfer to cancel")
	ErrURLResolutionFailed = errors.New("url resolution failed")
	ErrJobCreationFailed   = errors.New("job creation failed")
)

// Message returns the status-line text shown for err.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrInvalidType):
		return "Please upload a valid audio file (MP3, WAV, etc.)."
	case errors.Is(err, ErrTooLarge):
		return "File is too large. Please upload a smaller file."
	case errors.Is(err, ErrNotReady):
		return "No file selected or you are not logged in."
	case errors.Is(err, ErrBusy):
		return "An upload is already in progress."
	case errors.Is(err, ErrNotCancellable):
		return "There is no upload in progress to cancel."
	case errors.Is(err, ErrUploadCancelled):
		return "Upload cancelled. You can start it again when ready."
	case errors.Is(err, ErrUploadFailed):
		return "Upload failed. Please check your connection and try again."
	case errors.Is(err, ErrURLResolutionFailed):
		return "Upload finished, but the file could not be linked to a processing job. Please try again."
	case errors.Is(err, ErrJobCreationFailed):
		return "Upload succeeded, but failed to create processing job. Please contact support."
	default:
		return "Something went wrong. Please try again."
	}
}
