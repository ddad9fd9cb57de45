// pkg/audio/audio.go
package audio

import (
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Detect sniffs the leading bytes of r and reports the detected MIME type
// and whether it is an audio container.
func Detect(r io.Reader) (string, bool, error) {
	mt, err := mimetype.DetectReader(r)
	if err != nil {
		return "", false, fmt.Errorf("failed to detect content type: %w", err)
	}
	return mt.String(), IsAudio(mt), nil
}

// IsAudio walks the detected type and its parents. Plain Ogg is accepted
// because the container does not say whether it carries audio or video.
func IsAudio(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "audio/") || m.Is("application/ogg") {
			return true
		}
	}
	return false
}
