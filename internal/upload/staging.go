// internal/upload/staging.go
package upload

import (
	"fmt"
	"io"
	"os"

	"esplit/internal/logger"
	"esplit/pkg/audio"
)

// Stage copies at most limit+1 bytes of src into dir so the candidate can be
// reopened for every upload attempt. Size is the number of bytes actually
// staged, which lets the validator catch oversized bodies that under-declare.
func Stage(dir, name, contentType string, src io.Reader, limit int64) (*Candidate, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create staging dir: %w", err)
	}

	f, err := os.CreateTemp(dir, "candidate-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging file: %w", err)
	}
	tmpPath := f.Name()

	written, err := io.Copy(f, io.LimitReader(src, limit+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to stage file: %w", err)
	}

	return &Candidate{
		Name:        baseName(name),
		ContentType: contentType,
		Size:        written,
		Open: func() (io.ReadCloser, error) {
			return os.Open(tmpPath)
		},
		Release: func() {
			if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
				logger.Warn().Err(err).Str("path", tmpPath).Msg("failed to remove staged file")
			}
		},
	}, nil
}

// AudioSniffer checks the staged bytes of a candidate by content.
func AudioSniffer(c *Candidate) (bool, error) {
	if c.Open == nil {
		return false, ErrNotReady
	}
	rc, err := c.Open()
	if err != nil {
		return false, err
	}
	defer rc.Close()

	_, ok, err := audio.Detect(rc)
	return ok, err
}
