// internal/upload/validator.go
package upload

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
)

// DefaultMaxBytes is the 25 MiB ceiling on candidate files.
const DefaultMaxBytes int64 = 25 * 1024 * 1024

// Candidate is a selected, not yet uploaded file. Open may be called once per
// upload attempt; Release discards the staged bytes.
type Candidate struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
	Release     func()
}

func (c *Candidate) release() {
	if c != nil && c.Release != nil {
		c.Release()
	}
}

// Sniffer inspects the leading bytes of a candidate and reports whether they
// look like audio.
type Sniffer func(c *Candidate) (bool, error)

type Validator struct {
	MaxBytes int64
	// Sniff is optional; when nil the declared MIME type is trusted.
	Sniff Sniffer
}

func NewValidator(maxBytes int64, sniff Sniffer) *Validator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Validator{MaxBytes: maxBytes, Sniff: sniff}
}

func (v *Validator) Validate(c *Candidate) error {
	if c == nil {
		return ErrNotReady
	}
	if !IsAudioType(c.ContentType) {
		return fmt.Errorf("%w: %q", ErrInvalidType, c.ContentType)
	}
	if c.Size > v.MaxBytes {
		return fmt.Errorf("%w: %s exceeds %s", ErrTooLarge,
			humanize.IBytes(uint64(c.Size)), humanize.IBytes(uint64(v.MaxBytes)))
	}
	if v.Sniff != nil {
		ok, err := v.Sniff(c)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidType, err)
		}
		if !ok {
			return fmt.Errorf("%w: content is not audio", ErrInvalidType)
		}
	}
	return nil
}

func IsAudioType(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "audio/")
}
