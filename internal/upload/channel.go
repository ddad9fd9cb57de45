// internal/upload/channel.go
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// ObjectStore is the durable storage behind the channel. Upload must call
// progress with the cumulative number of bytes sent and must abandon any
// partial object when ctx is cancelled.
type ObjectStore interface {
	Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string, progress func(transferred int64)) error
	ResolveRetrievalURL(ctx context.Context, path string) (string, error)
}

// DestinationPath derives the object key for a candidate:
// uploads/{userID}/{unixMillis}-{name}.
func DestinationPath(userID uint, at time.Time, name string) string {
	return fmt.Sprintf("uploads/%d/%d-%s", userID, at.UnixMilli(), baseName(name))
}

func baseName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	if name == "." || name == "/" || name == "" {
		return "audio"
	}
	return name
}

type Channel struct {
	store ObjectStore
}

func NewChannel(store ObjectStore) *Channel {
	return &Channel{store: store}
}

// Transfer streams the candidate to dst. Cancelling ctx with
// ErrUploadCancelled as the cause yields ErrUploadCancelled.
func (ch *Channel) Transfer(ctx context.Context, dst string, c *Candidate, progress func(int64)) error {
	if c == nil || c.Open == nil {
		return ErrNotReady
	}

	rc, err := c.Open()
	if err != nil {
		return fmt.Errorf("failed to open candidate: %w", err)
	}
	defer rc.Close()

	err = ch.store.Upload(ctx, dst, rc, c.Size, c.ContentType, progress)
	if err != nil {
		if errors.Is(context.Cause(ctx), ErrUploadCancelled) {
			return ErrUploadCancelled
		}
		return err
	}
	return nil
}

func (ch *Channel) Resolve(ctx context.Context, dst string) (string, error) {
	url, err := ch.store.ResolveRetrievalURL(ctx, dst)
	if err != nil {
		return "", err
	}
	if url == "" {
		return "", errors.New("storage returned an empty url")
	}
	return url, nil
}
