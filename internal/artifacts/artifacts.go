// Package artifacts stores generated assets such as thumbnails, either on
// the local filesystem or in a GCS bucket.
package artifacts

import (
	"context"
	"io"
	"time"
)

type Store interface {
	// Save writes the artifact and returns a URL it can be fetched from.
	Save(ctx context.Context, name, contentType string, r io.Reader) (string, error)

	// Purge removes artifacts older than the cutoff and reports how many
	// were deleted.
	Purge(ctx context.Context, olderThan time.Time) (int, error)
}
