// Package media is the boundary to the external media host used for
// avatar and cover images. Implementations are fallible collaborators:
// callers treat a failed upload as a degraded input, never a crash.
package media

import (
	"context"
	"io"
)

// File is a locally buffered upload, resolved at the transport boundary
// before any service logic runs.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

// Uploader stores a file on the media host and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, file File) (string, error)
}

// UploaderFunc adapts a function into an Uploader.
type UploaderFunc func(ctx context.Context, file File) (string, error)

// Upload satisfies the Uploader interface.
func (f UploaderFunc) Upload(ctx context.Context, file File) (string, error) {
	return f(ctx, file)
}
