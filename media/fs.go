package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FSUploader writes files to a local directory served as static
// content. Meant for development and tests; production deployments use
// S3Uploader.
type FSUploader struct {
	Dir     string
	BaseURL string
}

var _ Uploader = (*FSUploader)(nil)

// NewFSUploader ensures the target directory exists.
func NewFSUploader(dir, baseURL string) (*FSUploader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("media: creating upload dir: %w", err)
	}
	return &FSUploader{Dir: dir, BaseURL: baseURL}, nil
}

// Upload copies the file into the directory under a collision-free
// name and returns its URL.
func (u *FSUploader) Upload(ctx context.Context, file File) (string, error) {
	if file.Content == nil {
		return "", fmt.Errorf("media: file content is required")
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	name := uuid.NewString() + path.Ext(file.Name)

	dst, err := os.Create(filepath.Join(u.Dir, name))
	if err != nil {
		return "", fmt.Errorf("media: creating %q: %w", name, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file.Content); err != nil {
		return "", fmt.Errorf("media: writing %q: %w", name, err)
	}

	return strings.TrimRight(u.BaseURL, "/") + "/" + name, nil
}
