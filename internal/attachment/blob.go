package attachment

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Blob is a user-selected file held in memory until submission.
type Blob struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Size returns the blob length in bytes.
func (b Blob) Size() int64 { return int64(len(b.Data)) }

// IsImage reports whether the declared MIME type is an image type.
func (b Blob) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(b.MIMEType)), "image/")
}

// LoadFile reads path into a Blob. The MIME type comes from the extension,
// falling back to content sniffing.
func LoadFile(path string) (Blob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Blob{}, fmt.Errorf("read attachment %s: %w", path, err)
	}
	name := filepath.Base(path)
	return Blob{
		Name:     name,
		MIMEType: DetectMIME(name, data),
		Data:     data,
	}, nil
}

// LoadFiles reads all paths concurrently and returns blobs in argument order.
func LoadFiles(ctx context.Context, paths []string) ([]Blob, error) {
	blobs := make([]Blob, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			b, err := LoadFile(p)
			if err != nil {
				return err
			}
			blobs[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return blobs, nil
}

// DetectMIME guesses a MIME type for name and content.
func DetectMIME(name string, data []byte) string {
	if ext := filepath.Ext(name); ext != "" {
		if t := mime.TypeByExtension(strings.ToLower(ext)); t != "" {
			return t
		}
	}
	if len(data) == 0 {
		return "application/octet-stream"
	}
	return http.DetectContentType(data)
}
