package attachment

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Preview is a revocable handle that lets the presentation layer display an
// image attachment before it is submitted.
type Preview interface {
	URL() string
	Bounds() (width, height int)
	Release() error
}

// PreviewAllocator creates preview handles for image blobs.
type PreviewAllocator interface {
	Allocate(b Blob) (Preview, error)
}

// TempDirPreviews stores a private copy of every previewed image under Dir.
// Releasing the handle deletes the copy.
type TempDirPreviews struct {
	Dir string
}

// NewTempDirPreviews returns an allocator rooted at dir, or at a
// lightning-guard-previews directory under os.TempDir when dir is empty.
func NewTempDirPreviews(dir string) *TempDirPreviews {
	if strings.TrimSpace(dir) == "" {
		dir = filepath.Join(os.TempDir(), "lightning-guard-previews")
	}
	return &TempDirPreviews{Dir: dir}
}

func (p *TempDirPreviews) Allocate(b Blob) (Preview, error) {
	if err := os.MkdirAll(p.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("create preview dir: %w", err)
	}
	f, err := os.CreateTemp(p.Dir, "preview-*"+strings.ToLower(filepath.Ext(b.Name)))
	if err != nil {
		return nil, fmt.Errorf("create preview file: %w", err)
	}
	if _, err := f.Write(b.Data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("write preview file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("close preview file: %w", err)
	}

	fp := &filePreview{path: f.Name()}
	// undecodable images still get a handle; bounds stay zero
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(b.Data)); err == nil {
		fp.width, fp.height = cfg.Width, cfg.Height
	}
	return fp, nil
}

type filePreview struct {
	path          string
	width, height int

	once sync.Once
	err  error
}

func (p *filePreview) URL() string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(p.path)}).String()
}

func (p *filePreview) Bounds() (int, int) { return p.width, p.height }

func (p *filePreview) Release() error {
	p.once.Do(func() {
		if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
			p.err = err
		}
	})
	return p.err
}
