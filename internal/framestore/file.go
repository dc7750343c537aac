package framestore

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
)

// FileSink writes frames below a root directory.
type FileSink struct {
	root   string
	format Format
}

// NewFileSink creates a sink rooted at root. The directory is created on
// first write.
func NewFileSink(root string, format Format) *FileSink {
	if format == "" {
		format = FormatTIFF
	}
	return &FileSink{root: root, format: format}
}

// Root returns the root directory.
func (s *FileSink) Root() string {
	return s.root
}

// Format returns the encoding used by Put.
func (s *FileSink) Format() Format {
	return s.format
}

// Put encodes img and writes it to {root}/{key}. The file appears
// atomically (temp file + rename), so a reader never sees a partial frame.
func (s *FileSink) Put(ctx context.Context, key string, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := Encode(&buf, img, s.format); err != nil {
		return "", fmt.Errorf("encoding frame: %w", err)
	}

	dst := filepath.Join(s.root, filepath.FromSlash(k))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("creating frame directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".frame-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close() //nolint:errcheck,gosec // already returning the write error
		return "", fmt.Errorf("writing frame: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing frame: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("renaming frame: %w", err)
	}
	return dst, nil
}
