package framestore

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"path"
	"strings"
	"time"

	"golang.org/x/image/tiff"
)

// Format is an image encoding.
type Format string

// Supported formats.
const (
	FormatTIFF Format = "tiff"
	FormatPNG  Format = "png"
)

// ParseFormat accepts "tiff", "tif" and "png" (case-insensitive). Empty means TIFF.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tif", "tiff":
		return FormatTIFF, nil
	case "png":
		return FormatPNG, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// Ext returns the file extension without the dot.
func (f Format) Ext() string {
	if f == FormatPNG {
		return "png"
	}
	return "tif"
}

// ContentType returns the MIME type of the encoding.
func (f Format) ContentType() string {
	if f == FormatPNG {
		return "image/png"
	}
	return "image/tiff"
}

// Encode writes img to w in format f.
func Encode(w io.Writer, img image.Image, f Format) error {
	switch f {
	case FormatTIFF, "":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	case FormatPNG:
		return png.Encode(w, img)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
}

// Sink stores encoded frames.
type Sink interface {
	// Put encodes img and stores it under key. It returns the location
	// the frame was written to (a file path or an object URI).
	Put(ctx context.Context, key string, img image.Image) (string, error)

	// Format is the encoding used by Put.
	Format() Format
}

// Key builds the storage key of a frame: {YYYY-MM-DD}/{experiment}/{filename}.{ext}.
// The date is taken from day in its own location.
func Key(day time.Time, experiment, filename string, f Format) string {
	return path.Join(day.Format("2006-01-02"), experiment, filename+"."+f.Ext())
}

// cleanKey rejects keys that are empty, absolute or climb out of the root.
func cleanKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	k := path.Clean(key)
	if k == "." || k == ".." || strings.HasPrefix(k, "../") || strings.HasPrefix(k, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return k, nil
}

// ─── Multi ─────────────────────────────────────────────────────────

// MultiSink writes every frame to several sinks in order.
type MultiSink struct {
	sinks []Sink
}

// Multi combines sinks. The first sink's format and location are reported.
func Multi(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Put writes to every sink and stops at the first failure.
func (m *MultiSink) Put(ctx context.Context, key string, img image.Image) (string, error) {
	if len(m.sinks) == 0 {
		return "", ErrNoSinks
	}
	var first string
	for i, s := range m.sinks {
		loc, err := s.Put(ctx, key, img)
		if err != nil {
			return "", fmt.Errorf("sink %d: %w", i, err)
		}
		if i == 0 {
			first = loc
		}
	}
	return first, nil
}

// Format returns the format of the first sink.
func (m *MultiSink) Format() Format {
	if len(m.sinks) == 0 {
		return FormatTIFF
	}
	return m.sinks[0].Format()
}
