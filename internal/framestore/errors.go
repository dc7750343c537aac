package framestore

import "errors"

var (
	// ErrUnsupportedFormat is returned for an image format other than tiff or png.
	ErrUnsupportedFormat = errors.New("framestore: unsupported image format")

	// ErrInvalidKey is returned for an empty key or one that escapes the sink root.
	ErrInvalidKey = errors.New("framestore: invalid key")

	// ErrNoSinks is returned by Multi when it has nothing to write to.
	ErrNoSinks = errors.New("framestore: no sinks configured")
)
