package imaging

import (
	"context"
	"errors"
	"image"
	"time"
)

var (
	// ErrUnknownChannel is returned for an illumination channel the device does not have.
	ErrUnknownChannel = errors.New("imaging: unknown illumination channel")

	// ErrCaptureFailed is returned when the camera produced no frame.
	ErrCaptureFailed = errors.New("imaging: capture failed")

	// ErrInvalidIntensity is returned for a negative or out-of-range intensity.
	ErrInvalidIntensity = errors.New("imaging: invalid intensity")
)

// Frame is one captured image.
type Frame struct {
	Image      *image.Gray16
	CapturedAt time.Time
}

// Imager is the camera + illumination collaborator.
type Imager interface {
	// Capture grabs one frame. It blocks until the frame is available.
	Capture(ctx context.Context) (*Frame, error)

	// SetIllumination sets the intensity of a channel (0-100 %).
	SetIllumination(channel string, intensity float64) error

	// EnableIllumination switches a channel on or off.
	EnableIllumination(channel string, on bool) error
}

// LightOn sets a channel intensity and switches it on.
func LightOn(im Imager, channel string, intensity float64) error {
	if err := im.SetIllumination(channel, intensity); err != nil {
		return err
	}
	return im.EnableIllumination(channel, true)
}

// LightOff switches a channel off and zeroes its intensity.
func LightOff(im Imager, channel string) error {
	if err := im.EnableIllumination(channel, false); err != nil {
		return err
	}
	return im.SetIllumination(channel, 0)
}
