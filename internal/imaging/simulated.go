package imaging

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"
)

// SimulatedConfig configures a SimulatedCamera.
type SimulatedConfig struct {
	Width    int
	Height   int
	Channels []string

	// Matrix, when set, is driven by the channel named MatrixChannel.
	Matrix        *LEDMatrix
	MatrixChannel string
}

type channelState struct {
	intensity float64
	on        bool
}

// SimulatedCamera is an in-memory Imager producing deterministic frames.
// Frame brightness follows the summed intensity of the enabled channels.
// It records every call so tests can check the capture protocol.
//
// Thread Safety: All methods are safe for concurrent use.
type SimulatedCamera struct {
	mu       sync.Mutex
	cfg      SimulatedConfig
	channels map[string]*channelState
	events   []string
	captures int
	failNext error
}

// NewSimulatedCamera creates a simulated camera with the given channels.
func NewSimulatedCamera(cfg SimulatedConfig) *SimulatedCamera {
	if cfg.Width <= 0 {
		cfg.Width = 64
	}
	if cfg.Height <= 0 {
		cfg.Height = 48
	}
	c := &SimulatedCamera{cfg: cfg, channels: make(map[string]*channelState)}
	for _, ch := range cfg.Channels {
		c.channels[ch] = &channelState{}
	}
	if cfg.Matrix != nil && cfg.MatrixChannel != "" {
		c.channels[cfg.MatrixChannel] = &channelState{}
	}
	return c
}

// FailNext makes the next Capture return err.
func (c *SimulatedCamera) FailNext(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = err
}

// Events returns the recorded call log ("set:BF:50", "on:BF", "capture", ...).
func (c *SimulatedCamera) Events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	copy(out, c.events)
	return out
}

// Captures returns the number of successful captures.
func (c *SimulatedCamera) Captures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.captures
}

// IsOn reports whether a channel is enabled.
func (c *SimulatedCamera) IsOn(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.channels[channel]
	return ok && st.on
}

// Capture implements Imager.
func (c *SimulatedCamera) Capture(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.failNext; err != nil {
		c.failNext = nil
		c.events = append(c.events, "capture:error")
		return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}

	var level float64
	for _, st := range c.channels {
		if st.on {
			level += st.intensity
		}
	}
	if level > 100 {
		level = 100
	}

	img := image.NewGray16(image.Rect(0, 0, c.cfg.Width, c.cfg.Height))
	bright := uint16(level / 100 * 0xffff)
	for y := 0; y < c.cfg.Height; y++ {
		for x := 0; x < c.cfg.Width; x++ {
			v := bright
			if (x/4+y/4)%2 == 1 {
				v /= 2
			}
			i := img.PixOffset(x, y)
			img.Pix[i] = uint8(v >> 8)
			img.Pix[i+1] = uint8(v)
		}
	}

	c.captures++
	c.events = append(c.events, "capture")
	return &Frame{Image: img, CapturedAt: time.Now()}, nil
}

// SetIllumination implements Imager.
func (c *SimulatedCamera) SetIllumination(channel string, intensity float64) error {
	if intensity < 0 || intensity > 100 {
		return fmt.Errorf("%w: %g", ErrInvalidIntensity, intensity)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.channels[channel]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}
	st.intensity = intensity
	c.events = append(c.events, fmt.Sprintf("set:%s:%g", channel, intensity))
	return c.driveMatrix(channel, st)
}

// EnableIllumination implements Imager.
func (c *SimulatedCamera) EnableIllumination(channel string, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.channels[channel]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}
	st.on = on
	if on {
		c.events = append(c.events, "on:"+channel)
	} else {
		c.events = append(c.events, "off:"+channel)
	}
	return c.driveMatrix(channel, st)
}

// driveMatrix mirrors the matrix channel onto the LED matrix. Caller holds c.mu.
func (c *SimulatedCamera) driveMatrix(channel string, st *channelState) error {
	if c.cfg.Matrix == nil || channel != c.cfg.MatrixChannel {
		return nil
	}
	if !st.on {
		return c.cfg.Matrix.SetAll(Off)
	}
	f := st.intensity / 100
	return c.cfg.Matrix.SetAll(RGB{R: f, G: f, B: f})
}
