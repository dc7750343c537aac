package imaging

import (
	"fmt"
	"sync"
)

// RGB is one LED state, each component in [0, 1].
type RGB struct {
	R, G, B float64
}

// Off is the dark LED state.
var Off = RGB{}

// Scale multiplies every component by f.
func (c RGB) Scale(f float64) RGB {
	return RGB{R: c.R * f, G: c.G * f, B: c.B * f}
}

// IsOff reports whether the LED emits nothing.
func (c RGB) IsOff() bool {
	return c == Off
}

// MatrixDriver writes a full LED pattern to the hardware.
type MatrixDriver interface {
	WritePattern(pattern []RGB) error
}

// Ring layout of the 25-LED ring board: LED 0 is the centre, 1-8 the inner
// ring, 9-24 the outer ring.
const (
	ringBoardLEDs  = 25
	innerRingFirst = 1
	outerRingFirst = 9
)

// LEDMatrix keeps the pattern of an Nx×Ny LED matrix and pushes every
// change to the driver.
//
// Thread Safety: All methods are safe for concurrent use.
type LEDMatrix struct {
	mu      sync.Mutex
	nx, ny  int
	color   RGB
	pattern []RGB
	driver  MatrixDriver
}

// NewLEDMatrix creates a dark matrix. A nil driver keeps the pattern in memory only.
func NewLEDMatrix(nx, ny int, driver MatrixDriver) *LEDMatrix {
	if nx <= 0 || ny <= 0 {
		nx, ny = 8, 8
	}
	return &LEDMatrix{
		nx:      nx,
		ny:      ny,
		color:   RGB{R: 1, G: 1, B: 1},
		pattern: make([]RGB, nx*ny),
		driver:  driver,
	}
}

// Len returns the number of LEDs.
func (m *LEDMatrix) Len() int {
	return m.nx * m.ny
}

// SetColor sets the colour used by SetAll and the ring helpers.
func (m *LEDMatrix) SetColor(c RGB) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.color = c
}

// Pattern returns a copy of the current pattern.
func (m *LEDMatrix) Pattern() []RGB {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RGB, len(m.pattern))
	copy(out, m.pattern)
	return out
}

// SetAll sets every LED to state, tinted by the matrix colour.
func (m *LEDMatrix) SetAll(state RGB) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tinted := RGB{R: state.R * m.color.R, G: state.G * m.color.G, B: state.B * m.color.B}
	for i := range m.pattern {
		m.pattern[i] = tinted
	}
	return m.flush()
}

// SetSingle sets one LED.
func (m *LEDMatrix) SetSingle(index int, state RGB) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.pattern) {
		return fmt.Errorf("%w: led %d of %d", ErrUnknownChannel, index, len(m.pattern))
	}
	m.pattern[index] = state
	return m.flush()
}

// InnerRingMask returns the inner-ring LEDs of the ring board.
func InnerRingMask() []bool {
	return ringMask(innerRingFirst, outerRingFirst)
}

// OuterRingMask returns the outer-ring LEDs of the ring board.
func OuterRingMask() []bool {
	return ringMask(outerRingFirst, ringBoardLEDs)
}

func ringMask(from, to int) []bool {
	mask := make([]bool, ringBoardLEDs)
	for i := from; i < to; i++ {
		mask[i] = true
	}
	return mask
}

// SetMask switches the masked LEDs on (in the matrix colour) or off,
// leaving the others untouched.
func (m *LEDMatrix) SetMask(mask []bool, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, sel := range mask {
		if !sel || i >= len(m.pattern) {
			continue
		}
		if on {
			m.pattern[i] = m.color
		} else {
			m.pattern[i] = Off
		}
	}
	return m.flush()
}

// flush pushes the pattern to the driver. Caller holds m.mu.
func (m *LEDMatrix) flush() error {
	if m.driver == nil {
		return nil
	}
	out := make([]RGB, len(m.pattern))
	copy(out, m.pattern)
	return m.driver.WritePattern(out)
}
