package experiment

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/deckscan-core/internal/scanlist"
)

// DefaultUnshake is the settle time after every move before a capture.
const DefaultUnshake = 200 * time.Millisecond

// Channel is one illumination channel used for capture.
type Channel struct {
	Name      string  `json:"name"`
	Intensity float64 `json:"intensity"`
}

// ZStack configures the optional z-stack around each point's focus.
type ZStack struct {
	Enabled bool    `json:"enabled"`
	Height  float64 `json:"height"`
	Slices  int     `json:"slices"`
}

// Autofocus configures the refocus sweep at the start of every scan.
type Autofocus struct {
	Enabled bool    `json:"enabled"`
	ZStart  float64 `json:"z_start"`
	ZEnd    float64 `json:"z_end"`
	ZStep   float64 `json:"z_step"`
}

// Params are the run parameters taken from the experiment document.
type Params struct {
	Name        string        `json:"name"`
	NumberScans int           `json:"number_scans"`
	Period      time.Duration `json:"period"`
	Channels    []Channel     `json:"channels"`
	ZStack      ZStack        `json:"z_stack"`
	Autofocus   Autofocus     `json:"autofocus"`
}

// ParamsFrom converts the document's experiment info and scan parameters.
func ParamsFrom(info scanlist.ExpInfo, sp scanlist.ScanParams) Params {
	p := Params{
		Name:        info.Name,
		NumberScans: sp.NumberScans,
		Period:      time.Duration(sp.PeriodSeconds * float64(time.Second)),
		ZStack: ZStack{
			Enabled: sp.ZStackParams.Enabled,
			Height:  sp.ZStackParams.ZHeight,
			Slices:  sp.ZStackParams.ZSlices,
		},
		Autofocus: Autofocus{
			Enabled: sp.AutofocusParams.Enabled,
			ZStart:  sp.AutofocusParams.ZStart,
			ZEnd:    sp.AutofocusParams.ZEnd,
			ZStep:   sp.AutofocusParams.ZStep,
		},
	}
	for _, ch := range sp.IlluminationParams {
		p.Channels = append(p.Channels, Channel{Name: ch.Channel, Intensity: ch.Intensity})
	}
	return p
}

// ActiveChannels returns the channels with an intensity above zero, in order.
func (p Params) ActiveChannels() []Channel {
	var out []Channel
	for _, ch := range p.Channels {
		if ch.Intensity > 0 {
			out = append(out, ch)
		}
	}
	return out
}

// Validate checks the parameters against the points that would be scanned.
// Every problem is reported; the error wraps ErrInvalidParams.
func (p Params) Validate(points []scanlist.ScanPoint) error {
	var errs []string

	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, "experiment name is required")
	}
	included := 0
	for _, pt := range points {
		if pt.Checked {
			included++
		}
	}
	if included == 0 {
		errs = append(errs, "scan list empty: add or load positions before starting the scan")
	}
	if len(p.ActiveChannels()) == 0 {
		errs = append(errs, "light intensity needs to be set before starting scan")
	}
	if p.ZStack.Enabled {
		if p.ZStack.Height <= 0 {
			errs = append(errs, "z-stack enabled: sample depth must be positive")
		}
		if p.ZStack.Slices < 1 {
			errs = append(errs, "z-stack enabled: at least one slice is required")
		}
	}
	if p.NumberScans < 1 {
		errs = append(errs, "number of scans must be at least 1")
	}
	if p.Period < 0 {
		errs = append(errs, "scan period must not be negative")
	}
	if p.Autofocus.Enabled && (p.Autofocus.ZStep <= 0 || p.Autofocus.ZEnd < p.Autofocus.ZStart) {
		errs = append(errs, "autofocus enabled: z_step must be positive and z_end >= z_start")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidParams, strings.Join(errs, "; "))
	}
	return nil
}

// ZSlices returns slices z positions evenly spanning height around center,
// from center-height/2 to center+height/2 inclusive. A single slice sits
// at center.
func ZSlices(center, height float64, slices int) []float64 {
	if slices <= 0 {
		return nil
	}
	if slices == 1 {
		return []float64{center}
	}
	lo := center - height/2
	step := height / float64(slices-1)
	out := make([]float64, slices)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[slices-1] = center + height/2
	return out
}
