package experiment

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/deckscan-core/internal/scanlist"
)

func TestParamsFrom(t *testing.T) {
	info := scanlist.ExpInfo{Name: "growth"}
	sp := scanlist.ScanParams{
		NumberScans:   3,
		PeriodSeconds: 90.5,
		IlluminationParams: []scanlist.IlluminationChannel{
			{Channel: "BF", Intensity: 40},
			{Channel: "GFP", Intensity: 0},
		},
	}
	sp.ZStackParams.Enabled = true
	sp.ZStackParams.ZHeight = 20
	sp.ZStackParams.ZSlices = 5

	p := ParamsFrom(info, sp)
	if p.Name != "growth" || p.NumberScans != 3 {
		t.Errorf("ParamsFrom() = %+v", p)
	}
	if p.Period != 90500*time.Millisecond {
		t.Errorf("Period = %v, want 1m30.5s", p.Period)
	}
	if !p.ZStack.Enabled || p.ZStack.Height != 20 || p.ZStack.Slices != 5 {
		t.Errorf("ZStack = %+v", p.ZStack)
	}

	active := p.ActiveChannels()
	if len(active) != 1 || active[0].Name != "BF" {
		t.Errorf("ActiveChannels() = %+v, want [BF]", active)
	}
}

func TestParams_Validate(t *testing.T) {
	points := []scanlist.ScanPoint{{Slot: 1, Well: "A1", Checked: true}}
	valid := Params{
		Name:        "growth",
		NumberScans: 2,
		Period:      time.Minute,
		Channels:    []Channel{{Name: "BF", Intensity: 40}},
	}

	tests := []struct {
		name    string
		mutate  func(p *Params)
		points  []scanlist.ScanPoint
		wantErr string
	}{
		{name: "valid", mutate: func(*Params) {}},
		{name: "missing name", mutate: func(p *Params) { p.Name = "  " }, wantErr: "name is required"},
		{name: "empty list", mutate: func(*Params) {}, points: []scanlist.ScanPoint{}, wantErr: "scan list empty"},
		{
			name:    "only unchecked points",
			mutate:  func(*Params) {},
			points:  []scanlist.ScanPoint{{Slot: 1, Well: "A1"}},
			wantErr: "scan list empty",
		},
		{
			name:    "all channels dark",
			mutate:  func(p *Params) { p.Channels = []Channel{{Name: "BF"}} },
			wantErr: "light intensity needs to be set",
		},
		{name: "zero scans", mutate: func(p *Params) { p.NumberScans = 0 }, wantErr: "number of scans"},
		{name: "negative period", mutate: func(p *Params) { p.Period = -time.Second }, wantErr: "scan period"},
		{
			name:    "z-stack without depth",
			mutate:  func(p *Params) { p.ZStack = ZStack{Enabled: true, Slices: 3} },
			wantErr: "sample depth",
		},
		{
			name:    "z-stack without slices",
			mutate:  func(p *Params) { p.ZStack = ZStack{Enabled: true, Height: 10} },
			wantErr: "at least one slice",
		},
		{
			name:    "autofocus inverted range",
			mutate:  func(p *Params) { p.Autofocus = Autofocus{Enabled: true, ZStart: 10, ZEnd: 0, ZStep: 1} },
			wantErr: "autofocus",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			pts := points
			if tt.points != nil {
				pts = tt.points
			}

			err := p.Validate(pts)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidParams) {
				t.Fatalf("Validate() error = %v, want ErrInvalidParams", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestParams_ValidateReportsEveryProblem(t *testing.T) {
	err := Params{}.Validate(nil)
	if err == nil {
		t.Fatal("Validate() error = nil")
	}
	for _, want := range []string{"name is required", "scan list empty", "light intensity", "number of scans"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error = %q, missing %q", err, want)
		}
	}
}

func TestZSlices(t *testing.T) {
	tests := []struct {
		name   string
		center float64
		height float64
		slices int
		want   []float64
	}{
		{name: "none", center: 100, height: 10, slices: 0, want: nil},
		{name: "single at centre", center: 100, height: 10, slices: 1, want: []float64{100}},
		{name: "two at the ends", center: 100, height: 10, slices: 2, want: []float64{95, 105}},
		{name: "five", center: 0, height: 20, slices: 5, want: []float64{-10, -5, 0, 5, 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ZSlices(tt.center, tt.height, tt.slices)
			if len(got) != len(tt.want) {
				t.Fatalf("ZSlices() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if math.Abs(got[i]-tt.want[i]) > 1e-9 {
					t.Errorf("ZSlices()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestElapsedStamp(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00dd00hh00mm"},
		{59 * time.Second, "00dd00hh00mm"},
		{61 * time.Minute, "00dd01hh01mm"},
		{26*time.Hour + 5*time.Minute, "01dd02hh05mm"},
		{-time.Minute, "00dd00hh00mm"},
	}
	for _, tt := range tests {
		if got := ElapsedStamp(tt.d); got != tt.want {
			t.Errorf("ElapsedStamp(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFrameName(t *testing.T) {
	n := FrameName{
		Experiment: "growth",
		Slot:       2,
		Well:       "H12",
		Index:      3,
		Z:          roundZ(-2.5),
		Mode:       "GFP",
		Stamp:      "00dd01hh00mm",
	}
	if got, want := n.String(), "growth_2_H12_3_z-3_GFP_00dd01hh00mm"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if roundZ(12.4) != 12 || roundZ(12.5) != 13 {
		t.Errorf("roundZ() does not round half away from zero")
	}
}
