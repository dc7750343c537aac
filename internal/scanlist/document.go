package scanlist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/deckscan-core/internal/deck"
)

// Position is one stored position: x/y offset from the well centre and
// absolute z, stage units.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// WellPositions is one entry of an ordered well map.
type WellPositions struct {
	Well      string
	Positions []Position
}

// Wells is an ordered map of well name to positions. Order is preserved
// through JSON and YAML so an unedited document saves back unchanged.
type Wells []WellPositions

// Group is a named set of wells sharing a fluidics channel.
type Group struct {
	Wells      Wells `json:"wells" yaml:"wells"`
	MuxChannel *int  `json:"mux_channel" yaml:"mux_channel"`
}

// SlotConfig lists the groups of one deck slot.
type SlotConfig struct {
	SlotNumber int     `json:"slot_number" yaml:"slot_number"`
	LabwareID  string  `json:"labware_id" yaml:"labware_id"`
	Groups     []Group `json:"groups" yaml:"groups"`
}

// IlluminationChannel is one light source used during capture.
type IlluminationChannel struct {
	Channel   string  `json:"channel" yaml:"channel"`
	Intensity float64 `json:"intensity" yaml:"intensity"`
}

// ZStackParams configures the optional z-stack around each point's focus.
type ZStackParams struct {
	Enabled bool    `json:"enabled" yaml:"enabled"`
	ZHeight float64 `json:"z_height" yaml:"z_height"`
	ZSlices int     `json:"z_slices" yaml:"z_slices"`
}

// AutofocusParams configures the autofocus sweep offered for the list.
type AutofocusParams struct {
	Enabled bool    `json:"enabled" yaml:"enabled"`
	ZStart  float64 `json:"z_start" yaml:"z_start"`
	ZEnd    float64 `json:"z_end" yaml:"z_end"`
	ZStep   float64 `json:"z_step" yaml:"z_step"`
}

// ScanParams configures the repeated scans of a run.
type ScanParams struct {
	NumberScans        int                   `json:"number_scans" yaml:"number_scans"`
	PeriodSeconds      float64               `json:"period_seconds" yaml:"period_seconds"`
	IlluminationParams []IlluminationChannel `json:"illumination_params" yaml:"illumination_params"`
	ZStackParams       ZStackParams          `json:"z_stack_params" yaml:"z_stack_params"`
	AutofocusParams    AutofocusParams       `json:"autofocus_params" yaml:"autofocus_params"`
}

// ExpInfo names the experiment.
type ExpInfo struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// Document is the persisted experiment configuration.
type Document struct {
	ExpInfo    ExpInfo      `json:"exp_info" yaml:"exp_info"`
	Slots      []SlotConfig `json:"slots" yaml:"slots"`
	ScanParams ScanParams   `json:"scan_params" yaml:"scan_params"`
}

// Format is a document encoding.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from the file extension (JSON by default).
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// ─── Ordered wells codec ───────────────────────────────────────────

func (w WellPositions) positions() []Position {
	if w.Positions == nil {
		return []Position{}
	}
	return w.Positions
}

// MarshalJSON encodes the wells as a JSON object in slice order.
func (w Wells) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range w {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Well)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.positions())
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping key order.
func (w *Wells) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("wells: expected object, got %v", tok)
	}

	out := Wells{}
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("wells: expected well name, got %v", tok)
		}
		if seen[name] {
			return fmt.Errorf("wells: duplicate well %q", name)
		}
		seen[name] = true

		var positions []Position
		if err := dec.Decode(&positions); err != nil {
			return fmt.Errorf("wells: %s: %w", name, err)
		}
		out = append(out, WellPositions{Well: name, Positions: positions})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*w = out
	return nil
}

// MarshalYAML encodes the wells as a YAML mapping in slice order.
func (w Wells) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, e := range w {
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Well}
		val := &yaml.Node{}
		if err := val.Encode(e.positions()); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, key, val)
	}
	return node, nil
}

// UnmarshalYAML decodes a YAML mapping keeping key order.
func (w *Wells) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("wells: expected mapping at line %d", value.Line)
	}
	out := Wells{}
	seen := make(map[string]bool)
	for i := 0; i+1 < len(value.Content); i += 2 {
		name := value.Content[i].Value
		if seen[name] {
			return fmt.Errorf("wells: duplicate well %q at line %d", name, value.Content[i].Line)
		}
		seen[name] = true

		var positions []Position
		if err := value.Content[i+1].Decode(&positions); err != nil {
			return fmt.Errorf("wells: %s: %w", name, err)
		}
		out = append(out, WellPositions{Well: name, Positions: positions})
	}
	*w = out
	return nil
}

// ─── Encoding and files ────────────────────────────────────────────

// ParseDocument decodes a document.
//
// Returns:
//   - *Document: Decoded document (not yet validated against a layout)
//   - error: Wraps ErrConfiguration on malformed input
func ParseDocument(data []byte, f Format) (*Document, error) {
	var d Document
	var err error
	switch f {
	case FormatYAML:
		err = yaml.Unmarshal(data, &d)
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&d)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return &d, nil
}

// Encode renders the document in its canonical form: four-space indented
// JSON or two-space indented YAML, with a trailing newline.
func (d *Document) Encode(f Format) ([]byte, error) {
	switch f {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(d); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		data, err := json.MarshalIndent(d, "", "    ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
}

// LoadDocument reads a document from disk, picking the format from the extension.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading experiment file: %w", err)
	}
	return ParseDocument(data, FormatFromPath(path))
}

// SaveDocument writes a document atomically (temp file + rename).
func SaveDocument(path string, d *Document) error {
	data, err := d.Encode(FormatFromPath(path))
	if err != nil {
		return fmt.Errorf("encoding experiment: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".experiment-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec // already returning the write error
		return fmt.Errorf("writing experiment file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing experiment file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming experiment file: %w", err)
	}
	return nil
}

// ─── Validation ────────────────────────────────────────────────────

// Validate checks the document against a layout. Every problem is
// collected; the error wraps ErrConfiguration.
func (d *Document) Validate(layout *deck.Layout) error {
	var errs []string

	if strings.TrimSpace(d.ExpInfo.Name) == "" {
		errs = append(errs, "exp_info.name is required")
	}
	if strings.ContainsAny(d.ExpInfo.Name, `/\`) {
		errs = append(errs, "exp_info.name must not contain path separators")
	}

	sp := d.ScanParams
	if sp.NumberScans < 1 {
		errs = append(errs, "scan_params.number_scans must be at least 1")
	}
	if sp.PeriodSeconds < 0 {
		errs = append(errs, "scan_params.period_seconds must not be negative")
	}
	for i, ch := range sp.IlluminationParams {
		if ch.Channel == "" {
			errs = append(errs, fmt.Sprintf("scan_params.illumination_params[%d].channel is required", i))
		}
		if ch.Intensity < 0 || ch.Intensity > 100 {
			errs = append(errs, fmt.Sprintf("scan_params.illumination_params[%d].intensity must be 0-100", i))
		}
	}
	if zs := sp.ZStackParams; zs.Enabled && (zs.ZHeight <= 0 || zs.ZSlices < 1) {
		errs = append(errs, "scan_params.z_stack_params needs z_height > 0 and z_slices >= 1 when enabled")
	}
	if af := sp.AutofocusParams; af.Enabled && (af.ZStep <= 0 || af.ZEnd < af.ZStart) {
		errs = append(errs, "scan_params.autofocus_params needs z_step > 0 and z_end >= z_start when enabled")
	}

	seenSlots := make(map[int]bool)
	for _, sc := range d.Slots {
		if seenSlots[sc.SlotNumber] {
			errs = append(errs, fmt.Sprintf("slot %d listed twice", sc.SlotNumber))
			continue
		}
		seenSlots[sc.SlotNumber] = true

		if layout == nil {
			continue
		}
		labware, err := layout.LabwareID(sc.SlotNumber)
		if err != nil {
			errs = append(errs, fmt.Sprintf("slot %d: %v", sc.SlotNumber, err))
			continue
		}
		if sc.LabwareID != "" && sc.LabwareID != labware {
			errs = append(errs, fmt.Sprintf("slot %d: labware %q does not match deck labware %q",
				sc.SlotNumber, sc.LabwareID, labware))
		}
		for gi, g := range sc.Groups {
			for _, w := range g.Wells {
				if _, err := layout.WellPosition(sc.SlotNumber, w.Well); err != nil {
					errs = append(errs, fmt.Sprintf("slot %d group %d: %v", sc.SlotNumber, gi, err))
				}
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(errs, "; "))
	}
	return nil
}

// ─── Copying ───────────────────────────────────────────────────────

// Clone deep-copies the document.
func (d *Document) Clone() *Document {
	out := *d
	if d.ScanParams.IlluminationParams != nil {
		out.ScanParams.IlluminationParams = append([]IlluminationChannel{}, d.ScanParams.IlluminationParams...)
	}
	if d.Slots == nil {
		return &out
	}
	out.Slots = make([]SlotConfig, len(d.Slots))
	for i, sc := range d.Slots {
		out.Slots[i] = sc
		if sc.Groups == nil {
			continue
		}
		out.Slots[i].Groups = make([]Group, len(sc.Groups))
		for gi, g := range sc.Groups {
			ng := Group{MuxChannel: copyInt(g.MuxChannel), Wells: make(Wells, len(g.Wells))}
			for wi, w := range g.Wells {
				ng.Wells[wi] = WellPositions{Well: w.Well, Positions: append([]Position(nil), w.Positions...)}
				if w.Positions != nil && len(w.Positions) == 0 {
					ng.Wells[wi].Positions = []Position{}
				}
			}
			out.Slots[i].Groups[gi] = ng
		}
	}
	return &out
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
