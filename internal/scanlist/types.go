package scanlist

import "github.com/nerrad567/deckscan-core/internal/deck"

// ScanPoint is one planned acquisition position.
type ScanPoint struct {
	Slot                int    `json:"slot"`
	LabwareID           string `json:"labware_id"`
	Well                string `json:"well"`
	PositionInWellIndex int    `json:"position_in_well_index"`

	// Offset from the well centre, stage units.
	OffsetFromCenterX float64 `json:"offset_from_center_x"`
	OffsetFromCenterY float64 `json:"offset_from_center_y"`

	// Absolute stage position. X/Y are well centre + offset, Z is the focus height.
	PositionX float64 `json:"position_x"`
	PositionY float64 `json:"position_y"`
	PositionZ float64 `json:"position_z"`

	// RelativeFocusZ is PositionZ minus the reference focal plane.
	RelativeFocusZ float64 `json:"relative_focus_z"`

	// Checked marks the point as included in runs.
	Checked bool `json:"checked"`

	// MuxChannel is an optional fluidics routing tag.
	MuxChannel *int `json:"mux_channel,omitempty"`

	// Group is the index of the document group (within the slot) the point belongs to.
	Group int `json:"group"`
}

// Position returns the absolute stage position.
func (p ScanPoint) Position() deck.Point {
	return deck.Point{X: p.PositionX, Y: p.PositionY, Z: p.PositionZ}
}

// Key returns the (slot, well) group key.
func (p ScanPoint) Key() WellKey {
	return WellKey{Slot: p.Slot, Well: p.Well}
}

// clone deep-copies the point.
func (p ScanPoint) clone() ScanPoint {
	if p.MuxChannel != nil {
		v := *p.MuxChannel
		p.MuxChannel = &v
	}
	return p
}

// WellKey identifies a (slot, well) group.
type WellKey struct {
	Slot int
	Well string
}

// EditStatus tells callers whether an edit changed the list.
type EditStatus string

// Edit statuses.
const (
	StatusChanged   EditStatus = "changed"
	StatusSameValue EditStatus = "same_value"
)

// Status message shown after any edit that changed the list.
const msgUnsaved = "Unsaved changes."

// EditResult describes the outcome of a successful edit.
type EditResult struct {
	Status  EditStatus `json:"status"`
	Message string     `json:"message"`
}

func changed() EditResult {
	return EditResult{Status: StatusChanged, Message: msgUnsaved}
}

func sameValue(msg string) EditResult {
	return EditResult{Status: StatusSameValue, Message: msg}
}
