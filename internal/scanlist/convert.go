package scanlist

import (
	"fmt"

	"github.com/nerrad567/deckscan-core/internal/deck"
)

// FromDocument expands a document into scan points in document order
// (slot, group, well, position). Wells without positions are skipped.
// The first position found holds the reference focal plane.
func FromDocument(d *Document, resolver *deck.Resolver) ([]ScanPoint, error) {
	var points []ScanPoint
	var ref float64
	haveRef := false

	for _, sc := range d.Slots {
		for gi, g := range sc.Groups {
			for _, w := range g.Wells {
				if len(w.Positions) == 0 {
					continue
				}
				centre, err := resolver.WellCenter(sc.SlotNumber, w.Well)
				if err != nil {
					return nil, fmt.Errorf("%w: slot %d well %s: %w", ErrConfiguration, sc.SlotNumber, w.Well, err)
				}
				for idx, pos := range w.Positions {
					if !haveRef {
						ref, haveRef = pos.Z, true
					}
					points = append(points, ScanPoint{
						Slot:                sc.SlotNumber,
						LabwareID:           sc.LabwareID,
						Well:                w.Well,
						PositionInWellIndex: idx,
						OffsetFromCenterX:   pos.X,
						OffsetFromCenterY:   pos.Y,
						PositionX:           centre.X + pos.X,
						PositionY:           centre.Y + pos.Y,
						PositionZ:           pos.Z,
						RelativeFocusZ:      pos.Z - ref,
						Checked:             true,
						MuxChannel:          copyInt(g.MuxChannel),
						Group:               gi,
					})
				}
			}
		}
	}
	return points, nil
}

// ToDocument folds scan points back into the shape of base. Slots,
// groups and wells of base keep their order (empty wells included);
// points are appended to their well in list order, and slots, groups or
// wells that base does not know are appended at the end.
func ToDocument(points []ScanPoint, base *Document) *Document {
	out := base.Clone()
	for si := range out.Slots {
		for gi := range out.Slots[si].Groups {
			for wi := range out.Slots[si].Groups[gi].Wells {
				out.Slots[si].Groups[gi].Wells[wi].Positions = []Position{}
			}
		}
	}

	for _, p := range points {
		sc := findSlot(out, p)
		for len(sc.Groups) <= p.Group {
			sc.Groups = append(sc.Groups, Group{Wells: Wells{}, MuxChannel: copyInt(p.MuxChannel)})
		}
		g := &sc.Groups[p.Group]
		w := findWell(g, p.Well)
		w.Positions = append(w.Positions, Position{
			X: p.OffsetFromCenterX,
			Y: p.OffsetFromCenterY,
			Z: p.PositionZ,
		})
	}
	return out
}

func findSlot(d *Document, p ScanPoint) *SlotConfig {
	for i := range d.Slots {
		if d.Slots[i].SlotNumber == p.Slot {
			return &d.Slots[i]
		}
	}
	d.Slots = append(d.Slots, SlotConfig{SlotNumber: p.Slot, LabwareID: p.LabwareID})
	return &d.Slots[len(d.Slots)-1]
}

func findWell(g *Group, well string) *WellPositions {
	for i := range g.Wells {
		if g.Wells[i].Well == well {
			return &g.Wells[i]
		}
	}
	g.Wells = append(g.Wells, WellPositions{Well: well, Positions: []Position{}})
	return &g.Wells[len(g.Wells)-1]
}

// Load validates a document against the store's layout and replaces the
// list with its points. On error the store is unchanged.
func (s *Store) Load(d *Document) error {
	if err := d.Validate(s.resolver.Layout()); err != nil {
		return err
	}
	points, err := FromDocument(d, s.resolver)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	s.points = points
	s.base = d.Clone()
	s.reindexAll()
	s.dirty = false
	s.logger.Info("experiment loaded", "name", d.ExpInfo.Name, "points", len(points))
	return nil
}

// Document returns the current list folded into the loaded document.
func (s *Store) Document() *Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ToDocument(s.points, s.base)
}

// ScanParams returns the scan parameters of the loaded document.
func (s *Store) ScanParams() ScanParams {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base.Clone().ScanParams
}

// ExpInfo returns the experiment info of the loaded document.
func (s *Store) ExpInfo() ExpInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base.ExpInfo
}

// SetScanParams replaces the scan parameters.
func (s *Store) SetScanParams(p ScanParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	p.IlluminationParams = append([]IlluminationChannel(nil), p.IlluminationParams...)
	s.base.ScanParams = p
	s.dirty = true
	return nil
}

// SetExpInfo replaces the experiment info.
func (s *Store) SetExpInfo(info ExpInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	s.base.ExpInfo = info
	s.dirty = true
	return nil
}
