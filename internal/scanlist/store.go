package scanlist

import (
	"fmt"
	"sync"

	"github.com/nerrad567/deckscan-core/internal/deck"
)

// Logger defines the logging interface used by the scanlist package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store is the ordered scan-point list plus its derived bookkeeping.
//
// Thread Safety: All methods are safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	resolver *deck.Resolver
	points   []ScanPoint
	base     *Document // skeleton + parameters of the loaded document
	dirty    bool
	readOnly string
	logger   Logger
}

// NewStore creates an empty store bound to a resolver.
func NewStore(resolver *deck.Resolver) *Store {
	return &Store{
		resolver: resolver,
		base:     &Document{},
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// Resolver returns the resolver used for interactive edits.
func (s *Store) Resolver() *deck.Resolver {
	return s.resolver
}

// SetReadOnly rejects every edit with ErrReadOnly until cleared with an
// empty reason.
func (s *Store) SetReadOnly(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readOnly = reason
}

// Dirty reports whether the list changed since the last load or save.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// MarkSaved clears the dirty flag.
func (s *Store) MarkSaved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = false
}

// Len returns the number of points.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

// Get returns a copy of the point at index.
func (s *Store) Get(index int) (ScanPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkIndex(index); err != nil {
		return ScanPoint{}, err
	}
	return s.points[index].clone(), nil
}

// Snapshot returns a deep copy of the list.
func (s *Store) Snapshot() []ScanPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ScanPoint, len(s.points))
	for i, p := range s.points {
		out[i] = p.clone()
	}
	return out
}

// Reference returns the reference focal plane (z of the first point).
func (s *Store) Reference() (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.points) == 0 {
		return 0, false
	}
	return s.points[0].PositionZ, true
}

// ─── Guards ────────────────────────────────────────────────────────

// checkIndex validates index. Caller holds s.mu.
func (s *Store) checkIndex(index int) error {
	if index < 0 || index >= len(s.points) {
		return validationErr(ErrIndexOutOfRange, "index %d, list has %d points", index, len(s.points))
	}
	return nil
}

// writable rejects edits while read-only. Caller holds s.mu.
func (s *Store) writable() error {
	if s.readOnly != "" {
		return fmt.Errorf("%w: %s", ErrReadOnly, s.readOnly)
	}
	return nil
}

// ─── Derived bookkeeping ───────────────────────────────────────────

// reindexAll renumbers position_in_well_index for every group. Caller holds s.mu.
func (s *Store) reindexAll() {
	counts := make(map[WellKey]int)
	for i := range s.points {
		k := s.points[i].Key()
		s.points[i].PositionInWellIndex = counts[k]
		counts[k]++
	}
}

// reindexGroup renumbers the members of one (slot, well) group only. Caller holds s.mu.
func (s *Store) reindexGroup(k WellKey) {
	n := 0
	for i := range s.points {
		if s.points[i].Key() == k {
			s.points[i].PositionInWellIndex = n
			n++
		}
	}
}

// propagateFocus recomputes relative_focus_z for every point from the
// reference (z of point 0). Caller holds s.mu.
func (s *Store) propagateFocus() {
	if len(s.points) == 0 {
		return
	}
	ref := s.points[0].PositionZ
	for i := range s.points {
		s.points[i].RelativeFocusZ = s.points[i].PositionZ - ref
	}
}

// setFocus applies a new z to one point, propagating when it is the
// reference. Caller holds s.mu.
func (s *Store) setFocus(index int, z float64) {
	s.points[index].PositionZ = z
	if index == 0 {
		s.propagateFocus()
		return
	}
	s.points[index].RelativeFocusZ = z - s.points[0].PositionZ
}

// ─── Construction ──────────────────────────────────────────────────

// pointAt resolves a stage position into a new point. Caller holds s.mu.
func (s *Store) pointAt(pos deck.Point) (ScanPoint, error) {
	addr, err := s.resolver.Resolve(pos)
	if err != nil {
		return ScanPoint{}, err
	}
	p := ScanPoint{
		Slot:              addr.Slot,
		LabwareID:         addr.LabwareID,
		Well:              addr.Well,
		OffsetFromCenterX: addr.Offset.X,
		OffsetFromCenterY: addr.Offset.Y,
		PositionX:         pos.X,
		PositionY:         pos.Y,
		PositionZ:         pos.Z,
		Checked:           true,
		Group:             s.groupFor(addr.Slot, addr.Well),
	}
	if len(s.points) > 0 {
		p.RelativeFocusZ = pos.Z - s.points[0].PositionZ
	}
	return p, nil
}

// groupFor picks the document group for a new point: the group of an
// existing point in the same well, else in the same slot, else 0.
func (s *Store) groupFor(slot int, well string) int {
	group, found := 0, false
	for _, p := range s.points {
		if p.Slot != slot {
			continue
		}
		if p.Well == well {
			return p.Group
		}
		if !found {
			group, found = p.Group, true
		}
	}
	return group
}

// ─── Edits ─────────────────────────────────────────────────────────

// Append resolves a stage position and appends it. The first point of an
// empty list becomes the focus reference.
//
// Returns:
//   - EditResult: StatusChanged on success
//   - error: Wrapped deck.ErrResolution if the position cannot be mapped
func (s *Store) Append(pos deck.Point) (EditResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return EditResult{}, err
	}

	p, err := s.pointAt(pos)
	if err != nil {
		return EditResult{}, err
	}
	s.points = append(s.points, p)
	s.reindexGroup(p.Key())
	s.dirty = true
	s.logger.Debug("scan point added", "slot", p.Slot, "well", p.Well, "index", len(s.points)-1)
	return changed(), nil
}

// BeaconOffsets returns the planar offsets of an nx×ny grid centred on 0,
// x-major (all y for the first x, then the next x).
func BeaconOffsets(nx, ny int, dx, dy float64) []deck.Point {
	out := make([]deck.Point, 0, nx*ny)
	for i := 0; i < nx; i++ {
		x := dx * (float64(i) - float64(nx-1)/2)
		for j := 0; j < ny; j++ {
			y := dy * (float64(j) - float64(ny-1)/2)
			out = append(out, deck.Point{X: x, Y: y})
		}
	}
	return out
}

// InsertBeacons appends an nx×ny grid of points centred on center, spaced
// dx, dy (stage units). Every grid point goes through the same resolve path
// as Append; if any fails, nothing is added.
func (s *Store) InsertBeacons(center deck.Point, nx, ny int, dx, dy float64) (EditResult, error) {
	if nx < 1 || ny < 1 {
		return EditResult{}, validationErr(ErrInvalidGrid, "nx=%d ny=%d", nx, ny)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return EditResult{}, err
	}

	offsets := BeaconOffsets(nx, ny, dx, dy)
	batch := make([]ScanPoint, 0, len(offsets))
	for _, off := range offsets {
		p, err := s.pointAt(center.Add(off))
		if err != nil {
			return EditResult{}, fmt.Errorf("beacon at offset %s: %w", off, err)
		}
		batch = append(batch, p)
	}

	wasEmpty := len(s.points) == 0
	s.points = append(s.points, batch...)
	if wasEmpty {
		s.propagateFocus()
	}
	s.reindexAll()
	s.dirty = true
	s.logger.Debug("beacons added", "count", len(batch), "nx", nx, "ny", ny)
	return changed(), nil
}

// Delete removes the point at index and renumbers its well group.
func (s *Store) Delete(index int) (EditResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return EditResult{}, err
	}
	if err := s.checkIndex(index); err != nil {
		return EditResult{}, err
	}

	removed := s.points[index]
	s.points = append(s.points[:index], s.points[index+1:]...)
	s.reindexGroup(removed.Key())
	if index == 0 {
		s.propagateFocus()
	}
	s.dirty = true
	s.logger.Debug("scan point deleted", "index", index, "slot", removed.Slot, "well", removed.Well)
	return changed(), nil
}

// ReindexAll renumbers every well group.
func (s *Store) ReindexAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reindexAll()
}

// Duplicate inserts a deep copy of the point immediately after index.
func (s *Store) Duplicate(index int) (EditResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return EditResult{}, err
	}
	if err := s.checkIndex(index); err != nil {
		return EditResult{}, err
	}

	dup := s.points[index].clone()
	s.points = append(s.points, ScanPoint{})
	copy(s.points[index+2:], s.points[index+1:])
	s.points[index+1] = dup
	s.reindexGroup(dup.Key())
	s.dirty = true
	s.logger.Debug("scan point duplicated", "index", index)
	return changed(), nil
}

// AdjustFocus sets the focus z of one point. Adjusting point 0 moves the
// reference plane and re-derives relative_focus_z for every other point.
// Setting the current value is a reported no-op.
func (s *Store) AdjustFocus(index int, z float64) (EditResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return EditResult{}, err
	}
	if err := s.checkIndex(index); err != nil {
		return EditResult{}, err
	}

	old := s.points[index].PositionZ
	if old == z {
		s.logger.Debug("adjusting focus: same focus selected", "index", index, "z", z)
		return sameValue("Adjusting focus: same focus selected."), nil
	}
	s.setFocus(index, z)
	s.dirty = true
	if index == 0 {
		s.logger.Debug("adjusting focus: reference plane changed", "from", old, "to", z)
	} else {
		s.logger.Debug("adjusting focus", "index", index, "from", old, "to", z)
	}
	return changed(), nil
}

// AdjustFocusForWell sets the focus z of every point sharing the well of
// the point at index.
func (s *Store) AdjustFocusForWell(index int, z float64) (EditResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return EditResult{}, err
	}
	if err := s.checkIndex(index); err != nil {
		return EditResult{}, err
	}

	k := s.points[index].Key()
	touched := false
	for i := range s.points {
		if s.points[i].Key() == k && s.points[i].PositionZ != z {
			s.points[i].PositionZ = z
			touched = true
		}
	}
	if !touched {
		return sameValue("Adjusting focus: same focus selected."), nil
	}
	s.propagateFocus()
	s.dirty = true
	return changed(), nil
}

// AdjustAllFocus sets the same focus z on every point.
func (s *Store) AdjustAllFocus(z float64) (EditResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return EditResult{}, err
	}
	if len(s.points) == 0 {
		return sameValue("Scan list is empty."), nil
	}
	for i := range s.points {
		s.points[i].PositionZ = z
	}
	s.propagateFocus()
	s.dirty = true
	return changed(), nil
}

// Zero moves the reference plane to z, shifting every point by the same
// amount so relative focus values are kept.
func (s *Store) Zero(z float64) (EditResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return EditResult{}, err
	}
	if len(s.points) == 0 {
		return sameValue("Scan list is empty."), nil
	}
	delta := z - s.points[0].PositionZ
	if delta == 0 {
		return sameValue("Zero: reference unchanged."), nil
	}
	for i := range s.points {
		s.points[i].PositionZ += delta
	}
	s.propagateFocus()
	s.dirty = true
	return changed(), nil
}

// AdjustPosition moves a point to a new stage position within its well.
// The new position is re-resolved; a position that resolves to a different
// slot or well is rejected with ErrCrossWell and nothing changes.
func (s *Store) AdjustPosition(index int, pos deck.Point) (EditResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return EditResult{}, err
	}
	if err := s.checkIndex(index); err != nil {
		return EditResult{}, err
	}

	cur := s.points[index]
	addr, err := s.resolver.Resolve(pos)
	if err != nil {
		return EditResult{}, err
	}
	if addr.Slot != cur.Slot || addr.Well != cur.Well {
		s.logger.Warn("adjusting position: can only adjust within the same well",
			"well", cur.Well, "slot", cur.Slot, "new_well", addr.Well, "new_slot", addr.Slot)
		return EditResult{}, validationErr(ErrCrossWell,
			"point %d is in well %s (slot %d), new position is in well %s (slot %d)",
			index, cur.Well, cur.Slot, addr.Well, addr.Slot)
	}
	if cur.Position() == pos {
		return sameValue("Adjusting position: same position selected."), nil
	}

	p := &s.points[index]
	p.PositionX, p.PositionY = pos.X, pos.Y
	p.OffsetFromCenterX, p.OffsetFromCenterY = addr.Offset.X, addr.Offset.Y
	s.setFocus(index, pos.Z)
	s.reindexAll()
	s.dirty = true
	s.logger.Debug("adjusting position", "index", index, "from", cur.Position().String(), "to", pos.String())
	return changed(), nil
}

// OffsetAll shifts every point by (dx, dy, dz). Slot and well assignments
// are kept even when a point ends up outside its well.
func (s *Store) OffsetAll(dx, dy, dz float64) (EditResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return EditResult{}, err
	}
	if dx == 0 && dy == 0 && dz == 0 {
		return sameValue("Offsets unchanged."), nil
	}
	for i := range s.points {
		p := &s.points[i]
		p.OffsetFromCenterX += dx
		p.OffsetFromCenterY += dy
		p.PositionX += dx
		p.PositionY += dy
		p.PositionZ += dz
	}
	s.propagateFocus()
	s.dirty = true
	s.logger.Debug("adjusting offsets", "dx", dx, "dy", dy, "dz", dz)
	return changed(), nil
}

// SetChecked includes or excludes a point from runs.
func (s *Store) SetChecked(index int, checked bool) (EditResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return EditResult{}, err
	}
	if err := s.checkIndex(index); err != nil {
		return EditResult{}, err
	}
	if s.points[index].Checked == checked {
		return sameValue("Selection unchanged."), nil
	}
	s.points[index].Checked = checked
	return changed(), nil
}

// Clear removes every point.
func (s *Store) Clear() (EditResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return EditResult{}, err
	}
	if len(s.points) == 0 {
		return sameValue("Scan list is empty."), nil
	}
	s.points = nil
	s.dirty = true
	return changed(), nil
}
