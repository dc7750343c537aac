package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/deckscan-core/internal/deck"
	"github.com/nerrad567/deckscan-core/internal/scanlist"
)

// Focus adjustment scopes accepted by PUT /scanpoints/{index}/focus.
const (
	focusScopePoint = "point"
	focusScopeWell  = "well"
)

// editResponse is returned by every scan list mutation.
type editResponse struct {
	scanlist.EditResult
	Count int  `json:"count"`
	Dirty bool `json:"dirty"`
}

func (s *Server) writeEdit(w http.ResponseWriter, status int, res scanlist.EditResult) {
	writeJSON(w, status, editResponse{
		EditResult: res,
		Count:      s.inst.Store.Len(),
		Dirty:      s.inst.Store.Dirty(),
	})
}

// pointIndex parses the {index} URL parameter.
func pointIndex(r *http.Request) (int, bool) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// decodeBody decodes a JSON request body, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// handleListScanPoints returns the scan list in run order.
func (s *Server) handleListScanPoints(w http.ResponseWriter, _ *http.Request) {
	points := s.inst.Store.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"points": points,
		"count":  len(points),
		"dirty":  s.inst.Store.Dirty(),
	})
}

// handleGetScanPoint returns one scan point.
func (s *Server) handleGetScanPoint(w http.ResponseWriter, r *http.Request) {
	index, ok := pointIndex(r)
	if !ok {
		writeBadRequest(w, "invalid point index")
		return
	}
	p, err := s.inst.Store.Get(index)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// addPointRequest is the body of POST /scanpoints. A missing position
// adds the current stage position.
type addPointRequest struct {
	Position *deck.Point `json:"position"`
}

// handleAddScanPoint appends a point.
func (s *Server) handleAddScanPoint(w http.ResponseWriter, r *http.Request) {
	var req addPointRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	pos := req.Position
	if pos == nil {
		cur, err := s.inst.Position()
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		pos = &cur
	}

	res, err := s.inst.Store.Append(*pos)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeEdit(w, http.StatusCreated, res)
}

// handleClearScanPoints empties the list.
func (s *Server) handleClearScanPoints(w http.ResponseWriter, _ *http.Request) {
	res, err := s.inst.Store.Clear()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeEdit(w, http.StatusOK, res)
}

// beaconsRequest is the body of POST /scanpoints/beacons. A missing
// center uses the current stage position.
type beaconsRequest struct {
	Center *deck.Point `json:"center"`
	NX     int         `json:"nx"`
	NY     int         `json:"ny"`
	DX     float64     `json:"dx"`
	DY     float64     `json:"dy"`
}

// handleInsertBeacons appends a grid of points around a centre.
func (s *Server) handleInsertBeacons(w http.ResponseWriter, r *http.Request) {
	var req beaconsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	center := req.Center
	if center == nil {
		cur, err := s.inst.Position()
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		center = &cur
	}

	res, err := s.inst.Store.InsertBeacons(*center, req.NX, req.NY, req.DX, req.DY)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeEdit(w, http.StatusCreated, res)
}

// handleDeleteScanPoint removes one point.
func (s *Server) handleDeleteScanPoint(w http.ResponseWriter, r *http.Request) {
	index, ok := pointIndex(r)
	if !ok {
		writeBadRequest(w, "invalid point index")
		return
	}
	res, err := s.inst.Store.Delete(index)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeEdit(w, http.StatusOK, res)
}

// handleDuplicateScanPoint inserts a copy of a point right after it.
func (s *Server) handleDuplicateScanPoint(w http.ResponseWriter, r *http.Request) {
	index, ok := pointIndex(r)
	if !ok {
		writeBadRequest(w, "invalid point index")
		return
	}
	res, err := s.inst.Store.Duplicate(index)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeEdit(w, http.StatusCreated, res)
}

// focusRequest sets a focus height. Scope is "point" (default) or "well".
type focusRequest struct {
	Z     *float64 `json:"z"`
	Scope string   `json:"scope"`
}

// handleAdjustFocus sets the z of one point or of every point in its well.
func (s *Server) handleAdjustFocus(w http.ResponseWriter, r *http.Request) {
	index, ok := pointIndex(r)
	if !ok {
		writeBadRequest(w, "invalid point index")
		return
	}
	var req focusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Z == nil {
		writeBadRequest(w, "z is required")
		return
	}

	var (
		res scanlist.EditResult
		err error
	)
	switch req.Scope {
	case focusScopePoint, "":
		res, err = s.inst.Store.AdjustFocus(index, *req.Z)
	case focusScopeWell:
		res, err = s.inst.Store.AdjustFocusForWell(index, *req.Z)
	default:
		writeBadRequest(w, "scope must be point or well")
		return
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeEdit(w, http.StatusOK, res)
}

// handleAdjustAllFocus sets the z of every point.
func (s *Server) handleAdjustAllFocus(w http.ResponseWriter, r *http.Request) {
	var req focusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Z == nil {
		writeBadRequest(w, "z is required")
		return
	}
	res, err := s.inst.Store.AdjustAllFocus(*req.Z)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeEdit(w, http.StatusOK, res)
}

// handleAdjustPosition moves one point within its well.
func (s *Server) handleAdjustPosition(w http.ResponseWriter, r *http.Request) {
	index, ok := pointIndex(r)
	if !ok {
		writeBadRequest(w, "invalid point index")
		return
	}
	var pos deck.Point
	if !decodeBody(w, r, &pos) {
		return
	}
	res, err := s.inst.Store.AdjustPosition(index, pos)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeEdit(w, http.StatusOK, res)
}

// handleSetChecked includes or excludes a point from runs.
func (s *Server) handleSetChecked(w http.ResponseWriter, r *http.Request) {
	index, ok := pointIndex(r)
	if !ok {
		writeBadRequest(w, "invalid point index")
		return
	}
	var req struct {
		Checked bool `json:"checked"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.inst.Store.SetChecked(index, req.Checked)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeEdit(w, http.StatusOK, res)
}

// handleOffsetAll shifts every point by the same delta.
func (s *Server) handleOffsetAll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DX float64 `json:"dx"`
		DY float64 `json:"dy"`
		DZ float64 `json:"dz"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.inst.Store.OffsetAll(req.DX, req.DY, req.DZ)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeEdit(w, http.StatusOK, res)
}

// handleZero moves the reference focal plane to z, shifting every point.
// A missing z uses the current stage height.
func (s *Server) handleZero(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Z *float64 `json:"z"`
	}
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	if req.Z == nil {
		cur, err := s.inst.Position()
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		req.Z = &cur.Z
	}
	res, err := s.inst.Store.Zero(*req.Z)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeEdit(w, http.StatusOK, res)
}

// handleFocusPlane returns the least-squares focus plane of the list.
func (s *Server) handleFocusPlane(w http.ResponseWriter, _ *http.Request) {
	plane, err := s.inst.Store.FocusPlane()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{
		"a":   plane.A,
		"b":   plane.B,
		"c":   plane.C,
		"rms": plane.RMS,
	})
}

// handleGotoScanPoint moves the stage to a point.
func (s *Server) handleGotoScanPoint(w http.ResponseWriter, r *http.Request) {
	index, ok := pointIndex(r)
	if !ok {
		writeBadRequest(w, "invalid point index")
		return
	}
	p, err := s.inst.Store.Get(index)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if err := s.timedMove(r, "goto", func() error {
		return s.inst.MoveTo(r.Context(), p.Position())
	}); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writePosition(w)
}
