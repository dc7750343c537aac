package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/deckscan-core/internal/deck"
	"github.com/nerrad567/deckscan-core/internal/motion"
)

// moveRequest is the body of POST /stage/move. Either a position (absolute,
// or relative when Relative is set) or a slot and well is given. A move to
// a well keeps the current Z.
type moveRequest struct {
	X        *float64 `json:"x"`
	Y        *float64 `json:"y"`
	Z        *float64 `json:"z"`
	Relative bool     `json:"relative"`

	Slot int    `json:"slot"`
	Well string `json:"well"`
}

// timedMove runs a stage operation and records its duration.
func (s *Server) timedMove(r *http.Request, op string, fn func() error) error {
	start := time.Now()
	err := fn()
	s.metrics.observeMove(op, time.Since(start), err)
	if err != nil {
		s.logger.Warn("stage operation failed", "op", op, "error", err,
			"request_id", requestID(r.Context()))
	}
	return err
}

// writePosition responds with the current stage position.
func (s *Server) writePosition(w http.ResponseWriter) {
	pos, err := s.inst.Position()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"position": pos,
		"holder":   s.inst.Owner.Holder(),
	})
}

// handleStagePosition returns the current stage position.
func (s *Server) handleStagePosition(w http.ResponseWriter, _ *http.Request) {
	s.writePosition(w)
}

// handleStageMove moves the stage. Omitted axes keep their current value
// for absolute moves and are not moved for relative ones.
func (s *Server) handleStageMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ctx := r.Context()

	var err error
	switch {
	case req.Well != "":
		err = s.timedMove(r, "move_well", func() error {
			return s.inst.MoveToWell(ctx, req.Slot, req.Well)
		})
	case req.X == nil && req.Y == nil && req.Z == nil:
		writeBadRequest(w, "x, y, z or slot and well required")
		return
	case req.Relative:
		delta := deck.Point{X: deref(req.X, 0), Y: deref(req.Y, 0), Z: deref(req.Z, 0)}
		err = s.timedMove(r, "move_relative", func() error {
			return s.inst.MoveBy(ctx, delta)
		})
	default:
		cur, posErr := s.inst.Position()
		if posErr != nil {
			s.writeDomainError(w, posErr)
			return
		}
		target := deck.Point{X: deref(req.X, cur.X), Y: deref(req.Y, cur.Y), Z: deref(req.Z, cur.Z)}
		err = s.timedMove(r, "move", func() error {
			return s.inst.MoveTo(ctx, target)
		})
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writePosition(w)
}

// handleStageHome homes every axis, or one with ?axis=x.
func (s *Server) handleStageHome(w http.ResponseWriter, r *http.Request) {
	var err error
	if name := r.URL.Query().Get("axis"); name != "" {
		axis, parseErr := motion.ParseAxis(name)
		if parseErr != nil {
			s.writeDomainError(w, parseErr)
			return
		}
		err = s.timedMove(r, "home_axis", func() error {
			return s.inst.HomeAxis(r.Context(), axis)
		})
	} else {
		err = s.timedMove(r, "home", func() error {
			return s.inst.Home(r.Context())
		})
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writePosition(w)
}

// handleStagePark runs the safe idle sequence.
func (s *Server) handleStagePark(w http.ResponseWriter, r *http.Request) {
	if err := s.timedMove(r, "park", func() error {
		return s.inst.Park(r.Context())
	}); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writePosition(w)
}

// handleStageStop halts one axis.
func (s *Server) handleStageStop(w http.ResponseWriter, r *http.Request) {
	axis, err := motion.ParseAxis(chi.URLParam(r, "axis"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if err := s.inst.StopAxis(axis); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writePosition(w)
}

func deref(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
