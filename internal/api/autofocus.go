package api

import (
	"context"
	"net/http"
	"time"

	"github.com/nerrad567/deckscan-core/internal/autofocus"
)

// focusResult is the JSON form of a finished interactive sweep.
type focusResult struct {
	Z          []float64 `json:"z"`
	Scores     []float64 `json:"scores"`
	BestZ      float64   `json:"best_z"`
	Focus      bool      `json:"focus"`
	Stopped    bool      `json:"stopped"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

func newFocusResult(res autofocus.Result) *focusResult {
	out := &focusResult{
		Z:          res.Z,
		Scores:     res.Scores,
		BestZ:      res.BestZ,
		Focus:      res.Focus,
		Stopped:    res.Stopped,
		FinishedAt: time.Now().UTC(),
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

// sweepRequest overrides the configured z range of a focus sweep.
type sweepRequest struct {
	ZStart *float64 `json:"z_start"`
	ZEnd   *float64 `json:"z_end"`
	ZStep  *float64 `json:"z_step"`
}

// sweepDone stores and broadcasts the result of an interactive sweep.
func (s *Server) sweepDone(res autofocus.Result) {
	out := newFocusResult(res)
	s.afMu.Lock()
	s.afResult = out
	s.afMu.Unlock()
	s.hub.Broadcast(ChannelAutofocus, out)
}

// handleGetAutofocus reports whether a sweep runs and the last result.
func (s *Server) handleGetAutofocus(w http.ResponseWriter, _ *http.Request) {
	s.afMu.Lock()
	last := s.afResult
	s.afMu.Unlock()

	resp := map[string]any{"running": s.inst.Focus.Running()}
	if last != nil {
		resp["last"] = last
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStartAutofocus launches a focus sweep at the current X/Y. The
// result arrives on the autofocus.result WebSocket channel and through
// GET /autofocus.
func (s *Server) handleStartAutofocus(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	// The sweep outlives the request.
	ctx := context.WithoutCancel(r.Context())

	var err error
	if req.ZStart == nil && req.ZEnd == nil && req.ZStep == nil {
		err = s.inst.StartAutofocus(ctx, s.sweepDone)
	} else {
		if req.ZStart == nil || req.ZEnd == nil || req.ZStep == nil {
			writeBadRequest(w, "z_start, z_end and z_step must be given together")
			return
		}
		err = s.inst.StartAutofocusRange(ctx, *req.ZStart, *req.ZEnd, *req.ZStep, s.sweepDone)
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"running": true})
}

// handlePreviewAutofocus launches a z-scan preview over explicit positions.
func (s *Server) handlePreviewAutofocus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Z []float64 `json:"z"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	ctx := context.WithoutCancel(r.Context())
	if err := s.inst.Focus.Preview(ctx, req.Z, s.inst.Camera, s.sweepDone); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"running": true})
}

// handleStopAutofocus interrupts a running sweep and waits for it to end.
func (s *Server) handleStopAutofocus(w http.ResponseWriter, _ *http.Request) {
	s.inst.StopAutofocus()
	writeJSON(w, http.StatusOK, map[string]any{"running": false})
}
