package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/deckscan-core/internal/scanlist"
)

// defaultRunsLimit bounds GET /experiment/runs without ?limit.
const defaultRunsLimit = 50

// maxRunsLimit caps ?limit.
const maxRunsLimit = 1000

// handleGetExperiment returns the loaded experiment, its edit state and
// the orchestrator state.
func (s *Server) handleGetExperiment(w http.ResponseWriter, _ *http.Request) {
	store := s.inst.Store
	orch := s.inst.Orchestrator

	resp := map[string]any{
		"exp_info":    store.ExpInfo(),
		"scan_params": store.ScanParams(),
		"points":      store.Len(),
		"dirty":       store.Dirty(),
		"state":       orch.State(),
		"progress":    orch.Progress(),
	}
	if run, ok := orch.CurrentRun(); ok {
		resp["run"] = run
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSetScanParams replaces the scan parameters.
func (s *Server) handleSetScanParams(w http.ResponseWriter, r *http.Request) {
	var p scanlist.ScanParams
	if !decodeBody(w, r, &p) {
		return
	}
	if err := s.inst.Store.SetScanParams(p); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scan_params": s.inst.Store.ScanParams(), "dirty": true})
}

// handleSetExpInfo replaces the experiment name and description.
func (s *Server) handleSetExpInfo(w http.ResponseWriter, r *http.Request) {
	var info scanlist.ExpInfo
	if !decodeBody(w, r, &info) {
		return
	}
	if err := s.inst.Store.SetExpInfo(info); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exp_info": s.inst.Store.ExpInfo(), "dirty": true})
}

// loadRequest names an experiment file in the experiment directory, or
// carries the document inline.
type loadRequest struct {
	File     string          `json:"file"`
	Document json.RawMessage `json:"document"`
}

// handleLoadExperiment replaces the scan list from a file or an inline document.
func (s *Server) handleLoadExperiment(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if !decodeBody(w, r, &req) {
		return
	}

	switch {
	case len(req.Document) > 0:
		doc, err := scanlist.ParseDocument(req.Document, scanlist.FormatJSON)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		if err := s.inst.Store.Load(doc); err != nil {
			s.writeDomainError(w, err)
			return
		}
	default:
		path, err := s.experimentPath(req.File)
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		if err := s.inst.LoadExperiment(path); err != nil {
			s.writeDomainError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"exp_info": s.inst.Store.ExpInfo(),
		"points":   s.inst.Store.Len(),
	})
}

// handleSaveExperiment writes the scan list to a file in the experiment directory.
func (s *Server) handleSaveExperiment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		File string `json:"file"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	path, err := s.experimentPath(req.File)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if err := s.inst.SaveExperiment(path); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"file": req.File, "dirty": false})
}

// handleStartExperiment launches a run in the background.
func (s *Server) handleStartExperiment(w http.ResponseWriter, r *http.Request) {
	runID, err := s.inst.Orchestrator.Start(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id": runID,
		"state":  s.inst.Orchestrator.State(),
	})
}

// handleStopExperiment requests a stop. With ?wait=true the response is
// sent once the worker has exited.
func (s *Server) handleStopExperiment(w http.ResponseWriter, r *http.Request) {
	orch := s.inst.Orchestrator
	if r.URL.Query().Get("wait") == "true" {
		if err := orch.Stop(r.Context()); err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"state": orch.State()})
		return
	}

	if err := orch.RequestStop(); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"state": orch.State()})
}

// handleResetExperiment returns a finished experiment to CREATED.
func (s *Server) handleResetExperiment(w http.ResponseWriter, _ *http.Request) {
	if err := s.inst.Orchestrator.Reset(); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": s.inst.Orchestrator.State()})
}

// handleGetProgress returns the progress snapshot and its status text.
func (s *Server) handleGetProgress(w http.ResponseWriter, _ *http.Request) {
	p := s.inst.Orchestrator.Progress()
	writeJSON(w, http.StatusOK, map[string]any{
		"progress": p,
		"text":     p.Text(),
	})
}

// handleListRuns returns the most recent runs.
//
// Query parameters:
//   - limit: maximum number of runs (default 50)
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "run history not configured")
		return
	}
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxRunsLimit {
			writeBadRequest(w, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// handleGetRun returns one run.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "run history not configured")
		return
	}
	run, err := s.runs.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleListRunFrames returns the frame index of a run.
func (s *Server) handleListRunFrames(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "run history not configured")
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := s.runs.GetRun(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	frames, err := s.runs.ListFrames(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"frames": frames, "count": len(frames)})
}
