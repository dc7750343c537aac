package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.withRequestID, s.observe, s.recoverPanics, s.cors, limitBody)

	// Prometheus scrape endpoint
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/deck", s.handleGetDeck)

		// Scan point list
		r.Route("/scanpoints", func(r chi.Router) {
			r.Get("/", s.handleListScanPoints)
			r.Post("/", s.handleAddScanPoint)
			r.Delete("/", s.handleClearScanPoints)
			r.Post("/beacons", s.handleInsertBeacons)
			r.Post("/offset", s.handleOffsetAll)
			r.Post("/zero", s.handleZero)
			r.Put("/focus", s.handleAdjustAllFocus)
			r.Get("/focus-plane", s.handleFocusPlane)

			r.Route("/{index}", func(r chi.Router) {
				r.Get("/", s.handleGetScanPoint)
				r.Delete("/", s.handleDeleteScanPoint)
				r.Post("/duplicate", s.handleDuplicateScanPoint)
				r.Put("/focus", s.handleAdjustFocus)
				r.Put("/position", s.handleAdjustPosition)
				r.Put("/checked", s.handleSetChecked)
				r.Post("/goto", s.handleGotoScanPoint)
			})
		})

		// Experiment document and run control
		r.Route("/experiment", func(r chi.Router) {
			r.Get("/", s.handleGetExperiment)
			r.Put("/params", s.handleSetScanParams)
			r.Put("/info", s.handleSetExpInfo)
			r.Post("/load", s.handleLoadExperiment)
			r.Post("/save", s.handleSaveExperiment)
			r.Post("/start", s.handleStartExperiment)
			r.Post("/stop", s.handleStopExperiment)
			r.Post("/reset", s.handleResetExperiment)
			r.Get("/progress", s.handleGetProgress)
			r.Get("/runs", s.handleListRuns)
			r.Get("/runs/{id}", s.handleGetRun)
			r.Get("/runs/{id}/frames", s.handleListRunFrames)
		})

		// Manual stage control
		r.Route("/stage", func(r chi.Router) {
			r.Get("/position", s.handleStagePosition)
			r.Post("/move", s.handleStageMove)
			r.Post("/home", s.handleStageHome)
			r.Post("/park", s.handleStagePark)
			r.Post("/stop/{axis}", s.handleStageStop)
		})

		// Interactive autofocus
		r.Route("/autofocus", func(r chi.Router) {
			r.Get("/", s.handleGetAutofocus)
			r.Post("/start", s.handleStartAutofocus)
			r.Post("/preview", s.handlePreviewAutofocus)
			r.Post("/stop", s.handleStopAutofocus)
		})

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":         "ok",
		"version":        s.version,
		"instrument":     s.inst.ID,
		"experiment":     s.inst.Orchestrator.State(),
		"stage_holder":   s.inst.Owner.Holder(),
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	}
	if s.mqtt != nil {
		resp["mqtt_connected"] = s.mqtt.IsConnected()
	}
	writeJSON(w, http.StatusOK, resp)
}
