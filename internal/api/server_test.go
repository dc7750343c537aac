package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/deckscan-core/internal/deck"
	"github.com/nerrad567/deckscan-core/internal/experiment"
	"github.com/nerrad567/deckscan-core/internal/infrastructure/config"
	"github.com/nerrad567/deckscan-core/internal/motion"
	"github.com/nerrad567/deckscan-core/internal/scanlist"
)

// ─── Health and Middleware ─────────────────────────────────────────

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: testLogger(t)}); err == nil {
		t.Error("New() without instrument should fail")
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/v1/health", nil)
	assertStatus(t, w, http.StatusOK)

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var resp map[string]any
	decode(t, w, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["instrument"] != "scope-api" {
		t.Errorf("instrument = %v, want scope-api", resp["instrument"])
	}
	if resp["experiment"] != string(experiment.StateCreated) {
		t.Errorf("experiment = %v, want CREATED", resp["experiment"])
	}
	if _, ok := resp["mqtt_connected"]; ok {
		t.Error("mqtt_connected should be absent without an MQTT client")
	}
}

type fakeConn struct{ connected bool }

func (f fakeConn) IsConnected() bool { return f.connected }

func TestHealth_ReportsMQTT(t *testing.T) {
	env := newTestEnv(t, nil)
	env.srv.mqtt = fakeConn{connected: true}

	var resp map[string]any
	decode(t, env.do(t, http.MethodGet, "/api/v1/health", nil), &resp)
	if resp["mqtt_connected"] != true {
		t.Errorf("mqtt_connected = %v, want true", resp["mqtt_connected"])
	}
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/v1/health", nil)
	if id := w.Header().Get("X-Request-ID"); len(id) != 2*requestIDBytes {
		t.Errorf("generated X-Request-ID = %q, want %d hex chars", id, 2*requestIDBytes)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-42")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if id := rec.Header().Get("X-Request-ID"); id != "client-42" {
		t.Errorf("X-Request-ID = %q, want client-42", id)
	}
}

func TestCORS_Preflight(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/scanpoints", nil)
	req.Header.Set("Origin", "http://bench.local")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://bench.local" {
		t.Errorf("Allow-Origin = %q, want the request origin", got)
	}
}

func TestCORS_RejectsUnlistedOrigin(t *testing.T) {
	env := newTestEnv(t, nil)
	env.srv.cfg.CORS.AllowedOrigins = []string{"http://lab.local"}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://elsewhere")
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q, want empty", got)
	}
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, http.MethodGet, "/api/v1/devices", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestServer_StartAndClose(t *testing.T) {
	env := newTestEnv(t, nil)
	env.srv.cfg.Port = 0

	if err := env.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
	if err := env.srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := env.srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error: %v", err)
	}
	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

func TestServer_CloseWithoutStart(t *testing.T) {
	env := newTestEnv(t, nil)
	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

// ─── Deck ──────────────────────────────────────────────────────────

func TestGetDeck(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/v1/deck", nil)
	assertStatus(t, w, http.StatusOK)

	var resp struct {
		Name  string     `json:"name"`
		Units string     `json:"units"`
		Slots []slotView `json:"slots"`
	}
	decode(t, w, &resp)

	if resp.Name != "api-deck" || resp.Units != "mm2um" {
		t.Errorf("name/units = %q/%q, want api-deck/mm2um", resp.Name, resp.Units)
	}
	if len(resp.Slots) != 2 {
		t.Fatalf("len(slots) = %d, want 2", len(resp.Slots))
	}
	plate := resp.Slots[0]
	if plate.LabwareID != "corning_96_wellplate_360ul_flat" || len(plate.Wells) != 96 {
		t.Errorf("slot 1 = %s with %d wells, want the 96-well plate", plate.LabwareID, len(plate.Wells))
	}
	if plate.Wells[0].Name != "A1" || plate.Wells[0].Center != env.wellCenter(t, "A1") {
		t.Errorf("first well = %+v, want A1 at its stage centre", plate.Wells[0])
	}
	if len(resp.Slots[1].Wells) != 0 {
		t.Errorf("empty slot lists %d wells", len(resp.Slots[1].Wells))
	}
}

// ─── Scan Points ───────────────────────────────────────────────────

func TestScanPoints_AddGetDelete(t *testing.T) {
	env := newTestEnv(t, nil)
	pos := env.wellCenter(t, "A1")
	pos.Z = 150

	w := env.do(t, http.MethodPost, "/api/v1/scanpoints", map[string]any{"position": pos})
	assertStatus(t, w, http.StatusCreated)
	var edit editResponse
	decode(t, w, &edit)
	if edit.Status != scanlist.StatusChanged || edit.Count != 1 || !edit.Dirty {
		t.Errorf("edit = %+v, want changed, 1 point, dirty", edit)
	}

	w = env.do(t, http.MethodGet, "/api/v1/scanpoints/0", nil)
	assertStatus(t, w, http.StatusOK)
	var p scanlist.ScanPoint
	decode(t, w, &p)
	if p.Slot != 1 || p.Well != "A1" || p.PositionZ != 150 {
		t.Errorf("point = slot %d well %s z %v, want 1/A1/150", p.Slot, p.Well, p.PositionZ)
	}

	assertStatus(t, env.do(t, http.MethodDelete, "/api/v1/scanpoints/0", nil), http.StatusOK)
	if env.inst.Store.Len() != 0 {
		t.Errorf("Len() = %d after delete, want 0", env.inst.Store.Len())
	}
}

func TestScanPoints_AddCurrentPosition(t *testing.T) {
	env := newTestEnv(t, nil)
	target := env.wellCenter(t, "C4")
	target.Z = 77
	if err := env.inst.MoveTo(context.Background(), target); err != nil {
		t.Fatalf("MoveTo() error: %v", err)
	}

	assertStatus(t, env.do(t, http.MethodPost, "/api/v1/scanpoints", nil), http.StatusCreated)

	p, err := env.inst.Store.Get(0)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if p.Well != "C4" || p.PositionZ != 77 {
		t.Errorf("point = %s z %v, want C4 z 77", p.Well, p.PositionZ)
	}
}

func TestScanPoints_List(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, well := range []string{"A1", "A2", "A3"} {
		if _, err := env.inst.Store.Append(env.wellCenter(t, well)); err != nil {
			t.Fatalf("Append(%s) error: %v", well, err)
		}
	}

	var resp struct {
		Points []scanlist.ScanPoint `json:"points"`
		Count  int                  `json:"count"`
	}
	decode(t, env.do(t, http.MethodGet, "/api/v1/scanpoints", nil), &resp)
	if resp.Count != 3 || len(resp.Points) != 3 {
		t.Fatalf("count = %d, want 3", resp.Count)
	}
	if resp.Points[2].Well != "A3" {
		t.Errorf("third point well = %s, want A3", resp.Points[2].Well)
	}

	assertStatus(t, env.do(t, http.MethodDelete, "/api/v1/scanpoints", nil), http.StatusOK)
	if env.inst.Store.Len() != 0 {
		t.Errorf("Len() = %d after clear, want 0", env.inst.Store.Len())
	}
}

func TestScanPoints_Beacons(t *testing.T) {
	env := newTestEnv(t, nil)
	center := env.wellCenter(t, "D6")

	w := env.do(t, http.MethodPost, "/api/v1/scanpoints/beacons", map[string]any{
		"center": center, "nx": 2, "ny": 3, "dx": 200, "dy": 200,
	})
	assertStatus(t, w, http.StatusCreated)
	if env.inst.Store.Len() != 6 {
		t.Errorf("Len() = %d, want 6", env.inst.Store.Len())
	}

	w = env.do(t, http.MethodPost, "/api/v1/scanpoints/beacons", map[string]any{"center": center, "nx": 0, "ny": 1})
	assertStatus(t, w, http.StatusBadRequest)
}

func TestScanPoints_FocusScopes(t *testing.T) {
	env := newTestEnv(t, nil)
	a1 := env.wellCenter(t, "A1")
	for _, dx := range []float64{0, 300} {
		p := a1
		p.X += dx
		p.Z = 100
		if _, err := env.inst.Store.Append(p); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}
	b1 := env.wellCenter(t, "B1")
	b1.Z = 100
	if _, err := env.inst.Store.Append(b1); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	assertStatus(t, env.do(t, http.MethodPut, "/api/v1/scanpoints/0/focus", map[string]any{"z": 110}), http.StatusOK)
	if p, _ := env.inst.Store.Get(1); p.PositionZ != 100 {
		t.Errorf("point scope changed another point: z = %v", p.PositionZ)
	}

	assertStatus(t, env.do(t, http.MethodPut, "/api/v1/scanpoints/0/focus", map[string]any{"z": 130, "scope": "well"}), http.StatusOK)
	for i, want := range []float64{130, 130, 100} {
		if p, _ := env.inst.Store.Get(i); p.PositionZ != want {
			t.Errorf("after well scope point %d z = %v, want %v", i, p.PositionZ, want)
		}
	}

	assertStatus(t, env.do(t, http.MethodPut, "/api/v1/scanpoints/focus", map[string]any{"z": 90}), http.StatusOK)
	for i := 0; i < 3; i++ {
		if p, _ := env.inst.Store.Get(i); p.PositionZ != 90 {
			t.Errorf("after all-focus point %d z = %v, want 90", i, p.PositionZ)
		}
	}

	w := env.do(t, http.MethodPut, "/api/v1/scanpoints/0/focus", map[string]any{"z": 1, "scope": "slot"})
	assertStatus(t, w, http.StatusBadRequest)
}

func TestScanPoints_OffsetZeroAndPlane(t *testing.T) {
	env := newTestEnv(t, nil)
	for i, well := range []string{"A1", "A6", "F1"} {
		p := env.wellCenter(t, well)
		p.Z = 100 + float64(i)*10
		if _, err := env.inst.Store.Append(p); err != nil {
			t.Fatalf("Append(%s) error: %v", well, err)
		}
	}

	assertStatus(t, env.do(t, http.MethodPost, "/api/v1/scanpoints/offset", map[string]any{"dz": 5}), http.StatusOK)
	if p, _ := env.inst.Store.Get(0); p.PositionZ != 105 {
		t.Errorf("z after offset = %v, want 105", p.PositionZ)
	}

	assertStatus(t, env.do(t, http.MethodPost, "/api/v1/scanpoints/zero", map[string]any{"z": 205}), http.StatusOK)
	if p, _ := env.inst.Store.Get(2); p.PositionZ != 225 {
		t.Errorf("z after zero = %v, want 225", p.PositionZ)
	}

	w := env.do(t, http.MethodGet, "/api/v1/scanpoints/focus-plane", nil)
	assertStatus(t, w, http.StatusOK)
	var plane map[string]float64
	decode(t, w, &plane)
	if _, ok := plane["rms"]; !ok {
		t.Errorf("plane = %v, want rms", plane)
	}
}

func TestScanPoints_PositionCheckedDuplicateGoto(t *testing.T) {
	env := newTestEnv(t, nil)
	a1 := env.wellCenter(t, "A1")
	a1.Z = 100
	if _, err := env.inst.Store.Append(a1); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	moved := a1
	moved.X += 250
	assertStatus(t, env.do(t, http.MethodPut, "/api/v1/scanpoints/0/position", moved), http.StatusOK)

	crossWell := env.wellCenter(t, "H12")
	assertStatus(t, env.do(t, http.MethodPut, "/api/v1/scanpoints/0/position", crossWell), http.StatusBadRequest)

	assertStatus(t, env.do(t, http.MethodPut, "/api/v1/scanpoints/0/checked", map[string]bool{"checked": false}), http.StatusOK)
	if p, _ := env.inst.Store.Get(0); p.Checked {
		t.Error("point should be unchecked")
	}

	assertStatus(t, env.do(t, http.MethodPost, "/api/v1/scanpoints/0/duplicate", nil), http.StatusCreated)
	if env.inst.Store.Len() != 2 {
		t.Errorf("Len() = %d after duplicate, want 2", env.inst.Store.Len())
	}

	assertStatus(t, env.do(t, http.MethodPost, "/api/v1/scanpoints/0/goto", nil), http.StatusOK)
	if pos, _ := env.inst.Position(); pos.X != moved.X || pos.Z != 100 {
		t.Errorf("position after goto = %v, want %v", pos, moved)
	}
}

func TestScanPoints_Errors(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
		code   string
	}{
		{"unknown index", http.MethodGet, "/api/v1/scanpoints/5", nil, http.StatusNotFound, ErrCodeNotFound},
		{"bad index", http.MethodGet, "/api/v1/scanpoints/abc", nil, http.StatusBadRequest, ErrCodeBadRequest},
		{"negative index", http.MethodDelete, "/api/v1/scanpoints/-1", nil, http.StatusBadRequest, ErrCodeBadRequest},
		{"invalid json", http.MethodPost, "/api/v1/scanpoints/beacons", "{", http.StatusBadRequest, ErrCodeBadRequest},
		{"focus without z", http.MethodPut, "/api/v1/scanpoints/0/focus", map[string]any{}, http.StatusBadRequest, ErrCodeBadRequest},
		{"plane without points", http.MethodGet, "/api/v1/scanpoints/focus-plane", nil, http.StatusBadRequest, ErrCodeValidation},
		{"point in empty slot", http.MethodPost, "/api/v1/scanpoints", map[string]any{"position": deck.Point{X: 150000, Y: 40000}}, http.StatusBadRequest, ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, tt.body)
			assertStatus(t, w, tt.want)
			var e Error
			decode(t, w, &e)
			if e.Code != tt.code {
				t.Errorf("code = %q, want %q", e.Code, tt.code)
			}
		})
	}
}

// ─── Experiment ────────────────────────────────────────────────────

func TestExperiment_LoadRunAndHistory(t *testing.T) {
	env := newTestEnv(t, nil)
	env.writeExperiment(t, "growth.json")

	w := env.do(t, http.MethodPost, "/api/v1/experiment/load", map[string]string{"file": "growth.json"})
	assertStatus(t, w, http.StatusOK)
	if env.inst.Store.Len() != 2 {
		t.Fatalf("Len() = %d after load, want 2", env.inst.Store.Len())
	}

	w = env.do(t, http.MethodPost, "/api/v1/experiment/start", nil)
	assertStatus(t, w, http.StatusAccepted)
	var started struct {
		RunID string `json:"run_id"`
	}
	decode(t, w, &started)
	if started.RunID == "" {
		t.Fatal("start returned no run_id")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := env.inst.Orchestrator.Wait(ctx); err != nil {
		t.Fatalf("Wait() error: %v", err)
	}

	var exp map[string]any
	decode(t, env.do(t, http.MethodGet, "/api/v1/experiment", nil), &exp)
	if exp["state"] != string(experiment.StateCompleted) {
		t.Errorf("state = %v, want COMPLETED", exp["state"])
	}

	var runs struct {
		Runs  []experiment.Run `json:"runs"`
		Count int              `json:"count"`
	}
	decode(t, env.do(t, http.MethodGet, "/api/v1/experiment/runs?limit=5", nil), &runs)
	if runs.Count != 1 || runs.Runs[0].ID != started.RunID {
		t.Fatalf("runs = %+v, want the started run", runs)
	}

	w = env.do(t, http.MethodGet, "/api/v1/experiment/runs/"+started.RunID+"/frames", nil)
	assertStatus(t, w, http.StatusOK)
	var frames struct {
		Count int `json:"count"`
	}
	decode(t, w, &frames)
	if frames.Count != 2 {
		t.Errorf("frames = %d, want 2", frames.Count)
	}

	assertStatus(t, env.do(t, http.MethodGet, "/api/v1/experiment/runs/missing", nil), http.StatusNotFound)
	assertStatus(t, env.do(t, http.MethodGet, "/api/v1/experiment/runs?limit=0", nil), http.StatusBadRequest)

	assertStatus(t, env.do(t, http.MethodPost, "/api/v1/experiment/reset", nil), http.StatusOK)
	if s := env.inst.Orchestrator.State(); s != experiment.StateCreated {
		t.Errorf("state after reset = %s, want CREATED", s)
	}
}

func TestExperiment_LoadInlineAndSave(t *testing.T) {
	env := newTestEnv(t, nil)
	env.writeExperiment(t, "source.json")
	doc, err := scanlist.LoadDocument(env.expDir + "/source.json")
	if err != nil {
		t.Fatalf("LoadDocument() error: %v", err)
	}
	raw, err := doc.Encode(scanlist.FormatJSON)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	w := env.do(t, http.MethodPost, "/api/v1/experiment/load", `{"document": `+string(raw)+`}`)
	assertStatus(t, w, http.StatusOK)

	assertStatus(t, env.do(t, http.MethodPut, "/api/v1/experiment/info", scanlist.ExpInfo{Name: "renamed"}), http.StatusOK)
	if !env.inst.Store.Dirty() {
		t.Error("store should be dirty after renaming")
	}

	assertStatus(t, env.do(t, http.MethodPost, "/api/v1/experiment/save", map[string]string{"file": "saved.yaml"}), http.StatusOK)
	saved, err := scanlist.LoadDocument(env.expDir + "/saved.yaml")
	if err != nil {
		t.Fatalf("LoadDocument(saved) error: %v", err)
	}
	if saved.ExpInfo.Name != "renamed" {
		t.Errorf("saved name = %q, want renamed", saved.ExpInfo.Name)
	}
	if env.inst.Store.Dirty() {
		t.Error("store should be clean after saving")
	}
}

func TestExperiment_Rejects(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"escaping path", http.MethodPost, "/api/v1/experiment/load", map[string]string{"file": "../x.json"}, http.StatusBadRequest},
		{"absolute path", http.MethodPost, "/api/v1/experiment/save", map[string]string{"file": "/tmp/x.json"}, http.StatusBadRequest},
		{"missing file", http.MethodPost, "/api/v1/experiment/load", map[string]string{"file": "nope.json"}, http.StatusInternalServerError},
		{"start without points", http.MethodPost, "/api/v1/experiment/start", nil, http.StatusBadRequest},
		{"stop when idle", http.MethodPost, "/api/v1/experiment/stop", nil, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertStatus(t, env.do(t, tt.method, tt.path, tt.body), tt.want)
		})
	}
}

func TestExperiment_EditsRejectedWhileRunning(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Stage.MoveDelay = 150 * time.Millisecond
	})
	env.writeExperiment(t, "slow.json")
	assertStatus(t, env.do(t, http.MethodPost, "/api/v1/experiment/load", map[string]string{"file": "slow.json"}), http.StatusOK)
	assertStatus(t, env.do(t, http.MethodPost, "/api/v1/experiment/start", nil), http.StatusAccepted)

	w := env.do(t, http.MethodDelete, "/api/v1/scanpoints/0", nil)
	assertStatus(t, w, http.StatusConflict)
	var e Error
	decode(t, w, &e)
	if e.Code != ErrCodeReadOnly {
		t.Errorf("code = %q, want %q", e.Code, ErrCodeReadOnly)
	}

	assertStatus(t, env.do(t, http.MethodPost, "/api/v1/stage/move", map[string]float64{"x": 1}), http.StatusConflict)
	assertStatus(t, env.do(t, http.MethodPost, "/api/v1/experiment/start", nil), http.StatusConflict)

	w = env.do(t, http.MethodPost, "/api/v1/experiment/stop?wait=true", nil)
	assertStatus(t, w, http.StatusOK)
	if s := env.inst.Orchestrator.State(); s != experiment.StateStopped {
		t.Errorf("state = %s, want STOPPED", s)
	}

	var progress struct {
		Text string `json:"text"`
	}
	decode(t, env.do(t, http.MethodGet, "/api/v1/experiment/progress", nil), &progress)
	if progress.Text == "" {
		t.Error("progress text should not be empty")
	}
}

// ─── Stage ─────────────────────────────────────────────────────────

func TestStage_Moves(t *testing.T) {
	env := newTestEnv(t, nil)

	assertStatus(t, env.do(t, http.MethodPost, "/api/v1/stage/move", map[string]float64{"x": 1000, "y": 2000, "z": 50}), http.StatusOK)
	assertStatus(t, env.do(t, http.MethodPost, "/api/v1/stage/move", map[string]any{"z": 10, "relative": true}), http.StatusOK)

	var resp struct {
		Position deck.Point `json:"position"`
	}
	decode(t, env.do(t, http.MethodGet, "/api/v1/stage/position", nil), &resp)
	if resp.Position != (deck.Point{X: 1000, Y: 2000, Z: 60}) {
		t.Errorf("position = %v, want (1000, 2000, 60)", resp.Position)
	}

	assertStatus(t, env.do(t, http.MethodPost, "/api/v1/stage/move", map[string]any{"slot": 1, "well": "B2"}), http.StatusOK)
	pos, _ := env.inst.Position()
	b2 := env.wellCenter(t, "B2")
	if pos.X != b2.X || pos.Y != b2.Y || pos.Z != 60 {
		t.Errorf("position = %v, want B2 centre at z 60", pos)
	}

	assertStatus(t, env.do(t, http.MethodPost, "/api/v1/stage/home?axis=z", nil), http.StatusOK)
	assertStatus(t, env.do(t, http.MethodPost, "/api/v1/stage/stop/y", nil), http.StatusOK)
	assertStatus(t, env.do(t, http.MethodPost, "/api/v1/stage/park", nil), http.StatusOK)
	assertStatus(t, env.do(t, http.MethodPost, "/api/v1/stage/home", nil), http.StatusOK)
	if pos, _ := env.inst.Position(); pos != (deck.Point{}) {
		t.Errorf("position after home = %v, want origin", pos)
	}
}

func TestStage_Errors(t *testing.T) {
	env := newTestEnv(t, nil)

	assertStatus(t, env.do(t, http.MethodPost, "/api/v1/stage/move", map[string]any{}), http.StatusBadRequest)
	assertStatus(t, env.do(t, http.MethodPost, "/api/v1/stage/stop/w", nil), http.StatusBadRequest)
	assertStatus(t, env.do(t, http.MethodPost, "/api/v1/stage/home?axis=q", nil), http.StatusBadRequest)
	assertStatus(t, env.do(t, http.MethodPost, "/api/v1/stage/move", map[string]any{"slot": 1, "well": "Z9"}), http.StatusBadRequest)

	lease, err := env.inst.Owner.Acquire(motion.HolderAutofocus)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	defer lease.Release()

	w := env.do(t, http.MethodPost, "/api/v1/stage/move", map[string]float64{"x": 1})
	assertStatus(t, w, http.StatusConflict)
	var e Error
	decode(t, w, &e)
	if e.Code != ErrCodeBusy {
		t.Errorf("code = %q, want %q", e.Code, ErrCodeBusy)
	}

	// Stop reaches the driver even while the stage is leased.
	assertStatus(t, env.do(t, http.MethodPost, "/api/v1/stage/stop/x", nil), http.StatusOK)
}

// ─── Autofocus ─────────────────────────────────────────────────────

func TestAutofocus_StartAndResult(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/v1/autofocus/start", map[string]float64{"z_start": 0, "z_end": 30, "z_step": 10})
	assertStatus(t, w, http.StatusAccepted)
	env.inst.Focus.Wait()

	var resp struct {
		Running bool         `json:"running"`
		Last    *focusResult `json:"last"`
	}
	decode(t, env.do(t, http.MethodGet, "/api/v1/autofocus", nil), &resp)
	if resp.Running {
		t.Error("running should be false after Wait")
	}
	if resp.Last == nil || len(resp.Last.Z) != 4 || !resp.Last.Focus {
		t.Fatalf("last = %+v, want a 4-step focus sweep", resp.Last)
	}

	assertStatus(t, env.do(t, http.MethodPost, "/api/v1/autofocus/preview", map[string][]float64{"z": {5, 15}}), http.StatusAccepted)
	env.inst.Focus.Wait()
	decode(t, env.do(t, http.MethodGet, "/api/v1/autofocus", nil), &resp)
	if resp.Last.Focus || len(resp.Last.Z) != 2 {
		t.Errorf("preview result = %+v, want 2 samples without focus", resp.Last)
	}

	assertStatus(t, env.do(t, http.MethodPost, "/api/v1/autofocus/stop", nil), http.StatusOK)
}

func TestAutofocus_Errors(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name string
		path string
		body any
	}{
		{"zero step", "/api/v1/autofocus/start", map[string]float64{"z_start": 0, "z_end": 10, "z_step": 0}},
		{"partial range", "/api/v1/autofocus/start", map[string]float64{"z_start": 0}},
		{"empty preview", "/api/v1/autofocus/preview", map[string][]float64{"z": {}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertStatus(t, env.do(t, http.MethodPost, tt.path, tt.body), http.StatusBadRequest)
		})
	}
}

// ─── Metrics ───────────────────────────────────────────────────────

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodGet, "/api/v1/health", nil)

	w := env.do(t, http.MethodGet, "/metrics", nil)
	assertStatus(t, w, http.StatusOK)

	body := w.Body.String()
	for _, want := range []string{
		`deckscan_experiment_state{state="CREATED"} 1`,
		`deckscan_http_requests_total{method="GET",route="/api/v1/health",status="200"} 1`,
		"deckscan_websocket_clients 0",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
