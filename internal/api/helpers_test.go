package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/deckscan-core/internal/deck"
	"github.com/nerrad567/deckscan-core/internal/experiment"
	"github.com/nerrad567/deckscan-core/internal/infrastructure/config"
	"github.com/nerrad567/deckscan-core/internal/infrastructure/database"
	"github.com/nerrad567/deckscan-core/internal/infrastructure/logging"
	"github.com/nerrad567/deckscan-core/internal/instrument"
	"github.com/nerrad567/deckscan-core/internal/scanlist"
	"github.com/nerrad567/deckscan-core/migrations"
)

// testLayout is one 96-well plate; layout in millimetres, stage in micrometres.
const testLayout = `
name: api-deck
slots:
  - id: 1
    origin: {x: 0, y: 0, z: 0}
    footprint: {x: 127.76, y: 85.48}
    labware:
      load_name: corning_96_wellplate_360ul_flat
      grid: {rows: 8, columns: 12, first_well: {x: 14.38, y: 11.24, z: 0}, spacing: {x: 9, y: 9}}
  - id: 2
    origin: {x: 130, y: 0, z: 0}
    footprint: {x: 127.76, y: 85.48}
`

// testEnv bundles a server with the instrument behind it.
type testEnv struct {
	srv     *Server
	inst    *instrument.Instrument
	runs    *experiment.SQLiteRepository
	handler http.Handler
	expDir  string
}

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	log, err := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	if err != nil {
		t.Fatalf("logging.New() error: %v", err)
	}
	return log
}

// newTestEnv creates a server over a simulated instrument and a migrated
// SQLite run history. mutate may adjust the instrument configuration.
func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Instrument.ID = "scope-api"
	cfg.Acquisition.OutputDir = t.TempDir()
	cfg.Acquisition.Unshake = time.Millisecond
	cfg.Camera.Width = 32
	cfg.Camera.Height = 24
	if mutate != nil {
		mutate(cfg)
	}

	layout, err := deck.ParseLayout([]byte(testLayout))
	if err != nil {
		t.Fatalf("ParseLayout() error: %v", err)
	}

	db, err := database.Open(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "api.db"), BusyTimeout: 5})
	if err != nil {
		t.Fatalf("database.Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}
	runs := experiment.NewSQLiteRepository(db.DB)

	inst, err := instrument.NewWithLayout(context.Background(), cfg, layout, instrument.Options{Repo: runs})
	if err != nil {
		t.Fatalf("instrument.NewWithLayout() error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		inst.Close(ctx) //nolint:errcheck // best-effort teardown
	})

	expDir := t.TempDir()
	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:        testLogger(t),
		Instrument:    inst,
		Runs:          runs,
		ExperimentDir: expDir,
		Version:       "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return &testEnv{srv: srv, inst: inst, runs: runs, handler: srv.Handler(), expDir: expDir}
}

// do sends a request with an optional JSON body and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

// decode unmarshals a response body.
func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
}

// wellCenter returns a well centre in stage units.
func (e *testEnv) wellCenter(t *testing.T, well string) deck.Point {
	t.Helper()
	c, err := e.inst.Resolver.WellCenter(1, well)
	if err != nil {
		t.Fatalf("WellCenter(%s) error: %v", well, err)
	}
	return c
}

// writeExperiment saves a two-point experiment into the experiment directory.
func (e *testEnv) writeExperiment(t *testing.T, name string) {
	t.Helper()
	doc := &scanlist.Document{
		ExpInfo: scanlist.ExpInfo{Name: "api-run"},
		Slots: []scanlist.SlotConfig{{
			SlotNumber: 1,
			LabwareID:  "corning_96_wellplate_360ul_flat",
			Groups: []scanlist.Group{{Wells: scanlist.Wells{
				{Well: "A1", Positions: []scanlist.Position{{X: 0, Y: 0, Z: 100}}},
				{Well: "B2", Positions: []scanlist.Position{{X: 5, Y: 5, Z: 120}}},
			}}},
		}},
		ScanParams: scanlist.ScanParams{
			NumberScans:        1,
			IlluminationParams: []scanlist.IlluminationChannel{{Channel: "BF", Intensity: 50}},
		},
	}
	if err := scanlist.SaveDocument(filepath.Join(e.expDir, name), doc); err != nil {
		t.Fatalf("SaveDocument() error: %v", err)
	}
}

func assertStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, want, w.Body.String())
	}
}
