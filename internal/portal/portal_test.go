package portal

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AlterMundi/sai-cam-agent/internal/health"
	"github.com/AlterMundi/sai-cam-agent/internal/storage"
	"github.com/AlterMundi/sai-cam-agent/internal/tracker"
)

func startFakeAgent(t *testing.T, handler health.CommandHandler) (sockPath string, stop func()) {
	t.Helper()

	tr := tracker.New("cam1")
	tr.RecordSuccess(time.Now(), time.Second)

	collector := health.New(health.Config{
		Cameras:        fakeCameraSourceFor(tr),
		SystemInterval: time.Minute,
		CameraInterval: time.Minute,
	})

	sockPath = filepath.Join(t.TempDir(), "health.sock")
	srv := health.NewServer(sockPath, collector, nil)
	if handler != nil {
		srv = srv.WithCommands(handler)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)
	time.Sleep(50 * time.Millisecond)

	return sockPath, cancel
}

type trackerSource struct {
	trackers map[string]*tracker.Tracker
}

func (f *trackerSource) Trackers() map[string]*tracker.Tracker { return f.trackers }

func fakeCameraSourceFor(tr *tracker.Tracker) health.CameraSource {
	return &trackerSource{trackers: map[string]*tracker.Tracker{tr.Get().CameraID: tr}}
}

func newTestServer(t *testing.T, sockPath string, extra func(*Config)) *Server {
	t.Helper()
	cfg := Config{
		NodeID:           "node1",
		NodeLocation:     "roof",
		Version:          "1.0.0",
		HealthSocketPath: sockPath,
		HealthTimeout:    time.Second,
	}
	if extra != nil {
		extra(&cfg)
	}
	return NewServer(cfg)
}

func TestHandleStatus(t *testing.T) {
	sockPath, stop := startFakeAgent(t, nil)
	defer stop()

	srv := newTestServer(t, sockPath, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"id":"node1"`)) {
		t.Errorf("response missing node id: %s", rec.Body.String())
	}
}

func TestHandleLatestImage(t *testing.T) {
	dir := t.TempDir()
	mgr, err := storage.NewManager(storage.Config{BasePath: dir, DeviceID: "dev1", RetentionDays: 30}, nil)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if _, err := mgr.Store("cam1", bytes.Repeat([]byte{0xFF}, 4096), time.Now(), storage.Metadata{DeviceID: "dev1", CameraID: "cam1"}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	sockPath, stop := startFakeAgent(t, nil)
	defer stop()

	srv := newTestServer(t, sockPath, func(c *Config) { c.Storage = mgr })

	req := httptest.NewRequest(http.MethodGet, "/api/images/cam1/latest", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "image/jpeg" {
		t.Errorf("Content-Type = %s, want image/jpeg", rec.Header().Get("Content-Type"))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/images/cam-missing/latest", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status for missing camera = %d, want 404", rec.Code)
	}
}

type fakeCmdHandler struct {
	calls []health.Command
}

func (f *fakeCmdHandler) HandleCommand(cmd health.Command) health.CommandResult {
	f.calls = append(f.calls, cmd)
	return health.CommandResult{OK: true}
}

func TestHandleCameraCaptureRelaysCommand(t *testing.T) {
	handler := &fakeCmdHandler{}
	sockPath, stop := startFakeAgent(t, handler)
	defer stop()

	srv := newTestServer(t, sockPath, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/cameras/cam1/capture", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(handler.calls) != 1 || handler.calls[0].Cmd != "capture" || handler.calls[0].CameraID != "cam1" {
		t.Errorf("handler.calls = %+v, want one capture command for cam1", handler.calls)
	}
}

func TestFleetRoutesRequireBearerToken(t *testing.T) {
	sockPath, stop := startFakeAgent(t, nil)
	defer stop()

	srv := newTestServer(t, sockPath, func(c *Config) { c.FleetToken = "secret" })

	req := httptest.NewRequest(http.MethodGet, "/api/fleet/status", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/fleet/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status with correct token = %d, want 200", rec.Code)
	}
}

func TestFleetRoutesAbsentWithoutToken(t *testing.T) {
	sockPath, stop := startFakeAgent(t, nil)
	defer stop()

	srv := newTestServer(t, sockPath, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/fleet/status", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when fleet token unset", rec.Code)
	}
}

func TestTailLastLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.log")
	var buf bytes.Buffer
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&buf, "line %d\n", i)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	lines, err := TailLastLines(path, 3)
	if err != nil {
		t.Fatalf("TailLastLines() error = %v", err)
	}
	want := []string{"line 7", "line 8", "line 9"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %v, want %v", lines, want)
	}
	for i, l := range want {
		if lines[i] != l {
			t.Errorf("lines[%d] = %q, want %q", i, lines[i], l)
		}
	}
}

func TestLogTailerFollowsAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.log")
	if err := os.WriteFile(path, []byte("first\n"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	tailer := newLogTailer(path)
	lines := tailer.Lines()
	if len(lines) != 1 || lines[0] != "first" {
		t.Fatalf("initial Lines() = %v, want [first]", lines)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	fmt.Fprintln(f, "second")
	f.Close()

	lines = tailer.Lines()
	if len(lines) != 1 || lines[0] != "second" {
		t.Fatalf("follow-up Lines() = %v, want [second]", lines)
	}
}
