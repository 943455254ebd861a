package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/AlterMundi/sai-cam-agent/internal/camera"
	"github.com/AlterMundi/sai-cam-agent/internal/storage"
	"github.com/AlterMundi/sai-cam-agent/internal/timesync"
	"github.com/AlterMundi/sai-cam-agent/internal/tracker"
)

type mockCamera struct {
	mu           sync.Mutex
	id           string
	camType      string
	data         []byte
	err          error
	setupErr     error
	reconnectErr error
	reconnects   int
	cleanups     int
}

func (m *mockCamera) Capture(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data, m.err
}

func (m *mockCamera) Setup(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setupErr
}

func (m *mockCamera) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnects++
	return m.reconnectErr
}

func (m *mockCamera) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups++
	return nil
}

func (m *mockCamera) Describe(ctx context.Context) (map[string]string, error) {
	return map[string]string{"type": m.camType}, nil
}

func (m *mockCamera) ID() string   { return m.id }
func (m *mockCamera) Type() string { return m.camType }

func (m *mockCamera) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *mockCamera) reconnectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnects
}

type keepAliveCamera struct {
	mockCamera
	keepAliveErr error
	keepAlives   int
}

func (k *keepAliveCamera) KeepAlive(ctx context.Context) error {
	k.keepAlives++
	return k.keepAliveErr
}

func validJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.Gray{Y: 128})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("jpeg.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func newTestWorker(t *testing.T, cam camera.Camera) (*Worker, *storage.Manager) {
	t.Helper()
	dir := t.TempDir()
	mgr, err := storage.NewManager(storage.Config{BasePath: dir, DeviceID: "dev1", MaxTotalBytes: 1 << 20, RetentionDays: 7}, nil)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	w := NewWorker(WorkerConfig{
		Camera:       cam,
		DeviceID:     "dev1",
		Storage:      mgr,
		Tracker:      tracker.New(cam.ID()),
		BaseInterval: time.Second,
	})
	return w, mgr
}

func TestWorker_CaptureSuccessStoresFrame(t *testing.T) {
	cam := &mockCamera{id: "cam1", camType: "rtsp", data: validJPEG(t)}
	w, mgr := newTestWorker(t, cam)

	w.capture(context.Background())

	stats := w.Stats()
	if stats.CapturesTotal != 1 || stats.CapturesFailed != 0 {
		t.Fatalf("stats = %+v, want 1 total capture, 0 failed", stats)
	}
	if stats.Tracker.State != tracker.Healthy {
		t.Errorf("tracker state = %v, want HEALTHY", stats.Tracker.State)
	}

	pending, err := mgr.ListPending("cam1", 0)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("ListPending() = %d images, want 1", len(pending))
	}
}

func TestWorker_CaptureFailureAdvancesTracker(t *testing.T) {
	cam := &mockCamera{id: "cam1", camType: "rtsp", err: errors.New("device offline")}
	w, _ := newTestWorker(t, cam)

	for i := 0; i < 3; i++ {
		w.capture(context.Background())
	}

	stats := w.Stats()
	if stats.CapturesFailed != 3 {
		t.Fatalf("CapturesFailed = %d, want 3", stats.CapturesFailed)
	}
	if stats.Tracker.State != tracker.Offline {
		t.Errorf("tracker state = %v, want OFFLINE after 3 failures", stats.Tracker.State)
	}
}

func TestWorker_CaptureFailureTriggersReconnectOnceOnOfflineTransition(t *testing.T) {
	cam := &mockCamera{id: "cam1", camType: "rtsp", err: errors.New("device offline")}
	w, _ := newTestWorker(t, cam)

	for i := 0; i < 3; i++ {
		w.capture(context.Background())
	}
	if got := cam.reconnectCount(); got != 1 {
		t.Fatalf("reconnectCount = %d, want 1 (only the failure that crosses into OFFLINE reconnects)", got)
	}

	// Further failures while already OFFLINE must not re-trigger reconnect.
	w.capture(context.Background())
	if got := cam.reconnectCount(); got != 1 {
		t.Fatalf("reconnectCount after a 4th failure = %d, want still 1", got)
	}
}

func TestWorker_ReconnectGivesUpAfterConfiguredAttempts(t *testing.T) {
	cam := &mockCamera{id: "cam1", camType: "rtsp", err: errors.New("device offline"), reconnectErr: errors.New("still down")}
	dir := t.TempDir()
	mgr, err := storage.NewManager(storage.Config{BasePath: dir, DeviceID: "dev1", MaxTotalBytes: 1 << 20, RetentionDays: 7}, nil)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	w := NewWorker(WorkerConfig{
		Camera:            cam,
		DeviceID:          "dev1",
		Storage:           mgr,
		Tracker:           tracker.New(cam.ID()),
		BaseInterval:      time.Second,
		ReconnectAttempts: 2,
		ReconnectDelay:    time.Millisecond,
	})

	for i := 0; i < 3; i++ {
		w.capture(context.Background())
	}

	if got := cam.reconnectCount(); got != 2 {
		t.Fatalf("reconnectCount = %d, want 2 (ReconnectAttempts exhausted)", got)
	}
}

func TestWorker_KeepAliveUsedWhileOffline(t *testing.T) {
	cam := &keepAliveCamera{mockCamera: mockCamera{id: "cam1", camType: "rtsp"}}
	cam.err = errors.New("stream unavailable")

	dir := t.TempDir()
	mgr, err := storage.NewManager(storage.Config{BasePath: dir, DeviceID: "dev1", MaxTotalBytes: 1 << 20, RetentionDays: 7}, nil)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	tr := tracker.New("cam1")
	w := NewWorker(WorkerConfig{
		Camera:       cam,
		DeviceID:     "dev1",
		Storage:      mgr,
		Tracker:      tr,
		BaseInterval: time.Second,
	})

	now := time.Now()
	tr.RecordFailure(now, time.Second, errors.New("x"))
	tr.RecordFailure(now, time.Second, errors.New("x"))
	tr.RecordFailure(now, time.Second, errors.New("x"))
	if !tr.IsOffline() {
		t.Fatal("expected tracker to be OFFLINE after 3 failures")
	}

	w.attempt()

	if cam.keepAlives != 1 {
		t.Errorf("keepAlives = %d, want 1 (attempt() should probe instead of full capture while OFFLINE)", cam.keepAlives)
	}
	if tr.State() != tracker.Healthy {
		t.Errorf("tracker state = %v, want HEALTHY after successful keep-alive", tr.State())
	}
}

func TestWorker_TimeAuthorityTagsLowConfidenceWhenNTPUnhealthy(t *testing.T) {
	cam := &mockCamera{id: "cam1", camType: "rtsp", data: validJPEG(t)}
	dir := t.TempDir()
	mgr, err := storage.NewManager(storage.Config{BasePath: dir, DeviceID: "dev1", MaxTotalBytes: 1 << 20, RetentionDays: 7}, nil)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	// A TimeHealth that has never completed a check reports unhealthy.
	authority, err := timesync.NewAuthority(timesync.NewTimeHealth(timesync.Config{}), timesync.DefaultAuthorityConfig())
	if err != nil {
		t.Fatalf("NewAuthority() error = %v", err)
	}

	w := NewWorker(WorkerConfig{
		Camera:        cam,
		DeviceID:      "dev1",
		Storage:       mgr,
		Tracker:       tracker.New(cam.ID()),
		BaseInterval:  time.Second,
		TimeAuthority: authority,
	})

	w.capture(context.Background())

	pending, err := mgr.ListPending("cam1", 0)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("ListPending() = %d images, want 1", len(pending))
	}

	raw, err := os.ReadFile(pending[0].MetaPath)
	if err != nil {
		t.Fatalf("read sidecar metadata: %v", err)
	}
	var meta storage.Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatalf("unmarshal sidecar metadata: %v", err)
	}
	if meta.TimeConfidence != string(timesync.ConfidenceLow) {
		t.Errorf("TimeConfidence = %q, want %q", meta.TimeConfidence, timesync.ConfidenceLow)
	}
	if meta.TimeWarning == "" {
		t.Error("TimeWarning = \"\", want a warning when NTP has never synced")
	}
}
