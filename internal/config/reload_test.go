package config

import (
	"os"
	"path/filepath"
	"testing"
)

type testLogger struct{}

func (testLogger) Debug(string, ...interface{}) {}
func (testLogger) Info(string, ...interface{})  {}
func (testLogger) Warn(string, ...interface{})  {}
func (testLogger) Error(string, ...interface{}) {}

func TestRequiresRestart_LoggingLevelIsHotReloadable(t *testing.T) {
	old := validConfig()
	next := validConfig()
	next.Logging.Level = "debug"
	if restart, reason := RequiresRestart(old, next); restart {
		t.Errorf("RequiresRestart() = true (%s), want false for logging.level change", reason)
	}
}

func TestRequiresRestart_CameraChangeRequiresRestart(t *testing.T) {
	old := validConfig()
	next := validConfig()
	next.Cameras[0].RTSP.URL = "rtsp://changed/stream"
	if restart, _ := RequiresRestart(old, next); !restart {
		t.Error("RequiresRestart() = false, want true for camera configuration change")
	}
}

func TestRequiresRestart_StorageChangeRequiresRestart(t *testing.T) {
	old := validConfig()
	next := validConfig()
	next.Storage.BasePath = "/other"
	if restart, _ := RequiresRestart(old, next); !restart {
		t.Error("RequiresRestart() = false, want true for storage change")
	}
}

func writeConfigFile(t *testing.T, path, basePath string) {
	t.Helper()
	yaml := "storage:\n  base_path: " + basePath + "\ncameras:\n  - id: cam1\n    name: Front\n    kind: rtsp\n    rtsp:\n      url: rtsp://x/stream\n"
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_ReloadAppliesHotChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfigFile(t, path, "/data")

	var reloaded *Config
	w, err := NewWatcher(path, testLogger{}, func(c *Config) { reloaded = c })
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	writeConfigFile(t, path, "/data")
	if err := w.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if reloaded == nil {
		t.Error("onReload callback was not invoked")
	}
}

func TestWatcher_ReloadRejectsRestartRequiringChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfigFile(t, path, "/data")

	w, err := NewWatcher(path, testLogger{}, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	before := w.Current()

	writeConfigFile(t, path, "/changed")
	if err := w.Reload(); err == nil {
		t.Error("Reload() error = nil, want error for storage.base_path change")
	}
	if w.Current() != before {
		t.Error("Current() changed despite a restart-requiring reload being rejected")
	}
}

func TestWatcher_ReloadRetainsPreviousOnParseFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfigFile(t, path, "/data")

	w, err := NewWatcher(path, testLogger{}, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	before := w.Current()

	if err := os.WriteFile(path, []byte("not: [valid yaml"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := w.Reload(); err == nil {
		t.Error("Reload() error = nil, want error for invalid yaml")
	}
	if w.Current() != before {
		t.Error("Current() changed despite a parse failure")
	}
}
