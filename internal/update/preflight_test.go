package update

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPreflight_RequiredFilesMissing(t *testing.T) {
	dir := t.TempDir()
	err := Preflight(dir, PreflightConfig{RequiredFiles: []string{"agent"}})
	if err == nil {
		t.Error("Preflight() error = nil, want error for missing required file")
	}
}

func TestPreflight_DeclaredVersionMismatch(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "VERSION"), []byte("v1.0.0"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	err := Preflight(dir, PreflightConfig{DeclaredVersion: "v1.1.0"})
	if err == nil {
		t.Error("Preflight() error = nil, want error for version mismatch")
	}
}

func TestPreflight_Success(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "agent"), []byte("binary"), 0755); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "VERSION"), []byte("v1.1.0"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	err := Preflight(dir, PreflightConfig{
		RequiredFiles:   []string{"agent"},
		DeclaredVersion: "v1.1.0",
	})
	if err != nil {
		t.Errorf("Preflight() error = %v, want nil", err)
	}
}
