//go:build unix

package update

import (
	"path/filepath"
	"testing"
)

func TestTryAcquireExclusivity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "update.lock")

	lock, ok, err := TryAcquire(path)
	if err != nil {
		t.Fatalf("TryAcquire() error = %v", err)
	}
	if !ok {
		t.Fatal("TryAcquire() ok = false on first call, want true")
	}

	_, ok2, err := TryAcquire(path)
	if err != nil {
		t.Fatalf("TryAcquire() second call error = %v", err)
	}
	if ok2 {
		t.Error("TryAcquire() ok = true while lock already held, want false")
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	lock2, ok3, err := TryAcquire(path)
	if err != nil {
		t.Fatalf("TryAcquire() after release error = %v", err)
	}
	if !ok3 {
		t.Error("TryAcquire() ok = false after release, want true")
	}
	lock2.Release()
}
