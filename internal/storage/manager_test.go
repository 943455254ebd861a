package storage

import (
	"os"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	m, err := NewManager(Config{BasePath: dir, DeviceID: "dev1", MaxTotalBytes: 1 << 20, RetentionDays: 7}, nil)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m
}

func TestStoreAndListPending(t *testing.T) {
	m := newTestManager(t)

	data := make([]byte, 200)
	now := time.Now().UTC()
	img, err := m.Store("cam1", data, now, Metadata{BrightnessMean: 120})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if _, err := os.Stat(img.Path); err != nil {
		t.Fatalf("stored image missing on disk: %v", err)
	}
	if _, err := os.Stat(img.MetaPath); err != nil {
		t.Fatalf("stored metadata sidecar missing on disk: %v", err)
	}

	pending, err := m.ListPending("cam1", 0)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("ListPending() returned %d images, want 1", len(pending))
	}
}

func TestStoreRejectsSmallPayload(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Store("cam1", []byte("tiny"), time.Now(), Metadata{}); err != ErrInvalidImage {
		t.Fatalf("Store() error = %v, want ErrInvalidImage", err)
	}
}

func TestStoreRejectsFutureTimestamp(t *testing.T) {
	m := newTestManager(t)
	future := time.Now().Add(time.Hour)
	data := make([]byte, 200)
	if _, err := m.Store("cam1", data, future, Metadata{}); err != ErrImageFromFuture {
		t.Fatalf("Store() error = %v, want ErrImageFromFuture", err)
	}
}

func TestMarkUploadedMovesFile(t *testing.T) {
	m := newTestManager(t)
	data := make([]byte, 200)
	img, err := m.Store("cam1", data, time.Now().UTC(), Metadata{})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	if err := m.MarkUploaded(img); err != nil {
		t.Fatalf("MarkUploaded() error = %v", err)
	}

	if _, err := os.Stat(img.Path); !os.IsNotExist(err) {
		t.Error("expected pending file to be gone after MarkUploaded")
	}

	stats := m.Stats()["cam1"]
	if stats.PendingCount != 0 || stats.UploadedCount != 1 {
		t.Errorf("stats = %+v, want pending=0 uploaded=1", stats)
	}
}

func TestMarkUploadedIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	data := make([]byte, 200)
	img, err := m.Store("cam1", data, time.Now().UTC(), Metadata{})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	if err := m.MarkUploaded(img); err != nil {
		t.Fatalf("first MarkUploaded() error = %v", err)
	}
	if err := m.MarkUploaded(img); err != nil {
		t.Fatalf("second MarkUploaded() on an already-moved file should not error, got %v", err)
	}
}

func TestCleanupEnforcesDiskCap(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(Config{BasePath: dir, DeviceID: "dev1", MaxTotalBytes: 1000, RetentionDays: 7}, nil)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 10; i++ {
		data := make([]byte, 200)
		if _, err := m.Store("cam1", data, base.Add(time.Duration(i)*time.Second), Metadata{}); err != nil {
			t.Fatalf("Store() error = %v", err)
		}
	}

	m.Cleanup()

	if total := m.TotalBytes(); total > 1000 {
		t.Errorf("TotalBytes() = %d, want <= 1000 after cleanup", total)
	}
}

func TestStoreDropsCaptureWhenDiskFull(t *testing.T) {
	dir := t.TempDir()
	// No real filesystem has this much free space, so diskFull() always
	// trips and Store must refuse the capture rather than write it.
	m, err := NewManager(Config{BasePath: dir, DeviceID: "dev1", MinFreeBytes: 1 << 62}, nil)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	_, err = m.Store("cam1", make([]byte, 200), time.Now(), Metadata{})
	if err != ErrDiskFull {
		t.Fatalf("Store() error = %v, want ErrDiskFull", err)
	}
}

func TestStoreSucceedsWithModestFreeSpaceFloor(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(Config{BasePath: dir, DeviceID: "dev1", MinFreeBytes: 1}, nil)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	if _, err := m.Store("cam1", make([]byte, 200), time.Now(), Metadata{}); err != nil {
		t.Fatalf("Store() error = %v, want nil with a trivially small free-space floor", err)
	}
}
