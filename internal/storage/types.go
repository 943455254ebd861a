// Package storage implements the on-disk capture queue: atomic writes into
// pending/<camera_id>/<date>/, promotion into uploaded/<camera_id>/<date>/
// on confirmed delivery, and disk-pressure-driven cleanup.
package storage

import (
	"errors"
	"time"

	"github.com/AlterMundi/sai-cam-agent/internal/resource"
)

var (
	// ErrInvalidImage is returned when the image payload is too small to be
	// a real capture.
	ErrInvalidImage = errors.New("invalid image data")
	// ErrImageFromFuture is returned when the observation timestamp is more
	// than the clock-skew tolerance ahead of the local clock.
	ErrImageFromFuture = errors.New("image timestamp is in the future")
	// ErrDiskFull is returned by Store when the underlying filesystem is
	// out of real free space, distinct from the configured MaxTotalBytes
	// quota: a cleanup pass has already run and space is still short.
	ErrDiskFull = errors.New("disk full, dropping capture")
)

// futureTolerance bounds how far ahead of now an observation timestamp may
// be before it is rejected outright, absorbing ordinary clock jitter between
// the capture worker and the local clock.
const futureTolerance = 5 * time.Second

// Metadata is the JSON sidecar written next to every stored JPEG.
type Metadata struct {
	DeviceID       string            `json:"device_id"`
	CameraID       string            `json:"camera_id"`
	ObservedAt     time.Time         `json:"observed_at"`
	SystemMetrics  map[string]any    `json:"system_metrics,omitempty"`
	CameraParams   map[string]string `json:"camera_params,omitempty"`
	BrightnessMean float64           `json:"brightness_mean"`
	BrightnessWarn bool              `json:"brightness_warn,omitempty"`
	TimeConfidence string            `json:"time_confidence,omitempty"` // "high", "medium", "low"
	TimeWarning    string            `json:"time_warning,omitempty"`    // set when the observation clock could not be trusted
	UploadStatus   string            `json:"upload_status,omitempty"`   // "", "failed_permanent"
	UploadAttempts int               `json:"upload_attempts,omitempty"`
}

// Image identifies a single stored capture, pending or uploaded.
type Image struct {
	CameraID   string
	Filename   string // "<unixmilli>.jpg"
	Path       string // full path to the JPEG
	MetaPath   string // full path to the JSON sidecar
	ObservedAt time.Time
	SizeBytes  int64
}

// CameraStats summarizes one camera's queue for health reporting.
type CameraStats struct {
	CameraID        string    `json:"camera_id"`
	PendingCount    int       `json:"pending_count"`
	PendingBytes    int64     `json:"pending_bytes"`
	OldestPending   time.Time `json:"oldest_pending,omitempty"`
	UploadedCount   int       `json:"uploaded_count"`
	UploadedBytes   int64     `json:"uploaded_bytes"`
	PermanentFailed int       `json:"permanent_failed"`
}

// Config configures the storage manager.
type Config struct {
	BasePath           string // root containing pending/ and uploaded/
	DeviceID           string
	MaxTotalBytes      int64 // disk cap that triggers immediate oldest-first cleanup
	CleanupTargetBytes int64 // level an over-cap cleanup pass stops at; 0 derives from MaxTotalBytes
	RetentionDays      int   // age at which files are deleted outright
	MinFreeBytes       int64 // real filesystem headroom Store refuses to go below
	// Limiter, if set, paces the removal loop in Cleanup so a large sweep
	// doesn't starve interactive work (the portal's web UI) on a
	// resource-constrained device.
	Limiter *resource.Limiter
}

// Logger is the minimal logging dependency, matching the shape used
// throughout the agent so every package can be wired to the same
// implementation without an import cycle.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
