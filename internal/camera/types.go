// Package camera implements the capture-side driver abstraction for the
// three supported camera kinds: USB, RTSP, and ONVIF.
package camera

import (
	"context"
	"time"
)

// Camera defines the capability set every driver implements. The set is
// closed and known at compile time: a Camera is either usb, rtsp, or onvif,
// never an arbitrary plugin.
type Camera interface {
	// Setup establishes whatever state the driver needs before Capture can
	// succeed (resolving a media service, checking a device node exists).
	// Called once when a camera is registered and again, on a backoff
	// schedule, for a camera whose initial Setup failed.
	Setup(ctx context.Context) error

	// Capture fetches a fresh snapshot from the camera. Must always return
	// fresh data - never cached or stale images.
	Capture(ctx context.Context) ([]byte, error)

	// Reconnect re-establishes the driver's connection state after a
	// capture failure the tracker judged worth reconnecting over. Bounded
	// attempts with linear backoff are the caller's responsibility; a
	// single call here is one attempt.
	Reconnect(ctx context.Context) error

	// Cleanup releases any resources Setup or Capture acquired. The
	// capture coordinator does not call it: RemoveCamera and Stop only
	// stop the camera's worker.
	Cleanup() error

	// Describe reports device identity information beyond the bare
	// ID/Type pair, for the portal's camera describe surface. Not on the
	// capture hot path.
	Describe(ctx context.Context) (map[string]string, error)

	// ID returns the camera identifier.
	ID() string

	// Type returns the camera kind ("usb", "onvif", "rtsp").
	Type() string
}

// KeepAliver is implemented by drivers that can exercise the connection
// without performing a full capture. Consulted while a camera is OFFLINE so
// the coordinator can probe a stream's availability without paying the cost
// of a full decode.
type KeepAliver interface {
	KeepAlive(ctx context.Context) error
}

// Config represents camera configuration, translated from the YAML
// CameraSpec by internal/config.
type Config struct {
	ID             string
	Name           string
	Type           string // "usb", "rtsp", "onvif"
	USB            *USBConfig
	ONVIF          *ONVIFConfig
	RTSP           *RTSPConfig
	TimeoutSeconds int
}

// USBConfig represents local V4L2 device configuration.
type USBConfig struct {
	DevicePath string // e.g. /dev/video0
	Width      int
	Height     int
	FPS        int
}

// ONVIFConfig represents ONVIF camera configuration.
type ONVIFConfig struct {
	Endpoint     string
	Username     string
	Password     string
	ProfileToken string
}

// RTSPConfig represents RTSP camera configuration.
type RTSPConfig struct {
	URL       string
	Username  string
	Password  string
	Substream bool
}

// Error types for camera operations. These replace exception-driven control
// flow with explicit, typed results a caller can classify without string
// matching.
type (
	// TimeoutError indicates a capture operation timed out.
	TimeoutError struct {
		CameraID string
		Timeout  time.Duration
	}

	// AuthError indicates authentication failed.
	AuthError struct {
		CameraID string
		Message  string
	}

	// DeviceNotFoundError indicates a USB device node is missing.
	DeviceNotFoundError struct {
		CameraID string
		Path     string
	}

	// DeviceBusyError indicates a USB device is already claimed by another
	// process.
	DeviceBusyError struct {
		CameraID string
		Path     string
	}

	// CaptureError indicates a general capture failure.
	CaptureError struct {
		CameraID string
		Message  string
		Err      error
	}
)

func (e *TimeoutError) Error() string {
	return "capture timeout: " + e.CameraID
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.CameraID + ": " + e.Message
}

func (e *DeviceNotFoundError) Error() string {
	return "device not found: " + e.CameraID + ": " + e.Path
}

func (e *DeviceBusyError) Error() string {
	return "device busy: " + e.CameraID + ": " + e.Path
}

func (e *CaptureError) Error() string {
	if e.Err != nil {
		return "capture failed: " + e.CameraID + ": " + e.Message + ": " + e.Err.Error()
	}
	return "capture failed: " + e.CameraID + ": " + e.Message
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}
