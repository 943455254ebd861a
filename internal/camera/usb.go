package camera

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// USBCamera implements Camera for locally attached V4L2 devices. Like
// RTSPCamera it shells out to ffmpeg for a single frame rather than holding
// an open device handle, so a crashed capture never leaves the device node
// claimed.
type USBCamera struct {
	config Config
}

// NewUSBCamera creates a new USB camera instance.
func NewUSBCamera(config Config) (*USBCamera, error) {
	if config.USB == nil {
		return nil, fmt.Errorf("usb config is required")
	}
	if config.USB.DevicePath == "" {
		return nil, fmt.Errorf("usb.device_path is required")
	}
	return &USBCamera{config: config}, nil
}

// Capture fetches a fresh frame from the V4L2 device using ffmpeg.
func (c *USBCamera) Capture(ctx context.Context) ([]byte, error) {
	dev := c.config.USB.DevicePath

	if _, err := os.Stat(dev); err != nil {
		return nil, &DeviceNotFoundError{CameraID: c.config.ID, Path: dev}
	}

	timeout := time.Duration(c.config.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	captureCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{"-f", "v4l2"}
	if c.config.USB.Width > 0 && c.config.USB.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", c.config.USB.Width, c.config.USB.Height))
	}
	if c.config.USB.FPS > 0 {
		args = append(args, "-framerate", strconv.Itoa(c.config.USB.FPS))
	}
	// Discard the first frame: many USB webcams return a stale or
	// under-exposed frame immediately after open while auto-exposure settles.
	args = append(args, "-i", dev, "-vf", "select=gte(n\\,1)", "-frames:v", "1", "-f", "image2", "-vcodec", "mjpeg", "-")

	cmd := exec.CommandContext(captureCtx, "ffmpeg", args...)
	var stderrBuf strings.Builder
	cmd.Stderr = &stderrBuf

	output, err := cmd.Output()
	if err != nil {
		if captureCtx.Err() == context.DeadlineExceeded {
			return nil, &TimeoutError{CameraID: c.config.ID, Timeout: timeout}
		}

		stderrMsg := stderrBuf.String()
		if strings.Contains(stderrMsg, "Device or resource busy") {
			return nil, &DeviceBusyError{CameraID: c.config.ID, Path: dev}
		}

		errMsg := "ffmpeg capture failed"
		if stderrMsg != "" {
			errMsg += ": " + stderrMsg
		}
		return nil, &CaptureError{CameraID: c.config.ID, Message: errMsg, Err: err}
	}

	if len(output) == 0 {
		return nil, &CaptureError{CameraID: c.config.ID, Message: "ffmpeg returned empty output"}
	}

	return output, nil
}

// Setup confirms the configured device node exists. The driver holds no
// other state between calls, so there is nothing further to establish.
func (c *USBCamera) Setup(ctx context.Context) error {
	dev := c.config.USB.DevicePath
	if _, err := os.Stat(dev); err != nil {
		return &DeviceNotFoundError{CameraID: c.config.ID, Path: dev}
	}
	return nil
}

// Reconnect re-checks the device node, same as Setup: a USB camera has no
// session to tear down and re-establish, only a node that may or may not
// currently be present.
func (c *USBCamera) Reconnect(ctx context.Context) error {
	return c.Setup(ctx)
}

// Cleanup is a no-op: Capture never leaves the device node claimed between
// calls.
func (c *USBCamera) Cleanup() error { return nil }

// Describe reports the configured device path.
func (c *USBCamera) Describe(ctx context.Context) (map[string]string, error) {
	return map[string]string{
		"type":        "usb",
		"device_path": c.config.USB.DevicePath,
	}, nil
}

// ID returns the camera identifier.
func (c *USBCamera) ID() string { return c.config.ID }

// Type returns the camera kind.
func (c *USBCamera) Type() string { return "usb" }
