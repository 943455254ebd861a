package camera

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"strings"
	"time"
)

// RTSPCamera implements Camera for RTSP stream cameras.
// Uses ffmpeg to capture a single frame from the RTSP stream - no
// long-running decoder state is kept between captures.
type RTSPCamera struct {
	config Config
}

// NewRTSPCamera creates a new RTSP camera instance.
func NewRTSPCamera(config Config) (*RTSPCamera, error) {
	if config.RTSP == nil {
		return nil, fmt.Errorf("rtsp config is required")
	}
	if config.RTSP.URL == "" {
		return nil, fmt.Errorf("rtsp.url is required")
	}

	return &RTSPCamera{config: config}, nil
}

// Capture fetches a fresh snapshot from the RTSP stream using ffmpeg.
func (c *RTSPCamera) Capture(ctx context.Context) ([]byte, error) {
	return c.run(ctx, []string{"-vframes", "1", "-f", "image2", "-vcodec", "mjpeg", "-"}, true)
}

// KeepAlive pulls one frame and discards it without decoding, used while the
// camera is OFFLINE to probe stream availability without paying the JPEG
// decode cost of a full capture.
func (c *RTSPCamera) KeepAlive(ctx context.Context) error {
	_, err := c.run(ctx, []string{"-frames:v", "1", "-c", "copy", "-f", "null", "-"}, false)
	return err
}

func (c *RTSPCamera) run(ctx context.Context, outputArgs []string, wantOutput bool) ([]byte, error) {
	timeout := time.Duration(c.config.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 20 * time.Second
	}

	captureCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rtspURL := c.config.RTSP.URL
	if c.config.RTSP.Substream {
		rtspURL = c.modifyURLForSubstream(rtspURL)
	}

	if c.config.RTSP.Username != "" && c.config.RTSP.Password != "" {
		if !containsCredentials(rtspURL) {
			rtspURL = fmt.Sprintf("rtsp://%s:%s@%s",
				c.config.RTSP.Username,
				c.config.RTSP.Password,
				extractHostPath(rtspURL))
		}
	}

	args := append([]string{"-rtsp_transport", "tcp", "-i", rtspURL}, outputArgs...)

	cmd := exec.CommandContext(captureCtx, "ffmpeg", args...)

	var stderrBuf strings.Builder
	cmd.Stderr = &stderrBuf

	output, err := cmd.Output()
	if err != nil {
		if captureCtx.Err() == context.DeadlineExceeded {
			return nil, &TimeoutError{CameraID: c.config.ID, Timeout: timeout}
		}

		stderrMsg := stderrBuf.String()
		errMsg := "ffmpeg capture failed"
		if stderrMsg != "" {
			errMsg += ": " + stderrMsg
		}

		if isAuthError(err) || strings.Contains(stderrMsg, "401") {
			return nil, &AuthError{CameraID: c.config.ID, Message: "RTSP authentication failed"}
		}

		return nil, &CaptureError{CameraID: c.config.ID, Message: errMsg, Err: err}
	}

	if wantOutput && len(output) == 0 {
		return nil, &CaptureError{CameraID: c.config.ID, Message: "ffmpeg returned empty output"}
	}

	return output, nil
}

// Setup probes the stream once with KeepAlive's lightweight null-output
// pull, confirming the URL is reachable before Capture is ever called.
func (c *RTSPCamera) Setup(ctx context.Context) error {
	return c.KeepAlive(ctx)
}

// Reconnect re-probes the stream. RTSPCamera holds no session between
// calls, so this is the same probe as Setup.
func (c *RTSPCamera) Reconnect(ctx context.Context) error {
	return c.KeepAlive(ctx)
}

// Cleanup is a no-op: each call spawns and waits on its own ffmpeg process.
func (c *RTSPCamera) Cleanup() error { return nil }

// Describe reports the stream URL with credentials stripped.
func (c *RTSPCamera) Describe(ctx context.Context) (map[string]string, error) {
	return map[string]string{
		"type": "rtsp",
		"url":  extractHostPath(c.config.RTSP.URL),
	}, nil
}

// ID returns the camera identifier.
func (c *RTSPCamera) ID() string { return c.config.ID }

// Type returns the camera kind.
func (c *RTSPCamera) Type() string { return "rtsp" }

// modifyURLForSubstream attempts to rewrite the URL for a lower-bandwidth
// substream. Camera-specific, best-effort.
func (c *RTSPCamera) modifyURLForSubstream(u string) string {
	if strings.Contains(u, "/stream1") {
		return strings.Replace(u, "/stream1", "/stream2", 1)
	}
	if strings.Contains(u, "/main") {
		return strings.Replace(u, "/main", "/sub", 1)
	}
	if strings.Contains(u, "/0") && !strings.Contains(u, "/10") {
		return strings.Replace(u, "/0", "/1", 1)
	}
	return u
}

func containsCredentials(u string) bool {
	return strings.Contains(u, "@")
}

func extractHostPath(rtspURL string) string {
	u, err := url.Parse(rtspURL)
	if err != nil {
		if idx := strings.Index(rtspURL, "://"); idx >= 0 {
			rtspURL = rtspURL[idx+3:]
		}
		if idx := strings.Index(rtspURL, "@"); idx >= 0 {
			rtspURL = rtspURL[idx+1:]
		}
		return rtspURL
	}

	hostPath := u.Host
	if u.Path != "" {
		hostPath += u.Path
	}
	if u.RawQuery != "" {
		hostPath += "?" + u.RawQuery
	}
	return hostPath
}

func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "unauthorized") ||
		strings.Contains(errStr, "authentication") ||
		strings.Contains(errStr, "access denied")
}
