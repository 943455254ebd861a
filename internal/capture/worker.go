// Package capture runs the per-camera capture loop: pace captures against
// the camera's health state, validate frames, and hand them to storage.
package capture

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/AlterMundi/sai-cam-agent/internal/camera"
	"github.com/AlterMundi/sai-cam-agent/internal/resource"
	"github.com/AlterMundi/sai-cam-agent/internal/storage"
	"github.com/AlterMundi/sai-cam-agent/internal/timesync"
	"github.com/AlterMundi/sai-cam-agent/internal/tracker"
)

// Logger matches the minimal logging shape used throughout the agent.
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

// crashWindow and maxCrashesPerWindow bound the panic-recovery restart rate:
// unlike an unconditional forever-restart loop, a worker that panics this
// often in this short a window is disabled rather than burning CPU in a
// tight crash loop.
const (
	crashWindow          = 5 * time.Minute
	maxCrashesPerWindow  = 5
	crashRestartDelay    = 10 * time.Second
	minTickInterval      = time.Second
	captureJobMaxOverage = 30 * time.Second
)

// Stats is a point-in-time snapshot of one camera's capture activity.
type Stats struct {
	CameraID           string           `json:"camera_id"`
	Tracker            tracker.Snapshot `json:"tracker"`
	CapturesTotal      int64            `json:"captures_total"`
	CapturesFailed     int64            `json:"captures_failed"`
	KeepAlivesTotal    int64            `json:"keep_alives_total"`
	CurrentlyCapturing bool             `json:"currently_capturing"`
	LastCaptureTime    time.Time        `json:"last_capture_time"`
	Disabled           bool             `json:"disabled"`
}

// WorkerConfig configures a single camera's capture worker.
type WorkerConfig struct {
	Camera       camera.Camera
	DeviceID     string
	Storage      *storage.Manager
	Tracker      *tracker.Tracker
	Limiter      *resource.Limiter
	BaseInterval time.Duration
	Logger       Logger
	// TimeAuthority, if set, grades the trustworthiness of each capture's
	// observation timestamp against NTP health before it's persisted. Left
	// nil, every capture is stamped with the local clock and no confidence
	// grade is recorded in its metadata.
	TimeAuthority *timesync.Authority
	// OnCapture, if set, is invoked after every successful capture with the
	// raw frame bytes, for the portal's live-preview cache.
	OnCapture func(cameraID string, data []byte, observedAt time.Time)
	// ReconnectAttempts and ReconnectDelay govern the linear-backoff
	// Reconnect loop run the moment a camera first crosses into OFFLINE.
	// Zero values fall back to 5 attempts at a 5 second base delay.
	ReconnectAttempts int
	ReconnectDelay    time.Duration
}

// Worker drives capture for exactly one camera.
type Worker struct {
	camera            camera.Camera
	cameraID          string
	deviceID          string
	storage           *storage.Manager
	tracker           *tracker.Tracker
	limiter           *resource.Limiter
	baseInterval      time.Duration
	logger            Logger
	timeAuthority     *timesync.Authority
	onCapture         func(cameraID string, data []byte, observedAt time.Time)
	reconnectAttempts int
	reconnectDelay    time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu                 sync.Mutex
	currentlyCapturing bool
	capturesTotal      int64
	capturesFailed     int64
	keepAlivesTotal    int64
	lastCaptureTime    time.Time
	crashTimes         []time.Time
	disabled           bool
}

// NewWorker builds a capture worker. BaseInterval below one second is
// clamped up; there is no reasonable camera that needs sub-second polling.
func NewWorker(cfg WorkerConfig) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	interval := cfg.BaseInterval
	if interval < time.Second {
		interval = time.Second
	}

	t := cfg.Tracker
	if t == nil {
		t = tracker.New(cfg.Camera.ID())
	}

	reconnectAttempts := cfg.ReconnectAttempts
	if reconnectAttempts <= 0 {
		reconnectAttempts = 5
	}
	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}

	return &Worker{
		camera:            cfg.Camera,
		cameraID:          cfg.Camera.ID(),
		deviceID:          cfg.DeviceID,
		storage:           cfg.Storage,
		tracker:           t,
		limiter:           cfg.Limiter,
		baseInterval:      interval,
		logger:            logger,
		timeAuthority:     cfg.TimeAuthority,
		onCapture:         cfg.OnCapture,
		reconnectAttempts: reconnectAttempts,
		reconnectDelay:    reconnectDelay,
		ctx:               ctx,
		cancel:            cancel,
	}
}

// Start begins the capture loop in a background goroutine.
func (w *Worker) Start() {
	go w.supervise()
}

// Stop signals the capture loop to exit and waits for no one in particular;
// the loop observes ctx.Done() within one tick.
func (w *Worker) Stop() {
	w.cancel()
}

// Stats returns a snapshot of this worker's counters and camera health.
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		CameraID:           w.cameraID,
		Tracker:            w.tracker.Get(),
		CapturesTotal:      w.capturesTotal,
		CapturesFailed:     w.capturesFailed,
		KeepAlivesTotal:    w.keepAlivesTotal,
		CurrentlyCapturing: w.currentlyCapturing,
		LastCaptureTime:    w.lastCaptureTime,
		Disabled:           w.disabled,
	}
}

// Camera returns the driver this worker captures from.
func (w *Worker) Camera() camera.Camera {
	return w.camera
}

// TriggerCapture runs one capture-or-keepalive cycle immediately in a new
// goroutine, for the portal's "force capture" endpoint. It is a no-op while
// a cycle is already in flight or the worker has been disabled.
func (w *Worker) TriggerCapture() bool {
	w.mu.Lock()
	if w.currentlyCapturing || w.disabled {
		w.mu.Unlock()
		return false
	}
	w.mu.Unlock()

	go w.attempt()
	return true
}

// supervise wraps run() with panic recovery and a restart-rate guard: a
// worker that crashes repeatedly in a short window is taken offline rather
// than restarted forever, since that usually means a driver bug rather than
// a transient camera fault.
func (w *Worker) supervise() {
	for {
		if w.ctx.Err() != nil {
			return
		}

		crashed := w.runRecovered()
		if !crashed {
			return
		}

		w.mu.Lock()
		now := time.Now()
		cutoff := now.Add(-crashWindow)
		kept := w.crashTimes[:0]
		for _, t := range w.crashTimes {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		w.crashTimes = append(kept, now)
		tooMany := len(w.crashTimes) >= maxCrashesPerWindow
		if tooMany {
			w.disabled = true
		}
		w.mu.Unlock()

		if tooMany {
			w.logger.Error("capture worker crashed too many times, disabling",
				"camera", w.cameraID, "crashes", maxCrashesPerWindow, "window", crashWindow)
			return
		}

		w.logger.Warn("capture worker panicked, restarting",
			"camera", w.cameraID, "delay", crashRestartDelay)

		select {
		case <-time.After(crashRestartDelay):
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Worker) runRecovered() (crashed bool) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("capture worker panic", "camera", w.cameraID, "panic", r, "stack", string(debug.Stack()))
			crashed = true
		}
	}()
	w.run()
	return false
}

func (w *Worker) run() {
	ticker := time.NewTicker(minTickInterval)
	defer ticker.Stop()

	w.attempt()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			busy := w.currentlyCapturing
			w.mu.Unlock()
			if busy {
				continue
			}
			if !w.tracker.ShouldAttempt(time.Now()) {
				continue
			}
			w.attempt()
		}
	}
}

// attempt runs one capture-or-keepalive cycle. While the camera is OFFLINE
// and its driver supports a cheap keep-alive probe, attempt() uses that
// instead of a full capture to avoid paying JPEG decode cost on a camera
// that is almost certainly still down.
func (w *Worker) attempt() {
	w.mu.Lock()
	w.currentlyCapturing = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.currentlyCapturing = false
		w.lastCaptureTime = time.Now()
		w.mu.Unlock()
	}()

	jobTimeout := w.baseInterval + captureJobMaxOverage
	ctx, cancel := context.WithTimeout(w.ctx, jobTimeout)
	defer cancel()

	if w.tracker.IsOffline() {
		if prober, ok := w.camera.(camera.KeepAliver); ok {
			w.keepAlive(ctx, prober)
			return
		}
	}

	w.capture(ctx)
}

func (w *Worker) keepAlive(ctx context.Context, prober camera.KeepAliver) {
	err := prober.KeepAlive(ctx)
	now := time.Now()
	if err != nil {
		w.tracker.RecordFailure(now, w.baseInterval, err)
		w.logger.Debug("keep-alive probe failed", "camera", w.cameraID, "error", err)
		return
	}

	w.mu.Lock()
	w.keepAlivesTotal++
	w.mu.Unlock()
	w.tracker.RecordSuccess(now, w.baseInterval)
	w.logger.Info("camera responded to keep-alive probe", "camera", w.cameraID)
}

// reconnect runs when a camera first crosses into OFFLINE, trying to
// re-establish the driver's connection state with linear backoff before the
// tracker's own capture-retry schedule kicks in. It runs on the worker's
// long-lived context rather than the per-attempt job deadline, since several
// backed-off attempts can easily exceed a single capture interval.
func (w *Worker) reconnect() {
	for attempt := 1; attempt <= w.reconnectAttempts; attempt++ {
		if w.ctx.Err() != nil {
			return
		}
		if err := w.camera.Reconnect(w.ctx); err == nil {
			w.logger.Info("camera reconnected", "camera", w.cameraID, "attempt", attempt)
			return
		} else {
			w.logger.Warn("reconnect attempt failed", "camera", w.cameraID, "attempt", attempt, "error", err)
		}

		select {
		case <-time.After(time.Duration(attempt) * w.reconnectDelay):
		case <-w.ctx.Done():
			return
		}
	}
	w.logger.Error("reconnect attempts exhausted", "camera", w.cameraID, "attempts", w.reconnectAttempts)
}

// validateFrame decodes and scores the captured JPEG behind the shared
// image-processing limiter, since decode is the single most CPU-expensive
// step in the capture path and is exactly the work the limiter exists to
// serialize against the portal's web UI.
func (w *Worker) validateFrame(ctx context.Context, data []byte) (camera.ValidationResult, error) {
	if w.limiter != nil {
		if err := w.limiter.AcquireImageProcessing(ctx); err != nil {
			return camera.ValidationResult{}, err
		}
		defer w.limiter.ReleaseImageProcessing()
	}
	return camera.ValidateFrame(data)
}

func (w *Worker) capture(ctx context.Context) {
	w.mu.Lock()
	w.capturesTotal++
	w.mu.Unlock()

	if w.limiter != nil {
		if delay := w.limiter.GetThrottleDelay(); delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}
	}

	data, err := w.camera.Capture(ctx)
	now := time.Now()
	if err != nil {
		w.mu.Lock()
		w.capturesFailed++
		w.mu.Unlock()
		wasOffline := w.tracker.IsOffline()
		w.tracker.RecordFailure(now, w.baseInterval, err)
		w.logger.Warn("capture failed", "camera", w.cameraID, "error", err, "state", w.tracker.State())
		if !wasOffline && w.tracker.IsOffline() {
			w.reconnect()
		}
		return
	}

	result, err := w.validateFrame(ctx, data)
	if err != nil {
		w.mu.Lock()
		w.capturesFailed++
		w.mu.Unlock()
		w.tracker.RecordFailure(now, w.baseInterval, &camera.CaptureError{CameraID: w.cameraID, Message: "frame validation", Err: err})
		w.logger.Warn("captured frame failed validation", "camera", w.cameraID, "error", err)
		return
	}
	if result.BrightnessWarn {
		w.logger.Warn("captured frame brightness out of range", "camera", w.cameraID, "reason", result.BrightnessReason, "mean", result.MeanLuminance)
	}

	observedAt := now
	meta := storage.Metadata{
		DeviceID:       w.deviceID,
		CameraID:       w.cameraID,
		BrightnessMean: result.MeanLuminance,
		BrightnessWarn: result.BrightnessWarn,
	}
	if w.timeAuthority != nil {
		obs := w.timeAuthority.DetermineObservationTime(now, nil)
		observedAt = obs.Time
		meta.TimeConfidence = string(obs.Confidence)
		if obs.Warning != nil {
			meta.TimeWarning = obs.Warning.Message
			w.logger.Warn("observation time uncertain", "camera", w.cameraID, "code", obs.Warning.Code, "message", obs.Warning.Message)
		}
	}
	meta.ObservedAt = observedAt

	if w.storage != nil {
		if _, err := w.storage.Store(w.cameraID, data, observedAt, meta); err != nil {
			if err == storage.ErrDiskFull {
				w.logger.Warn("disk full, frame dropped", "camera", w.cameraID)
			} else {
				w.logger.Error("failed to store captured frame", "camera", w.cameraID, "error", err)
			}
		}
	}

	w.tracker.RecordSuccess(now, w.baseInterval)

	if w.onCapture != nil {
		w.onCapture(w.cameraID, data, observedAt)
	}
}
