package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AlterMundi/sai-cam-agent/internal/camera"
	"github.com/AlterMundi/sai-cam-agent/internal/resource"
	"github.com/AlterMundi/sai-cam-agent/internal/storage"
	"github.com/AlterMundi/sai-cam-agent/internal/timesync"
	"github.com/AlterMundi/sai-cam-agent/internal/tracker"
)

// Coordinator owns one Worker per configured camera and the shared storage
// manager and resource limiter they report through.
type Coordinator struct {
	mu                   sync.RWMutex
	workers              map[string]*Worker
	trackers             map[string]*tracker.Tracker
	intervals            map[string]time.Duration
	onCaptures           map[string]func(cameraID string, data []byte, observedAt time.Time)
	storage              *storage.Manager
	limiter              *resource.Limiter
	timeAuthority        *timesync.Authority
	deviceID             string
	logger               Logger
	started              bool
	reconnectAttempts    int
	reconnectDelay       time.Duration
	startupRetryAttempts int
	startupRetryDelay    time.Duration
}

// Config configures the coordinator.
type Config struct {
	DeviceID string
	Storage  *storage.Manager
	Limiter  *resource.Limiter
	// TimeAuthority, if set, is handed to every camera worker to grade
	// observation timestamps against NTP health.
	TimeAuthority *timesync.Authority
	Logger        Logger
	// ReconnectAttempts and ReconnectDelay are passed to every worker; see
	// WorkerConfig for semantics.
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	// StartupRetryAttempts and StartupRetryDelay govern RetrySetup's
	// exponential-backoff loop for cameras whose initial Setup failed.
	StartupRetryAttempts int
	StartupRetryDelay    time.Duration
}

// New creates an empty coordinator. Cameras are registered with AddCamera.
func New(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Coordinator{
		workers:              make(map[string]*Worker),
		trackers:             make(map[string]*tracker.Tracker),
		intervals:            make(map[string]time.Duration),
		onCaptures:           make(map[string]func(cameraID string, data []byte, observedAt time.Time)),
		storage:              cfg.Storage,
		limiter:              cfg.Limiter,
		timeAuthority:        cfg.TimeAuthority,
		deviceID:             cfg.DeviceID,
		logger:               logger,
		reconnectAttempts:    cfg.ReconnectAttempts,
		reconnectDelay:       cfg.ReconnectDelay,
		startupRetryAttempts: cfg.StartupRetryAttempts,
		startupRetryDelay:    cfg.StartupRetryDelay,
	}
}

// AddCamera registers a camera and starts its worker immediately if the
// coordinator itself has already been started (hot-reload path).
func (c *Coordinator) AddCamera(cam camera.Camera, baseInterval time.Duration, onCapture func(cameraID string, data []byte, observedAt time.Time)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := cam.ID()
	if _, exists := c.workers[id]; exists {
		return fmt.Errorf("camera %s already registered", id)
	}

	t := tracker.New(id)
	worker := NewWorker(WorkerConfig{
		Camera:            cam,
		DeviceID:          c.deviceID,
		Storage:           c.storage,
		Tracker:           t,
		Limiter:           c.limiter,
		BaseInterval:      baseInterval,
		Logger:            c.logger,
		TimeAuthority:     c.timeAuthority,
		OnCapture:         onCapture,
		ReconnectAttempts: c.reconnectAttempts,
		ReconnectDelay:    c.reconnectDelay,
	})

	c.workers[id] = worker
	c.trackers[id] = t
	c.intervals[id] = baseInterval
	c.onCaptures[id] = onCapture

	if c.started {
		worker.Start()
		c.logger.Info("capture worker started", "camera", id)
	}

	return nil
}

// RemoveCamera stops and forgets a camera's worker.
func (c *Coordinator) RemoveCamera(cameraID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if worker, ok := c.workers[cameraID]; ok {
		worker.Stop()
		delete(c.workers, cameraID)
		delete(c.trackers, cameraID)
		delete(c.intervals, cameraID)
		delete(c.onCaptures, cameraID)
		c.logger.Info("capture worker removed", "camera", cameraID)
	}
}

// Restart stops and recreates a camera's worker in place, preserving its
// tracker history, for the portal's "restart one camera worker" endpoint.
func (c *Coordinator) Restart(cameraID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	worker, ok := c.workers[cameraID]
	if !ok {
		return fmt.Errorf("camera %s not registered", cameraID)
	}
	worker.Stop()

	replacement := NewWorker(WorkerConfig{
		Camera:            worker.Camera(),
		DeviceID:          c.deviceID,
		Storage:           c.storage,
		Tracker:           c.trackers[cameraID],
		Limiter:           c.limiter,
		BaseInterval:      c.intervals[cameraID],
		Logger:            c.logger,
		TimeAuthority:     c.timeAuthority,
		OnCapture:         c.onCaptures[cameraID],
		ReconnectAttempts: c.reconnectAttempts,
		ReconnectDelay:    c.reconnectDelay,
	})
	c.workers[cameraID] = replacement

	if c.started {
		replacement.Start()
	}
	c.logger.Info("capture worker restarted", "camera", cameraID)
	return nil
}

// TriggerCapture forces an immediate capture attempt on one camera, for the
// portal's "force capture" endpoint. Returns false if the camera is unknown,
// already capturing, or disabled.
func (c *Coordinator) TriggerCapture(cameraID string) (bool, error) {
	c.mu.RLock()
	worker, ok := c.workers[cameraID]
	c.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("camera %s not registered", cameraID)
	}
	return worker.TriggerCapture(), nil
}

// Start launches every registered worker.
func (c *Coordinator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
	for id, worker := range c.workers {
		worker.Start()
		c.logger.Info("capture worker started", "camera", id)
	}
}

// Stop signals every worker to exit. It does not block for their goroutines
// to return; each observes cancellation within one tick.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, worker := range c.workers {
		worker.Stop()
		c.logger.Info("capture worker stopped", "camera", id)
	}
	c.started = false
}

// Tracker returns the health tracker for a given camera, if registered.
func (c *Coordinator) Tracker(cameraID string) (*tracker.Tracker, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.trackers[cameraID]
	return t, ok
}

// Trackers returns a snapshot of every registered camera's tracker, keyed
// by camera ID. It satisfies internal/health.CameraSource.
func (c *Coordinator) Trackers() map[string]*tracker.Tracker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*tracker.Tracker, len(c.trackers))
	for id, t := range c.trackers {
		out[id] = t
	}
	return out
}

// RetrySetup re-attempts bringing up a camera that failed to register at
// startup: it rebuilds the driver and runs Setup on a exponential backoff
// schedule in the background, registering the camera the first time both
// succeed. Gives up after StartupRetryAttempts (default 5), logging one
// error; individual failed attempts are logged as warnings.
func (c *Coordinator) RetrySetup(ctx context.Context, cameraID string, baseInterval time.Duration, build func() (camera.Camera, error), onCapture func(cameraID string, data []byte, observedAt time.Time)) {
	attempts := c.startupRetryAttempts
	if attempts <= 0 {
		attempts = 5
	}
	delay := c.startupRetryDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}

	go func() {
		for attempt := 1; attempt <= attempts; attempt++ {
			wait := delay << uint(attempt-1)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
			if ctx.Err() != nil {
				return
			}

			cam, err := build()
			if err != nil {
				c.logger.Warn("startup retry: create camera failed", "camera", cameraID, "attempt", attempt, "error", err)
				continue
			}
			if err := cam.Setup(ctx); err != nil {
				c.logger.Warn("startup retry: camera setup failed", "camera", cameraID, "attempt", attempt, "error", err)
				continue
			}
			if err := c.AddCamera(cam, baseInterval, onCapture); err != nil {
				c.logger.Warn("startup retry: register camera failed", "camera", cameraID, "attempt", attempt, "error", err)
				continue
			}

			c.logger.Info("camera came up on startup retry", "camera", cameraID, "attempt", attempt)
			return
		}
		c.logger.Error("startup retry attempts exhausted, camera will not run", "camera", cameraID, "attempts", attempts)
	}()
}

// Stats returns a snapshot of every camera's capture activity.
func (c *Coordinator) Stats() []Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Stats, 0, len(c.workers))
	for _, worker := range c.workers {
		out = append(out, worker.Stats())
	}
	return out
}
