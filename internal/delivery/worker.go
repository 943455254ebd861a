// Package delivery drains the storage manager's pending queue to the
// central server: read the oldest captures per camera, upload with a
// bounded retry, and promote or permanently fail the sidecar depending on
// the outcome.
package delivery

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/AlterMundi/sai-cam-agent/internal/storage"
	"github.com/AlterMundi/sai-cam-agent/internal/upload"
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

// retryDelays is the exponential (base 4) backoff schedule for a single
// image: after its first upload attempt fails, one retry follows each
// delay, and once those 5 retries have failed too the image is abandoned
// for this pass: the next pass will pick it back up from ListPending. 4xx-other-than-429
// responses short-circuit this schedule since spec.md 4.5 step 5 treats
// them as permanent, not transient.
var retryDelays = []time.Duration{
	1 * time.Second,
	4 * time.Second,
	16 * time.Second,
	64 * time.Second,
	256 * time.Second,
}

// Worker periodically scans every camera's pending queue and uploads the
// oldest images first, FIFO, one camera at a time per poll.
type Worker struct {
	storage  *storage.Manager
	client   upload.Client
	cameraID func() []string
	interval time.Duration
	batch    int
	logger   Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// Config configures a delivery Worker.
type Config struct {
	Storage  *storage.Manager
	Client   upload.Client
	CameraID func() []string // returns the current camera ID set
	Interval time.Duration   // poll interval, default 10s
	Batch    int             // images drained per camera per poll, default 5
	Logger   Logger
}

// New creates a Worker. Call Start to begin draining.
func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	batch := cfg.Batch
	if batch <= 0 {
		batch = 5
	}
	return &Worker{
		storage:  cfg.Storage,
		client:   cfg.Client,
		cameraID: cfg.CameraID,
		interval: interval,
		batch:    batch,
		logger:   logger,
	}
}

// Start launches the drain loop in a background goroutine.
func (w *Worker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.drainAll()
			}
		}
	}()
}

// Stop cancels the drain loop and waits, up to the given grace period, for
// any in-flight upload to finish.
func (w *Worker) Stop(grace time.Duration) {
	if w.cancel != nil {
		w.cancel()
	}
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
	}
}

func (w *Worker) drainAll() {
	for _, id := range w.cameraID() {
		w.drainCamera(id)
	}
}

func (w *Worker) drainCamera(cameraID string) {
	images, err := w.storage.ListPending(cameraID, w.batch)
	if err != nil {
		w.logger.Warn("list pending images failed", "camera", cameraID, "error", err)
		return
	}
	for _, img := range images {
		w.deliverOne(cameraID, img)
	}
}

func (w *Worker) deliverOne(cameraID string, img *storage.Image) {
	data, err := os.ReadFile(img.Path)
	if err != nil {
		w.logger.Error("read pending image failed", "camera", cameraID, "path", img.Path, "error", err)
		return
	}
	var metadata []byte
	if img.MetaPath != "" {
		metadata, err = os.ReadFile(img.MetaPath)
		if err != nil {
			w.logger.Warn("read metadata sidecar failed, uploading without it", "camera", cameraID, "path", img.MetaPath, "error", err)
			metadata = nil
		}
	}

	var lastErr error
	for attempt := 0; attempt <= len(retryDelays); attempt++ {
		if attempt > 0 {
			time.Sleep(retryDelays[attempt-1])
		}

		err := w.client.Upload(cameraID+"/"+img.Filename, data, metadata)
		if err == nil {
			if err := w.storage.MarkUploaded(img); err != nil {
				w.logger.Error("mark uploaded failed", "camera", cameraID, "path", img.Path, "error", err)
			}
			return
		}
		lastErr = err

		var statusErr *upload.StatusError
		var authErr *upload.AuthError
		if (errors.As(err, &statusErr) && statusErr.Permanent()) || errors.As(err, &authErr) {
			// Retrying will not help; give up now.
			if err := w.storage.MarkPermanentFailure(img, err.Error()); err != nil {
				w.logger.Error("mark permanent failure failed", "camera", cameraID, "path", img.Path, "error", err)
			}
			w.logger.Error("upload permanently failed", "camera", cameraID, "path", img.Path, "error", err)
			return
		}
		w.logger.Warn("upload attempt failed, will retry", "camera", cameraID, "attempt", attempt+1, "error", err)
	}

	w.logger.Error("upload exhausted retries, leaving pending for next pass",
		"camera", cameraID, "path", img.Path, "error", lastErr)
}
