package health

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/AlterMundi/sai-cam-agent/internal/tracker"
)

// DefaultSystemInterval and DefaultCameraInterval match spec.md 4.6: a slow
// system sample and a fast per-camera refresh running independently.
const (
	DefaultSystemInterval = 300 * time.Second
	DefaultCameraInterval = time.Second
)

// CameraSource supplies the live tracker snapshots the collector folds into
// CameraState entries. internal/capture.Coordinator satisfies this.
type CameraSource interface {
	Trackers() map[string]*tracker.Tracker
}

// Collector computes and caches HealthSnapshot data. It never recomputes on
// the request path; IPC handlers read the cached value only.
type Collector struct {
	diskPath        string
	cameras         CameraSource
	systemInterval  time.Duration
	cameraInterval  time.Duration
	pendingCountFn  func() (count int, bytes int64)
	uploadedCountFn func() (count int, bytes int64)

	mu            sync.RWMutex
	snapshot      Snapshot
	systemUpdated time.Time
	startTime     time.Time
}

// Config configures a Collector.
type Config struct {
	DiskPath        string
	Cameras         CameraSource
	SystemInterval  time.Duration
	CameraInterval  time.Duration
	PendingCountFn  func() (count int, bytes int64)
	UploadedCountFn func() (count int, bytes int64)
}

// New creates a Collector. Call Start to begin background sampling.
func New(cfg Config) *Collector {
	sysInt := cfg.SystemInterval
	if sysInt <= 0 {
		sysInt = DefaultSystemInterval
	}
	camInt := cfg.CameraInterval
	if camInt <= 0 {
		camInt = DefaultCameraInterval
	}

	return &Collector{
		diskPath:        cfg.DiskPath,
		cameras:         cfg.Cameras,
		systemInterval:  sysInt,
		cameraInterval:  camInt,
		pendingCountFn:  cfg.PendingCountFn,
		uploadedCountFn: cfg.UploadedCountFn,
		startTime:       time.Now(),
	}
}

// Start launches the two independent sampling loops and blocks until ctx is
// canceled.
func (c *Collector) Start(ctx context.Context) {
	c.refreshSystem()
	c.refreshCameras()

	sysTicker := time.NewTicker(c.systemInterval)
	camTicker := time.NewTicker(c.cameraInterval)
	defer sysTicker.Stop()
	defer camTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sysTicker.C:
			c.refreshSystem()
		case <-camTicker.C:
			c.refreshCameras()
		}
	}
}

func (c *Collector) refreshSystem() {
	metrics := SystemMetrics{
		NumCPU:        runtime.NumCPU(),
		NumGoroutines: runtime.NumGoroutine(),
		UptimeSeconds: time.Since(c.startTime).Seconds(),
	}

	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		metrics.CPUPercent = pcts[0]
	}
	metrics.CPULevel = levelFromPercent(metrics.CPUPercent, cpuWarningThreshold, cpuCriticalThreshold)

	var mstats runtime.MemStats
	runtime.ReadMemStats(&mstats)
	metrics.HeapAllocMB = float64(mstats.HeapAlloc) / (1024 * 1024)

	if vm, err := mem.VirtualMemory(); err == nil {
		metrics.MemTotalMB = float64(vm.Total) / (1024 * 1024)
		metrics.MemUsedMB = float64(vm.Used) / (1024 * 1024)
		metrics.MemPercent = vm.UsedPercent
	}
	metrics.MemLevel = levelFromPercent(metrics.MemPercent, memWarningThreshold, memCriticalThreshold)

	path := c.diskPath
	if path == "" {
		path = "/"
	}
	if du, err := disk.Usage(path); err == nil {
		metrics.DiskTotalMB = float64(du.Total) / (1024 * 1024)
		metrics.DiskUsedMB = float64(du.Used) / (1024 * 1024)
		metrics.DiskPercent = du.UsedPercent
	}
	metrics.DiskLevel = levelFromPercent(metrics.DiskPercent, diskWarningThreshold, diskCriticalThreshold)

	if temps, err := host.SensorsTemperatures(); err == nil {
		for _, t := range temps {
			if t.Temperature > 0 {
				metrics.TemperatureC = t.Temperature
				break
			}
		}
	}

	metrics.OverallLevel = worstLevel(metrics.CPULevel, metrics.MemLevel, metrics.DiskLevel)

	var storageTotals StorageTotals
	if c.pendingCountFn != nil {
		storageTotals.PendingCount, storageTotals.PendingBytes = c.pendingCountFn()
	}
	if c.uploadedCountFn != nil {
		storageTotals.UploadedCount, storageTotals.UploadedBytes = c.uploadedCountFn()
	}

	c.mu.Lock()
	c.snapshot.System = metrics
	c.snapshot.Threads = metrics.NumGoroutines
	c.snapshot.Storage = storageTotals
	c.snapshot.UploadQueue = storageTotals.PendingCount
	c.systemUpdated = time.Now()
	c.mu.Unlock()
}

func (c *Collector) refreshCameras() {
	if c.cameras == nil {
		return
	}
	trackers := c.cameras.Trackers()
	states := make([]CameraState, 0, len(trackers))
	now := time.Now()
	for id, t := range trackers {
		snap := t.Get()
		state := CameraState{
			CameraID:            id,
			State:               string(snap.State),
			ThreadAlive:         true,
			ConsecutiveFailures: snap.ConsecutiveFailures,
			LastSuccess:         snap.LastSuccess,
			LastError:           snap.LastError,
		}
		if !snap.LastSuccess.IsZero() {
			state.LastSuccessAgeSec = now.Sub(snap.LastSuccess).Seconds()
		}
		states = append(states, state)
	}

	c.mu.Lock()
	c.snapshot.Cameras = states
	c.mu.Unlock()
}

// Snapshot returns the subset of the cached snapshot named by kind, with
// GeneratedAt and Stale computed against the system sample's age.
func (c *Collector) Snapshot(kind Kind) Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := Snapshot{GeneratedAt: c.systemUpdated}
	if time.Since(c.systemUpdated) > 2*c.systemInterval {
		out.Stale = true
	}

	switch kind {
	case KindSystem:
		out.System = c.snapshot.System
	case KindCameras:
		out.Cameras = c.snapshot.Cameras
	case KindThreads:
		out.Threads = c.snapshot.Threads
	default:
		out.System = c.snapshot.System
		out.Cameras = c.snapshot.Cameras
		out.Threads = c.snapshot.Threads
		out.Storage = c.snapshot.Storage
		out.UploadQueue = c.snapshot.UploadQueue
	}
	return out
}
