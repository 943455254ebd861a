// Package health computes the agent's point-in-time HealthSnapshot and
// serves it to the portal process over a unix-domain socket.
package health

import "time"

// Level is a traffic-light health classification.
type Level string

const (
	LevelHealthy  Level = "healthy"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

const (
	cpuWarningThreshold   = 70.0
	cpuCriticalThreshold  = 90.0
	memWarningThreshold   = 70.0
	memCriticalThreshold  = 85.0
	diskWarningThreshold  = 70.0
	diskCriticalThreshold = 85.0
)

func levelFromPercent(pct, warn, crit float64) Level {
	switch {
	case pct >= crit:
		return LevelCritical
	case pct >= warn:
		return LevelWarning
	default:
		return LevelHealthy
	}
}

func worstLevel(levels ...Level) Level {
	worst := LevelHealthy
	for _, l := range levels {
		if l == LevelCritical {
			return LevelCritical
		}
		if l == LevelWarning {
			worst = LevelWarning
		}
	}
	return worst
}

// SystemMetrics is the machine-wide resource picture.
type SystemMetrics struct {
	CPUPercent     float64 `json:"cpu_percent"`
	CPULevel       Level   `json:"cpu_level"`
	NumGoroutines  int     `json:"num_goroutines"`
	NumCPU         int     `json:"num_cpu"`
	MemUsedMB      float64 `json:"mem_used_mb"`
	MemTotalMB     float64 `json:"mem_total_mb"`
	MemPercent     float64 `json:"mem_percent"`
	MemLevel       Level   `json:"mem_level"`
	HeapAllocMB    float64 `json:"heap_alloc_mb"`
	DiskUsedMB     float64 `json:"disk_used_mb"`
	DiskTotalMB    float64 `json:"disk_total_mb"`
	DiskPercent    float64 `json:"disk_percent"`
	DiskLevel      Level   `json:"disk_level"`
	TemperatureC   float64 `json:"temperature_c,omitempty"`
	OverallLevel   Level   `json:"overall_level"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
}

// CameraState is the per-camera slice of the snapshot, sourced from
// internal/tracker.
type CameraState struct {
	CameraID            string    `json:"camera_id"`
	State               string    `json:"state"`
	ThreadAlive         bool      `json:"thread_alive"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastSuccess         time.Time `json:"last_success,omitempty"`
	LastSuccessAgeSec   float64   `json:"last_success_age_sec,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
}

// StorageTotals mirrors internal/storage's aggregate stats.
type StorageTotals struct {
	PendingCount  int   `json:"pending_count"`
	PendingBytes  int64 `json:"pending_bytes"`
	UploadedCount int   `json:"uploaded_count"`
	UploadedBytes int64 `json:"uploaded_bytes"`
}

// Snapshot is the full HealthSnapshot document. Individual IPC requests
// return a subset of these fields (see Kind).
type Snapshot struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Stale       bool          `json:"stale,omitempty"`
	System      SystemMetrics `json:"system"`
	Cameras     []CameraState `json:"cameras"`
	Threads     int           `json:"threads"`
	Storage     StorageTotals `json:"storage"`
	UploadQueue int           `json:"upload_queue"`
}

// Kind is one of the four IPC request verbs.
type Kind string

const (
	KindFull    Kind = "full"
	KindCameras Kind = "cameras"
	KindThreads Kind = "threads"
	KindSystem  Kind = "system"
)

// ValidKind reports whether s is a recognized request verb.
func ValidKind(s string) bool {
	switch Kind(s) {
	case KindFull, KindCameras, KindThreads, KindSystem:
		return true
	}
	return false
}
