// Package config loads and validates the node's YAML configuration: camera
// inventory, storage limits, the central server endpoint, monitoring
// thresholds, logging, update policy, the local portal's bind address, and
// the fleet-management whitelist. Environment variables are expanded on
// load, and a subset of sections can be hot-reloaded without a restart.
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Config is the top-level shape of the YAML configuration file.
type Config struct {
	Cameras    []Camera   `yaml:"cameras"`
	Storage    Storage    `yaml:"storage"`
	Server     Server     `yaml:"server"`
	Device     Device     `yaml:"device"`
	Monitoring Monitoring `yaml:"monitoring"`
	Logging    Logging    `yaml:"logging"`
	Advanced   Advanced   `yaml:"advanced"`
	Updates    Updates    `yaml:"updates"`
	Portal     Portal     `yaml:"portal"`
	Fleet      Fleet      `yaml:"fleet"`
	WifiAP     WifiAP     `yaml:"wifi_ap"`

	// Network is advisory, consumed by external install scripts, not by
	// the agent itself; passed through verbatim so /api/status can report
	// whatever the installer recorded there.
	Network map[string]interface{} `yaml:"network,omitempty"`
}

// Camera is one entry of the cameras[] array. Kind is closed to
// {usb, rtsp, onvif}; exactly one of USB/RTSP/ONVIF is populated to match.
type Camera struct {
	ID                     string `yaml:"id"`
	Name                   string `yaml:"name"`
	Kind                   string `yaml:"kind"`
	Enabled                *bool  `yaml:"enabled,omitempty"`
	CaptureIntervalSeconds int    `yaml:"capture_interval_seconds,omitempty"`
	TimeoutSeconds         int    `yaml:"timeout_seconds,omitempty"`
	USB                    *USB   `yaml:"usb,omitempty"`
	RTSP                   *RTSP  `yaml:"rtsp,omitempty"`
	ONVIF                  *ONVIF `yaml:"onvif,omitempty"`
}

// IsEnabled reports whether the camera should be started, defaulting to
// true when the field is omitted.
func (c Camera) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// USB configures a local V4L2 device.
type USB struct {
	DevicePath string `yaml:"device_path"`
	Width      int    `yaml:"width,omitempty"`
	Height     int    `yaml:"height,omitempty"`
	FPS        int    `yaml:"fps,omitempty"`
}

// RTSP configures a network stream camera.
type RTSP struct {
	URL       string `yaml:"url"`
	Username  string `yaml:"username,omitempty"`
	Password  string `yaml:"password,omitempty"`
	Substream bool   `yaml:"substream,omitempty"`
}

// ONVIF configures a SOAP-discoverable network camera.
type ONVIF struct {
	Endpoint     string `yaml:"endpoint"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	ProfileToken string `yaml:"profile_token,omitempty"`
}

// Storage controls on-disk capture retention.
type Storage struct {
	BasePath           string `yaml:"base_path"`
	MaxSizeGB          int    `yaml:"max_size_gb,omitempty"`
	CleanupThresholdGB int    `yaml:"cleanup_threshold_gb,omitempty"` // quota-cleanup stops here, below max_size_gb
	MinFreeMB          int    `yaml:"min_free_mb,omitempty"`          // real filesystem headroom below which new captures are dropped
	RetentionDays      int    `yaml:"retention_days,omitempty"`
}

// Server describes the central inference server this node uploads to.
// Transport defaults to http, the recommended delivery path; sftp and ftps
// remain available via Host/Port/Username/Password for sites already
// running one of those servers instead of the bundled HTTP ingest endpoint.
type Server struct {
	URL            string `yaml:"url,omitempty"`
	SSLVerify      *bool  `yaml:"ssl_verify,omitempty"`
	CertPath       string `yaml:"cert_path,omitempty"`
	Timeout        int    `yaml:"timeout,omitempty"` // seconds
	AuthToken      string `yaml:"auth_token,omitempty"`
	Transport      string `yaml:"transport,omitempty"`
	Host           string `yaml:"host,omitempty"`
	Port           int    `yaml:"port,omitempty"`
	Username       string `yaml:"username,omitempty"`
	Password       string `yaml:"password,omitempty"`
	BasePath       string `yaml:"base_path,omitempty"`
	ConnectTimeout int    `yaml:"connect_timeout,omitempty"`
}

// VerifyTLS reports whether uploads should verify the server's TLS
// certificate, defaulting to true (verification on) when the field is
// omitted, so an operator must opt out of verification explicitly rather
// than silently get an unverified connection from an empty config.
func (s Server) VerifyTLS() bool {
	return s.SSLVerify == nil || *s.SSLVerify
}

// Upload is the transport-neutral shape internal/upload builds a Client
// from. Field-compatible with the upload package's expectations so
// internal/upload/factory.go needs no changes as the surrounding config
// format evolves.
type Upload struct {
	Transport             string
	Host                  string
	Port                  int
	Username              string
	Password              string
	Token                 string
	TLS                   bool
	TLSVerify             bool
	CABundlePath          string
	BasePath              string
	TimeoutConnectSeconds int
	TimeoutUploadSeconds  int
}

// ToUpload derives the upload package's Config from the server section. For
// the http transport, Host/Port/TLS are parsed out of URL since the upload
// package builds its own base URL from those parts rather than a raw URL.
func (s Server) ToUpload() (Upload, error) {
	transport := strings.ToLower(strings.TrimSpace(s.Transport))
	if transport == "" {
		transport = "http"
	}

	up := Upload{
		Transport:             transport,
		Host:                  s.Host,
		Port:                  s.Port,
		Username:              s.Username,
		Password:              s.Password,
		Token:                 s.AuthToken,
		TLSVerify:             s.VerifyTLS(),
		CABundlePath:          s.CertPath,
		BasePath:              s.BasePath,
		TimeoutConnectSeconds: s.ConnectTimeout,
		TimeoutUploadSeconds:  s.Timeout,
	}

	if transport == "http" && s.URL != "" {
		u, err := url.Parse(s.URL)
		if err != nil {
			return Upload{}, fmt.Errorf("parse server.url: %w", err)
		}
		up.TLS = u.Scheme == "https"
		up.Host = u.Hostname()
		if p := u.Port(); p != "" {
			if port, err := strconv.Atoi(p); err == nil {
				up.Port = port
			}
		}
		if up.Host == "" {
			return Upload{}, fmt.Errorf("server.url %q has no host", s.URL)
		}
	}

	return up, nil
}

// Device carries advisory identity labels surfaced in /api/status.
type Device struct {
	ID          string `yaml:"id"`
	Location    string `yaml:"location,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// Monitoring configures the health collector. HealthCheckInterval sets how
// often system metrics are sampled. The *Warn* thresholds are not read by
// the agent: the health snapshot grades CPU, memory and disk against fixed
// levels in internal/health (CPU warning 70%, critical 90%; memory and disk
// warning 70%, critical 85%) and reports temperature without grading it.
type Monitoring struct {
	HealthCheckInterval int     `yaml:"health_check_interval,omitempty"` // seconds
	CPUWarnPercent      float64 `yaml:"cpu_warn_percent,omitempty"`
	MemoryWarnPercent   float64 `yaml:"memory_warn_percent,omitempty"`
	DiskWarnPercent     float64 `yaml:"disk_warn_percent,omitempty"`
	TempWarnCelsius     float64 `yaml:"temp_warn_celsius,omitempty"`
}

// Logging controls the structured logger. Level and Format configure the
// agent's logger, which writes to stdout; LogDir/LogFile name the file the
// portal tails. MaxSizeMB and MaxBackups are not read: the agent does no
// log rotation of its own.
type Logging struct {
	Level      string `yaml:"level,omitempty"`
	LogDir     string `yaml:"log_dir,omitempty"`
	LogFile    string `yaml:"log_file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	Format     string `yaml:"format,omitempty"` // "text" (default) or "json"
}

// Advanced exposes polling/reconnect knobs and an open-ended bag of
// backend-specific options individual camera drivers may consult.
// ReconnectAttempts/ReconnectDelaySeconds double as the bounded-retry
// policy both for a capture worker reconnecting a camera that just went
// OFFLINE and for the coordinator's startup-retry supervisor bringing up
// a camera that failed Setup at process start.
type Advanced struct {
	PollingIntervalSeconds int                    `yaml:"polling_interval,omitempty"`
	ReconnectAttempts      int                    `yaml:"reconnect_attempts,omitempty"`
	ReconnectDelaySeconds  int                    `yaml:"reconnect_delay,omitempty"`
	BackendOptions         map[string]interface{} `yaml:"backend_options,omitempty"`
}

// Updates controls the self-update controller's channel and cadence.
type Updates struct {
	Enabled          bool   `yaml:"enabled"`
	Channel          string `yaml:"channel,omitempty"` // "stable" (default) or "beta"
	ApplyImmediately bool   `yaml:"apply_immediately,omitempty"`
}

// Portal configures the local HTTP service's bind address.
type Portal struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address,omitempty"`
	Port    int    `yaml:"port,omitempty"`
}

// Fleet configures remote configuration mutation via the central server.
type Fleet struct {
	Token             string   `yaml:"token,omitempty"`
	AllowedConfigKeys []string `yaml:"allowed_config_keys,omitempty"`
}

// WifiAP configures the node's fallback access point, set up by external
// install scripts from these values.
type WifiAP struct {
	SSIDTemplate string `yaml:"ssid_template,omitempty"`
	Password     string `yaml:"password,omitempty"`
	Country      string `yaml:"country,omitempty"`
}

// ApplyDefaults fills in the documented defaults for optional fields left
// unset in the YAML source.
func ApplyDefaults(c *Config) {
	if c.Storage.MaxSizeGB == 0 {
		c.Storage.MaxSizeGB = 10
	}
	if c.Storage.CleanupThresholdGB == 0 {
		c.Storage.CleanupThresholdGB = 8
	}
	if c.Storage.MinFreeMB == 0 {
		c.Storage.MinFreeMB = 100
	}
	if c.Storage.RetentionDays == 0 {
		c.Storage.RetentionDays = 7
	}

	if c.Server.Timeout == 0 {
		c.Server.Timeout = 30
	}
	if c.Server.ConnectTimeout == 0 {
		c.Server.ConnectTimeout = 10
	}

	if c.Monitoring.HealthCheckInterval == 0 {
		c.Monitoring.HealthCheckInterval = 60
	}
	if c.Monitoring.CPUWarnPercent == 0 {
		c.Monitoring.CPUWarnPercent = 90
	}
	if c.Monitoring.MemoryWarnPercent == 0 {
		c.Monitoring.MemoryWarnPercent = 90
	}
	if c.Monitoring.DiskWarnPercent == 0 {
		c.Monitoring.DiskWarnPercent = 90
	}
	if c.Monitoring.TempWarnCelsius == 0 {
		c.Monitoring.TempWarnCelsius = 80
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.LogDir == "" {
		c.Logging.LogDir = "/var/log/sai-cam"
	}
	if c.Logging.LogFile == "" {
		c.Logging.LogFile = "agent.log"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 50
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 5
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Advanced.PollingIntervalSeconds == 0 {
		c.Advanced.PollingIntervalSeconds = 1
	}
	if c.Advanced.ReconnectAttempts == 0 {
		c.Advanced.ReconnectAttempts = 5
	}
	if c.Advanced.ReconnectDelaySeconds == 0 {
		c.Advanced.ReconnectDelaySeconds = 5
	}

	if c.Updates.Channel == "" {
		c.Updates.Channel = "stable"
	}

	if c.Portal.Address == "" {
		c.Portal.Address = "127.0.0.1"
	}
	if c.Portal.Port == 0 {
		c.Portal.Port = 8090
	}

	for i := range c.Cameras {
		if c.Cameras[i].CaptureIntervalSeconds == 0 {
			c.Cameras[i].CaptureIntervalSeconds = 60
		}
		if c.Cameras[i].TimeoutSeconds == 0 {
			c.Cameras[i].TimeoutSeconds = 15
		}
	}
}
