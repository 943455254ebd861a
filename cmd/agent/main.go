// Command agent is the long-running wildfire-detection edge process: it
// captures frames from every configured camera, stores them to the local
// queue, drains that queue to the central server, and exposes health
// telemetry and remote commands over a unix-domain socket for the portal
// process to consume.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/AlterMundi/sai-cam-agent/internal/camera"
	"github.com/AlterMundi/sai-cam-agent/internal/capture"
	"github.com/AlterMundi/sai-cam-agent/internal/config"
	"github.com/AlterMundi/sai-cam-agent/internal/delivery"
	"github.com/AlterMundi/sai-cam-agent/internal/health"
	"github.com/AlterMundi/sai-cam-agent/internal/logger"
	"github.com/AlterMundi/sai-cam-agent/internal/resource"
	"github.com/AlterMundi/sai-cam-agent/internal/storage"
	"github.com/AlterMundi/sai-cam-agent/internal/timesync"
	"github.com/AlterMundi/sai-cam-agent/internal/upload"
)

// Version is set at compile time via ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", envOr("SAI_CAM_CONFIG", "/etc/sai-cam/config.yaml"), "path to the node's YAML configuration")
	flag.Parse()

	bootstrapCfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sai-cam-agent: load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: bootstrapCfg.Logging.Level, Format: bootstrapCfg.Logging.Format})
	rateLimiter := logger.NewRateLimiter(log, logger.DefaultRateLimitWindow)

	// onReload only ever sees changes RequiresRestart already accepted, so
	// the only sections that can differ here are logging, server,
	// monitoring, and advanced. Only the log level is applied live: the
	// upload client, capture coordinator and health collector below are
	// built once from the startup config and keep the server, monitoring
	// and advanced values they were given until the agent restarts.
	onReload := func(next *config.Config) {
		log.SetLevel(next.Logging.Level)
	}
	watcher, err := config.NewWatcher(*configPath, log, onReload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sai-cam-agent: load config: %v\n", err)
		os.Exit(1)
	}
	cfg := watcher.Current()

	if err := os.MkdirAll(cfg.Storage.BasePath, 0750); err != nil {
		log.Error("storage base path not writable", "path", cfg.Storage.BasePath, "error", err)
		os.Exit(1)
	}

	limiter := resource.NewLimiter(resource.DefaultConfig())

	storageCfg := cfg.ToStorageConfig()
	storageCfg.Limiter = limiter
	storageMgr, err := storage.NewManager(storageCfg, log)
	if err != nil {
		log.Error("initialize storage manager failed", "error", err)
		os.Exit(1)
	}

	uploadCfg, err := cfg.Server.ToUpload()
	if err != nil {
		log.Error("invalid server configuration", "error", err)
		os.Exit(1)
	}
	uploadClient, err := upload.NewClientFromConfig(uploadCfg)
	if err != nil {
		log.Error("initialize upload client failed", "error", err)
		os.Exit(1)
	}

	timeHealth := timesync.NewTimeHealth(timesync.Config{Enabled: true})
	timeHealth.Start()
	timeAuthority, err := timesync.NewAuthority(timeHealth, timesync.DefaultAuthorityConfig())
	if err != nil {
		log.Warn("time authority disabled", "error", err)
		timeAuthority = nil
	}

	// Capture logging is the noisiest source in the agent - a camera stuck
	// offline re-logs the same failure on every tick - so it goes through
	// the rate limiter rather than the plain logger.
	coordinator := capture.New(capture.Config{
		DeviceID:             cfg.Device.ID,
		Storage:              storageMgr,
		Limiter:              limiter,
		TimeAuthority:        timeAuthority,
		Logger:               logger.NewSourceLogger(log, rateLimiter, "capture"),
		ReconnectAttempts:    cfg.Advanced.ReconnectAttempts,
		ReconnectDelay:       time.Duration(cfg.Advanced.ReconnectDelaySeconds) * time.Second,
		StartupRetryAttempts: cfg.Advanced.ReconnectAttempts,
		StartupRetryDelay:    time.Duration(cfg.Advanced.ReconnectDelaySeconds) * time.Second,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	enabled, retrying := 0, 0
	// Camera identity requires a restart to change (RequiresRestart), so
	// this closure over cfg.Cameras never needs to observe a hot reload.
	cameraIDs := func() []string {
		ids := make([]string, 0, len(cfg.Cameras))
		for _, c := range cfg.Cameras {
			if c.IsEnabled() {
				ids = append(ids, c.ID)
			}
		}
		return ids
	}

	for _, camCfg := range cfg.Cameras {
		if !camCfg.IsEnabled() {
			log.Info("camera disabled, skipping", "camera", camCfg.ID)
			continue
		}
		camCfg := camCfg
		interval := time.Duration(camCfg.CaptureIntervalSeconds) * time.Second
		build := func() (camera.Camera, error) {
			return camera.NewCamera(camCfg.ToCameraConfig())
		}

		cam, err := build()
		if err != nil {
			log.Error("create camera failed, will retry at startup", "camera", camCfg.ID, "kind", camCfg.Kind, "error", err)
			coordinator.RetrySetup(ctx, camCfg.ID, interval, build, nil)
			retrying++
			continue
		}
		setupCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err = cam.Setup(setupCtx)
		cancel()
		if err != nil {
			log.Error("camera setup failed, will retry at startup", "camera", camCfg.ID, "error", err)
			coordinator.RetrySetup(ctx, camCfg.ID, interval, build, nil)
			retrying++
			continue
		}
		if err := coordinator.AddCamera(cam, interval, nil); err != nil {
			log.Error("register camera failed", "camera", camCfg.ID, "error", err)
			continue
		}
		enabled++
	}
	// A camera that failed Setup is on the startup-retry supervisor, not
	// gone - only refuse to start when nothing is registered or retrying.
	if enabled == 0 && retrying == 0 {
		log.Error("no cameras could be registered, refusing to start")
		os.Exit(1)
	}

	deliveryWorker := delivery.New(delivery.Config{
		Storage:  storageMgr,
		Client:   uploadClient,
		CameraID: cameraIDs,
		Logger:   logger.NewSourceLogger(log, rateLimiter, "delivery"),
	})

	commandHandler := capture.NewCommandHandler(coordinator, nil)

	healthCollector := health.New(health.Config{
		DiskPath:       cfg.Storage.BasePath,
		Cameras:        coordinator,
		SystemInterval: time.Duration(cfg.Monitoring.HealthCheckInterval) * time.Second,
		PendingCountFn: func() (int, int64) {
			return aggregateStats(storageMgr, false)
		},
		UploadedCountFn: func() (int, int64) {
			return aggregateStats(storageMgr, true)
		},
	})

	socketPath := envOr("SAI_CAM_HEALTH_SOCKET", "/run/sai-cam/health.sock")
	if err := os.MkdirAll(filepath.Dir(socketPath), 0750); err != nil {
		log.Error("health socket directory not writable", "path", filepath.Dir(socketPath), "error", err)
		os.Exit(1)
	}
	healthServer := health.NewServer(socketPath, healthCollector, log).WithCommands(commandHandler)

	// Watcher.Run reloads on SIGHUP and on edits to the config file.
	go func() {
		if err := watcher.Run(ctx); err != nil {
			log.Warn("config watcher stopped", "error", err)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); healthCollector.Start(ctx) }()
	go func() {
		defer wg.Done()
		if err := healthServer.Serve(ctx); err != nil {
			log.Error("health server exited", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rateLimiter.Flush()
			}
		}
	}()

	coordinator.Start()
	deliveryWorker.Start(ctx)
	log.Info("agent started", "version", Version, "cameras", enabled, "socket", socketPath)

	<-ctx.Done()
	log.Info("shutting down")
	coordinator.Stop()
	deliveryWorker.Stop(10 * time.Second)
	wg.Wait()
	_ = healthServer.Close()
}

func aggregateStats(mgr *storage.Manager, uploaded bool) (int, int64) {
	var count int
	var bytes int64
	for _, s := range mgr.Stats() {
		if uploaded {
			count += s.UploadedCount
			bytes += s.UploadedBytes
		} else {
			count += s.PendingCount
			bytes += s.PendingBytes
		}
	}
	return count, bytes
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
