// Command portal serves the operator-facing HTTP API and event stream. It
// never talks to cameras directly: status and control both go through the
// agent's health socket, and it reads the agent's log file and shared
// storage tree for the rest.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/AlterMundi/sai-cam-agent/internal/config"
	"github.com/AlterMundi/sai-cam-agent/internal/logger"
	"github.com/AlterMundi/sai-cam-agent/internal/portal"
	"github.com/AlterMundi/sai-cam-agent/internal/storage"
	"github.com/AlterMundi/sai-cam-agent/internal/update"
)

// Version is set at compile time via ldflags.
var Version = "dev"

func main() {
	configPath := envOr("SAI_CAM_CONFIG", "/etc/sai-cam/config.yaml")
	stateDir := envOr("SAI_CAM_STATE_DIR", "/var/lib/sai-cam")
	socketPath := envOr("SAI_CAM_HEALTH_SOCKET", "/run/sai-cam/health.sock")

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sai-cam-portal: load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	storageMgr, err := storage.NewManager(cfg.ToStorageConfig(), log)
	if err != nil {
		log.Error("open storage tree failed", "error", err)
		os.Exit(1)
	}

	bindAddr := fmt.Sprintf("%s:%d", cfg.Portal.Address, cfg.Portal.Port)

	srv := portal.NewServer(portal.Config{
		NodeID:           cfg.Device.ID,
		NodeLocation:     cfg.Device.Location,
		Version:          Version,
		BindAddr:         bindAddr,
		HealthSocketPath: socketPath,
		Storage:          storageMgr,
		LogFilePath:      filepath.Join(cfg.Logging.LogDir, cfg.Logging.LogFile),
		GetLogLevel:      log.GetLogLevel,
		SetLogLevel: func(level string) error {
			log.SetLevel(level)
			return nil
		},
		GetNetworkInfo: func() map[string]interface{} {
			return cfg.Network
		},
		WifiAPSupported: cfg.WifiAP.SSIDTemplate != "",
		WifiAPEnabled:   wifiAPEnabled,
		WifiAPEnable:    wifiAPEnable,
		WifiAPDisable:   wifiAPDisable,
		GetUpdateStatus: func() (interface{}, error) {
			return update.ReadState(filepath.Join(stateDir, "update_state.json"))
		},
		TriggerUpdateCheck: func() error {
			return exec.Command("sai-cam-updater", "--check-only").Run()
		},
		FleetToken: cfg.Fleet.Token,
		Logger:     log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("portal started", "version", Version, "addr", bindAddr)
		if err := srv.Start(); err != nil {
			log.Error("portal server exited", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("portal shutdown failed", "error", err)
	}
}

// wifiAPEnabled, wifiAPEnable, and wifiAPDisable shell out to the host's
// network manager rather than manipulating interfaces directly: the exact
// AP mechanism (hostapd, NetworkManager, systemd-networkd) is a host
// concern the agent and portal deliberately stay out of.
func wifiAPEnabled() bool {
	return exec.Command("sai-cam-wifi-ap", "status").Run() == nil
}

func wifiAPEnable() error {
	return exec.Command("sai-cam-wifi-ap", "enable").Run()
}

func wifiAPDisable() error {
	return exec.Command("sai-cam-wifi-ap", "disable").Run()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
