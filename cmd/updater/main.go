// Command updater runs one pass of the self-update algorithm. It is
// invoked periodically by the host's timer facility (default every 6h
// with jitter applied by the caller), shares UpdateState with the agent
// and portal processes, and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/AlterMundi/sai-cam-agent/internal/config"
	"github.com/AlterMundi/sai-cam-agent/internal/logger"
	"github.com/AlterMundi/sai-cam-agent/internal/update"
)

// Build info set at compile time via ldflags.
var Version = "dev"

func main() {
	force := flag.Bool("force", false, "bypass the three-strike guard and run even after repeated failures")
	checkOnly := flag.Bool("check-only", false, "query the release index and record availability without applying anything")
	configPath := flag.String("config", envOr("SAI_CAM_CONFIG", "/etc/sai-cam/config.yaml"), "path to the node's YAML configuration")
	flag.Parse()

	log := logger.New(logger.Config{Level: envOr("SAI_CAM_LOG_LEVEL", "INFO")})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("load configuration failed", "path", *configPath, "error", err)
		os.Exit(1)
	}

	if !cfg.Updates.Enabled && !*force {
		log.Info("updates.enabled is false, refusing to run", "path", *configPath)
		return
	}

	stateDir := envOr("SAI_CAM_STATE_DIR", "/var/lib/sai-cam")
	installRoot := envOr("SAI_CAM_INSTALL_ROOT", "/opt/sai-cam")
	releasesURL := envOr("SAI_CAM_RELEASES_URL", "https://api.github.com/repos/AlterMundi/sai-cam-agent/releases")
	channel := update.Channel(cfg.Updates.Channel)
	if channel == "" {
		channel = update.Channel(envOr("SAI_CAM_UPDATE_CHANNEL", string(update.ChannelStable)))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctrl := update.NewController(update.Config{
		CurrentVersion:        Version,
		Channel:               channel,
		LockPath:              filepath.Join(stateDir, "update.lock"),
		StatePath:             filepath.Join(stateDir, "update_state.json"),
		WorkDir:               filepath.Join(stateDir, "update_work"),
		InstallRoot:           installRoot,
		PreviousArtifactsDir:  filepath.Join(stateDir, "update_previous"),
		ReleasesURL:           releasesURL,
		Preflight: update.PreflightConfig{
			RequiredFiles:   []string{"sai-cam-agent", "sai-cam-portal", "sai-cam-updater"},
			MinFreeDiskMB:   256,
			MinFreeMemoryMB: 64,
			DiskPath:        installRoot,
		},
		AgentHealthSocketPath: envOr("SAI_CAM_HEALTH_SOCKET", "/run/sai-cam/health.sock"),
		PortalStatusURL:       envOr("SAI_CAM_PORTAL_STATUS_URL", "http://127.0.0.1:8090/api/status"),
		Logger:                log,
	})

	switch {
	case *checkOnly:
		err = ctrl.CheckOnly(ctx)
	default:
		err = ctrl.Run(ctx, *force)
	}
	if err != nil {
		log.Error("update run failed", "error", err)
		os.Exit(1)
	}

	state, err := ctrl.Status()
	if err != nil {
		log.Warn("could not read final update state", "error", err)
		return
	}
	fmt.Printf("status=%s current=%s latest=%s checked=%s\n",
		state.Status, state.CurrentVersion, state.LatestAvailable, state.LastCheck.Format(time.RFC3339))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
