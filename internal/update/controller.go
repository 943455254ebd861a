package update

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/AlterMundi/sai-cam-agent/internal/health"
)

const (
	// DefaultCheckInterval matches "every 6h with +-30min jitter"; the
	// jitter itself is applied by the host timer that invokes cmd/updater,
	// not here; cmd/updater runs one pass and exits.
	DefaultCheckInterval = 6 * time.Hour

	requestTimeout         = 30 * time.Second
	maxConsecutiveFailures = 3
	healthVerifyTimeout    = 120 * time.Second
	healthVerifyInterval   = 10 * time.Second
)

// Logger is the subset of internal/logger.Logger the controller needs.
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

// Config wires a Controller to one node's installation.
type Config struct {
	CurrentVersion string
	Channel        Channel

	LockPath             string
	StatePath            string
	WorkDir              string
	InstallRoot          string
	PreviousArtifactsDir string

	ReleasesURL string
	UserAgent   string
	HTTPClient  *http.Client

	Preflight PreflightConfig
	Installer Installer

	AgentHealthSocketPath string
	PortalStatusURL       string

	Logger Logger
}

// Controller runs the update algorithm: lock, guard, check, fetch,
// preflight, apply, verify, rollback-on-failure.
type Controller struct {
	cfg Config
}

// NewController builds a Controller, filling in the documented defaults
// for any field left zero.
func NewController(cfg Config) *Controller {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: requestTimeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	if cfg.Channel == "" {
		cfg.Channel = ChannelStable
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "sai-cam-updater/" + cfg.CurrentVersion
	}
	if cfg.Installer == nil {
		cfg.Installer = NewFileInstaller("config.yaml", "state")
	}
	return &Controller{cfg: cfg}
}

// Status returns the last persisted update state, for the portal's
// /api/update/status handler.
func (c *Controller) Status() (State, error) {
	return ReadState(c.cfg.StatePath)
}

// Run executes one full pass of the update algorithm: acquire the lock,
// check for a newer release, fetch and preflight it, apply it, and verify
// or roll back. force bypasses the three-strike guard for an
// operator-triggered retry against a node that has already failed
// repeatedly.
func (c *Controller) Run(ctx context.Context, force bool) error {
	lock, ok, err := TryAcquire(c.cfg.LockPath)
	if err != nil {
		return fmt.Errorf("acquire update lock: %w", err)
	}
	if !ok {
		c.cfg.Logger.Debug("update lock held by another run, exiting")
		return nil
	}
	defer lock.Release()

	state, err := ReadState(c.cfg.StatePath)
	if err != nil {
		return fmt.Errorf("read update state: %w", err)
	}
	state.CurrentVersion = c.cfg.CurrentVersion
	state.Channel = c.cfg.Channel

	if !force && state.ConsecutiveFailures >= maxConsecutiveFailures {
		c.cfg.Logger.Warn("update guard tripped, skipping run", "consecutive_failures", state.ConsecutiveFailures)
		return nil
	}

	best, available, err := c.checkForUpdate(ctx, &state)
	if err != nil {
		c.saveOrLog(state)
		return err
	}
	if !available {
		return c.save(state)
	}

	if err := c.fetchArtifacts(ctx, best); err != nil {
		state.Status = StatusFetchFailed
		state.LastError = err.Error()
		c.saveOrLog(state)
		return err
	}

	preflight := c.cfg.Preflight
	preflight.DeclaredVersion = best.TagName
	if err := Preflight(c.cfg.WorkDir, preflight); err != nil {
		state.Status = StatusPreflightFailed
		state.LastError = err.Error()
		c.saveOrLog(state)
		return err
	}

	if c.cfg.PreviousArtifactsDir != "" {
		if err := backupTree(c.cfg.InstallRoot, c.cfg.PreviousArtifactsDir); err != nil {
			state.Status = StatusPreflightFailed
			state.LastError = fmt.Sprintf("backup previous install: %v", err)
			c.saveOrLog(state)
			return err
		}
	}

	state.PreviousVersion = c.cfg.CurrentVersion
	state.Status = StatusUpdating
	state.LastError = ""
	if err := c.save(state); err != nil {
		return err
	}

	if err := c.cfg.Installer.Install(c.cfg.WorkDir, c.cfg.InstallRoot); err != nil {
		return c.rollback(ctx, &state, fmt.Errorf("install: %w", err))
	}

	if err := c.verifyHealth(ctx, best.TagName); err != nil {
		return c.rollback(ctx, &state, fmt.Errorf("health verification: %w", err))
	}

	state.Status = StatusUpdated
	state.CurrentVersion = best.TagName
	state.ConsecutiveFailures = 0
	state.LastUpdate = time.Now()
	return c.save(state)
}

// CheckOnly runs steps 1-5 of the algorithm only: it reports whether a
// newer release is available without fetching or applying anything, for
// the portal's /api/update/check handler.
func (c *Controller) CheckOnly(ctx context.Context) error {
	lock, ok, err := TryAcquire(c.cfg.LockPath)
	if err != nil {
		return fmt.Errorf("acquire update lock: %w", err)
	}
	if !ok {
		c.cfg.Logger.Debug("update lock held by another run, exiting")
		return nil
	}
	defer lock.Release()

	state, err := ReadState(c.cfg.StatePath)
	if err != nil {
		return fmt.Errorf("read update state: %w", err)
	}
	state.CurrentVersion = c.cfg.CurrentVersion
	state.Channel = c.cfg.Channel

	if _, _, err := c.checkForUpdate(ctx, &state); err != nil {
		c.saveOrLog(state)
		return err
	}
	return c.save(state)
}

func (c *Controller) checkForUpdate(ctx context.Context, state *State) (Release, bool, error) {
	state.LastCheck = time.Now()

	releases, err := FetchReleases(ctx, c.cfg.HTTPClient, c.cfg.ReleasesURL, c.cfg.UserAgent)
	if err != nil {
		state.Status = StatusCheckFailed
		state.LastError = err.Error()
		return Release{}, false, err
	}

	best, ok, err := SelectUpdate(releases, c.cfg.CurrentVersion, c.cfg.Channel)
	if err != nil {
		state.Status = StatusCheckFailed
		state.LastError = err.Error()
		return Release{}, false, err
	}
	if !ok {
		state.Status = StatusUpToDate
		state.LastError = ""
		return Release{}, false, nil
	}

	state.LatestAvailable = best.TagName
	return best, true, nil
}

func (c *Controller) fetchArtifacts(ctx context.Context, release Release) error {
	if err := os.MkdirAll(c.cfg.WorkDir, 0755); err != nil {
		return fmt.Errorf("create working directory: %w", err)
	}
	for _, asset := range release.Assets {
		if err := c.downloadAsset(ctx, asset); err != nil {
			return fmt.Errorf("download %s: %w", asset.Name, err)
		}
	}
	return os.WriteFile(filepath.Join(c.cfg.WorkDir, "VERSION"), []byte(release.TagName), 0644)
}

func (c *Controller) downloadAsset(ctx context.Context, asset ReleaseAsset) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.BrowserDownloadURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	f, err := os.Create(filepath.Join(c.cfg.WorkDir, asset.Name))
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, resp.Body)
	return err
}

// rollback implements step 10: restore the previous artifact set,
// re-apply the installer, verify the agent is active again, and mark the
// outcome. It returns cause (wrapped with any rollback-specific failure)
// so the caller's error reflects what actually went wrong.
func (c *Controller) rollback(ctx context.Context, state *State, cause error) error {
	c.cfg.Logger.Error("update failed, rolling back", "error", cause)
	state.Status = StatusRollingBack
	c.saveOrLog(*state)

	if c.cfg.PreviousArtifactsDir != "" {
		if err := c.cfg.Installer.Install(c.cfg.PreviousArtifactsDir, c.cfg.InstallRoot); err != nil {
			state.Status = StatusRollbackFailed
			state.ConsecutiveFailures++
			state.LastError = fmt.Sprintf("rollback install failed: %v (original: %v)", err, cause)
			c.saveOrLog(*state)
			return fmt.Errorf("rollback failed: %w (original: %v)", err, cause)
		}
	}

	time.Sleep(2 * time.Second)
	if err := c.pingAgent(ctx); err != nil {
		state.Status = StatusRollbackFailed
		state.ConsecutiveFailures++
		state.LastError = fmt.Sprintf("agent not active after rollback: %v (original: %v)", err, cause)
		c.saveOrLog(*state)
		return fmt.Errorf("agent inactive after rollback: %w (original: %v)", err, cause)
	}

	state.Status = StatusRollbackCompleted
	state.ConsecutiveFailures++
	state.LastError = cause.Error()
	c.saveOrLog(*state)
	return cause
}

func (c *Controller) verifyHealth(ctx context.Context, wantVersion string) error {
	deadline := time.Now().Add(healthVerifyTimeout)
	var lastErr error
	for {
		if err := c.pingAgent(ctx); err != nil {
			lastErr = fmt.Errorf("agent: %w", err)
		} else if err := c.checkPortalVersion(ctx, wantVersion); err != nil {
			lastErr = fmt.Errorf("portal: %w", err)
		} else {
			return nil
		}

		if time.Now().After(deadline) {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(healthVerifyInterval):
		}
	}
}

func (c *Controller) pingAgent(ctx context.Context) error {
	if c.cfg.AgentHealthSocketPath == "" {
		return nil
	}
	client := health.NewClient(c.cfg.AgentHealthSocketPath, 5*time.Second)
	_, err := client.Query(health.KindFull)
	return err
}

func (c *Controller) checkPortalVersion(ctx context.Context, wantVersion string) error {
	if c.cfg.PortalStatusURL == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.PortalStatusURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("portal status returned %d", resp.StatusCode)
	}

	var body struct {
		Node struct {
			Version string `json:"version"`
		} `json:"node"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return err
	}
	if body.Node.Version != wantVersion {
		return fmt.Errorf("portal reports version %q, want %q", body.Node.Version, wantVersion)
	}
	return nil
}

func (c *Controller) save(state State) error {
	return writeStateAtomic(c.cfg.StatePath, state)
}

func (c *Controller) saveOrLog(state State) {
	if err := writeStateAtomic(c.cfg.StatePath, state); err != nil {
		c.cfg.Logger.Error("failed to persist update state", "error", err)
	}
}
