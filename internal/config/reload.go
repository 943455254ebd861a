package config

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"reflect"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
)

// Logger is the minimal logging dependency, matching the shape used
// throughout the agent so this package can be wired to any implementation
// without an import cycle.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// RequiresRestart reports whether new differs from old in a section that
// the running process cannot absorb without restarting: camera inventory,
// storage layout, device identity, the portal's bind address, the fleet
// whitelist, the Wi-Fi AP template, update policy, or the advisory network
// block. The hot-reloadable remainder is logging.level, monitoring
// thresholds, the server endpoint, and the advanced knobs.
func RequiresRestart(old, new *Config) (bool, string) {
	if !reflect.DeepEqual(old.Cameras, new.Cameras) {
		return true, "camera configuration changed"
	}
	if old.Storage != new.Storage {
		return true, "storage configuration changed"
	}
	if old.Device != new.Device {
		return true, "device identity changed"
	}
	if old.Portal != new.Portal {
		return true, "portal bind address changed"
	}
	if !reflect.DeepEqual(old.Fleet, new.Fleet) {
		return true, "fleet configuration changed"
	}
	if old.WifiAP != new.WifiAP {
		return true, "wifi_ap configuration changed"
	}
	if old.Updates != new.Updates {
		return true, "updates configuration changed"
	}
	if !reflect.DeepEqual(old.Network, new.Network) {
		return true, "network configuration changed"
	}
	return false, ""
}

// Watcher holds the currently active configuration and reloads it in
// response to SIGHUP or a filesystem change in the config file's directory,
// so both an explicit signal and a hand-edited file take effect.
type Watcher struct {
	path string
	log  Logger

	mu      sync.RWMutex
	current *Config

	onReload func(*Config)
}

// NewWatcher loads path once and returns a Watcher seeded with that config.
func NewWatcher(path string, log Logger, onReload func(*Config)) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Watcher{path: path, log: log, current: cfg, onReload: onReload}, nil
}

// Current returns the active configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Reload re-reads the config file and, if parsing and validation succeed
// and no restart-requiring section changed, swaps it in and invokes the
// reload callback. A parse/validate failure or a restart-requiring change
// leaves the active config untouched, per spec.md 7's "retain previous
// valid config" rule.
func (w *Watcher) Reload() error {
	next, err := Load(w.path)
	if err != nil {
		w.log.Error("config reload failed, retaining previous configuration", "error", err)
		return fmt.Errorf("reload config: %w", err)
	}

	w.mu.Lock()
	prev := w.current
	if restart, reason := RequiresRestart(prev, next); restart {
		w.mu.Unlock()
		w.log.Warn("config change requires a full restart, not applying", "reason", reason)
		return fmt.Errorf("config change requires restart: %s", reason)
	}
	w.current = next
	w.mu.Unlock()

	w.log.Info("configuration reloaded")
	if w.onReload != nil {
		w.onReload(next)
	}
	return nil
}

// Run blocks, reloading on SIGHUP and on filesystem events in the config
// file's directory, until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config file watcher: %w", err)
	}
	defer fsw.Close()

	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watch config directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sigCh:
			w.log.Info("received SIGHUP, reloading configuration")
			_ = w.Reload()
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.log.Info("config file changed on disk, reloading")
			_ = w.Reload()
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("config watcher error", "error", err)
		}
	}
}
