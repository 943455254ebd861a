package update

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// PreflightConfig names what step 6 of the update algorithm checks before
// a fetched release is allowed to be applied.
type PreflightConfig struct {
	RequiredFiles   []string // paths relative to the working directory that must exist
	DeclaredVersion string   // version the fetched artifact set must declare in VERSION
	MinFreeMemoryMB uint64
	MinFreeDiskMB   uint64
	DiskPath        string // filesystem to check free space on; defaults to the working directory
}

// Preflight validates a fetched release before it is installed: required
// files present, declared version matches, and the host has enough
// headroom to apply and run the new build.
func Preflight(workDir string, cfg PreflightConfig) error {
	for _, rel := range cfg.RequiredFiles {
		if _, err := os.Stat(filepath.Join(workDir, rel)); err != nil {
			return fmt.Errorf("required file missing: %s", rel)
		}
	}

	if cfg.DeclaredVersion != "" {
		data, err := os.ReadFile(filepath.Join(workDir, "VERSION"))
		if err != nil {
			return fmt.Errorf("read declared version: %w", err)
		}
		declared := strings.TrimSpace(string(data))
		if declared != cfg.DeclaredVersion {
			return fmt.Errorf("declared version %q does not match expected %q", declared, cfg.DeclaredVersion)
		}
	}

	if cfg.MinFreeMemoryMB > 0 {
		vm, err := mem.VirtualMemory()
		if err != nil {
			return fmt.Errorf("read memory stats: %w", err)
		}
		freeMB := vm.Available / (1024 * 1024)
		if freeMB < cfg.MinFreeMemoryMB {
			return fmt.Errorf("insufficient free memory: %d MB available, %d MB required", freeMB, cfg.MinFreeMemoryMB)
		}
	}

	if cfg.MinFreeDiskMB > 0 {
		path := cfg.DiskPath
		if path == "" {
			path = workDir
		}
		du, err := disk.Usage(path)
		if err != nil {
			return fmt.Errorf("read disk stats: %w", err)
		}
		freeMB := du.Free / (1024 * 1024)
		if freeMB < cfg.MinFreeDiskMB {
			return fmt.Errorf("insufficient free disk: %d MB available, %d MB required", freeMB, cfg.MinFreeDiskMB)
		}
	}

	return nil
}
