//go:build unix

package portal

import (
	"os"
	"syscall"
)

// fileInode returns the filesystem inode number for path, used to detect
// log rotation (the path resolving to a different file than before).
func fileInode(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, nil
	}
	return stat.Ino, nil
}
