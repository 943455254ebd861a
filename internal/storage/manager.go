package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
)

const (
	pendingDir  = "pending"
	uploadedDir = "uploaded"
	metadataDir = "metadata"

	// cleanupTargetRatio is the fraction of MaxTotalBytes that an
	// immediate disk-pressure cleanup stops at, so a cleanup triggered at
	// 100% doesn't turn around and trigger again on the very next write.
	cleanupTargetRatio = 0.80
)

// Manager owns the pending/uploaded directory tree for every camera on this
// node. Camera registration is implicit: the first Store call for a camera
// ID creates its subtree, and a restart rediscovers all cameras by walking
// pending/ - there is no separate camera registry to go stale.
type Manager struct {
	cfg    Config
	log    Logger
	mu     sync.Mutex // serializes writes and cleanup sweeps
	stats  map[string]*CameraStats
}

// NewManager creates the storage manager and ensures the base directory
// layout exists.
func NewManager(cfg Config, log Logger) (*Manager, error) {
	if log == nil {
		log = noopLogger{}
	}
	if cfg.MaxTotalBytes <= 0 {
		cfg.MaxTotalBytes = 2 << 30 // 2GiB default, generous for an SBC's SD card
	}
	if cfg.CleanupTargetBytes <= 0 {
		cfg.CleanupTargetBytes = int64(float64(cfg.MaxTotalBytes) * cleanupTargetRatio)
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 7
	}
	if cfg.MinFreeBytes <= 0 {
		cfg.MinFreeBytes = 100 * 1024 * 1024 // 100MiB floor on real disk space
	}

	for _, d := range []string{
		filepath.Join(cfg.BasePath, pendingDir),
		filepath.Join(cfg.BasePath, pendingDir, metadataDir),
		filepath.Join(cfg.BasePath, uploadedDir),
		filepath.Join(cfg.BasePath, uploadedDir, metadataDir),
	} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("create storage directory %s: %w", d, err)
		}
	}

	m := &Manager{cfg: cfg, log: log, stats: map[string]*CameraStats{}}
	if err := m.rescan(); err != nil {
		return nil, fmt.Errorf("rehydrate storage state: %w", err)
	}

	return m, nil
}

// Store writes a captured image and its metadata sidecar atomically into
// pending/<camera_id>/<date>/, then checks whether the node has exceeded its
// disk cap and runs an immediate cleanup if so.
func (m *Manager) Store(cameraID string, data []byte, observedAt time.Time, meta Metadata) (*Image, error) {
	if len(data) < 100 {
		return nil, ErrInvalidImage
	}
	if observedAt.After(time.Now().UTC().Add(futureTolerance)) {
		return nil, ErrImageFromFuture
	}
	observedAt = observedAt.UTC()

	if full, err := m.diskFull(); err != nil {
		m.log.Warn("free disk space check failed, proceeding without it", "error", err)
	} else if full {
		m.log.Warn("disk full, triggering immediate cleanup", "camera", cameraID)
		m.Cleanup()
		if full, err := m.diskFull(); err != nil {
			m.log.Warn("free disk space check failed, proceeding without it", "error", err)
		} else if full {
			m.log.Warn("disk still full after cleanup, dropping capture", "camera", cameraID)
			return nil, ErrDiskFull
		}
	}

	dateDir := observedAt.Format("2006-01-02")
	imgDir := filepath.Join(m.cfg.BasePath, pendingDir, cameraID, dateDir)
	metaDir := filepath.Join(m.cfg.BasePath, pendingDir, metadataDir, cameraID, dateDir)
	if err := os.MkdirAll(imgDir, 0755); err != nil {
		return nil, fmt.Errorf("create pending dir: %w", err)
	}
	if err := os.MkdirAll(metaDir, 0755); err != nil {
		return nil, fmt.Errorf("create pending metadata dir: %w", err)
	}

	filename, imgPath := m.reserveFilename(imgDir, observedAt)
	metaPath := filepath.Join(metaDir, strings.TrimSuffix(filename, ".jpg")+".json")

	if err := atomicWrite(imgPath, data); err != nil {
		return nil, fmt.Errorf("write image: %w", err)
	}

	meta.DeviceID = m.cfg.DeviceID
	meta.CameraID = cameraID
	meta.ObservedAt = observedAt
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	if err := atomicWrite(metaPath, metaBytes); err != nil {
		// The image is already durable; losing its sidecar is a warning,
		// not a failure of the capture itself.
		m.log.Warn("failed to write metadata sidecar", "camera", cameraID, "error", err)
	}

	m.mu.Lock()
	st := m.statsLocked(cameraID)
	st.PendingCount++
	st.PendingBytes += int64(len(data))
	if st.OldestPending.IsZero() || observedAt.Before(st.OldestPending) {
		st.OldestPending = observedAt
	}
	m.mu.Unlock()

	img := &Image{
		CameraID:   cameraID,
		Filename:   filename,
		Path:       imgPath,
		MetaPath:   metaPath,
		ObservedAt: observedAt,
		SizeBytes:  int64(len(data)),
	}

	if m.TotalBytes() > m.cfg.MaxTotalBytes {
		go m.Cleanup()
	}

	return img, nil
}

// diskFull reports whether the filesystem backing BasePath has less than
// MinFreeBytes actually free, independent of the configured MaxTotalBytes
// quota: a node can be well under quota and still sit on a card that is
// genuinely out of space because of other tenants on the same filesystem.
func (m *Manager) diskFull() (bool, error) {
	du, err := disk.Usage(m.cfg.BasePath)
	if err != nil {
		return false, fmt.Errorf("read disk stats: %w", err)
	}
	return du.Free < uint64(m.cfg.MinFreeBytes), nil
}

func (m *Manager) reserveFilename(dir string, observedAt time.Time) (string, string) {
	for {
		filename := fmt.Sprintf("%d.jpg", observedAt.UnixMilli())
		path := filepath.Join(dir, filename)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return filename, path
		}
		observedAt = observedAt.Add(time.Millisecond)
	}
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// ListPending returns up to limit pending images for a camera, oldest
// first. limit <= 0 means unlimited. Images whose sidecar is marked
// failed_permanent stay on disk but are not returned.
func (m *Manager) ListPending(cameraID string, limit int) ([]*Image, error) {
	root := filepath.Join(m.cfg.BasePath, pendingDir, cameraID)
	images, err := m.walkImages(root, cameraID)
	if err != nil {
		return nil, err
	}
	kept := images[:0]
	for _, img := range images {
		var meta Metadata
		if data, err := os.ReadFile(img.MetaPath); err == nil && json.Unmarshal(data, &meta) == nil && meta.UploadStatus == "failed_permanent" {
			continue
		}
		kept = append(kept, img)
	}
	images = kept
	if limit > 0 && len(images) > limit {
		images = images[:limit]
	}
	return images, nil
}

// MarkUploaded moves a pending image (and its sidecar) into the uploaded/
// tree. Missing-file is treated as already handled, not an error, since a
// concurrent cleanup sweep racing the upload worker is expected behavior,
// not a bug.
func (m *Manager) MarkUploaded(img *Image) error {
	dateDir := img.ObservedAt.Format("2006-01-02")
	destDir := filepath.Join(m.cfg.BasePath, uploadedDir, img.CameraID, dateDir)
	destMetaDir := filepath.Join(m.cfg.BasePath, uploadedDir, metadataDir, img.CameraID, dateDir)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("create uploaded dir: %w", err)
	}
	if err := os.MkdirAll(destMetaDir, 0755); err != nil {
		return fmt.Errorf("create uploaded metadata dir: %w", err)
	}

	destPath := filepath.Join(destDir, img.Filename)
	if err := os.Rename(img.Path, destPath); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("move uploaded image: %w", err)
		}
		m.log.Debug("image already removed from pending", "camera", img.CameraID, "filename", img.Filename)
		return nil
	}

	destMetaPath := filepath.Join(destMetaDir, strings.TrimSuffix(img.Filename, ".jpg")+".json")
	if err := os.Rename(img.MetaPath, destMetaPath); err != nil {
		if os.IsNotExist(err) {
			m.log.Debug("image metadata already removed from pending", "camera", img.CameraID, "filename", img.Filename)
		} else {
			m.log.Warn("move uploaded image metadata failed", "camera", img.CameraID, "filename", img.Filename, "error", err)
		}
	}

	m.mu.Lock()
	st := m.statsLocked(img.CameraID)
	st.PendingCount--
	if st.PendingCount < 0 {
		st.PendingCount = 0
	}
	st.PendingBytes -= img.SizeBytes
	if st.PendingBytes < 0 {
		st.PendingBytes = 0
	}
	st.UploadedCount++
	st.UploadedBytes += img.SizeBytes
	m.mu.Unlock()

	return nil
}

// MarkPermanentFailure records that an image will never be retried (e.g. the
// server rejected it with a non-retryable 4xx). The file stays in pending/
// for operator inspection and is reclaimed by the normal retention sweep.
func (m *Manager) MarkPermanentFailure(img *Image, reason string) error {
	data, err := os.ReadFile(img.MetaPath)
	var meta Metadata
	if err == nil {
		_ = json.Unmarshal(data, &meta)
	}
	meta.UploadStatus = "failed_permanent"

	out, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := atomicWrite(img.MetaPath, out); err != nil {
		return err
	}

	m.mu.Lock()
	st := m.statsLocked(img.CameraID)
	st.PermanentFailed++
	m.mu.Unlock()

	m.log.Warn("image marked permanently failed", "camera", img.CameraID, "filename", img.Filename, "reason", reason)
	return nil
}

// Cleanup runs both cleanup passes: retention-age deletion, then (if the
// node is still over its disk cap after that) oldest-first deletion down to
// CleanupTargetBytes (cleanupTargetRatio of the cap when not configured).
func (m *Manager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expireByRetentionLocked()

	total := m.totalBytesLocked()
	if total <= m.cfg.MaxTotalBytes {
		return
	}

	target := m.cfg.CleanupTargetBytes
	all, err := m.allImagesSortedLocked()
	if err != nil {
		m.log.Error("cleanup: failed to enumerate images", "error", err)
		return
	}

	var removed int
	for _, img := range all {
		if total <= target {
			break
		}
		if m.cfg.Limiter != nil {
			if delay := m.cfg.Limiter.GetThrottleDelay(); delay > 0 {
				time.Sleep(delay)
			}
		}
		if err := os.Remove(img.Path); err == nil {
			total -= img.SizeBytes
			removed++
		}
		os.Remove(img.MetaPath)
	}

	if removed > 0 {
		m.log.Warn("disk cap exceeded, removed oldest images", "removed", removed, "remaining_bytes", total)
		m.rescanLocked()
	}
}

func (m *Manager) expireByRetentionLocked() {
	cutoff := time.Now().UTC().AddDate(0, 0, -m.cfg.RetentionDays)

	for _, tree := range []string{pendingDir, uploadedDir} {
		root := filepath.Join(m.cfg.BasePath, tree)
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, cam := range entries {
			if !cam.IsDir() || cam.Name() == metadataDir {
				continue
			}
			camDir := filepath.Join(root, cam.Name())
			dates, err := os.ReadDir(camDir)
			if err != nil {
				continue
			}
			for _, date := range dates {
				if !date.IsDir() {
					continue
				}
				d, err := time.Parse("2006-01-02", date.Name())
				if err != nil || !d.Before(cutoff) {
					continue
				}
				os.RemoveAll(filepath.Join(camDir, date.Name()))
				os.RemoveAll(filepath.Join(root, metadataDir, cam.Name(), date.Name()))
			}
		}
	}
}

// allImagesSortedLocked returns every image across every camera in both
// pending/ and uploaded/, oldest observation time first.
func (m *Manager) allImagesSortedLocked() ([]*Image, error) {
	var all []*Image
	for _, tree := range []string{pendingDir, uploadedDir} {
		root := filepath.Join(m.cfg.BasePath, tree)
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, cam := range entries {
			if !cam.IsDir() || cam.Name() == metadataDir {
				continue
			}
			images, err := m.walkImagesInTree(filepath.Join(root, cam.Name()), cam.Name())
			if err != nil {
				continue
			}
			all = append(all, images...)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ObservedAt.Before(all[j].ObservedAt) })
	return all, nil
}

// walkImages lists pending images for one camera, oldest first, wiring up
// sidecar paths under pending/metadata/.
func (m *Manager) walkImages(root, cameraID string) ([]*Image, error) {
	images, err := m.walkImagesInTree(root, cameraID)
	if err != nil {
		return nil, err
	}
	for _, img := range images {
		dateDir := img.ObservedAt.Format("2006-01-02")
		img.MetaPath = filepath.Join(m.cfg.BasePath, pendingDir, metadataDir, cameraID, dateDir,
			strings.TrimSuffix(img.Filename, ".jpg")+".json")
	}
	sort.Slice(images, func(i, j int) bool { return images[i].ObservedAt.Before(images[j].ObservedAt) })
	return images, nil
}

func (m *Manager) walkImagesInTree(camRoot, cameraID string) ([]*Image, error) {
	dates, err := os.ReadDir(camRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var images []*Image
	for _, date := range dates {
		if !date.IsDir() {
			continue
		}
		dateDir := filepath.Join(camRoot, date.Name())
		files, err := os.ReadDir(dateDir)
		if err != nil {
			continue
		}
		for _, f := range files {
			name := f.Name()
			if f.IsDir() || !strings.HasSuffix(name, ".jpg") {
				continue
			}
			base := strings.TrimSuffix(name, ".jpg")
			ms, err := strconv.ParseInt(base, 10, 64)
			if err != nil {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			images = append(images, &Image{
				CameraID:   cameraID,
				Filename:   name,
				Path:       filepath.Join(dateDir, name),
				ObservedAt: time.UnixMilli(ms).UTC(),
				SizeBytes:  info.Size(),
			})
		}
	}
	return images, nil
}

// LatestImage returns the most recently observed image for a camera,
// searching both uploaded/ and pending/ since the portal's "latest" view
// wants the newest frame regardless of delivery state.
func (m *Manager) LatestImage(cameraID string) (*Image, error) {
	uploadedRoot := filepath.Join(m.cfg.BasePath, uploadedDir, cameraID)
	uploaded, err := m.walkImagesInTree(uploadedRoot, cameraID)
	if err != nil {
		return nil, err
	}

	pendingRoot := filepath.Join(m.cfg.BasePath, pendingDir, cameraID)
	pending, err := m.walkImagesInTree(pendingRoot, cameraID)
	if err != nil {
		return nil, err
	}

	all := append(uploaded, pending...)
	if len(all) == 0 {
		return nil, nil
	}

	latest := all[0]
	for _, img := range all[1:] {
		if img.ObservedAt.After(latest.ObservedAt) {
			latest = img
		}
	}
	return latest, nil
}

// Stats returns a snapshot of every camera's queue statistics.
func (m *Manager) Stats() map[string]CameraStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]CameraStats, len(m.stats))
	for k, v := range m.stats {
		out[k] = *v
	}
	return out
}

// TotalBytes returns the combined size of pending and uploaded trees.
func (m *Manager) TotalBytes() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalBytesLocked()
}

func (m *Manager) totalBytesLocked() int64 {
	var total int64
	for _, st := range m.stats {
		total += st.PendingBytes + st.UploadedBytes
	}
	return total
}

func (m *Manager) statsLocked(cameraID string) *CameraStats {
	st, ok := m.stats[cameraID]
	if !ok {
		st = &CameraStats{CameraID: cameraID}
		m.stats[cameraID] = st
	}
	return st
}

// rescan rebuilds per-camera counters by walking the directory tree. Called
// once at startup so a restarted agent rediscovers queue state purely from
// disk, with no separate index to go stale.
func (m *Manager) rescan() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rescanLocked()
}

func (m *Manager) rescanLocked() error {
	m.stats = map[string]*CameraStats{}

	pendingRoot := filepath.Join(m.cfg.BasePath, pendingDir)
	cams, err := os.ReadDir(pendingRoot)
	if err != nil {
		return err
	}
	for _, cam := range cams {
		if !cam.IsDir() || cam.Name() == metadataDir {
			continue
		}
		images, err := m.walkImagesInTree(filepath.Join(pendingRoot, cam.Name()), cam.Name())
		if err != nil {
			continue
		}
		st := m.statsLocked(cam.Name())
		for _, img := range images {
			st.PendingCount++
			st.PendingBytes += img.SizeBytes
			if st.OldestPending.IsZero() || img.ObservedAt.Before(st.OldestPending) {
				st.OldestPending = img.ObservedAt
			}
		}
	}

	uploadedRoot := filepath.Join(m.cfg.BasePath, uploadedDir)
	cams, err = os.ReadDir(uploadedRoot)
	if err != nil {
		return nil // uploaded/ may legitimately be empty on first run
	}
	for _, cam := range cams {
		if !cam.IsDir() || cam.Name() == metadataDir {
			continue
		}
		images, err := m.walkImagesInTree(filepath.Join(uploadedRoot, cam.Name()), cam.Name())
		if err != nil {
			continue
		}
		st := m.statsLocked(cam.Name())
		for _, img := range images {
			st.UploadedCount++
			st.UploadedBytes += img.SizeBytes
		}
	}

	m.log.Info("storage state rehydrated from disk", "cameras", len(m.stats))
	return nil
}
