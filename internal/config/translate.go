package config

import (
	"github.com/AlterMundi/sai-cam-agent/internal/camera"
	"github.com/AlterMundi/sai-cam-agent/internal/storage"
)

// ToCameraConfig translates one cameras[] entry into the driver-facing
// camera.Config the factory expects.
func (c Camera) ToCameraConfig() camera.Config {
	cfg := camera.Config{
		ID:             c.ID,
		Name:           c.Name,
		Type:           c.Kind,
		TimeoutSeconds: c.TimeoutSeconds,
	}

	if c.USB != nil {
		cfg.USB = &camera.USBConfig{
			DevicePath: c.USB.DevicePath,
			Width:      c.USB.Width,
			Height:     c.USB.Height,
			FPS:        c.USB.FPS,
		}
	}
	if c.RTSP != nil {
		cfg.RTSP = &camera.RTSPConfig{
			URL:       c.RTSP.URL,
			Username:  c.RTSP.Username,
			Password:  c.RTSP.Password,
			Substream: c.RTSP.Substream,
		}
	}
	if c.ONVIF != nil {
		cfg.ONVIF = &camera.ONVIFConfig{
			Endpoint:     c.ONVIF.Endpoint,
			Username:     c.ONVIF.Username,
			Password:     c.ONVIF.Password,
			ProfileToken: c.ONVIF.ProfileToken,
		}
	}

	return cfg
}

// ToStorageConfig translates the storage section and device identity into
// the on-disk queue manager's configuration.
func (c *Config) ToStorageConfig() storage.Config {
	return storage.Config{
		BasePath:           c.Storage.BasePath,
		DeviceID:           c.Device.ID,
		MaxTotalBytes:      int64(c.Storage.MaxSizeGB) * 1024 * 1024 * 1024,
		CleanupTargetBytes: int64(c.Storage.CleanupThresholdGB) * 1024 * 1024 * 1024,
		RetentionDays:      c.Storage.RetentionDays,
		MinFreeBytes:       int64(c.Storage.MinFreeMB) * 1024 * 1024,
	}
}
