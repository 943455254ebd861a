package config

import "fmt"

// Validate checks a fully-defaulted Config for the conditions spec.md
// section 6 treats as fatal on startup: storage root set, at least one
// camera, unique camera IDs, and a kind-appropriate settings block per
// camera.
func Validate(c *Config) error {
	if c.Storage.BasePath == "" {
		return fmt.Errorf("storage.base_path is required")
	}

	if len(c.Cameras) == 0 {
		return fmt.Errorf("at least one camera is required")
	}

	seen := make(map[string]bool, len(c.Cameras))
	for i, cam := range c.Cameras {
		if err := validateCamera(cam); err != nil {
			return fmt.Errorf("cameras[%d]: %w", i, err)
		}
		if seen[cam.ID] {
			return fmt.Errorf("cameras[%d]: duplicate camera id: %s", i, cam.ID)
		}
		seen[cam.ID] = true
	}

	if c.Updates.Channel != "stable" && c.Updates.Channel != "beta" {
		return fmt.Errorf("updates.channel must be 'stable' or 'beta'")
	}

	return nil
}

func validateCamera(cam Camera) error {
	if cam.ID == "" {
		return fmt.Errorf("id is required")
	}
	for _, r := range cam.ID {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_') {
			return fmt.Errorf("id contains invalid characters (alphanumeric, hyphen, underscore only)")
		}
	}

	switch cam.Kind {
	case "usb":
		if cam.USB == nil || cam.USB.DevicePath == "" {
			return fmt.Errorf("usb.device_path is required for kind 'usb'")
		}
	case "rtsp":
		if cam.RTSP == nil || cam.RTSP.URL == "" {
			return fmt.Errorf("rtsp.url is required for kind 'rtsp'")
		}
	case "onvif":
		if cam.ONVIF == nil {
			return fmt.Errorf("onvif settings are required for kind 'onvif'")
		}
		if cam.ONVIF.Endpoint == "" {
			return fmt.Errorf("onvif.endpoint is required")
		}
		if cam.ONVIF.Username == "" || cam.ONVIF.Password == "" {
			return fmt.Errorf("onvif.username and onvif.password are required")
		}
	default:
		return fmt.Errorf("kind must be 'usb', 'rtsp', or 'onvif', got %q", cam.Kind)
	}

	if cam.CaptureIntervalSeconds != 0 && (cam.CaptureIntervalSeconds < 1 || cam.CaptureIntervalSeconds > 1800) {
		return fmt.Errorf("capture_interval_seconds must be between 1 and 1800")
	}

	return nil
}
