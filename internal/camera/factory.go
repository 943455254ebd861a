package camera

import (
	"fmt"
)

// NewCamera creates a camera instance based on the configuration kind.
// Supports "usb", "onvif", and "rtsp" - the closed set of driver kinds.
func NewCamera(config Config) (Camera, error) {
	switch config.Type {
	case "usb":
		return NewUSBCamera(config)
	case "onvif":
		return NewONVIFCamera(config)
	case "rtsp":
		return NewRTSPCamera(config)
	default:
		return nil, fmt.Errorf("unsupported camera type: %s", config.Type)
	}
}
