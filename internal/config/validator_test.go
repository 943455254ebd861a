package config

import "testing"

func validConfig() *Config {
	c := &Config{
		Storage: Storage{BasePath: "/data"},
		Cameras: []Camera{
			{ID: "cam1", Name: "Front", Kind: "rtsp", RTSP: &RTSP{URL: "rtsp://x/stream"}},
		},
	}
	ApplyDefaults(c)
	return c
}

func TestValidate_OK(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
}

func TestValidate_NoCameras(t *testing.T) {
	c := validConfig()
	c.Cameras = nil
	if err := Validate(c); err == nil {
		t.Error("Validate() error = nil, want error for empty cameras")
	}
}

func TestValidate_DuplicateID(t *testing.T) {
	c := validConfig()
	c.Cameras = append(c.Cameras, c.Cameras[0])
	if err := Validate(c); err == nil {
		t.Error("Validate() error = nil, want error for duplicate camera id")
	}
}

func TestValidate_UnknownKind(t *testing.T) {
	c := validConfig()
	c.Cameras[0].Kind = "http"
	if err := Validate(c); err == nil {
		t.Error("Validate() error = nil, want error for unsupported kind 'http'")
	}
}

func TestValidate_USBRequiresDevicePath(t *testing.T) {
	c := validConfig()
	c.Cameras[0] = Camera{ID: "cam2", Name: "USB", Kind: "usb"}
	if err := Validate(c); err == nil {
		t.Error("Validate() error = nil, want error for usb camera without device_path")
	}
}

func TestValidate_BadUpdateChannel(t *testing.T) {
	c := validConfig()
	c.Updates.Channel = "nightly"
	if err := Validate(c); err == nil {
		t.Error("Validate() error = nil, want error for invalid updates.channel")
	}
}
