package config

import "testing"

func TestApplyDefaults(t *testing.T) {
	c := &Config{Cameras: []Camera{{ID: "cam1"}}}
	ApplyDefaults(c)

	if c.Storage.MaxSizeGB != 10 {
		t.Errorf("Storage.MaxSizeGB = %d, want 10", c.Storage.MaxSizeGB)
	}
	if c.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", c.Logging.Level)
	}
	if c.Updates.Channel != "stable" {
		t.Errorf("Updates.Channel = %q, want stable", c.Updates.Channel)
	}
	if c.Portal.Port != 8090 {
		t.Errorf("Portal.Port = %d, want 8090", c.Portal.Port)
	}
	if c.Cameras[0].CaptureIntervalSeconds != 60 {
		t.Errorf("Cameras[0].CaptureIntervalSeconds = %d, want 60", c.Cameras[0].CaptureIntervalSeconds)
	}
}

func TestCameraIsEnabled(t *testing.T) {
	on, off := true, false
	cases := []struct {
		name string
		cam  Camera
		want bool
	}{
		{"unset defaults true", Camera{}, true},
		{"explicit true", Camera{Enabled: &on}, true},
		{"explicit false", Camera{Enabled: &off}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cam.IsEnabled(); got != tc.want {
				t.Errorf("IsEnabled() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestServerToUpload_HTTPParsesURL(t *testing.T) {
	verify := true
	s := Server{
		URL:       "https://ingest.example.org:8443/",
		SSLVerify: &verify,
		AuthToken: "tok-123",
		Timeout:   45,
	}
	up, err := s.ToUpload()
	if err != nil {
		t.Fatalf("ToUpload() error = %v", err)
	}
	if up.Transport != "http" {
		t.Errorf("Transport = %q, want http", up.Transport)
	}
	if !up.TLS {
		t.Error("TLS = false, want true for https URL")
	}
	if up.Host != "ingest.example.org" {
		t.Errorf("Host = %q, want ingest.example.org", up.Host)
	}
	if up.Port != 8443 {
		t.Errorf("Port = %d, want 8443", up.Port)
	}
	if up.Token != "tok-123" {
		t.Errorf("Token = %q, want tok-123", up.Token)
	}
	if up.TimeoutUploadSeconds != 45 {
		t.Errorf("TimeoutUploadSeconds = %d, want 45", up.TimeoutUploadSeconds)
	}
}

func TestServerToUpload_SFTPUsesHostFields(t *testing.T) {
	s := Server{Transport: "sftp", Host: "drop.example.org", Port: 22, Username: "node1", Password: "secret"}
	up, err := s.ToUpload()
	if err != nil {
		t.Fatalf("ToUpload() error = %v", err)
	}
	if up.Host != "drop.example.org" || up.Port != 22 {
		t.Errorf("Host/Port = %s/%d, want drop.example.org/22", up.Host, up.Port)
	}
}

func TestServerVerifyTLS(t *testing.T) {
	on, off := true, false
	cases := []struct {
		name string
		srv  Server
		want bool
	}{
		{"unset defaults true", Server{}, true},
		{"explicit true", Server{SSLVerify: &on}, true},
		{"explicit false", Server{SSLVerify: &off}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.srv.VerifyTLS(); got != tc.want {
				t.Errorf("VerifyTLS() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestServerToUpload_DefaultsToTLSVerifyOn(t *testing.T) {
	s := Server{URL: "https://ingest.example.org/"}
	up, err := s.ToUpload()
	if err != nil {
		t.Fatalf("ToUpload() error = %v", err)
	}
	if !up.TLSVerify {
		t.Error("TLSVerify = false, want true when ssl_verify is omitted from config")
	}
}

func TestServerToUpload_HTTPRequiresHost(t *testing.T) {
	s := Server{URL: "https:///no-host"}
	if _, err := s.ToUpload(); err == nil {
		t.Error("ToUpload() error = nil, want error for URL with no host")
	}
}

func TestCameraToCameraConfig(t *testing.T) {
	cam := Camera{
		ID:   "cam1",
		Name: "Front",
		Kind: "rtsp",
		RTSP: &RTSP{URL: "rtsp://example/stream", Username: "u", Password: "p"},
	}
	cc := cam.ToCameraConfig()
	if cc.ID != "cam1" || cc.Type != "rtsp" {
		t.Errorf("ToCameraConfig() = %+v, want ID=cam1 Type=rtsp", cc)
	}
	if cc.RTSP == nil || cc.RTSP.URL != "rtsp://example/stream" {
		t.Errorf("ToCameraConfig().RTSP = %+v, want URL set", cc.RTSP)
	}
}

func TestConfigToStorageConfig(t *testing.T) {
	c := &Config{
		Storage: Storage{BasePath: "/data", MaxSizeGB: 2, RetentionDays: 7},
		Device:  Device{ID: "node-1"},
	}
	sc := c.ToStorageConfig()
	if sc.BasePath != "/data" || sc.DeviceID != "node-1" {
		t.Errorf("ToStorageConfig() = %+v, want BasePath=/data DeviceID=node-1", sc)
	}
	if sc.MaxTotalBytes != 2*1024*1024*1024 {
		t.Errorf("MaxTotalBytes = %d, want %d", sc.MaxTotalBytes, 2*1024*1024*1024)
	}
}
