package upload

import (
	"fmt"
	"strings"

	"github.com/AlterMundi/sai-cam-agent/internal/config"
)

// NewClientFromConfig builds an upload Client from the config package's
// Upload section. The http transport is the default and recommended
// delivery path; ftps and sftp remain available for sites that already
// run one of those servers.
func NewClientFromConfig(cfg config.Upload) (Client, error) {
	transport := strings.ToLower(strings.TrimSpace(cfg.Transport))
	if transport == "" {
		transport = "http"
	}

	port := cfg.Port
	if port == 0 {
		switch transport {
		case "sftp":
			port = 22
		case "ftps", "ftp":
			port = 2121
		case "http":
			if cfg.TLS {
				port = 443
			} else {
				port = 80
			}
		}
	}

	basePath := cfg.BasePath
	if basePath == "" && transport == "sftp" {
		basePath = "/files"
	}

	uploadConfig := Config{
		Transport:             transport,
		Host:                  cfg.Host,
		Port:                  port,
		Username:              cfg.Username,
		Password:              cfg.Password,
		Token:                 cfg.Token,
		TLS:                   cfg.TLS,
		TLSVerify:             cfg.TLSVerify,
		CABundlePath:          cfg.CABundlePath,
		BasePath:              basePath,
		TimeoutConnectSeconds: cfg.TimeoutConnectSeconds,
		TimeoutUploadSeconds:  cfg.TimeoutUploadSeconds,
	}

	switch transport {
	case "http":
		return NewHTTPClient(uploadConfig)
	case "sftp":
		return NewSFTPClient(uploadConfig)
	case "ftps", "ftp":
		return NewFTPSClient(uploadConfig)
	default:
		return nil, fmt.Errorf("unsupported upload transport: %s (supported: http, sftp, ftps)", transport)
	}
}
