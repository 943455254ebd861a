package upload

import (
	"net/http"
	"time"
)

// Client defines the interface for upload clients
type Client interface {
	// Upload uploads image data, plus its JSON metadata sidecar, to the
	// remote path. The ftps and sftp clients upload to .tmp first, then
	// rename to the final filename; the http client sends one POST and
	// leaves atomicity to the server. metadata may be nil when no sidecar is
	// available for this capture. Returns error if the upload fails.
	Upload(remotePath string, data []byte, metadata []byte) error

	// TestConnection tests the connection to the server and authentication
	// Returns error if connection fails
	TestConnection() error
}

// Config represents upload configuration
type Config struct {
	Transport             string // "http" (default), "ftps", "sftp"
	Host                  string
	Port                  int
	Username              string
	Password              string
	Token                 string // bearer token for the http transport
	TLS                   bool
	TLSVerify             bool
	CABundlePath          string
	BasePath              string // remote directory prefix, sftp transport only
	TimeoutConnectSeconds int
	TimeoutUploadSeconds  int
}

// Error types for upload operations
type (
	// ConnectionError indicates a connection failure
	ConnectionError struct {
		Message string
		Err     error
	}

	// AuthError indicates authentication failed
	AuthError struct {
		Message string
		Err     error
	}

	// UploadError indicates an upload failure
	UploadError struct {
		RemotePath string
		Message    string
		Err        error
	}

	// TimeoutError indicates an operation timed out
	TimeoutError struct {
		Operation string
		Timeout   time.Duration
		Err       error
	}
)

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return "connection failed: " + e.Message + ": " + e.Err.Error()
	}
	return "connection failed: " + e.Message
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return "authentication failed: " + e.Message + ": " + e.Err.Error()
	}
	return "authentication failed: " + e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return "upload failed: " + e.RemotePath + ": " + e.Message + ": " + e.Err.Error()
	}
	return "upload failed: " + e.RemotePath + ": " + e.Message
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

func (e *TimeoutError) Error() string {
	if e.Err != nil {
		return "timeout: " + e.Operation + " (timeout: " + e.Timeout.String() + "): " + e.Err.Error()
	}
	return "timeout: " + e.Operation + " (timeout: " + e.Timeout.String() + ")"
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// StatusError wraps a non-2xx HTTP response from the http transport.
type StatusError struct {
	StatusCode int
	RemotePath string
	Body       string
}

func (e *StatusError) Error() string {
	return "upload failed: " + e.RemotePath + ": server returned " + http.StatusText(e.StatusCode)
}

// Permanent reports whether retrying this upload on the normal schedule is
// expected NOT to help. 429 (rate limited) and 5xx are transient; the rest of
// the 4xx range means the request itself is wrong and won't succeed later.
func (e *StatusError) Permanent() bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return false
	}
	return e.StatusCode >= 400 && e.StatusCode < 500
}
