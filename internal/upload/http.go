package upload

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

func insecureTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	return t
}

// HTTPClient implements Client interface using a bearer-token-authenticated
// multipart POST. This is the default transport: the portal's counterpart
// server accepts the same multipart shape on its ingest endpoint.
type HTTPClient struct {
	config     Config
	httpClient *http.Client
	baseURL    string
}

// NewHTTPClient creates a new HTTP upload client instance.
func NewHTTPClient(config Config) (*HTTPClient, error) {
	if config.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if config.Token == "" && config.Username == "" {
		return nil, fmt.Errorf("token or username is required")
	}

	if config.TimeoutConnectSeconds == 0 {
		config.TimeoutConnectSeconds = 10
	}
	if config.TimeoutUploadSeconds == 0 {
		config.TimeoutUploadSeconds = 30
	}

	scheme := "https"
	if !config.TLS {
		scheme = "http"
	}
	port := config.Port
	if port == 0 {
		if config.TLS {
			port = 443
		} else {
			port = 80
		}
	}
	baseURL := fmt.Sprintf("%s://%s:%d", scheme, config.Host, port)

	transport := http.DefaultTransport
	if config.TLS && !config.TLSVerify {
		transport = insecureTransport()
	}

	return &HTTPClient{
		config: config,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(config.TimeoutUploadSeconds) * time.Second,
		},
		baseURL: baseURL,
	}, nil
}

// Upload POSTs the image as a multipart form field named "image", plus its
// JSON metadata sidecar as a field named "metadata" when available, to
// <baseURL>/<remotePath>. The server is expected to make the write atomic on
// its own side; unlike the file-oriented FTPS/SFTP transports there is no
// client-visible .tmp-then-rename step over HTTP.
func (c *HTTPClient) Upload(remotePath string, data []byte, metadata []byte) error {
	remotePath = normalizeRemotePath(remotePath)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", remotePath)
	if err != nil {
		return &UploadError{RemotePath: remotePath, Message: "build multipart body", Err: err}
	}
	if _, err := part.Write(data); err != nil {
		return &UploadError{RemotePath: remotePath, Message: "write multipart body", Err: err}
	}
	if len(metadata) > 0 {
		metaPart, err := writer.CreateFormField("metadata")
		if err != nil {
			return &UploadError{RemotePath: remotePath, Message: "build multipart metadata field", Err: err}
		}
		if _, err := metaPart.Write(metadata); err != nil {
			return &UploadError{RemotePath: remotePath, Message: "write multipart metadata", Err: err}
		}
	}
	if err := writer.Close(); err != nil {
		return &UploadError{RemotePath: remotePath, Message: "close multipart body", Err: err}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(c.config.TimeoutUploadSeconds)*time.Second)
	defer cancel()

	url := c.baseURL + "/" + remotePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return &UploadError{RemotePath: remotePath, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authenticate(req)
	// Cache-busting: some reverse proxies between the edge node and the
	// ingest endpoint cache POSTs to the same path prefix during retries.
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isContextTimeout(err) {
			return &TimeoutError{Operation: "upload", Timeout: time.Duration(c.config.TimeoutUploadSeconds) * time.Second, Err: err}
		}
		return &ConnectionError{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &AuthError{Message: fmt.Sprintf("server returned %d", resp.StatusCode)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, RemotePath: remotePath, Body: string(respBody)}
	}

	return nil
}

// TestConnection probes the server's health endpoint to confirm
// reachability and that the configured credential is accepted.
func (c *HTTPClient) TestConnection() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(c.config.TimeoutConnectSeconds)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return &ConnectionError{Message: "build request", Err: err}
	}
	c.authenticate(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isContextTimeout(err) {
			return &TimeoutError{Operation: "connect", Timeout: time.Duration(c.config.TimeoutConnectSeconds) * time.Second, Err: err}
		}
		return &ConnectionError{Message: "dial failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &AuthError{Message: fmt.Sprintf("server returned %d", resp.StatusCode)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ConnectionError{Message: fmt.Sprintf("server returned %d", resp.StatusCode)}
	}

	return nil
}

func (c *HTTPClient) authenticate(req *http.Request) {
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
		return
	}
	req.SetBasicAuth(c.config.Username, c.config.Password)
}

func isContextTimeout(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "context deadline exceeded") || strings.Contains(err.Error(), "Client.Timeout")
}
