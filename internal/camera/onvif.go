package camera

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/korylprince/go-onvif"
	"github.com/korylprince/go-onvif/soap"
)

// ONVIFCamera implements Camera for ONVIF-compliant cameras using a
// hand-written subset of the ONVIF SOAP API: GetDeviceInformation,
// GetServices, GetProfiles, and GetSnapshotUri. No WSDL or reflection-based
// client generation is used.
type ONVIFCamera struct {
	config      Config
	httpClient  *http.Client
	onvifClient *onvif.Client
	snapshotURI string // Cached snapshot URI
	mediaXAddr  string // Media service XAddr
	mediaNS     string // Cached media namespace (v1 or v2)
}

// NewONVIFCamera creates a new ONVIF camera instance.
func NewONVIFCamera(config Config) (*ONVIFCamera, error) {
	if config.ONVIF == nil {
		return nil, fmt.Errorf("onvif config is required")
	}
	if config.ONVIF.Endpoint == "" {
		return nil, fmt.Errorf("onvif.endpoint is required")
	}
	if config.ONVIF.Username == "" {
		return nil, fmt.Errorf("onvif.username is required")
	}
	if config.ONVIF.Password == "" {
		return nil, fmt.Errorf("onvif.password is required")
	}

	timeout := time.Duration(config.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	httpClient := &http.Client{Timeout: timeout}

	onvifClient := &onvif.Client{
		Username:   config.ONVIF.Username,
		Password:   config.ONVIF.Password,
		HTTPClient: httpClient,
	}

	return &ONVIFCamera{
		config:      config,
		httpClient:  httpClient,
		onvifClient: onvifClient,
	}, nil
}

// Capture fetches a fresh snapshot from the ONVIF camera. Resolves the
// snapshot URI lazily and caches it; a 401 clears the cache and retries once
// (iteratively, never recursively).
func (c *ONVIFCamera) Capture(ctx context.Context) ([]byte, error) {
	if c.snapshotURI == "" {
		uri, err := c.getSnapshotURI(ctx)
		if err != nil {
			return nil, &CaptureError{CameraID: c.config.ID, Message: "get snapshot URI", Err: err}
		}
		c.snapshotURI = uri
	}

	data, status, err := c.fetchSnapshot(ctx, c.snapshotURI)
	if err == nil {
		return data, nil
	}

	if ctx.Err() == context.DeadlineExceeded {
		return nil, &TimeoutError{CameraID: c.config.ID, Timeout: c.httpClient.Timeout}
	}

	if status == http.StatusUnauthorized {
		c.snapshotURI = ""
		uri, retryErr := c.getSnapshotURI(ctx)
		if retryErr != nil {
			return nil, &CaptureError{CameraID: c.config.ID, Message: "retry get snapshot URI", Err: retryErr}
		}
		c.snapshotURI = uri

		data, status, retryErr = c.fetchSnapshot(ctx, c.snapshotURI)
		if retryErr == nil {
			return data, nil
		}
		if status == http.StatusUnauthorized {
			c.snapshotURI = ""
			return nil, &AuthError{CameraID: c.config.ID, Message: "authentication failed"}
		}
		return nil, &CaptureError{CameraID: c.config.ID, Message: "retry HTTP request failed", Err: retryErr}
	}

	return nil, &CaptureError{CameraID: c.config.ID, Message: "HTTP request failed", Err: err}
}

// fetchSnapshot issues a single authenticated, cache-busted GET against the
// resolved snapshot URI. Returns the HTTP status when the request completed
// but was not a success, so the caller can decide retry semantics.
func (c *ONVIFCamera) fetchSnapshot(ctx context.Context, uri string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, 0, err
	}
	req.SetBasicAuth(c.config.ONVIF.Username, c.config.ONVIF.Password)
	req.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	req.Header.Set("Pragma", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("HTTP status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if len(data) == 0 {
		return nil, resp.StatusCode, fmt.Errorf("empty response body")
	}
	return data, resp.StatusCode, nil
}

// Describe queries GetDeviceInformation for manufacturer/model/firmware, used
// by the portal's camera describe surface. Not on the capture hot path.
func (c *ONVIFCamera) Describe(ctx context.Context) (map[string]string, error) {
	if c.mediaXAddr == "" {
		if err := c.resolveMediaService(); err != nil {
			return nil, err
		}
	}

	type GetDeviceInformation struct {
		XMLName xml.Name `xml:"tds:GetDeviceInformation"`
	}
	req := &onvif.Request{
		URL:        c.config.ONVIF.Endpoint,
		Namespaces: soap.Namespaces{"tds": "http://www.onvif.org/ver10/device/wsdl"},
		Body:       &GetDeviceInformation{},
	}
	envelope, err := c.onvifClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get device information: %w", err)
	}

	var resp struct {
		XMLName         xml.Name `xml:"GetDeviceInformationResponse"`
		Manufacturer    string   `xml:"Manufacturer"`
		Model           string   `xml:"Model"`
		FirmwareVersion string   `xml:"FirmwareVersion"`
		SerialNumber    string   `xml:"SerialNumber"`
	}
	if err := envelope.Body.Unmarshal(&resp); err != nil {
		return nil, fmt.Errorf("parse device information: %w", err)
	}

	return map[string]string{
		"manufacturer": resp.Manufacturer,
		"model":        resp.Model,
		"firmware":     resp.FirmwareVersion,
		"serial":       resp.SerialNumber,
	}, nil
}

func (c *ONVIFCamera) resolveMediaService() error {
	services, err := c.onvifClient.GetServices(c.config.ONVIF.Endpoint)
	if err != nil {
		return fmt.Errorf("get services: %w", err)
	}

	c.mediaXAddr = services.URL(onvif.NamespaceMedia2)
	if c.mediaXAddr != "" {
		c.mediaNS = onvif.NamespaceMedia2
	} else {
		c.mediaXAddr = services.URL(onvif.NamespaceMedia)
		if c.mediaXAddr != "" {
			c.mediaNS = onvif.NamespaceMedia
		}
	}
	if c.mediaXAddr == "" {
		return fmt.Errorf("media service not found")
	}
	return nil
}

// getSnapshotURI obtains the snapshot URI from the ONVIF device's media
// service via GetProfiles + GetSnapshotUri.
func (c *ONVIFCamera) getSnapshotURI(ctx context.Context) (string, error) {
	if c.mediaXAddr == "" {
		if err := c.resolveMediaService(); err != nil {
			return "", err
		}
	}

	profileToken := c.config.ONVIF.ProfileToken
	if profileToken == "" {
		token, err := c.getFirstProfileToken(ctx)
		if err != nil {
			return "", fmt.Errorf("get profile token: %w", err)
		}
		profileToken = token
	}

	mediaNS := c.mediaNS
	if mediaNS == "" {
		mediaNS = onvif.NamespaceMedia
	}

	type GetSnapshotURI struct {
		XMLName      xml.Name `xml:"trt:GetSnapshotUri"`
		ProfileToken string   `xml:"trt:ProfileToken"`
	}

	req := &onvif.Request{
		URL:        c.mediaXAddr,
		Namespaces: soap.Namespaces{"trt": mediaNS},
		Body:       &GetSnapshotURI{ProfileToken: profileToken},
	}

	envelope, err := c.onvifClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("SOAP request failed: %w", err)
	}

	return c.parseSnapshotURIResponse(envelope)
}

func (c *ONVIFCamera) getFirstProfileToken(ctx context.Context) (string, error) {
	mediaNS := c.mediaNS
	if mediaNS == "" {
		mediaNS = onvif.NamespaceMedia
	}

	type GetProfiles struct {
		XMLName xml.Name `xml:"trt:GetProfiles"`
	}

	req := &onvif.Request{
		URL:        c.mediaXAddr,
		Namespaces: soap.Namespaces{"trt": mediaNS},
		Body:       &GetProfiles{},
	}

	envelope, err := c.onvifClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("get profiles: %w", err)
	}

	type Profile struct {
		Token string `xml:"token,attr"`
	}
	type GetProfilesResponse struct {
		XMLName  xml.Name  `xml:"GetProfilesResponse"`
		Profiles []Profile `xml:"Profiles>Profile"`
	}

	var resp GetProfilesResponse
	if err := envelope.Body.Unmarshal(&resp); err != nil {
		return "", fmt.Errorf("parse profiles response: %w", err)
	}
	if len(resp.Profiles) == 0 {
		return "", fmt.Errorf("no profiles found")
	}

	return resp.Profiles[0].Token, nil
}

func (c *ONVIFCamera) parseSnapshotURIResponse(envelope *soap.Envelope) (string, error) {
	type MediaURI struct {
		URI string `xml:"Uri"`
	}
	type GetSnapshotURIResponse struct {
		XMLName  xml.Name `xml:"GetSnapshotUriResponse"`
		MediaURI MediaURI `xml:"MediaUri"`
	}

	var resp GetSnapshotURIResponse
	if err := envelope.Body.Unmarshal(&resp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if resp.MediaURI.URI == "" {
		return "", fmt.Errorf("snapshot URI not found in response")
	}

	return resp.MediaURI.URI, nil
}

// Setup resolves the media service XAddr up front, so a camera that cannot
// be reached at all fails fast at registration instead of on the first
// capture.
func (c *ONVIFCamera) Setup(ctx context.Context) error {
	return c.resolveMediaService()
}

// Reconnect clears cached media-service and snapshot-URI state and
// re-resolves it, the ONVIF equivalent of tearing down and re-establishing
// a session.
func (c *ONVIFCamera) Reconnect(ctx context.Context) error {
	c.snapshotURI = ""
	c.mediaXAddr = ""
	c.mediaNS = ""
	return c.resolveMediaService()
}

// Cleanup drops cached media-service and snapshot-URI state. The HTTP
// client holds no long-lived connection that needs closing.
func (c *ONVIFCamera) Cleanup() error {
	c.snapshotURI = ""
	c.mediaXAddr = ""
	c.mediaNS = ""
	return nil
}

// ID returns the camera identifier.
func (c *ONVIFCamera) ID() string { return c.config.ID }

// Type returns the camera kind.
func (c *ONVIFCamera) Type() string { return "onvif" }
