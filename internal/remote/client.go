package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-dashsync/internal/device"
	"github.com/nerrad567/gray-logic-dashsync/internal/devicesync"
	"github.com/nerrad567/gray-logic-dashsync/internal/session"
)

const (
	defaultTimeout   = 10 * time.Second
	errorSnippetSize = 256
)

// Options configures a Client.
type Options struct {
	// BaseURL is the REST root, e.g. "http://hub.local:8000/api/".
	BaseURL string

	Tokens session.TokenSource

	// Timeout bounds each request. Zero means 10s.
	Timeout time.Duration

	ScenesPath   string // default "scenes"
	RoutinesPath string // default "nezu-routines"

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Client talks to the device backend over REST. It implements
// devicesync.RemoteDeviceSource, CatalogSource and BackendSyncer.
type Client struct {
	baseURL      string
	tokens       session.TokenSource
	http         *http.Client
	scenesPath   string
	routinesPath string
}

var (
	_ devicesync.RemoteDeviceSource = (*Client)(nil)
	_ devicesync.CatalogSource      = (*Client)(nil)
	_ devicesync.BackendSyncer      = (*Client)(nil)
)

// NewClient validates opts and returns a Client.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimSpace(opts.BaseURL)
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("remote: invalid base url %q", opts.BaseURL)
	}
	if opts.Tokens == nil {
		return nil, errors.New("remote: token source is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:      strings.TrimSuffix(base, "/") + "/",
		tokens:       opts.Tokens,
		http:         httpClient,
		scenesPath:   cleanSegment(opts.ScenesPath, "scenes"),
		routinesPath: cleanSegment(opts.RoutinesPath, "nezu-routines"),
	}, nil
}

func cleanSegment(s, fallback string) string {
	s = strings.Trim(strings.TrimSpace(s), "/")
	if s == "" {
		return fallback
	}
	return s
}

// FetchAll returns every device the backend knows about.
func (c *Client) FetchAll(ctx context.Context) ([]device.Device, error) {
	var wire listEnvelope[wireDevice]
	if err := c.do(ctx, "fetch devices", http.MethodGet, "devices/", nil, &wire); err != nil {
		return nil, err
	}
	return toDevices(wire.items), nil
}

// SetState switches one device and returns the backend's updated record.
func (c *Client) SetState(ctx context.Context, id string, on bool) (*device.Device, error) {
	var wire wireDevice
	path := "devices/" + url.PathEscape(id) + "/"
	if err := c.do(ctx, "set device state", http.MethodPatch, path, map[string]bool{"isOn": on}, &wire); err != nil {
		return nil, err
	}
	d := wire.toDevice()
	return &d, nil
}

// BatchSetState switches several devices in one request.
func (c *Client) BatchSetState(ctx context.Context, ids []string, on bool) ([]device.Device, error) {
	body := struct {
		IDs  []string `json:"ids"`
		IsOn bool     `json:"isOn"`
	}{IDs: ids, IsOn: on}

	var wire listEnvelope[wireDevice]
	if err := c.do(ctx, "batch set state", http.MethodPost, "devices/batch_toggle/", body, &wire); err != nil {
		return nil, err
	}
	return toDevices(wire.items), nil
}

// TriggerScene executes a scene.
func (c *Client) TriggerScene(ctx context.Context, id string) error {
	path := c.scenesPath + "/" + url.PathEscape(id) + "/execute/"
	return c.do(ctx, "execute scene", http.MethodPost, path, struct{}{}, nil)
}

// TriggerRoutine executes a routine.
func (c *Client) TriggerRoutine(ctx context.Context, id string) error {
	path := c.routinesPath + "/" + url.PathEscape(id) + "/execute/"
	return c.do(ctx, "execute routine", http.MethodPost, path, struct{}{}, nil)
}

// ListScenes returns the scene catalog.
func (c *Client) ListScenes(ctx context.Context) ([]device.Scene, error) {
	var wire listEnvelope[wireScene]
	if err := c.do(ctx, "list scenes", http.MethodGet, c.scenesPath+"/", nil, &wire); err != nil {
		return nil, err
	}
	out := make([]device.Scene, len(wire.items))
	for i, s := range wire.items {
		out[i] = s.toScene()
	}
	return out, nil
}

// ListRoutines returns the routine catalog.
func (c *Client) ListRoutines(ctx context.Context) ([]device.Routine, error) {
	var wire listEnvelope[wireRoutine]
	if err := c.do(ctx, "list routines", http.MethodGet, c.routinesPath+"/", nil, &wire); err != nil {
		return nil, err
	}
	out := make([]device.Routine, len(wire.items))
	for i, r := range wire.items {
		out[i] = r.toRoutine()
	}
	return out, nil
}

// SyncDevices asks the backend to re-import devices from its upstream hub.
func (c *Client) SyncDevices(ctx context.Context) (*device.SyncReport, error) {
	var wire wireSyncReport
	if err := c.do(ctx, "sync devices", http.MethodPost, "devices/sync/", struct{}{}, &wire); err != nil {
		return nil, err
	}
	report := wire.toReport()
	return &report, nil
}

// do sends one request and decodes the response into out (if non-nil).
// Failures come back as *devicesync.AuthError or *devicesync.NetworkError.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return &devicesync.AuthError{Op: op, Err: err}
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return &devicesync.NetworkError{Op: op, Err: fmt.Errorf("encoding request: %w", err)}
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &devicesync.NetworkError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &devicesync.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorSnippetSize)) //nolint:errcheck // best effort
		statusErr := fmt.Errorf("%s %s: %s", method, path, strings.TrimSpace(string(snippet)))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return &devicesync.AuthError{Op: op, StatusCode: resp.StatusCode, Err: statusErr}
		}
		return &devicesync.NetworkError{Op: op, StatusCode: resp.StatusCode, Err: statusErr}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for keep-alive
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &devicesync.NetworkError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}
