// Package deviceclient calls the device API on behalf of a client device.
//
// Failures to reach the server (connection errors, timeouts, 5xx answers)
// are returned as TRANSIENT_NETWORK_ERROR so callers can tell them apart
// from a definitive answer such as an expired session.
package deviceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/habitkit/devicegate/pkg/device/api"
	dgerrors "github.com/habitkit/devicegate/pkg/errors"
	"github.com/habitkit/devicegate/pkg/sessions"
)

const DefaultTimeout = 10 * time.Second

// TokenSource returns the bearer token for the current account.
type TokenSource func(ctx context.Context) (string, error)

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	token      TokenSource
}

type Option func(*Client)

// WithHTTPClient replaces the default client. Give it a cookie jar to keep
// the device_id cookie.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func WithTokenSource(ts TokenSource) Option {
	return func(cl *Client) {
		cl.token = ts
	}
}

// StaticToken always presents the same token.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) {
		return token, nil
	}
}

// New creates a client for the device API mounted at baseURL, for example
// "https://habits.example.com/api/v1/devices".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, dgerrors.InvalidInput("baseURL", err.Error())
	}
	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) BaseURL() *url.URL {
	return c.baseURL
}

func (c *Client) Register(ctx context.Context, req api.RegisterRequest) (api.RegisterResponse, error) {
	var resp api.RegisterResponse
	err := c.do(ctx, http.MethodPost, "/register", "", req, &resp)
	return resp, err
}

func (c *Client) Validate(ctx context.Context, deviceID string) (api.ValidateResponse, error) {
	var resp api.ValidateResponse
	err := c.do(ctx, http.MethodPost, "/validate", deviceID, api.DeviceRequest{DeviceID: deviceID}, &resp)
	return resp, err
}

// Heartbeat reports whether the device is still active.
func (c *Client) Heartbeat(ctx context.Context, deviceID string) (bool, error) {
	var resp api.HeartbeatResponse
	if err := c.do(ctx, http.MethodPost, "/heartbeat", deviceID, api.DeviceRequest{DeviceID: deviceID}, &resp); err != nil {
		// The session gate answers 401 once the device's session is over.
		if dgerrors.IsCode(err, dgerrors.ErrCodeSessionExpired) {
			return false, nil
		}
		return false, err
	}
	return resp.OK, nil
}

func (c *Client) Logout(ctx context.Context, deviceID string) (api.LogoutResponse, error) {
	var resp api.LogoutResponse
	err := c.do(ctx, http.MethodPost, "/logout", deviceID, api.DeviceRequest{DeviceID: deviceID}, &resp)
	return resp, err
}

// Remove evicts deviceIDToRemove on behalf of requestingDeviceID.
func (c *Client) Remove(ctx context.Context, deviceIDToRemove, requestingDeviceID string) (api.RemoveResponse, error) {
	var resp api.RemoveResponse
	err := c.do(ctx, http.MethodDelete, "/register", requestingDeviceID, api.RemoveRequest{DeviceIDToRemove: deviceIDToRemove}, &resp)
	return resp, err
}

func (c *Client) Replace(ctx context.Context, deviceIDToRemove string, req api.RegisterRequest) (api.ReplaceResponse, error) {
	var resp api.ReplaceResponse
	err := c.do(ctx, http.MethodPost, "/replace", req.DeviceID, api.ReplaceRequest{DeviceIDToRemove: deviceIDToRemove, Device: req}, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path, deviceID string, body, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return dgerrors.InternalWrap(err, "failed to encode request")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, bytes.NewReader(raw))
	if err != nil {
		return dgerrors.InternalWrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if deviceID != "" {
		req.Header.Set(sessions.DeviceIDHeader, deviceID)
	}
	if c.token != nil {
		token, err := c.token(ctx)
		if err != nil {
			return dgerrors.Unauthorized(fmt.Sprintf("no token: %v", err))
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return dgerrors.Transient(err, method+" "+path)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return dgerrors.Transient(err, "read "+path)
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, method+" "+path, payload)
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return dgerrors.InternalWrap(err, "failed to decode response")
	}
	return nil
}

type errorEnvelope struct {
	Code     string                 `json:"code"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details"`
	Redirect string                 `json:"redirect"`
}

func decodeError(status int, operation string, payload []byte) error {
	if status >= 500 {
		return dgerrors.Transient(fmt.Errorf("server answered %d", status), operation)
	}
	var env errorEnvelope
	_ = json.Unmarshal(payload, &env)

	code := dgerrors.ErrorCode(env.Code)
	if code == "" {
		switch status {
		case http.StatusUnauthorized:
			code = dgerrors.ErrCodeUnauthorized
		case http.StatusTooManyRequests:
			code = dgerrors.ErrCodeRateLimitExceeded
		default:
			code = dgerrors.ErrCodeInvalidInput
		}
	}
	msg := env.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	e := dgerrors.New(code, msg)
	for k, v := range env.Details {
		e.WithDetail(k, v)
	}
	if env.Redirect != "" {
		e.WithDetail("redirect", env.Redirect)
	}
	return e
}

// IsSessionEnded reports whether err means the server no longer accepts this
// device's session.
func IsSessionEnded(err error) bool {
	return dgerrors.IsCode(err, dgerrors.ErrCodeSessionExpired) || dgerrors.IsCode(err, dgerrors.ErrCodeUnauthorized)
}
