// Package client talks to the bench daemon's diagnostics gateway over
// HTTP. It is the programmatic counterpart of the gateway routes: link
// status, protocol statistics, the parameter catalog, session history
// and capture summaries.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ancware/tunelink/bench/capture"
	"github.com/ancware/tunelink/bench/config"
	"github.com/ancware/tunelink/bench/gateway"
	"github.com/ancware/tunelink/bench/history"
	"github.com/ancware/tunelink/engine"
	"github.com/ancware/tunelink/pkg/errors"
)

// DefaultBaseURL points at a bench daemon running with the default
// gateway configuration on this machine.
var DefaultBaseURL = "http://" + net.JoinHostPort(config.DEFAULT_GATEWAY_ADDRESS, strconv.Itoa(config.GATEWAY_SERVER_PORT))

// Settings configures a gateway client.
type Settings struct {
	// BaseURL is the gateway root, e.g. "http://127.0.0.1:4710".
	BaseURL string

	// Timeout bounds each request. Zero means 10 seconds.
	Timeout time.Duration
}

// VersionInfo is the gateway's view of protocol version negotiation.
type VersionInfo struct {
	Local     string   `json:"local"`
	Mode      string   `json:"mode"`
	Supported []string `json:"supported"`
	Peer      string   `json:"peer,omitempty"`
}

// Param is one entry of the daemon's parameter catalog.
type Param struct {
	Path        string `json:"path"`
	MessageType string `json:"message_type"`
	Kind        string `json:"kind"`
	WireField   string `json:"wire_field"`
	Deprecated  bool   `json:"deprecated,omitempty"`
	ReplacedBy  string `json:"replaced_by,omitempty"`
	Description string `json:"description,omitempty"`
}

// Captures lists finished capture files plus the running one, if any.
type Captures struct {
	Captures []capture.Info `json:"captures"`
	Active   *capture.Info  `json:"active,omitempty"`
}

// Client is an HTTP client for one bench daemon.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger zerolog.Logger
}

// New creates a gateway client. It does not contact the daemon; use
// Ping for that.
func New(settings Settings, logger zerolog.Logger) (*Client, error) {
	raw := settings.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}

	base, err := url.Parse(raw)
	if err != nil {
		return nil, errors.New(ErrInvalidBaseURL, "invalid gateway URL", err).
			AddContext("url", raw)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, errors.Newf(ErrInvalidBaseURL, "gateway URL %q must use http or https", raw)
	}
	if base.Host == "" {
		return nil, errors.Newf(ErrInvalidBaseURL, "gateway URL %q has no host", raw)
	}

	timeout := settings.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		base:   base,
		http:   &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "benchclient").Logger(),
	}, nil
}

// BaseURL returns the gateway root this client talks to.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Ping checks that the daemon is up and serving.
func (c *Client) Ping(ctx context.Context) error {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/health", nil, &body); err != nil {
		return err
	}
	if body.Status != "ok" {
		return errors.Newf(ErrBadStatus, "daemon reported health %q", body.Status)
	}
	return nil
}

// Status fetches the daemon-level state: session, link, queues.
func (c *Client) Status(ctx context.Context) (gateway.Status, error) {
	var st gateway.Status
	err := c.get(ctx, "/status", nil, &st)
	return st, err
}

// Stats fetches the engine's link counters.
func (c *Client) Stats(ctx context.Context) (engine.Stats, error) {
	var st engine.Stats
	err := c.get(ctx, "/stats", nil, &st)
	return st, err
}

// Version fetches the daemon's protocol version state.
func (c *Client) Version(ctx context.Context) (VersionInfo, error) {
	var v VersionInfo
	err := c.get(ctx, "/version", nil, &v)
	return v, err
}

// Params fetches the full parameter catalog the daemon is running with,
// including any mapping overlay loaded from its config.
func (c *Client) Params(ctx context.Context) ([]Param, error) {
	var out []Param
	err := c.get(ctx, "/params", nil, &out)
	return out, err
}

// Param looks up a single catalog entry by logical path.
func (c *Client) Param(ctx context.Context, path string) (Param, error) {
	var out Param
	err := c.get(ctx, "/params/"+url.PathEscape(path), nil, &out)
	return out, err
}

// History searches the daemon's message log. Zero-value query fields
// are left out of the request.
func (c *Client) History(ctx context.Context, q history.Query) ([]history.Record, error) {
	values := url.Values{}
	if q.SessionID != "" {
		values.Set("session", q.SessionID)
	}
	if q.MessageType != "" {
		values.Set("type", q.MessageType)
	}
	if q.Direction != "" {
		values.Set("direction", q.Direction)
	}
	if q.Outcome != "" {
		values.Set("outcome", q.Outcome)
	}
	if !q.Since.IsZero() {
		values.Set("since", q.Since.Format(time.RFC3339))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}

	var out []history.Record
	err := c.get(ctx, "/history", values, &out)
	return out, err
}

// Captures lists the daemon's capture files.
func (c *Client) Captures(ctx context.Context) (Captures, error) {
	var out Captures
	err := c.get(ctx, "/captures", nil, &out)
	return out, err
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	target := *c.base
	target.Path = path
	if query != nil {
		target.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return errors.New(ErrRequestFailed, "failed to build request", err).
			AddContext("path", path)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.New(ErrRequestFailed, "daemon not reachable", err).
			AddContext("url", target.String())
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Gateway request")

	if resp.StatusCode != http.StatusOK {
		return c.statusError(resp, path)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.New(ErrDecodeFailed, "failed to decode response", err).
			AddContext("path", path)
	}
	return nil
}

// statusError turns a non-200 response into a coded error, preferring
// the server's own error text when the body carries one.
func (c *Client) statusError(resp *http.Response, path string) error {
	detail := fmt.Sprintf("status %d", resp.StatusCode)
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		detail = payload.Error
	}

	code := ErrBadStatus
	switch resp.StatusCode {
	case http.StatusNotFound:
		code = ErrNotFound
	case http.StatusServiceUnavailable:
		code = ErrUnavailable
	}

	return errors.Newf(code, "daemon rejected %s: %s", path, detail)
}
