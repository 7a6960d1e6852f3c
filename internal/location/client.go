// Package location fetches current vehicle positions from the taxi locations
// feed and normalizes them into Position records.
package location

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"taxitrack/internal/metrics"
	"taxitrack/internal/scope"
)

var (
	// ErrUnavailable covers transport errors and non-200 responses.
	ErrUnavailable = errors.New("location feed unavailable")
	// ErrMalformed means the body could not be decoded at all.
	ErrMalformed = errors.New("location feed payload malformed")
)

// LocationsPath is appended to the base URL; scoped requests add "/<routeKey>".
const LocationsPath = "/taxi/locations"

// Format selects the feed encoding.
type Format string

const (
	FormatJSON     Format = "json"
	FormatGTFSRT   Format = "gtfsrt"
	FormatSiriJSON Format = "siri-json"
	FormatSiriXML  Format = "siri-xml"
)

type decodeFunc func(body []byte, sentinel float64) ([]Position, int, error)

var formats = map[Format]struct {
	accept string
	decode decodeFunc
}{
	FormatJSON:     {"application/json", decodeJSON},
	FormatGTFSRT:   {"application/x-protobuf", decodeGTFSRT},
	FormatSiriJSON: {"application/json", decodeSiriJSON},
	FormatSiriXML:  {"application/xml", decodeSiriXML},
}

// ParseFormat validates a format name. "" means FormatJSON.
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return FormatJSON, nil
	}
	f := Format(strings.ToLower(s))
	if _, ok := formats[f]; !ok {
		return "", fmt.Errorf("unknown feed format %q", s)
	}
	return f, nil
}

// Doer is the subset of *http.Client used by the clients in this module.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client performs single round trips against the locations feed. It never
// retries; retry policy belongs to the caller.
type Client struct {
	baseURL    string
	httpClient Doer
	format     Format
	sentinel   float64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(d Doer) Option {
	return func(c *Client) { c.httpClient = d }
}

// WithFormat selects the feed encoding.
func WithFormat(f Format) Option {
	return func(c *Client) { c.format = f }
}

// WithSentinel overrides DefaultSentinel.
func WithSentinel(v float64) Option {
	return func(c *Client) { c.sentinel = v }
}

// NewClient creates a feed client for baseURL, e.g. http://localhost:7114.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		format:     FormatJSON,
		sentinel:   DefaultSentinel,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Sentinel returns the configured absence marker.
func (c *Client) Sentinel() float64 { return c.sentinel }

// URL returns the request URL for s.
func (c *Client) URL(s scope.Scope) string {
	return c.baseURL + LocationsPath + s.PathSuffix()
}

// Fetch returns the current positions for s. A single-record body is
// returned as a list of one.
func (c *Client) Fetch(ctx context.Context, s scope.Scope) ([]Position, error) {
	f, ok := formats[c.format]
	if !ok {
		return nil, fmt.Errorf("unknown feed format %q", c.format)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(s), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", f.accept)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: http status %d", ErrUnavailable, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	positions, dropped, err := f.decode(body, c.sentinel)
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		metrics.FeedRecordsDropped.Add(float64(dropped))
	}
	return positions, nil
}
