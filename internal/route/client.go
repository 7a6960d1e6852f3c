package route

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrSubmitFailed covers transport errors and non-success replies.
var ErrSubmitFailed = errors.New("route submission failed")

const (
	// CreateMethod is the full method name; the HTTP transport uses it as path.
	CreateMethod = "/taxiroute.TaxiRoute/CreateTaxi"
	// IdempotencyHeader carries Descriptor.IdempotencyKey over HTTP.
	IdempotencyHeader = "Idempotency-Key"
)

// Submitter performs one submission attempt. Implementations never retry.
type Submitter interface {
	Submit(ctx context.Context, d Descriptor) error
}

// Doer is the subset of *http.Client used by HTTPClient.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPClient posts descriptors as JSON.
type HTTPClient struct {
	baseURL    string
	httpClient Doer
}

// NewHTTPClient creates a submitter for baseURL, e.g. http://localhost:8081.
// A nil doer means a plain *http.Client with the given timeout.
func NewHTTPClient(baseURL string, timeout time.Duration, doer Doer) *HTTPClient {
	if doer == nil {
		doer = &http.Client{Timeout: timeout}
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), httpClient: doer}
}

// Submit posts d once. net/http treats requests carrying an Idempotency-Key
// as replayable, so a connection-level retry resends the identical body and key.
func (c *HTTPClient) Submit(ctx context.Context, d Descriptor) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode route: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+CreateMethod, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(IdempotencyHeader, d.IdempotencyKey())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: http status %d", ErrSubmitFailed, resp.StatusCode)
	}
	return nil
}
