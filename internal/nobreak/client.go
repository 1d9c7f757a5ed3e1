package nobreak

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jamesprial/nobreak-mcp/internal/config"
)

// defaultTimeout caps a request whose context carries no deadline.
const defaultTimeout = 30 * time.Second

// maxErrorBody bounds how much of a non-2xx body is kept in HTTPStatusError.
const maxErrorBody = 512

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// HTTPClient implements Client against the device server's REST API. Every
// call opens its own session (transport with keep-alives disabled), issues a
// single request and closes the session again; nothing is reused across calls.
type HTTPClient struct {
	endpoint Endpoint
}

// NewHTTPClient constructs an HTTPClient from the provided NobreakConfig.
// It returns an error if cfg.Endpoint is empty.
func NewHTTPClient(cfg config.NobreakConfig) (*HTTPClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("nobreak: endpoint is required")
	}
	return &HTTPClient{
		endpoint: Endpoint{
			BaseURL:           normalizeURL(cfg.Endpoint),
			SkipSSLValidation: cfg.SkipSSLValidation,
		},
	}, nil
}

// Endpoint returns the connection target the client was built with.
func (c *HTTPClient) Endpoint() Endpoint { return c.endpoint }

// normalizeURL trims trailing slashes so paths can be appended directly.
func normalizeURL(rawURL string) string {
	return strings.TrimRight(rawURL, "/")
}

// FetchStatus issues GET /Nobreak and decodes the snapshot.
func (c *HTTPClient) FetchStatus(ctx context.Context) (Status, error) {
	var st Status
	if err := c.exec(ctx, "fetch status", http.MethodGet, "/Nobreak", &st); err != nil {
		return Status{}, err
	}
	return st, nil
}

// StartTest starts a self-test that runs until the battery is flat.
func (c *HTTPClient) StartTest(ctx context.Context) error {
	return c.StartTestFor(ctx, TestUntilFlat)
}

// StartTestFor starts a self-test of the given duration.
func (c *HTTPClient) StartTestFor(ctx context.Context, d TestDuration) error {
	if err := d.validate(); err != nil {
		return err
	}
	return c.exec(ctx, "start test", http.MethodPost, "/Nobreak/Test/"+string(d), nil)
}

// StopTest cancels a running self-test.
func (c *HTTPClient) StopTest(ctx context.Context) error {
	return c.exec(ctx, "stop test", http.MethodDelete, "/Nobreak/Test", nil)
}

// SetBeep enables or disables the audible alarm.
func (c *HTTPClient) SetBeep(ctx context.Context, enabled bool) error {
	return c.exec(ctx, "set beep", http.MethodPost, "/Nobreak/Beep/"+strconv.FormatBool(enabled), nil)
}

// newSession returns a single-use HTTP client. Certificate verification is
// disabled entirely when the endpoint is configured to skip it.
func (c *HTTPClient) newSession() *http.Client {
	transport := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		DisableKeepAlives: true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: c.endpoint.SkipSSLValidation, //nolint:gosec // user opted out of validation
		},
	}
	return &http.Client{Transport: transport, Timeout: defaultTimeout}
}

// exec performs one request. When out is nil the response body is drained
// and discarded; control endpoints echo a status we do not need.
func (c *HTTPClient) exec(ctx context.Context, op, method, path string, out any) error {
	session := c.newSession()
	defer session.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("nobreak: %s: create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := session.Do(req)
	if err != nil {
		return classify(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPStatusError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &TimeoutError{Op: op, Err: err}
		}
		return fmt.Errorf("nobreak: %s: decode response: %w", op, err)
	}
	return nil
}

// classify maps an http.Client.Do failure onto the error taxonomy.
func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Op: op, Err: err}
	}
	return &TransportError{Op: op, Err: err}
}
