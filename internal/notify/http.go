package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sweeney/meal-sensor/internal/logic"
)

// UserAgent identifies the sensor to the collector.
const UserAgent = "meal-sensor"

// maxDrain caps how much of a response body is read and discarded.
const maxDrain = 64 << 10

// HTTPNotifier signals an event with GET <endpoint>/<event>, e.g. GET /mealStart.
// The response body carries no meaning and is discarded.
type HTTPNotifier struct {
	base   *url.URL
	client *http.Client
}

// NewHTTPNotifier creates a notifier for the collector at endpoint ("host:port" or a full URL).
// timeout bounds the whole exchange, including the response read.
func NewHTTPNotifier(endpoint string, timeout time.Duration) (*HTTPNotifier, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("empty collector endpoint")
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse collector endpoint: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("collector endpoint %q has no host", endpoint)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &HTTPNotifier{
		base:   u,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Notify sends the event. Connection, timeout and non-2xx responses are returned as errors.
func (n *HTTPNotifier) Notify(ctx context.Context, event logic.Event) error {
	target := n.base.JoinPath(string(event.Type)).String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", target, err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain)); err != nil {
		return fmt.Errorf("drain response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("GET %s: unexpected status %s", target, resp.Status)
	}
	return nil
}

// Endpoint returns the collector base URL.
func (n *HTTPNotifier) Endpoint() string {
	return n.base.String()
}
