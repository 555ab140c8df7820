// Package transport performs the single outbound HTTP exchange behind every
// adapter call and maps its failures onto the domain error taxonomy.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/davidbz/switchboard/internal/domain"
	"github.com/davidbz/switchboard/internal/observability"
)

const (
	defaultTimeout    = 60 * time.Second
	dialTimeout       = 10 * time.Second
	maxErrorBodyBytes = 64 * 1024
)

// ErrIdleTimeout is returned by a streaming body that received no bytes
// within the timeout.
var ErrIdleTimeout = errors.New("stream idle timeout")

// Config contains outbound HTTP settings.
type Config struct {
	Timeout int `env:"UPSTREAM_TIMEOUT" envDefault:"60"` // seconds
}

// Client wraps the HTTP clients used for vendor calls. Single-shot calls are
// bounded end to end by the timeout; streaming calls are bounded until the
// response headers arrive and then by the same timeout between reads.
type Client struct {
	complete *http.Client
	stream   *http.Client
	idle     time.Duration
}

// NewClient creates a new vendor HTTP client.
func NewClient(cfg Config) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: dialTimeout,
		}).DialContext,
		TLSHandshakeTimeout:   dialTimeout,
		ResponseHeaderTimeout: timeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}

	return &Client{
		complete: &http.Client{Transport: transport, Timeout: timeout},
		stream:   &http.Client{Transport: transport},
		idle:     timeout,
	}
}

// Request describes one outbound POST.
type Request struct {
	Provider string
	URL      string
	Headers  http.Header
	Body     any
	Stream   bool
}

// Do sends the request and returns the response when the status is 2xx.
// Network failures and other statuses become *domain.TransportError. The
// caller owns the returned body.
func (c *Client) Do(ctx context.Context, req Request) (*http.Response, error) {
	payload, err := json.Marshal(req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range req.Headers {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	if httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	client := c.complete
	if req.Stream {
		client = c.stream
	}

	observability.FromContext(ctx).Debug("calling upstream",
		observability.String("adapter", req.Provider),
		observability.Bool("stream", req.Stream),
		observability.Int("body_bytes", len(payload)),
	)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &domain.TransportError{Provider: req.Provider, Err: err}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &domain.TransportError{
			Provider:   req.Provider,
			StatusCode: resp.StatusCode,
			Body:       string(bytes.TrimSpace(body)),
		}
	}

	if req.Stream {
		resp.Body = newIdleBody(resp.Body, c.idle)
	}

	return resp, nil
}

// idleBody closes the underlying body when no read succeeds within timeout,
// which unblocks a pending Read with ErrIdleTimeout.
type idleBody struct {
	body    io.ReadCloser
	timeout time.Duration
	timer   *time.Timer
	expired atomic.Bool
}

func newIdleBody(body io.ReadCloser, timeout time.Duration) *idleBody {
	b := &idleBody{body: body, timeout: timeout}
	b.timer = time.AfterFunc(timeout, func() {
		b.expired.Store(true)
		_ = b.body.Close()
	})
	return b
}

func (b *idleBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	if b.expired.Load() {
		return n, fmt.Errorf("%w after %s", ErrIdleTimeout, b.timeout)
	}
	if n > 0 {
		b.timer.Reset(b.timeout)
	}
	return n, err
}

func (b *idleBody) Close() error {
	b.timer.Stop()
	return b.body.Close()
}

// ReadBody drains and closes a response body. Read failures are transport
// failures.
func ReadBody(resp *http.Response, provider string) ([]byte, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{Provider: provider, Err: err}
	}
	return body, nil
}

// Decode unmarshals a 2xx body into v. Shape mismatches are decode failures.
func Decode(body []byte, provider string, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return &domain.DecodeError{Provider: provider, Err: err}
	}
	return nil
}
