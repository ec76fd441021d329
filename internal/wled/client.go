package wled

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultPort     = 80
	maxResponseSize = 1 << 20
)

// ErrorKind classifies a failed device call.
type ErrorKind string

const (
	ErrorHTTP      ErrorKind = "http"
	ErrorTimeout   ErrorKind = "timeout"
	ErrorRefused   ErrorKind = "refused"
	ErrorTransport ErrorKind = "transport"
)

// DeviceError is a normalized device call failure.
type DeviceError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *DeviceError) Error() string {
	switch e.Kind {
	case ErrorHTTP:
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	case ErrorTimeout:
		return "timeout"
	case ErrorRefused:
		return "connection refused"
	default:
		if e.Err != nil {
			return e.Err.Error()
		}
		return "transport error"
	}
}

func (e *DeviceError) Unwrap() error { return e.Err }

var ErrEmptyTarget = errors.New("wled: empty target")

// Client calls the WLED JSON API over plain HTTP.
type Client struct {
	client  *http.Client
	timeout time.Duration
	port    int
	limiter *rate.Limiter
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithRequestTimeout bounds every device call.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithDefaultPort sets the port used when a target has none.
func WithDefaultPort(port int) Option {
	return func(c *Client) {
		if port > 0 && port <= 65535 {
			c.port = port
		}
	}
}

// WithRateLimit paces device calls to at most limit per second.
func WithRateLimit(limit float64, burst int) Option {
	return func(c *Client) {
		if limit > 0 {
			if burst < 1 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(limit), burst)
		}
	}
}

// NewClient constructs a device client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		client:  &http.Client{},
		timeout: defaultTimeout,
		port:    defaultPort,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do issues req against target and returns the raw response body on 2xx.
// Failures are returned as *DeviceError.
func (c *Client) Do(ctx context.Context, target string, req Request) ([]byte, error) {
	if c == nil {
		return nil, errors.New("wled: nil client")
	}
	if strings.TrimSpace(target) == "" {
		return nil, ErrEmptyTarget
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, classify(err)
		}
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.BaseURL(target)+req.Path, body)
	if err != nil {
		return nil, &DeviceError{Kind: ErrorTransport, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, classify(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &DeviceError{Kind: ErrorHTTP, StatusCode: resp.StatusCode}
	}
	return data, nil
}

// BaseURL returns http://host[:port] for target.
func (c *Client) BaseURL(target string) string {
	target = strings.TrimSpace(target)
	if _, _, err := net.SplitHostPort(target); err == nil {
		return "http://" + target
	}
	host := strings.Trim(target, "[]")
	if c.port == defaultPort {
		if strings.Contains(host, ":") {
			return "http://[" + host + "]"
		}
		return "http://" + host
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(c.port))
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var devErr *DeviceError
	if errors.As(err, &devErr) {
		return devErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &DeviceError{Kind: ErrorTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &DeviceError{Kind: ErrorTimeout, Err: err}
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return &DeviceError{Kind: ErrorRefused, Err: err}
	}
	return &DeviceError{Kind: ErrorTransport, Err: err}
}
