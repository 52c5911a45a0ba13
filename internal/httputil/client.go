package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// StatusError is returned for upstream responses that count against the
// circuit breaker (429 after retries and 5xx).
type StatusError struct {
	Host string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d", e.Host, e.Code)
}

// ClientOptions configures a Client.
type ClientOptions struct {
	Timeout    time.Duration
	UserAgent  string
	RPS        float64
	Burst      int
	MaxRetries int
}

// Client wraps http.Client with per-host rate limiting, a per-host circuit
// breaker and retries on HTTP 429.
type Client struct {
	HTTP       *http.Client
	limiter    *Limiter
	userAgent  string
	maxRetries int

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewClient creates a Client.
func NewClient(opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "paperpulse/1.0"
	}
	return &Client{
		HTTP:       &http.Client{Timeout: opts.Timeout},
		limiter:    NewLimiter(opts.RPS, opts.Burst),
		userAgent:  opts.UserAgent,
		maxRetries: opts.MaxRetries,
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (c *Client) breaker(host string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.breakers[host]; ok {
		return b
	}
	st := gobreaker.Settings{
		Name:     host,
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.5
		},
	}
	b := gobreaker.NewCircuitBreaker(st)
	c.breakers[host] = b
	return b
}

// Do sends req. Responses with status 429 (after retries) or 5xx are closed
// and reported as *StatusError; other responses are returned to the caller,
// who must close the body.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	host := req.URL.Host
	if err := c.limiter.Wait(ctx, host); err != nil {
		return nil, err
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	out, err := c.breaker(host).Execute(func() (any, error) {
		resp, err := DoWithRetry(ctx, c.HTTP, req, c.maxRetries)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil, &StatusError{Host: host, Code: resp.StatusCode}
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*http.Response), nil
}

// BreakerState reports the circuit state for host.
func (c *Client) BreakerState(host string) gobreaker.State {
	return c.breaker(host).State()
}
