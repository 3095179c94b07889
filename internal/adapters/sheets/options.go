package sheets

import (
	"net/http"
	"time"

	"github.com/okian/botpulse/pkg/logger"
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithAPIKey sets the API key sent as the key query parameter.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithBaseURL overrides https://sheets.googleapis.com.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.baseURL = base
		}
	}
}

// WithProxies adds proxy routes after the direct one. A template containing
// {url} gets the escaped target substituted; any other template is used as a
// prefix.
func WithProxies(templates ...string) Option {
	return func(c *Client) {
		for _, t := range templates {
			if t != "" {
				c.routes = append(c.routes, proxyRoute(t))
			}
		}
	}
}

// WithoutDirect drops the direct route so every call goes through a proxy.
func WithoutDirect() Option {
	return func(c *Client) {
		c.noDirect = true
	}
}

// WithMaxAttempts sets the total number of tries per call.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBackoff sets the first retry delay and the cap.
func WithBackoff(initial, maxDelay time.Duration) Option {
	return func(c *Client) {
		if initial > 0 {
			c.initialBackoff = initial
		}
		if maxDelay > 0 {
			c.maxBackoff = maxDelay
		}
	}
}

// WithMaxRetryAfter caps how long a Retry-After header can make the client wait.
func WithMaxRetryAfter(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.maxRetryAfter = d
		}
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}
