package live

import (
	"net/http"
	"time"

	"github.com/okian/botpulse/pkg/logger"
)

// Option configures a Hub.
type Option func(*Hub)

// WithSendBuffer sets how many messages may wait for a client before it is dropped.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithPongWait sets how long a client may stay silent. Pings go out at 9/10 of it.
func WithPongWait(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pongWait = d
			h.pingPeriod = d * 9 / 10
		}
	}
}

// WithCheckOrigin sets the origin policy of the upgrader. The default accepts any origin.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(h *Hub) {
		if fn != nil {
			h.upgrader.CheckOrigin = fn
		}
	}
}

// WithLogger sets the hub logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}
