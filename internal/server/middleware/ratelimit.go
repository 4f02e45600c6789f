package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit returns an HTTP middleware that limits requests per IP address
// to the specified number per minute. Uses a sliding window algorithm.
// Applied to the public validation endpoints to blunt key-guessing loops.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}

// RateLimitByDevice returns an HTTP middleware that limits requests per
// device fingerprint via the X-Device-ID header, falling back to the remote
// IP when the header is absent. Catches injector clients that retry from a
// single box behind a shared NAT.
func RateLimitByDevice(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if id := r.Header.Get("X-Device-ID"); id != "" {
				return id, nil
			}
			return httprate.KeyByIP(r)
		}),
	)
}
