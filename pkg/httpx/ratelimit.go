package httpx

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/aussiebroadwan/prepadmin/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines the rate limiting parameters.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window.
	// Zero disables limiting.
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows for temporary bursts above the rate limit
	Burst int
}

// OutboundLimit keeps bulk CLI operations (e.g. deleting a page of questions)
// from hammering the backend.
// Override with: RATELIMIT_OUTBOUND_REQUESTS, RATELIMIT_OUTBOUND_WINDOW_SEC, RATELIMIT_OUTBOUND_BURST
var OutboundLimit = RateLimitConfig{
	RequestsPerWindow: 600,
	Window:            time.Minute,
	Burst:             20,
}

// ParseRateLimitFromEnv reads rate limit configuration from environment variables.
// Environment variables follow the pattern: RATELIMIT_{prefix}_{field}
func ParseRateLimitFromEnv(prefix string, defaultConfig RateLimitConfig) RateLimitConfig {
	config := defaultConfig

	if val := os.Getenv("RATELIMIT_" + prefix + "_REQUESTS"); val != "" {
		if requests, err := strconv.Atoi(val); err == nil && requests >= 0 {
			config.RequestsPerWindow = requests
		}
	}

	if val := os.Getenv("RATELIMIT_" + prefix + "_WINDOW_SEC"); val != "" {
		if windowSec, err := strconv.Atoi(val); err == nil && windowSec > 0 {
			config.Window = time.Duration(windowSec) * time.Second
		}
	}

	if val := os.Getenv("RATELIMIT_" + prefix + "_BURST"); val != "" {
		if burst, err := strconv.Atoi(val); err == nil && burst > 0 {
			config.Burst = burst
		}
	}

	return config
}

// RateLimitedTransport waits for a token before each request. Waiting honours
// the request context, so a cancelled caller never blocks here.
type RateLimitedTransport struct {
	Base    http.RoundTripper
	limiter *rate.Limiter
}

// NewRateLimitedTransport wraps base. A config with zero requests returns base
// unchanged.
func NewRateLimitedTransport(base http.RoundTripper, config RateLimitConfig) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if config.RequestsPerWindow <= 0 || config.Window <= 0 {
		return base
	}

	ratePerSecond := float64(config.RequestsPerWindow) / config.Window.Seconds()
	burst := max(config.Burst, 1)

	return &RateLimitedTransport{
		Base:    base,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

func (t *RateLimitedTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	ctx := r.Context()

	if !t.limiter.Allow() {
		slogx.FromContext(ctx).Debug("outbound rate limit reached, waiting",
			"path", r.URL.Path,
		)
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	return t.Base.RoundTrip(r)
}
