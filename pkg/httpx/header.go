package httpx

import "net/http"

// TunnelHeader makes development tunnels (ngrok) skip their browser warning
// interstitial, which would otherwise replace JSON responses with HTML.
const (
	TunnelHeader      = "ngrok-skip-browser-warning"
	TunnelHeaderValue = "true"
)

// HeaderTransport sets fixed headers on every request that does not already
// carry them.
type HeaderTransport struct {
	Base    http.RoundTripper
	Headers map[string]string
}

func (t *HeaderTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	if len(t.Headers) == 0 {
		return base.RoundTrip(r)
	}

	r = r.Clone(r.Context())
	for key, value := range t.Headers {
		if r.Header.Get(key) == "" {
			r.Header.Set(key, value)
		}
	}

	return base.RoundTrip(r)
}
