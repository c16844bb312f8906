package secretsauth

import "net/http"

// Transport is an http.RoundTripper that resolves credentials per request.
// Requests to hosts outside the configured allowlist, or made while no
// backend is enabled, pass through to the base transport untouched.
type Transport struct {
	factory *Factory
	base    http.RoundTripper
}

// NewTransport wraps base with credential injection from the default
// factory. A nil base means http.DefaultTransport.
func NewTransport(base http.RoundTripper) *Transport {
	return defaultFactory.NewTransport(base)
}

// NewTransport wraps base with credential injection from this factory.
func (f *Factory) NewTransport(base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{factory: f, base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	auth := t.factory.GetRequestAuth(req.Context(), req.URL.String())
	if auth == nil {
		return t.base.RoundTrip(req)
	}
	return auth.Base(t.base).RoundTrip(req)
}
