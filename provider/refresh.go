package provider

import (
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"
)

// RetriedHeader marks a request as the single auto-refresh retry. A
// response to a marked request is returned as-is even when it is another
// auth failure, so one rejected request never triggers more than one
// refresh round trip.
const RetriedHeader = "X-MLFSA-Retried"

// AutoRefresh wraps an Authenticator with 401/403 recovery. As an
// Authenticator it delegates to the wrapped credential; as an
// http.RoundTripper it applies credentials, observes the response and on
// an auth failure busts the cache, refetches, and replays the request
// exactly once with fresh credentials.
type AutoRefresh struct {
	mu    sync.Mutex
	inner Authenticator
	base  *Base

	// next is the transport requests are sent on. Defaults to
	// http.DefaultTransport.
	next http.RoundTripper
}

func newAutoRefresh(inner Authenticator, base *Base) *AutoRefresh {
	return &AutoRefresh{
		inner: inner,
		base:  base,
		next:  http.DefaultTransport,
	}
}

// Apply sets the credential header on req.
func (a *AutoRefresh) Apply(req *http.Request) error {
	a.mu.Lock()
	inner := a.inner
	a.mu.Unlock()
	return inner.Apply(req)
}

// Base sets the underlying transport used for outgoing requests and
// returns a for chaining. A nil rt keeps http.DefaultTransport.
func (a *AutoRefresh) Base(rt http.RoundTripper) *AutoRefresh {
	if rt != nil {
		a.next = rt
	}
	return a
}

// RoundTrip implements http.RoundTripper. Credentials are applied to a
// clone of req, the original is never mutated.
func (a *AutoRefresh) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	if err := a.Apply(out); err != nil {
		return nil, err
	}

	resp, err := a.next.RoundTrip(out)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
		return resp, nil
	}
	if out.Header.Get(RetriedHeader) == "true" {
		return resp, nil
	}

	retried := a.retryWithFreshCredentials(req)
	if retried == nil {
		return resp, nil
	}

	drain(resp)
	return retried, nil
}

// retryWithFreshCredentials runs the refresh-and-replay path. Any failure
// returns nil and the caller keeps the original auth-failure response.
func (a *AutoRefresh) retryWithFreshCredentials(req *http.Request) *http.Response {
	ctx := req.Context()

	fresh, err := a.base.refreshAuthenticator(ctx)
	if err != nil {
		log.Warn().Err(err).Str("provider", a.base.Name()).Msg("credential refresh failed, keeping original response")
		return nil
	}

	a.mu.Lock()
	a.inner = fresh
	a.mu.Unlock()

	out, err := replayableClone(req)
	if err != nil {
		log.Debug().Err(err).Str("provider", a.base.Name()).Msg("request not replayable, keeping original response")
		return nil
	}
	out.Header.Set(RetriedHeader, "true")
	if err := fresh.Apply(out); err != nil {
		log.Warn().Err(err).Str("provider", a.base.Name()).Msg("applying refreshed credential failed, keeping original response")
		return nil
	}

	resp, err := a.next.RoundTrip(out)
	if err != nil {
		log.Warn().Err(err).Str("provider", a.base.Name()).Msg("retry after credential refresh failed")
		return nil
	}
	return resp
}

// replayableClone copies req, rewinding the body via GetBody when one is
// present. A request with an unrewindable body cannot be replayed.
func replayableClone(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return out, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	out.Body = body
	return out, nil
}

// drain consumes and closes a superseded response body so the underlying
// connection can be reused.
func drain(resp *http.Response) {
	if resp.Body != nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}
