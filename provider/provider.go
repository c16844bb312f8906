// Package provider implements the credential lifecycle engine shared by
// every secrets backend: cache lookup and populate, retried fetch, secret
// parsing, authenticator construction and auto-refresh wrapping.
//
// Every failure mode degrades to a nil Authenticator so the host HTTP
// client proceeds unauthenticated instead of having its request pipeline
// broken by the credential layer. Failures are logged, never thrown.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/halcyonlabs/secretsauth/internal/cache"
	"github.com/halcyonlabs/secretsauth/internal/config"
	"github.com/halcyonlabs/secretsauth/internal/hostallow"
	"github.com/halcyonlabs/secretsauth/internal/retry"
	"github.com/halcyonlabs/secretsauth/internal/secret"
)

// Backend is the secret-fetch contract a concrete secrets backend
// implements. A backend is a thin adapter: it fetches raw secret material
// and reports its resolved configuration, nothing more.
type Backend interface {
	// Name identifies the backend in the enablement flag and cache keys.
	Name() string

	// CacheKey returns the backend-specific cache key fragment. The full
	// key is namespaced with the backend name, so provider instances can
	// share one process-wide cache without collision.
	CacheKey() string

	// TTL is how long fetched secret material may be served from cache.
	TTL() time.Duration

	// AuthMode is "bearer" or "basic".
	AuthMode() string

	// FetchSecret retrieves the raw secret material. Permanent failures
	// (not found, access denied, misconfiguration) must be marked with
	// Permanent so they are not retried.
	FetchSecret(ctx context.Context) (string, error)
}

// Auth modes understood by the provider.
const (
	AuthModeBearer = "bearer"
	AuthModeBasic  = "basic"
)

var (
	metricsOnce    sync.Once
	backendFetches metric.Int64Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter("github.com/halcyonlabs/secretsauth/provider")

		var err error
		backendFetches, err = meter.Int64Counter(
			"secretsauth.backend.fetches",
			metric.WithDescription("Secret backend fetches by outcome"),
		)
		if err != nil {
			otel.Handle(err)
		}
	})
}

func recordFetch(ctx context.Context, name, status string) {
	if backendFetches == nil {
		return
	}
	backendFetches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", name),
		attribute.String("fetch.status", status),
	))
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as a permanent failure that retrying cannot fix.
// Backends wrap not-found, access-denied and misconfiguration errors so
// the retry loop fails fast on them.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err carries the permanent marker.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// ConfigSource supplies the current configuration. The default reads the
// environment on every call, matching the dynamic enablement semantics of
// the settings surface; tests inject a fixed Config.
type ConfigSource func(context.Context) (config.Config, error)

// Base orchestrates an authentication attempt for one backend. Construct
// with New; the zero value is not usable.
type Base struct {
	backend Backend
	cache   *cache.Instrumented
	store   *cache.TTLCache
	policy  retry.Policy
	cfg     ConfigSource
}

// Option configures a Base.
type Option func(*Base)

// WithCache replaces the process-wide default cache.
func WithCache(c *cache.TTLCache) Option {
	return func(b *Base) { b.store = c }
}

// WithRetryPolicy replaces the default fetch retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(b *Base) { b.policy = p }
}

// WithConfigSource replaces the environment-backed configuration source.
func WithConfigSource(src ConfigSource) Option {
	return func(b *Base) { b.cfg = src }
}

// New creates a provider for the given backend.
func New(backend Backend, opts ...Option) *Base {
	b := &Base{
		backend: backend,
		store:   cache.Default(),
		cfg: func(ctx context.Context) (config.Config, error) {
			return config.Load(ctx)
		},
	}

	for _, opt := range opts {
		opt(b)
	}

	initMetrics()
	b.cache = cache.NewInstrumented(b.store, backend.Name())
	return b
}

// Name returns the backend name.
func (b *Base) Name() string {
	return b.backend.Name()
}

// GetAuth returns an auto-refreshing Authenticator, or nil when the
// backend is disabled or credentials cannot be produced. It never returns
// an error: failures are logged and degrade to nil.
func (b *Base) GetAuth(ctx context.Context) *AutoRefresh {
	return b.GetRequestAuth(ctx, "")
}

// GetRequestAuth is GetAuth gated by the host allowlist: when targetURL is
// non-empty and an allowlist is configured, a destination outside the
// allowlist receives nil without any backend I/O.
func (b *Base) GetRequestAuth(ctx context.Context, targetURL string) *AutoRefresh {
	cfg, err := b.cfg(ctx)
	if err != nil {
		log.Warn().Err(err).Str("provider", b.Name()).Msg("configuration load failed")
		return nil
	}

	if !cfg.IsEnabled(b.backend.Name()) {
		return nil
	}

	if targetURL != "" {
		if !hostallow.FromList(cfg.AllowedHosts).Allowed(targetURL) {
			// debug only: error content must not reveal the allowlist
			log.Debug().Str("provider", b.Name()).Msg("host not allowed, no credentials injected")
			return nil
		}
	}

	inner, err := b.buildAuthenticator(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Str("provider", b.Name()).Msg("credential resolution failed")
		return nil
	}

	return newAutoRefresh(inner, b)
}

// Credential fetches (through the cache) and parses the secret. The
// diagnostics CLI uses this to report on the resolved credential without
// constructing an authenticator.
func (b *Base) Credential(ctx context.Context) (secret.Credential, error) {
	raw, err := b.rawSecret(ctx)
	if err != nil {
		return secret.Credential{}, err
	}
	return secret.Parse(raw)
}

// InvalidateCache drops this provider's cache entry, forcing the next
// lookup to hit the backend.
func (b *Base) InvalidateCache(ctx context.Context) {
	b.cache.Delete(ctx, b.fullCacheKey())
}

func (b *Base) fullCacheKey() string {
	return fmt.Sprintf("%s:%s", b.backend.Name(), b.backend.CacheKey())
}

// rawSecret serves the raw secret from cache, fetching through the retry
// loop on a miss. Concurrent misses for one key may each fetch; the fetch
// is an idempotent read, so last-write-wins on the cache is acceptable.
func (b *Base) rawSecret(ctx context.Context) (string, error) {
	key := b.fullCacheKey()

	if raw, ok := b.cache.Get(ctx, key); ok {
		return raw, nil
	}

	raw, err := retry.DoValue(func() (string, error) {
		return b.backend.FetchSecret(ctx)
	}, b.policy, func(err error) bool {
		return !IsPermanent(err)
	})
	if err != nil {
		recordFetch(ctx, b.Name(), "failure")
		return "", fmt.Errorf("fetching secret from %s: %w", b.Name(), err)
	}
	recordFetch(ctx, b.Name(), "success")

	b.cache.Set(ctx, key, raw, b.backend.TTL())
	return raw, nil
}

// buildAuthenticator runs the fetch-parse-build pipeline that both the
// initial GetAuth path and the auto-refresh retry path share.
func (b *Base) buildAuthenticator(ctx context.Context, cfg config.Config) (Authenticator, error) {
	cred, err := b.Credential(ctx)
	if err != nil {
		return nil, err
	}

	return newAuthenticator(cred, b.backend.AuthMode(), cfg)
}

// refreshAuthenticator is the auto-refresh hook: bust the cache entry,
// refetch and rebuild. A nil result means refresh failed and the original
// response should stand.
func (b *Base) refreshAuthenticator(ctx context.Context) (Authenticator, error) {
	cfg, err := b.cfg(ctx)
	if err != nil {
		return nil, err
	}

	b.InvalidateCache(ctx)
	return b.buildAuthenticator(ctx, cfg)
}
