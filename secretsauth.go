// Package secretsauth injects credentials from a secrets manager into
// outgoing MLflow HTTP requests. Backends for HashiCorp Vault, AWS Secrets
// Manager and Azure Key Vault are selected by the
// MLFLOW_SECRETS_AUTH_ENABLE environment variable; the first enabled
// backend in priority order wins.
//
// Typical use replaces an http.Client transport:
//
//	client := &http.Client{Transport: secretsauth.NewTransport(nil)}
package secretsauth

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/halcyonlabs/secretsauth/awssm"
	"github.com/halcyonlabs/secretsauth/azurekv"
	"github.com/halcyonlabs/secretsauth/internal/config"
	"github.com/halcyonlabs/secretsauth/provider"
	"github.com/halcyonlabs/secretsauth/vault"
)

// Version is the library version reported by the diagnostics CLI.
const Version = "0.2.0"

// Factory resolves the active provider. Backends are consulted in a fixed
// priority order: Vault, then AWS Secrets Manager, then Azure Key Vault.
// Provider instances are memoized so backend clients are reused, but
// enablement is re-read on every resolution.
type Factory struct {
	mu        sync.Mutex
	providers map[string]*provider.Base
	backends  []provider.Backend
	provOpts  []provider.Option
	cfg       provider.ConfigSource
}

// Option configures a Factory.
type Option func(*Factory)

// WithBackends replaces the default backend priority list, for tests.
func WithBackends(backends ...provider.Backend) Option {
	return func(f *Factory) { f.backends = backends }
}

// WithConfigSource replaces the environment-backed configuration source
// for the factory and every provider it constructs.
func WithConfigSource(src provider.ConfigSource) Option {
	return func(f *Factory) { f.cfg = src }
}

// WithProviderOptions appends options applied to every constructed
// provider, for injecting caches and retry policies in tests.
func WithProviderOptions(opts ...provider.Option) Option {
	return func(f *Factory) { f.provOpts = append(f.provOpts, opts...) }
}

// NewFactory creates a factory with the standard backends.
func NewFactory(opts ...Option) *Factory {
	f := &Factory{
		providers: make(map[string]*provider.Base),
		backends: []provider.Backend{
			vault.New(),
			awssm.New(),
			azurekv.New(),
		},
		cfg: func(ctx context.Context) (config.Config, error) {
			return config.Load(ctx)
		},
	}

	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Provider returns the highest-priority enabled provider, or nil when no
// backend is enabled.
func (f *Factory) Provider(ctx context.Context) *provider.Base {
	cfg, err := f.cfg(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("configuration load failed")
		return nil
	}

	for _, backend := range f.backends {
		if cfg.IsEnabled(backend.Name()) {
			return f.memoized(backend)
		}
	}
	return nil
}

// Backends returns the backend priority list. The diagnostics CLI uses it
// to report enablement per backend.
func (f *Factory) Backends() []provider.Backend {
	return f.backends
}

func (f *Factory) memoized(backend provider.Backend) *provider.Base {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.providers[backend.Name()]; ok {
		return p
	}

	opts := append([]provider.Option{provider.WithConfigSource(f.cfg)}, f.provOpts...)
	p := provider.New(backend, opts...)
	f.providers[backend.Name()] = p
	return p
}

// GetAuth resolves the active provider and returns its authenticator, or
// nil when no backend is enabled or credentials cannot be produced.
func (f *Factory) GetAuth(ctx context.Context) *provider.AutoRefresh {
	if p := f.Provider(ctx); p != nil {
		return p.GetAuth(ctx)
	}
	return nil
}

// GetRequestAuth is GetAuth gated by the host allowlist for targetURL.
func (f *Factory) GetRequestAuth(ctx context.Context, targetURL string) *provider.AutoRefresh {
	if p := f.Provider(ctx); p != nil {
		return p.GetRequestAuth(ctx, targetURL)
	}
	return nil
}

// Reset drops memoized providers so configuration changes take full
// effect, primarily for tests.
func (f *Factory) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providers = make(map[string]*provider.Base)
}

var defaultFactory = NewFactory()

// GetAuth resolves an authenticator from the default factory.
func GetAuth(ctx context.Context) *provider.AutoRefresh {
	return defaultFactory.GetAuth(ctx)
}

// GetRequestAuth resolves an authenticator from the default factory,
// gated by the host allowlist for targetURL.
func GetRequestAuth(ctx context.Context, targetURL string) *provider.AutoRefresh {
	return defaultFactory.GetRequestAuth(ctx, targetURL)
}

// Reset drops the default factory's memoized providers.
func Reset() {
	defaultFactory.Reset()
}
