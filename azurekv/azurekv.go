// Package azurekv fetches MLflow credentials from Azure Key Vault using
// the default Azure credential chain.
package azurekv

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/sethvargo/go-envconfig"

	"github.com/halcyonlabs/secretsauth/internal/config"
	"github.com/halcyonlabs/secretsauth/internal/secret"
	"github.com/halcyonlabs/secretsauth/provider"
)

// Name is the backend identifier used in the enablement flag.
const Name = "azure-key-vault"

// secretGetter is the slice of the Key Vault client the backend uses.
type secretGetter interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// Backend implements provider.Backend against Azure Key Vault.
type Backend struct {
	lookup envconfig.Lookuper

	mu        sync.Mutex
	client    secretGetter
	clientURL string

	// newClient builds the Key Vault client, injectable for tests.
	newClient func(vaultURL string) (secretGetter, error)
}

// Option configures a Backend.
type Option func(*Backend)

// WithLookuper replaces the environment lookuper, for tests.
func WithLookuper(l envconfig.Lookuper) Option {
	return func(b *Backend) { b.lookup = l }
}

// WithClient replaces the Key Vault client, for tests.
func WithClient(client secretGetter) Option {
	return func(b *Backend) {
		b.newClient = func(string) (secretGetter, error) {
			return client, nil
		}
	}
}

// New creates the Azure Key Vault backend. The credential chain is
// resolved lazily on the first fetch.
func New(opts ...Option) *Backend {
	b := &Backend{
		lookup:    envconfig.OsLookuper(),
		newClient: defaultClient,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func defaultClient(vaultURL string) (secretGetter, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("resolving Azure credentials: %w", err)
	}

	client, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("creating key vault client: %w", err)
	}
	return client, nil
}

func (b *Backend) settings() config.AzureConfig {
	var c config.AzureConfig
	_ = envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   &c,
		Lookuper: b.lookup,
	})
	return c
}

// Name implements provider.Backend.
func (b *Backend) Name() string { return Name }

// CacheKey implements provider.Backend.
func (b *Backend) CacheKey() string {
	if name := b.settings().SecretName; name != "" {
		return name
	}
	return "default"
}

// TTL implements provider.Backend.
func (b *Backend) TTL() time.Duration {
	return time.Duration(secret.ValidateTTL(b.settings().TTLSeconds, secret.DefaultTTLSeconds)) * time.Second
}

// AuthMode implements provider.Backend.
func (b *Backend) AuthMode() string { return b.settings().AuthMode }

// FetchSecret implements provider.Backend. The latest secret version is
// fetched; pinning a version is not supported.
func (b *Backend) FetchSecret(ctx context.Context) (string, error) {
	cfg := b.settings()

	if cfg.VaultURL == "" {
		return "", provider.Permanent(errors.New("AZURE_KEY_VAULT_URL is not set"))
	}
	if cfg.SecretName == "" {
		return "", provider.Permanent(errors.New("MLFLOW_AZURE_SECRET_NAME is not set"))
	}

	client, err := b.vaultClient(cfg.VaultURL)
	if err != nil {
		return "", provider.Permanent(err)
	}

	resp, err := client.GetSecret(ctx, cfg.SecretName, "", nil)
	if err != nil {
		return "", classify(fmt.Errorf("reading %s: %w", cfg.SecretName, err))
	}

	if resp.Value == nil || *resp.Value == "" {
		return "", provider.Permanent(fmt.Errorf("secret %s has no value", cfg.SecretName))
	}
	return *resp.Value, nil
}

func (b *Backend) vaultClient(vaultURL string) (secretGetter, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client != nil && b.clientURL == vaultURL {
		return b.client, nil
	}

	client, err := b.newClient(vaultURL)
	if err != nil {
		return nil, err
	}

	b.client = client
	b.clientURL = vaultURL
	return client, nil
}

// classify marks non-retriable Key Vault failures as permanent. Missing
// secrets and denied access do not heal with retries; throttling (429)
// and 5xx faults stay retriable.
func classify(err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return provider.Permanent(err)
		}
	}
	return err
}
