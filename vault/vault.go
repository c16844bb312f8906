// Package vault fetches MLflow credentials from a HashiCorp Vault KV v2
// secret, authenticating with a static token or an AppRole.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	vaultapi "github.com/hashicorp/vault/api"
	"github.com/sethvargo/go-envconfig"

	"github.com/halcyonlabs/secretsauth/internal/config"
	"github.com/halcyonlabs/secretsauth/internal/secret"
	"github.com/halcyonlabs/secretsauth/provider"
)

// Name is the backend identifier used in the enablement flag.
const Name = "vault"

const defaultAppRoleMount = "approle"

// Backend implements provider.Backend against Vault. Settings are read
// from the environment on every call so runtime reconfiguration is picked
// up without a restart; the authenticated client is reused until its
// settings change.
type Backend struct {
	lookup envconfig.Lookuper

	mu         sync.Mutex
	client     *vaultapi.Client
	clientCfg  config.VaultConfig
	haveClient bool
}

// Option configures a Backend.
type Option func(*Backend)

// WithLookuper replaces the environment lookuper, for tests.
func WithLookuper(l envconfig.Lookuper) Option {
	return func(b *Backend) { b.lookup = l }
}

// New creates the Vault backend.
func New(opts ...Option) *Backend {
	b := &Backend{lookup: envconfig.OsLookuper()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) settings() config.VaultConfig {
	var c config.VaultConfig
	// settings fall back to zero values on a malformed environment; the
	// fetch path reports the missing pieces with usable errors
	_ = envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   &c,
		Lookuper: b.lookup,
	})
	return c
}

// Name implements provider.Backend.
func (b *Backend) Name() string { return Name }

// CacheKey implements provider.Backend. Distinct secret paths must not
// share cache entries.
func (b *Backend) CacheKey() string {
	if path := b.settings().SecretPath; path != "" {
		return path
	}
	return "default"
}

// TTL implements provider.Backend.
func (b *Backend) TTL() time.Duration {
	return time.Duration(secret.ValidateTTL(b.settings().TTLSeconds, secret.DefaultTTLSeconds)) * time.Second
}

// AuthMode implements provider.Backend.
func (b *Backend) AuthMode() string { return b.settings().AuthMode }

// FetchSecret implements provider.Backend. The KV v2 secret's data map is
// returned as a JSON document for the credential parser.
func (b *Backend) FetchSecret(ctx context.Context) (string, error) {
	cfg := b.settings()

	if cfg.Address == "" {
		return "", provider.Permanent(errors.New("VAULT_ADDR is not set"))
	}
	if cfg.SecretPath == "" {
		return "", provider.Permanent(errors.New("MLFLOW_VAULT_SECRET_PATH is not set"))
	}

	client, err := b.authenticatedClient(ctx, cfg)
	if err != nil {
		return "", err
	}

	mount, rel := splitKVPath(cfg.SecretPath)
	kv, err := client.KVv2(mount).Get(ctx, rel)
	if err != nil {
		return "", classify(fmt.Errorf("reading %s: %w", cfg.SecretPath, err))
	}

	raw, err := json.Marshal(kv.Data)
	if err != nil {
		return "", provider.Permanent(fmt.Errorf("encoding secret data: %w", err))
	}
	return string(raw), nil
}

// authenticatedClient returns a Vault client logged in for cfg, rebuilding
// only when the relevant settings changed since the last call.
func (b *Backend) authenticatedClient(ctx context.Context, cfg config.VaultConfig) (*vaultapi.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.haveClient && b.clientCfg == cfg {
		return b.client, nil
	}

	apiCfg := vaultapi.DefaultConfig()
	apiCfg.Address = cfg.Address

	client, err := vaultapi.NewClient(apiCfg)
	if err != nil {
		return nil, provider.Permanent(fmt.Errorf("creating vault client: %w", err))
	}

	switch {
	case cfg.Token != "":
		client.SetToken(cfg.Token)

	case cfg.RoleID != "" && cfg.SecretID != "":
		login, err := client.Logical().WriteWithContext(ctx,
			fmt.Sprintf("auth/%s/login", defaultAppRoleMount),
			map[string]interface{}{
				"role_id":   cfg.RoleID,
				"secret_id": cfg.SecretID,
			})
		if err != nil {
			return nil, classify(fmt.Errorf("approle login: %w", err))
		}
		if login == nil || login.Auth == nil || login.Auth.ClientToken == "" {
			return nil, provider.Permanent(errors.New("approle login returned no client token"))
		}
		client.SetToken(login.Auth.ClientToken)

	default:
		return nil, provider.Permanent(errors.New("no vault credentials: set VAULT_TOKEN or VAULT_ROLE_ID and VAULT_SECRET_ID"))
	}

	b.client = client
	b.clientCfg = cfg
	b.haveClient = true
	return client, nil
}

// splitKVPath splits a configured secret path into the KV v2 mount and the
// secret's relative path. "secret/data/mlflow" addresses the "mlflow"
// secret on the "secret" mount; the "data/" infix of the raw HTTP API is
// accepted and stripped.
func splitKVPath(full string) (mount, rel string) {
	trimmed := strings.Trim(full, "/")

	mount, rel, found := strings.Cut(trimmed, "/")
	if !found {
		return "secret", trimmed
	}
	rel = strings.TrimPrefix(rel, "data/")
	return mount, rel
}

// classify marks non-retriable Vault failures as permanent. Missing
// secrets and denied access do not heal with retries; everything else
// (network errors, 5xx) stays retriable.
func classify(err error) error {
	if errors.Is(err, vaultapi.ErrSecretNotFound) {
		return provider.Permanent(err)
	}

	var respErr *vaultapi.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound:
			return provider.Permanent(err)
		}
	}
	return err
}
