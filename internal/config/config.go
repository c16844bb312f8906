package config

import (
	"context"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// Config carries every setting the credential layer reads. All values come
// from the environment; the zero value of every field is a usable default
// so a bare process simply runs with everything disabled.
type Config struct {
	// Enable names the active backend ("vault", "aws-secrets-manager",
	// "azure-key-vault"), or a comma-separated list of candidates tried in
	// the factory's priority order. Empty disables credential injection.
	Enable string `env:"MLFLOW_SECRETS_AUTH_ENABLE"`

	// AuthHeaderName overrides the header credentials are written to. With
	// a non-default name the scheme prefix (Bearer/Basic) is omitted and
	// the raw value is placed directly in the header.
	AuthHeaderName string `env:"MLFLOW_AUTH_HEADER_NAME, default=Authorization"`

	// AllowedHosts is a comma-separated list of hostname glob patterns.
	// Empty means every destination is allowed.
	AllowedHosts string `env:"MLFLOW_SECRETS_ALLOWED_HOSTS"`

	Vault VaultConfig
	AWS   AWSConfig
	Azure AzureConfig
}

// VaultConfig holds HashiCorp Vault backend settings. VAULT_ADDR and
// VAULT_TOKEN follow the standard Vault CLI conventions; AppRole login is
// used when a role ID is configured and no token is present.
type VaultConfig struct {
	Address  string `env:"VAULT_ADDR"`
	Token    string `env:"VAULT_TOKEN"`
	RoleID   string `env:"VAULT_ROLE_ID"`
	SecretID string `env:"VAULT_SECRET_ID"`

	SecretPath string `env:"MLFLOW_VAULT_SECRET_PATH"`
	TTLSeconds int    `env:"MLFLOW_VAULT_TTL_SEC, default=300"`
	AuthMode   string `env:"MLFLOW_VAULT_AUTH_MODE, default=bearer"`
}

// AWSConfig holds AWS Secrets Manager backend settings. Credentials are
// resolved through the SDK's default chain.
type AWSConfig struct {
	Region   string `env:"AWS_REGION"`
	SecretID string `env:"MLFLOW_AWS_SECRET_ID"`

	TTLSeconds int    `env:"MLFLOW_AWS_TTL_SEC, default=300"`
	AuthMode   string `env:"MLFLOW_AWS_AUTH_MODE, default=bearer"`
}

// AzureConfig holds Azure Key Vault backend settings. Authentication uses
// the SDK's default credential chain.
type AzureConfig struct {
	VaultURL   string `env:"AZURE_KEY_VAULT_URL"`
	SecretName string `env:"MLFLOW_AZURE_SECRET_NAME"`

	TTLSeconds int    `env:"MLFLOW_AZURE_TTL_SEC, default=300"`
	AuthMode   string `env:"MLFLOW_AZURE_AUTH_MODE, default=bearer"`
}

// Load reads configuration from the OS environment.
func Load(ctx context.Context) (Config, error) {
	return load(ctx, nil)
}

// load reads configuration through the given lookuper; nil defaults to the
// OS environment. Tests inject a map lookuper.
func load(ctx context.Context, lookup envconfig.Lookuper) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup,
	})
	return cfg, err
}

// IsEnabled reports whether the named backend appears in the enable list.
// Matching is case-insensitive; surrounding whitespace in list entries is
// ignored.
func (c Config) IsEnabled(name string) bool {
	for _, candidate := range strings.Split(c.Enable, ",") {
		if strings.EqualFold(strings.TrimSpace(candidate), name) {
			return true
		}
	}
	return false
}

// AnyEnabled reports whether at least one backend is enabled at all.
func (c Config) AnyEnabled() bool {
	return strings.TrimSpace(c.Enable) != ""
}

// CustomHeader reports whether a non-default auth header is configured.
// The comparison is case-insensitive per RFC 7230 header field semantics.
func (c Config) CustomHeader() bool {
	return c.AuthHeaderName != "" && !strings.EqualFold(c.AuthHeaderName, "Authorization")
}
