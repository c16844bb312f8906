package azurekv

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/secretsauth/provider"
)

type fakeKeyVault struct {
	calls       int
	lastName    string
	lastVersion string
	value       *string
	err         error
}

func (f *fakeKeyVault) GetSecret(_ context.Context, name, version string, _ *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error) {
	f.calls++
	f.lastName = name
	f.lastVersion = version

	var resp azsecrets.GetSecretResponse
	resp.Value = f.value
	return resp, f.err
}

func testEnv(extra map[string]string) envconfig.Lookuper {
	env := map[string]string{
		"AZURE_KEY_VAULT_URL":      "https://mlflow-kv.vault.azure.net",
		"MLFLOW_AZURE_SECRET_NAME": "mlflow-credentials",
	}
	for k, v := range extra {
		env[k] = v
	}
	return envconfig.MapLookuper(env)
}

func TestFetchSecret(t *testing.T) {
	fake := &fakeKeyVault{value: to.Ptr(`{"token": "azure-tok"}`)}
	b := New(WithClient(fake), WithLookuper(testEnv(nil)))

	raw, err := b.FetchSecret(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"token": "azure-tok"}`, raw)
	assert.Equal(t, "mlflow-credentials", fake.lastName)
	assert.Empty(t, fake.lastVersion, "latest version is always fetched")
}

func TestFetchSecret_EmptyValue(t *testing.T) {
	fake := &fakeKeyVault{value: to.Ptr("")}
	b := New(WithClient(fake), WithLookuper(testEnv(nil)))

	_, err := b.FetchSecret(context.Background())
	require.Error(t, err)
	assert.True(t, provider.IsPermanent(err))
}

func TestFetchSecret_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing vault url", map[string]string{
			"MLFLOW_AZURE_SECRET_NAME": "mlflow-credentials",
		}},
		{"missing secret name", map[string]string{
			"AZURE_KEY_VAULT_URL": "https://mlflow-kv.vault.azure.net",
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeKeyVault{}
			b := New(WithClient(fake), WithLookuper(envconfig.MapLookuper(tc.env)))

			_, err := b.FetchSecret(context.Background())
			require.Error(t, err)
			assert.True(t, provider.IsPermanent(err))
			assert.Zero(t, fake.calls)
		})
	}
}

func TestFetchSecret_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{"not found", &azcore.ResponseError{StatusCode: http.StatusNotFound}, true},
		{"forbidden", &azcore.ResponseError{StatusCode: http.StatusForbidden}, true},
		{"unauthorized", &azcore.ResponseError{StatusCode: http.StatusUnauthorized}, true},
		{"throttled", &azcore.ResponseError{StatusCode: http.StatusTooManyRequests}, false},
		{"server error", &azcore.ResponseError{StatusCode: http.StatusInternalServerError}, false},
		{"network error", errors.New("dial tcp: connection refused"), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeKeyVault{err: tc.err}
			b := New(WithClient(fake), WithLookuper(testEnv(nil)))

			_, err := b.FetchSecret(context.Background())
			require.Error(t, err)
			assert.Equal(t, tc.permanent, provider.IsPermanent(err))
		})
	}
}

func TestBackendSettings(t *testing.T) {
	b := New(WithLookuper(testEnv(map[string]string{
		"MLFLOW_AZURE_TTL_SEC":   "900",
		"MLFLOW_AZURE_AUTH_MODE": "basic",
	})))

	assert.Equal(t, "azure-key-vault", b.Name())
	assert.Equal(t, "mlflow-credentials", b.CacheKey())
	assert.Equal(t, 15*time.Minute, b.TTL())
	assert.Equal(t, "basic", b.AuthMode())
}

func TestBackendSettings_Defaults(t *testing.T) {
	b := New(WithLookuper(envconfig.MapLookuper(nil)))

	assert.Equal(t, "default", b.CacheKey())
	assert.Equal(t, 5*time.Minute, b.TTL())
	assert.Equal(t, "bearer", b.AuthMode())
}
