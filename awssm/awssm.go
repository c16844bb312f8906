// Package awssm fetches MLflow credentials from AWS Secrets Manager.
package awssm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/smithy-go"
	"github.com/sethvargo/go-envconfig"

	"github.com/halcyonlabs/secretsauth/internal/config"
	"github.com/halcyonlabs/secretsauth/internal/secret"
	"github.com/halcyonlabs/secretsauth/provider"
)

// Name is the backend identifier used in the enablement flag.
const Name = "aws-secrets-manager"

// secretsAPI is the slice of the Secrets Manager client the backend uses.
type secretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Backend implements provider.Backend against AWS Secrets Manager.
type Backend struct {
	lookup envconfig.Lookuper

	mu           sync.Mutex
	client       secretsAPI
	clientRegion string

	// newClient builds the Secrets Manager client, injectable for tests.
	newClient func(ctx context.Context, region string) (secretsAPI, error)
}

// Option configures a Backend.
type Option func(*Backend)

// WithLookuper replaces the environment lookuper, for tests.
func WithLookuper(l envconfig.Lookuper) Option {
	return func(b *Backend) { b.lookup = l }
}

// WithClient replaces the Secrets Manager client, for tests.
func WithClient(client secretsAPI) Option {
	return func(b *Backend) {
		b.newClient = func(context.Context, string) (secretsAPI, error) {
			return client, nil
		}
	}
}

// New creates the AWS Secrets Manager backend. The AWS credential chain is
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

func defaultClient(ctx context.Context, region string) (secretsAPI, error) {
	var options []func(*awsconfig.LoadOptions) error
	if region != "" {
		options = append(options, awsconfig.WithRegion(region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}
	return secretsmanager.NewFromConfig(awsCfg), nil
}

func (b *Backend) settings() config.AWSConfig {
	var c config.AWSConfig
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
	if id := b.settings().SecretID; id != "" {
		return id
	}
	return "default"
}

// TTL implements provider.Backend.
func (b *Backend) TTL() time.Duration {
	return time.Duration(secret.ValidateTTL(b.settings().TTLSeconds, secret.DefaultTTLSeconds)) * time.Second
}

// AuthMode implements provider.Backend.
func (b *Backend) AuthMode() string { return b.settings().AuthMode }

// FetchSecret implements provider.Backend. SecretString is preferred;
// binary secrets are passed through as their raw bytes.
func (b *Backend) FetchSecret(ctx context.Context) (string, error) {
	cfg := b.settings()

	if cfg.SecretID == "" {
		return "", provider.Permanent(errors.New("MLFLOW_AWS_SECRET_ID is not set"))
	}

	client, err := b.secretsClient(ctx, cfg.Region)
	if err != nil {
		return "", provider.Permanent(err)
	}

	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(cfg.SecretID),
	})
	if err != nil {
		return "", classify(fmt.Errorf("reading %s: %w", cfg.SecretID, err))
	}

	if out.SecretString != nil {
		return *out.SecretString, nil
	}
	if len(out.SecretBinary) > 0 {
		return string(out.SecretBinary), nil
	}
	return "", provider.Permanent(fmt.Errorf("secret %s has no value", cfg.SecretID))
}

func (b *Backend) secretsClient(ctx context.Context, region string) (secretsAPI, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client != nil && b.clientRegion == region {
		return b.client, nil
	}

	client, err := b.newClient(ctx, region)
	if err != nil {
		return nil, err
	}

	b.client = client
	b.clientRegion = region
	return client, nil
}

// classify marks non-retriable Secrets Manager failures as permanent.
// Throttling and 5xx faults stay retriable.
func classify(err error) error {
	var notFound *types.ResourceNotFoundException
	var invalidReq *types.InvalidRequestException
	var invalidParam *types.InvalidParameterException
	if errors.As(err, &notFound) || errors.As(err, &invalidReq) || errors.As(err, &invalidParam) {
		return provider.Permanent(err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDeniedException", "UnrecognizedClientException":
			return provider.Permanent(err)
		}
	}
	return err
}
