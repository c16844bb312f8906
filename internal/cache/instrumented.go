package cache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce     sync.Once
	cacheOperations metric.Int64Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter("github.com/halcyonlabs/secretsauth/internal/cache")

		var err error
		cacheOperations, err = meter.Int64Counter(
			"secretsauth.cache.operations",
			metric.WithDescription("Secret cache operations by result"),
		)
		if err != nil {
			otel.Handle(err)
		}
	})
}

// Instrumented wraps a TTLCache with otel operation counters. The provider
// name labels each measurement so multiple providers sharing the default
// cache remain distinguishable.
type Instrumented struct {
	wrapped  *TTLCache
	provider string
}

// NewInstrumented creates an instrumented wrapper around cache.
func NewInstrumented(cache *TTLCache, provider string) *Instrumented {
	initMetrics()
	return &Instrumented{
		wrapped:  cache,
		provider: provider,
	}
}

// Get retrieves a value, recording a hit or miss.
func (i *Instrumented) Get(ctx context.Context, key string) (string, bool) {
	value, found := i.wrapped.Get(key)

	status := "miss"
	if found {
		status = "hit"
	}
	i.record(ctx, "get", status)

	return value, found
}

// Set stores a value, recording the write.
func (i *Instrumented) Set(ctx context.Context, key, value string, ttl time.Duration) {
	i.wrapped.Set(key, value, ttl)
	i.record(ctx, "set", "success")
}

// Delete removes a value, recording the eviction.
func (i *Instrumented) Delete(ctx context.Context, key string) {
	i.wrapped.Delete(key)
	i.record(ctx, "delete", "success")
}

func (i *Instrumented) record(ctx context.Context, operation, status string) {
	if cacheOperations == nil {
		return
	}

	cacheOperations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache.operation", operation),
		attribute.String("cache.status", status),
		attribute.String("provider", i.provider),
	))
}
