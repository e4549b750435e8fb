// Package di provides a lightweight wrapper around uber's dig dependency injection framework.
// It simplifies container setup and provides type-safe dependency retrieval with generics.
package di

import (
	"context"

	"github.com/pitchlab/stack-deployer/internal/config"
	"go.uber.org/dig"
)

// Container defines a dependency injection container based on uber's dig.
// This interface allows for easy testing and mocking of the DI container.
type Container interface {
	// Invoke executes a function, injecting its dependencies from the container.
	Invoke(function any, opts ...dig.InvokeOption) error

	// Provide registers a constructor function in the container.
	Provide(constructor any, opts ...dig.ProvideOption) error

	// Scope creates a scoped sub-container with its own set of values.
	Scope(name string, opts ...dig.ScopeOption) *dig.Scope
}

// MustGet returns an instance constructed via dependency injection or panics.
// This is a convenience function for retrieving a dependency from the container
// when you're certain it exists. If the dependency cannot be resolved, it will panic.
//
// Example:
//
//	svc := MustGet[*services.BeanstalkService](container)
func MustGet[T any](container Container) (want T) {
	callback := func(got T) {
		want = got
	}
	if err := container.Invoke(callback); err != nil {
		panic(err)
	}
	return want
}

// New creates a new dependency injection container for the given deploy
// manifest. The context and the manifest are registered as dependencies
// that providers can declare as regular parameters.
//
// Example:
//
//	container, err := New(ctx, cfg,
//	    WithProviders(
//	        func() *Bucket { return &Bucket{} },
//	        func(b *Bucket, cfg *config.Config) *Publisher { return &Publisher{Bucket: b, App: cfg.App} },
//	    ),
//	)
func New(ctx context.Context, cfg *config.Config, opts ...Option) (Container, error) {
	// Build options
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	// Create dig container
	container := dig.New()
	if err := container.Provide(func() context.Context { return ctx }); err != nil {
		return nil, err
	}
	if err := container.Provide(func() *config.Config { return cfg }); err != nil {
		return nil, err
	}

	// Register all provided constructors
	for _, provider := range core {
		if err := container.Provide(provider); err != nil {
			return nil, err
		}
	}

	// Register all provided constructors
	for _, provider := range o.providers {
		if err := container.Provide(provider); err != nil {
			return nil, err
		}
	}

	return container, nil
}

var core = []any{
	ProvideAWSConfig,
	ProvideS3Client,
	ProvideBeanstalkClient,
	ProvideCloudFrontClient,
	ProvideDynamoDB,
	ProvideSTSClient,
	ProvideBeanstalkService,
	ProvideSiteSyncService,
	ProvideCDNService,
	ProvideReleaseDAO,
	ProvideRecorder,
}
