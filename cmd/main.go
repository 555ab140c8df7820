package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/davidbz/switchboard/internal/capability"
	"github.com/davidbz/switchboard/internal/config"
	"github.com/davidbz/switchboard/internal/domain"
	"github.com/davidbz/switchboard/internal/eventlog/redis"
	"github.com/davidbz/switchboard/internal/http"
	"github.com/davidbz/switchboard/internal/http/middleware"
	"github.com/davidbz/switchboard/internal/observability"
	"github.com/davidbz/switchboard/internal/provider/anthropic"
	"github.com/davidbz/switchboard/internal/provider/azure"
	"github.com/davidbz/switchboard/internal/provider/google"
	"github.com/davidbz/switchboard/internal/provider/registry"
	"github.com/davidbz/switchboard/internal/provider/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	container := buildContainer()

	err := container.Invoke(func(server *http.Server, publisher domain.EventPublisher) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		select {
		case err := <-errCh:
			if err != nil {
				log.Fatalf("Server failed to start: %v", err)
			}
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("Server shutdown failed: %v", err)
			}
		}

		closePublisher(publisher)
	})
	if err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

func buildContainer() *dig.Container {
	container := dig.New()

	// Configuration
	if err := container.Provide(config.Load); err != nil {
		log.Fatalf("Failed to provide config: %v", err)
	}
	if err := container.Provide(config.ParseDependenciesConfig); err != nil {
		log.Fatalf("Failed to provide config dependencies: %v", err)
	}

	// Observability
	if err := container.Provide(observability.InitLogger); err != nil {
		log.Fatalf("Failed to provide logger: %v", err)
	}
	if err := container.Provide(newEventPublisher); err != nil {
		log.Fatalf("Failed to provide event publisher: %v", err)
	}

	// Capability table
	if err := container.Provide(capability.Load); err != nil {
		log.Fatalf("Failed to provide capability table: %v", err)
	}

	// Adapters
	if err := container.Provide(func(cfg *transport.Config) *transport.Client {
		return transport.NewClient(*cfg)
	}); err != nil {
		log.Fatalf("Failed to provide transport client: %v", err)
	}
	if err := container.Provide(newAdapterRegistry); err != nil {
		log.Fatalf("Failed to provide adapter registry: %v", err)
	}

	// Domain Services
	if err := container.Provide(func(
		table *capability.Table,
		adapters *registry.Registry,
		publisher domain.EventPublisher,
		upstream *config.UpstreamConfig,
	) *domain.Dispatcher {
		return domain.NewDispatcher(table, adapters, publisher, domain.Defaults{
			APIKey:       upstream.APIKey,
			APIBase:      upstream.APIBase,
			ExtraHeaders: upstream.ExtraHeaders,
		})
	}); err != nil {
		log.Fatalf("Failed to provide dispatcher: %v", err)
	}

	// HTTP Layer
	if err := container.Provide(func(dispatcher *domain.Dispatcher, table *capability.Table) *http.Handler {
		return http.NewHandler(dispatcher, table)
	}); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(middleware.BuildMiddlewareChain); err != nil {
		log.Fatalf("Failed to provide middleware chain: %v", err)
	}
	if err := container.Provide(http.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	return container
}

// newAdapterRegistry registers a lazy factory for every provider id the
// capability table may resolve to.
func newAdapterRegistry(client *transport.Client) (*registry.Registry, error) {
	reg := registry.NewRegistry()

	factories := map[string]registry.Factory{
		domain.ProviderAnthropic: func() (domain.Adapter, error) {
			return anthropic.NewAdapter(client), nil
		},
		domain.ProviderGoogle: func() (domain.Adapter, error) {
			return google.NewAdapter(client), nil
		},
	}
	for _, name := range []string{domain.ProviderOpenAI, domain.ProviderAzure, domain.ProviderHChat} {
		factories[name] = func() (domain.Adapter, error) {
			return azure.NewAdapter(name, client), nil
		}
	}

	for name, factory := range factories {
		if err := reg.Register(name, factory); err != nil {
			return nil, fmt.Errorf("failed to register %s adapter: %w", name, err)
		}
	}

	return reg, nil
}

// newEventPublisher logs every event and, when Redis is configured, also
// appends it to a stream.
func newEventPublisher(logger *zap.Logger, cfg *redis.Config) domain.EventPublisher {
	bus := observability.NewEventBus(logger)
	if !cfg.Enabled() {
		return bus
	}

	logger.Info("event stream enabled",
		zap.String("addr", cfg.Addr),
		zap.String("stream", cfg.Stream),
	)
	return observability.Fanout{bus, redis.NewPublisher(redis.NewClient(cfg), cfg)}
}

func closePublisher(publisher domain.EventPublisher) {
	fanout, ok := publisher.(observability.Fanout)
	if !ok {
		return
	}
	for _, p := range fanout {
		if closer, ok := p.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				log.Printf("Failed to close event publisher: %v", err)
			}
		}
	}
}
