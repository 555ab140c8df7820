package registry_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/switchboard/internal/domain"
	"github.com/davidbz/switchboard/internal/provider/registry"
)

// mockAdapter is a mock implementation of domain.Adapter for testing.
type mockAdapter struct {
	name string
}

func (m *mockAdapter) Complete(_ context.Context, _ *domain.Request) (*domain.Response, error) {
	return &domain.Response{}, nil
}

func (m *mockAdapter) Stream(_ context.Context, _ *domain.Request) (<-chan domain.StreamEvent, error) {
	ch := make(chan domain.StreamEvent)
	close(ch)
	return ch, nil
}

func (m *mockAdapter) Name() string {
	return m.name
}

func factoryFor(name string) registry.Factory {
	return func() (domain.Adapter, error) {
		return &mockAdapter{name: name}, nil
	}
}

func TestRegistry_Register(t *testing.T) {
	t.Run("should register factory successfully", func(t *testing.T) {
		reg := registry.NewRegistry()

		err := reg.Register("test-provider", factoryFor("test-provider"))
		require.NoError(t, err)

		adapter, err := reg.Get(context.Background(), "test-provider")
		require.NoError(t, err)
		require.Equal(t, "test-provider", adapter.Name())
	})

	t.Run("should return error when factory is nil", func(t *testing.T) {
		reg := registry.NewRegistry()

		err := reg.Register("test-provider", nil)
		require.Error(t, err)
		require.Contains(t, err.Error(), "factory cannot be nil")
	})

	t.Run("should return error when provider name is empty", func(t *testing.T) {
		reg := registry.NewRegistry()

		err := reg.Register("", factoryFor(""))
		require.Error(t, err)
		require.Contains(t, err.Error(), "provider name cannot be empty")
	})

	t.Run("should return error when provider already registered", func(t *testing.T) {
		reg := registry.NewRegistry()

		require.NoError(t, reg.Register("test-provider", factoryFor("a")))

		err := reg.Register("test-provider", factoryFor("b"))
		require.Error(t, err)
		require.Contains(t, err.Error(), "already registered")
	})
}

func TestRegistry_Get(t *testing.T) {
	t.Run("should return unsupported provider for unknown ids", func(t *testing.T) {
		reg := registry.NewRegistry()

		_, err := reg.Get(context.Background(), "nonexistent")
		require.ErrorIs(t, err, domain.ErrUnsupportedProvider)
		require.Contains(t, err.Error(), "nonexistent")
	})

	t.Run("should construct once and reuse the adapter", func(t *testing.T) {
		reg := registry.NewRegistry()

		var calls int
		require.NoError(t, reg.Register("openai", func() (domain.Adapter, error) {
			calls++
			return &mockAdapter{name: "openai"}, nil
		}))

		first, err := reg.Get(context.Background(), "openai")
		require.NoError(t, err)
		second, err := reg.Get(context.Background(), "openai")
		require.NoError(t, err)

		require.Same(t, first, second)
		require.Equal(t, 1, calls)
	})

	t.Run("should cache construction failures", func(t *testing.T) {
		reg := registry.NewRegistry()

		var calls int
		boom := errors.New("boom")
		require.NoError(t, reg.Register("broken", func() (domain.Adapter, error) {
			calls++
			return nil, boom
		}))

		_, err := reg.Get(context.Background(), "broken")
		require.ErrorIs(t, err, boom)
		_, err = reg.Get(context.Background(), "broken")
		require.ErrorIs(t, err, boom)
		require.Equal(t, 1, calls)
	})

	t.Run("should reject a factory that returns no adapter", func(t *testing.T) {
		reg := registry.NewRegistry()
		require.NoError(t, reg.Register("empty", func() (domain.Adapter, error) { return nil, nil }))

		_, err := reg.Get(context.Background(), "empty")
		require.Error(t, err)
		require.Contains(t, err.Error(), "returned no adapter")
	})
}

func TestRegistry_List(t *testing.T) {
	t.Run("should return empty list when no providers registered", func(t *testing.T) {
		reg := registry.NewRegistry()

		providers := reg.List(context.Background())
		require.NotNil(t, providers)
		require.Empty(t, providers)
	})

	t.Run("should return registered providers sorted", func(t *testing.T) {
		reg := registry.NewRegistry()

		for _, name := range []string{"openai", "anthropic", "google"} {
			require.NoError(t, reg.Register(name, factoryFor(name)))
		}

		require.Equal(t, []string{"anthropic", "google", "openai"}, reg.List(context.Background()))
	})
}

func TestRegistry_Concurrent(t *testing.T) {
	t.Run("should handle concurrent registrations safely", func(t *testing.T) {
		reg := registry.NewRegistry()

		done := make(chan bool)
		for i := range 10 {
			go func(idx int) {
				name := string(rune('a' + idx))
				_ = reg.Register(name, factoryFor(name))
				done <- true
			}(i)
		}
		for range 10 {
			<-done
		}

		require.Len(t, reg.List(context.Background()), 10)
	})

	t.Run("should construct exactly once under concurrent first use", func(t *testing.T) {
		reg := registry.NewRegistry()

		var calls atomic.Int32
		require.NoError(t, reg.Register("hchat", func() (domain.Adapter, error) {
			calls.Add(1)
			return &mockAdapter{name: "hchat"}, nil
		}))

		var wg sync.WaitGroup
		adapters := make([]domain.Adapter, 50)
		for i := range adapters {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				adapters[idx], _ = reg.Get(context.Background(), "hchat")
			}(i)
		}
		wg.Wait()

		require.Equal(t, int32(1), calls.Load())
		for _, adapter := range adapters {
			require.Same(t, adapters[0], adapter)
		}
	})
}
