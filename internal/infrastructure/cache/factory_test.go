package cache

import (
	"testing"

	"github.com/erp/reconciliation/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_Backends(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		f := NewFactory(config.MatchingConfig{CacheBackend: BackendMemory, LockBackend: BackendMemory}, nil)
		c, err := f.SuggestionCache()
		require.NoError(t, err)
		assert.IsType(t, &InMemorySuggestionCache{}, c)

		l, err := f.Locker()
		require.NoError(t, err)
		assert.IsType(t, &KeyedLocker{}, l)
	})

	t.Run("none", func(t *testing.T) {
		f := NewFactory(config.MatchingConfig{CacheBackend: BackendNone}, nil)
		c, err := f.SuggestionCache()
		require.NoError(t, err)
		assert.IsType(t, NopSuggestionCache{}, c)
	})

	t.Run("redis without client falls back", func(t *testing.T) {
		f := NewFactory(config.MatchingConfig{CacheBackend: BackendRedis, LockBackend: BackendRedis}, nil)
		c, err := f.SuggestionCache()
		require.NoError(t, err)
		assert.IsType(t, &InMemorySuggestionCache{}, c)

		l, err := f.Locker()
		require.NoError(t, err)
		assert.IsType(t, &KeyedLocker{}, l)
	})

	t.Run("redis without client and no fallback", func(t *testing.T) {
		f := NewFactory(config.MatchingConfig{CacheBackend: BackendRedis, LockBackend: BackendRedis}, nil, WithInMemoryFallback(false))
		_, err := f.SuggestionCache()
		assert.Error(t, err)
		_, err = f.Locker()
		assert.Error(t, err)
	})
}
