package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearERPEnv unsets every ERP_ variable for the duration of the test
func clearERPEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "ERP_") {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearERPEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "erp-reconciliation", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "disable", cfg.Database.SSLMode)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)
		assert.Equal(t, "erp-reconciliation", cfg.Telemetry.ServiceName)
	})

	t.Run("applies matching defaults", func(t *testing.T) {
		clearERPEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		m := cfg.Matching
		assert.InDelta(t, 0.01, m.AmountTolPct, 1e-12)
		assert.InDelta(t, 0.001, m.NarrowTolPct, 1e-12)
		assert.Equal(t, 15, m.DateWindowDays)
		assert.Equal(t, []string{"purchase_invoice", "sales_invoice", "expense", "payroll", "tax", "bank_movement"}, m.SourceLayerOrder)
		assert.InDelta(t, 0.85, m.AcceptThreshold, 1e-12)
		assert.Equal(t, 5, m.MaxCombinationSize)
		assert.Equal(t, 40, m.MaxPoolSize)
		assert.Equal(t, 500_000, m.SearchMaxNodes)
		assert.Equal(t, 250*time.Millisecond, m.SearchMaxDuration)
		assert.Equal(t, "memory", m.CacheBackend)
		assert.Equal(t, "memory", m.LockBackend)
		assert.Equal(t, int64(3), m.AliasMinHits)
		assert.Empty(t, m.Overrides)
	})

	t.Run("loads values from environment variables with ERP prefix", func(t *testing.T) {
		clearERPEnv(t)
		t.Setenv("ERP_APP_PORT", "9000")
		t.Setenv("ERP_DATABASE_HOST", "testdb.local")
		t.Setenv("ERP_DATABASE_MAX_OPEN_CONNS", "50")
		t.Setenv("ERP_DATABASE_MAX_IDLE_CONNS", "10")
		t.Setenv("ERP_MATCHING_AMOUNT_TOL_PCT", "0.02")
		t.Setenv("ERP_MATCHING_CACHE_BACKEND", "redis")
		t.Setenv("ERP_MATCHING_SEARCH_MAX_DURATION", "1s")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 50, cfg.Database.MaxOpenConns)
		assert.Equal(t, 10, cfg.Database.MaxIdleConns)
		assert.InDelta(t, 0.02, cfg.Matching.AmountTolPct, 1e-12)
		assert.Equal(t, "redis", cfg.Matching.CacheBackend)
		assert.Equal(t, time.Second, cfg.Matching.SearchMaxDuration)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearERPEnv(t)
		t.Setenv("ERP_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("ERP_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("rejects unknown cache backend", func(t *testing.T) {
		clearERPEnv(t)
		t.Setenv("ERP_MATCHING_CACHE_BACKEND", "memcached")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "matching.cache_backend")
	})

	t.Run("narrow tolerance cannot exceed amount tolerance", func(t *testing.T) {
		clearERPEnv(t)
		t.Setenv("ERP_MATCHING_AMOUNT_TOL_PCT", "0.01")
		t.Setenv("ERP_MATCHING_NARROW_TOL_PCT", "0.05")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "narrow_tol_pct")
	})
}

func TestLoadFile_MatchingOverrides(t *testing.T) {
	clearERPEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[matching]
amount_tol_pct = 0.01
date_window_days = 10

[[matching.overrides]]
counterpart_id = "vendor-7"
amount_tol_pct = 0.02

[[matching.overrides]]
project_id = "torre-norte"
date_window_days = 30
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	require.Len(t, cfg.Matching.Overrides, 2)
	assert.Equal(t, 10, cfg.Matching.DateWindowDays)

	vendor := cfg.Matching.Overrides[0]
	assert.Equal(t, "vendor-7", vendor.CounterpartID)
	require.NotNil(t, vendor.AmountTolPct)
	assert.InDelta(t, 0.02, *vendor.AmountTolPct, 1e-12)
	assert.Nil(t, vendor.DateWindowDays)

	project := cfg.Matching.Overrides[1]
	assert.Equal(t, "torre-norte", project.ProjectID)
	require.NotNil(t, project.DateWindowDays)
	assert.Equal(t, 30, *project.DateWindowDays)
}

func TestLoadFile_RejectsOverrideWithoutScope(t *testing.T) {
	clearERPEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[matching.overrides]]\namount_tol_pct = 0.02\n"), 0o600))

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs counterpart_id or project_id")
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		clearERPEnv(t)
		t.Setenv("ERP_APP_ENV", "production")
		t.Setenv("ERP_DATABASE_PASSWORD", "secure-password")
		t.Setenv("ERP_DATABASE_SSLMODE", "require")
		t.Setenv("ERP_SWAGGER_ENABLED", "false")
	}

	t.Run("requires database.password in production", func(t *testing.T) {
		setValidProductionBase(t)
		os.Unsetenv("ERP_DATABASE_PASSWORD")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("ERP_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("fails if swagger enabled without IP restriction", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("ERP_SWAGGER_ENABLED", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "swagger endpoint must be disabled or IP restricted")
	})

	t.Run("passes validation with valid production config", func(t *testing.T) {
		setValidProductionBase(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})

	t.Run("storage requires credentials when enabled", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("ERP_STORAGE_ENABLED", "true")
		t.Setenv("ERP_STORAGE_BUCKET", "feedback")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "storage.bucket")
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{Host: "localhost", Port: 5432, User: "testuser", Password: "testpass", DBName: "testdb", SSLMode: "disable"}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{Host: "localhost", Port: 5432, User: "user", Password: "pass@word#123", DBName: "db", SSLMode: "disable"}

		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{Host: "cache", Port: 6380}
	assert.Equal(t, "cache:6380", cfg.Addr())
}
