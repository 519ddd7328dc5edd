package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Swagger   SwaggerConfig
	Telemetry TelemetryConfig
	Profiling ProfilingConfig
	Storage   StorageConfig
	Matching  MatchingConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
	// RequestTimeout bounds the context of every API request; suggestion searches observe it
	RequestTimeout time.Duration

	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// SwaggerConfig holds Swagger documentation endpoint configuration
type SwaggerConfig struct {
	Enabled    bool
	AllowedIPs []string // IP whitelist (empty = allow all)
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsInterval   time.Duration
	LogExportEnabled  bool
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings (default: 200ms)
}

// ProfilingConfig holds Pyroscope settings
type ProfilingConfig struct {
	Enabled           bool
	ServerAddress     string
	ApplicationName   string
	BasicAuthUser     string
	BasicAuthPassword string
}

// StorageConfig holds S3-compatible object storage settings used for feedback archives
type StorageConfig struct {
	Enabled      bool
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UsePathStyle bool
	Prefix       string
}

// MatchingConfig holds the tunables of the matching engine
type MatchingConfig struct {
	AmountTolPct     float64
	NarrowTolPct     float64
	DateWindowDays   int
	SourceLayerOrder []string
	AcceptThreshold  float64
	MaxSuggestions   int

	MaxCombinationSize int
	MaxPoolSize        int
	MaxCombinations    int
	SearchMaxNodes     int
	SearchMaxDuration  time.Duration
	MITMThreshold      int

	CacheBackend string // memory, redis, none
	CacheTTL     time.Duration
	LockBackend  string // memory, redis
	LockTTL      time.Duration

	AliasMinHits   int64
	BatchMaxItems  int
	BatchWorkers   int
	APMaxSuggested int

	Overrides []ToleranceOverrideConfig
}

// ToleranceOverrideConfig is one [[matching.overrides]] table
type ToleranceOverrideConfig struct {
	CounterpartID  string   `mapstructure:"counterpart_id"`
	ProjectID      string   `mapstructure:"project_id"`
	AmountTolPct   *float64 `mapstructure:"amount_tol_pct"`
	DateWindowDays *int     `mapstructure:"date_window_days"`
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with ERP_ prefix (e.g., ERP_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	return fromViper(v)
}

// LoadFile loads configuration from an explicit TOML file, still honoring ERP_ overrides
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("ERP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
			RequestTimeout:   v.GetDuration("http.request_timeout"),

			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
		},
		Swagger: SwaggerConfig{
			Enabled:    v.GetBool("swagger.enabled"),
			AllowedIPs: v.GetStringSlice("swagger.allowed_ips"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogExportEnabled:  v.GetBool("telemetry.log_export_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
		Profiling: ProfilingConfig{
			Enabled:           v.GetBool("profiling.enabled"),
			ServerAddress:     v.GetString("profiling.server_address"),
			ApplicationName:   v.GetString("profiling.application_name"),
			BasicAuthUser:     v.GetString("profiling.basic_auth_user"),
			BasicAuthPassword: v.GetString("profiling.basic_auth_password"),
		},
		Storage: StorageConfig{
			Enabled:      v.GetBool("storage.enabled"),
			Endpoint:     v.GetString("storage.endpoint"),
			Region:       v.GetString("storage.region"),
			Bucket:       v.GetString("storage.bucket"),
			AccessKey:    v.GetString("storage.access_key"),
			SecretKey:    v.GetString("storage.secret_key"),
			UseSSL:       v.GetBool("storage.use_ssl"),
			UsePathStyle: v.GetBool("storage.use_path_style"),
			Prefix:       v.GetString("storage.prefix"),
		},
		Matching: MatchingConfig{
			AmountTolPct:       v.GetFloat64("matching.amount_tol_pct"),
			NarrowTolPct:       v.GetFloat64("matching.narrow_tol_pct"),
			DateWindowDays:     v.GetInt("matching.date_window_days"),
			SourceLayerOrder:   v.GetStringSlice("matching.source_layer_order"),
			AcceptThreshold:    v.GetFloat64("matching.accept_threshold"),
			MaxSuggestions:     v.GetInt("matching.max_suggestions"),
			MaxCombinationSize: v.GetInt("matching.max_combination_size"),
			MaxPoolSize:        v.GetInt("matching.max_pool_size"),
			MaxCombinations:    v.GetInt("matching.max_combinations"),
			SearchMaxNodes:     v.GetInt("matching.search_max_nodes"),
			SearchMaxDuration:  v.GetDuration("matching.search_max_duration"),
			MITMThreshold:      v.GetInt("matching.mitm_threshold"),
			CacheBackend:       v.GetString("matching.cache_backend"),
			CacheTTL:           v.GetDuration("matching.cache_ttl"),
			LockBackend:        v.GetString("matching.lock_backend"),
			LockTTL:            v.GetDuration("matching.lock_ttl"),
			AliasMinHits:       v.GetInt64("matching.alias_min_hits"),
			BatchMaxItems:      v.GetInt("matching.batch_max_items"),
			BatchWorkers:       v.GetInt("matching.batch_workers"),
			APMaxSuggested:     v.GetInt("matching.ap_max_suggested"),
		},
	}

	if err := v.UnmarshalKey("matching.overrides", &cfg.Matching.Overrides); err != nil {
		return nil, fmt.Errorf("error reading matching.overrides: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "erp-reconciliation"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "erp"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 10 << 20 // 10MB
	}
	if cfg.HTTP.RequestTimeout == 0 {
		cfg.HTTP.RequestTimeout = 30 * time.Second
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 600
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	// Empty CORS origins means no cross-origin requests until configured.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Accept-Language", "X-Request-ID", "X-Tenant-ID", "X-User-ID"}
	}

	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Profiling.ApplicationName == "" {
		cfg.Profiling.ApplicationName = cfg.App.Name
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = "feedback"
	}

	m := &cfg.Matching
	if m.AmountTolPct == 0 {
		m.AmountTolPct = 0.01
	}
	if m.NarrowTolPct == 0 {
		m.NarrowTolPct = 0.001
	}
	if m.DateWindowDays == 0 {
		m.DateWindowDays = 15
	}
	if len(m.SourceLayerOrder) == 0 {
		m.SourceLayerOrder = []string{"purchase_invoice", "sales_invoice", "expense", "payroll", "tax", "bank_movement"}
	}
	if m.AcceptThreshold == 0 {
		m.AcceptThreshold = 0.85
	}
	if m.MaxSuggestions == 0 {
		m.MaxSuggestions = 10
	}
	if m.MaxCombinationSize == 0 {
		m.MaxCombinationSize = 5
	}
	if m.MaxPoolSize == 0 {
		m.MaxPoolSize = 40
	}
	if m.MaxCombinations == 0 {
		m.MaxCombinations = 3
	}
	if m.SearchMaxNodes == 0 {
		m.SearchMaxNodes = 500_000
	}
	if m.SearchMaxDuration == 0 {
		m.SearchMaxDuration = 250 * time.Millisecond
	}
	if m.MITMThreshold == 0 {
		m.MITMThreshold = 20
	}
	if m.CacheBackend == "" {
		m.CacheBackend = "memory"
	}
	if m.CacheTTL == 0 {
		m.CacheTTL = 5 * time.Minute
	}
	if m.LockBackend == "" {
		m.LockBackend = "memory"
	}
	if m.LockTTL == 0 {
		m.LockTTL = 10 * time.Second
	}
	if m.AliasMinHits == 0 {
		m.AliasMinHits = 3
	}
	if m.BatchMaxItems == 0 {
		m.BatchMaxItems = 100
	}
	if m.BatchWorkers == 0 {
		m.BatchWorkers = 4
	}
	if m.APMaxSuggested == 0 {
		m.APMaxSuggested = 5
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Swagger.Enabled && len(c.Swagger.AllowedIPs) == 0 {
			return fmt.Errorf("swagger endpoint must be disabled or IP restricted in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	if c.Storage.Enabled && (c.Storage.Bucket == "" || c.Storage.AccessKey == "" || c.Storage.SecretKey == "") {
		return fmt.Errorf("storage.bucket, storage.access_key and storage.secret_key are required when storage is enabled")
	}

	return c.Matching.validate()
}

func (m *MatchingConfig) validate() error {
	if m.AmountTolPct < 0 || m.AmountTolPct >= 1 {
		return fmt.Errorf("matching.amount_tol_pct must be in [0, 1), got %f", m.AmountTolPct)
	}
	if m.NarrowTolPct < 0 || m.NarrowTolPct > m.AmountTolPct {
		return fmt.Errorf("matching.narrow_tol_pct must be in [0, amount_tol_pct], got %f", m.NarrowTolPct)
	}
	if m.DateWindowDays < 0 {
		return fmt.Errorf("matching.date_window_days cannot be negative")
	}
	if m.AcceptThreshold < 0 || m.AcceptThreshold > 1 {
		return fmt.Errorf("matching.accept_threshold must be between 0 and 1")
	}
	if m.MaxCombinationSize < 2 {
		return fmt.Errorf("matching.max_combination_size must be at least 2")
	}
	if m.MaxPoolSize < m.MaxCombinationSize {
		return fmt.Errorf("matching.max_pool_size (%d) cannot be below max_combination_size (%d)",
			m.MaxPoolSize, m.MaxCombinationSize)
	}
	switch m.CacheBackend {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("matching.cache_backend must be memory, redis or none, got %q", m.CacheBackend)
	}
	switch m.LockBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("matching.lock_backend must be memory or redis, got %q", m.LockBackend)
	}
	if m.AliasMinHits < 1 {
		return fmt.Errorf("matching.alias_min_hits must be positive")
	}
	for i, o := range m.Overrides {
		if o.CounterpartID == "" && o.ProjectID == "" {
			return fmt.Errorf("matching.overrides[%d] needs counterpart_id or project_id", i)
		}
		if o.AmountTolPct != nil && (*o.AmountTolPct < 0 || *o.AmountTolPct >= 1) {
			return fmt.Errorf("matching.overrides[%d].amount_tol_pct must be in [0, 1)", i)
		}
		if o.DateWindowDays != nil && *o.DateWindowDays < 0 {
			return fmt.Errorf("matching.overrides[%d].date_window_days cannot be negative", i)
		}
	}
	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
