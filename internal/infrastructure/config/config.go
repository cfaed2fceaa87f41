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
	ProHandel ProHandelConfig
	Sync      SyncConfig
	Scheduler SchedulerConfig
	API       APIConfig
	Telemetry TelemetryConfig
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

// Addr returns the host:port address of the Redis server
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxHeaderBytes  int
}

// ProHandelConfig holds the remote API endpoints and credentials
type ProHandelConfig struct {
	APIKey            string
	APISecret         string
	AuthURL           string
	APIURL            string
	RequestTimeout    time.Duration
	CredentialsSource string // static or secretsmanager
	SecretID          string // Secrets Manager secret holding {"apiKey","secret"}
}

// SyncConfig holds extraction and load tuning
type SyncConfig struct {
	PageSize      int
	LoadBatchSize int
	MaxRetries    int
	RetryDelay    time.Duration
	RetryBackoff  string // fixed or exponential
	LockBackend   string // memory or redis
	LockTTL       time.Duration
}

// SchedulerConfig holds the recurring sync schedule
type SchedulerConfig struct {
	Enabled             bool
	IncrementalInterval time.Duration
	FullSyncHour        int
	FullSyncMinute      int
	IncrementalCron     string // optional "M * * * *" override
	FullCron            string // optional "M H * * *" override
}

// APIConfig holds settings for the ETL control API
type APIConfig struct {
	JWTSecret string
	JWTIssuer string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled               bool    // Whether to enable OpenTelemetry tracing
	CollectorEndpoint     string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio         float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName           string
	Insecure              bool
	MetricsEnabled        bool
	MetricsExportInterval time.Duration
	LogsEnabled           bool
	DBTraceEnabled        bool
	DBSlowQueryThresh     time.Duration
}

// Load reads configuration from config file and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with ETL_ prefix (e.g., ETL_DATABASE_PASSWORD)
// 2. Unprefixed ProHandel variables (e.g., PROHANDEL_API_KEY, ETL_BATCH_SIZE)
// 3. config.toml
// 4. Built-in defaults
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

	v.SetEnvPrefix("ETL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

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
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			IdleTimeout:     v.GetDuration("http.idle_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
			MaxHeaderBytes:  v.GetInt("http.max_header_bytes"),
		},
		ProHandel: ProHandelConfig{
			APIKey:            v.GetString("prohandel.api_key"),
			APISecret:         v.GetString("prohandel.api_secret"),
			AuthURL:           v.GetString("prohandel.auth_url"),
			APIURL:            v.GetString("prohandel.api_url"),
			RequestTimeout:    v.GetDuration("prohandel.request_timeout"),
			CredentialsSource: v.GetString("prohandel.credentials_source"),
			SecretID:          v.GetString("prohandel.secret_id"),
		},
		Sync: SyncConfig{
			PageSize:      v.GetInt("sync.page_size"),
			LoadBatchSize: v.GetInt("sync.load_batch_size"),
			MaxRetries:    v.GetInt("sync.max_retries"),
			RetryDelay:    v.GetDuration("sync.retry_delay"),
			RetryBackoff:  v.GetString("sync.retry_backoff"),
			LockBackend:   v.GetString("sync.lock_backend"),
			LockTTL:       v.GetDuration("sync.lock_ttl"),
		},
		Scheduler: SchedulerConfig{
			Enabled:             v.GetBool("scheduler.enabled"),
			IncrementalInterval: v.GetDuration("scheduler.incremental_interval"),
			FullSyncHour:        v.GetInt("scheduler.full_sync_hour"),
			FullSyncMinute:      v.GetInt("scheduler.full_sync_minute"),
			IncrementalCron:     v.GetString("scheduler.incremental_cron"),
			FullCron:            v.GetString("scheduler.full_cron"),
		},
		API: APIConfig{
			JWTSecret: v.GetString("api.jwt_secret"),
			JWTIssuer: v.GetString("api.jwt_issuer"),
		},
		Telemetry: TelemetryConfig{
			Enabled:               v.GetBool("telemetry.enabled"),
			CollectorEndpoint:     v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:         v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:           v.GetString("telemetry.service_name"),
			Insecure:              v.GetBool("telemetry.insecure"),
			MetricsEnabled:        v.GetBool("telemetry.metrics_enabled"),
			MetricsExportInterval: v.GetDuration("telemetry.metrics_export_interval"),
			LogsEnabled:           v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:        v.GetBool("telemetry.db_trace_enabled"),
			DBSlowQueryThresh:     v.GetDuration("telemetry.db_slow_query_threshold"),
		},
	}

	// ETL_RETRY_DELAY is expressed in milliseconds
	if cfg.Sync.RetryDelay == 0 {
		if ms := v.GetInt("sync.retry_delay_ms"); ms > 0 {
			cfg.Sync.RetryDelay = time.Duration(ms) * time.Millisecond
		}
	}

	// The scheduler runs unless explicitly disabled
	if !v.IsSet("scheduler.enabled") {
		cfg.Scheduler.Enabled = true
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// bindLegacyEnv maps the variable names used by existing deployments
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"prohandel.api_key":    {"ETL_PROHANDEL_API_KEY", "PROHANDEL_API_KEY"},
		"prohandel.api_secret": {"ETL_PROHANDEL_API_SECRET", "PROHANDEL_API_SECRET"},
		"prohandel.auth_url":   {"ETL_PROHANDEL_AUTH_URL", "PROHANDEL_AUTH_URL"},
		"prohandel.api_url":    {"ETL_PROHANDEL_API_URL", "PROHANDEL_API_URL"},
		"sync.page_size":       {"ETL_SYNC_PAGE_SIZE", "ETL_BATCH_SIZE"},
		"sync.max_retries":     {"ETL_SYNC_MAX_RETRIES", "ETL_MAX_RETRIES"},
		"sync.retry_delay_ms":  {"ETL_RETRY_DELAY"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "prohandel-etl"
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
		cfg.Database.DBName = "mercurios"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 2
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
	// Sync endpoints block until the run finishes
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Minute
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 30 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.ProHandel.AuthURL == "" {
		cfg.ProHandel.AuthURL = "https://auth.prohandel.cloud/api/v4"
	}
	if cfg.ProHandel.APIURL == "" {
		cfg.ProHandel.APIURL = "https://linde.prohandel.de/api/v2"
	}
	if cfg.ProHandel.RequestTimeout == 0 {
		cfg.ProHandel.RequestTimeout = 30 * time.Second
	}
	if cfg.ProHandel.CredentialsSource == "" {
		cfg.ProHandel.CredentialsSource = "static"
	}
	if cfg.Sync.PageSize == 0 {
		cfg.Sync.PageSize = 1000
	}
	if cfg.Sync.LoadBatchSize == 0 {
		cfg.Sync.LoadBatchSize = 100
	}
	if cfg.Sync.MaxRetries == 0 {
		cfg.Sync.MaxRetries = 3
	}
	if cfg.Sync.RetryDelay == 0 {
		cfg.Sync.RetryDelay = 5 * time.Second
	}
	if cfg.Sync.RetryBackoff == "" {
		cfg.Sync.RetryBackoff = "fixed"
	}
	if cfg.Sync.LockBackend == "" {
		cfg.Sync.LockBackend = "memory"
	}
	if cfg.Sync.LockTTL == 0 {
		cfg.Sync.LockTTL = 2 * time.Hour
	}
	if cfg.Scheduler.IncrementalInterval == 0 {
		cfg.Scheduler.IncrementalInterval = time.Hour
	}
	if cfg.API.JWTIssuer == "" {
		cfg.API.JWTIssuer = "mercurios-dashboard"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsExportInterval == 0 {
		cfg.Telemetry.MetricsExportInterval = 60 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
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

	if c.Sync.PageSize < 1 {
		return fmt.Errorf("sync.page_size must be positive, got %d", c.Sync.PageSize)
	}
	if c.Sync.LoadBatchSize < 1 {
		return fmt.Errorf("sync.load_batch_size must be positive, got %d", c.Sync.LoadBatchSize)
	}
	if c.Sync.MaxRetries < 1 {
		return fmt.Errorf("sync.max_retries must be at least 1, got %d", c.Sync.MaxRetries)
	}
	if c.Sync.RetryDelay < 0 {
		return fmt.Errorf("sync.retry_delay cannot be negative")
	}
	switch c.Sync.RetryBackoff {
	case "fixed", "exponential":
	default:
		return fmt.Errorf("sync.retry_backoff must be 'fixed' or 'exponential', got %q", c.Sync.RetryBackoff)
	}
	switch c.Sync.LockBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("sync.lock_backend must be 'memory' or 'redis', got %q", c.Sync.LockBackend)
	}

	switch c.ProHandel.CredentialsSource {
	case "static":
	case "secretsmanager":
		if c.ProHandel.SecretID == "" {
			return fmt.Errorf("prohandel.secret_id is required when credentials_source is 'secretsmanager'")
		}
	default:
		return fmt.Errorf("prohandel.credentials_source must be 'static' or 'secretsmanager', got %q",
			c.ProHandel.CredentialsSource)
	}

	if c.Scheduler.FullSyncHour < 0 || c.Scheduler.FullSyncHour > 23 {
		return fmt.Errorf("scheduler.full_sync_hour must be between 0 and 23, got %d", c.Scheduler.FullSyncHour)
	}
	if c.Scheduler.FullSyncMinute < 0 || c.Scheduler.FullSyncMinute > 59 {
		return fmt.Errorf("scheduler.full_sync_minute must be between 0 and 59, got %d", c.Scheduler.FullSyncMinute)
	}

	if c.App.Env == "production" {
		if c.ProHandel.CredentialsSource == "static" &&
			(c.ProHandel.APIKey == "" || c.ProHandel.APISecret == "") {
			return fmt.Errorf("prohandel.api_key and prohandel.api_secret are required in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.API.JWTSecret != "" && len(c.API.JWTSecret) < 32 {
			return fmt.Errorf("api.jwt_secret must be at least 32 characters in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
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
