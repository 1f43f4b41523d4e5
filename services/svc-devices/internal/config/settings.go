package config

import (
	"fmt"
	"net/url"
	"time"
)

// Compile time variables are set by -ldflags.
var (
	ServiceVersion string
	CommitSHA      string
)

const (
	Development = 1 << iota
	Sandbox
	Staging
	Production
)

type (
	ServiceConfig struct {
		App                   App                   `json:"app"`
		SecretsStorage        SecretsStorage        `json:"secrets_storage"`
		PublicHTTPServer      PublicHTTPServer      `json:"public_http_server"`
		AdminHTTPServer       AdminHTTPServer       `json:"admin_http_server"`
		GRPCServer            GRPCServer            `json:"grpc_server"`
		Database              Database              `json:"database"`
		Cache                 Cache                 `json:"cache"`
		ThrottledRateLimiting ThrottledRateLimiting `json:"throttled_rate_limiting"`
		Idempotency           Idempotency           `json:"idempotency"`
		Compression           Compression           `json:"compression"`
		CircuitBreaker        CircuitBreaker        `json:"circuit_breaker"`
		Backoff               Backoff               `json:"backoff"`
		Events                Events                `json:"events"`
		Logging               Logging               `json:"logging"`
		Telemetry             Telemetry             `json:"telemetry"`
	}

	App struct {
		ServiceName     string        `envconfig:"APP_SERVICE_NAME" default:"svc-devices" json:"service_name"`
		APIVersion      string        `envconfig:"APP_API_VERSION" default:"v1" json:"api_version"`
		ShutdownTimeout time.Duration `envconfig:"APP_SHUTDOWN_TIMEOUT" default:"30s" json:"shutdown_timeout"`
		Env             Environment   `json:"environment"`
	}

	Environment struct {
		Name string `envconfig:"APP_ENVIRONMENT" default:"development" json:"env"`
	}

	SecretsStorage struct {
		Enabled       bool          `envconfig:"VAULT_ENABLED" default:"false" json:"enabled"`
		Address       string        `envconfig:"VAULT_ADDRESS" default:"http://vault:8200" json:"address"`
		Token         string        `envconfig:"VAULT_TOKEN" default:"" json:"-"`
		RoleID        string        `envconfig:"VAULT_ROLE_ID" default:"" json:"role_id,omitempty"`
		SecretID      string        `envconfig:"VAULT_SECRET_ID" default:"" json:"-"`
		AuthMethod    string        `envconfig:"VAULT_AUTH_METHOD" default:"token" json:"auth_method"`
		MountPath     string        `envconfig:"VAULT_MOUNT_PATH" default:"svc-devices" json:"mount_path"`
		Namespace     string        `envconfig:"VAULT_NAMESPACE" default:"" json:"namespace,omitempty"`
		Timeout       time.Duration `envconfig:"VAULT_TIMEOUT" default:"30s" json:"timeout"`
		MaxRetries    uint          `envconfig:"VAULT_MAX_RETRIES" default:"3" json:"max_retries"`
		TLSSkipVerify bool          `envconfig:"VAULT_TLS_SKIP_VERIFY" default:"false" json:"tls_skip_verify"`
		PollInterval  time.Duration `envconfig:"VAULT_POLL_INTERVAL" default:"24h" json:"poll_interval"`
	}

	PublicHTTPServer struct {
		Host            string        `envconfig:"HTTP_SERVER_HOST" default:"0.0.0.0" json:"host"`
		Port            uint          `envconfig:"HTTP_SERVER_PORT" default:"8080" json:"port"`
		ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s" json:"read_timeout"`
		WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"15s" json:"write_timeout"`
		IdleTimeout     time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"60s" json:"idle_timeout"`
		ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"30s" json:"shutdown_timeout"`
		MaxBodyBytes    int64         `envconfig:"HTTP_MAX_BODY_BYTES" default:"1048576" json:"max_body_bytes"`
		AllowedOrigins  []string      `envconfig:"HTTP_CORS_ALLOWED_ORIGINS" default:"*" json:"allowed_origins"`
	}

	AdminHTTPServer struct {
		Enabled         bool          `envconfig:"ADMIN_HTTP_SERVER_ENABLED" default:"true" json:"enabled"`
		Host            string        `envconfig:"ADMIN_HTTP_SERVER_HOST" default:"127.0.0.1" json:"host"`
		Port            uint          `envconfig:"ADMIN_HTTP_SERVER_PORT" default:"8081" json:"port"`
		ReadTimeout     time.Duration `envconfig:"ADMIN_HTTP_READ_TIMEOUT" default:"15s" json:"read_timeout"`
		WriteTimeout    time.Duration `envconfig:"ADMIN_HTTP_WRITE_TIMEOUT" default:"15s" json:"write_timeout"`
		IdleTimeout     time.Duration `envconfig:"ADMIN_HTTP_IDLE_TIMEOUT" default:"60s" json:"idle_timeout"`
		ShutdownTimeout time.Duration `envconfig:"ADMIN_HTTP_SHUTDOWN_TIMEOUT" default:"30s" json:"shutdown_timeout"`
	}

	GRPCServer struct {
		Enabled         bool          `envconfig:"GRPC_SERVER_ENABLED" default:"true" json:"enabled"`
		Host            string        `envconfig:"GRPC_SERVER_HOST" default:"0.0.0.0" json:"host"`
		Port            uint          `envconfig:"GRPC_SERVER_PORT" default:"9090" json:"port"`
		ShutdownTimeout time.Duration `envconfig:"GRPC_SHUTDOWN_TIMEOUT" default:"30s" json:"shutdown_timeout"`
		HealthInterval  time.Duration `envconfig:"GRPC_HEALTH_INTERVAL" default:"10s" json:"health_interval"`
		Reflection      bool          `envconfig:"GRPC_REFLECTION_ENABLED" default:"true" json:"reflection"`
	}

	Database struct {
		Host            string        `envconfig:"POSTGRES_HOST" default:"postgres" json:"host"`
		Port            uint          `envconfig:"POSTGRES_PORT" default:"5432" json:"port"`
		Database        string        `envconfig:"POSTGRES_DATABASE" default:"devices" json:"database"`
		Username        string        `envconfig:"POSTGRES_USERNAME" default:"postgres" json:"username"`
		Password        string        `envconfig:"POSTGRES_PASSWORD" default:"" json:"-"`
		SSLMode         string        `envconfig:"POSTGRES_SSL_MODE" default:"disable" json:"ssl_mode"`
		MaxConnections  int32         `envconfig:"POSTGRES_MAX_CONNECTIONS" default:"25" json:"max_connections"`
		MinConnections  int32         `envconfig:"POSTGRES_MIN_CONNECTIONS" default:"2" json:"min_connections"`
		ConnectTimeout  time.Duration `envconfig:"POSTGRES_CONNECT_TIMEOUT" default:"10s" json:"connect_timeout"`
		MaxConnLifetime time.Duration `envconfig:"POSTGRES_MAX_CONN_LIFETIME" default:"1h" json:"max_conn_lifetime"`
		MaxConnIdleTime time.Duration `envconfig:"POSTGRES_MAX_CONN_IDLE_TIME" default:"30m" json:"max_conn_idle_time"`
		QueryTimeout    time.Duration `envconfig:"DB_QUERY_TIMEOUT" default:"5s" json:"query_timeout"`
		MigrateOnStart  bool          `envconfig:"DB_MIGRATE_ON_START" default:"true" json:"migrate_on_start"`
	}

	Cache struct {
		Enabled      bool          `envconfig:"CACHE_ENABLED" default:"false" json:"enabled"`
		Address      string        `envconfig:"CACHE_ADDRESS" default:"redis:6379" json:"address"`
		Password     string        `envconfig:"CACHE_PASSWORD" default:"" json:"-"`
		DB           int           `envconfig:"CACHE_DB" default:"0" json:"db"`
		PoolSize     int           `envconfig:"CACHE_POOL_SIZE" default:"10" json:"pool_size"`
		MinIdleConns int           `envconfig:"CACHE_MIN_IDLE_CONNS" default:"2" json:"min_idle_conns"`
		DialTimeout  time.Duration `envconfig:"CACHE_DIAL_TIMEOUT" default:"5s" json:"dial_timeout"`
		ReadTimeout  time.Duration `envconfig:"CACHE_READ_TIMEOUT" default:"3s" json:"read_timeout"`
		WriteTimeout time.Duration `envconfig:"CACHE_WRITE_TIMEOUT" default:"3s" json:"write_timeout"`
		MaxRetries   int           `envconfig:"CACHE_MAX_RETRIES" default:"3" json:"max_retries"`
	}

	ThrottledRateLimiting struct {
		Enabled           bool     `envconfig:"RATE_LIMITING_ENABLED" default:"false" json:"enabled"`
		RequestsPerSecond uint     `envconfig:"RATE_LIMITING_REQUESTS_PER_SECOND" default:"10" json:"requests_per_second"`
		BurstSize         uint     `envconfig:"RATE_LIMITING_BURST_SIZE" default:"20" json:"burst_size"`
		SkipPaths         []string `envconfig:"RATE_LIMITING_SKIP_PATHS" default:"/health,/health/live,/health/ready" json:"skip_paths"`
		GracefulDegraded  bool     `envconfig:"RATE_LIMITING_GRACEFUL_DEGRADED" default:"true" json:"graceful_degraded"`
	}

	Idempotency struct {
		Enabled          bool          `envconfig:"IDEMPOTENCY_ENABLED" default:"false" json:"enabled"`
		CacheTTL         time.Duration `envconfig:"IDEMPOTENCY_CACHE_TTL" default:"24h" json:"cache_ttl"`
		LockTTL          time.Duration `envconfig:"IDEMPOTENCY_LOCK_TTL" default:"30s" json:"lock_ttl"`
		RequiredMethods  []string      `envconfig:"IDEMPOTENCY_REQUIRED_METHODS" default:"POST" json:"required_methods"`
		HeaderName       string        `envconfig:"IDEMPOTENCY_HEADER" default:"Idempotency-Key" json:"header_name"`
		ReplayedHeader   string        `envconfig:"IDEMPOTENCY_REPLAYED_HEADER" default:"Idempotent-Replayed" json:"replayed_header"`
		GracefulDegraded bool          `envconfig:"IDEMPOTENCY_GRACEFUL_DEGRADED" default:"true" json:"graceful_degraded"`
	}

	// Compression configures response compression.
	Compression struct {
		Enabled bool `envconfig:"COMPRESSION_ENABLED" default:"true" json:"enabled"`

		// Level is shared by gzip and brotli and must be within 1-9.
		Level int `envconfig:"COMPRESSION_LEVEL" default:"5" json:"level"`

		// MinSize is the smallest body, in bytes, worth compressing.
		MinSize int `envconfig:"COMPRESSION_MIN_SIZE" default:"1024" json:"min_size"`

		ContentTypes []string `envconfig:"COMPRESSION_CONTENT_TYPES" json:"content_types"`
		SkipPaths    []string `envconfig:"COMPRESSION_SKIP_PATHS" default:"/health,/health/live,/health/ready" json:"skip_paths"`
	}

	CircuitBreaker struct {
		Enabled          bool          `envconfig:"DB_CB_ENABLED" default:"true" json:"enabled"`
		MaxRequests      uint32        `envconfig:"DB_CB_MAX_REQUESTS" default:"5" json:"max_requests"`
		Interval         time.Duration `envconfig:"DB_CB_INTERVAL" default:"60s" json:"interval"`
		Timeout          time.Duration `envconfig:"DB_CB_TIMEOUT" default:"30s" json:"timeout"`
		FailureThreshold uint32        `envconfig:"DB_CB_FAILURE_THRESHOLD" default:"5" json:"failure_threshold"`
	}

	Backoff struct {
		BaseDelay   time.Duration `envconfig:"BACKOFF_BASE_DELAY" default:"1s" json:"base_delay"`
		Multiplier  float64       `envconfig:"BACKOFF_MULTIPLIER" default:"1.5" json:"multiplier"`
		Jitter      float64       `envconfig:"BACKOFF_JITTER" default:"0.3" json:"jitter"`
		MaxDelay    time.Duration `envconfig:"BACKOFF_MAX_DELAY" default:"10s" json:"max_delay"`
		MaxElapsed  time.Duration `envconfig:"BACKOFF_MAX_ELAPSED" default:"1m" json:"max_elapsed"`
		MaxAttempts uint          `envconfig:"BACKOFF_MAX_ATTEMPTS" default:"10" json:"max_attempts"`
	}

	Events struct {
		MQTT     MQTT     `json:"mqtt"`
		InfluxDB InfluxDB `json:"influxdb"`
	}

	MQTT struct {
		Enabled        bool          `envconfig:"MQTT_ENABLED" default:"false" json:"enabled"`
		Host           string        `envconfig:"MQTT_HOST" default:"mosquitto" json:"host"`
		Port           uint          `envconfig:"MQTT_PORT" default:"1883" json:"port"`
		TLS            bool          `envconfig:"MQTT_TLS" default:"false" json:"tls"`
		ClientID       string        `envconfig:"MQTT_CLIENT_ID" default:"svc-devices" json:"client_id"`
		Username       string        `envconfig:"MQTT_USERNAME" default:"" json:"username,omitempty"`
		Password       string        `envconfig:"MQTT_PASSWORD" default:"" json:"-"`
		TopicPrefix    string        `envconfig:"MQTT_TOPIC_PREFIX" default:"inventory" json:"topic_prefix"`
		QoS            byte          `envconfig:"MQTT_QOS" default:"1" json:"qos"`
		ConnectTimeout time.Duration `envconfig:"MQTT_CONNECT_TIMEOUT" default:"10s" json:"connect_timeout"`
		PublishTimeout time.Duration `envconfig:"MQTT_PUBLISH_TIMEOUT" default:"5s" json:"publish_timeout"`
	}

	InfluxDB struct {
		Enabled       bool          `envconfig:"INFLUXDB_ENABLED" default:"false" json:"enabled"`
		URL           string        `envconfig:"INFLUXDB_URL" default:"http://influxdb:8086" json:"url"`
		Token         string        `envconfig:"INFLUXDB_TOKEN" default:"" json:"-"`
		Org           string        `envconfig:"INFLUXDB_ORG" default:"inventory" json:"org"`
		Bucket        string        `envconfig:"INFLUXDB_BUCKET" default:"devices" json:"bucket"`
		BatchSize     uint          `envconfig:"INFLUXDB_BATCH_SIZE" default:"100" json:"batch_size"`
		FlushInterval time.Duration `envconfig:"INFLUXDB_FLUSH_INTERVAL" default:"1s" json:"flush_interval"`
	}

	Logging struct {
		Level     string    `envconfig:"LOG_LEVEL" default:"info" json:"level"`
		Format    string    `envconfig:"LOG_FORMAT" default:"json" json:"format"`
		AccessLog AccessLog `json:"access_log"`
	}

	AccessLog struct {
		Enabled            bool `envconfig:"ACCESS_LOG_ENABLED" default:"true" json:"enabled"`
		LogHealthChecks    bool `envconfig:"ACCESS_LOG_HEALTH_CHECKS" default:"false" json:"log_health_checks"`
		IncludeQueryParams bool `envconfig:"ACCESS_LOG_INCLUDE_QUERY_PARAMS" default:"true" json:"include_query_params"`
		IncludeMetadata    bool `envconfig:"ACCESS_LOG_INCLUDE_METADATA" default:"false" json:"include_metadata"`
	}

	Telemetry struct {
		Enabled      bool    `envconfig:"OTEL_ENABLED" default:"false" json:"enabled"`
		ExporterType string  `envconfig:"OTEL_EXPORTER" default:"grpc" json:"exporter_type"`
		OTLPEndpoint string  `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"" json:"otlp_endpoint"`
		Metrics      Metrics `json:"metrics"`
		Traces       Traces  `json:"traces"`
	}

	Metrics struct {
		Enabled bool `envconfig:"METRICS_ENABLED" default:"true" json:"enabled"`
	}

	Traces struct {
		Enabled      bool    `envconfig:"TRACES_ENABLED" default:"false" json:"enabled"`
		SamplerRatio float64 `envconfig:"TRACES_SAMPLER_RATIO" default:"1.0" json:"sampler_ratio"`
	}
)

func (c *ServiceConfig) GetEnvironment() int {
	switch c.App.Env.Name {
	case "production", "prod":
		return Production
	case "staging", "stg":
		return Staging
	case "sandbox", "sbx":
		return Sandbox
	default:
		return Development
	}
}

func (c *ServiceConfig) IsProduction() bool {
	return c.GetEnvironment() == Production
}

// Version reports the ldflags build version, falling back to "dev".
func (c *ServiceConfig) Version() string {
	if ServiceVersion == "" {
		return "dev"
	}

	return ServiceVersion
}

// DSN renders the pgx connection string.
func (d Database) DSN() string {
	dsn := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.Username, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.Database,
	}

	query := dsn.Query()
	query.Set("sslmode", d.SSLMode)
	query.Set("connect_timeout", fmt.Sprintf("%d", int(d.ConnectTimeout.Seconds())))
	dsn.RawQuery = query.Encode()

	return dsn.String()
}

// Validate validates the Compression configuration.
func (c *Compression) Validate() error {
	if c.Level < 1 || c.Level > 9 {
		return fmt.Errorf("compression level must be between 1 and 9, got %d", c.Level)
	}

	if c.MinSize < 0 {
		return fmt.Errorf("compression min_size must be non-negative, got %d", c.MinSize)
	}

	return nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *ServiceConfig) Validate() error {
	if c.Compression.Enabled {
		if err := c.Compression.Validate(); err != nil {
			return err
		}
	}

	if c.Database.MinConnections > c.Database.MaxConnections {
		return fmt.Errorf("postgres min connections (%d) exceed max connections (%d)",
			c.Database.MinConnections, c.Database.MaxConnections)
	}

	if c.Events.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.Events.MQTT.QoS)
	}

	if (c.Idempotency.Enabled || c.ThrottledRateLimiting.Enabled) && !c.Cache.Enabled {
		return fmt.Errorf("idempotency and rate limiting require CACHE_ENABLED=true")
	}

	return nil
}
