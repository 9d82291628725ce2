package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config represents the entire application configuration
type Config struct {
	Env      string         `json:"env"`
	Port     int            `json:"port"`
	AppName  string         `json:"app_name"`
	Direct   DirectConfig   `json:"direct"`
	Postgres PostgresConfig `json:"postgres"`
	MongoDB  MongoDBConfig  `json:"mongodb"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
	AWS      AWSConfig      `json:"aws"`
	Engine   EngineConfig   `json:"engine"`
	Schedule ScheduleConfig `json:"schedule"`
	Logging  LoggingConfig  `json:"logging"`
	CORS     CORSConfig     `json:"cors"`
	Invoke   InvokeConfig   `json:"invoke"`
}

// RedisConfig contains the report cache connection. ReportTTL is in seconds.
type RedisConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	Prefix    string `json:"prefix"`
	ReportTTL int    `json:"report_ttl"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age,omitempty"`
}

// DirectConfig contains Yandex Direct API settings
type DirectConfig struct {
	BaseURL           string  `json:"base_url"`
	RequestTimeout    int     `json:"request_timeout"`
	MaxRetries        int     `json:"max_retries"`
	BackoffInitial    int     `json:"backoff_initial"`
	BackoffMax        int     `json:"backoff_max"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	Language          string  `json:"language"`
}

// PostgresConfig contains the relational store connection details
type PostgresConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

// MongoDBConfig contains MongoDB connection details
type MongoDBConfig struct {
	URI      string `json:"uri"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       string `json:"db"`
}

type RabbitMQConfig struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	VHost         string `json:"vhost"`
	ExchangeName  string `json:"exchange_name"`
	QueueName     string `json:"queue_name"`
	RoutingKey    string `json:"routing_key"`
	PrefetchCount int    `json:"prefetch_count"`
}

// AWSConfig controls the raw report archive. An empty bucket disables it.
type AWSConfig struct {
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
}

// EngineConfig holds the placement engine constants
type EngineConfig struct {
	SoftCapacity      int     `json:"soft_capacity"`
	HardCapacity      int     `json:"hard_capacity"`
	RotationFraction  float64 `json:"rotation_fraction"`
	LockTTL           int     `json:"lock_ttl"`
	BatchSize         int     `json:"batch_size"`
	MaxBatchRetries   int     `json:"max_batch_retries"`
	QueueMaxAttempts  int     `json:"queue_max_attempts"`
	PendingMaxRetries int     `json:"pending_max_retries"`
	PendingRetryAfter int     `json:"pending_retry_after"`
	PendingMaxAge     int     `json:"pending_max_age"`
	ReportWindows     []int   `json:"report_windows"`
	DispatchProjects  int     `json:"dispatch_projects"`
	ScheduleInterval  int     `json:"schedule_interval"`
	InvokeWorker      bool    `json:"invoke_worker"`
	InvokeTimeout     int     `json:"invoke_timeout"`
	InvokeParallelism int     `json:"invoke_parallelism"`
	BatchStaleAfter   int     `json:"batch_stale_after"`
}

// ScheduleConfig contains cron specs for the scheduler binary
type ScheduleConfig struct {
	Dispatch       string `json:"dispatch"`
	PollReports    string `json:"poll_reports"`
	ReprocessBatch string `json:"reprocess_batches"`
	SweepLocks     string `json:"sweep_locks"`
}

// InvokeConfig describes how the dispatcher reaches a worker synchronously
type InvokeConfig struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

// LoggingConfig contains logging-related configurations
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// LoadConfig reads configuration from the specified file path
func LoadConfig(filePath string) (*Config, error) {
	configData, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(configData, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Path returns the config file location, honouring RSYA_CONFIG
func Path() string {
	if p := os.Getenv("RSYA_CONFIG"); p != "" {
		return p
	}
	return "config/config.json"
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.AppName == "" {
		c.AppName = "rsyaclean"
	}
	if c.Direct.BaseURL == "" {
		c.Direct.BaseURL = "https://api.direct.yandex.com/json/v5"
	}
	if c.Direct.RequestTimeout == 0 {
		c.Direct.RequestTimeout = 30
	}
	if c.Direct.MaxRetries == 0 {
		c.Direct.MaxRetries = 5
	}
	if c.Direct.BackoffInitial == 0 {
		c.Direct.BackoffInitial = 1
	}
	if c.Direct.BackoffMax == 0 {
		c.Direct.BackoffMax = 30
	}
	if c.Direct.RequestsPerSecond == 0 {
		c.Direct.RequestsPerSecond = 5
	}
	if c.Direct.Language == "" {
		c.Direct.Language = "ru"
	}
	if c.Postgres.SSLMode == "" {
		c.Postgres.SSLMode = "disable"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "rsya"
	}
	if c.Redis.ReportTTL == 0 {
		c.Redis.ReportTTL = 900
	}
	if c.RabbitMQ.ExchangeName == "" {
		c.RabbitMQ.ExchangeName = "rsya"
	}
	if c.RabbitMQ.QueueName == "" {
		c.RabbitMQ.QueueName = "rsya.batches"
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = c.RabbitMQ.QueueName
	}

	e := &c.Engine
	if e.SoftCapacity == 0 {
		e.SoftCapacity = 950
	}
	if e.HardCapacity == 0 {
		e.HardCapacity = 1000
	}
	if e.RotationFraction == 0 {
		e.RotationFraction = 0.2
	}
	if e.LockTTL == 0 {
		e.LockTTL = 300
	}
	if e.BatchSize == 0 {
		e.BatchSize = 7
	}
	if e.MaxBatchRetries == 0 {
		e.MaxBatchRetries = 3
	}
	if e.QueueMaxAttempts == 0 {
		e.QueueMaxAttempts = 3
	}
	if e.PendingMaxRetries == 0 {
		e.PendingMaxRetries = 10
	}
	if e.PendingRetryAfter == 0 {
		e.PendingRetryAfter = 300
	}
	if e.PendingMaxAge == 0 {
		e.PendingMaxAge = 86400
	}
	if len(e.ReportWindows) == 0 {
		// today, yesterday, last 7 days
		e.ReportWindows = []int{0, 1, 7}
	}
	if e.DispatchProjects == 0 {
		e.DispatchProjects = 50
	}
	if e.ScheduleInterval == 0 {
		e.ScheduleInterval = 3600
	}
	if e.InvokeTimeout == 0 {
		e.InvokeTimeout = 10
	}
	if e.InvokeParallelism == 0 {
		e.InvokeParallelism = 4
	}
	if e.BatchStaleAfter == 0 {
		e.BatchStaleAfter = 900
	}

	s := &c.Schedule
	if s.Dispatch == "" {
		s.Dispatch = "@every 5m"
	}
	if s.PollReports == "" {
		s.PollReports = "@every 5m"
	}
	if s.ReprocessBatch == "" {
		s.ReprocessBatch = "@every 10m"
	}
	if s.SweepLocks == "" {
		s.SweepLocks = "@every 15m"
	}

	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	if len(c.CORS.AllowedMethods) == 0 {
		c.CORS.AllowedMethods = []string{"GET", "POST"}
	}
	if len(c.CORS.AllowedHeaders) == 0 {
		c.CORS.AllowedHeaders = []string{"Authorization", "Content-Type"}
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate rejects engine settings the reconciler cannot honour and CORS
// settings the router would refuse
func (c *Config) Validate() error {
	e := c.Engine
	if e.SoftCapacity <= 0 || e.HardCapacity <= 0 {
		return fmt.Errorf("capacities must be positive")
	}
	if e.SoftCapacity > e.HardCapacity {
		return fmt.Errorf("soft capacity %d exceeds hard capacity %d", e.SoftCapacity, e.HardCapacity)
	}
	if e.RotationFraction <= 0 || e.RotationFraction > 1 {
		return fmt.Errorf("rotation fraction must be in (0, 1], got %v", e.RotationFraction)
	}
	if e.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	for _, w := range e.ReportWindows {
		if w < 0 {
			return fmt.Errorf("report window %d is negative", w)
		}
	}

	if len(c.CORS.AllowedOrigins) == 0 {
		return fmt.Errorf("cors needs at least one allowed origin")
	}
	for _, o := range c.CORS.AllowedOrigins {
		if !strings.Contains(o, "*") && !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			return fmt.Errorf("cors origin %q needs an http(s) scheme", o)
		}
	}
	return nil
}

func (e EngineConfig) LockDuration() time.Duration {
	return time.Duration(e.LockTTL) * time.Second
}

func (e EngineConfig) PendingRetryDelay() time.Duration {
	return time.Duration(e.PendingRetryAfter) * time.Second
}

func (e EngineConfig) PendingAgeLimit() time.Duration {
	return time.Duration(e.PendingMaxAge) * time.Second
}

func (e EngineConfig) InvokeDeadline() time.Duration {
	return time.Duration(e.InvokeTimeout) * time.Second
}

// BatchStaleDuration is how long a batch may sit in processing before
// another worker may claim it
func (e EngineConfig) BatchStaleDuration() time.Duration {
	return time.Duration(e.BatchStaleAfter) * time.Second
}

func (e EngineConfig) ScheduleEvery() time.Duration {
	return time.Duration(e.ScheduleInterval) * time.Second
}
