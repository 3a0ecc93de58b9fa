// Package config provides configuration management and environment variable handling for the application
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database  DatabaseConfig  `json:"database"`
	Server    ServerConfig    `json:"server"`
	Security  SecurityConfig  `json:"security"`
	JWT       JWTConfig       `json:"jwt"`
	Cache     CacheConfig     `json:"cache"`
	Queue     QueueConfig     `json:"queue"`
	Scheduler SchedulerConfig `json:"scheduler"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Email     EmailConfig     `json:"email"`
	SMS       SMSConfig       `json:"sms"`
	WhatsApp  WhatsAppConfig  `json:"whatsapp"`
	Kafka     KafkaConfig     `json:"kafka"`
	Logging   LoggingConfig   `json:"logging"`
	Metrics   MetricsConfig   `json:"metrics"`
	Webhooks  WebhookConfig   `json:"webhooks"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
}

// DSN returns the postgres connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type ServerConfig struct {
	Host              string        `json:"host"`
	Port              int           `json:"port"`
	ReadTimeout       time.Duration `json:"read_timeout"`
	WriteTimeout      time.Duration `json:"write_timeout"`
	IdleTimeout       time.Duration `json:"idle_timeout"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout"`
	BodyLimit         int           `json:"body_limit"`
	EnableCompression bool          `json:"enable_compression"`
}

type SecurityConfig struct {
	AllowedOrigins   []string      `json:"allowed_origins"`
	AllowedMethods   []string      `json:"allowed_methods"`
	AllowedHeaders   []string      `json:"allowed_headers"`
	AllowCredentials bool          `json:"allow_credentials"`
	CORSMaxAge       int           `json:"cors_max_age"`
	GlobalRateLimit  int           `json:"global_rate_limit"` // requests per window per IP
	GlobalRateWindow time.Duration `json:"global_rate_window"`
}

type JWTConfig struct {
	SecretKey      string        `json:"secret_key"`
	PrivateKey     string        `json:"private_key"`
	PublicKey      string        `json:"public_key"`
	UseRSAKeys     bool          `json:"use_rsa_keys"`
	AccessTokenTTL time.Duration `json:"access_token_ttl"`
	Issuer         string        `json:"issuer"`
	Audience       string        `json:"audience"`
}

type CacheConfig struct {
	Enabled     bool   `json:"enabled"`
	RedisURL    string `json:"redis_url"`
	RedisDB     int    `json:"redis_db"`
	RedisPrefix string `json:"redis_prefix"`
}

type QueueConfig struct {
	Backend              string        `json:"backend"` // memory, redis
	Attempts             int           `json:"attempts"`
	BackoffBase          time.Duration `json:"backoff_base"`
	Concurrency          int           `json:"concurrency"`
	PollInterval         time.Duration `json:"poll_interval"`
	RetryPermanentErrors bool          `json:"retry_permanent_errors"`
	DeadLetterLimit      int           `json:"dead_letter_limit"`
	VisibilityTimeout    time.Duration `json:"visibility_timeout"`
}

type SchedulerConfig struct {
	Enabled   bool   `json:"enabled"`
	Spec      string `json:"spec"`
	BatchSize int    `json:"batch_size"`
}

type RateLimitConfig struct {
	Backend           string        `json:"backend"` // memory, redis
	RetryPerMessage   int           `json:"retry_per_message"`
	RetryPerTenant    int           `json:"retry_per_tenant"`
	SchedulePerTenant int           `json:"schedule_per_tenant"`
	Window            time.Duration `json:"window"`
}

type EmailConfig struct {
	Provider  string        `json:"provider"` // mock, smtp
	Host      string        `json:"host"`
	Port      int           `json:"port"`
	Username  string        `json:"username"`
	Password  string        `json:"password"`
	FromEmail string        `json:"from_email"`
	FromName  string        `json:"from_name"`
	Timeout   time.Duration `json:"timeout"`
}

type SMSConfig struct {
	Provider            string        `json:"provider"` // mock, twilio
	BaseURL             string        `json:"base_url"`
	AccountSID          string        `json:"account_sid"`
	AuthToken           string        `json:"auth_token"`
	FromNumber          string        `json:"from_number"`
	MessagingServiceSID string        `json:"messaging_service_sid"`
	StatusCallbackURL   string        `json:"status_callback_url"`
	Timeout             time.Duration `json:"timeout"`
}

type WhatsAppConfig struct {
	Provider      string        `json:"provider"` // mock, cloud
	BaseURL       string        `json:"base_url"`
	APIVersion    string        `json:"api_version"`
	PhoneNumberID string        `json:"phone_number_id"`
	AccessToken   string        `json:"access_token"`
	VerifyToken   string        `json:"verify_token"`
	Timeout       time.Duration `json:"timeout"`
}

type KafkaConfig struct {
	Enabled  bool     `json:"enabled"`
	Brokers  []string `json:"brokers"`
	Topic    string   `json:"topic"`
	GroupID  string   `json:"group_id"`
	MinBytes int      `json:"min_bytes"`
	MaxBytes int      `json:"max_bytes"`
}

type LoggingConfig struct {
	Level      string `json:"level"`  // debug, info, warn, error
	Output     string `json:"output"` // stdout, file, both
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type WebhookConfig struct {
	// SharedSecret guards the mock webhook; empty disables the check
	SharedSecret string `json:"shared_secret"`
}

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "dispatch"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryTime:   getEnvDuration("DB_SLOW_QUERY_TIME", time.Second),
		},
		Server: ServerConfig{
			Host:              getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:              getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:       getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:      getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:       getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout:   getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:         getEnvInt("SERVER_BODY_LIMIT", 4*1024*1024),
			EnableCompression: getEnvBool("SERVER_ENABLE_COMPRESSION", true),
		},
		Security: SecurityConfig{
			AllowedOrigins:   getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			AllowedMethods:   getEnvStringSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders:   getEnvStringSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}),
			AllowCredentials: getEnvBool("CORS_ALLOW_CREDENTIALS", false),
			CORSMaxAge:       getEnvInt("CORS_MAX_AGE", 86400),
			GlobalRateLimit:  getEnvInt("GLOBAL_RATE_LIMIT", 600),
			GlobalRateWindow: getEnvDuration("GLOBAL_RATE_WINDOW", time.Minute),
		},
		JWT: JWTConfig{
			SecretKey:      getEnvString("JWT_SECRET_KEY", ""),
			PrivateKey:     getEnvString("JWT_PRIVATE_KEY", ""),
			PublicKey:      getEnvString("JWT_PUBLIC_KEY", ""),
			UseRSAKeys:     getEnvBool("JWT_USE_RSA_KEYS", false),
			AccessTokenTTL: getEnvDuration("JWT_ACCESS_TOKEN_TTL", 24*time.Hour),
			Issuer:         getEnvString("JWT_ISSUER", "ats-dispatch"),
			Audience:       getEnvString("JWT_AUDIENCE", "ats-dispatch-api"),
		},
		Cache: CacheConfig{
			Enabled:     getEnvBool("CACHE_ENABLED", false),
			RedisURL:    getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:     getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix: getEnvString("CACHE_REDIS_PREFIX", "dispatch:"),
		},
		Queue: QueueConfig{
			Backend:              getEnvString("QUEUE_BACKEND", "memory"),
			Attempts:             getEnvInt("QUEUE_ATTEMPTS", 3),
			BackoffBase:          getEnvDuration("QUEUE_BACKOFF_BASE", time.Second),
			Concurrency:          getEnvInt("QUEUE_CONCURRENCY", 4),
			PollInterval:         getEnvDuration("QUEUE_POLL_INTERVAL", time.Second),
			RetryPermanentErrors: getEnvBool("QUEUE_RETRY_PERMANENT_ERRORS", false),
			DeadLetterLimit:      getEnvInt("QUEUE_DEAD_LETTER_LIMIT", 1000),
			VisibilityTimeout:    getEnvDuration("QUEUE_VISIBILITY_TIMEOUT", 5*time.Minute),
		},
		Scheduler: SchedulerConfig{
			Enabled:   getEnvBool("SCHEDULER_ENABLED", true),
			Spec:      getEnvString("SCHEDULER_SPEC", "@every 1m"),
			BatchSize: getEnvInt("SCHEDULER_BATCH_SIZE", 100),
		},
		RateLimit: RateLimitConfig{
			Backend:           getEnvString("RATE_LIMIT_BACKEND", "memory"),
			RetryPerMessage:   getEnvInt("RATE_LIMIT_RETRY_PER_MESSAGE", 5),
			RetryPerTenant:    getEnvInt("RATE_LIMIT_RETRY_PER_TENANT", 50),
			SchedulePerTenant: getEnvInt("RATE_LIMIT_SCHEDULE_PER_TENANT", 20),
			Window:            getEnvDuration("RATE_LIMIT_WINDOW", time.Hour),
		},
		Email: EmailConfig{
			Provider:  getEnvString("EMAIL_PROVIDER", "mock"),
			Host:      getEnvString("EMAIL_HOST", ""),
			Port:      getEnvInt("EMAIL_PORT", 587),
			Username:  getEnvString("EMAIL_USERNAME", ""),
			Password:  getEnvString("EMAIL_PASSWORD", ""),
			FromEmail: getEnvString("EMAIL_FROM_EMAIL", "no-reply@localhost"),
			FromName:  getEnvString("EMAIL_FROM_NAME", "Recruiting"),
			Timeout:   getEnvDuration("EMAIL_TIMEOUT", 30*time.Second),
		},
		SMS: SMSConfig{
			Provider:            getEnvString("SMS_PROVIDER", "mock"),
			BaseURL:             getEnvString("TWILIO_BASE_URL", "https://api.twilio.com"),
			AccountSID:          getEnvString("TWILIO_ACCOUNT_SID", ""),
			AuthToken:           getEnvString("TWILIO_AUTH_TOKEN", ""),
			FromNumber:          getEnvString("TWILIO_FROM_NUMBER", ""),
			MessagingServiceSID: getEnvString("TWILIO_MESSAGING_SERVICE_SID", ""),
			StatusCallbackURL:   getEnvString("TWILIO_STATUS_CALLBACK_URL", ""),
			Timeout:             getEnvDuration("SMS_TIMEOUT", 30*time.Second),
		},
		WhatsApp: WhatsAppConfig{
			Provider:      getEnvString("WHATSAPP_PROVIDER", "mock"),
			BaseURL:       getEnvString("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
			APIVersion:    getEnvString("WHATSAPP_API_VERSION", "v19.0"),
			PhoneNumberID: getEnvString("WHATSAPP_PHONE_NUMBER_ID", ""),
			AccessToken:   getEnvString("WHATSAPP_ACCESS_TOKEN", ""),
			VerifyToken:   getEnvString("WHATSAPP_VERIFY_TOKEN", ""),
			Timeout:       getEnvDuration("WHATSAPP_TIMEOUT", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Enabled:  getEnvBool("KAFKA_ENABLED", false),
			Brokers:  getEnvStringSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:    getEnvString("KAFKA_AUTOMATION_TOPIC", "ats.automation.events"),
			GroupID:  getEnvString("KAFKA_GROUP_ID", "ats-dispatch"),
			MinBytes: getEnvInt("KAFKA_MIN_BYTES", 1),
			MaxBytes: getEnvInt("KAFKA_MAX_BYTES", 10*1024*1024),
		},
		Logging: LoggingConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			Output:     getEnvString("LOG_OUTPUT", "stdout"),
			FilePath:   getEnvString("LOG_FILE_PATH", "/var/log/ats-dispatch/app.log"),
			MaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:     getEnvInt("LOG_MAX_AGE", 30),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Webhooks: WebhookConfig{
			SharedSecret: getEnvString("WEBHOOK_SHARED_SECRET", ""),
		},
	}

	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads environment variables from .env (or ENV_FILE) if it exists; real env wins
func loadEnvFile() error {
	path := getEnvString("ENV_FILE", ".env")
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errs []string

	// Database
	if cfg.Database.Host == "" {
		errs = append(errs, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errs = append(errs, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errs = append(errs, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errs = append(errs, "DB_USER is required")
	}

	// JWT
	if cfg.JWT.UseRSAKeys {
		if cfg.JWT.PrivateKey == "" || cfg.JWT.PublicKey == "" {
			errs = append(errs, "JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are required when JWT_USE_RSA_KEYS is set")
		}
	} else if len(cfg.JWT.SecretKey) < 32 {
		errs = append(errs, "JWT_SECRET_KEY must be at least 32 characters long")
	}
	if cfg.JWT.AccessTokenTTL <= 0 {
		errs = append(errs, "JWT_ACCESS_TOKEN_TTL must be positive")
	}

	// Server
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 || cfg.Server.WriteTimeout <= 0 || cfg.Server.IdleTimeout <= 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT, SERVER_WRITE_TIMEOUT and SERVER_IDLE_TIMEOUT must be positive")
	}

	// Queue
	if !slices.Contains([]string{"memory", "redis"}, cfg.Queue.Backend) {
		errs = append(errs, "QUEUE_BACKEND must be one of: memory, redis")
	}
	if cfg.Queue.Attempts < 1 {
		errs = append(errs, "QUEUE_ATTEMPTS must be at least 1")
	}
	if cfg.Queue.BackoffBase <= 0 {
		errs = append(errs, "QUEUE_BACKOFF_BASE must be positive")
	}
	if cfg.Queue.Concurrency < 1 {
		errs = append(errs, "QUEUE_CONCURRENCY must be at least 1")
	}
	if cfg.Queue.VisibilityTimeout <= 0 {
		errs = append(errs, "QUEUE_VISIBILITY_TIMEOUT must be positive")
	}

	// Scheduler
	if cfg.Scheduler.Enabled {
		if cfg.Scheduler.Spec == "" {
			errs = append(errs, "SCHEDULER_SPEC is required when the scheduler is enabled")
		}
		if cfg.Scheduler.BatchSize < 1 {
			errs = append(errs, "SCHEDULER_BATCH_SIZE must be at least 1")
		}
	}

	// Rate limits
	if !slices.Contains([]string{"memory", "redis"}, cfg.RateLimit.Backend) {
		errs = append(errs, "RATE_LIMIT_BACKEND must be one of: memory, redis")
	}
	if cfg.RateLimit.RetryPerMessage < 1 || cfg.RateLimit.RetryPerTenant < 1 || cfg.RateLimit.SchedulePerTenant < 1 {
		errs = append(errs, "RATE_LIMIT_* ceilings must be at least 1")
	}
	if cfg.RateLimit.Window <= 0 {
		errs = append(errs, "RATE_LIMIT_WINDOW must be positive")
	}

	// Redis is needed by either redis-backed component
	if (cfg.Queue.Backend == "redis" || cfg.RateLimit.Backend == "redis") && cfg.Cache.RedisURL == "" {
		errs = append(errs, "CACHE_REDIS_URL is required when a redis backend is selected")
	}

	// Providers
	switch cfg.Email.Provider {
	case "mock":
	case "smtp":
		if cfg.Email.Host == "" {
			errs = append(errs, "EMAIL_HOST is required for the smtp provider")
		}
		if cfg.Email.FromEmail == "" {
			errs = append(errs, "EMAIL_FROM_EMAIL is required for the smtp provider")
		}
	default:
		errs = append(errs, "EMAIL_PROVIDER must be one of: mock, smtp")
	}

	switch cfg.SMS.Provider {
	case "mock":
	case "twilio":
		if cfg.SMS.AccountSID == "" || cfg.SMS.AuthToken == "" {
			errs = append(errs, "TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN are required for the twilio provider")
		}
		if cfg.SMS.FromNumber == "" && cfg.SMS.MessagingServiceSID == "" {
			errs = append(errs, "TWILIO_FROM_NUMBER or TWILIO_MESSAGING_SERVICE_SID is required for the twilio provider")
		}
	default:
		errs = append(errs, "SMS_PROVIDER must be one of: mock, twilio")
	}

	switch cfg.WhatsApp.Provider {
	case "mock":
	case "cloud":
		if cfg.WhatsApp.PhoneNumberID == "" || cfg.WhatsApp.AccessToken == "" {
			errs = append(errs, "WHATSAPP_PHONE_NUMBER_ID and WHATSAPP_ACCESS_TOKEN are required for the cloud provider")
		}
	default:
		errs = append(errs, "WHATSAPP_PROVIDER must be one of: mock, cloud")
	}

	// Kafka
	if cfg.Kafka.Enabled {
		if len(cfg.Kafka.Brokers) == 0 {
			errs = append(errs, "KAFKA_BROKERS is required when kafka is enabled")
		}
		if cfg.Kafka.Topic == "" || cfg.Kafka.GroupID == "" {
			errs = append(errs, "KAFKA_AUTOMATION_TOPIC and KAFKA_GROUP_ID are required when kafka is enabled")
		}
	}

	// Logging
	validLevels := []string{"debug", "info", "warn", "error"}
	if cfg.Logging.Level != "" && !slices.Contains(validLevels, cfg.Logging.Level) {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL must be one of: %v", validLevels))
	}
	if !slices.Contains([]string{"stdout", "file", "both"}, cfg.Logging.Output) {
		errs = append(errs, "LOG_OUTPUT must be one of: stdout, file, both")
	}
	if cfg.Logging.Output != "stdout" && cfg.Logging.FilePath == "" {
		errs = append(errs, "LOG_FILE_PATH is required when logging to a file")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}
