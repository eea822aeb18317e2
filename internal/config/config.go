package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/oziev02/pixelflex/internal/domain"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Redis   RedisConfig   `yaml:"redis"`
	S3      S3Config      `yaml:"s3"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Image   ImageConfig   `yaml:"image"`
	Gemini  GeminiConfig  `yaml:"gemini"`
	Inbox   InboxConfig   `yaml:"inbox"`
	Sentry  SentryConfig  `yaml:"sentry"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadSize   int64         `yaml:"max_upload_size"`
}

type StorageConfig struct {
	// Backend is one of memory, fs, redis, s3.
	Backend  string `yaml:"backend"`
	BasePath string `yaml:"base_path"`
}

type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	Namespace string        `yaml:"namespace"`
	TTL       time.Duration `yaml:"ttl"`
}

// S3Config points at any S3-compatible bucket (AWS, R2, MinIO). Endpoint is
// empty for AWS itself.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Prefix          string `yaml:"prefix"`
}

// KafkaConfig is optional. With no brokers, events are not sent to Kafka.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type ImageConfig struct {
	MaxFileSize    int64  `yaml:"max_file_size"`
	PreviewSize    int    `yaml:"preview_size"`
	DefaultFormat  string `yaml:"default_format"`
	DefaultQuality int    `yaml:"default_quality"`
}

type GeminiConfig struct {
	APIKey        string        `yaml:"api_key"`
	Endpoint      string        `yaml:"endpoint"`
	EnhanceModel  string        `yaml:"enhance_model"`
	DescribeModel string        `yaml:"describe_model"`
	Timeout       time.Duration `yaml:"timeout"`
}

type InboxConfig struct {
	Dir      string        `yaml:"dir"`
	Debounce time.Duration `yaml:"debounce"`
}

type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

const (
	StorageMemory = "memory"
	StorageFS     = "fs"
	StorageRedis  = "redis"
	StorageS3     = "s3"
)

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			MaxUploadSize:   200 * 1024 * 1024,
		},
		Storage: StorageConfig{
			Backend:  StorageMemory,
			BasePath: "./storage",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			Namespace: "pixelflex",
			TTL:       24 * time.Hour,
		},
		S3: S3Config{
			Region: "auto",
			Prefix: "pixelflex",
		},
		Kafka: KafkaConfig{
			Topic: "pixelflex-events",
		},
		Image: ImageConfig{
			MaxFileSize:    5 * 1024 * 1024, // 5MB
			PreviewSize:    256,
			DefaultFormat:  string(domain.FormatPNG),
			DefaultQuality: domain.DefaultQuality,
		},
		Gemini: GeminiConfig{
			EnhanceModel:  "gemini-2.5-flash-image",
			DescribeModel: "gemini-3-flash-preview",
			Timeout:       60 * time.Second,
		},
		Inbox: InboxConfig{
			Debounce: 500 * time.Millisecond,
		},
		Sentry: SentryConfig{
			Environment: "development",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by CONFIG_FILE, and environment variables, in increasing precedence.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvInt("SERVER_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.MaxUploadSize = getEnvInt64("SERVER_MAX_UPLOAD_SIZE", c.Server.MaxUploadSize)

	c.Storage.Backend = strings.ToLower(getEnv("STORAGE_BACKEND", c.Storage.Backend))
	c.Storage.BasePath = getEnv("STORAGE_BASE_PATH", c.Storage.BasePath)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)
	c.Redis.Namespace = getEnv("REDIS_NAMESPACE", c.Redis.Namespace)
	c.Redis.TTL = getEnvDuration("REDIS_TTL", c.Redis.TTL)

	c.S3.Bucket = getEnv("S3_BUCKET", c.S3.Bucket)
	c.S3.Region = getEnv("S3_REGION", c.S3.Region)
	c.S3.Endpoint = getEnv("S3_ENDPOINT", c.S3.Endpoint)
	c.S3.AccessKeyID = getEnv("S3_ACCESS_KEY_ID", c.S3.AccessKeyID)
	c.S3.SecretAccessKey = getEnv("S3_SECRET_ACCESS_KEY", c.S3.SecretAccessKey)
	c.S3.Prefix = getEnv("S3_PREFIX", c.S3.Prefix)

	c.Kafka.Brokers = getEnvSlice("KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.Topic = getEnv("KAFKA_TOPIC", c.Kafka.Topic)

	c.Image.MaxFileSize = getEnvInt64("IMAGE_MAX_FILE_SIZE", c.Image.MaxFileSize)
	c.Image.PreviewSize = getEnvInt("IMAGE_PREVIEW_SIZE", c.Image.PreviewSize)
	c.Image.DefaultFormat = getEnv("IMAGE_DEFAULT_FORMAT", c.Image.DefaultFormat)
	c.Image.DefaultQuality = getEnvInt("IMAGE_DEFAULT_QUALITY", c.Image.DefaultQuality)

	c.Gemini.APIKey = getEnv("GEMINI_API_KEY", getEnv("API_KEY", c.Gemini.APIKey))
	c.Gemini.Endpoint = getEnv("GEMINI_ENDPOINT", c.Gemini.Endpoint)
	c.Gemini.EnhanceModel = getEnv("GEMINI_ENHANCE_MODEL", c.Gemini.EnhanceModel)
	c.Gemini.DescribeModel = getEnv("GEMINI_DESCRIBE_MODEL", c.Gemini.DescribeModel)
	c.Gemini.Timeout = getEnvDuration("GEMINI_TIMEOUT", c.Gemini.Timeout)

	c.Inbox.Dir = getEnv("INBOX_DIR", c.Inbox.Dir)
	c.Inbox.Debounce = getEnvDuration("INBOX_DEBOUNCE", c.Inbox.Debounce)

	c.Sentry.DSN = getEnv("SENTRY_DSN", c.Sentry.DSN)
	c.Sentry.Environment = getEnv("SENTRY_ENVIRONMENT", c.Sentry.Environment)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d is out of range", c.Server.Port)
	}

	switch c.Storage.Backend {
	case StorageMemory:
	case StorageFS:
		if c.Storage.BasePath == "" {
			return fmt.Errorf("storage base path is required")
		}
	case StorageRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis address is required")
		}
	case StorageS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("s3 bucket is required")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka topic is required when brokers are set")
	}

	if c.Image.PreviewSize <= 0 {
		return fmt.Errorf("image preview size must be positive")
	}
	if err := c.Image.DefaultOptions().Validate(); err != nil {
		return fmt.Errorf("image defaults: %w", err)
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// DefaultOptions returns the options a fresh queue starts with.
func (c ImageConfig) DefaultOptions() domain.ConversionOptions {
	opts := domain.DefaultOptions()
	if c.DefaultFormat != "" {
		opts.Format = domain.ImageFormat(strings.ToLower(c.DefaultFormat))
		if f, err := domain.ParseFormat(c.DefaultFormat); err == nil {
			opts.Format = f
		}
	}
	if c.DefaultQuality != 0 {
		opts.Quality = c.DefaultQuality
	}
	return opts
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		// Split by comma and trim spaces
		var result []string
		parts := strings.Split(value, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
