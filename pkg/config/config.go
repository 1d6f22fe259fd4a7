package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the configuration for the upload service
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	Auth     AuthConfig     `yaml:"auth"`
	Upload   UploadConfig   `yaml:"upload"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// DatabaseConfig holds catalog database connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// RedisConfig holds Redis connection settings for the token registry
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StorageConfig holds on-disk layout configuration
type StorageConfig struct {
	// LocalPath is the root under which staging and recordings live.
	LocalPath     string `yaml:"local_path"`
	StagingDir    string `yaml:"staging_dir"`
	RecordingsDir string `yaml:"recordings_dir"`
}

// AuthConfig holds capability token settings
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	// TokenIdleTTL is the sliding window a token stays valid without use.
	TokenIdleTTL time.Duration `yaml:"token_idle_ttl"`
	// TokenMaxLifetime is the hard cap baked into the signed token.
	TokenMaxLifetime time.Duration `yaml:"token_max_lifetime"`
}

// UploadConfig holds chunked upload limits and reaper settings
type UploadConfig struct {
	MaxChunkBytes  int64         `yaml:"max_chunk_bytes"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
	ReapInterval   time.Duration `yaml:"reap_interval"`
	// MaxSlots bounds the slot field: valid slots are 1..MaxSlots.
	MaxSlots int `yaml:"max_slots"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "castbucket"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "castbucket"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Storage: StorageConfig{
			LocalPath:     getEnv("STORAGE_LOCAL_PATH", "./data"),
			StagingDir:    getEnv("STORAGE_STAGING_DIR", "staging"),
			RecordingsDir: getEnv("STORAGE_RECORDINGS_DIR", "recordings"),
		},
		Auth: AuthConfig{
			JWTSecret:        getEnv("JWT_SECRET", "your-secret-key"),
			TokenIdleTTL:     getEnvDuration("TOKEN_IDLE_TTL", 2*time.Hour),
			TokenMaxLifetime: getEnvDuration("TOKEN_MAX_LIFETIME", 24*time.Hour),
		},
		Upload: UploadConfig{
			MaxChunkBytes:  getEnvInt64("UPLOAD_MAX_CHUNK_BYTES", 16<<20),
			MaxUploadBytes: getEnvInt64("UPLOAD_MAX_TOTAL_BYTES", 2<<30),
			SessionTTL:     getEnvDuration("UPLOAD_SESSION_TTL", 30*time.Minute),
			ReapInterval:   getEnvDuration("UPLOAD_REAP_INTERVAL", 5*time.Minute),
			MaxSlots:       getEnvInt("UPLOAD_MAX_SLOTS", 6),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

// DatabaseURL returns a PostgreSQL connection string
func (d *DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// RedisAddr returns the Redis address
func (r *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Helper functions for environment variable parsing
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
