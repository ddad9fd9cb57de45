// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	Local      = "local"
	Production = "production"
)

// DefaultMaxUploadBytes is the 25 MiB ceiling on candidate files.
const DefaultMaxUploadBytes int64 = 25 * 1024 * 1024

type Config struct {
	Env      string
	Port     string
	LogLevel string

	DatabaseDSN string

	JWTSecret    string
	TokenTTL     time.Duration
	CookieDomain string
	CookieSecure bool
	CORSOrigin   string

	LoginRateLimit float64
	LoginRateBurst int

	MinIO  MinIOConfig
	Redis  RedisConfig
	Upload UploadConfig
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	URLExpiry time.Duration
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	JobsChannel string
}

type UploadConfig struct {
	MaxBytes    int64
	StagingDir  string
	StrictSniff bool
}

func (c *Config) IsProduction() bool {
	return c.Env == Production
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", Local)
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_NAME", "esplit")
	v.SetDefault("DB_SSLMODE", "disable")

	v.SetDefault("TOKEN_TTL", 24*time.Hour)
	v.SetDefault("COOKIE_DOMAIN", "localhost")
	v.SetDefault("CORS_ORIGIN", "http://localhost:3000")
	v.SetDefault("LOGIN_RATE_LIMIT", 1.0)
	v.SetDefault("LOGIN_RATE_BURST", 5)

	v.SetDefault("MINIO_ENDPOINT", "localhost:9000")
	v.SetDefault("MINIO_BUCKET", "esplit-audio")
	v.SetDefault("MINIO_URL_EXPIRY", 7*24*time.Hour)

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_JOBS_CHANNEL", "esplit:jobs")

	v.SetDefault("UPLOAD_MAX_BYTES", DefaultMaxUploadBytes)
	v.SetDefault("UPLOAD_STAGING_DIR", "/tmp/esplit-staging")
}

// Load reads an optional .env file and then the process environment.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Env:      strings.ToLower(v.GetString("ENV")),
		Port:     v.GetString("PORT"),
		LogLevel: v.GetString("LOG_LEVEL"),

		DatabaseDSN: v.GetString("DATABASE_DSN"),

		JWTSecret:    v.GetString("JWT_SECRET"),
		TokenTTL:     v.GetDuration("TOKEN_TTL"),
		CookieDomain: v.GetString("COOKIE_DOMAIN"),
		CookieSecure: v.GetBool("COOKIE_SECURE"),
		CORSOrigin:   v.GetString("CORS_ORIGIN"),

		LoginRateLimit: v.GetFloat64("LOGIN_RATE_LIMIT"),
		LoginRateBurst: v.GetInt("LOGIN_RATE_BURST"),

		MinIO: MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: v.GetString("MINIO_SECRET_KEY"),
			Bucket:    v.GetString("MINIO_BUCKET"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
			URLExpiry: v.GetDuration("MINIO_URL_EXPIRY"),
		},
		Redis: RedisConfig{
			Addr:        v.GetString("REDIS_ADDR"),
			Password:    v.GetString("REDIS_PASSWORD"),
			DB:          v.GetInt("REDIS_DB"),
			JobsChannel: v.GetString("REDIS_JOBS_CHANNEL"),
		},
		Upload: UploadConfig{
			MaxBytes:    v.GetInt64("UPLOAD_MAX_BYTES"),
			StagingDir:  v.GetString("UPLOAD_STAGING_DIR"),
			StrictSniff: v.GetBool("UPLOAD_STRICT_SNIFF"),
		},
	}

	if cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			v.GetString("DB_HOST"),
			v.GetString("DB_PORT"),
			v.GetString("DB_USER"),
			v.GetString("DB_PASSWORD"),
			v.GetString("DB_NAME"),
			v.GetString("DB_SSLMODE"),
		)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		if c.IsProduction() {
			return errors.New("JWT_SECRET is required in production")
		}
		c.JWTSecret = "esplit-dev-secret"
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive, got %d", c.Upload.MaxBytes)
	}
	// presigned URLs are capped at seven days by the S3 protocol
	if c.MinIO.URLExpiry <= 0 || c.MinIO.URLExpiry > 7*24*time.Hour {
		return fmt.Errorf("MINIO_URL_EXPIRY must be within (0, 168h], got %s", c.MinIO.URLExpiry)
	}
	return nil
}
