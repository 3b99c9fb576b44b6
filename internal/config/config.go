package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Server
	AppEnv      string `env:"APP_ENV" env-default:"production"`
	ServerPort  string `env:"SERVER_PORT" env-default:"5000"`
	FrontendURL string `env:"FRONTEND_URL" env-required:"true"`
	LogLevel    string `env:"LOG_LEVEL" env-default:"info"`

	// Database
	DBHost            string        `env:"DB_HOST" env-default:"localhost"`
	DBPort            string        `env:"DB_PORT" env-default:"3306"`
	DBUser            string        `env:"DB_USER" env-required:"true"`
	DBPassword        string        `env:"DB_PASSWORD"`
	DBName            string        `env:"DB_NAME" env-required:"true"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" env-default:"10"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"5m"`

	// Redis
	RedisURL string `env:"REDIS_URL" env-default:"redis://localhost:6379/0"`

	// Auth
	JWTSecret            string        `env:"JWT_SECRET" env-required:"true"`
	JWTExpiresIn         time.Duration `env:"JWT_EXPIRES_IN" env-default:"15m"`
	ResetTokenTTL        time.Duration `env:"RESET_TOKEN_TTL" env-default:"15m"`
	VerificationTokenTTL time.Duration `env:"VERIFICATION_TOKEN_TTL" env-default:"15m"`

	// AI
	AIAPIKey  string        `env:"GEMINI_API_KEY"`
	AIModel   string        `env:"GEMINI_MODEL" env-default:"gemini-1.5-flash"`
	AIBaseURL string        `env:"GEMINI_BASE_URL" env-default:"https://generativelanguage.googleapis.com/v1beta"`
	AITimeout time.Duration `env:"GEMINI_TIMEOUT" env-default:"30s"`

	// AIMaxRetries は429/5xx応答の再試行回数
	AIMaxRetries int `env:"GEMINI_MAX_RETRIES" env-default:"2"`

	// Cache
	CacheBackend      string        `env:"CACHE_BACKEND" env-default:"redis"`
	CacheMemorySize   int           `env:"CACHE_MEMORY_SIZE" env-default:"1024"`
	CacheAnalysisTTL  time.Duration `env:"CACHE_ANALYSIS_TTL" env-default:"1h"`
	CacheRetryTTL     time.Duration `env:"CACHE_RETRY_TTL" env-default:"5m"`
	CacheNutritionTTL time.Duration `env:"CACHE_NUTRITION_TTL" env-default:"24h"`
	CacheConfirmedTTL time.Duration `env:"CACHE_CONFIRMED_TTL" env-default:"24h"`
	CacheFoodTTL      time.Duration `env:"CACHE_FOOD_TTL" env-default:"1h"`

	// Rate Limit
	RateLimitBackend string `env:"RATE_LIMIT_BACKEND" env-default:"redis"`

	// Upload
	UploadMaxBytes  int64 `env:"UPLOAD_MAX_BYTES" env-default:"5242880"`
	UploadAllowWebP bool  `env:"UPLOAD_ALLOW_WEBP" env-default:"false"`

	// Storage
	StorageBackend  string `env:"STORAGE_BACKEND" env-default:"local"`
	StorageLocalDir string `env:"STORAGE_LOCAL_DIR" env-default:"uploads"`
	S3Bucket        string `env:"S3_BUCKET"`
	S3Region        string `env:"S3_REGION" env-default:"eu-west-1"`
	S3PublicURL     string `env:"S3_PUBLIC_URL"`

	// Mail
	MailBackend  string `env:"MAIL_BACKEND" env-default:"log"`
	SMTPHost     string `env:"SMTP_HOST" env-default:"smtp.gmail.com"`
	SMTPPort     int    `env:"SMTP_PORT" env-default:"587"`
	SMTPUser     string `env:"EMAIL_USER"`
	SMTPPassword string `env:"EMAIL_PASSWORD"`
	MailFrom     string `env:"EMAIL_FROM" env-default:"no-reply@yhal.app"`
	MailFromName string `env:"EMAIL_FROM_NAME" env-default:"Yhal Support"`
	SupportEmail string `env:"SUPPORT_EMAIL" env-default:"support@yhal.app"`
	SESRegion    string `env:"SES_REGION" env-default:"eu-west-1"`

	// Worker
	TokenCleanupInterval time.Duration `env:"TOKEN_CLEANUP_INTERVAL" env-default:"1h"`
}

// IsDevelopment は開発環境かどうかを返す。
// 開発環境ではエラーレスポンスに内部原因を含める。
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// Load は.envファイル（存在する場合）と環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadDotEnv は.envファイルを読み込む。ファイルがなければ何もしない。
// 既に設定済みの環境変数は上書きしない。
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// validate は列挙値や下限のある設定値を検証する。
func (c *Config) validate() error {
	if len(c.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}

	switch c.CacheBackend {
	case "redis", "memory":
	default:
		return fmt.Errorf("CACHE_BACKEND must be redis or memory, got %q", c.CacheBackend)
	}

	switch c.RateLimitBackend {
	case "redis", "memory":
	default:
		return fmt.Errorf("RATE_LIMIT_BACKEND must be redis or memory, got %q", c.RateLimitBackend)
	}

	switch c.StorageBackend {
	case "local":
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when STORAGE_BACKEND=s3")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be local or s3, got %q", c.StorageBackend)
	}

	switch c.MailBackend {
	case "log", "smtp", "ses":
	default:
		return fmt.Errorf("MAIL_BACKEND must be log, smtp or ses, got %q", c.MailBackend)
	}

	if c.DBMaxOpenConns < 1 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be positive, got %d", c.DBMaxOpenConns)
	}
	if c.UploadMaxBytes < 1 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive, got %d", c.UploadMaxBytes)
	}

	return nil
}
