package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Storage   StorageConfig
	Tracing   TracingConfig `mapstructure:"tracing"`
	Redis     RedisConfig
	OneNote   OneNoteConfig   `mapstructure:"onenote"`
	Feedback  FeedbackConfig  `mapstructure:"feedback"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"` // 强制执行数据库迁移
	MigrateOnly  bool `mapstructure:"-"` // 仅迁移模式（迁移后退出）
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Driver    string // mysql | postgres
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
	SSLMode   string `mapstructure:"sslmode"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	MinioUseSSL   bool   `mapstructure:"minio_use_ssl"`
	OSSEndpoint   string `mapstructure:"oss_endpoint"`
	OSSAccessKey  string `mapstructure:"oss_access_key"`
	OSSSecretKey  string `mapstructure:"oss_secret_key"`
	OSSBucket     string `mapstructure:"oss_bucket"`
	S3Endpoint    string `mapstructure:"s3_endpoint"`
	S3Region      string `mapstructure:"s3_region"`
	S3AccessKey   string `mapstructure:"s3_access_key"`
	S3SecretKey   string `mapstructure:"s3_secret_key"`
	S3Bucket      string `mapstructure:"s3_bucket"`
	S3UseSSL      bool   `mapstructure:"s3_use_ssl"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// OneNoteConfig Microsoft Graph / OneNote 接入配置
type OneNoteConfig struct {
	ClientID      string        `mapstructure:"client_id"`
	ClientSecret  string        `mapstructure:"client_secret"`
	Tenant        string        `mapstructure:"tenant"`
	RedirectURL   string        `mapstructure:"redirect_url"`
	APIBaseURL    string        `mapstructure:"api_base_url"`
	Scopes        []string      `mapstructure:"scopes"`
	ExportTimeout time.Duration `mapstructure:"export_timeout"`
	TokenKey      string        `mapstructure:"token_key"`
}

// FeedbackConfig 作业反馈插件配置，支持热更新
type FeedbackConfig struct {
	MaxSummaryFiles int           `mapstructure:"max_summary_files"`
	LeaseTTL        time.Duration `mapstructure:"lease_ttl"`
	TempDir         string        `mapstructure:"temp_dir"`
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("database.driver", "mysql")
	viper.SetDefault("database.charset", "utf8mb4")
	viper.SetDefault("database.parsetime", true)
	viper.SetDefault("storage.type", "local")
	viper.SetDefault("storage.local_path", "uploads")
	viper.SetDefault("onenote.tenant", "common")
	viper.SetDefault("onenote.api_base_url", "https://graph.microsoft.com/v1.0")
	viper.SetDefault("onenote.scopes", []string{"offline_access", "Notes.ReadWrite"})
	viper.SetDefault("onenote.export_timeout", 60*time.Second)
	viper.SetDefault("feedback.max_summary_files", 5)
	viper.SetDefault("feedback.lease_ttl", 2*time.Minute)
	viper.SetDefault("feedback.temp_dir", os.TempDir())
	viper.SetDefault("rate_limit.max_requests", 600)
	viper.SetDefault("rate_limit.window_minutes", 1)
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("ONENOTE_FEEDBACK")
	viper.AutomaticEnv()

	setDefaults()

	// Database
	viper.BindEnv("database.driver", "DATABASE_DRIVER")
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	viper.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	viper.BindEnv("redis.enabled", "REDIS_ENABLED")
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")

	// Storage
	viper.BindEnv("storage.type", "STORAGE_TYPE")
	viper.BindEnv("storage.oss_endpoint", "OSS_ENDPOINT")
	viper.BindEnv("storage.oss_access_key", "OSS_ACCESS_KEY")
	viper.BindEnv("storage.oss_secret_key", "OSS_SECRET_KEY")
	viper.BindEnv("storage.oss_bucket", "OSS_BUCKET")
	viper.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	viper.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	viper.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	viper.BindEnv("storage.minio_bucket", "MINIO_BUCKET")
	viper.BindEnv("storage.s3_endpoint", "S3_ENDPOINT")
	viper.BindEnv("storage.s3_region", "S3_REGION")
	viper.BindEnv("storage.s3_access_key", "S3_ACCESS_KEY")
	viper.BindEnv("storage.s3_secret_key", "S3_SECRET_KEY")
	viper.BindEnv("storage.s3_bucket", "S3_BUCKET")

	// OneNote
	viper.BindEnv("onenote.client_id", "ONENOTE_CLIENT_ID")
	viper.BindEnv("onenote.client_secret", "ONENOTE_CLIENT_SECRET")
	viper.BindEnv("onenote.tenant", "ONENOTE_TENANT")
	viper.BindEnv("onenote.redirect_url", "ONENOTE_REDIRECT_URL")
	viper.BindEnv("onenote.token_key", "ONENOTE_TOKEN_KEY")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

// Validate 校验必须的配置项
func (c *Config) Validate() error {
	// 生产环境校验 JWT Secret 强度
	if c.Server.Mode == "release" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(c.JWT.Secret))
	}
	if c.OneNote.TokenKey == "" {
		return fmt.Errorf("onenote.token_key is required")
	}
	if c.Feedback.MaxSummaryFiles < 0 {
		return fmt.Errorf("feedback.max_summary_files must not be negative")
	}
	switch c.Database.Driver {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	return nil
}
