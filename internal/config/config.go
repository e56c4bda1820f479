// Package config loads the service configuration from defaults, an optional
// config.toml, environment variables and command line flags, in that order.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	validLogLevels        = []string{"debug", "info", "warn", "error", "fatal"}
	validDrivers          = []string{"postgres", "sqlite"}
	validSessionStores    = []string{"redis", "memory"}
	validTransports       = []string{"grpc", "http"}
	validAvatarStorages   = []string{"local", "s3"}
	defaultAllowedImgExts = []string{"png", "jpg", "jpeg", "bmp", "gif"}
)

const devSecret = "dev-secret"

type Config struct {
	App           AppConfig           `mapstructure:"app"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Session       SessionConfig       `mapstructure:"session"`
	Upload        UploadConfig        `mapstructure:"upload"`
	Classifier    ClassifierConfig    `mapstructure:"classifier"`
	Avatar        AvatarConfig        `mapstructure:"avatar"`
	PasswordReset PasswordResetConfig `mapstructure:"password_reset"`
	Registration  RegistrationConfig  `mapstructure:"registration"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	CookieSecure    bool          `mapstructure:"cookie_secure"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver      string `mapstructure:"driver"`
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addr string `mapstructure:"addr"`
}

type SessionConfig struct {
	Secret     string        `mapstructure:"secret"`
	TTL        time.Duration `mapstructure:"ttl"`
	CookieName string        `mapstructure:"cookie_name"`
	Store      string        `mapstructure:"store"`
}

type UploadConfig struct {
	// MaxSize is configured in megabytes and converted to bytes by Load.
	MaxSize           int64    `mapstructure:"max_size"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
	WorkDir           string   `mapstructure:"work_dir"`
}

type ClassifierConfig struct {
	Transport string        `mapstructure:"transport"`
	Addr      string        `mapstructure:"addr"`
	Timeout   time.Duration `mapstructure:"timeout"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

type AvatarConfig struct {
	Storage   string         `mapstructure:"storage"`
	Dir       string         `mapstructure:"dir"`
	PublicURL string         `mapstructure:"public_url"`
	S3        AvatarS3Config `mapstructure:"s3"`
}

type AvatarS3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

type RegistrationConfig struct {
	// AllowPrivilegedRoles lets new accounts register as corporate or admin.
	AllowPrivilegedRoles bool `mapstructure:"allow_privileged_roles"`
}

type PasswordResetConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// IsDevelopment reports whether the service runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// Load builds the configuration. args are the command line arguments without
// the program name.
func Load(args []string) (*Config, error) {
	v := viper.New()

	flags := pflag.NewFlagSet("eco-collect", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to a config.toml file")
	flags.String("addr", "", "HTTP listen address")
	flags.String("log-level", "", "log level (debug, info, warn, error, fatal)")
	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	setDefaults(v)

	v.SetEnvPrefix("eco")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Names kept for deployments configured before the ECO_ prefix existed.
	v.BindEnv("database.dsn", "ECO_DATABASE_DSN", "DATABASE_URL")
	v.BindEnv("session.secret", "ECO_SESSION_SECRET", "SECRET_KEY")
	v.BindEnv("http.cors_origins", "ECO_HTTP_CORS_ORIGINS", "CORS_ORIGINS")
	v.BindEnv("redis.addr", "ECO_REDIS_ADDR", "REDIS_ADDR")

	if *configPath != "" {
		v.SetConfigFile(*configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || *configPath != "" {
			return nil, fmt.Errorf("failed to read config file, %w", err)
		}
	}

	if f := flags.Lookup("addr"); f.Changed {
		v.Set("http.addr", f.Value.String())
	}
	if f := flags.Lookup("log-level"); f.Changed {
		v.Set("app.log_level", f.Value.String())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	normalize(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.Upload.MaxSize <<= 20
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("http.cookie_secure", false)
	v.SetDefault("http.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "eco_collect.db")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.addr", "")

	v.SetDefault("session.secret", "")
	v.SetDefault("session.ttl", time.Hour)
	v.SetDefault("session.cookie_name", "eco_collect_token")
	v.SetDefault("session.store", "memory")

	v.SetDefault("upload.max_size", 10)
	v.SetDefault("upload.allowed_extensions", defaultAllowedImgExts)
	v.SetDefault("upload.work_dir", "uploads")

	v.SetDefault("classifier.transport", "grpc")
	v.SetDefault("classifier.addr", "classifier:50051")
	v.SetDefault("classifier.timeout", 10*time.Second)
	v.SetDefault("classifier.cache_ttl", 24*time.Hour)

	v.SetDefault("avatar.storage", "local")
	v.SetDefault("avatar.dir", "static/uploads/profile_images")
	v.SetDefault("avatar.public_url", "http://localhost:8080")
	v.SetDefault("avatar.s3.bucket", "")
	v.SetDefault("avatar.s3.region", "")
	v.SetDefault("avatar.s3.endpoint", "")
	v.SetDefault("avatar.s3.access_key_id", "")
	v.SetDefault("avatar.s3.secret_access_key", "")

	v.SetDefault("password_reset.ttl", time.Hour)
	v.SetDefault("registration.allow_privileged_roles", true)

	v.SetDefault("rate_limit.rps", 5)
	v.SetDefault("rate_limit.burst", 10)
}

func normalize(cfg *Config) {
	exts := make([]string, 0, len(cfg.Upload.AllowedExtensions))
	for _, ext := range cfg.Upload.AllowedExtensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	cfg.Upload.AllowedExtensions = exts

	origins := make([]string, 0, len(cfg.HTTP.CORSOrigins))
	for _, o := range cfg.HTTP.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	cfg.HTTP.CORSOrigins = origins
	cfg.Avatar.PublicURL = strings.TrimRight(cfg.Avatar.PublicURL, "/")

	if cfg.Session.Secret == "" && cfg.IsDevelopment() {
		cfg.Session.Secret = devSecret
	}
}

func (c *Config) validate() error {
	if !slices.Contains(validLogLevels, c.App.LogLevel) {
		return errors.New("invalid log level provided")
	}
	if c.HTTP.Addr == "" {
		return errors.New("http.addr can't be empty")
	}
	if !slices.Contains(validDrivers, c.Database.Driver) {
		return errors.New("invalid database driver provided")
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn can't be empty")
	}
	if c.Session.Secret == "" {
		return errors.New("session.secret must be set outside development")
	}
	if c.Session.TTL <= 0 {
		return errors.New("session.ttl must be bigger than 0")
	}
	if !slices.Contains(validSessionStores, c.Session.Store) {
		return errors.New("invalid session store provided")
	}
	if c.Session.Store == "redis" && c.Redis.Addr == "" {
		return errors.New("redis.addr is required for the redis session store")
	}
	if c.Upload.MaxSize <= 0 {
		return errors.New("upload.max_size must be bigger than 0")
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		return errors.New("upload.allowed_extensions can't be empty")
	}
	if !slices.Contains(validTransports, c.Classifier.Transport) {
		return errors.New("invalid classifier transport provided")
	}
	if c.Classifier.Addr == "" {
		return errors.New("classifier.addr can't be empty")
	}
	if !slices.Contains(validAvatarStorages, c.Avatar.Storage) {
		return errors.New("invalid avatar storage provided")
	}
	if c.Avatar.Storage == "s3" && c.Avatar.S3.Bucket == "" {
		return errors.New("avatar.s3.bucket can't be empty")
	}
	if c.PasswordReset.TTL <= 0 {
		return errors.New("password_reset.ttl must be bigger than 0")
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return errors.New("rate_limit.rps and rate_limit.burst must be bigger than 0")
	}
	return nil
}
