package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"avatarsvc/internal/models"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	MigrationsPath  string
	AutoMigrate     bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

type SecurityConfig struct {
	JWTSecret string
	AdminRole string
}

// AvatarConfig holds the startup defaults of the avatar settings. Style,
// GravatarURL and ImageWidth can be overridden at runtime, see package settings.
type AvatarConfig struct {
	Style               string
	GravatarURL         string
	ImageWidth          int
	MaxSizeBytes        int64
	AllowedContentTypes []string
	UploadPolicy        string
}

type GravatarConfig struct {
	Timeout time.Duration
}

type IdentityConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type JobsConfig struct {
	Stream        string
	Group         string
	Consumer      string
	ClaimInterval time.Duration
	SweepSchedule string
	SweepGrace    time.Duration
}

type LoggingConfig struct {
	Level string
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	Avatar           AvatarConfig
	Gravatar         GravatarConfig
	Identity         IdentityConfig
	Jobs             JobsConfig
	Logging          LoggingConfig
	AllowCORSOrigins []string
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	return load(v)
}

func load(v *viper.Viper) (*AppConfig, error) {
	v.SetEnvPrefix("AVATARSVC")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *AppConfig) validate() error {
	switch c.Avatar.UploadPolicy {
	case UploadPolicyReplace, UploadPolicyAppend:
	default:
		return fmt.Errorf("avatar.uploadpolicy: unknown policy %q", c.Avatar.UploadPolicy)
	}
	if c.Avatar.ImageWidth <= 0 {
		return fmt.Errorf("avatar.imagewidth: must be positive, got %d", c.Avatar.ImageWidth)
	}
	if c.Avatar.MaxSizeBytes <= 0 {
		return fmt.Errorf("avatar.maxsizebytes: must be positive, got %d", c.Avatar.MaxSizeBytes)
	}
	return nil
}

var envKeyReplacer = strings.NewReplacer(".", "_")

const (
	UploadPolicyReplace = "replace"
	UploadPolicyAppend  = "append"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8081)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "30s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.maxopen", 20)
	v.SetDefault("postgres.maxidle", 5)
	v.SetDefault("postgres.connmaxlifetime", "30m")
	v.SetDefault("postgres.migrationspath", "file://migrations")
	v.SetDefault("postgres.automigrate", true)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.bucket", "avatars")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("security.adminrole", models.RoleAdmin)

	v.SetDefault("avatar.style", "LOCAL")
	v.SetDefault("avatar.gravatarurl", "https://www.gravatar.com/avatar/")
	v.SetDefault("avatar.imagewidth", 200)
	v.SetDefault("avatar.maxsizebytes", 2<<20) // 2 MiB
	v.SetDefault("avatar.allowedcontenttypes", []string{"image/jpeg", "image/png", "image/gif", "image/webp", "image/avif", "image/svg+xml"})
	v.SetDefault("avatar.uploadpolicy", UploadPolicyReplace)

	v.SetDefault("gravatar.timeout", "5s")

	v.SetDefault("identity.timeout", "5s")

	v.SetDefault("jobs.stream", "avatars:maintenance")
	v.SetDefault("jobs.group", "avatar-workers")
	v.SetDefault("jobs.consumer", "worker-1")
	v.SetDefault("jobs.claiminterval", "30s")
	v.SetDefault("jobs.sweepschedule", "0 30 3 * * *")
	v.SetDefault("jobs.sweepgrace", "1h")

	v.SetDefault("logging.level", "info")
}

// bindEnv registers keys that have no default so AutomaticEnv can see them.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"postgres.dsn",
		"redis.password",
		"storage.endpoint",
		"storage.accesskey",
		"storage.secretkey",
		"security.jwtsecret",
		"identity.baseurl",
		"identity.token",
		"allowcorsorigins",
	} {
		_ = v.BindEnv(key)
	}
}
