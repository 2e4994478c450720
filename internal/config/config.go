package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override, GEOUNITY_DATABASE__DSN -> database.dsn.
	EnvPrefix     = "GEOUNITY_"
	ConfigPathEnv = "GEOUNITY_CONFIG"
)

var DefaultConfigPaths = []string{"config.yaml", "/etc/geounity/config.yaml"}

type Config struct {
	Env      string         `koanf:"env"`
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	JWT      JWTConfig      `koanf:"jwt"`
	CORS     CORSConfig     `koanf:"cors"`
	Log      LogConfig      `koanf:"log"`
	Kafka    KafkaConfig    `koanf:"kafka"`
	Meili    MeiliConfig    `koanf:"meili"`
	Storage  StorageConfig  `koanf:"storage"`
	SMTP     SMTPConfig     `koanf:"smtp"`
	Voting   VotingConfig   `koanf:"voting"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	Mode            string        `koanf:"mode"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RateLimit       int           `koanf:"rate_limit"`
	RateWindow      time.Duration `koanf:"rate_window"`
}

type DatabaseConfig struct {
	DSN             string        `koanf:"dsn"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	SlowThreshold   time.Duration `koanf:"slow_threshold"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type JWTConfig struct {
	AccessSecret  string        `koanf:"access_secret"`
	RefreshSecret string        `koanf:"refresh_secret"`
	AccessTTL     time.Duration `koanf:"access_ttl"`
	RefreshTTL    time.Duration `koanf:"refresh_ttl"`
}

type CORSConfig struct {
	Origins []string `koanf:"origins"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

type KafkaConfig struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
}

type MeiliConfig struct {
	URL    string `koanf:"url"`
	APIKey string `koanf:"api_key"`
}

type StorageConfig struct {
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Bucket    string `koanf:"bucket"`
	UseSSL    bool   `koanf:"use_ssl"`
	PublicURL string `koanf:"public_url"`
}

type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
}

type VotingConfig struct {
	PollRequiresMembership bool `koanf:"poll_requires_membership"`
}

func defaultConfig() Config {
	return Config{
		Env: "development",
		Server: ServerConfig{
			Addr:            ":8080",
			Mode:            "release",
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       300,
			RateWindow:      time.Minute,
		},
		Database: DatabaseConfig{
			DSN:             "geounity:geounity@tcp(127.0.0.1:3306)/geounity?charset=utf8mb4&parseTime=True&loc=UTC",
			MaxOpenConns:    80,
			MaxIdleConns:    50,
			ConnMaxLifetime: 30 * time.Minute,
			SlowThreshold:   500 * time.Millisecond,
			AutoMigrate:     true,
		},
		Redis: RedisConfig{Addr: "127.0.0.1:6379"},
		JWT: JWTConfig{
			AccessTTL:  30 * time.Minute,
			RefreshTTL: 24 * time.Hour,
		},
		CORS: CORSConfig{Origins: []string{"http://localhost:5173", "https://geounity.org", "https://www.geounity.org"}},
		Log:  LogConfig{Level: "info", Format: "json"},
		Kafka: KafkaConfig{
			Topic: "geounity.events",
		},
		Storage: StorageConfig{Bucket: "geounity-media", UseSSL: true},
		SMTP:    SMTPConfig{Port: 587},
	}
}

// Load layers defaults, an optional yaml file and GEOUNITY_* environment
// variables, in that order. A .env file in the working dir is read first.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	for _, key := range []string{"cors.origins", "kafka.brokers"} {
		if s, ok := k.Get(key).(string); ok {
			_ = k.Set(key, splitList(s))
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.JWT.AccessSecret == "" || c.JWT.RefreshSecret == "" {
		errs = append(errs, errors.New("jwt.access_secret and jwt.refresh_secret are required"))
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		errs = append(errs, errors.New("jwt ttls must be positive"))
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		errs = append(errs, errors.New("database.max_idle_conns exceeds max_open_conns"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when brokers are set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) IsProduction() bool { return c.Env == "production" }

// envKey maps GEOUNITY_SMTP__FROM to smtp.from. Single underscores stay
// part of the key name.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnv); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
