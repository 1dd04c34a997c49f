package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

type MinIOConfig struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET"`
	Secure    bool   `env:"SECURE" envDefault:"true"`
}

func (m MinIOConfig) Enabled() bool {
	return m.Endpoint != "" || m.AccessKey != "" || m.SecretKey != "" || m.Bucket != ""
}

type Config struct {
	Env      string `env:"APP_ENV" envDefault:"dev"`
	Addr     string `env:"APP_ADDR" envDefault:"127.0.0.1:8080"`
	LogLevel string `env:"APP_LOG_LEVEL" envDefault:"info"`

	BotToken string   `env:"BOT_TOKEN,required"`
	AdminIDs []string `env:"ADMIN_ID,required" envSeparator:","`

	DataFile      string        `env:"DATA_FILE"`
	FilesDir      string        `env:"FILES_DIR" envDefault:"files"`
	LogsDB        string        `env:"LOGS_DB" envDefault:"logs.db"`
	ErrorLogLimit int           `env:"ERROR_LOG_LIMIT" envDefault:"50"`
	ExportDelay   time.Duration `env:"EXPORT_DELAY" envDefault:"500ms"`
	StoreShards   int           `env:"STORE_SHARDS" envDefault:"32"`

	DBDSN string      `env:"APP_DB_DSN"`
	Redis RedisConfig `envPrefix:"APP_REDIS_"`
	MinIO MinIOConfig `envPrefix:"APP_MINIO_"`

	TelegramAPIURL string `env:"TELEGRAM_API_URL" envDefault:"https://api.telegram.org"`
	TelegramMode   string `env:"TELEGRAM_MODE" envDefault:"polling"`
	WebhookURL     string `env:"TELEGRAM_WEBHOOK_URL"`
	WebhookSecret  string `env:"TELEGRAM_WEBHOOK_SECRET"`

	AdminKeyHash string `env:"APP_ADMIN_API_KEY_HASH"`
}

const defaultDataFile = "bot_data.json"

// Load reads the process environment, filling gaps from a .env file
// (APP_ENV_FILE overrides its path). A missing file is not an error.
func Load() (Config, error) {
	environ := envMap(os.Environ())
	path := environ["APP_ENV_FILE"]
	if path == "" {
		path = ".env"
	}
	if err := loadDotEnv(path, environ); err != nil {
		return Config{}, err
	}
	return LoadFromEnv(environ)
}

func LoadFromEnv(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.BotToken = strings.TrimSpace(cfg.BotToken)
	if cfg.BotToken == "" {
		return Config{}, errors.New("BOT_TOKEN: required")
	}
	cfg.AdminIDs = parseIDs(cfg.AdminIDs)
	if len(cfg.AdminIDs) == 0 {
		return Config{}, errors.New("ADMIN_ID: at least one id required")
	}

	switch cfg.Env {
	case "dev", "prod", "test":
	default:
		return Config{}, errors.New("APP_ENV: must be one of dev, test, prod")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, errors.New("APP_LOG_LEVEL: must be one of debug, info, warn, error")
	}
	if cfg.ErrorLogLimit <= 0 {
		return Config{}, errors.New("ERROR_LOG_LIMIT: must be > 0")
	}
	if cfg.StoreShards <= 0 {
		return Config{}, errors.New("STORE_SHARDS: must be > 0")
	}
	if cfg.ExportDelay < 0 {
		return Config{}, errors.New("EXPORT_DELAY: must be >= 0")
	}

	switch cfg.TelegramMode {
	case "polling":
	case "webhook":
		if cfg.WebhookSecret == "" {
			return Config{}, errors.New("TELEGRAM_WEBHOOK_SECRET: required in webhook mode")
		}
		if err := checkURL("TELEGRAM_WEBHOOK_URL", cfg.WebhookURL, true); err != nil {
			return Config{}, err
		}
	default:
		return Config{}, errors.New("TELEGRAM_MODE: must be polling or webhook")
	}
	if err := checkURL("TELEGRAM_API_URL", cfg.TelegramAPIURL, false); err != nil {
		return Config{}, err
	}

	if cfg.MinIO.Enabled() && (cfg.MinIO.Endpoint == "" || cfg.MinIO.AccessKey == "" || cfg.MinIO.SecretKey == "" || cfg.MinIO.Bucket == "") {
		return Config{}, errors.New("APP_MINIO_*: endpoint, access key, secret key and bucket must all be set")
	}

	if cfg.IsProd() {
		if cfg.DBDSN == "" && cfg.DataFile == "" {
			return Config{}, errors.New("APP_DB_DSN or DATA_FILE: required in prod")
		}
	} else if cfg.DataFile == "" {
		cfg.DataFile = defaultDataFile
	}

	return cfg, nil
}

func (c Config) IsProd() bool { return c.Env == "prod" }

func (c Config) Webhook() bool { return c.TelegramMode == "webhook" }

func checkURL(name, raw string, requireHTTPS bool) error {
	if raw == "" {
		return fmt.Errorf("%s: required", name)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return fmt.Errorf("%s: must be an absolute URL", name)
	}
	switch {
	case parsed.Scheme == "https":
	case parsed.Scheme == "http" && !requireHTTPS:
	default:
		return fmt.Errorf("%s: unsupported scheme %q", name, parsed.Scheme)
	}
	return nil
}

// loadDotEnv copies variables from the file at path into environ without
// overriding variables that are already set.
func loadDotEnv(path string, environ map[string]string) error {
	vars, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	for k, v := range vars {
		if v == "" {
			continue
		}
		if _, ok := environ[k]; ok {
			continue
		}
		environ[k] = v
	}
	return nil
}

func envMap(kvs []string) map[string]string {
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			out[k] = v
		}
	}
	return out
}

func parseIDs(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, id := range raw {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
