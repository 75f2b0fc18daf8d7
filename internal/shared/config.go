package shared

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	AppEnv   string
	LogLevel string

	APIBaseURL  string
	HTTPTimeout time.Duration

	ProviderBaseURL string
	ProviderKey     string
	ProviderRPS     int

	SessionBackend string // sqlite | mysql | redis
	SQLitePath     string
	MySQLDSN       string
	RedisAddr      string
	RedisPass      string
	RedisDB        int

	CacheTTL         time.Duration
	ReconcileWorkers int

	// stub data service
	HTTPAddr          string
	MetricsAddr       string
	StubFirstPlaceID  int64
	StubRegisterToken bool
}

// Load reads defaults, then spotcheck.yaml (working directory, the user config
// dir, or the file named by SPOTCHECK_CONFIG), then SPOTCHECK_* variables.
func Load() Config {
	v := viper.New()
	setDefaults(v)

	if p := os.Getenv("SPOTCHECK_CONFIG"); p != "" {
		v.SetConfigFile(p)
	} else {
		v.SetConfigName("spotcheck")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "spotcheck"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			log.Warn().Err(err).Msg("config file ignored")
		}
	}

	v.SetEnvPrefix("SPOTCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	c := Config{
		AppEnv:           v.GetString("app_env"),
		LogLevel:         v.GetString("log_level"),
		APIBaseURL:       v.GetString("api_base_url"),
		HTTPTimeout:      v.GetDuration("http_timeout"),
		ProviderBaseURL:  v.GetString("provider_base_url"),
		ProviderKey:      v.GetString("provider_api_key"),
		ProviderRPS:      v.GetInt("provider_rps"),
		SessionBackend:   strings.ToLower(v.GetString("session_backend")),
		SQLitePath:       v.GetString("sqlite_path"),
		MySQLDSN:         v.GetString("mysql_dsn"),
		RedisAddr:        v.GetString("redis_addr"),
		RedisPass:        v.GetString("redis_password"),
		RedisDB:          v.GetInt("redis_db"),
		CacheTTL:         v.GetDuration("cache_ttl"),
		ReconcileWorkers: v.GetInt("reconcile_workers"),
		HTTPAddr:         v.GetString("http_addr"),
		MetricsAddr:      v.GetString("metrics_addr"),

		StubFirstPlaceID:  v.GetInt64("stub_first_place_id"),
		StubRegisterToken: v.GetBool("stub_register_token"),
	}

	switch c.SessionBackend {
	case "sqlite", "mysql", "redis":
	default:
		log.Warn().Str("session_backend", c.SessionBackend).Msg("unknown session backend, using sqlite")
		c.SessionBackend = "sqlite"
	}
	if c.ReconcileWorkers <= 0 {
		c.ReconcileWorkers = 4
	}
	if c.ProviderKey == "" {
		log.Warn().Msg("SPOTCHECK_PROVIDER_API_KEY is empty; search is disabled")
	}
	return c
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "prod")
	v.SetDefault("log_level", "info")
	v.SetDefault("api_base_url", "http://localhost:8080")
	v.SetDefault("http_timeout", 15*time.Second)
	v.SetDefault("provider_base_url", "https://places.googleapis.com/v1")
	v.SetDefault("provider_api_key", "")
	v.SetDefault("provider_rps", 5)
	v.SetDefault("session_backend", "sqlite")
	v.SetDefault("sqlite_path", defaultSQLitePath())
	v.SetDefault("mysql_dsn", "root:root@tcp(localhost:3306)/spotcheck?parseTime=true&charset=utf8mb4&loc=UTC")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("cache_ttl", 15*time.Minute)
	v.SetDefault("reconcile_workers", 4)
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("metrics_addr", ":9100")
	v.SetDefault("stub_first_place_id", 1)
	v.SetDefault("stub_register_token", false)
}

func defaultSQLitePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "spotcheck", "session.db")
	}
	return "spotcheck-session.db"
}
