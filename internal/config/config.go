package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "MARQUEE"

	StoreBackendSQLite = "sqlite"
	StoreBackendRedis  = "redis"

	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabasePath    = "marquee.db"
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
	defaultCookieName      = "app_session"
	defaultSessionIssuer   = "tauth"
	defaultTMDBBaseURL     = "https://api.themoviedb.org/3"
	defaultTMDBImageURL    = "https://image.tmdb.org/t/p/w500"
	defaultTMDBLanguage    = "en-US"
	defaultMarvelBaseURL   = "https://gateway.marvel.com/v1/public"
	defaultCatalogTimeout  = 10
	defaultBreakerFailures = 5
	defaultRedisPrefix     = "marquee"
	defaultNotifyTTLMillis = 3000
	defaultTrackerIdleMins = 30
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	AllowedOrigins []string
	DatabasePath   string
	LogLevel       string
	LogFormat      string

	SessionSigningSecret string
	SessionCookieName    string
	SessionIssuer        string

	TMDBAPIKey       string
	TMDBBaseURL      string
	TMDBImageBaseURL string
	TMDBLanguage     string

	MarvelPublicKey  string
	MarvelPrivateKey string
	MarvelBaseURL    string

	CatalogTimeout  time.Duration
	BreakerFailures uint32

	StoreBackend  string
	RedisAddress  string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	NotificationTTL time.Duration
	TrackerIdleTTL  time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{"*"})
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("session.signing_secret", "")
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.issuer", defaultSessionIssuer)
	configViper.SetDefault("tmdb.api_key", "")
	configViper.SetDefault("tmdb.base_url", defaultTMDBBaseURL)
	configViper.SetDefault("tmdb.image_base_url", defaultTMDBImageURL)
	configViper.SetDefault("tmdb.language", defaultTMDBLanguage)
	configViper.SetDefault("marvel.public_key", "")
	configViper.SetDefault("marvel.private_key", "")
	configViper.SetDefault("marvel.base_url", defaultMarvelBaseURL)
	configViper.SetDefault("catalog.timeout_seconds", defaultCatalogTimeout)
	configViper.SetDefault("catalog.breaker_failures", defaultBreakerFailures)
	configViper.SetDefault("store.backend", StoreBackendSQLite)
	configViper.SetDefault("redis.address", "")
	configViper.SetDefault("redis.password", "")
	configViper.SetDefault("redis.db", 0)
	configViper.SetDefault("redis.prefix", defaultRedisPrefix)
	configViper.SetDefault("notify.ttl_ms", defaultNotifyTTLMillis)
	configViper.SetDefault("favorites.tracker_idle_minutes", defaultTrackerIdleMins)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:          configViper.GetString("http.address"),
		AllowedOrigins:       splitList(configViper.GetStringSlice("http.allowed_origins")),
		DatabasePath:         configViper.GetString("database.path"),
		LogLevel:             configViper.GetString("log.level"),
		LogFormat:            strings.ToLower(strings.TrimSpace(configViper.GetString("log.format"))),
		SessionSigningSecret: configViper.GetString("session.signing_secret"),
		SessionCookieName:    configViper.GetString("session.cookie_name"),
		SessionIssuer:        configViper.GetString("session.issuer"),
		TMDBAPIKey:           configViper.GetString("tmdb.api_key"),
		TMDBBaseURL:          configViper.GetString("tmdb.base_url"),
		TMDBImageBaseURL:     configViper.GetString("tmdb.image_base_url"),
		TMDBLanguage:         configViper.GetString("tmdb.language"),
		MarvelPublicKey:      configViper.GetString("marvel.public_key"),
		MarvelPrivateKey:     configViper.GetString("marvel.private_key"),
		MarvelBaseURL:        configViper.GetString("marvel.base_url"),
		CatalogTimeout:       time.Duration(configViper.GetInt("catalog.timeout_seconds")) * time.Second,
		BreakerFailures:      configViper.GetUint32("catalog.breaker_failures"),
		StoreBackend:         strings.ToLower(strings.TrimSpace(configViper.GetString("store.backend"))),
		RedisAddress:         configViper.GetString("redis.address"),
		RedisPassword:        configViper.GetString("redis.password"),
		RedisDB:              configViper.GetInt("redis.db"),
		RedisPrefix:          configViper.GetString("redis.prefix"),
		NotificationTTL:      time.Duration(configViper.GetInt("notify.ttl_ms")) * time.Millisecond,
		TrackerIdleTTL:       time.Duration(configViper.GetInt("favorites.tracker_idle_minutes")) * time.Minute,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// MarvelEnabled reports whether both Marvel keys are configured.
func (c AppConfig) MarvelEnabled() bool {
	return strings.TrimSpace(c.MarvelPublicKey) != "" && strings.TrimSpace(c.MarvelPrivateKey) != ""
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSigningSecret) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if strings.TrimSpace(c.TMDBAPIKey) == "" {
		return fmt.Errorf("tmdb.api_key is required")
	}
	if (strings.TrimSpace(c.MarvelPublicKey) == "") != (strings.TrimSpace(c.MarvelPrivateKey) == "") {
		return fmt.Errorf("marvel.public_key and marvel.private_key must be set together")
	}
	if c.CatalogTimeout <= 0 {
		return fmt.Errorf("catalog.timeout_seconds must be positive")
	}
	if c.TrackerIdleTTL <= 0 {
		return fmt.Errorf("favorites.tracker_idle_minutes must be positive")
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("log.format must be json or console, got %q", c.LogFormat)
	}
	switch c.StoreBackend {
	case StoreBackendSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case StoreBackendRedis:
		if strings.TrimSpace(c.RedisAddress) == "" {
			return fmt.Errorf("redis.address is required for the redis store")
		}
	default:
		return fmt.Errorf("store.backend must be %s or %s, got %q", StoreBackendSQLite, StoreBackendRedis, c.StoreBackend)
	}
	return nil
}

// splitList accepts both list values and a comma separated env string.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
