package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ClientConfig is one entry of the static OAuth client table. The table is
// configuration, not data: it is read once at startup and becomes an
// immutable registry. Dynamic registration is deliberately unsupported.
type ClientConfig struct {
	ClientID         string   `mapstructure:"client_id"`
	ClientSecretHash string   `mapstructure:"client_secret_hash"`
	RedirectURIs     []string `mapstructure:"redirect_uris"`
	Name             string   `mapstructure:"name"`
	Scopes           []string `mapstructure:"scopes"`
}

// ServerConfig holds all configuration for the server.
// Tags use mapstructure for Viper unmarshalling.
type ServerConfig struct {
	HTTPPort  string `mapstructure:"HTTP_PORT"`
	PublicURL string `mapstructure:"PUBLIC_URL"`
	// LoginURL is where unauthenticated browsers are sent; the original
	// authorize request is preserved in a return_to query parameter.
	LoginURL      string `mapstructure:"LOGIN_URL"`
	SessionCookie string `mapstructure:"SESSION_COOKIE"`

	// Credential store backend: "memory" or "redis".
	CacheBackend   string `mapstructure:"CACHE_BACKEND"`
	RedisAddr      string `mapstructure:"REDIS_ADDR"`
	RedisPassword  string `mapstructure:"REDIS_PASSWORD"`
	RedisDB        int    `mapstructure:"REDIS_DB"`
	RedisKeyPrefix string `mapstructure:"REDIS_KEY_PREFIX"`

	// User directory backend: "sqlite" or "mongo".
	StorageBackend string `mapstructure:"STORAGE_BACKEND"`
	SQLitePath     string `mapstructure:"SQLITE_PATH"`
	MongoURI       string `mapstructure:"MONGO_URI"`
	MongoDBName    string `mapstructure:"MONGO_DB_NAME"`

	LogLevel        string `mapstructure:"LOG_LEVEL"`
	LogPretty       bool   `mapstructure:"LOG_PRETTY"`
	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	AuthCodeTTLSec     int `mapstructure:"AUTH_CODE_TTL_SEC"`
	AccessTokenTTLSec  int `mapstructure:"ACCESS_TOKEN_TTL_SEC"`
	RefreshTokenTTLSec int `mapstructure:"REFRESH_TOKEN_TTL_SEC"`
	SessionTTLSec      int `mapstructure:"SESSION_TTL_SEC"`

	// Clients is file-only configuration (a "clients:" list in the YAML
	// config); there is no environment form for it.
	Clients []ClientConfig `mapstructure:"clients"`
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/wtyk-authd/")
	v.AddConfigPath("$HOME/.wtyk-authd")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("PUBLIC_URL", "http://localhost:8080")
	v.SetDefault("LOGIN_URL", "/auth/login")
	v.SetDefault("SESSION_COOKIE", "wtyk_session")
	v.SetDefault("CACHE_BACKEND", "memory")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_KEY_PREFIX", "authd")
	v.SetDefault("STORAGE_BACKEND", "sqlite")
	v.SetDefault("SQLITE_PATH", "authd.db")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/wtyk_authd")
	v.SetDefault("MONGO_DB_NAME", "wtyk_authd")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("OTEL_SERVICE_NAME", "wtyk-authd")
	v.SetDefault("AUTH_CODE_TTL_SEC", 600)
	v.SetDefault("ACCESS_TOKEN_TTL_SEC", 1800)
	v.SetDefault("REFRESH_TOKEN_TTL_SEC", 30*24*3600)
	v.SetDefault("SESSION_TTL_SEC", 24*3600)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine: defaults and env vars apply, the
		// client table is just empty. Anything else is a real error.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
