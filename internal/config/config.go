package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/davidbz/switchboard/internal/capability"
	"github.com/davidbz/switchboard/internal/eventlog/redis"
	"github.com/davidbz/switchboard/internal/observability"
	"github.com/davidbz/switchboard/internal/provider/transport"
)

// Config represents the switchboard configuration.
type Config struct {
	Server    ServerConfig
	CORS      CORSConfig
	Log       observability.Config
	Upstream  UpstreamConfig
	Transport transport.Config
	Catalog   capability.Config
	Redis     redis.Config
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int `env:"SERVER_PORT"          envDefault:"8080"`
	ReadTimeout  int `env:"SERVER_READ_TIMEOUT"  envDefault:"30"`
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"120"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization,X-Api-Key"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// UpstreamConfig holds the credentials and endpoint applied to every request
// unless the caller overrides them.
type UpstreamConfig struct {
	APIKey       string            `env:"UPSTREAM_API_KEY"`
	APIBase      string            `env:"UPSTREAM_API_BASE"      envDefault:"https://h-chat-api.autoever.com/v2/api"`
	ExtraHeaders map[string]string `env:"UPSTREAM_EXTRA_HEADERS" envSeparator:"," envKeyValSeparator:":"`
}

// DepConfig is used for dependency injection with dig. Several sub-configs
// share the type name Config, so the fields are named.
type DepConfig struct {
	dig.Out
	Server    *ServerConfig
	CORS      *CORSConfig
	Upstream  *UpstreamConfig
	Log       *observability.Config
	Transport *transport.Config
	Catalog   *capability.Config
	Redis     *redis.Config
}

// Load loads environment files and parses configuration.
func Load() *Config {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		Server:    &cfg.Server,
		CORS:      &cfg.CORS,
		Upstream:  &cfg.Upstream,
		Log:       &cfg.Log,
		Transport: &cfg.Transport,
		Catalog:   &cfg.Catalog,
		Redis:     &cfg.Redis,
	}
}
