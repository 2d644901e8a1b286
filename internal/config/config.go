package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	apperrors "github.com/jrsteele09/go-auth-session/internal/errors"
)

type Config interface {
	EnvConfig
	EndpointsConfig
	StorageConfig
	HTTPConfig
	TelemetryConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
}

type StorageConfig interface {
	GetStorageBackend() StorageBackend
	GetRedisURL() string
	GetRedisPrefix() string
}

type HTTPConfig interface {
	GetHTTPTimeout() time.Duration
}

type TelemetryConfig interface {
	GetOTelEndpoint() string
}

// envVars holds the raw environment values, parsed once by New.
type envVars struct {
	AppName      string        `env:"APP_NAME"                 envDefault:"Auth Session"`
	Env          string        `env:"ENV"                      envDefault:"DEV"`
	BaseDomain   string        `env:"AUTHSESSION_BASE_DOMAIN"`
	AuthSPAURL   string        `env:"AUTHSESSION_AUTH_SPA_URL"`
	AuthAPIURL   string        `env:"AUTHSESSION_AUTH_API_URL"`
	Storage      string        `env:"AUTHSESSION_STORAGE"      envDefault:"memory"`
	RedisURL     string        `env:"AUTHSESSION_REDIS_URL"`
	RedisPrefix  string        `env:"AUTHSESSION_REDIS_PREFIX" envDefault:"authsession:"`
	HTTPTimeout  time.Duration `env:"AUTHSESSION_HTTP_TIMEOUT" envDefault:"10s"`
	OTelEndpoint string        `env:"AUTHSESSION_OTEL_ENDPOINT"`
}

type mainConfig struct {
	EnvVars
	Endpoints
	Storage
	HTTP
	Telemetry
}

// New loads the configuration from the environment.
func New() (Config, error) {
	var raw envVars
	if err := env.Parse(&raw); err != nil {
		return nil, apperrors.Wrapf(err, "[config.New] parse env")
	}
	return build(raw)
}

// FromValues builds a Config without reading the environment. Tracing export
// stays disabled.
func FromValues(appName, environment, baseDomain, authSPAURL, authAPIURL, storage, redisURL, redisPrefix string, httpTimeout time.Duration) (Config, error) {
	return build(envVars{
		AppName:     appName,
		Env:         environment,
		BaseDomain:  baseDomain,
		AuthSPAURL:  authSPAURL,
		AuthAPIURL:  authAPIURL,
		Storage:     storage,
		RedisURL:    redisURL,
		RedisPrefix: redisPrefix,
		HTTPTimeout: httpTimeout,
	})
}

func build(raw envVars) (Config, error) {
	endpoints, err := newEndpoints(raw.Env, raw.BaseDomain, raw.AuthSPAURL, raw.AuthAPIURL)
	if err != nil {
		return nil, err
	}
	backend, err := ParseStorageBackend(raw.Storage)
	if err != nil {
		return nil, err
	}
	if backend == StorageRedis && raw.RedisURL == "" {
		return nil, apperrors.Wrapf(apperrors.ErrUnknownStorage, "[config] redis storage needs AUTHSESSION_REDIS_URL")
	}
	return mainConfig{
		EnvVars:   EnvVars{appName: raw.AppName, env: raw.Env},
		Endpoints: endpoints,
		Storage:   Storage{backend: backend, redisURL: raw.RedisURL, redisPrefix: raw.RedisPrefix},
		HTTP:      HTTP{timeout: raw.HTTPTimeout},
		Telemetry: Telemetry{otelEndpoint: raw.OTelEndpoint},
	}, nil
}
