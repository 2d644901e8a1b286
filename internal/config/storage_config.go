package config

import (
	"strings"

	apperrors "github.com/jrsteele09/go-auth-session/internal/errors"
)

type StorageBackend string

const (
	StorageMemory StorageBackend = "memory"
	StorageRedis  StorageBackend = "redis"
)

func ParseStorageBackend(s string) (StorageBackend, error) {
	switch StorageBackend(strings.ToLower(strings.TrimSpace(s))) {
	case "", StorageMemory:
		return StorageMemory, nil
	case StorageRedis:
		return StorageRedis, nil
	}
	return "", apperrors.Wrapf(apperrors.ErrUnknownStorage, "[config] %q", s)
}

type Storage struct {
	backend     StorageBackend
	redisURL    string
	redisPrefix string
}

var _ StorageConfig = Storage{}

func (s Storage) GetStorageBackend() StorageBackend {
	return s.backend
}

func (s Storage) GetRedisURL() string {
	return s.redisURL
}

func (s Storage) GetRedisPrefix() string {
	if s.redisPrefix == "" {
		return "authsession:"
	}
	return s.redisPrefix
}
