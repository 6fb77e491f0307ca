package config

import (
	"crypto/tls"
	"errors"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisAddr = "localhost:6379"

// RedisConfig locates the Redis instance holding records, the sync queue, health state and
// the error log.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	TLS         bool
	PoolSize    int
	DialTimeout time.Duration
}

func LoadRedisConfig() (*RedisConfig, error) {
	cfg := &RedisConfig{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		TLS:      os.Getenv("REDIS_TLS") == "true",
	}
	if cfg.Addr == "" {
		cfg.Addr = defaultRedisAddr
	}

	var err error
	if cfg.DB, err = intEnv("REDIS_DB", 0); err != nil {
		return nil, errors.Join(ErrInvalidRedisDB, err)
	}
	// zero lets go-redis size the pool from GOMAXPROCS
	if cfg.PoolSize, err = intEnv("REDIS_POOL_SIZE", 0); err != nil {
		return nil, err
	}
	if cfg.DialTimeout, err = durationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *RedisConfig) Validate() error {
	if c == nil || c.Addr == "" {
		return ErrRedisAddrMissing
	}
	return nil
}

// Options converts the config into client options.
func (c *RedisConfig) Options() *redis.Options {
	opts := &redis.Options{
		Addr:        c.Addr,
		Password:    c.Password,
		DB:          c.DB,
		PoolSize:    c.PoolSize,
		DialTimeout: c.DialTimeout,
	}
	if c.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}
