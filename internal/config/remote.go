package config

import (
	"os"
)

const (
	remoteBackendEnv     = "REMOTE_BACKEND"
	remoteStoreURLEnv    = "REMOTE_STORE_URL"
	remoteDatabaseURIEnv = "REMOTE_DATABASE_URI"
)

type RemoteBackend string

const (
	RemoteBackendHTTP     RemoteBackend = "http"
	RemoteBackendPostgres RemoteBackend = "postgres"
)

type RemoteConfig struct {
	Backend     RemoteBackend
	StoreURL    string
	DatabaseURI string
}

func LoadRemoteConfig() *RemoteConfig {
	backend := RemoteBackend(os.Getenv(remoteBackendEnv))
	if backend == "" {
		backend = RemoteBackendHTTP
	}

	return &RemoteConfig{
		Backend:     backend,
		StoreURL:    os.Getenv(remoteStoreURLEnv),
		DatabaseURI: os.Getenv(remoteDatabaseURIEnv),
	}
}

func (c *RemoteConfig) Validate() error {
	switch c.Backend {
	case RemoteBackendHTTP:
		if c.StoreURL == "" {
			return ErrRemoteURLMissing
		}
	case RemoteBackendPostgres:
		if c.DatabaseURI == "" {
			return ErrRemoteURIMissing
		}
	default:
		return ErrInvalidRemoteBackend
	}
	return nil
}
