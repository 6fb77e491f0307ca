package config

import "errors"

var (
	ErrRedisAddrMissing     = errors.New("REDIS_ADDR is required")
	ErrInvalidRedisDB       = errors.New("REDIS_DB must be a valid integer")
	ErrInvalidRemoteBackend = errors.New("REMOTE_BACKEND must be http or postgres")
	ErrRemoteURLMissing     = errors.New("REMOTE_STORE_URL is required for the http backend")
	ErrRemoteURIMissing     = errors.New("REMOTE_DATABASE_URI is required for the postgres backend")
	ErrInvalidDuration      = errors.New("invalid duration")
	ErrInvalidInteger       = errors.New("invalid integer")

	ErrGCloudProjectMissing  = errors.New("GCLOUD_PROJECT_ID is required")
	ErrGCloudLocationMissing = errors.New("GCLOUD_LOCATION_ID is required")
	ErrGCloudQueueMissing    = errors.New("GCLOUD_QUEUE_ID is required")
	ErrTriggerTargetMissing  = errors.New("TRIGGER_TARGET_URL is required")
)
