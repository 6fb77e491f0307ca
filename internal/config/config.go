package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/KasumiMercury/primind-remind-engine/internal/observability/logging"
)

type Config struct {
	Port        string
	LogLevel    slog.Level
	NotifierURL string
	TaskQueue   TaskQueueConfig
	Redis       *RedisConfig
	Remote      *RemoteConfig
	Engine      *EngineConfig
}

type TaskQueueConfig struct {
	PrimindTasksURL string
	QueueName       string

	GCloudProjectID  string
	GCloudLocationID string
	GCloudQueueID    string
	GCloudTargetURL  string

	// MaxRetries bounds task deletion attempts. Registration is retried by the scheduler only.
	MaxRetries int
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	queueName := os.Getenv("TASK_QUEUE_NAME")
	if queueName == "" {
		queueName = "default"
	}

	maxRetries := 3
	if v := os.Getenv("TASK_QUEUE_MAX_RETRIES"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			maxRetries = parsed
		}
	}

	redisConfig, err := LoadRedisConfig()
	if err != nil {
		return nil, err
	}

	engineConfig, err := LoadEngineConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:        port,
		LogLevel:    logging.ParseLevel(os.Getenv("LOG_LEVEL")),
		NotifierURL: os.Getenv("NOTIFIER_URL"),
		TaskQueue: TaskQueueConfig{
			PrimindTasksURL: os.Getenv("PRIMIND_TASKS_URL"),
			QueueName:       queueName,

			GCloudProjectID:  os.Getenv("GCLOUD_PROJECT_ID"),
			GCloudLocationID: os.Getenv("GCLOUD_LOCATION_ID"),
			GCloudQueueID:    os.Getenv("GCLOUD_QUEUE_ID"),
			GCloudTargetURL:  os.Getenv("TRIGGER_TARGET_URL"),

			MaxRetries: maxRetries,
		},
		Redis:  redisConfig,
		Remote: LoadRemoteConfig(),
		Engine: engineConfig,
	}, nil
}

// Validate checks every section and joins the failures.
func (c *Config) Validate() error {
	return errors.Join(
		c.Redis.Validate(),
		c.Remote.Validate(),
		c.TaskQueue.Validate(),
	)
}
