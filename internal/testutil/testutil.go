package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	redismodule "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
)

const (
	redisImage    = "redis:8-alpine"
	postgresImage = "postgres:17-alpine"
)

// SetupRedisContainer starts a throwaway Redis and skips the test when Docker is unavailable.
func SetupRedisContainer(ctx context.Context, t *testing.T) (*redis.Client, func()) {
	t.Helper()

	defer func() {
		if r := recover(); r != nil {
			t.Skipf("failed to start redis container: %v", r)
		}
	}()

	container, err := redismodule.Run(ctx, redisImage)
	if err != nil {
		t.Skipf("failed to start redis container: %v", err)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Skipf("failed to get redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	cleanup := func() {
		if err := client.Close(); err != nil {
			t.Logf("failed to close redis client: %v", err)
		}

		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	}

	return client, cleanup
}

// SetupPostgresContainer starts a throwaway Postgres and returns its connection URI.
// The test is skipped when Docker is unavailable.
func SetupPostgresContainer(ctx context.Context, t *testing.T) (string, func()) {
	t.Helper()

	defer func() {
		if r := recover(); r != nil {
			t.Skipf("failed to start postgres container: %v", r)
		}
	}()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        postgresImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "remind",
				"POSTGRES_PASSWORD": "remind",
				"POSTGRES_DB":       "remind",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("failed to start postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Skipf("failed to get postgres host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Skipf("failed to get postgres port: %v", err)
	}

	uri := fmt.Sprintf("postgres://remind:remind@%s:%s/remind?sslmode=disable", host, port.Port())

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	}

	return uri, cleanup
}

// FlushRedis empties the database between table cases sharing one container.
func FlushRedis(ctx context.Context, t *testing.T, client *redis.Client) {
	t.Helper()

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("failed to flush redis: %v", err)
	}
}

// NewDailyRecord builds a valid active daily record at 09:00 with the given id.
func NewDailyRecord(t *testing.T, id int64, now time.Time) *domain.ReminderRecord {
	t.Helper()

	record, err := domain.NewReminderRecord("Stretch", "health", "", domain.Daily(), domain.TimeOfDay{Hour: 9}, 0, now)
	if err != nil {
		t.Fatalf("failed to build record: %v", err)
	}
	record.ID = id
	return record
}
