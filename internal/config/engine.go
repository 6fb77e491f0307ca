package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/KasumiMercury/primind-remind-engine/internal/service/dispatch"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/errorlog"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/fallback"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/loop"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/schedtime"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/syncengine"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/trigger"
)

const (
	sweepIntervalEnv     = "SWEEP_INTERVAL"
	armRetryDelayEnv     = "ARM_RETRY_DELAY"
	armRetryAttemptsEnv  = "ARM_RETRY_ATTEMPTS"
	drainIntervalEnv     = "DRAIN_INTERVAL"
	syncMaxAttemptsEnv   = "SYNC_MAX_ATTEMPTS"
	syncBackoffBaseEnv   = "SYNC_BACKOFF_BASE"
	syncBackoffCapEnv    = "SYNC_BACKOFF_CAP"
	fallbackThresholdEnv = "FALLBACK_CRITICAL_THRESHOLD"
	fallbackWindowEnv    = "FALLBACK_WINDOW"
	errorLogCapacityEnv  = "ERROR_LOG_CAPACITY"
	minLeadEnv           = "SCHEDULE_MIN_LEAD"
	workersEnv           = "EXECUTOR_WORKERS"
	workerQueueEnv       = "EXECUTOR_QUEUE_SIZE"
)

// EngineConfig tunes the scheduler, sync engine, fallback controller and background loop.
// Zero values fall back to each component's defaults.
type EngineConfig struct {
	Scheduler trigger.Config
	Sync      syncengine.Config
	Fallback  fallback.Config
	Loop      loop.Config

	MinLead          time.Duration
	ErrorLogCapacity int
	Workers          int
	WorkerQueueSize  int
}

func LoadEngineConfig() (*EngineConfig, error) {
	var errs []error
	duration := func(key string, def time.Duration) time.Duration {
		v, err := durationEnv(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	integer := func(key string, def int) int {
		v, err := intEnv(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := &EngineConfig{
		Scheduler: trigger.Config{
			RetryAttempts: integer(armRetryAttemptsEnv, trigger.DefaultRetryAttempts),
			RetryDelay:    duration(armRetryDelayEnv, trigger.DefaultRetryDelay),
		},
		Sync: syncengine.Config{
			MaxAttempts: integer(syncMaxAttemptsEnv, syncengine.DefaultMaxAttempts),
			BackoffBase: duration(syncBackoffBaseEnv, syncengine.DefaultBackoffBase),
			BackoffCap:  duration(syncBackoffCapEnv, syncengine.DefaultBackoffCap),
		},
		Fallback: fallback.Config{
			CriticalThreshold: integer(fallbackThresholdEnv, fallback.DefaultCriticalThreshold),
			Window:            duration(fallbackWindowEnv, fallback.DefaultWindow),
		},
		Loop: loop.Config{
			DrainInterval: duration(drainIntervalEnv, loop.DefaultDrainInterval),
			SweepInterval: duration(sweepIntervalEnv, loop.DefaultSweepInterval),
		},
		MinLead:          duration(minLeadEnv, schedtime.DefaultMinLead),
		ErrorLogCapacity: integer(errorLogCapacityEnv, errorlog.DefaultCapacity),
		Workers:          integer(workersEnv, dispatch.DefaultWorkers),
		WorkerQueueSize:  integer(workerQueueEnv, dispatch.DefaultQueueSize),
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("engine configuration errors: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def, fmt.Errorf("%w: %s=%q", ErrInvalidDuration, key, raw)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def, fmt.Errorf("%w: %s=%q", ErrInvalidInteger, key, raw)
	}
	return v, nil
}
