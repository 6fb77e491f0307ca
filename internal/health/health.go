package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/fallback"
)

// SchedulerService is the gRPC health service name that turns NOT_SERVING in Fallback mode.
const SchedulerService = "primind.remind.v1.Scheduler"

// Status represents the health status of a service or dependency.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult represents the health check result for a single dependency.
type CheckResult struct {
	Status    Status `json:"status"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// HealthStatus represents the overall health status of the service.
type HealthStatus struct {
	Status  Status                 `json:"status"`
	Version string                 `json:"version,omitempty"`
	Checks  map[string]CheckResult `json:"checks,omitempty"`
}

// FallbackState exposes the scheduler mode.
type FallbackState interface {
	Mode() fallback.Mode
	Snapshot() domain.HealthState
}

// Checker performs health checks on Redis and reports the fallback mode.
type Checker struct {
	redisClient *redis.Client
	fallback    FallbackState
	version     string
}

func NewChecker(redisClient *redis.Client, fb FallbackState, version string) *Checker {
	return &Checker{
		redisClient: redisClient,
		fallback:    fb,
		version:     version,
	}
}

// Check pings Redis and reads the fallback mode. Fallback degrades the service without
// failing readiness: local writes still work.
func (c *Checker) Check(ctx context.Context) *HealthStatus {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status := &HealthStatus{
		Status:  StatusHealthy,
		Version: c.version,
		Checks:  make(map[string]CheckResult),
	}

	if c.redisClient != nil {
		start := time.Now()
		if err := c.redisClient.Ping(checkCtx).Err(); err != nil {
			status.Status = StatusUnhealthy
			status.Checks["redis"] = CheckResult{
				Status: StatusUnhealthy,
				Error:  err.Error(),
			}
		} else {
			status.Checks["redis"] = CheckResult{
				Status:    StatusHealthy,
				LatencyMs: time.Since(start).Milliseconds(),
			}
		}
	}

	if c.fallback != nil {
		if c.fallback.Mode() == fallback.ModeFallback {
			status.Checks["scheduler"] = CheckResult{
				Status: StatusDegraded,
				Reason: c.fallback.Snapshot().Reason,
			}
			if status.Status == StatusHealthy {
				status.Status = StatusDegraded
			}
		} else {
			status.Checks["scheduler"] = CheckResult{Status: StatusHealthy}
		}
	}

	return status
}

// LiveHandler returns a Gin handler for liveness probes.
func (c *Checker) LiveHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// ReadyHandler returns a Gin handler for readiness probes.
func (c *Checker) ReadyHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		status := c.Check(ctx.Request.Context())

		httpStatus := http.StatusOK
		if status.Status == StatusUnhealthy {
			httpStatus = http.StatusServiceUnavailable
		}

		ctx.JSON(httpStatus, status)
	}
}

// CheckGRPC answers gRPC health checks. The empty service name covers the whole process.
func (c *Checker) CheckGRPC(ctx context.Context, req *grpchealth.CheckRequest) (*grpchealth.CheckResponse, error) {
	status := c.Check(ctx)

	switch req.Service {
	case "":
		if status.Status == StatusUnhealthy {
			return &grpchealth.CheckResponse{Status: grpchealth.StatusNotServing}, nil
		}
		return &grpchealth.CheckResponse{Status: grpchealth.StatusServing}, nil
	case SchedulerService:
		if status.Status == StatusHealthy {
			return &grpchealth.CheckResponse{Status: grpchealth.StatusServing}, nil
		}
		return &grpchealth.CheckResponse{Status: grpchealth.StatusNotServing}, nil
	default:
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("unknown service %q", req.Service))
	}
}

// GRPCHandler returns the path and handler of the gRPC health service.
func (c *Checker) GRPCHandler() (string, http.Handler) {
	return grpchealth.NewHandler(grpcChecker{c})
}

type grpcChecker struct {
	c *Checker
}

func (g grpcChecker) Check(ctx context.Context, req *grpchealth.CheckRequest) (*grpchealth.CheckResponse, error) {
	return g.c.CheckGRPC(ctx, req)
}
