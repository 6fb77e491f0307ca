package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/KasumiMercury/primind-remind-engine/internal/clock"
	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/errorlog"
)

const (
	DefaultCriticalThreshold = 3
	DefaultWindow            = time.Hour
	CounterWindow            = 24 * time.Hour
)

const (
	ReasonArmFailures      = "arm_failure_rate"
	ReasonCriticalErrors   = "critical_error_rate"
	ReasonPermissionDenied = "background_permission_denied"
)

type Mode string

const (
	ModeNormal   Mode = "normal"
	ModeFallback Mode = "fallback"
)

type Config struct {
	CriticalThreshold int
	Window            time.Duration
}

// Canary tests whether triggers can be armed right now.
type Canary interface {
	Canary(ctx context.Context) error
}

// ChangeHook observes mode transitions.
type ChangeHook func(ctx context.Context, inFallback bool, reason string)

// CheckResult is the outcome of an explicit health check.
type CheckResult struct {
	Mode       Mode
	Healthy    bool
	Conditions []string
}

// Controller is the process-wide Normal/Fallback state machine.
type Controller struct {
	mu    sync.Mutex
	state domain.HealthState

	cfg    Config
	repo   domain.HealthRepository
	log    *errorlog.Log
	clock  clock.Clock
	hooks  []ChangeHook
	canary Canary
}

func NewController(cfg Config, repo domain.HealthRepository, log *errorlog.Log, clk clock.Clock) *Controller {
	if cfg.CriticalThreshold <= 0 {
		cfg.CriticalThreshold = DefaultCriticalThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if clk == nil {
		clk = clock.Real()
	}

	c := &Controller{
		cfg:   cfg,
		repo:  repo,
		log:   log,
		clock: clk,
		state: domain.HealthState{ChangedAt: clk.Now()},
	}
	if log != nil {
		log.Subscribe(c.observe)
	}
	return c
}

func (c *Controller) OnChange(hook ChangeHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, hook)
}

// SetCanary makes the arm failure condition clear only after a successful canary arm.
// Without one, the condition ages out after the window.
func (c *Controller) SetCanary(canary Canary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.canary = canary
}

// Load restores the persisted state. A missing state starts in Normal.
func (c *Controller) Load(ctx context.Context) error {
	if c.repo == nil {
		return nil
	}

	state, err := c.repo.Load(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrHealthStateNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load health state: %w", err)
	}

	c.mu.Lock()
	c.state = *state
	c.mu.Unlock()

	if state.InFallbackMode {
		slog.WarnContext(ctx, "starting in fallback mode",
			slog.String("reason", state.Reason),
		)
	}
	return nil
}

func (c *Controller) InFallback() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.InFallbackMode
}

func (c *Controller) Mode() Mode {
	if c.InFallback() {
		return ModeFallback
	}
	return ModeNormal
}

// Enter moves to Fallback. Re-entering keeps the original reason.
func (c *Controller) Enter(ctx context.Context, reason string) {
	c.mu.Lock()
	if reason == ReasonArmFailures {
		now := c.clock.Now()
		c.state.ArmFailureAt = &now
	}
	if c.state.InFallbackMode {
		c.mu.Unlock()
		c.persist(ctx)
		return
	}
	c.state.InFallbackMode = true
	c.state.Reason = reason
	c.state.ChangedAt = c.clock.Now()
	hooks := append([]ChangeHook(nil), c.hooks...)
	c.mu.Unlock()

	slog.WarnContext(ctx, "entering fallback mode",
		slog.String("reason", reason),
	)
	c.persist(ctx)
	for _, h := range hooks {
		h(ctx, true, reason)
	}
}

// ReportPermission records the background-execution signal. false forces Fallback.
func (c *Controller) ReportPermission(ctx context.Context, permitted bool) {
	c.mu.Lock()
	c.state.PermissionDenied = !permitted
	c.mu.Unlock()

	if !permitted {
		if c.log != nil {
			c.log.Report(ctx, domain.CategoryPermission, domain.SeverityWarning, "fallback", 0, errors.New("background execution not permitted"))
		}
		c.Enter(ctx, ReasonPermissionDenied)
		return
	}
	c.persist(ctx)
}

// ReportArmBatch enters Fallback when more than half of a non-empty batch failed.
func (c *Controller) ReportArmBatch(ctx context.Context, total, failed int) bool {
	if total == 0 || failed*2 <= total {
		return false
	}
	if c.log != nil {
		c.log.Report(ctx, domain.CategoryScheduling, domain.SeverityCritical, "trigger",
			0, fmt.Errorf("%d of %d arms failed", failed, total))
	}
	c.Enter(ctx, ReasonArmFailures)
	return true
}

// HealthCheck re-evaluates every entry condition and leaves Fallback only when none holds.
// It is the sole way back to Normal.
func (c *Controller) HealthCheck(ctx context.Context) CheckResult {
	now := c.clock.Now()
	conditions := c.activeConditions(ctx, now)

	c.mu.Lock()
	c.state.LastCheckAt = &now
	wasFallback := c.state.InFallbackMode
	exited := wasFallback && len(conditions) == 0
	if exited {
		c.state.InFallbackMode = false
		c.state.Reason = ""
		c.state.ChangedAt = now
		c.state.ArmFailureAt = nil
	}
	hooks := append([]ChangeHook(nil), c.hooks...)
	c.mu.Unlock()

	c.persist(ctx)

	switch {
	case exited:
		slog.InfoContext(ctx, "health check passed, leaving fallback mode")
		for _, h := range hooks {
			h(ctx, false, "")
		}
	case wasFallback:
		slog.WarnContext(ctx, "health check failed, staying in fallback mode",
			slog.Any("conditions", conditions),
		)
	case len(conditions) > 0:
		c.Enter(ctx, conditions[0])
	}

	return CheckResult{
		Mode:       c.Mode(),
		Healthy:    len(conditions) == 0,
		Conditions: conditions,
	}
}

// Snapshot returns the state with error counters over the trailing 24 hours.
func (c *Controller) Snapshot() domain.HealthState {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if c.log != nil {
		state.ErrorCounts = c.log.CountsByCategory(c.clock.Now().Add(-CounterWindow))
	}
	return state
}

func (c *Controller) activeConditions(ctx context.Context, now time.Time) []string {
	c.mu.Lock()
	denied := c.state.PermissionDenied
	armFailureAt := c.state.ArmFailureAt
	canary := c.canary
	c.mu.Unlock()

	var conditions []string
	if denied {
		conditions = append(conditions, ReasonPermissionDenied)
	}
	if armFailureAt != nil && c.armFailing(ctx, canary, now.Sub(*armFailureAt)) {
		conditions = append(conditions, ReasonArmFailures)
	}
	if c.criticalCount(now) > c.cfg.CriticalThreshold {
		conditions = append(conditions, ReasonCriticalErrors)
	}
	return conditions
}

func (c *Controller) armFailing(ctx context.Context, canary Canary, age time.Duration) bool {
	if canary == nil {
		return age < c.cfg.Window
	}
	if err := canary.Canary(ctx); err != nil {
		slog.WarnContext(ctx, "canary arm failed",
			slog.String("error", err.Error()),
		)
		return true
	}
	return false
}

func (c *Controller) criticalCount(now time.Time) int {
	if c.log == nil {
		return 0
	}
	return c.log.CountSince(now.Add(-c.cfg.Window), domain.ErrorEvent.Critical)
}

func (c *Controller) observe(ctx context.Context, event domain.ErrorEvent) {
	if !event.Critical() || c.InFallback() {
		return
	}
	if c.criticalCount(c.clock.Now()) > c.cfg.CriticalThreshold {
		c.Enter(ctx, ReasonCriticalErrors)
	}
}

func (c *Controller) persist(ctx context.Context) {
	if c.repo == nil {
		return
	}

	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if err := c.repo.Save(ctx, &state); err != nil {
		slog.WarnContext(ctx, "failed to persist health state",
			slog.String("error", err.Error()),
		)
	}
}
