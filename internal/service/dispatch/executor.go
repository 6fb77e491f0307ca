package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/errorlog"
)

const (
	DefaultWorkers   = 4
	DefaultQueueSize = 256
)

var ErrExecutorStopped = errors.New("executor stopped")

// Task is one unit of fire-and-forget background work.
type Task struct {
	Name     string
	RecordID int64
	// Category and Severity classify a failure in the error log.
	Category domain.ErrorCategory
	Severity domain.Severity
	Run      func(ctx context.Context) error
}

// Submitter accepts background work without blocking the caller.
type Submitter interface {
	Submit(task Task) bool
}

// Executor runs submitted tasks on a bounded worker pool and logs every failure centrally.
// Each worker owns a lane; tasks of one record always use the same lane and so run in
// submission order.
type Executor struct {
	lanes   []chan Task
	workers int
	log     *errorlog.Log

	mu      sync.Mutex
	stopped bool
	next    int
	group   *errgroup.Group
}

func NewExecutor(workers, queueSize int, log *errorlog.Log) *Executor {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	lanes := make([]chan Task, workers)
	for i := range lanes {
		lanes[i] = make(chan Task, queueSize)
	}
	return &Executor{
		lanes:   lanes,
		workers: workers,
		log:     log,
	}
}

// Start launches the workers. Tasks run with ctx, not with the submitter's context.
// Cancelling ctx does not cancel tasks; Stop still runs everything queued.
func (e *Executor) Start(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	g := &errgroup.Group{}
	for _, lane := range e.lanes {
		g.Go(func() error {
			for task := range lane {
				e.run(ctx, task)
			}
			return nil
		})
	}

	e.mu.Lock()
	e.group = g
	e.mu.Unlock()
}

// Submit enqueues task. It returns false and logs when the executor is saturated or stopped.
func (e *Executor) Submit(task Task) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		slog.Warn("background task rejected, executor stopped",
			slog.String("task", task.Name),
			slog.Int64("record_id", task.RecordID),
		)
		return false
	}

	select {
	case e.lane(task) <- task:
		return true
	default:
		slog.Warn("background task dropped, queue full",
			slog.String("task", task.Name),
			slog.Int64("record_id", task.RecordID),
		)
		return false
	}
}

// Stop rejects new tasks, runs the queued ones and waits for the workers.
func (e *Executor) Stop() error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return ErrExecutorStopped
	}
	e.stopped = true
	for _, lane := range e.lanes {
		close(lane)
	}
	g := e.group
	e.mu.Unlock()

	if g == nil {
		return nil
	}
	return g.Wait()
}

// lane must be called with e.mu held.
func (e *Executor) lane(task Task) chan Task {
	if task.RecordID != 0 {
		idx := task.RecordID % int64(len(e.lanes))
		if idx < 0 {
			idx = -idx
		}
		return e.lanes[idx]
	}
	e.next = (e.next + 1) % len(e.lanes)
	return e.lanes[e.next]
}

func (e *Executor) run(ctx context.Context, task Task) {
	err := safeRun(ctx, task)
	if err == nil {
		return
	}

	if e.log == nil {
		slog.ErrorContext(ctx, "background task failed",
			slog.String("task", task.Name),
			slog.Int64("record_id", task.RecordID),
			slog.String("error", err.Error()),
		)
		return
	}

	category := task.Category
	if category == "" {
		category = domain.CategoryScheduling
	}
	severity := task.Severity
	if severity == "" {
		severity = domain.SeverityWarning
	}
	e.log.Report(ctx, category, severity, task.Name, task.RecordID, err)
}

func safeRun(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", task.Name, r)
		}
	}()
	return task.Run(ctx)
}

// Inline runs tasks synchronously on Submit. Used where ordering must be observable.
type Inline struct {
	Ctx context.Context
	Log *errorlog.Log
}

func (i Inline) Submit(task Task) bool {
	ctx := i.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	e := &Executor{log: i.Log}
	e.run(ctx, task)
	return true
}
