package worker

import (
	"context"
	"fmt"
	"meet-backend/internal/logger"
	"sync"
	"time"

	"github.com/jaevor/go-nanoid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomePanic    = "panic"
	OutcomeRejected = "rejected"
)

var tasksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "meet_background_tasks_total",
		Help: "Background tasks by name and outcome.",
	},
	[]string{"task", "outcome"},
)

func init() {
	prometheus.MustRegister(tasksTotal)
}

type Task func(ctx context.Context) error

// Runner executes work after the HTTP response has been sent. Each task gets
// a context detached from the request, bounded by the configured timeout,
// and its own log buffer. Failures are logged and counted, never retried.
type Runner struct {
	log     *zap.Logger
	timeout time.Duration
	newID   func() string

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	onDone func(name, outcome string)
}

func NewRunner(log *zap.Logger, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	newID, err := nanoid.Standard(12)
	if err != nil {
		panic(fmt.Sprintf("nanoid generator: %v", err))
	}
	return &Runner{log: log, timeout: timeout, newID: newID}
}

// Go schedules fn. The request id of parent, if any, is carried into the task
// log. It returns false once the runner is shutting down.
func (r *Runner) Go(parent context.Context, name string, fn Task) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		tasksTotal.WithLabelValues(name, OutcomeRejected).Inc()
		r.log.Warn("background task rejected", zap.String("task", name))
		return false
	}
	r.wg.Add(1)
	r.mu.Unlock()

	taskID := r.newID()
	go func() {
		defer r.wg.Done()
		r.run(context.WithoutCancel(parent), name, taskID, fn)
	}()
	return true
}

func (r *Runner) run(base context.Context, name, taskID string, fn Task) {
	ctx, cancel := context.WithTimeout(base, r.timeout)
	defer cancel()

	buf := logger.NewBuffer(logger.DefaultBufferSize)
	ctx = logger.WithBuffer(ctx, buf)

	start := time.Now()
	outcome := OutcomeOK
	var taskErr error

	defer func() {
		if rec := recover(); rec != nil {
			outcome = OutcomePanic
			taskErr = fmt.Errorf("panic: %v", rec)
		}

		fields := []zap.Field{
			zap.String("task", name),
			zap.String("task_id", taskID),
		}
		if reqID := logger.RequestID(base); reqID != "" {
			fields = append(fields, zap.String("request_id", reqID))
		}
		taskLog := r.log.With(fields...)
		buf.Flush(taskLog)

		done := []zap.Field{zap.String("outcome", outcome), zap.Duration("duration", time.Since(start))}
		if taskErr != nil {
			taskLog.Error("background task failed", append(done, zap.Error(taskErr))...)
		} else {
			taskLog.Info("background task finished", done...)
		}

		tasksTotal.WithLabelValues(name, outcome).Inc()
		if r.onDone != nil {
			r.onDone(name, outcome)
		}
	}()

	if err := fn(ctx); err != nil {
		outcome = OutcomeError
		taskErr = err
	}
}

// Wait stops accepting tasks and blocks until running ones finish or ctx is
// done.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
