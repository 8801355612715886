// Package executor runs particle-set pipeline stages on a bounded pool of worker goroutines and
// hands their results back to the render thread through a RenderQueue.
package executor

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.starlod.dev/starlod/logging"
	"go.starlod.dev/starlod/metrics"
	"go.starlod.dev/starlod/utils"
)

// DefaultShutdownTimeout bounds how long Shutdown waits for queued and running tasks.
const DefaultShutdownTimeout = 500 * time.Millisecond

const defaultQueueSize = 256

var (
	// ErrShutdown is returned when submitting to a service that has been shut down.
	ErrShutdown = errors.New("executor is shut down")
	// ErrQueueFull is returned when the task queue has no room.
	ErrQueueFull = errors.New("executor queue is full")
	// ErrShutdownTimeout is returned by Shutdown when work was abandoned.
	ErrShutdownTimeout = errors.New("executor shutdown timed out, abandoning in-flight tasks")
)

// Task is a unit of work run on a worker goroutine.
type Task func(ctx context.Context) error

// Config configures a Service.
type Config struct {
	MultiThreading  bool
	Workers         int
	QueueSize       int
	ShutdownTimeout time.Duration
	Clock           clock.Clock
}

// PoolSize returns the number of workers for the config: the explicit Workers count if set,
// otherwise one less than the number of CPUs with multithreading, otherwise one.
func (cfg Config) PoolSize() int {
	if cfg.Workers > 0 {
		return cfg.Workers
	}
	if !cfg.MultiThreading {
		return 1
	}
	return utils.MaxInt(runtime.NumCPU()-1, 1)
}

type queuedTask struct {
	run    Task
	onDone func(error)
}

// Service is a bounded worker pool. Workers never keep the process alive: Shutdown gives them a
// short grace period and then abandons whatever is still running.
type Service struct {
	logger  logging.Logger
	clock   clock.Clock
	timeout time.Duration

	tasks    chan queuedTask
	cancel   context.CancelFunc
	workers  utils.StoppableWorkers
	inFlight sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	running *atomic.Int32
	size    int
}

// New starts a Service with cfg.PoolSize() workers.
func New(cfg Config, logger logging.Logger) *Service {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		logger:  logger,
		clock:   cfg.Clock,
		timeout: cfg.ShutdownTimeout,
		tasks:   make(chan queuedTask, cfg.QueueSize),
		cancel:  cancel,
		running: atomic.NewInt32(0),
		size:    cfg.PoolSize(),
	}
	s.workers = utils.NewStoppableWorkersWithContext(ctx)
	for i := 0; i < s.size; i++ {
		s.workers.AddWorkers(s.work)
	}
	logger.Debugw("executor started", "workers", s.size, "queue", cfg.QueueSize)
	return s
}

// Size returns the number of workers.
func (s *Service) Size() int {
	return s.size
}

// Running returns the number of tasks currently executing.
func (s *Service) Running() int {
	return int(s.running.Load())
}

// Submit queues a task. It never blocks.
func (s *Service) Submit(task Task) error {
	return s.SubmitWithHandler(task, nil)
}

// SubmitWithHandler queues a task and calls onDone on the worker goroutine once it finishes.
// The error passed to onDone is non-nil if the task returned an error or panicked. onDone is not
// called if the task is never started.
func (s *Service) SubmitWithHandler(task Task, onDone func(error)) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrShutdown
	}

	s.inFlight.Add(1)
	select {
	case s.tasks <- queuedTask{run: task, onDone: onDone}:
		return nil
	default:
		s.inFlight.Done()
		return ErrQueueFull
	}
}

func (s *Service) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case qt := <-s.tasks:
			s.runTask(ctx, qt)
		}
	}
}

func (s *Service) runTask(ctx context.Context, qt queuedTask) {
	defer s.inFlight.Done()
	s.running.Inc()
	defer s.running.Dec()

	err := runRecovered(ctx, qt.run)
	if err != nil {
		metrics.ExecutorTasks.WithLabelValues("failed").Inc()
		s.logger.Debugw("executor task failed", "error", err)
	} else {
		metrics.ExecutorTasks.WithLabelValues("ok").Inc()
	}
	if qt.onDone != nil {
		if handlerErr := runRecovered(ctx, func(context.Context) error {
			qt.onDone(err)
			return nil
		}); handlerErr != nil {
			s.logger.Errorw("executor completion handler failed", "error", handlerErr)
		}
	}
}

func runRecovered(ctx context.Context, task Task) (err error) {
	defer func() {
		if thePanic := recover(); thePanic != nil {
			err = fmt.Errorf("task panicked: %v", thePanic)
		}
	}()
	return task(ctx)
}

// Shutdown stops accepting tasks and waits up to the configured timeout for queued and running
// tasks. If the timeout expires the remaining work is abandoned and ErrShutdownTimeout returned.
func (s *Service) Shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.workers.Stop()
		s.logger.Debug("executor stopped")
		return nil
	case <-s.clock.After(s.timeout):
		// Cancel without waiting: workers stuck in a task exit when it returns.
		s.cancel()
		s.logger.Warnw("executor shutdown timed out", "running", s.Running(), "timeout", s.timeout)
		return ErrShutdownTimeout
	}
}
