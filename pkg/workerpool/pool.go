package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"notifyrouter/pkg/metrics"
)

var (
	ErrQueueFull   = errors.New("worker pool queue full")
	ErrPoolStopped = errors.New("worker pool stopped")
)

// Priority selects the lane a task waits in. Workers always drain higher lanes first.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityNormal
	PriorityLow
)

const laneCount = 3

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// PriorityFromInt maps the envelope convention (1 high, 0 normal, -1 low).
// Any other value is treated as normal.
func PriorityFromInt(v int) Priority {
	switch {
	case v > 0:
		return PriorityHigh
	case v < 0:
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// Task is a unit of work run on a pool worker.
type Task func(ctx context.Context) error

type Config struct {
	Workers    int `yaml:"workers" env:"DISPATCH_WORKERS"`
	QueueSize  int `yaml:"queue_size" env:"DISPATCH_QUEUE_SIZE"`
	RatePerSec int `yaml:"rate_per_sec" env:"DISPATCH_RATE_PER_SEC"` // 0 = unlimited
}

type job struct {
	name     string
	ctx      context.Context
	fn       Task
	detached bool
	done     chan error
}

// Pool is a bounded, rate limited worker pool with three priority lanes.
// Tasks may be submitted before Start; they run once workers are up.
type Pool struct {
	cfg     Config
	log     *zap.Logger
	limiter *rate.Limiter

	lanes [laneCount]chan job
	ready chan struct{} // one token per queued job

	mu      sync.Mutex
	started bool
	stopped bool

	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup
}

func New(cfg Config, log *zap.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}

	p := &Pool{
		cfg:     cfg,
		log:     log,
		limiter: limiter,
		ready:   make(chan struct{}, laneCount*cfg.QueueSize),
	}
	for i := range p.lanes {
		p.lanes[i] = make(chan job, cfg.QueueSize)
	}
	p.runCtx, p.runCancel = context.WithCancel(context.Background())
	return p
}

// Start launches the workers. Calling it twice is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	for i := 0; i < p.cfg.Workers; i++ {
		p.workerWG.Add(1)
		go p.workerLoop()
	}
	p.log.Info("Worker pool started",
		zap.Int("workers", p.cfg.Workers),
		zap.Int("queue_size", p.cfg.QueueSize),
		zap.Int("rate_per_sec", p.cfg.RatePerSec),
	)
}

// Stop rejects new tasks and drains the queued ones until ctx expires,
// after which running tasks see their context cancelled.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	started := p.started
	close(p.ready)
	p.mu.Unlock()

	if !started {
		p.failQueued()
		p.runCancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.workerWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.runCancel()
		return nil
	case <-ctx.Done():
		p.runCancel()
		<-done
		return fmt.Errorf("worker pool drain interrupted: %w", ctx.Err())
	}
}

// Go submits a fire-and-forget task. The task keeps ctx values but not its
// cancellation, so it outlives the request that submitted it.
func (p *Pool) Go(ctx context.Context, name string, prio Priority, fn Task) error {
	return p.enqueue(job{name: name, ctx: ctx, fn: fn, detached: true}, prio)
}

// Do submits a task and waits for the task's own result. Like Go, the task
// does not inherit ctx cancellation: once accepted it runs to completion (or
// until the pool stops), so the returned error is what the task reported.
func (p *Pool) Do(ctx context.Context, name string, prio Priority, fn Task) error {
	j := job{name: name, ctx: ctx, fn: fn, detached: true, done: make(chan error, 1)}
	if err := p.enqueue(j, prio); err != nil {
		return err
	}
	return <-j.done
}

func (p *Pool) enqueue(j job, prio Priority) error {
	if prio < PriorityHigh || prio > PriorityLow {
		prio = PriorityNormal
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		metrics.IncrementWorkerTask(j.name, "rejected")
		return ErrPoolStopped
	}

	lane := p.lanes[prio]
	select {
	case lane <- j:
	default:
		metrics.IncrementWorkerTask(j.name, "rejected")
		return ErrQueueFull
	}
	// ready 的容量等于所有 lane 之和，不会阻塞
	p.ready <- struct{}{}
	metrics.SetWorkerQueueDepth(prio.String(), len(lane))
	return nil
}

func (p *Pool) workerLoop() {
	defer p.workerWG.Done()
	for range p.ready {
		j, prio, ok := p.next()
		if !ok {
			continue
		}
		metrics.SetWorkerQueueDepth(prio.String(), len(p.lanes[prio]))
		p.run(j)
	}
}

// next takes a job from the highest non-empty lane.
func (p *Pool) next() (job, Priority, bool) {
	for i := range p.lanes {
		select {
		case j := <-p.lanes[i]:
			return j, Priority(i), true
		default:
		}
	}
	return job{}, PriorityNormal, false
}

func (p *Pool) run(j job) {
	ctx := j.ctx
	if j.detached {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(context.WithoutCancel(j.ctx))
		stop := context.AfterFunc(p.runCtx, cancel)
		defer stop()
		defer cancel()
	}

	err := p.limiter.Wait(ctx)
	if err == nil {
		err = p.safeCall(ctx, j)
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
		if j.done == nil {
			p.log.Error("Background task failed", zap.String("task", j.name), zap.Error(err))
		}
	}
	metrics.IncrementWorkerTask(j.name, outcome)

	if j.done != nil {
		j.done <- err
	}
}

func (p *Pool) safeCall(ctx context.Context, j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("panic in worker task",
				zap.String("task", j.name),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("task %s panicked: %v", j.name, r)
		}
	}()
	return j.fn(ctx)
}

// failQueued resolves tasks that were queued on a pool that never started.
func (p *Pool) failQueued() {
	for {
		j, _, ok := p.next()
		if !ok {
			return
		}
		metrics.IncrementWorkerTask(j.name, "rejected")
		if j.done != nil {
			j.done <- ErrPoolStopped
		}
	}
}
