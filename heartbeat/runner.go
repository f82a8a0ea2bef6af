// Package heartbeat keeps an execution's active-registry row fresh while the
// execution runs on this host.
package heartbeat

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/flowstate/logger"
	"github.com/teranos/flowstate/retry"
)

// Registry is the part of executor.ActiveStore the runner needs.
type Registry interface {
	Heartbeat(ctx context.Context, execID int64, t time.Time) (bool, error)
}

// Config contains configuration for a heartbeat runner
type Config struct {
	Interval time.Duration
	Retry    retry.Policy
}

// DefaultConfig returns a 30s interval with three paced attempts per beat.
func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
		Retry:    retry.Policy{MaxAttempts: 3, PerSecond: 2},
	}
}

// Runner heartbeats one execution until stopped or until the registry row is gone.
type Runner struct {
	registry Registry
	execID   int64
	cfg      Config
	now      func() time.Time
	logger   *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}

	mu    sync.Mutex
	beats int64
	lost  bool
}

// NewRunner creates a runner for execID. A nil logger disables logging.
func NewRunner(registry Registry, execID int64, cfg Config, log *zap.SugaredLogger) *Runner {
	return NewRunnerWithContext(context.Background(), registry, execID, cfg, log)
}

// NewRunnerWithContext creates a runner bound to a parent context.
func NewRunnerWithContext(ctx context.Context, registry Registry, execID int64, cfg Config, log *zap.SugaredLogger) *Runner {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Retry.Logger == nil {
		cfg.Retry.Logger = log
	}
	runCtx, cancel := context.WithCancel(ctx)
	return &Runner{
		registry: registry,
		execID:   execID,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.LoggerFromContext(logger.WithComponent(logger.WithExecID(ctx, execID), "heartbeat"), log),
		ctx:      runCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start begins the heartbeat loop
func (r *Runner) Start() {
	r.wg.Add(1)
	go r.run()
	r.logger.Infow("Heartbeat started", logger.FieldInterval, r.cfg.Interval)
}

// Stop halts the loop and waits for it to exit. Safe to call more than once.
func (r *Runner) Stop() {
	r.cancel()
	r.wg.Wait()
}

// Done is closed when the loop exits, either by Stop or because the
// execution left the registry.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Lost reports whether the loop stopped because the registry row disappeared.
func (r *Runner) Lost() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lost
}

// Beats returns the number of successful heartbeats.
func (r *Runner) Beats() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.beats
}

func (r *Runner) run() {
	defer r.wg.Done()
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debugw("Heartbeat stopped", "beats", r.Beats())
			return
		case <-ticker.C:
			alive, err := r.Beat(r.ctx)
			if err != nil {
				if r.ctx.Err() != nil {
					return
				}
				// The next tick tries again
				r.logger.Warnw("Heartbeat failed", logger.FieldError, err)
				continue
			}
			if !alive {
				r.mu.Lock()
				r.lost = true
				r.mu.Unlock()
				r.logger.Warnw("Execution no longer registered, heartbeat lost")
				return
			}
		}
	}
}

// Beat performs one heartbeat with retries and reports whether the
// execution is still registered.
func (r *Runner) Beat(ctx context.Context) (bool, error) {
	var alive bool
	err := retry.Do(ctx, r.cfg.Retry, func(ctx context.Context) error {
		var err error
		alive, err = r.registry.Heartbeat(ctx, r.execID, r.now())
		return err
	})
	if err != nil {
		return false, err
	}
	if alive {
		r.mu.Lock()
		r.beats++
		r.mu.Unlock()
	}
	return alive, nil
}
