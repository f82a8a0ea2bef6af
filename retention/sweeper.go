// Package retention deletes log chunks older than the configured age.
package retention

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/flowstate/logger"
	"github.com/teranos/flowstate/retry"
)

// LogPruner is the part of executor.LogStore the sweeper needs.
type LogPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config contains configuration for the sweeper
type Config struct {
	// MaxAge is how long chunks are kept; zero disables sweeping.
	MaxAge   time.Duration
	Interval time.Duration
	Retry    retry.Policy
}

// Sweeper periodically prunes expired log chunks.
type Sweeper struct {
	logs   LogPruner
	cfg    Config
	now    func() time.Time
	logger *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	deleted int64
	sweeps  int64
}

// NewSweeper creates a sweeper. A nil logger disables logging.
func NewSweeper(logs LogPruner, cfg Config, log *zap.SugaredLogger) *Sweeper {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Retry.Logger == nil {
		cfg.Retry.Logger = log
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		logs:   logs,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.LoggerFromContext(logger.WithComponent(ctx, "retention"), log),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Enabled reports whether a maximum age is configured.
func (s *Sweeper) Enabled() bool {
	return s.cfg.MaxAge > 0
}

// RunOnce deletes every chunk uploaded before now minus MaxAge and returns
// the number removed. It is a no-op when sweeping is disabled.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	if !s.Enabled() {
		return 0, nil
	}
	cutoff := s.now().Add(-s.cfg.MaxAge)

	var n int64
	err := retry.Do(ctx, s.cfg.Retry, func(ctx context.Context) error {
		var err error
		n, err = s.logs.DeleteOlderThan(ctx, cutoff)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.deleted += n
	s.sweeps++
	s.mu.Unlock()
	return n, nil
}

// Stats returns the sweeps completed and chunks deleted since creation.
func (s *Sweeper) Stats() (sweeps, deleted int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweeps, s.deleted
}

// Start sweeps immediately and then once per interval. Disabled sweepers do not start.
func (s *Sweeper) Start() {
	if !s.Enabled() {
		s.logger.Infow("Log retention disabled")
		return
	}
	s.wg.Add(1)
	go s.run()
	s.logger.Infow("Log retention started", "max_age", s.cfg.MaxAge, logger.FieldInterval, s.cfg.Interval)
}

// Stop gracefully stops the sweeper
func (s *Sweeper) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(s.ctx); err != nil && s.ctx.Err() == nil {
			s.logger.Warnw("Log retention sweep failed", logger.FieldError, err)
		}
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
