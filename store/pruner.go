package store

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pruner periodically deletes replay records whose token has expired.
type Pruner struct {
	target   ExpiredPruner
	logger   *zap.Logger
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewPruner creates a pruner. An interval of 0 or less defaults to 1 hour.
func NewPruner(target ExpiredPruner, logger *zap.Logger, interval time.Duration) *Pruner {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pruner{
		target:   target,
		logger:   logger,
		interval: interval,
		timeout:  30 * time.Second,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the background loop. It runs one prune immediately.
func (p *Pruner) Start() {
	go p.run()
	p.logger.Info("replay pruner started", zap.Duration("interval", p.interval))
}

// Stop signals the loop and waits for an in-flight prune to finish.
func (p *Pruner) Stop() {
	close(p.stopCh)
	<-p.doneCh
	p.logger.Info("replay pruner stopped")
}

func (p *Pruner) run() {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.PruneOnce()

	for {
		select {
		case <-ticker.C:
			p.PruneOnce()
		case <-p.stopCh:
			return
		}
	}
}

// PruneOnce runs a single prune and returns the number of removed records.
func (p *Pruner) PruneOnce() int64 {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	n, err := p.target.PruneExpired(ctx, p.now())
	if err != nil {
		p.logger.Error("failed to prune expired replay records", zap.Error(err))
		return 0
	}
	p.logger.Debug("pruned expired replay records", zap.Int64("deleted", n))
	return n
}
