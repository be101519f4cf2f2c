// Package throttle rate-limits repetitive warning logs so a backend outage
// produces a bounded number of lines.
package throttle

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Logger forwards at most one Warn per interval (with a small burst) and
// counts the suppressed remainder.
type Logger struct {
	logger     *zap.Logger
	limiter    *rate.Limiter
	suppressed atomic.Uint64
}

// New returns a Logger that allows burst lines and then one line per interval.
// A nil logger yields a no-op Logger.
func New(logger *zap.Logger, interval time.Duration, burst int) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Second
	}
	if burst <= 0 {
		burst = 1
	}
	return &Logger{
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(interval), burst),
	}
}

// Warn logs msg unless the limiter is exhausted. The number of lines
// suppressed since the last emitted one is attached as "suppressed".
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	if l == nil {
		return
	}
	if !l.limiter.Allow() {
		l.suppressed.Add(1)
		return
	}
	if n := l.suppressed.Swap(0); n > 0 {
		fields = append(fields, zap.Uint64("suppressed", n))
	}
	l.logger.Warn(msg, fields...)
}

// Suppressed returns the number of lines dropped since the last emitted one.
func (l *Logger) Suppressed() uint64 {
	if l == nil {
		return 0
	}
	return l.suppressed.Load()
}
