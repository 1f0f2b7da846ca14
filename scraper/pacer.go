package scraper

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// Pacer inserts a politeness delay drawn uniformly from [min, max] between
// sequential fetches.
type Pacer struct {
	min    time.Duration
	max    time.Duration
	logger *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewPacer builds a pacer. A zero range disables waiting.
func NewPacer(min, max time.Duration, logger *slog.Logger) *Pacer {
	if logger == nil {
		logger = slog.Default()
	}
	if max < min {
		max = min
	}
	return &Pacer{min: min, max: max, logger: logger, sleep: sleepContext}
}

// Next returns the delay for the next wait.
func (p *Pacer) Next() time.Duration {
	if p.max <= p.min {
		return p.min
	}
	return p.min + time.Duration(rand.Int63n(int64(p.max-p.min)))
}

// Wait blocks for the next delay or until ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return ctx.Err()
	}
	delay := p.Next()
	if delay <= 0 {
		return ctx.Err()
	}
	p.logger.Info("waiting before next request", slog.Duration("delay", delay))
	return p.sleep(ctx, delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
