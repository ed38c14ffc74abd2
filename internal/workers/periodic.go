package workers

import (
	"context"
	"sync"
	"time"

	"github.com/open-builders/giveaway-tickets/internal/cache"
	"github.com/open-builders/giveaway-tickets/internal/common/logger"
)

// Periodic runs a job on a fixed interval until stopped.
type Periodic struct {
	name     string
	interval time.Duration
	job      func(ctx context.Context) error

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPeriodic(name string, interval time.Duration, job func(ctx context.Context) error) *Periodic {
	return &Periodic{name: name, interval: interval, job: job}
}

// Start launches the loop in a goroutine. Job errors are logged and never stop it.
func (p *Periodic) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		logger.Info().Str("worker", p.name).Dur("interval", p.interval).Msg("worker started")
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.RunOnce(ctx)
			case <-ctx.Done():
				logger.Info().Str("worker", p.name).Msg("worker stopped")
				return
			}
		}
	}()
}

// RunOnce executes the job a single time.
func (p *Periodic) RunOnce(ctx context.Context) {
	if err := p.job(ctx); err != nil {
		logger.Error().Err(err).Str("worker", p.name).Msg("worker job failed")
	}
}

func (p *Periodic) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// LifecycleRunner advances giveaways whose start or end time has passed.
type LifecycleRunner interface {
	ActivateDue(ctx context.Context) (int, error)
	FinishExpired(ctx context.Context) (int, error)
}

// NewLifecycleWorker activates due giveaways and finishes expired ones.
func NewLifecycleWorker(svc LifecycleRunner, interval time.Duration) *Periodic {
	return NewPeriodic("lifecycle", interval, func(ctx context.Context) error {
		activated, err := svc.ActivateDue(ctx)
		if err != nil {
			return err
		}
		finished, err := svc.FinishExpired(ctx)
		if err != nil {
			return err
		}
		if activated+finished > 0 {
			logger.Info().Int("activated", activated).Int("finished", finished).Msg("lifecycle tick")
		}
		return nil
	})
}

// NewCaptchaSweeper purges expired captcha tokens and rate windows.
func NewCaptchaSweeper(store cache.Sweeper, interval time.Duration) *Periodic {
	return NewPeriodic("captcha-sweeper", interval, func(ctx context.Context) error {
		n, err := store.Sweep(ctx, time.Now())
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Debug().Int("purged", n).Msg("captcha sweep")
		}
		return nil
	})
}
