// Package scheduler runs the tracker's background jobs as supervised
// services: the scrape loop, cache maintenance and storage GC.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/nicktill/ntk-tracker/pkg/clock"
	"github.com/nicktill/ntk-tracker/pkg/logging"
	"github.com/nicktill/ntk-tracker/pkg/timezone"
)

// Job is one unit of scheduled work. Errors are logged and do not stop
// the schedule.
type Job func(ctx context.Context) error

// Periodic runs a job on a fixed interval.
type Periodic struct {
	name       string
	interval   time.Duration
	job        Job
	runAtStart bool
	log        zerolog.Logger
}

// NewPeriodic creates a periodic service. With runAtStart the job also runs
// once as soon as Serve starts.
func NewPeriodic(name string, interval time.Duration, runAtStart bool, job Job) *Periodic {
	return &Periodic{
		name:       name,
		interval:   interval,
		job:        job,
		runAtStart: runAtStart,
		log:        logging.Component("scheduler").With().Str("job", name).Logger(),
	}
}

// String names the service for the supervisor.
func (p *Periodic) String() string { return p.name }

// Serve runs until ctx is cancelled.
func (p *Periodic) Serve(ctx context.Context) error {
	p.log.Info().Dur("interval", p.interval).Msg("scheduler started")

	if p.runAtStart {
		p.run(ctx)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			p.run(ctx)
		}
	}
}

func (p *Periodic) run(ctx context.Context) {
	start := time.Now()
	if err := p.job(ctx); err != nil {
		p.log.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("job failed")
		return
	}
	p.log.Debug().Dur("elapsed", time.Since(start)).Msg("job completed")
}

// Daily runs a job at every local midnight.
type Daily struct {
	name  string
	norm  *timezone.Normalizer
	clock clock.Clock
	job   Job
	log   zerolog.Logger
}

// NewDaily creates a service firing at each midnight in norm's zone.
func NewDaily(name string, norm *timezone.Normalizer, clk clock.Clock, job Job) *Daily {
	return &Daily{
		name:  name,
		norm:  norm,
		clock: clk,
		job:   job,
		log:   logging.Component("scheduler").With().Str("job", name).Logger(),
	}
}

// String names the service for the supervisor.
func (d *Daily) String() string { return d.name }

// Serve runs until ctx is cancelled.
func (d *Daily) Serve(ctx context.Context) error {
	for {
		wait := d.UntilNext()
		d.log.Debug().Dur("wait", wait).Msg("next run scheduled")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if err := d.job(ctx); err != nil {
			d.log.Warn().Err(err).Msg("job failed")
			continue
		}
		d.log.Info().Msg("daily job completed")
	}
}

// UntilNext returns the time left until the next local midnight. A timer
// that fired a hair early must not fire twice for the same midnight.
func (d *Daily) UntilNext() time.Duration {
	now := d.clock.Now()
	next := d.norm.NextMidnight(now)
	if next.Sub(now) < time.Second {
		next = d.norm.NextMidnight(next)
	}
	return next.Sub(now)
}
