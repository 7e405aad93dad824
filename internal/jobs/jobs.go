// Package jobs runs the periodic background work of the server.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
)

// Refresher reloads something on a schedule (question catalog).
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Heartbeater keeps liveness markers fresh (room registry).
type Heartbeater interface {
	Heartbeat(ctx context.Context) error
}

// Intervals configures how often each job runs. A non-positive interval disables the job.
type Intervals struct {
	CatalogRefresh time.Duration
	Heartbeat      time.Duration
}

type Scheduler struct {
	sched gocron.Scheduler
}

// Start schedules the catalog refresh and room heartbeat jobs and starts the scheduler.
func Start(catalog Refresher, rooms Heartbeater, every Intervals, opts ...gocron.SchedulerOption) (*Scheduler, error) {
	sched, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("new scheduler: %w", err)
	}

	if every.CatalogRefresh > 0 {
		if err := add(sched, "catalog-refresh", every.CatalogRefresh, catalog.Refresh); err != nil {
			return nil, err
		}
	}
	if every.Heartbeat > 0 {
		if err := add(sched, "room-heartbeat", every.Heartbeat, rooms.Heartbeat); err != nil {
			return nil, err
		}
	}

	sched.Start()
	return &Scheduler{sched: sched}, nil
}

func add(sched gocron.Scheduler, name string, every time.Duration, run func(context.Context) error) error {
	_, err := sched.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), every)
			defer cancel()
			if err := run(ctx); err != nil {
				log.Warn().Err(err).Str("job", name).Msg("job failed")
			}
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// Shutdown stops the scheduler and waits for running jobs.
func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}
