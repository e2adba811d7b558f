// Package janitor runs retention sweeps over the SQLite tables on a cron
// schedule.
package janitor

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mattjoyce/wxgate/internal/dedup"
	"github.com/mattjoyce/wxgate/internal/events"
)

//go:generate mockgen -destination=mocks/mock_sweeper.go -package=mocks github.com/mattjoyce/wxgate/internal/janitor Sweeper

// Sweeper deletes what has expired as of now and reports how many rows went.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int64, error)
}

// SweepFunc adapts a function to Sweeper.
type SweepFunc func(ctx context.Context, now time.Time) (int64, error)

func (f SweepFunc) Sweep(ctx context.Context, now time.Time) (int64, error) { return f(ctx, now) }

// Pruner deletes rows created before cutoff.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// ReplyCache sweeps expired reply_cache rows.
func ReplyCache(db *sql.DB) Sweeper {
	return SweepFunc(func(ctx context.Context, now time.Time) (int64, error) {
		return dedup.PurgeExpired(ctx, db, now)
	})
}

// Retain sweeps rows older than retention.
func Retain(p Pruner, retention time.Duration) Sweeper {
	return SweepFunc(func(ctx context.Context, now time.Time) (int64, error) {
		return p.Prune(ctx, now.Add(-retention))
	})
}

type task struct {
	name    string
	sweeper Sweeper
}

// SweepResult is published to the hub after every pass.
type SweepResult struct {
	At      time.Time         `json:"at"`
	Deleted map[string]int64  `json:"deleted"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// Janitor runs its sweeps in registration order on every tick.
type Janitor struct {
	schedule string
	tasks    []task
	hub      *events.Hub
	logger   *slog.Logger
	now      func() time.Time
}

// New validates schedule (standard cron or a descriptor such as "@every 1m").
// hub may be nil.
func New(schedule string, hub *events.Hub, logger *slog.Logger) (*Janitor, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("janitor schedule %q: %w", schedule, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		schedule: schedule,
		hub:      hub,
		logger:   logger.With("component", "janitor"),
		now:      time.Now,
	}, nil
}

// Add registers a sweep. Not safe once Run has started.
func (j *Janitor) Add(name string, s Sweeper) {
	j.tasks = append(j.tasks, task{name: name, sweeper: s})
}

// Len returns the number of registered sweeps.
func (j *Janitor) Len() int { return len(j.tasks) }

// RunOnce runs every sweep once. A failing sweep is logged and does not stop
// the others.
func (j *Janitor) RunOnce(ctx context.Context) SweepResult {
	res := SweepResult{At: j.now().UTC(), Deleted: make(map[string]int64, len(j.tasks))}
	for _, t := range j.tasks {
		n, err := t.sweeper.Sweep(ctx, res.At)
		if err != nil {
			if res.Errors == nil {
				res.Errors = make(map[string]string)
			}
			res.Errors[t.name] = err.Error()
			j.logger.Warn("sweep failed", "sweep", t.name, "error", err)
			continue
		}
		res.Deleted[t.name] = n
		if n > 0 {
			j.logger.Info("swept", "sweep", t.name, "deleted", n)
		}
	}
	if j.hub != nil {
		j.hub.Publish(events.TypeSweep, res)
	}
	return res
}

// Run sweeps on the schedule until ctx ends, then waits for a running pass
// to finish.
func (j *Janitor) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(j.schedule, func() { j.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule janitor: %w", err)
	}

	j.logger.Info("janitor started", "schedule", j.schedule, "sweeps", len(j.tasks))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	j.logger.Info("janitor stopped")
	return nil
}
