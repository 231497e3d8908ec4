package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harun/luna/internal/observability"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Reaper periodically removes idle sessions from a Store.
type Reaper struct {
	store       *Store
	interval    time.Duration
	idleTimeout time.Duration
	now         func() time.Time
	logger      zerolog.Logger

	// sweep is the unit of work each tick runs.
	sweep func(now time.Time) int

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewReaper creates a reaper for store using cfg's interval and idle timeout.
func NewReaper(store *Store, cfg Config) *Reaper {
	cfg = cfg.withDefaults()

	r := &Reaper{
		store:       store,
		interval:    cfg.SweepInterval,
		idleTimeout: cfg.IdleTimeout,
		now:         store.now,
		logger:      log.Logger.With().Str("component", "reaper").Logger(),
	}
	r.sweep = func(now time.Time) int {
		return r.store.SweepExpired(r.idleTimeout, now)
	}
	return r
}

// Start schedules the sweep every interval.
func (r *Reaper) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("reaper is already running")
	}

	c := cron.New(cron.WithLogger(cronLog{logger: r.logger}))
	c.Schedule(cron.Every(r.interval), r.job())
	c.Start()

	r.cron = c
	r.running = true

	r.logger.Info().
		Dur("interval", r.interval).
		Dur("idle_timeout", r.idleTimeout).
		Msg("Session reaper started")

	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (r *Reaper) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return fmt.Errorf("reaper is not running")
	}
	c := r.cron
	r.cron = nil
	r.running = false
	r.mu.Unlock()

	<-c.Stop().Done()

	r.logger.Info().Msg("Session reaper stopped")
	return nil
}

// IsRunning reports whether sweeps are scheduled.
func (r *Reaper) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Reaper) run() {
	r.sweepOnce()
}

// sweepOnce removes idle sessions and returns how many it removed.
func (r *Reaper) sweepOnce() int {
	start := time.Now()
	removed := r.sweep(r.now())

	event := r.logger.Debug()
	if removed > 0 {
		event = r.logger.Info()
		observability.RecordSweepAudit(context.Background(), removed, r.idleTimeout)
	}
	event.
		Int("removed", removed).
		Int("remaining", r.store.Len()).
		Dur("duration", time.Since(start)).
		Msg("Idle sessions swept")

	return removed
}

// job wraps a sweep so a panic is logged and later ticks still run.
func (r *Reaper) job() cron.Job {
	return cron.NewChain(cron.Recover(cronLog{logger: r.logger})).Then(cron.FuncJob(r.run))
}

// cronLog adapts zerolog to cron.Logger.
type cronLog struct {
	logger zerolog.Logger
}

func (l cronLog) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLog) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
