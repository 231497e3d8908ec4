package daemon

import (
	"context"
	"time"

	"github.com/harun/luna/internal/observability"
)

const defaultStatsInterval = 30 * time.Second

// EventLoop handles periodic housekeeping while the daemon runs
type EventLoop struct {
	daemon   *Daemon
	interval time.Duration
}

// NewEventLoop creates a new event loop
func NewEventLoop(d *Daemon) *EventLoop {
	return &EventLoop{
		daemon:   d,
		interval: defaultStatsInterval,
	}
}

// Run runs the event loop with periodic maintenance tasks
func (e *EventLoop) Run(ctx context.Context) {
	e.daemon.logger.Info().Msg("Event loop started")

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.daemon.logger.Info().Msg("Event loop stopping")
			return

		case <-ticker.C:
			e.processTasks(ctx)
		}
	}
}

// processTasks publishes the session gauge and logs queue activity. Idle
// sweeps run on the reaper's own schedule.
func (e *EventLoop) processTasks(_ context.Context) {
	sessions := e.daemon.store.Len()
	observability.SetActiveSessions(sessions)

	stats := e.daemon.queue.Stats()
	if stats.Queued > 0 || stats.Running > 0 {
		e.daemon.logger.Debug().
			Int("lanes", stats.Lanes).
			Int("queued", stats.Queued).
			Int("running", stats.Running).
			Int("pending", stats.Pending).
			Int("sessions", sessions).
			Msg("Queue stats")
	}
}

// HandleShutdown waits briefly for in-flight conversations to finish
func (e *EventLoop) HandleShutdown() {
	e.daemon.logger.Info().Msg("Handling graceful shutdown")

	if e.daemon.queue.WaitForActive(drainTimeout) {
		e.daemon.logger.Info().Msg("All active tasks completed")
	} else {
		e.daemon.logger.Warn().Msg("Timed out waiting for active tasks")
	}
}
