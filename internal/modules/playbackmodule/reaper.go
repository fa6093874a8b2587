package playbackmodule

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Reaper periodically sweeps the session registry for sessions that stopped
// heartbeating and removes them.
type Reaper struct {
	logger   hclog.Logger
	manager  *SessionManager
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewReaper creates a reaper sweeping at the given interval.
func NewReaper(logger hclog.Logger, manager *SessionManager, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Reaper{
		logger:   logger.Named("session-reaper"),
		manager:  manager,
		interval: interval,
	}
}

// Start launches the sweep loop. It returns immediately.
func (r *Reaper) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if reaped := r.manager.reapStale(); len(reaped) > 0 {
					r.logger.Debug("sweep removed stale sessions", "count", len(reaped))
				}
			}
		}
	}()
	return nil
}

// Stop halts the sweep loop and waits for it to exit.
func (r *Reaper) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}
