package handler

import (
	"context"
	"time"
)

// DefaultReapInterval is how often a Reaper expires pending requests.
const DefaultReapInterval = 10 * time.Second

// Reaper periodically expires stale pending requests on a Handler.
type Reaper struct {
	handler  *Handler
	interval time.Duration
}

// NewReaper creates a reaper. A non-positive interval uses
// DefaultReapInterval.
func NewReaper(h *Handler, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	return &Reaper{handler: h, interval: interval}
}

// Run blocks until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.handler.ExpirePending()
		}
	}
}
