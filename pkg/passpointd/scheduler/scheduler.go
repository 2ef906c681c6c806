// Package scheduler queries configured access points on a fixed cadence.
// Each watch entry has its own interval; the first query is issued as soon
// as the entry is scheduled. Every query carries a fresh network key so the
// resulting event can be correlated with the fire that produced it.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vpbank/passpointd/pkg/passpointd/config"
)

// ─────────────────────────────────────────────────────────────────────────────
// RequestSubmitter
// ─────────────────────────────────────────────────────────────────────────────

// RequestSubmitter is the subset of handler.Handler the scheduler drives.
type RequestSubmitter interface {
	RequestAnqp(ctx context.Context, networkKey, bssid string, includeRoamingConsortium, supportRelease2 bool) error
}

// KeyFunc produces the network key for one query.
type KeyFunc func() string

// ─────────────────────────────────────────────────────────────────────────────
// Scheduler
// ─────────────────────────────────────────────────────────────────────────────

type entry struct {
	watch   config.WatchEntry
	nextRun time.Time
}

// Scheduler fires RequestAnqp for every watch entry at its interval.
type Scheduler struct {
	sub    RequestSubmitter
	newKey KeyFunc
	logger *slog.Logger

	mu      sync.Mutex
	entries []entry
	wake    chan struct{}

	inflight sync.WaitGroup
	done     chan struct{}
}

// New creates a Scheduler for watch. Call Start to begin dispatching.
func New(watch []config.WatchEntry, sub RequestSubmitter, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Scheduler{
		sub:     sub,
		newKey:  uuid.NewString,
		logger:  logger,
		entries: buildEntries(watch, time.Now()),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// SetKeyFunc replaces the network key generator. It must be called before
// Start.
func (s *Scheduler) SetKeyFunc(fn KeyFunc) {
	if fn != nil {
		s.newKey = fn
	}
}

// Start runs the scheduling loop. It blocks until ctx is cancelled and all
// queries it issued have returned.
func (s *Scheduler) Start(ctx context.Context) {
	defer close(s.done)
	defer s.inflight.Wait()

	for {
		s.mu.Lock()
		var delay time.Duration
		idle := len(s.entries) == 0
		if !idle {
			sort.Slice(s.entries, func(i, j int) bool {
				return s.entries[i].nextRun.Before(s.entries[j].nextRun)
			})
			delay = time.Until(s.entries[0].nextRun)
			if delay < 0 {
				delay = 0
			}
		}
		s.mu.Unlock()

		if idle {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
				continue
			}
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
			continue
		case <-timer.C:
		}

		now := time.Now()
		s.mu.Lock()
		for i := range s.entries {
			if s.entries[i].nextRun.After(now) {
				break
			}
			s.fire(ctx, s.entries[i].watch)
			s.entries[i].nextRun = now.Add(s.entries[i].watch.Interval)
		}
		s.mu.Unlock()
	}
}

// Stop waits for Start to return. The caller must cancel the context passed
// to Start first.
func (s *Scheduler) Stop() {
	<-s.done
}

// Reload replaces the watch list. Every entry in the new list is queried
// immediately; removed entries stop.
func (s *Scheduler) Reload(watch []config.WatchEntry) {
	entries := buildEntries(watch, time.Now())
	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	s.logger.Info("scheduler: watch list reloaded", "entries", len(entries))
}

// Entries returns the number of scheduled access points.
func (s *Scheduler) Entries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func buildEntries(watch []config.WatchEntry, now time.Time) []entry {
	entries := make([]entry, 0, len(watch))
	for _, w := range watch {
		if w.Interval <= 0 {
			w.Interval = config.DefaultWatchEvery
		}
		entries = append(entries, entry{watch: w, nextRun: now})
	}
	return entries
}

// fire issues one query without blocking the loop. The supplicant call may
// take as long as its D-Bus round trip.
func (s *Scheduler) fire(ctx context.Context, w config.WatchEntry) {
	key := s.newKey()
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if err := s.sub.RequestAnqp(ctx, key, w.BSSID, w.RoamingConsortium, w.Release2); err != nil {
			s.logger.Warn("scheduler: anqp request failed",
				"bssid", w.BSSID,
				"network_key", key,
				"error", err.Error(),
			)
			return
		}
		s.logger.Debug("scheduler: anqp request dispatched", "bssid", w.BSSID, "network_key", key)
	}()
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
