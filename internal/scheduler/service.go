package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"dreampulse/pkg/logx"
)

// Start brings up the cron runner. Schedules are armed separately, either
// by RearmAll at startup or by Rearm on configuration changes.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.c = cron.New(cron.WithParser(s.parser))
	s.c.Start()
	s.log.Info("scheduler started")
}

// Stop cancels every live timer and shuts the runner down. Leaking a timer
// across a restart would double-fire after the next RearmAll, so teardown
// explicitly empties the timer table.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	cancel := s.runCancel
	s.c = nil
	s.runCancel = nil
	s.runCtx = nil
	n := len(s.entries)
	if c != nil {
		for key, eid := range s.entries {
			c.Remove(eid)
			delete(s.entries, key)
		}
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c == nil {
		return
	}

	// Wait out in-flight firings, bounded by the caller's deadline.
	done := c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped", logx.Int("cancelled", n), logx.Duration("took", time.Since(start)))
}

// ActiveKeys returns the keys that currently own a live timer.
func (s *Service) ActiveKeys() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Key, 0, len(s.entries))
	for k := range s.entries {
		out = append(out, k)
	}
	return out
}

// Armed reports whether the key currently owns a live timer.
func (s *Service) Armed(userID, scheduleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[Key{UserID: userID, ScheduleID: scheduleID}]
	return ok
}

// NextFiring returns the next firing time for the key, or zero if the key
// is not armed.
func (s *Service) NextFiring(userID, scheduleID string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	eid, ok := s.entries[Key{UserID: userID, ScheduleID: scheduleID}]
	if !ok || s.c == nil {
		return time.Time{}
	}
	return s.c.Entry(eid).Next
}
