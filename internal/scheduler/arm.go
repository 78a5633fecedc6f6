package scheduler

import (
	"context"
	"errors"
	"runtime/debug"

	"dreampulse/internal/cadence"
	"dreampulse/internal/domain"
	"dreampulse/internal/eventbus"
	"dreampulse/internal/registry"
	"dreampulse/pkg/logx"
)

// Rearm applies a schedule's current configuration to the timer table:
// at most one disarm followed by at most one arm for that exact key.
// A schedule that is disabled, has no recipients, or resolves to a
// never-matching cadence simply ends up disarmed; that is not an error.
func (s *Service) Rearm(ctx context.Context, userID string, sched domain.Schedule) error {
	key := Key{UserID: userID, ScheduleID: sched.ID}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Cancel-then-recreate: the old timer is gone before a new one can
	// exist, so no two timers ever coexist for one key.
	s.disarmLocked(key)

	if !sched.Enabled {
		s.log.Info("schedule disabled; staying disarmed", logx.String("user", userID), logx.String("schedule", sched.ID))
		return nil
	}

	n, err := s.reg.Count(ctx, userID)
	if err != nil {
		return err
	}
	if n == 0 {
		s.log.Info("no recipients; staying disarmed", logx.String("user", userID), logx.String("schedule", sched.ID))
		return nil
	}

	rec := cadence.Resolve(sched)
	if rec.Never {
		s.log.Info("empty weekday set; staying disarmed", logx.String("user", userID), logx.String("schedule", sched.ID))
		return nil
	}

	if s.c == nil {
		return errors.New("scheduler not started")
	}

	spec := cronSpec(rec)
	typ := scheduleType(sched.ID)
	title, body := messageFor(sched)
	eid, err := s.c.AddFunc(spec, func() {
		s.fire(key, typ, title, body)
	})
	if err != nil {
		s.log.Error("trigger register failed", logx.String("user", userID), logx.String("schedule", sched.ID), logx.String("spec", spec), logx.Err(err))
		return err
	}
	s.entries[key] = eid
	s.log.Debug("schedule armed", logx.String("user", userID), logx.String("schedule", sched.ID), logx.String("spec", spec))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeScheduleArmed, Data: map[string]string{"user": userID, "schedule": sched.ID}})
	}
	return nil
}

// Disarm cancels the key's live timer. Idempotent: disarming a disarmed
// key is a no-op.
func (s *Service) Disarm(userID, scheduleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disarmLocked(Key{UserID: userID, ScheduleID: scheduleID})
}

// DisarmUser cancels every timer the user owns (account deletion path).
func (s *Service) DisarmUser(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key := range s.entries {
		if key.UserID == userID {
			if s.disarmLocked(key) {
				n++
			}
		}
	}
	return n
}

// disarmLocked removes the key's timer if one exists. Call with s.mu held.
func (s *Service) disarmLocked(key Key) bool {
	eid, ok := s.entries[key]
	if !ok {
		return false
	}
	if s.c != nil {
		s.c.Remove(eid)
	}
	delete(s.entries, key)
	s.log.Debug("schedule disarmed", logx.String("user", key.UserID), logx.String("schedule", key.ScheduleID))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeScheduleDisarmed, Data: map[string]string{"user": key.UserID, "schedule": key.ScheduleID}})
	}
	return true
}

// RearmAll runs the startup pass: every user with an enabled schedule and at
// least one structurally valid token gets their schedules armed. Users
// failing token validation are counted and skipped, never fatal.
func (s *Service) RearmAll(ctx context.Context) (armed, skipped int, err error) {
	users, err := s.store.ListArmable(ctx)
	if err != nil {
		return 0, 0, err
	}

	for _, u := range users {
		valid := false
		for _, r := range u.Recipients {
			if registry.ValidateFormat(r.Token) {
				valid = true
				break
			}
		}
		if !valid {
			skipped++
			s.log.Warn("skipping user: no structurally valid token", logx.String("user", u.ID))
			continue
		}
		for _, sched := range u.EnabledSchedules() {
			if err := s.Rearm(ctx, u.ID, sched); err != nil {
				skipped++
				s.log.Warn("rearm failed; skipping schedule", logx.String("user", u.ID), logx.String("schedule", sched.ID), logx.Err(err))
				continue
			}
			if s.Armed(u.ID, sched.ID) {
				armed++
			}
		}
	}
	s.log.Info("rearm pass finished", logx.Int("armed", armed), logx.Int("skipped", skipped))
	return armed, skipped, nil
}

// fire runs one trigger occurrence. Failures and panics are contained here:
// nothing a firing does may cancel its own timer.
func (s *Service) fire(key Key, typ, title, body string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in firing", logx.String("user", key.UserID), logx.String("schedule", key.ScheduleID), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()

	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil {
		return
	}

	ok := s.disp.Send(ctx, key.UserID, typ, title, body, map[string]string{"scheduleId": key.ScheduleID})
	if !ok {
		s.log.Debug("firing delivered to no endpoint", logx.String("user", key.UserID), logx.String("schedule", key.ScheduleID))
	}
}

func scheduleType(scheduleID string) string {
	if scheduleID == domain.RealityCheckID {
		return "reality_check"
	}
	return "custom"
}

func messageFor(sched domain.Schedule) (title, body string) {
	title = "Dreampulse"
	if sched.ID == domain.RealityCheckID {
		title = "Reality check"
	}
	body = sched.Message
	if body == "" {
		body = "Time for a quick awareness check."
	}
	return title, body
}
