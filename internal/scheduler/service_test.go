package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"dreampulse/internal/domain"
	"dreampulse/internal/eventbus"
	"dreampulse/internal/registry"
	"dreampulse/internal/storage"
	"dreampulse/pkg/logx"
)

const testToken = "test-token-abcdefghijklmnopqrstuvwx"

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []string
}

func (d *recordingDispatcher) Send(ctx context.Context, userID, typ, title, body string, data map[string]string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, userID+"/"+typ)
	return true
}

type fixture struct {
	svc   *Service
	store *storage.Memory
	reg   *registry.Service
	disp  *recordingDispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := storage.NewMemory(storage.Config{})
	reg := registry.New(st, logx.Nop())
	disp := &recordingDispatcher{}
	svc := New(st, reg, disp, eventbus.New(), logx.Nop())
	svc.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		svc.Stop(ctx)
	})
	return &fixture{svc: svc, store: st, reg: reg, disp: disp}
}

func enabledSchedule(id string) domain.Schedule {
	s := domain.NewRealityCheckSchedule()
	s.ID = id
	s.Enabled = true
	return s
}

func TestDisarmIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if f.svc.Disarm("u1", domain.RealityCheckID) {
		t.Fatal("disarming a never-armed key should report false")
	}
	// And again; still a no-op, no panic, no timer.
	if f.svc.Disarm("u1", domain.RealityCheckID) {
		t.Fatal("second disarm should also report false")
	}
	if got := len(f.svc.ActiveKeys()); got != 0 {
		t.Fatalf("timer table has %d entries, want 0", got)
	}
}

func TestRearmAtMostOneTimerPerKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.reg.Add(ctx, "u1", testToken, "")

	sched := enabledSchedule(domain.RealityCheckID)
	for i := 0; i < 3; i++ {
		if err := f.svc.Rearm(ctx, "u1", sched); err != nil {
			t.Fatalf("Rearm #%d: %v", i, err)
		}
	}

	keys := f.svc.ActiveKeys()
	if len(keys) != 1 {
		t.Fatalf("timer table has %d entries after repeated arms, want 1", len(keys))
	}
	if keys[0] != (Key{UserID: "u1", ScheduleID: domain.RealityCheckID}) {
		t.Fatalf("unexpected key %+v", keys[0])
	}
}

func TestRearmPreconditions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("disabled schedule stays disarmed", func(t *testing.T) {
		f := newFixture(t)
		f.reg.Add(ctx, "u1", testToken, "")
		sched := enabledSchedule(domain.RealityCheckID)
		sched.Enabled = false
		if err := f.svc.Rearm(ctx, "u1", sched); err != nil {
			t.Fatalf("Rearm: %v", err)
		}
		if f.svc.Armed("u1", domain.RealityCheckID) {
			t.Fatal("disabled schedule must not arm")
		}
	})

	t.Run("no recipients stays disarmed", func(t *testing.T) {
		f := newFixture(t)
		if err := f.svc.Rearm(ctx, "u1", enabledSchedule(domain.RealityCheckID)); err != nil {
			t.Fatalf("Rearm: %v", err)
		}
		if f.svc.Armed("u1", domain.RealityCheckID) {
			t.Fatal("schedule with no recipients must not arm")
		}
	})

	t.Run("empty weekday set stays disarmed", func(t *testing.T) {
		f := newFixture(t)
		f.reg.Add(ctx, "u1", testToken, "")
		sched := enabledSchedule(domain.RealityCheckID)
		sched.DaysOfWeek = []string{}
		if err := f.svc.Rearm(ctx, "u1", sched); err != nil {
			t.Fatalf("Rearm: %v", err)
		}
		if f.svc.Armed("u1", domain.RealityCheckID) {
			t.Fatal("never-matching cadence must not arm")
		}
	})
}

func TestRearmDisablingCancelsTimer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.reg.Add(ctx, "u1", testToken, "")

	sched := enabledSchedule(domain.RealityCheckID)
	if err := f.svc.Rearm(ctx, "u1", sched); err != nil {
		t.Fatalf("Rearm: %v", err)
	}
	if !f.svc.Armed("u1", domain.RealityCheckID) {
		t.Fatal("expected armed")
	}

	sched.Enabled = false
	if err := f.svc.Rearm(ctx, "u1", sched); err != nil {
		t.Fatalf("Rearm (disable): %v", err)
	}
	if f.svc.Armed("u1", domain.RealityCheckID) {
		t.Fatal("disabling must cancel the timer")
	}
}

func TestRemovingLastRecipientDoesNotDisarm(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.reg.Add(ctx, "u1", testToken, "")

	if err := f.svc.Rearm(ctx, "u1", enabledSchedule(domain.RealityCheckID)); err != nil {
		t.Fatalf("Rearm: %v", err)
	}

	// Removing the last token leaves the timer alone; only an explicit
	// configuration change disarms. The next firing just no-ops.
	if _, err := f.reg.Remove(ctx, "u1", testToken); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !f.svc.Armed("u1", domain.RealityCheckID) {
		t.Fatal("timer must survive recipient removal")
	}
}

func TestNextFiringDailyMonday(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.reg.Add(ctx, "u1", testToken, "")

	sched := enabledSchedule(domain.RealityCheckID)
	sched.Frequency = domain.FreqDaily
	sched.StartTime = "09:00"
	sched.DaysOfWeek = []string{"monday"}
	sched.Timezone = "UTC"
	if err := f.svc.Rearm(ctx, "u1", sched); err != nil {
		t.Fatalf("Rearm: %v", err)
	}

	next := f.svc.NextFiring("u1", domain.RealityCheckID)
	if next.IsZero() {
		t.Fatal("expected a next firing time")
	}
	utc := next.UTC()
	if utc.Weekday() != time.Monday || utc.Hour() != 9 || utc.Minute() != 0 {
		t.Fatalf("next firing = %v, want a Monday 09:00 UTC", utc)
	}
}

type panickyDispatcher struct {
	mu    sync.Mutex
	calls int
}

func (d *panickyDispatcher) Send(ctx context.Context, userID, typ, title, body string, data map[string]string) bool {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	panic("transport exploded")
}

func (d *panickyDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func TestFiringPanicLeavesTimerArmed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory(storage.Config{})
	reg := registry.New(st, logx.Nop())
	disp := &panickyDispatcher{}
	svc := New(st, reg, disp, eventbus.New(), logx.Nop())
	svc.Start(ctx)
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		svc.Stop(stopCtx)
	})

	if _, err := reg.Add(ctx, "u1", testToken, ""); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := svc.Rearm(ctx, "u1", enabledSchedule(domain.RealityCheckID)); err != nil {
		t.Fatalf("Rearm: %v", err)
	}

	key := Key{UserID: "u1", ScheduleID: domain.RealityCheckID}
	svc.fire(key, "reality_check", "t", "b")
	svc.fire(key, "reality_check", "t", "b")

	if got := disp.callCount(); got != 2 {
		t.Fatalf("dispatcher calls = %d, want 2", got)
	}
	if !svc.Armed("u1", domain.RealityCheckID) {
		t.Fatal("a panicking firing must not cancel its own timer")
	}
}

func TestRearmAllSkipsInvalidTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	// Three armable users; one only holds a malformed token (written behind
	// the registry's back, as legacy records would be).
	for _, id := range []string{"ok-1", "ok-2"} {
		u := domain.NewUser(id)
		u.RealityCheck.Enabled = true
		u.Recipients = []domain.Recipient{{Token: testToken}}
		if err := f.store.PutUser(ctx, u); err != nil {
			t.Fatalf("PutUser(%s): %v", id, err)
		}
	}
	bad := domain.NewUser("bad")
	bad.RealityCheck.Enabled = true
	bad.Recipients = []domain.Recipient{{Token: "short"}}
	if err := f.store.PutUser(ctx, bad); err != nil {
		t.Fatalf("PutUser(bad): %v", err)
	}

	armed, skipped, err := f.svc.RearmAll(ctx)
	if err != nil {
		t.Fatalf("RearmAll: %v", err)
	}
	if armed != 2 || skipped != 1 {
		t.Fatalf("RearmAll = (armed=%d, skipped=%d), want (2, 1)", armed, skipped)
	}
	if f.svc.Armed("bad", domain.RealityCheckID) {
		t.Fatal("user with invalid token must stay disarmed")
	}
	for _, id := range []string{"ok-1", "ok-2"} {
		if !f.svc.Armed(id, domain.RealityCheckID) {
			t.Fatalf("user %s should be armed", id)
		}
	}
}

func TestStopCancelsAllTimers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := storage.NewMemory(storage.Config{})
	reg := registry.New(st, logx.Nop())
	svc := New(st, reg, &recordingDispatcher{}, eventbus.New(), logx.Nop())
	svc.Start(ctx)

	reg.Add(ctx, "u1", testToken, "")
	reg.Add(ctx, "u2", testToken, "")
	svc.Rearm(ctx, "u1", enabledSchedule(domain.RealityCheckID))
	svc.Rearm(ctx, "u2", enabledSchedule("custom-1"))

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	svc.Stop(stopCtx)

	if got := len(svc.ActiveKeys()); got != 0 {
		t.Fatalf("timer table has %d entries after Stop, want 0", got)
	}
}

func TestDisarmUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.reg.Add(ctx, "u1", testToken, "")
	f.reg.Add(ctx, "u2", testToken, "")

	f.svc.Rearm(ctx, "u1", enabledSchedule(domain.RealityCheckID))
	f.svc.Rearm(ctx, "u1", enabledSchedule("custom-1"))
	f.svc.Rearm(ctx, "u2", enabledSchedule(domain.RealityCheckID))

	if n := f.svc.DisarmUser("u1"); n != 2 {
		t.Fatalf("DisarmUser cancelled %d timers, want 2", n)
	}
	if !f.svc.Armed("u2", domain.RealityCheckID) {
		t.Fatal("other user's timer must be untouched")
	}
}

func TestScheduleTypeTag(t *testing.T) {
	t.Parallel()
	if got := scheduleType(domain.RealityCheckID); got != "reality_check" {
		t.Fatalf("scheduleType(builtin) = %q", got)
	}
	if got := scheduleType("abc-123"); got != "custom" {
		t.Fatalf("scheduleType(custom) = %q", got)
	}
}
