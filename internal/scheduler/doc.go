// Package scheduler owns the live timer table: one recurring trigger per
// (user, schedule) pair.
//
// # Lifecycle
//
// A schedule is armed when it is enabled and its user has at least one
// registered recipient; otherwise it stays disarmed, which is an expected
// state and not an error. Re-arming an already armed key cancels the old
// trigger before creating the new one, so at most one live timer ever
// exists per key. Every configuration change goes through the same
// disarm-then-arm path.
//
// # Firing
//
// Each firing invokes the dispatcher and nothing else. A failed or panicking
// firing never cancels its own timer; the next occurrence still runs. The
// cron runner starts every firing in its own goroutine, so one slow dispatch
// cannot delay another schedule.
//
// # Multi-instance caveat
//
// The timer table is process-local. Running more than one instance fires
// every armed schedule once per instance; deployments needing horizontal
// scale must add a single-writer constraint in front of this service.
package scheduler
