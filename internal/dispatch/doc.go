// Package dispatch fans one logical notification out to all of a user's
// registered endpoints.
//
// Delivery semantics
//
// Endpoints fail independently: a permanent transport failure (unregistered
// or invalid token) prunes exactly that token from the registry, any other
// failure is logged and skipped. The fan-out result is the logical OR of
// the per-endpoint outcomes. One delivery-log entry is written per endpoint
// attempt, never one per Send call.
//
// There is no retry inside a single fan-out; a transiently failing endpoint
// is simply tried again at the schedule's next firing.
package dispatch
