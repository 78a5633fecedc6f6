// Package storage persists users, their schedules and recipient tokens, and
// the bounded per-user delivery log.
//
// The engine treats persistence as a document store: users are read and
// written whole (see Store). Two drivers exist, an in-process "memory"
// driver used by tests and local development, and a "sqlite" driver for real
// deployments. The delivery log is append-only from the dispatcher's side
// and trimmed to its configured bound by the driver.
package storage
