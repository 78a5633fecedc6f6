package storage

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("user not found")

// Config configures storage.
//
// Driver values:
//   - "memory": in-process store (tests, local development)
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// DeliveryLogMax bounds the per-user delivery log. Older entries are
	// evicted oldest-first once the bound is exceeded. 0 means the default.
	DeliveryLogMax int
}

const defaultDeliveryLogMax = 50

func (c Config) deliveryLogMax() int {
	if c.DeliveryLogMax > 0 {
		return c.DeliveryLogMax
	}
	return defaultDeliveryLogMax
}
