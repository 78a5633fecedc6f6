package storage

import (
	"context"
	"errors"
	"strings"

	"dreampulse/internal/domain"
	"dreampulse/pkg/logx"
)

// Store is the persistence API used by the registry, scheduler, and
// dispatcher. Users are documents: GetUser returns a private copy, PutUser
// replaces the stored document whole.
type Store interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	PutUser(ctx context.Context, u *domain.User) error
	DeleteUser(ctx context.Context, id string) error

	// ListArmable returns every user with at least one enabled schedule and
	// a non-empty recipient set (the startup re-arm predicate).
	ListArmable(ctx context.Context) ([]*domain.User, error)

	// AppendDelivery appends one delivery-log entry for the user, evicting
	// the oldest entries beyond the configured bound.
	AppendDelivery(ctx context.Context, userID string, e domain.DeliveryEntry) error

	// ListDeliveries returns up to limit entries, most recent first.
	// limit <= 0 means the full retained log.
	ListDeliveries(ctx context.Context, userID string, limit int) ([]domain.DeliveryEntry, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemory(cfg), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}
