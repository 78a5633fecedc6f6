package scheduler

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"

	"dreampulse/internal/eventbus"
	"dreampulse/internal/registry"
	"dreampulse/internal/storage"
	"dreampulse/pkg/logx"
)

// Dispatcher is the fan-out side the scheduler invokes on each firing.
type Dispatcher interface {
	Send(ctx context.Context, userID, typ, title, body string, data map[string]string) bool
}

// Key identifies one live timer: a user plus one of their schedules
// (domain.RealityCheckID for the built-in one).
type Key struct {
	UserID     string
	ScheduleID string
}

// Service is the scheduler core. All timer-table mutations happen under mu,
// which makes arm/disarm atomic per key.
type Service struct {
	mu sync.Mutex

	log   logx.Logger
	store storage.Store
	reg   *registry.Service
	disp  Dispatcher
	bus   eventbus.Bus

	parser  cron.Parser
	c       *cron.Cron
	entries map[Key]cron.EntryID

	runCtx    context.Context
	runCancel context.CancelFunc
}

func New(store storage.Store, reg *registry.Service, disp Dispatcher, bus eventbus.Bus, log logx.Logger) *Service {
	return &Service{
		log:     log,
		store:   store,
		reg:     reg,
		disp:    disp,
		bus:     bus,
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		entries: map[Key]cron.EntryID{},
	}
}
