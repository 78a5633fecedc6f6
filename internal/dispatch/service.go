package dispatch

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"dreampulse/internal/eventbus"
	"dreampulse/internal/registry"
	"dreampulse/internal/storage"
	"dreampulse/internal/transport"
	"dreampulse/pkg/logx"
)

type Config struct {
	// RatePerSec throttles endpoint sends across all fan-outs. <= 0 means
	// the default (20).
	RatePerSec int

	// SendTimeout bounds each endpoint send. <= 0 means the default (10s).
	SendTimeout time.Duration
}

const (
	defaultRatePerSec  = 20
	defaultSendTimeout = 10 * time.Second
)

type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	sender transport.Sender
	reg    *registry.Service
	store  storage.Store
	bus    eventbus.Bus
	log    logx.Logger
}

func New(cfg Config, sender transport.Sender, reg *registry.Service, store storage.Store, bus eventbus.Bus, log logx.Logger) *Service {
	s := &Service{sender: sender, reg: reg, store: store, bus: bus, log: log}
	s.applyLocked(cfg)
	return s
}

// Apply swaps the rate limit at runtime (config hot reload).
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(cfg)
}

func (s *Service) applyLocked(cfg Config) {
	s.cfg = cfg
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = defaultRatePerSec
	}
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)
}

func (s *Service) sendTimeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.SendTimeout > 0 {
		return s.cfg.SendTimeout
	}
	return defaultSendTimeout
}
