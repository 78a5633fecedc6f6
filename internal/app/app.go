// Package app wires configuration, storage, transport, and the services
// into one lifecycle: New builds everything, Start arms the world, Stop
// tears it down in reverse.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"dreampulse/internal/config"
	"dreampulse/internal/dispatch"
	"dreampulse/internal/eventbus"
	"dreampulse/internal/httpapi"
	"dreampulse/internal/registry"
	"dreampulse/internal/scheduler"
	"dreampulse/internal/storage"
	"dreampulse/internal/transport"
	"dreampulse/internal/transport/fcm"
	"dreampulse/internal/transport/logsender"
	"dreampulse/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.ConfigManager

	logsvc *logx.Service
	log    logx.Logger
	bus    eventbus.Bus

	store storage.Store
	reg   *registry.Service
	disp  *dispatch.Service
	sched *scheduler.Service
	api   *httpapi.Server

	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logsvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	appLog := log.With(logx.String("comp", "app"))

	store, err := openStore(cfg, log)
	if err != nil {
		return nil, err
	}

	sender, err := openTransport(ctx, cfg, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	bus := eventbus.New()
	reg := registry.New(store, log.With(logx.String("comp", "registry")))

	dispCfg, err := dispatchConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	disp := dispatch.New(dispCfg, sender, reg, store, bus, log.With(logx.String("comp", "dispatch")))
	sched := scheduler.New(store, reg, disp, bus, log.With(logx.String("comp", "scheduler")))

	httpCfg, err := httpConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	handler := httpapi.NewHandler(store, reg, sched, disp, log.With(logx.String("comp", "http")))
	api := httpapi.NewServer(httpCfg, handler.Router(), log.With(logx.String("comp", "http")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		logsvc:  logsvc,
		log:     appLog,
		bus:     bus,
		store:   store,
		reg:     reg,
		disp:    disp,
		sched:   sched,
		api:     api,
	}, nil
}

func openStore(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	sc := storage.Config{}
	if s := cfg.Storage; s != nil {
		busy, err := config.ParseDurationField("storage.busy_timeout", s.BusyTimeout)
		if err != nil {
			return nil, err
		}
		sc = storage.Config{
			Driver:         s.Driver,
			Path:           s.Path,
			BusyTimeout:    busy,
			DeliveryLogMax: s.DeliveryLogMax,
		}
	}
	return storage.Open(sc, log.With(logx.String("comp", "storage")))
}

func openTransport(ctx context.Context, cfg *config.Config, log logx.Logger) (transport.Sender, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Transport.Driver)) {
	case "", "log":
		return logsender.New(log.With(logx.String("comp", "transport"))), nil
	case "fcm":
		return fcm.New(ctx, fcm.Config{
			CredentialsFile: cfg.Transport.CredentialsFile,
			ProjectID:       cfg.Transport.ProjectID,
		}, log.With(logx.String("comp", "transport")))
	default:
		return nil, fmt.Errorf("unknown transport driver %q", cfg.Transport.Driver)
	}
}

func dispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	sendTimeout, err := config.ParseDurationField("dispatch.send_timeout", cfg.Dispatch.SendTimeout)
	if err != nil {
		return dispatch.Config{}, err
	}
	return dispatch.Config{
		RatePerSec:  cfg.Dispatch.RatePerSec,
		SendTimeout: sendTimeout,
	}, nil
}

func httpConfig(cfg *config.Config) (httpapi.Config, error) {
	read, err := config.ParseDurationField("http.read_timeout", cfg.HTTP.ReadTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	write, err := config.ParseDurationField("http.write_timeout", cfg.HTTP.WriteTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	idle, err := config.ParseDurationField("http.idle_timeout", cfg.HTTP.IdleTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	return httpapi.Config{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  idle,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		// Storage and transport drivers are bound at startup; a reload
		// must not swap them out from under live services.
		cur := a.cfgm.Get()
		if cur != nil {
			if !sameStorage(cur.Storage, cfg.Storage) {
				return errors.New("storage changes require a restart")
			}
			if cur.Transport != cfg.Transport {
				return errors.New("transport changes require a restart")
			}
		}
		return nil
	})

	a.sched.Start(runCtx)

	armed, skipped, err := a.sched.RearmAll(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("startup rearm: %w", err)
	}
	a.log.Info("startup rearm finished", logx.Int("armed", armed), logx.Int("skipped", skipped))

	serveErr := a.api.Start()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		select {
		case err := <-serveErr:
			if err != nil {
				cancel()
			}
		case <-runCtx.Done():
		}
	}()

	events, unsubEvents := a.bus.Subscribe(64)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer unsubEvents()
		for {
			select {
			case <-runCtx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	}()

	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(runCtx, sub)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("started")
	return nil
}

// reloadLoop applies validated config updates to the running services.
// Bursts are coalesced so only the latest config is applied.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
			lastApplied = newCfg
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				continue
			}

			a.logsvc.Apply(logx.Config{
				Level:   newCfg.Logging.Level,
				Console: newCfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: newCfg.Logging.File.Enabled,
					Path:    newCfg.Logging.File.Path,
				},
			})

			if dispCfg, err := dispatchConfig(newCfg); err == nil {
				a.disp.Apply(dispCfg)
			} else {
				a.log.Warn("invalid dispatch config on reload; keeping previous", logx.Err(err))
			}

			a.log.Info("config reloaded",
				append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
		}
	}
}

func sameStorage(a, b *config.StorageConfig) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Driver == b.Driver && a.Path == b.Path
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	start := time.Now()

	// Stop outer surfaces first so nothing new enters, then cancel the
	// timer table, then the background loops, then the store.
	a.api.Stop(ctx)
	a.sched.Stop(ctx)

	if a.runCancel != nil {
		a.runCancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("background loops still draining at stop deadline")
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("store close failed", logx.Err(err))
	}
	a.log.Info("stopped", logx.Duration("took", time.Since(start)))
	return nil
}
