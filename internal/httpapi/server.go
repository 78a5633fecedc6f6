package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"dreampulse/pkg/logx"
)

// Config controls the REST API server.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

const defaultAddr = "127.0.0.1:8880"

// Server owns the http.Server lifecycle around a Handler.
type Server struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger

	srv *http.Server
}

func NewServer(cfg Config, h http.Handler, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = defaultAddr
	}
	return &Server{
		cfg: cfg,
		log: log,
		srv: &http.Server{
			Addr:         addr,
			Handler:      h,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// Start begins serving in the background. Idempotent once started; a
// listen failure is reported through errCh and does not panic.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		errCh <- errors.New("httpapi: server already stopped")
		return errCh
	}

	go func() {
		s.log.Info("http api listening", logx.String("addr", srv.Addr))
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http api serve failed", logx.Err(err))
			errCh <- err
			return
		}
		errCh <- nil
	}()
	return errCh
}

// Stop drains in-flight requests, bounded by ctx.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()
	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
	}
	s.log.Info("http api stopped")
}
