// Package dashboard serves the fleet's current node table as JSON over
// HTTP, the status surface an operator or external monitor polls. It
// implements internal/supervisor.StateWriter.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"fleetmanager/internal/core"
)

// Server holds the latest node snapshot and serves it on GET /status,
// rate-limited per client IP the way the reference HTTP server limits its
// WebSocket upgrade endpoint.
type Server struct {
	addr   string
	logger core.ILogger

	mu        sync.RWMutex
	snapshots []core.NodeSnapshot

	rateLimit rate.Limit
	rateBurst int
	limiters  sync.Map // map[string]*rate.Limiter

	srv *http.Server
}

// New creates a dashboard server listening on addr (e.g. ":8090"),
// allowing each client IP ratePerSecond requests with a burst of burst.
func New(addr string, ratePerSecond float64, burst int, logger core.ILogger) *Server {
	return &Server{
		addr:      addr,
		logger:    logger.WithField("component", "dashboard"),
		rateLimit: rate.Limit(ratePerSecond),
		rateBurst: burst,
	}
}

// WriteState implements internal/supervisor.StateWriter: it replaces the
// whole served snapshot so a reader never observes a half-updated table.
func (s *Server) WriteState(snapshots []core.NodeSnapshot) {
	s.mu.Lock()
	s.snapshots = snapshots
	s.mu.Unlock()
}

func (s *Server) limiterFor(ip string) *rate.Limiter {
	if v, ok := s.limiters.Load(ip); ok {
		return v.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(s.rateLimit, s.rateBurst)
	actual, _ := s.limiters.LoadOrStore(ip, limiter)
	return actual.(*rate.Limiter)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if !s.limiterFor(ip).Allow() {
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}

	s.mu.RLock()
	snapshots := s.snapshots
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshots); err != nil {
		s.logger.Error("failed to encode status response", "error", err.Error())
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled. It
// implements bootstrap.Runner.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)

	s.srv = &http.Server{Addr: s.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("dashboard server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}
