// Package status serves the read-only status endpoint for an owning
// process (deploy tooling, dashboards).
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	logx "remindbot/pkg/logx"
)

// Snapshot is the point-in-time state reported by /api/status. Read-only,
// no side effects.
type Snapshot struct {
	Ready           bool `json:"ready"`
	Authenticated   bool `json:"authenticated"`
	ActiveReminders int  `json:"active_reminders"`
}

// Server manages lifecycle for the status HTTP listener.
type Server struct {
	mu   sync.Mutex
	log  logx.Logger
	srv  *http.Server
	ln   net.Listener
	snap func() Snapshot
}

func NewServer(snap func() Snapshot, log logx.Logger) *Server {
	return &Server{log: log, snap: snap}
}

// Start binds addr and serves in the background. Safe to call once.
func (s *Server) Start(addr string) error {
	if addr == "" {
		addr = "127.0.0.1:8799"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.snap())
	})

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.mu.Lock()
	s.srv = srv
	s.ln = ln
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("status server exited", logx.Err(err))
		}
	}()
	s.log.Info("status server listening", logx.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.ln = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
