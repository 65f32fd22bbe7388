package status

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	logx "remindbot/pkg/logx"
)

func startTestServer(t *testing.T, snap func() Snapshot) *Server {
	t.Helper()
	s := NewServer(snap, logx.Nop())
	if err := s.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	s := startTestServer(t, func() Snapshot { return Snapshot{} })

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()
	s := startTestServer(t, func() Snapshot {
		return Snapshot{Ready: true, Authenticated: true, ActiveReminders: 3}
	})

	resp, err := http.Get("http://" + s.Addr() + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()

	var got Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Ready || !got.Authenticated || got.ActiveReminders != 3 {
		t.Fatalf("snapshot = %+v", got)
	}
}

func TestStatusRejectsNonGET(t *testing.T) {
	t.Parallel()
	s := startTestServer(t, func() Snapshot { return Snapshot{} })

	resp, err := http.Post("http://"+s.Addr()+"/api/status", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

func TestStopBeforeStart(t *testing.T) {
	t.Parallel()
	s := NewServer(func() Snapshot { return Snapshot{} }, logx.Nop())
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop before Start: %v", err)
	}
}
