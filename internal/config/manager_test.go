package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseJSONWithDefaults(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"telegram": {"token": "t"}}`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "t" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Command.Prefix != "!" {
		t.Fatalf("default prefix = %q, want !", cfg.Command.Prefix)
	}
	if cfg.Command.SendDelay != "500ms" {
		t.Fatalf("default send_delay = %q, want 500ms", cfg.Command.SendDelay)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("default level = %q, want info", cfg.Logging.Level)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
telegram:
  token: "t"
  owner_user_ids: [100, 200]
command:
  prefix: "#"
  owner_only: true
storage:
  driver: sqlite
  path: ./bot.db
status:
  enabled: true
  addr: "127.0.0.1:9000"
`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Command.Prefix != "#" || !cfg.Command.OwnerOnly {
		t.Fatalf("command = %+v", cfg.Command)
	}
	if len(cfg.Telegram.OwnerIDs) != 2 || cfg.Telegram.OwnerIDs[0] != 100 {
		t.Fatalf("owner ids = %v", cfg.Telegram.OwnerIDs)
	}
	if cfg.Storage.Driver != "sqlite" || !cfg.Status.Enabled {
		t.Fatalf("storage/status = %+v / %+v", cfg.Storage, cfg.Status)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"telegram": {"token": "t", "tokne": "oops"}}`)

	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("Parse accepted an unknown field")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"telegram": {"token": "t"}}{"extra": 1}`)

	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("Parse accepted trailing data")
	}
}

func TestLoadCommitsAndGet(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"telegram": {"token": "t"}}`)
	m := NewManager(path)

	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get returned a different config than Load committed")
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")

	ch := m.Subscribe(1)
	cfg := &Config{}
	m.publish(cfg)

	select {
	case got := <-ch:
		if got != cfg {
			t.Fatal("subscriber got a different config")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never notified")
	}

	m.Unsubscribe(ch)
	if _, open := <-ch; open {
		t.Fatal("channel still open after Unsubscribe")
	}
}

func TestPublishDropsOldestWhenSlow(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")

	ch := m.Subscribe(1)
	first, second := &Config{}, &Config{}
	m.publish(first)
	m.publish(second) // displaces first

	got := <-ch
	if got != second {
		t.Fatal("slow subscriber did not receive the latest config")
	}
}

func TestDurationFields(t *testing.T) {
	t.Parallel()

	tg := TelegramConfig{PollTimeout: "30s"}
	if d, err := tg.PollTimeoutOr(10 * time.Second); err != nil || d != 30*time.Second {
		t.Fatalf("PollTimeoutOr = %v, %v", d, err)
	}
	if d, err := (TelegramConfig{}).PollTimeoutOr(10 * time.Second); err != nil || d != 10*time.Second {
		t.Fatalf("empty PollTimeoutOr = %v, %v, want default", d, err)
	}

	if d, err := (CommandConfig{SendDelay: "750ms"}).SendDelayOr(time.Second); err != nil || d != 750*time.Millisecond {
		t.Fatalf("SendDelayOr = %v, %v", d, err)
	}
	if d, err := (CommandConfig{SendDelay: "0s"}).SendDelayOr(time.Second); err != nil || d != time.Second {
		t.Fatalf("zero SendDelayOr = %v, %v, want default", d, err)
	}
	if _, err := (CommandConfig{SendDelay: "-1s"}).SendDelayOr(time.Second); err == nil {
		t.Fatal("negative duration accepted")
	}
	if _, err := (CommandConfig{SendDelay: "soon"}).SendDelayOr(time.Second); err == nil {
		t.Fatal("garbage duration accepted")
	}
}
