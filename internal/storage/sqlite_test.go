package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "remindbot/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{"", "none", "NONE"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = %v, %v, want nil, nil", driver, st, err)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver accepted")
	}
}

func TestChatUpsert(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.UpsertChat(ctx, ChatRow{ID: 1, Name: "Old", IsGroup: true}); err != nil {
		t.Fatalf("UpsertChat: %v", err)
	}
	if err := st.UpsertChat(ctx, ChatRow{ID: 2, Name: "Alice"}); err != nil {
		t.Fatalf("UpsertChat: %v", err)
	}
	// Same id updates in place.
	if err := st.UpsertChat(ctx, ChatRow{ID: 1, Name: "New", IsGroup: true}); err != nil {
		t.Fatalf("UpsertChat (update): %v", err)
	}

	rows, err := st.ListChats(ctx)
	if err != nil {
		t.Fatalf("ListChats: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("ListChats len = %d, want 2", len(rows))
	}
	// Ordered by name.
	if rows[0].Name != "Alice" || rows[1].Name != "New" {
		t.Fatalf("rows = %v", rows)
	}
	if !rows[1].IsGroup || rows[1].LastSeen.IsZero() {
		t.Fatalf("row = %+v", rows[1])
	}
}

func TestAppendDelivery(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	err := st.AppendDelivery(ctx, DeliveryEntry{
		At:         time.Now(),
		ReminderID: 7,
		Kind:       "one-time",
		Targets:    "10,11",
		OK:         1,
		TookMS:     42,
	})
	if err != nil {
		t.Fatalf("AppendDelivery: %v", err)
	}
	// Append-only log: duplicates for the same reminder are fine.
	if err := st.AppendDelivery(ctx, DeliveryEntry{ReminderID: 7, Kind: "one-time", Fail: 1, Error: "send failed"}); err != nil {
		t.Fatalf("AppendDelivery (second): %v", err)
	}
}
