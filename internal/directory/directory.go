// Package directory maintains the set of addressable destinations.
//
// Telegram exposes no "list my chats" call, so the directory is built from
// observation: every chat the bot exchanges a message with (or is added to)
// gets recorded. Rows are mirrored into storage so listings survive
// restarts; the in-memory map stays authoritative at runtime.
package directory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"remindbot/internal/storage"
	"remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type Service struct {
	log   logx.Logger
	store storage.Store // nil when storage is disabled

	mu    sync.RWMutex
	chats map[int64]transport.ChatInfo
}

func New(store storage.Store, log logx.Logger) *Service {
	return &Service{
		log:   log,
		store: store,
		chats: map[int64]transport.ChatInfo{},
	}
}

// LoadPersisted seeds the in-memory directory from storage. Best-effort:
// a missing or disabled store is not an error.
func (s *Service) LoadPersisted(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	rows, err := s.store.ListChats(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	for _, r := range rows {
		s.chats[r.ID] = transport.ChatInfo{ID: r.ID, Name: r.Name, IsGroup: r.IsGroup}
	}
	n := len(s.chats)
	s.mu.Unlock()
	s.log.Debug("directory loaded", logx.Int("chats", n))
	return nil
}

// Observe records a destination. Called from the update loop for every
// inbound message and chat event.
func (s *Service) Observe(ctx context.Context, info transport.ChatInfo) {
	if info.ID == 0 {
		return
	}
	if info.Name == "" {
		info.Name = "Unknown"
	}

	s.mu.Lock()
	prev, known := s.chats[info.ID]
	s.chats[info.ID] = info
	s.mu.Unlock()

	if known && prev == info {
		return
	}
	if s.store != nil {
		err := s.store.UpsertChat(ctx, storage.ChatRow{
			ID:       info.ID,
			Name:     info.Name,
			IsGroup:  info.IsGroup,
			LastSeen: time.Now(),
		})
		if err != nil {
			s.log.Warn("directory persist failed", logx.Int64("chat", info.ID), logx.Err(err))
		}
	}
}

// List returns all known destinations ordered by display name.
func (s *Service) List(ctx context.Context) []transport.ChatInfo {
	s.mu.RLock()
	out := make([]transport.ChatInfo, 0, len(s.chats))
	for _, c := range s.chats {
		out = append(out, c)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Search returns destinations whose name contains query,
// case-insensitively, in List order.
func (s *Service) Search(ctx context.Context, query string) []transport.ChatInfo {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return s.List(ctx)
	}
	all := s.List(ctx)
	out := make([]transport.ChatInfo, 0, len(all))
	for _, c := range all {
		if strings.Contains(strings.ToLower(c.Name), q) {
			out = append(out, c)
		}
	}
	return out
}

func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chats)
}
