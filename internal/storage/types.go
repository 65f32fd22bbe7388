// Package storage persists the chat directory and the delivery audit log.
// Reminders themselves are deliberately not stored: the registry is
// in-memory only.
package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage. If Driver is empty or "none", storage is
// disabled and Open returns (nil, nil).
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// ChatRow is one observed destination.
type ChatRow struct {
	ID       int64
	Name     string
	IsGroup  bool
	LastSeen time.Time
}

// DeliveryEntry records one reminder firing. Keep it compact and
// schema-stable.
type DeliveryEntry struct {
	At         time.Time
	ReminderID int64
	Kind       string
	Targets    string // comma-separated chat ids
	OK         int
	Fail       int
	Error      string
	TookMS     int64
}
