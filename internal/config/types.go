package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration. Files may be JSON or YAML; unknown
// fields are rejected so typos fail loudly instead of silently.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Command  CommandConfig  `json:"command"`
	Storage  StorageConfig  `json:"storage"`
	Status   StatusConfig   `json:"status"`
}

type TelegramConfig struct {
	Token       string  `json:"token"`
	PollTimeout string  `json:"poll_timeout"` // duration, default 10s
	OwnerIDs    []int64 `json:"owner_user_ids"`
	OpsChat     int64   `json:"ops_chat"` // destination for mirrored log lines; 0 disables
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    FileLogConfig `json:"file"`
	Chat    ChatLogConfig `json:"chat"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type ChatLogConfig struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

type CommandConfig struct {
	Prefix    string `json:"prefix"`     // default "!"
	SendDelay string `json:"send_delay"` // pause between multi-destination sends, default 500ms
	OwnerOnly bool   `json:"owner_only"` // ignore commands from non-operators
}

type StorageConfig struct {
	Driver string `json:"driver"` // "sqlite" or "none"
	Path   string `json:"path"`
}

type StatusConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"` // e.g. "127.0.0.1:8799"
}

// PollTimeoutOr resolves the long-poll timeout, falling back to def when
// the field is unset.
func (t TelegramConfig) PollTimeoutOr(def time.Duration) (time.Duration, error) {
	return durationField("telegram.poll_timeout", t.PollTimeout, def)
}

// SendDelayOr resolves the inter-send pacing delay, falling back to def
// when the field is unset.
func (c CommandConfig) SendDelayOr(def time.Duration) (time.Duration, error) {
	return durationField("command.send_delay", c.SendDelay, def)
}

// durationField parses a duration-typed config string. Empty and zero both
// mean "use def"; negative values are rejected.
func durationField(field, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: bad duration %q: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %q", field, raw)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
