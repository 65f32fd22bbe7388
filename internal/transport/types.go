// Package transport defines the adapter-neutral types exchanged between the
// chat transport and the rest of the bot. Concrete adapters live in
// subpackages (currently Telegram).
package transport

import "context"

type UpdateKind string

const (
	// UpdateMessage carries an inbound text message.
	UpdateMessage UpdateKind = "message"
	// UpdateChatSeen carries a chat the bot learned about without a message
	// (e.g. it was added to a group).
	UpdateChatSeen UpdateKind = "chat_seen"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
	Chat    *ChatInfo
}

type Message struct {
	ID           int
	ChatID       int64
	ChatName     string
	IsGroup      bool
	FromID       int64
	FromUsername string
	Text         string
}

// ChatInfo describes an addressable destination.
type ChatInfo struct {
	ID      int64
	Name    string
	IsGroup bool
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	DisablePreview bool
}

// Adapter is the message-transport capability the bot consumes. The core
// never manages the underlying connection or session; it only starts/stops
// the adapter and sends text.
type Adapter interface {
	// Start begins delivering inbound updates on out. Non-blocking; the
	// adapter owns its polling goroutines until Stop or ctx cancellation.
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)

	// Ready reports whether the adapter is polling for updates.
	Ready() bool
	// Authenticated reports whether the transport accepted our credentials.
	Authenticated() bool
}
