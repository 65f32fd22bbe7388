// Package command implements the text command surface: a parser that maps
// raw chat text to typed intents, and a dispatcher that executes them.
package command

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type Kind string

const (
	KindHelp          Kind = "help"
	KindRemind        Kind = "remind"
	KindRecurring     Kind = "recurring"
	KindBroadcast     Kind = "broadcast"
	KindBroadcastOnce Kind = "broadcast-once"
	KindList          Kind = "list"
	KindCancel        Kind = "cancel"
	KindChats         Kind = "chats"
	KindUnknown       Kind = "unknown"
)

// Intent is the transient parse result. It carries only raw strings;
// time/frequency interpretation happens downstream in the resolver.
type Intent struct {
	Kind     Kind
	Text     string
	Freq     string
	TimeExpr string
	Targets  []string
	ID       int64
	Query    string
}

// UsageError signals a recognized command with a malformed shape. The
// dispatcher turns it into a usage-hint reply; it never crashes anything.
type UsageError struct {
	Command string
	Usage   string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("usage: %s", e.Usage)
}

var (
	// Non-greedy text/time groups: the FIRST "at" (and first "to") is the
	// separator. The message itself cannot contain the bare separator words.
	remindRe        = regexp.MustCompile(`(?i)^remind\s+(.+?)\s+at\s+(.+)$`)
	recurringRe     = regexp.MustCompile(`(?i)^recurring\s+(.+?)\s+(daily|weekly|monthly|every\s+\w+)\s+at\s+(.+)$`)
	broadcastRe     = regexp.MustCompile(`(?i)^broadcast\s+(.+?)\s+(daily|weekly|monthly|every\s+\w+)\s+at\s+(.+?)\s+to\s+(.+)$`)
	broadcastOnceRe = regexp.MustCompile(`(?i)^broadcast-once\s+(.+?)\s+at\s+(.+?)\s+to\s+(.+)$`)
	cancelRe        = regexp.MustCompile(`(?i)^cancel\s+(\S+)\s*$`)
	chatsRe         = regexp.MustCompile(`(?i)^chats(?:\s+(.+))?$`)
)

type Parser struct {
	prefix string
}

func NewParser(prefix string) *Parser {
	if prefix == "" {
		prefix = "!"
	}
	return &Parser{prefix: prefix}
}

func (p *Parser) Prefix() string { return p.prefix }

// Parse maps raw text to an Intent. It returns (nil, nil) for text that is
// not a command (no prefix); a *UsageError for a recognized command with a
// bad shape; and KindUnknown for prefixed text outside the vocabulary.
// Pure: no side effects.
func (p *Parser) Parse(raw string) (*Intent, error) {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, p.prefix) {
		return nil, nil
	}
	body := strings.TrimPrefix(text, p.prefix)
	if strings.TrimSpace(body) == "" {
		return &Intent{Kind: KindUnknown}, nil
	}

	head := strings.ToLower(strings.Fields(body)[0])
	switch head {
	case "help":
		return &Intent{Kind: KindHelp}, nil

	case "remind":
		m := remindRe.FindStringSubmatch(body)
		if m == nil {
			return nil, p.usage(KindRemind, "remind <message> at <date/time>")
		}
		return &Intent{Kind: KindRemind, Text: strings.TrimSpace(m[1]), TimeExpr: strings.TrimSpace(m[2])}, nil

	case "recurring":
		m := recurringRe.FindStringSubmatch(body)
		if m == nil {
			return nil, p.usage(KindRecurring, "recurring <message> <frequency> at <time>")
		}
		return &Intent{
			Kind:     KindRecurring,
			Text:     strings.TrimSpace(m[1]),
			Freq:     strings.ToLower(strings.TrimSpace(m[2])),
			TimeExpr: strings.TrimSpace(m[3]),
		}, nil

	case "broadcast":
		m := broadcastRe.FindStringSubmatch(body)
		if m == nil {
			return nil, p.usage(KindBroadcast, "broadcast <message> <frequency> at <time> to <chat1>, <chat2>")
		}
		return &Intent{
			Kind:     KindBroadcast,
			Text:     strings.TrimSpace(m[1]),
			Freq:     strings.ToLower(strings.TrimSpace(m[2])),
			TimeExpr: strings.TrimSpace(m[3]),
			Targets:  splitTargets(m[4]),
		}, nil

	case "broadcast-once":
		m := broadcastOnceRe.FindStringSubmatch(body)
		if m == nil {
			return nil, p.usage(KindBroadcastOnce, "broadcast-once <message> at <time> to <chat1>, <chat2>")
		}
		return &Intent{
			Kind:     KindBroadcastOnce,
			Text:     strings.TrimSpace(m[1]),
			TimeExpr: strings.TrimSpace(m[2]),
			Targets:  splitTargets(m[3]),
		}, nil

	case "list":
		return &Intent{Kind: KindList}, nil

	case "cancel":
		m := cancelRe.FindStringSubmatch(body)
		if m == nil {
			return nil, p.usage(KindCancel, "cancel <id>")
		}
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || id < 0 {
			return nil, p.usage(KindCancel, "cancel <id>")
		}
		return &Intent{Kind: KindCancel, ID: id}, nil

	case "chats":
		m := chatsRe.FindStringSubmatch(body)
		if m == nil {
			// "chats" followed by anything still matches the regex; keep
			// the guard for symmetry.
			return &Intent{Kind: KindChats}, nil
		}
		return &Intent{Kind: KindChats, Query: strings.TrimSpace(m[1])}, nil
	}

	return &Intent{Kind: KindUnknown}, nil
}

func (p *Parser) usage(cmd Kind, shape string) *UsageError {
	return &UsageError{Command: string(cmd), Usage: p.prefix + shape}
}

func splitTargets(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, t := range parts {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
