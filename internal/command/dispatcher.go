package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/scheduler"
	"remindbot/internal/timeparse"
	"remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// Directory is the chat-directory capability the dispatcher consumes.
type Directory interface {
	List(ctx context.Context) []transport.ChatInfo
	Search(ctx context.Context, query string) []transport.ChatInfo
}

// chatsListCap bounds each group in the !chats rendering so replies stay
// under transport message-size limits.
const chatsListCap = 20

// Dispatcher executes intents. It owns no reminder state; it orchestrates
// the resolver, registry, scheduler and directory, and produces the reply
// text for the originating chat.
type Dispatcher struct {
	log     logx.Logger
	adapter transport.Adapter
	reg     *reminder.Registry
	sched   *scheduler.Service
	dir     Directory
	bus     eventbus.Bus
	parser  *Parser

	mu        sync.Mutex
	operators map[int64]struct{}
	ownerOnly bool
	// limiter paces transport sends; multi-destination deliveries are
	// serialized rather than parallel for transport rate-limit safety.
	limiter *rate.Limiter

	now func() time.Time
}

func NewDispatcher(parser *Parser, adapter transport.Adapter, reg *reminder.Registry, sched *scheduler.Service, dir Directory, bus eventbus.Bus, log logx.Logger) *Dispatcher {
	return &Dispatcher{
		log:       log,
		adapter:   adapter,
		reg:       reg,
		sched:     sched,
		dir:       dir,
		bus:       bus,
		parser:    parser,
		operators: map[int64]struct{}{},
		limiter:   rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		now:       time.Now,
	}
}

// SetOperators replaces the operator id set. Safe during hot reload.
func (d *Dispatcher) SetOperators(ids []int64) {
	ops := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		ops[id] = struct{}{}
	}
	d.mu.Lock()
	d.operators = ops
	d.mu.Unlock()
}

func (d *Dispatcher) SetOwnerOnly(v bool) {
	d.mu.Lock()
	d.ownerOnly = v
	d.mu.Unlock()
}

// SetSendDelay adjusts the pause between multi-destination sends.
func (d *Dispatcher) SetSendDelay(delay time.Duration) {
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	d.mu.Lock()
	d.limiter = rate.NewLimiter(rate.Every(delay), 1)
	d.mu.Unlock()
}

func (d *Dispatcher) isOperator(id int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.operators[id]
	return ok
}

// HandleText parses and dispatches one inbound message. The returned reply
// is empty when the text is not a command (or the sender is filtered out).
func (d *Dispatcher) HandleText(ctx context.Context, msg *transport.Message) string {
	d.mu.Lock()
	ownerOnly := d.ownerOnly
	d.mu.Unlock()
	operator := d.isOperator(msg.FromID)
	// Owner-only gating happens before any parsing: filtered senders get
	// silence, not usage or error replies.
	if ownerOnly && !operator {
		return ""
	}

	in, err := d.parser.Parse(msg.Text)
	if err != nil {
		var ue *UsageError
		if errors.As(err, &ue) {
			return "❌ Use: " + ue.Usage
		}
		return "❌ " + err.Error()
	}
	if in == nil {
		return "" // not a command
	}

	reqID := uuid.NewString()[:8]
	d.log.Debug("command received",
		logx.String("req", reqID),
		logx.String("kind", string(in.Kind)),
		logx.Int64("chat", msg.ChatID),
		logx.Int64("from", msg.FromID))

	return d.Dispatch(ctx, transport.ChatTarget{ChatID: msg.ChatID}, operator, in)
}

// Dispatch executes a parsed intent on behalf of origin and returns the
// human-readable reply. Failures become reply text, never panics or
// half-created reminder/job pairs.
func (d *Dispatcher) Dispatch(ctx context.Context, origin transport.ChatTarget, operator bool, in *Intent) string {
	switch in.Kind {
	case KindHelp:
		return d.helpText()
	case KindRemind:
		return d.handleRemind(origin, in)
	case KindRecurring:
		return d.handleRecurring(origin, in)
	case KindBroadcast:
		return d.handleBroadcast(ctx, origin, in)
	case KindBroadcastOnce:
		return d.handleBroadcastOnce(ctx, origin, in)
	case KindList:
		return d.handleList()
	case KindCancel:
		return d.handleCancel(origin, operator, in.ID)
	case KindChats:
		return d.handleChats(ctx, in.Query)
	default:
		return fmt.Sprintf("🤔 Unknown command. Type %shelp for help.", d.parser.Prefix())
	}
}

func (d *Dispatcher) handleRemind(origin transport.ChatTarget, in *Intent) string {
	at, err := timeparse.ResolveInstant(in.TimeExpr, d.now())
	if err != nil {
		return "❌ Invalid date or date in the past"
	}

	r := d.reg.Create(reminder.Spec{
		OriginChat: origin.ChatID,
		Text:       in.Text,
		Once:       &reminder.OnceSpec{At: at},
	})
	if !d.armOnce(r, at, "🔔 REMINDER\n\n"+in.Text) {
		return "❌ Could not schedule reminder"
	}

	return fmt.Sprintf("✅ Reminder set!\n📌 ID: %d\n💬 %s\n⏰ %s",
		r.ID, in.Text, at.Format("2006-01-02 15:04"))
}

func (d *Dispatcher) handleRecurring(origin transport.ChatTarget, in *Intent) string {
	rule, err := timeparse.ResolveRecurrence(in.Freq, in.TimeExpr)
	if err != nil {
		return "❌ Could not parse schedule"
	}

	r := d.reg.Create(reminder.Spec{
		OriginChat: origin.ChatID,
		Text:       in.Text,
		Recurring:  &reminder.RecurringSpec{Label: in.Freq, Rule: rule},
	})
	if !d.armRecurring(r, rule, "🔔 RECURRING REMINDER\n\n"+in.Text) {
		return "❌ Could not schedule reminder"
	}

	return fmt.Sprintf("✅ Recurring reminder set!\n📌 ID: %d\n💬 %s\n🔄 %s", r.ID, in.Text, in.Freq)
}

func (d *Dispatcher) handleBroadcast(ctx context.Context, origin transport.ChatTarget, in *Intent) string {
	matched := d.findChats(ctx, in.Targets)
	if len(matched) == 0 {
		return "❌ No matching chats found"
	}

	rule, err := timeparse.ResolveRecurrence(in.Freq, in.TimeExpr)
	if err != nil {
		return "❌ Could not parse schedule"
	}

	r := d.reg.Create(reminder.Spec{
		OriginChat:  origin.ChatID,
		Text:        in.Text,
		TargetChats: chatIDs(matched),
		Recurring:   &reminder.RecurringSpec{Label: in.Freq, Rule: rule},
	})
	if !d.armRecurring(r, rule, "📢 BROADCAST\n\n"+in.Text) {
		return "❌ Could not schedule broadcast"
	}

	return fmt.Sprintf("✅ Broadcast set!\n📌 ID: %d\n🔄 %s\n📤 Sending to:\n%s",
		r.ID, in.Freq, chatNameList(matched))
}

func (d *Dispatcher) handleBroadcastOnce(ctx context.Context, origin transport.ChatTarget, in *Intent) string {
	at, err := timeparse.ResolveInstant(in.TimeExpr, d.now())
	if err != nil {
		return "❌ Invalid date"
	}

	matched := d.findChats(ctx, in.Targets)
	if len(matched) == 0 {
		return "❌ No matching chats found"
	}

	r := d.reg.Create(reminder.Spec{
		OriginChat:  origin.ChatID,
		Text:        in.Text,
		TargetChats: chatIDs(matched),
		Once:        &reminder.OnceSpec{At: at},
	})
	if !d.armOnce(r, at, "📢 BROADCAST\n\n"+in.Text) {
		return "❌ Could not schedule broadcast"
	}

	return fmt.Sprintf("✅ Broadcast scheduled!\n📌 ID: %d\n⏰ %s\n📤 Sending to:\n%s",
		r.ID, at.Format("2006-01-02 15:04"), chatNameList(matched))
}

func (d *Dispatcher) handleList() string {
	reminders := d.reg.List()
	if len(reminders) == 0 {
		return "📭 No active reminders"
	}

	var b strings.Builder
	b.WriteString("📋 Active Reminders:\n\n")
	for _, r := range reminders {
		fmt.Fprintf(&b, "ID %d: %s\n", r.ID, r.Text)
		switch r.Kind {
		case reminder.KindOneTime:
			fmt.Fprintf(&b, "⏰ %s\n", r.Once.At.Format("2006-01-02 15:04"))
		case reminder.KindRecurring:
			fmt.Fprintf(&b, "🔄 %s\n", r.Recurring.Label)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (d *Dispatcher) handleCancel(origin transport.ChatTarget, operator bool, id int64) string {
	r, ok := d.reg.Get(id)
	if !ok {
		return "❌ Reminder not found"
	}
	// Ownership: only the creating chat may cancel, with an operator
	// escape hatch.
	if r.OriginChat != origin.ChatID && !operator {
		return "❌ Can only cancel your own reminders"
	}

	d.sched.Cancel(id)
	d.reg.Delete(id)
	if d.bus != nil {
		d.bus.Publish(eventbus.Event{
			Type: eventbus.EventReminderCancelled,
			Data: eventbus.ReminderEvent{ID: id, Kind: string(r.Kind), Chat: r.OriginChat},
		})
	}
	return fmt.Sprintf("✅ Reminder #%d cancelled", id)
}

func (d *Dispatcher) handleChats(ctx context.Context, query string) string {
	var chats []transport.ChatInfo
	if query != "" {
		chats = d.dir.Search(ctx, query)
	} else {
		chats = d.dir.List(ctx)
	}
	if len(chats) == 0 {
		return "📭 No chats found"
	}

	var groups, contacts []transport.ChatInfo
	for _, c := range chats {
		if c.IsGroup {
			groups = append(groups, c)
		} else {
			contacts = append(contacts, c)
		}
	}
	if len(groups) > chatsListCap {
		groups = groups[:chatsListCap]
	}
	if len(contacts) > chatsListCap {
		contacts = contacts[:chatsListCap]
	}

	var b strings.Builder
	b.WriteString("📋 Your Chats:\n\n")
	if len(groups) > 0 {
		b.WriteString("📁 Groups:\n")
		for i, c := range groups {
			fmt.Fprintf(&b, "%d. %s\n", i+1, c.Name)
		}
		b.WriteString("\n")
	}
	if len(contacts) > 0 {
		b.WriteString("👤 Contacts:\n")
		for i, c := range contacts {
			fmt.Fprintf(&b, "%d. %s\n", i+1, c.Name)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// armOnce pairs registry creation with job arming; on arm failure the
// half-created reminder is rolled back so the registry/scheduler invariant
// holds.
func (d *Dispatcher) armOnce(r *reminder.Reminder, at time.Time, text string) bool {
	targets := r.Destinations()
	_, err := d.sched.ArmOnce(r.ID, at, d.deliverFunc(r.ID, targets, text))
	if err != nil {
		d.reg.Delete(r.ID)
		d.log.Error("arming one-time job failed", logx.Int64("id", r.ID), logx.Err(err))
		return false
	}
	d.publishCreated(r)
	return true
}

func (d *Dispatcher) armRecurring(r *reminder.Reminder, rule timeparse.Rule, text string) bool {
	targets := r.Destinations()
	_, err := d.sched.ArmRecurring(r.ID, rule, d.deliverFunc(r.ID, targets, text))
	if err != nil {
		d.reg.Delete(r.ID)
		d.log.Error("arming recurring job failed", logx.Int64("id", r.ID), logx.Err(err))
		return false
	}
	d.publishCreated(r)
	return true
}

func (d *Dispatcher) publishCreated(r *reminder.Reminder) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventbus.Event{
		Type: eventbus.EventReminderCreated,
		Data: eventbus.ReminderEvent{ID: r.ID, Kind: string(r.Kind), Chat: r.OriginChat, Targets: r.TargetChats},
	})
}

func (d *Dispatcher) deliverFunc(id int64, targets []int64, text string) scheduler.Callback {
	return func(ctx context.Context) error {
		return d.deliver(ctx, id, targets, text)
	}
}

// deliver sends text to each destination in order, pacing sends through the
// shared limiter. Per-destination failures are logged and reported but do
// not stop the remaining sends.
func (d *Dispatcher) deliver(ctx context.Context, id int64, targets []int64, text string) error {
	d.mu.Lock()
	limiter := d.limiter
	d.mu.Unlock()

	var firstErr error
	for _, chat := range targets {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		_, err := d.adapter.SendText(ctx, transport.ChatTarget{ChatID: chat}, text, &transport.SendOptions{DisablePreview: true})
		if err != nil {
			d.log.Warn("delivery send failed", logx.Int64("id", id), logx.Int64("chat", chat), logx.Err(err))
			if d.bus != nil {
				d.bus.Publish(eventbus.Event{
					Type: eventbus.EventDeliveryFailed,
					Data: eventbus.ReminderEvent{ID: id, Chat: chat, Error: err.Error()},
				})
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// findChats resolves each target fragment through the directory, taking the
// first match per fragment and silently dropping unmatched ones.
func (d *Dispatcher) findChats(ctx context.Context, names []string) []transport.ChatInfo {
	var matched []transport.ChatInfo
	for _, name := range names {
		if res := d.dir.Search(ctx, name); len(res) > 0 {
			matched = append(matched, res[0])
		}
	}
	return matched
}

func chatIDs(chats []transport.ChatInfo) []int64 {
	out := make([]int64, 0, len(chats))
	for _, c := range chats {
		out = append(out, c.ID)
	}
	return out
}

func chatNameList(chats []transport.ChatInfo) string {
	lines := make([]string, 0, len(chats))
	for _, c := range chats {
		lines = append(lines, "• "+c.Name)
	}
	return strings.Join(lines, "\n")
}
