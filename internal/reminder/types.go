// Package reminder holds the reminder model and its in-memory registry.
package reminder

import (
	"time"

	"remindbot/internal/timeparse"
)

type Kind string

const (
	KindOneTime   Kind = "one-time"
	KindRecurring Kind = "recurring"
)

// Reminder is the unit of scheduled work. It is a tagged variant: exactly
// one of Once/Recurring is non-nil, matching Kind.
type Reminder struct {
	ID         int64
	OriginChat int64
	Text       string
	Kind       Kind
	CreatedAt  time.Time

	// TargetChats is the ordered broadcast destination list. Empty means
	// the single destination is OriginChat.
	TargetChats []int64

	Once      *OnceSpec
	Recurring *RecurringSpec
}

// OnceSpec carries the single fire instant; strictly in the future at
// creation time.
type OnceSpec struct {
	At time.Time
}

// RecurringSpec carries the human frequency label and the normalized rule.
type RecurringSpec struct {
	Label string
	Rule  timeparse.Rule
}

// Destinations returns the chats a firing delivers to.
func (r *Reminder) Destinations() []int64 {
	if len(r.TargetChats) > 0 {
		return r.TargetChats
	}
	return []int64{r.OriginChat}
}
