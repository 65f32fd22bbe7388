package reminder

import (
	"sync"
	"time"
)

// Spec describes a reminder to create. ID and CreatedAt are assigned by the
// registry.
type Spec struct {
	OriginChat  int64
	Text        string
	TargetChats []int64

	// Exactly one of the two must be set.
	Once      *OnceSpec
	Recurring *RecurringSpec
}

// Registry owns the authoritative set of live reminders. Ids are positive,
// monotonically increasing and never reused. It does not arm or disarm
// jobs; callers pair registry and scheduler operations.
//
// Safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*Reminder
	order  []int64 // insertion order for List
}

func NewRegistry() *Registry {
	return &Registry{
		nextID: 1,
		byID:   map[int64]*Reminder{},
	}
}

func (g *Registry) Create(spec Spec) *Reminder {
	g.mu.Lock()
	defer g.mu.Unlock()

	r := &Reminder{
		ID:          g.nextID,
		OriginChat:  spec.OriginChat,
		Text:        spec.Text,
		CreatedAt:   time.Now(),
		TargetChats: append([]int64(nil), spec.TargetChats...),
	}
	g.nextID++

	switch {
	case spec.Once != nil:
		r.Kind = KindOneTime
		once := *spec.Once
		r.Once = &once
	case spec.Recurring != nil:
		r.Kind = KindRecurring
		rec := *spec.Recurring
		r.Recurring = &rec
	}

	g.byID[r.ID] = r
	g.order = append(g.order, r.ID)
	return r
}

func (g *Registry) Get(id int64) (*Reminder, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.byID[id]
	return r, ok
}

// List returns live reminders in insertion order.
func (g *Registry) List() []*Reminder {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Reminder, 0, len(g.byID))
	for _, id := range g.order {
		if r, ok := g.byID[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Delete removes a reminder and reports whether it existed.
func (g *Registry) Delete(id int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.byID[id]; !ok {
		return false
	}
	delete(g.byID, id)
	for i, v := range g.order {
		if v == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	return true
}

func (g *Registry) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.byID)
}
