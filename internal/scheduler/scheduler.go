// Package scheduler owns the live job handles that make reminders fire.
//
// One-time jobs ride a time.Timer; recurring jobs share a single cron
// runner at minute granularity. The scheduler is the only component that
// invokes delivery callbacks, and the only one that removes a one-time
// reminder from the registry after its single firing.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/timeparse"
	logx "remindbot/pkg/logx"
)

// Callback delivers one firing. Errors are recorded, never propagated:
// a recurring job stays armed, a one-time job is cleaned up regardless.
type Callback func(ctx context.Context) error

type jobKind int

const (
	jobOnce jobKind = iota
	jobRecurring
)

// Job is the typed handle bound 1:1 to a live reminder id.
type Job struct {
	id    int64
	kind  jobKind
	timer *time.Timer
	entry cron.EntryID
	svc   *Service
}

// Cancel stops any future firing of this job. Idempotent.
func (j *Job) Cancel() bool { return j.svc.Cancel(j.id) }

type Service struct {
	log logx.Logger
	reg *reminder.Registry
	bus eventbus.Bus

	mu      sync.Mutex
	c       *cron.Cron
	jobs    map[int64]*Job
	runCtx  context.Context
	stopped bool
}

func New(reg *reminder.Registry, bus eventbus.Bus, log logx.Logger) *Service {
	return &Service{
		log:    log,
		reg:    reg,
		bus:    bus,
		c:      cron.New(), // standard 5-field specs, local time
		jobs:   map[int64]*Job{},
		runCtx: context.Background(),
	}
}

// Start begins recurring evaluation. Callbacks run on ctx.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	s.runCtx = ctx
	s.stopped = false
	s.mu.Unlock()
	s.c.Start()
	s.log.Info("scheduler started")
}

// ArmOnce schedules cb to run once at fireAt. After the firing the job and
// its reminder are removed together.
func (s *Service) ArmOnce(id int64, fireAt time.Time, cb Callback) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, errors.New("scheduler stopped")
	}
	if _, exists := s.jobs[id]; exists {
		return nil, fmt.Errorf("job %d already armed", id)
	}

	j := &Job{id: id, kind: jobOnce, svc: s}
	delay := time.Until(fireAt)
	if delay < 0 {
		delay = 0
	}
	j.timer = time.AfterFunc(delay, func() { s.fireOnce(id, cb) })
	s.jobs[id] = j

	s.log.Debug("one-time job armed", logx.Int64("id", id), logx.Time("at", fireAt))
	return j, nil
}

// ArmRecurring schedules cb to run whenever rule matches wall-clock time.
// The reminder persists across firings until cancelled.
func (s *Service) ArmRecurring(id int64, rule timeparse.Rule, cb Callback) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, errors.New("scheduler stopped")
	}
	if _, exists := s.jobs[id]; exists {
		return nil, fmt.Errorf("job %d already armed", id)
	}

	spec := rule.CronSpec()
	entry, err := s.c.AddFunc(spec, func() { s.fireRecurring(id, cb) })
	if err != nil {
		return nil, fmt.Errorf("recurrence rule %q: %w", spec, err)
	}
	j := &Job{id: id, kind: jobRecurring, entry: entry, svc: s}
	s.jobs[id] = j

	s.log.Debug("recurring job armed", logx.Int64("id", id), logx.String("spec", spec))
	return j, nil
}

// Cancel idempotently stops future firings for id and drops the handle.
// A firing already in flight completes; after Cancel returns no further
// firings occur.
func (s *Service) Cancel(id int64) bool {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if ok {
		delete(s.jobs, id)
	}
	c := s.c
	s.mu.Unlock()
	if !ok {
		return false
	}

	switch j.kind {
	case jobOnce:
		if j.timer != nil {
			_ = j.timer.Stop()
		}
	case jobRecurring:
		c.Remove(j.entry)
	}
	s.log.Debug("job cancelled", logx.Int64("id", id))
	return true
}

// Shutdown cancels every armed job and waits for in-flight recurring runs.
func (s *Service) Shutdown() {
	s.mu.Lock()
	jobs := s.jobs
	s.jobs = map[int64]*Job{}
	s.stopped = true
	c := s.c
	s.mu.Unlock()

	for _, j := range jobs {
		switch j.kind {
		case jobOnce:
			if j.timer != nil {
				_ = j.timer.Stop()
			}
		case jobRecurring:
			c.Remove(j.entry)
		}
	}
	<-c.Stop().Done()
	s.log.Info("scheduler stopped", logx.Int("cancelled", len(jobs)))
}

// Armed reports whether a job handle exists for id.
func (s *Service) Armed(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[id]
	return ok
}

func (s *Service) ActiveJobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Service) fireOnce(id int64, cb Callback) {
	s.mu.Lock()
	_, armed := s.jobs[id]
	ctx := s.runCtx
	s.mu.Unlock()
	if !armed {
		// cancelled between timer fire and run
		return
	}

	start := time.Now()
	err := s.safeRun(ctx, cb)

	// Atomic cleanup: a one-time reminder's existence is coextensive with
	// its unfired job, so both go away together after the single firing.
	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()
	s.reg.Delete(id)

	s.report(id, string(reminder.KindOneTime), start, err)
}

func (s *Service) fireRecurring(id int64, cb Callback) {
	s.mu.Lock()
	_, armed := s.jobs[id]
	ctx := s.runCtx
	s.mu.Unlock()
	if !armed {
		return
	}

	start := time.Now()
	err := s.safeRun(ctx, cb)
	// Callback failures keep the job armed for the next occurrence.
	s.report(id, string(reminder.KindRecurring), start, err)
}

// safeRun invokes the callback with panic containment. A panicking delivery
// must never take the scheduler down.
func (s *Service) safeRun(ctx context.Context, cb Callback) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in delivery callback: %v", r)
		}
	}()
	return cb(ctx)
}

func (s *Service) report(id int64, kind string, start time.Time, err error) {
	took := time.Since(start)
	ev := eventbus.ReminderEvent{ID: id, Kind: kind, Took: took}
	if err != nil {
		ev.Error = err.Error()
		s.log.Warn("reminder firing failed", logx.Int64("id", id), logx.String("kind", kind), logx.Err(err), logx.Duration("took", took))
	} else {
		s.log.Info("reminder fired", logx.Int64("id", id), logx.String("kind", kind), logx.Duration("took", took))
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.EventReminderFired, Data: ev})
	}
}
