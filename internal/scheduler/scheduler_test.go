package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/timeparse"
	logx "remindbot/pkg/logx"
)

func newTestService(t *testing.T) (*Service, *reminder.Registry, eventbus.Bus) {
	t.Helper()
	reg := reminder.NewRegistry()
	bus := eventbus.New()
	svc := New(reg, bus, logx.Nop())
	svc.Start(context.Background())
	t.Cleanup(svc.Shutdown)
	return svc, reg, bus
}

func createOnce(reg *reminder.Registry, at time.Time) *reminder.Reminder {
	return reg.Create(reminder.Spec{
		OriginChat: 1,
		Text:       "x",
		Once:       &reminder.OnceSpec{At: at},
	})
}

func TestArmOnceFiresAndCleansUp(t *testing.T) {
	t.Parallel()
	svc, reg, bus := newTestService(t)
	events, unsub := bus.Subscribe(8)
	defer unsub()

	at := time.Now().Add(20 * time.Millisecond)
	r := createOnce(reg, at)

	fired := make(chan struct{})
	_, err := svc.ArmOnce(r.ID, at, func(ctx context.Context) error {
		close(fired)
		return nil
	})
	if err != nil {
		t.Fatalf("ArmOnce: %v", err)
	}
	if !svc.Armed(r.ID) {
		t.Fatal("job not armed after ArmOnce")
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("one-time job never fired")
	}

	// Job and reminder are removed together after the single firing.
	waitFor(t, func() bool { return !svc.Armed(r.ID) && reg.Count() == 0 })

	select {
	case ev := <-events:
		if ev.Type != eventbus.EventReminderFired {
			t.Fatalf("event type = %q, want %q", ev.Type, eventbus.EventReminderFired)
		}
		re := ev.Data.(eventbus.ReminderEvent)
		if re.ID != r.ID || re.Error != "" {
			t.Fatalf("fired event = %+v", re)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no fired event published")
	}
}

func TestOneTimeCleansUpOnError(t *testing.T) {
	t.Parallel()
	svc, reg, _ := newTestService(t)

	at := time.Now().Add(10 * time.Millisecond)
	r := createOnce(reg, at)
	fired := make(chan struct{})
	_, err := svc.ArmOnce(r.ID, at, func(ctx context.Context) error {
		close(fired)
		return errors.New("send failed")
	})
	if err != nil {
		t.Fatalf("ArmOnce: %v", err)
	}

	<-fired
	// Delivery failure does not keep a one-time reminder alive.
	waitFor(t, func() bool { return reg.Count() == 0 && !svc.Armed(r.ID) })
}

func TestCancelPreventsFiring(t *testing.T) {
	t.Parallel()
	svc, reg, _ := newTestService(t)

	r := createOnce(reg, time.Now().Add(50*time.Millisecond))
	var calls atomic.Int32
	_, err := svc.ArmOnce(r.ID, time.Now().Add(50*time.Millisecond), func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("ArmOnce: %v", err)
	}

	if !svc.Cancel(r.ID) {
		t.Fatal("Cancel = false, want true")
	}
	if svc.Cancel(r.ID) {
		t.Fatal("second Cancel = true, want false")
	}

	time.Sleep(150 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Fatalf("callback ran %d times after Cancel", n)
	}
}

func TestArmOnceDuplicateID(t *testing.T) {
	t.Parallel()
	svc, reg, _ := newTestService(t)

	r := createOnce(reg, time.Now().Add(time.Hour))
	if _, err := svc.ArmOnce(r.ID, time.Now().Add(time.Hour), func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("first ArmOnce: %v", err)
	}
	if _, err := svc.ArmOnce(r.ID, time.Now().Add(time.Hour), func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("second ArmOnce with same id succeeded")
	}
}

func TestArmRecurringAndCancel(t *testing.T) {
	t.Parallel()
	svc, reg, _ := newTestService(t)

	r := reg.Create(reminder.Spec{
		OriginChat: 1,
		Text:       "standup",
		Recurring:  &reminder.RecurringSpec{Label: "daily", Rule: timeparse.Rule{Hour: 9}},
	})
	j, err := svc.ArmRecurring(r.ID, timeparse.Rule{Hour: 9}, func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatalf("ArmRecurring: %v", err)
	}
	if !svc.Armed(r.ID) || svc.ActiveJobs() != 1 {
		t.Fatalf("Armed = %v, ActiveJobs = %d", svc.Armed(r.ID), svc.ActiveJobs())
	}

	if !j.Cancel() {
		t.Fatal("Job.Cancel = false, want true")
	}
	if svc.Armed(r.ID) {
		t.Fatal("job still armed after Cancel")
	}
	// Cancelling the job does not touch the registry; that is the caller's
	// pairing responsibility.
	if reg.Count() != 1 {
		t.Fatalf("registry count = %d, want 1", reg.Count())
	}
}

func TestPanicInCallbackIsContained(t *testing.T) {
	t.Parallel()
	svc, reg, bus := newTestService(t)
	events, unsub := bus.Subscribe(8)
	defer unsub()

	at := time.Now().Add(10 * time.Millisecond)
	r := createOnce(reg, at)
	_, err := svc.ArmOnce(r.ID, at, func(ctx context.Context) error {
		panic("boom")
	})
	if err != nil {
		t.Fatalf("ArmOnce: %v", err)
	}

	select {
	case ev := <-events:
		re := ev.Data.(eventbus.ReminderEvent)
		if re.Error == "" {
			t.Fatal("panic was not reported as a firing error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event after panicking callback")
	}
	waitFor(t, func() bool { return reg.Count() == 0 })
}

func TestShutdownRejectsNewJobs(t *testing.T) {
	t.Parallel()
	reg := reminder.NewRegistry()
	svc := New(reg, eventbus.New(), logx.Nop())
	svc.Start(context.Background())

	r := createOnce(reg, time.Now().Add(time.Hour))
	if _, err := svc.ArmOnce(r.ID, time.Now().Add(time.Hour), func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("ArmOnce: %v", err)
	}

	svc.Shutdown()
	if svc.ActiveJobs() != 0 {
		t.Fatalf("ActiveJobs after Shutdown = %d, want 0", svc.ActiveJobs())
	}
	if _, err := svc.ArmOnce(99, time.Now().Add(time.Hour), func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("ArmOnce after Shutdown succeeded")
	}
}

// waitFor polls cond briefly; timer-driven cleanup finishes asynchronously
// after the callback returns.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
