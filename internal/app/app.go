// Package app wires the bot's components together and owns their
// lifecycle: config, transport, logging, storage, scheduling, command
// dispatch and the status endpoint.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"remindbot/internal/command"
	"remindbot/internal/config"
	"remindbot/internal/directory"
	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/scheduler"
	"remindbot/internal/status"
	"remindbot/internal/storage"
	"remindbot/internal/transport"
	"remindbot/internal/transport/telegram"
	logx "remindbot/pkg/logx"
)

const updateQueueSize = 128

type App struct {
	cfgm *config.Manager

	logs *logx.Service
	log  logx.Logger

	adapter   transport.Adapter
	store     storage.Store // nil when storage is disabled
	dir       *directory.Service
	reg       *reminder.Registry
	sched     *scheduler.Service
	disp      *command.Dispatcher
	bus       eventbus.Bus
	statusSrv *status.Server

	updates chan transport.Update
	sup     *Supervisor
}

// New loads the config at cfgPath and constructs every component. Nothing
// runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", cfgPath, err)
	}

	pollTimeout, err := cfg.Telegram.PollTimeoutOr(10 * time.Second)
	if err != nil {
		return nil, err
	}
	sendDelay, err := cfg.Command.SendDelayOr(500 * time.Millisecond)
	if err != nil {
		return nil, err
	}

	boot := logx.NewConsole(cfg.Logging.Level)
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, boot.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}, adapter)
	logs.SetChatTarget(cfg.Telegram.OpsChat)
	adapter.SetLogger(log.With(logx.String("comp", "telegram")))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: 5 * time.Second,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		logs.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}

	bus := eventbus.New()
	dir := directory.New(store, log.With(logx.String("comp", "directory")))
	reg := reminder.NewRegistry()
	sched := scheduler.New(reg, bus, log.With(logx.String("comp", "scheduler")))

	parser := command.NewParser(cfg.Command.Prefix)
	disp := command.NewDispatcher(parser, adapter, reg, sched, dir, bus, log.With(logx.String("comp", "dispatch")))
	disp.SetOperators(cfg.Telegram.OwnerIDs)
	disp.SetOwnerOnly(cfg.Command.OwnerOnly)
	disp.SetSendDelay(sendDelay)

	a := &App{
		cfgm:    cfgm,
		logs:    logs,
		log:     log,
		adapter: adapter,
		store:   store,
		dir:     dir,
		reg:     reg,
		sched:   sched,
		disp:    disp,
		bus:     bus,
		updates: make(chan transport.Update, updateQueueSize),
	}
	if cfg.Status.Enabled {
		a.statusSrv = status.NewServer(a.Status, log.With(logx.String("comp", "status")))
	}
	return a, nil
}

// Status reports the point-in-time state exposed by the status endpoint.
func (a *App) Status() status.Snapshot {
	return status.Snapshot{
		Ready:           a.adapter.Ready(),
		Authenticated:   a.adapter.Authenticated(),
		ActiveReminders: a.reg.Count(),
	}
}

// Start brings the bot online: directory seed, transport polling, the
// scheduler, background loops and (optionally) the status listener.
func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log.With(logx.String("comp", "supervisor"))), WithCancelOnError(true))
	runCtx := a.sup.Context()

	if err := a.dir.LoadPersisted(runCtx); err != nil {
		a.log.Warn("directory seed failed", logx.Err(err))
	}

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return fmt.Errorf("transport start: %w", err)
	}
	a.sched.Start(runCtx)

	a.cfgm.SetValidator(validateConfig)
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go0("updates.dispatch", a.dispatchLoop)
	if a.store != nil {
		a.sup.Go0("delivery.audit", a.auditLoop)
	}

	if a.statusSrv != nil {
		cfg := a.cfgm.Get()
		if err := a.statusSrv.Start(cfg.Status.Addr); err != nil {
			return fmt.Errorf("status server: %w", err)
		}
	}

	a.log.Info("bot started")
	return nil
}

// Stop shuts components down in reverse dependency order. Each step gets
// whatever remains of the ctx budget.
func (a *App) Stop(ctx context.Context) error {
	var errs []error

	if a.statusSrv != nil {
		if err := a.statusSrv.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("status: %w", err))
		}
	}

	// No new firings or commands past this point.
	a.sched.Shutdown()
	if a.sup != nil {
		a.sup.Cancel()
		if err := a.sup.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("supervisor: %w", err))
		}
	}
	if err := a.adapter.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("transport: %w", err))
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	a.log.Info("bot stopped")
	_ = a.logs.Close()
	return errors.Join(errs...)
}

// dispatchLoop consumes transport updates: every chat is recorded in the
// directory, and command replies go back to the originating chat.
func (a *App) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case up := <-a.updates:
			switch up.Kind {
			case transport.UpdateMessage:
				if up.Message == nil {
					continue
				}
				m := up.Message
				a.dir.Observe(ctx, transport.ChatInfo{ID: m.ChatID, Name: m.ChatName, IsGroup: m.IsGroup})

				reply := a.disp.HandleText(ctx, m)
				if reply == "" {
					continue
				}
				_, err := a.adapter.SendText(ctx, transport.ChatTarget{ChatID: m.ChatID}, reply, &transport.SendOptions{DisablePreview: true})
				if err != nil {
					a.log.Warn("reply send failed", logx.Int64("chat", m.ChatID), logx.Err(err))
				}
			case transport.UpdateChatSeen:
				if up.Chat != nil {
					a.dir.Observe(ctx, *up.Chat)
				}
			}
		}
	}
}

// reloadLoop applies hot-reloadable settings from validated config
// updates. The command prefix and transport token stay fixed until
// restart.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok || cfg == nil {
				return
			}
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
				Chat: logx.ChatConfig{
					Enabled:    cfg.Logging.Chat.Enabled,
					MinLevel:   cfg.Logging.Chat.MinLevel,
					RatePerSec: cfg.Logging.Chat.RatePerSec,
				},
			})
			a.logs.SetChatTarget(cfg.Telegram.OpsChat)

			a.disp.SetOperators(cfg.Telegram.OwnerIDs)
			a.disp.SetOwnerOnly(cfg.Command.OwnerOnly)
			if delay, err := cfg.Command.SendDelayOr(500 * time.Millisecond); err == nil {
				a.disp.SetSendDelay(delay)
			}
			a.log.Info("runtime settings applied",
				logx.String("level", cfg.Logging.Level),
				logx.Int("operators", len(cfg.Telegram.OwnerIDs)),
				logx.Bool("owner_only", cfg.Command.OwnerOnly))
		}
	}
}

// auditLoop mirrors firing and delivery-failure events into the
// deliveries table. Best-effort: storage errors are logged, not fatal.
func (a *App) auditLoop(ctx context.Context) {
	events, unsub := a.bus.Subscribe(64)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			re, isReminder := ev.Data.(eventbus.ReminderEvent)
			if !isReminder {
				continue
			}

			var entry storage.DeliveryEntry
			switch ev.Type {
			case eventbus.EventReminderFired:
				entry = storage.DeliveryEntry{
					At:         ev.Time,
					ReminderID: re.ID,
					Kind:       re.Kind,
					OK:         boolToCount(re.Error == ""),
					Fail:       boolToCount(re.Error != ""),
					Error:      re.Error,
					TookMS:     re.Took.Milliseconds(),
				}
			case eventbus.EventDeliveryFailed:
				entry = storage.DeliveryEntry{
					At:         ev.Time,
					ReminderID: re.ID,
					Kind:       re.Kind,
					Targets:    fmt.Sprintf("%d", re.Chat),
					Fail:       1,
					Error:      re.Error,
				}
			default:
				continue
			}

			wctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := a.store.AppendDelivery(wctx, entry)
			cancel()
			if err != nil {
				a.log.Warn("delivery audit write failed", logx.Int64("id", re.ID), logx.Err(err))
			}
		}
	}
}

// validateConfig gates hot reloads: reject configs that would break the
// running process before they are committed.
func validateConfig(ctx context.Context, cfg *config.Config) error {
	if cfg.Telegram.Token == "" {
		return errors.New("telegram.token must not be empty")
	}
	if _, err := cfg.Telegram.PollTimeoutOr(10 * time.Second); err != nil {
		return err
	}
	if _, err := cfg.Command.SendDelayOr(500 * time.Millisecond); err != nil {
		return err
	}
	return nil
}

func boolToCount(b bool) int {
	if b {
		return 1
	}
	return 0
}
