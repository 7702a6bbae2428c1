// Package app wires configuration, storage, transports, the violation
// monitor and its surfaces into one process with an ordered lifecycle.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cctvbot/internal/commands"
	"cctvbot/internal/config"
	"cctvbot/internal/demo"
	"cctvbot/internal/eventbus"
	"cctvbot/internal/metrics"
	"cctvbot/internal/monitor"
	"cctvbot/internal/observability/ops"
	rtsup "cctvbot/internal/runtime/supervisor"
	"cctvbot/internal/storage"
	"cctvbot/internal/transport"
	logx "cctvbot/pkg/logx"
	"cctvbot/pkg/systemd"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	tx    transports

	mon      *monitor.Monitor
	router   *commands.Router
	handlers *commands.Handlers
	gen      *demo.Generator
	ops      *ops.Server

	workers int
	updates chan transport.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateReload(cfg); err != nil {
		return nil, err
	}

	// Transports are built before the log service, which may forward to them.
	bootLog := logx.NewConsole("INFO")
	tx, err := buildTransports(cfg, bootLog)
	if err != nil {
		return nil, err
	}
	logSvc, log := logx.New(mapLogConfig(cfg), tx.sender)

	store, err := OpenStore(cfg, log)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	reg := metrics.NewRegistry()
	rec := metrics.New(cfg.Metrics.Enabled, reg)
	bus := eventbus.New()

	mc, err := MonitorConfig(cfg)
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}
	mon := monitor.New(mc, monitor.Options{
		Store:   store,
		Sender:  tx.sender,
		Log:     log,
		Bus:     bus,
		Metrics: rec,
	})

	a := &App{
		cfgm:     cfgm,
		log:      log.With(logx.String("comp", "app")),
		logs:     logSvc,
		bus:      bus,
		store:    store,
		tx:       tx,
		mon:      mon,
		gen:      demo.New(mapDemoConfig(cfg), mon, log),
		workers:  cfg.Commands.Workers,
		updates:  make(chan transport.Update, 256),
	}

	if tx.receiver != nil {
		a.router = commands.NewRouter(log, tx.receiver)
		a.handlers = commands.NewHandlers(mon, mc.DashboardURL, mc.PollInterval)
		a.router.Register(a.handlers.Commands()...)
		if d, err := config.ParseDurationField("commands.timeout", cfg.Commands.Timeout); err == nil {
			a.router.SetTimeout(d)
		}
	}

	oc, err := mapOpsConfig(cfg)
	if err != nil {
		_ = a.closeStore()
		return nil, err
	}
	opsOpts := ops.Options{
		Status: func(ctx context.Context) (any, error) { return mon.Status(ctx) },
		Health: a.health,
		// metrics.New registers nothing when disabled; /metrics still serves runtime collectors.
		Gatherer: reg,
		Metrics:  rec,
	}
	a.ops = ops.New(oc, opsOpts, log)
	return a, nil
}

func (a *App) Monitor() *monitor.Monitor { return a.mon }
func (a *App) Store() storage.Store       { return a.store }

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) health() map[string]rtsup.Snapshot {
	out := map[string]rtsup.Snapshot{}
	if a.sup != nil {
		out["app"] = a.sup.Snapshot()
	}
	return out
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	runCtx := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validateReload(cfg) })

	a.startEventLog()

	if err := a.mon.Boot(runCtx); err != nil {
		// Boot failures leave monitoring stopped; chat commands can still start it.
		a.log.Warn("monitor boot failed", logx.Err(err))
	}

	if a.tx.receiver != nil {
		if err := a.tx.receiver.Start(runCtx, a.updates); err != nil {
			return fmt.Errorf("start command receiver: %w", err)
		}
		a.sup.Go("commands.dispatch", func(c context.Context) error {
			return a.router.DispatchLoop(c, a.updates, a.workers)
		})
		a.sup.Go0("commands.menu", func(c context.Context) {
			mctx, cancel := context.WithTimeout(c, 10*time.Second)
			defer cancel()
			if err := a.tx.receiver.UpdateMenuCommands(mctx, a.router.MenuCommands()); err != nil {
				a.log.Warn("menu update failed", logx.Err(err))
			}
		})
	}

	a.ops.Start(runCtx)
	if err := a.gen.Start(runCtx); err != nil {
		a.log.Warn("demo generator not started", logx.Err(err))
	}

	a.startConfigReload()
	a.sup.Go("config.watch", func(c context.Context) error { return a.cfgm.Watch(c) })

	if ok, err := systemd.Ready(); err != nil {
		a.log.Debug("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}
	_, _ = systemd.Status(fmt.Sprintf("monitoring=%t subscribers=%d", a.mon.Active(), len(a.mon.Subscribers())))
	if iv := systemd.WatchdogInterval(); iv > 0 {
		a.sup.Go("systemd.watchdog", func(c context.Context) error {
			return systemd.RunWatchdog(c, iv, func() bool { return a.sup.Err() == nil })
		})
	}
	a.log.Info("app started",
		logx.String("transport", a.tx.sender.Name()),
		logx.Bool("commands", a.tx.receiver != nil),
		logx.Bool("monitoring", a.mon.Active()),
	)
	return nil
}

func (a *App) startConfigReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							cfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, last, cfg)
				last = cfg
			}
		}
	})
}

func (a *App) applyConfig(ctx context.Context, prev, cfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, cfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if rr := config.RestartRequired(sections); len(rr) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.String("sections", strings.Join(rr, ",")))
	}

	a.logs.Apply(mapLogConfig(cfg))

	if mc, err := MonitorConfig(cfg); err != nil {
		a.log.Warn("invalid monitor config; keeping previous", logx.Err(err))
	} else {
		a.mon.Apply(mc)
		if a.handlers != nil {
			a.handlers.Apply(mc.DashboardURL, mc.PollInterval)
		}
	}
	if a.router != nil {
		if d, err := config.ParseDurationField("commands.timeout", cfg.Commands.Timeout); err == nil {
			a.router.SetTimeout(d)
		}
	}
	if oc, err := mapOpsConfig(cfg); err != nil {
		a.log.Warn("invalid ops config; keeping previous", logx.Err(err))
	} else {
		a.ops.Reconfigure(ctx, oc)
	}
	if err := a.gen.Apply(ctx, mapDemoConfig(cfg)); err != nil {
		a.log.Warn("demo generator reconfigure failed", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.closeStore()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = systemd.Stopping()
	a.sup.Cancel()

	// Each step is bounded so one component cannot stall shutdown.
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			limit = min(limit, time.Until(dl))
		}
		if limit <= 0 {
			a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
			return
		}
		sctx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(sctx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-sctx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("demo", time.Second, func(c context.Context) error { a.gen.Stop(c); return nil })
	step("ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	if a.tx.receiver != nil {
		step("receiver", 2*time.Second, a.tx.receiver.Stop)
	}
	step("monitor", 3*time.Second, a.mon.Close)
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func (a *App) closeStore() error {
	err := a.store.Close()
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}
