// Package demo inserts synthetic violation records on a schedule so that
// alert delivery can be exercised end to end without camera input.
package demo

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"cctvbot/internal/storage"
	logx "cctvbot/pkg/logx"
)

type Config struct {
	Enabled  bool
	Schedule string
	Timezone string
	Timeout  time.Duration
}

// Inserter creates one synthetic record.
type Inserter interface {
	InsertDemoRecord(ctx context.Context) (storage.Violation, error)
}

type Generator struct {
	ins    Inserter
	log    logx.Logger
	parser cron.Parser

	mu     sync.Mutex
	cfg    Config
	c      *cron.Cron
	entry  cron.EntryID
	ctx    context.Context
	cancel context.CancelFunc

	runs   atomic.Uint64
	errors atomic.Uint64
}

func New(cfg Config, ins Inserter, log logx.Logger) *Generator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Generator{
		ins: ins,
		log: log.With(logx.String("comp", "demo")),
		// SecondOptional allows both 5-field and 6-field (with seconds) specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		cfg:    cfg,
	}
}

// Start schedules inserts when enabled. Calling Start while running is a no-op.
func (g *Generator) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.c != nil || !g.cfg.Enabled {
		return nil
	}
	return g.startLocked(ctx)
}

func (g *Generator) startLocked(ctx context.Context) error {
	cfg := g.cfg
	sch, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return fmt.Errorf("demo schedule: %w", err)
	}
	loc := time.UTC
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return fmt.Errorf("demo timezone: %w", err)
		}
	}

	var spec cron.Schedule
	switch sch.Kind {
	case ScheduleCron:
		if spec, err = g.parser.Parse(sch.Cron); err != nil {
			return fmt.Errorf("demo schedule %q: %w", sch.Cron, err)
		}
	default:
		spec = cron.Every(sch.Every)
	}

	c := cron.New(
		cron.WithParser(g.parser),
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	g.ctx, g.cancel = context.WithCancel(context.WithoutCancel(ctx))
	runCtx, timeout := g.ctx, cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	// Jobs must not take g.mu: Stop holds it while waiting for them.
	g.entry = c.Schedule(spec, cron.FuncJob(func() { g.runOnce(runCtx, timeout) }))
	g.c = c
	c.Start()
	g.log.Info("demo generator started", logx.String("schedule", cfg.Schedule), logx.String("tz", loc.String()))
	return nil
}

func (g *Generator) Stop(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopLocked(ctx)
}

func (g *Generator) stopLocked(ctx context.Context) {
	if g.c == nil {
		return
	}
	g.cancel()
	select {
	case <-g.c.Stop().Done():
	case <-ctx.Done():
	}
	g.c = nil
	g.log.Info("demo generator stopped")
}

// Apply reschedules when the schedule, timezone or enabled flag changed.
func (g *Generator) Apply(ctx context.Context, cfg Config) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	old := g.cfg
	g.cfg = cfg
	running := g.c != nil
	if running && old == cfg {
		return nil
	}
	if running {
		g.stopLocked(ctx)
	}
	if !cfg.Enabled {
		return nil
	}
	return g.startLocked(ctx)
}

// Next returns the next scheduled insert, or zero when not running.
func (g *Generator) Next() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.c == nil {
		return time.Time{}
	}
	return g.c.Entry(g.entry).Next
}

func (g *Generator) Runs() uint64 { return g.runs.Load() }

func (g *Generator) runOnce(ctx context.Context, timeout time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			g.errors.Add(1)
			g.log.Error("demo insert panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := g.ins.InsertDemoRecord(cctx)
	g.runs.Add(1)
	if err != nil {
		g.errors.Add(1)
		g.log.Warn("demo insert failed", logx.Err(err))
		return
	}
	g.log.Info("demo record inserted", logx.String("case", v.ID))
}
