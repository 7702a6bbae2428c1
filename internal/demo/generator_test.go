package demo

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"cctvbot/internal/storage"
	logx "cctvbot/pkg/logx"
)

type countingInserter struct {
	n    atomic.Int64
	fail bool
}

func (c *countingInserter) InsertDemoRecord(ctx context.Context) (storage.Violation, error) {
	c.n.Add(1)
	if c.fail {
		return storage.Violation{}, errors.New("store down")
	}
	return storage.Violation{ID: "demo"}, nil
}

func waitRuns(t *testing.T, g *Generator, want uint64) {
	t.Helper()
	deadline := time.Now().Add(4 * time.Second)
	for g.Runs() < want {
		if time.Now().After(deadline) {
			t.Fatalf("runs = %d, want >= %d", g.Runs(), want)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestGeneratorInsertsOnInterval(t *testing.T) {
	ins := &countingInserter{}
	g := New(Config{Enabled: true, Schedule: "every:1s", Timezone: "Asia/Jakarta"}, ins, logx.Nop())
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { g.Stop(context.Background()) })

	if g.Next().IsZero() {
		t.Fatal("next run not scheduled")
	}
	waitRuns(t, g, 1)
	if ins.n.Load() < 1 {
		t.Fatal("inserter not called")
	}
}

func TestGeneratorSurvivesInsertErrors(t *testing.T) {
	ins := &countingInserter{fail: true}
	g := New(Config{Enabled: true, Schedule: "@every 1s"}, ins, logx.Nop())
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { g.Stop(context.Background()) })
	waitRuns(t, g, 2)
}

func TestGeneratorDisabled(t *testing.T) {
	t.Parallel()
	g := New(Config{Schedule: "every:1s"}, &countingInserter{}, logx.Nop())
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !g.Next().IsZero() {
		t.Fatal("disabled generator scheduled a run")
	}
}

func TestGeneratorRejectsBadConfig(t *testing.T) {
	t.Parallel()
	bad := []Config{
		{Enabled: true, Schedule: "whenever"},
		{Enabled: true, Schedule: "*/5 * * * *", Timezone: "Mars/Olympus"},
		{Enabled: true, Schedule: "cron:61 * * * *"},
	}
	for _, cfg := range bad {
		g := New(cfg, &countingInserter{}, logx.Nop())
		if err := g.Start(context.Background()); err == nil {
			g.Stop(context.Background())
			t.Fatalf("Start(%+v) succeeded", cfg)
		}
	}
}

func TestGeneratorApply(t *testing.T) {
	t.Parallel()
	g := New(Config{Enabled: true, Schedule: "@yearly"}, &countingInserter{}, logx.Nop())
	ctx := context.Background()
	if err := g.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	first := g.Next()
	if err := g.Apply(ctx, Config{Enabled: true, Schedule: "every:1s"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if next := g.Next(); next.IsZero() || !next.Before(first) {
		t.Fatalf("next = %v, want before %v", next, first)
	}
	if err := g.Apply(ctx, Config{Enabled: false, Schedule: "every:1s"}); err != nil {
		t.Fatalf("Apply disable: %v", err)
	}
	if !g.Next().IsZero() {
		t.Fatal("generator still scheduled after disable")
	}
}
