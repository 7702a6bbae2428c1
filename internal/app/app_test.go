package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cctvbot/internal/config"
	"cctvbot/internal/eventbus"
	"cctvbot/internal/monitor"
	"cctvbot/internal/storage"
	logx "cctvbot/pkg/logx"
)

const testConfig = `{
  "transport": "console",
  "storage": {"driver": "memory", "timezone": "Asia/Jakarta"},
  "monitor": {"poll_interval": "20ms", "rate_per_sec": 1000, "burst": 100},
  "logging": {"level": "error"}
}`

func newTestApp(t *testing.T, body string) *App {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	a, err := NewApp(p)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	return a
}

func TestAppLifecycle(t *testing.T) {
	a := newTestApp(t, testConfig)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	mon := a.Monitor()
	started, err := mon.StartMonitoring(ctx, "6581899220")
	if err != nil || !started {
		t.Fatalf("StartMonitoring = %v, %v", started, err)
	}
	if _, err := mon.InsertDemoRecord(ctx); err != nil {
		t.Fatalf("InsertDemoRecord: %v", err)
	}

	mem := a.Store().(*storage.Memory)
	deadline := time.Now().Add(3 * time.Second)
	for {
		var delivered bool
		for _, e := range mem.Audit() {
			if e.Action == monitor.EventAlertDelivered && e.Target == "6581899220" {
				delivered = true
			}
		}
		if delivered {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no delivery audited; audit = %+v", mem.Audit())
		}
		time.Sleep(20 * time.Millisecond)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopAppStop); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if mon.Active() {
		t.Fatal("monitor still active after Stop")
	}
}

func TestNewAppRejectsBadConfig(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	body := `{"transport":"console","storage":{"driver":"memory"},"demo":{"enabled":true,"schedule":"sometimes"}}`
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewApp(p); err == nil {
		t.Fatal("NewApp accepted an invalid demo schedule")
	}
}

func TestMonitorConfigMapping(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Monitor:  config.MonitorConfig{PollInterval: "3s", DashboardURL: " https://dash.example.com/ ", RatePerSec: 2},
		WhatsApp: config.WhatsAppConfig{TemplateName: "violation_alert", TemplateLanguage: "id"},
	}
	mc, err := MonitorConfig(cfg)
	if err != nil {
		t.Fatalf("MonitorConfig: %v", err)
	}
	if mc.PollInterval != 3*time.Second || mc.DashboardURL != "https://dash.example.com" || mc.TemplateName != "violation_alert" {
		t.Fatalf("mc = %+v", mc)
	}

	cfg.Monitor.SendTimeout = "soon"
	if _, err := MonitorConfig(cfg); err == nil {
		t.Fatal("bad send_timeout accepted")
	}
}

func TestBuildTransports(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Transport: "console"}
	tx, err := buildTransports(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("buildTransports: %v", err)
	}
	if tx.sender.Name() != "console" || tx.receiver != nil {
		t.Fatalf("tx = %+v", tx)
	}

	cfg = &config.Config{Transport: "whatsapp"}
	if _, err := buildTransports(cfg, logx.Nop()); err == nil {
		t.Fatal("whatsapp without credentials accepted")
	}
}

func TestAuditEntry(t *testing.T) {
	t.Parallel()
	now := time.Now()
	e := auditEntry(eventbus.Event{
		Type: monitor.EventAlertFailed,
		Time: now,
		Data: map[string]any{"case": "abc", "address": "6581899220", "error": "boom"},
	})
	if e.OK || e.Target != "6581899220" || e.Detail != "case=abc err=boom" || !e.At.Equal(now) {
		t.Fatalf("entry = %+v", e)
	}
	e = auditEntry(eventbus.Event{Type: monitor.EventViolationResolved, Data: map[string]any{"case": "abc", "resolved": true}})
	if !e.OK || e.Target != "abc" || e.Detail != "resolved=true" {
		t.Fatalf("entry = %+v", e)
	}
}

func TestValidateReload(t *testing.T) {
	t.Parallel()
	ok := &config.Config{Demo: config.DemoConfig{Enabled: true, Schedule: "@every 1h", Timezone: "Asia/Jakarta"}}
	if err := validateReload(ok); err != nil {
		t.Fatalf("validateReload: %v", err)
	}
	bad := &config.Config{Demo: config.DemoConfig{Enabled: true, Schedule: "10m", Timezone: "Nowhere/City"}}
	if err := validateReload(bad); err == nil {
		t.Fatal("bad timezone accepted")
	}
}
