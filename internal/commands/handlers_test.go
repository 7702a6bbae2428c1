package commands

import (
	"context"
	"strings"
	"testing"
	"time"

	"cctvbot/internal/monitor"
	"cctvbot/internal/storage"
	"cctvbot/internal/transport/console"
	logx "cctvbot/pkg/logx"
)

const chat = 6581899220

type fixture struct {
	store *storage.Memory
	mon   *monitor.Monitor
	out   *console.Sender
	r     *Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := storage.NewMemory(storage.Config{Timezone: "Asia/Jakarta"}, logx.Nop())
	out := console.New(logx.Nop(), false)
	mon := monitor.New(monitor.Config{PollInterval: time.Hour, RatePerSec: 1000}, monitor.Options{Store: st, Sender: out})
	t.Cleanup(func() { _ = mon.Close(context.Background()) })

	r := NewRouter(logx.Nop(), out)
	r.Register(NewHandlers(mon, "https://dash.example.com", 5*time.Second).Commands()...)
	return &fixture{store: st, mon: mon, out: out, r: r}
}

func (f *fixture) send(t *testing.T, text string) []string {
	t.Helper()
	before := len(f.out.History())
	if err := f.r.Handle(context.Background(), textUpdate(chat, text, false)); err != nil {
		t.Fatalf("%s: %v", text, err)
	}
	var replies []string
	for _, m := range f.out.History()[before:] {
		replies = append(replies, m.Text)
	}
	return replies
}

func (f *fixture) add(t *testing.T, id string, resolved bool) {
	t.Helper()
	_, err := f.store.InsertViolation(context.Background(), storage.Violation{
		ID: id, Timestamp: "10/18/26 08:15 AM", CreationTimezone: "Asia/Jakarta",
		FactoryArea: "KP2", InspectionSection: "Shower", ViolationType: "No boots", Resolved: resolved,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestStartListsUnresolved(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		f.add(t, id, id == "a")
	}

	replies := f.send(t, "start")
	if len(replies) != 5 {
		t.Fatalf("replies = %q", replies)
	}
	if !strings.Contains(replies[0], "MONITORING SYSTEM INITIALIZED") {
		t.Fatalf("greeting = %q", replies[0])
	}
	if replies[1] != "📋 Current unresolved violations: 4" {
		t.Fatalf("count = %q", replies[1])
	}
	if !strings.Contains(replies[2], "🆔 Case ID: b") || !strings.Contains(replies[2], "https://dash.example.com/?case_id=b") {
		t.Fatalf("summary = %q", replies[2])
	}
	if !f.mon.Active() {
		t.Fatal("start should begin monitoring")
	}

	replies = f.send(t, "start")
	if !strings.Contains(replies[0], "already active") {
		t.Fatalf("second start = %q", replies[0])
	}
}

func TestMonitorAndStop(t *testing.T) {
	f := newFixture(t)
	replies := f.send(t, "/monitor")
	if len(replies) != 1 || !strings.Contains(replies[0], "MONITORING SYSTEM STARTED") || !strings.Contains(replies[0], "5s") {
		t.Fatalf("monitor = %q", replies)
	}
	if r := f.send(t, "monitor"); !strings.Contains(r[0], "already active") {
		t.Fatalf("monitor again = %q", r)
	}

	replies = f.send(t, "stop")
	if !strings.Contains(replies[0], "MONITORING SYSTEM STOPPED") {
		t.Fatalf("stop = %q", replies)
	}
	if f.mon.Active() {
		t.Fatal("monitor should be stopped")
	}
	if r := f.send(t, "stop"); !strings.Contains(r[0], "not active") {
		t.Fatalf("stop again = %q", r)
	}
}

func TestStopWhileLoopStopped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.AddAddress(ctx, "6581899220"); err != nil {
		t.Fatal(err)
	}
	// start_on_boot is off: the registry is loaded but the loop stays stopped.
	if err := f.mon.Boot(ctx); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if f.mon.Active() {
		t.Fatal("loop should not start without start_on_boot")
	}

	replies := f.send(t, "stop")
	if len(replies) != 1 || !strings.Contains(replies[0], "NOTIFICATIONS DISABLED") {
		t.Fatalf("stop = %q", replies)
	}
	if active, _ := f.store.ListActiveAddresses(ctx); len(active) != 0 {
		t.Fatalf("store still active: %v", active)
	}
	if subs := f.mon.Subscribers(); len(subs) != 0 {
		t.Fatalf("registry = %v", subs)
	}
	if r := f.send(t, "stop"); !strings.Contains(r[0], "not active") {
		t.Fatalf("stop again = %q", r)
	}
}

func TestGroupChatCannotSubscribe(t *testing.T) {
	f := newFixture(t)
	before := len(f.out.History())
	if err := f.r.Handle(context.Background(), textUpdate(-1001234567890, "/start", true)); err != nil {
		t.Fatalf("start: %v", err)
	}
	replies := f.out.History()[before:]
	if len(replies) != 1 || !strings.Contains(replies[0].Text, "Group chats are not supported") {
		t.Fatalf("replies = %+v", replies)
	}
	if f.mon.Active() || len(f.mon.Subscribers()) != 0 {
		t.Fatal("group chat must not be registered")
	}
}

func TestStatusReply(t *testing.T) {
	f := newFixture(t)
	f.add(t, "a", true)
	for _, id := range []string{"b", "c", "d"} {
		f.add(t, id, false)
	}
	replies := f.send(t, "/status@cctv_bot")
	if len(replies) != 1 {
		t.Fatalf("replies = %q", replies)
	}
	for _, want := range []string{"Total Violations: 4", "Unresolved: 3", "Resolution Rate: 25.0%", "Monitoring: Inactive", "This Chat: Not Subscribed"} {
		if !strings.Contains(replies[0], want) {
			t.Fatalf("status missing %q:\n%s", want, replies[0])
		}
	}
}

func TestResolveAndReopen(t *testing.T) {
	f := newFixture(t)
	f.add(t, "x1", false)

	if r := f.send(t, "resolve x1"); !strings.Contains(r[0], "marked as RESOLVED") {
		t.Fatalf("resolve = %q", r)
	}
	open, _ := f.store.FetchUnresolved(context.Background())
	if len(open) != 0 {
		t.Fatalf("unresolved = %+v", open)
	}
	if r := f.send(t, "reopen x1"); !strings.Contains(r[0], "UNRESOLVED") {
		t.Fatalf("reopen = %q", r)
	}
	if r := f.send(t, "resolve nope"); !strings.Contains(r[0], "not found") {
		t.Fatalf("resolve unknown = %q", r)
	}
	if r := f.send(t, "resolve"); !strings.Contains(r[0], "Invalid format") {
		t.Fatalf("resolve without id = %q", r)
	}
}

func TestDemoAndHelp(t *testing.T) {
	f := newFixture(t)
	r := f.send(t, "demo")
	if len(r) != 1 || !strings.Contains(r[0], "Example violation added") {
		t.Fatalf("demo = %q", r)
	}
	all, _ := f.store.FetchAll(context.Background())
	if len(all) != 1 || all[0].FactoryArea != "KP2,Jabar,Indonesia" {
		t.Fatalf("records = %+v", all)
	}

	help := f.send(t, "help")
	for _, want := range []string{"resolve <case_id>", "status", "demo", "Web Interface"} {
		if !strings.Contains(help[0], want) {
			t.Fatalf("help missing %q:\n%s", want, help[0])
		}
	}
}

func TestStatusText(t *testing.T) {
	t.Parallel()
	txt := StatusText(monitor.Status{TotalCount: 3, ResolvedCount: 1, UnresolvedCount: 2, ResolutionRatePercent: 100.0 / 3, MonitoringActive: true, SubscriberCount: 2}, true, "")
	if !strings.Contains(txt, "Resolution Rate: 33.3%") || !strings.Contains(txt, "Monitoring: Active") || strings.Contains(txt, "Web Interface") {
		t.Fatalf("status text:\n%s", txt)
	}
}
