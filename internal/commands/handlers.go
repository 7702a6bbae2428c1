package commands

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"cctvbot/internal/monitor"
	"cctvbot/internal/storage"
	logx "cctvbot/pkg/logx"
)

// Monitor is the subset of *monitor.Monitor the chat commands use.
type Monitor interface {
	StartMonitoring(ctx context.Context, addr string) (bool, error)
	StopMonitoring(ctx context.Context, addr string) (bool, error)
	Status(ctx context.Context) (monitor.Status, error)
	UpdateResolved(ctx context.Context, id string, resolved bool) (bool, error)
	InsertDemoRecord(ctx context.Context) (storage.Violation, error)
	Unresolved(ctx context.Context, limit int) ([]storage.Violation, int, error)
	Subscribers() []string
	Active() bool
}

const unresolvedPreview = 3

// Handlers implements the chat command set on top of a Monitor.
type Handlers struct {
	mon          Monitor
	dashboardURL atomic.Value // string
	pollInterval atomic.Int64 // time.Duration
}

func NewHandlers(mon Monitor, dashboardURL string, pollInterval time.Duration) *Handlers {
	h := &Handlers{mon: mon}
	h.Apply(dashboardURL, pollInterval)
	return h
}

// Apply updates the reloadable reply settings.
func (h *Handlers) Apply(dashboardURL string, pollInterval time.Duration) {
	h.dashboardURL.Store(strings.TrimRight(dashboardURL, "/"))
	h.pollInterval.Store(int64(pollInterval))
}

func (h *Handlers) dashboard() string {
	s, _ := h.dashboardURL.Load().(string)
	return s
}

func (h *Handlers) subscribed(addr string) bool {
	return slices.Contains(h.mon.Subscribers(), addr)
}

// Commands returns the command table.
func (h *Handlers) Commands() []Command {
	return []Command{
		{Name: "start", Description: "Subscribe this chat and list open violations", Handle: h.start},
		{Name: "monitor", Description: "Start real-time violation alerts", Handle: h.monitor},
		{Name: "stop", Description: "Stop alerts for this chat", Handle: h.stop},
		{Name: "status", Description: "Violation statistics and monitoring state", Handle: h.status},
		{Name: "demo", Description: "Insert an example violation", Handle: h.demo},
		{Name: "resolve", Usage: "resolve <case_id>", Description: "Mark a violation as resolved", Handle: h.resolve(true)},
		{Name: "reopen", Usage: "reopen <case_id>", Description: "Mark a violation as unresolved", Handle: h.resolve(false)},
		{Name: "help", Description: "Show the command list", Handle: h.help},
	}
}

func (h *Handlers) start(ctx context.Context, req *Request) error {
	if h.mon.Active() && h.subscribed(req.Address) {
		if err := req.Reply(ctx, "Hi! 🚨 CCTV Violation Monitoring Bot is already active for this chat."); err != nil {
			return err
		}
	} else {
		started, err := h.mon.StartMonitoring(ctx, req.Address)
		if err != nil {
			return h.replyStartError(ctx, req, err)
		}
		line := "📱 NOTIFICATIONS ENABLED FOR THIS CHAT"
		if started {
			line = "🔔 MONITORING SYSTEM INITIALIZED"
		}
		if err := req.Reply(ctx, "Hi! 🚨 CCTV Violation Monitoring Bot is active.\n\n"+line); err != nil {
			return err
		}
	}

	open, total, err := h.mon.Unresolved(ctx, unresolvedPreview)
	if err != nil {
		req.Logger.Warn("list unresolved failed", logx.Err(err))
		return req.Reply(ctx, "⚠️ Could not load open violations right now.")
	}
	if total == 0 {
		return req.Reply(ctx, "✅ No unresolved violations at the moment.")
	}
	if err := req.Reply(ctx, fmt.Sprintf("📋 Current unresolved violations: %d", total)); err != nil {
		return err
	}
	for _, v := range open {
		if err := req.Reply(ctx, h.caseSummary(v)); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handlers) monitor(ctx context.Context, req *Request) error {
	if h.mon.Active() && h.subscribed(req.Address) {
		return req.Reply(ctx, "🔔 Monitoring system is already active for this chat!")
	}
	started, err := h.mon.StartMonitoring(ctx, req.Address)
	if err != nil {
		return h.replyStartError(ctx, req, err)
	}
	st, _ := h.mon.Status(ctx)
	every := time.Duration(h.pollInterval.Load())
	if started {
		return req.Reply(ctx, fmt.Sprintf("🔔 MONITORING SYSTEM STARTED\n\n"+
			"✅ Now watching for new violations\n"+
			"📊 Real-time notifications enabled for this chat\n"+
			"⏱️ Checking every %s\n\n"+
			"📈 Currently tracking %d existing records\n"+
			"Use 'demo' to test with an example violation!", every, st.LastRecordCount))
	}
	return req.Reply(ctx, fmt.Sprintf("🔔 NOTIFICATIONS ENABLED\n\n"+
		"✅ Added this chat to the running monitor\n"+
		"⏱️ Checking every %s\n\n"+
		"📈 Currently tracking %d existing records", every, st.LastRecordCount))
}

func (h *Handlers) replyStartError(ctx context.Context, req *Request, err error) error {
	if errors.Is(err, monitor.ErrInvalidAddress) {
		return req.Reply(ctx, "❌ This chat cannot receive alerts (unsupported address).\n"+
			"Group chats are not supported; message the bot directly.")
	}
	_ = req.Reply(ctx, "⚠️ Monitoring could not start right now. Please try again.")
	return err
}

func (h *Handlers) stop(ctx context.Context, req *Request) error {
	// Persisted subscribers are loaded at boot, so a chat can be subscribed
	// while the loop is stopped.
	if !h.subscribed(req.Address) {
		return req.Reply(ctx, "🔕 Monitoring system is not active for this chat!")
	}
	wasActive := h.mon.Active()
	global, err := h.mon.StopMonitoring(ctx, req.Address)
	if err != nil {
		_ = req.Reply(ctx, "⚠️ Could not stop notifications right now.")
		return err
	}
	if global && wasActive {
		return req.Reply(ctx, "🔕 MONITORING SYSTEM STOPPED\n\n"+
			"❌ Violation monitoring disabled globally\n"+
			"📵 All real-time notifications paused")
	}
	if !wasActive {
		return req.Reply(ctx, "🔕 NOTIFICATIONS DISABLED\n\n"+
			"❌ This chat will no longer receive notifications")
	}
	return req.Reply(ctx, fmt.Sprintf("🔕 NOTIFICATIONS DISABLED\n\n"+
		"❌ This chat will no longer receive notifications\n"+
		"📊 Monitoring continues for %d other chat(s)", len(h.mon.Subscribers())))
}

func (h *Handlers) status(ctx context.Context, req *Request) error {
	st, err := h.mon.Status(ctx)
	if err != nil {
		req.Logger.Warn("status failed", logx.Err(err))
		return req.Reply(ctx, "⚠️ Violation records are unavailable right now. Try again shortly.")
	}
	return req.Reply(ctx, StatusText(st, h.subscribed(req.Address), h.dashboard()))
}

// StatusText renders a monitor status for chat replies.
func StatusText(st monitor.Status, subscribed bool, dashboardURL string) string {
	var b strings.Builder
	b.WriteString("📊 VIOLATION MONITORING STATUS\n\n")
	fmt.Fprintf(&b, "🚨 Total Violations: %d\n", st.TotalCount)
	fmt.Fprintf(&b, "⚠️ Unresolved: %d\n", st.UnresolvedCount)
	fmt.Fprintf(&b, "✅ Resolved: %d\n", st.ResolvedCount)
	fmt.Fprintf(&b, "📈 Resolution Rate: %.1f%%\n\n", st.ResolutionRatePercent)
	fmt.Fprintf(&b, "🔔 Monitoring: %s\n", onOff(st.MonitoringActive, "Active", "Inactive"))
	fmt.Fprintf(&b, "📱 Active Subscribers: %d\n", st.SubscriberCount)
	fmt.Fprintf(&b, "💬 This Chat: %s\n", onOff(subscribed, "Subscribed", "Not Subscribed"))
	if dashboardURL != "" {
		fmt.Fprintf(&b, "\n🔗 Web Interface: %s\n", dashboardURL)
	}
	b.WriteString("\nType 'help' for available commands.")
	return b.String()
}

func (h *Handlers) demo(ctx context.Context, req *Request) error {
	v, err := h.mon.InsertDemoRecord(ctx)
	if err != nil {
		_ = req.Reply(ctx, "❌ Failed to add example violation")
		return err
	}
	msg := fmt.Sprintf("✅ Example violation added (case %s).", v.ID)
	if h.mon.Active() {
		msg += "\n⏱️ Subscribers will be alerted on the next check."
	} else {
		msg += "\nℹ️ Monitoring is not running; send 'monitor' to receive alerts."
	}
	msg += fmt.Sprintf("\n📝 Type 'resolve %s' to test resolution.", v.ID)
	return req.Reply(ctx, msg)
}

func (h *Handlers) resolve(resolved bool) HandlerFunc {
	verb, state := "resolve", "RESOLVED"
	if !resolved {
		verb, state = "reopen", "UNRESOLVED"
	}
	return func(ctx context.Context, req *Request) error {
		if len(req.Args) != 1 || strings.TrimSpace(req.Args[0]) == "" {
			return req.Reply(ctx, fmt.Sprintf("❌ Invalid format. Use: %s [case_id]", verb))
		}
		id := strings.TrimSpace(req.Args[0])
		ok, err := h.mon.UpdateResolved(ctx, id, resolved)
		if err != nil {
			_ = req.Reply(ctx, fmt.Sprintf("❌ Failed to update Case ID %s. Please try again or use the web interface.", id))
			return err
		}
		if !ok {
			return req.Reply(ctx, fmt.Sprintf("❌ Case ID %s was not found.", id))
		}
		msg := fmt.Sprintf("✅ Case ID %s has been marked as %s.", id, state)
		if link := monitor.CaseLink(h.dashboard(), storage.Violation{ID: id}); link != "" {
			msg += "\n\n🔗 View updated case: " + link
		}
		return req.Reply(ctx, msg)
	}
}

func (h *Handlers) help(ctx context.Context, req *Request) error {
	var b strings.Builder
	b.WriteString("🚨 CCTV Violation Monitoring Bot\n\nAvailable Commands:\n")
	for _, c := range h.Commands() {
		name := c.Name
		if c.Usage != "" {
			name = c.Usage
		}
		fmt.Fprintf(&b, "• %s - %s\n", name, c.Description)
	}
	if d := h.dashboard(); d != "" {
		fmt.Fprintf(&b, "\n🔗 Web Interface: %s\nEvery alert links straight to its case.", d)
	}
	return req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
}

func (h *Handlers) caseSummary(v storage.Violation) string {
	status := onOff(v.Resolved, "✅ Resolved", "❌ Unresolved")
	var b strings.Builder
	fmt.Fprintf(&b, "🆔 Case ID: %s\n", monitor.CaseID(v))
	fmt.Fprintf(&b, "⏰ Time: %s\n", monitor.TimeLabel(v))
	fmt.Fprintf(&b, "🏭 Area: %s\n", v.FactoryArea)
	fmt.Fprintf(&b, "🔍 Section: %s\n", v.InspectionSection)
	fmt.Fprintf(&b, "⚠️ Violation: %s\n", v.ViolationType)
	fmt.Fprintf(&b, "📋 Status: %s\n", status)
	if link := monitor.CaseLink(h.dashboard(), v); link != "" {
		fmt.Fprintf(&b, "🔗 Review Case: %s\n", link)
	}
	fmt.Fprintf(&b, "\nReply with: 'resolve %s' to mark as resolved", monitor.CaseID(v))
	return b.String()
}

func onOff(b bool, yes, no string) string {
	if b {
		return yes
	}
	return no
}
