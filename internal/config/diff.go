package config

import (
	"reflect"
	"slices"
	"strings"

	logx "cctvbot/pkg/logx"
)

// Sections that are only read at startup. Changing them needs a restart.
var restartOnly = []string{"transport", "storage", "telegram", "whatsapp", "commands", "metrics"}

// SummarizeConfigChange returns the changed top-level sections and safe
// structured fields for logging. Secrets are never included, only whether
// they are set.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)
	set := func(s string) bool { return strings.TrimSpace(s) != "" }

	if oldCfg.Transport != newCfg.Transport {
		changed = append(changed, "transport")
		attrs = append(attrs, logx.String("transport", newCfg.Transport))
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
		)
	}
	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", set(newCfg.Telegram.Token)),
			logx.String("telegram.poll_timeout", newCfg.Telegram.PollTimeout),
		)
	}
	if oldCfg.WhatsApp != newCfg.WhatsApp {
		changed = append(changed, "whatsapp")
		attrs = append(attrs,
			logx.Bool("whatsapp.token_set", set(newCfg.WhatsApp.Token)),
			logx.String("whatsapp.template", newCfg.WhatsApp.TemplateName),
		)
	}
	if oldCfg.Monitor != newCfg.Monitor {
		changed = append(changed, "monitor")
		attrs = append(attrs,
			logx.String("monitor.poll_interval", newCfg.Monitor.PollInterval),
			logx.Int("monitor.resync_every", newCfg.Monitor.ResyncEvery),
			logx.Float64("monitor.rate_per_sec", newCfg.Monitor.RatePerSec),
			logx.Bool("monitor.dashboard_set", set(newCfg.Monitor.DashboardURL)),
		)
	}
	if oldCfg.Commands != newCfg.Commands {
		changed = append(changed, "commands")
		attrs = append(attrs, logx.Bool("commands.enabled", newCfg.Commands.Enabled))
	}
	if oldCfg.Demo != newCfg.Demo {
		changed = append(changed, "demo")
		attrs = append(attrs,
			logx.Bool("demo.enabled", newCfg.Demo.Enabled),
			logx.String("demo.schedule", newCfg.Demo.Schedule),
		)
	}
	if oldCfg.Ops != newCfg.Ops {
		changed = append(changed, "ops")
		attrs = append(attrs,
			logx.Bool("ops.enabled", newCfg.Ops.Enabled),
			logx.String("ops.addr", newCfg.Ops.Addr),
			logx.Bool("ops.token_set", set(newCfg.Ops.Token)),
			logx.Bool("ops.pprof", newCfg.Ops.Pprof),
		)
	}
	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		attrs = append(attrs, logx.Bool("metrics.enabled", newCfg.Metrics.Enabled))
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.chat", newCfg.Logging.Chat.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.DefaultSubscribers, newCfg.DefaultSubscribers) {
		changed = append(changed, "default_subscribers")
		attrs = append(attrs, logx.Int("default_subscribers.count", len(newCfg.DefaultSubscribers)))
	}
	return changed, attrs
}

// RestartRequired returns the changed sections that hot reload cannot apply.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		if slices.Contains(restartOnly, s) {
			out = append(out, s)
		}
	}
	return out
}
