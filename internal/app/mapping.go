package app

import (
	"fmt"
	"strings"
	"time"

	"cctvbot/internal/config"
	"cctvbot/internal/demo"
	"cctvbot/internal/monitor"
	"cctvbot/internal/observability/ops"
	"cctvbot/internal/storage"
	"cctvbot/internal/transport"
	"cctvbot/internal/transport/console"
	"cctvbot/internal/transport/telegram"
	"cctvbot/internal/transport/whatsapp"
	logx "cctvbot/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      sc.Driver,
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: busy,
		Timezone:    sc.Timezone,
	}, nil
}

// OpenStore opens the configured record store.
func OpenStore(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	return storage.Open(sc, log.With(logx.String("comp", "storage")))
}

// MonitorConfig maps the monitor section (plus the WhatsApp template, which
// drives the template tier).
func MonitorConfig(cfg *config.Config) (monitor.Config, error) {
	mc := cfg.Monitor
	interval, err := config.ParseDurationField("monitor.poll_interval", mc.PollInterval)
	if err != nil {
		return monitor.Config{}, err
	}
	sendTimeout, err := config.ParseDurationField("monitor.send_timeout", mc.SendTimeout)
	if err != nil {
		return monitor.Config{}, err
	}
	return monitor.Config{
		PollInterval:     interval,
		ResyncEvery:      mc.ResyncEvery,
		StartOnBoot:      mc.StartOnBoot,
		AlertResolved:    mc.AlertResolved,
		SendTimeout:      sendTimeout,
		RatePerSec:       mc.RatePerSec,
		Burst:            mc.Burst,
		DashboardURL:     strings.TrimRight(strings.TrimSpace(mc.DashboardURL), "/"),
		TemplateName:     cfg.WhatsApp.TemplateName,
		TemplateLanguage: cfg.WhatsApp.TemplateLanguage,
	}, nil
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	pt, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pt, APIURL: cfg.Telegram.APIURL}, nil
}

func mapWhatsAppConfig(cfg *config.Config) (whatsapp.Config, error) {
	wc := cfg.WhatsApp
	timeout, err := config.ParseDurationField("whatsapp.timeout", wc.Timeout)
	if err != nil {
		return whatsapp.Config{}, err
	}
	delay, err := config.ParseDurationField("whatsapp.retry_delay", wc.RetryDelay)
	if err != nil {
		return whatsapp.Config{}, err
	}
	return whatsapp.Config{
		Token:            wc.Token,
		PhoneNumberID:    wc.PhoneNumberID,
		APIVersion:       wc.APIVersion,
		BaseURL:          wc.BaseURL,
		Timeout:          timeout,
		TemplateName:     wc.TemplateName,
		TemplateLanguage: wc.TemplateLanguage,
		RetryAttempts:    uint(max(wc.RetryAttempts, 0)),
		RetryDelay:       delay,
	}, nil
}

// transports holds the outbound sender and, when commands are enabled, the
// Telegram adapter that receives them. They are the same value when the
// alert transport is Telegram.
type transports struct {
	sender   transport.Sender
	receiver *telegram.Adapter
}

func buildTransports(cfg *config.Config, log logx.Logger) (transports, error) {
	var (
		out transports
		tg  *telegram.Adapter
	)
	newTelegram := func() (*telegram.Adapter, error) {
		if tg != nil {
			return tg, nil
		}
		tc, err := mapTelegramConfig(cfg)
		if err != nil {
			return nil, err
		}
		tg, err = telegram.New(tc, log)
		return tg, err
	}

	switch cfg.Transport {
	case "telegram":
		a, err := newTelegram()
		if err != nil {
			return out, err
		}
		out.sender = a
	case "whatsapp":
		wc, err := mapWhatsAppConfig(cfg)
		if err != nil {
			return out, err
		}
		s, err := whatsapp.New(wc, log)
		if err != nil {
			return out, err
		}
		out.sender = s
	case "console":
		out.sender = console.New(log, false)
	default:
		return out, fmt.Errorf("unknown transport %q", cfg.Transport)
	}

	if cfg.Commands.Enabled {
		a, err := newTelegram()
		if err != nil {
			return out, fmt.Errorf("commands: %w", err)
		}
		out.receiver = a
	}
	return out, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File:    logx.FileConfig{Enabled: lc.File.Enabled, Path: lc.File.Path},
		Chat: logx.ChatConfig{
			Enabled:    lc.Chat.Enabled,
			Address:    lc.Chat.Address,
			MinLevel:   lc.Chat.MinLevel,
			RatePerSec: lc.Chat.RatePerSec,
		},
	}
}

func mapOpsConfig(cfg *config.Config) (ops.Config, error) {
	oc := cfg.Ops
	ttl, err := config.ParseDurationOrDefault("ops.status_cache_ttl", oc.StatusCacheTTL, 0)
	if err != nil {
		return ops.Config{}, err
	}
	read, err := config.ParseDurationOrDefault("ops.read_timeout", oc.ReadTimeout, 10*time.Second)
	if err != nil {
		return ops.Config{}, err
	}
	write, err := config.ParseDurationField("ops.write_timeout", oc.WriteTimeout)
	if err != nil {
		return ops.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("ops.idle_timeout", oc.IdleTimeout, 60*time.Second)
	if err != nil {
		return ops.Config{}, err
	}
	return ops.Config{
		Enabled:       oc.Enabled,
		Addr:          oc.Addr,
		Token:         oc.Token,
		AllowInsecure: oc.AllowInsecure,
		Pprof:         oc.Pprof,
		PprofPrefix:   oc.PprofPrefix,
		StatusTTL:     ttl,
		CacheSizeMB:   oc.CacheSizeMB,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, nil
}

func mapDemoConfig(cfg *config.Config) demo.Config {
	tz := cfg.Demo.Timezone
	if strings.TrimSpace(tz) == "" {
		tz = cfg.Storage.Timezone
	}
	return demo.Config{Enabled: cfg.Demo.Enabled, Schedule: cfg.Demo.Schedule, Timezone: tz}
}

// validateReload rejects a reload that the live components cannot apply.
func validateReload(cfg *config.Config) error {
	if _, err := MonitorConfig(cfg); err != nil {
		return err
	}
	if _, err := mapOpsConfig(cfg); err != nil {
		return err
	}
	if dc := mapDemoConfig(cfg); dc.Enabled {
		if _, err := demo.ParseSchedule(dc.Schedule); err != nil {
			return fmt.Errorf("demo.schedule: %w", err)
		}
		if tz := strings.TrimSpace(dc.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("demo.timezone: invalid %q: %w", tz, err)
			}
		}
	}
	return nil
}
