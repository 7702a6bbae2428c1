package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gookit/validate"

	"cctvbot/internal/storage"
)

// Defaults fills omitted top-level choices.
func Defaults(cfg *Config) {
	if cfg == nil {
		return
	}
	if strings.TrimSpace(cfg.Transport) == "" {
		cfg.Transport = "telegram"
	}
	cfg.Transport = strings.ToLower(strings.TrimSpace(cfg.Transport))
	if strings.TrimSpace(cfg.Storage.Driver) == "" {
		cfg.Storage.Driver = "sqlite"
	}
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if cfg.Storage.Driver == "sqlite" && strings.TrimSpace(cfg.Storage.Path) == "" {
		cfg.Storage.Path = "./cctv.db"
	}
}

// rules is the flattened view checked by gookit/validate.
type rules struct {
	Transport      string `validate:"required|in:telegram,whatsapp,console"`
	StorageDriver  string `validate:"required|in:sqlite,memory"`
	ResyncEvery    int    `validate:"min:0"`
	Burst          int    `validate:"min:0"`
	DashboardURL   string `validate:"url"`
	CommandWorkers int    `validate:"min:0|max:64"`
	RetryAttempts  int    `validate:"min:0|max:10"`
	CacheSizeMB    int    `validate:"min:0|max:512"`
	LogLevel       string `validate:"in:trace,debug,info,warn,warning,error"`
	ChatMinLevel   string `validate:"in:debug,info,warn,warning,error"`
	ChatRate       int    `validate:"min:0"`
}

// Validate checks cfg after Defaults and ApplyEnv. All problems are
// reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	r := &rules{
		Transport:      cfg.Transport,
		StorageDriver:  cfg.Storage.Driver,
		ResyncEvery:    cfg.Monitor.ResyncEvery,
		Burst:          cfg.Monitor.Burst,
		DashboardURL:   strings.TrimSpace(cfg.Monitor.DashboardURL),
		CommandWorkers: cfg.Commands.Workers,
		RetryAttempts:  cfg.WhatsApp.RetryAttempts,
		CacheSizeMB:    cfg.Ops.CacheSizeMB,
		LogLevel:       strings.ToLower(strings.TrimSpace(cfg.Logging.Level)),
		ChatMinLevel:   strings.ToLower(strings.TrimSpace(cfg.Logging.Chat.MinLevel)),
		ChatRate:       cfg.Logging.Chat.RatePerSec,
	}
	v := validate.Struct(r)
	v.StopOnError = false

	var errs []error
	if !v.Validate() {
		errs = append(errs, fmt.Errorf("invalid config: %s", v.Errors.Error()))
	}

	switch cfg.Transport {
	case "telegram":
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			errs = append(errs, errors.New("telegram.token required (or "+EnvTelegramToken+")"))
		}
	case "whatsapp":
		if strings.TrimSpace(cfg.WhatsApp.Token) == "" || strings.TrimSpace(cfg.WhatsApp.PhoneNumberID) == "" {
			errs = append(errs, errors.New("whatsapp.token and whatsapp.phone_number_id required"))
		}
	}
	if cfg.Commands.Enabled && strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("commands.enabled requires telegram.token"))
	}
	if cfg.Monitor.RatePerSec < 0 {
		errs = append(errs, errors.New("monitor.rate_per_sec must be >= 0"))
	}
	if cfg.Storage.Driver == "sqlite" && strings.TrimSpace(cfg.Storage.Path) == "" {
		errs = append(errs, errors.New("storage.path required for sqlite"))
	}
	if cfg.Demo.Enabled && strings.TrimSpace(cfg.Demo.Schedule) == "" {
		errs = append(errs, errors.New("demo.schedule required when demo.enabled"))
	}
	for _, a := range cfg.DefaultSubscribers {
		if !storage.ValidAddress(a) {
			errs = append(errs, fmt.Errorf("default_subscribers: invalid address %q", a))
		}
	}
	if cfg.Logging.Chat.Enabled && !storage.ValidAddress(strings.TrimSpace(cfg.Logging.Chat.Address)) {
		errs = append(errs, fmt.Errorf("logging.chat.address: invalid address %q", cfg.Logging.Chat.Address))
	}

	for _, d := range []struct{ path, raw string }{
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"whatsapp.timeout", cfg.WhatsApp.Timeout},
		{"whatsapp.retry_delay", cfg.WhatsApp.RetryDelay},
		{"monitor.poll_interval", cfg.Monitor.PollInterval},
		{"monitor.send_timeout", cfg.Monitor.SendTimeout},
		{"commands.timeout", cfg.Commands.Timeout},
		{"ops.status_cache_ttl", cfg.Ops.StatusCacheTTL},
		{"ops.read_timeout", cfg.Ops.ReadTimeout},
		{"ops.write_timeout", cfg.Ops.WriteTimeout},
		{"ops.idle_timeout", cfg.Ops.IdleTimeout},
	} {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
