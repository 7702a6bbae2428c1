package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Secrets may be left empty in the file and supplied through CCTVBOT_*
// environment variables instead (see ApplyEnv).
type Config struct {
	// Transport selects the alert sender: "telegram", "whatsapp" or "console".
	Transport string `json:"transport"`

	Storage  StorageConfig  `json:"storage"`
	Telegram TelegramConfig `json:"telegram"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Monitor  MonitorConfig  `json:"monitor"`
	Commands CommandsConfig `json:"commands"`
	Demo     DemoConfig     `json:"demo"`
	Ops      OpsConfig      `json:"ops"`
	Metrics  MetricsConfig  `json:"metrics"`
	Logging  LoggingConfig  `json:"logging"`

	// DefaultSubscribers are added by `cctvbot seed-defaults`.
	DefaultSubscribers []string `json:"default_subscribers,omitempty"`
}

// StorageConfig controls the record store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./cctv.db", "timezone": "Asia/Jakarta" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
	// Timezone stamps synthetic records.
	Timezone string `json:"timezone,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token,omitempty"`
	// PollTimeout is the long-poll timeout (default "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
	APIURL      string `json:"api_url,omitempty"`
}

// WhatsAppConfig configures the Cloud API sender. TemplateName enables the
// template tier of alert delivery.
type WhatsAppConfig struct {
	Token            string `json:"token,omitempty"`
	PhoneNumberID    string `json:"phone_number_id,omitempty"`
	APIVersion       string `json:"api_version,omitempty"`
	BaseURL          string `json:"base_url,omitempty"`
	Timeout          string `json:"timeout,omitempty"`
	TemplateName     string `json:"template_name,omitempty"`
	TemplateLanguage string `json:"template_language,omitempty"`
	RetryAttempts    int    `json:"retry_attempts,omitempty"`
	RetryDelay       string `json:"retry_delay,omitempty"`
}

// MonitorConfig controls the polling loop and alert delivery.
//
// Defaults (when fields are omitted/zero):
//   - poll_interval: "5s"
//   - resync_every: 12 cycles
//   - send_timeout: "20s"
//   - rate_per_sec: 5
type MonitorConfig struct {
	PollInterval string `json:"poll_interval,omitempty"`
	ResyncEvery  int    `json:"resync_every,omitempty"`
	StartOnBoot  bool   `json:"start_on_boot"`
	// AlertResolved alerts records that arrive already resolved (default off).
	AlertResolved bool    `json:"alert_resolved,omitempty"`
	SendTimeout   string  `json:"send_timeout,omitempty"`
	RatePerSec    float64 `json:"rate_per_sec,omitempty"`
	Burst         int     `json:"burst,omitempty"`
	DashboardURL  string  `json:"dashboard_url,omitempty"`
}

// CommandsConfig controls inbound chat command handling.
type CommandsConfig struct {
	Enabled bool   `json:"enabled"`
	Workers int    `json:"workers,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

// DemoConfig schedules synthetic records. Schedule accepts a cron spec,
// "@every 10m", a Go duration or HH:MM.
type DemoConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// OpsConfig controls the ops HTTP server.
//
// Security note:
//   - Prefer binding to localhost (default "127.0.0.1:9477").
//   - A non-loopback address needs a token or an explicit allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // do not log
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	Pprof       bool   `json:"pprof,omitempty"`
	PprofPrefix string `json:"pprof_prefix,omitempty"`

	StatusCacheTTL string `json:"status_cache_ttl,omitempty"`
	CacheSizeMB    int    `json:"cache_size_mb,omitempty"`

	// WriteTimeout defaults to 0 so /debug/pprof/profile can run 30s+.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type MetricsConfig struct {
	Enabled bool `json:"enabled"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// LoggingChat forwards WARN+ lines to an ops chat through the alert sender.
type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}
