package config

import (
	"os"
	"strings"
)

// Environment overrides. Non-empty values replace the file value.
const (
	EnvTelegramToken   = "CCTVBOT_TELEGRAM_TOKEN"
	EnvWhatsAppToken   = "CCTVBOT_WHATSAPP_TOKEN"
	EnvWhatsAppPhoneID = "CCTVBOT_WHATSAPP_PHONE_ID"
	EnvDBPath          = "CCTVBOT_DB_PATH"
	EnvDashboardURL    = "CCTVBOT_DASHBOARD_URL"
	EnvOpsToken        = "CCTVBOT_OPS_TOKEN"
)

// ApplyEnv overlays environment overrides onto cfg. lookup defaults to
// os.LookupEnv.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if cfg == nil {
		return
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&cfg.Telegram.Token, EnvTelegramToken)
	set(&cfg.WhatsApp.Token, EnvWhatsAppToken)
	set(&cfg.WhatsApp.PhoneNumberID, EnvWhatsAppPhoneID)
	set(&cfg.Storage.Path, EnvDBPath)
	set(&cfg.Monitor.DashboardURL, EnvDashboardURL)
	set(&cfg.Ops.Token, EnvOpsToken)
}
