package monitor

import "time"

type Config struct {
	// PollInterval is the fixed delay between cycles.
	PollInterval time.Duration
	// ResyncEvery reloads the subscriber registry every N cycles.
	ResyncEvery int
	// StartOnBoot starts polling at boot when subscribers are persisted.
	StartOnBoot bool
	// AlertResolved also alerts records that arrive already marked resolved.
	// By default they are marked seen silently.
	AlertResolved bool

	SendTimeout time.Duration
	// RatePerSec and Burst bound outbound sends across all recipients.
	RatePerSec float64
	Burst      int

	DashboardURL     string
	TemplateName     string
	TemplateLanguage string
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.ResyncEvery <= 0 {
		c.ResyncEvery = 12
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 20 * time.Second
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 5
	}
	if c.Burst <= 0 {
		c.Burst = max(1, int(c.RatePerSec))
	}
	if c.TemplateLanguage == "" {
		c.TemplateLanguage = "en"
	}
	return c
}
