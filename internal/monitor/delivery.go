package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"cctvbot/internal/metrics"
	"cctvbot/internal/storage"
	"cctvbot/internal/transport"
	logx "cctvbot/pkg/logx"
)

// ErrDeliveryFailed is returned when every applicable tier failed.
var ErrDeliveryFailed = errors.New("alert delivery failed")

type Tier string

const (
	TierTemplate Tier = "template"
	TierImage    Tier = "image"
	TierText     Tier = "text"
)

type strategy struct {
	tier    Tier
	applies func(transport.Sender, storage.Violation) bool
	send    func(context.Context, transport.Sender, deliveryConfig, string, storage.Violation) error
}

// strategies are tried in order until one succeeds.
var strategies = []strategy{
	{
		tier: TierTemplate,
		applies: func(s transport.Sender, _ storage.Violation) bool {
			return s.SupportsTemplates()
		},
		send: func(ctx context.Context, s transport.Sender, c deliveryConfig, to string, v storage.Violation) error {
			return s.SendTemplate(ctx, to, AlertTemplate(v, c.templateName, c.templateLanguage))
		},
	},
	{
		tier: TierImage,
		applies: func(_ transport.Sender, v storage.Violation) bool {
			return v.ImageURL != ""
		},
		send: func(ctx context.Context, s transport.Sender, _ deliveryConfig, to string, v storage.Violation) error {
			return s.SendImage(ctx, to, v.ImageURL, AlertCaption(v))
		},
	},
	{
		tier:    TierText,
		applies: func(transport.Sender, storage.Violation) bool { return true },
		send: func(ctx context.Context, s transport.Sender, c deliveryConfig, to string, v storage.Violation) error {
			return s.SendText(ctx, to, AlertText(v, c.dashboardURL))
		},
	},
}

type deliveryConfig struct {
	timeout          time.Duration
	dashboardURL     string
	templateName     string
	templateLanguage string
}

// Deliverer sends one alert to one address through the tiered strategies.
// Sends are rate limited across all recipients.
type Deliverer struct {
	sender  transport.Sender
	log     logx.Logger
	metrics metrics.Recorder

	mu      sync.Mutex
	cfg     deliveryConfig
	limiter *rate.Limiter
}

func NewDeliverer(sender transport.Sender, cfg Config, log logx.Logger, rec metrics.Recorder) *Deliverer {
	if log.IsZero() {
		log = logx.Nop()
	}
	if rec == nil {
		rec = metrics.Nop()
	}
	d := &Deliverer{sender: sender, log: log.With(logx.String("comp", "delivery")), metrics: rec}
	d.Apply(cfg)
	return d
}

func (d *Deliverer) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = deliveryConfig{
		timeout:          cfg.SendTimeout,
		dashboardURL:     cfg.DashboardURL,
		templateName:     cfg.TemplateName,
		templateLanguage: cfg.TemplateLanguage,
	}
	if d.limiter == nil {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst)
		return
	}
	d.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
	d.limiter.SetBurst(cfg.Burst)
}

// Deliver returns the tier that succeeded, or an error wrapping
// ErrDeliveryFailed with every tier's failure.
func (d *Deliverer) Deliver(ctx context.Context, v storage.Violation, to string) (Tier, error) {
	d.mu.Lock()
	cfg := d.cfg
	lim := d.limiter
	d.mu.Unlock()

	if d.sender == nil {
		return "", fmt.Errorf("%w: no transport configured", ErrDeliveryFailed)
	}

	var errs []error
	for _, st := range strategies {
		if !st.applies(d.sender, v) {
			continue
		}
		if err := lim.Wait(ctx); err != nil {
			errs = append(errs, err)
			break
		}
		callCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
		err := st.send(callCtx, d.sender, cfg, to, v)
		cancel()
		if err == nil {
			d.metrics.IncDeliveries(string(st.tier), "ok")
			return st.tier, nil
		}
		d.metrics.IncDeliveries(string(st.tier), "failed")
		d.log.Warn("alert tier failed",
			logx.String("tier", string(st.tier)),
			logx.String("to", to),
			logx.String("case", CaseID(v)),
			logx.Err(err),
		)
		errs = append(errs, fmt.Errorf("%s: %w", st.tier, err))
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("%w: %w", ErrDeliveryFailed, errors.Join(errs...))
}
