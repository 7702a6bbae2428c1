// Package whatsapp sends alerts through the WhatsApp Cloud API.
package whatsapp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	json "github.com/goccy/go-json"

	"cctvbot/internal/transport"
	logx "cctvbot/pkg/logx"
)

// ErrRejected marks a request the API refused (4xx); it is never retried.
var ErrRejected = errors.New("whatsapp: request rejected")

const defaultBaseURL = "https://graph.facebook.com"

type Config struct {
	Token         string
	PhoneNumberID string
	APIVersion    string // default v21.0
	BaseURL       string // default https://graph.facebook.com
	Timeout       time.Duration

	// Template is used for the structured alert tier. Empty Name disables templates.
	TemplateName     string
	TemplateLanguage string

	// Each request is attempted RetryAttempts times, RetryDelay apart.
	RetryAttempts uint
	RetryDelay    time.Duration
}

type Sender struct {
	cfg      Config
	endpoint string
	client   *http.Client
	log      logx.Logger
}

var _ transport.Sender = (*Sender)(nil)

func New(cfg Config, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" || strings.TrimSpace(cfg.PhoneNumberID) == "" {
		return nil, errors.New("whatsapp token and phone number id are required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v21.0"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 2
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.TemplateLanguage == "" {
		cfg.TemplateLanguage = "en"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sender{
		cfg:      cfg,
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/" + cfg.APIVersion + "/" + cfg.PhoneNumberID + "/messages",
		client:   &http.Client{Timeout: cfg.Timeout},
		log:      log.With(logx.String("comp", "whatsapp")),
	}, nil
}

func (s *Sender) Name() string            { return "whatsapp" }
func (s *Sender) SupportsTemplates() bool { return s.cfg.TemplateName != "" }

// Cloud API request bodies.
type message struct {
	MessagingProduct string    `json:"messaging_product"`
	RecipientType    string    `json:"recipient_type"`
	To               string    `json:"to"`
	Type             string    `json:"type"`
	Text             *text     `json:"text,omitempty"`
	Image            *media    `json:"image,omitempty"`
	Video            *media    `json:"video,omitempty"`
	Template         *template `json:"template,omitempty"`
}

type text struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url"`
}

type media struct {
	Link    string `json:"link"`
	Caption string `json:"caption,omitempty"`
}

type template struct {
	Name       string      `json:"name"`
	Language   language    `json:"language"`
	Components []component `json:"components,omitempty"`
}

type language struct {
	Code string `json:"code"`
}

type component struct {
	Type       string      `json:"type"`
	SubType    string      `json:"sub_type,omitempty"`
	Index      string      `json:"index,omitempty"`
	Parameters []parameter `json:"parameters"`
}

type parameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (s *Sender) newMessage(to, kind string) message {
	return message{MessagingProduct: "whatsapp", RecipientType: "individual", To: to, Type: kind}
}

func (s *Sender) SendText(ctx context.Context, to, body string) error {
	m := s.newMessage(to, "text")
	m.Text = &text{Body: body, PreviewURL: true}
	return s.post(ctx, m)
}

// SendImage sends an image or video message with a caption, chosen by URL.
func (s *Sender) SendImage(ctx context.Context, to, url, caption string) error {
	if strings.TrimSpace(url) == "" {
		return fmt.Errorf("whatsapp: empty media url: %w", transport.ErrUnsupported)
	}
	md := &media{Link: url, Caption: caption}
	var m message
	switch transport.MediaKindOf(url) {
	case transport.MediaVideo:
		m = s.newMessage(to, "video")
		m.Video = md
	default:
		m = s.newMessage(to, "image")
		m.Image = md
	}
	return s.post(ctx, m)
}

func (s *Sender) SendTemplate(ctx context.Context, to string, tpl transport.TemplateFields) error {
	name := tpl.Name
	if name == "" {
		name = s.cfg.TemplateName
	}
	if name == "" {
		return transport.ErrUnsupported
	}
	lang := tpl.Language
	if lang == "" {
		lang = s.cfg.TemplateLanguage
	}

	body := component{Type: "body"}
	for _, p := range tpl.Params {
		body.Parameters = append(body.Parameters, parameter{Type: "text", Text: p})
	}
	comps := []component{body}
	if tpl.ButtonParam != "" {
		comps = append(comps, component{
			Type:       "button",
			SubType:    "url",
			Index:      "0",
			Parameters: []parameter{{Type: "text", Text: tpl.ButtonParam}},
		})
	}

	m := s.newMessage(to, "template")
	m.Template = &template{Name: name, Language: language{Code: lang}, Components: comps}
	return s.post(ctx, m)
}

func (s *Sender) post(ctx context.Context, m message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	// MaxDelay == Delay keeps the retry interval fixed.
	jitter := max(s.cfg.RetryDelay/4, time.Millisecond)
	return retry.Do(
		func() error { return s.send(ctx, m.Type, m.To, payload) },
		retry.Attempts(s.cfg.RetryAttempts),
		retry.Delay(s.cfg.RetryDelay),
		retry.MaxDelay(s.cfg.RetryDelay),
		retry.MaxJitter(jitter),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.log.Debug("retrying whatsapp request", logx.String("type", m.Type), logx.Int("attempt", int(n)+1), logx.Err(err))
		}),
	)
}

func (s *Sender) send(ctx context.Context, kind, to string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp %s request: %w", kind, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	s.log.Debug("whatsapp request completed",
		logx.String("type", kind),
		logx.String("to", to),
		logx.Int("status", resp.StatusCode),
		logx.Duration("dur", time.Since(start)),
	)
	if resp.StatusCode/100 == 2 {
		return nil
	}

	var ae apiError
	_ = json.Unmarshal(body, &ae)
	err = fmt.Errorf("whatsapp %s: http %d: %s (code=%d)", kind, resp.StatusCode, ae.Error.Message, ae.Error.Code)
	if resp.StatusCode/100 == 4 && resp.StatusCode != http.StatusTooManyRequests {
		return retry.Unrecoverable(fmt.Errorf("%w: %v", ErrRejected, err))
	}
	return err
}
