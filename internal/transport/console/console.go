// Package console provides a Sender that writes alerts to the log instead of
// a chat provider. It backs dry runs and local development.
package console

import (
	"context"
	"sync"

	"cctvbot/internal/transport"
	logx "cctvbot/pkg/logx"
)

// Sent is one message accepted by the console sender.
type Sent struct {
	Kind     string
	To       string
	Text     string
	URL      string
	Template transport.TemplateFields
}

type Sender struct {
	log       logx.Logger
	templates bool

	mu      sync.Mutex
	history []Sent
	limit   int
}

var _ transport.Sender = (*Sender)(nil)

// New returns a console sender. With templates=true it accepts template
// messages, which exercises the first delivery tier in dry runs.
func New(log logx.Logger, templates bool) *Sender {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sender{log: log.With(logx.String("comp", "console")), templates: templates, limit: 200}
}

func (s *Sender) Name() string            { return "console" }
func (s *Sender) SupportsTemplates() bool { return s.templates }

func (s *Sender) SendText(ctx context.Context, to, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.log.Info("text message", logx.String("to", to), logx.String("text", text))
	s.record(Sent{Kind: "text", To: to, Text: text})
	return nil
}

func (s *Sender) SendImage(ctx context.Context, to, url, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if url == "" {
		return transport.ErrUnsupported
	}
	s.log.Info("media message", logx.String("to", to), logx.String("url", url), logx.String("caption", caption))
	s.record(Sent{Kind: "image", To: to, Text: caption, URL: url})
	return nil
}

func (s *Sender) SendTemplate(ctx context.Context, to string, tpl transport.TemplateFields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.templates {
		return transport.ErrUnsupported
	}
	s.log.Info("template message", logx.String("to", to), logx.String("template", tpl.Name), logx.Strings("params", tpl.Params))
	s.record(Sent{Kind: "template", To: to, Template: tpl})
	return nil
}

func (s *Sender) record(m Sent) {
	s.mu.Lock()
	s.history = append(s.history, m)
	if len(s.history) > s.limit {
		s.history = s.history[len(s.history)-s.limit:]
	}
	s.mu.Unlock()
}

// History returns the most recent messages, oldest first.
func (s *Sender) History() []Sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Sent(nil), s.history...)
}
