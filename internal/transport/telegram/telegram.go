// Package telegram sends alerts through the Telegram Bot API and receives
// chat commands by long polling.
//
// Subscriber addresses are 8 to 15 digits, so only private chats (positive
// ids) can subscribe. Group and supergroup ids are negative and are rejected
// at the registry boundary.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "cctvbot/internal/runtime/supervisor"
	"cctvbot/internal/transport"
	logx "cctvbot/pkg/logx"
)

const (
	textLimit    = 4000
	captionLimit = 1024
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// APIURL overrides the Bot API endpoint (tests, local bot API servers).
	APIURL string
}

// Adapter sends alerts through the Telegram Bot API and forwards inbound
// text messages as transport updates.
type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	out     atomic.Value // chan<- transport.Update
	dropped atomic.Uint64

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
}

var (
	_ transport.Sender             = (*Adapter)(nil)
	_ transport.Receiver           = (*Adapter)(nil)
	_ transport.CommandMenuUpdater = (*Adapter)(nil)
)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	settings := tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	}
	if cfg.APIURL != "" {
		settings.URL = cfg.APIURL
		settings.Offline = true
	}
	b, err := tele.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log.With(logx.String("comp", "telegram")), bot: b}
	var nilOut chan<- transport.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) Name() string            { return "telegram" }
func (a *Adapter) SupportsTemplates() bool { return false }

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Chat == nil {
			return nil
		}
		msg := &transport.Message{
			ID:      m.ID,
			ChatID:  m.Chat.ID,
			Text:    m.Text,
			IsGroup: m.Chat.Type == tele.ChatGroup || m.Chat.Type == tele.ChatSuperGroup,
		}
		if m.Sender != nil {
			msg.FromID = m.Sender.ID
			msg.FromUsername = m.Sender.Username
		}
		out, _ := a.out.Load().(chan<- transport.Update)
		if out == nil {
			return nil
		}
		select {
		case out <- transport.Update{Kind: transport.UpdateMessage, Message: msg}:
		default:
			a.dropped.Add(1)
		}
		return nil
	})
}

// Start begins long polling and forwards text messages to out.
func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log))
	sup := a.sup

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		// Stop blocks until the poller acknowledges; do not hold up Wait on it.
		go a.bot.Stop()
	})
	sup.Go0("updates.drop_report", func(c context.Context) {
		t := time.NewTicker(5 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-t.C:
				if n := a.dropped.Swap(0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n))
				}
			}
		}
	})
	// bot.Start blocks until bot.Stop; restart it if it returns on its own.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		return nil
	}, rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second), rtsup.WithStopOnCleanExit(false))
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- transport.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	sup.Cancel()

	// Long polling may hold a request open; never block shutdown on it for long.
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sup.Wait(wctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		a.log.Warn("telegram stop error", logx.Err(err))
	}
	return nil
}

func (a *Adapter) chat(to string) (*tele.Chat, error) {
	id, err := transport.ParseChatID(to)
	if err != nil {
		return nil, fmt.Errorf("telegram: invalid chat address %q: %w", to, err)
	}
	return &tele.Chat{ID: id}, nil
}

func (a *Adapter) SendText(ctx context.Context, to, text string) error {
	chat, err := a.chat(to)
	if err != nil {
		return err
	}
	for _, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := a.bot.Send(chat, chunk, &tele.SendOptions{DisableWebPagePreview: true}); err != nil {
			return fmt.Errorf("telegram sendMessage: %w", err)
		}
	}
	return nil
}

// SendImage sends a photo, or a video when the URL looks like one, with a caption.
func (a *Adapter) SendImage(ctx context.Context, to, url, caption string) error {
	if strings.TrimSpace(url) == "" {
		return fmt.Errorf("telegram: empty media url: %w", transport.ErrUnsupported)
	}
	chat, err := a.chat(to)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	caption = truncateRunes(caption, captionLimit)

	var what any
	switch transport.MediaKindOf(url) {
	case transport.MediaVideo:
		what = &tele.Video{File: tele.FromURL(url), Caption: caption}
	default:
		what = &tele.Photo{File: tele.FromURL(url), Caption: caption}
	}
	if _, err := a.bot.Send(chat, what); err != nil {
		return fmt.Errorf("telegram send media: %w", err)
	}
	return nil
}

func (a *Adapter) SendTemplate(context.Context, string, transport.TemplateFields) error {
	return transport.ErrUnsupported
}

// UpdateMenuCommands publishes the bot command list (setMyCommands).
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []transport.BotCommand) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	list := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		list = append(list, tele.Command{Text: c.Command, Description: c.Description})
	}
	if err := a.bot.SetCommands(list); err != nil {
		return fmt.Errorf("telegram setMyCommands: %w", err)
	}
	a.log.Info("menu commands updated", logx.Int("count", len(list)))
	return nil
}

// splitText cuts s into chunks of at most limit runes, preferring newline boundaries.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	var out []string
	for start := 0; start < len(rs); {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start+limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

func truncateRunes(s string, limit int) string {
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit-1]) + "…"
}
