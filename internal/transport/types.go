package transport

import (
	"context"
	"errors"
)

// ErrUnsupported is returned by senders for message kinds the provider cannot deliver.
var ErrUnsupported = errors.New("transport: unsupported message kind")

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
)

// Update is an inbound event from a chat provider.
type Update struct {
	Kind    UpdateKind
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

// Address returns the chat address used by the subscriber registry.
func (m *Message) Address() string {
	if m == nil {
		return ""
	}
	return formatChatID(m.ChatID)
}

// TemplateFields is a structured, pre-approved message with positional parameters.
type TemplateFields struct {
	Name     string
	Language string
	Params   []string

	// ButtonParam fills the dynamic suffix of a URL button (empty = no button).
	ButtonParam string
}

// Sender delivers outbound messages to a single address.
// A nil error means the provider accepted the message.
type Sender interface {
	Name() string
	SupportsTemplates() bool

	SendText(ctx context.Context, to, text string) error
	SendImage(ctx context.Context, to, url, caption string) error
	SendTemplate(ctx context.Context, to string, tpl TemplateFields) error
}

// Receiver is implemented by transports that also deliver inbound chat updates.
type Receiver interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
