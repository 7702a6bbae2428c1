// Package commands routes inbound chat text to monitor operations.
//
// Commands are plain words ("status") or slash commands ("/status@bot").
// In group chats only slash commands are routed.
package commands

import (
	"context"
	"runtime/debug"
	"sort"
	"strconv"
	"sync"
	"time"

	rtsup "cctvbot/internal/runtime/supervisor"
	"cctvbot/internal/transport"
	logx "cctvbot/pkg/logx"
)

type Command struct {
	Name        string
	Aliases     []string
	Usage       string
	Description string
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

type Request struct {
	Message *transport.Message
	Address string
	FromID  int64
	Command string
	Args    []string
	ReqID   string
	Logger  logx.Logger

	sender transport.Sender
}

// Reply sends text back to the chat the command came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	if r.sender == nil {
		return nil
	}
	return r.sender.SendText(ctx, r.Address, text)
}

type Router struct {
	log     logx.Logger
	sender  transport.Sender
	timeout time.Duration

	mu    sync.RWMutex
	cmds  map[string]*Command
	names []string

	jobs chan func()
}

func NewRouter(log logx.Logger, sender transport.Sender) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		log:     log.With(logx.String("comp", "commands")),
		sender:  sender,
		timeout: 30 * time.Second,
		cmds:    map[string]*Command{},
		jobs:    make(chan func(), 256),
	}
}

// SetTimeout changes the default per-command timeout. Non-positive values are ignored.
func (r *Router) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	r.timeout = d
	r.mu.Unlock()
}

// Register adds commands. A later registration of the same name or alias wins.
func (r *Router) Register(cmds ...Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range cmds {
		c := cmds[i]
		r.cmds[c.Name] = &c
		r.names = append(r.names, c.Name)
		for _, a := range c.Aliases {
			r.cmds[a] = &c
		}
	}
}

// Commands returns the registered commands in registration order.
func (r *Router) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, 0, len(r.names))
	seen := map[string]bool{}
	for _, n := range r.names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, *r.cmds[n])
	}
	return out
}

// MenuCommands lists commands for platform menus, sorted by name.
func (r *Router) MenuCommands() []transport.BotCommand {
	cmds := r.Commands()
	out := make([]transport.BotCommand, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, transport.BotCommand{Command: c.Name, Description: c.Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}

// Handle routes one update synchronously.
func (r *Router) Handle(ctx context.Context, up transport.Update) error {
	h, req := r.route(up)
	if h == nil {
		return nil
	}
	return h(ctx, req)
}

func (r *Router) route(up transport.Update) (HandlerFunc, *Request) {
	if up.Kind != transport.UpdateMessage || up.Message == nil {
		return nil, nil
	}
	msg := up.Message
	parts := tokenize(msg.Text)
	if len(parts) == 0 {
		return nil, nil
	}
	word, slashed := commandWord(parts[0])
	if msg.IsGroup && !slashed {
		return nil, nil
	}

	rid := newReqID()
	req := &Request{
		Message: msg,
		Address: msg.Address(),
		FromID:  msg.FromID,
		Command: word,
		Args:    parts[1:],
		ReqID:   rid,
		sender:  r.sender,
	}
	req.Logger = r.log.With(
		logx.String("rid", rid),
		logx.String("chat", req.Address),
		logx.String("cmd", word),
	)

	r.mu.RLock()
	cmd := r.cmds[word]
	timeout := r.timeout
	r.mu.RUnlock()

	var h HandlerFunc
	if cmd == nil {
		h = unknownCommand
	} else {
		h = cmd.Handle
		req.Command = cmd.Name
		if cmd.Timeout > 0 {
			timeout = cmd.Timeout
		}
	}
	return Chain(h,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(timeout),
	), req
}

func unknownCommand(ctx context.Context, req *Request) error {
	return req.Reply(ctx, "🤔 Unknown command. Send 'help' for the command list.")
}

func (r *Router) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
		}
	}()
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop consumes updates until ctx is done or updates is closed,
// running handlers on a small worker pool.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan transport.Update, workers int) error {
	if workers < 1 {
		workers = 2
	}
	sup := rtsup.New(ctx, rtsup.WithLogger(r.log), rtsup.WithCancelOnError(false))
	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-r.jobs:
					if !ok {
						return nil
					}
					func() {
						defer func() {
							if rec := recover(); rec != nil {
								r.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	r.log.Info("command dispatcher started", logx.Int("workers", workers))

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			h, req := r.route(up)
			if h == nil {
				continue
			}
			if !r.tryEnqueue(func() { _ = h(ctx, req) }) {
				_ = req.Reply(ctx, "⏳ Busy, try again in a moment.")
			}
		}
	}
}
