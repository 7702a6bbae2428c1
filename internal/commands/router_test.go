package commands

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cctvbot/internal/transport"
	"cctvbot/internal/transport/console"
	logx "cctvbot/pkg/logx"
)

func textUpdate(chatID int64, text string, group bool) transport.Update {
	return transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{ChatID: chatID, FromID: 7, Text: text, IsGroup: group}}
}

func TestTokenize(t *testing.T) {
	t.Parallel()
	got := tokenize(`  resolve "case 12" x\ y  `)
	want := []string{"resolve", "case 12", "x y"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("tokenize = %q", got)
	}
	if tokenize("   ") != nil {
		t.Fatal("blank text should yield no tokens")
	}
}

func TestCommandWord(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in      string
		word    string
		slashed bool
	}{
		{"status", "status", false},
		{"/Status@cctv_bot", "status", true},
		{"HELP", "help", false},
	}
	for _, c := range cases {
		w, s := commandWord(c.in)
		if w != c.word || s != c.slashed {
			t.Fatalf("commandWord(%q) = %q,%v", c.in, w, s)
		}
	}
}

func TestRouterUnknownAndGroup(t *testing.T) {
	t.Parallel()
	out := console.New(logx.Nop(), false)
	r := NewRouter(logx.Nop(), out)
	ctx := context.Background()

	if err := r.Handle(ctx, textUpdate(6581899220, "dance", false)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	h := out.History()
	if len(h) != 1 || h[0].To != "6581899220" || !strings.Contains(h[0].Text, "Unknown command") {
		t.Fatalf("history = %+v", h)
	}

	// Plain chatter in groups is ignored.
	if err := r.Handle(ctx, textUpdate(-100123456789, "dance", true)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(out.History()) != 1 {
		t.Fatal("group message without slash must be ignored")
	}
}

func TestRouterRecoversPanics(t *testing.T) {
	t.Parallel()
	r := NewRouter(logx.Nop(), console.New(logx.Nop(), false))
	r.Register(Command{Name: "boom", Handle: func(context.Context, *Request) error { panic("kaboom") }})

	err := r.Handle(context.Background(), textUpdate(6581899220, "/boom", false))
	if err == nil || !strings.Contains(err.Error(), "panic: kaboom") {
		t.Fatalf("Handle err = %v", err)
	}
}

func TestRouterAppliesTimeout(t *testing.T) {
	t.Parallel()
	r := NewRouter(logx.Nop(), nil)
	r.Register(Command{Name: "slow", Timeout: 20 * time.Millisecond, Handle: func(ctx context.Context, _ *Request) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	err := r.Handle(context.Background(), textUpdate(6581899220, "slow", false))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}

func TestRouterAliasesAndMenu(t *testing.T) {
	t.Parallel()
	r := NewRouter(logx.Nop(), nil)
	var got []string
	r.Register(Command{Name: "status", Aliases: []string{"st"}, Description: "status", Handle: func(_ context.Context, req *Request) error {
		got = append(got, req.Command)
		return nil
	}})
	r.Register(Command{Name: "help", Description: "help", Handle: func(context.Context, *Request) error { return nil }})

	_ = r.Handle(context.Background(), textUpdate(6581899220, "st", false))
	if len(got) != 1 || got[0] != "status" {
		t.Fatalf("alias routed to %v", got)
	}
	menu := r.MenuCommands()
	if len(menu) != 2 || menu[0].Command != "help" || menu[1].Command != "status" {
		t.Fatalf("menu = %+v", menu)
	}
}

func TestDispatchLoop(t *testing.T) {
	out := console.New(logx.Nop(), false)
	r := NewRouter(logx.Nop(), out)
	r.Register(Command{Name: "ping", Handle: func(ctx context.Context, req *Request) error {
		return req.Reply(ctx, "pong")
	}})

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan transport.Update, 1)
	done := make(chan error, 1)
	go func() { done <- r.DispatchLoop(ctx, updates, 2) }()

	updates <- textUpdate(6581899220, "ping", false)
	deadline := time.Now().Add(2 * time.Second)
	for len(out.History()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("DispatchLoop: %v", err)
	}
	if h := out.History(); len(h) != 1 || h[0].Text != "pong" {
		t.Fatalf("history = %+v", h)
	}
}
