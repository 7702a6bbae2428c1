package console

import (
	"context"
	"errors"
	"testing"

	"cctvbot/internal/transport"
	logx "cctvbot/pkg/logx"
)

func TestConsoleSenderRecords(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop(), false)
	ctx := context.Background()

	if err := s.SendText(ctx, "6581899220", "hello"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if err := s.SendImage(ctx, "6581899220", "https://files.catbox.moe/vvx882.mp4", "cap"); err != nil {
		t.Fatalf("SendImage: %v", err)
	}
	if err := s.SendTemplate(ctx, "6581899220", transport.TemplateFields{Name: "x"}); !errors.Is(err, transport.ErrUnsupported) {
		t.Fatalf("SendTemplate = %v, want ErrUnsupported", err)
	}
	h := s.History()
	if len(h) != 2 || h[0].Kind != "text" || h[1].Kind != "image" || h[1].URL == "" {
		t.Fatalf("history = %+v", h)
	}
}

func TestConsoleSenderTemplates(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop(), true)
	if !s.SupportsTemplates() {
		t.Fatal("templates should be enabled")
	}
	if err := s.SendTemplate(context.Background(), "6581899220", transport.TemplateFields{Name: "alert", Params: []string{"a"}}); err != nil {
		t.Fatalf("SendTemplate: %v", err)
	}
	if h := s.History(); len(h) != 1 || h[0].Template.Name != "alert" {
		t.Fatalf("history = %+v", h)
	}
}

func TestConsoleSenderHonorsCancel(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop(), false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.SendText(ctx, "6581899220", "x"); err == nil {
		t.Fatal("expected context error")
	}
	if len(s.History()) != 0 {
		t.Fatal("nothing should be recorded")
	}
}
