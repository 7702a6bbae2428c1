package logx

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"cctvbot/internal/transport"
)

type recordingSender struct {
	mu    sync.Mutex
	texts []string
	to    []string
}

func (r *recordingSender) Name() string            { return "recording" }
func (r *recordingSender) SupportsTemplates() bool { return false }
func (r *recordingSender) SendText(_ context.Context, to, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.to = append(r.to, to)
	r.texts = append(r.texts, text)
	return nil
}
func (r *recordingSender) SendImage(context.Context, string, string, string) error {
	return transport.ErrUnsupported
}
func (r *recordingSender) SendTemplate(context.Context, string, transport.TemplateFields) error {
	return transport.ErrUnsupported
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.texts)
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Info("nothing happens", String("k", "v"))
	l.With(Int("n", 1)).Error("still nothing")
}

func TestWriterLoggerFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := NewWriter(&buf, "debug").With(String("comp", "monitor"))
	l.Trace("dropped")
	l.Warn("fetch failed", Int("cycle", 3))

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("trace line should be filtered at debug level: %s", out)
	}
	for _, want := range []string{`"comp":"monitor"`, `"cycle":3`, `"message":"fetch failed"`, `"caller":"logging_test.go:`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %s: %s", want, out)
		}
	}
}

func TestChatSinkForwardsWarnings(t *testing.T) {
	sender := &recordingSender{}
	svc, log := New(Config{
		Level:   "debug",
		Console: false,
		Chat:    ChatConfig{Enabled: true, Address: "6581899220", MinLevel: "warn", RatePerSec: 50},
	}, sender)
	defer svc.Close()

	log.Info("not forwarded")
	log.Warn("store unavailable", String("op", "fetch_all"))

	deadline := time.Now().Add(2 * time.Second)
	for sender.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.texts) != 1 {
		t.Fatalf("forwarded %d lines, want 1: %v", len(sender.texts), sender.texts)
	}
	if sender.to[0] != "6581899220" {
		t.Fatalf("sent to %q", sender.to[0])
	}
	if !strings.HasPrefix(sender.texts[0], "[WARN] store unavailable") || !strings.Contains(sender.texts[0], "op=fetch_all") {
		t.Fatalf("unexpected chat line: %q", sender.texts[0])
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	if parseLevel("warning", LevelInfo) != LevelWarn {
		t.Fatal("warning should map to warn")
	}
	if parseLevel("bogus", LevelError) != LevelError {
		t.Fatal("unknown level should fall back to default")
	}
}
