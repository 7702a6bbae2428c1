package config

import (
	"slices"
	"testing"
)

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	old := &Config{Transport: "telegram", Telegram: TelegramConfig{Token: "a"}, Monitor: MonitorConfig{PollInterval: "5s"}}
	cur := *old
	cur.Telegram.Token = "b"
	cur.Monitor.PollInterval = "10s"
	cur.Demo = DemoConfig{Enabled: true, Schedule: "@hourly"}

	changed, attrs := SummarizeConfigChange(old, &cur)
	want := []string{"telegram", "monitor", "demo"}
	if !slices.Equal(changed, want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	if len(attrs) == 0 {
		t.Fatal("no attrs")
	}
	if got := RestartRequired(changed); !slices.Equal(got, []string{"telegram"}) {
		t.Fatalf("RestartRequired = %v", got)
	}
}

func TestSummarizeNoChange(t *testing.T) {
	t.Parallel()
	c := &Config{Transport: "console", DefaultSubscribers: []string{"6581899220"}}
	cp := *c
	cp.DefaultSubscribers = []string{"6581899220"}
	if changed, _ := SummarizeConfigChange(c, &cp); len(changed) != 0 {
		t.Fatalf("changed = %v", changed)
	}
}
