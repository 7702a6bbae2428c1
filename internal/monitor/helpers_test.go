package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cctvbot/internal/eventbus"
	"cctvbot/internal/storage"
	"cctvbot/internal/transport"
	logx "cctvbot/pkg/logx"
)

var errBoom = errors.New("boom")

type sent struct {
	kind string
	to   string
	body string
}

type fakeSender struct {
	templates bool
	failKinds map[string]bool
	panicTo   string

	mu    sync.Mutex
	calls []sent
}

func (f *fakeSender) Name() string            { return "fake" }
func (f *fakeSender) SupportsTemplates() bool { return f.templates }

func (f *fakeSender) record(kind, to, body string) error {
	if to == f.panicTo && f.panicTo != "" {
		panic("sender exploded")
	}
	f.mu.Lock()
	f.calls = append(f.calls, sent{kind: kind, to: to, body: body})
	f.mu.Unlock()
	if f.failKinds[kind] {
		return errBoom
	}
	return nil
}

func (f *fakeSender) SendText(_ context.Context, to, text string) error {
	return f.record("text", to, text)
}

func (f *fakeSender) SendImage(_ context.Context, to, url, caption string) error {
	return f.record("image", to, url+"\n"+caption)
}

func (f *fakeSender) SendTemplate(_ context.Context, to string, tpl transport.TemplateFields) error {
	body := ""
	if len(tpl.Params) > 0 {
		body = tpl.Params[0]
	}
	return f.record("template", to, body)
}

func (f *fakeSender) all() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.calls...)
}

// delivered counts successful sends per address.
func (f *fakeSender) delivered() map[string]int {
	out := map[string]int{}
	for _, c := range f.all() {
		if !f.failKinds[c.kind] {
			out[c.to]++
		}
	}
	return out
}

// faultStore wraps the memory store with switchable fetch failures.
type faultStore struct {
	*storage.Memory
	failFetch  atomic.Bool
	emptyFetch atomic.Bool
	fetches    atomic.Int64
}

func (s *faultStore) FetchAll(ctx context.Context) ([]storage.Violation, error) {
	s.fetches.Add(1)
	if s.failFetch.Load() {
		return nil, errBoom
	}
	if s.emptyFetch.Load() {
		return nil, nil
	}
	return s.Memory.FetchAll(ctx)
}

func newStore() *faultStore {
	return &faultStore{Memory: storage.NewMemory(storage.Config{Driver: "memory"}, logx.Nop())}
}

func testConfig() Config {
	return Config{
		PollInterval: 10 * time.Millisecond,
		ResyncEvery:  12,
		SendTimeout:  time.Second,
		RatePerSec:   10000,
		Burst:        100,
	}
}

func newTestMonitor(t *testing.T, st storage.Store, snd transport.Sender, bus eventbus.Bus) *Monitor {
	t.Helper()
	m := New(testConfig(), Options{Store: st, Sender: snd, Log: logx.Nop(), Bus: bus})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Close(ctx)
	})
	return m
}

func insert(t *testing.T, st storage.Store, id string) {
	t.Helper()
	_, err := st.InsertViolation(context.Background(), storage.Violation{
		ID:                id,
		Timestamp:         "10/18/26 08:15 AM",
		CreationTimezone:  "Asia/Jakarta",
		FactoryArea:       "KP2,Jabar,Indonesia",
		InspectionSection: "Fumigasi Barang Shower Kandang",
		ViolationType:     "Shoes are not on the shoe rack",
	})
	if err != nil {
		t.Fatalf("insert %s: %v", id, err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// settle lets the loop run several cycles.
func settle() { time.Sleep(80 * time.Millisecond) }

func waitCycles(t *testing.T, m *Monitor, n uint64) {
	t.Helper()
	m.mu.Lock()
	start := m.cycles
	m.mu.Unlock()
	waitFor(t, "poll cycles", func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.cycles >= start+n
	})
}
