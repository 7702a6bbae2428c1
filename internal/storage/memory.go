package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	logx "cctvbot/pkg/logx"
)

// Memory is a process-local Store. Nothing survives a restart.
type Memory struct {
	mu    sync.Mutex
	cfg   Config
	log   logx.Logger
	rows  []Violation
	subs  map[string]*Subscriber
	audit []AuditEntry
}

func NewMemory(cfg Config, log logx.Logger) *Memory {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Memory{cfg: cfg, log: log.With(logx.String("comp", "storage.memory")), subs: map[string]*Subscriber{}}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) snapshot() []Violation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Violation(nil), m.rows...)
}

func (m *Memory) FetchAll(ctx context.Context) ([]Violation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return number(m.snapshot()), nil
}

func (m *Memory) FetchUnresolved(ctx context.Context) ([]Violation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return filter(m.snapshot(), func(v Violation) bool { return !v.Resolved }), nil
}

func (m *Memory) FetchByViolationType(ctx context.Context, violationType string) ([]Violation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return filter(m.snapshot(), func(v Violation) bool { return containsFold(v.ViolationType, violationType) }), nil
}

func (m *Memory) FetchByFactoryArea(ctx context.Context, area string) ([]Violation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return filter(m.snapshot(), func(v Violation) bool { return containsFold(v.FactoryArea, area) }), nil
}

func (m *Memory) UpdateResolved(ctx context.Context, id string, resolved bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if id == "" {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows[i].Resolved = resolved
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) InsertViolation(ctx context.Context, v Violation) (Violation, error) {
	if err := ctx.Err(); err != nil {
		return Violation{}, err
	}
	v.SequenceIndex = 0
	m.mu.Lock()
	m.rows = append(m.rows, v)
	m.mu.Unlock()
	return v, nil
}

func (m *Memory) InsertSynthetic(ctx context.Context) (Violation, error) {
	if err := ctx.Err(); err != nil {
		return Violation{}, err
	}
	m.mu.Lock()
	v := synthesize(m.rows, time.Now(), m.cfg.Timezone)
	m.rows = append(m.rows, v)
	n := len(m.rows)
	m.mu.Unlock()
	m.log.Debug("synthetic violation inserted", logx.String("id", v.ID), logx.Int("rows", n))
	return v, nil
}

// Delete removes a row by id. Only the dashboard deletes rows in production;
// tests use this to simulate upstream deletion.
func (m *Memory) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return true
		}
	}
	return false
}

func (m *Memory) ListActiveAddresses(ctx context.Context) ([]string, error) {
	subs, err := m.ListSubscribers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(subs))
	for _, s := range subs {
		if s.Active {
			out = append(out, s.Address)
		}
	}
	return out, nil
}

func (m *Memory) ListSubscribers(ctx context.Context) ([]Subscriber, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	out := make([]Subscriber, 0, len(m.subs))
	for _, s := range m.subs {
		out = append(out, *s)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Address < out[j].Address
	})
	return out, nil
}

func (m *Memory) AddAddress(ctx context.Context, addr string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !ValidAddress(addr) {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.subs[addr]; ok {
		if s.Active {
			return false, nil
		}
		s.Active = true
		m.log.Info("subscriber reactivated", logx.String("address", addr))
		return true, nil
	}
	m.subs[addr] = &Subscriber{Address: addr, Active: true, CreatedAt: time.Now().UTC()}
	return true, nil
}

func (m *Memory) DeactivateAddress(ctx context.Context, addr string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[addr]
	if !ok || !s.Active {
		return false, nil
	}
	s.Active = false
	m.log.Debug("subscriber deactivated", logx.String("address", addr))
	return true, nil
}

func (m *Memory) AppendAudit(ctx context.Context, e AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	m.mu.Lock()
	m.audit = append(m.audit, e)
	m.mu.Unlock()
	return nil
}

// Audit returns a copy of the recorded audit entries.
func (m *Memory) Audit() []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AuditEntry(nil), m.audit...)
}
