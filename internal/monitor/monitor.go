// Package monitor watches the violation store for new records and alerts
// every registered subscriber.
//
// The monitor is either stopped or running. Starting it snapshots every
// record present at that moment as already seen, so only records that appear
// later are alerted. At most one polling loop exists; it runs until the last
// subscriber leaves or the monitor is closed.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"cctvbot/internal/eventbus"
	"cctvbot/internal/metrics"
	rtsup "cctvbot/internal/runtime/supervisor"
	"cctvbot/internal/storage"
	"cctvbot/internal/transport"
	logx "cctvbot/pkg/logx"
)

var (
	ErrInvalidAddress = errors.New("invalid subscriber address")
	ErrClosed         = errors.New("monitor closed")
)

type Options struct {
	Store   storage.Store
	Sender  transport.Sender
	Log     logx.Logger
	Bus     eventbus.Bus
	Metrics metrics.Recorder
}

type Monitor struct {
	store    storage.Store
	registry *Registry
	deliver  *Deliverer
	log      logx.Logger
	bus      eventbus.Bus
	metrics  metrics.Recorder

	// base bounds the I/O of every polling run; canceled by Close.
	base       context.Context
	cancelBase context.CancelFunc

	// transition serializes start and stop.
	transition sync.Mutex

	mu              sync.Mutex
	cfg             Config
	closed          bool
	active          bool
	gen             uint64
	run             *pollRun
	prev            *pollRun
	seen            map[string]struct{}
	lastRecordCount int
	cycles          uint64
	lastPollAt      time.Time
	lastPollErr     string
	legacyWarned    bool
}

type pollRun struct {
	gen      uint64
	stop     chan struct{}
	stopOnce sync.Once
	sup      *rtsup.Supervisor
}

func (r *pollRun) halt() { r.stopOnce.Do(func() { close(r.stop) }) }

func New(cfg Config, opts Options) *Monitor {
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	bus := opts.Bus
	if bus == nil {
		bus = eventbus.Nop()
	}
	rec := opts.Metrics
	if rec == nil {
		rec = metrics.Nop()
	}
	log = log.With(logx.String("comp", "monitor"))
	base, cancel := context.WithCancel(context.Background())
	return &Monitor{
		store:      opts.Store,
		registry:   NewRegistry(opts.Store, log),
		deliver:    NewDeliverer(opts.Sender, cfg, log, rec),
		log:        log,
		bus:        bus,
		metrics:    rec,
		base:       base,
		cancelBase: cancel,
		cfg:        cfg.withDefaults(),
	}
}

// Registry exposes the subscriber registry.
func (m *Monitor) Registry() *Registry { return m.registry }

// Subscribers returns the registered addresses, sorted.
func (m *Monitor) Subscribers() []string { return m.registry.Snapshot() }

func (m *Monitor) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Apply updates the reloadable settings. A running loop picks up the new
// interval after its current sleep.
func (m *Monitor) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	m.deliver.Apply(cfg)
}

// Boot loads persisted subscribers and, when configured, starts polling if
// any exist.
func (m *Monitor) Boot(ctx context.Context) error {
	if err := m.registry.Resync(ctx); err != nil {
		return fmt.Errorf("load subscribers: %w", err)
	}
	m.metrics.SetSubscribers(m.registry.Len())

	m.mu.Lock()
	startOnBoot := m.cfg.StartOnBoot
	m.mu.Unlock()
	if !startOnBoot || m.registry.Len() == 0 {
		return nil
	}

	m.transition.Lock()
	defer m.transition.Unlock()
	if m.Active() {
		return nil
	}
	return m.startLocked(ctx, "boot")
}

// StartMonitoring registers addr and starts the polling loop if it is not
// running. It reports whether this call started the loop.
func (m *Monitor) StartMonitoring(ctx context.Context, addr string) (bool, error) {
	if !storage.ValidAddress(addr) {
		return false, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	m.transition.Lock()
	defer m.transition.Unlock()

	started := false
	if !m.Active() {
		if err := m.startLocked(ctx, addr); err != nil {
			return false, err
		}
		started = true
	}
	m.registry.Add(ctx, addr)
	m.metrics.SetSubscribers(m.registry.Len())
	m.publish(EventSubscriberAdded, map[string]any{"address": addr})
	return started, nil
}

// StopMonitoring unregisters addr. When no subscriber remains the loop is
// halted before its next fetch and the seen set is cleared. It reports
// whether monitoring is now stopped globally.
func (m *Monitor) StopMonitoring(ctx context.Context, addr string) (bool, error) {
	m.transition.Lock()
	defer m.transition.Unlock()

	if m.registry.Remove(ctx, addr) {
		m.publish(EventSubscriberRemoved, map[string]any{"address": addr})
	}
	m.metrics.SetSubscribers(m.registry.Len())
	if m.registry.Len() > 0 {
		return false, nil
	}
	m.haltLocked(addr)
	return true, nil
}

// startLocked snapshots the current records as seen and launches a polling
// run. Callers hold m.transition.
func (m *Monitor) startLocked(ctx context.Context, reason string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	prev := m.prev
	m.mu.Unlock()

	// A halted run may still be finishing its last cycle.
	if prev != nil {
		if err := prev.sup.Wait(ctx); err != nil && ctx.Err() != nil {
			return fmt.Errorf("previous polling run still active: %w", err)
		}
		prev.sup.Cancel()
	}

	current, err := m.store.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("snapshot records: %w", err)
	}
	seen := identities(current)

	m.mu.Lock()
	m.gen++
	r := &pollRun{
		gen:  m.gen,
		stop: make(chan struct{}),
		sup:  rtsup.New(m.base, rtsup.WithLogger(m.log)),
	}
	m.run = r
	m.prev = nil
	m.active = true
	m.seen = seen
	m.lastRecordCount = len(current)
	m.cycles = 0
	m.mu.Unlock()

	r.sup.GoRestart("monitor.poll", func(ctx context.Context) error {
		return m.loop(ctx, r)
	}, rtsup.WithRestartBackoff(time.Second, 30*time.Second))

	m.metrics.SetMonitoring(true)
	m.metrics.SetSeen(len(seen))
	m.log.Info("monitoring started", logx.String("by", reason), logx.Int("existing", len(current)))
	m.publish(EventMonitorStarted, map[string]any{"by": reason, "existing": len(current)})
	return nil
}

func (m *Monitor) haltLocked(reason string) {
	m.mu.Lock()
	r := m.run
	if !m.active || r == nil {
		m.mu.Unlock()
		return
	}
	m.active = false
	m.gen++
	m.run = nil
	m.prev = r
	m.seen = nil
	m.mu.Unlock()

	r.halt()
	m.metrics.SetMonitoring(false)
	m.metrics.SetSeen(0)
	m.log.Info("monitoring stopped", logx.String("by", reason))
	m.publish(EventMonitorStopped, map[string]any{"by": reason})
}

// haltIfEmpty stops run gen when every subscriber was removed out of band.
func (m *Monitor) haltIfEmpty(gen uint64) {
	m.transition.Lock()
	defer m.transition.Unlock()
	if !m.current(gen) || m.registry.Len() > 0 {
		return
	}
	m.haltLocked("resync")
}

// Close halts polling, waits for the loop to exit until ctx expires and
// cancels in-flight I/O.
func (m *Monitor) Close(ctx context.Context) error {
	m.transition.Lock()
	defer m.transition.Unlock()

	m.haltLocked("shutdown")
	m.mu.Lock()
	m.closed = true
	prev := m.prev
	m.prev = nil
	m.mu.Unlock()

	var err error
	if prev != nil {
		if werr := prev.sup.Wait(ctx); werr != nil && ctx.Err() != nil {
			err = werr
		}
	}
	m.cancelBase()
	return err
}

func (m *Monitor) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active && m.gen == gen
}

func (m *Monitor) loop(ctx context.Context, r *pollRun) error {
	for {
		if !m.sleep(ctx, r.stop) {
			return nil
		}
		if !m.current(r.gen) {
			return nil
		}
		m.cycle(ctx, r.gen)
	}
}

// sleep waits one poll interval. It returns false when the run was halted.
func (m *Monitor) sleep(ctx context.Context, stop <-chan struct{}) bool {
	m.mu.Lock()
	d := m.cfg.PollInterval
	m.mu.Unlock()

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}

// cycle runs one poll: optional registry resync, fetch, detection and
// delivery. It never panics and never returns an error; failures are logged
// and the next cycle retries.
func (m *Monitor) cycle(ctx context.Context, gen uint64) {
	start := time.Now()
	result := metrics.PollOK
	defer func() {
		if r := recover(); r != nil {
			result = metrics.PollPanic
			m.log.Error("poll cycle panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			m.notePoll(fmt.Errorf("panic: %v", r))
		}
		m.metrics.IncPolls(result)
		m.metrics.ObservePollDuration(time.Since(start))
	}()

	m.mu.Lock()
	m.cycles++
	n := m.cycles
	cfg := m.cfg
	seen := m.seen
	m.mu.Unlock()

	if n%uint64(cfg.ResyncEvery) == 0 {
		_ = m.registry.Resync(ctx)
		m.metrics.SetSubscribers(m.registry.Len())
		if m.registry.Len() == 0 {
			result = metrics.PollSkipped
			// The run may not take transition itself: Start and Close wait
			// for it while holding that lock.
			go m.haltIfEmpty(gen)
			return
		}
	}

	fetched, err := m.store.FetchAll(ctx)
	if err != nil {
		result = metrics.PollError
		m.notePoll(err)
		m.log.Warn("fetch failed, skipping cycle", logx.Err(err))
		return
	}
	// An empty result while records were known is treated as unavailable data.
	if len(fetched) == 0 && len(seen) > 0 {
		result = metrics.PollSkipped
		m.notePoll(nil)
		m.log.Debug("empty fetch with known records, skipping cycle", logx.Int("seen", len(seen)))
		return
	}
	m.warnLegacy(fetched)

	fresh, next := Detect(seen, fetched)

	m.mu.Lock()
	if !m.active || m.gen != gen {
		m.mu.Unlock()
		result = metrics.PollSkipped
		return
	}
	m.seen = next
	m.lastRecordCount = len(fetched)
	m.mu.Unlock()
	m.notePoll(nil)
	m.metrics.SetSeen(len(next))
	m.metrics.AddNewRecords(len(fresh))

	if len(fresh) == 0 {
		return
	}
	m.log.Info("new violations detected", logx.Int("count", len(fresh)), logx.Int("total", len(fetched)))

	for _, v := range fresh {
		if !cfg.AlertResolved && v.Resolved {
			continue
		}
		m.publish(EventViolationDetected, map[string]any{"case": CaseID(v), "type": v.ViolationType, "area": v.FactoryArea})
		for _, addr := range m.registry.Snapshot() {
			if ctx.Err() != nil {
				return
			}
			m.alert(ctx, v, addr)
		}
	}
}

// alert delivers one record to one address. Failures, including sender
// panics, stay local to the pair.
func (m *Monitor) alert(ctx context.Context, v storage.Violation, addr string) {
	var (
		tier Tier
		err  error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: sender panic: %v", ErrDeliveryFailed, r)
			}
		}()
		tier, err = m.deliver.Deliver(ctx, v, addr)
	}()
	if err != nil {
		m.log.Error("alert not delivered", logx.String("case", CaseID(v)), logx.String("to", addr), logx.Err(err))
		m.publish(EventAlertFailed, map[string]any{"case": CaseID(v), "address": addr, "error": err.Error()})
		return
	}
	m.log.Debug("alert delivered", logx.String("case", CaseID(v)), logx.String("to", addr), logx.String("tier", string(tier)))
	m.publish(EventAlertDelivered, map[string]any{"case": CaseID(v), "address": addr, "tier": string(tier)})
}

func (m *Monitor) notePoll(err error) {
	m.mu.Lock()
	m.lastPollAt = time.Now()
	if err != nil {
		m.lastPollErr = err.Error()
	} else {
		m.lastPollErr = ""
	}
	m.mu.Unlock()
}

func (m *Monitor) warnLegacy(vs []storage.Violation) {
	m.mu.Lock()
	if m.legacyWarned {
		m.mu.Unlock()
		return
	}
	for _, v := range vs {
		if v.ID == "" {
			m.legacyWarned = true
			break
		}
	}
	warned := m.legacyWarned
	m.mu.Unlock()
	if warned {
		m.log.Warn("records without id found; falling back to timestamp|area|section|type identity")
	}
}

// UpdateResolved marks a record resolved or open. It reports whether the
// record exists.
func (m *Monitor) UpdateResolved(ctx context.Context, id string, resolved bool) (bool, error) {
	ok, err := m.store.UpdateResolved(ctx, id, resolved)
	if err != nil {
		return false, fmt.Errorf("update resolved: %w", err)
	}
	if ok {
		m.publish(EventViolationResolved, map[string]any{"case": id, "resolved": resolved})
	}
	return ok, nil
}

// InsertDemoRecord adds a synthetic record. A running loop alerts it on the
// next cycle.
func (m *Monitor) InsertDemoRecord(ctx context.Context) (storage.Violation, error) {
	v, err := m.store.InsertSynthetic(ctx)
	if err != nil {
		return storage.Violation{}, fmt.Errorf("insert demo record: %w", err)
	}
	m.publish(EventViolationCreated, map[string]any{"case": v.ID, "synthetic": true})
	return v, nil
}

// Unresolved returns up to limit open records in store order and the total
// number of open records.
func (m *Monitor) Unresolved(ctx context.Context, limit int) ([]storage.Violation, int, error) {
	vs, err := m.store.FetchUnresolved(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch unresolved: %w", err)
	}
	total := len(vs)
	if limit > 0 && len(vs) > limit {
		vs = vs[:limit]
	}
	return vs, total, nil
}
