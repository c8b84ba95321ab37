package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/vinayprograms/taskrunner/bus"
)

// BusMonitor tracks heartbeats of watched runners and reports runners whose
// heartbeats stop.
type BusMonitor struct {
	bus           bus.MessageBus
	timeout       time.Duration
	checkInterval time.Duration

	mu       sync.RWMutex
	lastSeen map[string]*Heartbeat
	watched  map[string]time.Time
	reported map[string]bool
	deadCBs  []func(string)
	subs     []bus.Subscription

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewBusMonitor creates a monitor and starts its dead runner checker.
func NewBusMonitor(cfg MonitorConfig) (*BusMonitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}

	m := &BusMonitor{
		bus:           cfg.Bus,
		timeout:       cfg.Timeout,
		checkInterval: cfg.CheckInterval,
		lastSeen:      make(map[string]*Heartbeat),
		watched:       make(map[string]time.Time),
		reported:      make(map[string]bool),
		stopCh:        make(chan struct{}),
	}
	m.wg.Add(1)
	go m.check()
	return m, nil
}

// Watch subscribes to runnerID's heartbeats. The runner counts as alive from
// the moment it is watched until the timeout passes without a heartbeat.
func (m *BusMonitor) Watch(ctx context.Context, runnerID string) error {
	hb := Heartbeat{RunnerID: runnerID}
	sub, err := m.bus.Subscribe(ctx, hb.Subject())
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.subs = append(m.subs, sub)
	m.watched[runnerID] = time.Now()
	m.mu.Unlock()

	m.wg.Add(1)
	go m.receive(sub)
	return nil
}

func (m *BusMonitor) receive(sub bus.Subscription) {
	defer m.wg.Done()
	for msg := range sub.Messages() {
		hb, err := Unmarshal(msg.Data)
		if err != nil {
			continue
		}
		m.mu.Lock()
		m.lastSeen[hb.RunnerID] = hb
		m.watched[hb.RunnerID] = time.Now()
		delete(m.reported, hb.RunnerID)
		m.mu.Unlock()
	}
}

func (m *BusMonitor) check() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.checkDead()
		}
	}
}

func (m *BusMonitor) checkDead() {
	now := time.Now()
	var dead []string
	var cbs []func(string)

	m.mu.Lock()
	for id, seen := range m.watched {
		if now.Sub(seen) > m.timeout && !m.reported[id] {
			m.reported[id] = true
			dead = append(dead, id)
		}
	}
	cbs = append(cbs, m.deadCBs...)
	m.mu.Unlock()

	for _, id := range dead {
		for _, cb := range cbs {
			cb(id)
		}
	}
}

// OnDead registers a callback invoked once each time a watched runner goes
// silent for longer than the timeout.
func (m *BusMonitor) OnDead(cb func(runnerID string)) {
	m.mu.Lock()
	m.deadCBs = append(m.deadCBs, cb)
	m.mu.Unlock()
}

// IsAlive reports whether runnerID has been heard from within timeout.
func (m *BusMonitor) IsAlive(runnerID string, timeout time.Duration) bool {
	m.mu.RLock()
	hb, ok := m.lastSeen[runnerID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	return time.Since(hb.Timestamp) <= timeout
}

// LastHeartbeat returns the last heartbeat from runnerID, if any.
func (m *BusMonitor) LastHeartbeat(runnerID string) *Heartbeat {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSeen[runnerID]
}

// Stop ends every subscription and the checker.
func (m *BusMonitor) Stop() error {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.mu.Lock()
		subs := m.subs
		m.subs = nil
		m.mu.Unlock()
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	})
	m.wg.Wait()
	return nil
}
