package health

import (
	"context"
	"sync"
	"time"
)

type Listener func(Result)

// Monitor runs Check on an interval and fans the results out to subscribers
type Monitor struct {
	pinger   Pinger
	interval time.Duration
	opts     []CheckOption

	last      *Result
	listeners map[int]Listener
	nextID    int
	cancel    context.CancelFunc
	done      chan struct{}
	lock      sync.Mutex
}

// NewMonitor creates a stopped monitor. A non-positive interval uses DefaultInterval.
func NewMonitor(p Pinger, interval time.Duration, opts ...CheckOption) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		pinger:    p,
		interval:  interval,
		opts:      opts,
		listeners: make(map[int]Listener),
	}
}

// Start checks immediately and then on every interval. Calling Start on a running monitor does nothing.
func (m *Monitor) Start() {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(ctx, m.done)
}

// Stop ends monitoring and waits for an in-flight check to finish
func (m *Monitor) Stop() {
	m.lock.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.lock.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Monitor) Running() bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.cancel != nil
}

// Subscribe registers fn for every future result and replays the last one, if any
func (m *Monitor) Subscribe(fn Listener) (unsubscribe func()) {
	m.lock.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	last := m.last
	m.lock.Unlock()

	if last != nil {
		fn(*last)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.lock.Lock()
			delete(m.listeners, id)
			m.lock.Unlock()
		})
	}
}

// LastResult returns the most recent result, false before the first check completes
func (m *Monitor) LastResult() (Result, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.last == nil {
		return Result{}, false
	}
	return *m.last, true
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *Monitor) check(ctx context.Context) {
	result := Check(ctx, m.pinger, m.opts...)
	if ctx.Err() != nil {
		return
	}

	m.lock.Lock()
	m.last = &result
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.lock.Unlock()

	for _, l := range listeners {
		l(result)
	}
}
