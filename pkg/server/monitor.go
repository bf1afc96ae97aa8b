package server

import (
	"sync"

	"github.com/decred/slog"

	"github.com/cardroom/tablesrv/pkg/table"
)

// MonitorHandler consumes monitor events off the worker pool.
type MonitorHandler func(ev table.MonitorEvent)

// Monitor fans monitor events out to subscribers on a small worker
// pool, so hand-completion bookkeeping never blocks a table's update
// cycle. Events are dropped with a log line when the queue is full or
// the monitor is stopped.
type Monitor struct {
	log      slog.Logger
	queue    chan table.MonitorEvent
	workers  []*monitorWorker
	stopChan chan struct{}
	wg       sync.WaitGroup

	// mu guards the lifecycle; Stop holds it across wg.Wait, so
	// nothing a worker needs may live under it.
	mu      sync.Mutex
	started bool

	handlersMu sync.Mutex
	handlers   []MonitorHandler
}

type monitorWorker struct {
	id      int
	monitor *Monitor
}

// NewMonitor creates a stopped monitor with the given queue depth and
// worker count.
func NewMonitor(queueSize, workerCount int, log slog.Logger) *Monitor {
	m := &Monitor{
		log:      log,
		queue:    make(chan table.MonitorEvent, queueSize),
		stopChan: make(chan struct{}),
	}
	m.workers = make([]*monitorWorker, workerCount)
	for i := 0; i < workerCount; i++ {
		m.workers[i] = &monitorWorker{id: i, monitor: m}
	}
	return m
}

// Subscribe registers a handler for every future event. Handlers run on
// the worker goroutines and must not call back into the monitor.
func (m *Monitor) Subscribe(h MonitorHandler) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.handlers = append(m.handlers, h)
}

// Start launches the workers. Idempotent.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return
	}
	m.started = true
	// A previous Stop closed stopChan; workers need a fresh one.
	m.stopChan = make(chan struct{})
	m.log.Infof("starting monitor with %d workers", len(m.workers))
	for _, w := range m.workers {
		m.wg.Add(1)
		go w.run()
	}
}

// Stop drains nothing and stops the workers. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return
	}
	close(m.stopChan)
	m.wg.Wait()
	m.started = false
	m.log.Infof("monitor stopped")
}

// Publish enqueues an event without blocking.
func (m *Monitor) Publish(ev table.MonitorEvent) {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()

	if !started {
		m.log.Warnf("monitor not started, dropping event %q", ev.Event)
		return
	}
	select {
	case m.queue <- ev:
	default:
		m.log.Errorf("monitor queue full, dropping event %q", ev.Event)
	}
}

func (w *monitorWorker) run() {
	defer w.monitor.wg.Done()
	w.monitor.log.Debugf("monitor worker %d started", w.id)

	for {
		select {
		case <-w.monitor.stopChan:
			w.monitor.log.Debugf("monitor worker %d stopping", w.id)
			return
		case ev := <-w.monitor.queue:
			w.dispatch(ev)
		}
	}
}

func (w *monitorWorker) dispatch(ev table.MonitorEvent) {
	w.monitor.handlersMu.Lock()
	handlers := make([]MonitorHandler, len(w.monitor.handlers))
	copy(handlers, w.monitor.handlers)
	w.monitor.handlersMu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}
