package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deskpilot/support-triage/internal/pkg/logger"
)

// Dispatcher defaults.
const (
	DefaultQueueSize   = 256
	DefaultWorkers     = 4
	DefaultSendTimeout = 10 * time.Second
)

// DispatcherConfig tunes a Dispatcher. Zero values take the defaults.
type DispatcherConfig struct {
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
}

// Stats is a point-in-time view of the dispatcher counters.
type Stats struct {
	Enqueued int64 `json:"enqueued"`
	Sent     int64 `json:"sent"`
	Failed   int64 `json:"failed"`
	Dropped  int64 `json:"dropped"`
	Pending  int   `json:"pending"`
}

// Dispatcher is the bounded outbound boundary between the engine and the
// notifiers. Enqueue never blocks; a full queue drops the notice and
// counts it. Workers send with a per-notice timeout and log failures.
type Dispatcher struct {
	notifier Notifier
	queue    chan Notice
	timeout  time.Duration
	workers  int

	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
	started bool

	enqueued int64
	sent     int64
	failed   int64
	dropped  int64
}

// NewDispatcher creates a dispatcher in front of n. Call Start to run the
// workers and Close to drain them.
func NewDispatcher(n Notifier, cfg DispatcherConfig) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	return &Dispatcher{
		notifier: n,
		queue:    make(chan Notice, cfg.QueueSize),
		timeout:  cfg.SendTimeout,
		workers:  cfg.Workers,
	}
}

// Start launches the workers. It is a no-op when already started.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	logger.Info("[notify.Dispatcher] started", "workers", d.workers, "queue_size", cap(d.queue))
}

// Enqueue hands a notice to the workers. It returns false when the notice
// was dropped because the queue is full or the dispatcher is closed.
func (d *Dispatcher) Enqueue(n Notice) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		atomic.AddInt64(&d.dropped, 1)
		logger.Error("[notify.Dispatcher] notice dropped: dispatcher closed", "conversation_id", n.Key())
		return false
	}
	select {
	case d.queue <- n:
		atomic.AddInt64(&d.enqueued, 1)
		return true
	default:
		atomic.AddInt64(&d.dropped, 1)
		logger.Error("[notify.Dispatcher] notice dropped: queue full", "conversation_id", n.Key())
		return false
	}
}

// Close stops accepting notices and waits until the queued ones were
// attempted or ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s := d.Stats()
		logger.Info("[notify.Dispatcher] stopped", "sent", s.Sent, "failed", s.Failed, "dropped", s.Dropped)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Enqueued: atomic.LoadInt64(&d.enqueued),
		Sent:     atomic.LoadInt64(&d.sent),
		Failed:   atomic.LoadInt64(&d.failed),
		Dropped:  atomic.LoadInt64(&d.dropped),
		Pending:  len(d.queue),
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for n := range d.queue {
		d.send(n)
	}
}

func (d *Dispatcher) send(n Notice) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.notifier.SendEscalationNotice(ctx, n); err != nil {
		atomic.AddInt64(&d.failed, 1)
		logger.Error("[notify.Dispatcher] escalation notice failed",
			"conversation_id", n.Key(), "reason", n.Summary.Reason, "error", err)
		return
	}
	atomic.AddInt64(&d.sent, 1)
}
