package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DispatcherConfig configures the async dispatcher.
type DispatcherConfig struct {
	// QueueSize is the bounded event queue capacity.
	// Default: 256
	QueueSize int

	// Workers is the number of delivery goroutines.
	// Default: 2
	Workers int

	// SendTimeout bounds a single delivery attempt.
	// Default: 5 seconds
	SendTimeout time.Duration

	// OnDeliveryFailure, when set, is called once per failed delivery.
	OnDeliveryFailure func()
}

// DefaultDispatcherConfig returns the default dispatcher configuration.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		QueueSize:   256,
		Workers:     2,
		SendTimeout: 5 * time.Second,
	}
}

// Dispatcher fans events out to a sink from a bounded queue. Producers
// never block: when the queue is full the event is dropped and counted.
type Dispatcher struct {
	sink    Sink
	config  DispatcherConfig
	events  chan Event
	done    chan struct{}
	wg      sync.WaitGroup
	logger  *slog.Logger
	mu      sync.Mutex
	dropped int64
	closed  bool
}

// NewDispatcher creates and starts a dispatcher delivering to sink.
func NewDispatcher(sink Sink, config DispatcherConfig) *Dispatcher {
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}
	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = 5 * time.Second
	}

	d := &Dispatcher{
		sink:   sink,
		config: config,
		events: make(chan Event, config.QueueSize),
		done:   make(chan struct{}),
		logger: slog.Default().With("component", "notify.dispatcher"),
	}

	d.wg.Add(config.Workers)
	for i := 0; i < config.Workers; i++ {
		go d.worker()
	}

	return d
}

// Notify implements Notifier. It enqueues the event without blocking;
// a full queue drops the event.
func (d *Dispatcher) Notify(event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	// The mutex stays held across the enqueue so Close cannot close the
	// channel between the closed-check and the send. The send never
	// blocks: the default case fires when the queue is full.
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	select {
	case d.events <- event:
	default:
		d.dropped++
		d.logger.Warn("notification queue full, dropping event",
			"kind", event.Kind,
			"scope_id", event.ScopeID,
			"dropped_total", d.dropped,
		)
	}
}

// Dropped returns the number of events dropped due to a full queue.
func (d *Dispatcher) Dropped() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Close stops accepting events, drains the queue, and waits for in-flight
// deliveries to finish.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	close(d.events)
	d.wg.Wait()
	close(d.done)
	return nil
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for event := range d.events {
		ctx, cancel := context.WithTimeout(context.Background(), d.config.SendTimeout)
		if err := d.sink.Send(ctx, event); err != nil {
			// Best-effort by contract: log, never retry forever.
			d.logger.Warn("notification delivery failed",
				"kind", event.Kind,
				"scope_id", event.ScopeID,
				"error", err,
			)
			if d.config.OnDeliveryFailure != nil {
				d.config.OnDeliveryFailure()
			}
		}
		cancel()
	}
}
